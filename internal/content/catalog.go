package content

import "github.com/samber/lo"

// Provider is the read-only view of exercise content the practice flows
// depend on. Implementations must be safe for concurrent use.
type Provider interface {
	ReadingSets() []ReadingSet
	ReadingSet(id string) (ReadingSet, bool)
	ListeningSets() []ListeningSet
	ListeningSet(id string) (ListeningSet, bool)
	SpeakingTasks(part int) []SpeakingTask
	WritingTasks(taskType int) []WritingTask
}

// Catalog is an immutable, indexed set of exercises. It is built once at
// startup and never mutated afterwards, so it needs no locking.
type Catalog struct {
	reading     []ReadingSet
	listening   []ListeningSet
	speaking    []SpeakingTask
	writing     []WritingTask
	readingByID map[string]int
	listenByID  map[string]int
}

var _ Provider = (*Catalog)(nil)

// NewCatalog validates and indexes the given content.
func NewCatalog(reading []ReadingSet, listening []ListeningSet, speaking []SpeakingTask, writing []WritingTask) (*Catalog, error) {
	if err := validate(reading, listening, speaking, writing); err != nil {
		return nil, err
	}

	c := &Catalog{
		reading:     reading,
		listening:   listening,
		speaking:    speaking,
		writing:     writing,
		readingByID: make(map[string]int, len(reading)),
		listenByID:  make(map[string]int, len(listening)),
	}
	for i, s := range reading {
		c.readingByID[s.ID] = i
	}
	for i, s := range listening {
		c.listenByID[s.ID] = i
	}
	return c, nil
}

func (c *Catalog) ReadingSets() []ReadingSet {
	return append([]ReadingSet(nil), c.reading...)
}

func (c *Catalog) ReadingSet(id string) (ReadingSet, bool) {
	i, ok := c.readingByID[id]
	if !ok {
		return ReadingSet{}, false
	}
	return c.reading[i], true
}

func (c *Catalog) ListeningSets() []ListeningSet {
	return append([]ListeningSet(nil), c.listening...)
}

func (c *Catalog) ListeningSet(id string) (ListeningSet, bool) {
	i, ok := c.listenByID[id]
	if !ok {
		return ListeningSet{}, false
	}
	return c.listening[i], true
}

// SpeakingTasks returns the templates for one part of the speaking test.
func (c *Catalog) SpeakingTasks(part int) []SpeakingTask {
	var out []SpeakingTask
	for _, t := range c.speaking {
		if t.Part == part {
			out = append(out, t)
		}
	}
	return out
}

// WritingTasks returns the templates for Task 1 or Task 2.
func (c *Catalog) WritingTasks(taskType int) []WritingTask {
	var out []WritingTask
	for _, t := range c.writing {
		if t.TaskType == taskType {
			out = append(out, t)
		}
	}
	return out
}

// Summary counts the loaded content per kind.
type Summary struct {
	ReadingSets   int
	ReadingQs     int
	ListeningSets int
	ListeningQs   int
	SpeakingTasks int
	WritingTasks  int
}

// Summary reports how much content the catalog holds.
func (c *Catalog) Summary() Summary {
	s := Summary{
		ReadingSets:   len(c.reading),
		ListeningSets: len(c.listening),
		SpeakingTasks: len(c.speaking),
		WritingTasks:  len(c.writing),
	}
	for _, r := range c.reading {
		s.ReadingQs += len(r.Questions)
	}
	for _, l := range c.listening {
		s.ListeningQs += len(l.Questions)
	}
	return s
}

// MediaRefs lists every audio and image reference in the catalog, in
// catalog order and without duplicates.
func (c *Catalog) MediaRefs() []string {
	var refs []string
	for _, l := range c.listening {
		refs = append(refs, l.AudioRef)
	}
	for _, w := range c.writing {
		if w.ImageRef != "" {
			refs = append(refs, w.ImageRef)
		}
	}
	return lo.Uniq(refs)
}
