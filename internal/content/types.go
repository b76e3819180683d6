package content

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// ReadingSet is a passage with its multiple-choice questions.
type ReadingSet struct {
	ID        string            `yaml:"id"`
	Title     string            `yaml:"title"`
	Passage   string            `yaml:"passage"`
	Questions []ReadingQuestion `yaml:"questions"`
}

// ReadingQuestion is scored by comparing option indexes.
type ReadingQuestion struct {
	ID           string   `yaml:"id"`
	Text         string   `yaml:"text"`
	Options      []string `yaml:"options"`
	CorrectIndex int      `yaml:"correct_index"`
}

// ListeningSet is a recording plus the questions asked about it.
type ListeningSet struct {
	ID        string              `yaml:"id"`
	Name      string              `yaml:"name"`
	AudioRef  string              `yaml:"audio_ref"`
	Questions []ListeningQuestion `yaml:"questions"`
}

// ListeningQuestion is scored by comparing option keys.
type ListeningQuestion struct {
	Number     int       `yaml:"number"`
	Text       string    `yaml:"text"`
	Options    OptionSet `yaml:"options"`
	CorrectKey string    `yaml:"correct_key"`
}

// SpeakingTask is a prompt for one part of the speaking test.
type SpeakingTask struct {
	Part   int    `yaml:"part"`
	Prompt string `yaml:"prompt"`
	Topic  string `yaml:"topic"`
}

// WritingTask is a Task 1 (report) or Task 2 (essay) prompt.
type WritingTask struct {
	TaskType int    `yaml:"task_type"`
	Prompt   string `yaml:"prompt"`
	ImageRef string `yaml:"image_ref,omitempty"`
}

// Option is a keyed answer choice, e.g. "A" -> "at the library".
type Option struct {
	Key  string
	Text string
}

// OptionSet keeps options in dataset order. In YAML it may be written as a
// mapping ({A: ..., B: ...}) or a plain list, in which case keys A, B, C...
// are assigned.
type OptionSet []Option

// UnmarshalYAML preserves mapping order, which a Go map would lose.
func (o *OptionSet) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.MappingNode:
		out := make(OptionSet, 0, len(value.Content)/2)
		for i := 0; i+1 < len(value.Content); i += 2 {
			out = append(out, Option{Key: value.Content[i].Value, Text: value.Content[i+1].Value})
		}
		*o = out
		return nil
	case yaml.SequenceNode:
		out := make(OptionSet, 0, len(value.Content))
		for i, n := range value.Content {
			out = append(out, Option{Key: string(rune('A' + i)), Text: n.Value})
		}
		*o = out
		return nil
	}
	return fmt.Errorf("line %d: options must be a mapping or a list", value.Line)
}

// Lookup returns the text for an option key.
func (o OptionSet) Lookup(key string) (string, bool) {
	for _, opt := range o {
		if opt.Key == key {
			return opt.Text, true
		}
	}
	return "", false
}

// Question returns the question at cursor, if any.
func (s ReadingSet) Question(cursor int) (ReadingQuestion, bool) {
	if cursor < 0 || cursor >= len(s.Questions) {
		return ReadingQuestion{}, false
	}
	return s.Questions[cursor], true
}

// Question returns the question at cursor, if any.
func (s ListeningSet) Question(cursor int) (ListeningQuestion, bool) {
	if cursor < 0 || cursor >= len(s.Questions) {
		return ListeningQuestion{}, false
	}
	return s.Questions[cursor], true
}
