// Package recommend suggests the next section to practice.
package recommend

import (
	"math/rand/v2"
	"sync"
	"time"

	"github.com/samber/lo"

	"github.com/bandcoach/bandcoach/internal/content"
)

// Recommender picks uniformly among the sections other than the one just
// completed. It holds no state apart from its random source.
type Recommender struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// New creates a Recommender. A nil source seeds from the clock.
func New(src rand.Source) *Recommender {
	if src == nil {
		now := uint64(time.Now().UnixNano())
		src = rand.NewPCG(now, now>>1|1)
	}
	return &Recommender{rng: rand.New(src)}
}

// Next returns a section different from completed.
func (r *Recommender) Next(completed content.Section) content.Section {
	candidates := lo.Without(content.AllSections(), completed)

	r.mu.Lock()
	i := r.rng.IntN(len(candidates))
	r.mu.Unlock()

	return candidates[i]
}
