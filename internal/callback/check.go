package callback

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/bandcoach/bandcoach/internal/content"
)

// Check encodes every content-derived payload p would produce and decodes
// it again. A dataset that passes Check never yields a button the bot
// cannot send or read back. Problems are joined, one per payload.
func Check(p content.Provider) error {
	var errs []error
	check := func(item string, d Data) {
		s, err := Encode(d)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", item, err))
			return
		}
		back, err := Decode(s)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", item, err))
			return
		}
		if back != d {
			errs = append(errs, fmt.Errorf("%s: payload %q decodes as %+v: %w", item, s, back, ErrMalformed))
		}
	}

	for _, set := range p.ReadingSets() {
		for _, q := range set.Questions {
			for i := range q.Options {
				check(fmt.Sprintf("reading set %q question %q option %d", set.ID, q.ID, i),
					Answer(content.Reading, q.ID, strconv.Itoa(i)))
			}
		}
	}
	for _, set := range p.ListeningSets() {
		check(fmt.Sprintf("listening set %q", set.ID), Select(content.Listening, set.ID))
		for _, q := range set.Questions {
			for _, opt := range q.Options {
				check(fmt.Sprintf("listening set %q question %d option %q", set.ID, q.Number, opt.Key),
					Answer(content.Listening, strconv.Itoa(q.Number), opt.Key))
			}
		}
	}
	return errors.Join(errs...)
}
