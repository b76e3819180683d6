package skill

import (
	"errors"
	"fmt"
)

// Threshold is the minimum fraction (0..1) a session must reach for Level.
type Threshold struct {
	Level Level   `mapstructure:"level" yaml:"level"`
	Min   float64 `mapstructure:"min" yaml:"min"`
}

// Table is an ordered threshold list, highest threshold first.
type Table []Threshold

// DefaultTable returns the standard thresholds.
func DefaultTable() Table {
	return Table{
		{Level: LevelAdvanced, Min: 0.81},
		{Level: LevelUpperIntermediate, Min: 0.61},
		{Level: LevelIntermediate, Min: 0.41},
		{Level: LevelElementary, Min: 0.21},
		{Level: LevelBeginner, Min: 0.0},
	}
}

// Validate checks that the table is usable by an Assessor: non-empty,
// strictly descending, known levels only, and ending at zero so that every
// non-negative fraction maps to some level.
func (t Table) Validate() error {
	if len(t) == 0 {
		return errors.New("skill threshold table is empty")
	}
	var errs []error
	seen := make(map[Level]bool, len(t))
	for i, th := range t {
		if th.Level.Rank() < 0 {
			errs = append(errs, fmt.Errorf("threshold %d: unknown level %q", i, th.Level))
		}
		if seen[th.Level] {
			errs = append(errs, fmt.Errorf("threshold %d: duplicate level %q", i, th.Level))
		}
		seen[th.Level] = true
		if th.Min < 0 || th.Min > 1 {
			errs = append(errs, fmt.Errorf("threshold %d: min %.2f outside [0, 1]", i, th.Min))
		}
		if i > 0 && th.Min >= t[i-1].Min {
			errs = append(errs, fmt.Errorf("threshold %d: min %.2f not below %.2f", i, th.Min, t[i-1].Min))
		}
	}
	if last := t[len(t)-1]; last.Min != 0 {
		errs = append(errs, fmt.Errorf("last threshold must be 0, got %.2f", last.Min))
	}
	return errors.Join(errs...)
}

// LevelFor scans the table in order and returns the first level whose
// threshold is <= fraction. Fractions below every threshold (only possible
// for negative input) get the lowest level in the table.
func (t Table) LevelFor(fraction float64) Level {
	for _, th := range t {
		if th.Min <= fraction {
			return th.Level
		}
	}
	return t[len(t)-1].Level
}
