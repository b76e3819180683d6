package skill

import (
	"fmt"
	"strings"
)

// Level is a learner's position on the five-step proficiency ladder.
type Level string

const (
	LevelBeginner          Level = "Beginner"
	LevelElementary        Level = "Elementary"
	LevelIntermediate      Level = "Intermediate"
	LevelUpperIntermediate Level = "Upper-Intermediate"
	LevelAdvanced          Level = "Advanced"
)

// AllLevels returns the levels from lowest to highest.
func AllLevels() []Level {
	return []Level{
		LevelBeginner,
		LevelElementary,
		LevelIntermediate,
		LevelUpperIntermediate,
		LevelAdvanced,
	}
}

// Rank orders levels; Beginner is 0. Unknown levels rank -1.
func (l Level) Rank() int {
	for i, lv := range AllLevels() {
		if lv == l {
			return i
		}
	}
	return -1
}

// ParseLevel validates a level name. Matching ignores case and accepts
// "_" or a space in place of "-", so "upper_intermediate" is
// Upper-Intermediate. The empty string maps to Beginner, which is the level
// every new learner starts at.
func ParseLevel(s string) (Level, error) {
	if s == "" {
		return LevelBeginner, nil
	}
	name := strings.NewReplacer("_", "-", " ", "-").Replace(strings.TrimSpace(s))
	for _, lv := range AllLevels() {
		if strings.EqualFold(name, string(lv)) {
			return lv, nil
		}
	}
	return "", fmt.Errorf("unknown skill level %q", s)
}

// UnmarshalText decodes a level from config. Unlike ParseLevel an empty
// name is rejected.
func (l *Level) UnmarshalText(text []byte) error {
	if len(strings.TrimSpace(string(text))) == 0 {
		return fmt.Errorf("empty skill level")
	}
	lv, err := ParseLevel(string(text))
	if err != nil {
		return err
	}
	*l = lv
	return nil
}

// Transition records a level change for notification and logging.
type Transition struct {
	UserID   int64
	From     Level
	To       Level
	Fraction float64
	Trigger  string // session id that caused the change
}

// Up reports whether the transition moves the learner up the ladder.
func (t Transition) Up() bool {
	return t.To.Rank() > t.From.Rank()
}
