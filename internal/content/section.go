package content

import "fmt"

// Section is one of the four IELTS practice tracks.
type Section string

const (
	Reading   Section = "reading"
	Listening Section = "listening"
	Speaking  Section = "speaking"
	Writing   Section = "writing"
)

// AllSections returns the sections in menu order.
func AllSections() []Section {
	return []Section{Reading, Listening, Speaking, Writing}
}

// ParseSection validates a section name.
func ParseSection(s string) (Section, error) {
	switch Section(s) {
	case Reading, Listening, Speaking, Writing:
		return Section(s), nil
	}
	return "", fmt.Errorf("unknown section %q", s)
}

// AIScored reports whether responses in this section are graded by the
// feedback service rather than by exact-match.
func (s Section) AIScored() bool {
	return s == Speaking || s == Writing
}

// DisplayName returns a human-readable name for a section.
func (s Section) DisplayName() string {
	switch s {
	case Reading:
		return "Reading"
	case Listening:
		return "Listening"
	case Speaking:
		return "Speaking"
	case Writing:
		return "Writing"
	default:
		return string(s)
	}
}
