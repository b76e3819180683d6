package skill

import (
	"strings"
	"testing"
)

func band(v float64) *float64 { return &v }

func newTestAssessor(t *testing.T) *Assessor {
	t.Helper()
	a, err := NewAssessor(DefaultTable())
	if err != nil {
		t.Fatalf("new assessor: %v", err)
	}
	return a
}

func TestLevelFor_Boundaries(t *testing.T) {
	table := DefaultTable()
	tests := []struct {
		fraction float64
		want     Level
	}{
		{1.0, LevelAdvanced},
		{0.81, LevelAdvanced},
		{0.80, LevelUpperIntermediate},
		{0.61, LevelUpperIntermediate},
		{0.60, LevelIntermediate},
		{0.41, LevelIntermediate},
		{0.40, LevelElementary},
		{0.21, LevelElementary},
		{0.20, LevelBeginner},
		{0.0, LevelBeginner},
		{-0.5, LevelBeginner},
		{1.2, LevelAdvanced},
	}
	for _, tt := range tests {
		if got := table.LevelFor(tt.fraction); got != tt.want {
			t.Errorf("LevelFor(%.2f) = %s, want %s", tt.fraction, got, tt.want)
		}
	}
}

func TestAssess_MCQFraction(t *testing.T) {
	a := newTestAssessor(t)
	tr := a.Assess(1, LevelBeginner, Outcome{SessionID: "s1", TotalQuestions: 1, CorrectAnswers: 1})
	if tr == nil {
		t.Fatal("expected a transition")
	}
	if tr.To != LevelAdvanced || !tr.Up() {
		t.Fatalf("transition = %+v, want up to Advanced", tr)
	}
	if tr.Trigger != "s1" {
		t.Errorf("trigger = %q, want s1", tr.Trigger)
	}
}

func TestAssess_BandFraction(t *testing.T) {
	a := newTestAssessor(t)
	// 6.0 / 9 = 0.667
	tr := a.Assess(1, LevelBeginner, Outcome{TotalQuestions: 2, CorrectAnswers: 2, Band: band(6.0)})
	if tr == nil || tr.To != LevelUpperIntermediate {
		t.Fatalf("transition = %+v, want Upper-Intermediate", tr)
	}
}

func TestAssess_SameLevelIsNoop(t *testing.T) {
	a := newTestAssessor(t)
	o := Outcome{TotalQuestions: 4, CorrectAnswers: 2}
	first := a.Assess(1, LevelBeginner, o)
	if first == nil {
		t.Fatal("expected initial transition")
	}
	// Repeating the same fraction from the new level never re-triggers.
	for range 3 {
		if tr := a.Assess(1, first.To, o); tr != nil {
			t.Fatalf("unexpected transition %+v", tr)
		}
	}
}

func TestAssess_DownwardChange(t *testing.T) {
	a := newTestAssessor(t)
	tr := a.Assess(1, LevelAdvanced, Outcome{TotalQuestions: 5, CorrectAnswers: 1})
	if tr == nil || tr.To != LevelBeginner || tr.Up() {
		t.Fatalf("transition = %+v, want down to Beginner", tr)
	}
}

func TestAssess_SkipsEmptySessions(t *testing.T) {
	a := newTestAssessor(t)
	if tr := a.Assess(1, LevelAdvanced, Outcome{TotalQuestions: 0}); tr != nil {
		t.Fatalf("expected no transition, got %+v", tr)
	}
	if tr := a.Assess(1, LevelAdvanced, Outcome{TotalQuestions: 0, Band: band(1)}); tr != nil {
		t.Fatalf("expected no transition for band without questions, got %+v", tr)
	}
}

func TestTableValidate(t *testing.T) {
	if err := DefaultTable().Validate(); err != nil {
		t.Fatalf("default table invalid: %v", err)
	}
	bad := Table{
		{Level: LevelIntermediate, Min: 0.4},
		{Level: LevelAdvanced, Min: 0.8},
		{Level: "Expert", Min: 0.1},
	}
	err := bad.Validate()
	if err == nil {
		t.Fatal("expected error")
	}
	for _, want := range []string{"not below", "unknown level", "last threshold must be 0"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q missing %q", err, want)
		}
	}
	if _, err := NewAssessor(nil); err == nil {
		t.Fatal("expected error for empty table")
	}
}

func TestCustomTable(t *testing.T) {
	a, err := NewAssessor(Table{
		{Level: LevelAdvanced, Min: 0.5},
		{Level: LevelBeginner, Min: 0},
	})
	if err != nil {
		t.Fatalf("new assessor: %v", err)
	}
	tr := a.Assess(1, LevelBeginner, Outcome{TotalQuestions: 2, CorrectAnswers: 1})
	if tr == nil || tr.To != LevelAdvanced {
		t.Fatalf("transition = %+v, want Advanced", tr)
	}
}

func TestParseLevel(t *testing.T) {
	if l, err := ParseLevel(""); err != nil || l != LevelBeginner {
		t.Fatalf("ParseLevel(\"\") = %q, %v", l, err)
	}
	if _, err := ParseLevel("Upper-Intermediate"); err != nil {
		t.Fatalf("ParseLevel: %v", err)
	}
	if _, err := ParseLevel("Native"); err == nil {
		t.Fatal("expected error")
	}
}

func TestParseLevel_IgnoresCaseAndSeparators(t *testing.T) {
	cases := map[string]Level{
		"advanced":           LevelAdvanced,
		"BEGINNER":           LevelBeginner,
		"upper_intermediate": LevelUpperIntermediate,
		"Upper Intermediate": LevelUpperIntermediate,
		" elementary ":       LevelElementary,
	}
	for in, want := range cases {
		got, err := ParseLevel(in)
		if err != nil || got != want {
			t.Errorf("ParseLevel(%q) = %q, %v; want %q", in, got, err, want)
		}
	}
}

func TestLevel_UnmarshalText(t *testing.T) {
	var l Level
	if err := l.UnmarshalText([]byte("intermediate")); err != nil || l != LevelIntermediate {
		t.Fatalf("UnmarshalText = %q, %v", l, err)
	}
	if err := l.UnmarshalText([]byte("")); err == nil {
		t.Fatal("empty level accepted")
	}
	if err := l.UnmarshalText([]byte("native")); err == nil {
		t.Fatal("unknown level accepted")
	}
}
