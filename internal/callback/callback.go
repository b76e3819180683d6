// Package callback encodes and decodes inline-button payloads.
//
// Every button the bot sends carries a Data value serialized by Encode, and
// every callback the transport delivers goes through Decode, so handlers
// never split strings themselves. The wire strings are compact because
// Telegram limits callback_data to 64 bytes.
package callback

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/bandcoach/bandcoach/internal/content"
)

// Action is the verb carried by a callback.
type Action string

const (
	// ActionStart enters a section's flow, e.g. from a recommendation.
	ActionStart Action = "start"
	// ActionSelect picks an exercise, speaking part or writing task.
	ActionSelect Action = "select"
	// ActionAnswer submits a multiple-choice answer.
	ActionAnswer Action = "answer"
	// ActionCancel abandons the running flow.
	ActionCancel Action = "cancel"
)

// MaxLen is the largest payload Telegram accepts.
const MaxLen = 64

// ErrMalformed is returned for payloads that do not parse.
var ErrMalformed = errors.New("malformed callback payload")

// Data is the decoded form of a callback payload.
//
// Target and Option depend on Section and Action:
//   - listening select: Target is the set id
//   - listening answer: Target is the question number, Option the option key
//   - reading answer:   Target is the question id, Option the option index
//   - speaking select:  Target is the part ("1" or "2")
//   - writing select:   Target is the task type ("1" or "2")
type Data struct {
	Section content.Section
	Action  Action
	Target  string
	Option  string
}

// Start builds the payload for the "practice <section>" shortcut.
func Start(s content.Section) Data { return Data{Section: s, Action: ActionStart} }

// Cancel builds the payload for a section's cancel button.
func Cancel(s content.Section) Data { return Data{Section: s, Action: ActionCancel} }

// Select builds the payload for choosing an exercise within a section.
func Select(s content.Section, target string) Data {
	return Data{Section: s, Action: ActionSelect, Target: target}
}

// Answer builds the payload for an MCQ option button.
func Answer(s content.Section, question, option string) Data {
	return Data{Section: s, Action: ActionAnswer, Target: question, Option: option}
}

const (
	practicePrefix      = "practice_"
	listenSelectPrefix  = "lp_select_"
	listenAnswerPrefix  = "lp_answer_"
	listenCancel        = "lp_cancel"
	readingAnswerPrefix = "reading_answer:"
	readingCancel       = "reading_cancel"
	legacyReadingCancel = "cancel_reading"
	speakPartPrefix     = "sp_part_"
	speakCancel         = "sp_cancel"
	writeTaskPrefix     = "wp_task_"
	writeCancel         = "wp_cancel"
)

// Encode serializes d into its wire string.
func Encode(d Data) (string, error) {
	var s string
	switch d.Action {
	case ActionStart:
		s = practicePrefix + string(d.Section)
	case ActionCancel:
		switch d.Section {
		case content.Listening:
			s = listenCancel
		case content.Reading:
			s = readingCancel
		case content.Speaking:
			s = speakCancel
		case content.Writing:
			s = writeCancel
		}
	case ActionSelect:
		switch d.Section {
		case content.Listening:
			s = listenSelectPrefix + d.Target
		case content.Speaking:
			if !validPart(d.Target) {
				return "", fmt.Errorf("speaking part %q: %w", d.Target, ErrMalformed)
			}
			s = speakPartPrefix + d.Target
		case content.Writing:
			if !validPart(d.Target) {
				return "", fmt.Errorf("writing task %q: %w", d.Target, ErrMalformed)
			}
			s = writeTaskPrefix + d.Target
		}
	case ActionAnswer:
		switch d.Section {
		case content.Listening:
			if strings.Contains(d.Option, "_") {
				return "", fmt.Errorf("option key %q: %w", d.Option, ErrMalformed)
			}
			s = listenAnswerPrefix + d.Target + "_" + d.Option
		case content.Reading:
			if strings.Contains(d.Target, ":") {
				return "", fmt.Errorf("question id %q: %w", d.Target, ErrMalformed)
			}
			s = readingAnswerPrefix + d.Target + ":" + d.Option
		}
	}
	if s == "" {
		return "", fmt.Errorf("no encoding for %s/%s: %w", d.Section, d.Action, ErrMalformed)
	}
	if len(s) > MaxLen {
		return "", fmt.Errorf("payload %q exceeds %d bytes: %w", s, MaxLen, ErrMalformed)
	}
	return s, nil
}

// MustEncode is Encode for payloads built from constants, such as the
// section and cancel buttons. Payloads derived from content go through
// Encode.
func MustEncode(d Data) string {
	s, err := Encode(d)
	if err != nil {
		panic(err)
	}
	return s
}

// Decode parses a wire string.
func Decode(s string) (Data, error) {
	switch s {
	case listenCancel:
		return Cancel(content.Listening), nil
	case readingCancel, legacyReadingCancel:
		return Cancel(content.Reading), nil
	case speakCancel:
		return Cancel(content.Speaking), nil
	case writeCancel:
		return Cancel(content.Writing), nil
	}

	switch {
	case strings.HasPrefix(s, practicePrefix):
		sec, err := content.ParseSection(strings.TrimPrefix(s, practicePrefix))
		if err != nil {
			return Data{}, fmt.Errorf("%q: %w", s, ErrMalformed)
		}
		return Start(sec), nil

	case strings.HasPrefix(s, listenSelectPrefix):
		id := strings.TrimPrefix(s, listenSelectPrefix)
		if id == "" {
			return Data{}, fmt.Errorf("%q: %w", s, ErrMalformed)
		}
		return Select(content.Listening, id), nil

	case strings.HasPrefix(s, listenAnswerPrefix):
		rest := strings.TrimPrefix(s, listenAnswerPrefix)
		// Older buttons carried only the option key.
		q, key, found := strings.Cut(rest, "_")
		if !found {
			q, key = "", rest
		}
		if key == "" {
			return Data{}, fmt.Errorf("%q: %w", s, ErrMalformed)
		}
		if q != "" {
			if _, err := strconv.Atoi(q); err != nil {
				return Data{}, fmt.Errorf("%q: %w", s, ErrMalformed)
			}
		}
		return Answer(content.Listening, q, key), nil

	case strings.HasPrefix(s, readingAnswerPrefix):
		parts := strings.Split(strings.TrimPrefix(s, readingAnswerPrefix), ":")
		if len(parts) != 2 || parts[0] == "" {
			return Data{}, fmt.Errorf("%q: %w", s, ErrMalformed)
		}
		if _, err := strconv.Atoi(parts[1]); err != nil {
			return Data{}, fmt.Errorf("%q: %w", s, ErrMalformed)
		}
		return Answer(content.Reading, parts[0], parts[1]), nil

	case strings.HasPrefix(s, speakPartPrefix):
		part := strings.TrimPrefix(s, speakPartPrefix)
		if !validPart(part) {
			return Data{}, fmt.Errorf("%q: %w", s, ErrMalformed)
		}
		return Select(content.Speaking, part), nil

	case strings.HasPrefix(s, writeTaskPrefix):
		task := strings.TrimPrefix(s, writeTaskPrefix)
		if !validPart(task) {
			return Data{}, fmt.Errorf("%q: %w", s, ErrMalformed)
		}
		return Select(content.Writing, task), nil
	}

	return Data{}, fmt.Errorf("%q: %w", s, ErrMalformed)
}

// Int returns a numeric field (part, task type, option index).
func Int(field string) (int, error) {
	n, err := strconv.Atoi(field)
	if err != nil {
		return 0, fmt.Errorf("%q: %w", field, ErrMalformed)
	}
	return n, nil
}

func validPart(s string) bool {
	return s == "1" || s == "2"
}
