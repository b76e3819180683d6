// Package transport defines the chat-platform boundary: inbound events
// and the outbound operations the practice engine needs.
package transport

import "context"

// EventKind classifies an inbound update.
type EventKind string

const (
	KindCommand  EventKind = "command"
	KindCallback EventKind = "callback"
	KindText     EventKind = "text"
	KindVoice    EventKind = "voice"
)

// User identifies the sender of an event.
type User struct {
	ID           int64
	FirstName    string
	Username     string
	LanguageCode string
}

// Voice is an attached voice note.
type Voice struct {
	FileID   string
	Duration int
	MimeType string
}

// Event is one inbound update from a learner.
type Event struct {
	Kind   EventKind
	User   User
	ChatID int64

	// Command is set for KindCommand, without the leading slash.
	Command string
	Args    string

	// CallbackID and Data are set for KindCallback.
	CallbackID string
	Data       string

	Text  string
	Voice *Voice
}

// Button is an inline keyboard button carrying callback data.
type Button struct {
	Text string
	Data string
}

// Keyboard is a grid of buttons, one slice per row.
type Keyboard [][]Button

// Column lays buttons out one per row.
func Column(buttons ...Button) Keyboard {
	kb := make(Keyboard, 0, len(buttons))
	for _, b := range buttons {
		kb = append(kb, []Button{b})
	}
	return kb
}

// Message is an outbound text message.
type Message struct {
	Text     string
	Keyboard Keyboard
}

// Media points at a file to send. Exactly one of URL or Path is set.
type Media struct {
	URL  string
	Path string
}

// Messenger is what the engine needs from a chat platform.
type Messenger interface {
	Send(ctx context.Context, chatID int64, msg Message) error
	SendPhoto(ctx context.Context, chatID int64, photo Media, caption string) error
	SendAudio(ctx context.Context, chatID int64, audio Media, caption string) error

	// AnswerCallback acknowledges a button press so the client stops
	// showing a spinner.
	AnswerCallback(ctx context.Context, callbackID string) error

	// Download saves the file with the given platform id to dst.
	Download(ctx context.Context, fileID, dst string) error
}
