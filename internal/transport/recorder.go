package transport

import (
	"context"
	"os"
	"sync"
)

// Sent is one outbound call captured by Recorder.
type Sent struct {
	ChatID   int64
	Kind     string // "text", "photo", "audio"
	Text     string
	Keyboard Keyboard
	Media    Media
}

// Recorder is an in-memory Messenger for tests and dry runs.
type Recorder struct {
	mu        sync.Mutex
	sent      []Sent
	answered  []string
	downloads map[string][]byte

	// SendErr, when set, is returned by every Send call.
	SendErr error
}

// NewRecorder creates a Recorder. downloads maps file ids to the bytes
// Download writes.
func NewRecorder(downloads map[string][]byte) *Recorder {
	if downloads == nil {
		downloads = map[string][]byte{}
	}
	return &Recorder{downloads: downloads}
}

func (r *Recorder) Send(_ context.Context, chatID int64, msg Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.SendErr != nil {
		return r.SendErr
	}
	r.sent = append(r.sent, Sent{ChatID: chatID, Kind: "text", Text: msg.Text, Keyboard: msg.Keyboard})
	return nil
}

func (r *Recorder) SendPhoto(_ context.Context, chatID int64, photo Media, caption string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, Sent{ChatID: chatID, Kind: "photo", Text: caption, Media: photo})
	return nil
}

func (r *Recorder) SendAudio(_ context.Context, chatID int64, audio Media, caption string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, Sent{ChatID: chatID, Kind: "audio", Text: caption, Media: audio})
	return nil
}

func (r *Recorder) AnswerCallback(_ context.Context, callbackID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.answered = append(r.answered, callbackID)
	return nil
}

func (r *Recorder) Download(_ context.Context, fileID, dst string) error {
	r.mu.Lock()
	data, ok := r.downloads[fileID]
	r.mu.Unlock()
	if !ok {
		return os.ErrNotExist
	}
	return os.WriteFile(dst, data, 0o600)
}

// Sent returns a copy of everything sent so far.
func (r *Recorder) Sent() []Sent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Sent(nil), r.sent...)
}

// Texts returns the text of every message sent to chatID.
func (r *Recorder) Texts(chatID int64) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, s := range r.sent {
		if s.ChatID == chatID && s.Kind == "text" {
			out = append(out, s.Text)
		}
	}
	return out
}

// Last returns the most recent outbound call, or the zero value.
func (r *Recorder) Last() Sent {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.sent) == 0 {
		return Sent{}
	}
	return r.sent[len(r.sent)-1]
}

// Reset forgets everything recorded.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = nil
	r.answered = nil
}

// Answered returns the acknowledged callback ids.
func (r *Recorder) Answered() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.answered...)
}
