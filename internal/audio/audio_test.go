package audio

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/bandcoach/bandcoach/internal/llm"
)

func listDir(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func TestPipeline_CleansUpOnSuccess(t *testing.T) {
	ws, err := NewWorkspace(t.TempDir())
	if err != nil {
		t.Fatalf("NewWorkspace: %v", err)
	}
	stt := llm.NewMockTranscriber(llm.MockTranscript{Text: "my hometown is small"})
	p := NewPipeline(ws, CopyConverter{}, stt, nil)

	text, err := p.Transcribe(context.Background(), func(_ context.Context, dst string) error {
		return os.WriteFile(dst, []byte("OggS"), 0o600)
	})
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if text != "my hometown is small" {
		t.Errorf("text = %q", text)
	}
	if len(stt.Paths) != 1 || !strings.HasSuffix(stt.Paths[0], ".mp3") {
		t.Errorf("transcriber got paths %v, want one converted .mp3", stt.Paths)
	}
	if left := listDir(t, ws.Dir()); len(left) != 0 {
		t.Errorf("temp files left behind: %v", left)
	}
}

func TestPipeline_CleansUpOnFailure(t *testing.T) {
	ws, _ := NewWorkspace(t.TempDir())
	stt := llm.NewMockTranscriber(llm.MockTranscript{Err: &llm.ErrProviderUnavailable{}})
	p := NewPipeline(ws, CopyConverter{}, stt, nil)

	_, err := p.Transcribe(context.Background(), func(_ context.Context, dst string) error {
		return os.WriteFile(dst, []byte("OggS"), 0o600)
	})
	var unavail *llm.ErrProviderUnavailable
	if !errors.As(err, &unavail) {
		t.Fatalf("err = %v, want provider unavailable", err)
	}
	if left := listDir(t, ws.Dir()); len(left) != 0 {
		t.Errorf("temp files left behind: %v", left)
	}
}

func TestPipeline_DownloadFailure(t *testing.T) {
	ws, _ := NewWorkspace(t.TempDir())
	stt := llm.NewMockTranscriber()
	p := NewPipeline(ws, CopyConverter{}, stt, nil)

	_, err := p.Transcribe(context.Background(), func(_ context.Context, dst string) error {
		// Partial download.
		_ = os.WriteFile(dst, []byte("Og"), 0o600)
		return errors.New("connection reset")
	})
	if err == nil || !strings.Contains(err.Error(), "download voice") {
		t.Fatalf("err = %v, want download error", err)
	}
	if len(stt.Paths) != 0 {
		t.Errorf("transcriber should not run after a failed download")
	}
	if left := listDir(t, ws.Dir()); len(left) != 0 {
		t.Errorf("temp files left behind: %v", left)
	}
}

func TestWorkspace_PathsAreUnique(t *testing.T) {
	ws, _ := NewWorkspace(t.TempDir())
	a, b := ws.Path(".ogg"), ws.Path(".ogg")
	if a == b {
		t.Fatal("paths should be unique")
	}
	if filepath.Dir(a) != ws.Dir() {
		t.Errorf("path %q outside workspace", a)
	}
	if err := ws.Remove(a, "", b); err != nil {
		t.Errorf("removing missing files should not fail: %v", err)
	}
}

func TestLocalStorage_Resolve(t *testing.T) {
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "listening"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, "listening", "set1.mp3"), []byte("ID3"), 0o600); err != nil {
		t.Fatal(err)
	}
	s := &LocalStorage{Root: root}

	m, err := s.Resolve(context.Background(), "listening/set1.mp3")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if m.Path != filepath.Join(root, "listening", "set1.mp3") || m.URL != "" {
		t.Errorf("media = %+v", m)
	}

	m, err = s.Resolve(context.Background(), "https://cdn.example.com/a.mp3")
	if err != nil || m.URL != "https://cdn.example.com/a.mp3" {
		t.Errorf("remote ref: media = %+v, err = %v", m, err)
	}

	if _, err := s.Resolve(context.Background(), "missing.mp3"); err == nil {
		t.Error("expected error for missing file")
	}
	if _, err := s.Resolve(context.Background(), "../../etc/passwd"); err == nil {
		t.Error("expected error for path outside root")
	}
}

func TestLocalStorage_Load(t *testing.T) {
	root := t.TempDir()
	png := []byte("\x89PNG\r\n\x1a\nchart")
	if err := os.WriteFile(filepath.Join(root, "chart.png"), png, 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, "chart"), png, 0o600); err != nil {
		t.Fatal(err)
	}
	s := &LocalStorage{Root: root}

	b, err := s.Load(context.Background(), "chart.png")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if b.ContentType != "image/png" || string(b.Data) != string(png) {
		t.Errorf("blob = %q %q", b.ContentType, b.Data)
	}

	// No extension: sniffed from the bytes.
	b, err = s.Load(context.Background(), "chart")
	if err != nil || b.ContentType != "image/png" {
		t.Errorf("sniffed blob = %q, err = %v", b.ContentType, err)
	}

	if _, err := s.Load(context.Background(), "https://cdn.example.com/chart.png"); err == nil {
		t.Error("expected error for remote ref")
	}
	if _, err := s.Load(context.Background(), "missing.png"); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestLocalStorage_LoadTooLarge(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "big.png"), make([]byte, maxBlobSize+1), 0o600); err != nil {
		t.Fatal(err)
	}
	s := &LocalStorage{Root: root}
	if _, err := s.Load(context.Background(), "big.png"); err == nil {
		t.Fatal("expected size error")
	}
}

func TestMinioStorage_Presigns(t *testing.T) {
	s, err := NewMinioStorage(StorageConfig{
		Endpoint:  "localhost:9000",
		AccessKey: "minio",
		SecretKey: "minio123",
		Bucket:    "listening",
		URLExpiry: 10 * time.Minute,
		Region:    "us-east-1",
	})
	if err != nil {
		t.Fatalf("NewMinioStorage: %v", err)
	}
	m, err := s.Resolve(context.Background(), "set1.mp3")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if !strings.Contains(m.URL, "/listening/set1.mp3") || !strings.Contains(m.URL, "X-Amz-Signature") {
		t.Errorf("url = %q, want presigned object url", m.URL)
	}
}

func TestNewStorage_UnknownBackend(t *testing.T) {
	if _, err := NewStorage(StorageConfig{Backend: "ftp"}); err == nil {
		t.Fatal("expected error")
	}
}
