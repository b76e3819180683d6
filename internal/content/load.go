package content

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed data/*.yaml
var builtin embed.FS

// Dataset file stems. Each may be stored as .yaml, .yml or .json; JSON is
// valid YAML so one decoder handles all three.
const (
	readingFile   = "reading"
	listeningFile = "listening"
	speakingFile  = "speaking"
	writingFile   = "writing"
)

// Default returns the catalog built from the embedded dataset.
func Default() (*Catalog, error) {
	sub, err := fs.Sub(builtin, "data")
	if err != nil {
		return nil, err
	}
	return LoadFS(sub)
}

// LoadDir reads a dataset directory from disk.
func LoadDir(dir string) (*Catalog, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("content dir: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("content dir %s is not a directory", dir)
	}
	return LoadFS(os.DirFS(dir))
}

// LoadFS reads every dataset file present in fsys. Missing files yield an
// empty section; the flows report that as unavailable content.
func LoadFS(fsys fs.FS) (*Catalog, error) {
	var (
		reading   []ReadingSet
		listening []ListeningSet
		speaking  []SpeakingTask
		writing   []WritingTask
	)
	if err := decodeFile(fsys, readingFile, &reading); err != nil {
		return nil, err
	}
	if err := decodeFile(fsys, listeningFile, &listening); err != nil {
		return nil, err
	}
	if err := decodeFile(fsys, speakingFile, &speaking); err != nil {
		return nil, err
	}
	if err := decodeFile(fsys, writingFile, &writing); err != nil {
		return nil, err
	}
	return NewCatalog(reading, listening, speaking, writing)
}

func decodeFile(fsys fs.FS, stem string, v any) error {
	for _, ext := range []string{".yaml", ".yml", ".json"} {
		data, err := fs.ReadFile(fsys, stem+ext)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return fmt.Errorf("read %s%s: %w", stem, ext, err)
		}
		if err := yaml.Unmarshal(data, v); err != nil {
			return fmt.Errorf("parse %s%s: %w", stem, ext, err)
		}
		return nil
	}
	return nil
}
