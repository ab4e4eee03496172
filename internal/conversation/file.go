package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// FilePersister stores the conversation document as one JSON file, replaced
// atomically on every save.
type FilePersister struct {
	path string
}

// NewFilePersister creates a persister writing to path.
func NewFilePersister(path string) (*FilePersister, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("conversation file path is required")
	}
	return &FilePersister{path: filepath.Clean(path)}, nil
}

// Load reads the document; a missing file yields an empty set.
func (p *FilePersister) Load(_ context.Context) (map[string]*Conversation, error) {
	data, err := os.ReadFile(p.path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]*Conversation{}, nil
		}
		return nil, fmt.Errorf("read %s: %w", p.path, err)
	}
	out := map[string]*Conversation{}
	if len(strings.TrimSpace(string(data))) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("decode %s: %w", p.path, err)
	}
	return out, nil
}

// Save rewrites the whole document.
func (p *FilePersister) Save(_ context.Context, snapshot map[string]*Conversation) error {
	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return fmt.Errorf("encode conversations: %w", err)
	}
	return writeAtomic(p.path, data)
}

func writeAtomic(path string, content []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create dir %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp.*")
	if err != nil {
		return fmt.Errorf("create temp for %s: %w", path, err)
	}
	tmpPath := tmp.Name()
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
	}()

	if _, err := tmp.Write(content); err != nil {
		return fmt.Errorf("write temp for %s: %w", path, err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("sync temp for %s: %w", path, err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		return fmt.Errorf("chmod temp for %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp for %s: %w", path, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("rename temp for %s: %w", path, err)
	}
	if d, err := os.Open(dir); err == nil {
		_ = d.Sync()
		_ = d.Close()
	}
	return nil
}
