package credentials

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// FileBackend keeps every context in one JSON file, rewritten atomically.
type FileBackend struct {
	path   string
	sealer Sealer
	mu     sync.Mutex
}

func NewFileBackend(path string, sealer Sealer) (*FileBackend, error) {
	if path == "" {
		return nil, fmt.Errorf("[NewFileBackend] path is required")
	}
	if sealer == nil {
		sealer = PlainSealer{}
	}
	return &FileBackend{path: path, sealer: sealer}, nil
}

// Path is the backing file.
func (b *FileBackend) Path() string {
	return b.path
}

func (b *FileBackend) Load(_ context.Context, contextID string) (map[Key]string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	blobs, err := b.readAll()
	if err != nil {
		return nil, err
	}
	encoded, ok := blobs[contextID]
	if !ok {
		return make(map[Key]string), nil
	}
	blob, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("[FileBackend Load] decode %s: %w", contextID, err)
	}
	values, err := openValues(b.sealer, blob)
	if err != nil {
		return nil, fmt.Errorf("[FileBackend Load] open %s: %w", contextID, err)
	}
	return values, nil
}

func (b *FileBackend) Save(_ context.Context, contextID string, values map[Key]string) error {
	blob, err := sealValues(b.sealer, values)
	if err != nil {
		return fmt.Errorf("[FileBackend Save] encode %s: %w", contextID, err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	blobs, err := b.readAll()
	if err != nil {
		return err
	}
	blobs[contextID] = base64.StdEncoding.EncodeToString(blob)
	return b.writeAll(blobs)
}

func (b *FileBackend) Delete(_ context.Context, contextID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	blobs, err := b.readAll()
	if err != nil {
		return err
	}
	if _, ok := blobs[contextID]; !ok {
		return nil
	}
	delete(blobs, contextID)
	return b.writeAll(blobs)
}

func (b *FileBackend) readAll() (map[string]string, error) {
	blobs := make(map[string]string)
	data, err := os.ReadFile(b.path)
	if errors.Is(err, os.ErrNotExist) {
		return blobs, nil
	}
	if err != nil {
		return nil, fmt.Errorf("[FileBackend] read %s: %w", b.path, err)
	}
	if len(data) == 0 {
		return blobs, nil
	}
	if err := json.Unmarshal(data, &blobs); err != nil {
		return nil, fmt.Errorf("[FileBackend] parse %s: %w", b.path, err)
	}
	return blobs, nil
}

// writeAll replaces the file via a temp file and rename so readers never see
// a partial write.
func (b *FileBackend) writeAll(blobs map[string]string) error {
	data, err := json.MarshalIndent(blobs, "", "  ")
	if err != nil {
		return fmt.Errorf("[FileBackend] marshal: %w", err)
	}
	dir := filepath.Dir(b.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("[FileBackend] create dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".credentials-*.tmp")
	if err != nil {
		return fmt.Errorf("[FileBackend] create temp: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("[FileBackend] write temp: %w", err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("[FileBackend] chmod temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("[FileBackend] close temp: %w", err)
	}
	if err := os.Rename(tmpName, b.path); err != nil {
		return fmt.Errorf("[FileBackend] rename: %w", err)
	}
	return nil
}
