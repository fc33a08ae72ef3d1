package jobstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// FileBackend persists each key as <root>/<key>.json.
//
// Writes go through a temp file plus rename so a crashed process never leaves
// a half-written value behind. Root is expected to be under the app data dir.
type FileBackend struct {
	root string
}

func NewFileBackend(root string) *FileBackend {
	return &FileBackend{root: strings.TrimSpace(root)}
}

func (b *FileBackend) RootDir() string {
	return b.root
}

func (b *FileBackend) path(key string) string {
	return filepath.Join(b.root, key+".json")
}

func (b *FileBackend) ensureRoot() error {
	if strings.TrimSpace(b.root) == "" {
		return fmt.Errorf("storage root dir is empty")
	}
	return os.MkdirAll(b.root, 0755)
}

func (b *FileBackend) Get(_ context.Context, key string) ([]byte, error) {
	data, err := os.ReadFile(b.path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrKeyNotFound
		}
		return nil, fmt.Errorf("read %s: %w", key, err)
	}
	return data, nil
}

func (b *FileBackend) Set(_ context.Context, key string, value []byte) error {
	if err := b.ensureRoot(); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(b.root, key+".json.tmp.*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(value); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp file for %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file for %s: %w", key, err)
	}

	if err := os.Rename(tmpName, b.path(key)); err != nil {
		return fmt.Errorf("rename %s: %w", key, err)
	}
	return nil
}

func (b *FileBackend) SetWithTTL(ctx context.Context, key string, value []byte, _ time.Duration) error {
	// Retention is enforced by the Store on load; the TTL hint is meaningless
	// for local files.
	return b.Set(ctx, key, value)
}

func (b *FileBackend) Delete(_ context.Context, key string) error {
	if err := os.Remove(b.path(key)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}
