package vectorindex

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"
)

const (
	indexFileName     = "index.json"
	lockFileName      = "index.json.lock"
	lockRetryInterval = 20 * time.Millisecond
)

type fileConfig struct {
	Dir string `json:"dir"`
}

// fileStore keeps the index as one JSON snapshot, replaced atomically on save.
// Updates hold an OS lock on a sibling lock file so a server and a CLI ingest
// writing the same directory do not lose each other's appends.
type fileStore struct {
	dir string
	mu  sync.Mutex
}

func init() {
	Register("file", createFileStore)
}

func createFileStore(args interface{}) (Store, error) {
	cfg := &fileConfig{}
	if err := decodeConfig(args, cfg); err != nil {
		return nil, err
	}
	if cfg.Dir == "" {
		return nil, fmt.Errorf("file index dir is required")
	}
	return &fileStore{dir: cfg.Dir}, nil
}

func (s *fileStore) path() string {
	return filepath.Join(s.dir, indexFileName)
}

func (s *fileStore) Load(ctx context.Context) (*Index, bool, error) {
	raw, err := os.ReadFile(s.path())
	if errors.Is(err, fs.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("read index: %w", err)
	}
	idx := &Index{}
	if err := json.Unmarshal(raw, idx); err != nil {
		return nil, false, fmt.Errorf("decode index: %w", err)
	}
	return idx, true, nil
}

func (s *fileStore) Save(ctx context.Context, idx *Index) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create index dir: %w", err)
	}
	raw, err := json.Marshal(idx)
	if err != nil {
		return fmt.Errorf("encode index: %w", err)
	}
	tmp, err := os.CreateTemp(s.dir, indexFileName+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp index: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)
	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		return fmt.Errorf("write index: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync index: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close index: %w", err)
	}
	if err := os.Rename(tmpName, s.path()); err != nil {
		return fmt.Errorf("replace index: %w", err)
	}
	return nil
}

func (s *fileStore) Update(ctx context.Context, fn UpdateFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create index dir: %w", err)
	}
	lock := flock.New(filepath.Join(s.dir, lockFileName))
	locked, err := lock.TryLockContext(ctx, lockRetryInterval)
	if err != nil {
		return fmt.Errorf("lock index: %w", err)
	}
	if !locked {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("lock index: %w", err)
		}
		return fmt.Errorf("lock index: not acquired")
	}
	defer lock.Unlock()

	idx, existed, err := loadOrNew(ctx, s)
	if err != nil {
		return err
	}
	if err := fn(idx, existed); err != nil {
		return err
	}
	return s.Save(ctx, idx)
}

func (s *fileStore) Close() error {
	return nil
}
