package vectorindex

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/sbk2k1/sbk-assistant/internal/config"
)

// Store persists a whole Index. Load reports false when nothing has been saved yet.
//
// Update is the write path for appends: it loads the index (an empty one when
// none exists yet), lets fn modify it and saves the result. Updates on the same
// store are serialized, including across processes sharing it.
type Store interface {
	Load(ctx context.Context) (*Index, bool, error)
	Save(ctx context.Context, idx *Index) error
	Update(ctx context.Context, fn UpdateFunc) error
	Close() error
}

// UpdateFunc modifies idx in place. existed is false when the store was empty.
// Returning an error discards the change.
type UpdateFunc func(idx *Index, existed bool) error

func loadOrNew(ctx context.Context, s Store) (*Index, bool, error) {
	idx, ok, err := s.Load(ctx)
	if err != nil {
		return nil, false, err
	}
	if !ok {
		idx = New(0)
	}
	return idx, ok, nil
}

type Factory func(args interface{}) (Store, error)

var (
	registryMu sync.RWMutex
	registry   = map[string]Factory{}
)

func Register(name string, factory Factory) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" || factory == nil {
		return
	}
	registryMu.Lock()
	registry[key] = factory
	registryMu.Unlock()
}

func NewStore(cfg config.IndexConfig) (Store, error) {
	key := strings.ToLower(strings.TrimSpace(cfg.Type))
	if key == "" {
		return nil, fmt.Errorf("index.type is required")
	}
	registryMu.RLock()
	factory := registry[key]
	registryMu.RUnlock()
	if factory == nil {
		return nil, fmt.Errorf("unsupported index store type: %s", cfg.Type)
	}
	return factory(cfg.Data)
}

func decodeConfig(args interface{}, dst interface{}) error {
	if args == nil {
		return fmt.Errorf("index store config is required")
	}
	data, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("encode index store config: %w", err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("decode index store config: %w", err)
	}
	return nil
}
