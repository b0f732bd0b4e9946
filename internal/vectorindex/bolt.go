package vectorindex

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"go.etcd.io/bbolt"
)

var (
	bucketMeta    = []byte("meta")
	bucketEntries = []byte("entries")
	keyDimension  = []byte("dimension")
)

type boltConfig struct {
	Path string `json:"path"`
}

type boltStore struct {
	db *bbolt.DB
}

func init() {
	Register("bolt", createBoltStore)
}

func createBoltStore(args interface{}) (Store, error) {
	cfg := &boltConfig{}
	if err := decodeConfig(args, cfg); err != nil {
		return nil, err
	}
	if cfg.Path == "" {
		return nil, fmt.Errorf("bolt index path is required")
	}
	return NewBoltStore(cfg.Path)
}

func NewBoltStore(path string) (Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, err
	}
	return &boltStore{db: db}, nil
}

func (s *boltStore) Load(ctx context.Context) (*Index, bool, error) {
	var idx *Index
	err := s.db.View(func(tx *bbolt.Tx) error {
		var err error
		idx, err = readIndex(tx)
		return err
	})
	if err != nil {
		return nil, false, err
	}
	return idx, idx != nil, nil
}

// Save rewrites both buckets in one transaction so readers never see a partial index.
func (s *boltStore) Save(ctx context.Context, idx *Index) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return writeIndex(tx, idx)
	})
}

// Update runs inside a single write transaction. bbolt allows one writer at a
// time and holds an exclusive file lock, so no other process can open the file.
func (s *boltStore) Update(ctx context.Context, fn UpdateFunc) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		idx, err := readIndex(tx)
		if err != nil {
			return err
		}
		existed := idx != nil
		if !existed {
			idx = New(0)
		}
		if err := fn(idx, existed); err != nil {
			return err
		}
		return writeIndex(tx, idx)
	})
}

func readIndex(tx *bbolt.Tx) (*Index, error) {
	meta := tx.Bucket(bucketMeta)
	entries := tx.Bucket(bucketEntries)
	if meta == nil || entries == nil {
		return nil, nil
	}
	dim, err := strconv.Atoi(string(meta.Get(keyDimension)))
	if err != nil {
		return nil, fmt.Errorf("decode index dimension: %w", err)
	}
	idx := New(dim)
	err = entries.ForEach(func(k, v []byte) error {
		var e Entry
		if err := json.Unmarshal(v, &e); err != nil {
			return fmt.Errorf("decode index entry: %w", err)
		}
		idx.Entries = append(idx.Entries, e)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return idx, nil
}

func writeIndex(tx *bbolt.Tx, idx *Index) error {
	for _, name := range [][]byte{bucketMeta, bucketEntries} {
		if tx.Bucket(name) != nil {
			if err := tx.DeleteBucket(name); err != nil {
				return err
			}
		}
	}
	meta, err := tx.CreateBucket(bucketMeta)
	if err != nil {
		return err
	}
	if err := meta.Put(keyDimension, []byte(strconv.Itoa(idx.Dimension))); err != nil {
		return err
	}
	entries, err := tx.CreateBucket(bucketEntries)
	if err != nil {
		return err
	}
	for i, e := range idx.Entries {
		data, err := json.Marshal(e)
		if err != nil {
			return err
		}
		key := make([]byte, 8)
		binary.BigEndian.PutUint64(key, uint64(i))
		if err := entries.Put(key, data); err != nil {
			return err
		}
	}
	return nil
}

func (s *boltStore) Close() error {
	return s.db.Close()
}
