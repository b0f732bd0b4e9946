package vectorindex

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
	"github.com/sbk2k1/sbk-assistant/internal/model"
)

const (
	defaultQdrantPort       = 6334
	defaultQdrantCollection = "sbk_documents"
	qdrantBatchSize         = 256
)

type qdrantConfig struct {
	Host       string `json:"host"`
	Port       int    `json:"port"`
	APIKey     string `json:"api_key"`
	UseTLS     bool   `json:"use_tls"`
	Collection string `json:"collection"`
}

// qdrantStore mirrors the index into a qdrant collection, one point per chunk.
// The point payload carries the chunk and its position so Load can rebuild the
// index in insertion order.
type qdrantStore struct {
	client     *qdrant.Client
	collection string
	mu         sync.Mutex
}

func init() {
	Register("qdrant", createQdrantStore)
}

func createQdrantStore(args interface{}) (Store, error) {
	cfg := &qdrantConfig{}
	if err := decodeConfig(args, cfg); err != nil {
		return nil, err
	}
	if cfg.Host == "" {
		return nil, fmt.Errorf("qdrant host is required")
	}
	if cfg.Port == 0 {
		cfg.Port = defaultQdrantPort
	}
	if cfg.Collection == "" {
		cfg.Collection = defaultQdrantCollection
	}
	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("connect qdrant: %w", err)
	}
	return &qdrantStore{client: client, collection: cfg.Collection}, nil
}

func (s *qdrantStore) Load(ctx context.Context) (*Index, bool, error) {
	exists, err := s.client.CollectionExists(ctx, s.collection)
	if err != nil {
		return nil, false, fmt.Errorf("check collection: %w", err)
	}
	if !exists {
		return nil, false, nil
	}
	total, err := s.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: s.collection,
		Exact:          qdrant.PtrOf(true),
	})
	if err != nil {
		return nil, false, fmt.Errorf("count points: %w", err)
	}
	if total == 0 {
		return nil, false, nil
	}

	type positioned struct {
		seq   int64
		entry Entry
	}
	items := make([]positioned, 0, total)
	var offset *qdrant.PointId
	for {
		points, err := s.client.Scroll(ctx, &qdrant.ScrollPoints{
			CollectionName: s.collection,
			Offset:         offset,
			Limit:          qdrant.PtrOf(uint32(qdrantBatchSize + 1)),
			WithPayload:    qdrant.NewWithPayload(true),
			WithVectors:    qdrant.NewWithVectors(true),
		})
		if err != nil {
			return nil, false, fmt.Errorf("scroll points: %w", err)
		}
		// the offset point is inclusive, so every page after the first repeats it
		if offset != nil && len(points) > 0 {
			points = points[1:]
		}
		for _, p := range points {
			payload := p.GetPayload()
			items = append(items, positioned{
				seq: payload["seq"].GetIntegerValue(),
				entry: Entry{
					Chunk: model.Chunk{
						ID:     p.GetId().GetUuid(),
						Source: payload["source"].GetStringValue(),
						Index:  int(payload["chunk_index"].GetIntegerValue()),
						Text:   payload["text"].GetStringValue(),
					},
					Vector: p.GetVectors().GetVector().GetData(),
				},
			})
		}
		if len(points) < qdrantBatchSize {
			break
		}
		offset = points[len(points)-1].GetId()
	}
	sort.SliceStable(items, func(a, b int) bool { return items[a].seq < items[b].seq })
	idx := &Index{}
	for _, it := range items {
		if err := idx.Add(it.entry); err != nil {
			return nil, false, err
		}
	}
	return idx, true, nil
}

func (s *qdrantStore) ensureCollection(ctx context.Context, dim int) error {
	exists, err := s.client.CollectionExists(ctx, s.collection)
	if err != nil {
		return fmt.Errorf("check collection: %w", err)
	}
	if exists {
		return nil
	}
	return s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: s.collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(dim),
			Distance: qdrant.Distance_Cosine,
		}),
	})
}

// Save upserts every entry. Point ids come from chunk ids, so rewriting
// entries that are already stored is idempotent.
func (s *qdrantStore) Save(ctx context.Context, idx *Index) error {
	if idx.Len() == 0 {
		return nil
	}
	if err := s.ensureCollection(ctx, idx.Dimension); err != nil {
		return err
	}
	for start := 0; start < len(idx.Entries); start += qdrantBatchSize {
		end := min(start+qdrantBatchSize, len(idx.Entries))
		points := make([]*qdrant.PointStruct, 0, end-start)
		for i := start; i < end; i++ {
			e := idx.Entries[i]
			id := e.Chunk.ID
			if _, err := uuid.Parse(id); err != nil {
				id = uuid.NewSHA1(uuid.NameSpaceOID, []byte(id)).String()
			}
			points = append(points, &qdrant.PointStruct{
				Id:      qdrant.NewID(id),
				Vectors: qdrant.NewVectors(e.Vector...),
				Payload: qdrant.NewValueMap(map[string]any{
					"seq":         int64(i),
					"source":      e.Chunk.Source,
					"chunk_index": int64(e.Chunk.Index),
					"text":        e.Chunk.Text,
				}),
			})
		}
		if _, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
			CollectionName: s.collection,
			Wait:           qdrant.PtrOf(true),
			Points:         points,
		}); err != nil {
			return fmt.Errorf("upsert points: %w", err)
		}
	}
	return nil
}

// Update serializes writers in this process. Writers in other processes cannot
// drop each other's appends: Save only upserts, keyed by chunk id, and never
// deletes points.
func (s *qdrantStore) Update(ctx context.Context, fn UpdateFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx, existed, err := loadOrNew(ctx, s)
	if err != nil {
		return err
	}
	if err := fn(idx, existed); err != nil {
		return err
	}
	return s.Save(ctx, idx)
}

func (s *qdrantStore) Close() error {
	return s.client.Close()
}
