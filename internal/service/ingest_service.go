package service

import (
	"context"
	"fmt"
	"errors"
	"io"
	"time"

	"github.com/sbk2k1/sbk-assistant/internal/ai"
	"github.com/sbk2k1/sbk-assistant/internal/document"
	appErr "github.com/sbk2k1/sbk-assistant/internal/pkg/errors"
	"github.com/sbk2k1/sbk-assistant/internal/vectorindex"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type IngestInput struct {
	Name   string
	Reader io.Reader
}

type IngestResult struct {
	Source  string `json:"source"`
	Chunks  int    `json:"chunks"`
	Total   int    `json:"total"`
	Created bool   `json:"created"`
}

// IngestService appends documents to the shared vector index. The append goes
// through Store.Update, which serializes writers on the same index even when
// they live in different processes.
type IngestService struct {
	splitter    *document.Splitter
	embedder    ai.IEmbedder
	store       vectorindex.Store
	concurrency int
}

func NewIngestService(splitter *document.Splitter, embedder ai.IEmbedder, store vectorindex.Store, concurrency int) *IngestService {
	if concurrency <= 0 {
		concurrency = 1
	}
	return &IngestService{
		splitter:    splitter,
		embedder:    embedder,
		store:       store,
		concurrency: concurrency,
	}
}

// Ingest always appends. Ingesting the same document twice stores its chunks twice.
func (s *IngestService) Ingest(ctx context.Context, in IngestInput) (*IngestResult, error) {
	logger := logutil.GetLogger(ctx).With(zap.String("source", in.Name))
	start := time.Now()

	doc, err := document.Load(in.Name, in.Reader)
	if err != nil {
		logger.Warn("load document failed", zap.Error(err))
		return nil, fmt.Errorf("load document: %w", err)
	}
	chunks := s.splitter.Split(doc)
	logger.Debug("document split", zap.String("format", doc.Format), zap.Int("chunks", len(chunks)))

	entries := make([]vectorindex.Entry, len(chunks))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i := range chunks {
		g.Go(func() error {
			vec, err := s.embedder.Embed(gctx, chunks[i].Text, ai.TaskRetrievalDocument)
			if err != nil {
				return fmt.Errorf("embed chunk %d: %w", i, err)
			}
			entries[i] = vectorindex.Entry{Chunk: chunks[i], Vector: vec}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		logger.Error("embed document failed", zap.Error(err))
		return nil, err
	}

	var (
		total   int
		existed bool
	)
	err = s.store.Update(ctx, func(idx *vectorindex.Index, ok bool) error {
		if err := idx.Add(entries...); err != nil {
			return fmt.Errorf("%w: %w", appErr.ErrInvalid, err)
		}
		total = idx.Len()
		existed = ok
		return nil
	})
	if err != nil {
		if errors.Is(err, appErr.ErrInvalid) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: update: %w", appErr.ErrIndexIO, err)
	}
	res := &IngestResult{
		Source:  doc.Source,
		Chunks:  len(entries),
		Total:   total,
		Created: !existed,
	}
	logger.Info("document ingested",
		zap.Int("chunks", res.Chunks),
		zap.Int("total", res.Total),
		zap.Bool("created", res.Created),
		zap.Duration("duration", time.Since(start)),
	)
	return res, nil
}
