package main

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/sbk2k1/sbk-assistant/internal/ai"
	"github.com/sbk2k1/sbk-assistant/internal/config"
	"github.com/sbk2k1/sbk-assistant/internal/db"
	"github.com/sbk2k1/sbk-assistant/internal/document"
	"github.com/sbk2k1/sbk-assistant/internal/embedcache"
	"github.com/sbk2k1/sbk-assistant/internal/filestore"
	"github.com/sbk2k1/sbk-assistant/internal/repo"
	"github.com/sbk2k1/sbk-assistant/internal/service"
	"github.com/sbk2k1/sbk-assistant/internal/vectorindex"
)

// app holds everything built from one configuration.
type app struct {
	cfg       *config.Config
	index     vectorindex.Store
	files     filestore.Store
	embedder  ai.IEmbedder
	chat      ai.IChatModel
	condenser ai.IGenerator
	ingest    *service.IngestService
	chatSvc   *service.ChatService
	db        *sqlx.DB
	cacheRepo *repo.EmbeddingCacheRepo
}

func newApp(ctx context.Context, cfg *config.Config, withChat bool) (*app, error) {
	a := &app{cfg: cfg}
	ok := false
	defer func() {
		if !ok {
			a.Close()
		}
	}()

	var err error
	if a.index, err = vectorindex.NewStore(cfg.Index); err != nil {
		return nil, fmt.Errorf("init index store: %w", err)
	}
	if a.files, err = filestore.New(cfg.Upload.Store); err != nil {
		return nil, fmt.Errorf("init upload store: %w", err)
	}
	policy := retryPolicy(cfg.Retry)
	if a.embedder, err = a.buildEmbedder(ctx, policy); err != nil {
		return nil, err
	}
	splitter, err := document.NewSplitter(cfg.Splitter.ChunkSize, cfg.Splitter.Overlap())
	if err != nil {
		return nil, err
	}
	a.ingest = service.NewIngestService(splitter, a.embedder, a.index, cfg.Embedding.Concurrency)

	if withChat {
		if err := a.buildChat(policy); err != nil {
			return nil, err
		}
		a.chatSvc = service.NewChatService(a.index, a.embedder, a.chat, a.condenser, service.ChatConfig{
			SystemPrompt:     cfg.Chat.SystemPrompt,
			TopK:             cfg.Chat.TopK,
			CondenseQuestion: cfg.Chat.CondenseQuestion,
			MaxQuestionChars: cfg.Chat.MaxQuestionChars,
		})
	}
	ok = true
	return a, nil
}

func retryPolicy(cfg config.RetryConfig) ai.RetryPolicy {
	return ai.RetryPolicy{
		Timeout:    time.Duration(cfg.TimeoutSeconds) * time.Second,
		MaxRetries: cfg.MaxRetries,
		BaseDelay:  time.Duration(cfg.BaseDelayMS) * time.Millisecond,
	}
}

func providerChain(primary config.ProviderConfig, fallbacks []config.ProviderConfig) []config.ProviderConfig {
	out := make([]config.ProviderConfig, 0, len(fallbacks)+1)
	out = append(out, primary)
	return append(out, fallbacks...)
}

func entryName(pc config.ProviderConfig) string {
	return pc.Provider + ":" + pc.Model
}

func (a *app) buildEmbedder(ctx context.Context, policy ai.RetryPolicy) (ai.IEmbedder, error) {
	cfg := a.cfg.Embedding
	var entries []ai.EmbedderEntry
	for _, pc := range providerChain(cfg.ProviderConfig, cfg.Fallbacks) {
		provider, err := ai.NewProvider(pc.Provider, pc.Data)
		if err != nil {
			return nil, fmt.Errorf("init embedding provider %s: %w", pc.Provider, err)
		}
		entries = append(entries, ai.EmbedderEntry{
			Name:     entryName(pc),
			Embedder: ai.WithRetryEmbedder(ai.NewEmbedder(provider, pc.Model), policy),
		})
	}
	embedder := ai.NewGroupEmbedder(entries)

	if cfg.CacheDSN != "" {
		conn, err := db.Open(ctx, cfg.CacheDSN)
		if err != nil {
			return nil, fmt.Errorf("open embedding cache: %w", err)
		}
		a.db = conn
		if err := db.ApplyMigrations(ctx, conn); err != nil {
			return nil, fmt.Errorf("migrate embedding cache: %w", err)
		}
		a.cacheRepo = repo.NewEmbeddingCacheRepo(conn)
		embedder = embedcache.WrapDBCacheToEmbedder(embedder, a.cacheRepo)
	}
	embedder = embedcache.WrapLruCacheToEmbedder(embedder, cfg.LRUSize, time.Duration(cfg.LRUTTLSeconds)*time.Second)
	logutil.GetLogger(ctx).Info("embedder ready",
		zap.String("model", embedder.ModelName()),
		zap.Bool("db_cache", a.cacheRepo != nil),
		zap.Int("lru_size", cfg.LRUSize),
	)
	return embedder, nil
}

func (a *app) buildChat(policy ai.RetryPolicy) error {
	cfg := a.cfg.LLM
	opts := ai.ChatOptions{Temperature: cfg.Temperature, MaxTokens: cfg.MaxTokens}
	var models []ai.ChatModelEntry
	var generators []ai.GeneratorEntry
	for _, pc := range providerChain(cfg.ProviderConfig, cfg.Fallbacks) {
		provider, err := ai.NewProvider(pc.Provider, pc.Data)
		if err != nil {
			return fmt.Errorf("init llm provider %s: %w", pc.Provider, err)
		}
		models = append(models, ai.ChatModelEntry{
			Name:  entryName(pc),
			Model: ai.WithRetryChatModel(ai.NewChatModel(provider, pc.Model, opts), policy),
		})
		generators = append(generators, ai.GeneratorEntry{
			Name:      entryName(pc),
			Generator: ai.WithRetryGenerator(ai.NewGenerator(provider, pc.Model), policy),
		})
	}
	a.chat = ai.NewGroupChatModel(models)
	if a.cfg.Chat.CondenseQuestion {
		a.condenser = ai.NewGroupGenerator(generators)
	}
	return nil
}

func (a *app) Close() {
	if a.index != nil {
		if err := a.index.Close(); err != nil {
			logutil.GetLogger(context.Background()).Warn("close index store failed", zap.Error(err))
		}
	}
	if a.db != nil {
		_ = a.db.Close()
	}
}
