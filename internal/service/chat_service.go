package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/sbk2k1/sbk-assistant/internal/ai"
	"github.com/sbk2k1/sbk-assistant/internal/model"
	appErr "github.com/sbk2k1/sbk-assistant/internal/pkg/errors"
	"github.com/sbk2k1/sbk-assistant/internal/vectorindex"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
)

const contextPreamble = "Use the following pieces of context to answer the user's question. " +
	"If you don't know the answer, just say that you don't know, don't try to make up an answer.\n----------------\n"

type ChatConfig struct {
	SystemPrompt     string
	TopK             int
	CondenseQuestion bool
	MaxQuestionChars int
}

type ChatService struct {
	store     vectorindex.Store
	embedder  ai.IEmbedder
	chat      ai.IChatModel
	condenser ai.IGenerator
	cfg       ChatConfig
}

// NewChatService wires the retrieval chain. condenser may be nil when
// question condensing is disabled.
func NewChatService(store vectorindex.Store, embedder ai.IEmbedder, chat ai.IChatModel, condenser ai.IGenerator, cfg ChatConfig) *ChatService {
	if cfg.TopK <= 0 {
		cfg.TopK = 4
	}
	return &ChatService{
		store:     store,
		embedder:  embedder,
		chat:      chat,
		condenser: condenser,
		cfg:       cfg,
	}
}

// Open loads a snapshot of the index and starts a session on it. Documents
// ingested afterwards are not visible to the session.
func (s *ChatService) Open(ctx context.Context) (*Session, error) {
	idx, ok, err := s.store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: load: %w", appErr.ErrIndexIO, err)
	}
	if !ok {
		idx = nil
	}
	sess := &Session{
		id:     uuid.NewString(),
		svc:    s,
		index:  idx,
		memory: NewMemory(s.cfg.SystemPrompt),
	}
	logutil.GetLogger(ctx).Info("chat session opened",
		zap.String("session_id", sess.id),
		zap.Int("chunks", idx.Len()),
	)
	return sess, nil
}

type Source struct {
	Source     string  `json:"source"`
	ChunkIndex int     `json:"chunk_index"`
	Score      float64 `json:"score"`
	Text       string  `json:"text"`
}

type Answer struct {
	Question string   `json:"question"`
	Text     string   `json:"text"`
	Sources  []Source `json:"sources"`
}

// Session owns the retriever snapshot and the memory of one chat connection.
// Questions are answered one at a time.
type Session struct {
	id     string
	svc    *ChatService
	mu     sync.Mutex
	index  *vectorindex.Index
	memory *Memory
	closed bool
}

func (s *Session) ID() string {
	return s.id
}

// Stream answers question, passing tokens to onToken as they arrive. The turn
// is added to memory only when the answer completes.
func (s *Session) Stream(ctx context.Context, question string, onToken ai.TokenFunc) (*Answer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, appErr.ErrClosed
	}
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, fmt.Errorf("%w: question is empty", appErr.ErrInvalid)
	}
	if limit := s.svc.cfg.MaxQuestionChars; limit > 0 && utf8.RuneCountInString(question) > limit {
		return nil, fmt.Errorf("%w: question exceeds %d characters", appErr.ErrInvalid, limit)
	}
	logger := logutil.GetLogger(ctx).With(zap.String("session_id", s.id))
	start := time.Now()

	standalone := s.condense(ctx, question)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	matches, err := s.retrieve(ctx, standalone)
	if err != nil {
		logger.Error("retrieve context failed", zap.Error(err))
		return nil, err
	}

	messages := buildMessages(s.memory, matches, standalone)
	var sb strings.Builder
	err = s.svc.chat.Stream(ctx, messages, func(token string) error {
		sb.WriteString(token)
		return onToken(token)
	})
	if err != nil {
		logger.Error("chat stream failed", zap.Error(err), zap.Int("partial_len", sb.Len()))
		return nil, err
	}
	s.memory.AddTurn(question, sb.String())

	sources := make([]Source, 0, len(matches))
	for _, m := range matches {
		sources = append(sources, Source{
			Source:     m.Chunk.Source,
			ChunkIndex: m.Chunk.Index,
			Score:      m.Score,
			Text:       m.Chunk.Text,
		})
	}
	logger.Info("chat turn completed",
		zap.Int("matches", len(matches)),
		zap.Int("answer_len", sb.Len()),
		zap.Duration("duration", time.Since(start)),
	)
	return &Answer{Question: standalone, Text: sb.String(), Sources: sources}, nil
}

// condense rewrites follow-up questions into standalone ones when enabled. A
// failing generator falls back to the raw question.
func (s *Session) condense(ctx context.Context, question string) string {
	if !s.svc.cfg.CondenseQuestion || s.svc.condenser == nil {
		return question
	}
	turns := s.memory.Turns()
	if len(turns) == 0 {
		return question
	}
	out, err := ai.CondenseQuestion(ctx, s.svc.condenser, turns, question)
	if err != nil {
		logutil.GetLogger(ctx).Warn("condense question failed, using raw question", zap.String("session_id", s.id), zap.Error(err))
		return question
	}
	logutil.GetLogger(ctx).Debug("question condensed", zap.String("session_id", s.id), zap.String("standalone", out))
	return out
}

func (s *Session) retrieve(ctx context.Context, query string) ([]vectorindex.Match, error) {
	if s.index.Len() == 0 {
		return nil, nil
	}
	vec, err := s.svc.embedder.Embed(ctx, query, ai.TaskRetrievalQuery)
	if err != nil {
		return nil, fmt.Errorf("embed question: %w", err)
	}
	matches, err := s.index.Query(vec, s.svc.cfg.TopK)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", appErr.ErrInvalid, err)
	}
	for _, m := range matches {
		logutil.GetLogger(ctx).Debug("retrieved chunk",
			zap.String("session_id", s.id),
			zap.String("source", m.Chunk.Source),
			zap.Int("chunk_index", m.Chunk.Index),
			zap.Float64("score", m.Score),
		)
	}
	return matches, nil
}

// Memory returns a copy of the conversation so far.
func (s *Session) Memory() []model.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.memory == nil {
		return nil
	}
	return s.memory.Messages()
}

// Close drops the index snapshot and memory. It is safe to call more than once.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.index = nil
	s.memory = nil
	return nil
}

func buildMessages(memory *Memory, matches []vectorindex.Match, question string) []model.Message {
	parts := make([]string, 0, len(matches))
	for _, m := range matches {
		parts = append(parts, m.Chunk.Text)
	}
	system := memory.SystemPrompt() + "\n\n" + contextPreamble + strings.Join(parts, "\n\n")
	turns := memory.Turns()
	messages := make([]model.Message, 0, len(turns)+2)
	messages = append(messages, model.Message{Role: model.RoleSystem, Content: system})
	messages = append(messages, turns...)
	messages = append(messages, model.Message{Role: model.RoleUser, Content: question})
	return messages
}
