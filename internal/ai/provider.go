package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/sbk2k1/sbk-assistant/internal/model"
)

const (
	TaskRetrievalDocument = "RETRIEVAL_DOCUMENT"
	TaskRetrievalQuery    = "RETRIEVAL_QUERY"
)

// TokenFunc receives streamed tokens in order. Returning an error aborts the stream.
type TokenFunc func(token string) error

type ChatOptions struct {
	Temperature float32
	MaxTokens   int
}

type IProvider interface {
	Name() string
	Generate(ctx context.Context, modelName string, prompt string) (string, error)
	Stream(ctx context.Context, modelName string, messages []model.Message, opts ChatOptions, onToken TokenFunc) error
	Embed(ctx context.Context, modelName string, text string, taskType string) ([]float32, error)
}

type IGenerator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

type IChatModel interface {
	Stream(ctx context.Context, messages []model.Message, onToken TokenFunc) error
	ModelName() string
}

type IEmbedder interface {
	Embed(ctx context.Context, text string, taskType string) ([]float32, error)
	ModelName() string
}

type generator struct {
	provider IProvider
	model    string
}

func NewGenerator(p IProvider, modelName string) IGenerator {
	return &generator{provider: p, model: modelName}
}

func (g *generator) Generate(ctx context.Context, prompt string) (string, error) {
	return g.provider.Generate(ctx, g.model, prompt)
}

type chatModel struct {
	provider IProvider
	model    string
	opts     ChatOptions
}

func NewChatModel(p IProvider, modelName string, opts ChatOptions) IChatModel {
	return &chatModel{provider: p, model: modelName, opts: opts}
}

func (c *chatModel) Stream(ctx context.Context, messages []model.Message, onToken TokenFunc) error {
	return c.provider.Stream(ctx, c.model, messages, c.opts, onToken)
}

func (c *chatModel) ModelName() string {
	return c.provider.Name() + ":" + c.model
}

type embedder struct {
	provider IProvider
	model    string
}

func NewEmbedder(p IProvider, modelName string) IEmbedder {
	return &embedder{provider: p, model: modelName}
}

func (e *embedder) Embed(ctx context.Context, text string, taskType string) ([]float32, error) {
	return e.provider.Embed(ctx, e.model, text, taskType)
}

// ModelName includes the provider so cached vectors from different backends
// never collide when they share a model name.
func (e *embedder) ModelName() string {
	return e.provider.Name() + ":" + e.model
}

type ProviderFactory func(args interface{}) (IProvider, error)

var registry = map[string]ProviderFactory{}

func Register(name string, factory ProviderFactory) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" || factory == nil {
		return
	}
	registry[key] = factory
}

func NewProvider(name string, args interface{}) (IProvider, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" {
		return nil, fmt.Errorf("ai provider is required")
	}
	factory := registry[key]
	if factory == nil {
		return nil, fmt.Errorf("unsupported ai provider: %s", name)
	}
	return factory(args)
}

func decodeConfig(args interface{}, dst interface{}) error {
	if args == nil {
		return nil
	}
	data, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("encode ai provider config: %w", err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("decode ai provider config: %w", err)
	}
	return nil
}

// resolveKey prefers the literal key and falls back to the named environment variable.
func resolveKey(key string, env string) string {
	key = strings.TrimSpace(key)
	if key != "" {
		return key
	}
	env = strings.TrimSpace(env)
	if env == "" {
		return ""
	}
	return strings.TrimSpace(os.Getenv(env))
}
