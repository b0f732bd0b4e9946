package ai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ollama/ollama/api"
	"github.com/sbk2k1/sbk-assistant/internal/model"
)

const defaultOllamaHost = "http://localhost:11434"

type ollamaConfig struct {
	Host           string                 `json:"host"`
	TimeoutSeconds int                    `json:"timeout_seconds"`
	Options        map[string]interface{} `json:"options"`
}

type ollamaProvider struct {
	client  *api.Client
	options map[string]interface{}
}

func (p *ollamaProvider) Name() string {
	return "ollama"
}

func (p *ollamaProvider) Generate(ctx context.Context, modelName string, prompt string) (string, error) {
	stream := false
	var sb strings.Builder
	err := p.client.Generate(ctx, &api.GenerateRequest{
		Model:   modelName,
		Prompt:  prompt,
		Stream:  &stream,
		Options: p.options,
	}, func(resp api.GenerateResponse) error {
		sb.WriteString(resp.Response)
		return nil
	})
	if err != nil {
		return "", classifyOllamaError(err)
	}
	return strings.TrimSpace(sb.String()), nil
}

func (p *ollamaProvider) Stream(ctx context.Context, modelName string, messages []model.Message, opts ChatOptions, onToken TokenFunc) error {
	stream := true
	msgs := make([]api.Message, 0, len(messages))
	for _, msg := range messages {
		msgs = append(msgs, api.Message{Role: string(msg.Role), Content: msg.Content})
	}
	options := make(map[string]interface{}, len(p.options)+2)
	for k, v := range p.options {
		options[k] = v
	}
	if opts.Temperature > 0 {
		options["temperature"] = opts.Temperature
	}
	if opts.MaxTokens > 0 {
		options["num_predict"] = opts.MaxTokens
	}
	req := &api.ChatRequest{
		Model:    modelName,
		Messages: msgs,
		Stream:   &stream,
		Options:  options,
	}
	err := p.client.Chat(ctx, req, func(resp api.ChatResponse) error {
		if resp.Message.Content == "" {
			return nil
		}
		return onToken(resp.Message.Content)
	})
	return classifyOllamaError(err)
}

func (p *ollamaProvider) Embed(ctx context.Context, modelName string, text string, taskType string) ([]float32, error) {
	resp, err := p.client.Embed(ctx, &api.EmbedRequest{
		Model: modelName,
		Input: text,
	})
	if err != nil {
		return nil, classifyOllamaError(err)
	}
	if len(resp.Embeddings) == 0 {
		return nil, fmt.Errorf("ollama response has no embeddings")
	}
	return resp.Embeddings[0], nil
}

// classifyOllamaError marks client-side rejections, such as an unknown model, as permanent.
func classifyOllamaError(err error) error {
	if err == nil {
		return nil
	}
	var statusErr api.StatusError
	if errors.As(err, &statusErr) && isPermanentStatus(statusErr.StatusCode) {
		return Permanent(err)
	}
	var statusPtr *api.StatusError
	if errors.As(err, &statusPtr) && statusPtr != nil && isPermanentStatus(statusPtr.StatusCode) {
		return Permanent(err)
	}
	return err
}

func createOllamaFactory(args interface{}) (IProvider, error) {
	cfg := &ollamaConfig{}
	if err := decodeConfig(args, cfg); err != nil {
		return nil, err
	}
	host := strings.TrimSpace(cfg.Host)
	if host == "" {
		host = defaultOllamaHost
	}
	u, err := url.Parse(host)
	if err != nil {
		return nil, fmt.Errorf("invalid ollama host: %w", err)
	}
	httpClient := &http.Client{}
	if cfg.TimeoutSeconds > 0 {
		httpClient.Timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	return &ollamaProvider{
		client:  api.NewClient(u, httpClient),
		options: cfg.Options,
	}, nil
}

func init() {
	Register("ollama", createOllamaFactory)
}
