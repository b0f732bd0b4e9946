package ai

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"unicode"

	"github.com/sbk2k1/sbk-assistant/internal/model"
)

const defaultLocalDimension = 384

type localConfig struct {
	Dimension int `json:"dimension"`
}

// localProvider embeds text offline by hashing word unigrams and bigrams into a
// fixed number of signed buckets. It has no chat capability.
type localProvider struct {
	dim int
}

func NewLocalProvider(dim int) IProvider {
	if dim <= 0 {
		dim = defaultLocalDimension
	}
	return &localProvider{dim: dim}
}

func (p *localProvider) Name() string {
	return "local"
}

func (p *localProvider) Generate(ctx context.Context, modelName string, prompt string) (string, error) {
	return "", ErrUnavailable
}

func (p *localProvider) Stream(ctx context.Context, modelName string, messages []model.Message, opts ChatOptions, onToken TokenFunc) error {
	return ErrUnavailable
}

func (p *localProvider) Embed(ctx context.Context, modelName string, text string, taskType string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	vec := make([]float32, p.dim)
	words := tokenize(text)
	for i, w := range words {
		p.add(vec, w, 1)
		if i > 0 {
			p.add(vec, words[i-1]+" "+w, 0.5)
		}
	}
	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		return vec, nil
	}
	scale := float32(1 / math.Sqrt(norm))
	for i := range vec {
		vec[i] *= scale
	}
	return vec, nil
}

func (p *localProvider) add(vec []float32, feature string, weight float32) {
	h := fnv.New64a()
	_, _ = h.Write([]byte(feature))
	sum := h.Sum64()
	idx := int(sum % uint64(p.dim))
	if sum&(1<<63) != 0 {
		weight = -weight
	}
	vec[idx] += weight
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func createLocalFactory(args interface{}) (IProvider, error) {
	cfg := &localConfig{}
	if err := decodeConfig(args, cfg); err != nil {
		return nil, err
	}
	return NewLocalProvider(cfg.Dimension), nil
}

func init() {
	Register("local", createLocalFactory)
}
