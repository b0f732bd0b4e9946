package ai

import (
	"context"
	"errors"

	"github.com/sbk2k1/sbk-assistant/internal/model"
)

type fakeChatModel struct {
	name   string
	tokens []string
	// failAfter fails the stream after this many tokens; -1 never fails.
	failAfter int
	err       error
	calls     int
}

func (f *fakeChatModel) Stream(ctx context.Context, messages []model.Message, onToken TokenFunc) error {
	f.calls++
	for i, token := range f.tokens {
		if f.failAfter >= 0 && i == f.failAfter {
			return f.err
		}
		if err := onToken(token); err != nil {
			return err
		}
	}
	if f.failAfter >= 0 && f.failAfter >= len(f.tokens) {
		return f.err
	}
	return nil
}

func (f *fakeChatModel) ModelName() string { return f.name }

type fakeEmbedder struct {
	errs  []error
	vec   []float32
	calls int
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string, taskType string) ([]float32, error) {
	f.calls++
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		if err != nil {
			return nil, err
		}
	}
	return f.vec, nil
}

func (f *fakeEmbedder) ModelName() string { return "fake" }

type fakeGenerator struct {
	out    string
	err    error
	prompt string
}

func (f *fakeGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	f.prompt = prompt
	return f.out, f.err
}

var errBoom = errors.New("boom")
