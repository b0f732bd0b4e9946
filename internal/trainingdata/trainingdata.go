// Package trainingdata turns prompt/response pairs into fine-tuning datasets.
package trainingdata

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	appErr "github.com/sbk2k1/sbk-assistant/internal/pkg/errors"
)

const (
	FormatAlpaca = "alpaca"
	FormatInst   = "inst"
	FormatLlama3 = "llama3"
)

const DefaultSystemPrompt = "You are a helpful, honest and harmless assitant designed to help engineers. " +
	"Think through each question logically and provide an answer. " +
	"Don't make things up, if you're unable to answer a question advise the user that you're unable to answer as it is outside of your scope."

// Pair is one training example. Files may use prompt/response or question/answer keys.
type Pair struct {
	Prompt   string `json:"prompt"`
	Response string `json:"response"`
}

type rawPair struct {
	Prompt   string `json:"prompt"`
	Response string `json:"response"`
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

type Options struct {
	SystemPrompt string
}

type formatter func(w *bufio.Writer, p Pair, opts Options) error

var formatters = map[string]formatter{
	FormatAlpaca: writeAlpaca,
	FormatInst:   writeInst,
	FormatLlama3: writeLlama3,
}

func Formats() []string {
	out := make([]string, 0, len(formatters))
	for name := range formatters {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// ReadPairs decodes a JSON array of examples.
func ReadPairs(r io.Reader) ([]Pair, error) {
	var raw []rawPair
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode pairs: %w", err)
	}
	pairs := make([]Pair, 0, len(raw))
	for i, item := range raw {
		p := Pair{Prompt: item.Prompt, Response: item.Response}
		if p.Prompt == "" {
			p.Prompt = item.Question
		}
		if p.Response == "" {
			p.Response = item.Answer
		}
		if strings.TrimSpace(p.Prompt) == "" || strings.TrimSpace(p.Response) == "" {
			return nil, fmt.Errorf("%w: example %d has an empty prompt or response", appErr.ErrInvalid, i)
		}
		pairs = append(pairs, p)
	}
	return pairs, nil
}

// Write renders pairs in format, one example per line, and returns the number written.
func Write(w io.Writer, format string, pairs []Pair, opts Options) (int, error) {
	fn, ok := formatters[strings.ToLower(strings.TrimSpace(format))]
	if !ok {
		return 0, fmt.Errorf("%w: unknown format %q, want one of %s", appErr.ErrInvalid, format, strings.Join(Formats(), ", "))
	}
	if opts.SystemPrompt == "" {
		opts.SystemPrompt = DefaultSystemPrompt
	}
	bw := bufio.NewWriter(w)
	for i, p := range pairs {
		if err := fn(bw, p, opts); err != nil {
			return i, fmt.Errorf("write example %d: %w", i, err)
		}
	}
	if err := bw.Flush(); err != nil {
		return 0, err
	}
	return len(pairs), nil
}

func writeJSONLine(w *bufio.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}

func writeAlpaca(w *bufio.Writer, p Pair, _ Options) error {
	text := "### Question:\n" + p.Prompt + "\n\n### Answer:\n" + p.Response
	return writeJSONLine(w, map[string]string{"text": text})
}

func writeInst(w *bufio.Writer, p Pair, _ Options) error {
	prompt := strings.ReplaceAll(strings.TrimSpace(p.Prompt), "\n", " ")
	response := strings.ReplaceAll(strings.TrimSpace(p.Response), "\n", " ")
	_, err := fmt.Fprintf(w, "<s>[INST] %s [/INST] %s </s>\n", prompt, response)
	return err
}

type llama3Example struct {
	Instruction string `json:"instruction"`
	Response    string `json:"response"`
	Text        string `json:"text"`
}

func writeLlama3(w *bufio.Writer, p Pair, opts Options) error {
	return writeJSONLine(w, llama3Example{
		Instruction: p.Prompt,
		Response:    p.Response,
		Text:        Llama3Chat(opts.SystemPrompt, p.Prompt, p.Response),
	})
}

// Llama3Chat renders one system/user/assistant exchange with the Llama 3 chat
// template. Only the first message carries the BOS token.
func Llama3Chat(system, user, assistant string) string {
	var sb strings.Builder
	sb.WriteString("<|begin_of_text|>")
	for _, m := range [][2]string{{"system", system}, {"user", user}, {"assistant", assistant}} {
		sb.WriteString("<|start_header_id|>")
		sb.WriteString(m[0])
		sb.WriteString("<|end_header_id|>\n\n")
		sb.WriteString(strings.TrimSpace(m[1]))
		sb.WriteString("<|eot_id|>")
	}
	return sb.String()
}
