package document

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/sbk2k1/sbk-assistant/internal/model"
)

const (
	DefaultChunkSize    = 512
	DefaultChunkOverlap = 64
)

var defaultSeparators = []string{"\n\n", "\n", " ", ""}

// Splitter cuts text recursively on paragraph, line, word and finally rune
// boundaries. Sizes are counted in runes. Every chunk holds at most ChunkSize
// runes and consecutive chunks share up to ChunkOverlap runes.
type Splitter struct {
	ChunkSize    int
	ChunkOverlap int
	separators   []string
}

func NewSplitter(chunkSize, chunkOverlap int) (*Splitter, error) {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if chunkOverlap < 0 {
		return nil, fmt.Errorf("chunk overlap must not be negative")
	}
	if chunkOverlap >= chunkSize {
		return nil, fmt.Errorf("chunk overlap %d must be smaller than chunk size %d", chunkOverlap, chunkSize)
	}
	return &Splitter{ChunkSize: chunkSize, ChunkOverlap: chunkOverlap, separators: defaultSeparators}, nil
}

// Split turns a loaded document into indexed chunks.
func (s *Splitter) Split(doc *Document) []model.Chunk {
	texts := s.SplitText(doc.Text)
	chunks := make([]model.Chunk, 0, len(texts))
	for i, txt := range texts {
		chunks = append(chunks, model.Chunk{
			ID:     uuid.NewString(),
			Source: doc.Source,
			Index:  i,
			Text:   txt,
		})
	}
	return chunks
}

func (s *Splitter) SplitText(text string) []string {
	return s.split(text, s.separators)
}

func (s *Splitter) split(text string, separators []string) []string {
	separator := separators[len(separators)-1]
	var next []string
	for i, sep := range separators {
		if sep == "" {
			separator = ""
			break
		}
		if strings.Contains(text, sep) {
			separator = sep
			next = separators[i+1:]
			break
		}
	}

	var out []string
	var good []string
	for _, piece := range strings.Split(text, separator) {
		if piece == "" {
			continue
		}
		if runeLen(piece) < s.ChunkSize {
			good = append(good, piece)
			continue
		}
		if len(good) > 0 {
			out = append(out, s.merge(good, separator)...)
			good = nil
		}
		if len(next) == 0 {
			out = append(out, piece)
			continue
		}
		out = append(out, s.split(piece, next)...)
	}
	if len(good) > 0 {
		out = append(out, s.merge(good, separator)...)
	}
	return out
}

// merge packs small pieces into chunks, carrying a tail of the previous chunk
// forward as overlap.
func (s *Splitter) merge(pieces []string, separator string) []string {
	sepLen := runeLen(separator)
	var docs []string
	var current []string
	total := 0
	joinCost := func() int {
		if len(current) > 0 {
			return sepLen
		}
		return 0
	}
	for _, piece := range pieces {
		l := runeLen(piece)
		if total+l+joinCost() > s.ChunkSize && len(current) > 0 {
			if doc := strings.TrimSpace(strings.Join(current, separator)); doc != "" {
				docs = append(docs, doc)
			}
			for total > s.ChunkOverlap || (total > 0 && total+l+joinCost() > s.ChunkSize) {
				drop := runeLen(current[0])
				if len(current) > 1 {
					drop += sepLen
				}
				total -= drop
				current = current[1:]
			}
		}
		total += l + joinCost()
		current = append(current, piece)
	}
	if doc := strings.TrimSpace(strings.Join(current, separator)); doc != "" {
		docs = append(docs, doc)
	}
	return docs
}

func runeLen(s string) int {
	return utf8.RuneCountInString(s)
}
