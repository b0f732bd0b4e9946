package vectorindex

import (
	"fmt"
	"math"
	"sort"

	"github.com/sbk2k1/sbk-assistant/internal/model"
)

type Entry struct {
	Chunk  model.Chunk `json:"chunk"`
	Vector []float32   `json:"vector"`
}

type Match struct {
	Chunk model.Chunk `json:"chunk"`
	Score float64     `json:"score"`
}

// Index is the in-memory form of the persisted vector index. Entries are only
// ever appended.
type Index struct {
	Dimension int     `json:"dimension"`
	Entries   []Entry `json:"entries"`
}

func New(dimension int) *Index {
	return &Index{Dimension: dimension}
}

func (idx *Index) Len() int {
	if idx == nil {
		return 0
	}
	return len(idx.Entries)
}

func (idx *Index) Add(entries ...Entry) error {
	dim := idx.Dimension
	for i, e := range entries {
		if dim == 0 {
			dim = len(e.Vector)
		}
		if len(e.Vector) != dim || dim == 0 {
			return fmt.Errorf("entry %d has dimension %d, index expects %d", i, len(e.Vector), dim)
		}
	}
	idx.Dimension = dim
	for _, e := range entries {
		vec := make([]float32, len(e.Vector))
		copy(vec, e.Vector)
		idx.Entries = append(idx.Entries, Entry{Chunk: e.Chunk, Vector: vec})
	}
	return nil
}

// Query returns up to k entries ordered by decreasing cosine similarity.
// Entries with equal scores keep their insertion order.
func (idx *Index) Query(vec []float32, k int) ([]Match, error) {
	if k <= 0 || idx.Len() == 0 {
		return nil, nil
	}
	if len(vec) != idx.Dimension {
		return nil, fmt.Errorf("query has dimension %d, index expects %d", len(vec), idx.Dimension)
	}
	qnorm := norm(vec)
	scores := make([]float64, len(idx.Entries))
	order := make([]int, len(idx.Entries))
	for i, e := range idx.Entries {
		scores[i] = cosine(vec, qnorm, e.Vector)
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return scores[order[a]] > scores[order[b]]
	})
	if k > len(order) {
		k = len(order)
	}
	out := make([]Match, 0, k)
	for _, i := range order[:k] {
		out = append(out, Match{Chunk: idx.Entries[i].Chunk, Score: scores[i]})
	}
	return out, nil
}

func cosine(q []float32, qnorm float64, v []float32) float64 {
	vnorm := norm(v)
	if qnorm == 0 || vnorm == 0 {
		return 0
	}
	var dot float64
	for i := range q {
		dot += float64(q[i]) * float64(v[i])
	}
	return dot / (qnorm * vnorm)
}

func norm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}
