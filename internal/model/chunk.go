package model

// Chunk is one bounded span of an ingested document. Chunks are immutable once
// written to the index.
type Chunk struct {
	ID     string `json:"id"`
	Source string `json:"source"`
	Index  int    `json:"index"`
	Text   string `json:"text"`
}
