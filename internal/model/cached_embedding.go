package model

// CachedEmbedding is one row of the persistent embedding cache. Rows are keyed
// by model, task type and the sha256 of the embedded text.
type CachedEmbedding struct {
	ModelName   string    `json:"model_name"`
	TaskType    string    `json:"task_type"`
	ContentHash string    `json:"content_hash"`
	Vector      []float32 `json:"vector"`
	Dimension   int       `json:"dimension"`
	Ctime       int64     `json:"ctime"`
}
