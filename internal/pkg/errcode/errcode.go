package errcode

// Request level codes.
const (
	ErrInternal = 10000000 + iota
	ErrUnauthorized
	ErrInvalid
	ErrTooMany
)

// Upload and ingestion codes.
const (
	ErrInvalidFile = 20000000 + iota
	ErrUnsupportedFile
	ErrFileTooLarge
	ErrUploadFailed
	ErrIngestFailed
)

// Model backend codes, sent in websocket error frames as well.
const (
	ErrAIUnavailable = 30000000 + iota
	ErrAITimeout
)
