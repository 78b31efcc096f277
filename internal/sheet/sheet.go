package sheet

import "time"

// ExtractionRecord is one entry in the audit history: either an inference
// call that produced a preview, or a save that appended rows to the store.
type ExtractionRecord struct {
	ID        string    `json:"id"`
	Kind      string    `json:"kind"` // "extract" or "save"
	Filename  string    `json:"filename,omitempty"`
	Model     string    `json:"model,omitempty"`
	Columns   int       `json:"columns"`
	Rows      int       `json:"rows"`
	Duration  int64     `json:"duration_ms"`
	CreatedAt time.Time `json:"created_at"`
}

const (
	KindExtract = "extract"
	KindSave    = "save"
)
