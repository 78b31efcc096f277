package vision

import (
	"context"
	"errors"
)

// Request carries one extraction call to a vision model.
type Request struct {
	// Image is the raw upload; any format the conversion layer understands.
	Image       []byte
	ContentType string
	// Headers is the caller's column hint. Empty means the model should
	// detect headers from the image.
	Headers []string
	// Instructions is optional free text appended to the prompt.
	Instructions string
	// Model overrides the client's default model when non-empty.
	Model string
}

// ModelInfo describes one model the endpoint can serve.
type ModelInfo struct {
	Name              string `json:"name"`
	Size              int64  `json:"size,omitempty"`
	ParameterSize     string `json:"parameter_size,omitempty"`
	QuantizationLevel string `json:"quantization_level,omitempty"`
	ModifiedAt        string `json:"modified_at,omitempty"`
}

// Status of the inference endpoint.
type Status string

const (
	StatusOnline  Status = "online"
	StatusOffline Status = "offline"
)

// Availability is the result of probing the endpoint. Unreachability is a
// status, not an error.
type Availability struct {
	Status  Status      `json:"status"`
	Models  []ModelInfo `json:"models"`
	Message string      `json:"message,omitempty"`
}

var (
	// ErrUnreachable means the inference endpoint could not be contacted.
	ErrUnreachable = errors.New("inference endpoint unreachable")

	// ErrModelUnavailable means the requested model is not among those the
	// endpoint serves.
	ErrModelUnavailable = errors.New("model not available")

	// ErrTimeout means the inference call exceeded its bounded wait.
	ErrTimeout = errors.New("inference call timed out")
)

// Client sends an image plus an extraction prompt to a vision model and
// returns the raw response text. Parsing and validation happen elsewhere;
// this layer never retries.
type Client interface {
	// Extract performs one inference call and returns the model's raw text.
	Extract(ctx context.Context, req Request) (string, error)

	// Probe checks endpoint reachability and lists usable models.
	Probe(ctx context.Context) Availability

	// Close releases client resources.
	Close() error
}
