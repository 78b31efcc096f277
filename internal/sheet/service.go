package sheet

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/kmckee/sheetscribe/internal/csvstore"
	"github.com/kmckee/sheetscribe/internal/table"
	"github.com/kmckee/sheetscribe/internal/vision"
)

// DefaultThreshold flags cells the reviewer should double-check.
const DefaultThreshold = 0.7

// IDGenerator generates unique IDs for history records.
type IDGenerator interface {
	Generate() string
}

// TimeSource provides the current time.
type TimeSource interface {
	Now() time.Time
}

// defaultIDGenerator generates IDs using UnixNano timestamp
type defaultIDGenerator struct{}

func (g *defaultIDGenerator) Generate() string {
	return fmt.Sprintf("%d", time.Now().UnixNano())
}

// defaultTimeSource provides the current time
type defaultTimeSource struct{}

func (t *defaultTimeSource) Now() time.Time {
	return time.Now()
}

// ExtractRequest is one extraction call through the service.
type ExtractRequest struct {
	Image        []byte
	ContentType  string
	Filename     string
	Columns      string // comma-separated header hint; empty means auto-detect
	Instructions string
	Model        string
	Threshold    *float64 // nil means the service's configured default; 0 flags nothing
}

// Service orchestrates the extraction pipeline and the CSV store. An
// extraction never touches the store; only an explicit save does.
type Service struct {
	client      vision.Client
	store       *csvstore.Store
	history     HistoryDB
	csvPath     string
	threshold   float64
	idGenerator IDGenerator
	timeSource  TimeSource
}

// NewService creates a Service with default ID generator and time source.
// A non-positive threshold falls back to DefaultThreshold.
func NewService(client vision.Client, store *csvstore.Store, history HistoryDB, csvPath string, threshold float64) *Service {
	return NewServiceWithDeps(client, store, history, csvPath, threshold, &defaultIDGenerator{}, &defaultTimeSource{})
}

// NewServiceWithDeps creates a Service with custom dependencies for testing.
func NewServiceWithDeps(client vision.Client, store *csvstore.Store, history HistoryDB, csvPath string, threshold float64, idGen IDGenerator, timeSrc TimeSource) *Service {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &Service{
		client:      client,
		store:       store,
		history:     history,
		csvPath:     csvPath,
		threshold:   threshold,
		idGenerator: idGen,
		timeSource:  timeSrc,
	}
}

// ExtractSheet runs one image through the model, parses and validates the
// response, resolves headers, and returns the annotated preview table.
func (s *Service) ExtractSheet(ctx context.Context, req ExtractRequest) (*table.Table, error) {
	start := s.timeSource.Now()

	headerList := table.ParseHeaderList(req.Columns)
	spec := table.AutoDetected()
	if len(headerList) > 0 {
		spec = table.UserSpecified(headerList)
	}

	raw, err := s.client.Extract(ctx, vision.Request{
		Image:        req.Image,
		ContentType:  req.ContentType,
		Headers:      headerList,
		Instructions: req.Instructions,
		Model:        req.Model,
	})
	if err != nil {
		slog.Error("Model extraction failed",
			"filename", req.Filename,
			"model", req.Model,
			"file_size", len(req.Image),
			"error", err,
		)
		return nil, fmt.Errorf("extracting sheet: %w", err)
	}

	parsed, err := table.Parse(raw)
	if err != nil {
		slog.Error("Model response unusable", "filename", req.Filename, "model", req.Model, "error", err)
		return nil, err
	}

	resolved, err := table.ResolveHeaders(spec, parsed)
	if err != nil {
		return nil, err
	}

	threshold := s.threshold
	if req.Threshold != nil {
		threshold = *req.Threshold
	}
	annotated := table.Annotate(resolved, threshold)

	s.record(&ExtractionRecord{
		Kind:     KindExtract,
		Filename: req.Filename,
		Model:    req.Model,
		Columns:  len(annotated.Headers),
		Rows:     len(annotated.Rows),
		Duration: s.timeSource.Now().Sub(start).Milliseconds(),
	})

	return annotated, nil
}

// SaveTable merges reviewed rows into the CSV store and returns the number
// of rows written.
func (s *Service) SaveTable(t *table.Table) (int, error) {
	start := s.timeSource.Now()

	rows := make([][]string, len(t.Rows))
	for i, r := range t.Rows {
		rows[i] = r.Values()
	}

	n, err := s.store.Append(s.csvPath, t.Headers, rows)
	if err != nil {
		return 0, fmt.Errorf("saving table: %w", err)
	}

	s.record(&ExtractionRecord{
		Kind:     KindSave,
		Columns:  len(t.Headers),
		Rows:     n,
		Duration: s.timeSource.Now().Sub(start).Milliseconds(),
	})

	return n, nil
}

// ExportCSV returns the raw bytes of the CSV store.
func (s *Service) ExportCSV() ([]byte, error) {
	return s.store.Export(s.csvPath)
}

// Status probes the inference endpoint.
func (s *Service) Status(ctx context.Context) vision.Availability {
	return s.client.Probe(ctx)
}

// History returns the extraction history, newest first.
func (s *Service) History() ([]*ExtractionRecord, error) {
	records, err := s.history.ListRecords()
	if err != nil {
		return nil, fmt.Errorf("listing history: %w", err)
	}
	return records, nil
}

// record persists a history entry. History is an audit trail, not part of
// the extraction contract, so failures only warn.
func (s *Service) record(r *ExtractionRecord) {
	r.ID = s.idGenerator.Generate()
	r.CreatedAt = s.timeSource.Now()
	if err := s.history.SaveRecord(r); err != nil {
		slog.Warn("Failed to record history entry", "kind", r.Kind, "error", err)
	}
}
