package sheet

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/kmckee/sheetscribe/internal/csvstore"
	"github.com/kmckee/sheetscribe/internal/table"
	"github.com/kmckee/sheetscribe/internal/vision"
)

// maxUploadSize bounds multipart parsing; high-resolution phone photos of
// full sheets run large.
const maxUploadSize = int64(50 << 20) // 50MB

// setCORSHeaders sets CORS headers on a response
func setCORSHeaders(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
	w.Header().Set("Access-Control-Max-Age", "3600")
}

// writeJSON encodes v with CORS headers and the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	setCORSHeaders(w)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Error encoding response", "error", err)
	}
}

// writeError reports a failure as {"error": ...} with the status its kind
// maps to.
func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, statusCodeFor(err), map[string]string{"error": err.Error()})
}

// statusCodeFor maps the extraction error taxonomy onto HTTP statuses.
func statusCodeFor(err error) int {
	switch {
	case errors.Is(err, vision.ErrModelUnavailable):
		return http.StatusBadRequest
	case errors.Is(err, table.ErrMalformedResponse), errors.Is(err, table.ErrNoHeaders):
		return http.StatusUnprocessableEntity
	case errors.Is(err, csvstore.ErrHeaderMismatch):
		return http.StatusConflict
	case errors.Is(err, csvstore.ErrStoreNotFound):
		return http.StatusNotFound
	case errors.Is(err, vision.ErrUnreachable):
		return http.StatusBadGateway
	case errors.Is(err, vision.ErrTimeout):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// handleIndex serves the HTML interface
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	setCORSHeaders(w)
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(indexHTML)
}

// handleStatus reports inference endpoint reachability
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	avail := s.service.Status(r.Context())
	writeJSON(w, http.StatusOK, avail)
}

// handleModels lists the models the endpoint serves
func (s *Server) handleModels(w http.ResponseWriter, r *http.Request) {
	avail := s.service.Status(r.Context())
	models := avail.Models
	if models == nil {
		models = []vision.ModelInfo{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": avail.Status,
		"models": models,
		"count":  len(models),
	})
}

// handleExtract runs one uploaded image through the extraction pipeline and
// returns the annotated preview. Nothing is persisted to the CSV store.
func (s *Server) handleExtract(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		slog.Error("Error parsing multipart form", "error", err)
		msg := "Error parsing form"
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			msg = "File is too large. Maximum size is 50MB."
		}
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": msg})
		return
	}

	f, header, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "No file was selected. Please choose an image to upload."})
		return
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		slog.Error("Error reading file data", "error", err, "filename", header.Filename)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Error reading file. Please try again."})
		return
	}

	// An absent threshold field means the service default; an explicit 0 is a
	// valid value that flags nothing.
	var threshold *float64
	if v := r.FormValue("threshold"); v != "" {
		t, err := strconv.ParseFloat(v, 64)
		if err != nil || t < 0 || t > 1 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "threshold must be a number between 0 and 1"})
			return
		}
		threshold = &t
	}

	req := ExtractRequest{
		Image:        data,
		ContentType:  uploadContentType(header.Filename, header.Header.Get("Content-Type")),
		Filename:     header.Filename,
		Columns:      r.FormValue("columns"),
		Instructions: r.FormValue("instructions"),
		Model:        r.FormValue("model"),
		Threshold:    threshold,
	}

	preview, err := s.service.ExtractSheet(r.Context(), req)
	if err != nil {
		slog.Error("Error extracting sheet", "filename", header.Filename, "error", err)
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, preview)
}

// handleSave appends reviewed rows to the CSV store
func (s *Server) handleSave(w http.ResponseWriter, r *http.Request) {
	var t table.Table
	if err := json.NewDecoder(r.Body).Decode(&t); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
		return
	}
	if len(t.Headers) == 0 || len(t.Rows) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Nothing to save"})
		return
	}

	n, err := s.service.SaveTable(&t)
	if err != nil {
		slog.Error("Error saving table", "error", err)
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]int{"rows_written": n})
}

// handleExport downloads the accumulated CSV
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	data, err := s.service.ExportCSV()
	if err != nil {
		if errors.Is(err, csvstore.ErrStoreNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "No CSV file found"})
			return
		}
		slog.Error("Error exporting CSV", "error", err)
		writeError(w, err)
		return
	}

	setCORSHeaders(w)
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="results.csv"`)
	w.Write(data)
}

// handleHistory returns the extraction history
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	records, err := s.service.History()
	if err != nil {
		slog.Error("Error listing history", "error", err)
		writeError(w, err)
		return
	}
	if records == nil {
		records = []*ExtractionRecord{}
	}
	writeJSON(w, http.StatusOK, records)
}

// uploadContentType falls back to the filename extension when the browser
// sent no usable Content-Type.
func uploadContentType(filename, contentType string) string {
	contentType = strings.ToLower(strings.TrimSpace(contentType))
	if contentType != "" && contentType != "application/octet-stream" {
		return contentType
	}
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".gif":
		return "image/gif"
	case ".pdf":
		return "application/pdf"
	case ".heic":
		return "image/heic"
	case ".heif":
		return "image/heif"
	default:
		return "application/octet-stream"
	}
}
