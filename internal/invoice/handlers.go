package invoice

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strings"

	"github.com/zombor/invoice-index/internal/export"
	"github.com/zombor/invoice-index/internal/extraction"
	"github.com/zombor/invoice-index/internal/source"
)

// maxUploadSize bounds multipart uploads and JSON bodies
const maxUploadSize = int64(50 << 20)

// corsError writes a plain error response with CORS headers set
func corsError(w http.ResponseWriter, message string, code int) {
	setCORSHeaders(w)
	http.Error(w, message, code)
}

// jsonError writes {"error": message}
func jsonError(w http.ResponseWriter, message string, code int) {
	setCORSHeaders(w)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{
		"error": message,
	})
}

func setCORSHeaders(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
	w.Header().Set("Access-Control-Max-Age", "3600")
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Error encoding response", "error", err)
	}
}

// handleExtract accepts either a multipart upload in the "file" field or
// a JSON document {"source": ..., "text": ...}
func (s *Server) handleExtract(w http.ResponseWriter, r *http.Request) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "multipart/form-data" {
		s.handleUpload(w, r)
		return
	}

	var doc extraction.RawDocument
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxUploadSize)).Decode(&doc); err != nil {
		jsonError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if doc.Source == "" {
		doc.Source = "request"
	}

	writeJSON(w, http.StatusOK, s.service.ExtractText(r.Context(), doc))
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		slog.Error("Error parsing multipart form", "error", err)
		jsonError(w, "Error parsing form", http.StatusBadRequest)
		return
	}

	f, header, err := r.FormFile("file")
	if err != nil {
		slog.Error("Error getting file from form", "error", err)
		errorMsg := "No file provided"
		if errors.Is(err, http.ErrMissingFile) {
			errorMsg = "No file was selected. Please choose a file to upload."
		}
		jsonError(w, errorMsg, http.StatusBadRequest)
		return
	}
	defer f.Close()

	if header.Size > maxUploadSize {
		jsonError(w, "File is too large. Maximum size is 50MB.", http.StatusBadRequest)
		return
	}

	data, err := io.ReadAll(f)
	if err != nil {
		slog.Error("Error reading file data", "error", err, "filename", header.Filename)
		jsonError(w, "Error reading file. Please try again.", http.StatusInternalServerError)
		return
	}

	contentType := strings.ToLower(strings.TrimSpace(header.Header.Get("Content-Type")))
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = source.ContentType(header.Filename, data)
	}

	ex, err := s.service.ExtractUpload(r.Context(), header.Filename, data, contentType)
	if err != nil {
		slog.Error("Error extracting upload", "filename", header.Filename, "error", err)
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}

	writeJSON(w, http.StatusCreated, ex)
}

func (s *Server) handleGetUpload(w http.ResponseWriter, r *http.Request) {
	data, contentType, err := s.service.GetUploadFile(r.PathValue("name"))
	if errors.Is(err, ErrNotFound) {
		corsError(w, "File not found", http.StatusNotFound)
		return
	}
	if err != nil {
		slog.Error("Failed to read upload", "name", r.PathValue("name"), "error", err)
		corsError(w, "Failed to read upload", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.Write(data)
}

// handleCreateRun processes {"documents": [{"source": ..., "text": ...}]}
func (s *Server) handleCreateRun(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Documents []extraction.RawDocument `json:"documents"`
	}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxUploadSize)).Decode(&req); err != nil {
		jsonError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	run, err := s.service.RunBatch(r.Context(), req.Documents)
	if err != nil {
		slog.Error("Error creating run", "error", err)
		code := http.StatusInternalServerError
		if errors.Is(err, ErrNoDocuments) {
			code = http.StatusBadRequest
		}
		jsonError(w, err.Error(), code)
		return
	}

	writeJSON(w, http.StatusCreated, run)
}

// handleListRuns returns run headers without their records
func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := s.service.ListRuns()
	if err != nil {
		slog.Error("Error listing runs", "error", err)
		corsError(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	headers := make([]Run, len(runs))
	for i, run := range runs {
		headers[i] = *run
		headers[i].Records = nil
	}
	writeJSON(w, http.StatusOK, headers)
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	run, ok := s.lookupRun(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, run)
}

// handleExportRun streams a run's records as CSV (default) or XLSX
func (s *Server) handleExportRun(w http.ResponseWriter, r *http.Request) {
	format := export.FormatCSV
	if name := r.URL.Query().Get("format"); name != "" {
		var err error
		if format, err = export.ParseFormat(name); err != nil {
			corsError(w, err.Error(), http.StatusBadRequest)
			return
		}
	}

	run, ok := s.lookupRun(w, r)
	if !ok {
		return
	}

	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="run-%s.%s"`, run.ID, format))
	if err := export.Write(w, format, run.Records); err != nil {
		slog.Error("Error exporting run", "id", run.ID, "error", err)
	}
}

func (s *Server) lookupRun(w http.ResponseWriter, r *http.Request) (*Run, bool) {
	id := r.PathValue("id")
	run, err := s.service.GetRun(id)
	if errors.Is(err, ErrNotFound) {
		corsError(w, "Run not found", http.StatusNotFound)
		return nil, false
	}
	if err != nil {
		slog.Error("Error getting run", "id", id, "error", err)
		corsError(w, "Internal server error", http.StatusInternalServerError)
		return nil, false
	}
	return run, true
}

func (s *Server) handleGetRecord(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	rec, err := s.service.GetRecord(key)
	if errors.Is(err, ErrNotFound) {
		corsError(w, "Record not found", http.StatusNotFound)
		return
	}
	if err != nil {
		slog.Error("Error getting record", "key", key, "error", err)
		corsError(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}
