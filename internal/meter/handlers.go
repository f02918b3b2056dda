package meter

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/abkmadni/smart-meter-ocr/internal/ocr"
)

// maxUploadSize bounds multipart uploads (photos and import files).
// 50MB handles high-resolution phone photos.
const maxUploadSize = int64(50 << 20)

// setCORSHeaders sets CORS headers on a response
func setCORSHeaders(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
	w.Header().Set("Access-Control-Max-Age", "3600")
}

// corsError writes an error response with CORS headers set
func corsError(w http.ResponseWriter, message string, code int) {
	setCORSHeaders(w)
	http.Error(w, message, code)
}

// writeJSON writes a JSON response body
func writeJSON(w http.ResponseWriter, code int, payload any) {
	setCORSHeaders(w)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		slog.Error("Error encoding response", "error", err)
	}
}

// writeServiceError maps the registry error taxonomy onto HTTP statuses
func writeServiceError(w http.ResponseWriter, err error) {
	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, ErrInvalidInput):
		code = http.StatusBadRequest
	case errors.Is(err, ErrDuplicateMeterNumber):
		code = http.StatusConflict
	case errors.Is(err, ErrNotFound):
		code = http.StatusNotFound
	}
	writeJSON(w, code, map[string]string{"error": err.Error()})
}

// meterRequest is the request body for creating and editing meters
type meterRequest struct {
	Name             string  `json:"name"`
	Number           string  `json:"number"`
	LastMonthReading float64 `json:"last_month_reading"`
}

// handleListMeters returns every meter with its latest reading and
// current-period consumption
func (s *Server) handleListMeters(w http.ResponseWriter, r *http.Request) {
	summaries, err := s.service.Summaries()
	if err != nil {
		slog.Error("Error listing meters", "error", err)
		corsError(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, summaries)
}

// handleAddMeter registers a new meter
func (s *Server) handleAddMeter(w http.ResponseWriter, r *http.Request) {
	var req meterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		corsError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	meter, err := s.service.AddMeter(req.Name, req.Number, req.LastMonthReading)
	if err != nil {
		slog.Error("Error adding meter", "number", req.Number, "error", err)
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, meter)
}

// handleUpdateMeter edits an existing meter
func (s *Server) handleUpdateMeter(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		corsError(w, "Meter ID required", http.StatusBadRequest)
		return
	}

	var req meterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		corsError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	meter, err := s.service.UpdateMeter(id, req.Name, req.Number, req.LastMonthReading)
	if err != nil {
		slog.Error("Error updating meter", "id", id, "error", err)
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, meter)
}

// handleDeleteMeter deletes a meter and all of its readings
func (s *Server) handleDeleteMeter(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		corsError(w, "Meter ID required", http.StatusBadRequest)
		return
	}
	if err := s.service.DeleteMeter(id); err != nil {
		slog.Error("Error deleting meter", "id", id, "error", err)
		corsError(w, "Error deleting meter", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// readingRequest is the request body for saving a reading. Value arrives as
// entered text so OCR candidates with leading zeros survive transport.
type readingRequest struct {
	MeterID string `json:"meter_id"`
	Value   string `json:"value"`
	Image   string `json:"image,omitempty"`    // base64 photo, optional
	TakenAt string `json:"taken_at,omitempty"` // RFC 3339, optional
}

// handleListReadings returns readings newest-first, capped by ?limit
func (s *Server) handleListReadings(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			corsError(w, "Invalid limit", http.StatusBadRequest)
			return
		}
		limit = parsed
	}

	readings, err := s.service.RecentReadings(limit)
	if err != nil {
		slog.Error("Error listing readings", "error", err)
		corsError(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, readings)
}

// handleAddReading saves a confirmed reading. This path is independent of
// the scan pipeline: a failed scan never blocks it.
func (s *Server) handleAddReading(w http.ResponseWriter, r *http.Request) {
	var req readingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		corsError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	value, err := strconv.ParseFloat(strings.TrimSpace(req.Value), 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "reading value must be numeric"})
		return
	}

	var image []byte
	if req.Image != "" {
		image, err = base64.StdEncoding.DecodeString(req.Image)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "image must be base64 encoded"})
			return
		}
	}

	var takenAt time.Time
	if req.TakenAt != "" {
		takenAt, err = time.Parse(time.RFC3339, req.TakenAt)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "taken_at must be RFC 3339"})
			return
		}
	}

	reading, err := s.service.AddReading(req.MeterID, value, image, "image/jpeg", takenAt)
	if err != nil {
		slog.Error("Error saving reading", "meter_id", req.MeterID, "error", err)
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, reading)
}

// handleReadingImage returns the stored photo for a reading
func (s *Server) handleReadingImage(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		corsError(w, "Reading ID required", http.StatusBadRequest)
		return
	}
	data, contentType, err := s.service.ReadingImage(id)
	if err != nil {
		corsError(w, "Photo not found", http.StatusNotFound)
		return
	}
	setCORSHeaders(w)
	w.Header().Set("Content-Type", contentType)
	w.Write(data)
}

// scanResponse carries the outcome of a capture attempt. ManualEntry set
// means the client should leave the field empty and let the user type the
// value; the save path stays open either way.
type scanResponse struct {
	Reading     string `json:"reading,omitempty"`
	ManualEntry bool   `json:"manual_entry,omitempty"`
	Error       string `json:"error,omitempty"`
}

// handleScan accepts a meter photo and responds with the extracted
// candidate reading
func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		slog.Error("Error parsing multipart form", "error", err)
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Error parsing form"})
		return
	}

	f, header, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "No file provided"})
		return
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		slog.Error("Error reading uploaded photo", "error", err, "filename", header.Filename)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Error reading file"})
		return
	}

	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = contentTypeForUpload(header.Filename)
	}

	results := make(chan ocr.Result, 1)
	s.session.Capture(r.Context(), data, contentType, func(res ocr.Result) {
		results <- res
	})

	select {
	case res := <-results:
		if errors.Is(res.Err, ocr.ErrSuperseded) {
			writeJSON(w, http.StatusConflict, scanResponse{
				ManualEntry: true,
				Error:       "scan superseded by a newer capture",
			})
			return
		}
		if res.Err != nil {
			slog.Warn("Scan failed, falling back to manual entry", "error", res.Err)
			writeJSON(w, http.StatusOK, scanResponse{
				ManualEntry: true,
				Error:       "Failed to read meter. Please enter value manually.",
			})
			return
		}
		writeJSON(w, http.StatusOK, scanResponse{Reading: res.Value})
	case <-r.Context().Done():
		writeJSON(w, http.StatusRequestTimeout, scanResponse{
			ManualEntry: true,
			Error:       "scan cancelled",
		})
	}
}

// handleExport streams the reading history as a CSV attachment
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	setCORSHeaders(w)
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="meter_readings.csv"`)
	if err := s.service.ExportCSV(w); err != nil {
		slog.Error("Error exporting readings", "error", err)
	}
}

// handleImport merges an uploaded CSV into the registry
func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Error parsing form"})
		return
	}

	f, _, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "No file provided"})
		return
	}
	defer f.Close()

	// Whole-file buffering: the import is staged in one pass
	data, err := io.ReadAll(f)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Error reading file"})
		return
	}

	result, err := s.service.ImportCSV(data)
	if err != nil {
		slog.Error("Error importing readings", "error", err)
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Error importing file. Please check the format."})
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// settingsPayload is the settings document exchanged with clients
type settingsPayload struct {
	ResetDay int `json:"reset_day"`
}

// handleGetSettings returns the monthly reset day
func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	day, err := s.service.ResetDay()
	if err != nil {
		slog.Error("Error loading settings", "error", err)
		corsError(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, settingsPayload{ResetDay: day})
}

// handleUpdateSettings stores the monthly reset day
func (s *Server) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	var req settingsPayload
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		corsError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if err := s.service.SetResetDay(req.ResetDay); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, settingsPayload{ResetDay: req.ResetDay})
}

// contentTypeForUpload infers a MIME type from the uploaded filename
func contentTypeForUpload(filename string) string {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
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
