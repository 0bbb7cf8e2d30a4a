package ticket

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// maxUploadSize bounds multipart uploads; high-resolution phone photos of
// tickets run large.
const maxUploadSize = int64(50 << 20) // 50MB

// corsError writes an error response with CORS headers set.
func corsError(w http.ResponseWriter, message string, code int) {
	setCORSHeaders(w)
	http.Error(w, message, code)
}

// setCORSHeaders sets CORS headers on a response.
func setCORSHeaders(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
	w.Header().Set("Access-Control-Max-Age", "3600")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	setCORSHeaders(w)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Error encoding response", "error", err)
	}
}

// statusFor maps stable error codes to HTTP statuses.
func statusFor(code ErrorCode) int {
	switch code {
	case CodeInvalidImage:
		return http.StatusBadRequest
	case CodeNotFound:
		return http.StatusNotFound
	case CodeTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// scanOptions extracts the optional form fields shared by scan endpoints.
func scanOptions(r *http.Request) (providerHint, formatHint string, enableML *bool) {
	providerHint = r.FormValue("provider_hint")
	formatHint = r.FormValue("format_hint")
	if raw := r.FormValue("enable_ml"); raw != "" {
		v := raw == "true" || raw == "1"
		enableML = &v
	}
	return providerHint, formatHint, enableML
}

// readUpload reads one multipart file into memory with its content type.
func readUpload(f multipart.File, header *multipart.FileHeader) ([]byte, string, error) {
	data, err := io.ReadAll(f)
	if err != nil {
		return nil, "", err
	}

	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		switch strings.ToLower(filepath.Ext(header.Filename)) {
		case ".jpg", ".jpeg":
			contentType = "image/jpeg"
		case ".png":
			contentType = "image/png"
		case ".gif":
			contentType = "image/gif"
		case ".pdf":
			contentType = "application/pdf"
		case ".heic":
			contentType = "image/heic"
		case ".heif":
			contentType = "image/heif"
		default:
			contentType = "application/octet-stream"
		}
	}
	return data, strings.ToLower(strings.TrimSpace(contentType)), nil
}

// handleScan decodes one uploaded image.
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

	data, contentType, err := readUpload(f, header)
	if err != nil {
		slog.Error("Error reading file data", "error", err, "filename", header.Filename)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Error reading file"})
		return
	}

	providerHint, formatHint, enableML := scanOptions(r)
	result := s.service.Scan(r.Context(), ScanRequest{
		Data:         data,
		ContentType:  contentType,
		ProviderHint: providerHint,
		FormatHint:   formatHint,
		EnableML:     enableML,
	})

	status := http.StatusOK
	if result.Error != nil {
		status = statusFor(result.Error.Code)
	}
	writeJSON(w, status, result)
}

// handleScanBatch decodes several uploaded images; the response list matches
// upload order.
func (s *Server) handleScanBatch(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		slog.Error("Error parsing multipart form", "error", err)
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Error parsing form"})
		return
	}

	var files []*multipart.FileHeader
	if r.MultipartForm != nil {
		files = r.MultipartForm.File["files"]
	}
	if len(files) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "No files provided"})
		return
	}

	providerHint, formatHint, enableML := scanOptions(r)
	reqs := make([]ScanRequest, 0, len(files))
	for _, header := range files {
		f, err := header.Open()
		if err != nil {
			// An unreadable part still occupies its result slot.
			reqs = append(reqs, ScanRequest{})
			continue
		}
		data, contentType, err := readUpload(f, header)
		f.Close()
		if err != nil {
			reqs = append(reqs, ScanRequest{})
			continue
		}
		reqs = append(reqs, ScanRequest{
			Data:         data,
			ContentType:  contentType,
			ProviderHint: providerHint,
			FormatHint:   formatHint,
			EnableML:     enableML,
		})
	}

	results := s.service.ScanBatch(r.Context(), reqs)
	writeJSON(w, http.StatusOK, results)
}

// handleValidate re-validates a barcode value without re-decoding an image.
func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	format := r.PathValue("format")

	var req struct {
		BarcodeData string `json:"barcode_data"`
		Provider    string `json:"provider"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		corsError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	result, err := s.service.Validate(format, req.BarcodeData, req.Provider)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handleGetTicket returns a stored decode by barcode value.
func (s *Server) handleGetTicket(w http.ResponseWriter, r *http.Request) {
	barcode := r.PathValue("barcode")
	if barcode == "" {
		corsError(w, "Barcode required", http.StatusBadRequest)
		return
	}

	ticket, err := s.service.GetTicket(barcode)
	if err != nil {
		if errors.Is(err, ErrTicketNotFound) {
			corsError(w, "Ticket not found", http.StatusNotFound)
			return
		}
		slog.Error("Error getting ticket", "barcode", barcode, "error", err)
		corsError(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, ticket)
}

// handleQueryTickets returns stored decodes filtered by provider and time
// range (RFC 3339 from/to query params).
func (s *Server) handleQueryTickets(w http.ResponseWriter, r *http.Request) {
	providerID := r.URL.Query().Get("provider")

	var from, to time.Time
	if raw := r.URL.Query().Get("from"); raw != "" {
		t, err := parseTimeParam(raw)
		if err != nil {
			corsError(w, "Invalid from parameter", http.StatusBadRequest)
			return
		}
		from = t
	}
	if raw := r.URL.Query().Get("to"); raw != "" {
		t, err := parseTimeParam(raw)
		if err != nil {
			corsError(w, "Invalid to parameter", http.StatusBadRequest)
			return
		}
		to = t
	}

	tickets, err := s.service.QueryTickets(providerID, from, to)
	if err != nil {
		slog.Error("Error querying tickets", "error", err)
		corsError(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	if tickets == nil {
		tickets = []*StoredTicket{}
	}
	writeJSON(w, http.StatusOK, tickets)
}

// parseTimeParam accepts RFC 3339 or unix seconds.
func parseTimeParam(raw string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	secs, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	return time.Unix(secs, 0), nil
}
