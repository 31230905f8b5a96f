package receipt

import (
	"encoding/json"
	"errors"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/zombor/ahorro/internal/media"
	"github.com/zombor/ahorro/internal/scanning"
)

// maxUploadSize bounds multipart uploads; phone photos are large
const maxUploadSize = int64(50 << 20)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// receiptResponse adds the computed effective total to a receipt
type receiptResponse struct {
	*Receipt
	EffectiveTotal *decimal.Decimal `json:"effectiveTotal,omitempty"`
}

func newReceiptResponse(r *Receipt) receiptResponse {
	resp := receiptResponse{Receipt: r}
	if total, ok := r.EffectiveTotal(); ok {
		resp.EffectiveTotal = &total
	}
	return resp
}

// setCORSHeaders sets CORS headers on a response
func setCORSHeaders(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
	w.Header().Set("Access-Control-Max-Age", "3600")
}

// writeJSON writes v with the given status
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Error encoding response", "error", err)
	}
}

// writeError writes a JSON error body
func writeError(w http.ResponseWriter, message string, status int) {
	setCORSHeaders(w)
	writeJSON(w, status, map[string]string{"error": message})
}

// statusFor maps service errors onto HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, fs.ErrNotExist):
		return http.StatusNotFound
	case errors.Is(err, ErrEmptyQuery):
		return http.StatusBadRequest
	case errors.Is(err, ErrStaleQuery), errors.Is(err, ErrFileNameConflict):
		return http.StatusConflict
	case errors.Is(err, scanning.ErrTransport),
		errors.Is(err, scanning.ErrUnexpectedResponse),
		errors.Is(err, scanning.ErrDecodingFailed):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// handleListReceipts returns the receipts matching ?q=
func (s *Server) handleListReceipts(w http.ResponseWriter, r *http.Request) {
	receipts := s.service.ListReceipts(r.URL.Query().Get("q"))

	resp := make([]receiptResponse, 0, len(receipts))
	for _, receipt := range receipts {
		resp = append(resp, newReceiptResponse(receipt))
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleUploadReceipt handles receipt upload
func (s *Server) handleUploadReceipt(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		slog.Error("Error parsing multipart form", "error", err)
		errorMsg := "Error parsing form"
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			errorMsg = "File is too large. Maximum size is 50MB."
		}
		writeError(w, errorMsg, http.StatusBadRequest)
		return
	}

	f, header, err := r.FormFile("file")
	if err != nil {
		slog.Error("Error getting file from form", "error", err)
		writeError(w, "No file provided", http.StatusBadRequest)
		return
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		slog.Error("Error reading file data", "error", err, "filename", header.Filename)
		writeError(w, "Error reading file. Please try again.", http.StatusInternalServerError)
		return
	}
	if len(data) == 0 {
		writeError(w, "File is empty", http.StatusBadRequest)
		return
	}

	kind := media.DetectKind(header.Header.Get("Content-Type"), header.Filename, data)
	if raw := r.FormValue("kind"); raw != "" {
		if kind, err = media.ParseKind(raw); err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}
	}

	location, err := parseLocation(r.FormValue("latitude"), r.FormValue("longitude"))
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	receipt, err := s.service.AddReceipt(r.Context(), Input{
		Data:         data,
		Kind:         kind,
		OriginalName: header.Filename,
		Hint:         r.FormValue("description"),
		Location:     location,
	})
	if err != nil {
		slog.Error("Error processing receipt", "filename", header.Filename, "error", err)
		writeError(w, err.Error(), statusFor(err))
		return
	}

	writeJSON(w, http.StatusCreated, newReceiptResponse(receipt))
}

// parseLocation reads the optional capture coordinates. Both or neither must be set.
func parseLocation(lat, lon string) (*Geolocation, error) {
	lat, lon = strings.TrimSpace(lat), strings.TrimSpace(lon)
	if lat == "" && lon == "" {
		return nil, nil
	}
	latitude, err := strconv.ParseFloat(lat, 64)
	if err != nil || latitude < -90 || latitude > 90 {
		return nil, errors.New("invalid latitude")
	}
	longitude, err := strconv.ParseFloat(lon, 64)
	if err != nil || longitude < -180 || longitude > 180 {
		return nil, errors.New("invalid longitude")
	}
	return &Geolocation{Latitude: latitude, Longitude: longitude}, nil
}

// handleGetReceipt returns a single receipt
func (s *Server) handleGetReceipt(w http.ResponseWriter, r *http.Request) {
	receipt, err := s.service.GetReceipt(r.PathValue("id"))
	if err != nil {
		writeError(w, "Receipt not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, newReceiptResponse(receipt))
}

// handleGetReceiptFile returns the stored media for a receipt
func (s *Server) handleGetReceiptFile(w http.ResponseWriter, r *http.Request) {
	data, contentType, err := s.service.ReceiptFile(r.PathValue("id"))
	if err != nil {
		writeError(w, "File not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.Write(data)
}

// handleGetReceiptThumbnail returns the JPEG thumbnail for a receipt
func (s *Server) handleGetReceiptThumbnail(w http.ResponseWriter, r *http.Request) {
	data, err := s.service.ReceiptThumbnail(r.PathValue("id"))
	if err != nil {
		writeError(w, "Thumbnail not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "image/jpeg")
	w.Write(data)
}

// handleDeleteReceipt deletes a receipt
func (s *Server) handleDeleteReceipt(w http.ResponseWriter, r *http.Request) {
	if err := s.service.DeleteReceipt(r.PathValue("id")); err != nil {
		slog.Error("Error deleting receipt", "id", r.PathValue("id"), "error", err)
		writeError(w, "Error deleting receipt", statusFor(err))
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// handleInsights returns the collection aggregates
func (s *Server) handleInsights(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.service.Insights())
}

// handleAsk answers a question about the receipts
func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Query string `json:"query"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	answer, err := s.service.Ask(r.Context(), req.Query)
	if err != nil {
		slog.Error("Error answering question", "error", err)
		writeError(w, err.Error(), statusFor(err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"answer": answer})
}

// handleCategories returns the category vocabulary in display order
func (s *Server) handleCategories(w http.ResponseWriter, r *http.Request) {
	type category struct {
		ID    Category `json:"id"`
		Label string   `json:"label"`
	}
	resp := make([]category, 0, len(Categories))
	for _, c := range Categories {
		resp = append(resp, category{ID: c, Label: c.Label()})
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleExport returns the receipts matching ?q= as a workbook
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	data, err := s.service.ExportXLSX(r.URL.Query().Get("q"))
	if err != nil {
		slog.Error("Error exporting receipts", "error", err)
		writeError(w, "Error exporting receipts", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="boletas.xlsx"`)
	w.Write(data)
}
