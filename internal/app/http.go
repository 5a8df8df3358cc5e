package app

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"lens/api/internal/anchor"
	"lens/api/internal/export"
	"lens/api/internal/resolver"
	"lens/api/internal/search"
	"lens/api/internal/session"
	"lens/api/internal/snapshot"
	"lens/api/internal/store"
)

type HTTPServer struct {
	service    *Service
	corsOrigin string
}

func NewHTTPServer(service *Service, corsOrigin string) *HTTPServer {
	return &HTTPServer{service: service, corsOrigin: corsOrigin}
}

func (s *HTTPServer) Handler() http.Handler {
	return s.withMiddleware(http.HandlerFunc(s.handle))
}

func (s *HTTPServer) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		writeJSON(w, http.StatusNoContent, map[string]any{})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/health" {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/ready" {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		status := "ready"
		statusCode := http.StatusOK
		checks := map[string]any{
			"store": map[string]any{"status": "ok"},
		}

		if err := s.service.Ping(ctx); err != nil {
			status = "not_ready"
			statusCode = http.StatusServiceUnavailable
			checks["store"] = map[string]any{
				"status": "error",
				"error":  err.Error(),
			}
		}

		writeJSON(w, statusCode, map[string]any{
			"ok":     status == "ready",
			"status": status,
			"checks": checks,
		})
		return
	}

	parts := splitPath(r.URL.Path)
	if len(parts) < 2 || parts[0] != "api" {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
		return
	}

	switch parts[1] {
	case "anchors":
		if len(parts) == 3 && parts[2] == "capture" && r.Method == http.MethodPost {
			var body CaptureInput
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			captured, err := s.service.CaptureAnchor(r.Context(), body)
			if err != nil {
				writeServiceError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"anchor": captured})
			return
		}
	case "annotations":
		s.handleAnnotations(w, r, parts)
		return
	case "pages":
		s.handlePages(w, r, parts)
		return
	case "search":
		if len(parts) == 2 && r.Method == http.MethodGet {
			query := r.URL.Query()
			resp := s.service.Search(r.Context(), search.Query{
				Text:   strings.TrimSpace(query.Get("q")),
				URL:    strings.TrimSpace(query.Get("url")),
				Tag:    strings.TrimSpace(query.Get("tag")),
				Limit:  queryInt(r, "limit", 20),
				Offset: queryInt(r, "offset", 0),
			})
			writeJSON(w, http.StatusOK, resp)
			return
		}
	case "export":
		s.handleExport(w, r, parts)
		return
	case "snapshots":
		s.handleSnapshots(w, r, parts)
		return
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

func (s *HTTPServer) handleAnnotations(w http.ResponseWriter, r *http.Request, parts []string) {
	if len(parts) == 2 && r.Method == http.MethodGet {
		annotations, err := s.service.ListPage(r.Context(), strings.TrimSpace(r.URL.Query().Get("url")))
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"annotations": annotations})
		return
	}

	if len(parts) == 2 && r.Method == http.MethodPost {
		var body CreateAnnotationInput
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		created, err := s.service.CreateAnnotation(r.Context(), body)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"annotation": created})
		return
	}

	if len(parts) < 3 {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
		return
	}
	annotationID := parts[2]

	if len(parts) == 3 {
		switch r.Method {
		case http.MethodGet:
			annotation, err := s.service.GetAnnotation(r.Context(), annotationID)
			if err != nil {
				writeServiceError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"annotation": annotation})
			return
		case http.MethodPut:
			var body UpdateAnnotationInput
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			updated, err := s.service.UpdateAnnotation(r.Context(), annotationID, body)
			if err != nil {
				writeServiceError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"annotation": updated})
			return
		case http.MethodDelete:
			if err := s.service.DeleteAnnotation(r.Context(), annotationID); err != nil {
				writeServiceError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"ok": true})
			return
		}
	}

	if len(parts) == 4 && parts[3] == "replies" && r.Method == http.MethodPost {
		var body ReplyInput
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		updated, err := s.service.AddReply(r.Context(), annotationID, body)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"annotation": updated})
		return
	}

	if len(parts) == 5 && parts[3] == "replies" && r.Method == http.MethodDelete {
		updated, err := s.service.DeleteReply(r.Context(), annotationID, parts[4])
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"annotation": updated})
		return
	}

	if len(parts) == 4 && parts[3] == "resolve" && r.Method == http.MethodPost {
		var body PageInput
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		placement, err := s.service.ResolveOne(r.Context(), annotationID, body)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, placement)
		return
	}

	if len(parts) == 4 && parts[3] == "reanchor" && r.Method == http.MethodPost {
		started, err := s.service.StartReanchor(r.Context(), annotationID)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"session": started})
		return
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

func (s *HTTPServer) handlePages(w http.ResponseWriter, r *http.Request, parts []string) {
	pageURL := strings.TrimSpace(r.URL.Query().Get("url"))

	if len(parts) == 2 && r.Method == http.MethodDelete {
		removed, err := s.service.ClearPage(r.Context(), pageURL)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"removed": removed})
		return
	}

	if len(parts) == 3 && parts[2] == "resolve" && r.Method == http.MethodPost {
		var body PageInput
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		resolution, err := s.service.ResolvePage(r.Context(), body)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, resolution)
		return
	}

	if len(parts) == 3 && parts[2] == "stats" && r.Method == http.MethodGet {
		stats, err := s.service.PageStats(r.Context(), pageURL)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, stats)
		return
	}

	if len(parts) == 3 && parts[2] == "reanchor" && r.Method == http.MethodGet {
		active, err := s.service.ActiveReanchor(r.Context(), pageURL)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"session": active})
		return
	}

	if len(parts) == 4 && parts[2] == "reanchor" && parts[3] == "confirm" && r.Method == http.MethodPost {
		var body CaptureInput
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		if body.Page.URL == "" {
			body.Page.URL = pageURL
		}
		updated, err := s.service.ConfirmReanchor(r.Context(), body.Page.URL, body)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"annotation": updated})
		return
	}

	if len(parts) == 4 && parts[2] == "reanchor" && parts[3] == "cancel" && r.Method == http.MethodPost {
		cancelled, err := s.service.CancelReanchor(r.Context(), pageURL)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"session": cancelled})
		return
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

func (s *HTTPServer) handleExport(w http.ResponseWriter, r *http.Request, parts []string) {
	if len(parts) == 2 && r.Method == http.MethodGet {
		req := export.Request{
			Format: export.Format(strings.ToLower(strings.TrimSpace(r.URL.Query().Get("format")))),
			URL:    strings.TrimSpace(r.URL.Query().Get("url")),
		}
		if req.Format == "" {
			req.Format = export.FormatJSON
		}
		result, err := s.service.Export(r.Context(), req)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		w.Header().Set("Content-Type", result.MimeType)
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", result.Filename))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(result.Data)
		return
	}

	if len(parts) == 3 && parts[2] == "publish" && r.Method == http.MethodPost {
		var body struct {
			Format string `json:"format"`
			URL    string `json:"url"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		req := export.Request{Format: export.Format(strings.ToLower(strings.TrimSpace(body.Format))), URL: strings.TrimSpace(body.URL)}
		if req.Format == "" {
			req.Format = export.FormatJSON
		}
		result, err := s.service.PublishExport(r.Context(), req)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{
			"filename": result.Filename,
			"mimeType": result.MimeType,
			"location": result.Location,
		})
		return
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

func (s *HTTPServer) handleSnapshots(w http.ResponseWriter, r *http.Request, parts []string) {
	pageURL := strings.TrimSpace(r.URL.Query().Get("url"))

	if len(parts) == 2 && r.Method == http.MethodGet {
		versions, err := s.service.PageHistory(r.Context(), pageURL, queryInt(r, "limit", 50))
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"url": pageURL, "versions": versions})
		return
	}

	if len(parts) == 2 && r.Method == http.MethodPost {
		var body struct {
			URL     string          `json:"url"`
			Format  snapshot.Format `json:"format"`
			Body    string          `json:"body"`
			Author  string          `json:"author"`
			Message string          `json:"message"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		version, err := s.service.SnapshotPage(r.Context(), snapshot.Page{URL: strings.TrimSpace(body.URL), Format: body.Format, Body: body.Body}, body.Author, body.Message)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"version": version})
		return
	}

	if len(parts) == 3 && parts[2] == "content" && r.Method == http.MethodGet {
		page, version, err := s.service.PageSnapshot(r.Context(), pageURL, strings.TrimSpace(r.URL.Query().Get("version")))
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"page": page, "version": version})
		return
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

func (s *HTTPServer) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = randomRequestID()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		r = r.WithContext(ctx)

		started := time.Now()
		writer := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		setCORSHeaders(writer.Header(), s.corsOrigin)
		writer.Header().Set("X-Request-ID", requestID)

		next.ServeHTTP(writer, r)

		log.Printf(`{"request_id":"%s","method":"%s","path":"%s","status":%d,"duration_ms":%d}`,
			requestID,
			r.Method,
			r.URL.Path,
			writer.status,
			time.Since(started).Milliseconds(),
		)
	})
}

type requestIDKey struct{}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func randomRequestID() string {
	buf := make([]byte, 8)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

func setCORSHeaders(header http.Header, corsOrigin string) {
	header.Set("Access-Control-Allow-Origin", corsOrigin)
	header.Set("Access-Control-Allow-Headers", "Content-Type, X-Request-ID")
	header.Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS")
	header.Set("Access-Control-Expose-Headers", "Content-Disposition, X-Request-ID")
	header.Set("Cache-Control", "no-store")
	header.Set("Content-Type", "application/json")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	response := map[string]any{
		"code":  code,
		"error": message,
	}
	if details != nil {
		response["details"] = details
	}
	writeJSON(w, status, response)
}

func writeServiceError(w http.ResponseWriter, err error) {
	status, code, message, details := mapError(err)
	if status >= http.StatusInternalServerError {
		log.Printf("http: %v", err)
	}
	writeError(w, status, code, message, details)
}

func decodeBody(r *http.Request, target any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(target); err != nil {
		if errors.Is(err, http.ErrBodyReadAfterClose) {
			return nil
		}
		return fmt.Errorf("invalid JSON body")
	}
	return nil
}

func queryInt(r *http.Request, key string, fallback int) int {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil || parsed < 0 {
		return fallback
	}
	return parsed
}

func splitPath(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

func mapError(err error) (status int, code, message string, details any) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	}
	switch {
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound, "NOT_FOUND", "Not found", nil
	case errors.Is(err, store.ErrDuplicate):
		return http.StatusConflict, "DUPLICATE", err.Error(), nil
	case errors.Is(err, snapshot.ErrNoSnapshot):
		return http.StatusNotFound, "NO_SNAPSHOT", err.Error(), nil
	case errors.Is(err, snapshot.ErrUnknownVersion):
		return http.StatusNotFound, "UNKNOWN_VERSION", err.Error(), nil
	case errors.Is(err, anchor.ErrEmptySelection):
		return http.StatusUnprocessableEntity, "CAPTURE_FAILED", "Selection is empty", nil
	case errors.Is(err, anchor.ErrInvalidSelection):
		return http.StatusUnprocessableEntity, "INVALID_SELECTION", err.Error(), nil
	case errors.Is(err, anchor.ErrUnknownKind):
		return http.StatusUnprocessableEntity, "VALIDATION_ERROR", err.Error(), nil
	case errors.Is(err, resolver.ErrRenderFailed):
		return http.StatusConflict, "RENDER_FAILED", "Anchor no longer fits the page", nil
	case errors.Is(err, session.ErrSessionActive):
		return http.StatusConflict, "REANCHOR_ACTIVE", "A re-anchor is already in progress on this page", nil
	case errors.Is(err, session.ErrNoSession):
		return http.StatusNotFound, "NO_REANCHOR", "No re-anchor in progress on this page", nil
	case errors.Is(err, export.ErrUnsupportedFormat):
		return http.StatusUnprocessableEntity, "UNSUPPORTED_FORMAT", err.Error(), nil
	case errors.Is(err, export.ErrPDFDependencyMissing):
		return http.StatusServiceUnavailable, "PDF_UNAVAILABLE", "PDF export needs a Chromium binary", nil
	case errors.Is(err, export.ErrUploadUnavailable):
		return http.StatusServiceUnavailable, "UPLOAD_UNAVAILABLE", "Object storage is not configured", nil
	}
	return http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil
}
