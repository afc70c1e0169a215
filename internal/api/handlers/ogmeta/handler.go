// Package ogmeta provides the HTTP handler for link metadata resolution.
package ogmeta

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"SaveBox/internal/api/handlers"
	"SaveBox/internal/core/ogmeta"
)

// MaxRequestBodyBytes caps the JSON body of a resolve request.
const MaxRequestBodyBytes = 64 * 1024

// User-facing error messages. The web app and share extension display these verbatim.
const (
	MsgURLRequired     = "URL이 필요합니다."
	MsgInvalidURL      = "유효하지 않은 URL입니다."
	MsgResolveFailed   = "메타데이터를 가져올 수 없습니다."
	MsgRequestTooLarge = "요청 본문이 너무 큽니다."
)

// Resolver is the subset of ogmeta.Service the handler needs.
type Resolver interface {
	Resolve(ctx context.Context, raw string) (*ogmeta.MetadataResult, error)
}

// CircuitReporter exposes per-host circuit breaker state.
type CircuitReporter interface {
	CircuitStats() map[string]ogmeta.CircuitStats
}

// Handler serves POST /api/og-meta.
type Handler struct {
	resolver Resolver
}

// NewHandler creates a handler backed by resolver.
func NewHandler(resolver Resolver) *Handler {
	return &Handler{resolver: resolver}
}

// HandleCircuitStats handles GET /admin/og-meta/circuits on the admin listener.
// It reports only hosts whose circuit is open or half-open, capped in number,
// or an empty object when the resolver does not track any.
func (h *Handler) HandleCircuitStats(w http.ResponseWriter, r *http.Request) {
	stats := map[string]ogmeta.CircuitStats{}
	if reporter, ok := h.resolver.(CircuitReporter); ok {
		stats = reporter.CircuitStats()
	}
	handlers.WriteJSON(w, http.StatusOK, stats)
}

type resolveRequest struct {
	URL string `json:"url"`
}

// HandleResolve handles POST /api/og-meta with a body of {"url": "..."}.
//
// Responses:
//   - 200 with the resolved MetadataResult, including when the page could not be fetched
//   - 400 when url is missing, blank or not a valid http(s) URL, or the body is not JSON
//   - 413 when the body exceeds MaxRequestBodyBytes
//   - 500 for anything unexpected
func (h *Handler) HandleResolve(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, MaxRequestBodyBytes)

	var req resolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var maxBytesErr *http.MaxBytesError
		switch {
		case errors.As(err, &maxBytesErr):
			handlers.WriteError(w, http.StatusRequestEntityTooLarge, MsgRequestTooLarge)
		case errors.Is(err, io.EOF):
			handlers.WriteError(w, http.StatusBadRequest, MsgURLRequired)
		default:
			handlers.WriteError(w, http.StatusBadRequest, MsgInvalidURL)
		}
		return
	}

	if strings.TrimSpace(req.URL) == "" {
		handlers.WriteError(w, http.StatusBadRequest, MsgURLRequired)
		return
	}

	result, err := h.resolver.Resolve(r.Context(), req.URL)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	handlers.WriteJSON(w, http.StatusOK, result)
}

// handleServiceError converts resolver errors to HTTP responses.
func handleServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ogmeta.ErrInvalidURL):
		handlers.WriteError(w, http.StatusBadRequest, MsgInvalidURL)
	default:
		slog.Error("[OG-META] unhandled resolver error",
			"error", err,
		)
		handlers.WriteError(w, http.StatusInternalServerError, MsgResolveFailed)
	}
}
