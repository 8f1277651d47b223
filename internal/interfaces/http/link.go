package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"linkproxy/internal/domain/audit"
	"linkproxy/internal/domain/link"
	"linkproxy/internal/shared/logger"
	"linkproxy/internal/shared/middleware"
)

// MaxBodyBytes caps request bodies on the API routes.
const MaxBodyBytes = 1 << 20

// Auditor receives one event per handled API request.
type Auditor interface {
	Submit(e *audit.Event) error
}

// LinkHandler exposes the link facade over HTTP.
type LinkHandler struct {
	facade      *link.Facade
	auditor     Auditor
	fingerprint *audit.Fingerprinter
	log         zerolog.Logger
}

// NewLinkHandler creates a handler. auditor and fingerprint may be nil.
func NewLinkHandler(facade *link.Facade, auditor Auditor, fingerprint *audit.Fingerprinter) *LinkHandler {
	return &LinkHandler{
		facade:      facade,
		auditor:     auditor,
		fingerprint: fingerprint,
		log:         logger.For("http"),
	}
}

// HandleLinkToken handles POST /api/link-token. The body is not read.
func (h *LinkHandler) HandleLinkToken(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}
	start := time.Now()

	resp := h.facade.CreateLinkToken(r.Context(), link.LinkTokenRequest{})
	h.finish(w, r, audit.OpCreateLinkToken, "", start, resp)
}

// HandleExchangeToken handles POST /api/exchange-token.
func (h *LinkHandler) HandleExchangeToken(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}
	start := time.Now()

	var req link.ExchangeRequest
	resp, ok := decodeBody(w, r, &req)
	if ok {
		resp = h.facade.ExchangePublicToken(r.Context(), req)
	}
	h.finish(w, r, audit.OpExchangePublicToken, "", start, resp)
}

// HandleLinkTokenUpdate handles POST /api/link-token-update.
func (h *LinkHandler) HandleLinkTokenUpdate(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}
	start := time.Now()

	var req link.UpdateLinkTokenRequest
	resp, ok := decodeBody(w, r, &req)
	if ok {
		resp = h.facade.CreateUpdateLinkToken(r.Context(), req)
	}
	h.finish(w, r, audit.OpCreateUpdateLinkToken, req.AccessToken, start, resp)
}

// HandleTransactions handles POST /api/transactions.
func (h *LinkHandler) HandleTransactions(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}
	start := time.Now()

	var req link.TransactionsRequest
	resp, ok := decodeBody(w, r, &req)
	if ok {
		resp = h.facade.GetTransactions(r.Context(), req)
	}
	h.finish(w, r, audit.OpGetTransactions, req.AccessToken, start, resp)
}

func requirePost(w http.ResponseWriter, r *http.Request) bool {
	if r.Method == http.MethodPost {
		return true
	}
	w.Header().Set("Allow", http.MethodPost)
	http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	return false
}

// decodeBody reads a JSON object into v. An empty body decodes to the zero
// value so the facade reports the missing field.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) (link.Response, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, MaxBodyBytes)

	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return link.Response{}, true
		}
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return link.BadRequest("request body too large"), false
		}
		return link.BadRequest("invalid JSON body"), false
	}
	return link.Response{}, true
}

// finish writes resp and records the audit event.
func (h *LinkHandler) finish(w http.ResponseWriter, r *http.Request, op, accessToken string, start time.Time, resp link.Response) {
	writeResponse(w, resp)

	if h.auditor == nil {
		return
	}
	event := &audit.Event{
		RequestID:       middleware.GetRequestID(r.Context()),
		Operation:       op,
		Status:          resp.Status,
		Outcome:         string(resp.Outcome),
		ErrorCode:       resp.ErrorCode,
		ItemFingerprint: h.fingerprint.Fingerprint(accessToken),
		DurationMS:      time.Since(start).Milliseconds(),
	}
	if err := h.auditor.Submit(event); err != nil && !errors.Is(err, audit.ErrQueueFull) {
		h.log.Warn().Err(err).Str("operation", op).Msg("failed to submit audit event")
	}
}

func writeResponse(w http.ResponseWriter, resp link.Response) {
	w.Header().Set("Content-Type", resp.ContentType)
	w.WriteHeader(resp.Status)
	if _, err := w.Write(resp.Body); err != nil && !errors.Is(err, context.Canceled) {
		l := logger.For("http")
		l.Debug().Err(err).Msg("failed to write response")
	}
}
