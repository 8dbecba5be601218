/*
handlers.go - HTTP API handlers for the rent ledger engine

PURPOSE:
  Exposes payment reconciliation via REST API. Handles HTTP
  request/response, JSON serialization, and delegates to the rent engine.

ENDPOINTS:
  Payments:
    POST   /api/payments             Apply an ordered batch of payments

  Ledgers:
    GET    /api/ledgers              List tenant ledgers
    GET    /api/ledgers/{title}      Normalized snapshot of one ledger (read-only)

  History:
    GET    /api/history?account=&limit=  Applied payments, newest first

  Operations:
    GET    /health                   Liveness
    GET    /metrics                  Prometheus metrics

ARCHITECTURE:
  Handler struct holds all dependencies:
  - Engine: business rules, logger and retrier
  - Workbook: the backend holding the ledgers
  - Registry / History: optional caller-side bookkeeping

CONCURRENCY:
  Batches are applied one at a time. Two concurrent writers on the same
  ledger would each compute from a stale snapshot.

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Malformed body or payment fields
  - 404: Ledger not found
  - 422: Ledger schema cannot be normalized
  - 501: History requested without a history store
  - 503: Backend still throttling after the retry budget
  - 500: Internal errors
  Per-payment failures inside a batch are reported in the 200 response.

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/warp/rent-ledger/generic"
	"github.com/warp/rent-ledger/rent"
	"github.com/warp/rent-ledger/store/sqlite"
)

// maximum request body for a payment batch
const maxBodyBytes = 1 << 20

const defaultHistoryLimit = 100

// HistoryReader lists applied payments.
type HistoryReader interface {
	History(ctx context.Context, accountCode string, limit int) ([]sqlite.HistoryRecord, error)
}

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Engine   *rent.Engine
	Workbook generic.Workbook

	// Optional
	Registry rent.Registry
	History  HistoryReader
	Metrics  *Metrics
	Logger   *zap.Logger

	mu sync.Mutex // serializes batches
}

// NewHandler creates a handler over engine and wb.
func NewHandler(engine *rent.Engine, wb generic.Workbook) *Handler {
	return &Handler{
		Engine:   engine,
		Workbook: wb,
		Logger:   zap.NewNop(),
	}
}

// =============================================================================
// PAYMENT ENDPOINTS
// =============================================================================

// ApplyPayments handles POST /api/payments
func (h *Handler) ApplyPayments(w http.ResponseWriter, r *http.Request) {
	var req ApplyRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON", err)
		return
	}
	if len(req.Payments) == 0 {
		writeError(w, http.StatusBadRequest, "No payments", nil)
		return
	}

	payments := make([]rent.Payment, len(req.Payments))
	for i, pr := range req.Payments {
		p, err := pr.ToPayment()
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid payment at index %d", i), err)
			return
		}
		payments[i] = p
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	start := time.Now()
	runner := rent.NewRunner(h.Engine, h.Workbook, h.Registry)
	outcomes, err := runner.Run(r.Context(), payments)
	if h.Metrics != nil {
		h.Metrics.ObserveBatch(outcomes, time.Since(start))
	}
	if err != nil {
		h.Logger.Error("payment batch stopped", zap.Int("applied", len(outcomes)), zap.Error(err))
		writeError(w, statusFor(err), "Batch stopped", err)
		return
	}

	s := rent.Summarize(outcomes)
	resp := ApplyResponse{
		Summary:  SummaryDTO{Applied: s.Applied, Duplicates: s.Duplicates, Rejected: s.Rejected, Failed: s.Failed},
		Outcomes: make([]OutcomeDTO, len(outcomes)),
	}
	for i, o := range outcomes {
		resp.Outcomes[i] = toOutcomeDTO(o)
	}
	h.Logger.Info("payment batch applied",
		zap.Int("applied", s.Applied),
		zap.Int("duplicates", s.Duplicates),
		zap.Int("rejected", s.Rejected),
		zap.Int("failed", s.Failed),
		zap.Duration("elapsed", time.Since(start)))
	writeJSON(w, http.StatusOK, resp)
}

// =============================================================================
// LEDGER ENDPOINTS
// =============================================================================

// ListLedgers handles GET /api/ledgers
func (h *Handler) ListLedgers(w http.ResponseWriter, r *http.Request) {
	sheets, err := h.directory().Ledgers(r.Context())
	if err != nil {
		writeError(w, statusFor(err), "Failed to list ledgers", err)
		return
	}

	dtos := make([]LedgerDTO, len(sheets))
	for i, s := range sheets {
		dtos[i] = LedgerDTO{ID: s.ID(), Title: s.Title()}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetLedger handles GET /api/ledgers/{title}
// Missing columns appear in the response but are not written to the sheet;
// the next payment run does that.
func (h *Handler) GetLedger(w http.ResponseWriter, r *http.Request) {
	title, err := url.PathUnescape(chi.URLParam(r, "title"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid ledger title", err)
		return
	}

	sheet, err := h.directory().ByTitle(r.Context(), title)
	if err != nil {
		writeError(w, statusFor(err), "Ledger not found", err)
		return
	}

	h.mu.Lock()
	header, rows, err := h.Engine.NewSession().Snapshot(r.Context(), sheet)
	h.mu.Unlock()
	if err != nil {
		writeError(w, statusFor(err), "Failed to read ledger", err)
		return
	}

	writeJSON(w, http.StatusOK, SnapshotDTO{
		ID:     sheet.ID(),
		Title:  sheet.Title(),
		Header: header,
		Rows:   rows,
	})
}

func (h *Handler) directory() *rent.Directory {
	return rent.NewDirectory(h.Workbook)
}

// =============================================================================
// HISTORY ENDPOINTS
// =============================================================================

// ListHistory handles GET /api/history
func (h *Handler) ListHistory(w http.ResponseWriter, r *http.Request) {
	if h.History == nil {
		writeError(w, http.StatusNotImplemented, "History is not kept by this backend", nil)
		return
	}

	limit := defaultHistoryLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "Invalid limit", err)
			return
		}
		limit = n
	}
	account := rent.NormalizeAccountCode(r.URL.Query().Get("account"))

	records, err := h.History.History(r.Context(), account, limit)
	if err != nil {
		writeError(w, statusFor(err), "Failed to list history", err)
		return
	}

	dtos := make([]HistoryDTO, len(records))
	for i, rec := range records {
		dtos[i] = toHistoryDTO(rec)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// Health handles GET /health
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// statusFor maps engine and backend errors to HTTP status codes.
func statusFor(err error) int {
	var schemaErr *rent.SchemaError
	switch {
	case generic.IsNotFound(err):
		return http.StatusNotFound
	case errors.As(err, &schemaErr):
		return http.StatusUnprocessableEntity
	case rent.IsBackpressure(err):
		return http.StatusServiceUnavailable
	case rent.IsClientError(err):
		return http.StatusBadRequest
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// outcomeLabel names an outcome for responses and metrics.
func outcomeLabel(err error) string {
	switch {
	case err == nil:
		return "applied"
	case errors.Is(err, rent.ErrAlreadyProcessed):
		return "duplicate"
	case rent.IsClientError(err):
		return "rejected"
	}
	return "failed"
}
