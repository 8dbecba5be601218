/*
handlers_test.go - Tests for the HTTP API

Tests for:
- Batch apply, duplicates and per-payment errors
- Ledger listing and snapshots
- History and metrics endpoints
*/
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/rent-ledger/generic"
	"github.com/warp/rent-ledger/generic/store"
	"github.com/warp/rent-ledger/rent"
	"github.com/warp/rent-ledger/store/sqlite"
)

func newTestServer(t *testing.T) (*httptest.Server, *sqlite.Store) {
	t.Helper()
	db, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	retrier := generic.NewRetrier(generic.DefaultRetryConfig(), nil)
	retrier.Sleep = func(context.Context, time.Duration) error { return nil }
	engine, err := rent.NewEngine(rent.DefaultRules(), rent.WithRetrier(retrier))
	require.NoError(t, err)

	h := NewHandler(engine, db)
	h.Registry = db
	h.History = db
	h.Metrics = NewMetrics()
	retrier.OnRetry = h.Metrics.ObserveRetry

	srv := httptest.NewServer(NewRouter(h, []string{"http://localhost:5173"}))
	t.Cleanup(srv.Close)
	return srv, db
}

func postJSON(t *testing.T, url, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

const batch = `{"payments": [
	{"date_paid": "2025-09-02T10:00:00Z", "amount": 12000, "reference": "QJK1234ABC", "account_code": "a101", "payer": "JANE W"},
	{"date_paid": "2025-09-03T10:00:00Z", "amount": "KES 5,000", "reference": "QJK1234ABC", "account_code": "A101"},
	{"date_paid": "2025-09-03T10:00:00Z", "amount": 5000, "reference": "bad", "account_code": "A101"}
]}`

func TestApplyPayments(t *testing.T) {
	// GIVEN: A server over an empty database
	srv, _ := newTestServer(t)

	// WHEN: Posting a batch with a duplicate and an invalid reference
	resp := postJSON(t, srv.URL+"/api/payments", batch)

	// THEN: Each payment is reported separately
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decode[ApplyResponse](t, resp)
	assert.Equal(t, SummaryDTO{Applied: 1, Duplicates: 1, Rejected: 1}, body.Summary)
	require.Len(t, body.Outcomes, 3)

	first := body.Outcomes[0]
	assert.Equal(t, "applied", first.Status)
	assert.Equal(t, "A101 - AutoAdded", first.SheetTitle)
	assert.True(t, first.LedgerCreated)
	assert.Equal(t, 2, first.RowNumber)
	assert.Equal(t, "12000", first.PaidAfter)

	assert.Equal(t, "duplicate", body.Outcomes[1].Status)
	assert.Equal(t, "rejected", body.Outcomes[2].Status)
	assert.NotEmpty(t, body.Outcomes[2].Error)

	// AND: Re-posting marks the applied reference as a duplicate
	again := decode[ApplyResponse](t, postJSON(t, srv.URL+"/api/payments", batch))
	assert.Equal(t, 0, again.Summary.Applied)
	assert.Equal(t, 2, again.Summary.Duplicates)
}

func TestApplyPayments_BadRequests(t *testing.T) {
	srv, _ := newTestServer(t)

	tests := []struct {
		name string
		body string
	}{
		{"not json", "{"},
		{"empty batch", `{"payments": []}`},
		{"bad date", `{"payments": [{"date_paid": "yesterday", "amount": 1, "reference": "QJK1234ABC", "account_code": "A101"}]}`},
		{"bad amount", `{"payments": [{"date_paid": "2025-09-02", "amount": "lots", "reference": "QJK1234ABC", "account_code": "A101"}]}`},
		{"missing amount", `{"payments": [{"date_paid": "2025-09-02", "reference": "QJK1234ABC", "account_code": "A101"}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := postJSON(t, srv.URL+"/api/payments", tt.body)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
			assert.NotEmpty(t, decode[ErrorResponse](t, resp).Error)
		})
	}
}

func TestLedgers(t *testing.T) {
	// GIVEN: One applied payment
	srv, _ := newTestServer(t)
	postJSON(t, srv.URL+"/api/payments", batch)

	// WHEN: Listing ledgers
	resp, err := http.Get(srv.URL + "/api/ledgers")
	require.NoError(t, err)
	defer resp.Body.Close()

	// THEN: The created ledger is listed
	require.Equal(t, http.StatusOK, resp.StatusCode)
	ledgers := decode[[]LedgerDTO](t, resp)
	require.Len(t, ledgers, 1)
	assert.Equal(t, "A101 - AutoAdded", ledgers[0].Title)

	// AND: Its snapshot has the canonical header and the new row
	snap, err := http.Get(srv.URL + "/api/ledgers/A101%20-%20AutoAdded")
	require.NoError(t, err)
	defer snap.Body.Close()
	require.Equal(t, http.StatusOK, snap.StatusCode)
	dto := decode[SnapshotDTO](t, snap)
	assert.Equal(t, rent.CanonicalHeader(), dto.Header[:len(rent.CanonicalHeader())])
	require.Len(t, dto.Rows, 1)
	assert.Equal(t, "Sep-2025", dto.Rows[0][0])

	// AND: Unknown titles are 404
	missing, err := http.Get(srv.URL + "/api/ledgers/Z999")
	require.NoError(t, err)
	defer missing.Body.Close()
	assert.Equal(t, http.StatusNotFound, missing.StatusCode)
}

func TestHistory(t *testing.T) {
	srv, _ := newTestServer(t)
	postJSON(t, srv.URL+"/api/payments", batch)

	resp, err := http.Get(srv.URL + "/api/history?account=a101")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	history := decode[[]HistoryDTO](t, resp)
	require.Len(t, history, 1)
	assert.Equal(t, "QJK1234ABC", history[0].Reference)
	assert.Equal(t, "12000", history[0].Amount)
	assert.Equal(t, "JANE W", history[0].Payer)

	bad, err := http.Get(srv.URL + "/api/history?limit=-1")
	require.NoError(t, err)
	defer bad.Body.Close()
	assert.Equal(t, http.StatusBadRequest, bad.StatusCode)
}

func TestHistory_NotKept(t *testing.T) {
	engine, err := rent.NewEngine(rent.DefaultRules())
	require.NoError(t, err)
	h := NewHandler(engine, store.NewMemory())

	rec := httptest.NewRecorder()
	NewRouter(h, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/history", nil))

	assert.Equal(t, http.StatusNotImplemented, rec.Code)
}

func TestHealthAndMetrics(t *testing.T) {
	srv, _ := newTestServer(t)
	postJSON(t, srv.URL+"/api/payments", batch)

	health, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer health.Body.Close()
	assert.Equal(t, http.StatusOK, health.StatusCode)

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var sb bytes.Buffer
	_, err = sb.ReadFrom(resp.Body)
	require.NoError(t, err)
	text := sb.String()
	assert.Contains(t, text, `rentledger_payments_total{outcome="applied"} 1`)
	assert.Contains(t, text, `rentledger_payments_total{outcome="duplicate"} 1`)
	assert.Contains(t, text, "rentledger_payments_batch_seconds_count 1")
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusNotFound, statusFor(generic.ErrSheetNotFound))
	assert.Equal(t, http.StatusUnprocessableEntity, statusFor(&rent.LedgerError{Op: "load", Err: &rent.SchemaError{Sheet: "A101"}}))
	assert.Equal(t, http.StatusServiceUnavailable, statusFor(&generic.RateLimitError{Op: "read", Attempts: 7, Err: generic.ErrRateLimited}))
	assert.Equal(t, http.StatusBadRequest, statusFor(rent.ErrInvalidReference))
	assert.Equal(t, http.StatusServiceUnavailable, statusFor(context.DeadlineExceeded))
	assert.Equal(t, http.StatusInternalServerError, statusFor(errors.New("disk full")))
}

func TestGetLedger_DoesNotWrite(t *testing.T) {
	// GIVEN: A ledger missing Penalties and Comments
	engine, err := rent.NewEngine(rent.DefaultRules())
	require.NoError(t, err)
	wb := store.NewMemory()
	sheet := wb.Seed("A101", [][]string{
		{"Month", "Amount Due", "Amount paid", "Date paid", "REF Number", "Date due", "Prepayment/Arrears"},
		{"Sep-2025", "12000"},
	})
	h := NewHandler(engine, wb)

	// WHEN: Fetching its snapshot
	rec := httptest.NewRecorder()
	NewRouter(h, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/ledgers/A101", nil))

	// THEN: The response is normalized and the sheet was only read
	require.Equal(t, http.StatusOK, rec.Code)
	var dto SnapshotDTO
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&dto))
	assert.Equal(t, rent.CanonicalHeader(), dto.Header)
	_, writes := sheet.Calls()
	assert.Zero(t, writes)
	assert.Empty(t, sheet.Cell(1, 9))
}
