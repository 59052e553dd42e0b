package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"schemadvisor/internal/advisor"
	"schemadvisor/internal/collector"
	"schemadvisor/internal/history"
)

type errBody struct {
	OK      bool   `json:"ok"`
	TraceID string `json:"traceId"`
	Error   struct {
		Message string `json:"message"`
	} `json:"error"`
}

const (
	localRemoteAddr    = "127.0.0.1:12345"
	healthPath         = "/api/v1/health"
	analyzePath        = "/api/v1/analyze"
	collectAnalyzePath = "/api/v1/collect/analyze"
	runsPath           = "/api/v1/runs"

	analyzeBody = `{"queries":[{"tables":["orders"],"operation":"read","executionCount":100}],` +
		`"tables":[{"name":"orders","columns":[{"name":"id","dataType":"bigint"}],"rowCount":10}]}`
	collectAnalyzeBody = `{"connection":{"host":"127.0.0.1","port":3306,"user":"test_user","password":"test_password","database":"shop"}}`
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func okAnalyze(
	_ context.Context,
	queries []advisor.QueryPattern,
	tables []advisor.TableMetadata,
) ([]advisor.Recommendation, advisor.RunMetrics, error) {
	return []advisor.Recommendation{
			{
				Rank: 1,
				Pattern: advisor.DetectedPattern{
					PatternType: advisor.PatternDualityView,
					Table:       "orders",
				},
				Cost: advisor.CostEstimate{ROI: 1.5, Priority: advisor.PriorityHigh},
			},
		}, advisor.RunMetrics{
			QueryPatternCount: len(queries),
			TableCount:        len(tables),
		}, nil
}

func newLocalRequest(method, target string, body io.Reader) *http.Request {
	r := httptest.NewRequest(method, target, body)
	r.RemoteAddr = localRemoteAddr
	return r
}

func newLocalJSONRequest(method, target, body string) *http.Request {
	r := newLocalRequest(method, target, strings.NewReader(body))
	r.Header.Set("Content-Type", "application/json")
	return r
}

func serveLocalJSON(handler http.Handler, method, target, body string) *httptest.ResponseRecorder {
	r := newLocalJSONRequest(method, target, body)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, r)
	return w
}

func assertStatus(t *testing.T, w *httptest.ResponseRecorder, want int) {
	t.Helper()
	if w.Code != want {
		t.Fatalf("unexpected status: %d, body %q", w.Code, w.Body.String())
	}
}

func assertErrContains(t *testing.T, w *httptest.ResponseRecorder, status int, wantSubstr string) {
	t.Helper()
	assertStatus(t, w, status)
	var body errBody
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("decode response failed: %v", err)
	}
	if body.OK {
		t.Fatalf("unexpected ok=true")
	}
	if body.TraceID == "" {
		t.Fatalf("missing traceId")
	}
	if !strings.Contains(body.Error.Message, wantSubstr) {
		t.Fatalf("unexpected error message: %q", body.Error.Message)
	}
}

func newTestServer(collect CollectFunc, store *history.Store) http.Handler {
	return NewServer(okAnalyze, collect, store, 0, discardLogger())
}

func stubCollect(result collector.Result, err error) CollectFunc {
	return func(context.Context, collector.ConnConfig, collector.Options, *slog.Logger) (collector.Result, error) {
		return result, err
	}
}

func TestServerRejectsNonLoopback(t *testing.T) {
	t.Parallel()

	handler := newTestServer(stubCollect(collector.Result{}, nil), nil)
	r := httptest.NewRequest(http.MethodGet, healthPath, nil)
	r.RemoteAddr = "203.0.113.9:55555"
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, r)
	assertErrContains(t, w, http.StatusForbidden, "loopback only")
}

func TestServerRejectsForeignOrigin(t *testing.T) {
	t.Parallel()

	handler := newTestServer(stubCollect(collector.Result{}, nil), nil)
	r := newLocalRequest(http.MethodGet, healthPath, nil)
	r.Header.Set("Origin", "https://evil.example.com")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, r)
	assertErrContains(t, w, http.StatusForbidden, "origin not allowed")
}

func TestHealthOK(t *testing.T) {
	t.Parallel()

	handler := newTestServer(stubCollect(collector.Result{}, nil), nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, newLocalRequest(http.MethodGet, healthPath, nil))
	assertStatus(t, w, http.StatusOK)
	if !strings.Contains(w.Body.String(), `"ok":true`) {
		t.Fatalf("unexpected body: %q", w.Body.String())
	}
}

func TestAnalyzeReturnsRecommendations(t *testing.T) {
	t.Parallel()

	handler := newTestServer(stubCollect(collector.Result{}, nil), nil)
	w := serveLocalJSON(handler, http.MethodPost, analyzePath, analyzeBody)
	assertStatus(t, w, http.StatusOK)
	if !strings.Contains(w.Body.String(), "DUALITY_VIEW") {
		t.Fatalf("expected recommendation payload, got %q", w.Body.String())
	}
}

func TestAnalyzeRequiresTables(t *testing.T) {
	t.Parallel()

	handler := newTestServer(stubCollect(collector.Result{}, nil), nil)
	w := serveLocalJSON(handler, http.MethodPost, analyzePath, `{"queries":[],"tables":[]}`)
	assertErrContains(t, w, http.StatusBadRequest, "tables are required")
}

func TestAnalyzeRejectsNonJSONContentType(t *testing.T) {
	t.Parallel()

	handler := newTestServer(stubCollect(collector.Result{}, nil), nil)
	r := newLocalRequest(http.MethodPost, analyzePath, strings.NewReader(analyzeBody))
	r.Header.Set("Content-Type", "text/plain")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, r)
	assertErrContains(t, w, http.StatusBadRequest, "Content-Type")
}

func TestAnalyzeMethodNotAllowed(t *testing.T) {
	t.Parallel()

	handler := newTestServer(stubCollect(collector.Result{}, nil), nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, newLocalRequest(http.MethodGet, analyzePath, nil))
	assertErrContains(t, w, http.StatusMethodNotAllowed, "method not allowed")
}

func TestAnalyzeReportsConfigErrorAsBadRequest(t *testing.T) {
	t.Parallel()

	failing := func(
		context.Context,
		[]advisor.QueryPattern,
		[]advisor.TableMetadata,
	) ([]advisor.Recommendation, advisor.RunMetrics, error) {
		return nil, advisor.RunMetrics{}, advisor.ErrCostModelConfiguration
	}
	handler := NewServer(failing, stubCollect(collector.Result{}, nil), nil, 0, discardLogger())
	w := serveLocalJSON(handler, http.MethodPost, analyzePath, analyzeBody)
	assertErrContains(t, w, http.StatusBadRequest, "cost model")
}

func TestCollectAnalyzeUsesCollectedSnapshot(t *testing.T) {
	t.Parallel()

	snapshot := collector.Result{
		Queries: []advisor.QueryPattern{
			{Tables: []string{"orders"}, Operation: advisor.OpRead, ExecutionCount: 100},
		},
		Tables: []advisor.TableMetadata{
			{Name: "orders", Columns: []advisor.ColumnMetadata{{Name: "id", DataType: "bigint"}}},
		},
		Warnings: []string{"index metadata unavailable"},
	}
	handler := newTestServer(stubCollect(snapshot, nil), nil)
	w := serveLocalJSON(handler, http.MethodPost, collectAnalyzePath, collectAnalyzeBody)
	assertStatus(t, w, http.StatusOK)
	if !strings.Contains(w.Body.String(), "index metadata unavailable") {
		t.Fatalf("expected collection warnings passed through, got %q", w.Body.String())
	}
}

func TestCollectAnalyzeReportsCollectorFailure(t *testing.T) {
	t.Parallel()

	handler := newTestServer(stubCollect(collector.Result{}, errors.New("dial tcp: connection refused")), nil)
	w := serveLocalJSON(handler, http.MethodPost, collectAnalyzePath, collectAnalyzeBody)
	assertErrContains(t, w, http.StatusBadGateway, "connection refused")
}

func TestCollectAnalyzeValidatesConnection(t *testing.T) {
	t.Parallel()

	handler := newTestServer(stubCollect(collector.Result{}, nil), nil)
	w := serveLocalJSON(handler, http.MethodPost, collectAnalyzePath, `{"connection":{"host":"","port":3306,"user":"u"}}`)
	assertErrContains(t, w, http.StatusBadRequest, "connection.host is required")
}

func TestRunsDisabledWithoutStore(t *testing.T) {
	t.Parallel()

	handler := newTestServer(stubCollect(collector.Result{}, nil), nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, newLocalRequest(http.MethodGet, runsPath, nil))
	assertErrContains(t, w, http.StatusNotFound, "run history is disabled")
}

func TestRunsRoundTripThroughStore(t *testing.T) {
	t.Parallel()

	store, err := history.Open(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer store.Close()

	handler := newTestServer(stubCollect(collector.Result{}, nil), store)

	w := serveLocalJSON(handler, http.MethodPost, analyzePath, analyzeBody)
	assertStatus(t, w, http.StatusOK)
	if !strings.Contains(w.Body.String(), `"runId":1`) {
		t.Fatalf("expected run id in analyze response, got %q", w.Body.String())
	}

	w = httptest.NewRecorder()
	handler.ServeHTTP(w, newLocalRequest(http.MethodGet, runsPath, nil))
	assertStatus(t, w, http.StatusOK)
	if !strings.Contains(w.Body.String(), `"recommendationCount":1`) {
		t.Fatalf("expected stored run summary, got %q", w.Body.String())
	}

	w = httptest.NewRecorder()
	handler.ServeHTTP(w, newLocalRequest(http.MethodGet, runsPath+"/1", nil))
	assertStatus(t, w, http.StatusOK)
	if !strings.Contains(w.Body.String(), "DUALITY_VIEW") {
		t.Fatalf("expected stored recommendations, got %q", w.Body.String())
	}
}

func TestRunByIDValidation(t *testing.T) {
	t.Parallel()

	store, err := history.Open(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer store.Close()

	handler := newTestServer(stubCollect(collector.Result{}, nil), store)

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, newLocalRequest(http.MethodGet, runsPath+"/abc", nil))
	assertErrContains(t, w, http.StatusBadRequest, "run id")

	w = httptest.NewRecorder()
	handler.ServeHTTP(w, newLocalRequest(http.MethodGet, runsPath+"/999", nil))
	assertErrContains(t, w, http.StatusNotFound, "run not found")
}

func TestCORSPreflightAllowedForLocalhost(t *testing.T) {
	t.Parallel()

	handler := newTestServer(stubCollect(collector.Result{}, nil), nil)
	r := newLocalRequest(http.MethodOptions, analyzePath, nil)
	r.Header.Set("Origin", "http://localhost:5173")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, r)
	assertStatus(t, w, http.StatusNoContent)
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:5173" {
		t.Fatalf("unexpected allow-origin header: %q", got)
	}
}
