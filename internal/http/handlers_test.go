package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/kjstillabower/flight-listing-service/internal/apperr"
	"github.com/kjstillabower/flight-listing-service/internal/degraded"
	"github.com/kjstillabower/flight-listing-service/internal/idle"
	"github.com/kjstillabower/flight-listing-service/internal/lifecycle"
	"github.com/kjstillabower/flight-listing-service/internal/models"
	"github.com/kjstillabower/flight-listing-service/internal/overload"
	"github.com/kjstillabower/flight-listing-service/internal/query"
	"github.com/kjstillabower/flight-listing-service/internal/service"
	"github.com/kjstillabower/flight-listing-service/internal/store"
)

const testPassword = "s3cret"

type fakeSyncer struct {
	err   error
	calls int
}

func (f *fakeSyncer) Flush(ctx context.Context) error {
	f.calls++
	return f.err
}

type testEnv struct {
	store   *store.Store
	syncer  *fakeSyncer
	handler *Handler
	router  http.Handler
}

func newTestEnv(t *testing.T, healthConfig *HealthConfig) *testEnv {
	t.Helper()
	degraded.Reset()
	idle.Reset()
	st, err := store.Open(context.Background(), store.Options{Path: filepath.Join(t.TempDir(), "flights.db")}, nil)
	if err != nil {
		t.Fatalf("store.Open() error = %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	syncer := &fakeSyncer{}
	logger := zap.NewNop()
	h := NewHandler(
		service.NewFlightService(st),
		service.NewIngestService(st, syncer, service.IngestOptions{Secret: testPassword}, logger),
		healthConfig, logger, 0,
	)
	return &testEnv{store: st, syncer: syncer, handler: h, router: NewRouter(h, RouterOptions{Logger: logger})}
}

func (e *testEnv) do(t *testing.T, method, target string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != nil {
		req = httptest.NewRequest(method, target, bytes.NewReader(body))
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func flightJSON(uuid, date, origin, airline string, price int, rain float64) map[string]any {
	m := map[string]any{
		"date": date, "origin": origin, "destination": "GOI", "airline": airline,
		"duration": "2h", "flightType": "direct", "price_inr": price,
		"originCountry": "India", "destinationCountry": "India",
		"link": "https://example.test/" + uuid, "rainProbability": rain, "freeMeal": true,
	}
	if uuid != "" {
		m["uuid"] = uuid
	}
	return m
}

func mustJSON(t *testing.T, v any) []byte {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	return b
}

func (e *testEnv) seed(t *testing.T, flights ...map[string]any) {
	t.Helper()
	w := e.do(t, "POST", "/api/flights?password="+testPassword, mustJSON(t, flights))
	if w.Code != http.StatusOK {
		t.Fatalf("seed status = %d, body %s", w.Code, w.Body)
	}
}

func decodePage(t *testing.T, w *httptest.ResponseRecorder) models.FlightPage {
	t.Helper()
	var page models.FlightPage
	if err := json.NewDecoder(w.Body).Decode(&page); err != nil {
		t.Fatalf("decode page: %v", err)
	}
	return page
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error struct {
			Code      string `json:"code"`
			RequestID string `json:"requestId"`
		} `json:"error"`
	}
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	if body.Error.RequestID == "" {
		t.Error("error envelope missing requestId")
	}
	return body.Error.Code
}

func TestHandler_PostThenGetFlights(t *testing.T) {
	env := newTestEnv(t, nil)
	w := env.do(t, "POST", "/api/flights?password="+testPassword, mustJSON(t, []map[string]any{
		flightJSON("b", "2024-06-02", "DEL", "Acme", 3000, 0.1),
		flightJSON("a", "2024-06-03", "BOM", "Globex", 2000, 0.6),
		flightJSON("c", "2024-06-01", "DEL", "Initech", 5000, 0.2),
	}))
	if w.Code != http.StatusOK {
		t.Fatalf("POST status = %d, body %s", w.Code, w.Body)
	}
	var ingest models.IngestResponse
	if err := json.NewDecoder(w.Body).Decode(&ingest); err != nil {
		t.Fatal(err)
	}
	if ingest.Status != "success" || ingest.Inserted != 3 || ingest.SyncError != "" {
		t.Errorf("POST response = %+v", ingest)
	}

	tests := []struct {
		name  string
		query string
		want  []string
	}{
		{"default price order", "", []string{"a", "b", "c"}},
		{"date order", "?sortBy=date", []string{"c", "b", "a"}},
		{"sort_by alias", "?sort_by=date", []string{"c", "b", "a"}},
		{"origin", "?origin=DEL", []string{"b", "c"}},
		{"max price", "?maxPrice=3000", []string{"a", "b"}},
		{"max rain", "?maxRain=0.2", []string{"b", "c"}},
		{"airline list trimmed", "?airline=%20Acme%20,,Initech%20", []string{"b", "c"}},
		{"empty params ignored", "?origin=&maxPrice=&airline=", []string{"a", "b", "c"}},
		{"combined", "?origin=DEL&maxRain=0.15&airline=Acme", []string{"b"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, "GET", "/api/flights"+tt.query, nil)
			if w.Code != http.StatusOK {
				t.Fatalf("GET status = %d", w.Code)
			}
			page := decodePage(t, w)
			var got []string
			for _, f := range page.Data {
				got = append(got, f.UUID)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("uuids mismatch (-want +got):\n%s", diff)
			}
			if page.TotalItems != int64(len(tt.want)) {
				t.Errorf("totalItems = %d, want %d", page.TotalItems, len(tt.want))
			}
		})
	}
}

// TestHandler_GetFlights_WireFormat verifies response keys: camelCase page
// metadata, snake_case record fields, explicit nulls for absent luggage.
func TestHandler_GetFlights_WireFormat(t *testing.T) {
	env := newTestEnv(t, nil)
	withLuggage := flightJSON("l", "2024-06-01", "DEL", "Acme", 1000, 0)
	withLuggage["minCheckedLuggagePrice"] = 500
	withLuggage["minCheckedLuggageWeight"] = "15kg"
	withLuggage["totalWithMinLuggage"] = 1500
	env.seed(t, withLuggage, flightJSON("n", "2024-06-01", "DEL", "Acme", 2000, 0))

	w := env.do(t, "GET", "/api/flights", nil)
	var raw map[string]json.RawMessage
	if err := json.NewDecoder(w.Body).Decode(&raw); err != nil {
		t.Fatal(err)
	}
	for _, key := range []string{"data", "page", "totalPages", "totalItems"} {
		if _, ok := raw[key]; !ok {
			t.Errorf("response missing %q", key)
		}
	}
	var rows []map[string]any
	if err := json.Unmarshal(raw["data"], &rows); err != nil {
		t.Fatal(err)
	}
	if rows[0]["price_inr"] != float64(1000) || rows[0]["min_checked_luggage_weight"] != "15kg" || rows[0]["flight_type"] != "direct" {
		t.Errorf("row 0 = %v", rows[0])
	}
	if v, ok := rows[1]["total_with_min_luggage"]; !ok || v != nil {
		t.Errorf("row 1 total_with_min_luggage = %v (present %v), want null", v, ok)
	}
}

func TestHandler_GetFlights_Pagination(t *testing.T) {
	env := newTestEnv(t, nil)
	flights := make([]map[string]any, 0, 25)
	for i := 0; i < 25; i++ {
		flights = append(flights, flightJSON(fmt.Sprintf("u%02d", i), "2024-06-01", "DEL", "Acme", 1000+i, 0))
	}
	env.seed(t, flights...)

	var all []string
	for p := 1; p <= 3; p++ {
		page := decodePage(t, env.do(t, "GET", fmt.Sprintf("/api/flights?page=%d", p), nil))
		if page.Page != p || page.TotalPages != 2 || page.TotalItems != 25 {
			t.Errorf("page %d meta = %d/%d/%d", p, page.Page, page.TotalPages, page.TotalItems)
		}
		for _, f := range page.Data {
			all = append(all, f.UUID)
		}
	}
	if len(all) != 25 || all[0] != "u00" || all[24] != "u24" {
		t.Errorf("concatenated pages = %v", all)
	}

	big := decodePage(t, env.do(t, "GET", "/api/flights?limit=50", nil))
	small := decodePage(t, env.do(t, "GET", "/api/flights?limit=20", nil))
	if diff := cmp.Diff(small, big); diff != "" {
		t.Errorf("limit=50 differs from limit=20 (-20 +50):\n%s", diff)
	}

	zero := decodePage(t, env.do(t, "GET", "/api/flights?page=0&limit=-3", nil))
	if zero.Page != 1 || len(zero.Data) != 20 {
		t.Errorf("page=0&limit=-3 → page %d, %d rows; want 1, 20", zero.Page, len(zero.Data))
	}
}

func TestHandler_GetFlights_BadParameters(t *testing.T) {
	env := newTestEnv(t, nil)
	for _, q := range []string{"page=abc", "limit=1.5", "maxPrice=cheap", "maxRain=high", "maxRain=NaN"} {
		t.Run(q, func(t *testing.T) {
			w := env.do(t, "GET", "/api/flights?"+q, nil)
			if w.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", w.Code)
			}
			if code := errorCode(t, w); code != "INVALID_PARAMETER" {
				t.Errorf("code = %q, want INVALID_PARAMETER", code)
			}
		})
	}
}

func TestHandler_GetFlights_StorageUnavailable(t *testing.T) {
	env := newTestEnv(t, nil)
	_ = env.store.Close()
	w := env.do(t, "GET", "/api/flights", nil)
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", w.Code)
	}
	if code := errorCode(t, w); code != "STORAGE_UNAVAILABLE" {
		t.Errorf("code = %q, want STORAGE_UNAVAILABLE", code)
	}
	if errs, _ := degraded.ErrorRate(time.Minute); errs != 1 {
		t.Errorf("recorded errors = %d, want 1", errs)
	}
}

// blockingStore waits for the request deadline and reports it without %w,
// the way a driver that flattens its cause would.
type blockingStore struct{}

func (blockingStore) Load(ctx context.Context, _ query.Filter, _ query.Sort, _, _ int) ([]models.Flight, error) {
	<-ctx.Done()
	return nil, fmt.Errorf("%w: query flights: %v", apperr.ErrStorageOperationFailed, ctx.Err())
}

func (blockingStore) Count(ctx context.Context, _ query.Filter) (int64, error) {
	<-ctx.Done()
	return 0, fmt.Errorf("%w: count flights: %v", apperr.ErrStorageOperationFailed, ctx.Err())
}

func (blockingStore) ReplaceAll(context.Context, []models.Flight) (int, error) {
	return 0, nil
}

func TestHandler_GetFlights_Timeout(t *testing.T) {
	degraded.Reset()
	logger := zap.NewNop()
	h := NewHandler(service.NewFlightService(blockingStore{}), nil, nil, logger, 0)
	router := NewRouter(h, RouterOptions{Logger: logger, RequestTimeout: 20 * time.Millisecond})

	req := httptest.NewRequest("GET", "/api/flights", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", w.Code)
	}
	if code := errorCode(t, w); code != "TIMEOUT" {
		t.Errorf("code = %q, want TIMEOUT", code)
	}
}

func TestHandler_PostFlights_Unauthorized(t *testing.T) {
	env := newTestEnv(t, nil)
	env.seed(t, flightJSON("a", "2024-06-01", "DEL", "Acme", 1000, 0))

	for _, target := range []string{"/api/flights", "/api/flights?password=nope"} {
		w := env.do(t, "POST", target, []byte(`[]`))
		if w.Code != http.StatusUnauthorized {
			t.Errorf("POST %s status = %d, want 401", target, w.Code)
		}
	}
	page := decodePage(t, env.do(t, "GET", "/api/flights", nil))
	if page.TotalItems != 1 {
		t.Errorf("totalItems = %d after rejected POSTs, want 1", page.TotalItems)
	}
	if env.syncer.calls != 1 {
		t.Errorf("Flush calls = %d, want 1", env.syncer.calls)
	}
}

func TestHandler_PostFlights_BadBodies(t *testing.T) {
	env := newTestEnv(t, nil)
	env.seed(t, flightJSON("a", "2024-06-01", "DEL", "Acme", 1000, 0))

	tests := []struct {
		name string
		body string
		code string
	}{
		{"not json", `{{`, "INVALID_JSON"},
		{"object", `{"uuid":"x"}`, "INVALID_JSON"},
		{"null", `null`, "INVALID_JSON"},
		{"trailing data", `[] []`, "INVALID_JSON"},
		{"wrong type", `[{"price_inr":"cheap"}]`, "INVALID_JSON"},
		{"missing field", string(mustJSON(t, []map[string]any{{"uuid": "x", "origin": "DEL"}})), "INVALID_PAYLOAD"},
		{"rain out of range", string(mustJSON(t, []map[string]any{flightJSON("x", "2024-06-01", "DEL", "Acme", 1, 1.5)})), "INVALID_PAYLOAD"},
		{"duplicate uuid", string(mustJSON(t, []map[string]any{
			flightJSON("d", "2024-06-01", "DEL", "Acme", 1, 0),
			flightJSON("d", "2024-06-01", "DEL", "Acme", 2, 0),
		})), "INVALID_RECORD"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, "POST", "/api/flights?password="+testPassword, []byte(tt.body))
			if w.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400 (body %s)", w.Code, w.Body)
			}
			if code := errorCode(t, w); code != tt.code {
				t.Errorf("code = %q, want %q", code, tt.code)
			}
		})
	}
	page := decodePage(t, env.do(t, "GET", "/api/flights", nil))
	if page.TotalItems != 1 || page.Data[0].UUID != "a" {
		t.Errorf("dataset changed by rejected POSTs: %+v", page)
	}
}

func TestHandler_PostFlights_BodyTooLarge(t *testing.T) {
	env := newTestEnv(t, nil)
	env.handler.maxBodyBytes = 64
	body := mustJSON(t, []map[string]any{flightJSON("a", "2024-06-01", "DEL", "Acme", 1000, 0)})
	w := env.do(t, "POST", "/api/flights?password="+testPassword, body)
	if w.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("status = %d, want 413", w.Code)
	}
}

// TestHandler_PostFlights_FlushWarning verifies a failed flush still returns
// 200 with a warning and keeps the local data.
func TestHandler_PostFlights_FlushWarning(t *testing.T) {
	env := newTestEnv(t, nil)
	env.syncer.err = errors.New("remote flush failed: bucket unreachable")
	w := env.do(t, "POST", "/api/flights?password="+testPassword,
		mustJSON(t, []map[string]any{flightJSON("", "2024-06-01", "DEL", "Acme", 1000, 0)}))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var resp models.IngestResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.Status != "warning" || resp.Inserted != 1 || !strings.Contains(resp.SyncError, "bucket unreachable") {
		t.Errorf("response = %+v", resp)
	}
	page := decodePage(t, env.do(t, "GET", "/api/flights", nil))
	if page.TotalItems != 1 || page.Data[0].UUID == "" {
		t.Errorf("local data after warning = %+v", page)
	}
}

func TestHandler_MethodNotAllowed(t *testing.T) {
	env := newTestEnv(t, nil)
	if w := env.do(t, "DELETE", "/api/flights", nil); w.Code != http.StatusMethodNotAllowed {
		t.Errorf("DELETE status = %d, want 405", w.Code)
	}
}

func TestHandler_GetHealth(t *testing.T) {
	env := newTestEnv(t, &HealthConfig{})
	env.handler.healthConfig.StoragePing = env.store.Ping
	w := env.do(t, "GET", "/health", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var body struct {
		Status string            `json:"status"`
		Checks map[string]string `json:"checks"`
	}
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body.Status != "healthy" || body.Checks["storage"] != "healthy" || body.Checks["remote"] != "disabled" {
		t.Errorf("health = %+v", body)
	}
}

func TestHandler_GetHealth_RemoteChecks(t *testing.T) {
	env := newTestEnv(t, &HealthConfig{
		RemotePing:         func(ctx context.Context) error { return errors.New("unreachable") },
		RemoteBreakerState: func() string { return "open" },
	})
	degraded.MarkRemoteStale(errors.New("upload failed"))
	defer degraded.Reset()

	w := env.do(t, "GET", "/health", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (remote problems do not fail health)", w.Code)
	}
	var body struct {
		Checks map[string]string `json:"checks"`
	}
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body.Checks["remote"] != "unhealthy" || body.Checks["remoteCircuit"] != "open" || !strings.HasPrefix(body.Checks["remoteSync"], "stale since") {
		t.Errorf("checks = %v", body.Checks)
	}
}

func TestHandler_GetHealth_StorageUnavailable(t *testing.T) {
	env := newTestEnv(t, &HealthConfig{})
	env.handler.healthConfig.StoragePing = env.store.Ping
	_ = env.store.Close()
	w := env.do(t, "GET", "/health", nil)
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", w.Code)
	}
}

func TestHandler_GetHealth_ShuttingDown(t *testing.T) {
	env := newTestEnv(t, nil)
	lifecycle.SetShuttingDown(true)
	defer lifecycle.SetShuttingDown(false)
	w := env.do(t, "GET", "/health", nil)
	if w.Code != http.StatusServiceUnavailable || !strings.Contains(w.Body.String(), "shutting-down") {
		t.Errorf("status = %d body %s, want 503 shutting-down", w.Code, w.Body)
	}
}

func TestHandler_GetHealth_Overloaded(t *testing.T) {
	overload.Reset()
	defer overload.Reset()
	env := newTestEnv(t, &HealthConfig{OverloadWindow: time.Minute, OverloadThresholdPct: 50, RateLimitRPS: 1})
	for i := 0; i < 40; i++ {
		overload.RecordDenial()
	}
	w := env.do(t, "GET", "/health", nil)
	if w.Code != http.StatusServiceUnavailable || !strings.Contains(w.Body.String(), "overloaded") {
		t.Errorf("status = %d body %s, want 503 overloaded", w.Code, w.Body)
	}
}

func TestHandler_GetHealth_Idle(t *testing.T) {
	env := newTestEnv(t, &HealthConfig{
		IdleWindow: time.Minute, IdleThresholdReqPerMin: 5,
		MinimumLifespan: time.Nanosecond, StartTime: time.Now().Add(-time.Hour),
	})
	w := env.do(t, "GET", "/health", nil)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"idle"`) {
		t.Errorf("status = %d body %s, want 200 idle", w.Code, w.Body)
	}
}

// TestHandler_GetHealth_LogsTransition verifies a status change is logged
// once and an unchanged status is not.
func TestHandler_GetHealth_LogsTransition(t *testing.T) {
	env := newTestEnv(t, &HealthConfig{DegradedWindow: time.Minute, DegradedErrorPct: 50})
	core, logs := observer.New(zap.DebugLevel)
	env.handler.logger = zap.New(core)

	degraded.RecordSuccess()
	degraded.RecordSuccess()
	req := httptest.NewRequest("GET", "/health", nil)
	w := httptest.NewRecorder()
	env.handler.GetHealth(w, req)
	if w.Code != http.StatusOK || logs.Len() != 0 {
		t.Fatalf("first call status = %d, logs = %d", w.Code, logs.Len())
	}

	degraded.RecordError()
	degraded.RecordError()
	w = httptest.NewRecorder()
	env.handler.GetHealth(w, req)
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("second call status = %d, want 503", w.Code)
	}
	entries := logs.FilterMessage("health status transition").All()
	if len(entries) != 1 {
		t.Fatalf("want 1 transition log, got %d", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["previous_status"] != "healthy" || fields["current_status"] != "degraded" || fields["reason"] != "error_rate_breach" {
		t.Errorf("transition fields = %v", fields)
	}

	env.handler.GetHealth(httptest.NewRecorder(), req)
	if logs.Len() != 1 {
		t.Errorf("unchanged status logged again; total logs = %d", logs.Len())
	}
}
