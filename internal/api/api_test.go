package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"

	"vol-core/internal/gateway"
	"vol-core/internal/monitor"
	"vol-core/internal/quote"
	"vol-core/pkg/broker"
	"vol-core/pkg/db"
)

const testSecret = "test-secret"

type fakeHistorical struct{}

func (fakeHistorical) SessionID() string   { return "session-1" }
func (fakeHistorical) PendingIDs() []int64 { return []int64{3, 7} }

type placed struct {
	monitor gateway.Monitor
	action  broker.Action
	qty     float64
	price   float64
}

type fakeLive struct {
	mu     sync.Mutex
	ready  bool
	nextID int64
	placed []placed
}

func (f *fakeLive) IsReady() bool          { return f.ready }
func (f *fakeLive) Subscriptions() []int64 { return []int64{1} }
func (f *fakeLive) PlaceOrder(_ context.Context, m gateway.Monitor, action broker.Action, qty, price float64) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.ready {
		return 0, gateway.ErrNotReady
	}
	f.placed = append(f.placed, placed{m, action, qty, price})
	f.nextID++
	return f.nextID, nil
}

type fakeJournal struct {
	mu     sync.Mutex
	orders []db.Order
}

func (f *fakeJournal) Record(_ context.Context, o db.Order) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.orders = append(f.orders, o)
	return nil
}

func (f *fakeJournal) Orders(_ context.Context, limit int) ([]db.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if limit > len(f.orders) {
		limit = len(f.orders)
	}
	return append([]db.Order(nil), f.orders[:limit]...), nil
}

type fakeSeries map[string][]db.Point

func (f fakeSeries) LastStoredDate(_ context.Context, kind broker.DataKind, ticker string) (time.Time, bool, error) {
	pts := f[string(kind)+"/"+ticker]
	if len(pts) == 0 {
		return time.Time{}, false, nil
	}
	return pts[len(pts)-1].Date, true, nil
}

func (f fakeSeries) Points(_ context.Context, kind broker.DataKind, ticker string, since time.Time) ([]db.Point, error) {
	var out []db.Point
	for _, p := range f[string(kind)+"/"+ticker] {
		if !p.Date.Before(since) {
			out = append(out, p)
		}
	}
	return out, nil
}

type testEnv struct {
	server  *Server
	live    *fakeLive
	journal *fakeJournal
	metrics *monitor.Metrics
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	start := time.Date(2024, 3, 11, 0, 0, 0, 0, time.UTC)
	series := fakeSeries{}
	for i, v := range []float64{0.20, 0.30, 0.10, 0.25} {
		series["IV/SPY"] = append(series["IV/SPY"], db.Point{
			Kind: broker.KindImpliedVol, Ticker: "SPY", Date: start.AddDate(0, 0, i), Value: v,
		})
	}

	reg := prometheus.NewRegistry()
	env := &testEnv{
		live:    &fakeLive{ready: true, nextID: 99},
		journal: &fakeJournal{},
		metrics: monitor.NewMetrics(reg),
	}
	env.server = NewServer(Deps{
		Historical: fakeHistorical{},
		Live:       env.live,
		Book:       quote.NewBook([]quote.MonitorConfig{{Symbol: "SPY"}}, false),
		Series:     series,
		Journal:    env.journal,
		Metrics:    env.metrics,
		Gatherer:   reg,
		Meta:       SystemMeta{Mode: "live", UseMockFeed: true, Version: "test"},
	}, testSecret)
	return env
}

func (e *testEnv) do(t *testing.T, method, path, token string, payload any, out any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if payload != nil {
		if err := json.NewEncoder(&buf).Encode(payload); err != nil {
			t.Fatalf("encode payload: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.server.Router.ServeHTTP(rec, req)
	if out != nil {
		if err := json.Unmarshal(rec.Body.Bytes(), out); err != nil {
			t.Fatalf("decode %s %s: %v (%s)", method, path, err, rec.Body.String())
		}
	}
	return rec
}

func testToken(t *testing.T) string {
	t.Helper()
	token, err := IssueToken("operator", testSecret, time.Hour)
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}
	return token
}

func TestHealthAndRequestID(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodGet, "/health", "", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d, expected 200", rec.Code)
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Fatal("expected a generated X-Request-ID")
	}
	if env.metrics.HTTPLatency.Stats().Count != 1 {
		t.Fatalf("http latency count=%d, expected 1", env.metrics.HTTPLatency.Stats().Count)
	}
}

func TestStatus(t *testing.T) {
	env := newTestEnv(t)
	var resp struct {
		Historical struct {
			SessionID  string  `json:"session_id"`
			Pending    int     `json:"pending"`
			PendingIDs []int64 `json:"pending_ids"`
		} `json:"historical"`
		Live struct {
			Ready         bool    `json:"ready"`
			Subscriptions []int64 `json:"subscriptions"`
		} `json:"live"`
		Meta SystemMeta `json:"meta"`
	}
	rec := env.do(t, http.MethodGet, "/api/status", "", nil, &resp)
	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d", rec.Code)
	}
	if resp.Historical.SessionID != "session-1" || resp.Historical.Pending != 2 {
		t.Fatalf("unexpected historical status %+v", resp.Historical)
	}
	if !resp.Live.Ready || len(resp.Live.Subscriptions) != 1 {
		t.Fatalf("unexpected live status %+v", resp.Live)
	}
	if resp.Meta.Mode != "live" {
		t.Fatalf("meta.mode=%q", resp.Meta.Mode)
	}
}

func TestSeries(t *testing.T) {
	env := newTestEnv(t)

	var resp struct {
		Last   string          `json:"last"`
		Points []pointResponse `json:"points"`
	}
	rec := env.do(t, http.MethodGet, "/api/series/iv/spy?days=2", "", nil, &resp)
	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rec.Code, rec.Body.String())
	}
	if resp.Last != "2024-03-14" || len(resp.Points) != 2 || resp.Points[0].Date != "2024-03-13" {
		t.Fatalf("unexpected series %+v", resp)
	}

	tests := []struct {
		path string
		code int
	}{
		{"/api/series/iv/QQQ", http.StatusNotFound},
		{"/api/series/bogus/SPY", http.StatusBadRequest},
		{"/api/series/iv/SPY?days=abc", http.StatusBadRequest},
	}
	for _, tt := range tests {
		if rec := env.do(t, http.MethodGet, tt.path, "", nil, nil); rec.Code != tt.code {
			t.Fatalf("GET %s status=%d, expected %d", tt.path, rec.Code, tt.code)
		}
	}
}

func TestVolSummary(t *testing.T) {
	env := newTestEnv(t)
	var resp struct {
		Summary struct {
			Current    float64 `json:"current"`
			MinMaxRank int     `json:"min_max_rank"`
		} `json:"summary"`
	}
	rec := env.do(t, http.MethodGet, "/api/analytics/vol/IV/SPY", "", nil, &resp)
	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rec.Code, rec.Body.String())
	}
	// 25 between 10 and 30.
	if resp.Summary.MinMaxRank != 75 {
		t.Fatalf("min_max_rank=%d, expected 75", resp.Summary.MinMaxRank)
	}
	if rec := env.do(t, http.MethodGet, "/api/analytics/vol/STOCK/SPY", "", nil, nil); rec.Code != http.StatusBadRequest {
		t.Fatalf("STOCK vol summary status=%d, expected 400", rec.Code)
	}
	if rec := env.do(t, http.MethodGet, "/api/analytics/stock/SPY", "", nil, nil); rec.Code != http.StatusNotFound {
		t.Fatalf("stock stats without closes status=%d, expected 404", rec.Code)
	}
}

func TestMixedVolAndSizing(t *testing.T) {
	env := newTestEnv(t)
	series := env.server.Deps.Series.(fakeSeries)
	start := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 25; i++ {
		d := start.AddDate(0, 0, i)
		series["IV/IWM"] = append(series["IV/IWM"], db.Point{Kind: broker.KindImpliedVol, Ticker: "IWM", Date: d, Value: 0.25})
		series["HV/IWM"] = append(series["HV/IWM"], db.Point{Kind: broker.KindHistoricalVol, Ticker: "IWM", Date: d, Value: 0.20})
	}
	for i, v := range []float64{100, 110, 99} {
		series["STOCK/IWM"] = append(series["STOCK/IWM"], db.Point{Kind: broker.KindPrice, Ticker: "IWM", Date: start.AddDate(0, 0, i), Value: v})
	}

	var mixed struct {
		Mixed struct {
			PositiveDifferenceRatio float64 `json:"positive_difference_ratio"`
			Differences             int     `json:"differences"`
		} `json:"mixed"`
	}
	rec := env.do(t, http.MethodGet, "/api/analytics/mixed/iwm?days=25", "", nil, &mixed)
	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rec.Code, rec.Body.String())
	}
	if mixed.Mixed.Differences != 5 || mixed.Mixed.PositiveDifferenceRatio != 100 {
		t.Fatalf("unexpected mixed stats %+v", mixed.Mixed)
	}
	if rec := env.do(t, http.MethodGet, "/api/analytics/mixed/SPY", "", nil, nil); rec.Code != http.StatusNotFound {
		t.Fatalf("mixed without HV status=%d, expected 404", rec.Code)
	}

	var stock struct {
		Sizing struct {
			Price       float64 `json:"price"`
			Directional float64 `json:"directional"`
		} `json:"sizing"`
	}
	rec = env.do(t, http.MethodGet, "/api/analytics/stock/IWM", "", nil, &stock)
	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rec.Code, rec.Body.String())
	}
	if stock.Sizing.Price != 99 || stock.Sizing.Directional <= 0 {
		t.Fatalf("unexpected sizing %+v", stock.Sizing)
	}
}

func TestOrdersRequireToken(t *testing.T) {
	env := newTestEnv(t)
	body := map[string]any{"symbol": "SPY", "action": "BUY", "qty": 10, "price": 500}

	var resp struct {
		Code string `json:"code"`
	}
	if rec := env.do(t, http.MethodPost, "/api/orders", "", body, &resp); rec.Code != http.StatusUnauthorized || resp.Code != "MISSING_TOKEN" {
		t.Fatalf("status=%d code=%s, expected 401 MISSING_TOKEN", rec.Code, resp.Code)
	}
	if rec := env.do(t, http.MethodPost, "/api/orders", "garbage", body, &resp); rec.Code != http.StatusUnauthorized || resp.Code != "INVALID_TOKEN" {
		t.Fatalf("status=%d code=%s, expected 401 INVALID_TOKEN", rec.Code, resp.Code)
	}
	other, _ := IssueToken("operator", "other-secret", time.Hour)
	if rec := env.do(t, http.MethodPost, "/api/orders", other, body, nil); rec.Code != http.StatusUnauthorized {
		t.Fatalf("foreign token status=%d, expected 401", rec.Code)
	}
	if len(env.live.placed) != 0 {
		t.Fatalf("orders placed without auth: %d", len(env.live.placed))
	}
}

func TestCreateOrder(t *testing.T) {
	env := newTestEnv(t)
	token := testToken(t)

	var resp struct {
		OrderID int64  `json:"order_id"`
		User    string `json:"user"`
	}
	rec := env.do(t, http.MethodPost, "/api/orders", token,
		map[string]any{"symbol": "spy", "action": "BUY", "qty": 10, "price": 500.5}, &resp)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status=%d body=%s", rec.Code, rec.Body.String())
	}
	if resp.OrderID != 100 || resp.User != "operator" {
		t.Fatalf("unexpected response %+v", resp)
	}

	if len(env.live.placed) != 1 {
		t.Fatalf("placed=%d, expected 1", len(env.live.placed))
	}
	p := env.live.placed[0]
	if p.monitor.Contract().Symbol != "SPY" || p.action != broker.ActionBuy || p.qty != 10 || p.price != 500.5 {
		t.Fatalf("unexpected placement %+v", p)
	}
	if len(env.journal.orders) != 1 || env.journal.orders[0].OrderID != 100 {
		t.Fatalf("journal=%+v", env.journal.orders)
	}

	var listed []orderResponse
	if rec := env.do(t, http.MethodGet, "/api/orders", token, nil, &listed); rec.Code != http.StatusOK || len(listed) != 1 {
		t.Fatalf("list status=%d orders=%d", rec.Code, len(listed))
	}
}

func TestCreateOrderRejections(t *testing.T) {
	env := newTestEnv(t)
	token := testToken(t)

	tests := []struct {
		name  string
		body  map[string]any
		ready bool
		code  int
	}{
		{"unknown monitor", map[string]any{"symbol": "QQQ", "action": "BUY", "qty": 1, "price": 1}, true, http.StatusNotFound},
		{"bad action", map[string]any{"symbol": "SPY", "action": "HOLD", "qty": 1, "price": 1}, true, http.StatusBadRequest},
		{"zero qty", map[string]any{"symbol": "SPY", "action": "SELL", "qty": 0, "price": 1}, true, http.StatusBadRequest},
		{"not ready", map[string]any{"symbol": "SPY", "action": "SELL", "qty": 1, "price": 1}, false, http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env.live.ready = tt.ready
			if rec := env.do(t, http.MethodPost, "/api/orders", token, tt.body, nil); rec.Code != tt.code {
				t.Fatalf("status=%d, expected %d (%s)", rec.Code, tt.code, rec.Body.String())
			}
		})
	}
	if len(env.journal.orders) != 0 {
		t.Fatalf("rejected orders were journaled: %+v", env.journal.orders)
	}
}

func TestPrometheusEndpoint(t *testing.T) {
	env := newTestEnv(t)
	env.metrics.RequestIssued("historical", "IV")

	rec := env.do(t, http.MethodGet, "/metrics", "", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `volcore_requests_issued_total{gateway="historical",kind="IV"} 1`) {
		t.Fatalf("issued counter missing from exposition:\n%s", rec.Body.String())
	}
}

func TestAuthDisabledWithoutSecret(t *testing.T) {
	gin.SetMode(gin.TestMode)
	s := NewServer(Deps{}, "")
	req := httptest.NewRequest(http.MethodGet, "/api/orders", nil)
	rec := httptest.NewRecorder()
	s.Router.ServeHTTP(rec, req)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status=%d, expected 503", rec.Code)
	}
	if _, err := IssueToken("x", "", time.Hour); err == nil {
		t.Fatal("expected IssueToken to refuse an empty secret")
	}
}
