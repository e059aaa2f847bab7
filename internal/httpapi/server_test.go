package httpapi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"

	"tracefood/internal/auth"
	"tracefood/internal/core"
)

type harness struct {
	t    *testing.T
	ts   *httptest.Server
	auth *auth.Manager
	svc  *core.Service
	feed *Feed
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	mgr, err := auth.NewManager(auth.Config{Secret: "test-secret", Issuer: "tracefood"})
	if err != nil {
		t.Fatalf("auth: %v", err)
	}
	feed := NewFeed(nil)
	svc := core.NewInMemoryService(core.NewDefaultRulesEngine(), core.WithLotObserver(feed))
	srv, err := New(svc, Options{Auth: mgr, Feed: feed, Registry: prometheus.NewRegistry()})
	if err != nil {
		t.Fatalf("server: %v", err)
	}
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		feed.Close()
		ts.Close()
	})
	return &harness{t: t, ts: ts, auth: mgr, svc: svc, feed: feed}
}

func (h *harness) token(account string) string {
	h.t.Helper()
	tok, err := h.auth.GenerateToken(account)
	if err != nil {
		h.t.Fatalf("token: %v", err)
	}
	return tok
}

func (h *harness) do(method, path, bearer, body string) *http.Response {
	h.t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, h.ts.URL+path, r)
	if err != nil {
		h.t.Fatalf("request: %v", err)
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		h.t.Fatalf("do %s %s: %v", method, path, err)
	}
	h.t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func (h *harness) call(caller, method, body string) *http.Response {
	h.t.Helper()
	return h.do(http.MethodPost, "/api/v1/call/"+method, h.token(caller), body)
}

func expectStatus(t *testing.T, resp *http.Response, want int) {
	t.Helper()
	if resp.StatusCode != want {
		b, _ := io.ReadAll(resp.Body)
		t.Fatalf("expected status %d, got %d: %s", want, resp.StatusCode, b)
	}
}

func expectError(t *testing.T, resp *http.Response, status int, kind string) {
	t.Helper()
	expectStatus(t, resp, status)
	var body ErrorBody
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	if body.Kind != kind || body.Error == "" {
		t.Fatalf("expected kind %s, got %+v", kind, body)
	}
}

const (
	registryBody = `{"stage_transitions":{"Cosecha":"B","Stage2":null}}`
	mintBody     = `{"lot_id":"lot-1","description":"Avocados","initial_metadata":{"crop_type":"Hass","farm_location":"Michoacan"}}`
)

func TestCallAndViewFlow(t *testing.T) {
	h := newHarness(t)
	expectStatus(t, h.call("owner", "initialize", registryBody), http.StatusNoContent)
	expectStatus(t, h.call("A", "mint_lot", mintBody), http.StatusNoContent)
	expectStatus(t, h.call("B", "confirm_stage", `{"lot_id":"lot-1","stage_name":"Stage2","event_details":{"notes":"received"}}`), http.StatusNoContent)

	resp := h.do(http.MethodGet, "/api/v1/view/get_lot_state?lot_id=lot-1", "", "")
	expectStatus(t, resp, http.StatusOK)
	var lot core.FoodLot
	if err := json.NewDecoder(resp.Body).Decode(&lot); err != nil {
		t.Fatalf("decode lot: %v", err)
	}
	if lot.FarmerID != "A" || lot.CurrentStage != "Stage2" || lot.ExpectedNextActorID != nil || lot.PaymentStatus != core.PaymentFullyPaid || len(lot.Events) != 2 {
		t.Fatalf("unexpected lot %+v", lot)
	}
	if lot.Events[1].Notes == nil || *lot.Events[1].Notes != "received" {
		t.Fatalf("event details not recorded: %+v", lot.Events[1])
	}

	resp = h.do(http.MethodPost, "/api/v1/view/get_all_lot_ids", "", "{}")
	expectStatus(t, resp, http.StatusOK)
	var ids []string
	if err := json.NewDecoder(resp.Body).Decode(&ids); err != nil || len(ids) != 1 || ids[0] != "lot-1" {
		t.Fatalf("unexpected ids %v %v", ids, err)
	}
}

func TestViewsOnEmptyState(t *testing.T) {
	h := newHarness(t)
	cases := []struct {
		method, path, body, want string
	}{
		{http.MethodGet, "/api/v1/view/get_lot_state?lot_id=missing", "", "null"},
		{http.MethodPost, "/api/v1/view/get_lot_state", `{"lot_id":"missing"}`, "null"},
		{http.MethodGet, "/api/v1/view/get_all_lot_ids", "", "[]"},
		{http.MethodPost, "/api/v1/view/lots_pending_actor", `{"actor_id":"B"}`, "[]"},
	}
	for _, tc := range cases {
		resp := h.do(tc.method, tc.path, "", tc.body)
		expectStatus(t, resp, http.StatusOK)
		b, _ := io.ReadAll(resp.Body)
		if got := strings.TrimSpace(string(b)); got != tc.want {
			t.Fatalf("%s %s: expected %s, got %s", tc.method, tc.path, tc.want, got)
		}
	}
}

func TestLotsPendingActorView(t *testing.T) {
	h := newHarness(t)
	expectStatus(t, h.call("owner", "initialize", registryBody), http.StatusNoContent)
	expectStatus(t, h.call("A", "mint_lot", mintBody), http.StatusNoContent)
	resp := h.do(http.MethodGet, "/api/v1/view/lots_pending_actor?actor_id=B", "", "")
	expectStatus(t, resp, http.StatusOK)
	var ids []string
	if err := json.NewDecoder(resp.Body).Decode(&ids); err != nil || len(ids) != 1 {
		t.Fatalf("unexpected pending ids %v %v", ids, err)
	}
}

func TestGetLotStateUsesIDVerbatim(t *testing.T) {
	h := newHarness(t)
	expectStatus(t, h.call("owner", "initialize", registryBody), http.StatusNoContent)
	expectStatus(t, h.call("A", "mint_lot", `{"lot_id":" lot-1"}`), http.StatusNoContent)

	resp := h.do(http.MethodGet, "/api/v1/view/get_all_lot_ids", "", "")
	expectStatus(t, resp, http.StatusOK)
	var ids []string
	if err := json.NewDecoder(resp.Body).Decode(&ids); err != nil || len(ids) != 1 || ids[0] != " lot-1" {
		t.Fatalf("unexpected ids %q %v", ids, err)
	}

	resp = h.do(http.MethodPost, "/api/v1/view/get_lot_state", "", `{"lot_id":" lot-1"}`)
	expectStatus(t, resp, http.StatusOK)
	var lot *core.FoodLot
	if err := json.NewDecoder(resp.Body).Decode(&lot); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if lot == nil || lot.LotID != " lot-1" {
		t.Fatalf("expected lot with padded id, got %+v", lot)
	}

	resp = h.do(http.MethodPost, "/api/v1/view/get_lot_state", "", `{"lot_id":"lot-1"}`)
	expectStatus(t, resp, http.StatusOK)
	b, _ := io.ReadAll(resp.Body)
	if got := strings.TrimSpace(string(b)); got != "null" {
		t.Fatalf("trimmed id must not match, got %s", got)
	}
}

func TestErrorMapping(t *testing.T) {
	h := newHarness(t)
	expectStatus(t, h.call("owner", "initialize", registryBody), http.StatusNoContent)
	expectStatus(t, h.call("A", "mint_lot", mintBody), http.StatusNoContent)

	expectError(t, h.do(http.MethodPost, "/api/v1/call/mint_lot", "", mintBody), http.StatusUnauthorized, KindUnauthenticated)
	expectError(t, h.do(http.MethodPost, "/api/v1/call/mint_lot", "garbage", mintBody), http.StatusUnauthorized, KindUnauthenticated)
	expectError(t, h.call("A", "mint_lot", `{"lot_id":`), http.StatusBadRequest, KindMalformedRequest)
	expectError(t, h.call("A", "mint_lot", ""), http.StatusBadRequest, KindMalformedRequest)
	expectError(t, h.call("A", "mint_lot", `{"lot_id":"  "}`), http.StatusBadRequest, "InvalidArgument")
	expectError(t, h.call("A", "mint_lot", mintBody), http.StatusConflict, "DuplicateLot")
	expectError(t, h.call("owner", "initialize", registryBody), http.StatusConflict, "AlreadyInitialized")
	expectError(t, h.call("B", "confirm_stage", `{"lot_id":"nope","stage_name":"Stage2"}`), http.StatusNotFound, "LotNotFound")
	expectError(t, h.call("C", "confirm_stage", `{"lot_id":"lot-1","stage_name":"Stage2"}`), http.StatusForbidden, "UnauthorizedActor")
	expectError(t, h.call("A", "transfer", `{}`), http.StatusNotFound, KindUnknownMethod)
	expectError(t, h.do(http.MethodGet, "/api/v1/view/balance", "", ""), http.StatusNotFound, KindUnknownMethod)
	expectError(t, h.do(http.MethodGet, "/nowhere", "", ""), http.StatusNotFound, KindUnknownMethod)
}

func TestMisconfiguredRegistryMapsTo422(t *testing.T) {
	h := newHarness(t)
	expectStatus(t, h.call("owner", "initialize", `{"stage_transitions":{"Cosecha":null}}`), http.StatusNoContent)
	expectError(t, h.call("A", "mint_lot", mintBody), http.StatusUnprocessableEntity, "MisconfiguredRegistry")
}

func TestInitializeRequiresTransitions(t *testing.T) {
	h := newHarness(t)
	expectError(t, h.call("owner", "initialize", `{}`), http.StatusBadRequest, KindMalformedRequest)
}

func TestHealthMetricsAndRequestID(t *testing.T) {
	h := newHarness(t)
	resp := h.do(http.MethodGet, "/healthz", "", "")
	expectStatus(t, resp, http.StatusOK)
	var health map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil || health["status"] != "ok" || health["initialized"] != false {
		t.Fatalf("unexpected health %v %v", health, err)
	}
	if resp.Header.Get(RequestIDHeader) == "" {
		t.Fatalf("expected generated request id")
	}

	req, _ := http.NewRequest(http.MethodGet, h.ts.URL+"/healthz", nil)
	req.Header.Set(RequestIDHeader, "req-42")
	echoed, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("healthz: %v", err)
	}
	_ = echoed.Body.Close()
	if echoed.Header.Get(RequestIDHeader) != "req-42" {
		t.Fatalf("request id not propagated: %q", echoed.Header.Get(RequestIDHeader))
	}

	resp = h.do(http.MethodGet, "/metrics", "", "")
	expectStatus(t, resp, http.StatusOK)
	b, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(b), `tracefood_http_requests_total{method="GET",route="/healthz",status="200"}`) {
		t.Fatalf("http metrics missing from exposition:\n%s", b)
	}
}

func TestCORSPreflight(t *testing.T) {
	h := newHarness(t)
	req, _ := http.NewRequest(http.MethodOptions, h.ts.URL+"/api/v1/call/mint_lot", nil)
	req.Header.Set("Origin", "https://market.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	req.Header.Set("Access-Control-Request-Headers", "Authorization")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("preflight: %v", err)
	}
	defer resp.Body.Close()
	if resp.Header.Get("Access-Control-Allow-Origin") == "" {
		t.Fatalf("expected allow-origin header, got %v", resp.Header)
	}
}

func TestRecoverPanics(t *testing.T) {
	handler := recoverPanics(nopLogger{})(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusInternalServerError || !strings.Contains(rec.Body.String(), KindInternal) {
		t.Fatalf("unexpected recovery response %d %s", rec.Code, rec.Body.String())
	}
}

func TestNewRequiresDependencies(t *testing.T) {
	if _, err := New(nil, Options{}); err == nil {
		t.Fatalf("expected error without service")
	}
	svc := core.NewInMemoryService(core.NewDefaultRulesEngine())
	if _, err := New(svc, Options{}); err == nil {
		t.Fatalf("expected error without auth")
	}
}

func TestFeedPushesCommittedLots(t *testing.T) {
	h := newHarness(t)
	url := "ws" + strings.TrimPrefix(h.ts.URL, "http") + "/api/v1/feed"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial feed: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for h.feed.Clients() != 1 {
		if time.Now().After(deadline) {
			t.Fatalf("subscriber never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	expectStatus(t, h.call("owner", "initialize", registryBody), http.StatusNoContent)
	expectStatus(t, h.call("A", "mint_lot", mintBody), http.StatusNoContent)
	expectStatus(t, h.call("B", "confirm_stage", `{"lot_id":"lot-1","stage_name":"Stage2"}`), http.StatusNoContent)

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var minted, confirmed FeedEvent
	if err := conn.ReadJSON(&minted); err != nil {
		t.Fatalf("read mint event: %v", err)
	}
	if minted.LotID != "lot-1" || minted.CurrentStage != "Cosecha" || minted.ExpectedNextActorID == nil || *minted.ExpectedNextActorID != "B" || minted.PaymentStatus != core.PaymentPending {
		t.Fatalf("unexpected mint event %+v", minted)
	}
	if err := conn.ReadJSON(&confirmed); err != nil {
		t.Fatalf("read confirm event: %v", err)
	}
	if confirmed.CurrentStage != "Stage2" || confirmed.ExpectedNextActorID != nil || confirmed.PaymentStatus != core.PaymentFullyPaid {
		t.Fatalf("unexpected confirm event %+v", confirmed)
	}
}

func TestFeedOriginCheck(t *testing.T) {
	check := originChecker([]string{"https://ok.example"})
	allowed := httptest.NewRequest(http.MethodGet, "/", nil)
	allowed.Header.Set("Origin", "https://ok.example")
	denied := httptest.NewRequest(http.MethodGet, "/", nil)
	denied.Header.Set("Origin", "https://evil.example")
	if !check(allowed) || check(denied) {
		t.Fatalf("origin check mismatch")
	}
	if !originChecker(nil)(denied) || !originChecker([]string{"*"})(denied) {
		t.Fatalf("empty and wildcard lists accept any origin")
	}
}

func TestFeedDropsForSlowSubscriber(t *testing.T) {
	f := NewFeed(nil)
	c := &feedClient{send: make(chan FeedEvent, 1)}
	f.clients[c] = struct{}{}
	f.LotChanged(context.Background(), core.FoodLot{LotID: "lot-1"})
	f.LotChanged(context.Background(), core.FoodLot{LotID: "lot-2"})
	if len(c.send) != 1 {
		t.Fatalf("expected one buffered event, got %d", len(c.send))
	}
	f.Close()
	if f.Clients() != 0 {
		t.Fatalf("close must drop subscribers")
	}
	if ev, ok := <-c.send; !ok || ev.LotID != "lot-1" {
		t.Fatalf("buffered event lost before close: %+v", ev)
	}
	if _, ok := <-c.send; ok {
		t.Fatalf("expected closed channel")
	}
}
