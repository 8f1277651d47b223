package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"linkproxy/internal/domain/audit"
	"linkproxy/internal/domain/link"
	"linkproxy/internal/infrastructure/plaid"
	"linkproxy/internal/shared/middleware"
)

const (
	testClientID = "client-id-0001"
	testSecret   = "secret-0001"
)

// MockAuditor implements Auditor for testing
type MockAuditor struct {
	SubmitFunc func(e *audit.Event) error

	mu     sync.Mutex
	events []*audit.Event
}

func (m *MockAuditor) Submit(e *audit.Event) error {
	m.mu.Lock()
	m.events = append(m.events, e)
	m.mu.Unlock()
	if m.SubmitFunc != nil {
		return m.SubmitFunc(e)
	}
	return nil
}

func (m *MockAuditor) Last() *audit.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.events) == 0 {
		return nil
	}
	return m.events[len(m.events)-1]
}

// upstreamCall is one request seen by the stub upstream.
type upstreamCall struct {
	Path string
	Body map[string]any
}

type stubUpstream struct {
	mu    sync.Mutex
	calls []upstreamCall
}

func (s *stubUpstream) record(path string, body map[string]any) {
	s.mu.Lock()
	s.calls = append(s.calls, upstreamCall{Path: path, Body: body})
	s.mu.Unlock()
}

func (s *stubUpstream) Calls() []upstreamCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]upstreamCall(nil), s.calls...)
}

// ServeHTTP mimics the upstream sandbox: access tokens starting with "stale"
// need re-authentication, "bad" ones get a generic 400.
func (s *stubUpstream) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var body map[string]any
	json.NewDecoder(r.Body).Decode(&body)
	s.record(r.URL.Path, body)

	token, _ := body["access_token"].(string)
	w.Header().Set("Content-Type", "application/json")

	switch {
	case strings.HasPrefix(token, "stale"):
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error_type":"ITEM_ERROR","error_code":"ITEM_LOGIN_REQUIRED","error_message":"the login details of this item have changed"}`))
		return
	case strings.HasPrefix(token, "bad"):
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error_code":"OTHER"}`))
		return
	}

	switch r.URL.Path {
	case "/link/token/create":
		w.Write([]byte(`{"link_token":"link-sandbox-abc","expiration":"2026-10-18T16:00:00Z"}`))
	case "/item/public_token/exchange":
		w.Write([]byte(`{"access_token":"access-sandbox-xyz","item_id":"item-1"}`))
	case "/transactions/get":
		w.Write([]byte(transactionsPayload))
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

const transactionsPayload = `{"accounts":[{"account_id":"acc-1","name":"Checking"}],"transactions":[{"transaction_id":"t1","amount":12.5,"date":"2026-10-01"}],"total_transactions":1}`

type testEnv struct {
	handler  *LinkHandler
	upstream *stubUpstream
	auditor  *MockAuditor
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	up := &stubUpstream{}
	srv := httptest.NewServer(up)
	t.Cleanup(srv.Close)

	client := plaid.NewClient(plaid.Config{
		BaseURL:     srv.URL,
		Credentials: plaid.Credentials{ClientID: testClientID, Secret: testSecret},
		Timeout:     2 * time.Second,
	})
	now := time.Date(2026, 10, 18, 12, 0, 0, 0, time.Local)
	facade := link.NewFacade(client, link.WithClock(func() time.Time { return now }))

	fp, err := audit.NewFingerprinter("test-key")
	if err != nil {
		t.Fatalf("NewFingerprinter() error: %v", err)
	}
	auditor := &MockAuditor{}

	return &testEnv{
		handler:  NewLinkHandler(facade, auditor, fp),
		upstream: up,
		auditor:  auditor,
	}
}

func post(h http.HandlerFunc, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	h(rr, req)
	return rr
}

func decodeJSON(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
		t.Fatalf("response is not JSON: %v (%s)", err, rr.Body.String())
	}
	return out
}

func TestHandleLinkToken(t *testing.T) {
	env := newTestEnv(t)

	rr := post(env.handler.HandleLinkToken, "/api/link-token", "")

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (%s)", rr.Code, rr.Body.String())
	}
	if got := decodeJSON(t, rr)["link_token"]; got != "link-sandbox-abc" {
		t.Errorf("link_token = %v", got)
	}

	calls := env.upstream.Calls()
	if len(calls) != 1 {
		t.Fatalf("upstream calls = %d, want 1", len(calls))
	}
	body := calls[0].Body
	if body["client_id"] != testClientID || body["secret"] != testSecret {
		t.Error("credentials should be injected into the upstream request")
	}
	if products, _ := body["products"].([]any); len(products) != 1 || products[0] != "transactions" {
		t.Errorf("products = %v", body["products"])
	}
	if codes, _ := body["country_codes"].([]any); len(codes) != 1 || codes[0] != "US" {
		t.Errorf("country_codes = %v", body["country_codes"])
	}
	if body["language"] != "en" {
		t.Errorf("language = %v", body["language"])
	}
}

func TestHandleLinkToken_IgnoresBody(t *testing.T) {
	env := newTestEnv(t)

	rr := post(env.handler.HandleLinkToken, "/api/link-token", "{not json")

	if rr.Code != http.StatusOK {
		t.Errorf("status = %d, want 200: link-token consumes no body", rr.Code)
	}
}

func TestHandlers_MissingField(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name    string
		handler http.HandlerFunc
		path    string
		body    string
		wantMsg string
	}{
		{"exchange empty object", env.handler.HandleExchangeToken, "/api/exchange-token", `{}`, "public_token is required"},
		{"exchange empty body", env.handler.HandleExchangeToken, "/api/exchange-token", ``, "public_token is required"},
		{"exchange empty string", env.handler.HandleExchangeToken, "/api/exchange-token", `{"public_token":""}`, "public_token is required"},
		{"update", env.handler.HandleLinkTokenUpdate, "/api/link-token-update", `{"other":"x"}`, "access_token is required"},
		{"transactions", env.handler.HandleTransactions, "/api/transactions", `{}`, "access_token is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := post(tt.handler, tt.path, tt.body)
			if rr.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", rr.Code)
			}
			if got := decodeJSON(t, rr)["error"]; got != tt.wantMsg {
				t.Errorf("error = %v, want %q", got, tt.wantMsg)
			}
		})
	}

	if n := len(env.upstream.Calls()); n != 0 {
		t.Errorf("upstream called %d times for invalid requests", n)
	}
}

func TestHandlers_MalformedBody(t *testing.T) {
	env := newTestEnv(t)

	bodies := []string{`{"public_token":`, `[1,2,3]`, `{"public_token": 42}`, `not json at all`}
	for _, body := range bodies {
		t.Run(body, func(t *testing.T) {
			rr := post(env.handler.HandleExchangeToken, "/api/exchange-token", body)
			if rr.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", rr.Code)
			}
			if got := decodeJSON(t, rr)["error"]; got != "invalid JSON body" {
				t.Errorf("error = %v", got)
			}
		})
	}
}

func TestHandlers_BodyTooLarge(t *testing.T) {
	env := newTestEnv(t)

	big := `{"access_token":"` + strings.Repeat("a", MaxBodyBytes+10) + `"}`
	rr := post(env.handler.HandleTransactions, "/api/transactions", big)

	if rr.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rr.Code)
	}
	if n := len(env.upstream.Calls()); n != 0 {
		t.Errorf("upstream called %d times for oversized body", n)
	}
}

func TestHandlers_MethodNotAllowed(t *testing.T) {
	env := newTestEnv(t)

	handlers := map[string]http.HandlerFunc{
		"/api/link-token":        env.handler.HandleLinkToken,
		"/api/exchange-token":    env.handler.HandleExchangeToken,
		"/api/link-token-update": env.handler.HandleLinkTokenUpdate,
		"/api/transactions":      env.handler.HandleTransactions,
	}

	for path, h := range handlers {
		t.Run(path, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, path, nil)
			rr := httptest.NewRecorder()
			h(rr, req)

			if rr.Code != http.StatusMethodNotAllowed {
				t.Errorf("status = %d, want 405", rr.Code)
			}
			if allow := rr.Header().Get("Allow"); allow != http.MethodPost {
				t.Errorf("Allow = %q, want POST", allow)
			}
		})
	}
}

func TestHandleExchangeToken(t *testing.T) {
	env := newTestEnv(t)

	rr := post(env.handler.HandleExchangeToken, "/api/exchange-token", `{"public_token":"public-sandbox-1"}`)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d (%s)", rr.Code, rr.Body.String())
	}
	body := decodeJSON(t, rr)
	if body["access_token"] != "access-sandbox-xyz" {
		t.Errorf("access_token = %v", body["access_token"])
	}
	if calls := env.upstream.Calls(); calls[0].Body["public_token"] != "public-sandbox-1" {
		t.Errorf("public_token not forwarded: %v", calls[0].Body)
	}
}

func TestHandleLinkTokenUpdate(t *testing.T) {
	env := newTestEnv(t)

	rr := post(env.handler.HandleLinkTokenUpdate, "/api/link-token-update", `{"access_token":"access-sandbox-xyz"}`)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d (%s)", rr.Code, rr.Body.String())
	}

	sent := env.upstream.Calls()[0].Body
	user, _ := sent["user"].(map[string]any)
	if user["client_user_id"] != link.DemoUserID {
		t.Errorf("user = %v, want client_user_id %q", sent["user"], link.DemoUserID)
	}
	if sent["access_token"] != "access-sandbox-xyz" {
		t.Errorf("access_token = %v", sent["access_token"])
	}
}

func TestHandleLinkTokenUpdate_UpstreamError(t *testing.T) {
	env := newTestEnv(t)

	rr := post(env.handler.HandleLinkTokenUpdate, "/api/link-token-update", `{"access_token":"bad-token"}`)

	if rr.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want upstream 400", rr.Code)
	}
	if ct := rr.Header().Get("Content-Type"); ct != "application/problem+json" {
		t.Errorf("Content-Type = %q", ct)
	}
	if detail := decodeJSON(t, rr)["detail"]; detail != `Plaid API error: {"error_code":"OTHER"}` {
		t.Errorf("detail = %v", detail)
	}
}

func TestHandleTransactions(t *testing.T) {
	env := newTestEnv(t)

	rr := post(env.handler.HandleTransactions, "/api/transactions", `{"access_token":"access-sandbox-xyz"}`)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d (%s)", rr.Code, rr.Body.String())
	}
	if rr.Body.String() != transactionsPayload {
		t.Errorf("payload altered:\n got %s\nwant %s", rr.Body.String(), transactionsPayload)
	}

	sent := env.upstream.Calls()[0].Body
	if sent["start_date"] != "2026-09-18" || sent["end_date"] != "2026-10-18" {
		t.Errorf("window = %v..%v", sent["start_date"], sent["end_date"])
	}
}

func TestHandleTransactions_ReauthRequired(t *testing.T) {
	env := newTestEnv(t)

	rr := post(env.handler.HandleTransactions, "/api/transactions", `{"access_token":"stale-token-1"}`)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rr.Code)
	}
	body := decodeJSON(t, rr)
	if body["error"] != "ITEM_LOGIN_REQUIRED" {
		t.Errorf("error = %v", body["error"])
	}
	if body["message"] != link.ReauthMessage {
		t.Errorf("message = %v", body["message"])
	}
	if body["access_token"] != "stale-token-1" {
		t.Errorf("access_token = %v, want echoed token", body["access_token"])
	}
}

func TestHandleTransactions_OtherUpstreamError(t *testing.T) {
	env := newTestEnv(t)

	rr := post(env.handler.HandleTransactions, "/api/transactions", `{"access_token":"bad-token"}`)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rr.Code)
	}
	body := decodeJSON(t, rr)
	if body["detail"] != `{"error_code":"OTHER"}` {
		t.Errorf("detail = %v", body["detail"])
	}
	if _, ok := body["access_token"]; ok {
		t.Error("generic failure must not carry the re-auth payload")
	}
}

func TestHandlers_NoCredentialsInResponses(t *testing.T) {
	env := newTestEnv(t)

	requests := []struct {
		h    http.HandlerFunc
		path string
		body string
	}{
		{env.handler.HandleLinkToken, "/api/link-token", ``},
		{env.handler.HandleExchangeToken, "/api/exchange-token", `{"public_token":"p"}`},
		{env.handler.HandleLinkTokenUpdate, "/api/link-token-update", `{"access_token":"bad"}`},
		{env.handler.HandleTransactions, "/api/transactions", `{"access_token":"stale"}`},
		{env.handler.HandleTransactions, "/api/transactions", `{"access_token":"bad"}`},
		{env.handler.HandleTransactions, "/api/transactions", `{"access_token":"ok"}`},
	}

	for _, r := range requests {
		rr := post(r.h, r.path, r.body)
		out := rr.Body.String()
		if strings.Contains(out, testClientID) || strings.Contains(out, testSecret) {
			t.Errorf("%s leaked credentials: %s", r.path, out)
		}
	}
}

func TestHandlers_SubmitAuditEvent(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodPost, "/api/transactions", strings.NewReader(`{"access_token":"stale-token-1"}`))
	rr := httptest.NewRecorder()
	middleware.RequestID(http.HandlerFunc(env.handler.HandleTransactions)).ServeHTTP(rr, req)

	e := env.auditor.Last()
	if e == nil {
		t.Fatal("no audit event submitted")
	}
	if e.Operation != audit.OpGetTransactions {
		t.Errorf("Operation = %q", e.Operation)
	}
	if e.Status != http.StatusUnauthorized || e.Outcome != string(link.OutcomeReauthRequired) {
		t.Errorf("Status/Outcome = %d/%q", e.Status, e.Outcome)
	}
	if e.ErrorCode != "ITEM_LOGIN_REQUIRED" {
		t.Errorf("ErrorCode = %q", e.ErrorCode)
	}
	if e.RequestID == "" || e.RequestID != rr.Header().Get("X-Request-ID") {
		t.Errorf("RequestID = %q, want response X-Request-ID", e.RequestID)
	}
	if e.ItemFingerprint == "" || strings.Contains(e.ItemFingerprint, "stale-token-1") {
		t.Errorf("ItemFingerprint = %q", e.ItemFingerprint)
	}

	encoded, _ := json.Marshal(e)
	if bytes.Contains(encoded, []byte("stale-token-1")) {
		t.Error("audit event must not contain the access token")
	}
}

func TestHandlers_AuditFailureDoesNotChangeResponse(t *testing.T) {
	env := newTestEnv(t)
	env.auditor.SubmitFunc = func(e *audit.Event) error { return audit.ErrClosed }

	rr := post(env.handler.HandleLinkToken, "/api/link-token", "")
	if rr.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rr.Code)
	}
}

func TestHandlers_NilAuditor(t *testing.T) {
	up := &stubUpstream{}
	srv := httptest.NewServer(up)
	defer srv.Close()

	client := plaid.NewClient(plaid.Config{BaseURL: srv.URL, Credentials: plaid.Credentials{ClientID: "c", Secret: "s"}})
	h := NewLinkHandler(link.NewFacade(client), nil, nil)

	rr := post(h.HandleTransactions, "/api/transactions", `{"access_token":"ok"}`)
	if rr.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rr.Code)
	}
}

func TestHandlers_ClientCancelPropagates(t *testing.T) {
	release := make(chan struct{})
	seen := make(chan struct{}, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen <- struct{}{}
		select {
		case <-r.Context().Done():
		case <-release:
		}
	}))
	defer srv.Close()
	defer close(release)

	client := plaid.NewClient(plaid.Config{BaseURL: srv.URL, Credentials: plaid.Credentials{ClientID: "c", Secret: "s"}, Timeout: 5 * time.Second})
	h := NewLinkHandler(link.NewFacade(client), nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodPost, "/api/transactions", strings.NewReader(`{"access_token":"a"}`)).WithContext(ctx)
	rr := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		h.HandleTransactions(rr, req)
		close(done)
	}()

	<-seen
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("handler did not return after client cancellation")
	}
	if rr.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rr.Code)
	}
}

func TestHandleHealth(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rr := httptest.NewRecorder()
	HandleHealth(rr, req)

	if rr.Code != http.StatusOK {
		t.Errorf("status = %d", rr.Code)
	}
	if rr.Body.String() != `{"status":"ok"}` {
		t.Errorf("body = %s", rr.Body.String())
	}
}

func TestStaticHandler(t *testing.T) {
	if StaticHandler(filepath.Join(t.TempDir(), "missing")) != nil {
		t.Error("missing dir should give nil handler")
	}
	if StaticHandler("") != nil {
		t.Error("empty dir should give nil handler")
	}

	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "index.html"), []byte("<h1>app</h1>"), 0o644); err != nil {
		t.Fatal(err)
	}

	h := StaticHandler(dir)
	if h == nil {
		t.Fatal("expected handler for existing dir")
	}

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	body, _ := io.ReadAll(rr.Body)
	if rr.Code != http.StatusOK || string(body) != "<h1>app</h1>" {
		t.Errorf("GET / = %d %q, want index.html", rr.Code, body)
	}
}
