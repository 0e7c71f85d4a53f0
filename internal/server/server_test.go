package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/duggee/stakeboard/internal/db"
	"github.com/duggee/stakeboard/internal/viewmodel"
	"github.com/duggee/stakeboard/internal/wallet"
)

type fakeConsole struct {
	mu         sync.Mutex
	page       viewmodel.Page
	intents    []viewmodel.Intent
	dispatchFn func(viewmodel.Intent) error
	refreshes  int
	imported   string
	connected  bool
	subs       []db.Submission
	lastLimit  int
	batches    int
	signer     *wallet.Wallet
}

func (f *fakeConsole) NodeID() string        { return "0123456789abcdef0123456789abcdef" }
func (f *fakeConsole) Uptime() time.Duration { return 3 * time.Second }
func (f *fakeConsole) View() viewmodel.Page {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.page
}

func (f *fakeConsole) Dispatch(_ context.Context, intents ...viewmodel.Intent) (viewmodel.Page, error) {
	f.mu.Lock()
	f.intents = append(f.intents, intents...)
	f.batches++
	fn := f.dispatchFn
	f.mu.Unlock()
	var err error
	if fn != nil {
		err = fn(intents[len(intents)-1])
	}
	return f.View(), err
}

func (f *fakeConsole) RequestRefresh() {
	f.mu.Lock()
	f.refreshes++
	f.mu.Unlock()
}

func (f *fakeConsole) ChainStatus() map[string]interface{} {
	return map[string]interface{}{"chain_id": 31337}
}

func (f *fakeConsole) SnapshotStatus() map[string]interface{} {
	return map[string]interface{}{"refreshes": 2}
}

func (f *fakeConsole) WalletStatus() map[string]interface{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	return map[string]interface{}{"connected": f.connected}
}

func (f *fakeConsole) ImportWallet(key string) error {
	if key == "bad" {
		return errors.New("invalid private key")
	}
	f.mu.Lock()
	f.imported = key
	f.connected = true
	f.mu.Unlock()
	return nil
}

func (f *fakeConsole) GenerateNewWallet() error {
	f.mu.Lock()
	f.connected = true
	f.mu.Unlock()
	return nil
}

func (f *fakeConsole) DisconnectWallet() error {
	f.mu.Lock()
	f.connected = false
	f.mu.Unlock()
	return nil
}

func (f *fakeConsole) SignMessage(message string) (map[string]interface{}, error) {
	f.mu.Lock()
	w := f.signer
	f.mu.Unlock()
	if w == nil {
		return nil, wallet.ErrNotConnected
	}
	sig, err := w.SignMessage([]byte(message))
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{"address": w.Address.Hex(), "signature": hexutil.Encode(sig)}, nil
}

func (f *fakeConsole) RecentSubmissions(limit int) ([]db.Submission, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastLimit = limit
	return f.subs, nil
}

func (f *fakeConsole) SubmissionCount() (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs), nil
}

func newTestServer(t *testing.T) (*fakeConsole, *httptest.Server) {
	t.Helper()
	console := &fakeConsole{}
	console.page.Symbol = "lETH"
	console.page.StakeText = "1.5"
	srv := New("127.0.0.1", 0, console, prometheus.NewRegistry())
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return console, ts
}

func postJSON(t *testing.T, url string, body interface{}) *http.Response {
	t.Helper()
	b, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(b))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode(t *testing.T, resp *http.Response, v interface{}) {
	t.Helper()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}

func TestHealth(t *testing.T) {
	_, ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	var body map[string]interface{}
	decode(t, resp, &body)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "0123456789abcdef", body["node_id"])
	assert.Equal(t, float64(3000), body["uptime_ms"])
	assert.Empty(t, resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestStatus(t *testing.T) {
	console, ts := newTestServer(t)
	console.subs = []db.Submission{{ID: "a"}, {ID: "b"}}

	resp, err := http.Get(ts.URL + "/status")
	require.NoError(t, err)
	defer resp.Body.Close()

	var body map[string]interface{}
	decode(t, resp, &body)
	assert.Contains(t, body, "chain")
	assert.Contains(t, body, "snapshot")
	assert.Equal(t, map[string]interface{}{"total": float64(2)}, body["submissions"])
}

func TestViewEndpoint(t *testing.T) {
	_, ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/api/view")
	require.NoError(t, err)
	defer resp.Body.Close()

	var page viewmodel.Page
	decode(t, resp, &page)
	assert.Equal(t, "lETH", page.Symbol)
	assert.Equal(t, "1.5", page.StakeText)
}

func TestIntentAccepted(t *testing.T) {
	console, ts := newTestServer(t)

	resp := postJSON(t, ts.URL+"/api/intents", viewmodel.Intent{Kind: viewmodel.SetStakeText, Text: "2"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var page viewmodel.Page
	decode(t, resp, &page)
	assert.Equal(t, "lETH", page.Symbol)
	require.Len(t, console.intents, 1)
	assert.Equal(t, viewmodel.Intent{Kind: viewmodel.SetStakeText, Text: "2"}, console.intents[0])
}

func TestIntentErrorStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
		kind string
	}{
		{"invalid amount", fmt.Errorf("stake: %w", viewmodel.ErrInvalidAmount), 400, "invalid_amount"},
		{"unknown intent", fmt.Errorf("x: %w", viewmodel.ErrUnknownIntent), 400, "unknown_intent"},
		{"unavailable", fmt.Errorf("claim: %w", viewmodel.ErrUnavailable), 409, "unavailable"},
		{"submission", fmt.Errorf("stake: %w: %w", viewmodel.ErrSubmission, errors.New("nonce too low")), 502, "submission_failed"},
		{"other", errors.New("boom"), 500, "internal"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			console, ts := newTestServer(t)
			console.dispatchFn = func(viewmodel.Intent) error { return tt.err }

			resp := postJSON(t, ts.URL+"/api/intents", viewmodel.Intent{Kind: viewmodel.SubmitStake})
			assert.Equal(t, tt.code, resp.StatusCode)

			var body IntentError
			decode(t, resp, &body)
			assert.Equal(t, tt.kind, body.Kind)
			assert.Equal(t, tt.err.Error(), body.Error)
			require.NotNil(t, body.View)
			assert.Equal(t, "lETH", body.View.Symbol)
		})
	}
}

func TestIntentBadBody(t *testing.T) {
	console, ts := newTestServer(t)

	resp, err := http.Post(ts.URL+"/api/intents", "application/json", strings.NewReader("{"))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp2 := postJSON(t, ts.URL+"/api/intents", map[string]string{"text": "1"})
	assert.Equal(t, http.StatusBadRequest, resp2.StatusCode)
	assert.Empty(t, console.intents)
}

func TestRefresh(t *testing.T) {
	console, ts := newTestServer(t)

	resp := postJSON(t, ts.URL+"/api/refresh", struct{}{})
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.Equal(t, 1, console.refreshes)
}

func TestSubmissions(t *testing.T) {
	console, ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/api/submissions")
	require.NoError(t, err)
	defer resp.Body.Close()
	var empty []db.Submission
	decode(t, resp, &empty)
	assert.NotNil(t, empty)
	assert.Len(t, empty, 0)
	assert.Equal(t, 20, console.lastLimit)

	hash := "0xabc"
	console.subs = []db.Submission{{ID: "s1", Action: "stake", TxHash: &hash, Outcome: db.OutcomeDispatched}}
	resp2, err := http.Get(ts.URL + "/api/submissions?limit=5")
	require.NoError(t, err)
	defer resp2.Body.Close()
	var subs []db.Submission
	decode(t, resp2, &subs)
	require.Len(t, subs, 1)
	assert.Equal(t, "0xabc", *subs[0].TxHash)
	assert.Equal(t, 5, console.lastLimit)

	for _, bad := range []string{"0", "-1", "abc", "501"} {
		resp3, err := http.Get(ts.URL + "/api/submissions?limit=" + bad)
		require.NoError(t, err)
		resp3.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp3.StatusCode, bad)
	}
}

func TestWalletRoutes(t *testing.T) {
	console, ts := newTestServer(t)

	resp := postJSON(t, ts.URL+"/api/wallet/import", map[string]string{"key": "bad"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = postJSON(t, ts.URL+"/api/wallet/import", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = postJSON(t, ts.URL+"/api/wallet/import", map[string]string{"key": "0x01"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var status map[string]interface{}
	decode(t, resp, &status)
	assert.Equal(t, true, status["connected"])
	assert.Equal(t, "0x01", console.imported)

	resp = postJSON(t, ts.URL+"/api/wallet/disconnect", struct{}{})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decode(t, resp, &status)
	assert.Equal(t, false, status["connected"])

	resp = postJSON(t, ts.URL+"/api/wallet/generate", struct{}{})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	getResp, err := http.Get(ts.URL + "/api/wallet")
	require.NoError(t, err)
	defer getResp.Body.Close()
	decode(t, getResp, &status)
	assert.Equal(t, true, status["connected"])
}

func TestDashboardAndMetrics(t *testing.T) {
	_, ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/html")

	metricsResp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer metricsResp.Body.Close()
	assert.Equal(t, http.StatusOK, metricsResp.StatusCode)
}

func send(t *testing.T, method, url, origin, contentType, body string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	require.NoError(t, err)
	if origin != "" {
		req.Header.Set("Origin", origin)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestCORSPreflight(t *testing.T) {
	_, ts := newTestServer(t)

	resp := send(t, http.MethodOptions, ts.URL+"/api/intents", ts.URL, "", "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, ts.URL, resp.Header.Get("Access-Control-Allow-Origin"))

	resp = send(t, http.MethodOptions, ts.URL+"/api/intents", "https://evil.example", "", "")
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Empty(t, resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestCrossOriginWritesRefused(t *testing.T) {
	console, ts := newTestServer(t)
	console.connected = true

	routes := map[string]string{
		"/api/wallet/generate":   `{}`,
		"/api/wallet/disconnect": `{}`,
		"/api/wallet/import":     `{"key":"0x01"}`,
		"/api/wallet/sign":       `{"message":"hi"}`,
		"/api/intents":           `{"kind":"submit_stake"}`,
		"/api/refresh":           `{}`,
	}
	for path, body := range routes {
		for _, ct := range []string{"text/plain", "application/json"} {
			resp := send(t, http.MethodPost, ts.URL+path, "https://evil.example", ct, body)
			assert.Equal(t, http.StatusForbidden, resp.StatusCode, "%s %s", path, ct)
			assert.Empty(t, resp.Header.Get("Access-Control-Allow-Origin"), path)
		}
	}

	assert.Empty(t, console.intents)
	assert.Empty(t, console.imported)
	assert.Zero(t, console.refreshes)
	assert.Equal(t, true, console.WalletStatus()["connected"])
}

func TestWritesRequireJSON(t *testing.T) {
	console, ts := newTestServer(t)

	for _, ct := range []string{"", "text/plain", "application/x-www-form-urlencoded", "multipart/form-data; boundary=x"} {
		resp := send(t, http.MethodPost, ts.URL+"/api/intents", "", ct, `{"kind":"submit_stake"}`)
		assert.Equal(t, http.StatusUnsupportedMediaType, resp.StatusCode, ct)
		resp = send(t, http.MethodPost, ts.URL+"/api/wallet/generate", ts.URL, ct, `{}`)
		assert.Equal(t, http.StatusUnsupportedMediaType, resp.StatusCode, ct)
	}
	assert.Empty(t, console.intents)
	assert.False(t, console.connected)

	resp := send(t, http.MethodPost, ts.URL+"/api/intents", ts.URL, "application/json; charset=utf-8", `{"kind":"submit_claim"}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, ts.URL, resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestAllowedOrigin(t *testing.T) {
	console := &fakeConsole{}
	srv := New("127.0.0.1", 0, console, prometheus.NewRegistry())
	srv.AllowOrigins("https://wallet.example/")
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	resp := send(t, http.MethodPost, ts.URL+"/api/intents", "https://wallet.example", "application/json", `{"kind":"submit_claim"}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "https://wallet.example", resp.Header.Get("Access-Control-Allow-Origin"))

	resp = send(t, http.MethodGet, ts.URL+"/api/view", "https://other.example", "", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestRebindingHostRefused(t *testing.T) {
	console, ts := newTestServer(t)

	req, err := http.NewRequest(http.MethodPost, ts.URL+"/api/wallet/disconnect", strings.NewReader(`{}`))
	require.NoError(t, err)
	req.Host = "attacker.example"
	req.Header.Set("Origin", "http://attacker.example")
	req.Header.Set("Content-Type", "application/json")
	console.connected = true
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.True(t, console.connected)
}

func TestIntentBatch(t *testing.T) {
	console, ts := newTestServer(t)

	resp := postJSON(t, ts.URL+"/api/intents", []viewmodel.Intent{
		{Kind: viewmodel.SetStakeText, Text: "1"},
		{Kind: viewmodel.SubmitStake},
	})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 1, console.batches)
	assert.Equal(t, []viewmodel.Intent{
		{Kind: viewmodel.SetStakeText, Text: "1"},
		{Kind: viewmodel.SubmitStake},
	}, console.intents)

	resp = postJSON(t, ts.URL+"/api/intents", []viewmodel.Intent{})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp = postJSON(t, ts.URL+"/api/intents", []viewmodel.Intent{{Kind: viewmodel.SubmitStake}, {}})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, 1, console.batches)
}

func TestWalletSignAndVerify(t *testing.T) {
	console, ts := newTestServer(t)

	resp := postJSON(t, ts.URL+"/api/wallet/sign", map[string]string{"message": "hi"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	w, err := wallet.Load("ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80")
	require.NoError(t, err)
	console.signer = w

	resp = postJSON(t, ts.URL+"/api/wallet/sign", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = postJSON(t, ts.URL+"/api/wallet/sign", map[string]string{"message": "prove it"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var signed map[string]string
	decode(t, resp, &signed)
	assert.Equal(t, w.Address.Hex(), signed["address"])

	verify := func(addr, msg, sig string) (int, bool) {
		resp := postJSON(t, ts.URL+"/api/wallet/verify", map[string]string{"address": addr, "message": msg, "signature": sig})
		var out struct {
			Valid bool `json:"valid"`
		}
		if resp.StatusCode == http.StatusOK {
			decode(t, resp, &out)
		}
		return resp.StatusCode, out.Valid
	}
	code, valid := verify(signed["address"], "prove it", signed["signature"])
	assert.Equal(t, http.StatusOK, code)
	assert.True(t, valid)

	_, valid = verify(signed["address"], "something else", signed["signature"])
	assert.False(t, valid)

	code, _ = verify("nope", "prove it", signed["signature"])
	assert.Equal(t, http.StatusBadRequest, code)
	code, _ = verify(signed["address"], "prove it", "zz")
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestStartStop(t *testing.T) {
	srv := New("127.0.0.1", 0, &fakeConsole{}, nil)
	port, err := srv.Start()
	require.NoError(t, err)
	require.NotZero(t, port)
	defer srv.Stop()

	resp, err := http.Get(fmt.Sprintf("http://127.0.0.1:%d/health", port))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
