package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"lodestar/internal/auth"
	"lodestar/internal/config"
	"lodestar/internal/crypto"
	"lodestar/internal/service"
	"lodestar/internal/store"
)

const adminKey = "test-admin-key"

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := &config.Config{}
	cfg.App.Debug = true // no rate limiting in tests
	cfg.App.FrontendURL = "http://localhost:3000"
	cfg.Auth.JWTSecret = "test-jwt-secret"
	cfg.Auth.AdminKey = adminKey
	cfg.Auth.TokenTTL = 7 * 24 * time.Hour
	cfg.Auth.TimestampWindow = 5 * time.Minute
	cfg.Auth.NonceTTL = 15 * time.Minute

	st, err := store.NewFileStore(t.TempDir(), cfg.Auth.NonceTTL)
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}

	tokens := auth.NewTokenService(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	r := SetupRouter(Deps{
		Config:   cfg,
		Devices:  service.NewDeviceService(st, tokens),
		Ledger:   service.NewLedgerService(st, t.TempDir()),
		Tokens:   tokens,
		Verifier: auth.NewSignatureVerifier(st, cfg.Auth.TimestampWindow),
	})

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func postJSON(t *testing.T, url string, payload interface{}, headers map[string]string) (*http.Response, map[string]interface{}) {
	t.Helper()

	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	defer resp.Body.Close()

	var decoded map[string]interface{}
	raw, _ := io.ReadAll(resp.Body)
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &decoded); err != nil {
			t.Fatalf("decode %q: %v", raw, err)
		}
	}
	return resp, decoded
}

func getJSON(t *testing.T, url string, headers map[string]string) (*http.Response, map[string]interface{}) {
	t.Helper()

	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	defer resp.Body.Close()

	var decoded map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return resp, decoded
}

func login(t *testing.T, srv *httptest.Server, deviceID, secret string) (string, map[string]interface{}, int) {
	t.Helper()
	resp, body := postJSON(t, srv.URL+"/api/v1/auth/device-login",
		map[string]string{"deviceId": deviceID, "secret": secret}, nil)
	token, _ := body["token"].(string)
	return token, body, resp.StatusCode
}

// signedUpload sends one signed record and returns the raw response.
func signedUpload(t *testing.T, srv *httptest.Server, token, secret, path, nonce string, payload []byte) *http.Response {
	t.Helper()

	timestamp := time.Now().UnixMilli()
	signature := auth.Sign(crypto.SHA256Hex(secret), http.MethodPost, path, timestamp, nonce, payload)

	req, err := http.NewRequest(http.MethodPost, srv.URL+path, bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("x-timestamp", fmt.Sprintf("%d", timestamp))
	req.Header.Set("x-nonce", nonce)
	req.Header.Set("x-signature", signature)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	return resp
}

func TestRegister_RequiresAdminKey(t *testing.T) {
	srv := newTestServer(t)
	payload := map[string]string{"deviceId": "dev-1", "secret": "s3cret"}

	resp, body := postJSON(t, srv.URL+"/api/v1/auth/register", payload, nil)
	if resp.StatusCode != http.StatusUnauthorized || body["error"] != "invalid_admin_key" {
		t.Fatalf("no admin key: got %d %v", resp.StatusCode, body)
	}

	resp, _ = postJSON(t, srv.URL+"/api/v1/auth/register", payload,
		map[string]string{"x-admin-key": adminKey})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("register: got %d, want 201", resp.StatusCode)
	}

	resp, body = postJSON(t, srv.URL+"/api/v1/auth/register",
		map[string]string{"deviceId": "dev-1"}, map[string]string{"x-admin-key": adminKey})
	if resp.StatusCode != http.StatusBadRequest || body["error"] != "deviceId_and_secret_required" {
		t.Fatalf("missing secret: got %d %v", resp.StatusCode, body)
	}
}

func TestEndToEnd_RegisterLoginUploadQuery(t *testing.T) {
	srv := newTestServer(t)

	resp, _ := postJSON(t, srv.URL+"/api/v1/auth/register",
		map[string]string{"deviceId": "dev-1", "secret": "s3cret"},
		map[string]string{"x-admin-key": adminKey})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("register: got %d", resp.StatusCode)
	}

	token, _, status := login(t, srv, "dev-1", "s3cret")
	if status != http.StatusOK || token == "" {
		t.Fatalf("login: status=%d token=%q", status, token)
	}

	if _, _, status := login(t, srv, "dev-1", "wrong"); status != http.StatusUnauthorized {
		t.Fatalf("wrong secret login: got %d, want 401", status)
	}

	up := signedUpload(t, srv, token, "s3cret", "/api/v1/location", "nonce-e2e",
		[]byte(`{"lat":55.75,"lon":37.61}`))
	if up.StatusCode != http.StatusCreated {
		t.Fatalf("upload: got %d, want 201", up.StatusCode)
	}

	resp, body := getJSON(t, srv.URL+"/api/v1/admin/records/location",
		map[string]string{"x-admin-key": adminKey})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("records: got %d", resp.StatusCode)
	}
	items, _ := body["items"].([]interface{})
	if len(items) != 1 {
		t.Fatalf("expected exactly 1 location record, got %d", len(items))
	}
	rec, _ := items[0].(map[string]interface{})
	if rec["deviceId"] != "dev-1" {
		t.Fatalf("record deviceId=%v, want dev-1", rec["deviceId"])
	}
	if rec["serverReceivedAt"] == nil {
		t.Fatalf("record missing serverReceivedAt: %v", rec)
	}
}

func TestLogin_AutoRegistersAndTokenIsUsable(t *testing.T) {
	srv := newTestServer(t)

	token, body, status := login(t, srv, "dev-new", "fresh-secret")
	if status != http.StatusCreated {
		t.Fatalf("auto-register login: got %d, want 201", status)
	}
	if body["autoRegistered"] != true {
		t.Fatalf("autoRegistered=%v, want true", body["autoRegistered"])
	}

	up := signedUpload(t, srv, token, "fresh-secret", "/api/v1/heartbeat", "nonce-auto",
		[]byte(`{"battery":70}`))
	if up.StatusCode != http.StatusCreated {
		t.Fatalf("upload with auto-registered token: got %d", up.StatusCode)
	}
}

func TestUpload_TamperedBodyRejected(t *testing.T) {
	srv := newTestServer(t)
	token, _, _ := login(t, srv, "dev-1", "s3cret")

	path := "/api/v1/events"
	signedBody := []byte(`{"type":"ping"}`)
	sentBody := []byte(`{"type":"pong"}`)

	timestamp := time.Now().UnixMilli()
	signature := auth.Sign(crypto.SHA256Hex("s3cret"), http.MethodPost, path, timestamp, "nonce-tamper", signedBody)

	req, _ := http.NewRequest(http.MethodPost, srv.URL+path, bytes.NewReader(sentBody))
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("x-timestamp", fmt.Sprintf("%d", timestamp))
	req.Header.Set("x-nonce", "nonce-tamper")
	req.Header.Set("x-signature", signature)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("tampered body: got %d, want 401", resp.StatusCode)
	}
}

func TestUpload_MissingTokenRejected(t *testing.T) {
	srv := newTestServer(t)

	resp, body := postJSON(t, srv.URL+"/api/v1/heartbeat", map[string]int{"battery": 1}, nil)
	if resp.StatusCode != http.StatusUnauthorized || body["error"] != "missing_token" {
		t.Fatalf("got %d %v, want 401 missing_token", resp.StatusCode, body)
	}
}

func TestUpload_ConcurrentDuplicateNonce(t *testing.T) {
	srv := newTestServer(t)
	token, _, _ := login(t, srv, "dev-1", "s3cret")

	const nonce = "nonce-race"
	body := []byte(`{"battery":50}`)

	var wg sync.WaitGroup
	statuses := make(chan int, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			resp := signedUpload(t, srv, token, "s3cret", "/api/v1/heartbeat", nonce, body)
			statuses <- resp.StatusCode
		}()
	}
	wg.Wait()
	close(statuses)

	counts := map[int]int{}
	for code := range statuses {
		counts[code]++
	}
	if counts[http.StatusCreated] != 1 || counts[http.StatusConflict] != 1 {
		t.Fatalf("expected one 201 and one 409, got %v", counts)
	}
}

func TestAdminRecords_InvalidKindAndPluralAlias(t *testing.T) {
	srv := newTestServer(t)
	headers := map[string]string{"x-admin-key": adminKey}

	resp, body := getJSON(t, srv.URL+"/api/v1/admin/records/velocity", headers)
	if resp.StatusCode != http.StatusBadRequest || body["error"] != "invalid_kind" {
		t.Fatalf("invalid kind: got %d %v", resp.StatusCode, body)
	}

	// The dashboard historically used plural kind names.
	resp, body = getJSON(t, srv.URL+"/api/v1/admin/records/heartbeats", headers)
	if resp.StatusCode != http.StatusOK || body["kind"] != "heartbeat" {
		t.Fatalf("plural alias: got %d %v", resp.StatusCode, body)
	}
}

func TestAdminOverview(t *testing.T) {
	srv := newTestServer(t)
	token, _, _ := login(t, srv, "dev-1", "s3cret")
	signedUpload(t, srv, token, "s3cret", "/api/v1/location", "nonce-ov", []byte(`{"lat":1,"lon":2}`))

	resp, body := getJSON(t, srv.URL+"/api/v1/admin/overview",
		map[string]string{"x-admin-key": adminKey})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("overview: got %d", resp.StatusCode)
	}

	totals, _ := body["totals"].(map[string]interface{})
	if totals["devices"] != float64(1) || totals["locations"] != float64(1) {
		t.Fatalf("unexpected totals: %v", totals)
	}
	if _, hasStats := body["store"]; hasStats {
		t.Fatalf("file backend should not report store stats")
	}
}

func TestSignatureCannotBeReplayedAcrossEndpoints(t *testing.T) {
	srv := newTestServer(t)
	token, _, _ := login(t, srv, "dev-1", "s3cret")

	body := []byte(`{"type":"ping"}`)
	timestamp := time.Now().UnixMilli()
	// Signed for /events, sent to /heartbeat.
	signature := auth.Sign(crypto.SHA256Hex("s3cret"), http.MethodPost, "/api/v1/events", timestamp, "nonce-x", body)

	req, _ := http.NewRequest(http.MethodPost, srv.URL+"/api/v1/heartbeat", bytes.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("x-timestamp", fmt.Sprintf("%d", timestamp))
	req.Header.Set("x-nonce", "nonce-x")
	req.Header.Set("x-signature", signature)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("cross-endpoint signature: got %d, want 401", resp.StatusCode)
	}
}
