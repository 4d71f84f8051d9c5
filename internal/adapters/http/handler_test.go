package httpadapter

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dmendiola/wagate/internal/adapters/auth"
	"github.com/dmendiola/wagate/internal/adapters/qr"
	"github.com/dmendiola/wagate/internal/adapters/storage/memory"
	"github.com/dmendiola/wagate/internal/adapters/wa"
	"github.com/dmendiola/wagate/internal/app/outbound"
	"github.com/dmendiola/wagate/internal/app/session"
	"github.com/dmendiola/wagate/internal/domain"
)

const apiUID = "15551234567"

type testEnv struct {
	srv     *httptest.Server
	factory *wa.MockFactory
	regs    *memory.RegistrationStore
}

func newTestServer(t *testing.T) *testEnv {
	t.Helper()

	store := session.NewStore()
	locks := session.NewPerKeyLock()
	factory := wa.NewMockFactory()
	regs := memory.NewRegistrationStore()

	lifecycle := session.NewLifecycle(store, locks, factory, regs,
		qr.NewEncoder(), nil, time.Minute)
	dispatcher := outbound.NewDispatcher(store, locks, factory, nil)
	tokens := auth.NewJWTIssuer("test-secret", time.Hour)

	srv := httptest.NewServer(NewServer(lifecycle, dispatcher, regs, tokens))
	t.Cleanup(srv.Close)

	return &testEnv{srv: srv, factory: factory, regs: regs}
}

type apiEnvelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func postJSON(t *testing.T, url string, body any) (*http.Response, []byte) {
	t.Helper()
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshaling request: %v", err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	defer resp.Body.Close()
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(resp.Body); err != nil {
		t.Fatalf("reading response: %v", err)
	}
	return resp, buf.Bytes()
}

func decodeEnvelope(t *testing.T, raw []byte) apiEnvelope {
	t.Helper()
	var env apiEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		t.Fatalf("response is not an envelope: %v (%s)", err, raw)
	}
	return env
}

// register drives the pairing flow to completion and returns the token.
func register(t *testing.T, env *testEnv, authenticate bool) string {
	t.Helper()

	client := wa.NewMockClient()
	client.Emit(domain.QREvent{Code: "pairing"})
	env.factory.QueueClient(client)

	resp, raw := postJSON(t, env.srv.URL+"/api/register", map[string]string{"uid": apiUID})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("register status = %d (%s)", resp.StatusCode, raw)
	}
	out := decodeEnvelope(t, raw)
	var data struct {
		QRCode string `json:"qrCode"`
		Token  string `json:"token"`
	}
	if err := json.Unmarshal(out.Data, &data); err != nil {
		t.Fatalf("register payload: %v", err)
	}
	if data.QRCode == "" || data.Token == "" {
		t.Fatalf("register payload incomplete: %s", out.Data)
	}

	if authenticate {
		client.Emit(domain.ReadyEvent{})
		deadline := time.Now().Add(2 * time.Second)
		for time.Now().Before(deadline) {
			if reg, err := env.regs.Get(t.Context(), domain.UID(apiUID)); err == nil && reg.Authenticated {
				return data.Token
			}
			time.Sleep(5 * time.Millisecond)
		}
		t.Fatalf("session never became authenticated")
	}
	return data.Token
}

func TestHealthz(t *testing.T) {
	env := newTestServer(t)

	resp, err := http.Get(env.srv.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}

func TestRegisterReturnsQRAndToken(t *testing.T) {
	env := newTestServer(t)
	token := register(t, env, false)

	reg, err := env.regs.Get(t.Context(), domain.UID(apiUID))
	if err != nil {
		t.Fatalf("no registration stored: %v", err)
	}
	if reg.Token != token {
		t.Fatalf("stored token differs from the returned one")
	}
}

func TestRegisterRequiresUID(t *testing.T) {
	env := newTestServer(t)

	resp, raw := postJSON(t, env.srv.URL+"/api/register", map[string]string{})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if out := decodeEnvelope(t, raw); out.Success {
		t.Fatalf("error envelope reports success")
	}
}

func TestRegisterRejectsAuthenticatedUID(t *testing.T) {
	env := newTestServer(t)
	register(t, env, true)

	resp, _ := postJSON(t, env.srv.URL+"/api/register", map[string]string{"uid": apiUID})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("re-register of an authenticated uid: status = %d", resp.StatusCode)
	}
}

func TestStatusLifecycle(t *testing.T) {
	env := newTestServer(t)

	get := func() string {
		resp, err := http.Get(env.srv.URL + "/api/status/" + apiUID)
		if err != nil {
			t.Fatalf("GET status: %v", err)
		}
		defer resp.Body.Close()
		var buf bytes.Buffer
		_, _ = buf.ReadFrom(resp.Body)
		out := decodeEnvelope(t, buf.Bytes())
		var data struct {
			Status string `json:"status"`
		}
		_ = json.Unmarshal(out.Data, &data)
		return data.Status
	}

	if got := get(); got != "not_found" {
		t.Fatalf("fresh uid status = %q", got)
	}

	register(t, env, true)
	if got := get(); got != "authenticated" {
		t.Fatalf("post-auth status = %q", got)
	}
}

func TestDisconnectUnknownUID(t *testing.T) {
	env := newTestServer(t)

	resp, raw := postJSON(t, env.srv.URL+"/api/disconnect/"+apiUID, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var out struct {
		Success bool   `json:"success"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		t.Fatalf("decoding: %v", err)
	}
	if out.Success || out.Message != "session not found" {
		t.Fatalf("unexpected payload: %+v", out)
	}
}

func TestDisconnectRemovesSession(t *testing.T) {
	env := newTestServer(t)
	register(t, env, true)

	resp, raw := postJSON(t, env.srv.URL+"/api/disconnect/"+apiUID, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d (%s)", resp.StatusCode, raw)
	}
	var out struct {
		Success bool `json:"success"`
	}
	_ = json.Unmarshal(raw, &out)
	if !out.Success {
		t.Fatalf("disconnect of a live session failed: %s", raw)
	}
}

func TestSendChatRequiresToken(t *testing.T) {
	env := newTestServer(t)
	register(t, env, true)

	resp, _ := postJSON(t, env.srv.URL+"/api/send/chat", map[string]string{
		"uid": apiUID, "to": "15550001111", "text": "hi",
	})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", resp.StatusCode)
	}
}

func TestSendChatRejectsForeignToken(t *testing.T) {
	env := newTestServer(t)
	register(t, env, true)

	foreign, err := auth.NewJWTIssuer("other-secret", time.Hour).Issue(domain.UID(apiUID))
	if err != nil {
		t.Fatalf("issuing token: %v", err)
	}

	resp, _ := postJSON(t, env.srv.URL+"/api/send/chat", map[string]string{
		"token": foreign, "uid": apiUID, "to": "15550001111", "text": "hi",
	})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", resp.StatusCode)
	}
}

func TestSendChatDeliversThroughSession(t *testing.T) {
	env := newTestServer(t)
	token := register(t, env, true)

	resp, raw := postJSON(t, env.srv.URL+"/api/send/chat", map[string]string{
		"token": token, "uid": apiUID, "to": "15550001111", "text": "hi",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d (%s)", resp.StatusCode, raw)
	}
	var out struct {
		Status string `json:"status"`
	}
	_ = json.Unmarshal(raw, &out)
	if out.Status != "sent" {
		t.Fatalf("send status = %q", out.Status)
	}
}

func TestSendChatWithoutLiveSession(t *testing.T) {
	env := newTestServer(t)
	token := register(t, env, true)

	// tear the session down, keep the registration token valid in shape
	postJSON(t, env.srv.URL+"/api/disconnect/"+apiUID, nil)

	// the registration is gone too, so the token no longer authorizes
	resp, _ := postJSON(t, env.srv.URL+"/api/send/chat", map[string]string{
		"token": token, "uid": apiUID, "to": "15550001111", "text": "hi",
	})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401 after disconnect", resp.StatusCode)
	}
}

func TestSendMediaWithoutSession(t *testing.T) {
	env := newTestServer(t)
	token := register(t, env, false) // QR issued, never scanned

	resp, raw := postJSON(t, env.srv.URL+"/api/send/media", map[string]string{
		"token": token, "uid": apiUID, "to": "15550001111",
		"url": "https://cdn.example.com/photo.jpg",
	})
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404 (%s)", resp.StatusCode, raw)
	}
	var out struct {
		Status string `json:"status"`
	}
	_ = json.Unmarshal(raw, &out)
	if out.Status != "session_not_found" {
		t.Fatalf("send status = %q", out.Status)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	env := newTestServer(t)

	resp, err := http.Get(env.srv.URL + "/api/register")
	if err != nil {
		t.Fatalf("GET /api/register: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}
