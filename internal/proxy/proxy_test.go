package proxy

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/karim-bhalwani/context-aware-redactor/internal/config"
	"github.com/karim-bhalwani/context-aware-redactor/internal/logger"
	"github.com/karim-bhalwani/context-aware-redactor/internal/management"
)

func testConfig() *config.Config {
	return &config.Config{
		ProxyPort:    8080,
		AIAPIDomains: []string{"api.openai.com", "api.anthropic.com"},
		AuthDomains:  []string{"accounts.example.com"},
		AuthPaths:    []string{"/oauth/token"},
	}
}

func testLogger() *logger.Logger { return logger.New("TEST", "error") }

func newTestServer() *Server {
	cfg := testConfig()
	reg := management.NewDomainRegistry(cfg, "", testLogger())
	return New(cfg, reg, nil, nil, nil, testLogger())
}

func TestHostOnly(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"api.openai.com:443", "api.openai.com"},
		{"api.openai.com", "api.openai.com"},
		{"localhost:8080", "localhost"},
	}
	for _, c := range cases {
		if got := hostOnly(c.in); got != c.want {
			t.Errorf("hostOnly(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestToSet(t *testing.T) {
	s := toSet([]string{"a", "b", "a"})
	if len(s) != 2 {
		t.Errorf("expected 2 unique entries, got %d", len(s))
	}
	if !s["a"] || !s["b"] {
		t.Error("expected both a and b present")
	}
}

func TestIsAuthRequest_ExplicitDomain(t *testing.T) {
	s := newTestServer()
	if !s.isAuthRequest("accounts.example.com", "") {
		t.Error("expected accounts.example.com to be an auth domain")
	}
}

func TestIsAuthRequest_PrefixHeuristic(t *testing.T) {
	s := newTestServer()
	cases := []string{"auth.example.com", "login.example.com", "sso.example.com", "oauth.example.com"}
	for _, domain := range cases {
		if !s.isAuthRequest(domain, "") {
			t.Errorf("expected %s to be treated as an auth domain by prefix", domain)
		}
	}
}

func TestIsAuthRequest_PathPrefix(t *testing.T) {
	s := newTestServer()
	if !s.isAuthRequest("api.openai.com", "/oauth/token/refresh") {
		t.Error("expected configured auth path prefix to match")
	}
}

func TestIsAuthRequest_FalseForOrdinaryAPI(t *testing.T) {
	s := newTestServer()
	if s.isAuthRequest("api.openai.com", "/v1/chat/completions") {
		t.Error("expected ordinary API call to not be an auth request")
	}
}

func TestRemoveHopByHop(t *testing.T) {
	h := http.Header{}
	h.Set("Connection", "keep-alive")
	h.Set("Proxy-Authorization", "Bearer x")
	h.Set("Content-Type", "application/json")
	removeHopByHop(h)

	if h.Get("Connection") != "" {
		t.Error("Connection header should be removed")
	}
	if h.Get("Proxy-Authorization") != "" {
		t.Error("Proxy-Authorization header should be removed")
	}
	if h.Get("Content-Type") != "application/json" {
		t.Error("Content-Type should be preserved")
	}
}

func TestCopyHeader(t *testing.T) {
	src := http.Header{}
	src.Add("X-Multi", "1")
	src.Add("X-Multi", "2")
	dst := http.Header{}
	copyHeader(dst, src)

	if len(dst["X-Multi"]) != 2 {
		t.Errorf("expected 2 values copied, got %v", dst["X-Multi"])
	}
}

func TestHandleHTTP_PassthroughForNonAIDomain(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer upstream.Close()

	s := newTestServer()
	req := httptest.NewRequest(http.MethodGet, "http://example.com/health", nil)
	req.Host = "example.com"
	w := httptest.NewRecorder()

	// forward() dials directly, so point the URL at the local upstream
	// rather than the literal host header.
	req.URL.Scheme = "http"
	req.URL.Host = upstream.Listener.Addr().String()

	s.handleHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", w.Code)
	}
}
