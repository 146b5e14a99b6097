// Package proxy implements the core HTTP(S) proxy server that fronts the
// redaction engine.
//
// Traffic flow:
//   - HTTPS CONNECT requests to an AI API domain: TLS-terminated via
//     internal/mitm so the request body can be redacted before forwarding.
//   - HTTPS CONNECT requests to any other domain: tunneled transparently,
//     no TLS termination, no inspection.
//   - HTTP requests to AI API domains: body is redacted before forwarding.
//   - HTTP requests to auth domains/paths, and everything else: passed
//     through unchanged.
//
// Upstream proxy (corporate proxy) chaining is automatic: Go's net/http
// respects HTTP_PROXY / HTTPS_PROXY / NO_PROXY environment variables
// natively. No extra configuration is needed — just set those env vars
// before starting.
package proxy

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/karim-bhalwani/context-aware-redactor/internal/audit"
	"github.com/karim-bhalwani/context-aware-redactor/internal/config"
	"github.com/karim-bhalwani/context-aware-redactor/internal/logger"
	"github.com/karim-bhalwani/context-aware-redactor/internal/management"
	"github.com/karim-bhalwani/context-aware-redactor/internal/metrics"
	"github.com/karim-bhalwani/context-aware-redactor/internal/mitm"
	"github.com/karim-bhalwani/context-aware-redactor/internal/redactor"
	"github.com/karim-bhalwani/context-aware-redactor/internal/rerrors"
)

// Server is the HTTP(S) proxy server.
type Server struct {
	cfg         *config.Config
	log         *logger.Logger
	domains     *management.DomainRegistry
	authDomains map[string]bool
	authPaths   map[string]bool
	transport   *http.Transport
	ca          *mitm.CA // nil disables HTTPS interception; CONNECT tunnels raw
	metrics     *metrics.Metrics
	ledger      *audit.Ledger // nil disables audit recording
	idSeq       int64
}

// New creates and configures a new proxy server. ca may be nil, in which
// case CONNECT requests are always tunneled raw and HTTPS bodies are
// never redacted (only plain-HTTP AI API traffic is).
func New(cfg *config.Config, domains *management.DomainRegistry, ca *mitm.CA, m *metrics.Metrics, ledger *audit.Ledger, log *logger.Logger) *Server {
	s := &Server{
		cfg:         cfg,
		log:         log,
		domains:     domains,
		authDomains: toSet(cfg.AuthDomains),
		authPaths:   toSet(cfg.AuthPaths),
		ca:          ca,
		metrics:     m,
		ledger:      ledger,
	}

	s.transport = &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          200,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		ForceAttemptHTTP2:     true,
	}

	return s
}

// ServeHTTP dispatches incoming proxy requests.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodConnect {
		s.handleTunnel(w, r)
		return
	}
	s.handleHTTP(w, r)
}

// handleTunnel handles HTTPS CONNECT requests. A CONNECT to a registered
// AI API domain is TLS-terminated so the plaintext request body can be
// redacted; every other CONNECT is tunneled byte-for-byte with no
// inspection, exactly as the teacher's original proxy always did.
func (s *Server) handleTunnel(w http.ResponseWriter, r *http.Request) {
	host := r.Host
	domain := hostOnly(host)

	if s.ca != nil && s.domains.Has(domain) && !s.isAuthRequest(domain, "") {
		s.log.Infof("tunnel_intercept", "CONNECT %s (redaction enabled)", domain)
		s.interceptTunnel(w, host, domain)
		return
	}

	s.log.Infof("tunnel_pass", "CONNECT %s (opaque)", domain)
	s.rawTunnel(w, host)
}

// interceptTunnel hijacks the client connection, terminates TLS for host
// via the local CA, and serves the decrypted requests through the same
// redaction-forwarding handler plain HTTP traffic uses.
func (s *Server) interceptTunnel(w http.ResponseWriter, host, domain string) {
	hijacker, ok := w.(http.Hijacker)
	if !ok {
		http.Error(w, "hijacking not supported", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK) // "200 Connection established"
	clientConn, _, err := hijacker.Hijack()
	if err != nil {
		s.log.Errorf("tunnel_hijack", "hijack failed for %s: %v", domain, err)
		return
	}
	mitm.HandleConn(clientConn, host, s.ca, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.Host = host
		r.URL.Scheme = "https"
		r.URL.Host = host
		s.handleHTTP(w, r)
	}))
}

// rawTunnel establishes a plain TCP tunnel with no TLS termination.
func (s *Server) rawTunnel(w http.ResponseWriter, host string) {
	destConn, err := net.DialTimeout("tcp", host, 20*time.Second)
	if err != nil {
		http.Error(w, fmt.Sprintf("cannot connect to %s: %v", host, err), http.StatusBadGateway)
		return
	}
	defer destConn.Close() //nolint:errcheck // best-effort close

	hijacker, ok := w.(http.Hijacker)
	if !ok {
		http.Error(w, "hijacking not supported", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
	clientConn, _, err := hijacker.Hijack()
	if err != nil {
		s.log.Errorf("tunnel_hijack", "hijack failed for %s: %v", host, err)
		return
	}
	defer clientConn.Close() //nolint:errcheck // best-effort close

	done := make(chan struct{}, 2)
	go func() { io.Copy(destConn, clientConn); done <- struct{}{} }() //nolint:errcheck
	go func() { io.Copy(clientConn, destConn); done <- struct{}{} }() //nolint:errcheck
	<-done
}

// handleHTTP handles plain HTTP proxy requests, and decrypted requests
// relayed from interceptTunnel.
func (s *Server) handleHTTP(w http.ResponseWriter, r *http.Request) {
	host := r.Host
	if host == "" {
		host = r.URL.Host
	}
	domain := hostOnly(host)

	isAuth := s.isAuthRequest(domain, r.URL.Path)
	isAI := s.domains.Has(domain)

	tag := "pass"
	if isAuth {
		tag = "auth_pass"
	} else if isAI {
		tag = "redact"
	}
	s.log.Infof("http_request", "%s %s%s [%s]", r.Method, domain, r.URL.Path, tag)

	if isAI && !isAuth {
		if err := s.redactRequestBody(r); err != nil {
			s.log.Errorf("http_redact", "redaction error for %s: %v", domain, err)
		}
	}

	s.forward(w, r)
}

func (s *Server) forward(w http.ResponseWriter, r *http.Request) {
	if r.URL.Scheme == "" {
		r.URL.Scheme = "http"
	}
	if r.URL.Host == "" {
		r.URL.Host = r.Host
	}

	r.RequestURI = ""
	removeHopByHop(r.Header)

	resp, err := s.transport.RoundTrip(r)
	if err != nil {
		http.Error(w, fmt.Sprintf("proxy error: %v", err), http.StatusBadGateway)
		return
	}
	defer resp.Body.Close() //nolint:errcheck // best-effort close

	removeHopByHop(resp.Header)
	copyHeader(w.Header(), resp.Header)
	w.WriteHeader(resp.StatusCode)
	io.Copy(w, resp.Body) //nolint:errcheck
}

// redactRequestBody replaces the request body in place with its redacted
// form, via the same Service Façade a library caller would use directly.
// A failed redaction forwards the original body unchanged rather than
// blocking the request: a clinic's outbound AI traffic must not go dark
// because one note tripped a recognizer fault.
func (s *Server) redactRequestBody(r *http.Request) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}

	body, err := io.ReadAll(r.Body)
	r.Body.Close() //nolint:errcheck // best-effort close
	if err != nil {
		return err
	}

	s.idSeq++
	requestID := fmt.Sprintf("%d-%d", time.Now().Unix(), s.idSeq)

	start := time.Now()
	result, err := redactor.Redact(context.Background(), string(body))
	duration := time.Since(start)
	if err != nil {
		s.recordFailure(requestID, err)
		r.Body = io.NopCloser(bytes.NewReader(body))
		return err
	}

	s.recordSuccess(requestID, result, duration)
	redacted := []byte(result.Redacted)
	r.Body = io.NopCloser(bytes.NewReader(redacted))
	r.ContentLength = int64(len(redacted))
	r.Header.Set("Content-Length", fmt.Sprintf("%d", len(redacted)))
	return nil
}

func (s *Server) recordSuccess(requestID string, result redactor.Result, d time.Duration) {
	if s.metrics != nil {
		s.metrics.RecordResult(result.Spans, d)
	}
	if s.ledger != nil {
		if err := s.ledger.Record(audit.Entry{
			RequestID:  requestID,
			Timestamp:  time.Now(),
			EngineName: result.Metadata.EngineName,
			Count:      result.Metadata.Count,
			Types:      result.Metadata.Types,
			DurationMs: float64(d.Microseconds()) / 1000.0,
		}); err != nil {
			s.log.Errorf("audit_write", "record: %v", err)
		}
	}
}

func (s *Server) recordFailure(requestID string, err error) {
	kind := "InternalError"
	if rerr, ok := asKind(err); ok {
		kind = rerr
	}
	if s.metrics != nil {
		s.metrics.RecordFailure(kind)
	}
	if s.ledger != nil {
		if werr := s.ledger.Record(audit.Entry{
			RequestID: requestID,
			Timestamp: time.Now(),
			Failed:    true,
			ErrorKind: kind,
		}); werr != nil {
			s.log.Errorf("audit_write", "record: %v", werr)
		}
	}
}

// asKind extracts the classified error kind from a redaction failure, for
// metrics and audit purposes only — never the message or cause.
func asKind(err error) (string, bool) {
	rerr, ok := rerrors.As(err)
	if !ok {
		return "", false
	}
	return string(rerr.Kind), true
}

func (s *Server) isAuthRequest(domain, path string) bool {
	if s.authDomains[domain] {
		return true
	}
	authPrefixes := []string{"auth.", "login.", "accounts.", "sso.", "oauth."}
	for _, prefix := range authPrefixes {
		if strings.HasPrefix(domain, prefix) {
			return true
		}
	}
	for authPath := range s.authPaths {
		if authPath != "" && strings.HasPrefix(path, authPath) {
			return true
		}
	}
	return false
}

// --- helpers ---

func hostOnly(hostport string) string {
	if h, _, err := net.SplitHostPort(hostport); err == nil {
		return h
	}
	return hostport
}

func toSet(items []string) map[string]bool {
	m := make(map[string]bool, len(items))
	for _, v := range items {
		m[v] = true
	}
	return m
}

var hopByHopHeaders = []string{
	"Connection", "Keep-Alive", "Proxy-Authenticate", "Proxy-Authorization",
	"Te", "Trailers", "Transfer-Encoding", "Upgrade", "Proxy-Connection",
}

func removeHopByHop(h http.Header) {
	for _, v := range hopByHopHeaders {
		h.Del(v)
	}
}

func copyHeader(dst, src http.Header) {
	for k, vv := range src {
		for _, v := range vv {
			dst.Add(k, v)
		}
	}
}
