// Package management provides a lightweight HTTP API for runtime
// inspection and configuration of the running redactor proxy.
//
// Endpoints:
//
//	GET  /status          - process health, uptime, current AI domain list
//	GET  /metrics          - redaction engine counters (spec.md §3 metadata only)
//	GET  /audit             - recent audit-ledger entries and aggregate stats
//	POST /domains/add     - add an AI API domain {"domain":"api.example.com"}
//	POST /domains/remove  - remove an AI API domain {"domain":"api.example.com"}
package management

import (
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/karim-bhalwani/context-aware-redactor/internal/audit"
	"github.com/karim-bhalwani/context-aware-redactor/internal/config"
	"github.com/karim-bhalwani/context-aware-redactor/internal/logger"
	"github.com/karim-bhalwani/context-aware-redactor/internal/metrics"
)

// Server is the management API server.
type Server struct {
	cfg       *config.Config
	log       *logger.Logger
	startTime time.Time
	domains   *DomainRegistry
	token     string           // bearer token for auth; empty = no auth
	metrics   *metrics.Metrics // nil = no metrics
	ledger    *audit.Ledger    // nil = no audit ledger
}

// DomainRegistry holds the mutable set of AI API domains.
// It is shared between the proxy and management server.
// Changes are persisted to disk via atomic file writes so they
// survive proxy restarts.
type DomainRegistry struct {
	mu          sync.RWMutex
	domains     map[string]bool
	persistPath string // empty = no persistence
	log         *logger.Logger
}

// NewDomainRegistry creates a registry seeded from the config defaults.
// If persistPath is non-empty and the file exists, its contents take
// precedence over config defaults (it represents runtime overrides).
func NewDomainRegistry(cfg *config.Config, persistPath string, log *logger.Logger) *DomainRegistry {
	r := &DomainRegistry{
		domains:     make(map[string]bool, len(cfg.AIAPIDomains)),
		persistPath: persistPath,
		log:         log,
	}

	if persistPath != "" {
		domains, err := r.loadFromDisk()
		switch {
		case err == nil:
			for _, d := range domains {
				r.domains[d] = true
			}
			log.Infof("domains_load", "loaded %d domains from %s", len(domains), persistPath)
			return r
		case !os.IsNotExist(err):
			log.Warnf("domains_load", "failed to load %s: %v (using config defaults)", persistPath, err)
		}
	}

	for _, d := range cfg.AIAPIDomains {
		r.domains[d] = true
	}
	return r
}

// Has returns true if the domain is registered as an AI API domain.
func (r *DomainRegistry) Has(domain string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.domains[domain]
}

// Add adds a domain to the registry and persists to disk.
func (r *DomainRegistry) Add(domain string) {
	r.mu.Lock()
	r.domains[domain] = true
	snapshot := r.snapshotLocked()
	r.mu.Unlock()
	r.persist(snapshot)
}

// Remove removes a domain from the registry and persists to disk.
func (r *DomainRegistry) Remove(domain string) {
	r.mu.Lock()
	delete(r.domains, domain)
	snapshot := r.snapshotLocked()
	r.mu.Unlock()
	r.persist(snapshot)
}

// All returns a sorted slice of all registered domains.
func (r *DomainRegistry) All() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.snapshotLocked()
}

func (r *DomainRegistry) loadFromDisk() ([]string, error) {
	data, err := os.ReadFile(r.persistPath)
	if err != nil {
		return nil, err
	}
	var domains []string
	if err := json.Unmarshal(data, &domains); err != nil {
		return nil, fmt.Errorf("parse %s: %w", r.persistPath, err)
	}
	return domains, nil
}

// snapshotLocked returns a sorted copy of the current domain set.
// Caller must hold r.mu (for read or write).
func (r *DomainRegistry) snapshotLocked() []string {
	out := make([]string, 0, len(r.domains))
	for d := range r.domains {
		out = append(out, d)
	}
	sort.Strings(out)
	return out
}

// persist writes the given domain snapshot to disk atomically.
// It does NOT hold r.mu, so it won't block Has/All calls.
func (r *DomainRegistry) persist(domains []string) {
	if r.persistPath == "" {
		return
	}

	data, err := json.MarshalIndent(domains, "", "  ")
	if err != nil {
		r.log.Errorf("domains_persist", "marshal error: %v", err)
		return
	}

	dir := filepath.Dir(r.persistPath)
	tmp, err := os.CreateTemp(dir, ".redactor-domains-*.tmp")
	if err != nil {
		r.log.Errorf("domains_persist", "create temp: %v", err)
		return
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()        //nolint:errcheck // best-effort cleanup
		os.Remove(tmpName) //nolint:errcheck // #nosec G703 -- tmpName from os.CreateTemp, not user input
		r.log.Errorf("domains_persist", "write: %v", err)
		return
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName) //nolint:errcheck // #nosec G703 -- tmpName from os.CreateTemp, not user input
		r.log.Errorf("domains_persist", "close: %v", err)
		return
	}
	if err := os.Rename(tmpName, r.persistPath); err != nil { // #nosec G703 -- paths from trusted config
		os.Remove(tmpName) //nolint:errcheck // #nosec G703 -- tmpName from os.CreateTemp, not user input
		r.log.Errorf("domains_persist", "rename: %v", err)
		return
	}
}

// New creates a management server.
func New(cfg *config.Config, registry *DomainRegistry, m *metrics.Metrics, ledger *audit.Ledger, log *logger.Logger) *Server {
	s := &Server{
		cfg:       cfg,
		log:       log,
		startTime: time.Now(),
		domains:   registry,
		token:     cfg.ManagementToken,
		metrics:   m,
		ledger:    ledger,
	}
	if s.token != "" {
		log.Info("management_init", "bearer token authentication enabled")
	}
	return s
}

// Handler returns the HTTP handler for the management API.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/metrics", s.handleMetrics)
	mux.HandleFunc("/audit", s.handleAudit)
	mux.HandleFunc("/domains/add", s.handleAddDomain)
	mux.HandleFunc("/domains/remove", s.handleRemoveDomain)
	return s.authMiddleware(mux)
}

// authMiddleware checks for a valid Bearer token if one is configured.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.token == "" {
			next.ServeHTTP(w, r)
			return
		}
		auth := r.Header.Get("Authorization")
		const prefix = "Bearer "
		if !strings.HasPrefix(auth, prefix) ||
			subtle.ConstantTimeCompare([]byte(strings.TrimSpace(auth[len(prefix):])), []byte(s.token)) != 1 {
			s.log.Warnf("management_auth", "unauthorized access attempt to %s", r.URL.Path)
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// domainRegexp validates a DNS hostname (RFC 952 / RFC 1123).
var domainRegexp = regexp.MustCompile(
	`^[a-zA-Z0-9]([a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?(\.[a-zA-Z0-9]([a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?)*$`,
)

func validDomain(d string) bool {
	return len(d) <= 253 && domainRegexp.MatchString(d)
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	type response struct {
		Status    string   `json:"status"`
		Uptime    string   `json:"uptime"`
		ProxyPort int      `json:"proxyPort"`
		Domains   []string `json:"aiApiDomains"`
		Engine    string   `json:"engineName"`
	}

	resp := response{
		Status:    "running",
		Uptime:    time.Since(s.startTime).Round(time.Second).String(),
		ProxyPort: s.cfg.ProxyPort,
		Domains:   s.domains.All(),
		Engine:    "context-aware-redactor",
	}
	writeJSON(s, w, http.StatusOK, resp)
}

func (s *Server) handleAddDomain(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "POST only", http.StatusMethodNotAllowed)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, 1024)
	var req struct {
		Domain string `json:"domain"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Domain == "" {
		http.Error(w, `invalid request: need {"domain":"..."}`, http.StatusBadRequest)
		return
	}
	req.Domain = strings.ToLower(req.Domain)
	if !validDomain(req.Domain) {
		http.Error(w, "invalid domain name", http.StatusBadRequest)
		return
	}
	s.domains.Add(req.Domain)
	s.log.Infof("domains_add", "added AI domain: %s", req.Domain)
	writeJSON(s, w, http.StatusOK, map[string]string{"added": req.Domain})
}

func (s *Server) handleRemoveDomain(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "POST only", http.StatusMethodNotAllowed)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, 1024)
	var req struct {
		Domain string `json:"domain"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Domain == "" {
		http.Error(w, `invalid request: need {"domain":"..."}`, http.StatusBadRequest)
		return
	}
	req.Domain = strings.ToLower(req.Domain)
	if !validDomain(req.Domain) {
		http.Error(w, "invalid domain name", http.StatusBadRequest)
		return
	}
	s.domains.Remove(req.Domain)
	s.log.Infof("domains_remove", "removed AI domain: %s", req.Domain)
	writeJSON(s, w, http.StatusOK, map[string]string{"removed": req.Domain})
}

func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	if s.metrics == nil {
		http.Error(w, "metrics not enabled", http.StatusServiceUnavailable)
		return
	}
	writeJSON(s, w, http.StatusOK, s.metrics.Snapshot())
}

func (s *Server) handleAudit(w http.ResponseWriter, r *http.Request) {
	if s.ledger == nil {
		http.Error(w, "audit ledger not enabled", http.StatusServiceUnavailable)
		return
	}
	recent, err := s.ledger.Recent(50)
	if err != nil {
		s.log.Errorf("audit_read", "recent: %v", err)
		http.Error(w, "audit read error", http.StatusInternalServerError)
		return
	}
	stats, err := s.ledger.Summarize()
	if err != nil {
		s.log.Errorf("audit_read", "summarize: %v", err)
		http.Error(w, "audit read error", http.StatusInternalServerError)
		return
	}
	_ = r
	writeJSON(s, w, http.StatusOK, struct {
		Stats  any `json:"stats"`
		Recent any `json:"recent"`
	}{Stats: stats, Recent: recent})
}

func writeJSON(s *Server, w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Errorf("management_encode", "json encode error: %v", err)
	}
}

// ListenAndServe starts the management HTTP server.
func (s *Server) ListenAndServe() error {
	addr := fmt.Sprintf("127.0.0.1:%d", s.cfg.ManagementPort)
	s.log.Infof("management_listen", "listening on %s", addr)
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return srv.ListenAndServe()
}
