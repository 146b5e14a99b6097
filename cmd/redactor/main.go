// Command redactor is the context-aware clinical-note redaction proxy.
//
// It intercepts outbound HTTP(S) requests to known AI API domains,
// redacts Canadian PHI/PII in the request body using the two-pass
// recognizer pipeline (internal/orchestrator), then forwards the
// redacted request to the original destination. Authentication and
// OAuth endpoints always pass through unchanged, and any domain not on
// the AI API list is tunneled opaquely.
//
// Upstream proxy chaining (e.g. a corporate proxy) is automatic: Go's
// net/http reads HTTP_PROXY / HTTPS_PROXY / NO_PROXY from the
// environment. No extra configuration is required — set those env vars
// before starting this process.
//
// Usage:
//
//	# Direct internet access
//	./redactor
//
//	# Behind a corporate proxy
//	HTTPS_PROXY=http://corporate-proxy:8888 ./redactor
//
//	# Custom ports
//	PROXY_PORT=3128 MANAGEMENT_PORT=3129 ./redactor
package main

import (
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/karim-bhalwani/context-aware-redactor/internal/audit"
	"github.com/karim-bhalwani/context-aware-redactor/internal/config"
	"github.com/karim-bhalwani/context-aware-redactor/internal/logger"
	"github.com/karim-bhalwani/context-aware-redactor/internal/management"
	"github.com/karim-bhalwani/context-aware-redactor/internal/metrics"
	"github.com/karim-bhalwani/context-aware-redactor/internal/mitm"
	"github.com/karim-bhalwani/context-aware-redactor/internal/proxy"
	"github.com/karim-bhalwani/context-aware-redactor/internal/redactor"
)

func main() {
	cfg := config.Load()
	log := logger.New("main", cfg.LogLevel)

	redactor.Configure(cfg.PatternCatalogPath, cfg.ConfidenceThreshold, cfg.ExtraEntityTypes)

	printBanner(cfg)

	m := metrics.New()

	ledger, err := audit.Open(cfg.AuditLedgerPath)
	if err != nil {
		log.Fatalf("audit_init", "failed to open audit ledger: %v", err)
	}
	defer ledger.Close() //nolint:errcheck // best-effort close on shutdown

	ca, err := mitm.LoadOrGenerateCA(cfg.CACertFile, cfg.CAKeyFile)
	if err != nil {
		log.Warnf("mitm_init", "TLS interception disabled, HTTPS traffic will be tunneled opaquely: %v", err)
		ca = nil
	}

	// Build the management domain registry so both servers share the same
	// state. Runtime domain changes are persisted to ai-domains.json and
	// restored on restart.
	registry := management.NewDomainRegistry(cfg, "ai-domains.json", logger.New("domains", cfg.LogLevel))

	// Start management API in background. Fatal is intentional: the proxy
	// should not run without its control plane.
	mgmt := management.New(cfg, registry, m, ledger, logger.New("management", cfg.LogLevel))
	go func() {
		if err := mgmt.ListenAndServe(); err != nil {
			log.Fatalf("management_listen", "fatal: %v", err)
		}
	}()

	proxyServer := proxy.New(cfg, registry, ca, m, ledger, logger.New("proxy", cfg.LogLevel))

	addr := fmt.Sprintf("%s:%d", cfg.BindAddress, cfg.ProxyPort)
	log.Infof("proxy_listen", "listening on %s", addr)

	srv := &http.Server{
		Addr:              addr,
		Handler:           proxyServer,
		ReadHeaderTimeout: 10 * time.Second,
	}

	if err := srv.ListenAndServe(); err != nil {
		log.Fatalf("proxy_listen", "fatal: %v", err)
	}
}

func printBanner(cfg *config.Config) {
	upstreamProxy := os.Getenv("HTTPS_PROXY")
	if upstreamProxy == "" {
		upstreamProxy = os.Getenv("HTTP_PROXY")
	}
	if upstreamProxy == "" {
		upstreamProxy = "(direct — set HTTP_PROXY or HTTPS_PROXY to chain upstream)"
	}

	fmt.Printf(`
╔══════════════════════════════════════════════════════╗
║        Context-Aware Clinical Redactor (Go)          ║
╚══════════════════════════════════════════════════════╝
  Proxy port       : %d
  Management port  : %d
  Upstream proxy   : %s
  Audit ledger     : %s

  Point clients here:
    export HTTP_PROXY=http://localhost:%d
    export HTTPS_PROXY=http://localhost:%d

  Check status:
    curl http://localhost:%d/status
`, cfg.ProxyPort, cfg.ManagementPort,
		upstreamProxy,
		cfg.AuditLedgerPath,
		cfg.ProxyPort, cfg.ProxyPort,
		cfg.ManagementPort)
}
