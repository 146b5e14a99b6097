// Package config loads and holds all redactor configuration.
// Settings are read from defaults, then redactor-config.json, then
// environment variables, each overriding the last. Go's net/http
// automatically respects HTTP_PROXY / HTTPS_PROXY env vars, so upstream
// (corporate) proxy chaining requires no extra code here.
package config

import (
	"encoding/json"
	"os"
	"strconv"
)

// Config holds the full redactor configuration: the proxy surface
// (ports, domains, TLS) and the redaction engine surface (pattern
// catalog, confidence threshold, audit ledger).
type Config struct {
	ProxyPort      int    `json:"proxyPort"`
	ManagementPort int    `json:"managementPort"`
	ManagementToken string `json:"managementToken"`
	LogLevel       string `json:"logLevel"`

	CACertFile  string `json:"caCertFile"`
	CAKeyFile   string `json:"caKeyFile"`
	BindAddress string `json:"bindAddress"`

	AIAPIDomains []string `json:"aiApiDomains"`
	AuthDomains  []string `json:"authDomains"`
	AuthPaths    []string `json:"authPaths"`

	// PatternCatalogPath, if non-empty, overrides the embedded default
	// catalog with a file on disk (spec.md §3's declarative YAML).
	PatternCatalogPath string `json:"patternCatalogPath"`

	// ConfidenceThreshold discards any accepted span scoring below it
	// before anonymization. 0 disables the filter (spec.md §4.7 does not
	// mandate a threshold; this is an operator-facing tightening knob).
	ConfidenceThreshold float64 `json:"confidenceThreshold"`

	// ExtraEntityTypes opts a site into the non-PHI passthrough entity
	// set described in SPEC_FULL.md §13.2. Only "PERSON" currently has a
	// recognizer (recognize.PassthroughPersons); other values are
	// accepted but have no effect until a facility that can detect them
	// is wired in. Empty by default, preserving spec.md's closed
	// PHI-only behavior.
	ExtraEntityTypes []string `json:"extraEntityTypes"`

	// AuditLedgerPath is where the bbolt-backed compliance ledger
	// (internal/audit) persists redaction metadata across restarts.
	AuditLedgerPath string `json:"auditLedgerPath"`
}

// Load returns config with defaults overridden by redactor-config.json
// and env vars.
func Load() *Config {
	cfg := defaults()
	loadFile(cfg, "redactor-config.json")
	loadEnv(cfg)
	return cfg
}

func defaults() *Config {
	return &Config{
		ProxyPort:           8080,
		ManagementPort:      8081,
		LogLevel:            "info",
		CACertFile:          "ca-cert.pem",
		CAKeyFile:           "ca-key.pem",
		BindAddress:         "127.0.0.1",
		ConfidenceThreshold: 0,
		AuditLedgerPath:     "redactor-audit.db",
		AIAPIDomains: []string{
			"api.anthropic.com",
			"api.openai.com",
			"api.cohere.ai",
			"generativelanguage.googleapis.com",
			"api.mistral.ai",
			"api.together.xyz",
			"api.perplexity.ai",
		},
		AuthDomains: []string{
			"accounts.google.com",
			"login.microsoftonline.com",
			"auth0.com",
			"okta.com",
		},
		AuthPaths: []string{
			"/auth", "/login", "/signin", "/signup", "/register",
			"/token", "/oauth", "/authenticate", "/session",
			"/v1/auth", "/api/auth", "/api/login", "/api/token",
		},
	}
}

func loadFile(cfg *Config, path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		return // file is optional
	}
	_ = json.Unmarshal(data, cfg) // malformed config file falls back to defaults silently; caller logs via logger, not this package
}

func loadEnv(cfg *Config) {
	if v := os.Getenv("PROXY_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.ProxyPort = n
		}
	}
	if v := os.Getenv("MANAGEMENT_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.ManagementPort = n
		}
	}
	if v := os.Getenv("MANAGEMENT_TOKEN"); v != "" {
		cfg.ManagementToken = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("CA_CERT_FILE"); v != "" {
		cfg.CACertFile = v
	}
	if v := os.Getenv("CA_KEY_FILE"); v != "" {
		cfg.CAKeyFile = v
	}
	if v := os.Getenv("BIND_ADDRESS"); v != "" {
		cfg.BindAddress = v
	}
	if v := os.Getenv("PATTERN_CATALOG_PATH"); v != "" {
		cfg.PatternCatalogPath = v
	}
	if v := os.Getenv("CONFIDENCE_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.ConfidenceThreshold = f
		}
	}
	if v := os.Getenv("AUDIT_LEDGER_PATH"); v != "" {
		cfg.AuditLedgerPath = v
	}
}
