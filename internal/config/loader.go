// Package config loads process configuration from INTELLIDESK_* environment
// variables and the office catalog from YAML.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/example/intellidesk/internal/logging"
)

// Prefix is prepended to every variable name.
const Prefix = "INTELLIDESK_"

const bridgeTokenPrefix = Prefix + "BRIDGE_TOKEN_"

// Config captures environment driven configuration values for the service.
type Config struct {
	HTTPPort            int
	SQLiteDSN           string
	HistoryRetention    int
	CatalogPath         string
	FlowTTL             time.Duration
	HistoryWindow       int
	ConfidenceThreshold float64
	AdapterTimeout      time.Duration
	SweepInterval       time.Duration
	CodeSecret          string

	LLMURL          string
	ClassifierModel string
	ExtractorModel  string
	TicketModel     string

	BridgeURL string
	// BridgeTokens maps folded account keys (WEBEX_1) to bearer tokens.
	BridgeTokens map[string]string

	SMTPAddr     string
	SMTPFrom     string
	SMTPUsername string
	SMTPPassword string
	SMTPDomain   string

	AuditLogPath      string
	ChatRatePerMinute int
	Admins            []string
	LogLevel          slog.Level
}

// Defaults returns the configuration used for unset variables.
func Defaults() Config {
	return Config{
		HTTPPort:            8080,
		SQLiteDSN:           "intellidesk.db",
		HistoryRetention:    20,
		FlowTTL:             15 * time.Minute,
		HistoryWindow:       12,
		ConfidenceThreshold: 0.6,
		AdapterTimeout:      20 * time.Second,
		SweepInterval:       time.Minute,
		LLMURL:              "http://localhost:11434",
		ClassifierModel:     "orchestrator-model",
		ExtractorModel:      "portal-model",
		TicketModel:         "ticket-model",
		BridgeURL:           "https://webexapis.com/v1/meetings",
		BridgeTokens:        map[string]string{},
		AuditLogPath:        "audit.log",
		ChatRatePerMinute:   30,
		LogLevel:            slog.LevelInfo,
	}
}

// SMTPEnabled reports whether a mail relay is configured.
func (c Config) SMTPEnabled() bool { return c.SMTPAddr != "" }

type loader struct {
	missing []string
	invalid []string
}

func (l *loader) value(name string) string {
	return strings.TrimSpace(os.Getenv(Prefix + name))
}

func (l *loader) str(name string, dst *string) {
	if v := l.value(name); v != "" {
		*dst = v
	}
}

func (l *loader) required(name string, dst *string) {
	if v := l.value(name); v != "" {
		*dst = v
		return
	}
	l.missing = append(l.missing, Prefix+name)
}

func (l *loader) positiveInt(name string, dst *int) {
	v := l.value(name)
	if v == "" {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		l.invalid = append(l.invalid, Prefix+name)
		return
	}
	*dst = n
}

func (l *loader) duration(name string, dst *time.Duration) {
	v := l.value(name)
	if v == "" {
		return
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		l.invalid = append(l.invalid, Prefix+name)
		return
	}
	*dst = d
}

// Load parses configuration values from the current process environment.
//
// Optional fields fall back to Defaults. Missing required values and invalid
// values are reported together in one error.
func Load() (Config, error) {
	cfg := Defaults()
	l := &loader{}

	l.positiveInt("HTTP_PORT", &cfg.HTTPPort)
	l.str("SQLITE_DSN", &cfg.SQLiteDSN)
	l.positiveInt("HISTORY_RETENTION", &cfg.HistoryRetention)
	l.str("CATALOG_PATH", &cfg.CatalogPath)
	l.duration("FLOW_TTL", &cfg.FlowTTL)
	l.positiveInt("HISTORY_WINDOW", &cfg.HistoryWindow)
	l.duration("ADAPTER_TIMEOUT", &cfg.AdapterTimeout)
	l.duration("SWEEP_INTERVAL", &cfg.SweepInterval)
	l.required("CODE_SECRET", &cfg.CodeSecret)

	if v := l.value("CONFIDENCE_THRESHOLD"); v != "" {
		threshold, err := strconv.ParseFloat(v, 64)
		if err != nil || threshold <= 0 || threshold > 1 {
			l.invalid = append(l.invalid, Prefix+"CONFIDENCE_THRESHOLD")
		} else {
			cfg.ConfidenceThreshold = threshold
		}
	}

	l.str("LLM_URL", &cfg.LLMURL)
	l.str("LLM_CLASSIFIER_MODEL", &cfg.ClassifierModel)
	l.str("LLM_EXTRACTOR_MODEL", &cfg.ExtractorModel)
	l.str("LLM_TICKET_MODEL", &cfg.TicketModel)

	l.str("BRIDGE_URL", &cfg.BridgeURL)
	for _, kv := range os.Environ() {
		name, token, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(name, bridgeTokenPrefix) {
			continue
		}
		account := strings.TrimPrefix(name, bridgeTokenPrefix)
		if token = strings.TrimSpace(token); account != "" && token != "" {
			cfg.BridgeTokens[account] = token
		}
	}

	l.str("SMTP_ADDR", &cfg.SMTPAddr)
	l.str("SMTP_FROM", &cfg.SMTPFrom)
	l.str("SMTP_USERNAME", &cfg.SMTPUsername)
	l.str("SMTP_PASSWORD", &cfg.SMTPPassword)
	l.str("SMTP_DOMAIN", &cfg.SMTPDomain)
	if cfg.SMTPAddr != "" && cfg.SMTPFrom == "" {
		l.missing = append(l.missing, Prefix+"SMTP_FROM")
	}

	l.str("AUDIT_LOG_PATH", &cfg.AuditLogPath)
	l.positiveInt("CHAT_RATE_PER_MINUTE", &cfg.ChatRatePerMinute)
	if v := l.value("ADMINS"); v != "" {
		for _, id := range strings.Split(v, ",") {
			if id = strings.TrimSpace(id); id != "" {
				cfg.Admins = append(cfg.Admins, id)
			}
		}
	}
	if v := l.value("LOG_LEVEL"); v != "" {
		level, err := logging.ParseLevel(v)
		if err != nil {
			l.invalid = append(l.invalid, Prefix+"LOG_LEVEL")
		} else {
			cfg.LogLevel = level
		}
	}

	var problems []string
	if len(l.missing) > 0 {
		problems = append(problems, fmt.Sprintf("required environment variables are not set: %s", strings.Join(l.missing, ", ")))
	}
	if len(l.invalid) > 0 {
		problems = append(problems, fmt.Sprintf("invalid environment variable values: %s", strings.Join(l.invalid, ", ")))
	}
	if len(problems) > 0 {
		return Config{}, fmt.Errorf("%s", strings.Join(problems, "; "))
	}
	return cfg, nil
}
