// Package config provides application configuration loaded from environment
// variables with defaults and validation. It centralizes application settings
// such as server timeouts, logging, database and blob storage, sign-in,
// rate limiting, and observability.
package config

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"
)

// CORSConfig defines Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string
}

// SecurityConfig defines security-related settings such as HSTS.
type SecurityConfig struct {
	EnableHSTS bool
	HSTSMaxAge time.Duration
}

// OTELConfig defines OpenTelemetry observability settings.
type OTELConfig struct {
	Enabled     bool    // OTEL_ENABLED
	Endpoint    string  // OTEL_EXPORTER_OTLP_ENDPOINT (e.g. "otel:4317")
	Insecure    bool    // OTEL_EXPORTER_OTLP_INSECURE (true if no TLS)
	ServiceName string  // OTEL_SERVICE_NAME (e.g. "go-claims-backend")
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

// BackendConfig holds the values delivered to browser clients by GET /api/env
// and the system owner used by the standalone claim creation endpoint.
type BackendConfig struct {
	PublicURL     string // SUPABASE_URL
	AnonKey       string // SUPABASE_ANON_KEY
	SystemOwnerID string // SYSTEM_PUBLIC_OWNER_ID (optional)
}

// Configured reports whether both public values are present.
func (b BackendConfig) Configured() bool {
	return strings.TrimSpace(b.PublicURL) != "" && strings.TrimSpace(b.AnonKey) != ""
}

// DBConfig selects the relational store.
type DBConfig struct {
	Driver string // DB_DRIVER: sqlite|postgres
	Path   string // DB_PATH (sqlite)
	DSN    string // DATABASE_URL (postgres)
}

// StorageConfig selects and configures the attachment blob store. When
// Bucket is empty, files are kept on the local filesystem under LocalDir.
type StorageConfig struct {
	LocalDir        string // STORAGE_LOCAL_DIR
	LocalPublicBase string // STORAGE_LOCAL_PUBLIC_BASE (URL prefix for local files)
	Bucket          string // S3_BUCKET
	Region          string // S3_REGION
	Endpoint        string // S3_ENDPOINT (S3-compatible stores)
	AccessKeyID     string // S3_ACCESS_KEY_ID
	SecretAccessKey string // S3_SECRET_ACCESS_KEY
	PublicBaseURL   string // S3_PUBLIC_URL
}

// AuthConfig configures passwordless sign-in and session tokens.
type AuthConfig struct {
	JWTSecret string // AUTH_JWT_SECRET
	// SecretGenerated is true when JWTSecret was generated at startup.
	SecretGenerated bool
	SessionTTL      time.Duration // AUTH_SESSION_TTL
	LinkTTL         time.Duration // AUTH_LINK_TTL
	RedirectTo      string        // AUTH_REDIRECT_URL (used when the client sends none)
	// VerifyURL is the absolute URL of GET /auth/verify put into sign-in mails.
	VerifyURL string // AUTH_VERIFY_URL
	// AllowedRedirects lists extra origins a sign-in may redirect to, besides
	// the origin of RedirectTo.
	AllowedRedirects []string // AUTH_ALLOWED_REDIRECTS (CSV)
}

// MailConfig configures delivery of sign-in links.
type MailConfig struct {
	ResendAPIKey string // RESEND_API_KEY
	From         string // MAIL_FROM
	TestMode     bool   // MAIL_TEST_MODE: log instead of sending
}

// WizardConfig bounds wizard sessions and uploads.
type WizardConfig struct {
	MaxUploadBytes int64         // WIZARD_MAX_UPLOAD_BYTES (whole request; files are capped at 10 MiB each)
	SessionIdleTTL time.Duration // WIZARD_SESSION_IDLE_TTL
	// Location reads zone-less dates of loss and formats summaries.
	Location *time.Location // WIZARD_TIMEZONE (IANA name; "Local" or unset is the server zone)
}

// Config holds all configuration values for the application.
type Config struct {
	// Server
	Port              string        // just the number
	ReadTimeout       time.Duration // e.g. 15s
	ReadHeaderTimeout time.Duration // e.g. 10s
	WriteTimeout      time.Duration // e.g. 20s
	IdleTimeout       time.Duration // e.g. 60s
	MaxHeaderBytes    int           // bytes
	GinMode           string        // debug|release|test

	// Logging / Docs
	LogLevel       string // debug|info|warn|error|fatal|panic
	LogPretty      bool   // pretty console logs in dev
	SwaggerEnabled bool   // enable Swagger UI route
	APIBasePath    string // base path for API routes

	// App
	Backend BackendConfig
	DB      DBConfig
	Storage StorageConfig
	Auth    AuthConfig
	Mail    MailConfig
	Wizard  WizardConfig

	// Rate limiting
	RateRPS   float64 // tokens per second (>= 0)
	RateBurst int     // bucket size (>= 1)

	// Web protection
	CORS     CORSConfig
	Security SecurityConfig

	// Idempotency
	IdempotencyTTL time.Duration // how long a given Idempotency-Key is valid

	// Observability
	OTEL OTELConfig
}

// MustLoad loads the configuration and panics if validation fails.
func MustLoad() Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load reads configuration from environment variables,
// applies defaults, normalizes values, and validates the result.
func Load() (Config, error) {
	cfg := Config{
		// Server
		Port:              getenv("PORT", "8080"),
		ReadTimeout:       getdur("READ_TIMEOUT", 15*time.Second),
		ReadHeaderTimeout: getdur("READ_HEADER_TIMEOUT", 10*time.Second),
		WriteTimeout:      getdur("WRITE_TIMEOUT", 20*time.Second),
		IdleTimeout:       getdur("IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes:    getint("MAX_HEADER_BYTES", 1<<20),
		GinMode:           strings.ToLower(getenv("GIN_MODE", "release")),

		// Logging / Docs
		LogLevel:       strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogPretty:      getbool("LOG_PRETTY", false),
		SwaggerEnabled: getbool("SWAGGER_ENABLED", false),
		APIBasePath:    normalizeBasePath(getenv("API_BASE_PATH", "/api/v1")),

		// App
		Backend: BackendConfig{
			PublicURL:     getenv("SUPABASE_URL", ""),
			AnonKey:       getenv("SUPABASE_ANON_KEY", ""),
			SystemOwnerID: getenv("SYSTEM_PUBLIC_OWNER_ID", ""),
		},
		DB: DBConfig{
			Driver: strings.ToLower(getenv("DB_DRIVER", "sqlite")),
			Path:   getenv("DB_PATH", "app.db"),
			DSN:    getenv("DATABASE_URL", ""),
		},
		Storage: StorageConfig{
			LocalDir:        getenv("STORAGE_LOCAL_DIR", "uploads"),
			LocalPublicBase: getenv("STORAGE_LOCAL_PUBLIC_BASE", "/files"),
			Bucket:          getenv("S3_BUCKET", ""),
			Region:          getenv("S3_REGION", "auto"),
			Endpoint:        getenv("S3_ENDPOINT", ""),
			AccessKeyID:     getenv("S3_ACCESS_KEY_ID", ""),
			SecretAccessKey: getenv("S3_SECRET_ACCESS_KEY", ""),
			PublicBaseURL:   getenv("S3_PUBLIC_URL", ""),
		},
		Auth: AuthConfig{
			JWTSecret:        getenv("AUTH_JWT_SECRET", ""),
			SessionTTL:       getdur("AUTH_SESSION_TTL", 12*time.Hour),
			LinkTTL:          getdur("AUTH_LINK_TTL", 15*time.Minute),
			RedirectTo:       getenv("AUTH_REDIRECT_URL", "http://localhost:8080/"),
			VerifyURL:        getenv("AUTH_VERIFY_URL", "http://localhost:8080/auth/verify"),
			AllowedRedirects: splitCSV(getenv("AUTH_ALLOWED_REDIRECTS", "")),
		},
		Mail: MailConfig{
			ResendAPIKey: getenv("RESEND_API_KEY", ""),
			From:         getenv("MAIL_FROM", "Schadenaufnahme <noreply@example.com>"),
			TestMode:     getbool("MAIL_TEST_MODE", true),
		},
		Wizard: WizardConfig{
			MaxUploadBytes: int64(getint("WIZARD_MAX_UPLOAD_BYTES", 50<<20)),
			SessionIdleTTL: getdur("WIZARD_SESSION_IDLE_TTL", 2*time.Hour),
		},

		// Rate limiting
		RateRPS:   getfloat("RATE_RPS", 5.0),
		RateBurst: getint("RATE_BURST", 10),

		// Web protection
		CORS: CORSConfig{
			AllowedOrigins: splitCSV(getenv("CORS_ALLOWED_ORIGINS", "")),
		},
		Security: SecurityConfig{
			EnableHSTS: getbool("ENABLE_HSTS", false),
			HSTSMaxAge: getdur("HSTS_MAX_AGE", 180*24*time.Hour),
		},

		// Idempotency
		IdempotencyTTL: getdur("IDEMPOTENCY_TTL", 24*time.Hour),

		// Observability (OpenTelemetry)
		OTEL: OTELConfig{
			Enabled:     getbool("OTEL_ENABLED", false),
			Endpoint:    getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    getbool("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: getenv("OTEL_SERVICE_NAME", "go-claims-backend"),
			SampleRatio: getfloat("OTEL_TRACES_SAMPLER_ARG", 1.0),
		},
	}

	// --- normalization ---
	loc, err := loadLocation(getenv("WIZARD_TIMEZONE", "Local"))
	if err != nil {
		return cfg, errors.New("WIZARD_TIMEZONE must be an IANA time zone name")
	}
	cfg.Wizard.Location = loc
	if strings.TrimSpace(cfg.Auth.JWTSecret) == "" {
		// Sessions do not survive a restart without a configured secret.
		cfg.Auth.JWTSecret = generateSecret()
		cfg.Auth.SecretGenerated = true
	}
	if cfg.LogLevel == "warning" {
		cfg.LogLevel = "warn"
	}
	switch cfg.GinMode {
	case "debug", "release", "test":
	default:
		cfg.GinMode = "release"
	}

	return cfg, cfg.validate()
}

// validate returns the first violated constraint.
func (c Config) validate() error {
	blank := func(s string) bool { return strings.TrimSpace(s) == "" }
	rules := []struct {
		broken bool
		msg    string
	}{
		{!slices.Contains([]string{"debug", "info", "warn", "error", "fatal", "panic"}, c.LogLevel),
			"LOG_LEVEL must be one of: debug, info, warn, error, fatal, panic"},
		{blank(c.Port), "PORT must not be empty"},
		{c.ReadTimeout <= 0 || c.ReadHeaderTimeout <= 0 || c.WriteTimeout <= 0 || c.IdleTimeout <= 0,
			"timeouts must be positive durations"},
		{c.MaxHeaderBytes <= 0, "MAX_HEADER_BYTES must be > 0"},
		{c.DB.Driver != "sqlite" && c.DB.Driver != "postgres", "DB_DRIVER must be one of: sqlite, postgres"},
		{c.DB.Driver == "sqlite" && blank(c.DB.Path), "DB_PATH must not be empty"},
		{c.DB.Driver == "postgres" && blank(c.DB.DSN), "DATABASE_URL is required when DB_DRIVER=postgres"},
		{c.Storage.Bucket == "" && blank(c.Storage.LocalDir), "STORAGE_LOCAL_DIR must not be empty when S3_BUCKET is unset"},
		{c.Auth.SessionTTL <= 0 || c.Auth.LinkTTL <= 0, "AUTH_SESSION_TTL and AUTH_LINK_TTL must be > 0"},
		{blank(c.Auth.VerifyURL) || blank(c.Auth.RedirectTo), "AUTH_VERIFY_URL and AUTH_REDIRECT_URL must not be empty"},
		{!c.Mail.TestMode && blank(c.Mail.ResendAPIKey), "RESEND_API_KEY is required when MAIL_TEST_MODE is off"},
		{c.Wizard.MaxUploadBytes <= 0, "WIZARD_MAX_UPLOAD_BYTES must be > 0"},
		{c.Wizard.SessionIdleTTL <= 0, "WIZARD_SESSION_IDLE_TTL must be > 0"},
		{c.RateRPS < 0, "RATE_RPS must be >= 0"},
		{c.RateBurst < 1, "RATE_BURST must be >= 1"},
		{c.Security.HSTSMaxAge < 0, "HSTS_MAX_AGE must be >= 0"},
		{c.IdempotencyTTL <= 0, "IDEMPOTENCY_TTL must be > 0"},
		{c.OTEL.SampleRatio < 0 || c.OTEL.SampleRatio > 1, "OTEL_TRACES_SAMPLER_ARG must be in [0,1]"},
	}
	for _, r := range rules {
		if r.broken {
			return errors.New(r.msg)
		}
	}
	return nil
}

// lookup parses k with parse, falling back to def when k is unset, empty,
// or malformed.
func lookup[T any](k string, def T, parse func(string) (T, error)) T {
	v, ok := os.LookupEnv(k)
	if !ok || v == "" {
		return def
	}
	out, err := parse(v)
	if err != nil {
		return def
	}
	return out
}

func getenv(k, def string) string {
	return lookup(k, def, func(v string) (string, error) { return v, nil })
}

func getfloat(k string, def float64) float64 {
	return lookup(k, def, func(v string) (float64, error) { return strconv.ParseFloat(v, 64) })
}

func getint(k string, def int) int { return lookup(k, def, strconv.Atoi) }

func getdur(k string, def time.Duration) time.Duration { return lookup(k, def, time.ParseDuration) }

func getbool(k string, def bool) bool { return lookup(k, def, parseBool) }

func parseBool(v string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "y", "on":
		return true, nil
	case "0", "false", "no", "n", "off":
		return false, nil
	}
	return false, errors.New("not a boolean: " + v)
}

func loadLocation(name string) (*time.Location, error) {
	if strings.EqualFold(strings.TrimSpace(name), "local") {
		return time.Local, nil
	}
	return time.LoadLocation(strings.TrimSpace(name))
}

// generateSecret returns 32 random bytes, base64 encoded.
func generateSecret() string {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		panic(err)
	}
	return base64.StdEncoding.EncodeToString(b)
}

// splitCSV trims the comma separated items of s and drops empty ones.
func splitCSV(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}

// normalizeBasePath returns p with exactly one leading '/' and no trailing
// one; blank input is the root.
func normalizeBasePath(p string) string {
	return "/" + strings.Trim(strings.TrimSpace(p), "/")
}
