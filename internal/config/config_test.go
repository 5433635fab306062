package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// knownKeys is every variable Load reads. Each test starts from a clean slate
// so values exported in the developer's shell cannot leak in.
var knownKeys = []string{
	"PORT", "READ_TIMEOUT", "READ_HEADER_TIMEOUT", "WRITE_TIMEOUT", "IDLE_TIMEOUT", "MAX_HEADER_BYTES", "GIN_MODE",
	"LOG_LEVEL", "LOG_PRETTY", "SWAGGER_ENABLED", "API_BASE_PATH",
	"SUPABASE_URL", "SUPABASE_ANON_KEY", "SYSTEM_PUBLIC_OWNER_ID",
	"DB_DRIVER", "DB_PATH", "DATABASE_URL",
	"STORAGE_LOCAL_DIR", "STORAGE_LOCAL_PUBLIC_BASE", "S3_BUCKET", "S3_REGION", "S3_ENDPOINT",
	"S3_ACCESS_KEY_ID", "S3_SECRET_ACCESS_KEY", "S3_PUBLIC_URL",
	"AUTH_JWT_SECRET", "AUTH_SESSION_TTL", "AUTH_LINK_TTL", "AUTH_REDIRECT_URL", "AUTH_VERIFY_URL", "AUTH_ALLOWED_REDIRECTS",
	"RESEND_API_KEY", "MAIL_FROM", "MAIL_TEST_MODE",
	"WIZARD_MAX_UPLOAD_BYTES", "WIZARD_SESSION_IDLE_TTL", "WIZARD_TIMEZONE",
	"RATE_RPS", "RATE_BURST", "CORS_ALLOWED_ORIGINS", "ENABLE_HSTS", "HSTS_MAX_AGE", "IDEMPOTENCY_TTL",
	"OTEL_ENABLED", "OTEL_EXPORTER_OTLP_ENDPOINT", "OTEL_EXPORTER_OTLP_INSECURE", "OTEL_SERVICE_NAME", "OTEL_TRACES_SAMPLER_ARG",
}

func cleanEnv(t *testing.T) {
	t.Helper()
	for _, k := range knownKeys {
		t.Setenv(k, "")
	}
}

func setEnv(t *testing.T, kv map[string]string) {
	t.Helper()
	for k, v := range kv {
		t.Setenv(k, v)
	}
}

func TestLoad_Defaults(t *testing.T) {
	cleanEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, 15*time.Second, cfg.ReadTimeout)
	assert.Equal(t, 1<<20, cfg.MaxHeaderBytes)
	assert.Equal(t, "release", cfg.GinMode)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "/api/v1", cfg.APIBasePath)

	assert.False(t, cfg.Backend.Configured())
	assert.Equal(t, DBConfig{Driver: "sqlite", Path: "app.db"}, cfg.DB)
	assert.Equal(t, "uploads", cfg.Storage.LocalDir)
	assert.Empty(t, cfg.Storage.Bucket)

	assert.True(t, cfg.Auth.SecretGenerated)
	assert.GreaterOrEqual(t, len(cfg.Auth.JWTSecret), 32)
	assert.Equal(t, 15*time.Minute, cfg.Auth.LinkTTL)
	assert.Equal(t, 12*time.Hour, cfg.Auth.SessionTTL)
	assert.True(t, cfg.Mail.TestMode)

	assert.EqualValues(t, 50<<20, cfg.Wizard.MaxUploadBytes)
	assert.Equal(t, 2*time.Hour, cfg.Wizard.SessionIdleTTL)
	assert.Same(t, time.Local, cfg.Wizard.Location)
	assert.Equal(t, 5.0, cfg.RateRPS)
	assert.Equal(t, 10, cfg.RateBurst)
	assert.Nil(t, cfg.CORS.AllowedOrigins)
	assert.Equal(t, 24*time.Hour, cfg.IdempotencyTTL)
	assert.False(t, cfg.OTEL.Enabled)
	assert.Equal(t, 1.0, cfg.OTEL.SampleRatio)
}

func TestLoad_GeneratedSecretsDiffer(t *testing.T) {
	cleanEnv(t)
	a, err := Load()
	require.NoError(t, err)
	b, err := Load()
	require.NoError(t, err)
	assert.NotEqual(t, a.Auth.JWTSecret, b.Auth.JWTSecret)
}

func TestLoad_Overrides(t *testing.T) {
	cleanEnv(t)
	setEnv(t, map[string]string{
		"PORT":                        "8088",
		"READ_TIMEOUT":                "2s",
		"WRITE_TIMEOUT":               "3s",
		"GIN_MODE":                    "weird",
		"LOG_LEVEL":                   "WARNING",
		"LOG_PRETTY":                  "yes",
		"SWAGGER_ENABLED":             "on",
		"API_BASE_PATH":               "api/v2/",
		"SUPABASE_URL":                "https://proj.supabase.co",
		"SUPABASE_ANON_KEY":           "anon",
		"SYSTEM_PUBLIC_OWNER_ID":      "system",
		"DB_DRIVER":                   "POSTGRES",
		"DATABASE_URL":                "postgres://u:p@db/claims",
		"S3_BUCKET":                   "claims",
		"S3_PUBLIC_URL":               "https://cdn.example.com",
		"STORAGE_LOCAL_DIR":           " ",
		"AUTH_JWT_SECRET":             "s3cret",
		"AUTH_LINK_TTL":               "5m",
		"AUTH_ALLOWED_REDIRECTS":      "https://app.example.com, ,https://admin.example.com",
		"MAIL_TEST_MODE":              "off",
		"RESEND_API_KEY":              "re_123",
		"WIZARD_MAX_UPLOAD_BYTES":     "2048",
		"WIZARD_SESSION_IDLE_TTL":     "30m",
		"WIZARD_TIMEZONE":             "UTC",
		"RATE_RPS":                    "x",
		"RATE_BURST":                  "nope",
		"CORS_ALLOWED_ORIGINS":        " https://a.com , , http://b ",
		"ENABLE_HSTS":                 "TRUE",
		"HSTS_MAX_AGE":                "24h",
		"IDEMPOTENCY_TTL":             "48h",
		"OTEL_ENABLED":                "1",
		"OTEL_EXPORTER_OTLP_ENDPOINT": "otel:4317",
		"OTEL_EXPORTER_OTLP_INSECURE": "0",
		"OTEL_TRACES_SAMPLER_ARG":     "0.25",
	})

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8088", cfg.Port)
	assert.Equal(t, 2*time.Second, cfg.ReadTimeout)
	assert.Equal(t, 3*time.Second, cfg.WriteTimeout)
	assert.Equal(t, "release", cfg.GinMode, "unknown modes fall back to release")
	assert.Equal(t, "warn", cfg.LogLevel)
	assert.True(t, cfg.LogPretty)
	assert.True(t, cfg.SwaggerEnabled)
	assert.Equal(t, "/api/v2", cfg.APIBasePath)

	assert.True(t, cfg.Backend.Configured())
	assert.Equal(t, "system", cfg.Backend.SystemOwnerID)
	assert.Equal(t, "postgres", cfg.DB.Driver)
	assert.Equal(t, "claims", cfg.Storage.Bucket)
	assert.Equal(t, "auto", cfg.Storage.Region)

	assert.Equal(t, "s3cret", cfg.Auth.JWTSecret)
	assert.False(t, cfg.Auth.SecretGenerated)
	assert.Equal(t, 5*time.Minute, cfg.Auth.LinkTTL)
	assert.Equal(t, []string{"https://app.example.com", "https://admin.example.com"}, cfg.Auth.AllowedRedirects)
	assert.False(t, cfg.Mail.TestMode)

	assert.EqualValues(t, 2048, cfg.Wizard.MaxUploadBytes)
	assert.Equal(t, 30*time.Minute, cfg.Wizard.SessionIdleTTL)
	assert.Equal(t, time.UTC, cfg.Wizard.Location)
	assert.Equal(t, 5.0, cfg.RateRPS, "malformed numbers keep the default")
	assert.Equal(t, 10, cfg.RateBurst)
	assert.Equal(t, []string{"https://a.com", "http://b"}, cfg.CORS.AllowedOrigins)
	assert.True(t, cfg.Security.EnableHSTS)
	assert.Equal(t, 24*time.Hour, cfg.Security.HSTSMaxAge)
	assert.Equal(t, 48*time.Hour, cfg.IdempotencyTTL)
	assert.Equal(t, OTELConfig{
		Enabled: true, Endpoint: "otel:4317", Insecure: false, ServiceName: "go-claims-backend", SampleRatio: 0.25,
	}, cfg.OTEL)
}

func TestLoad_Validation(t *testing.T) {
	cases := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"log level", map[string]string{"LOG_LEVEL": "verbose"}, "LOG_LEVEL"},
		{"blank port", map[string]string{"PORT": "   "}, "PORT must not be empty"},
		{"zero timeout", map[string]string{"IDLE_TIMEOUT": "0s"}, "timeouts must be positive"},
		{"header bytes", map[string]string{"MAX_HEADER_BYTES": "0"}, "MAX_HEADER_BYTES"},
		{"unknown driver", map[string]string{"DB_DRIVER": "mysql"}, "DB_DRIVER"},
		{"blank sqlite path", map[string]string{"DB_PATH": "  "}, "DB_PATH must not be empty"},
		{"postgres without dsn", map[string]string{"DB_DRIVER": "postgres"}, "DATABASE_URL"},
		{"no storage", map[string]string{"STORAGE_LOCAL_DIR": " "}, "STORAGE_LOCAL_DIR"},
		{"session ttl", map[string]string{"AUTH_SESSION_TTL": "-1h"}, "AUTH_SESSION_TTL"},
		{"link ttl", map[string]string{"AUTH_LINK_TTL": "0s"}, "AUTH_LINK_TTL"},
		{"verify url", map[string]string{"AUTH_VERIFY_URL": " "}, "AUTH_VERIFY_URL"},
		{"live mail without key", map[string]string{"MAIL_TEST_MODE": "false"}, "RESEND_API_KEY"},
		{"upload cap", map[string]string{"WIZARD_MAX_UPLOAD_BYTES": "-5"}, "WIZARD_MAX_UPLOAD_BYTES"},
		{"session idle", map[string]string{"WIZARD_SESSION_IDLE_TTL": "0s"}, "WIZARD_SESSION_IDLE_TTL"},
		{"time zone", map[string]string{"WIZARD_TIMEZONE": "Mars/Olympus_Mons"}, "WIZARD_TIMEZONE"},
		{"negative rps", map[string]string{"RATE_RPS": "-1"}, "RATE_RPS"},
		{"burst", map[string]string{"RATE_BURST": "0"}, "RATE_BURST"},
		{"hsts", map[string]string{"HSTS_MAX_AGE": "-1s"}, "HSTS_MAX_AGE"},
		{"idempotency ttl", map[string]string{"IDEMPOTENCY_TTL": "0s"}, "IDEMPOTENCY_TTL"},
		{"sample ratio", map[string]string{"OTEL_TRACES_SAMPLER_ARG": "1.5"}, "OTEL_TRACES_SAMPLER_ARG"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cleanEnv(t)
			setEnv(t, tc.env)
			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestMustLoad(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		cleanEnv(t)
		assert.NotPanics(t, func() { _ = MustLoad() })
	})
	t.Run("invalid", func(t *testing.T) {
		cleanEnv(t)
		t.Setenv("LOG_LEVEL", "verbose")
		assert.Panics(t, func() { _ = MustLoad() })
	})
}

func TestLookupHelpers(t *testing.T) {
	setEnv(t, map[string]string{
		"X_EMPTY": "",
		"X_STR":   "val",
		"X_FLOAT": "3.14",
		"X_INT":   "42",
		"X_DUR":   "150ms",
		"X_BAD":   "zzz",
	})

	assert.Equal(t, "d", getenv("X_EMPTY", "d"))
	assert.Equal(t, "d", getenv("X_UNSET_FOR_TEST", "d"))
	assert.Equal(t, "val", getenv("X_STR", "d"))

	assert.Equal(t, 3.14, getfloat("X_FLOAT", 0))
	assert.Equal(t, 1.5, getfloat("X_BAD", 1.5))
	assert.Equal(t, 42, getint("X_INT", 0))
	assert.Equal(t, 7, getint("X_BAD", 7))
	assert.Equal(t, 150*time.Millisecond, getdur("X_DUR", time.Second))
	assert.Equal(t, 2*time.Second, getdur("X_BAD", 2*time.Second))
	assert.True(t, getbool("X_BAD", true))
	assert.False(t, getbool("X_EMPTY", false))
}

func TestParseBool(t *testing.T) {
	for _, v := range []string{"1", "true", "TRUE", " yes ", "Y", "on", "On"} {
		got, err := parseBool(v)
		require.NoError(t, err, v)
		assert.True(t, got, v)
	}
	for _, v := range []string{"0", "false", "FALSE", " no ", "N", "off", "Off"} {
		got, err := parseBool(v)
		require.NoError(t, err, v)
		assert.False(t, got, v)
	}
	_, err := parseBool("maybe")
	assert.Error(t, err)
}

func TestSplitCSV(t *testing.T) {
	assert.Nil(t, splitCSV(""))
	assert.Nil(t, splitCSV(" , ,"))
	assert.Equal(t, []string{"a", "b", "c"}, splitCSV(" a, ,b ,  c  ,"))
}

func TestNormalizeBasePath(t *testing.T) {
	for in, want := range map[string]string{
		"":         "/",
		" / ":      "/",
		"v1":       "/v1",
		"/v1/":     "/v1",
		"api/v1//": "/api/v1",
	} {
		assert.Equal(t, want, normalizeBasePath(in), "input %q", in)
	}
}

func TestLoadLocation(t *testing.T) {
	for _, name := range []string{"Local", " local "} {
		loc, err := loadLocation(name)
		require.NoError(t, err, name)
		assert.Same(t, time.Local, loc, name)
	}
	loc, err := loadLocation("UTC")
	require.NoError(t, err)
	assert.Equal(t, time.UTC, loc)
	_, err = loadLocation("Nowhere/Nothing")
	assert.Error(t, err)
}

func TestBackendConfigured(t *testing.T) {
	assert.False(t, BackendConfig{}.Configured())
	assert.False(t, BackendConfig{PublicURL: "https://x", AnonKey: " "}.Configured())
	assert.True(t, BackendConfig{PublicURL: "https://x", AnonKey: "k"}.Configured())
}
