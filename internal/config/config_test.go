package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

const minimalConfig = `
port: "8080"
databaseURL: "postgres://localhost/library"
jwtSecret: "secret"
`

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalConfig))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.JWTTTLMinutes != 720 {
		t.Fatalf("jwtTtlMinutes = %d, want 720", cfg.JWTTTLMinutes)
	}
	if cfg.FineRatePerDayCents != 50 {
		t.Fatalf("fineRatePerDayCents = %d, want 50", cfg.FineRatePerDayCents)
	}
	if cfg.LoanPeriodDays != 14 {
		t.Fatalf("loanPeriodDays = %d, want 14", cfg.LoanPeriodDays)
	}
	if cfg.SweepIntervalMinutes != 60 {
		t.Fatalf("sweepIntervalMinutes = %d, want 60", cfg.SweepIntervalMinutes)
	}
	if cfg.EventExchange != "library.events" {
		t.Fatalf("eventExchange = %q, want library.events", cfg.EventExchange)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://override/db")
	t.Setenv("LIBRARY_JWT_SECRET", "env-secret")
	t.Setenv("LIBRARY_FINE_RATE_CENTS", "75")
	t.Setenv("LIBRARY_LOAN_PERIOD_DAYS", "21")
	cfg, err := Load(writeConfig(t, minimalConfig))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.DatabaseURL != "postgres://override/db" {
		t.Fatalf("databaseURL = %q, want env override", cfg.DatabaseURL)
	}
	if cfg.JWTSecret != "env-secret" {
		t.Fatalf("jwtSecret = %q, want env override", cfg.JWTSecret)
	}
	if cfg.FineRatePerDayCents != 75 {
		t.Fatalf("fineRatePerDayCents = %d, want 75", cfg.FineRatePerDayCents)
	}
	if cfg.LoanPeriodDays != 21 {
		t.Fatalf("loanPeriodDays = %d, want 21", cfg.LoanPeriodDays)
	}
}

func TestLoadValidation(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("LIBRARY_JWT_SECRET", "")
	cases := []struct {
		name     string
		contents string
		wantErr  string
	}{
		{
			"missing port",
			`databaseURL: "postgres://localhost/library"` + "\n" + `jwtSecret: "s"`,
			"port is required",
		},
		{
			"missing database",
			`port: "8080"` + "\n" + `jwtSecret: "s"`,
			"databaseURL is required",
		},
		{
			"missing jwt secret",
			`port: "8080"` + "\n" + `databaseURL: "postgres://localhost/library"`,
			"jwtSecret is required",
		},
		{
			"rate limit without redis",
			minimalConfig + `rateLimitPerMinute: 10`,
			"requires redisAddr",
		},
		{
			"partial minio",
			minimalConfig + `minioEndpoint: "localhost:9000"`,
			"minio requires",
		},
	}
	for _, tc := range cases {
		_, err := Load(writeConfig(t, tc.contents))
		if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
			t.Fatalf("%s: err = %v, want %q", tc.name, err, tc.wantErr)
		}
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatalf("expected error for missing config file")
	}
}
