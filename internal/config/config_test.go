package config

import (
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()
	if cfg.Port != "4242" {
		t.Errorf("expected default port 4242, got %s", cfg.Port)
	}
	if cfg.ReportWindowHours != 36 {
		t.Errorf("expected default report window 36h, got %d", cfg.ReportWindowHours)
	}
	if cfg.FeeLookupConcurrency != 8 {
		t.Errorf("expected default fee lookup concurrency 8, got %d", cfg.FeeLookupConcurrency)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("STRIPE_SECRET_KEY", "sk_test_123")
	t.Setenv("REPORT_WINDOW_HOURS", "12")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, https://b.example")

	cfg := Load()
	if cfg.Port != "9090" {
		t.Errorf("expected port 9090, got %s", cfg.Port)
	}
	if cfg.StripeSecretKey != "sk_test_123" {
		t.Errorf("unexpected secret key %q", cfg.StripeSecretKey)
	}
	if cfg.ReportWindowHours != 12 {
		t.Errorf("expected report window 12, got %d", cfg.ReportWindowHours)
	}
	if len(cfg.CORSAllowedOrigins) != 2 || cfg.CORSAllowedOrigins[1] != "https://b.example" {
		t.Errorf("unexpected origins %v", cfg.CORSAllowedOrigins)
	}
}

func TestGetEnvAsIntBadValue(t *testing.T) {
	t.Setenv("REPORT_WINDOW_HOURS", "not-a-number")
	cfg := Load()
	if cfg.ReportWindowHours != 36 {
		t.Errorf("expected fallback 36 on bad int, got %d", cfg.ReportWindowHours)
	}
}
