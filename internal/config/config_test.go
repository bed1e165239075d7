package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	chdir(t, t.TempDir())

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("Server.Port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.JWT.TTL != 24*time.Hour {
		t.Errorf("JWT.TTL = %v, want 24h", cfg.JWT.TTL)
	}
	if cfg.Cookie.Name != "paypals_session" {
		t.Errorf("Cookie.Name = %q", cfg.Cookie.Name)
	}
	if cfg.Cleanup.DaysOld != 30 {
		t.Errorf("Cleanup.DaysOld = %d, want 30", cfg.Cleanup.DaysOld)
	}
	if !cfg.IsDevelopment() {
		t.Error("expected development by default")
	}
	if cfg.Server.Timezone != "Asia/Singapore" {
		t.Errorf("Server.Timezone = %q", cfg.Server.Timezone)
	}
}

func TestUnknownTimezone(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("PAYPALS_SERVER_TIMEZONE", "Mars/Olympus_Mons")

	if _, err := Load(""); err == nil {
		t.Fatal("expected an unknown timezone to be rejected")
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("PAYPALS_SERVER_PORT", "9090")
	t.Setenv("PAYPALS_JWT_TTL", "2h")
	t.Setenv("PAYPALS_CORS_ALLOWED_ORIGINS", "https://a.example,https://b.example")
	t.Setenv("PAYPALS_OPS_URL", "http://localhost:9090")
	t.Setenv("PAYPALS_SERVER_TRUSTED_PROXIES", "10.0.0.0/8,127.0.0.1")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("Server.Port = %d, want 9090", cfg.Server.Port)
	}
	if cfg.JWT.TTL != 2*time.Hour {
		t.Errorf("JWT.TTL = %v, want 2h", cfg.JWT.TTL)
	}
	if len(cfg.CORS.AllowedOrigins) != 2 {
		t.Errorf("CORS.AllowedOrigins = %v", cfg.CORS.AllowedOrigins)
	}
	if cfg.Ops.URL != "http://localhost:9090" {
		t.Errorf("Ops.URL = %q", cfg.Ops.URL)
	}
	if len(cfg.Server.TrustedProxies) != 2 || cfg.Server.TrustedProxies[0] != "10.0.0.0/8" {
		t.Errorf("Server.TrustedProxies = %v", cfg.Server.TrustedProxies)
	}
}

func TestInvalidTrustedProxy(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("PAYPALS_SERVER_TRUSTED_PROXIES", "not-a-network")

	if _, err := Load(""); err == nil {
		t.Fatal("expected an invalid trusted proxy to be rejected")
	}
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	path := filepath.Join(dir, "paypals.yaml")
	content := "database:\n  path: /tmp/paypals-test.db\ncleanup:\n  days_old: 7\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Database.Path != "/tmp/paypals-test.db" || cfg.Cleanup.DaysOld != 7 {
		t.Errorf("file values not applied: %+v %+v", cfg.Database, cfg.Cleanup)
	}

	if _, err := Load(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Error("expected error for explicit missing file")
	}
}

func TestProductionRequiresSecret(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("PAYPALS_ENV", "production")

	if _, err := Load(""); err == nil {
		t.Fatal("expected error without jwt secret in production")
	}

	t.Setenv("PAYPALS_JWT_SECRET", "a-real-secret")
	if _, err := Load(""); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
}

// chdir changes the working directory for the duration of the test,
// restoring it on cleanup (equivalent of testing.T.Chdir, Go 1.24+).
func chdir(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	if err != nil {
		t.Fatalf("Getwd: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("Chdir: %v", err)
	}
	t.Cleanup(func() {
		if err := os.Chdir(prev); err != nil {
			t.Fatalf("restore Chdir: %v", err)
		}
	})
}
