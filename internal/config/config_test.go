package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"tracefood/internal/core"
	"tracefood/pkg/domain"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tracefood.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Addr != ":8080" || cfg.Server.ShutdownTimeout != 10*time.Second {
		t.Fatalf("unexpected server defaults %+v", cfg.Server)
	}
	if cfg.Storage.Driver != "sqlite" || cfg.Storage.SQLitePath != "tracefood.db" {
		t.Fatalf("unexpected storage defaults %+v", cfg.Storage)
	}
	if cfg.Auth.TokenTTL != 24*time.Hour || cfg.Auth.Issuer != "tracefood" {
		t.Fatalf("unexpected auth defaults %+v", cfg.Auth)
	}
	amount, err := cfg.PayoutAmount()
	if err != nil || amount.String() != domain.DefaultPayoutYocto {
		t.Fatalf("unexpected payout %v %v", amount, err)
	}
	if len(cfg.Server.CorsAllowedOrigins) != 1 || cfg.Server.CorsAllowedOrigins[0] != "*" {
		t.Fatalf("unexpected cors origins %v", cfg.Server.CorsAllowedOrigins)
	}
}

func TestLoadFileAndEnvOverrides(t *testing.T) {
	path := writeFile(t, `
storage:
  driver: badger
  badger_dir: /var/lib/tracefood
settlement:
  sink: redis
  backoff: 2s
log:
  format: console
`)
	t.Setenv("TRACEFOOD_STORAGE_BADGER_DIR", "/data/badger")
	t.Setenv("TRACEFOOD_AUTH_SECRET", "s3cret")
	t.Setenv("TRACEFOOD_REDIS_ADDR", "redis:6380")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	sc := cfg.StorageConfig()
	if sc.Driver != core.StorageBadger || sc.BadgerDir != "/data/badger" {
		t.Fatalf("env must override file: %+v", sc)
	}
	if cfg.Auth.Secret != "s3cret" || cfg.Log.Format != "console" {
		t.Fatalf("unexpected auth/log %+v %+v", cfg.Auth, cfg.Log)
	}
	st := cfg.SettlementConfig()
	if st.Sink != "redis" || st.Backoff != 2*time.Second || st.Redis.Addr != "redis:6380" || st.Attempts != 3 {
		t.Fatalf("unexpected settlement %+v", st)
	}
	bc := cfg.BlobConfig()
	if bc.Driver != "fs" || bc.FSRoot != "./snapshots" || bc.S3.Region != "us-east-1" {
		t.Fatalf("unexpected blob %+v", bc)
	}
}

func TestLoadErrors(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("explicit missing file must fail")
	}
	if _, err := Load(writeFile(t, "storage: [unterminated")); err == nil {
		t.Fatalf("malformed yaml must fail")
	}
	cases := map[string]string{
		"storage":    "storage:\n  driver: etcd\n",
		"blob":       "blob:\n  driver: gcs\n",
		"settlement": "settlement:\n  sink: kafka\n",
		"payout":     "payout:\n  amount: \"-5\"\n",
		"log":        "log:\n  format: xml\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := Load(writeFile(t, body)); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}
