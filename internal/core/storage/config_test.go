package storage

import (
	"errors"
	"testing"
	"time"
)

func TestConfigFromEnv_Defaults(t *testing.T) {
	t.Setenv("STORAGE_BACKEND", "")
	t.Setenv("SUPABASE_URL", "")

	cfg := ConfigFromEnv()
	if cfg.Backend != BackendNone {
		t.Errorf("expected backend %q, got %q", BackendNone, cfg.Backend)
	}
	if cfg.SupabaseBucket != DefaultBucket {
		t.Errorf("expected bucket %q, got %q", DefaultBucket, cfg.SupabaseBucket)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("expected valid default config, got %v", err)
	}
}

func TestConfigFromEnv_InfersSupabase(t *testing.T) {
	t.Setenv("STORAGE_BACKEND", "")
	t.Setenv("SUPABASE_URL", "https://project.supabase.co")
	t.Setenv("SUPABASE_SERVICE_ROLE_KEY", "service-key")
	t.Setenv("SUPABASE_STORAGE_BUCKET", "media")

	cfg := ConfigFromEnv()
	if cfg.Backend != BackendSupabase {
		t.Errorf("expected backend %q, got %q", BackendSupabase, cfg.Backend)
	}
	if cfg.SupabaseBucket != "media" {
		t.Errorf("expected bucket media, got %q", cfg.SupabaseBucket)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("expected valid config, got %v", err)
	}
}

func TestConfigFromEnv_Disk(t *testing.T) {
	t.Setenv("STORAGE_BACKEND", "DISK")
	t.Setenv("STORAGE_DISK_PATH", "/var/lib/savebox")
	t.Setenv("STORAGE_PUBLIC_BASE_URL", "https://savebox.app")
	t.Setenv("STORAGE_DISK_TTL_DAYS", "30")
	t.Setenv("STORAGE_DISK_CLEANUP_INTERVAL_MINUTES", "15")

	cfg := ConfigFromEnv()
	if cfg.Backend != BackendDisk {
		t.Errorf("expected backend %q, got %q", BackendDisk, cfg.Backend)
	}
	if cfg.DiskPath != "/var/lib/savebox" || cfg.PublicBaseURL != "https://savebox.app" {
		t.Errorf("unexpected disk settings: %+v", cfg)
	}
	if cfg.DiskTTLDays != 30 {
		t.Errorf("expected TTL 30, got %d", cfg.DiskTTLDays)
	}
	if cfg.DiskCleanupInterval != 15*time.Minute {
		t.Errorf("expected 15m interval, got %v", cfg.DiskCleanupInterval)
	}
}

func TestConfigFromEnv_InvalidNumbersKeepDefaults(t *testing.T) {
	t.Setenv("STORAGE_DISK_TTL_DAYS", "-3")
	t.Setenv("STORAGE_DISK_CLEANUP_INTERVAL_MINUTES", "hourly")

	cfg := ConfigFromEnv()
	def := DefaultConfig()
	if cfg.DiskTTLDays != def.DiskTTLDays {
		t.Errorf("expected default TTL, got %d", cfg.DiskTTLDays)
	}
	if cfg.DiskCleanupInterval != def.DiskCleanupInterval {
		t.Errorf("expected default interval, got %v", cfg.DiskCleanupInterval)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"none", Config{Backend: BackendNone}, false},
		{"supabase missing url", Config{Backend: BackendSupabase, SupabaseServiceKey: "k"}, true},
		{"supabase missing key", Config{Backend: BackendSupabase, SupabaseURL: "https://x"}, true},
		{"supabase ok", Config{Backend: BackendSupabase, SupabaseURL: "https://x", SupabaseServiceKey: "k"}, false},
		{"disk missing path", Config{Backend: BackendDisk}, true},
		{"disk negative ttl", Config{Backend: BackendDisk, DiskPath: "/tmp", DiskTTLDays: -1}, true},
		{"disk ok", Config{Backend: BackendDisk, DiskPath: "/tmp"}, false},
		{"unknown", Config{Backend: "s3"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr && !errors.Is(err, ErrMisconfigured) {
				t.Errorf("expected ErrMisconfigured, got %v", err)
			}
			if !tt.wantErr && err != nil {
				t.Errorf("expected no error, got %v", err)
			}
		})
	}
}
