package config

import "testing"

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.MaxLoginAttempts != 10 {
		t.Fatalf("MaxLoginAttempts = %d, want 10", cfg.MaxLoginAttempts)
	}
	if cfg.LoginLockoutDuration != 900 {
		t.Fatalf("LoginLockoutDuration = %d, want 900", cfg.LoginLockoutDuration)
	}
	if cfg.SessionLifetime != 86400 {
		t.Fatalf("SessionLifetime = %d, want 86400", cfg.SessionLifetime)
	}
	if cfg.LedgerDriver != "sqlite" {
		t.Fatalf("LedgerDriver = %q, want sqlite", cfg.LedgerDriver)
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("MAX_LOGIN_ATTEMPTS", "5")
	t.Setenv("LOGIN_LOCKOUT_DURATION", "300")
	t.Setenv("LEDGER_DRIVER", "memory")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.MaxLoginAttempts != 5 {
		t.Fatalf("MaxLoginAttempts = %d, want 5", cfg.MaxLoginAttempts)
	}
	if cfg.LoginLockoutDuration != 300 {
		t.Fatalf("LoginLockoutDuration = %d, want 300", cfg.LoginLockoutDuration)
	}
	if cfg.LedgerDriver != "memory" {
		t.Fatalf("LedgerDriver = %q, want memory", cfg.LedgerDriver)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	t.Setenv("LEDGER_DRIVER", "cassandra")
	if _, err := Load(); err == nil {
		t.Fatal("Load accepted unknown LEDGER_DRIVER")
	}

	t.Setenv("LEDGER_DRIVER", "sqlite")
	t.Setenv("MAX_LOGIN_ATTEMPTS", "0")
	if _, err := Load(); err == nil {
		t.Fatal("Load accepted MAX_LOGIN_ATTEMPTS=0")
	}
}

func TestValidateRequiresCredentialsInRelease(t *testing.T) {
	t.Setenv("GIN_MODE", "release")
	if _, err := Load(); err == nil {
		t.Fatal("Load in release mode accepted missing APP_PASSWORD")
	}

	t.Setenv("APP_PASSWORD", "hunter2")
	t.Setenv("SESSION_SECRET", "0123456789abcdef")
	if _, err := Load(); err != nil {
		t.Fatalf("Load with credentials in release mode: %v", err)
	}
}
