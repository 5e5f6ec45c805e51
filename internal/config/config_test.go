package config

import (
	"os"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	os.Clearenv()

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg == nil {
		t.Fatal("Load returned nil config")
	}
	if cfg.AccessTokenValiditySecs != 3600 {
		t.Errorf("AccessTokenValiditySecs = %d, want 3600", cfg.AccessTokenValiditySecs)
	}
	if cfg.RefreshTokenValidityHours != 2400 {
		t.Errorf("RefreshTokenValidityHours = %d, want 2400", cfg.RefreshTokenValidityHours)
	}
	if !cfg.SigningKeyDynamic {
		t.Error("SigningKeyDynamic should default to true")
	}
	if cfg.SigningKeyUpdateIntervalHours != 24 {
		t.Errorf("SigningKeyUpdateIntervalHours = %d, want 24", cfg.SigningKeyUpdateIntervalHours)
	}
	if !cfg.AntiCSRFEnabled {
		t.Error("AntiCSRFEnabled should default to true")
	}
	if cfg.BlacklistingEnabled {
		t.Error("BlacklistingEnabled should default to false")
	}
	if cfg.SweepInterval != "12h" {
		t.Errorf("SweepInterval = %q, want %q", cfg.SweepInterval, "12h")
	}
	if cfg.ServiceName != "session-core" {
		t.Errorf("ServiceName = %q, want %q", cfg.ServiceName, "session-core")
	}
}

func TestLoad_EnvVarOverride(t *testing.T) {
	os.Clearenv()
	os.Setenv("DATABASE_URL", "postgres://localhost/sessions")
	os.Setenv("ACCESS_TOKEN_VALIDITY", "600")
	os.Setenv("BLACKLISTING_ENABLED", "true")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DatabaseURL != "postgres://localhost/sessions" {
		t.Errorf("DatabaseURL = %q", cfg.DatabaseURL)
	}
	if cfg.AccessTokenValiditySecs != 600 {
		t.Errorf("AccessTokenValiditySecs = %d, want 600", cfg.AccessTokenValiditySecs)
	}
	if !cfg.BlacklistingEnabled {
		t.Error("BlacklistingEnabled should be true")
	}
}

func TestLoad_AccessValidityRange(t *testing.T) {
	testCases := []struct {
		name  string
		value string
		want  int
		err   bool
	}{
		{"valid min", "10", 10, false},
		{"valid max", "86400", 86400, false},
		{"valid middle", "3600", 3600, false},
		{"too low", "9", 0, true},
		{"too high", "86401", 0, true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			os.Clearenv()
			os.Setenv("ACCESS_TOKEN_VALIDITY", tc.value)

			cfg, err := Load()
			if tc.err {
				if err == nil {
					t.Fatal("Load should return error")
				}
				return
			}
			if err != nil {
				t.Fatalf("Load: %v", err)
			}
			if cfg.AccessTokenValiditySecs != tc.want {
				t.Errorf("AccessTokenValiditySecs = %d, want %d", cfg.AccessTokenValiditySecs, tc.want)
			}
		})
	}
}

func TestLoad_RefreshValidityRange(t *testing.T) {
	os.Clearenv()
	os.Setenv("REFRESH_TOKEN_VALIDITY", "0")
	if _, err := Load(); err == nil {
		t.Error("Load should reject REFRESH_TOKEN_VALIDITY=0")
	}

	os.Clearenv()
	os.Setenv("REFRESH_TOKEN_VALIDITY", "8761")
	if _, err := Load(); err == nil {
		t.Error("Load should reject REFRESH_TOKEN_VALIDITY=8761")
	}
}

func TestLoad_KeyUpdateIntervalRange(t *testing.T) {
	os.Clearenv()
	os.Setenv("SIGNING_KEY_UPDATE_INTERVAL", "0")
	if _, err := Load(); err == nil {
		t.Error("Load should reject SIGNING_KEY_UPDATE_INTERVAL=0")
	}

	os.Clearenv()
	os.Setenv("SIGNING_KEY_UPDATE_INTERVAL", "721")
	if _, err := Load(); err == nil {
		t.Error("Load should reject SIGNING_KEY_UPDATE_INTERVAL=721")
	}
}

func TestLoad_StaticKeyRequiresValue(t *testing.T) {
	os.Clearenv()
	os.Setenv("SIGNING_KEY_DYNAMIC", "false")

	cfg, err := Load()
	if err == nil {
		t.Fatal("Load should return error when SIGNING_KEY_DYNAMIC=false without SIGNING_KEY_VALUE")
	}
	if cfg != nil {
		t.Error("Load should return nil config on error")
	}

	os.Setenv("SIGNING_KEY_VALUE", "a-fixed-signing-key")
	cfg, err = Load()
	if err != nil {
		t.Fatalf("Load with static key value: %v", err)
	}
	if cfg.SigningKeyValue != "a-fixed-signing-key" {
		t.Errorf("SigningKeyValue = %q", cfg.SigningKeyValue)
	}
}

func TestDurationAccessors(t *testing.T) {
	os.Clearenv()
	os.Setenv("ACCESS_TOKEN_VALIDITY", "600")
	os.Setenv("REFRESH_TOKEN_VALIDITY", "48")
	os.Setenv("SIGNING_KEY_UPDATE_INTERVAL", "6")
	os.Setenv("SWEEP_INTERVAL", "30m")
	os.Setenv("DB_TX_TIMEOUT", "2s")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := cfg.AccessTokenValidity(); got != 10*time.Minute {
		t.Errorf("AccessTokenValidity = %v, want 10m", got)
	}
	if got := cfg.RefreshTokenValidity(); got != 48*time.Hour {
		t.Errorf("RefreshTokenValidity = %v, want 48h", got)
	}
	if got := cfg.SigningKeyUpdateInterval(); got != 6*time.Hour {
		t.Errorf("SigningKeyUpdateInterval = %v, want 6h", got)
	}
	if got := cfg.SweepEvery(); got != 30*time.Minute {
		t.Errorf("SweepEvery = %v, want 30m", got)
	}
	if got := cfg.TxTimeout(); got != 2*time.Second {
		t.Errorf("TxTimeout = %v, want 2s", got)
	}
}

func TestDurationAccessors_InvalidFallBackToDefaults(t *testing.T) {
	os.Clearenv()
	os.Setenv("SWEEP_INTERVAL", "not-a-duration")
	os.Setenv("DB_TX_TIMEOUT", "-1s")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := cfg.SweepEvery(); got != 12*time.Hour {
		t.Errorf("SweepEvery = %v, want 12h default", got)
	}
	if got := cfg.TxTimeout(); got != 5*time.Second {
		t.Errorf("TxTimeout = %v, want 5s default", got)
	}
}
