package sys

import (
	"testing"
	"time"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"DISCORD_TOKEN", "GUILD_ID", "DATABASE_PATH", "CACHE_DIR", "COMMAND_PREFIX",
		"MAX_DURATION_MINUTES", "IDLE_TIMEOUT_MS", "USE_MUSIC_STREAMING", "SKIP_ENABLED",
		"COMMAND_RATE", "COMMAND_BURST", "SILENT", "LOG_TO_FILE",
	} {
		t.Setenv(k, "")
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("DISCORD_TOKEN", "token")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error: %v", err)
	}
	if cfg.CommandPrefix != DefaultCommandPrefix {
		t.Fatalf("CommandPrefix = %q, want %q", cfg.CommandPrefix, DefaultCommandPrefix)
	}
	if cfg.CacheDir != DefaultCacheDir {
		t.Fatalf("CacheDir = %q, want %q", cfg.CacheDir, DefaultCacheDir)
	}
	if cfg.MaxDurationMinutes != DefaultMaxDurationMinutes || cfg.IdleTimeout != DefaultIdleTimeout {
		t.Fatalf("limits = %v / %v", cfg.MaxDurationMinutes, cfg.IdleTimeout)
	}
	if cfg.StreamingEnabled || !cfg.SkipEnabled {
		t.Fatalf("StreamingEnabled = %v, SkipEnabled = %v", cfg.StreamingEnabled, cfg.SkipEnabled)
	}
	if cfg.DatabasePath == "" {
		t.Fatal("DatabasePath is empty")
	}
}

func TestLoadConfigOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("DISCORD_TOKEN", "token")
	t.Setenv("COMMAND_PREFIX", "!")
	t.Setenv("MAX_DURATION_MINUTES", "7.5")
	t.Setenv("IDLE_TIMEOUT_MS", "1500")
	t.Setenv("USE_MUSIC_STREAMING", "true")
	t.Setenv("SKIP_ENABLED", "false")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error: %v", err)
	}
	if cfg.CommandPrefix != "!" || cfg.MaxDurationMinutes != 7.5 {
		t.Fatalf("cfg = %+v", cfg)
	}
	if cfg.IdleTimeout != 1500*time.Millisecond {
		t.Fatalf("IdleTimeout = %v", cfg.IdleTimeout)
	}
	if !cfg.StreamingEnabled || cfg.SkipEnabled {
		t.Fatalf("StreamingEnabled = %v, SkipEnabled = %v", cfg.StreamingEnabled, cfg.SkipEnabled)
	}
}

func TestLoadConfigRejectsBadValues(t *testing.T) {
	cases := []struct{ key, value string }{
		{"MAX_DURATION_MINUTES", "ten"},
		{"MAX_DURATION_MINUTES", "NaN"},
		{"MAX_DURATION_MINUTES", "+Inf"},
		{"MAX_DURATION_MINUTES", "-3"},
		{"IDLE_TIMEOUT_MS", "1s"},
		{"SKIP_ENABLED", "maybe"},
		{"COMMAND_BURST", "0"},
		{"GUILD_ID", "not-a-snowflake"},
	}
	for _, tc := range cases {
		clearEnv(t)
		t.Setenv("DISCORD_TOKEN", "token")
		t.Setenv(tc.key, tc.value)
		if _, err := LoadConfig(); err == nil {
			t.Fatalf("LoadConfig() with %s=%q succeeded", tc.key, tc.value)
		}
	}
}

func TestLoadConfigRequiresToken(t *testing.T) {
	clearEnv(t)
	if _, err := LoadConfig(); err == nil {
		t.Fatal("LoadConfig() without token succeeded")
	}
}
