package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadRequiresToken(t *testing.T) {
	t.Setenv("CONFIG_PATH", filepath.Join(t.TempDir(), "missing.yaml"))
	t.Setenv("DISCORD_TOKEN", "")
	if _, err := Load(); err == nil {
		t.Fatalf("expected error without DISCORD_TOKEN")
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("CONFIG_PATH", filepath.Join(t.TempDir(), "missing.yaml"))
	t.Setenv("DISCORD_TOKEN", "token")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.SettingsPath != "./config/guild_config.json" {
		t.Fatalf("unexpected settings path %q", cfg.SettingsPath)
	}
	if cfg.SweepInterval() != 24*time.Hour {
		t.Fatalf("expected daily sweep, got %s", cfg.SweepInterval())
	}
	if cfg.StatsRefresh() != 10*time.Second {
		t.Fatalf("expected 10s stats refresh, got %s", cfg.StatsRefresh())
	}
	if cfg.WizardEmojiTimeout() != 60*time.Second || cfg.WizardSessionTTL() != 5*time.Minute {
		t.Fatalf("unexpected wizard timings %s %s", cfg.WizardEmojiTimeout(), cfg.WizardSessionTTL())
	}
}

func TestYAMLThenEnvOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yaml := "settings_path: /data/guilds.json\nsweep:\n  interval_hours: 6\nwizard:\n  emoji_timeout_seconds: 30\n"
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatalf("write yaml: %v", err)
	}
	t.Setenv("CONFIG_PATH", path)
	t.Setenv("DISCORD_TOKEN", "token")
	t.Setenv("SWEEP_INTERVAL_HOURS", "12")
	t.Setenv("HEALTH_ENABLED", "yes")
	t.Setenv("EMBED_COLOR_INFO", "0x123456")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.SettingsPath != "/data/guilds.json" {
		t.Fatalf("yaml value not applied: %q", cfg.SettingsPath)
	}
	if cfg.Sweep.IntervalHours != 12 {
		t.Fatalf("env should override yaml, got %d", cfg.Sweep.IntervalHours)
	}
	if cfg.Wizard.EmojiTimeoutSeconds != 30 {
		t.Fatalf("expected 30s emoji timeout, got %d", cfg.Wizard.EmojiTimeoutSeconds)
	}
	if !cfg.Health.Enabled {
		t.Fatalf("expected health enabled")
	}
	if cfg.Notifications.EmbedColors.Info != 0x123456 {
		t.Fatalf("unexpected info color %x", cfg.Notifications.EmbedColors.Info)
	}
}

func TestNormalizeRestoresDefaults(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Sweep.IntervalHours = 0
	cfg.Stats.RefreshSeconds = -1
	cfg.Wizard.SessionTTLMinutes = 0
	normalize(&cfg)
	if cfg.Sweep.IntervalHours != 24 || cfg.Stats.RefreshSeconds != 10 || cfg.Wizard.SessionTTLMinutes != 5 {
		t.Fatalf("defaults not restored: %+v", cfg)
	}
}

func TestBuildLogger(t *testing.T) {
	for _, level := range []string{"debug", "INFO", "warn", "bogus"} {
		logger, err := BuildLogger(level)
		if err != nil {
			t.Fatalf("build logger %q: %v", level, err)
		}
		_ = logger.Sync()
	}
}
