package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

type Config struct {
	DiscordToken  string       `yaml:"discord_token"`
	ClientID      string       `yaml:"client_id"`
	SettingsPath  string       `yaml:"settings_path"`
	AuditDBPath   string       `yaml:"audit_db_path"`
	AssetsDir     string       `yaml:"assets_dir"`
	LogLevel      string       `yaml:"log_level"`
	RetentionDays int          `yaml:"audit_retention_days"`
	Health        HealthConfig `yaml:"health"`
	Sweep         SweepConfig  `yaml:"sweep"`
	Stats         StatsConfig  `yaml:"stats"`
	Wizard        WizardConfig `yaml:"wizard"`
	Notifications NotifyConfig `yaml:"notifications"`
}

type HealthConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

type SweepConfig struct {
	IntervalHours       int `yaml:"interval_hours"`
	InitialDelaySeconds int `yaml:"initial_delay_seconds"`
	Concurrency         int `yaml:"concurrency"`
}

type StatsConfig struct {
	RefreshSeconds int `yaml:"refresh_seconds"`
}

type WizardConfig struct {
	EmojiTimeoutSeconds int `yaml:"emoji_timeout_seconds"`
	SessionTTLMinutes   int `yaml:"session_ttl_minutes"`
}

type NotifyConfig struct {
	EmbedColors EmbedColors `yaml:"embed_colors"`
}

type EmbedColors struct {
	Info    int `yaml:"info"`
	Success int `yaml:"success"`
	Error   int `yaml:"error"`
}

func DefaultConfig() Config {
	return Config{
		SettingsPath:  "./config/guild_config.json",
		AuditDBPath:   "./config/audit.db",
		AssetsDir:     "./assets",
		LogLevel:      "info",
		RetentionDays: 30,
		Health:        HealthConfig{Enabled: false, Addr: ":8080"},
		Sweep:         SweepConfig{IntervalHours: 24, InitialDelaySeconds: 60, Concurrency: 4},
		Stats:         StatsConfig{RefreshSeconds: 10},
		Wizard:        WizardConfig{EmojiTimeoutSeconds: 60, SessionTTLMinutes: 5},
		Notifications: NotifyConfig{
			EmbedColors: EmbedColors{
				Info:    0xDB5275,
				Success: 0x22C55E,
				Error:   0xEF4444,
			},
		},
	}
}

// Load reads .env, then CONFIG_PATH (default config.yaml) over the defaults,
// then environment overrides.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := DefaultConfig()

	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = "config.yaml"
	}
	if data, err := os.ReadFile(path); err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, err
		}
	}

	applyEnv(&cfg)
	if cfg.DiscordToken == "" {
		return Config{}, errors.New("DISCORD_TOKEN is required")
	}
	normalize(&cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	cfg.DiscordToken = envString("DISCORD_TOKEN", cfg.DiscordToken)
	cfg.ClientID = envString("CLIENT_ID", cfg.ClientID)
	cfg.SettingsPath = envString("SETTINGS_PATH", cfg.SettingsPath)
	cfg.AuditDBPath = envString("AUDIT_DB_PATH", cfg.AuditDBPath)
	cfg.AssetsDir = envString("ASSETS_DIR", cfg.AssetsDir)
	cfg.LogLevel = envString("LOG_LEVEL", cfg.LogLevel)
	cfg.RetentionDays = envInt("AUDIT_RETENTION_DAYS", cfg.RetentionDays)
	cfg.Health.Enabled = envBool("HEALTH_ENABLED", cfg.Health.Enabled)
	cfg.Health.Addr = envString("HEALTH_ADDR", cfg.Health.Addr)
	cfg.Sweep.IntervalHours = envInt("SWEEP_INTERVAL_HOURS", cfg.Sweep.IntervalHours)
	cfg.Sweep.InitialDelaySeconds = envInt("SWEEP_INITIAL_DELAY_SECONDS", cfg.Sweep.InitialDelaySeconds)
	cfg.Sweep.Concurrency = envInt("SWEEP_CONCURRENCY", cfg.Sweep.Concurrency)
	cfg.Stats.RefreshSeconds = envInt("STATS_REFRESH_SECONDS", cfg.Stats.RefreshSeconds)
	cfg.Wizard.EmojiTimeoutSeconds = envInt("WIZARD_EMOJI_TIMEOUT_SECONDS", cfg.Wizard.EmojiTimeoutSeconds)
	cfg.Wizard.SessionTTLMinutes = envInt("WIZARD_SESSION_TTL_MINUTES", cfg.Wizard.SessionTTLMinutes)
	cfg.Notifications.EmbedColors.Info = envInt("EMBED_COLOR_INFO", cfg.Notifications.EmbedColors.Info)
	cfg.Notifications.EmbedColors.Success = envInt("EMBED_COLOR_SUCCESS", cfg.Notifications.EmbedColors.Success)
	cfg.Notifications.EmbedColors.Error = envInt("EMBED_COLOR_ERROR", cfg.Notifications.EmbedColors.Error)
}

// normalize replaces non-positive durations with their defaults.
func normalize(cfg *Config) {
	def := DefaultConfig()
	if cfg.Sweep.IntervalHours <= 0 {
		cfg.Sweep.IntervalHours = def.Sweep.IntervalHours
	}
	if cfg.Sweep.InitialDelaySeconds < 0 {
		cfg.Sweep.InitialDelaySeconds = 0
	}
	if cfg.Sweep.Concurrency <= 0 {
		cfg.Sweep.Concurrency = def.Sweep.Concurrency
	}
	if cfg.Stats.RefreshSeconds <= 0 {
		cfg.Stats.RefreshSeconds = def.Stats.RefreshSeconds
	}
	if cfg.Wizard.EmojiTimeoutSeconds <= 0 {
		cfg.Wizard.EmojiTimeoutSeconds = def.Wizard.EmojiTimeoutSeconds
	}
	if cfg.Wizard.SessionTTLMinutes <= 0 {
		cfg.Wizard.SessionTTLMinutes = def.Wizard.SessionTTLMinutes
	}
	if cfg.RetentionDays <= 0 {
		cfg.RetentionDays = def.RetentionDays
	}
}

func (c Config) SweepInterval() time.Duration {
	return time.Duration(c.Sweep.IntervalHours) * time.Hour
}

func (c Config) SweepInitialDelay() time.Duration {
	return time.Duration(c.Sweep.InitialDelaySeconds) * time.Second
}

func (c Config) StatsRefresh() time.Duration {
	return time.Duration(c.Stats.RefreshSeconds) * time.Second
}

func (c Config) WizardEmojiTimeout() time.Duration {
	return time.Duration(c.Wizard.EmojiTimeoutSeconds) * time.Second
}

func (c Config) WizardSessionTTL() time.Duration {
	return time.Duration(c.Wizard.SessionTTLMinutes) * time.Minute
}

func BuildLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Encoding = "json"
	cfg.EncoderConfig.TimeKey = "time"
	cfg.EncoderConfig.MessageKey = "message"
	cfg.EncoderConfig.LevelKey = "level"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.Level = zap.NewAtomicLevelAt(parseLevel(strings.ToLower(level)))
	return cfg.Build()
}

func parseLevel(level string) zapcore.Level {
	switch level {
	case "debug":
		return zapcore.DebugLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

func envString(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseInt(value, 0, 64); err == nil {
			return int(parsed)
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if value := os.Getenv(key); value != "" {
		lower := strings.ToLower(value)
		return lower == "1" || lower == "true" || lower == "yes"
	}
	return fallback
}
