package sys

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/joho/godotenv"
)

const (
	DefaultCommandPrefix      = "/"
	DefaultCacheDir           = "cache"
	DefaultMaxDurationMinutes = 10
	DefaultIdleTimeout        = 60 * time.Second
	DefaultCommandRate        = 1.0
	DefaultCommandBurst       = 3
)

type Config struct {
	Token        string
	GuildID      string
	DatabasePath string
	CacheDir     string

	CommandPrefix      string
	MaxDurationMinutes float64
	IdleTimeout        time.Duration
	StreamingEnabled   bool
	SkipEnabled        bool

	CommandRate  float64
	CommandBurst int

	Silent    bool
	LogToFile bool
}

// LoadConfig reads .env (if present) and the process environment.
func LoadConfig() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Token:              os.Getenv("DISCORD_TOKEN"),
		GuildID:            strings.TrimSpace(os.Getenv("GUILD_ID")),
		DatabasePath:       os.Getenv("DATABASE_PATH"),
		CacheDir:           os.Getenv("CACHE_DIR"),
		CommandPrefix:      os.Getenv("COMMAND_PREFIX"),
		MaxDurationMinutes: DefaultMaxDurationMinutes,
		IdleTimeout:        DefaultIdleTimeout,
		SkipEnabled:        true,
		CommandRate:        DefaultCommandRate,
		CommandBurst:       DefaultCommandBurst,
	}

	if cfg.DatabasePath == "" {
		cfg.DatabasePath = "./" + GetProjectName() + ".db"
	}
	if cfg.CacheDir == "" {
		cfg.CacheDir = DefaultCacheDir
	}
	if cfg.CommandPrefix == "" {
		cfg.CommandPrefix = DefaultCommandPrefix
	}

	var err error
	if v := os.Getenv("MAX_DURATION_MINUTES"); v != "" {
		if cfg.MaxDurationMinutes, err = strconv.ParseFloat(v, 64); err != nil {
			return nil, fmt.Errorf(MsgConfigInvalidValue, "MAX_DURATION_MINUTES", err)
		}
	}
	if v := os.Getenv("IDLE_TIMEOUT_MS"); v != "" {
		ms, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf(MsgConfigInvalidValue, "IDLE_TIMEOUT_MS", err)
		}
		cfg.IdleTimeout = time.Duration(ms) * time.Millisecond
	}
	if v := os.Getenv("USE_MUSIC_STREAMING"); v != "" {
		if cfg.StreamingEnabled, err = strconv.ParseBool(v); err != nil {
			return nil, fmt.Errorf(MsgConfigInvalidValue, "USE_MUSIC_STREAMING", err)
		}
	}
	if v := os.Getenv("SKIP_ENABLED"); v != "" {
		if cfg.SkipEnabled, err = strconv.ParseBool(v); err != nil {
			return nil, fmt.Errorf(MsgConfigInvalidValue, "SKIP_ENABLED", err)
		}
	}
	if v := os.Getenv("COMMAND_RATE"); v != "" {
		if cfg.CommandRate, err = strconv.ParseFloat(v, 64); err != nil {
			return nil, fmt.Errorf(MsgConfigInvalidValue, "COMMAND_RATE", err)
		}
	}
	if v := os.Getenv("COMMAND_BURST"); v != "" {
		if cfg.CommandBurst, err = strconv.Atoi(v); err != nil {
			return nil, fmt.Errorf(MsgConfigInvalidValue, "COMMAND_BURST", err)
		}
	}

	cfg.Silent, _ = strconv.ParseBool(os.Getenv("SILENT"))
	cfg.LogToFile, _ = strconv.ParseBool(os.Getenv("LOG_TO_FILE"))

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate ensures the configuration is valid and meets requirements.
func (c *Config) Validate() error {
	if c.Token == "" {
		return fmt.Errorf(MsgConfigMissingToken)
	}
	if c.GuildID != "" {
		if _, err := snowflake.Parse(c.GuildID); err != nil {
			return fmt.Errorf("invalid GUILD_ID: must be a valid Snowflake")
		}
	}
	if !(c.MaxDurationMinutes > 0) || math.IsInf(c.MaxDurationMinutes, 1) {
		return fmt.Errorf("MAX_DURATION_MINUTES must be positive, got %v", c.MaxDurationMinutes)
	}
	if c.IdleTimeout < 0 {
		return fmt.Errorf("IDLE_TIMEOUT_MS must not be negative, got %v", c.IdleTimeout)
	}
	if c.CommandRate <= 0 || c.CommandBurst <= 0 {
		return fmt.Errorf("COMMAND_RATE and COMMAND_BURST must be positive")
	}
	return nil
}

// DataSourceName returns the sqlite DSN with the pragmas the store expects.
func (c *Config) DataSourceName() string {
	return fmt.Sprintf("%s?_journal_mode=WAL&_timeout=5000", c.DatabasePath)
}

func GetProjectName() string {
	exePath, err := os.Executable()
	if err != nil {
		return "howie"
	}
	name := strings.TrimSuffix(filepath.Base(exePath), ".exe")
	if name == "main" || strings.HasPrefix(name, "go_build_") || strings.HasSuffix(name, ".test") {
		return "howie"
	}
	return name
}
