package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

type Config struct {
	Server    ServerConfig    `toml:"server"`
	Feed      FeedConfig      `toml:"feed"`
	Dashboard DashboardConfig `toml:"dashboard"`
	Path      string          `toml:"-"`
}

type ServerConfig struct {
	Addr    string `toml:"addr"`
	DBPath  string `toml:"db_path"`
	DataDir string `toml:"data_dir"`
}

type FeedConfig struct {
	DelayMS     int `toml:"delay_ms"`
	InitialWave int `toml:"initial_wave"`
}

type DashboardConfig struct {
	APIURL         string `toml:"api_url"`
	PollIntervalMS int    `toml:"poll_interval_ms"`
	RefetchDelayMS int    `toml:"refetch_delay_ms"`
	StreamDisabled bool   `toml:"stream_disabled"`
	FollowUpWave   int    `toml:"follow_up_wave"`
}

// LoadEnv overlays .env files onto the process environment before a
// config is read. Missing files are fine.
func LoadEnv(logger logrus.FieldLogger) {
	for _, file := range []string{".env", ".env.dev"} {
		if _, err := os.Stat(file); err != nil {
			continue
		}
		if err := godotenv.Overload(file); err != nil && logger != nil {
			logger.WithError(err).Warnf("failed to load %s", file)
		}
	}
}

// Load reads the toml config at path (or the default location when path
// is empty) and applies environment overrides on top.
func Load(path string) (Config, error) {
	cfg := defaults()

	resolved := path
	if resolved == "" {
		resolved = defaultConfigPath()
	}
	if strings.HasPrefix(resolved, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return Config{}, fmt.Errorf("resolve home directory: %w", err)
		}
		trimmed := strings.TrimPrefix(resolved, "~")
		trimmed = strings.TrimPrefix(trimmed, "/")
		resolved = filepath.Join(home, trimmed)
	}
	resolved = filepath.Clean(resolved)

	if bytes, err := os.ReadFile(resolved); err == nil {
		if _, err := toml.Decode(string(bytes), &cfg); err != nil {
			return Config{}, fmt.Errorf("decode config file %s: %w", resolved, err)
		}
		cfg.Path = resolved
	} else if path != "" {
		// An explicitly requested config file must exist.
		return Config{}, fmt.Errorf("read config file %s: %w", resolved, err)
	}

	applyEnv(&cfg)
	return cfg, nil
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Addr:    ":8000",
			DBPath:  "data/crisiswatch.db",
			DataDir: "mock_data",
		},
		Feed: FeedConfig{
			DelayMS:     3000,
			InitialWave: 1,
		},
		Dashboard: DashboardConfig{
			APIURL:         "http://localhost:8000",
			PollIntervalMS: 1200,
			RefetchDelayMS: 800,
			FollowUpWave:   2,
		},
	}
}

func applyEnv(cfg *Config) {
	cfg.Server.Addr = getEnv("CRISIS_ADDR", cfg.Server.Addr)
	cfg.Server.DBPath = getEnv("CRISIS_DB_PATH", cfg.Server.DBPath)
	cfg.Server.DataDir = getEnv("CRISIS_DATA_DIR", cfg.Server.DataDir)
	cfg.Feed.DelayMS = getEnvInt("CRISIS_FEED_DELAY_MS", cfg.Feed.DelayMS)
	cfg.Dashboard.APIURL = getEnv("CRISIS_API_URL", cfg.Dashboard.APIURL)
	cfg.Dashboard.PollIntervalMS = getEnvInt("CRISIS_POLL_INTERVAL_MS", cfg.Dashboard.PollIntervalMS)
	cfg.Dashboard.StreamDisabled = getEnvBool("CRISIS_STREAM_DISABLED", cfg.Dashboard.StreamDisabled)
}

func getEnv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			return parsed
		}
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.ParseBool(v); err == nil {
			return parsed
		}
	}
	return def
}

func defaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".crisiswatch/config.toml"
	}
	return filepath.Join(home, ".crisiswatch", "config.toml")
}
