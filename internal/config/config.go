package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Mode       string        `mapstructure:"mode"`
	Port       int           `mapstructure:"port"`
	Capacity   int           `mapstructure:"capacity"`
	ReadLimit  int64         `mapstructure:"read_limit"`
	PingPeriod time.Duration `mapstructure:"ping_period"`
	PongWait   time.Duration `mapstructure:"pong_wait"`

	// JoinLimit start_wait events per session are allowed within each
	// JoinWindow; further joins in the window get a too_many_joins error.
	JoinLimit  int           `mapstructure:"join_limit"`
	JoinWindow time.Duration `mapstructure:"join_window"`

	// RedisURL wins over RedisAddr when both are set; local mode uses
	// neither and keeps everything in process.
	RedisURL  string `mapstructure:"redis_url"`
	RedisAddr string `mapstructure:"redis_addr"`

	TelemetryURL     string `mapstructure:"telemetry_url"`
	TelemetryAuth    string `mapstructure:"telemetry_auth"`
	TelemetryWorkers int    `mapstructure:"telemetry_workers"`
	TelemetryQueue   int    `mapstructure:"telemetry_queue"`

	// TrustClaimedRoom selects the legacy routing variant that honors
	// the payload-declared room id instead of the registry lookup.
	TrustClaimedRoom bool `mapstructure:"trust_claimed_room"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "local"
	}
	fileName := fmt.Sprintf("config/config.%s.yaml", env)

	v.SetConfigFile(fileName)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.SetDefault("mode", "local")
	v.SetDefault("port", 5000)
	v.SetDefault("capacity", 2)
	v.SetDefault("read_limit", 32768)
	v.SetDefault("ping_period", "25s")
	v.SetDefault("pong_wait", "60s")
	v.SetDefault("join_limit", 5)
	v.SetDefault("join_window", "10s")
	v.SetDefault("redis_addr", "localhost:6379")
	v.SetDefault("telemetry_workers", 20)
	v.SetDefault("telemetry_queue", 1024)
	v.SetDefault("trust_claimed_room", false)

	v.SetEnvPrefix("matchd")
	v.AutomaticEnv()
	_ = v.BindEnv("redis_url", "REDIS_URL")
	_ = v.BindEnv("telemetry_url", "TELEMETRY_URL")
	_ = v.BindEnv("telemetry_auth", "TELEMETRY_AUTH")

	if err := v.ReadInConfig(); err != nil {
		fmt.Printf("⚠️ Config file not found (%s), using defaults\n", fileName)
	} else {
		fmt.Printf("✅ Loaded config: %s\n", fileName)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects configs the matchmaker cannot run with. Capacity 1 is
// legal and self-matches immediately.
func (c *Config) Validate() error {
	if c.Capacity < 1 {
		return fmt.Errorf("capacity must be >= 1, got %d", c.Capacity)
	}
	if c.PingPeriod >= c.PongWait {
		return fmt.Errorf("ping_period (%s) must be shorter than pong_wait (%s)", c.PingPeriod, c.PongWait)
	}
	if c.JoinLimit < 1 {
		return fmt.Errorf("join_limit must be >= 1, got %d", c.JoinLimit)
	}
	if c.JoinWindow <= 0 {
		return fmt.Errorf("join_window must be positive, got %s", c.JoinWindow)
	}
	return nil
}
