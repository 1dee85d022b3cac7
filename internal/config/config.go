package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

type ChannelSeed struct {
	ServerID  string `mapstructure:"server_id"`
	ChannelID string `mapstructure:"channel_id"`
	Name      string `mapstructure:"name"`
}

type Config struct {
	Mode       string        `mapstructure:"mode"`
	Port       int           `mapstructure:"port"`
	StaticPath string        `mapstructure:"static_path"`
	ReadLimit  int64         `mapstructure:"read_limit"`
	PingPeriod time.Duration `mapstructure:"ping_period"`
	Secret     string        `mapstructure:"secret"`

	DataDir      string        `mapstructure:"data_dir"`
	MaxRetention int           `mapstructure:"max_retention"`
	TypingTTL    time.Duration `mapstructure:"typing_ttl"`
	TypingSweep  time.Duration `mapstructure:"typing_sweep"`
	SendBuffer   int           `mapstructure:"send_buffer"`

	RateLimit         int           `mapstructure:"rate_limit"`
	RateLimitInterval time.Duration `mapstructure:"rate_limit_interval"`

	Channels []ChannelSeed `mapstructure:"channels"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	fileName := fmt.Sprintf("config/config.%s.yaml", env)

	v.SetConfigFile(fileName)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("static_path", "./web")
	v.SetDefault("read_limit", 32768)
	v.SetDefault("ping_period", "54s")
	v.SetDefault("data_dir", "./data")
	v.SetDefault("max_retention", 200)
	v.SetDefault("typing_ttl", "4s")
	v.SetDefault("typing_sweep", "1s")
	v.SetDefault("send_buffer", 32)
	v.SetDefault("rate_limit", 25)
	v.SetDefault("rate_limit_interval", "10s")

	if err := v.ReadInConfig(); err != nil {
		fmt.Printf("config file not found (%s), using defaults\n", fileName)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}
