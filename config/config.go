package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Client  ClientConfig  `mapstructure:"client"`
	Logging LoggingConfig `mapstructure:"logging"`
	Redis   RedisConfig   `mapstructure:"redis"`
	Kafka   KafkaConfig   `mapstructure:"kafka"`
	Status  StatusConfig  `mapstructure:"status"`
}

// ClientConfig drives the sync engine.
type ClientConfig struct {
	BaseURL           string        `mapstructure:"base_url"`
	WSURL             string        `mapstructure:"ws_url"`
	BotToken          string        `mapstructure:"bot_token"`
	Debug             bool          `mapstructure:"debug"`
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval"`
	PongTimeout       time.Duration `mapstructure:"pong_timeout"`
	ConnectTimeout    time.Duration `mapstructure:"connect_timeout"`
	AutoReconnect     bool          `mapstructure:"auto_reconnect"`
	SyncUnreads       bool          `mapstructure:"sync_unreads"`
	MutedChannels     []string      `mapstructure:"muted_channels"`
}

type LoggingConfig struct {
	Level    string `mapstructure:"level"`
	Format   string `mapstructure:"format"`
	Output   string `mapstructure:"output"`
	FilePath string `mapstructure:"file_path"`
}

// RedisConfig enables the Redis relay when Enabled is set.
type RedisConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Host     string        `mapstructure:"host"`
	Port     string        `mapstructure:"port"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	PoolSize int           `mapstructure:"pool_size"`
	Prefix   string        `mapstructure:"prefix"`
	StateTTL time.Duration `mapstructure:"state_ttl"`
}

func (c RedisConfig) Addr() string {
	return c.Host + ":" + c.Port
}

// KafkaConfig enables the Kafka relay when Brokers is non-empty.
type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

// StatusConfig enables the HTTP status endpoint when Port is non-zero.
type StatusConfig struct {
	Port int    `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
}

// Default returns the configuration used when no file overrides a key.
func Default() *Config {
	return &Config{
		Client: ClientConfig{
			BaseURL:           "https://api.revolt.chat",
			HeartbeatInterval: 30 * time.Second,
			PongTimeout:       10 * time.Second,
			ConnectTimeout:    10 * time.Second,
			AutoReconnect:     true,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Redis: RedisConfig{
			Host:     "localhost",
			Port:     "6379",
			PoolSize: 10,
			Prefix:   "chatsync",
			StateTTL: time.Minute,
		},
		Kafka: KafkaConfig{
			Topic: "chatsync-events",
		},
		Status: StatusConfig{
			Mode: "release",
		},
	}
}

func setDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("client.base_url", d.Client.BaseURL)
	v.SetDefault("client.heartbeat_interval", d.Client.HeartbeatInterval)
	v.SetDefault("client.pong_timeout", d.Client.PongTimeout)
	v.SetDefault("client.connect_timeout", d.Client.ConnectTimeout)
	v.SetDefault("client.auto_reconnect", d.Client.AutoReconnect)
	v.SetDefault("client.sync_unreads", d.Client.SyncUnreads)
	v.SetDefault("client.debug", d.Client.Debug)
	v.SetDefault("client.ws_url", d.Client.WSURL)
	v.SetDefault("client.bot_token", d.Client.BotToken)
	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)
	v.SetDefault("logging.output", d.Logging.Output)
	v.SetDefault("redis.enabled", d.Redis.Enabled)
	v.SetDefault("redis.host", d.Redis.Host)
	v.SetDefault("redis.port", d.Redis.Port)
	v.SetDefault("redis.pool_size", d.Redis.PoolSize)
	v.SetDefault("redis.prefix", d.Redis.Prefix)
	v.SetDefault("redis.state_ttl", d.Redis.StateTTL)
	v.SetDefault("kafka.topic", d.Kafka.Topic)
	v.SetDefault("status.port", d.Status.Port)
	v.SetDefault("status.mode", d.Status.Mode)
}

// LoadConfig reads the file at path on top of Default. Any key can be
// overridden from the environment with the CHATSYNC_ prefix, e.g.
// CHATSYNC_CLIENT_BOT_TOKEN.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("CHATSYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &config, nil
}
