package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/fathima-sithara/messaging-core/internal/utils"
)

type AppConfig struct {
	Name string `mapstructure:"name"`
	Env  string `mapstructure:"env"`
	Port int    `mapstructure:"port" validate:"gte=0,lte=65535"`
	// RequestTimeoutSeconds bounds every service call made from a handler.
	RequestTimeoutSeconds int `mapstructure:"request_timeout_seconds" validate:"gte=0"`
}

func (a AppConfig) Addr() string { return fmt.Sprintf(":%d", a.Port) }

func (a AppConfig) Development() bool { return a.Env == "development" }

type MongoConfig struct {
	URI               string `mapstructure:"uri"`
	Database          string `mapstructure:"database"`
	Transactions      bool   `mapstructure:"transactions"`
	OpTimeoutSeconds  int    `mapstructure:"op_timeout_seconds" validate:"gt=0"`
	MaxRetries        uint64 `mapstructure:"max_retries"`
	ConnectTimeoutSec int    `mapstructure:"connect_timeout_seconds" validate:"gte=0"`
}

// OpTimeout bounds a single store operation.
func (m MongoConfig) OpTimeout() time.Duration {
	return time.Duration(m.OpTimeoutSeconds) * time.Second
}

func (m MongoConfig) ConnectTimeout() time.Duration {
	if m.ConnectTimeoutSec <= 0 {
		return 10 * time.Second
	}
	return time.Duration(m.ConnectTimeoutSec) * time.Second
}

type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
	// RateLimit is the number of REST requests allowed per client per window.
	RateLimit        int `mapstructure:"rate_limit" validate:"gt=0"`
	RateWindowSecond int `mapstructure:"rate_window_seconds" validate:"gt=0"`
}

type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

type NATSConfig struct {
	URL     string `mapstructure:"url"`
	Subject string `mapstructure:"subject"`
}

type EventsConfig struct {
	// Sink is one of "none", "kafka" or "nats".
	Sink               string `mapstructure:"sink" validate:"oneof=none kafka nats"`
	BreakerMaxFailures uint32 `mapstructure:"breaker_max_failures"`
	BreakerTimeoutSec  int    `mapstructure:"breaker_timeout_seconds"`
	PublishTimeoutSec  int    `mapstructure:"publish_timeout_seconds"`
}

type JWTConfig struct {
	// Algorithm is HS256 or RS256.
	Algorithm     string `mapstructure:"algorithm" validate:"oneof=HS256 RS256"`
	Secret        string `mapstructure:"secret" validate:"required_if=Algorithm HS256"`
	PublicKeyPath string `mapstructure:"public_key_path" validate:"required_if=Algorithm RS256"`
	Issuer        string `mapstructure:"issuer"`
}

type WSConfig struct {
	PingIntervalSeconds  int   `mapstructure:"ping_interval_seconds" validate:"gt=0"`
	WriteDeadlineSeconds int   `mapstructure:"write_deadline_seconds" validate:"gt=0"`
	MaxMessageSizeBytes  int64 `mapstructure:"max_message_size_bytes" validate:"gte=0"`
	SendBuffer           int   `mapstructure:"send_buffer" validate:"gt=0"`
	RatePerSecond        int   `mapstructure:"rate_per_second" validate:"gt=0"`
}

type VaultConfig struct {
	MasterKey string `mapstructure:"master_key" validate:"min=32"`
}

type StoreConfig struct {
	// Driver is "memory" or "mongo".
	Driver string `mapstructure:"driver" validate:"oneof=memory mongo"`
}

type Config struct {
	App    AppConfig    `mapstructure:"app"`
	Mongo  MongoConfig  `mapstructure:"mongo"`
	Redis  RedisConfig  `mapstructure:"redis"`
	Kafka  KafkaConfig  `mapstructure:"kafka"`
	NATS   NATSConfig   `mapstructure:"nats"`
	Events EventsConfig `mapstructure:"events"`
	JWT    JWTConfig    `mapstructure:"jwt"`
	WS     WSConfig     `mapstructure:"ws"`
	Vault  VaultConfig  `mapstructure:"vault"`
	Store  StoreConfig  `mapstructure:"store"`

	// derived
	PingInterval   time.Duration
	WriteDeadline  time.Duration
	RequestTimeout time.Duration
}

// Load reads an optional YAML file at path, then .env, then the environment.
// Nested keys are overridden with upper-case underscore names, e.g.
// MONGO_URI or JWT_SECRET.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			v.SetConfigFile(path)
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	c.derive()
	if err := c.validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "messaging-core")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", 8080)
	v.SetDefault("app.request_timeout_seconds", 10)

	v.SetDefault("mongo.uri", "mongodb://localhost:27017")
	v.SetDefault("mongo.database", "messaging")
	v.SetDefault("mongo.transactions", false)
	v.SetDefault("mongo.op_timeout_seconds", 3)
	v.SetDefault("mongo.max_retries", 3)
	v.SetDefault("mongo.connect_timeout_seconds", 10)

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.prefix", "chat")
	v.SetDefault("redis.rate_limit", 120)
	v.SetDefault("redis.rate_window_seconds", 60)

	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.topic", "messaging.events")
	v.SetDefault("nats.url", "nats://localhost:4222")
	v.SetDefault("nats.subject", "messaging.events")

	v.SetDefault("events.sink", "none")
	v.SetDefault("events.breaker_max_failures", 5)
	v.SetDefault("events.breaker_timeout_seconds", 30)
	v.SetDefault("events.publish_timeout_seconds", 2)

	v.SetDefault("jwt.algorithm", "HS256")
	v.SetDefault("jwt.secret", "")
	v.SetDefault("jwt.public_key_path", "")
	v.SetDefault("jwt.issuer", "")
	v.SetDefault("vault.master_key", "")

	v.SetDefault("ws.ping_interval_seconds", 25)
	v.SetDefault("ws.write_deadline_seconds", 10)
	v.SetDefault("ws.max_message_size_bytes", 65536)
	v.SetDefault("ws.send_buffer", 256)
	v.SetDefault("ws.rate_per_second", 20)

	v.SetDefault("store.driver", "memory")
}

func (c *Config) derive() {
	c.JWT.Algorithm = strings.ToUpper(c.JWT.Algorithm)
	c.PingInterval = time.Duration(c.WS.PingIntervalSeconds) * time.Second
	c.WriteDeadline = time.Duration(c.WS.WriteDeadlineSeconds) * time.Second
	c.RequestTimeout = time.Duration(c.App.RequestTimeoutSeconds) * time.Second
}

var structValidator = utils.NewValidator("mapstructure")

func (c *Config) validate() error {
	errs := utils.FormatValidationErrors(structValidator.Struct(c))
	if errs == nil {
		return nil
	}
	msgs := make([]string, len(errs))
	for i, e := range errs {
		msgs[i] = e.Qualified()
	}
	return errors.New("invalid config: " + strings.Join(msgs, "; "))
}
