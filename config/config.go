package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config is the full service configuration.
type Config struct {
	Server    ServerConfig
	DB        DBConfig
	JWT       JWTConfig
	Chat      ChatConfig
	WebSocket WebSocketConfig
	Redis     RedisConfig
	Log       LogConfig
}

type ServerConfig struct {
	Port            string
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DBConfig selects the gorm dialect. Driver is one of postgres, mysql or sqlite.
type DBConfig struct {
	Driver   string
	Host     string
	Port     int
	User     string
	Password string
	Name     string
	SSLMode  string `mapstructure:"sslmode"`
	Path     string // sqlite only
}

type JWTConfig struct {
	Secret string
	TTL    time.Duration
}

type ChatConfig struct {
	MaxTextLength int  `mapstructure:"max_text_length"`
	HistoryLimit  int  `mapstructure:"history_limit"`
	SendBuffer    int  `mapstructure:"send_buffer"`
	EchoSender    bool `mapstructure:"echo_sender"`
}

type WebSocketConfig struct {
	WriteWait      time.Duration `mapstructure:"write_wait"`
	PongWait       time.Duration `mapstructure:"pong_wait"`
	MaxMessageSize int64         `mapstructure:"max_message_size"`
}

// PingPeriod must be less than PongWait.
func (w WebSocketConfig) PingPeriod() time.Duration {
	return (w.PongWait * 9) / 10
}

type RedisConfig struct {
	Enabled    bool
	Address    string
	Password   string
	DB         int
	Prefix     string
	SummaryTTL time.Duration `mapstructure:"summary_ttl"`
}

type LogConfig struct {
	Level  string
	Pretty bool
}

// Load reads .env (if present), an optional config.yaml and the environment.
func Load() (*Config, error) {
	// A missing .env is fine; the process environment still applies.
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)
	bindEnv(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.shutdown_timeout", "10s")

	v.SetDefault("db.driver", "postgres")
	v.SetDefault("db.host", "localhost")
	v.SetDefault("db.port", 5432)
	v.SetDefault("db.user", "postgres")
	v.SetDefault("db.password", "postgres")
	v.SetDefault("db.name", "lostfound")
	v.SetDefault("db.sslmode", "disable")
	v.SetDefault("db.path", "lostfound.db")

	v.SetDefault("jwt.secret", "your-secret-key")
	v.SetDefault("jwt.ttl", "168h")

	v.SetDefault("chat.max_text_length", 2000)
	v.SetDefault("chat.history_limit", 0)
	v.SetDefault("chat.send_buffer", 256)
	v.SetDefault("chat.echo_sender", true)

	v.SetDefault("websocket.write_wait", "10s")
	v.SetDefault("websocket.pong_wait", "60s")
	v.SetDefault("websocket.max_message_size", 10000)

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.address", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.prefix", "lostfound:chats")
	v.SetDefault("redis.summary_ttl", "30s")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)
}

// bindEnv keeps the variable names the service has always read.
func bindEnv(v *viper.Viper) {
	v.BindEnv("server.port", "PORT")
	v.BindEnv("db.driver", "DB_DRIVER")
	v.BindEnv("db.host", "DB_HOST")
	v.BindEnv("db.port", "DB_PORT")
	v.BindEnv("db.user", "DB_USER")
	v.BindEnv("db.password", "DB_PASS")
	v.BindEnv("db.name", "DB_NAME")
	v.BindEnv("db.path", "DB_PATH")
	v.BindEnv("jwt.secret", "JWT_SECRET")
	v.BindEnv("redis.enabled", "REDIS_ENABLED")
	v.BindEnv("redis.address", "REDIS_ADDRESS")
	v.BindEnv("redis.password", "REDIS_PASSWORD")
	v.BindEnv("log.level", "LOG_LEVEL")
}

func (c *Config) validate() error {
	switch c.DB.Driver {
	case "postgres", "mysql", "sqlite":
	default:
		return fmt.Errorf("unsupported database driver: %s", c.DB.Driver)
	}
	if c.Chat.MaxTextLength <= 0 {
		return fmt.Errorf("chat.max_text_length must be positive, got %d", c.Chat.MaxTextLength)
	}
	if c.Chat.SendBuffer <= 0 {
		return fmt.Errorf("chat.send_buffer must be positive, got %d", c.Chat.SendBuffer)
	}
	if c.WebSocket.PongWait <= 0 || c.WebSocket.WriteWait <= 0 {
		return fmt.Errorf("websocket waits must be positive")
	}
	return nil
}
