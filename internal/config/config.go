package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type WSConfig struct {
	ReadLimit  int64         `mapstructure:"read_limit"`
	PingPeriod time.Duration `mapstructure:"ping_period"`
	PongWait   time.Duration `mapstructure:"pong_wait"`
	WriteWait  time.Duration `mapstructure:"write_wait"`
	SendBuffer int           `mapstructure:"send_buffer"`
}

type RoomsConfig struct {
	MaxRooms      int           `mapstructure:"max_rooms"`
	IdleTTL       time.Duration `mapstructure:"idle_ttl"`
	JanitorPeriod time.Duration `mapstructure:"janitor_period"`
}

type GuardConfig struct {
	Window   time.Duration `mapstructure:"window"`
	MaxJoins int           `mapstructure:"max_joins"`
	MaxChats int           `mapstructure:"max_chats"`
	BlockFor time.Duration `mapstructure:"block_for"`
}

type PersistConfig struct {
	Backend       string        `mapstructure:"backend"`
	Path          string        `mapstructure:"path"`
	Debounce      time.Duration `mapstructure:"debounce"`
	RedisAddr     string        `mapstructure:"redis_addr"`
	RedisPassword string        `mapstructure:"redis_password"`
	RedisDB       int           `mapstructure:"redis_db"`
	Key           string        `mapstructure:"key"`
	SQLDriver     string        `mapstructure:"sql_driver"`
	SQLDSN        string        `mapstructure:"sql_dsn"`
}

type AdminConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
}

type PolicyConfig struct {
	Backpressure string `mapstructure:"backpressure"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Pretty bool   `mapstructure:"pretty"`
}

type Config struct {
	Mode       string `mapstructure:"mode"`
	Port       int    `mapstructure:"port"`
	StaticPath string `mapstructure:"static_path"`
	Secret     string `mapstructure:"secret"`
	// TrustedPlatform names the header carrying the client ip, e.g.
	// "CF-Connecting-IP" or "cloudflare".
	TrustedPlatform string `mapstructure:"trusted_platform"`
	// TrustedProxies lists the proxy addresses or CIDRs whose
	// X-Forwarded-For is believed. Empty means the peer address is used.
	TrustedProxies []string `mapstructure:"trusted_proxies"`

	WS      WSConfig      `mapstructure:"ws"`
	Rooms   RoomsConfig   `mapstructure:"rooms"`
	Guard   GuardConfig   `mapstructure:"guard"`
	Persist PersistConfig `mapstructure:"persist"`
	Admin   AdminConfig   `mapstructure:"admin"`
	Policy  PolicyConfig  `mapstructure:"policy"`
	Log     LogConfig     `mapstructure:"log"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("mode", "release")
	v.SetDefault("port", 3000)
	v.SetDefault("static_path", "./web")
	v.SetDefault("secret", "watchparty-dev-secret")
	v.SetDefault("trusted_platform", "")
	v.SetDefault("trusted_proxies", []string{})

	v.SetDefault("ws.read_limit", 65536)
	v.SetDefault("ws.ping_period", "54s")
	v.SetDefault("ws.pong_wait", "60s")
	v.SetDefault("ws.write_wait", "10s")
	v.SetDefault("ws.send_buffer", 64)

	v.SetDefault("rooms.max_rooms", 1000)
	v.SetDefault("rooms.idle_ttl", "24h")
	v.SetDefault("rooms.janitor_period", "1m")

	v.SetDefault("guard.window", "1m")
	v.SetDefault("guard.max_joins", 10)
	v.SetDefault("guard.max_chats", 30)
	v.SetDefault("guard.block_for", "10m")

	v.SetDefault("persist.backend", "file")
	v.SetDefault("persist.path", "rooms.json")
	v.SetDefault("persist.debounce", "1s")
	v.SetDefault("persist.redis_addr", "localhost:6379")
	v.SetDefault("persist.redis_password", "")
	v.SetDefault("persist.redis_db", 0)
	v.SetDefault("persist.key", "watchparty:rooms")
	v.SetDefault("persist.sql_driver", "sqlite")
	v.SetDefault("persist.sql_dsn", "watchparty.db")

	v.SetDefault("admin.jwt_secret", "")
	v.SetDefault("policy.backpressure", "drop")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", true)
}

// Load reads config/config.<CONFIG_ENV>.yaml (env defaults to dev) on top of
// the defaults. WATCHPARTY_* environment variables win over both, with dots
// in keys written as underscores (WATCHPARTY_PERSIST_BACKEND).
func Load() (*Config, error) {
	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	return LoadFile(fmt.Sprintf("config/config.%s.yaml", env))
}

func LoadFile(fileName string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetConfigFile(fileName)

	v.SetEnvPrefix("WATCHPARTY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, statErr := os.Stat(fileName); statErr == nil {
			return nil, fmt.Errorf("failed to read config %s: %w", fileName, err)
		}
		// no file: defaults and env only
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.Persist.Backend {
	case "file", "redis", "sql", "none":
	default:
		return fmt.Errorf("persist.backend: unknown backend %q", c.Persist.Backend)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("port: out of range: %d", c.Port)
	}
	if c.WS.SendBuffer <= 0 {
		return fmt.Errorf("ws.send_buffer: must be positive")
	}
	return nil
}
