package config

import "time"

// Config is the scroll-proxy configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Upstream UpstreamConfig `yaml:"upstream"`
	Scroll   ScrollConfig   `yaml:"scroll"`
	Redis    RedisConfig    `yaml:"redis"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Listen string `yaml:"listen"`
}

// UpstreamConfig describes the paginated endpoint sessions scroll through.
type UpstreamConfig struct {
	BaseURL   string        `yaml:"base_url"`
	Endpoint  string        `yaml:"endpoint"`
	Mode      string        `yaml:"mode"` // "page" or "cursor"
	UserAgent string        `yaml:"user_agent"`
	Timeout   time.Duration `yaml:"timeout"`

	// MaxRetries applies to server, rate limit and network errors.
	MaxRetries int `yaml:"max_retries"`

	// FirstPage is the upstream number of the first page (page mode).
	FirstPage int `yaml:"first_page"`
}

// ScrollConfig holds the per-session machine settings.
type ScrollConfig struct {
	PageSize  int  `yaml:"page_size"`
	Threshold int  `yaml:"threshold"`
	AutoLoad  bool `yaml:"auto_load"`
}

// RedisConfig enables snapshot persistence and the shared error budget.
// An empty Addr disables both.
type RedisConfig struct {
	Addr        string        `yaml:"addr"`
	Namespace   string        `yaml:"namespace"`
	SnapshotTTL time.Duration `yaml:"snapshot_ttl"`
}

// LoggingConfig mirrors logging.Config.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Listen: ":8080",
		},
		Upstream: UpstreamConfig{
			BaseURL:    "https://esi.evetech.net/latest",
			Endpoint:   "/markets/10000002/orders/",
			Mode:       "page",
			UserAgent:  "eve-esi-scroll/0.1.0",
			Timeout:    30 * time.Second,
			MaxRetries: 2,
			FirstPage:  1,
		},
		Scroll: ScrollConfig{
			PageSize:  20,
			Threshold: 5,
			AutoLoad:  true,
		},
		Redis: RedisConfig{
			Namespace:   "default",
			SnapshotTTL: 30 * time.Minute,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}
