package config

import (
	"errors"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type HTTP struct {
	Addr string `yaml:"addr"`
}

type Logging struct {
	Env       string `yaml:"env"`       // dev|stage|prod
	Service   string `yaml:"service"`   // collab-service
	Version   string `yaml:"version"`   // v0.1.0
	Backend   string `yaml:"backend"`   // std|zap
	AddSource bool   `yaml:"addSource"` // false|true
	Debug     bool   `yaml:"debug"`     // false|true
}

type Postgres struct {
	DSN             string `yaml:"dsn"`
	MaxConns        int32  `yaml:"maxConns"`
	MinConns        int32  `yaml:"minConns"`
	MaxConnLifetime string `yaml:"maxConnLifetime"`
	MaxConnIdleTime string `yaml:"maxConnIdleTime"`
}

type Collab struct {
	ReadLimit      int64    `yaml:"readLimit"`      // байты на входящее сообщение
	WriteTimeout   string   `yaml:"writeTimeout"`   // на одну отправку
	AllowedOrigins []string `yaml:"allowedOrigins"` // пусто — любые
}

type Config struct {
	HTTP     HTTP     `yaml:"http"`
	Logging  Logging  `yaml:"logging"`
	Postgres Postgres `yaml:"postgres"`
	Collab   Collab   `yaml:"collab"`
}

func LoadConfig() (*Config, error) {
	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = "./config/config.yaml"
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.HTTP.Addr == "" {
		return errors.New("http.addr is required")
	}
	if c.Postgres.DSN == "" {
		return errors.New("postgres.dsn is required")
	}
	// установка дефолтов, если значения не указаны
	if c.Logging.Service == "" {
		c.Logging.Service = "collab-service"
	}
	if c.Logging.Env == "" {
		c.Logging.Env = "dev"
	}
	if c.Logging.Version == "" {
		c.Logging.Version = "v0.1.0"
	}
	if c.Logging.Backend == "" {
		c.Logging.Backend = "std"
	}
	if c.Collab.ReadLimit <= 0 {
		c.Collab.ReadLimit = 1 << 20
	}
	return nil
}

func (p Postgres) ConnLifetime() time.Duration {
	return parseDurationOr(30*time.Minute, p.MaxConnLifetime)
}

func (p Postgres) ConnIdleTime() time.Duration {
	return parseDurationOr(5*time.Minute, p.MaxConnIdleTime)
}

func (c Collab) SendTimeout() time.Duration {
	return parseDurationOr(5*time.Second, c.WriteTimeout)
}

// helper для парсинга timeout-ов
func parseDurationOr(def time.Duration, s string) time.Duration {
	if d, err := time.ParseDuration(s); err == nil && d > 0 {
		return d
	}
	return def
}
