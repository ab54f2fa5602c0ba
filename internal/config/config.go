package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type LogConfig struct {
	Level     string `yaml:"level"`
	Format    string `yaml:"format"`
	Component string `yaml:"component"`
	Source    bool   `yaml:"source"`
}

type DBConfig struct {
	Driver     string `yaml:"driver"`
	DSN        string `yaml:"dsn"`
	Host       string `yaml:"host"`
	Port       string `yaml:"port"`
	User       string `yaml:"user"`
	Password   string `yaml:"password"`
	Name       string `yaml:"name"`
	SQLitePath string `yaml:"sqlite_path"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type NATSConfig struct {
	// URL empty means the in-process broker is used.
	URL string `yaml:"url"`
}

type GRPCConfig struct {
	Host string `yaml:"host"`
	Port string `yaml:"port"`
	// ShutdownTimeout bounds the graceful drain; open streams are cut after it.
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
	Issuer    string `yaml:"issuer"`
}

type MatchingConfig struct {
	SuperConnectsPerDay int `yaml:"super_connects_per_day"`
	CandidatePageSize   int `yaml:"candidate_page_size"`
}

type RateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

type AppConfig struct {
	ENV string `yaml:"env"`
}

type Config struct {
	App       AppConfig       `yaml:"app"`
	Log       LogConfig       `yaml:"log"`
	DB        DBConfig        `yaml:"db"`
	Redis     RedisConfig     `yaml:"redis"`
	NATS      NATSConfig      `yaml:"nats"`
	GRPC      GRPCConfig      `yaml:"grpc"`
	HTTP      HTTPConfig      `yaml:"http"`
	Auth      AuthConfig      `yaml:"auth"`
	Matching  MatchingConfig  `yaml:"matching"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

// Defaults returns a config with every field at its built-in default.
func Defaults() *Config {
	cfg := &Config{}
	cfg.App.ENV = "production"

	cfg.Log.Level = "info"
	cfg.Log.Format = "text"
	cfg.Log.Component = "buildermatch"

	cfg.DB.Driver = "mysql"
	cfg.DB.Host = "localhost"
	cfg.DB.Port = "3306"
	cfg.DB.User = "root"
	cfg.DB.Password = "root"
	cfg.DB.Name = "buildermatch"
	cfg.DB.SQLitePath = "buildermatch.db"

	cfg.Redis.Addr = "localhost:6379"

	cfg.GRPC.Host = "127.0.0.1"
	cfg.GRPC.Port = "50051"
	cfg.GRPC.ShutdownTimeout = 10 * time.Second
	cfg.HTTP.Addr = "127.0.0.1:9090"

	cfg.Auth.Issuer = ""

	cfg.Matching.SuperConnectsPerDay = 3
	cfg.Matching.CandidatePageSize = 20

	cfg.RateLimit.RPS = 10
	cfg.RateLimit.Burst = 30
	return cfg
}

// New builds the config from defaults overridden by the environment.
func New() *Config {
	cfg := Defaults()
	applyEnv(cfg)
	return cfg
}

// Load reads a YAML file over the defaults and then applies the environment.
// An empty path behaves like New.
func Load(path string) (*Config, error) {
	cfg := Defaults()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	applyEnv(cfg)
	return cfg, nil
}

// Validate reports the first setting that would prevent the server from running.
func (c *Config) Validate() error {
	switch c.DB.Driver {
	case "mysql", "sqlite":
	default:
		return fmt.Errorf("unsupported db driver %q", c.DB.Driver)
	}
	if c.Matching.SuperConnectsPerDay <= 0 {
		return errors.New("super_connects_per_day must be positive")
	}
	if c.Matching.CandidatePageSize <= 0 {
		return errors.New("candidate_page_size must be positive")
	}
	if c.Auth.JWTSecret == "" && !c.IsDevelopment() {
		return errors.New("AUTH_JWT_SECRET is required outside development")
	}
	return nil
}

func (c *Config) IsDevelopment() bool {
	return c.App.ENV == "development"
}

// MySQLDSN returns the explicit DSN or one assembled from the host parts.
func (c *Config) MySQLDSN() string {
	if c.DB.DSN != "" {
		return c.DB.DSN
	}
	return fmt.Sprintf(
		"%s:%s@tcp(%s:%s)/%s?parseTime=true&charset=utf8mb4&loc=UTC",
		c.DB.User, c.DB.Password, c.DB.Host, c.DB.Port, c.DB.Name,
	)
}

func applyEnv(cfg *Config) {
	setString(&cfg.App.ENV, "APP_ENV")

	// Logger
	setString(&cfg.Log.Level, "LOG_LEVEL")
	setString(&cfg.Log.Format, "LOG_FORMAT")
	setString(&cfg.Log.Component, "LOG_COMPONENT")
	if v, ok := lookup("LOG_SOURCE"); ok {
		cfg.Log.Source = isTruthy(v)
	}

	// Database
	setString(&cfg.DB.Driver, "DB_DRIVER")
	setString(&cfg.DB.DSN, "MYSQL_DSN")
	setString(&cfg.DB.Host, "DB_HOST")
	setString(&cfg.DB.Port, "DB_PORT")
	setString(&cfg.DB.User, "DB_USER")
	setString(&cfg.DB.Password, "DB_PASSWORD")
	setString(&cfg.DB.Name, "DB_NAME")
	setString(&cfg.DB.SQLitePath, "SQLITE_PATH")

	// Redis
	setString(&cfg.Redis.Addr, "REDIS_ADDR")
	setString(&cfg.Redis.Password, "REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "REDIS_DB")

	setString(&cfg.NATS.URL, "NATS_URL")

	// Listeners
	setString(&cfg.GRPC.Host, "GRPC_HOST")
	setString(&cfg.GRPC.Port, "GRPC_PORT")
	if v, ok := lookup("SHUTDOWN_TIMEOUT"); ok {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.GRPC.ShutdownTimeout = d
		}
	}
	setString(&cfg.HTTP.Addr, "HTTP_ADDR")

	setString(&cfg.Auth.JWTSecret, "AUTH_JWT_SECRET")
	setString(&cfg.Auth.Issuer, "AUTH_JWT_ISSUER")

	setInt(&cfg.Matching.SuperConnectsPerDay, "SUPER_CONNECTS_PER_DAY")
	setInt(&cfg.Matching.CandidatePageSize, "CANDIDATE_PAGE_SIZE")

	if v, ok := lookup("RATE_LIMIT_RPS"); ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.RateLimit.RPS = f
		}
	}
	setInt(&cfg.RateLimit.Burst, "RATE_LIMIT_BURST")
}

func lookup(k string) (string, bool) {
	v := strings.TrimSpace(os.Getenv(k))
	return v, v != ""
}

func setString(dst *string, k string) {
	if v, ok := lookup(k); ok {
		*dst = v
	}
}

func setInt(dst *int, k string) {
	if v, ok := lookup(k); ok {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func isTruthy(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "y", "on":
		return true
	}
	return false
}
