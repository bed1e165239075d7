// Package config loads PayPals runtime configuration from .env, an optional
// config.yaml and PAYPALS_* environment variables.
package config

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const defaultJWTSecret = "dev-secret-change-me"

type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	StaticPath      string        `mapstructure:"static_path"`
	PublicURL       string        `mapstructure:"public_url"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	// Timezone is used for dates in spreadsheet exports.
	Timezone string `mapstructure:"timezone"`
	// TrustedProxies are the IPs or CIDRs whose X-Forwarded-For is believed.
	// Empty means the peer address is the client.
	TrustedProxies []string `mapstructure:"trusted_proxies"`
}

type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

type JWTConfig struct {
	Secret    string        `mapstructure:"secret"`
	TTL       time.Duration `mapstructure:"ttl"`
	VerifyTTL time.Duration `mapstructure:"verify_ttl"`
}

type CookieConfig struct {
	Name   string `mapstructure:"name"`
	Secure bool   `mapstructure:"secure"`
	Domain string `mapstructure:"domain"`
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type RateLimitConfig struct {
	// AuthRPM is the per-IP request budget for login and registration.
	AuthRPM int `mapstructure:"auth_rpm"`
}

type RedisConfig struct {
	// Addr enables the Redis session revocation store when non-empty.
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type SMTPConfig struct {
	// Host enables SMTP delivery when non-empty; mail is logged otherwise.
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	From     string `mapstructure:"from"`
}

type CleanupConfig struct {
	Schedule string `mapstructure:"schedule"`
	DaysOld  int    `mapstructure:"days_old"`
}

type OpsConfig struct {
	Token string `mapstructure:"token"`
	// URL points the cleanup CLI at a running server instead of the local database.
	URL string `mapstructure:"url"`
}

type TelemetryConfig struct {
	Endpoint    string `mapstructure:"endpoint"`
	Insecure    bool   `mapstructure:"insecure"`
	ServiceName string `mapstructure:"service_name"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Config contains runtime configuration values.
type Config struct {
	Env       string          `mapstructure:"env"`
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	JWT       JWTConfig       `mapstructure:"jwt"`
	Cookie    CookieConfig    `mapstructure:"cookie"`
	CORS      CORSConfig      `mapstructure:"cors"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Redis     RedisConfig     `mapstructure:"redis"`
	SMTP      SMTPConfig      `mapstructure:"smtp"`
	Cleanup   CleanupConfig   `mapstructure:"cleanup"`
	Ops       OpsConfig       `mapstructure:"ops"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Log       LogConfig       `mapstructure:"log"`
}

// IsDevelopment reports whether the server runs with development defaults.
func (c *Config) IsDevelopment() bool {
	return c.Env == "" || c.Env == "development"
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("env", "development")

	v.SetDefault("server.port", 8080)
	v.SetDefault("server.static_path", "./frontend/dist")
	v.SetDefault("server.public_url", "http://localhost:5173")
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("server.timezone", "Asia/Singapore")
	v.SetDefault("server.trusted_proxies", []string{})

	v.SetDefault("database.path", "./data/paypals.db")

	v.SetDefault("jwt.secret", defaultJWTSecret)
	v.SetDefault("jwt.ttl", 24*time.Hour)
	v.SetDefault("jwt.verify_ttl", 48*time.Hour)

	v.SetDefault("cookie.name", "paypals_session")
	v.SetDefault("cookie.secure", false)
	v.SetDefault("cookie.domain", "")

	v.SetDefault("cors.allowed_origins", []string{"http://localhost:5173"})
	v.SetDefault("rate_limit.auth_rpm", 30)

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("smtp.host", "")
	v.SetDefault("smtp.port", 587)
	v.SetDefault("smtp.username", "")
	v.SetDefault("smtp.password", "")
	v.SetDefault("smtp.from", "PayPals <no-reply@paypals.local>")

	v.SetDefault("cleanup.schedule", "@daily")
	v.SetDefault("cleanup.days_old", 30)

	v.SetDefault("ops.token", "")
	v.SetDefault("ops.url", "")

	v.SetDefault("telemetry.endpoint", "")
	v.SetDefault("telemetry.insecure", true)
	v.SetDefault("telemetry.service_name", "paypals")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}

// Load reads configuration from the given file path (e.g. "config.yaml").
// If path is empty, an optional config.yaml in the working directory is used.
// Environment variables override file values, e.g. PAYPALS_SERVER_PORT=9000.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	if path == "" {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	} else {
		v.SetConfigFile(path)
	}

	v.SetEnvPrefix("PAYPALS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := c.validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Config) validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", c.Server.Port)
	}
	if _, err := time.LoadLocation(c.Server.Timezone); err != nil {
		return fmt.Errorf("server.timezone: %w", err)
	}
	for _, p := range c.Server.TrustedProxies {
		if net.ParseIP(p) == nil {
			if _, _, err := net.ParseCIDR(p); err != nil {
				return fmt.Errorf("server.trusted_proxies: %q is not an IP or CIDR", p)
			}
		}
	}
	if c.Database.Path == "" {
		return errors.New("database.path is required")
	}
	if c.JWT.TTL <= 0 {
		return errors.New("jwt.ttl must be positive")
	}
	if c.Cleanup.DaysOld < 0 {
		return errors.New("cleanup.days_old must not be negative")
	}
	if !c.IsDevelopment() && (c.JWT.Secret == "" || c.JWT.Secret == defaultJWTSecret) {
		return errors.New("jwt.secret must be set outside development")
	}
	return nil
}
