// Package config reads server configuration from the environment.
package config

import (
	"strings"
	"time"

	"github.com/caarlos0/env/v11"

	dErrors "github.com/genialityco/gen-live-web-sub000/pkg/domain-errors"
)

const devSigningKey = "dev-secret-key-change-in-production"

type Config struct {
	Addr        string `env:"GENLIVE_ADDR"        envDefault:":8080"`
	Environment string `env:"GENLIVE_ENV"         envDefault:"development"`
	LogLevel    string `env:"GENLIVE_LOG_LEVEL"   envDefault:"info"`

	// SecureCookies marks the device cookie Secure. Defaults on outside development.
	SecureCookies *bool `env:"GENLIVE_SECURE_COOKIES"`

	Backend  BackendConfig  `envPrefix:"GENLIVE_BACKEND_"`
	Redis    RedisConfig    `envPrefix:"GENLIVE_REDIS_"`
	Postgres PostgresConfig `envPrefix:"GENLIVE_POSTGRES_"`
	Forms    FormsConfig    `envPrefix:"GENLIVE_FORMS_"`
	Session  SessionConfig  `envPrefix:"GENLIVE_SESSION_"`
	Flow     FlowConfig     `envPrefix:"GENLIVE_FLOW_"`
}

// BackendConfig points at the registration backend. An empty URL selects the
// in-process backend.
type BackendConfig struct {
	URL              string        `env:"URL"`
	Token            string        `env:"TOKEN"`
	Timeout          time.Duration `env:"TIMEOUT"           envDefault:"10s"`
	FailureThreshold int           `env:"FAILURE_THRESHOLD" envDefault:"5"`
	SuccessThreshold int           `env:"SUCCESS_THRESHOLD" envDefault:"1"`
	Cooldown         time.Duration `env:"COOLDOWN"          envDefault:"30s"`
}

// RedisConfig enables the Redis session store when URL is set.
type RedisConfig struct {
	URL          string        `env:"URL"`
	PoolSize     int           `env:"POOL_SIZE"      envDefault:"10"`
	MinIdleConns int           `env:"MIN_IDLE_CONNS" envDefault:"2"`
	DialTimeout  time.Duration `env:"DIAL_TIMEOUT"   envDefault:"5s"`
	ReadTimeout  time.Duration `env:"READ_TIMEOUT"   envDefault:"3s"`
	WriteTimeout time.Duration `env:"WRITE_TIMEOUT"  envDefault:"3s"`
}

// PostgresConfig enables the Postgres attendee directory and audit store
// when DSN is set.
type PostgresConfig struct {
	DSN          string `env:"DSN"`
	MaxOpenConns int    `env:"MAX_OPEN_CONNS" envDefault:"10"`
	Migrate      bool   `env:"MIGRATE"        envDefault:"true"`
}

type FormsConfig struct {
	Dir string `env:"DIR" envDefault:"./forms"`
}

type SessionConfig struct {
	SigningKey string        `env:"SIGNING_KEY"`
	Issuer     string        `env:"ISSUER"      envDefault:"gen-live"`
	TTL        time.Duration `env:"TTL"         envDefault:"720h"`
}

type FlowConfig struct {
	DebounceWindow  time.Duration `env:"DEBOUNCE_WINDOW"   envDefault:"150ms"`
	VisitTTL        time.Duration `env:"VISIT_TTL"         envDefault:"30m"`
	JanitorInterval time.Duration `env:"JANITOR_INTERVAL"  envDefault:"1m"`
	VerifyPerMinute int           `env:"VERIFY_PER_MINUTE" envDefault:"10"`
	VerifyBurst     int           `env:"VERIFY_BURST"      envDefault:"5"`
}

// Load parses the process environment.
func Load() (Config, error) {
	return parse(env.Options{})
}

// LoadFrom parses the given variables instead of the process environment.
func LoadFrom(environ map[string]string) (Config, error) {
	return parse(env.Options{Environment: environ})
}

func parse(opts env.Options) (Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return Config{}, dErrors.Wrap(err, dErrors.CodeConfiguration, "parse env")
	}
	if cfg.Session.SigningKey == "" && cfg.IsDevelopment() {
		cfg.Session.SigningKey = devSigningKey
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) IsDevelopment() bool {
	return strings.EqualFold(c.Environment, "development") || strings.EqualFold(c.Environment, "test")
}

// CookiesSecure reports whether the device cookie carries the Secure flag.
func (c Config) CookiesSecure() bool {
	if c.SecureCookies != nil {
		return *c.SecureCookies
	}
	return !c.IsDevelopment()
}

// Validate lists every problem at once.
func (c Config) Validate() error {
	var problems []string
	if c.Session.SigningKey == "" {
		problems = append(problems, "GENLIVE_SESSION_SIGNING_KEY is required outside development")
	}
	if !c.IsDevelopment() && c.Session.SigningKey == devSigningKey {
		problems = append(problems, "GENLIVE_SESSION_SIGNING_KEY must not use the development key")
	}
	if c.Session.TTL <= 0 {
		problems = append(problems, "GENLIVE_SESSION_TTL must be positive")
	}
	if c.Flow.VisitTTL <= 0 {
		problems = append(problems, "GENLIVE_FLOW_VISIT_TTL must be positive")
	}
	if c.Flow.DebounceWindow < 0 {
		problems = append(problems, "GENLIVE_FLOW_DEBOUNCE_WINDOW must not be negative")
	}
	if c.Flow.VerifyPerMinute < 0 || c.Flow.VerifyBurst < 0 {
		problems = append(problems, "verify rate limit must not be negative")
	}
	if c.Backend.Timeout <= 0 {
		problems = append(problems, "GENLIVE_BACKEND_TIMEOUT must be positive")
	}
	if c.Backend.FailureThreshold < 1 {
		problems = append(problems, "GENLIVE_BACKEND_FAILURE_THRESHOLD must be at least 1")
	}
	if len(problems) > 0 {
		return dErrors.Newf(dErrors.CodeConfiguration, "invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}
