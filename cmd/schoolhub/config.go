package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"

	"github.com/nkiryanov/schoolhub/internal/logger"
)

const (
	defaultListenAddr       = "localhost:8000"
	defaultLoggingLevel     = logger.LevelInfo
	defaultEnvironment      = logger.EnvProd
	defaultAccessTTL        = 15 * time.Minute
	defaultRefreshTTL       = 24 * time.Hour
	defaultLoginMaxAttempts = 5
	defaultAuthRateLimit    = 60
)

type Config struct {
	// Default logging level
	LogLevel string

	// Address on which the schoolhub service will be run
	ListenAddr string

	// Database to connect to
	DatabaseDSN string

	// Redis to keep failed login attempts in. Logins are not throttled if empty
	RedisURL string

	// Secret key
	// Some internal parts (like signing JWT tokens) uses symmetric encryption, so this key is used for that purpose
	SecretKey string

	// Environment
	Environment string

	AccessTTL  time.Duration
	RefreshTTL time.Duration

	// Absolute lifetime of the login session. Zero means rotation may extend session forever
	SessionMaxLifetime time.Duration

	// Send refresh cookie over https only
	CookieSecure bool

	// Failed logins allowed for the tenant user before throttling
	LoginMaxAttempts int

	// Requests per minute from one IP to auth routes. Zero disables throttling
	AuthRateLimit int
}

func NewConfig() *Config {
	return &Config{
		LogLevel:         defaultLoggingLevel,
		ListenAddr:       defaultListenAddr,
		Environment:      defaultEnvironment,
		AccessTTL:        defaultAccessTTL,
		RefreshTTL:       defaultRefreshTTL,
		LoginMaxAttempts: defaultLoginMaxAttempts,
		AuthRateLimit:    defaultAuthRateLimit,
	}
}

// Load variable from '.env' file (should be located at working directory)
func (c *Config) LoadDotEnv(getwd func() (string, error)) error {
	wd, err := getwd()
	if err != nil {
		return err
	}

	envMap, err := godotenv.Read(filepath.Join(wd, ".env"))

	switch {
	case err == nil:
		return c.LoadEnv(func(key string) string {
			return envMap[key]
		})
	case errors.Is(err, os.ErrNotExist):
		return nil
	default:
		return err
	}
}

func (c *Config) LoadEnv(getenv func(string) string) error {
	// Set option to value if it not empty
	setString := func(o *string) func(value string) error {
		return func(value string) error {
			if value != "" {
				*o = value
			}
			return nil
		}
	}
	setDuration := func(o *time.Duration) func(value string) error {
		return func(value string) (err error) {
			if value != "" {
				*o, err = time.ParseDuration(value)
			}
			return err
		}
	}
	setInt := func(o *int) func(value string) error {
		return func(value string) (err error) {
			if value != "" {
				*o, err = strconv.Atoi(value)
			}
			return err
		}
	}
	setBool := func(o *bool) func(value string) error {
		return func(value string) (err error) {
			if value != "" {
				*o, err = strconv.ParseBool(value)
			}
			return err
		}
	}

	envMap := map[string]func(string) error{
		"RUN_ADDRESS":          setString(&c.ListenAddr),
		"DATABASE_URI":         setString(&c.DatabaseDSN),
		"REDIS_URL":            setString(&c.RedisURL),
		"SECRET_KEY":           setString(&c.SecretKey),
		"LOG_LEVEL":            setString(&c.LogLevel),
		"ENVIRONMENT":          setString(&c.Environment),
		"ACCESS_TOKEN_TTL":     setDuration(&c.AccessTTL),
		"REFRESH_TOKEN_TTL":    setDuration(&c.RefreshTTL),
		"SESSION_MAX_LIFETIME": setDuration(&c.SessionMaxLifetime),
		"COOKIE_SECURE":        setBool(&c.CookieSecure),
		"LOGIN_MAX_ATTEMPTS":   setInt(&c.LoginMaxAttempts),
		"AUTH_RATE_LIMIT":      setInt(&c.AuthRateLimit),
	}

	for key, parseFn := range envMap {
		if err := parseFn(getenv(key)); err != nil {
			return fmt.Errorf("invalid %s: %w", key, err)
		}
	}

	return nil
}

func (c *Config) ParseFlags(args []string) error {
	fs := pflag.NewFlagSet("schoolhub", pflag.ContinueOnError)

	fs.StringVarP(&c.ListenAddr, "address", "a", c.ListenAddr, "Server listen address")
	fs.StringVarP(&c.DatabaseDSN, "database", "d", c.DatabaseDSN, "Database connection string")
	fs.StringVarP(&c.RedisURL, "redis", "r", c.RedisURL, "Redis URL for login attempts counting (redis://host:port/db)")
	fs.StringVarP(&c.SecretKey, "secret-key", "s", c.SecretKey, "Secret key")
	fs.StringVarP(&c.LogLevel, "log-level", "l", c.LogLevel, "Logging level (debug, info, warn, error)")
	fs.StringVarP(&c.Environment, "environment", "e", c.Environment, "Environment (dev, prod)")
	fs.DurationVar(&c.AccessTTL, "access-ttl", c.AccessTTL, "Access token lifetime")
	fs.DurationVar(&c.RefreshTTL, "refresh-ttl", c.RefreshTTL, "Refresh token lifetime")
	fs.DurationVar(&c.SessionMaxLifetime, "session-max-lifetime", c.SessionMaxLifetime, "Absolute session lifetime (0 to disable)")
	fs.BoolVar(&c.CookieSecure, "cookie-secure", c.CookieSecure, "Send refresh cookie over https only")
	fs.IntVar(&c.LoginMaxAttempts, "login-attempts", c.LoginMaxAttempts, "Failed logins allowed before throttling")
	fs.IntVar(&c.AuthRateLimit, "auth-rate-limit", c.AuthRateLimit, "Auth requests per minute from one IP (0 to disable)")

	return fs.Parse(args)
}

// Check options required to start server
func (c *Config) Validate() error {
	var errs []error

	if c.DatabaseDSN == "" {
		errs = append(errs, errors.New("database connection string is required"))
	}
	if c.SecretKey == "" {
		errs = append(errs, errors.New("secret key is required"))
	}
	if c.AccessTTL <= 0 || c.RefreshTTL <= 0 {
		errs = append(errs, errors.New("token lifetimes must be positive"))
	}
	if c.SessionMaxLifetime < 0 {
		errs = append(errs, errors.New("session max lifetime must not be negative"))
	}

	return errors.Join(errs...)
}
