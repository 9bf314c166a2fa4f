package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Store drivers.
const (
	StoreDriverFile     = "file"
	StoreDriverPostgres = "postgres"
)

type Config struct {
	ListenAddr string

	Store struct {
		Driver       string
		DataFile     string
		DocumentName string
	}

	DB struct {
		DSN string
	}

	Session struct {
		TTL time.Duration
	}

	Auth struct {
		BcryptCost int
		RateLimit  float64
		RateBurst  int
	}

	Log struct {
		Level  string
		Format string
	}

	CORSOrigins       []string
	PrometheusEnabled bool
	TrustedProxies    []string
}

// Load reads configuration from the environment. A .env file in the working
// directory is applied first when present; real environment variables win.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	var problems []string

	cfg.ListenAddr = getenvDefault("APP_LISTEN_ADDR", ":10000")

	cfg.Store.Driver = strings.ToLower(getenvDefault("APP_STORE_DRIVER", StoreDriverFile))
	cfg.Store.DataFile = getenvDefault("APP_DATA_FILE", "db.json")
	cfg.Store.DocumentName = getenvDefault("APP_DOCUMENT_NAME", "default")
	cfg.DB.DSN = os.Getenv("APP_DB_DSN")

	if cfg.DB.DSN == "" {
		host := os.Getenv("APP_DB_HOST")
		name := os.Getenv("APP_DB_NAME")
		user := os.Getenv("APP_DB_USER")
		password := os.Getenv("APP_DB_PASSWORD")
		port := getenvDefault("APP_DB_PORT", "5432")
		sslmode := getenvDefault("APP_DB_SSLMODE", "disable")

		if host != "" && name != "" && user != "" && password != "" {
			dsn := url.URL{
				Scheme:   "postgres",
				User:     url.UserPassword(user, password),
				Host:     net.JoinHostPort(host, port),
				Path:     "/" + name,
				RawQuery: url.Values{"sslmode": {sslmode}}.Encode(),
			}
			cfg.DB.DSN = dsn.String()
		}
	}

	ttl, err := getenvDuration("APP_SESSION_TTL", 24*time.Hour)
	if err != nil {
		problems = append(problems, err.Error())
	}
	cfg.Session.TTL = ttl

	cost, err := getenvInt("APP_BCRYPT_COST", 10)
	if err != nil {
		problems = append(problems, err.Error())
	}
	cfg.Auth.BcryptCost = cost

	limit, err := getenvFloat("APP_AUTH_RATE_LIMIT", 5)
	if err != nil {
		problems = append(problems, err.Error())
	}
	cfg.Auth.RateLimit = limit

	burst, err := getenvInt("APP_AUTH_RATE_BURST", 10)
	if err != nil {
		problems = append(problems, err.Error())
	}
	cfg.Auth.RateBurst = burst

	cfg.Log.Level = strings.ToLower(getenvDefault("APP_LOG_LEVEL", "info"))
	cfg.Log.Format = strings.ToLower(getenvDefault("APP_LOG_FORMAT", "json"))

	cfg.CORSOrigins = getenvList("APP_CORS_ORIGINS")
	if len(cfg.CORSOrigins) == 0 {
		cfg.CORSOrigins = []string{"*"}
	}
	cfg.PrometheusEnabled = getenvBool("APP_PROMETHEUS_ENDPOINT_ENABLED", false)
	cfg.TrustedProxies = getenvList("APP_TRUSTED_PROXIES")

	problems = append(problems, cfg.validate()...)
	if len(problems) > 0 {
		return nil, errors.New(strings.Join(problems, "; "))
	}
	return cfg, nil
}

func (c *Config) validate() []string {
	var problems []string
	switch c.Store.Driver {
	case StoreDriverFile:
		if c.Store.DataFile == "" {
			problems = append(problems, "APP_DATA_FILE must not be empty")
		}
	case StoreDriverPostgres:
		if c.DB.DSN == "" {
			problems = append(problems, "APP_DB_DSN is required for the postgres store (or set APP_DB_HOST, APP_DB_NAME, APP_DB_USER, and APP_DB_PASSWORD)")
		}
	default:
		problems = append(problems, fmt.Sprintf("APP_STORE_DRIVER must be %q or %q (got %q)", StoreDriverFile, StoreDriverPostgres, c.Store.Driver))
	}
	if c.Session.TTL <= 0 {
		problems = append(problems, "APP_SESSION_TTL must be positive")
	}
	if c.Auth.BcryptCost < 4 || c.Auth.BcryptCost > 31 {
		problems = append(problems, fmt.Sprintf("APP_BCRYPT_COST must be between 4 and 31 (got %d)", c.Auth.BcryptCost))
	}
	if c.Auth.RateLimit <= 0 || c.Auth.RateBurst <= 0 {
		problems = append(problems, "APP_AUTH_RATE_LIMIT and APP_AUTH_RATE_BURST must be positive")
	}
	switch c.Log.Format {
	case "json", "text":
	default:
		problems = append(problems, fmt.Sprintf("APP_LOG_FORMAT must be json or text (got %q)", c.Log.Format))
	}
	return problems
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		switch strings.ToLower(v) {
		case "1", "true", "yes", "on":
			return true
		case "0", "false", "no", "off":
			return false
		}
	}
	return def
}

func getenvInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return def, fmt.Errorf("%s must be an integer (got %q)", key, v)
	}
	return n, nil
}

func getenvFloat(key string, def float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		return def, fmt.Errorf("%s must be a number (got %q)", key, v)
	}
	return f, nil
}

func getenvDuration(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(strings.TrimSpace(v))
	if err != nil {
		return def, fmt.Errorf("%s must be a duration such as 24h (got %q)", key, v)
	}
	return d, nil
}

func getenvList(key string) []string {
	if v := os.Getenv(key); v != "" {
		var result []string
		for _, item := range strings.Split(v, ",") {
			if trimmed := strings.TrimSpace(item); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		return result
	}
	return nil
}
