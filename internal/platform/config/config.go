package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// DefaultPostgresPort is used when POSTGRES_PORT is unset or unusable.
const DefaultPostgresPort = 5432

// Required lists the variables a developer environment must define.
var Required = []string{
	"POSTGRES_HOST",
	"POSTGRES_PORT",
	"POSTGRES_DB",
	"POSTGRES_USER",
	"POSTGRES_PASSWORD",
}

// LookupFunc matches os.LookupEnv so tests can swap the environment.
type LookupFunc func(key string) (string, bool)

// Getenv returns the value of k, or d when k is unset or empty.
func Getenv(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}

// LoadEnvFile loads KEY=VALUE pairs from path into the process environment.
// Variables already set in the environment win. A missing file is not an error.
func LoadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("config: load %s: %w", path, err)
	}
	return nil
}

// Missing returns the names in keys that are unset or empty, in order.
func Missing(lookup LookupFunc, keys []string) []string {
	var out []string
	for _, k := range keys {
		if v, ok := lookup(k); !ok || v == "" {
			out = append(out, k)
		}
	}
	return out
}

// Postgres is the connection configuration read once from the environment.
type Postgres struct {
	Host     string
	Port     int
	Database string
	User     string
	Password string
	SSLMode  string

	// ConnectTimeout bounds connection establishment. Zero keeps the pgx default.
	ConnectTimeout time.Duration
}

// PostgresFromEnv builds a Postgres config. It never fails: problems with
// individual values are returned as warnings and a usable default is applied.
// Host, database and credentials are passed through verbatim; only the values
// that are parsed have surrounding whitespace removed.
func PostgresFromEnv(lookup LookupFunc) (Postgres, []error) {
	get := func(k string) string {
		v, _ := lookup(k)
		return v
	}

	var warns []error
	cfg := Postgres{
		Host:     get("POSTGRES_HOST"),
		Port:     DefaultPostgresPort,
		Database: get("POSTGRES_DB"),
		User:     get("POSTGRES_USER"),
		Password: get("POSTGRES_PASSWORD"),
		SSLMode:  strings.TrimSpace(get("POSTGRES_SSLMODE")),
	}
	if cfg.SSLMode == "" {
		cfg.SSLMode = "prefer"
	}

	// A set but blank port is reported rather than silently defaulted.
	if raw := get("POSTGRES_PORT"); raw != "" {
		port, err := strconv.Atoi(strings.TrimSpace(raw))
		switch {
		case err != nil:
			warns = append(warns, fmt.Errorf("invalid POSTGRES_PORT %q: %w", raw, err))
		case port < 1 || port > 65535:
			warns = append(warns, fmt.Errorf("invalid POSTGRES_PORT %q: out of range", raw))
		default:
			cfg.Port = port
		}
	}

	if raw := strings.TrimSpace(get("ENVCHECK_CONNECT_TIMEOUT")); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d < 0 {
			warns = append(warns, fmt.Errorf("invalid ENVCHECK_CONNECT_TIMEOUT %q", raw))
		} else {
			cfg.ConnectTimeout = d
		}
	}

	return cfg, warns
}

// DSN renders the config as a postgres:// URL with escaped credentials.
func (p Postgres) DSN() string {
	u := url.URL{
		Scheme: "postgres",
		Host:   net.JoinHostPort(p.Host, strconv.Itoa(p.Port)),
		Path:   "/" + p.Database,
	}
	if p.User != "" {
		if p.Password != "" {
			u.User = url.UserPassword(p.User, p.Password)
		} else {
			u.User = url.User(p.User)
		}
	}
	q := url.Values{}
	if p.SSLMode != "" {
		q.Set("sslmode", p.SSLMode)
	}
	if p.ConnectTimeout > 0 {
		secs := int(p.ConnectTimeout.Round(time.Second) / time.Second)
		if secs < 1 {
			secs = 1
		}
		q.Set("connect_timeout", strconv.Itoa(secs))
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// Redacted is DSN with the password masked, for logs.
func (p Postgres) Redacted() string {
	if p.Password != "" {
		p.Password = "xxxxx"
	}
	return p.DSN()
}
