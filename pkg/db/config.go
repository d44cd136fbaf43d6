package db

import (
	"fmt"
	"strings"
	"time"
)

// Config holds the database connection configuration. The same credentials
// are used for the primary connection and the notification listener.
type Config struct {
	Host     string
	Port     int
	Database string
	Username string
	Password string

	// Schema scopes the information_schema introspection queries.
	// Defaults to "public".
	Schema string

	// SSLMode is passed through to the driver (disable, require,
	// verify-ca, verify-full). Defaults to "disable".
	SSLMode string

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration

	// QueryTimeout bounds every statement issued through the client.
	// Zero means no client-side timeout (driver/server defaults apply).
	QueryTimeout time.Duration

	// LogLevel controls the SQL logger: silent, error, warn or info.
	LogLevel string
}

// DefaultConfig returns a Config with production defaults applied.
func DefaultConfig(host, database, username, password string) *Config {
	return &Config{
		Host:            host,
		Port:            5432,
		Database:        database,
		Username:        username,
		Password:        password,
		Schema:          "public",
		SSLMode:         "disable",
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: time.Hour,
		ConnMaxIdleTime: 30 * time.Minute,
		LogLevel:        "error",
	}
}

// Validate checks if the database configuration is valid.
func (c *Config) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("database host is required")
	}
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("database port must be between 1 and 65535, got %d", c.Port)
	}
	if c.Database == "" {
		return fmt.Errorf("database name is required")
	}
	if c.Username == "" {
		return fmt.Errorf("database username is required")
	}
	if c.MaxOpenConns < 1 {
		return fmt.Errorf("max_open_conns must be at least 1")
	}
	if c.MaxIdleConns > c.MaxOpenConns {
		return fmt.Errorf("max_idle_conns cannot be greater than max_open_conns")
	}
	switch c.SSLMode {
	case "", "disable", "allow", "prefer", "require", "verify-ca", "verify-full":
	default:
		return fmt.Errorf("invalid sslmode %q", c.SSLMode)
	}
	return nil
}

// DSN returns the keyword/value data source name for the postgres driver.
func (c *Config) DSN() string {
	pairs := []string{
		fmt.Sprintf("host=%s", c.Host),
		fmt.Sprintf("port=%d", c.Port),
		fmt.Sprintf("user=%s", c.Username),
		fmt.Sprintf("dbname=%s", c.Database),
	}
	if c.Password != "" {
		pairs = append(pairs, fmt.Sprintf("password=%s", c.Password))
	}
	sslMode := c.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	pairs = append(pairs, fmt.Sprintf("sslmode=%s", sslMode))
	return strings.Join(pairs, " ")
}

func (c *Config) schemaName() string {
	if c.Schema == "" {
		return "public"
	}
	return c.Schema
}
