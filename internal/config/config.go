// Package config loads sqlground settings from defaults, a .env file, an
// optional TOML file and the environment, in that order.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml"
)

// Database holds the connection settings for the MySQL-compatible backend.
type Database struct {
	Host     string `toml:"host"`
	Port     int    `toml:"port"`
	User     string `toml:"user"`
	Password string `toml:"password"`
	// Name is the default database; requests may override it.
	Name string `toml:"name"`
	TLS  bool   `toml:"tls"`
	// MaxOpenConns bounds how many scripts run truly concurrently.
	MaxOpenConns int `toml:"max_open_conns"`
}

// Server holds the HTTP API settings.
type Server struct {
	Addr           string   `toml:"addr"`
	AllowedOrigins []string `toml:"allowed_origins"`
	MaxBodyBytes   int64    `toml:"max_body_bytes"`
}

// Logging controls the global logger.
type Logging struct {
	Verbose bool   `toml:"verbose"`
	Format  string `toml:"format"`
}

// Config is the full configuration.
type Config struct {
	Database Database `toml:"database"`
	Server   Server   `toml:"server"`
	Logging  Logging  `toml:"logging"`
	// ReadOnlyDQL enables the read-only whitelist for DQL scripts run from
	// the command line. The HTTP API always enforces it.
	ReadOnlyDQL bool `toml:"read_only_dql"`
	// Output is the default result format: plain, table, json or csv.
	Output string `toml:"output"`
}

// OutputFormats lists the accepted values of Config.Output.
var OutputFormats = []string{"plain", "table", "json", "csv"}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Database: Database{
			Host:         "127.0.0.1",
			Port:         3306,
			User:         "root",
			Password:     "root",
			MaxOpenConns: 10,
		},
		Server: Server{
			Addr: ":3001",
			AllowedOrigins: []string{
				"http://localhost:5173",
				"http://127.0.0.1:5173",
				"http://localhost:3000",
				"http://127.0.0.1:3000",
			},
			MaxBodyBytes: 2 << 20,
		},
		Logging:     Logging{Format: "console"},
		ReadOnlyDQL: true,
		Output:      "table",
	}
}

// Load builds the configuration. A missing .env file is ignored; a missing
// configPath is an error.
func Load(configPath string) (Config, error) {
	cfg := Default()

	if err := godotenv.Load(".env"); err != nil && !errors.Is(err, os.ErrNotExist) {
		return cfg, fmt.Errorf("failed to read .env: %w", err)
	}

	if configPath != "" {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config file %s: %w", configPath, err)
		}
	}

	if err := applyEnv(&cfg, os.LookupEnv); err != nil {
		return cfg, err
	}
	return cfg, nil
}

type lookupFunc func(string) (string, bool)

func applyEnv(cfg *Config, lookup lookupFunc) error {
	if v, ok := lookup("MYSQL_HOST"); ok && v != "" {
		cfg.Database.Host = v
	}
	if v, ok := lookup("MYSQL_PORT"); ok && v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid MYSQL_PORT %q: %w", v, err)
		}
		cfg.Database.Port = port
	}
	if v, ok := lookup("MYSQL_USER"); ok && v != "" {
		cfg.Database.User = v
	}
	if v, ok := lookup("MYSQL_PASSWORD"); ok {
		cfg.Database.Password = v
	}
	if v, ok := lookup("MYSQL_DATABASE"); ok && v != "" {
		cfg.Database.Name = v
	}
	if v, ok := lookup("PORT"); ok && v != "" {
		if _, err := strconv.Atoi(v); err != nil {
			return fmt.Errorf("invalid PORT %q: %w", v, err)
		}
		cfg.Server.Addr = ":" + v
	}
	if v, ok := lookup("SQLGROUND_READ_ONLY_DQL"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid SQLGROUND_READ_ONLY_DQL %q: %w", v, err)
		}
		cfg.ReadOnlyDQL = b
	}
	return nil
}

// Validate checks the configuration for values that cannot work.
func (c Config) Validate() error {
	if c.Database.Host == "" {
		return errors.New("database.host is required")
	}
	if c.Database.Port <= 0 || c.Database.Port > 65535 {
		return fmt.Errorf("database.port %d is out of range", c.Database.Port)
	}
	if c.Database.MaxOpenConns <= 0 {
		return fmt.Errorf("database.max_open_conns must be positive, got %d", c.Database.MaxOpenConns)
	}
	if c.Server.MaxBodyBytes <= 0 {
		return fmt.Errorf("server.max_body_bytes must be positive, got %d", c.Server.MaxBodyBytes)
	}
	if !validOutput(c.Output) {
		return fmt.Errorf("output %q must be one of %s", c.Output, strings.Join(OutputFormats, ", "))
	}
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format %q must be console or json", c.Logging.Format)
	}
	return nil
}

func validOutput(s string) bool {
	for _, f := range OutputFormats {
		if s == f {
			return true
		}
	}
	return false
}
