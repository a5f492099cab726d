// Package config holds the settings of one named database connection.
package config

import (
	"fmt"
	"time"

	"github.com/mitchellh/mapstructure"
)

// PoolConfig holds database connection pool settings.
type PoolConfig struct {
	MaxOpenConns    int           `yaml:"max_open_conns" mapstructure:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns" mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" mapstructure:"conn_max_lifetime"`
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	Type     string `yaml:"type" mapstructure:"type"`         // Database type: "postgres", "mysql" or "sqlite".
	Host     string `yaml:"host" mapstructure:"host"`         // Database host address.
	Port     int    `yaml:"port" mapstructure:"port"`         // Database port number.
	Database string `yaml:"database" mapstructure:"database"` // Database name, or the file path for sqlite.
	User     string `yaml:"user" mapstructure:"user"`
	Password string `yaml:"password" mapstructure:"password"`
	Sslmode  string `yaml:"sslmode" mapstructure:"sslmode"` // SSL mode for postgres.
	// DSN, when set, is passed to the driver verbatim and the fields above are ignored.
	DSN string `yaml:"dsn" mapstructure:"dsn"`
	// Migrate applies the embedded schema migrations on startup.
	Migrate bool       `yaml:"migrate" mapstructure:"migrate"`
	Pool    PoolConfig `yaml:"pool" mapstructure:"pool"`
}

// Decode converts a raw configuration entry into a DatabaseConfig.
// String values are converted to the field types, so entries coming from
// environment variables decode the same way as YAML ones.
func Decode(raw interface{}) (DatabaseConfig, error) {
	var cfg DatabaseConfig
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &cfg,
		WeaklyTypedInput: true,
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
	})
	if err != nil {
		return cfg, err
	}
	if err := decoder.Decode(raw); err != nil {
		return cfg, fmt.Errorf("decode database config: %w", err)
	}
	return cfg, nil
}

// Redacted returns a description of the target that is safe to log.
func (c DatabaseConfig) Redacted() string {
	if c.Type == "sqlite" {
		return fmt.Sprintf("sqlite:%s", c.Database)
	}
	if c.DSN != "" {
		return fmt.Sprintf("%s:<dsn>", c.Type)
	}
	return fmt.Sprintf("%s://%s@%s:%d/%s", c.Type, c.User, c.Host, c.Port, c.Database)
}
