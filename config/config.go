// Package config reads the properties BaseLib's collaborators need: the two SPARQL
// endpoints and the relational database credentials. All five are optional at load
// time; operations that need an unset value fail with a *ConfigError instead.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// Config holds the properties recognised by BaseLib.
type Config struct {
	SparqlQueryEndpoint  string
	SparqlUpdateEndpoint string
	DBURL                string
	DBUser               string
	DBPassword           string
}

// ConfigError reports a required option that was never set.
type ConfigError struct {
	Option string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config: required option %q is not set", e.Option)
}

// Load reads a properties file (path may point at a .properties, .yaml, .json, or .toml
// file; Viper infers the format from the extension) plus BASELIB_-prefixed environment
// overrides. A missing file is not an error: environment variables still apply, and
// every option remains optional at load time. No defaults are set; an option given
// neither in the file nor in the environment is left empty.
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetEnvPrefix("BASELIB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			v.SetConfigFile(path)
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("config: failed to read %s: %w", path, err)
			}
		}
	}

	return &Config{
		SparqlQueryEndpoint:  v.GetString("sparql.query.endpoint"),
		SparqlUpdateEndpoint: v.GetString("sparql.update.endpoint"),
		DBURL:                v.GetString("db.url"),
		DBUser:               v.GetString("db.user"),
		DBPassword:           v.GetString("db.password"),
	}, nil
}

// RequireSparqlQueryEndpoint returns the configured query endpoint, or a *ConfigError.
func (c *Config) RequireSparqlQueryEndpoint() (string, error) {
	if c.SparqlQueryEndpoint == "" {
		return "", &ConfigError{Option: "sparql.query.endpoint"}
	}
	return c.SparqlQueryEndpoint, nil
}

// RequireSparqlUpdateEndpoint returns the configured update endpoint, or a *ConfigError.
func (c *Config) RequireSparqlUpdateEndpoint() (string, error) {
	if c.SparqlUpdateEndpoint == "" {
		return "", &ConfigError{Option: "sparql.update.endpoint"}
	}
	return c.SparqlUpdateEndpoint, nil
}

// RequireDBURL returns the configured database URL, or a *ConfigError.
func (c *Config) RequireDBURL() (string, error) {
	if c.DBURL == "" {
		return "", &ConfigError{Option: "db.url"}
	}
	return c.DBURL, nil
}

// RequireDBUser returns the configured database user, or a *ConfigError.
func (c *Config) RequireDBUser() (string, error) {
	if c.DBUser == "" {
		return "", &ConfigError{Option: "db.user"}
	}
	return c.DBUser, nil
}

// RequireDBPassword returns the configured database password, or a *ConfigError.
func (c *Config) RequireDBPassword() (string, error) {
	if c.DBPassword == "" {
		return "", &ConfigError{Option: "db.password"}
	}
	return c.DBPassword, nil
}
