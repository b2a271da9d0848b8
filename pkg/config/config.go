// Package config reads service configuration from the environment.
package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Defaults shared by every service.
var common = map[string]any{
	"PORT":                        "8080",
	"OTEL_EXPORTER_OTLP_ENDPOINT": "localhost:4318",
	"DATABASE_USER":               "root",
	"DATABASE_PASSWORD":           "pass",
	"DATABASE_HOST":               "localhost",
	"DATABASE_PORT":               "5432",
	"REQUEST_TIMEOUT":             10 * time.Second,
	"DTM_SERVER":                  "http://dtm:36789/api/dtmsvr",
}

// Config wraps a viper instance bound to the process environment.
type Config struct {
	v *viper.Viper
}

// New builds a Config for serviceName. Service specific defaults override the
// common ones; environment variables override both.
func New(serviceName string, defaults map[string]any) *Config {
	v := viper.New()
	v.AutomaticEnv()

	for k, val := range common {
		v.SetDefault(k, val)
	}
	v.SetDefault("SERVICE_NAME", serviceName)
	for k, val := range defaults {
		v.SetDefault(k, val)
	}

	return &Config{v: v}
}

func (c *Config) String(key string) string {
	return strings.TrimSpace(c.v.GetString(key))
}

func (c *Config) Int(key string) int {
	return c.v.GetInt(key)
}

func (c *Config) Float(key string) float64 {
	return c.v.GetFloat64(key)
}

func (c *Config) Duration(key string) time.Duration {
	return c.v.GetDuration(key)
}

// URL returns the value of key without a trailing slash.
func (c *Config) URL(key string) string {
	return strings.TrimRight(c.String(key), "/")
}

// List splits a comma separated value, dropping blanks.
func (c *Config) List(key string) []string {
	var out []string
	for _, part := range strings.Split(c.String(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Set overrides a key. Used by tests.
func (c *Config) Set(key string, value any) {
	c.v.Set(key, value)
}
