package client

import (
	"errors"
	"fmt"
	"math"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config tells an agent or operator tool where the CMDB API lives.
type Config struct {
	Server string `yaml:"server"`
	Port   int    `yaml:"port"`
	// URL is the report submission path.
	URL            string        `yaml:"url"`
	Scheme         string        `yaml:"scheme"`
	RequestTimeout Timeout `yaml:"request_timeout"`
	Retries        int           `yaml:"retries"`
	Agent          string        `yaml:"agent"`
	// Insecure permits plain http to a non-loopback server.
	Insecure bool `yaml:"insecure"`
}

// Timeout is a duration read from YAML either as a Go duration string ("10s")
// or as a bare number of seconds, the form older agent configs use.
type Timeout time.Duration

// Duration returns t as a time.Duration.
func (t Timeout) Duration() time.Duration { return time.Duration(t) }

// UnmarshalYAML implements yaml.Unmarshaler.
func (t *Timeout) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: request_timeout must be a scalar", value.Line)
	}
	if secs, err := strconv.ParseFloat(value.Value, 64); err == nil {
		if math.IsNaN(secs) || math.IsInf(secs, 0) || secs < 0 || secs > math.MaxInt64/float64(time.Second) {
			return fmt.Errorf("line %d: request_timeout %q out of range", value.Line, value.Value)
		}
		*t = Timeout(time.Duration(secs * float64(time.Second)))
		return nil
	}
	d, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("line %d: request_timeout %q is neither seconds nor a duration", value.Line, value.Value)
	}
	*t = Timeout(d)
	return nil
}

// MarshalYAML writes t as a duration string.
func (t Timeout) MarshalYAML() (any, error) {
	return time.Duration(t).String(), nil
}

// DefaultConfig returns the settings used when a field is left empty.
func DefaultConfig() Config {
	return Config{
		Server:         "localhost",
		Port:           8080,
		URL:            "/v1/reports",
		Scheme:         "http",
		RequestTimeout: Timeout(30 * time.Second),
		Retries:        3,
	}
}

// LoadConfig reads a YAML config file and fills unset fields with defaults.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	cfg = cfg.withDefaults()
	return cfg, cfg.Validate()
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Server == "" {
		c.Server = d.Server
	}
	if c.Port == 0 {
		c.Port = d.Port
	}
	if c.URL == "" {
		c.URL = d.URL
	}
	if c.Scheme == "" {
		c.Scheme = d.Scheme
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = d.RequestTimeout
	}
	if c.Retries < 0 {
		c.Retries = 0
	}
	return c
}

// Validate rejects configs that cannot produce a usable base URL.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Server) == "" {
		return errors.New("config missing server field")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("port %d out of range", c.Port)
	}
	switch c.Scheme {
	case "https":
	case "http":
		if !c.Insecure && !isLoopback(c.Server) {
			return fmt.Errorf("refusing plain http to %s without insecure: true", c.Server)
		}
	default:
		return fmt.Errorf("unsupported scheme %q", c.Scheme)
	}
	if !strings.HasPrefix(c.URL, "/") {
		return fmt.Errorf("url must be an absolute path, got %q", c.URL)
	}
	return nil
}

// BaseURL is scheme://server:port with no trailing slash.
func (c Config) BaseURL() string {
	u := url.URL{Scheme: c.Scheme, Host: c.Server + ":" + strconv.Itoa(c.Port)}
	return u.String()
}

func isLoopback(host string) bool {
	switch strings.ToLower(host) {
	case "localhost", "127.0.0.1", "::1":
		return true
	}
	return false
}
