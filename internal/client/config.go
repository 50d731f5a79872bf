package client

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"sigs.k8s.io/yaml"
)

// Config holds the information needed to reach the operations service.
type Config struct {
	Service Service `json:"service"`

	// baseDir is used to resolve relative paths.
	// If baseDir is empty, the current working directory is used.
	baseDir string `json:"-"`
}

// Service contains the addresses of the operations service.
type Service struct {
	// Server is the URL of the operations API server (the part before /api/v1/...).
	Server string `json:"server"`
	// Events is the WebSocket URL of the push channel. When empty it is
	// derived from Server by swapping the scheme to ws(s) and appending /ws.
	Events string `json:"events,omitempty"`
}

func (c *Config) Equal(c2 *Config) bool {
	if c == c2 {
		return true
	}
	if c == nil || c2 == nil {
		return false
	}
	return c.Service.Equal(&c2.Service)
}

func (s *Service) Equal(s2 *Service) bool {
	if s == s2 {
		return true
	}
	if s == nil || s2 == nil {
		return false
	}
	return s.Server == s2.Server && s.Events == s2.Events
}

func (c *Config) DeepCopy() *Config {
	if c == nil {
		return nil
	}
	return &Config{
		Service: c.Service,
		baseDir: c.baseDir,
	}
}

func (c *Config) SetBaseDir(baseDir string) {
	c.baseDir = baseDir
}

func NewDefault() *Config {
	return &Config{}
}

// EventsURL resolves the push channel address, deriving it from the API
// server address when not configured explicitly.
func (c *Config) EventsURL() (string, error) {
	if c.Service.Events != "" {
		return c.Service.Events, nil
	}
	u, err := url.Parse(c.Service.Server)
	if err != nil {
		return "", fmt.Errorf("parsing server url: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = "/ws"
	return u.String(), nil
}

// NewHTTPClientFromConfig returns a new HTTP Client from the given config.
func NewHTTPClientFromConfig(config *Config) (*http.Client, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	httpClient := &http.Client{
		Transport: &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				Timeout:   30 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			ForceAttemptHTTP2:     false,
			MaxIdleConns:          100,
			IdleConnTimeout:       90 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
		},
	}
	return httpClient, nil
}

func ParseConfigFile(filename string) (*Config, error) {
	contents, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	config := NewDefault()
	if err := yaml.Unmarshal(contents, config); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	config.SetBaseDir(filepath.Dir(filename))
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

func (c *Config) Validate() error {
	validationErrors := make([]error, 0)
	validationErrors = append(validationErrors, validateService(c.Service)...)
	if len(validationErrors) > 0 {
		return fmt.Errorf("invalid configuration: %v", errors.Join(validationErrors...))
	}
	return nil
}

func validateService(service Service) []error {
	validationErrors := make([]error, 0)
	// Make sure the server is specified and well-formed
	if len(service.Server) == 0 {
		validationErrors = append(validationErrors, fmt.Errorf("no server found"))
	} else {
		u, err := url.Parse(service.Server)
		if err != nil {
			validationErrors = append(validationErrors, fmt.Errorf("invalid server url %q: %w", service.Server, err))
		} else if u.Scheme == "" || u.Host == "" {
			validationErrors = append(validationErrors, fmt.Errorf("invalid server url %q: scheme and host are required", service.Server))
		}
	}
	return validationErrors
}
