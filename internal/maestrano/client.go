// Package maestrano fetches marketplace configurations from the Maestrano
// developer platform.
//
// Auto-configuration takes an explicit property set and returns the named
// marketplace handles; nothing is discovered implicitly.
package maestrano

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

// Version of this client, reported by the launchers at startup.
const Version = "1.2.0"

// Property keys accepted by AutoConfigure.
const (
	PropHost      = "dev-platform.host"
	PropAPIPath   = "dev-platform.api_path"
	PropEnvName   = "environment.name"
	PropAPIKey    = "environment.api_key"
	PropAPISecret = "environment.api_secret"
)

const (
	DefaultHost    = "https://developer.maestrano.com"
	DefaultAPIPath = "/api/config/v1/"
)

// Environment variables consulted when a property is not set explicitly.
var propertyEnv = map[string]string{
	PropHost:      "MNO_DEVPL_HOST",
	PropAPIPath:   "MNO_DEVPL_API_PATH",
	PropEnvName:   "MNO_DEVPL_ENV_NAME",
	PropAPIKey:    "MNO_DEVPL_ENV_KEY",
	PropAPISecret: "MNO_DEVPL_ENV_SECRET",
}

var propertyDefaults = map[string]string{
	PropHost:    DefaultHost,
	PropAPIPath: DefaultAPIPath,
}

// PropertyKeys lists every key understood by AutoConfigure.
func PropertyKeys() []string {
	return []string{PropHost, PropAPIPath, PropEnvName, PropAPIKey, PropAPISecret}
}

// Properties is the input of an auto-configuration call.
type Properties map[string]string

// ConfigurationError reports that the developer platform configuration could
// not be resolved. Launchers treat it as fatal.
type ConfigurationError struct {
	Msg string
	Err error
}

func (e *ConfigurationError) Error() string {
	if e.Err != nil {
		return "maestrano configuration: " + e.Msg + ": " + e.Err.Error()
	}
	return "maestrano configuration: " + e.Msg
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

func configErrorf(format string, args ...any) error {
	return &ConfigurationError{Msg: fmt.Sprintf(format, args...)}
}

// Client talks to the developer platform configuration API.
type Client struct {
	http   *http.Client
	getenv func(string) string
}

// NewClient returns a client using httpClient (a client with a 30s timeout
// when nil) and getenv (os.Getenv when nil) for property fallbacks.
func NewClient(httpClient *http.Client, getenv func(string) string) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if getenv == nil {
		getenv = os.Getenv
	}
	return &Client{http: httpClient, getenv: getenv}
}

// resolve picks, per key, the explicit property, the environment
// variable or the built-in default, in that order.
func (c *Client) resolve(props Properties) Properties {
	out := make(Properties, len(propertyEnv))
	for _, key := range PropertyKeys() {
		switch {
		case props[key] != "":
			out[key] = props[key]
		case c.getenv(propertyEnv[key]) != "":
			out[key] = c.getenv(propertyEnv[key])
		default:
			out[key] = propertyDefaults[key]
		}
	}
	return out
}

type marketplacesResponse struct {
	Marketplaces []*Marketplace `json:"marketplaces"`
}

// AutoConfigureDefault is AutoConfigure with an empty property set:
// everything comes from the environment or the defaults.
func (c *Client) AutoConfigureDefault(ctx context.Context) (map[string]*Marketplace, error) {
	return c.AutoConfigure(ctx, nil)
}

// AutoConfigure fetches the marketplaces of the configured environment,
// keyed by marketplace name.
func (c *Client) AutoConfigure(ctx context.Context, props Properties) (map[string]*Marketplace, error) {
	p := c.resolve(props)
	if p[PropAPIKey] == "" || p[PropAPISecret] == "" {
		return nil, configErrorf("missing %s or %s", PropAPIKey, PropAPISecret)
	}

	endpoint := strings.TrimSuffix(p[PropHost], "/") + "/" +
		strings.Trim(p[PropAPIPath], "/") + "/marketplaces"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, &ConfigurationError{Msg: "invalid developer platform url", Err: err}
	}
	req.SetBasicAuth(p[PropAPIKey], p[PropAPISecret])
	req.Header.Set("Accept", "application/json")
	if name := p[PropEnvName]; name != "" {
		q := req.URL.Query()
		q.Set("environment", name)
		req.URL.RawQuery = q.Encode()
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &ConfigurationError{Msg: "developer platform unreachable", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, configErrorf("developer platform returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var decoded marketplacesResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, &ConfigurationError{Msg: "malformed developer platform response", Err: err}
	}

	marketplaces := make(map[string]*Marketplace, len(decoded.Marketplaces))
	for _, m := range decoded.Marketplaces {
		if m == nil {
			continue
		}
		if err := m.validate(); err != nil {
			return nil, err
		}
		if _, dup := marketplaces[m.Name]; dup {
			return nil, configErrorf("duplicate marketplace %q", m.Name)
		}
		marketplaces[m.Name] = m
	}
	return marketplaces, nil
}

// IsConfigurationError reports whether err comes from auto-configuration.
func IsConfigurationError(err error) bool {
	var ce *ConfigurationError
	return errors.As(err, &ce)
}
