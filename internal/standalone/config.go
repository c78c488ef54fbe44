package standalone

import (
	"github.com/robalb/mnodemo/internal/envconf"
	"github.com/robalb/mnodemo/internal/rootdir"
)

// Environment variables that must both be set to enable
// developer platform auto-configuration.
var devPlatformEnvironmentVariables = []string{"MNO_DEVPL_ENV_KEY", "MNO_DEVPL_ENV_SECRET"}

const devPlatformHost = "https://developer.maestrano.com"

// Config is the standalone launcher configuration.
// The behaviour of the server depends on the following env variables:
// PORT                 port the server will listen on
// DEMO_APP_HOST        externally visible base url, http://localhost:PORT by default
// MNO_DEVPL_ENV_KEY    developer platform key, enables auto-configuration with the secret
// MNO_DEVPL_ENV_SECRET developer platform secret
// CONTENT_ROOT         project root; when unset it is inferred from the binary location
// BUILD_OUTPUT_MARKER  path segment separating the project root from the binary
// TLS                  wether the server should run in TLS mode
// CERTMAGIC            wether to obtain certificates for the app host, using certmagic
// TLS_CERT             path to the TLS cert file, used when certmagic=false
// TLS_KEY              path to the TLS key file, used when certmagic=false
// LOG_LEVEL            debug, info, warn or error
type Config struct {
	Port        int    `env:"PORT" envDefault:"8080"`
	AppHost     string `env:"DEMO_APP_HOST"`
	ContentRoot string `env:"CONTENT_ROOT"`
	BuildMarker string `env:"BUILD_OUTPUT_MARKER" envDefault:"/target/"`
	TLS         bool   `env:"TLS" envDefault:"false"`
	CertMagic   bool   `env:"CERTMAGIC" envDefault:"false"`
	TLSCert     string `env:"TLS_CERT" envDefault:"cert.pem"`
	TLSKey      string `env:"TLS_KEY" envDefault:"key.pem"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
}

func LoadConfig(getenv func(string) string) (*Config, error) {
	cfg := &Config{}
	if err := envconf.Parse(getenv, cfg); err != nil {
		return nil, err
	}
	if cfg.AppHost == "" {
		cfg.AppHost = envconf.DefaultAppHost(cfg.Port)
	}
	if cfg.BuildMarker == "" {
		cfg.BuildMarker = rootdir.DefaultMarker
	}
	return cfg, nil
}
