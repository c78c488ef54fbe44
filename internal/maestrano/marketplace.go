package maestrano

import (
	"net/url"
	"strings"
)

// Marketplace is the configuration handle of one tenant returned by the
// developer platform.
type Marketplace struct {
	Name        string  `json:"marketplace"`
	Environment string  `json:"environment,omitempty"`
	App         App     `json:"app"`
	API         API     `json:"api"`
	SSO         SSO     `json:"sso"`
	Connec      Connec  `json:"connec"`
	Webhook     Webhook `json:"webhook"`
}

type App struct {
	Host                     string `json:"host"`
	SynchronizationStartPath string `json:"synchronization_start_path,omitempty"`
}

type API struct {
	ID   string `json:"id"`
	Key  string `json:"key"`
	Host string `json:"host"`
	Base string `json:"base"`
}

type SSO struct {
	IDM             string `json:"idm"`
	InitPath        string `json:"init_path"`
	ConsumePath     string `json:"consume_path"`
	IDP             string `json:"idp"`
	X509Fingerprint string `json:"x509_fingerprint"`
	X509Certificate string `json:"x509_certificate"`
}

type Connec struct {
	Host     string `json:"host"`
	BasePath string `json:"base_path"`
	Timeout  int    `json:"timeout,omitempty"`
}

type Webhook struct {
	Account struct {
		GroupPath     string `json:"group_path"`
		GroupUserPath string `json:"group_user_path"`
	} `json:"account"`
	Connec struct {
		InitializationPath string          `json:"initialization_path"`
		NotificationPath   string          `json:"notification_path"`
		ExternalIDs        bool            `json:"external_ids"`
		Subscriptions      map[string]bool `json:"subscriptions,omitempty"`
	} `json:"connec"`
}

// SSOInitURL is where users are sent to start an SSO handshake.
func (m *Marketplace) SSOInitURL() string {
	return joinURL(m.App.Host, m.SSO.InitPath)
}

// SSOConsumeURL is where the identity provider posts its response.
func (m *Marketplace) SSOConsumeURL() string {
	return joinURL(m.App.Host, m.SSO.ConsumePath)
}

func (m *Marketplace) validate() error {
	switch {
	case m.Name == "":
		return configErrorf("marketplace without a name")
	case m.API.ID == "" || m.API.Key == "":
		return configErrorf("marketplace %q: missing api id or key", m.Name)
	}
	return nil
}

func joinURL(host, path string) string {
	if path == "" {
		return host
	}
	u, err := url.JoinPath(host, path)
	if err != nil {
		return strings.TrimSuffix(host, "/") + "/" + strings.TrimPrefix(path, "/")
	}
	return u
}
