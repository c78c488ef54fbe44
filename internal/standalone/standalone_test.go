package standalone

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/robalb/mnodemo/internal/maestrano"
	"github.com/robalb/mnodemo/internal/metrics"
)

type fakeAutoConfigurer struct {
	calls  int
	props  maestrano.Properties
	result map[string]*maestrano.Marketplace
	err    error
}

func (f *fakeAutoConfigurer) AutoConfigure(_ context.Context, props maestrano.Properties) (map[string]*maestrano.Marketplace, error) {
	f.calls++
	f.props = props
	return f.result, f.err
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func mapEnv(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func TestLoadConfig_WhenEnvironmentEmpty_ThenAppliesDefaults(t *testing.T) {
	// Arrange
	getenv := mapEnv(map[string]string{"PORT": "", "DEMO_APP_HOST": ""})

	// Act
	cfg, err := LoadConfig(getenv)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "http://localhost:8080", cfg.AppHost)
	assert.Equal(t, "/target/", cfg.BuildMarker)
	assert.False(t, cfg.TLS)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoadConfig_WhenOnlyPortSet_ThenAppHostFollowsPort(t *testing.T) {
	cfg, err := LoadConfig(mapEnv(map[string]string{"PORT": "5000"}))

	require.NoError(t, err)
	assert.Equal(t, 5000, cfg.Port)
	assert.Equal(t, "http://localhost:5000", cfg.AppHost)
}

func TestLoadConfig_WhenAppHostSet_ThenKeepsIt(t *testing.T) {
	cfg, err := LoadConfig(mapEnv(map[string]string{"DEMO_APP_HOST": "https://demo.example.com"}))

	require.NoError(t, err)
	assert.Equal(t, "https://demo.example.com", cfg.AppHost)
}

func TestLoadConfig_WhenPortMalformed_ThenReturnsError(t *testing.T) {
	_, err := LoadConfig(mapEnv(map[string]string{"PORT": "eighty"}))

	assert.Error(t, err)
}

func TestConfigureMaestrano_WhenBothVariablesSet_ThenInvokesWithDevPlatformHost(t *testing.T) {
	// Arrange
	fake := &fakeAutoConfigurer{result: map[string]*maestrano.Marketplace{
		"maestrano-uat": {Name: "maestrano-uat"},
	}}
	getenv := mapEnv(map[string]string{"MNO_DEVPL_ENV_KEY": "k", "MNO_DEVPL_ENV_SECRET": "s"})

	// Act
	marketplaces, err := configureMaestrano(context.Background(), zap.NewNop(), getenv, fake)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, 1, fake.calls)
	assert.Equal(t, "https://developer.maestrano.com", fake.props[maestrano.PropHost])
	assert.Contains(t, marketplaces, "maestrano-uat")
}

func TestConfigureMaestrano_WhenEitherVariableMissingOrEmpty_ThenNeverInvokes(t *testing.T) {
	cases := map[string]map[string]string{
		"none":         {},
		"key only":     {"MNO_DEVPL_ENV_KEY": "k"},
		"secret only":  {"MNO_DEVPL_ENV_SECRET": "s"},
		"empty key":    {"MNO_DEVPL_ENV_KEY": "", "MNO_DEVPL_ENV_SECRET": "s"},
		"empty secret": {"MNO_DEVPL_ENV_KEY": "k", "MNO_DEVPL_ENV_SECRET": ""},
	}
	for name, env := range cases {
		t.Run(name, func(t *testing.T) {
			fake := &fakeAutoConfigurer{}

			marketplaces, err := configureMaestrano(context.Background(), zap.NewNop(), mapEnv(env), fake)

			require.NoError(t, err)
			assert.Nil(t, marketplaces)
			assert.Equal(t, 0, fake.calls)
		})
	}
}

func TestConfigureMaestrano_WhenAutoConfigureFails_ThenReturnsError(t *testing.T) {
	fake := &fakeAutoConfigurer{err: &maestrano.ConfigurationError{Msg: "boom"}}
	getenv := mapEnv(map[string]string{"MNO_DEVPL_ENV_KEY": "k", "MNO_DEVPL_ENV_SECRET": "s"})

	_, err := configureMaestrano(context.Background(), zap.NewNop(), getenv, fake)

	require.Error(t, err)
	assert.True(t, maestrano.IsConfigurationError(err))
}

func TestNewRouter_WhenCompiledOutputPresent_ThenItShadowsWebContent(t *testing.T) {
	// Arrange
	web := t.TempDir()
	compiled := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(web, "index.html"), []byte("source"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(web, "about.html"), []byte("about"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(compiled, "index.html"), []byte("compiled"), 0o644))
	router := NewRouter(zap.NewNop(), newResources(zap.NewNop(), web, compiled, true), metrics.New("test"))

	// Act
	index := httptest.NewRecorder()
	router.ServeHTTP(index, httptest.NewRequest(http.MethodGet, "/", nil))
	about := httptest.NewRecorder()
	router.ServeHTTP(about, httptest.NewRequest(http.MethodGet, "/about.html", nil))

	// Assert
	assert.Equal(t, "compiled", index.Body.String())
	assert.Equal(t, "about", about.Body.String())
}

func TestNewRouter_WhenCompiledOutputAbsent_ThenServesWebContent(t *testing.T) {
	web := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(web, "index.html"), []byte("source"), 0o644))
	router := NewRouter(zap.NewNop(), newResources(zap.NewNop(), web, "", false), metrics.New("test"))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "source", rec.Body.String())
}

func TestNewRouter_WhenHealthAndMetricsRequested_ThenBothRespond(t *testing.T) {
	// Arrange
	m := metrics.New("test")
	m.Marketplaces.Set(2)
	router := NewRouter(zap.NewNop(), newResources(zap.NewNop(), t.TempDir(), "", false), m)

	// Act
	health := httptest.NewRecorder()
	router.ServeHTTP(health, httptest.NewRequest(http.MethodGet, "/health", nil))
	scrape := httptest.NewRecorder()
	router.ServeHTTP(scrape, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	// Assert
	assert.Equal(t, http.StatusOK, health.Code)
	assert.Equal(t, http.StatusOK, scrape.Code)
	assert.Contains(t, scrape.Body.String(), `mnodemo_marketplaces_configured{launcher="test"} 2`)
}

func TestRun_WhenContextCancelled_ThenShutsDownCleanly(t *testing.T) {
	// Arrange
	var out syncBuffer
	getenv := mapEnv(map[string]string{
		"PORT":         "0",
		"CONTENT_ROOT": t.TempDir(),
		"LOG_LEVEL":    "debug",
	})
	fake := &fakeAutoConfigurer{}
	ctx, cancel := context.WithCancel(context.Background())

	// Act
	done := make(chan error, 1)
	go func() { done <- run(ctx, &out, getenv, fake) }()
	time.Sleep(200 * time.Millisecond)
	cancel()

	// Assert
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(15 * time.Second):
		t.Fatal("server did not shut down")
	}
	assert.Equal(t, 0, fake.calls)
	assert.Contains(t, out.String(), "Marketplace autoConfigure not activated")
	assert.Contains(t, out.String(), "http://localhost:0")
}

// freePort reserves an ephemeral port and releases it for the server under test.
func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())
	return port
}

// startRun runs the launcher until the returned stop func is called.
func startRun(t *testing.T, out io.Writer, getenv func(string) string) (stop func() error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- run(ctx, out, getenv, &fakeAutoConfigurer{}) }()
	return func() error {
		cancel()
		select {
		case err := <-done:
			return err
		case <-time.After(15 * time.Second):
			t.Fatal("server did not shut down")
			return nil
		}
	}
}

func getEventually(t *testing.T, client *http.Client, url string) (int, string) {
	t.Helper()
	var status int
	var body string
	require.Eventually(t, func() bool {
		resp, err := client.Get(url)
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		b, err := io.ReadAll(resp.Body)
		if err != nil {
			return false
		}
		status, body = resp.StatusCode, string(b)
		return true
	}, 5*time.Second, 50*time.Millisecond)
	return status, body
}

func writeSelfSignedCert(t *testing.T, dir string) (certFile, keyFile string) {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "localhost"},
		DNSNames:     []string{"localhost"},
		IPAddresses:  []net.IP{net.ParseIP("127.0.0.1")},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	require.NoError(t, err)
	keyDER, err := x509.MarshalECPrivateKey(key)
	require.NoError(t, err)

	certFile = filepath.Join(dir, "cert.pem")
	keyFile = filepath.Join(dir, "key.pem")
	require.NoError(t, os.WriteFile(certFile, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}), 0o600))
	require.NoError(t, os.WriteFile(keyFile, pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER}), 0o600))
	return certFile, keyFile
}

func TestRun_WhenTLSWithCertFiles_ThenServesHTTPS(t *testing.T) {
	// Arrange
	certFile, keyFile := writeSelfSignedCert(t, t.TempDir())
	port := freePort(t)
	getenv := mapEnv(map[string]string{
		"PORT":         strconv.Itoa(port),
		"CONTENT_ROOT": t.TempDir(),
		"TLS":          "true",
		"TLS_CERT":     certFile,
		"TLS_KEY":      keyFile,
	})
	client := &http.Client{
		Timeout: 2 * time.Second,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		},
	}
	var out syncBuffer

	// Act
	stop := startRun(t, &out, getenv)
	status, _ := getEventually(t, client, fmt.Sprintf("https://127.0.0.1:%d/health", port))
	client.CloseIdleConnections()
	err := stop()

	// Assert
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, out.String(), "web server: listening")
}

func TestRun_WhenWebContentMissing_ThenTempDirRemovedOnShutdown(t *testing.T) {
	// Arrange
	tmp := t.TempDir()
	t.Setenv("TMPDIR", tmp)
	port := freePort(t)
	getenv := mapEnv(map[string]string{
		"PORT":         strconv.Itoa(port),
		"CONTENT_ROOT": t.TempDir(),
	})
	client := &http.Client{Timeout: 2 * time.Second, Transport: &http.Transport{}}

	// Act
	stop := startRun(t, io.Discard, getenv)
	getEventually(t, client, fmt.Sprintf("http://127.0.0.1:%d/health", port))
	during, err := filepath.Glob(filepath.Join(tmp, "default-doc-base*"))
	require.NoError(t, err)
	client.CloseIdleConnections()
	require.NoError(t, stop())
	after, err := filepath.Glob(filepath.Join(tmp, "default-doc-base*"))
	require.NoError(t, err)

	// Assert
	assert.Len(t, during, 1)
	assert.Empty(t, after)
}

func TestRun_WhenContentRootSet_ThenServesFromItsWebDir(t *testing.T) {
	// Arrange
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "web"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "web", "hello.txt"), []byte("hello from web"), 0o644))
	port := freePort(t)
	getenv := mapEnv(map[string]string{
		"PORT":         strconv.Itoa(port),
		"CONTENT_ROOT": root,
	})
	client := &http.Client{Timeout: 2 * time.Second, Transport: &http.Transport{}}

	// Act
	stop := startRun(t, io.Discard, getenv)
	status, body := getEventually(t, client, fmt.Sprintf("http://127.0.0.1:%d/hello.txt", port))
	client.CloseIdleConnections()
	err := stop()

	// Assert
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "hello from web", body)
}

func TestNewCertManager_WhenBuilt_ThenACMEIssuerIsTheOnlyIssuer(t *testing.T) {
	// Act
	magic, acme := newCertManager(zap.NewNop())

	// Assert
	require.Len(t, magic.Issuers, 1)
	assert.Same(t, acme, magic.Issuers[0])
}

func TestRun_WhenAutoConfigureFails_ThenReturnsBeforeServing(t *testing.T) {
	// Arrange
	var out syncBuffer
	getenv := mapEnv(map[string]string{
		"PORT":                 "0",
		"MNO_DEVPL_ENV_KEY":    "k",
		"MNO_DEVPL_ENV_SECRET": "s",
	})
	fake := &fakeAutoConfigurer{err: errors.New("unreachable")}

	// Act
	err := run(context.Background(), &out, getenv, fake)

	// Assert
	require.Error(t, err)
	assert.Contains(t, err.Error(), "maestrano auto-configuration failed")
	assert.NotContains(t, out.String(), "web server: listening")
}

func TestRun_WhenLogLevelInvalid_ThenReturnsError(t *testing.T) {
	err := run(context.Background(), io.Discard, mapEnv(map[string]string{"LOG_LEVEL": "chatty"}), &fakeAutoConfigurer{})

	assert.Error(t, err)
}

func TestHostname_WhenAppHostParsed_ThenReturnsHostWithoutPort(t *testing.T) {
	host, err := hostname("https://demo.example.com:8443/app")
	require.NoError(t, err)
	assert.Equal(t, "demo.example.com", host)

	_, err = hostname("not a url")
	assert.Error(t, err)
}
