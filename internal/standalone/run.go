package standalone

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/caddyserver/certmagic"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/robalb/mnodemo/internal/connwatch"
	"github.com/robalb/mnodemo/internal/logging"
	"github.com/robalb/mnodemo/internal/maestrano"
	"github.com/robalb/mnodemo/internal/metrics"
	"github.com/robalb/mnodemo/internal/rootdir"
)

// Run starts the standalone web server and blocks until it is stopped
// by ctrl+c, SIGTERM or a server error. See Config for the env variables.
func Run(
	ctx context.Context,
	stdout io.Writer,
	stderr io.Writer,
	args []string,
	getenv func(string) string,
) error {
	return run(ctx, stdout, getenv, maestrano.NewClient(nil, getenv))
}

func run(
	ctx context.Context,
	stdout io.Writer,
	getenv func(string) string,
	ac AutoConfigurer,
) error {
	ctx, cancel := signal.NotifyContext(ctx,
		syscall.SIGINT,  // ctr-C from the terminal
		syscall.SIGTERM, // terminate signal from Docker / kubernetes
	)
	defer cancel()

	//+++++++++++++++++++++++
	// Initialize all modules
	//+++++++++++++++++++++++

	cfg, err := LoadConfig(getenv)
	if err != nil {
		return err
	}

	logger, err := logging.New(stdout, cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	logger.Info("WebPort", zap.Int("port", cfg.Port))
	logger.Info("AppHost", zap.String("host", cfg.AppHost))
	logger.Info("Using Maestrano", zap.String("version", maestrano.Version))

	m := metrics.New("standalone")

	marketplaces, err := configureMaestrano(ctx, logger, getenv, ac)
	if err != nil {
		return err
	}
	m.Marketplaces.Set(float64(len(marketplaces)))

	// Resolve the static content served at "/"
	root := cfg.ContentRoot
	if root == "" {
		root, err = rootdir.FromExecutable(cfg.BuildMarker)
		if err != nil {
			return err
		}
	}
	logger.Debug("Application resolved root folder", zap.String("root", root))

	webContent, isTemp, err := rootdir.WebContent(root)
	if err != nil {
		return err
	}
	if isTemp {
		defer os.RemoveAll(webContent)
	}
	logger.Debug("Configuring app with basedir", zap.String("dir", webContent))

	compiled, hasCompiled := rootdir.CompiledOutput(root)
	resources := newResources(logger, webContent, compiled, hasCompiled)

	// Init tls management, optional
	var acmeServer *http.Server
	var acmeListener net.Listener
	var magic *certmagic.Config
	var domain string
	if cfg.CertMagic && cfg.TLS {
		domain, err = hostname(cfg.AppHost)
		if err != nil {
			return err
		}
		var acme *certmagic.ACMEIssuer
		magic, acme = newCertManager(logger)
		// Define the acmechallenge http server and its https redirect fallback
		acmeServer = &http.Server{
			Addr:              ":80",
			Handler:           acme.HTTPChallengeHandler(http.HandlerFunc(redirectToHTTPS)),
			ReadHeaderTimeout: 10 * time.Second,
		}
		// the challenge listener must be up before certificate management starts
		acmeListener, err = net.Listen("tcp", acmeServer.Addr)
		if err != nil {
			return fmt.Errorf("acme http server: %w", err)
		}
	}

	httpServer := &http.Server{
		Addr:              net.JoinHostPort("", strconv.Itoa(cfg.Port)),
		Handler:           NewRouter(logger, resources, m),
		ReadHeaderTimeout: 10 * time.Second,
	}
	if cfg.TLS {
		httpServer.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
		if magic != nil {
			httpServer.TLSConfig.GetCertificate = magic.GetCertificate
		}
	}

	//++++++++++++++++++++
	// Start all modules
	//++++++++++++++++++++

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("web server: listening",
			zap.String("addr", httpServer.Addr), zap.Bool("tls", cfg.TLS))
		var err error
		switch {
		case magic != nil:
			err = connwatch.ListenAndServeTLS(httpServer, "", "", m.OpenConnections)
		case cfg.TLS:
			err = connwatch.ListenAndServeTLS(httpServer, cfg.TLSCert, cfg.TLSKey, m.OpenConnections)
		default:
			err = connwatch.ListenAndServe(httpServer, m.OpenConnections)
		}

		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	})

	// start the HTTP handler that takes care of HTTP acme challenges and HTTPS redirection
	if acmeServer != nil {
		g.Go(func() error {
			logger.Info("acme http server: listening on :80")
			err := acmeServer.Serve(acmeListener)
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return err
		})
	}

	// certificates are obtained in the background once both servers run
	if magic != nil {
		g.Go(func() error {
			if err := magic.ManageAsync(ctx, []string{domain}); err != nil {
				return fmt.Errorf("certmagic failed to manage %s: %w", domain, err)
			}
			return nil
		})
	}

	//++++++++++++++++++++++++++++++++++
	// Graceful Shutdown for all modules
	//++++++++++++++++++++++++++++++++++

	go func() {
		// Block until one of the servers in the error group fails,
		// or the parent context is cancelled (ctrl+c | SIGTERM)
		<-ctx.Done()
		logger.Info("Shutting down. This was caused by either a server error or by a shutdown request: ctrl+c or SIGTERM")

		if acmeServer != nil {
			shutdown(logger, "acme server", acmeServer)
		}
		shutdown(logger, "web server", httpServer)
	}()

	err = g.Wait()
	if err != nil {
		logger.Error("errgroup terminated with error", zap.Error(err))
	}
	return err
}

// newCertManager returns a certmagic config whose only issuer is the
// returned ACME issuer, so the challenge handler and the issuer agree.
func newCertManager(logger *zap.Logger) (*certmagic.Config, *certmagic.ACMEIssuer) {
	certmagic.Default.Logger = logger.Named("certmagic")
	magic := certmagic.NewDefault()
	acme := certmagic.NewACMEIssuer(magic, certmagic.DefaultACME)
	magic.Issuers = []certmagic.Issuer{acme}
	return magic, acme
}

func shutdown(logger *zap.Logger, name string, srv *http.Server) {
	logger.Info(name + ": terminating...")
	shutdownCtx, cancel := context.WithTimeout(
		context.Background(),
		10*time.Second,
	)
	err := srv.Shutdown(shutdownCtx)
	cancel()
	if err != nil {
		logger.Error(name+": error while terminating", zap.Error(err))
	} else {
		logger.Info(name + " terminated.")
	}
}

func redirectToHTTPS(w http.ResponseWriter, r *http.Request) {
	target := "https://" + r.Host + r.URL.RequestURI()
	http.Redirect(w, r, target, http.StatusMovedPermanently)
}

func hostname(appHost string) (string, error) {
	u, err := url.Parse(appHost)
	if err != nil {
		return "", fmt.Errorf("invalid DEMO_APP_HOST %q: %w", appHost, err)
	}
	if u.Hostname() == "" {
		return "", fmt.Errorf("DEMO_APP_HOST %q has no hostname", appHost)
	}
	return u.Hostname(), nil
}
