// Package webapp is the framework-managed launcher: a cobra command whose
// configuration is owned by viper and whose serving loop is owned by gin.
package webapp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/robalb/mnodemo/internal/connwatch"
	"github.com/robalb/mnodemo/internal/envconf"
	"github.com/robalb/mnodemo/internal/logging"
	"github.com/robalb/mnodemo/internal/maestrano"
	"github.com/robalb/mnodemo/internal/metrics"
)

// Settings is what the command resolves before handing over to gin.
type Settings struct {
	Port       int
	AppHost    string
	LogLevel   string
	Properties maestrano.Properties
}

// NewRootCommand builds the launcher command. The client performs the
// maestrano auto-configuration; a nil client talks to the real platform.
func NewRootCommand(out io.Writer, client *maestrano.Client) *cobra.Command {
	v := viper.New()

	cmd := &cobra.Command{
		Use:   "webapp",
		Short: "Maestrano demo web application",
		Long: `Runs the demo web application under gin. Marketplace configurations
are always fetched from the Maestrano developer platform first.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			settings, err := loadSettings(v)
			if err != nil {
				return err
			}
			if client == nil {
				client = maestrano.NewClient(nil, nil)
			}
			return serve(cmd.Context(), out, settings, client)
		},
	}

	cmd.Flags().Int("port", 8080, "Server port (env PORT)")
	cmd.Flags().String("app-host", "", "Externally visible base url (env DEMO_APP_HOST)")
	cmd.Flags().String("log-level", "info", "Log level (env LOG_LEVEL)")
	cmd.Flags().String("config", "", "Maestrano properties file (yaml, json or toml)")

	bindConfig(v, cmd)

	return cmd
}

// bindConfig wires every flag of cmd into v; flags win over the
// environment variables, which win over the flag defaults.
func bindConfig(v *viper.Viper, cmd *cobra.Command) {
	bindings := map[string]string{
		"port":      "PORT",
		"app_host":  "DEMO_APP_HOST",
		"log_level": "LOG_LEVEL",
		"config":    "",
	}
	for key, envVar := range bindings {
		flag := strings.ReplaceAll(key, "_", "-")
		if err := v.BindPFlag(key, cmd.Flags().Lookup(flag)); err != nil {
			panic(fmt.Sprintf("failed to bind flag: %v", err))
		}
		if envVar == "" {
			continue
		}
		if err := v.BindEnv(key, envVar); err != nil {
			panic(fmt.Sprintf("failed to bind env: %v", err))
		}
	}
}

// Execute runs the launcher with args (without the program name).
func Execute(ctx context.Context, out io.Writer, args []string) error {
	cmd := NewRootCommand(out, nil)
	cmd.SetArgs(args)
	return cmd.ExecuteContext(ctx)
}

func loadSettings(v *viper.Viper) (*Settings, error) {
	port, err := strconv.Atoi(strings.TrimSpace(v.GetString("port")))
	if err != nil {
		return nil, fmt.Errorf("invalid port %q: %w", v.GetString("port"), err)
	}

	s := &Settings{
		Port:       port,
		AppHost:    v.GetString("app_host"),
		LogLevel:   v.GetString("log_level"),
		Properties: maestrano.Properties{},
	}
	if s.AppHost == "" {
		s.AppHost = envconf.DefaultAppHost(port)
	}

	if file := v.GetString("config"); file != "" {
		props := viper.New()
		props.SetConfigFile(file)
		if err := props.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read maestrano properties %s: %w", file, err)
		}
		for _, key := range maestrano.PropertyKeys() {
			if props.IsSet(key) {
				s.Properties[key] = props.GetString(key)
			}
		}
	}
	return s, nil
}

func serve(ctx context.Context, out io.Writer, s *Settings, client *maestrano.Client) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger, err := logging.New(out, s.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	logger.Info("Autoconfiguring Maestrano", zap.String("version", maestrano.Version))
	var marketplaces map[string]*maestrano.Marketplace
	if len(s.Properties) == 0 {
		marketplaces, err = client.AutoConfigureDefault(ctx)
	} else {
		marketplaces, err = client.AutoConfigure(ctx, s.Properties)
	}
	if err != nil {
		return fmt.Errorf("maestrano auto-configuration failed: %w", err)
	}
	logger.Info("Marketplaces Configurations Found", zap.Strings("marketplaces", maestrano.Names(marketplaces)))

	m := metrics.New("webapp")
	m.Marketplaces.Set(float64(len(marketplaces)))

	ln, err := connwatch.Listen(net.JoinHostPort("", strconv.Itoa(s.Port)), m.OpenConnections)
	if err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}

	gin.SetMode(gin.ReleaseMode)
	srv := &http.Server{
		Handler:           NewEngine(logger, m, s.AppHost, marketplaces),
		ReadHeaderTimeout: 10 * time.Second,
	}
	logger.Info("Starting server", zap.String("addr", ln.Addr().String()), zap.String("app_host", s.AppHost))
	return serveOn(ctx, logger, srv, ln)
}

// serveOn serves srv on ln until ctx is done, then shuts it down.
func serveOn(ctx context.Context, logger *zap.Logger, srv *http.Server, ln net.Listener) error {
	errCh := make(chan error, 1)
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("failed to start server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("Shutting down server...")
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	logger.Info("Server exited")
	return nil
}
