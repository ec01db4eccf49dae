package main

import (
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"buildsite/internal/server"
	"buildsite/pkg/auth"
	"buildsite/pkg/backend"
	"buildsite/pkg/config"
	"buildsite/pkg/fetch"
	"buildsite/pkg/logger"
	"buildsite/pkg/mail"
)

var (
	serveAddress    string
	serveBackendURL string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP server",
	Long: `Run the website API server until interrupted.

Secrets missing from the config file are looked up in the system keyring,
the encrypted secrets file and BUILDSITE_SECRET_* environment variables.`,
	Example: `  # Serve with defaults and a local backend
  buildsite serve --backend-url http://localhost:4000/api

  # Serve with a config file
  buildsite serve -c /etc/buildsite.yaml`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serveAddress, "address", "", "listen address (default :8080)")
	serveCmd.Flags().StringVar(&serveBackendURL, "backend-url", "", "backend API base URL")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(map[string]interface{}{
		"address":     serveAddress,
		"backend-url": serveBackendURL,
	})
	if err != nil {
		return err
	}
	log := logger.GetLogger()

	if err := resolveSecrets(cfg, log); err != nil {
		return err
	}

	fc := newFetchClient(cfg, log)
	api := backend.NewClient(fc, log)

	mailer, err := newMailer(cfg, log)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := server.New(cfg, api, mailer, log)
	if err := srv.Run(ctx); err != nil {
		log.WithError(err).Error("server stopped with error")
		return err
	}

	log.Info("server stopped")
	return nil
}

// resolveSecrets fills secrets the config leaves empty from the secret stores
func resolveSecrets(cfg *config.Config, log logger.Logger) error {
	manager, err := auth.NewManager()
	if err != nil {
		log.WithError(err).Warn("secret stores unavailable, using environment only")
		manager = auth.NewManagerWithStores(auth.NewEnvironmentStore())
	}

	if cfg.Mail.Password, err = manager.Resolve(auth.SecretSMTPPassword, cfg.Mail.Password); err != nil {
		return fmt.Errorf("failed to resolve %s: %w", auth.SecretSMTPPassword, err)
	}
	if cfg.Backend.Token, err = manager.Resolve(auth.SecretBackendToken, cfg.Backend.Token); err != nil {
		return fmt.Errorf("failed to resolve %s: %w", auth.SecretBackendToken, err)
	}
	return nil
}

// newFetchClient builds the backend fetch client from config. The service
// token, when set, is sent on every call unless a request carries its own
// Authorization header.
func newFetchClient(cfg *config.Config, log logger.Logger) *fetch.Client {
	header := make(http.Header)
	if cfg.Backend.Token != "" {
		header.Set("Authorization", "Bearer "+cfg.Backend.Token)
	}

	// max_retries: 0 in config means a single attempt
	maxRetries := cfg.Fetch.MaxRetries
	if maxRetries == 0 {
		maxRetries = fetch.NoRetries
	}

	return fetch.NewClient(fetch.Options{
		BaseURL:           cfg.Backend.BaseURL,
		Timeout:           cfg.Fetch.Timeout,
		MaxRetries:        maxRetries,
		RetryDelay:        cfg.Fetch.RetryDelay,
		RetryableStatuses: cfg.Fetch.RetryableSet(),
		Header:            header,
	}, log)
}

func newMailer(cfg *config.Config, log logger.Logger) (mail.Mailer, error) {
	switch strings.ToLower(cfg.Mail.Driver) {
	case "smtp":
		return mail.NewSMTPMailer(mail.SMTPConfig{
			Host:        cfg.Mail.Host,
			Port:        cfg.Mail.Port,
			Username:    cfg.Mail.Username,
			Password:    cfg.Mail.Password,
			From:        cfg.Mail.From,
			To:          cfg.Mail.Recipients(),
			MaxAttempts: cfg.Mail.MaxAttempts,
			RetryDelay:  cfg.Mail.RetryDelay,
		}, log), nil
	case "log", "":
		return mail.NewLogMailer(log), nil
	default:
		return nil, fmt.Errorf("unknown mail driver %q", cfg.Mail.Driver)
	}
}

// compile-time check that the backend client satisfies the server's needs
var _ server.Backend = (*backend.Client)(nil)
