package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"buildsite/pkg/config"
)

var forceInit bool

// configCmd represents the config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration files",
	Long: `Manage buildsite configuration files.

Configuration can be loaded from:
  - Command line flags (highest priority)
  - Environment variables (BUILDSITE_*, also read from .env)
  - Configuration file
  - Default values (lowest priority)`,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create an example configuration file",
	Long: `Create a configuration file holding every option at its default value.

The file is written to ./buildsite.yaml unless --config names another path.`,
	Args: cobra.NoArgs,
	RunE: runConfigInit,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration",
	Long: `Show the configuration after merging every source. Secrets are masked.`,
	Args: cobra.NoArgs,
	RunE: runConfigShow,
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the configuration",
	Long: `Load the configuration from every source and check it for invalid values.`,
	Args: cobra.NoArgs,
	RunE: runConfigValidate,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configValidateCmd)

	configInitCmd.Flags().BoolVarP(&forceInit, "force", "f", false, "overwrite an existing file")
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	path := configFile
	if path == "" {
		path = "buildsite.yaml"
	}

	if _, err := os.Stat(path); err == nil && !forceInit {
		return fmt.Errorf("configuration file already exists: %s (use --force to overwrite)", path)
	}

	if err := config.DefaultConfig().Save(path); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	printSuccess(out, "Configuration file created: "+path)
	fmt.Fprintln(out, "\nNext steps:")
	fmt.Fprintln(out, "1. Set backend.base_url and the mail settings")
	fmt.Fprintln(out, "2. Store secrets with 'buildsite credentials set smtp_password'")
	fmt.Fprintln(out, "3. Run 'buildsite config validate', then 'buildsite serve'")
	return nil
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configFile, nil)
	if err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg.Masked())
	if err != nil {
		return fmt.Errorf("failed to format configuration: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprint(out, string(data))

	fmt.Fprintln(out, dim("\n# sources, highest priority first: flags, BUILDSITE_* env, "+describeConfigFile()+", defaults"))
	return nil
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	printInfo(out, "Validating configuration", describeConfigFile())

	cfg, err := config.Load(configFile, nil)
	if err != nil {
		return err
	}

	if cfg.Logging.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.Logging.File), 0755); err != nil {
			return fmt.Errorf("cannot create log directory: %w", err)
		}
	}
	if cfg.Server.StaticDir != "" {
		if info, err := os.Stat(cfg.Server.StaticDir); err != nil || !info.IsDir() {
			printWarning(out, "static_dir is not a directory: "+cfg.Server.StaticDir)
		}
	}
	if !cfg.Session.Secure {
		printWarning(out, "session.secure is off; only use this behind plain HTTP in development")
	}

	printSuccess(out, "Configuration is valid")
	fmt.Fprintln(out, "\nConfiguration summary:")
	fmt.Fprintf(out, "  Address:     %s\n", cfg.Server.Address)
	fmt.Fprintf(out, "  Backend:     %s\n", cfg.Backend.BaseURL)
	fmt.Fprintf(out, "  Fetch:       timeout %s, %d retries, %s backoff base\n", cfg.Fetch.Timeout, cfg.Fetch.MaxRetries, cfg.Fetch.RetryDelay)
	fmt.Fprintf(out, "  Mail driver: %s\n", cfg.Mail.Driver)
	fmt.Fprintf(out, "  Log level:   %s\n", cfg.Logging.Level)
	return nil
}

func describeConfigFile() string {
	if configFile != "" {
		return configFile
	}
	return "config file (auto-detected)"
}
