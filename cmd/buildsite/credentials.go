package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"buildsite/pkg/auth"
)

var credentialsCmd = &cobra.Command{
	Use:     "credentials",
	Aliases: []string{"creds"},
	Short:   "Manage stored secrets",
	Long: `Manage secrets the server reads at startup, such as the SMTP password.

Secrets are stored using:
  - System keychain (when available)
  - Encrypted file with PBKDF2 key derivation
  - Environment variables (read-only)`,
}

var credentialsSetCmd = &cobra.Command{
	Use:   "set <name>",
	Short: "Store a secret",
	Long: `Store a secret. The value is read from a hidden prompt, or from stdin
when it is not a terminal.`,
	Example: `  buildsite credentials set smtp_password
  echo -n "$TOKEN" | buildsite credentials set backend_token`,
	Args: cobra.ExactArgs(1),
	RunE: runCredentialsSet,
}

var credentialsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored secrets with masked values",
	Args:  cobra.NoArgs,
	RunE:  runCredentialsList,
}

var credentialsDeleteCmd = &cobra.Command{
	Use:   "delete <name>",
	Short: "Remove a stored secret",
	Args:  cobra.ExactArgs(1),
	RunE:  runCredentialsDelete,
}

var credentialsGuideCmd = &cobra.Command{
	Use:   "guide",
	Short: "Explain which secrets the server needs",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		auth.ShowSecretsGuide(cmd.OutOrStdout())
	},
}

// newSecretManager is swapped in tests
var newSecretManager = auth.NewManager

func init() {
	rootCmd.AddCommand(credentialsCmd)
	credentialsCmd.AddCommand(credentialsSetCmd)
	credentialsCmd.AddCommand(credentialsListCmd)
	credentialsCmd.AddCommand(credentialsDeleteCmd)
	credentialsCmd.AddCommand(credentialsGuideCmd)
}

func runCredentialsSet(cmd *cobra.Command, args []string) error {
	name := strings.TrimSpace(args[0])
	if !auth.ValidName(name) {
		return fmt.Errorf("invalid secret name %q: use lowercase letters, digits and underscores", name)
	}

	manager, err := newSecretManager()
	if err != nil {
		return fmt.Errorf("failed to initialize secret stores: %w", err)
	}

	value, err := readSecret(cmd.InOrStdin(), cmd.ErrOrStderr(), name)
	if err != nil {
		return err
	}

	if err := manager.Store(&auth.Secret{Name: name, Value: value, LastModified: time.Now()}); err != nil {
		return err
	}

	printSuccess(cmd.OutOrStdout(), "Secret stored: "+name)
	return nil
}

func runCredentialsList(cmd *cobra.Command, args []string) error {
	manager, err := newSecretManager()
	if err != nil {
		return fmt.Errorf("failed to initialize secret stores: %w", err)
	}

	secrets, err := manager.List()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(secrets) == 0 {
		fmt.Fprintln(out, "No secrets stored. Run 'buildsite credentials guide' to get started.")
		return nil
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tVALUE\tMODIFIED")
	for _, secret := range secrets {
		masked := auth.Sanitize(secret)
		modified := "-"
		if !masked.LastModified.IsZero() {
			modified = masked.LastModified.Format("2006-01-02 15:04")
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", masked.Name, masked.Value, modified)
	}
	return tw.Flush()
}

func runCredentialsDelete(cmd *cobra.Command, args []string) error {
	manager, err := newSecretManager()
	if err != nil {
		return fmt.Errorf("failed to initialize secret stores: %w", err)
	}

	if err := manager.Delete(args[0]); err != nil {
		return err
	}

	printSuccess(cmd.OutOrStdout(), "Secret deleted: "+args[0])
	return nil
}

// readSecret prompts without echo on a terminal and reads one line otherwise
func readSecret(in io.Reader, prompt io.Writer, name string) (string, error) {
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fmt.Fprintf(prompt, "Value for %s: ", name)
		raw, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(prompt)
		if err != nil {
			return "", fmt.Errorf("failed to read secret: %w", err)
		}
		return validSecretValue(string(raw))
	}

	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && err != io.EOF {
		return "", fmt.Errorf("failed to read secret: %w", err)
	}
	return validSecretValue(line)
}

func validSecretValue(raw string) (string, error) {
	value := strings.TrimRight(raw, "\r\n")
	if strings.TrimSpace(value) == "" {
		return "", fmt.Errorf("secret value is required")
	}
	return value, nil
}
