package auth

import (
	"fmt"
	"io"
	"strings"
)

// ShowSecretsGuide prints where the server looks for each well-known secret
func ShowSecretsGuide(w io.Writer) {
	fmt.Fprintln(w, strings.Repeat("=", 72))
	fmt.Fprintln(w, "SECRETS")
	fmt.Fprintln(w, strings.Repeat("=", 72))
	fmt.Fprintln(w)
	fmt.Fprintln(w, "The server needs these secrets when they are not set in the config file:")
	fmt.Fprintln(w)
	fmt.Fprintf(w, "  %-15s password for the SMTP relay (mail.driver: smtp)\n", SecretSMTPPassword)
	fmt.Fprintf(w, "  %-15s service token sent to the backend API\n", SecretBackendToken)
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Lookup order:")
	fmt.Fprintln(w, "  1. system keyring (macOS Keychain, Windows Credential Manager, Secret Service)")
	fmt.Fprintln(w, "  2. encrypted file in the user config directory")
	fmt.Fprintf(w, "     (passphrase from %s or a generated .passphrase file)\n", PassphraseEnv)
	fmt.Fprintf(w, "  3. environment, e.g. %s\n", EnvVar(SecretSMTPPassword))
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Store one with:  buildsite credentials set smtp_password")
	fmt.Fprintln(w, strings.Repeat("=", 72))
}
