package main

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"

	"buildsite/pkg/auth"
	"buildsite/pkg/config"
	errs "buildsite/pkg/errors"
	"buildsite/pkg/fetch"
	"buildsite/pkg/logger"
)

// execute runs the root command with args and returns stdout and stderr
func execute(t *testing.T, stdin string, args ...string) (string, string, error) {
	t.Helper()

	// flag values survive between executions of the same command tree
	configFile, logLevel, noColor = "", "", false
	fetchMethod, fetchTimeout, fetchRetries, fetchDelay = http.MethodGet, 0, -1, 0
	fetchHeaders, fetchData, fetchJSON = nil, "", false
	forceInit = false
	setColor(false)

	var stdout, stderr bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stderr)
	rootCmd.SetIn(strings.NewReader(stdin))
	rootCmd.SetArgs(append(args, "--log-level", "error", "--no-color"))

	err := rootCmd.Execute()
	return stdout.String(), stderr.String(), err
}

func TestParseHeaders(t *testing.T) {
	header, err := parseHeaders([]string{"Accept: text/plain", "X-Trace:  abc "})
	require.NoError(t, err)
	assert.Equal(t, "text/plain", header.Get("Accept"))
	assert.Equal(t, "abc", header.Get("X-Trace"))

	header, err = parseHeaders(nil)
	assert.NoError(t, err)
	assert.Nil(t, header)

	_, err = parseHeaders([]string{"no colon"})
	assert.Error(t, err)
	_, err = parseHeaders([]string{": value"})
	assert.Error(t, err)
}

func TestReadSecretFromPipe(t *testing.T) {
	value, err := readSecret(strings.NewReader("s3cret\n"), &bytes.Buffer{}, "smtp_password")
	require.NoError(t, err)
	assert.Equal(t, "s3cret", value)

	value, err = readSecret(strings.NewReader("no-newline"), &bytes.Buffer{}, "smtp_password")
	require.NoError(t, err)
	assert.Equal(t, "no-newline", value)

	_, err = readSecret(strings.NewReader("   \n"), &bytes.Buffer{}, "smtp_password")
	assert.Error(t, err)
}

func TestFetchCommandRetries(t *testing.T) {
	var hits atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		assert.Equal(t, "yes", r.Header.Get("X-Trace"))
		_, _ = w.Write([]byte("pong"))
	}))
	defer ts.Close()

	stdout, stderr, err := execute(t, "", "fetch", ts.URL+"/ping", "--delay", "1ms", "--retries", "2", "-H", "X-Trace: yes")
	require.NoError(t, err)
	assert.Equal(t, "pong", stdout)
	assert.Contains(t, stderr, "200 OK")
	assert.Equal(t, int32(2), hits.Load())
}

func TestFetchCommandJSON(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":[{"slug":"precast"}]}`))
	}))
	defer ts.Close()

	stdout, _, err := execute(t, "", "fetch", ts.URL, "--json")
	require.NoError(t, err)
	assert.Contains(t, stdout, `"slug": "precast"`)
}

func TestFetchCommandErrorStatus(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusNotFound)
	}))
	defer ts.Close()

	stdout, _, err := execute(t, "", "fetch", ts.URL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
	assert.Contains(t, stdout, "nope")
}

func TestFetchCommandTimeout(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer ts.Close()

	_, _, err := execute(t, "", "fetch", ts.URL, "--timeout", "20ms", "--retries", "0")
	require.Error(t, err)
	assert.True(t, errs.IsKind(err, errs.KindTimeout), "got %v", err)
}

func TestFetchCommandZeroRetriesMakesSingleAttempt(t *testing.T) {
	var hits atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer ts.Close()

	_, _, _ = execute(t, "", "fetch", ts.URL, "--delay", "1ms", "--retries", "0")
	assert.Equal(t, int32(1), hits.Load())

	hits.Store(0)
	_, _, _ = execute(t, "", "fetch", ts.URL, "--delay", "1ms", "--retries", "1")
	assert.Equal(t, int32(2), hits.Load())
}

func TestNewFetchClientRetries(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Fetch.MaxRetries = 0
	client := newFetchClient(cfg, logger.NewNopLogger())
	assert.Equal(t, 0, client.Options().MaxRetries)
	assert.Equal(t, fetch.NoRetries, client.NewRequest(http.MethodGet, "/products").MaxRetries)

	cfg.Fetch.MaxRetries = 4
	client = newFetchClient(cfg, logger.NewNopLogger())
	assert.Equal(t, 4, client.Options().MaxRetries)
}

func TestConfigInitAndValidate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "buildsite.yaml")

	stdout, _, err := execute(t, "", "config", "init", "--config", path)
	require.NoError(t, err)
	assert.Contains(t, stdout, "Configuration file created")

	_, _, err = execute(t, "", "config", "init", "--config", path)
	assert.Error(t, err, "existing file is not overwritten without --force")

	_, _, err = execute(t, "", "config", "init", "--config", path, "--force")
	assert.NoError(t, err)

	stdout, _, err = execute(t, "", "config", "validate", "--config", path)
	require.NoError(t, err)
	assert.Contains(t, stdout, "Configuration is valid")
}

func TestConfigShowMasksSecrets(t *testing.T) {
	path := filepath.Join(t.TempDir(), "buildsite.yaml")
	cfg := config.DefaultConfig()
	cfg.Backend.Token = "super-secret-token"
	require.NoError(t, cfg.Save(path))

	stdout, _, err := execute(t, "", "config", "show", "--config", path)
	require.NoError(t, err)
	assert.NotContains(t, stdout, "super-secret-token")
	assert.Contains(t, stdout, "********")
}

func TestCredentialsCommands(t *testing.T) {
	manager, store := auth.NewMockManager()
	original := newSecretManager
	newSecretManager = func() (*auth.Manager, error) { return manager, nil }
	t.Cleanup(func() { newSecretManager = original })

	stdout, _, err := execute(t, "relay-password\n", "credentials", "set", "smtp_password")
	require.NoError(t, err)
	assert.Contains(t, stdout, "Secret stored: smtp_password")
	assert.Equal(t, 1, store.Count())

	stdout, _, err = execute(t, "", "credentials", "list")
	require.NoError(t, err)
	assert.Contains(t, stdout, "smtp_password")
	assert.NotContains(t, stdout, "relay-password")

	_, _, err = execute(t, "x\n", "credentials", "set", "Bad-Name")
	assert.Error(t, err)

	stdout, _, err = execute(t, "", "credentials", "delete", "smtp_password")
	require.NoError(t, err)
	assert.Contains(t, stdout, "Secret deleted")
	assert.Equal(t, 0, store.Count())

	stdout, _, err = execute(t, "", "credentials", "list")
	require.NoError(t, err)
	assert.Contains(t, stdout, "No secrets stored")
}

func TestCredentialsGuide(t *testing.T) {
	stdout, _, err := execute(t, "", "credentials", "guide")
	require.NoError(t, err)
	assert.Contains(t, stdout, auth.SecretSMTPPassword)
}

func TestNewMailer(t *testing.T) {
	cfg := config.DefaultConfig()

	mailer, err := newMailer(cfg, logger.NewNopLogger())
	require.NoError(t, err)
	assert.NotNil(t, mailer)

	cfg.Mail.Driver = "SMTP"
	cfg.Mail.Host = "smtp.example.com"
	mailer, err = newMailer(cfg, logger.NewNopLogger())
	require.NoError(t, err)
	assert.NotNil(t, mailer)

	cfg.Mail.Driver = "pigeon"
	_, err = newMailer(cfg, logger.NewNopLogger())
	assert.Error(t, err)
}

func TestResolveSecretsFromEnvironment(t *testing.T) {
	keyring.MockInit()
	t.Setenv(auth.EnvVar(auth.SecretBackendToken), "env-token")
	t.Setenv("HOME", t.TempDir())
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv(auth.PassphraseEnv, "test-passphrase")

	cfg := config.DefaultConfig()
	cfg.Mail.Password = "from-config"
	require.NoError(t, resolveSecrets(cfg, logger.NewNopLogger()))

	assert.Equal(t, "from-config", cfg.Mail.Password, "configured values win")
	assert.Equal(t, "env-token", cfg.Backend.Token)
}

func TestMain(m *testing.M) {
	// keep config auto-detection away from any buildsite.yaml in the tree
	dir, err := os.MkdirTemp("", "buildsite-cmd")
	if err != nil {
		panic(err)
	}
	if err := os.Chdir(dir); err != nil {
		panic(err)
	}
	code := m.Run()
	_ = os.RemoveAll(dir)
	os.Exit(code)
}
