package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration options for the buildsite server
type Config struct {
	Server    ServerConfig    `yaml:"server" json:"server"`
	Backend   BackendConfig   `yaml:"backend" json:"backend"`
	Fetch     FetchConfig     `yaml:"fetch" json:"fetch"`
	Session   SessionConfig   `yaml:"session" json:"session"`
	Mail      MailConfig      `yaml:"mail" json:"mail"`
	RateLimit RateLimitConfig `yaml:"rate_limit" json:"rate_limit"`
	Logging   LoggingConfig   `yaml:"logging" json:"logging"`
}

// ServerConfig holds the HTTP listener settings
type ServerConfig struct {
	Address         string        `yaml:"address" json:"address"`
	ReadTimeout     time.Duration `yaml:"read_timeout" json:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout" json:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" json:"shutdown_timeout"`
	// LoginPath is where unauthenticated admin page requests are redirected
	LoginPath string `yaml:"login_path" json:"login_path"`
	// StaticDir optionally serves the built site pages, including /admin
	StaticDir string `yaml:"static_dir,omitempty" json:"static_dir,omitempty"`
}

// BackendConfig points at the persistence API the admin surface proxies to
type BackendConfig struct {
	BaseURL string `yaml:"base_url" json:"base_url"`
	// Token is a service token for backend calls made without a user session
	Token string `yaml:"token" json:"token"`
}

// FetchConfig holds the resilient fetch client defaults
type FetchConfig struct {
	Timeout           time.Duration `yaml:"timeout" json:"timeout"`
	MaxRetries        int           `yaml:"max_retries" json:"max_retries"`
	RetryDelay        time.Duration `yaml:"retry_delay" json:"retry_delay"`
	RetryableStatuses []int         `yaml:"retryable_statuses" json:"retryable_statuses"`
}

// RetryableSet returns the retryable statuses as a lookup set
func (f FetchConfig) RetryableSet() map[int]bool {
	set := make(map[int]bool, len(f.RetryableStatuses))
	for _, status := range f.RetryableStatuses {
		set[status] = true
	}
	return set
}

// SessionConfig describes the admin session cookie
type SessionConfig struct {
	CookieName string        `yaml:"cookie_name" json:"cookie_name"`
	MaxAge     time.Duration `yaml:"max_age" json:"max_age"`
	Secure     bool          `yaml:"secure" json:"secure"`
}

// MailConfig holds SMTP settings for the contact form
type MailConfig struct {
	// Driver is "smtp" or "log"
	Driver   string `yaml:"driver" json:"driver"`
	Host     string `yaml:"host" json:"host"`
	Port     int    `yaml:"port" json:"port"`
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
	From     string `yaml:"from" json:"from"`
	To       string `yaml:"to" json:"to"`
	// MaxAttempts bounds delivery attempts per message
	MaxAttempts int `yaml:"max_attempts" json:"max_attempts"`
	// RetryDelay is a fixed pause between attempts; zero backs off exponentially
	RetryDelay time.Duration `yaml:"retry_delay,omitempty" json:"retry_delay,omitempty"`
}

// Recipients splits the comma separated To list
func (m MailConfig) Recipients() []string {
	var recipients []string
	for _, addr := range strings.Split(m.To, ",") {
		if addr = strings.TrimSpace(addr); addr != "" {
			recipients = append(recipients, addr)
		}
	}
	return recipients
}

// RateLimitConfig holds per-client limits for abuse-prone routes
type RateLimitConfig struct {
	ContactPerMinute int `yaml:"contact_per_minute" json:"contact_per_minute"`
	ContactBurst     int `yaml:"contact_burst" json:"contact_burst"`
	LoginPerMinute   int `yaml:"login_per_minute" json:"login_per_minute"`
	LoginBurst       int `yaml:"login_burst" json:"login_burst"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" json:"level"`
	Format string `yaml:"format" json:"format"`
	File   string `yaml:"file" json:"file"`
}

// DefaultConfig returns a Config instance with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Address:         ":8080",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    2 * time.Minute,
			ShutdownTimeout: 10 * time.Second,
			LoginPath:       "/login",
		},
		Backend: BackendConfig{
			BaseURL: "http://localhost:4000/api",
		},
		Fetch: FetchConfig{
			Timeout:           30 * time.Second,
			MaxRetries:        3,
			RetryDelay:        1 * time.Second,
			RetryableStatuses: []int{408, 429, 500, 502, 503, 504},
		},
		Session: SessionConfig{
			CookieName: "admin_session",
			MaxAge:     8 * time.Hour,
			Secure:     true,
		},
		Mail: MailConfig{
			Driver:      "log",
			Port:        587,
			MaxAttempts: 3,
		},
		RateLimit: RateLimitConfig{
			ContactPerMinute: 5,
			ContactBurst:     3,
			LoginPerMinute:   10,
			LoginBurst:       5,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// LoadFromEnv loads configuration from BUILDSITE_* environment variables
func (c *Config) LoadFromEnv() error {
	var errs []error

	setString := func(key string, target *string) {
		if v := os.Getenv(key); v != "" {
			*target = v
		}
	}
	setInt := func(key string, target *int) {
		if v := os.Getenv(key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*target = n
		}
	}
	setDuration := func(key string, target *time.Duration) {
		if v := os.Getenv(key); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*target = d
		}
	}

	setString("BUILDSITE_ADDRESS", &c.Server.Address)
	setString("BUILDSITE_STATIC_DIR", &c.Server.StaticDir)
	setString("BUILDSITE_BACKEND_URL", &c.Backend.BaseURL)
	setString("BUILDSITE_BACKEND_TOKEN", &c.Backend.Token)
	setDuration("BUILDSITE_FETCH_TIMEOUT", &c.Fetch.Timeout)
	setInt("BUILDSITE_FETCH_MAX_RETRIES", &c.Fetch.MaxRetries)
	setDuration("BUILDSITE_FETCH_RETRY_DELAY", &c.Fetch.RetryDelay)
	setString("BUILDSITE_SESSION_COOKIE", &c.Session.CookieName)
	if v := os.Getenv("BUILDSITE_SESSION_SECURE"); v != "" {
		c.Session.Secure = strings.EqualFold(v, "true")
	}
	setString("BUILDSITE_MAIL_DRIVER", &c.Mail.Driver)
	setString("BUILDSITE_SMTP_HOST", &c.Mail.Host)
	setInt("BUILDSITE_SMTP_PORT", &c.Mail.Port)
	setString("BUILDSITE_SMTP_USERNAME", &c.Mail.Username)
	setString("BUILDSITE_SMTP_PASSWORD", &c.Mail.Password)
	setString("BUILDSITE_MAIL_FROM", &c.Mail.From)
	setString("BUILDSITE_MAIL_TO", &c.Mail.To)
	setString("BUILDSITE_LOG_LEVEL", &c.Logging.Level)
	setString("BUILDSITE_LOG_FORMAT", &c.Logging.Format)

	return errors.Join(errs...)
}

// LoadFromFile loads configuration from a YAML file
func (c *Config) LoadFromFile(path string) error {
	if path == "" {
		path = c.findConfigFile()
		if path == "" {
			return nil
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// findConfigFile searches for config file in standard locations
func (c *Config) findConfigFile() string {
	locations := []string{
		"buildsite.yaml",
		"buildsite.yml",
		filepath.Join(os.Getenv("HOME"), ".config", "buildsite", "config.yaml"),
		"/etc/buildsite/config.yaml",
	}

	for _, loc := range locations {
		if _, err := os.Stat(loc); err == nil {
			return loc
		}
	}

	return ""
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Address == "" {
		errs = append(errs, errors.New("server address is required"))
	}

	if c.Backend.BaseURL == "" {
		errs = append(errs, errors.New("backend base URL is required"))
	} else if u, err := url.Parse(c.Backend.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Errorf("backend base URL %q is not an absolute URL", c.Backend.BaseURL))
	}

	if c.Fetch.Timeout <= 0 {
		errs = append(errs, errors.New("fetch timeout must be positive"))
	}
	if c.Fetch.MaxRetries < 0 {
		errs = append(errs, errors.New("fetch max retries cannot be negative"))
	}
	if c.Fetch.RetryDelay <= 0 {
		errs = append(errs, errors.New("fetch retry delay must be positive"))
	}
	for _, status := range c.Fetch.RetryableStatuses {
		if status < 100 || status > 599 {
			errs = append(errs, fmt.Errorf("retryable status %d is not a valid HTTP status", status))
		}
	}

	if c.Session.CookieName == "" {
		errs = append(errs, errors.New("session cookie name is required"))
	}

	switch strings.ToLower(c.Mail.Driver) {
	case "log":
	case "smtp":
		if c.Mail.Host == "" {
			errs = append(errs, errors.New("SMTP host is required for the smtp mail driver"))
		}
		if c.Mail.From == "" || c.Mail.To == "" {
			errs = append(errs, errors.New("mail from and to addresses are required for the smtp mail driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("invalid mail driver %q", c.Mail.Driver))
	}
	if c.Mail.MaxAttempts <= 0 {
		errs = append(errs, errors.New("mail max attempts must be positive"))
	}
	if c.Mail.RetryDelay < 0 {
		errs = append(errs, errors.New("mail retry delay must not be negative"))
	}

	if c.RateLimit.ContactPerMinute <= 0 || c.RateLimit.LoginPerMinute <= 0 {
		errs = append(errs, errors.New("rate limits must be positive"))
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, errors.New("invalid log level"))
	}

	return errors.Join(errs...)
}

// Save saves the configuration to a file
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// MergeCommandLineFlags merges command line flags into the configuration
func (c *Config) MergeCommandLineFlags(flags map[string]interface{}) {
	if address, ok := flags["address"].(string); ok && address != "" {
		c.Server.Address = address
	}
	if backendURL, ok := flags["backend-url"].(string); ok && backendURL != "" {
		c.Backend.BaseURL = backendURL
	}
	if logLevel, ok := flags["log-level"].(string); ok && logLevel != "" {
		c.Logging.Level = logLevel
	}
	if maxRetries, ok := flags["max-retries"].(int); ok && maxRetries >= 0 {
		c.Fetch.MaxRetries = maxRetries
	}
	if timeout, ok := flags["timeout"].(time.Duration); ok && timeout > 0 {
		c.Fetch.Timeout = timeout
	}
}

// Masked returns a copy with secrets replaced, for display
func (c *Config) Masked() *Config {
	masked := *c
	masked.Fetch.RetryableStatuses = append([]int(nil), c.Fetch.RetryableStatuses...)
	if masked.Backend.Token != "" {
		masked.Backend.Token = "********"
	}
	if masked.Mail.Password != "" {
		masked.Mail.Password = "********"
	}
	return &masked
}

// Load loads configuration from all sources with proper precedence
// Precedence order: Command line flags > Environment variables > .env file > Config file > Defaults
func Load(configPath string, flags map[string]interface{}) (*Config, error) {
	_ = godotenv.Load(".env")

	config := DefaultConfig()

	if err := config.LoadFromFile(configPath); err != nil {
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}

	if err := config.LoadFromEnv(); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	config.MergeCommandLineFlags(flags)

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}
