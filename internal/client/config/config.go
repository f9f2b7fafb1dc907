package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Config holds runtime settings for the SessionKeeper client.
//
// Durations are time.Duration values; see doc.go for the sources that can
// set them and their precedence.
type Config struct {
	ProviderURL string `env:"PROVIDER_URL"`
	AnonKey     string `env:"ANON_KEY"`
	AppURL      string `env:"APP_URL"`

	DataDir string `env:"DATA_DIR"`
	DBFile  string `env:"DB_FILE"`

	OnlineCheckInterval time.Duration `env:"ONLINE_CHECK_INTERVAL"`
	RequestTimeout      time.Duration `env:"REQUEST_TIMEOUT"`

	SignInPreDelay     time.Duration `env:"SIGNIN_PRE_DELAY"`
	SessionWaitTimeout time.Duration `env:"SESSION_WAIT_TIMEOUT"`
	RefreshMargin      time.Duration `env:"REFRESH_MARGIN"`

	RetryMaxRetries int           `env:"RETRY_MAX_RETRIES"`
	RetryBaseDelay  time.Duration `env:"RETRY_BASE_DELAY"`
	RetryMaxDelay   time.Duration `env:"RETRY_MAX_DELAY"`
	RetryJitter     time.Duration `env:"RETRY_JITTER"`
	DefaultCooldown time.Duration `env:"DEFAULT_COOLDOWN"`

	StartupDelay       time.Duration `env:"HEALTH_STARTUP_DELAY"`
	VisibilityDebounce time.Duration `env:"HEALTH_VISIBILITY_DEBOUNCE"`
	CheckThrottle      time.Duration `env:"HEALTH_CHECK_THROTTLE"`
	CheckTimeout       time.Duration `env:"HEALTH_CHECK_TIMEOUT"`

	LoginPath        string `env:"LOGIN_PATH"`
	OAuthRedirectURL string `env:"OAUTH_REDIRECT_URL"`

	OTLPEndpoint string `env:"OTLP_ENDPOINT"`
	LogLevel     string `env:"LOG_LEVEL"`
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.ProviderURL = "http://127.0.0.1:54321"
	c.AppURL = "http://127.0.0.1:3000"
	c.DataDir = "data"
	c.DBFile = "sessionkeeper.db"
	c.OnlineCheckInterval = 3 * time.Second
	c.RequestTimeout = 15 * time.Second
	c.SignInPreDelay = 500 * time.Millisecond
	c.SessionWaitTimeout = 5 * time.Second
	c.RefreshMargin = 30 * time.Second
	c.RetryMaxRetries = 2
	c.RetryBaseDelay = time.Second
	c.RetryMaxDelay = 10 * time.Second
	c.RetryJitter = 250 * time.Millisecond
	c.DefaultCooldown = 30 * time.Second
	c.StartupDelay = time.Second
	c.VisibilityDebounce = 2 * time.Second
	c.CheckThrottle = 30 * time.Second
	c.CheckTimeout = 10 * time.Second
	c.LoginPath = "/login"
	c.OAuthRedirectURL = "http://127.0.0.1:3000/auth/callback"
	c.LogLevel = "info"
}

// DBPath returns the database file location inside DataDir.
func (c *Config) DBPath() string {
	return filepath.Join(c.DataDir, c.DBFile)
}

// Validate reports settings the client cannot start with.
func (c *Config) Validate() error {
	var errs []error
	if c.ProviderURL == "" {
		errs = append(errs, errors.New("provider url is required"))
	}
	if c.AnonKey == "" {
		errs = append(errs, errors.New("anon key is required"))
	}
	if c.AppURL == "" {
		errs = append(errs, errors.New("app url is required"))
	}
	if c.RetryMaxRetries < 0 {
		errs = append(errs, fmt.Errorf("retry max retries must not be negative, got %d", c.RetryMaxRetries))
	}
	if c.OnlineCheckInterval <= 0 {
		errs = append(errs, errors.New("online check interval must be positive"))
	}
	return errors.Join(errs...)
}

// LoadConfig constructs a Config: defaults, then the environment (a .env
// file in the working directory included), then the JSON file named by
// -c/-config, then command-line flags. Later sources take precedence.
func LoadConfig() (*Config, error) {
	return load(os.Args[1:], ".env")
}

func load(args []string, envFile string) (*Config, error) {
	cfg := &Config{}
	cfg.LoadDefaults()

	if err := parseEnv(cfg, envFile); err != nil {
		return nil, err
	}
	if err := parseJson(cfg, args); err != nil {
		return nil, err
	}
	if err := parseFlags(cfg, args); err != nil {
		return nil, err
	}
	return cfg, nil
}
