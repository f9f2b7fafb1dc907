package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/dmitrijs2005/sessionkeeper/internal/flagx"
	"github.com/dmitrijs2005/sessionkeeper/internal/timex"
)

// JsonConfig is a DTO used exclusively for JSON unmarshalling. Intervals
// use timex.Duration, so they may be strings like "3s" or integer
// nanoseconds. Absent fields leave the Config untouched.
type JsonConfig struct {
	ProviderURL string `json:"provider_url"`
	AnonKey     string `json:"anon_key"`
	AppURL      string `json:"app_url"`
	DataDir     string `json:"data_dir"`
	DBFile      string `json:"db_file"`

	OnlineCheckInterval *timex.Duration `json:"online_check_interval"`
	RequestTimeout      *timex.Duration `json:"request_timeout"`
	SignInPreDelay      *timex.Duration `json:"signin_pre_delay"`
	SessionWaitTimeout  *timex.Duration `json:"session_wait_timeout"`
	RefreshMargin       *timex.Duration `json:"refresh_margin"`

	RetryMaxRetries *int            `json:"retry_max_retries"`
	RetryBaseDelay  *timex.Duration `json:"retry_base_delay"`
	RetryMaxDelay   *timex.Duration `json:"retry_max_delay"`
	RetryJitter     *timex.Duration `json:"retry_jitter"`
	DefaultCooldown *timex.Duration `json:"default_cooldown"`

	StartupDelay       *timex.Duration `json:"health_startup_delay"`
	VisibilityDebounce *timex.Duration `json:"health_visibility_debounce"`
	CheckThrottle      *timex.Duration `json:"health_check_throttle"`
	CheckTimeout       *timex.Duration `json:"health_check_timeout"`

	LoginPath        string `json:"login_path"`
	OAuthRedirectURL string `json:"oauth_redirect_url"`
	OTLPEndpoint     string `json:"otlp_endpoint"`
	LogLevel         string `json:"log_level"`
}

// parseJson overlays cfg with the JSON file passed as -c or -config in args.
// Without the flag nothing is loaded.
func parseJson(cfg *Config, args []string) error {
	path := flagx.ConfigPath(args)
	if path == "" {
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}

	var jc JsonConfig
	if err := json.Unmarshal(data, &jc); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}

	jc.apply(cfg)
	return nil
}

func (jc *JsonConfig) apply(cfg *Config) {
	setString(&cfg.ProviderURL, jc.ProviderURL)
	setString(&cfg.AnonKey, jc.AnonKey)
	setString(&cfg.AppURL, jc.AppURL)
	setString(&cfg.DataDir, jc.DataDir)
	setString(&cfg.DBFile, jc.DBFile)
	setString(&cfg.LoginPath, jc.LoginPath)
	setString(&cfg.OAuthRedirectURL, jc.OAuthRedirectURL)
	setString(&cfg.OTLPEndpoint, jc.OTLPEndpoint)
	setString(&cfg.LogLevel, jc.LogLevel)

	for _, d := range []struct {
		dst *time.Duration
		src *timex.Duration
	}{
		{&cfg.OnlineCheckInterval, jc.OnlineCheckInterval},
		{&cfg.RequestTimeout, jc.RequestTimeout},
		{&cfg.SignInPreDelay, jc.SignInPreDelay},
		{&cfg.SessionWaitTimeout, jc.SessionWaitTimeout},
		{&cfg.RefreshMargin, jc.RefreshMargin},
		{&cfg.RetryBaseDelay, jc.RetryBaseDelay},
		{&cfg.RetryMaxDelay, jc.RetryMaxDelay},
		{&cfg.RetryJitter, jc.RetryJitter},
		{&cfg.DefaultCooldown, jc.DefaultCooldown},
		{&cfg.StartupDelay, jc.StartupDelay},
		{&cfg.VisibilityDebounce, jc.VisibilityDebounce},
		{&cfg.CheckThrottle, jc.CheckThrottle},
		{&cfg.CheckTimeout, jc.CheckTimeout},
	} {
		if d.src != nil {
			*d.dst = d.src.Duration
		}
	}

	if jc.RetryMaxRetries != nil {
		cfg.RetryMaxRetries = *jc.RetryMaxRetries
	}
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
