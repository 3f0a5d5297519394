package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"hrwatch/internal/model"
)

// PortalConfig describes the HR portal.
type PortalConfig struct {
	// BaseURL is the API prefix the summary path is appended to,
	// e.g. "https://hr.example.com/api".
	BaseURL string `yaml:"base_url" json:"base_url"`
	// LoginURL is the page opened in the browser for refresh and login.
	LoginURL string `yaml:"login_url" json:"login_url"`
	// DefaultMappingID is sent when the portal sets no hr_mid cookie.
	DefaultMappingID string        `yaml:"default_mapping_id" json:"default_mapping_id"`
	RequestTimeout   time.Duration `yaml:"request_timeout" json:"request_timeout"`
}

// WindowConfig selects the reporting window.
type WindowConfig struct {
	// SalaryPeriod switches from the trailing window to the 26th-25th period.
	SalaryPeriod bool `yaml:"salary_period" json:"salary_period"`
	LookbackDays int  `yaml:"lookback_days" json:"lookback_days"`
	// Timezone is the IANA zone "today" is evaluated in.
	Timezone string `yaml:"timezone" json:"timezone"`
}

// SessionConfig controls the browser session provider.
type SessionConfig struct {
	CookieFile     string        `yaml:"cookie_file" json:"cookie_file"`
	Headless       bool          `yaml:"headless" json:"headless"`
	ChromePath     string        `yaml:"chrome_path" json:"chrome_path"`
	UserDataDir    string        `yaml:"user_data_dir" json:"user_data_dir"`
	RefreshTimeout time.Duration `yaml:"refresh_timeout" json:"refresh_timeout"`
	LoginTimeout   time.Duration `yaml:"login_timeout" json:"login_timeout"`
}

// SMTPConfig holds outgoing mail settings. User and Pass are usually
// supplied through the environment.
type SMTPConfig struct {
	Host string `yaml:"host" json:"host"`
	Port int    `yaml:"port" json:"port"`
	// Secure selects implicit TLS (typically port 465). Otherwise STARTTLS is
	// used when the server offers it.
	Secure bool   `yaml:"secure" json:"secure"`
	User   string `yaml:"user" json:"user"`
	Pass   string `yaml:"pass" json:"-"`
	From   string `yaml:"from" json:"from"`
}

// BasicAuthConfig protects the status server.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// Config is the top-level application configuration.
type Config struct {
	Portal  PortalConfig  `yaml:"portal" json:"portal"`
	Window  WindowConfig  `yaml:"window" json:"window"`
	Session SessionConfig `yaml:"session" json:"session"`
	SMTP    SMTPConfig    `yaml:"smtp" json:"smtp"`

	// Recipient receives absence alerts and failure notices.
	Recipient string `yaml:"recipient" json:"recipient"`

	// Schedule is the cron expression used in daemon mode.
	Schedule string `yaml:"schedule" json:"schedule"`

	// Listen is the status server address in daemon mode; empty disables it.
	Listen    string           `yaml:"listen" json:"listen"`
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`

	LogLevel string `yaml:"log_level" json:"log_level"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Portal: PortalConfig{
			RequestTimeout: 15 * time.Second,
		},
		Window: WindowConfig{
			LookbackDays: 31,
			Timezone:     "Local",
		},
		Session: SessionConfig{
			CookieFile:     "./var/cookies.json",
			Headless:       true,
			RefreshTimeout: 60 * time.Second,
			LoginTimeout:   5 * time.Minute,
		},
		SMTP: SMTPConfig{
			Port: 587,
		},
		Schedule: "0 9 * * *",
		LogLevel: "info",
	}
}

// Normalize fills in missing/zero values with defaults so partially
// filled configs still behave.
func (c *Config) Normalize() {
	def := DefaultConfig()
	c.Portal.BaseURL = strings.TrimRight(strings.TrimSpace(c.Portal.BaseURL), "/")
	if c.Portal.LoginURL == "" {
		c.Portal.LoginURL = c.Portal.BaseURL
	}
	if c.Portal.RequestTimeout <= 0 {
		c.Portal.RequestTimeout = def.Portal.RequestTimeout
	}
	if c.Window.LookbackDays <= 0 {
		c.Window.LookbackDays = def.Window.LookbackDays
	}
	if c.Window.Timezone == "" {
		c.Window.Timezone = def.Window.Timezone
	}
	if c.Session.CookieFile == "" {
		c.Session.CookieFile = def.Session.CookieFile
	}
	if c.Session.RefreshTimeout <= 0 {
		c.Session.RefreshTimeout = def.Session.RefreshTimeout
	}
	if c.Session.LoginTimeout <= 0 {
		c.Session.LoginTimeout = def.Session.LoginTimeout
	}
	if c.SMTP.Port <= 0 {
		if c.SMTP.Secure {
			c.SMTP.Port = 465
		} else {
			c.SMTP.Port = def.SMTP.Port
		}
	}
	if c.SMTP.From == "" {
		c.SMTP.From = c.SMTP.User
	}
	if c.Schedule == "" {
		c.Schedule = def.Schedule
	}
	if c.LogLevel == "" {
		c.LogLevel = def.LogLevel
	}
}

// Location resolves Window.Timezone, falling back to time.Local.
func (c *Config) Location() *time.Location {
	if c.Window.Timezone == "" || c.Window.Timezone == "Local" {
		return time.Local
	}
	loc, err := time.LoadLocation(c.Window.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

// Validate reports every missing required setting as one config error.
// Mail settings are only required when notifications will be sent.
func (c *Config) Validate(requireMail bool) error {
	var missing []string
	if c.Portal.BaseURL == "" {
		missing = append(missing, "portal.base_url")
	}
	if c.Session.CookieFile == "" {
		missing = append(missing, "session.cookie_file")
	}
	if requireMail {
		if c.SMTP.Host == "" {
			missing = append(missing, "smtp.host (HRWATCH_SMTP_HOST)")
		}
		if c.SMTP.From == "" {
			missing = append(missing, "smtp.from (HRWATCH_SMTP_FROM)")
		}
		if c.Recipient == "" {
			missing = append(missing, "recipient (HRWATCH_RECIPIENT)")
		}
		if c.SMTP.User != "" && c.SMTP.Pass == "" {
			missing = append(missing, "smtp.pass (HRWATCH_SMTP_PASS)")
		}
	}
	if c.Window.Timezone != "" && c.Window.Timezone != "Local" {
		if _, err := time.LoadLocation(c.Window.Timezone); err != nil {
			return model.NewError(model.KindConfig, "validate config", fmt.Errorf("window.timezone: %w", err))
		}
	}
	if len(missing) > 0 {
		return model.NewError(model.KindConfig, "validate config",
			fmt.Errorf("missing required settings: %s", strings.Join(missing, ", ")))
	}
	return nil
}

// Load loads configuration from the given YAML path and overlays secrets
// from the environment.
//
// Behavior:
//   - If the file does not exist, a default config is written with 0600
//     perms and returned.
//   - envFile, when non-empty and present, is loaded into the process
//     environment first (existing variables win).
//   - HRWATCH_* variables override the file.
func Load(path, envFile string) (*Config, error) {
	if path == "" {
		return nil, model.NewError(model.KindConfig, "load config", errors.New("config path is empty"))
	}

	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, model.NewError(model.KindConfig, "load env file", err)
		}
	}

	cfg, err := readFile(path)
	if err != nil {
		return nil, model.NewError(model.KindConfig, "load config", err)
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, model.NewError(model.KindConfig, "load config", err)
	}
	cfg.Normalize()
	return cfg, nil
}

func readFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	setString := func(key string, dst *string) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			*dst = v
		}
	}
	setString("HRWATCH_PORTAL_BASE_URL", &c.Portal.BaseURL)
	setString("HRWATCH_PORTAL_LOGIN_URL", &c.Portal.LoginURL)
	setString("HRWATCH_COOKIE_FILE", &c.Session.CookieFile)
	setString("HRWATCH_SMTP_HOST", &c.SMTP.Host)
	setString("HRWATCH_SMTP_USER", &c.SMTP.User)
	setString("HRWATCH_SMTP_PASS", &c.SMTP.Pass)
	setString("HRWATCH_SMTP_FROM", &c.SMTP.From)
	setString("HRWATCH_RECIPIENT", &c.Recipient)

	if v := os.Getenv("HRWATCH_SMTP_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid HRWATCH_SMTP_PORT: %w", err)
		}
		c.SMTP.Port = port
	}
	if v := os.Getenv("HRWATCH_SMTP_SECURE"); v != "" {
		secure, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid HRWATCH_SMTP_SECURE: %w", err)
		}
		c.SMTP.Secure = secure
	}
	return nil
}

// Save writes cfg to path atomically via a temp file + rename, with the
// parent directory at 0700 and the file at 0600.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	// Secrets stay in the environment, never in the written file.
	out := *cfg
	out.SMTP.Pass = ""
	data, err := yaml.Marshal(&out)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".hrwatch-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
