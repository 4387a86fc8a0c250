package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

const appDirName = "chat-oracle"

type Config struct {
	AppConfig     *AppConfig
	BrowserConfig *BrowserConfig
	OracleConfig  *OracleConfig
	TimingConfig  *TimingConfig
}

type AppConfig struct {
	LogLevel  string `envconfig:"LOG_LEVEL" default:"warn"`
	Debug     bool   `envconfig:"DEBUG" default:"false"`
	Trace     bool   `envconfig:"ORACLE_TRACE" default:"false"`
	ConfigDir string `envconfig:"ORACLE_CONFIG_DIR"`
}

type BrowserConfig struct {
	Headless          bool          `envconfig:"BROWSER_HEADLESS" default:"true"`
	SlowMo            int           `envconfig:"BROWSER_SLOW_MO" default:"0"`
	AutoInstall       bool          `envconfig:"BROWSER_AUTO_INSTALL" default:"false"`
	NavigationTimeout time.Duration `envconfig:"BROWSER_NAVIGATION_TIMEOUT" default:"45s"`
	UserAgent         string        `envconfig:"BROWSER_USER_AGENT" default:"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36"`
	ViewportWidth     int           `envconfig:"BROWSER_VIEWPORT_WIDTH" default:"1440"`
	ViewportHeight    int           `envconfig:"BROWSER_VIEWPORT_HEIGHT" default:"900"`
	Locale            string        `envconfig:"BROWSER_LOCALE" default:"en-US"`
	Args              []string      `envconfig:"BROWSER_ARGS" default:"--disable-blink-features=AutomationControlled,--disable-dev-shm-usage"`
}

type OracleConfig struct {
	BaseURL        string        `envconfig:"ORACLE_BASE_URL" default:"https://chatgpt.com/"`
	Profile        string        `envconfig:"ORACLE_PROFILE" default:"default"`
	Model          string        `envconfig:"ORACLE_MODEL" default:"gpt-5"`
	Timeout        time.Duration `envconfig:"ORACLE_TIMEOUT" default:"2m"`
	Retries        int           `envconfig:"ORACLE_RETRIES" default:"0"`
	ScreenshotPath string        `envconfig:"ORACLE_SCREENSHOT_PATH"`
}

// TimingConfig holds the polling heuristics. The defaults were tuned against
// one UI and are expected to drift with it.
type TimingConfig struct {
	PollInterval         time.Duration `envconfig:"ORACLE_POLL_INTERVAL" default:"2s"`
	StableThreshold      int           `envconfig:"ORACLE_STABLE_THRESHOLD" default:"3"`
	LongRunningFloor     time.Duration `envconfig:"ORACLE_LONG_RUNNING_FLOOR" default:"30m"`
	SettleDelay          time.Duration `envconfig:"ORACLE_SETTLE_DELAY" default:"2s"`
	SubmitSettleDelay    time.Duration `envconfig:"ORACLE_SUBMIT_SETTLE_DELAY" default:"500ms"`
	TypingDelay          time.Duration `envconfig:"ORACLE_TYPING_DELAY" default:"90ms"`
	ElementTimeout       time.Duration `envconfig:"ORACLE_ELEMENT_TIMEOUT" default:"10s"`
	ShortTimeout         time.Duration `envconfig:"ORACLE_SHORT_TIMEOUT" default:"2s"`
	VerificationWait     time.Duration `envconfig:"ORACLE_VERIFICATION_WAIT" default:"20s"`
	VerificationInterval time.Duration `envconfig:"ORACLE_VERIFICATION_INTERVAL" default:"1s"`
	ConfirmTimeout       time.Duration `envconfig:"ORACLE_CONFIRM_TIMEOUT" default:"60s"`
	ConfirmInterval      time.Duration `envconfig:"ORACLE_CONFIRM_INTERVAL" default:"1s"`
	SessionCheckTimeout  time.Duration `envconfig:"ORACLE_SESSION_CHECK_TIMEOUT" default:"15s"`
	ComposerTimeout      time.Duration `envconfig:"ORACLE_COMPOSER_TIMEOUT" default:"5s"`
	MenuTimeout          time.Duration `envconfig:"ORACLE_MENU_TIMEOUT" default:"5s"`
	CopyWindow           time.Duration `envconfig:"ORACLE_COPY_WINDOW" default:"3s"`
	CopyInterval         time.Duration `envconfig:"ORACLE_COPY_INTERVAL" default:"250ms"`
	ModelConfirmSettle   time.Duration `envconfig:"ORACLE_MODEL_CONFIRM_SETTLE" default:"750ms"`
}

func GetConfig() (*Config, error) {
	_ = godotenv.Load()

	var conf Config

	if err := envconfig.Process("", &conf); err != nil {
		return nil, fmt.Errorf("read config from env vars: %w", err)
	}

	return &conf, nil
}

// ProfilesDir is the directory that holds one sub-directory per profile.
func (c *Config) ProfilesDir() (string, error) {
	if c.AppConfig.ConfigDir != "" {
		return filepath.Join(c.AppConfig.ConfigDir, "profiles"), nil
	}

	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("resolve user config dir: %w", err)
	}

	return filepath.Join(base, appDirName, "profiles"), nil
}

// ScreenshotPath is where a failed login leaves its diagnostic capture.
func (c *Config) ScreenshotPath() string {
	if c.OracleConfig.ScreenshotPath != "" {
		return c.OracleConfig.ScreenshotPath
	}

	return filepath.Join(os.TempDir(), "chat-oracle-login-failure.png")
}

// Overrides carries command-line flags. Nil fields leave the env value alone.
type Overrides struct {
	Profile *string
	Visible *bool
	Verbose *bool
	Model   *string
	Timeout *time.Duration
	Retries *int
}

func (o Overrides) Apply(c *Config) error {
	if o.Profile != nil {
		c.OracleConfig.Profile = *o.Profile
	}

	if o.Visible != nil && *o.Visible {
		c.BrowserConfig.Headless = false
	}

	if o.Verbose != nil && *o.Verbose {
		c.AppConfig.LogLevel = "debug"
	}

	if o.Model != nil {
		c.OracleConfig.Model = *o.Model
	}

	if o.Timeout != nil {
		if *o.Timeout <= 0 {
			return fmt.Errorf("timeout must be positive, got %s", *o.Timeout)
		}

		c.OracleConfig.Timeout = *o.Timeout
	}

	if o.Retries != nil {
		if *o.Retries < 0 {
			return fmt.Errorf("retries must not be negative, got %d", *o.Retries)
		}

		c.OracleConfig.Retries = *o.Retries
	}

	return nil
}
