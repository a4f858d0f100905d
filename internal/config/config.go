// Package config loads settings from, in increasing priority: the embedded
// defaults, .bank-sync.yaml in the working or home directory (or an
// explicit file), and BANKSYNC_* environment variables. A .env file in the
// working directory is loaded into the environment first.
package config

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

//go:embed default.yaml
var defaultYAML []byte

const (
	EnvPrefix = "BANKSYNC"
	FileName  = ".bank-sync"
)

type Config struct {
	Timezone string         `mapstructure:"timezone"`
	Browser  BrowserConfig  `mapstructure:"browser"`
	VPBank   VPBankConfig   `mapstructure:"vpbank"`
	ACB      ACBConfig      `mapstructure:"acb"`
	Facebook FacebookConfig `mapstructure:"facebook"`
	Webhook  WebhookConfig  `mapstructure:"webhook"`
	Captcha  CaptchaConfig  `mapstructure:"captcha"`
	Store    StoreConfig    `mapstructure:"store"`
}

type BrowserConfig struct {
	Headless    bool          `mapstructure:"headless"`
	Bin         string        `mapstructure:"bin"`
	UserDataDir string        `mapstructure:"user_data_dir"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

type VPBankConfig struct {
	BaseURL  string        `mapstructure:"base_url"`
	TokenTTL time.Duration `mapstructure:"token_ttl"`
	PageSize int           `mapstructure:"page_size"`
	Legacy   bool          `mapstructure:"legacy"`
}

type ACBConfig struct {
	LoginURL     string        `mapstructure:"login_url"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
	PageTimeout  time.Duration `mapstructure:"page_timeout"`
	MaxLoads     int           `mapstructure:"max_loads"`
}

type FacebookConfig struct {
	BillingURL string        `mapstructure:"billing_url"`
	KeyDelay   time.Duration `mapstructure:"key_delay"`
}

type WebhookConfig struct {
	URL       string        `mapstructure:"url"`
	Timeout   time.Duration `mapstructure:"timeout"`
	BatchSize int           `mapstructure:"batch_size"`
}

type CaptchaConfig struct {
	URL  string `mapstructure:"url"`
	Mode string `mapstructure:"mode"`
}

type StoreConfig struct {
	Accounts string `mapstructure:"accounts"`
	Secrets  string `mapstructure:"secrets"`
}

// Options control where Load looks.
type Options struct {
	// File is an explicit config file; no search happens when set.
	File string
	// SearchPaths replaces the default "." and $HOME search.
	SearchPaths []string
	// EnvFiles are loaded with godotenv. Missing files are skipped.
	EnvFiles []string
}

// Load reads the layered configuration into a fresh viper instance.
func Load(opts Options) (*Config, error) {
	if err := loadEnvFiles(opts.EnvFiles); err != nil {
		return nil, err
	}

	v := viper.New()
	v.SetConfigType("yaml")
	if err := v.ReadConfig(bytes.NewReader(defaultYAML)); err != nil {
		return nil, fmt.Errorf("read embedded config: %w", err)
	}

	if err := mergeUserConfig(v, opts); err != nil {
		return nil, err
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	cfg.Store.Accounts = expandHome(cfg.Store.Accounts)
	cfg.Store.Secrets = expandHome(cfg.Store.Secrets)
	cfg.Browser.UserDataDir = expandHome(cfg.Browser.UserDataDir)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func loadEnvFiles(files []string) error {
	var present []string
	for _, f := range files {
		if _, err := os.Stat(f); err == nil {
			present = append(present, f)
		}
	}
	if len(present) == 0 {
		return nil
	}
	// godotenv.Load never overrides variables already set.
	if err := godotenv.Load(present...); err != nil {
		return fmt.Errorf("load env files: %w", err)
	}
	return nil
}

func mergeUserConfig(v *viper.Viper, opts Options) error {
	if opts.File != "" {
		v.SetConfigFile(opts.File)
		if err := v.MergeInConfig(); err != nil {
			return fmt.Errorf("read config %s: %w", opts.File, err)
		}
		return nil
	}

	paths := opts.SearchPaths
	if paths == nil {
		paths = []string{"."}
		if home, err := os.UserHomeDir(); err == nil {
			paths = append(paths, home)
		}
	}
	for _, p := range paths {
		v.AddConfigPath(p)
	}
	v.SetConfigName(FileName)

	err := v.MergeInConfig()
	var notFound viper.ConfigFileNotFoundError
	if err != nil && !errors.As(err, &notFound) {
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func (c *Config) Validate() error {
	switch c.Captcha.Mode {
	case "json", "multipart":
	default:
		return fmt.Errorf("captcha.mode must be json or multipart, got %q", c.Captcha.Mode)
	}
	if c.Webhook.BatchSize <= 0 {
		return fmt.Errorf("webhook.batch_size must be positive, got %d", c.Webhook.BatchSize)
	}
	if c.ACB.MaxLoads <= 0 {
		return fmt.Errorf("acb.max_loads must be positive, got %d", c.ACB.MaxLoads)
	}
	return nil
}

// Location resolves the timezone used for date ranges. "ICT" and "+07:00"
// need no tz database.
func (c *Config) Location() (*time.Location, error) {
	switch c.Timezone {
	case "", "ICT", "+07:00":
		return time.FixedZone("ICT", 7*60*60), nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

func expandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}
