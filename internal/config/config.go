package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"

	"github.com/janekbaraniewski/quotaprobe/internal/core"
)

const (
	DefaultHTTPTimeout  = 20 * time.Second
	MinHTTPTimeout      = 15 * time.Second
	MaxHTTPTimeout      = 30 * time.Second
	DefaultPTYTimeout   = 20 * time.Second
	DefaultFetchTimeout = 90 * time.Second
)

type ProviderSettings struct {
	Enabled        *bool  `mapstructure:"enabled"`
	Source         string `mapstructure:"source"`
	WebExtras      bool   `mapstructure:"web_extras"`
	WorkOSClientID string `mapstructure:"workos_client_id"`
	Binary         string `mapstructure:"binary"`
}

func (p ProviderSettings) IsEnabled() bool {
	return p.Enabled == nil || *p.Enabled
}

// SourceOverride is the explicitly requested source, SourceAuto when unset.
func (p ProviderSettings) SourceOverride() core.Source {
	src, _ := core.ParseSource(strings.ToLower(strings.TrimSpace(p.Source)))
	return src
}

type Settings struct {
	Debug        bool                        `mapstructure:"debug"`
	LogLevel     string                      `mapstructure:"log_level"`
	LogFormat    string                      `mapstructure:"log_format"`
	HTTPTimeout  time.Duration               `mapstructure:"http_timeout"`
	PTYTimeout   time.Duration               `mapstructure:"pty_timeout"`
	FetchTimeout time.Duration               `mapstructure:"fetch_timeout"`
	Concurrency  int                         `mapstructure:"concurrency"`
	Providers    map[string]ProviderSettings `mapstructure:"providers"`
	Accounts     []core.AccountConfig        `mapstructure:"accounts"`
}

func DefaultSettings() Settings {
	return Settings{
		LogLevel:     "warn",
		LogFormat:    "console",
		HTTPTimeout:  DefaultHTTPTimeout,
		PTYTimeout:   DefaultPTYTimeout,
		FetchTimeout: DefaultFetchTimeout,
		Concurrency:  4,
		Providers:    map[string]ProviderSettings{},
	}
}

// Provider returns the settings block for id; absent blocks are zero-valued
// and therefore enabled with automatic source selection.
func (s Settings) Provider(id string) ProviderSettings {
	return s.Providers[id]
}

func ConfigDir() string {
	if dir := os.Getenv("QUOTAPROBE_CONFIG_DIR"); dir != "" {
		return dir
	}
	if runtime.GOOS == "windows" {
		return filepath.Join(os.Getenv("APPDATA"), "quotaprobe")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "quotaprobe")
}

func SettingsPath() string {
	return filepath.Join(ConfigDir(), "settings.yaml")
}

func OverridesPath() string {
	return filepath.Join(ConfigDir(), "overrides.conf")
}

func Load() (Settings, error) {
	return LoadFrom(SettingsPath())
}

// LoadFrom reads settings from path, layered over defaults and under
// QUOTAPROBE_* environment variables. A missing file yields the defaults.
func LoadFrom(path string) (Settings, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("QUOTAPROBE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
				return DefaultSettings(), fmt.Errorf("reading settings %s: %w", path, err)
			}
		}
	}

	settings := DefaultSettings()
	if err := v.Unmarshal(&settings); err != nil {
		return DefaultSettings(), fmt.Errorf("parsing settings %s: %w", path, err)
	}
	if err := normalize(&settings); err != nil {
		return DefaultSettings(), fmt.Errorf("invalid settings %s: %w", path, err)
	}
	return settings, nil
}

func setDefaults(v *viper.Viper) {
	d := DefaultSettings()
	v.SetDefault("debug", d.Debug)
	v.SetDefault("log_level", d.LogLevel)
	v.SetDefault("log_format", d.LogFormat)
	v.SetDefault("http_timeout", d.HTTPTimeout.String())
	v.SetDefault("pty_timeout", d.PTYTimeout.String())
	v.SetDefault("fetch_timeout", d.FetchTimeout.String())
	v.SetDefault("concurrency", d.Concurrency)
}

func normalize(s *Settings) error {
	if _, err := zerolog.ParseLevel(strings.ToLower(s.LogLevel)); err != nil {
		return fmt.Errorf("log_level %q: %w", s.LogLevel, err)
	}
	switch s.LogFormat {
	case "console", "text", "json":
	default:
		return fmt.Errorf("log_format %q: want console or json", s.LogFormat)
	}

	s.HTTPTimeout = clampDuration(s.HTTPTimeout, MinHTTPTimeout, MaxHTTPTimeout, DefaultHTTPTimeout)
	if s.PTYTimeout <= 0 {
		s.PTYTimeout = DefaultPTYTimeout
	}
	if s.FetchTimeout <= 0 {
		s.FetchTimeout = DefaultFetchTimeout
	}
	if s.Concurrency <= 0 {
		s.Concurrency = 1
	}
	if s.Providers == nil {
		s.Providers = map[string]ProviderSettings{}
	}

	for id, p := range s.Providers {
		if _, ok := core.ParseSource(strings.ToLower(strings.TrimSpace(p.Source))); !ok {
			return fmt.Errorf("providers.%s.source %q: unknown source", id, p.Source)
		}
	}
	for i, acct := range s.Accounts {
		if acct.Provider == "" {
			return fmt.Errorf("accounts[%d]: provider is required", i)
		}
		if acct.ID == "" {
			s.Accounts[i].ID = acct.Provider
		}
	}
	return nil
}

func clampDuration(d, lo, hi, def time.Duration) time.Duration {
	switch {
	case d <= 0:
		return def
	case d < lo:
		return lo
	case d > hi:
		return hi
	}
	return d
}
