package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"ImpactWatcher/internal/domain"
)

const (
	configPathEnv = "IMPACT_WATCHER_CONFIG"

	targetHandleEnv      = "TARGET_HANDLE"
	truthBaseURLEnv      = "TRUTHSOCIAL_BASE_URL"
	truthUsernameEnv     = "TRUTHSOCIAL_USERNAME"
	truthPasswordEnv     = "TRUTHSOCIAL_PASSWORD"
	truthTokenEnv        = "TRUTHSOCIAL_TOKEN"
	truthClientIDEnv     = "TRUTHSOCIAL_CLIENT_ID"
	truthClientSecretEnv = "TRUTHSOCIAL_CLIENT_SECRET"
	classifierBackendEnv = "CLASSIFIER_BACKEND"
	openAIKeyEnv         = "OPENAI_API_KEY"
	openAIModelEnv       = "OPENAI_MODEL"
	openAIEndpointEnv    = "OPENAI_ENDPOINT"
	classifierURLEnv     = "CLASSIFIER_URL"
	classifierKeyEnv     = "CLASSIFIER_API_KEY"
	alertDriverEnv       = "ALERT_DRIVER"
	ntfyServerEnv        = "NTFY_SERVER"
	ntfyTopicEnv         = "NTFY_TOPIC"
	ntfyTokenEnv         = "NTFY_TOKEN"
	telegramTokenEnv     = "TELEGRAM_BOT_TOKEN"
	telegramChatIDEnv    = "TELEGRAM_CHAT_ID"
	storageDriverEnv     = "STORAGE_DRIVER"
	storageFileEnv       = "STORAGE_FILE"
	databaseDSNEnv       = "DATABASE_DSN"
	timezoneEnv          = "TIMEZONE"
	startHourEnv         = "POLL_START_HOUR"
	endHourEnv           = "POLL_END_HOUR"
	intervalEnv          = "POLL_INTERVAL_SECONDS"
	metricsAddrEnv       = "METRICS_ADDR"
	logLevelEnv          = "LOG_LEVEL"
)

// Backends and drivers accepted by the wiring layer.
const (
	BackendOpenAI  = "openai"
	BackendHTTP    = "http"
	DriverNtfy     = "ntfy"
	DriverTelegram = "telegram"
	DriverLog      = "log"
	StorageFile    = "file"
	StorageSQLite  = "sqlite"
	StoragePG      = "postgres"
)

// EnvFiles are read, when present, before the process environment is consulted.
// Earlier files win; real environment variables win over all of them.
var EnvFiles = []string{".env.local", ".env"}

// Config holds high-level settings required across the application.
type Config struct {
	TruthSocial TruthSocialConfig `yaml:"truthsocial"`
	Classifier  ClassifierConfig  `yaml:"classifier"`
	Alerts      AlertConfig       `yaml:"alerts"`
	Storage     StorageConfig     `yaml:"storage"`
	Schedule    ScheduleConfig    `yaml:"schedule"`
	Metrics     MetricsConfig     `yaml:"metrics"`
	Logging     LoggingConfig     `yaml:"logging"`

	// Fallbacks lists settings replaced by defaults while loading.
	Fallbacks []string `yaml:"-"`
}

// TruthSocialConfig describes the watched account and how to authenticate.
type TruthSocialConfig struct {
	Handle       string        `yaml:"handle"`
	BaseURL      string        `yaml:"baseUrl"`
	Username     string        `yaml:"username"`
	Password     string        `yaml:"password"`
	Token        string        `yaml:"token"`
	ClientID     string        `yaml:"clientId"`
	ClientSecret string        `yaml:"clientSecret"`
	PageLimit    int           `yaml:"pageLimit"`
	MaxPages     int           `yaml:"maxPages"`
	Timeout      time.Duration `yaml:"timeout"`
}

// ClassifierConfig selects and configures the classification backend.
type ClassifierConfig struct {
	Backend string        `yaml:"backend"`
	OpenAI  OpenAIConfig  `yaml:"openai"`
	Service ServiceConfig `yaml:"service"`
}

// OpenAIConfig defines how to contact an OpenAI-compatible chat completion API.
type OpenAIConfig struct {
	Endpoint    string        `yaml:"endpoint"`
	Model       string        `yaml:"model"`
	APIKey      string        `yaml:"apiKey"`
	Temperature float64       `yaml:"temperature"`
	MaxTokens   int           `yaml:"maxTokens"`
	Timeout     time.Duration `yaml:"timeout"`
}

// ServiceConfig describes a plain HTTP classification service.
type ServiceConfig struct {
	URL     string        `yaml:"url"`
	APIKey  string        `yaml:"apiKey"`
	Timeout time.Duration `yaml:"timeout"`
}

// AlertConfig encapsulates outbound channels.
type AlertConfig struct {
	Driver   string         `yaml:"driver"`
	Ntfy     NtfyConfig     `yaml:"ntfy"`
	Telegram TelegramConfig `yaml:"telegram"`
}

// NtfyConfig points at an ntfy server topic.
type NtfyConfig struct {
	Server  string        `yaml:"server"`
	Topic   string        `yaml:"topic"`
	Token   string        `yaml:"token"`
	Timeout time.Duration `yaml:"timeout"`
}

// TelegramConfig wires all data required to send messages.
type TelegramConfig struct {
	BotToken string `yaml:"botToken"`
	ChatID   string `yaml:"chatId"`
}

// StorageConfig selects where the cursor lives.
type StorageConfig struct {
	Driver string `yaml:"driver"`
	File   string `yaml:"file"`
	DSN    string `yaml:"dsn"`
	Key    string `yaml:"key"`
}

// ScheduleConfig defines when passes may run. Hours and interval are kept
// raw so that malformed values can degrade to defaults instead of failing the load.
type ScheduleConfig struct {
	Timezone        string  `yaml:"timezone"`
	StartHour       Setting `yaml:"startHour"`
	EndHour         Setting `yaml:"endHour"`
	IntervalSeconds Setting `yaml:"intervalSeconds"`

	window domain.PollingWindow
}

// Window is the resolved polling window; valid only after Load.
func (s ScheduleConfig) Window() domain.PollingWindow {
	return s.window
}

// MetricsConfig enables the monitoring listener when Addr is set.
type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

// LoggingConfig controls the slog level.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// Setting is a scalar kept verbatim from YAML or the environment.
type Setting string

// UnmarshalYAML accepts any scalar.
func (s *Setting) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: expected a scalar", value.Line)
	}
	*s = Setting(value.Value)
	return nil
}

// Load reads env files, YAML configuration (if present) and environment overrides,
// then validates the result. Validation problems are reported together.
func Load() (Config, error) {
	LoadEnvFiles(EnvFiles...)

	cfg := defaultConfig()
	if path := os.Getenv(configPathEnv); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	cfg.applyEnvOverrides()
	cfg.normalize()

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	if err := cfg.resolveWindow(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadEnvFiles applies the given dotenv files that exist and returns the loaded ones.
func LoadEnvFiles(files ...string) []string {
	loaded := make([]string, 0, len(files))
	for _, file := range files {
		if _, err := os.Stat(file); err != nil {
			continue
		}
		if err := godotenv.Load(file); err != nil {
			continue
		}
		loaded = append(loaded, file)
	}
	return loaded
}

// Validate reports every missing or inconsistent required setting.
func (c Config) Validate() error {
	var errs []error

	if c.TruthSocial.Handle == "" {
		errs = append(errs, missing(targetHandleEnv))
	}
	if c.TruthSocial.BaseURL == "" {
		errs = append(errs, missing(truthBaseURLEnv))
	}
	if c.TruthSocial.Token == "" {
		if c.TruthSocial.Username == "" {
			errs = append(errs, missing(truthUsernameEnv))
		}
		if c.TruthSocial.Password == "" {
			errs = append(errs, missing(truthPasswordEnv))
		}
	}

	switch c.Classifier.Backend {
	case BackendOpenAI:
		if c.Classifier.OpenAI.APIKey == "" {
			errs = append(errs, missing(openAIKeyEnv))
		}
		if c.Classifier.OpenAI.Endpoint == "" {
			errs = append(errs, missing(openAIEndpointEnv))
		}
	case BackendHTTP:
		if c.Classifier.Service.URL == "" {
			errs = append(errs, missing(classifierURLEnv))
		}
	default:
		errs = append(errs, fmt.Errorf("%s: unsupported classifier backend %q", classifierBackendEnv, c.Classifier.Backend))
	}

	switch c.Alerts.Driver {
	case DriverNtfy:
		if c.Alerts.Ntfy.Topic == "" {
			errs = append(errs, missing(ntfyTopicEnv))
		}
		if c.Alerts.Ntfy.Server == "" {
			errs = append(errs, missing(ntfyServerEnv))
		}
	case DriverTelegram:
		if c.Alerts.Telegram.BotToken == "" {
			errs = append(errs, missing(telegramTokenEnv))
		}
		if c.Alerts.Telegram.ChatID == "" {
			errs = append(errs, missing(telegramChatIDEnv))
		} else if _, err := strconv.ParseInt(c.Alerts.Telegram.ChatID, 10, 64); err != nil {
			errs = append(errs, fmt.Errorf("%s: chat id must be numeric: %w", telegramChatIDEnv, err))
		}
	case DriverLog:
	default:
		errs = append(errs, fmt.Errorf("%s: unsupported alert driver %q", alertDriverEnv, c.Alerts.Driver))
	}

	switch c.Storage.Driver {
	case StorageFile:
		if c.Storage.File == "" {
			errs = append(errs, missing(storageFileEnv))
		}
	case StorageSQLite, StoragePG:
		if c.Storage.DSN == "" {
			errs = append(errs, missing(databaseDSNEnv))
		}
	default:
		errs = append(errs, fmt.Errorf("%s: unsupported storage driver %q", storageDriverEnv, c.Storage.Driver))
	}

	if c.Schedule.Timezone == "" {
		errs = append(errs, missing(timezoneEnv))
	} else if _, err := time.LoadLocation(c.Schedule.Timezone); err != nil {
		errs = append(errs, fmt.Errorf("%s: %w", timezoneEnv, err))
	}

	return errors.Join(errs...)
}

func missing(key string) error {
	return fmt.Errorf("%s is required", key)
}

// resolveWindow turns the raw schedule into a PollingWindow, degrading bad values to defaults.
func (c *Config) resolveWindow() error {
	loc, err := time.LoadLocation(c.Schedule.Timezone)
	if err != nil {
		return fmt.Errorf("%s: %w", timezoneEnv, err)
	}

	start := c.intSetting(startHourEnv, c.Schedule.StartHour, domain.DefaultStartHour)
	end := c.intSetting(endHourEnv, c.Schedule.EndHour, domain.DefaultEndHour)
	interval := c.intSetting(intervalEnv, c.Schedule.IntervalSeconds, int(domain.DefaultInterval/time.Second))

	window := domain.PollingWindow{
		StartHour: start,
		EndHour:   end,
		Interval:  time.Duration(interval) * time.Second,
		Location:  loc,
	}
	if err := window.ValidateBounds(); err != nil {
		c.fallback("polling window %02d-%02d invalid (%v), using %02d-%02d",
			start, end, err, domain.DefaultStartHour, domain.DefaultEndHour)
		window.StartHour = domain.DefaultStartHour
		window.EndHour = domain.DefaultEndHour
	}
	if window.Interval <= 0 {
		c.fallback("%s=%d must be positive, using %s", intervalEnv, interval, domain.DefaultInterval)
		window.Interval = domain.DefaultInterval
	}

	c.Schedule.window = window
	return nil
}

func (c *Config) intSetting(key string, raw Setting, def int) int {
	value := strings.TrimSpace(string(raw))
	if value == "" {
		return def
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		c.fallback("%s=%q is not an integer, using %d", key, value, def)
		return def
	}
	return n
}

func (c *Config) fallback(format string, args ...any) {
	c.Fallbacks = append(c.Fallbacks, fmt.Sprintf(format, args...))
}

func (c *Config) applyEnvOverrides() {
	override := func(dst *string, key string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}

	override(&c.TruthSocial.Handle, targetHandleEnv)
	override(&c.TruthSocial.BaseURL, truthBaseURLEnv)
	override(&c.TruthSocial.Username, truthUsernameEnv)
	override(&c.TruthSocial.Password, truthPasswordEnv)
	override(&c.TruthSocial.Token, truthTokenEnv)
	override(&c.TruthSocial.ClientID, truthClientIDEnv)
	override(&c.TruthSocial.ClientSecret, truthClientSecretEnv)

	override(&c.Classifier.Backend, classifierBackendEnv)
	override(&c.Classifier.OpenAI.APIKey, openAIKeyEnv)
	override(&c.Classifier.OpenAI.Model, openAIModelEnv)
	override(&c.Classifier.OpenAI.Endpoint, openAIEndpointEnv)
	override(&c.Classifier.Service.URL, classifierURLEnv)
	override(&c.Classifier.Service.APIKey, classifierKeyEnv)

	override(&c.Alerts.Driver, alertDriverEnv)
	override(&c.Alerts.Ntfy.Server, ntfyServerEnv)
	override(&c.Alerts.Ntfy.Topic, ntfyTopicEnv)
	override(&c.Alerts.Ntfy.Token, ntfyTokenEnv)
	override(&c.Alerts.Telegram.BotToken, telegramTokenEnv)
	override(&c.Alerts.Telegram.ChatID, telegramChatIDEnv)

	override(&c.Storage.Driver, storageDriverEnv)
	override(&c.Storage.File, storageFileEnv)
	override(&c.Storage.DSN, databaseDSNEnv)

	override(&c.Schedule.Timezone, timezoneEnv)
	override((*string)(&c.Schedule.StartHour), startHourEnv)
	override((*string)(&c.Schedule.EndHour), endHourEnv)
	override((*string)(&c.Schedule.IntervalSeconds), intervalEnv)

	override(&c.Metrics.Addr, metricsAddrEnv)
	override(&c.Logging.Level, logLevelEnv)
}

func (c *Config) normalize() {
	c.TruthSocial.Handle = strings.TrimPrefix(strings.TrimSpace(c.TruthSocial.Handle), "@")
	c.TruthSocial.BaseURL = strings.TrimRight(strings.TrimSpace(c.TruthSocial.BaseURL), "/")
	c.Classifier.Backend = strings.ToLower(strings.TrimSpace(c.Classifier.Backend))
	c.Classifier.Service.URL = strings.TrimRight(strings.TrimSpace(c.Classifier.Service.URL), "/")
	c.Alerts.Driver = strings.ToLower(strings.TrimSpace(c.Alerts.Driver))
	c.Alerts.Ntfy.Server = strings.TrimRight(strings.TrimSpace(c.Alerts.Ntfy.Server), "/")
	c.Storage.Driver = strings.ToLower(strings.TrimSpace(c.Storage.Driver))
	c.Schedule.Timezone = strings.TrimSpace(c.Schedule.Timezone)
}

func defaultConfig() Config {
	return Config{
		TruthSocial: TruthSocialConfig{
			BaseURL:   "https://truthsocial.com",
			PageLimit: 40,
			MaxPages:  10,
			Timeout:   30 * time.Second,
		},
		Classifier: ClassifierConfig{
			Backend: BackendOpenAI,
			OpenAI: OpenAIConfig{
				Endpoint:    "https://api.openai.com/v1/chat/completions",
				Model:       "gpt-4o-mini",
				Temperature: 1.0,
				MaxTokens:   150,
				Timeout:     30 * time.Second,
			},
			Service: ServiceConfig{Timeout: 15 * time.Second},
		},
		Alerts: AlertConfig{
			Driver: DriverNtfy,
			Ntfy:   NtfyConfig{Server: "https://ntfy.sh", Timeout: 10 * time.Second},
		},
		Storage: StorageConfig{
			Driver: StorageFile,
			File:   "last_processed_id.txt",
		},
		Logging: LoggingConfig{Level: "info"},
	}
}
