package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config keeps runtime settings for the assistant.
type Config struct {
	TelegramToken    string
	AuthorizedUserID string
	DatabaseURL      string
	OwnerName        string
	Timezone         string

	OpenAI   OpenAIConfig
	Mnotify  MnotifyConfig
	Reminder ReminderConfig
	HTTP     HTTPConfig
	Logger   LoggerConfig

	ShutdownTimeout time.Duration
}

type OpenAIConfig struct {
	APIKey  string
	Model   string
	BaseURL string
	Timeout time.Duration
}

type MnotifyConfig struct {
	APIKey        string
	BaseURL       string
	PhoneNumber   string
	Sender        string
	RecordingPath string
	SMSTimeout    time.Duration
	VoiceTimeout  time.Duration
}

type ReminderConfig struct {
	Lead             time.Duration
	DefaultDueOffset time.Duration
}

type HTTPConfig struct {
	Enabled        bool
	Host           string
	Port           string
	RequestTimeout time.Duration
}

type LoggerConfig struct {
	Level    string
	Encoding string
}

// Load reads configuration from environment variables (optionally .env) with sane defaults.
func Load() (Config, error) {
	_ = godotenv.Load(".env")

	cfg := Config{
		TelegramToken:    firstNonEmpty(os.Getenv("TELEGRAM_BOT_TOKEN"), os.Getenv("TELEGRAM_TOKEN")),
		AuthorizedUserID: strings.TrimSpace(os.Getenv("AUTHORIZED_USER_ID")),
		DatabaseURL:      getString("DATABASE_URL", "personal_assistant.db"),
		OwnerName:        getString("OWNER_NAME", "there"),
		Timezone:         getString("TIMEZONE", "Local"),
		OpenAI: OpenAIConfig{
			APIKey:  strings.TrimSpace(os.Getenv("OPENAI_API_KEY")),
			Model:   getString("OPENAI_MODEL", "gpt-3.5-turbo"),
			BaseURL: strings.TrimSpace(os.Getenv("OPENAI_BASE_URL")),
			Timeout: getDuration("OPENAI_TIMEOUT", 30*time.Second),
		},
		Mnotify: MnotifyConfig{
			APIKey:        strings.TrimSpace(os.Getenv("MNOTIFY_API_KEY")),
			BaseURL:       strings.TrimRight(getString("MNOTIFY_BASE_URL", "https://api.mnotify.com/api"), "/"),
			PhoneNumber:   strings.TrimSpace(os.Getenv("YOUR_PHONE_NUMBER")),
			Sender:        getString("MNOTIFY_SENDER", "Reminder"),
			RecordingPath: getString("VOICE_RECORDING_PATH", "message.wav"),
			SMSTimeout:    getDuration("GATEWAY_SMS_TIMEOUT", 30*time.Second),
			VoiceTimeout:  getDuration("GATEWAY_VOICE_TIMEOUT", 60*time.Second),
		},
		Reminder: ReminderConfig{
			Lead:             getDuration("REMINDER_LEAD", 15*time.Minute),
			DefaultDueOffset: getDuration("DEFAULT_DUE_OFFSET", time.Hour),
		},
		HTTP: HTTPConfig{
			Enabled:        getBool("HTTP_ENABLED", true),
			Host:           getString("SERVER_HOST", "0.0.0.0"),
			Port:           getString("SERVER_PORT", "8000"),
			RequestTimeout: getDuration("HTTP_REQUEST_TIMEOUT", 30*time.Second),
		},
		Logger: LoggerConfig{
			Level:    getString("LOG_LEVEL", "info"),
			Encoding: getString("LOG_ENCODING", "json"),
		},
		ShutdownTimeout: getDuration("SHUTDOWN_TIMEOUT", 15*time.Second),
	}

	if cfg.TelegramToken == "" {
		return cfg, fmt.Errorf("TELEGRAM_BOT_TOKEN is required")
	}
	if cfg.AuthorizedUserID == "" {
		return cfg, fmt.Errorf("AUTHORIZED_USER_ID is required")
	}
	if _, err := cfg.Location(); err != nil {
		return cfg, fmt.Errorf("invalid TIMEZONE %q: %w", cfg.Timezone, err)
	}

	return cfg, nil
}

// Location resolves the configured timezone.
func (c Config) Location() (*time.Location, error) {
	if c.Timezone == "" || strings.EqualFold(c.Timezone, "local") {
		return time.Local, nil
	}
	return time.LoadLocation(c.Timezone)
}

// Address returns the HTTP listen address.
func (c Config) Address() string {
	return fmt.Sprintf("%s:%s", c.HTTP.Host, c.HTTP.Port)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

func getString(key, fallback string) string {
	if val := strings.TrimSpace(os.Getenv(key)); val != "" {
		return val
	}
	return fallback
}

func getBool(key string, fallback bool) bool {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.ParseBool(val); err == nil {
			return parsed
		}
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	if val := strings.TrimSpace(os.Getenv(key)); val != "" {
		if parsed, err := time.ParseDuration(val); err == nil && parsed > 0 {
			return parsed
		}
		if seconds, err := strconv.Atoi(val); err == nil && seconds > 0 {
			return time.Duration(seconds) * time.Second
		}
	}
	return fallback
}
