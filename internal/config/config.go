package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds runtime configuration. Credentials are read from the environment,
// an optional .env file, or config.json in the config dir; never committed.
type Config struct {
	// ConfigDir is where config.json and pdtracker.db live (e.g. ~/.pd_tracker or /data in Docker).
	ConfigDir string `json:"-"` // set at runtime
	// DBPath is the path to the SQLite store. Set via PDTRACKER_DB_PATH.
	DBPath   string `json:"db_path"`
	LogLevel string `json:"log_level"`
	// LogEnv "development" switches to human-readable logs.
	LogEnv string `json:"log_env"`

	// Scheduling policy.
	CheckInterval  Duration `json:"check_interval"`
	ReminderLead   Duration `json:"reminder_lead"`
	FollowupWindow Duration `json:"followup_window"`
	DoseTolerance  Duration `json:"dose_tolerance"`
	WakeWindow     Duration `json:"wake_window"`
	MidDayOffset   Duration `json:"midday_offset"`

	// Twilio SMS
	TwilioAccountSID  string `json:"twilio_account_sid"`
	TwilioAuthToken   string `json:"twilio_auth_token"`
	TwilioPhoneNumber string `json:"twilio_phone_number"`
	PatientPhone      string `json:"patient_phone"`

	// SMTP email
	EmailAddress  string `json:"email_address"`
	EmailPassword string `json:"email_password"`
	SMTPHost      string `json:"smtp_host"`
	SMTPPort      int    `json:"smtp_port"`
	NotifyEmail   string `json:"notify_email"`

	WebhookURL string `json:"webhook_url"`
	// StatusAddr is the listen address of the status server; empty disables it.
	StatusAddr string `json:"status_addr"`
	// RedisURL enables the cross-process delivery lock when set.
	RedisURL string `json:"redis_url"`
	// Console adds the console channel (development).
	Console bool `json:"console"`
}

// Duration unmarshals from a number of seconds or a Go duration string.
type Duration time.Duration

func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d *Duration) UnmarshalJSON(b []byte) error {
	var n float64
	if err := json.Unmarshal(b, &n); err == nil {
		*d = Duration(time.Duration(n * float64(time.Second)))
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("duration must be seconds or a string: %w", err)
	}
	v, err := parseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// DefaultConfigDir returns the default config directory (project-local .pd_tracker if present, else ~/.pd_tracker).
func DefaultConfigDir() string {
	cwd, _ := os.Getwd()
	local := filepath.Join(cwd, ".pd_tracker")
	if info, err := os.Stat(local); err == nil && info.IsDir() {
		return local
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".pd_tracker")
}

// New builds config from env and optional config dir. ConfigDir can be empty to use default.
// A .env file in the working directory is loaded first; it never overrides variables
// already set in the process environment.
func New(configDir string) (*Config, error) {
	_ = godotenv.Load()

	if configDir == "" {
		if d := os.Getenv("PDTRACKER_CONFIG_DIR"); d != "" {
			configDir = d
		} else {
			configDir = DefaultConfigDir()
		}
	}
	cfg := &Config{
		ConfigDir:         configDir,
		DBPath:            getEnv("PDTRACKER_DB_PATH", filepath.Join(configDir, "pdtracker.db")),
		LogLevel:          getEnv("PDTRACKER_LOG_LEVEL", "info"),
		LogEnv:            getEnv("PDTRACKER_LOG_ENV", "production"),
		CheckInterval:     getDuration("PDTRACKER_CHECK_INTERVAL", 60*time.Second),
		ReminderLead:      getDuration("PDTRACKER_REMINDER_LEAD", 5*time.Minute),
		FollowupWindow:    getDuration("PDTRACKER_FOLLOWUP_WINDOW", 15*time.Minute),
		DoseTolerance:     getDuration("PDTRACKER_DOSE_TOLERANCE", 30*time.Minute),
		WakeWindow:        getDuration("PDTRACKER_WAKE_WINDOW", 18*time.Hour),
		MidDayOffset:      getDuration("PDTRACKER_MIDDAY_OFFSET", 6*time.Hour),
		TwilioAccountSID:  os.Getenv("TWILIO_ACCOUNT_SID"),
		TwilioAuthToken:   os.Getenv("TWILIO_AUTH_TOKEN"),
		TwilioPhoneNumber: os.Getenv("TWILIO_PHONE_NUMBER"),
		PatientPhone:      os.Getenv("PD_TRACKER_PHONE"),
		EmailAddress:      os.Getenv("PD_TRACKER_EMAIL"),
		EmailPassword:     os.Getenv("PD_TRACKER_EMAIL_PASSWORD"),
		SMTPHost:          getEnv("PD_TRACKER_SMTP_HOST", "smtp.gmail.com"),
		SMTPPort:          getInt("PD_TRACKER_SMTP_PORT", 587),
		NotifyEmail:       os.Getenv("PD_TRACKER_NOTIFY_EMAIL"),
		WebhookURL:        os.Getenv("PDTRACKER_WEBHOOK_URL"),
		StatusAddr:        os.Getenv("PDTRACKER_STATUS_ADDR"),
		RedisURL:          os.Getenv("REDIS_URL"),
		Console:           os.Getenv("PDTRACKER_CONSOLE") == "1",
	}

	// Priority: Env < Config File.
	// Keys present in config.json overwrite struct fields; missing keys keep the env value.
	configPath := filepath.Join(configDir, "config.json")
	if data, err := os.ReadFile(configPath); err == nil {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", configPath, err)
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.CheckInterval <= 0 {
		return fmt.Errorf("check_interval must be positive, got %s", c.CheckInterval.Std())
	}
	if c.ReminderLead < 0 || c.FollowupWindow < 0 || c.DoseTolerance < 0 || c.MidDayOffset < 0 {
		return fmt.Errorf("scheduling durations must not be negative")
	}
	if c.WakeWindow <= 0 {
		return fmt.Errorf("wake_window must be positive, got %s", c.WakeWindow.Std())
	}
	return nil
}

// EnsureDir creates the config dir if it does not exist.
func (c *Config) EnsureDir() error {
	return os.MkdirAll(c.ConfigDir, 0o700)
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
		fmt.Fprintf(os.Stderr, "invalid integer for %s=%q, using default %d\n", key, v, def)
	}
	return def
}

func getDuration(key string, def time.Duration) Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := parseDuration(v); err == nil {
			return Duration(d)
		}
		fmt.Fprintf(os.Stderr, "invalid duration for %s=%q, using default %s\n", key, v, def)
	}
	return Duration(def)
}

// parseDuration accepts a whole number of seconds or a Go duration string.
func parseDuration(v string) (time.Duration, error) {
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second, nil
	}
	return time.ParseDuration(v)
}
