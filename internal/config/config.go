package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"

	"github.com/peoplepulse/pulse/internal/timesheet"
)

type Config struct {
	API           APIConfig       `toml:"api"`
	Resource      ResourceConfig  `toml:"resource"`
	Timesheet     TimesheetConfig `toml:"timesheet"`
	Calendar      CalendarConfig  `toml:"calendar"`
	Notifications NotifyConfig    `toml:"notifications"`
	Log           LogConfig       `toml:"log"`
}

type APIConfig struct {
	BaseURL         string `toml:"base_url" validate:"required,url"`
	Token           string `toml:"token"`
	CacheTTLMinutes int    `toml:"cache_ttl_minutes" validate:"gte=0"`
}

type ResourceConfig struct {
	ID                int64 `toml:"id" validate:"gte=0"`
	PMID              int64 `toml:"pm_id" validate:"gte=0"`
	RMID              int64 `toml:"rm_id" validate:"gte=0"`
	WeekendPermission bool  `toml:"weekend_permission"`
}

type TimesheetConfig struct {
	DefaultStart string  `toml:"default_start" validate:"clock"`
	DefaultEnd   string  `toml:"default_end" validate:"clock"`
	DailyLimit   float64 `toml:"daily_limit" validate:"gt=0,lte=24"`
}

type CalendarConfig struct {
	Enabled bool   `toml:"enabled"`
	Source  string `toml:"source" validate:"required_if=Enabled true"` // ICS URL or file path
}

type NotifyConfig struct {
	Enabled              bool   `toml:"enabled"`
	ReminderDay          int    `toml:"reminder_day" validate:"gte=0,lte=6"` // time.Weekday, 5 is Friday
	ReminderTime         string `toml:"reminder_time" validate:"clock"`
	CheckIntervalMinutes int    `toml:"check_interval_minutes" validate:"gte=1"`
}

type LogConfig struct {
	Level string `toml:"level" validate:"oneof=debug info warn error"`
	File  string `toml:"file"` // defaults to pulse.log in the config dir
}

func DefaultConfig() Config {
	return Config{
		API: APIConfig{
			BaseURL:         "http://localhost:5000/api",
			CacheTTLMinutes: 30,
		},
		Timesheet: TimesheetConfig{
			DefaultStart: timesheet.DefaultRange.Start,
			DefaultEnd:   timesheet.DefaultRange.End,
			DailyLimit:   8,
		},
		Notifications: NotifyConfig{
			Enabled:              true,
			ReminderDay:          int(time.Friday),
			ReminderTime:         "15:00",
			CheckIntervalMinutes: 15,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Context is the resource the timesheet is filed for, as configured.
func (c *Config) Context() timesheet.ResourceContext {
	return timesheet.ResourceContext{
		ResourceID:        c.Resource.ID,
		PMID:              c.Resource.PMID,
		RMID:              c.Resource.RMID,
		WeekendPermission: c.Resource.WeekendPermission,
	}
}

func (c *Config) DefaultRange() timesheet.TimeRange {
	return timesheet.TimeRange{Start: c.Timesheet.DefaultStart, End: c.Timesheet.DefaultEnd}
}

func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.API.CacheTTLMinutes) * time.Minute
}

func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("finding home directory: %w", err)
	}
	return filepath.Join(home, ".config", "pulse"), nil
}

func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// LogPath resolves the log file, falling back to pulse.log in the config dir.
func (c *Config) LogPath() (string, error) {
	if c.Log.File != "" {
		return c.Log.File, nil
	}
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "pulse.log"), nil
}

func Load() (*Config, error) {
	path, err := ConfigPath()
	if err != nil {
		return nil, err
	}
	if err := loadDotEnv(".env", filepath.Join(filepath.Dir(path), ".env")); err != nil {
		return nil, err
	}
	return LoadFrom(path)
}

// LoadFrom reads the TOML file at path on top of the defaults, applies
// environment overrides and validates the result. A missing file is not an error.
func LoadFrom(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	if len(data) > 0 {
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := applyEnvOverrides(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// loadDotEnv loads each file that exists. Variables already set in the
// environment win over the file.
func loadDotEnv(paths ...string) error {
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return fmt.Errorf("loading %s: %w", p, err)
		}
	}
	return nil
}

func applyEnvOverrides(cfg *Config) error {
	if v := os.Getenv("PEOPLEPULSE_API_URL"); v != "" {
		cfg.API.BaseURL = v
	}
	if v := os.Getenv("PEOPLEPULSE_TOKEN"); v != "" {
		cfg.API.Token = v
	}
	ids := []struct {
		env string
		dst *int64
	}{
		{"PEOPLEPULSE_RESOURCE_ID", &cfg.Resource.ID},
		{"PEOPLEPULSE_PM_ID", &cfg.Resource.PMID},
		{"PEOPLEPULSE_RM_ID", &cfg.Resource.RMID},
	}
	for _, id := range ids {
		v := os.Getenv(id.env)
		if v == "" {
			continue
		}
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("parsing %s: %w", id.env, err)
		}
		*id.dst = n
	}
	return nil
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterValidation("clock", func(fl validator.FieldLevel) bool {
		_, err := timesheet.ParseClock(fl.Field().String())
		return err == nil
	})
	return v
}

// Validate checks the config and reports every failing field at once.
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("validating config: %w", err)
	}

	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		field := strings.TrimPrefix(fe.Namespace(), "Config.")
		switch fe.Tag() {
		case "required", "required_if":
			msgs = append(msgs, fmt.Sprintf("%s is required", field))
		case "url":
			msgs = append(msgs, fmt.Sprintf("%s must be a valid URL", field))
		case "clock":
			msgs = append(msgs, fmt.Sprintf("%s must be HH:mm", field))
		case "oneof":
			msgs = append(msgs, fmt.Sprintf("%s must be one of: %s", field, fe.Param()))
		default:
			msgs = append(msgs, fmt.Sprintf("%s failed %s=%s", field, fe.Tag(), fe.Param()))
		}
	}
	return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
}

func EnsureConfigDir() error {
	dir, err := ConfigDir()
	if err != nil {
		return err
	}
	return os.MkdirAll(dir, 0755)
}

// WriteDefault writes the default config to path unless a file is already there.
func WriteDefault(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating config dir: %w", err)
	}
	out, err := toml.Marshal(DefaultConfig())
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	return os.WriteFile(path, out, 0600)
}

// SaveResource persists the resource section to the config file at path
// using a read-modify-write approach to preserve other settings.
func SaveResource(path string, rc timesheet.ResourceContext) error {
	cfg := make(map[string]any)

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("reading config: %w", err)
	}
	if len(data) > 0 {
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return fmt.Errorf("parsing config: %w", err)
		}
	}

	res, ok := cfg["resource"].(map[string]any)
	if !ok {
		res = make(map[string]any)
	}
	res["id"] = rc.ResourceID
	res["pm_id"] = rc.PMID
	res["rm_id"] = rc.RMID
	res["weekend_permission"] = rc.WeekendPermission
	cfg["resource"] = res

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating config dir: %w", err)
	}
	out, err := toml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	return os.WriteFile(path, out, 0600)
}
