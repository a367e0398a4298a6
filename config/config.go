// Package config loads the agent configuration. Defaults are resolved
// once here; nothing downstream looks at raw config keys.
package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"axiapac.com/devicesync/device"
	"axiapac.com/devicesync/infrastructure/devops"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

var ErrInvalid = errors.New("invalid configuration")

const (
	EnvAPIKey      = "DEVICESYNC_API_KEY"
	EnvAPIEndpoint = "DEVICESYNC_API_ENDPOINT"
	EnvConfigPath  = "DEVICESYNC_CONFIG"

	ssmScheme = "ssm://"
)

type Config struct {
	Devices        []device.Descriptor `yaml:"devices" validate:"required,min=1"`
	APIEndpoint    string              `yaml:"api_endpoint" validate:"required,url"`
	APIKey         string              `yaml:"api_key" validate:"required_without=SigningSecret"`
	SigningSecret  string              `yaml:"signing_secret" validate:"omitempty,base64"`
	ClearAfterSync bool                `yaml:"clear_after_sync"`
	Debug          bool                `yaml:"debug"`
	LogFormat      string              `yaml:"log_format" validate:"omitempty,oneof=json console"`

	ConnectTimeout    time.Duration `yaml:"connect_timeout" validate:"min=0"`
	OperationTimeout  time.Duration `yaml:"operation_timeout" validate:"min=0"`
	DisconnectTimeout time.Duration `yaml:"disconnect_timeout" validate:"min=0"`
	RequestTimeout    time.Duration `yaml:"request_timeout" validate:"min=0"`
	RunTimeout        time.Duration `yaml:"run_timeout" validate:"min=0"`
	Concurrency       int           `yaml:"concurrency" validate:"min=0,max=32"`
	PushRate          float64       `yaml:"push_rate" validate:"min=0"`

	Breaker   BreakerConfig   `yaml:"breaker"`
	Driver    DriverConfig    `yaml:"driver"`
	Slack     SlackConfig     `yaml:"slack"`
	Employees EmployeesConfig `yaml:"employees"`
	Web       WebConfig       `yaml:"web"`
}

type BreakerConfig struct {
	FailureThreshold uint32        `yaml:"failure_threshold"`
	OpenTimeout      time.Duration `yaml:"open_timeout" validate:"min=0"`
}

// DriverConfig selects the device client implementation.
type DriverConfig struct {
	Name    string `yaml:"name" validate:"oneof=sim"`
	Fixture string `yaml:"fixture" validate:"required_if=Name sim"`
}

type SlackConfig struct {
	Token          string `yaml:"token"`
	InfoChannelID  string `yaml:"info_channel"`
	ErrorChannelID string `yaml:"error_channel"`
}

func (s SlackConfig) Enabled() bool {
	return s.Token != ""
}

// EmployeesConfig points at the employee list the push workflow reads.
// Source is a local path, an s3://bucket/key URL, or "mysql".
type EmployeesConfig struct {
	Source       string `yaml:"source"`
	DSN          string `yaml:"dsn" validate:"required_if=Source mysql"`
	Table        string `yaml:"table"`
	BranchColumn string `yaml:"branch_column"`
}

type WebConfig struct {
	Addr      string `yaml:"addr"`
	JWTSecret string `yaml:"jwt_secret"`
}

func defaults() *Config {
	return &Config{
		LogFormat:         "console",
		ConnectTimeout:    10 * time.Second,
		OperationTimeout:  time.Minute,
		DisconnectTimeout: 5 * time.Second,
		RequestTimeout:    30 * time.Second,
		Concurrency:       1,
		PushRate:          20,
		Breaker: BreakerConfig{
			FailureThreshold: 3,
			OpenTimeout:      time.Minute,
		},
		Driver: DriverConfig{
			Name:    "sim",
			Fixture: "devices.yaml",
		},
		Employees: EmployeesConfig{
			Table:        "employees",
			BranchColumn: "branch_id",
		},
		Web: WebConfig{
			Addr: ":8090",
		},
	}
}

// Load reads the config from a file path or an ssm://parameter source.
// Every failure wraps ErrInvalid.
func Load(ctx context.Context, source string) (*Config, error) {
	if source == "" {
		source = os.Getenv(EnvConfigPath)
	}
	if source == "" {
		source = "config.yaml"
	}

	var (
		b   []byte
		err error
	)
	if name, ok := strings.CutPrefix(source, ssmScheme); ok {
		b, err = devops.ReadParameter(ctx, name)
	} else {
		b, err = os.ReadFile(source)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %w", ErrInvalid, source, err)
	}

	return Parse(b)
}

// Parse decodes YAML (or JSON) config bytes, applies defaults and
// environment overrides, then validates.
func Parse(b []byte) (*Config, error) {
	cfg := defaults()
	if err := yaml.Unmarshal(b, cfg); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalid, err)
	}

	if v := os.Getenv(EnvAPIKey); v != "" {
		cfg.APIKey = v
	}
	if v := os.Getenv(EnvAPIEndpoint); v != "" {
		cfg.APIEndpoint = v
	}
	if cfg.Debug {
		cfg.LogFormat = "console"
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks run-level fields. Individual devices are not rejected
// here: a device with missing fields fails on its own during the run.
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}

	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, formatFieldError(fe))
	}
	return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(msgs, ", "))
}

func formatFieldError(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required", "required_if":
		return fmt.Sprintf("field '%s' is required", fe.Namespace())
	case "required_without":
		return fmt.Sprintf("field '%s' is required unless %s is set", fe.Namespace(), fe.Param())
	case "url":
		return fmt.Sprintf("field '%s' must be a valid URL", fe.Namespace())
	case "min":
		return fmt.Sprintf("field '%s' must be at least %s", fe.Namespace(), fe.Param())
	case "max":
		return fmt.Sprintf("field '%s' must be at most %s", fe.Namespace(), fe.Param())
	case "oneof":
		return fmt.Sprintf("field '%s' must be one of [%s]", fe.Namespace(), fe.Param())
	}
	return fmt.Sprintf("field '%s' failed validation for '%s'", fe.Namespace(), fe.Tag())
}

// DeviceAt returns the device at index, for the push CLI's --device flag.
func (c *Config) DeviceAt(index int) (device.Descriptor, error) {
	if index < 0 || index >= len(c.Devices) {
		return device.Descriptor{}, fmt.Errorf("device index %d out of range, %d device(s) configured", index, len(c.Devices))
	}
	return c.Devices[index], nil
}
