package config

import (
	"fmt"
	"slices"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix is stripped from environment variable names before they are
// mapped onto config keys, e.g. RESIZER_DESTINATION_BUCKET -> destination_bucket.
const EnvPrefix = "RESIZER_"

// Config is read once at process start and never modified afterwards.
type Config struct {
	DestinationBucket string `koanf:"destination_bucket" validate:"required"`
	DestinationPrefix string `koanf:"destination_prefix" validate:"required"`
	TopicARN          string `koanf:"topic_arn"`
	Quality           int    `koanf:"quality" validate:"min=0,max=100"`
	Targets           string `koanf:"targets" validate:"required"`

	CloudWatchLogGroup  string `koanf:"cloudwatch_log_group"`
	CloudWatchLogStream string `koanf:"cloudwatch_log_stream"`

	AWSEndpoint string `koanf:"aws_endpoint"`

	SentryDSN         string `koanf:"sentry_dsn"`
	SentryEnvironment string `koanf:"sentry_environment"`

	LogLevel string `koanf:"log_level" validate:"oneof=debug info warn error"`
	// LogJSON switches CLI runs to JSON output. Lambda always logs JSON.
	LogJSON bool `koanf:"log_json"`
}

func Default() Config {
	return Config{
		DestinationPrefix: "resized/",
		Quality:           75,
		Targets:           "sns",
		LogLevel:          "info",
	}
}

// TargetList returns the configured notification target names.
func (c Config) TargetList() []string {
	var out []string
	for _, t := range strings.Split(c.Targets, ",") {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func (c Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return err
	}
	if slices.Contains(c.TargetList(), "sns") && c.TopicARN == "" {
		return fmt.Errorf("topic_arn is required when the sns target is enabled")
	}
	return nil
}

// Load builds the config from defaults overlaid with the process environment.
func Load() (Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(Default(), "koanf"), nil); err != nil {
		return Config{}, fmt.Errorf("failed to load defaults: %w", err)
	}

	if err := k.Load(env.Provider(".", env.Opt{
		TransformFunc: transformEnvKey,
	}), nil); err != nil {
		return Config{}, fmt.Errorf("failed to load environment variables: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// transformEnvKey maps RESIZER_* variables and the localstack AWS_ENDPOINT
// onto config keys. Everything else is dropped.
func transformEnvKey(key, value string) (string, any) {
	switch {
	case key == "AWS_ENDPOINT":
		return "aws_endpoint", value
	case strings.HasPrefix(key, EnvPrefix):
		return strings.ToLower(strings.TrimPrefix(key, EnvPrefix)), value
	default:
		return "", nil
	}
}
