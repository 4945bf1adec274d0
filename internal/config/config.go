// Package config resolves CLI settings from flags, FORMRULES_* environment
// variables and an optional formrules.yaml, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable.
const EnvPrefix = "formrules"

// Output formats.
const (
	OutputAuto   = "auto"
	OutputJSON   = "json"
	OutputPretty = "pretty"
	OutputYAML   = "yaml"
)

// Config is the resolved CLI configuration.
type Config struct {
	Log      LogConfig
	Schema   string
	Values   string
	FormID   string
	Endpoint string
	Token    string
	Secret   string
	Subject  string
	Output   string
	Timeout  time.Duration
	Retries  uint64
	// Messages overrides validation message templates by violation code.
	// Only the config file can set it.
	Messages map[string]string
}

// LogConfig controls the process logger.
type LogConfig struct {
	Level       string
	File        string
	Development bool
}

// bindings maps config keys onto flag names.
var bindings = map[string]string{
	"log.level":       "log-level",
	"log.file":        "log-file",
	"log.development": "log-dev",
	"schema":          "schema",
	"values":          "values",
	"form_id":         "form-id",
	"endpoint":        "endpoint",
	"token":           "token",
	"secret":          "secret",
	"subject":         "subject",
	"output":          "output",
	"timeout":         "timeout",
	"retries":         "retries",
}

// Load parses args (without the program name) and returns the configuration
// and the remaining positional arguments.
func Load(name string, args []string, usage io.Writer) (Config, []string, error) {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	if usage != nil {
		fs.SetOutput(usage)
	}
	configFile := fs.StringP("config", "c", "", "config file (default formrules.yaml in . or ./config)")
	fs.String("log-level", "info", "log level: debug, info, warn, error")
	fs.String("log-file", "", "also write logs to this rotated file")
	fs.Bool("log-dev", false, "human readable development logs")
	fs.StringP("schema", "s", "", "schema document (JSON or YAML)")
	fs.StringP("values", "f", "", "answers document (JSON or YAML)")
	fs.String("form-id", "", "form id to fetch from the forms service")
	fs.StringP("endpoint", "e", "", "forms service base URL")
	fs.String("token", "", "bearer token for the forms service")
	fs.String("secret", "", "HMAC secret used to issue admin tokens")
	fs.String("subject", "", "subject for issued tokens")
	fs.StringP("output", "o", OutputAuto, "output format: auto, json, pretty, yaml")
	fs.Duration("timeout", 10*time.Second, "request timeout")
	fs.Uint64("retries", 3, "retries for failed schema fetches")

	if err := fs.Parse(args); err != nil {
		return Config{}, nil, err
	}

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	for key, flag := range bindings {
		if err := v.BindPFlag(key, fs.Lookup(flag)); err != nil {
			return Config{}, nil, fmt.Errorf("config: bind %s: %w", flag, err)
		}
	}

	if *configFile != "" {
		v.SetConfigFile(*configFile)
	} else {
		v.SetConfigName("formrules")
		v.AddConfigPath(".")
		v.AddConfigPath("config")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if *configFile != "" || !errors.As(err, &notFound) {
			return Config{}, nil, fmt.Errorf("config: read config: %w", err)
		}
	}

	cfg := Config{
		Log: LogConfig{
			Level:       v.GetString("log.level"),
			File:        v.GetString("log.file"),
			Development: v.GetBool("log.development"),
		},
		Schema:   v.GetString("schema"),
		Values:   v.GetString("values"),
		FormID:   v.GetString("form_id"),
		Endpoint: strings.TrimSpace(v.GetString("endpoint")),
		Token:    v.GetString("token"),
		Secret:   v.GetString("secret"),
		Subject:  v.GetString("subject"),
		Output:   strings.ToLower(strings.TrimSpace(v.GetString("output"))),
		Timeout:  v.GetDuration("timeout"),
		Retries:  v.GetUint64("retries"),
	}
	if messages := v.GetStringMapString("messages"); len(messages) > 0 {
		cfg.Messages = messages
	}
	if err := cfg.validate(); err != nil {
		return Config{}, nil, err
	}
	return cfg, fs.Args(), nil
}

func (c Config) validate() error {
	switch c.Output {
	case OutputAuto, OutputJSON, OutputPretty, OutputYAML:
	default:
		return fmt.Errorf("config: unknown output format %q", c.Output)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("config: timeout must be positive, got %s", c.Timeout)
	}
	return nil
}

// Remote reports whether the schema comes from the forms service.
func (c Config) Remote() bool {
	return c.Schema == "" && c.Endpoint != "" && c.FormID != ""
}
