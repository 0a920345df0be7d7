package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	DefaultModel         = "qwen3:0.6b"
	DefaultFallbackModel = "llama3.2:1b"
	DefaultHost          = "http://localhost:11434"
	DefaultMaxSteps      = 8
	DefaultTimeout       = 120 * time.Second
	DefaultPreviewBytes  = 4 * 1024
)

// Limits controls max output sizes for tool previews and payloads.
type Limits struct {
	ToolMaxBytes int `mapstructure:"tool_max_bytes"`
}

// Config holds runtime configuration values.
type Config struct {
	Model         string
	FallbackModel string
	Host          string
	MaxSteps      int
	Timeout       time.Duration
	Quiet         bool
	JSON          bool
	Verbose       bool
	NoStream      bool
	LogFile       string
	PersistRuns   bool
	Limits        Limits
}

type rawConfig struct {
	Model         string `mapstructure:"model"`
	FallbackModel string `mapstructure:"fallback_model"`
	Host          string `mapstructure:"host"`
	MaxSteps      int    `mapstructure:"max_steps"`
	Timeout       string `mapstructure:"timeout"`
	Quiet         bool   `mapstructure:"quiet"`
	JSON          bool   `mapstructure:"json"`
	Verbose       bool   `mapstructure:"verbose"`
	NoStream      bool   `mapstructure:"no_stream"`
	LogFile       string `mapstructure:"log_file"`
	OutputFormat  string `mapstructure:"output_format"`
	PersistRuns   bool   `mapstructure:"persist_runs"`
	Limits        Limits `mapstructure:"limits"`
}

// Load resolves configuration from defaults, config files, env, and flags.
func Load(cmd *cobra.Command) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("LMCLI")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("model", DefaultModel)
	v.SetDefault("fallback_model", DefaultFallbackModel)
	v.SetDefault("host", DefaultHost)
	v.SetDefault("max_steps", DefaultMaxSteps)
	v.SetDefault("timeout", DefaultTimeout.String())
	v.SetDefault("quiet", false)
	v.SetDefault("json", false)
	v.SetDefault("verbose", false)
	v.SetDefault("no_stream", false)
	v.SetDefault("log_file", "")
	v.SetDefault("output_format", "text")
	v.SetDefault("persist_runs", false)
	v.SetDefault("limits.tool_max_bytes", DefaultPreviewBytes)

	if cmd != nil {
		_ = v.BindPFlag("model", cmd.Flags().Lookup("model"))
		_ = v.BindPFlag("host", cmd.Flags().Lookup("host"))
		_ = v.BindPFlag("max_steps", cmd.Flags().Lookup("max-steps"))
		_ = v.BindPFlag("timeout", cmd.Flags().Lookup("timeout"))
		_ = v.BindPFlag("quiet", cmd.Flags().Lookup("quiet"))
		_ = v.BindPFlag("json", cmd.Flags().Lookup("json"))
		_ = v.BindPFlag("verbose", cmd.Flags().Lookup("verbose"))
		_ = v.BindPFlag("no_stream", cmd.Flags().Lookup("no-stream"))
		_ = v.BindPFlag("log_file", cmd.Flags().Lookup("log-file"))
	}

	if seconds := os.Getenv("LMCLI_TIMEOUT_SECONDS"); seconds != "" {
		v.Set("timeout", seconds+"s")
	}
	if model := os.Getenv("OLLAMA_MODEL"); model != "" && os.Getenv("LMCLI_MODEL") == "" {
		v.Set("model", model)
	}
	if host := os.Getenv("OLLAMA_HOST"); host != "" && os.Getenv("LMCLI_HOST") == "" {
		v.Set("host", host)
	}

	if err := loadConfigFile(v); err != nil {
		return Config{}, err
	}

	var raw rawConfig
	decoder, _ := mapstructure.NewDecoder(&mapstructure.DecoderConfig{TagName: "mapstructure", Result: &raw})
	if err := decoder.Decode(v.AllSettings()); err != nil {
		return Config{}, err
	}

	timeout := DefaultTimeout
	if raw.Timeout != "" {
		parsed, err := time.ParseDuration(raw.Timeout)
		if err != nil {
			return Config{}, fmt.Errorf("invalid timeout duration: %w", err)
		}
		timeout = parsed
	}

	jsonOutput := raw.JSON
	if cmd != nil && cmd.Flags().Changed("json") {
		jsonOutput = v.GetBool("json")
	} else if strings.EqualFold(raw.OutputFormat, "json") {
		jsonOutput = true
	}

	cfg := Config{
		Model:         raw.Model,
		FallbackModel: raw.FallbackModel,
		Host:          raw.Host,
		MaxSteps:      raw.MaxSteps,
		Timeout:       timeout,
		Quiet:         raw.Quiet,
		JSON:          jsonOutput,
		Verbose:       raw.Verbose,
		NoStream:      raw.NoStream,
		LogFile:       raw.LogFile,
		PersistRuns:   raw.PersistRuns,
		Limits:        raw.Limits,
	}

	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.FallbackModel == "" {
		cfg.FallbackModel = DefaultFallbackModel
	}
	if cfg.Host == "" {
		cfg.Host = DefaultHost
	}
	if cfg.MaxSteps <= 0 {
		cfg.MaxSteps = DefaultMaxSteps
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Limits.ToolMaxBytes <= 0 {
		cfg.Limits.ToolMaxBytes = DefaultPreviewBytes
	}

	return cfg, nil
}

func loadConfigFile(v *viper.Viper) error {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return nil
	}
	base := filepath.Join(configDir, "lm-cli")
	candidates := []string{
		filepath.Join(base, "config.yaml"),
		filepath.Join(base, "config.yml"),
		filepath.Join(base, "config.json"),
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			v.SetConfigFile(path)
			if err := v.ReadInConfig(); err != nil {
				return err
			}
			return nil
		}
	}
	return nil
}
