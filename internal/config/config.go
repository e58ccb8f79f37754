package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	ProjectAgentsDir string        `yaml:"project_agents_dir" mapstructure:"project_agents_dir"`
	GlobalAgentsDir  string        `yaml:"global_agents_dir" mapstructure:"global_agents_dir"`
	MaxConcurrency   int           `yaml:"max_concurrency" mapstructure:"max_concurrency"`
	PerUnitTimeout   time.Duration `yaml:"per_unit_timeout" mapstructure:"per_unit_timeout"`
	MinScore         float64       `yaml:"min_score" mapstructure:"min_score"`
	TopN             int           `yaml:"top_n" mapstructure:"top_n"`
	DebounceWindow   time.Duration `yaml:"debounce_window" mapstructure:"debounce_window"`
	Runner           RunnerConfig  `yaml:"runner" mapstructure:"runner"`
}

// RunnerConfig configures the process batch runner. Command is the
// executable spawned once per task; the prompt arrives on its stdin.
type RunnerConfig struct {
	Command     string        `yaml:"command" mapstructure:"command"`
	Args        []string      `yaml:"args" mapstructure:"args"`
	GracePeriod time.Duration `yaml:"grace_period" mapstructure:"grace_period"`
	OutputDir   string        `yaml:"output_dir" mapstructure:"output_dir"`
}

func globalAgentsDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "relay", "agents")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "relay", "agents")
}

func DefaultConfig() *Config {
	return &Config{
		ProjectAgentsDir: filepath.Join(".", ".relay", "agents"),
		GlobalAgentsDir:  globalAgentsDir(),
		MaxConcurrency:   4,
		PerUnitTimeout:   2 * time.Minute,
		MinScore:         1,
		TopN:             3,
		DebounceWindow:   300 * time.Millisecond,
		Runner: RunnerConfig{
			GracePeriod: 5 * time.Second,
			OutputDir:   filepath.Join(".", ".relay", "out"),
		},
	}
}

func Load() (*Config, error) {
	cfg := DefaultConfig()

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	// Search paths
	viper.AddConfigPath(".")
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		viper.AddConfigPath(filepath.Join(xdg, "relay"))
	}
	home, _ := os.UserHomeDir()
	viper.AddConfigPath(filepath.Join(home, ".config", "relay"))

	// Environment variables
	viper.SetEnvPrefix("RELAY")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			// Config file was found but another error produced
			return nil, err
		}
		// Config file not found; ignore and use defaults
	}

	if err := viper.Unmarshal(cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.ProjectAgentsDir == "" && c.GlobalAgentsDir == "" {
		return fmt.Errorf("config: at least one of project_agents_dir or global_agents_dir is required")
	}
	if c.MaxConcurrency < 1 {
		return fmt.Errorf("config: max_concurrency must be >= 1, got %d", c.MaxConcurrency)
	}
	if c.PerUnitTimeout <= 0 {
		return fmt.Errorf("config: per_unit_timeout must be > 0, got %s", c.PerUnitTimeout)
	}
	if c.TopN < 1 {
		return fmt.Errorf("config: top_n must be >= 1, got %d", c.TopN)
	}
	if c.MinScore < 0 {
		return fmt.Errorf("config: min_score must be >= 0, got %v", c.MinScore)
	}
	if c.DebounceWindow < 0 {
		return fmt.Errorf("config: debounce_window must be >= 0, got %s", c.DebounceWindow)
	}
	if c.Runner.GracePeriod < 0 {
		return fmt.Errorf("config: runner.grace_period must be >= 0, got %s", c.Runner.GracePeriod)
	}
	return nil
}
