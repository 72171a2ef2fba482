package cmd

import (
	"log"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/vira-platform/vira-engine/internal/matching"
	"github.com/vira-platform/vira-engine/internal/session"
)

const (
	app = "vira-engine"
)

type Config struct {
	Listen   string          `mapstructure:"listen"`
	Database *DatabaseConfig `mapstructure:"database"`
	Matching *MatchingConfig `mapstructure:"matching"`
	AI       *AIConfig       `mapstructure:"ai"`
	Session  *SessionConfig  `mapstructure:"session"`
}

type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

type MatchingConfig struct {
	TopK         int              `mapstructure:"top-k"`
	RemainingCap int              `mapstructure:"remaining-cap"`
	MinScopeLen  int              `mapstructure:"min-scope-length"`
	Weights      matching.Weights `mapstructure:"weights"`
}

type AIConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	Gemini  *GeminiConfig `mapstructure:"gemini"`
}

type GeminiConfig struct {
	APIKey       string        `mapstructure:"api-key"`
	APIKeyFile   string        `mapstructure:"api-key-file"`
	Model        string        `mapstructure:"model"`
	Timeout      time.Duration `mapstructure:"timeout"`
	RetryBackoff time.Duration `mapstructure:"retry-backoff"`
	MaxLogLength int           `mapstructure:"max-log-length"`
}

type SessionConfig struct {
	// Backend selects the session store: "memory" (default) or "redis".
	Backend string               `mapstructure:"backend"`
	Redis   *session.RedisConfig `mapstructure:"redis"`
}

var (
	// Used for flags.
	cfgFile string

	rootCmd = &cobra.Command{
		Use:   app,
		Short: "vira-engine serves vendor matching, ranking and chat for the VIRA platform",
	}
)

// Execute executes the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	if err := viper.BindEnv("ai.gemini.api-key", "GEMINI_API_KEY"); err != nil {
		log.Fatalf("binding GEMINI_API_KEY environment variable: %v", err)
	}
	if err := viper.BindEnv("ai.gemini.api-key-file", "GEMINI_API_KEY_FILE"); err != nil {
		log.Fatalf("binding GEMINI_API_KEY_FILE environment variable: %v", err)
	}

	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "a config file (default is vira-engine.yaml in current directory)")
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "verbose/debug output")
	rootCmd.PersistentFlags().BoolP("json", "j", false, "json format for logging")

	viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
	viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
}

func initConfig() {
	// Config is needed only for the serve command.
	if serveCmd.CalledAs() == "" {
		return
	}

	// Local development convenience; missing .env files are fine.
	_ = godotenv.Load()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigName(app + ".yaml")
	}

	// We can't proceed if the config file parsed with error.
	if err := viper.ReadInConfig(); err != nil {
		log.Fatal(err)
	}
}

func getConfig() (*Config, error) {
	var config *Config
	err := viper.Unmarshal(&config)
	if err != nil {
		return config, err
	}

	return config, nil
}
