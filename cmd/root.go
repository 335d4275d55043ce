package cmd

import (
	"errors"
	"io/fs"
	"log"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/cumplo-spotter/cumplo-spotter/internal/cumplo"
	"github.com/cumplo-spotter/cumplo-spotter/internal/dispatch"
	"github.com/cumplo-spotter/cumplo-spotter/internal/funding"
	"github.com/cumplo-spotter/cumplo-spotter/internal/httpapi"
	"github.com/cumplo-spotter/cumplo-spotter/internal/logger"
	"github.com/cumplo-spotter/cumplo-spotter/internal/spotter"
	"github.com/cumplo-spotter/cumplo-spotter/internal/store"
)

const (
	app       = "cumplo-spotter"
	envPrefix = "SPOTTER"
)

type Config struct {
	Cumplo   cumplo.Config    `mapstructure:"cumplo"`
	Dicom    *funding.Lexicon `mapstructure:"dicom"`
	Store    store.Config     `mapstructure:"store"`
	Dispatch dispatch.Config  `mapstructure:"dispatch"`
	Spotter  spotter.Config   `mapstructure:"spotter"`
	API      httpapi.Config   `mapstructure:"api"`
	Metrics  MetricsConfig    `mapstructure:"metrics"`
	Log      logger.File      `mapstructure:"log"`
	AI       *AIConfig        `mapstructure:"ai"`
}

type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

type AIConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Provider string        `mapstructure:"provider"`
	Language string        `mapstructure:"language"`
	Gemini   *GeminiConfig `mapstructure:"gemini"`
}

type GeminiConfig struct {
	APIKey       string `mapstructure:"api-key"`
	APIKeyFile   string `mapstructure:"api-key-file"`
	Model        string `mapstructure:"model"`
	MaxRetries   int    `mapstructure:"max-retries"`
	MaxLogLength int    `mapstructure:"max-log-length"`
}

var (
	// Used for flags.
	cfgFile string

	rootCmd = &cobra.Command{
		Use:   app,
		Short: "cumplo-spotter watches Cumplo funding requests and notifies the ones matching each user's filters",
	}
)

// Execute executes the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "a config file (default is cumplo-spotter.yaml in current directory)")
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "verbose/debug output")
	rootCmd.PersistentFlags().BoolP("json", "j", false, "json format for logging")
	rootCmd.PersistentFlags().String("log-file", "", "also write json logs to this file, rotated by size")

	viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
	viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	viper.BindPFlag("log.path", rootCmd.PersistentFlags().Lookup("log-file"))
}

func setDefaults() {
	viper.SetDefault("store.driver", store.DriverMemory)
	viper.SetDefault("store.redis.prefix", app+":")
	viper.SetDefault("store.mongo.database", "cumplo_spotter")
	viper.SetDefault("dispatch.driver", dispatch.DriverMemory)
	viper.SetDefault("dispatch.queue", "funding-requests-webhooks")
	viper.SetDefault("dispatch.dedupe-window", "5m")
	viper.SetDefault("spotter.notifications-ttl", "24h")
	viper.SetDefault("spotter.concurrency", 4)
	viper.SetDefault("api.addr", ":8080")
	viper.SetDefault("api.timeout", "60s")
	viper.SetDefault("log.max-size-mb", 100)
	viper.SetDefault("log.max-backups", 3)
	viper.SetDefault("log.max-age-days", 28)
}

func initConfig() {
	// .env is optional, real environment variables win over it
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Fatalf("loading .env file: %v", err)
	}

	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()
	setDefaults()

	// version does not need a config at all
	if versionCmd.CalledAs() != "" {
		return
	}

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigName(app)
		viper.SetConfigType("yaml")
	}

	// Running only on defaults and environment is fine, a broken config file is not.
	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			log.Fatal(err)
		}
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
