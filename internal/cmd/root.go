package cmd

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/yourneighborhoodchef/veilfetch/internal/logging"
)

var (
	cfgFile string
	logger  *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "veilfetch",
	Short: "Stealth outbound HTTP requests with rate budgets and proxy rotation",
	Long: `veilfetch issues HTTP requests that look like organic browser
traffic: rotating browser fingerprints, optional proxy tunnels with
health-based eviction, a global admission rate budget, and retry with
exponential backoff on transient failures.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := initConfig(); err != nil {
			return err
		}
		var err error
		logger, err = logging.New(viper.GetString("log_level"), viper.GetBool("log_json"))
		if err != nil {
			return fmt.Errorf("init logger: %w", err)
		}
		return nil
	},
}

// Execute runs the CLI.
func Execute() error {
	err := rootCmd.Execute()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
	}
	if logger != nil {
		_ = logger.Sync()
	}
	return err
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default searches ./veilfetch.yaml, $HOME/.veilfetch.yaml)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "emit logs as JSON")
	_ = viper.BindPFlag("log_level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("log_json", rootCmd.PersistentFlags().Lookup("log-json"))
}

func initConfig() error {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(home)
		}
		viper.AddConfigPath(".")
		viper.SetConfigName(".veilfetch")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("VEILFETCH")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile == "" && (errors.As(err, &notFound) || os.IsNotExist(err)) {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func setDefaults() {
	viper.SetDefault("requests_per_minute", 30)
	viper.SetDefault("requests_per_second", 2)
	viper.SetDefault("min_delay_ms", 500)
	viper.SetDefault("max_delay_ms", 3000)
	viper.SetDefault("max_retries", 3)
	viper.SetDefault("retry_delay_ms", 1000)
	viper.SetDefault("retry_backoff_multiplier", 2.0)
	viper.SetDefault("max_retry_delay_ms", 10000)
	viper.SetDefault("proxy_rotation", "round-robin")
	viper.SetDefault("max_proxy_failures", 3)
	viper.SetDefault("fingerprint_rotation", "random")
	viper.SetDefault("rotate_fingerprint", true)
	viper.SetDefault("add_jitter", true)
	viper.SetDefault("jitter_percent", 0.30)
	viper.SetDefault("timeout_ms", 30000)
	viper.SetDefault("connect_timeout_ms", 10000)
}
