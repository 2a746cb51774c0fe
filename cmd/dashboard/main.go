package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Rajchodisetti/crypto-dashboard/internal/config"
	"github.com/Rajchodisetti/crypto-dashboard/internal/observ"
)

// Set via -ldflags "-X main.version=..."
var version = "dev"

var rootCmd = &cobra.Command{
	Use:           "dashboard",
	Short:         "Crypto index and indicator dashboard backend",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	viper.SetEnvPrefix("DASHBOARD")
	viper.AutomaticEnv()

	rootCmd.PersistentFlags().String("config", "", "path to YAML config (defaults apply when empty)")
	rootCmd.PersistentFlags().String("log-level", "", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().String("log-format", "", "log format: json or console")

	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
	_ = viper.BindPFlag("log_level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("log_format", rootCmd.PersistentFlags().Lookup("log-format"))

	rootCmd.AddCommand(serveCmd, configCmd, versionCmd)
}

// loadConfig reads the file named by --config or DASHBOARD_CONFIG and lets
// flags and DASHBOARD_* variables override it.
func loadConfig() (config.Root, error) {
	cfg, err := config.Load(viper.GetString("config"))
	if err != nil {
		return cfg, err
	}
	if v := viper.GetString("log_level"); v != "" {
		cfg.Logging.Level = v
	}
	if v := viper.GetString("log_format"); v != "" {
		cfg.Logging.Format = v
	}
	if v := viper.GetString("addr"); v != "" {
		cfg.Server.Addr = v
	}
	return cfg, cfg.Validate()
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, _ []string) {
		fmt.Fprintln(cmd.OutOrStdout(), version)
	},
}

func main() {
	observ.SetVersion(version)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
