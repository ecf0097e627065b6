package commands

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var logLevel *slog.LevelVar

var rootCmd = &cobra.Command{
	Use:   "pokedex",
	Short: "Pokedex local cache - offline-first species lookups",
	Long:  `Resolves species from a local SQLite cache, falling back to the remote API and storing what it fetches.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if logLevel == nil {
			return nil
		}
		return logLevel.UnmarshalText([]byte(viper.GetString("log-level")))
	},
	SilenceUsage: true,
}

// Execute runs the root command. level is adjusted from the log-level setting.
func Execute(level *slog.LevelVar) {
	logLevel = level
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().String("db-path", ".artifacts/pokemon.db", "SQLite database path")
	rootCmd.PersistentFlags().String("asset-dir", ".artifacts/sprites", "Sprite cache directory")
	rootCmd.PersistentFlags().String("fsm-db-path", ".artifacts/fsm", "FSM BoltDB path")
	rootCmd.PersistentFlags().String("api-base-url", "https://pokeapi.co/api/v2", "Remote API base URL")
	rootCmd.PersistentFlags().Duration("http-timeout", 10*time.Second, "Remote request timeout")
	rootCmd.PersistentFlags().Duration("probe-timeout", 3*time.Second, "Connectivity probe timeout")
	rootCmd.PersistentFlags().Duration("item-timeout", 15*time.Second, "Per-item bulk warm timeout")
	rootCmd.PersistentFlags().Int64("max-asset-size", 5*1024*1024, "Max sprite size in bytes")
	rootCmd.PersistentFlags().String("s3-region", "us-east-1", "S3 region for s3:// sprite URLs")
	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")

	viper.BindPFlag("db-path", rootCmd.PersistentFlags().Lookup("db-path"))
	viper.BindPFlag("asset-dir", rootCmd.PersistentFlags().Lookup("asset-dir"))
	viper.BindPFlag("fsm-db-path", rootCmd.PersistentFlags().Lookup("fsm-db-path"))
	viper.BindPFlag("api-base-url", rootCmd.PersistentFlags().Lookup("api-base-url"))
	viper.BindPFlag("http-timeout", rootCmd.PersistentFlags().Lookup("http-timeout"))
	viper.BindPFlag("probe-timeout", rootCmd.PersistentFlags().Lookup("probe-timeout"))
	viper.BindPFlag("item-timeout", rootCmd.PersistentFlags().Lookup("item-timeout"))
	viper.BindPFlag("max-asset-size", rootCmd.PersistentFlags().Lookup("max-asset-size"))
	viper.BindPFlag("s3-region", rootCmd.PersistentFlags().Lookup("s3-region"))
	viper.BindPFlag("log-level", rootCmd.PersistentFlags().Lookup("log-level"))
}
