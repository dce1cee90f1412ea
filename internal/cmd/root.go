package cmd

import (
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jzrake/gridflow/internal/config"
	"github.com/jzrake/gridflow/internal/logging"
)

var rootCmd = &cobra.Command{
	Use:   "gridflow",
	Short: "Round-based distributed execution of grid tasks",
	Long: `Gridflow partitions a 2-D grid into blocks, assigns the blocks to ranks and
advances them in lock-step rounds, exchanging boundary data between
neighboring blocks each round. Ranks may be goroutines in one process or
separate processes connected over gRPC.`,
	SilenceUsage: true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringP("config", "c", "", "config file (default is $HOME/.config/gridflow/gridflow.yaml)")
	rootCmd.PersistentFlags().String("log-level", "", "minimum log level (debug/info/warn/error)")
	rootCmd.PersistentFlags().String("log-dir", "", "directory for log files (default: stderr)")
	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
	_ = viper.BindPFlag("logging.level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("logging.dir", rootCmd.PersistentFlags().Lookup("log-dir"))
}

func initConfig() {
	// Set defaults first so they're available even without a config file
	config.SetDefaults()

	if cfgFile := viper.GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("gridflow")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(config.ConfigDir())
		viper.AddConfigPath(".")
	}

	viper.AutomaticEnv()
	viper.SetEnvPrefix("GRIDFLOW")
	// e.g., GRIDFLOW_GRID_BLOCK_SIZE for grid.block_size
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Read config file if it exists (ignore error if not found)
	_ = viper.ReadInConfig()
}

// newLogger opens the logger a command logs through. rank selects a per-rank
// file when logging to a directory; pass -1 for a process hosting many ranks.
func newLogger(cfg *config.Config, rank int) (*logging.Logger, error) {
	if cfg.Logging.Dir == "" {
		return logging.NewLogger("", cfg.Logging.Level)
	}
	return logging.NewFileLogger(cfg.Logging.Dir, logging.FileName(rank), cfg.Logging.Level, cfg.Logging.Rotation())
}
