package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/cast"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/jzrake/gridflow/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "View or modify gridflow configuration",
	Long: `View or modify gridflow configuration.

Without arguments, displays the current configuration.
Use subcommands to modify settings or create a config file.`,
	RunE: runConfigShow,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE:  runConfigShow,
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Long: `Set a configuration value in the user's config file.

Keys use dot notation, e.g.:
  gridflow config set grid.resolution 400
  gridflow config set run.strategy pool
  gridflow config set cluster.peers host0:7000,host1:7000

The resulting configuration is validated before it is written.`,
	Args: cobra.ExactArgs(2),
	RunE: runConfigSet,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a default config file",
	Long:  `Create a default config file at ~/.config/gridflow/gridflow.yaml with all available options.`,
	RunE:  runConfigInit,
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Show the config file path",
	RunE:  runConfigPath,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configPathCmd)
}

// settableKeys maps each key accepted by "config set" to its value kind.
var settableKeys = map[string]string{
	"grid.resolution":      "int",
	"grid.block_size":      "int",
	"grid.halo_radius":     "int",
	"run.fold":             "int",
	"run.tfinal":           "float",
	"run.threads":          "int",
	"run.strategy":         "string",
	"run.diffusivity":      "float",
	"run.cfl":              "float",
	"cluster.ranks":        "int",
	"cluster.transport":    "string",
	"cluster.rank":         "int",
	"cluster.peers":        "list",
	"cluster.dial_timeout": "duration",
	"snapshot.enabled":     "bool",
	"snapshot.dir":         "string",
	"logging.level":        "string",
	"logging.dir":          "string",
	"logging.max_size_mb":  "int",
	"logging.max_backups":  "int",
	"logging.compress":     "bool",
	"telemetry.endpoint":   "string",
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	cfg := config.Get()

	if viper.ConfigFileUsed() != "" {
		fmt.Fprintf(out, "# Config file: %s\n", viper.ConfigFileUsed())
	} else {
		fmt.Fprintln(out, "# Config file: (none - using defaults)")
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to render config: %w", err)
	}
	_, err = out.Write(data)
	return err
}

// coerce converts a command-line string to the kind a key holds.
func coerce(kind, value string) (any, error) {
	switch kind {
	case "int":
		return cast.ToIntE(value)
	case "float":
		return cast.ToFloat64E(value)
	case "bool":
		return cast.ToBoolE(value)
	case "duration":
		return cast.ToDurationE(value)
	case "list":
		if value == "" {
			return []string{}, nil
		}
		return cast.ToStringSliceE(strings.Split(value, ","))
	default:
		return value, nil
	}
}

func runConfigSet(cmd *cobra.Command, args []string) error {
	key := args[0]
	value := args[1]

	kind, ok := settableKeys[key]
	if !ok {
		keys := make([]string, 0, len(settableKeys))
		for k := range settableKeys {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		return fmt.Errorf("unknown configuration key: %s\nValid keys: %s", key, strings.Join(keys, ", "))
	}

	typedValue, err := coerce(kind, value)
	if err != nil {
		return fmt.Errorf("invalid value for %s: expected %s: %w", key, kind, err)
	}

	previous := viper.Get(key)
	viper.Set(key, typedValue)
	if _, err := config.Load(); err != nil {
		viper.Set(key, previous)
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}

	// Ensure config directory exists
	if err := os.MkdirAll(config.ConfigDir(), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	configFile := config.ConfigFile()
	if err := viper.WriteConfigAs(configFile); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Set %s = %v\n", key, typedValue)
	fmt.Fprintf(cmd.OutOrStdout(), "Config saved to %s\n", configFile)
	return nil
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	configFile := config.ConfigFile()

	if _, err := os.Stat(configFile); err == nil {
		return fmt.Errorf("config file already exists at %s\nUse 'gridflow config set' to modify values", configFile)
	}

	if err := os.MkdirAll(config.ConfigDir(), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(config.Default())
	if err != nil {
		return fmt.Errorf("failed to render default config: %w", err)
	}
	content := append([]byte("# gridflow configuration\n"), data...)
	if err := os.WriteFile(configFile, content, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Created config file at %s\n", configFile)
	return nil
}

func runConfigPath(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()

	if viper.ConfigFileUsed() != "" {
		fmt.Fprintf(out, "Active config: %s\n", viper.ConfigFileUsed())
	} else {
		fmt.Fprintf(out, "Default path: %s (not created)\n", config.ConfigFile())
	}

	fmt.Fprintln(out, "\nSearch paths:")
	fmt.Fprintf(out, "  1. %s\n", config.ConfigFile())
	fmt.Fprintf(out, "  2. %s\n", filepath.Join(".", "gridflow.yaml"))
	fmt.Fprintln(out, "\nEnvironment variables: GRIDFLOW_* (e.g., GRIDFLOW_GRID_BLOCK_SIZE)")
	return nil
}
