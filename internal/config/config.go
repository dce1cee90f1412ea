package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"

	"github.com/jzrake/gridflow/internal/logging"
)

// Transports.
const (
	TransportNull  = "null"
	TransportLocal = "local"
	TransportGRPC  = "grpc"
)

// Config represents the complete gridflow configuration
type Config struct {
	Grid      GridConfig      `mapstructure:"grid" yaml:"grid"`
	Run       RunConfig       `mapstructure:"run" yaml:"run"`
	Cluster   ClusterConfig   `mapstructure:"cluster" yaml:"cluster"`
	Snapshot  SnapshotConfig  `mapstructure:"snapshot" yaml:"snapshot"`
	Logging   LoggingConfig   `mapstructure:"logging" yaml:"logging"`
	Telemetry TelemetryConfig `mapstructure:"telemetry" yaml:"telemetry"`
}

// GridConfig describes the mesh and its decomposition
type GridConfig struct {
	// Resolution is the number of cells along each axis of the square mesh
	Resolution int `mapstructure:"resolution" yaml:"resolution"`
	// BlockSize is the edge length of one block in cells. It must divide Resolution.
	BlockSize int `mapstructure:"block_size" yaml:"block_size"`
	// HaloRadius is the neighbor reach in cells. Only 1 is supported.
	HaloRadius int `mapstructure:"halo_radius" yaml:"halo_radius"`
}

// RunConfig controls the fold loop and the update rule
type RunConfig struct {
	// Fold is the number of rounds between throughput reports
	Fold int `mapstructure:"fold" yaml:"fold"`
	// TFinal is the simulation time to stop at
	TFinal float64 `mapstructure:"tfinal" yaml:"tfinal"`
	// Threads bounds per-rank step parallelism. Also the divisor of the per-thread throughput figure.
	Threads int `mapstructure:"threads" yaml:"threads"`
	// Strategy selects how a rank runs its steps: "serial", "errgroup", "pool"
	Strategy string `mapstructure:"strategy" yaml:"strategy"`
	// Diffusivity is the diffusion coefficient D
	Diffusivity float64 `mapstructure:"diffusivity" yaml:"diffusivity"`
	// CFL scales the time step dt = cfl * min(dx,dy)^2 / D
	CFL float64 `mapstructure:"cfl" yaml:"cfl"`
}

// ClusterConfig describes the ranks taking part in a run
type ClusterConfig struct {
	// Ranks is the number of ranks
	Ranks int `mapstructure:"ranks" yaml:"ranks"`
	// Transport is "null" (one rank), "local" (goroutine ranks) or "grpc" (one process per rank)
	Transport string `mapstructure:"transport" yaml:"transport"`
	// Rank is this process's rank when Transport is "grpc"
	Rank int `mapstructure:"rank" yaml:"rank"`
	// Peers are gRPC listen addresses indexed by rank
	Peers []string `mapstructure:"peers" yaml:"peers"`
	// DialTimeout bounds how long a rank waits for a peer to come up
	DialTimeout time.Duration `mapstructure:"dial_timeout" yaml:"dial_timeout"`
}

// SnapshotConfig controls the end-of-run state files
type SnapshotConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Dir     string `mapstructure:"dir" yaml:"dir"`
}

// LoggingConfig controls structured logging
type LoggingConfig struct {
	// Level is the minimum level: "debug", "info", "warn", "error"
	Level string `mapstructure:"level" yaml:"level"`
	// Dir is where per-rank log files go. Empty logs to stderr.
	Dir string `mapstructure:"dir" yaml:"dir"`
	// MaxSizeMB is the size at which a log file is rotated
	MaxSizeMB int `mapstructure:"max_size_mb" yaml:"max_size_mb"`
	// MaxBackups is the number of rotated files kept
	MaxBackups int `mapstructure:"max_backups" yaml:"max_backups"`
	// Compress gzips rotated files
	Compress bool `mapstructure:"compress" yaml:"compress"`
}

// Rotation returns the rotation settings for the logging package.
func (c LoggingConfig) Rotation() logging.RotationConfig {
	return logging.RotationConfig{
		MaxSizeMB:  c.MaxSizeMB,
		MaxBackups: c.MaxBackups,
		Compress:   c.Compress,
	}
}

// TelemetryConfig controls trace export
type TelemetryConfig struct {
	// Endpoint is an OTLP/HTTP collector URL. Empty disables tracing.
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint"`
}

// Default returns a Config with sensible default values
func Default() *Config {
	rotation := logging.DefaultRotationConfig()
	return &Config{
		Grid: GridConfig{
			Resolution: 200,
			BlockSize:  50,
			HaloRadius: 1,
		},
		Run: RunConfig{
			Fold:        10,
			TFinal:      0.01,
			Threads:     1,
			Strategy:    "serial",
			Diffusivity: 1.0,
			CFL:         0.2,
		},
		Cluster: ClusterConfig{
			Ranks:       1,
			Transport:   TransportNull,
			Rank:        0,
			Peers:       []string{},
			DialTimeout: 10 * time.Second,
		},
		Snapshot: SnapshotConfig{
			Enabled: true,
			Dir:     ".",
		},
		Logging: LoggingConfig{
			Level:      "info",
			Dir:        "",
			MaxSizeMB:  rotation.MaxSizeMB,
			MaxBackups: rotation.MaxBackups,
			Compress:   rotation.Compress,
		},
		Telemetry: TelemetryConfig{
			Endpoint: "",
		},
	}
}

// SetDefaults registers default values with viper
func SetDefaults() {
	defaults := Default()

	// Grid defaults
	viper.SetDefault("grid.resolution", defaults.Grid.Resolution)
	viper.SetDefault("grid.block_size", defaults.Grid.BlockSize)
	viper.SetDefault("grid.halo_radius", defaults.Grid.HaloRadius)

	// Run defaults
	viper.SetDefault("run.fold", defaults.Run.Fold)
	viper.SetDefault("run.tfinal", defaults.Run.TFinal)
	viper.SetDefault("run.threads", defaults.Run.Threads)
	viper.SetDefault("run.strategy", defaults.Run.Strategy)
	viper.SetDefault("run.diffusivity", defaults.Run.Diffusivity)
	viper.SetDefault("run.cfl", defaults.Run.CFL)

	// Cluster defaults
	viper.SetDefault("cluster.ranks", defaults.Cluster.Ranks)
	viper.SetDefault("cluster.transport", defaults.Cluster.Transport)
	viper.SetDefault("cluster.rank", defaults.Cluster.Rank)
	viper.SetDefault("cluster.peers", defaults.Cluster.Peers)
	viper.SetDefault("cluster.dial_timeout", defaults.Cluster.DialTimeout)

	// Snapshot defaults
	viper.SetDefault("snapshot.enabled", defaults.Snapshot.Enabled)
	viper.SetDefault("snapshot.dir", defaults.Snapshot.Dir)

	// Logging defaults
	viper.SetDefault("logging.level", defaults.Logging.Level)
	viper.SetDefault("logging.dir", defaults.Logging.Dir)
	viper.SetDefault("logging.max_size_mb", defaults.Logging.MaxSizeMB)
	viper.SetDefault("logging.max_backups", defaults.Logging.MaxBackups)
	viper.SetDefault("logging.compress", defaults.Logging.Compress)

	// Telemetry defaults
	viper.SetDefault("telemetry.endpoint", defaults.Telemetry.Endpoint)
}

// Load reads the configuration from viper into a Config struct and validates it
func Load() (*Config, error) {
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}

	return &cfg, nil
}

// Get returns the current configuration, falling back to defaults when it
// cannot be loaded
func Get() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// ConfigDir returns the path to the user's config directory
func ConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "gridflow")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".gridflow"
	}
	return filepath.Join(home, ".config", "gridflow")
}

// ConfigFile returns the path to the config file
func ConfigFile() string {
	return filepath.Join(ConfigDir(), "gridflow.yaml")
}

// ValidTransports returns the list of valid cluster transports
func ValidTransports() []string {
	return []string{TransportNull, TransportLocal, TransportGRPC}
}

// Blocks returns the number of blocks the grid decomposes into, or 0 when
// the block size does not divide the resolution.
func (c GridConfig) Blocks() int {
	if c.BlockSize <= 0 || c.Resolution%c.BlockSize != 0 {
		return 0
	}
	n := c.Resolution / c.BlockSize
	return n * n
}
