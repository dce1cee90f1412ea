package config

import (
	"fmt"
	"net"
	"slices"
	"strings"

	"github.com/jzrake/gridflow/internal/scheduler"
)

// ValidationError represents a single validation failure
type ValidationError struct {
	Field   string // The config field path (e.g., "grid.block_size")
	Value   any    // The invalid value
	Message string // Human-readable error description
}

// Error implements the error interface for ValidationError
func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface for ValidationErrors
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation errors:\n", len(e)))
	for i, err := range e {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// ValidLogLevels returns the list of valid log levels
func ValidLogLevels() []string {
	return []string{"debug", "info", "warn", "error"}
}

// Validate checks the Config for invalid values and returns all validation
// errors found. Divisibility of the grid over blocks and ranks is checked
// here too, so `gridflow config show` flags a layout before a run does.
func (c *Config) Validate() []ValidationError {
	var errors []ValidationError

	errors = append(errors, c.validateGrid()...)
	errors = append(errors, c.validateRun()...)
	errors = append(errors, c.validateCluster()...)
	errors = append(errors, c.validateSnapshot()...)
	errors = append(errors, c.validateLogging()...)

	return errors
}

// validateGrid validates the GridConfig
func (c *Config) validateGrid() []ValidationError {
	var errors []ValidationError

	if c.Grid.Resolution <= 0 {
		errors = append(errors, ValidationError{
			Field:   "grid.resolution",
			Value:   c.Grid.Resolution,
			Message: "must be positive",
		})
	}

	if c.Grid.BlockSize <= 0 {
		errors = append(errors, ValidationError{
			Field:   "grid.block_size",
			Value:   c.Grid.BlockSize,
			Message: "must be positive",
		})
	} else if c.Grid.Resolution > 0 && c.Grid.Resolution%c.Grid.BlockSize != 0 {
		errors = append(errors, ValidationError{
			Field:   "grid.block_size",
			Value:   c.Grid.BlockSize,
			Message: fmt.Sprintf("must divide the grid resolution %d", c.Grid.Resolution),
		})
	}

	if c.Grid.HaloRadius != 1 {
		errors = append(errors, ValidationError{
			Field:   "grid.halo_radius",
			Value:   c.Grid.HaloRadius,
			Message: "only a halo radius of 1 is supported",
		})
	}

	return errors
}

// validateRun validates the RunConfig
func (c *Config) validateRun() []ValidationError {
	var errors []ValidationError

	if c.Run.Fold < 1 {
		errors = append(errors, ValidationError{
			Field:   "run.fold",
			Value:   c.Run.Fold,
			Message: "must be at least 1",
		})
	}

	if c.Run.TFinal < 0 {
		errors = append(errors, ValidationError{
			Field:   "run.tfinal",
			Value:   c.Run.TFinal,
			Message: "must be non-negative",
		})
	}

	if c.Run.Threads < 1 {
		errors = append(errors, ValidationError{
			Field:   "run.threads",
			Value:   c.Run.Threads,
			Message: "must be at least 1",
		})
	}

	if c.Run.Strategy != "" && !slices.Contains(scheduler.Strategies(), c.Run.Strategy) {
		errors = append(errors, ValidationError{
			Field:   "run.strategy",
			Value:   c.Run.Strategy,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(scheduler.Strategies(), ", ")),
		})
	}

	if c.Run.Diffusivity <= 0 {
		errors = append(errors, ValidationError{
			Field:   "run.diffusivity",
			Value:   c.Run.Diffusivity,
			Message: "must be positive",
		})
	}

	if c.Run.CFL <= 0 || c.Run.CFL > 0.25 {
		errors = append(errors, ValidationError{
			Field:   "run.cfl",
			Value:   c.Run.CFL,
			Message: "must be in (0, 0.25] for the explicit scheme to be stable",
		})
	}

	return errors
}

// validateCluster validates the ClusterConfig
func (c *Config) validateCluster() []ValidationError {
	var errors []ValidationError

	if !slices.Contains(ValidTransports(), c.Cluster.Transport) {
		errors = append(errors, ValidationError{
			Field:   "cluster.transport",
			Value:   c.Cluster.Transport,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidTransports(), ", ")),
		})
	}

	rankField, ranks := "cluster.ranks", c.Cluster.Ranks
	if c.peersSetRanks() {
		rankField, ranks = "cluster.peers", len(c.Cluster.Peers)
	}
	if ranks < 1 {
		errors = append(errors, ValidationError{
			Field:   rankField,
			Value:   ranks,
			Message: "must be at least 1",
		})
	} else if blocks := c.Grid.Blocks(); blocks > 0 && blocks%ranks != 0 {
		errors = append(errors, ValidationError{
			Field:   rankField,
			Value:   ranks,
			Message: fmt.Sprintf("rank count must divide the block count %d", blocks),
		})
	}

	if c.Cluster.Transport == TransportNull && c.Cluster.Ranks > 1 {
		errors = append(errors, ValidationError{
			Field:   "cluster.ranks",
			Value:   c.Cluster.Ranks,
			Message: "the null transport runs exactly one rank",
		})
	}

	if c.Cluster.DialTimeout < 0 {
		errors = append(errors, ValidationError{
			Field:   "cluster.dial_timeout",
			Value:   c.Cluster.DialTimeout,
			Message: "must be non-negative",
		})
	}

	if c.Cluster.Transport == TransportGRPC {
		errors = append(errors, c.validatePeers()...)
	}

	return errors
}

// peersSetRanks reports whether the rank count is taken from the peer list
// rather than cluster.ranks, as it is under the gRPC transport.
func (c *Config) peersSetRanks() bool {
	return c.Cluster.Transport == TransportGRPC && len(c.Cluster.Peers) > 0
}

// validatePeers checks the gRPC peer list. An empty list is allowed here
// because the launch environment may supply it. cluster.ranks is not
// compared: one rank runs per peer.
func (c *Config) validatePeers() []ValidationError {
	var errors []ValidationError

	if len(c.Cluster.Peers) == 0 {
		return nil
	}

	if c.Cluster.Rank < 0 || c.Cluster.Rank >= len(c.Cluster.Peers) {
		errors = append(errors, ValidationError{
			Field:   "cluster.rank",
			Value:   c.Cluster.Rank,
			Message: fmt.Sprintf("must index the peer list [0, %d)", len(c.Cluster.Peers)),
		})
	}

	seen := make(map[string]bool, len(c.Cluster.Peers))
	for i, addr := range c.Cluster.Peers {
		field := fmt.Sprintf("cluster.peers[%d]", i)
		if _, _, err := net.SplitHostPort(addr); err != nil {
			errors = append(errors, ValidationError{
				Field:   field,
				Value:   addr,
				Message: "must be a host:port address",
			})
			continue
		}
		if seen[addr] {
			errors = append(errors, ValidationError{
				Field:   field,
				Value:   addr,
				Message: "duplicate address",
			})
		}
		seen[addr] = true
	}

	return errors
}

// validateSnapshot validates the SnapshotConfig
func (c *Config) validateSnapshot() []ValidationError {
	if c.Snapshot.Enabled && strings.TrimSpace(c.Snapshot.Dir) == "" {
		return []ValidationError{{
			Field:   "snapshot.dir",
			Value:   c.Snapshot.Dir,
			Message: "must be set when snapshots are enabled",
		}}
	}
	return nil
}

// validateLogging validates the LoggingConfig
func (c *Config) validateLogging() []ValidationError {
	var errors []ValidationError

	if c.Logging.Level != "" && !slices.Contains(ValidLogLevels(), c.Logging.Level) {
		errors = append(errors, ValidationError{
			Field:   "logging.level",
			Value:   c.Logging.Level,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidLogLevels(), ", ")),
		})
	}

	if c.Logging.MaxSizeMB < 0 {
		errors = append(errors, ValidationError{
			Field:   "logging.max_size_mb",
			Value:   c.Logging.MaxSizeMB,
			Message: "must be non-negative (0 disables rotation)",
		})
	}

	const maxLogSizeMB = 1000
	if c.Logging.MaxSizeMB > maxLogSizeMB {
		errors = append(errors, ValidationError{
			Field:   "logging.max_size_mb",
			Value:   c.Logging.MaxSizeMB,
			Message: fmt.Sprintf("must not exceed %d", maxLogSizeMB),
		})
	}

	if c.Logging.MaxBackups < 0 {
		errors = append(errors, ValidationError{
			Field:   "logging.max_backups",
			Value:   c.Logging.MaxBackups,
			Message: "must be non-negative",
		})
	}

	return errors
}
