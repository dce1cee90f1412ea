// Package logging provides structured logging for gridflow runs.
//
// This package wraps Go's log/slog to write JSON lines that can be merged
// across ranks after a run. Every line carries whatever context the caller
// attached through the With* helpers, so a single rank's logger typically
// stamps rank, and the scheduler adds round and phase.
//
// # Basic Usage
//
//	logger, err := logging.NewLogger("/var/run/gridflow", "INFO")
//	if err != nil {
//	    return err
//	}
//	defer logger.Close()
//
//	rankLogger := logger.WithRank(3)
//	rankLogger.WithRound(120).Debug("frames exchanged", "peers", 2, "bytes", 4096)
//
// Output:
//
//	{"time":"...","level":"DEBUG","msg":"frames exchanged","rank":3,"round":120,"peers":2,"bytes":4096}
//
// When the directory is empty, logs go to stderr.
//
// # Files and Rotation
//
// A single-process run writes {dir}/gridflow.log. Processes launched as one
// rank of a networked run write {dir}/gridflow.NNNN.log so that several ranks
// can share a directory. [RotatingWriter] caps file size and keeps numbered
// backups, optionally gzip compressed.
//
// # Merging
//
// [Collect] reads every gridflow log file in a directory and returns the
// entries sorted by time; [FilterEntries] narrows them by level, rank, round
// range or phase; [Export] writes them as json, text or csv. The
// `gridflow logs` command is a thin wrapper over these.
//
// # Testing
//
// Use [NopLogger] to discard output.
package logging
