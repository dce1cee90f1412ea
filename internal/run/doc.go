// Package run drives a diffusion run from a loaded configuration.
//
// NewLayout performs the pre-flight checks and builds everything every rank
// must agree on: the mesh, the block partition, its adjacency and the work
// assignment. Execute then starts the ranks the configured transport calls
// for and runs the fold loop on each: a fold is a fixed number of rounds
// followed by a throughput report, and folds repeat until the simulated time
// reaches run.tfinal. Every rank finishes by writing a snapshot of the
// blocks it owns.
package run
