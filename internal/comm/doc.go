// Package comm defines the point-to-point transport the round scheduler uses
// to move encoded frames between ranks.
//
// A Communicator identifies the local rank within a fixed-size group and
// offers blocking Send and Receive toward any other rank. Delivery between a
// given (source, destination) pair is FIFO; no ordering is implied across
// pairs. Any error is fatal to the round in which it occurs: communicators
// may retry internally, but the scheduler never does.
//
// Two in-process implementations live here:
//   - Null: the single-rank communicator (rank 0, size 1), a loopback used
//     when the whole task set is local
//   - Hub: a group of channel-backed communicators, one per goroutine rank,
//     used by tests and by the in-process multi-rank launcher
//
// A network implementation over gRPC lives in package grpccomm.
package comm
