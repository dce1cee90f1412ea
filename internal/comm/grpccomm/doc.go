// Package grpccomm implements comm.Communicator over gRPC so that each rank
// of a run can live in its own process.
//
// Every rank serves the gridflow.v1.Exchange service on its own address and
// dials its peers lazily on first Send. A frame is one unary Deliver call
// carrying a google.protobuf.BytesValue; the sender's rank travels in the
// call metadata. The receiving server parks each frame on a bounded
// per-source queue that Receive drains in order, so a fast peer is held back
// by gRPC flow control rather than by unbounded buffering.
//
// Dialing waits for the peer's health service to report SERVING before the
// first frame is sent, and transient UNAVAILABLE failures are retried by the
// gRPC client retry policy. Anything else surfaces as a TransportError.
//
// Rank and peer addresses usually come from the launcher through the
// GRIDFLOW_RANK and GRIDFLOW_PEERS environment variables; see ParseEnv.
package grpccomm
