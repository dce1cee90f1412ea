// Package coder implements the serialization boundary for messages that
// leave the local rank.
//
// Encoding is CBOR (RFC 8949) via fxamacker/cbor, in core deterministic form:
// equal values always encode to equal bytes, and every encoding carries its
// own structure, so decoding needs nothing but the bytes. Messages that stay
// on the local rank never pass through this package.
//
// Two codecs are provided:
//
//   - [CBOR]: a generic [automaton.Coder] for envelopes of any key and
//     message type that CBOR can represent
//   - [FrameCodec]: the per-peer batch format the scheduler puts on the wire,
//     one [Frame] per (round, source rank, destination rank)
package coder
