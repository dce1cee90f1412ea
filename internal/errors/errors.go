// Package errors provides the error taxonomy for the gridflow engine. It
// defines sentinel errors, domain error types carrying round/rank/key
// context, and classification helpers used by the driver to decide whether a
// failure aborts the run.
//
// # Error Types
//
// Domain errors map onto the ways a run can go wrong:
//   - ConfigError: indivisible grid/block/rank counts and other pre-flight
//     problems; detected before any round executes
//   - ContractError: a task or peer broke the automaton contract (wrong
//     outgoing keys, missing or duplicate incoming messages, foreign keys)
//   - CodecError: a message could not be encoded or decoded
//   - TransportError: the communicator failed to send or receive
//
// # Usage
//
//	err := errors.NewContractError("outgoing key is not a declared neighbor", errors.ErrUndeclaredNeighbor).
//	    WithRound(12).WithKey(task.Key())
//
//	if errors.Is(err, errors.ErrUndeclaredNeighbor) { ... }
//
//	var contract *errors.ContractError
//	if errors.As(err, &contract) { ... }
//
//	if errors.IsFatal(err) { abort() }
//
// # Classification
//
// The scheduler never retries. Transport errors are classified retryable so
// that a caller above the scheduler may restart from a fold boundary; contract
// and codec errors are not, since replaying the round would reproduce them.
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Re-export standard library functions for convenience.
var (
	Is     = errors.Is
	As     = errors.As
	Unwrap = errors.Unwrap
	New    = errors.New
	Join   = errors.Join
)

// Severity represents the severity level of an error.
type Severity int

const (
	SeverityDebug Severity = iota
	SeverityInfo
	SeverityWarning
	SeverityError
	// SeverityCritical marks errors that invalidate the numerical result.
	SeverityCritical
)

// String returns the string representation of the severity level.
func (s Severity) String() string {
	switch s {
	case SeverityDebug:
		return "debug"
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	case SeverityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// -----------------------------------------------------------------------------
// Sentinel Errors
// -----------------------------------------------------------------------------

// Configuration sentinel errors
var (
	// ErrIndivisibleGrid indicates the block size does not divide the grid resolution.
	ErrIndivisibleGrid = New("block size must divide the grid resolution")
	// ErrIndivisibleRanks indicates the block count is not a multiple of the rank count.
	ErrIndivisibleRanks = New("block count must be divisible by the rank count")
	// ErrInvalidRankCount indicates a non-positive rank count.
	ErrInvalidRankCount = New("rank count must be positive")
	// ErrUnsupportedRadius indicates a halo radius the update rule cannot use.
	ErrUnsupportedRadius = New("unsupported halo radius")
)

// Contract sentinel errors
var (
	// ErrUndeclaredNeighbor indicates a message addressed to a key that is not a declared neighbor.
	ErrUndeclaredNeighbor = New("message addressed to undeclared neighbor")
	// ErrMissingMessage indicates a declared neighbor produced no message.
	ErrMissingMessage = New("missing message from declared neighbor")
	// ErrDuplicateMessage indicates two messages for the same (source, destination) pair.
	ErrDuplicateMessage = New("duplicate message")
	// ErrUnassignedKey indicates a key that has no owning rank.
	ErrUnassignedKey = New("key has no assigned rank")
	// ErrForeignKey indicates a task or message that belongs to a different rank.
	ErrForeignKey = New("key is owned by another rank")
	// ErrKeyChanged indicates a task whose Step returned a task with a different key.
	ErrKeyChanged = New("task key changed across a step")
	// ErrDuplicateTask indicates two local tasks with the same key.
	ErrDuplicateTask = New("duplicate task key")
	// ErrRoundMismatch indicates a frame produced in a different round.
	ErrRoundMismatch = New("frame round does not match local round")
	// ErrUnexpectedPeer indicates a frame from a rank that was not expected to send.
	ErrUnexpectedPeer = New("frame from unexpected peer")
	// ErrAborted indicates a scheduler used again after a failed round.
	ErrAborted = New("scheduler aborted by an earlier failure")
)

// Codec and transport sentinel errors
var (
	// ErrEncode indicates a message could not be encoded.
	ErrEncode = New("encode failed")
	// ErrDecode indicates a byte sequence could not be decoded.
	ErrDecode = New("decode failed")
	// ErrPeerOutOfRange indicates a rank outside [0, size).
	ErrPeerOutOfRange = New("peer rank out of range")
	// ErrClosed indicates the communicator has been closed.
	ErrClosed = New("communicator closed")
	// ErrTransport indicates a generic send or receive failure.
	ErrTransport = New("transport failure")
)

// General sentinel errors
var (
	// ErrCanceled indicates that an operation was canceled.
	ErrCanceled = New("operation canceled")
	// ErrInvalidInput indicates that input validation failed.
	ErrInvalidInput = New("invalid input")
)

// -----------------------------------------------------------------------------
// Base Error Interface
// -----------------------------------------------------------------------------

// EngineError is implemented by every domain error in this package.
type EngineError interface {
	error
	Unwrap() error
	Is(target error) bool
	Severity() Severity
	// IsRetryable reports whether retrying from a fold boundary may succeed.
	IsRetryable() bool
	// IsUserFacing reports whether the message is meant for the person running the tool.
	IsUserFacing() bool
	// IsFatal reports whether the run must abort.
	IsFatal() bool
}

// -----------------------------------------------------------------------------
// Base Error Implementation
// -----------------------------------------------------------------------------

type baseError struct {
	message    string
	cause      error
	severity   Severity
	retryable  bool
	userFacing bool
	fatal      bool
}

func (e *baseError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.message, e.cause)
	}
	return e.message
}

func (e *baseError) Unwrap() error {
	return e.cause
}

func (e *baseError) Is(target error) bool {
	if e.cause != nil {
		return errors.Is(e.cause, target)
	}
	return false
}

func (e *baseError) Severity() Severity { return e.severity }
func (e *baseError) IsRetryable() bool  { return e.retryable }
func (e *baseError) IsUserFacing() bool { return e.userFacing }
func (e *baseError) IsFatal() bool      { return e.fatal }

func (e *baseError) format(prefix string, parts []string) string {
	if len(parts) > 0 {
		prefix = fmt.Sprintf("%s [%s]", prefix, strings.Join(parts, ", "))
	}
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.message)
}

// roundContext carries the optional round/rank/peer coordinates shared by
// the runtime error types.
type roundContext struct {
	round    uint64
	hasRound bool
	rank     int
	hasRank  bool
	peer     int
	hasPeer  bool
}

func (c roundContext) parts() []string {
	var parts []string
	if c.hasRound {
		parts = append(parts, fmt.Sprintf("round=%d", c.round))
	}
	if c.hasRank {
		parts = append(parts, fmt.Sprintf("rank=%d", c.rank))
	}
	if c.hasPeer {
		parts = append(parts, fmt.Sprintf("peer=%d", c.peer))
	}
	return parts
}

// Round returns the round the error occurred in, if known.
func (c roundContext) Round() (uint64, bool) { return c.round, c.hasRound }

// Rank returns the local rank, if known.
func (c roundContext) Rank() (int, bool) { return c.rank, c.hasRank }

// Peer returns the remote rank involved, if known.
func (c roundContext) Peer() (int, bool) { return c.peer, c.hasPeer }

// -----------------------------------------------------------------------------
// Domain-Specific Errors
// -----------------------------------------------------------------------------

// ConfigError reports a pre-flight configuration problem.
//
// Example:
//
//	err := errors.NewConfigError("grid.block_size", 33, errors.ErrIndivisibleGrid)
//	fmt.Println(err) // "config error [field=grid.block_size, value=33]: block size must divide the grid resolution"
type ConfigError struct {
	baseError
	Field string
	Value any
}

// NewConfigError creates a ConfigError for field.
func NewConfigError(field string, value any, cause error) *ConfigError {
	msg := "invalid configuration"
	if cause != nil {
		msg = cause.Error()
	}
	return &ConfigError{
		baseError: baseError{
			message:    msg,
			cause:      cause,
			severity:   SeverityError,
			userFacing: true,
		},
		Field: field,
		Value: value,
	}
}

// Error returns the formatted error message.
func (e *ConfigError) Error() string {
	var parts []string
	if e.Field != "" {
		parts = append(parts, "field="+e.Field)
	}
	if e.Value != nil {
		parts = append(parts, fmt.Sprintf("value=%v", e.Value))
	}
	prefix := "config error"
	if len(parts) > 0 {
		prefix = fmt.Sprintf("%s [%s]", prefix, strings.Join(parts, ", "))
	}
	return fmt.Sprintf("%s: %s", prefix, e.message)
}

// Is matches any *ConfigError, or the wrapped cause.
func (e *ConfigError) Is(target error) bool {
	if _, ok := target.(*ConfigError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// ContractError reports a violation of the task/message contract. It is
// always fatal to the round.
type ContractError struct {
	baseError
	roundContext
	Key     string
	PeerKey string
}

// NewContractError creates a ContractError.
func NewContractError(message string, cause error) *ContractError {
	return &ContractError{
		baseError: baseError{
			message:  message,
			cause:    cause,
			severity: SeverityCritical,
			fatal:    true,
		},
	}
}

// WithRound records the round number.
func (e *ContractError) WithRound(round uint64) *ContractError {
	e.round, e.hasRound = round, true
	return e
}

// WithRank records the local rank.
func (e *ContractError) WithRank(rank int) *ContractError {
	e.rank, e.hasRank = rank, true
	return e
}

// WithKey records the key of the offending task.
func (e *ContractError) WithKey(key any) *ContractError {
	e.Key = fmt.Sprint(key)
	return e
}

// WithPeerKey records the key on the other end of the offending message.
func (e *ContractError) WithPeerKey(key any) *ContractError {
	e.PeerKey = fmt.Sprint(key)
	return e
}

// Error returns the formatted error message.
func (e *ContractError) Error() string {
	parts := e.parts()
	if e.Key != "" {
		parts = append(parts, "key="+e.Key)
	}
	if e.PeerKey != "" {
		parts = append(parts, "peer_key="+e.PeerKey)
	}
	return e.format("contract violation", parts)
}

// Is matches any *ContractError, or the wrapped cause.
func (e *ContractError) Is(target error) bool {
	if _, ok := target.(*ContractError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// CodecError reports a message that could not be encoded or decoded.
type CodecError struct {
	baseError
	roundContext
}

// NewCodecError creates a CodecError.
func NewCodecError(message string, cause error) *CodecError {
	return &CodecError{
		baseError: baseError{
			message:  message,
			cause:    cause,
			severity: SeverityCritical,
			fatal:    true,
		},
	}
}

// WithRound records the round number.
func (e *CodecError) WithRound(round uint64) *CodecError {
	e.round, e.hasRound = round, true
	return e
}

// WithRank records the local rank.
func (e *CodecError) WithRank(rank int) *CodecError {
	e.rank, e.hasRank = rank, true
	return e
}

// WithPeer records the remote rank.
func (e *CodecError) WithPeer(peer int) *CodecError {
	e.peer, e.hasPeer = peer, true
	return e
}

// Error returns the formatted error message.
func (e *CodecError) Error() string {
	return e.format("codec error", e.parts())
}

// Is matches any *CodecError, or the wrapped cause.
func (e *CodecError) Is(target error) bool {
	if _, ok := target.(*CodecError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// TransportError reports a communicator failure. The scheduler treats it as
// fatal to the round; it is retryable only above the scheduler.
type TransportError struct {
	baseError
	roundContext
}

// NewTransportError creates a TransportError.
func NewTransportError(message string, cause error) *TransportError {
	return &TransportError{
		baseError: baseError{
			message:   message,
			cause:     cause,
			severity:  SeverityError,
			retryable: true,
			fatal:     true,
		},
	}
}

// WithRound records the round number.
func (e *TransportError) WithRound(round uint64) *TransportError {
	e.round, e.hasRound = round, true
	return e
}

// WithRank records the local rank.
func (e *TransportError) WithRank(rank int) *TransportError {
	e.rank, e.hasRank = rank, true
	return e
}

// WithPeer records the remote rank.
func (e *TransportError) WithPeer(peer int) *TransportError {
	e.peer, e.hasPeer = peer, true
	return e
}

// WithRetryable overrides the default retry classification.
func (e *TransportError) WithRetryable(r bool) *TransportError {
	e.retryable = r
	return e
}

// Error returns the formatted error message.
func (e *TransportError) Error() string {
	return e.format("transport error", e.parts())
}

// Is matches any *TransportError, or the wrapped cause.
func (e *TransportError) Is(target error) bool {
	if _, ok := target.(*TransportError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// -----------------------------------------------------------------------------
// Error Classification Helpers
// -----------------------------------------------------------------------------

// IsRetryable reports whether err may succeed when retried from a fold
// boundary.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var engineErr EngineError
	if As(err, &engineErr) {
		return engineErr.IsRetryable()
	}
	return false
}

// IsUserFacing reports whether err is meant to be shown as-is to the person
// running the tool.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	var engineErr EngineError
	if As(err, &engineErr) {
		return engineErr.IsUserFacing()
	}
	return false
}

// IsFatal reports whether err must abort the run rather than be logged and
// ignored.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	var engineErr EngineError
	if As(err, &engineErr) {
		return engineErr.IsFatal()
	}
	return false
}

// GetSeverity returns the severity level of the error.
// Returns SeverityError for errors outside this package.
func GetSeverity(err error) Severity {
	if err == nil {
		return SeverityDebug
	}
	var engineErr EngineError
	if As(err, &engineErr) {
		return engineErr.Severity()
	}
	return SeverityError
}

// Wrap wraps an error with additional context message.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with a formatted context message.
func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}
