// Package znperrors holds the sentinel error values shared across the znp
// module's packages: callers wrap a sentinel with fmt.Errorf("...: %w", ...)
// at the raising site and test for it with errors.Is/errors.As.
package znperrors

import "errors"

var (
	// ErrCommandNotRecognized is raised when the coprocessor answers a
	// request with RPCError.CommandNotRecognized (§4.4, §7).
	ErrCommandNotRecognized = errors.New("znp: command not recognized by coprocessor")

	// ErrInvalidCommandResponse is raised when a command's SRSP payload
	// fails to decode, does not match the pattern the request expected, or
	// decodes with a Status field indicating failure.
	ErrInvalidCommandResponse = errors.New("znp: invalid command response")

	// ErrKeyNotFound is raised by the security store when no NVRAM/address-
	// manager entry matches a lookup key.
	ErrKeyNotFound = errors.New("znp: key not found")

	// ErrLengthMismatch is raised by the NVRAM helper when a stored item's
	// length differs from what the caller is writing and the write was not
	// allowed to create; with create set, the helper runs the
	// delete+init+write resize flow instead (§4.5).
	ErrLengthMismatch = errors.New("znp: nvram item length mismatch")

	// ErrSecurity is raised by the security store when key material cannot
	// be derived, decoded, or cross-referenced.
	ErrSecurity = errors.New("znp: security store error")

	// ErrDelivery is raised when an AF data request's confirm reports a
	// delivery failure that the recovery ladder could not resolve (§4.7).
	ErrDelivery = errors.New("znp: data delivery failed")

	// ErrTimeout is raised when a request or callback wait exceeds its
	// configured deadline (§5).
	ErrTimeout = errors.New("znp: timed out waiting for response")

	// ErrDisconnected is raised when an operation is attempted after the
	// underlying UART connection has been closed or lost (§4.3, §4.4).
	ErrDisconnected = errors.New("znp: not connected")
)
