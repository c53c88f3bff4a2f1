package session

import "errors"

var (
	// ErrDuplicateCall is returned by Registry.Create when a session already
	// exists for the call SID.
	ErrDuplicateCall = errors.New("session already exists for call")

	// ErrSessionClosed is returned when an operation arrives for a session
	// that has already begun teardown.
	ErrSessionClosed = errors.New("session closed")

	// ErrToolProtocol marks tool-call events arriving in an order the
	// assembler does not accept. The event is dropped; the call continues.
	ErrToolProtocol = errors.New("tool call protocol violation")

	// ErrToolArguments marks assembled tool arguments that failed to parse.
	// The invocation is reported back to the engine as a failed tool result.
	ErrToolArguments = errors.New("tool arguments not parseable")

	// ErrHandshakeFailed marks an engine connection that could not be
	// established or configured. Terminal for the one session only.
	ErrHandshakeFailed = errors.New("engine handshake failed")
)
