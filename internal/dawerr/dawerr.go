// Package dawerr defines the error taxonomy from spec.md §7 as a small
// set of sentinel kinds. Callers wrap them with fmt.Errorf("...: %w", ...)
// and branch on kind with errors.Is, rather than matching on error
// strings.
package dawerr

import "errors"

var (
	// ErrTransport marks a UDP send/receive failure.
	ErrTransport = errors.New("transport error")
	// ErrTimeout marks a request that received no reply within its
	// configured bound.
	ErrTimeout = errors.New("timeout")
	// ErrProtocol marks a reply whose shape didn't match expectations
	// (wrong arity, wrong types).
	ErrProtocol = errors.New("protocol violation")
	// ErrTool marks an exception raised while executing a tool call.
	ErrTool = errors.New("tool error")
	// ErrLLM marks a streaming failure or malformed tool-use from the
	// completion provider.
	ErrLLM = errors.New("llm error")
	// ErrClient marks malformed inbound client-channel input.
	ErrClient = errors.New("client error")
	// ErrFatal marks a startup failure that should terminate the
	// process (bind failure, DAW unreachable at startup).
	ErrFatal = errors.New("fatal error")
)

// Is reports whether err is (or wraps) the given sentinel kind.
func Is(err error, kind error) bool {
	return errors.Is(err, kind)
}
