// Package transport defines the minimal surface the relay core needs from a
// live client connection. The WebSocket layer provides the real
// implementation; tests substitute in-memory fakes.
package transport

// Conn is one live client transport session. Implementations must make
// WriteMessage safe for concurrent use; the relay core fans out to many
// connections from many goroutines.
type Conn interface {
	// SessionID returns the stable identifier assigned to this connection
	// for its lifetime.
	SessionID() string

	// WriteMessage pushes one outbound frame to the client. A failed write
	// is best-effort territory: callers log and move on, they never retry
	// or tear down unrelated state.
	WriteMessage(data []byte) error
}
