package adapter

import (
	"context"
)

// Adapter represents a network front end whose lifecycle is managed by the
// server.
//
// Lifecycle:
//  1. Creation: the adapter is created with its configuration and collaborators
//  2. Binding: Listen() binds the listening sockets
//  3. Startup: Serve() accepts connections and blocks until shutdown
//  4. Shutdown: Stop() initiates graceful shutdown with timeout
//
// Binding is separate from serving so a bind failure is reported to the
// caller of Start before anything runs in the background.
//
// Thread safety:
// Implementations must be safe for concurrent use. Stop() may be called
// concurrently with Serve().
type Adapter interface {
	// Listen binds the adapter's sockets without accepting yet.
	//
	// Returns an error when no address could be bound.
	Listen() error

	// Serve accepts connections until the context is cancelled or Stop is
	// called. Listen must have succeeded first.
	//
	// Returns:
	//   - nil on graceful shutdown
	//   - error if the adapter was never bound
	Serve(ctx context.Context) error

	// Stop initiates graceful shutdown.
	//
	// Implementations must:
	//   - Be safe to call multiple times (idempotent)
	//   - Be safe to call concurrently with Serve()
	//   - Respect the context timeout for shutdown operations
	//   - Clean up all resources (listeners, connections, goroutines)
	//
	// Returns:
	//   - nil if shutdown completed successfully
	//   - error if shutdown exceeded timeout and connections were force-closed
	Stop(ctx context.Context) error

	// Protocol returns the human-readable protocol name for logging and metrics.
	//
	// Examples: "JSON-RPC"
	Protocol() string

	// Port returns the bound TCP port, or the configured one before Listen.
	Port() int
}
