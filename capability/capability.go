// Package capability abstracts the privileged host primitives the agent core
// needs — storage, line-oriented input, structured logging, and background
// worker handles — behind a single Provider interface.
//
// Two implementations exist: [Host] for processes with full host privileges,
// and [Restricted] for sandboxed execution contexts that lack filesystem,
// process, and socket primitives. Callers never branch on environment; they
// are handed a Provider at startup and only ever call the interface.
package capability

import "go.uber.org/zap"

// Storage is the filesystem capability.
type Storage interface {
	// Read returns the full contents of the file at path.
	Read(path string) ([]byte, error)

	// Write replaces the contents of the file at path.
	Write(path string, data []byte) error

	// List returns the names of entries in the directory at path.
	List(path string) ([]string, error)

	// Delete removes the file at path.
	Delete(path string) error
}

// LineInput is the line-oriented input subscription capability.
type LineInput interface {
	// Subscribe returns a channel of input lines. The channel is closed
	// when the underlying source ends or the input is closed.
	Subscribe() (<-chan string, error)

	// Close releases the subscription. Safe to call more than once.
	Close() error
}

// WorkerHandle is a minimal resource handle for a background worker.
// The restricted substitute and the real implementation are interchangeable:
// every method exists and returns the same shape in both.
type WorkerHandle interface {
	// Write sends data to the worker's input.
	Write(p []byte) (int, error)

	// End closes the worker's input, signalling no further writes.
	End() error

	// Unref detaches the worker from the owner's lifecycle so it does not
	// keep the process alive.
	Unref()

	// Terminate stops the worker. Idempotent.
	Terminate() error
}

// Provider is the capability substitution table. It is resolved once at
// process start and injected into every component that would otherwise need
// privileged host access.
type Provider interface {
	// Storage returns the filesystem capability.
	Storage() Storage

	// Input returns the line-oriented input capability.
	Input() LineInput

	// Logger returns the root structured logger. Child loggers derived via
	// Named/With behave identically in both implementations.
	Logger() *zap.Logger

	// Worker starts a background worker running the given command.
	Worker(name, command string, args ...string) (WorkerHandle, error)
}
