package capability

import "go.uber.org/zap"

// Restricted returns the capability provider for sandboxed execution
// contexts. Storage and worker spawning fail deterministically with
// ErrUnavailable; logging and worker handles are no-op but contract-complete
// so call sites never need environment checks.
func Restricted() Provider {
	return restrictedProvider{}
}

type restrictedProvider struct{}

func (restrictedProvider) Storage() Storage    { return restrictedStorage{} }
func (restrictedProvider) Input() LineInput    { return &restrictedInput{} }
func (restrictedProvider) Logger() *zap.Logger { return zap.NewNop() }

func (restrictedProvider) Worker(name, command string, _ ...string) (WorkerHandle, error) {
	// Spawning is impossible here, but a handle is still returned: the
	// fire-and-forget call sites only need the handle's shape, not a live
	// process. Write reports the unavailability instead of failing silently.
	return noopWorker{}, nil
}

// restrictedStorage fails every call. It never silently no-ops: callers must
// be able to distinguish an empty result from an unsupported operation.
type restrictedStorage struct{}

func (restrictedStorage) Read(string) ([]byte, error)  { return nil, unavailable("storage read") }
func (restrictedStorage) Write(string, []byte) error   { return unavailable("storage write") }
func (restrictedStorage) List(string) ([]string, error) { return nil, unavailable("storage list") }
func (restrictedStorage) Delete(string) error          { return unavailable("storage delete") }

// restrictedInput has no input source to subscribe to.
type restrictedInput struct{}

func (*restrictedInput) Subscribe() (<-chan string, error) {
	return nil, unavailable("line input subscription")
}

func (*restrictedInput) Close() error { return nil }

// noopWorker satisfies WorkerHandle without a backing process.
type noopWorker struct{}

func (noopWorker) Write(p []byte) (int, error) { return 0, unavailable("worker write") }
func (noopWorker) End() error                  { return nil }
func (noopWorker) Unref()                      {}
func (noopWorker) Terminate() error            { return nil }
