package capability

import (
	"bufio"
	"errors"
	"io"
	"os"
	"os/exec"
	"sync"

	"github.com/creack/pty"
	"go.uber.org/zap"
)

// HostOption configures the host provider.
type HostOption func(*hostProvider)

// WithInputSource overrides the reader used for line input. Defaults to
// os.Stdin.
func WithInputSource(r io.Reader) HostOption {
	return func(p *hostProvider) { p.inputSource = r }
}

// WithHostLogger overrides the root logger. Defaults to zap.NewProduction.
func WithHostLogger(log *zap.Logger) HostOption {
	return func(p *hostProvider) { p.log = log }
}

// WithWorkerPTY allocates a pseudo-terminal for workers started by the host
// provider. Some tool-server processes refuse to run line-buffered without
// one.
func WithWorkerPTY() HostOption {
	return func(p *hostProvider) { p.usePTY = true }
}

// Host returns the privileged capability provider backed by the real
// filesystem, standard input, and process spawning.
func Host(opts ...HostOption) Provider {
	p := &hostProvider{inputSource: os.Stdin}
	for _, fn := range opts {
		fn(p)
	}
	if p.log == nil {
		log, err := zap.NewProduction()
		if err != nil {
			log = zap.NewNop()
		}
		p.log = log
	}
	return p
}

type hostProvider struct {
	inputSource io.Reader
	log         *zap.Logger
	usePTY      bool
}

func (p *hostProvider) Storage() Storage { return hostStorage{} }

func (p *hostProvider) Input() LineInput {
	return &hostInput{source: p.inputSource}
}

func (p *hostProvider) Logger() *zap.Logger { return p.log }

func (p *hostProvider) Worker(name, command string, args ...string) (WorkerHandle, error) {
	cmd := exec.Command(command, args...)

	if p.usePTY {
		ptmx, err := pty.Start(cmd)
		if err == nil {
			return &hostWorker{cmd: cmd, stdin: ptmx, closer: ptmx, log: p.log.Named(name)}, nil
		}
		p.log.Warn("pty allocation failed, falling back to pipes",
			zap.String("worker", name), zap.Error(err))
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, err
	}
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Start(); err != nil {
		return nil, err
	}
	return &hostWorker{cmd: cmd, stdin: stdin, closer: stdin, log: p.log.Named(name)}, nil
}

// hostStorage implements Storage on the real filesystem.
type hostStorage struct{}

func (hostStorage) Read(path string) ([]byte, error)       { return os.ReadFile(path) }
func (hostStorage) Write(path string, data []byte) error   { return os.WriteFile(path, data, 0o644) }
func (hostStorage) Delete(path string) error               { return os.Remove(path) }

func (hostStorage) List(path string) ([]string, error) {
	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names, nil
}

// hostInput reads newline-delimited input from the configured source.
type hostInput struct {
	source io.Reader

	mu     sync.Mutex
	ch     chan string
	done   chan struct{}
	closed bool
}

func (in *hostInput) Subscribe() (<-chan string, error) {
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.ch != nil {
		return in.ch, nil
	}
	in.ch = make(chan string)
	in.done = make(chan struct{})

	go func() {
		defer close(in.ch)
		scanner := bufio.NewScanner(in.source)
		for scanner.Scan() {
			select {
			case in.ch <- scanner.Text():
			case <-in.done:
				return
			}
		}
	}()
	return in.ch, nil
}

func (in *hostInput) Close() error {
	in.mu.Lock()
	defer in.mu.Unlock()
	if !in.closed && in.done != nil {
		close(in.done)
	}
	in.closed = true
	return nil
}

// hostWorker wraps a spawned subprocess as a WorkerHandle.
type hostWorker struct {
	cmd    *exec.Cmd
	stdin  io.Writer
	closer io.Closer
	log    *zap.Logger

	once sync.Once
}

func (w *hostWorker) Write(p []byte) (int, error) { return w.stdin.Write(p) }

func (w *hostWorker) End() error { return w.closer.Close() }

func (w *hostWorker) Unref() {
	// Reap the process in the background so a detached worker does not
	// become a zombie.
	go func() { _ = w.cmd.Wait() }()
}

func (w *hostWorker) Terminate() error {
	var err error
	w.once.Do(func() {
		if w.cmd.Process != nil {
			err = w.cmd.Process.Kill()
			if errors.Is(err, os.ErrProcessDone) {
				err = nil
			}
			_ = w.cmd.Wait()
		}
		w.log.Debug("worker terminated")
	})
	return err
}
