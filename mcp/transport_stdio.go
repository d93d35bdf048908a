package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
)

// maxLineBytes bounds a single framed message read from the subprocess.
const maxLineBytes = 8 << 20

// stdioTransport reaches a server by spawning a subprocess and exchanging
// newline-delimited JSON over its standard streams. Unexpected process exit
// is a terminal transport error.
type stdioTransport struct {
	command string
	args    []string
	env     map[string]string

	cmd   *exec.Cmd
	stdin io.WriteCloser
	ch    chan *Response

	sendMu    sync.Mutex
	closeOnce sync.Once
	closed    chan struct{}

	errMu sync.Mutex
	err   error
}

var _ Transport = (*stdioTransport)(nil)

func newStdioTransport(cfg ServerConfig) *stdioTransport {
	return &stdioTransport{
		command: cfg.Command,
		args:    cfg.Args,
		env:     cfg.Env,
		ch:      make(chan *Response, 16),
		closed:  make(chan struct{}),
	}
}

// Connect spawns the subprocess. The process outlives ctx — ctx only bounds
// connection establishment, teardown happens in Close.
func (t *stdioTransport) Connect(_ context.Context) error {
	cmd := exec.Command(t.command, t.args...)
	cmd.Env = os.Environ()
	for k, v := range t.env {
		cmd.Env = append(cmd.Env, k+"="+v)
	}
	cmd.Stderr = os.Stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("%w: stdin pipe: %v", ErrConnection, err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("%w: stdout pipe: %v", ErrConnection, err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("%w: spawn %s: %v", ErrConnection, t.command, err)
	}

	t.cmd = cmd
	t.stdin = stdin
	go t.readLoop(stdout)
	return nil
}

// readLoop decodes inbound frames until the stream ends. Non-JSON output
// (server banners, stray prints) is skipped rather than treated as a
// protocol break.
func (t *stdioTransport) readLoop(stdout io.Reader) {
	defer close(t.ch)

	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || !strings.HasPrefix(line, "{") {
			continue
		}
		var resp Response
		if err := json.Unmarshal([]byte(line), &resp); err != nil {
			continue
		}
		select {
		case t.ch <- &resp:
		case <-t.closed:
			return
		}
	}

	// Stream ended. A deliberate Close is clean; anything else means the
	// process died under us.
	select {
	case <-t.closed:
	default:
		waitErr := t.cmd.Wait()
		t.setErr(fmt.Errorf("%w: %s exited unexpectedly: %v", ErrTransport, t.command, waitErr))
	}
}

func (t *stdioTransport) Send(_ context.Context, req *Request) error {
	select {
	case <-t.closed:
		return fmt.Errorf("%w: transport closed", ErrTransport)
	default:
	}
	if err := t.Err(); err != nil {
		return err
	}

	data, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("%w: encode request: %v", ErrTransport, err)
	}

	t.sendMu.Lock()
	defer t.sendMu.Unlock()
	if _, err := t.stdin.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("%w: write to %s: %v", ErrTransport, t.command, err)
	}
	return nil
}

func (t *stdioTransport) Receive() <-chan *Response { return t.ch }

func (t *stdioTransport) Err() error {
	t.errMu.Lock()
	defer t.errMu.Unlock()
	return t.err
}

func (t *stdioTransport) setErr(err error) {
	t.errMu.Lock()
	defer t.errMu.Unlock()
	if t.err == nil {
		t.err = err
	}
}

func (t *stdioTransport) Close() error {
	t.closeOnce.Do(func() {
		close(t.closed)
		if t.stdin != nil {
			_ = t.stdin.Close()
		}
		if t.cmd != nil && t.cmd.Process != nil {
			_ = t.cmd.Process.Kill()
			_ = t.cmd.Wait()
		}
	})
	return nil
}
