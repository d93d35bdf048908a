package capability

import (
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestRestrictedStorage_FailsDeterministically(t *testing.T) {
	s := Restricted().Storage()

	_, err := s.Read("any")
	require.ErrorIs(t, err, ErrUnavailable)
	assert.Contains(t, err.Error(), "storage read")

	require.ErrorIs(t, s.Write("any", []byte("x")), ErrUnavailable)
	require.ErrorIs(t, s.Delete("any"), ErrUnavailable)

	_, err = s.List("any")
	require.ErrorIs(t, err, ErrUnavailable)
}

func TestRestrictedInput_SubscribeFails(t *testing.T) {
	in := Restricted().Input()
	_, err := in.Subscribe()
	require.ErrorIs(t, err, ErrUnavailable)
	assert.NoError(t, in.Close())
}

func TestRestrictedLogger_ChildrenAreNoop(t *testing.T) {
	log := Restricted().Logger()
	require.NotNil(t, log)

	// Derived children must behave identically — themselves returning
	// further no-op children.
	child := log.Named("child").With(zap.String("k", "v"))
	require.NotNil(t, child)
	grandchild := child.Named("grandchild")
	require.NotNil(t, grandchild)
	grandchild.Info("ignored")
}

func TestRestrictedWorker_ContractComplete(t *testing.T) {
	w, err := Restricted().Worker("ignored", "node", "script.js")
	require.NoError(t, err)

	_, err = w.Write([]byte("data"))
	assert.ErrorIs(t, err, ErrUnavailable)

	assert.NoError(t, w.End())
	w.Unref()
	assert.NoError(t, w.Terminate())
	assert.NoError(t, w.Terminate(), "terminate is idempotent")
}

func TestHostStorage_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	s := Host(WithHostLogger(zap.NewNop())).Storage()

	path := filepath.Join(dir, "note.txt")
	require.NoError(t, s.Write(path, []byte("hello")))

	data, err := s.Read(path)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))

	names, err := s.List(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"note.txt"}, names)

	require.NoError(t, s.Delete(path))
	_, err = s.Read(path)
	assert.Error(t, err)
}

func TestHostInput_SubscribeReadsLines(t *testing.T) {
	src := strings.NewReader("first\nsecond\n")
	p := Host(WithInputSource(src), WithHostLogger(zap.NewNop()))

	in := p.Input()
	ch, err := in.Subscribe()
	require.NoError(t, err)

	var lines []string
	for line := range ch {
		lines = append(lines, line)
	}
	assert.Equal(t, []string{"first", "second"}, lines)
	assert.NoError(t, in.Close())
	assert.NoError(t, in.Close(), "close is idempotent")
}

func TestHostInput_SubscribeIsShared(t *testing.T) {
	src := strings.NewReader("only\n")
	in := Host(WithInputSource(src), WithHostLogger(zap.NewNop())).Input()

	ch1, err := in.Subscribe()
	require.NoError(t, err)
	ch2, err := in.Subscribe()
	require.NoError(t, err)
	assert.True(t, ch1 == ch2, "repeated subscriptions share one channel")

	for range ch1 {
	}
}

func TestHostWorker_SpawnFailure(t *testing.T) {
	p := Host(WithHostLogger(zap.NewNop()))
	_, err := p.Worker("missing", "/nonexistent/binary-for-test")
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrUnavailable), "host spawn errors are real OS errors")
}

func TestHostWorker_WriteAndTerminate(t *testing.T) {
	p := Host(WithHostLogger(zap.NewNop()))
	w, err := p.Worker("sink", "cat")
	require.NoError(t, err)

	_, err = w.Write([]byte("line\n"))
	require.NoError(t, err)

	require.NoError(t, w.End())
	require.NoError(t, w.Terminate())
	require.NoError(t, w.Terminate(), "terminate is idempotent")
}
