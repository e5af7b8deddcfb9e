package transfer

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/opd-ai/sftptask/remote"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

var testEpoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

var testParams = remote.ConnectionParams{
	Host:     "sftp.example.test",
	Username: "tester",
	Password: "secret",
}

// progressRecorder collects percentages delivered by the worker.
type progressRecorder struct {
	mu     sync.Mutex
	values []int
}

func (p *progressRecorder) record(percent int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.values = append(p.values, percent)
}

func (p *progressRecorder) all() []int {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]int, len(p.values))
	copy(out, p.values)
	return out
}

// writeRecorder collects the offsets of remote writes.
type writeRecorder struct {
	mu      sync.Mutex
	offsets []int64
}

func (w *writeRecorder) hook(path string, offset int64, n int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.offsets = append(w.offsets, offset)
}

func (w *writeRecorder) all() []int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]int64, len(w.offsets))
	copy(out, w.offsets)
	return out
}

// watchStop wraps the running worker's stop token. The returned channel is
// closed once the token has fired. Call it from the worker, e.g. in an I/O hook.
func (e *Engine) watchStop() <-chan struct{} {
	fired := make(chan struct{})
	var once sync.Once

	e.mu.Lock()
	cancel := e.cancel
	e.cancel = func() {
		cancel()
		once.Do(func() { close(fired) })
	}
	e.mu.Unlock()

	return fired
}

func quietLogger() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

// newTestEngine returns an engine with an active session over ch.
func newTestEngine(t *testing.T, ch *remote.MemoryChannel, opts ...Option) *Engine {
	t.Helper()

	e, err := NewEngine(ch, append([]Option{WithLogger(quietLogger())}, opts...)...)
	require.NoError(t, err)
	require.NoError(t, e.Init())
	require.NoError(t, e.StartSession(context.Background(), testParams))

	t.Cleanup(func() {
		if e.Working() {
			_ = e.Cancel()
		}
		_ = e.StopSession()
	})
	return e
}

// testPattern returns n deterministic, non-repeating-per-chunk bytes.
func testPattern(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(i*7 + i/251)
	}
	return b
}

func writeLocal(t *testing.T, dir, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func readLocal(t *testing.T, path string) []byte {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return data
}

func recordExists(dir string) bool {
	_, err := os.Stat(filepath.Join(dir, "transferInfo.json"))
	return err == nil
}

func waitResult(t *testing.T, r *Result) (int64, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	n, err := r.Wait(ctx)
	require.NotErrorIs(t, err, context.DeadlineExceeded, "transfer did not finish")
	return n, err
}

func waitIdle(t *testing.T, e *Engine) {
	t.Helper()
	require.Eventually(t, func() bool { return !e.Working() }, 5*time.Second, time.Millisecond)
}

// statFailChannel wraps MemoryChannel so that Stat(path) succeeds okStats times
// and then fails.
type statFailChannel struct {
	*remote.MemoryChannel
	path    string
	okStats int32
}

func (c *statFailChannel) Dial(ctx context.Context, params remote.ConnectionParams) (remote.Session, error) {
	s, err := c.MemoryChannel.Dial(ctx, params)
	if err != nil {
		return nil, err
	}
	return &statFailSession{Session: s, ch: c}, nil
}

type statFailSession struct {
	remote.Session
	ch    *statFailChannel
	stats atomic.Int32
}

func (s *statFailSession) Stat(path string) (remote.FileInfo, error) {
	if path == s.ch.path && s.stats.Add(1) > s.ch.okStats {
		return remote.FileInfo{}, remote.ErrInjected
	}
	return s.Session.Stat(path)
}

// trailingErrorChannel wraps MemoryChannel so that the read of path which
// reaches size returns err together with its bytes.
type trailingErrorChannel struct {
	*remote.MemoryChannel
	path string
	size int64
	err  error
}

func (c *trailingErrorChannel) Dial(ctx context.Context, params remote.ConnectionParams) (remote.Session, error) {
	s, err := c.MemoryChannel.Dial(ctx, params)
	if err != nil {
		return nil, err
	}
	return &trailingErrorSession{Session: s, ch: c}, nil
}

type trailingErrorSession struct {
	remote.Session
	ch *trailingErrorChannel
}

func (s *trailingErrorSession) OpenFile(path string, mode remote.OpenMode) (remote.File, error) {
	f, err := s.Session.OpenFile(path, mode)
	if err != nil || path != s.ch.path || mode != remote.ReadOnly {
		return f, err
	}
	return &trailingErrorFile{File: f, ch: s.ch}, nil
}

type trailingErrorFile struct {
	remote.File
	ch  *trailingErrorChannel
	pos int64
}

func (f *trailingErrorFile) Read(p []byte) (int, error) {
	n, err := f.File.Read(p)
	f.pos += int64(n)
	if err == nil && n > 0 && f.pos >= f.ch.size {
		err = f.ch.err
	}
	return n, err
}

func (f *trailingErrorFile) Seek(offset int64, whence int) (int64, error) {
	pos, err := f.File.Seek(offset, whence)
	if err == nil {
		f.pos = pos
	}
	return pos, err
}
