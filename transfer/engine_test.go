package transfer

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/opd-ai/sftptask/limits"
	"github.com/opd-ai/sftptask/remote"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEngineValidation(t *testing.T) {
	_, err := NewEngine(nil)
	assert.Error(t, err)

	ch := remote.NewMemoryChannel()

	_, err = NewEngine(ch, WithChunkSize(0))
	assert.ErrorIs(t, err, limits.ErrChunkSizeTooSmall)

	_, err = NewEngine(ch, WithChunkSize(limits.MaxChunkSize+1))
	assert.ErrorIs(t, err, limits.ErrChunkSizeTooLarge)

	_, err = NewEngine(ch, WithCancelCheckInterval(0))
	assert.ErrorIs(t, err, limits.ErrInvalidCheckInterval)

	e, err := NewEngine(ch)
	require.NoError(t, err)
	assert.Equal(t, limits.DefaultChunkSize, e.chunkSize)
	assert.Equal(t, limits.DefaultCancelCheckInterval, e.cancelCheckInterval)
	assert.NotNil(t, e.localFS)
	assert.NotNil(t, e.records)
	assert.NotNil(t, e.logger)
}

func TestEngineInit(t *testing.T) {
	ch := remote.NewMemoryChannel()
	e, err := NewEngine(ch, WithLogger(quietLogger()))
	require.NoError(t, err)

	assert.ErrorIs(t, e.StartSession(context.Background(), testParams), ErrNotInitialized)

	ch.SetInitError(errors.New("library missing"))
	assert.ErrorIs(t, e.Init(), remote.ErrInit)

	ch.SetInitError(nil)
	require.NoError(t, e.Init())

	// Once initialized, later channel failures are not observed.
	ch.SetInitError(errors.New("library missing"))
	assert.NoError(t, e.Init())
}

// failingInitChannel returns an unwrapped error from Init.
type failingInitChannel struct {
	*remote.MemoryChannel
}

func (failingInitChannel) Init() error { return errors.New("plain failure") }

func TestEngineInitWrapsForeignErrors(t *testing.T) {
	e, err := NewEngine(failingInitChannel{remote.NewMemoryChannel()}, WithLogger(quietLogger()))
	require.NoError(t, err)
	assert.ErrorIs(t, e.Init(), remote.ErrInit)
}

func TestStartSessionIdempotent(t *testing.T) {
	ch := remote.NewMemoryChannel()
	e, err := NewEngine(ch, WithLogger(quietLogger()))
	require.NoError(t, err)
	require.NoError(t, e.Init())

	require.NoError(t, e.StartSession(context.Background(), testParams))
	require.NoError(t, e.StartSession(context.Background(), testParams))
	assert.Equal(t, 1, ch.Dials())
	assert.Equal(t, 1, ch.OpenSessions())

	require.NoError(t, e.StopSession())
	assert.Equal(t, 0, ch.OpenSessions())
	assert.ErrorIs(t, e.StopSession(), ErrNotStarted)

	// A stopped engine can start again.
	require.NoError(t, e.StartSession(context.Background(), testParams))
	assert.Equal(t, 2, ch.Dials())
	require.NoError(t, e.StopSession())
}

func TestStartSessionFailures(t *testing.T) {
	tests := []struct {
		name    string
		dialErr error
	}{
		{name: "connect", dialErr: remote.ErrConnect},
		{name: "handshake", dialErr: remote.ErrHandshake},
		{name: "auth", dialErr: remote.ErrAuth},
		{name: "channel_init", dialErr: remote.ErrChannelInit},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ch := remote.NewMemoryChannel()
			ch.SetDialError(tt.dialErr)
			e, err := NewEngine(ch, WithLogger(quietLogger()))
			require.NoError(t, err)
			require.NoError(t, e.Init())

			err = e.StartSession(context.Background(), testParams)
			assert.ErrorIs(t, err, tt.dialErr)
			assert.Equal(t, 0, ch.OpenSessions())

			_, err = e.Upload("/l", "/r", nil)
			assert.ErrorIs(t, err, ErrNotStarted)
			assert.ErrorIs(t, e.StopSession(), ErrNotStarted)

			ch.SetDialError(nil)
			require.NoError(t, e.StartSession(context.Background(), testParams))
			require.NoError(t, e.StopSession())
		})
	}
}

func TestSubmitPreconditions(t *testing.T) {
	ch := remote.NewMemoryChannel()
	e, err := NewEngine(ch, WithLogger(quietLogger()))
	require.NoError(t, err)
	require.NoError(t, e.Init())

	// Path validation comes before the session check.
	_, err = e.Upload("", "/r", nil)
	assert.ErrorIs(t, err, ErrInvalidPath)
	_, err = e.Download("/l", "", nil)
	assert.ErrorIs(t, err, ErrInvalidPath)

	_, err = e.Upload("/l", "/r", nil)
	assert.ErrorIs(t, err, ErrNotStarted)
	_, err = e.Download("/l", "/r", nil)
	assert.ErrorIs(t, err, ErrNotStarted)

	assert.False(t, e.Working())
	assert.ErrorIs(t, e.Cancel(), ErrNotWorking)
	_, ok := e.Snapshot()
	assert.False(t, ok)
}

func TestSubmitWhileWorkingIsRejected(t *testing.T) {
	ch := remote.NewMemoryChannel()
	e := newTestEngine(t, ch)
	dir := t.TempDir()
	data := testPattern(5000)
	local := writeLocal(t, dir, "a.bin", data)

	entered := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	ch.OnWrite(func(path string, offset int64, n int) {
		once.Do(func() {
			close(entered)
			<-release
		})
	})

	result, err := e.Upload(local, "/upload/a.bin", nil)
	require.NoError(t, err)
	<-entered

	assert.True(t, e.Working())
	snap, ok := e.Snapshot()
	require.True(t, ok)
	assert.Equal(t, Upload, snap.Direction)
	assert.Equal(t, local, snap.LocalPath)
	assert.Equal(t, "/upload/a.bin", snap.RemotePath)
	assert.Equal(t, int64(5000), snap.Total)

	other := writeLocal(t, dir, "b.bin", []byte("other"))
	_, err = e.Upload(other, "/upload/b.bin", nil)
	assert.ErrorIs(t, err, ErrBusy)
	_, err = e.Download(other, "/upload/a.bin", nil)
	assert.ErrorIs(t, err, ErrBusy)

	close(release)
	n, err := waitResult(t, result)
	require.NoError(t, err)
	assert.Equal(t, int64(5000), n)

	got, ok := ch.FileData("/upload/a.bin")
	require.True(t, ok)
	assert.Equal(t, data, got)
	_, ok = ch.FileData("/upload/b.bin")
	assert.False(t, ok, "rejected submission must have no side effects")

	// The engine accepts work again once the first transfer resolved.
	result, err = e.Upload(other, "/upload/b.bin", nil)
	require.NoError(t, err)
	_, err = waitResult(t, result)
	require.NoError(t, err)
}

func TestStopSessionCancelsRunningTransfer(t *testing.T) {
	ch := remote.NewMemoryChannel()
	e, err := NewEngine(ch, WithLogger(quietLogger()))
	require.NoError(t, err)
	require.NoError(t, e.Init())
	require.NoError(t, e.StartSession(context.Background(), testParams))

	dir := t.TempDir()
	local := writeLocal(t, dir, "a.bin", testPattern(5000))

	entered := make(chan struct{})
	var once sync.Once
	ch.OnWrite(func(path string, offset int64, n int) {
		once.Do(func() {
			stopped := e.watchStop()
			close(entered)
			<-stopped
		})
	})

	progress := &progressRecorder{}
	result, err := e.Upload(local, "/upload/a.bin", progress.record)
	require.NoError(t, err)
	<-entered

	require.NoError(t, e.StopSession())
	assert.False(t, e.Working())
	assert.Equal(t, 0, ch.OpenSessions())

	_, err = waitResult(t, result)
	var incomplete *IncompleteError
	require.ErrorAs(t, err, &incomplete)
	assert.ErrorIs(t, err, ErrCancelled)
	assert.Equal(t, int64(1024), incomplete.Transferred)
	assert.Equal(t, []int{20, ProgressFailed}, progress.all())
	assert.True(t, recordExists(dir))

	_, err = e.Upload(local, "/upload/a.bin", nil)
	assert.ErrorIs(t, err, ErrNotStarted)
}

func TestDefaultRecordStoreUsesEngineLogger(t *testing.T) {
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)

	ch := remote.NewMemoryChannel()
	e := newTestEngine(t, ch, WithLogger(logger.WithField("component", "engine-under-test")))
	local := writeLocal(t, t.TempDir(), "a.bin", testPattern(5000))

	ch.FailWritesAfter(2, nil)
	result, err := e.Upload(local, "/upload/a.bin", nil)
	require.NoError(t, err)
	_, err = waitResult(t, result)
	require.ErrorIs(t, err, ErrWrite)

	var saved *logrus.Entry
	for _, entry := range hook.AllEntries() {
		if entry.Message == "Resume record saved" {
			saved = entry
		}
	}
	require.NotNil(t, saved, "record store must log through the engine logger")
	assert.Equal(t, "engine-under-test", saved.Data["component"])
}

func TestDirectionString(t *testing.T) {
	assert.Equal(t, "upload", Upload.String())
	assert.Equal(t, "download", Download.String())
	assert.Equal(t, "unknown", Direction(9).String())
}
