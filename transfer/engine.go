package transfer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/opd-ai/sftptask/limits"
	"github.com/opd-ai/sftptask/remote"
	"github.com/opd-ai/sftptask/resume"
	"github.com/sirupsen/logrus"
)

// Engine moves one file at a time over a remote channel, resuming interrupted
// transfers from the last confirmed byte. An Engine runs at most one transfer.
type Engine struct {
	channel             remote.Channel
	localFS             billy.Filesystem
	records             *resume.Store
	chunkSize           int
	cancelCheckInterval int
	logger              *logrus.Entry

	mu          sync.Mutex
	initialized bool
	session     remote.Session
	current     *task
	cancel      context.CancelFunc
	done        chan struct{}

	working atomic.Bool
}

// NewEngine creates an engine over channel. Init and StartSession must be called
// before submitting transfers.
func NewEngine(channel remote.Channel, opts ...Option) (*Engine, error) {
	if channel == nil {
		return nil, errors.New("remote channel is required")
	}

	e := &Engine{
		channel:             channel,
		chunkSize:           limits.DefaultChunkSize,
		cancelCheckInterval: limits.DefaultCancelCheckInterval,
	}
	for _, opt := range opts {
		opt(e)
	}
	if err := e.validate(); err != nil {
		return nil, err
	}

	if e.localFS == nil {
		e.localFS = osfs.New("/")
	}
	if e.logger == nil {
		e.logger = logrus.WithField("component", "sftp")
	}
	if e.records == nil {
		e.records = resume.NewStore(e.localFS)
		e.records.SetLogger(e.logger)
	}

	e.logger.WithFields(logrus.Fields{
		"function":              "NewEngine",
		"chunk_size":            e.chunkSize,
		"cancel_check_interval": e.cancelCheckInterval,
	}).Debug("Transfer engine created")

	return e, nil
}

// Init prepares the remote channel. It is idempotent once it has succeeded.
func (e *Engine) Init() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.initialized {
		return nil
	}

	if err := e.channel.Init(); err != nil {
		e.logger.WithFields(logrus.Fields{
			"function": "Engine.Init",
			"error":    err.Error(),
		}).Error("Remote channel initialization failed")
		if !errors.Is(err, remote.ErrInit) {
			err = fmt.Errorf("%w: %w", remote.ErrInit, err)
		}
		return err
	}

	e.initialized = true
	e.logger.WithField("function", "Engine.Init").Info("Transfer engine initialized")
	return nil
}

// StartSession connects and authenticates. It returns nil without redialing when
// a session is already active. On failure the engine stays without a session.
func (e *Engine) StartSession(ctx context.Context, params remote.ConnectionParams) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.initialized {
		return ErrNotInitialized
	}
	if e.session != nil {
		e.logger.WithFields(logrus.Fields{
			"function": "Engine.StartSession",
			"address":  params.Address(),
		}).Debug("Session already active")
		return nil
	}

	session, err := e.channel.Dial(ctx, params)
	if err != nil {
		e.logger.WithFields(logrus.Fields{
			"function": "Engine.StartSession",
			"address":  params.Address(),
			"user":     params.Username,
			"error":    err.Error(),
		}).Error("Failed to start session")
		return err
	}

	e.session = session
	e.logger.WithFields(logrus.Fields{
		"function": "Engine.StartSession",
		"address":  params.Address(),
		"user":     params.Username,
	}).Info("Session started")

	return nil
}

// StopSession cancels and joins a running transfer, then closes the session.
func (e *Engine) StopSession() error {
	e.mu.Lock()
	session := e.session
	if session == nil {
		e.mu.Unlock()
		return ErrNotStarted
	}
	e.session = nil
	cancel, done := e.cancel, e.done
	e.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}

	err := session.Close()
	logger := e.logger.WithField("function", "Engine.StopSession")
	if err != nil {
		logger.WithError(err).Warn("Session closed with errors")
		return err
	}
	logger.Info("Session stopped")
	return nil
}

// Upload copies localPath to remotePath in the background. onProgress may be nil.
func (e *Engine) Upload(localPath, remotePath string, onProgress ProgressFunc) (*Result, error) {
	return e.submit(Upload, localPath, remotePath, onProgress)
}

// Download copies remotePath to localPath in the background. onProgress may be nil.
func (e *Engine) Download(localPath, remotePath string, onProgress ProgressFunc) (*Result, error) {
	return e.submit(Download, localPath, remotePath, onProgress)
}

func (e *Engine) submit(direction Direction, localPath, remotePath string, onProgress ProgressFunc) (*Result, error) {
	if localPath == "" || remotePath == "" {
		return nil, ErrInvalidPath
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.session == nil {
		return nil, ErrNotStarted
	}
	if !e.working.CompareAndSwap(false, true) {
		e.logger.WithFields(logrus.Fields{
			"function":    "Engine.submit",
			"direction":   direction,
			"local_path":  localPath,
			"remote_path": remotePath,
		}).Warn("Rejected transfer while another is running")
		return nil, ErrBusy
	}

	// The previous worker has cleared working; wait until it has fully exited.
	if e.done != nil {
		<-e.done
	}

	ctx, cancel := context.WithCancel(context.Background())
	t := newTask(direction, localPath, remotePath, onProgress)
	result := newResult()
	done := make(chan struct{})

	e.current = t
	e.cancel = cancel
	e.done = done

	e.logger.WithFields(logrus.Fields{
		"function":    "Engine.submit",
		"direction":   direction,
		"local_path":  localPath,
		"remote_path": remotePath,
	}).Info("Transfer accepted")

	go e.run(ctx, cancel, e.session, t, result, done)

	return result, nil
}

// Cancel stops the running transfer and waits for its worker to exit.
func (e *Engine) Cancel() error {
	e.mu.Lock()
	if !e.working.Load() || e.cancel == nil {
		e.mu.Unlock()
		return ErrNotWorking
	}
	cancel, done := e.cancel, e.done
	e.mu.Unlock()

	e.logger.WithField("function", "Engine.Cancel").Info("Cancelling transfer")
	cancel()
	<-done
	return nil
}

// Working reports whether a transfer is running.
func (e *Engine) Working() bool {
	return e.working.Load()
}

// Snapshot returns the state of the running transfer. ok is false when idle.
func (e *Engine) Snapshot() (snap Snapshot, ok bool) {
	e.mu.Lock()
	t := e.current
	e.mu.Unlock()

	if t == nil || !e.working.Load() {
		return Snapshot{}, false
	}
	return t.snapshot(), true
}

func (e *Engine) run(ctx context.Context, cancel context.CancelFunc, session remote.Session, t *task, result *Result, done chan struct{}) {
	defer close(done)
	defer cancel()

	var err error
	switch t.direction {
	case Upload:
		err = e.upload(ctx, session, t)
	case Download:
		err = e.download(ctx, session, t)
	default:
		err = fmt.Errorf("unknown direction %d", t.direction)
	}

	e.finalize(session, t, result, err)
}
