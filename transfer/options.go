package transfer

import (
	"github.com/go-git/go-billy/v5"
	"github.com/opd-ai/sftptask/limits"
	"github.com/opd-ai/sftptask/resume"
	"github.com/sirupsen/logrus"
)

// Option configures an Engine.
type Option func(*Engine)

// WithChunkSize sets the largest number of bytes moved per read.
// Default: limits.DefaultChunkSize
func WithChunkSize(size int) Option {
	return func(e *Engine) {
		e.chunkSize = size
	}
}

// WithCancelCheckInterval sets how many chunks pass between checks for cancellation.
// Default: limits.DefaultCancelCheckInterval
func WithCancelCheckInterval(chunks int) Option {
	return func(e *Engine) {
		e.cancelCheckInterval = chunks
	}
}

// WithLocalFS sets the filesystem holding local files.
// Default: the OS filesystem rooted at "/", so local paths should be absolute
func WithLocalFS(fs billy.Filesystem) Option {
	return func(e *Engine) {
		e.localFS = fs
	}
}

// WithRecordStore sets where resume records are kept.
// Default: a store on the local filesystem
func WithRecordStore(store *resume.Store) Option {
	return func(e *Engine) {
		e.records = store
	}
}

// WithLogger sets the entry all engine logging is derived from.
func WithLogger(logger *logrus.Entry) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

func (e *Engine) validate() error {
	if err := limits.ValidateChunkSize(e.chunkSize); err != nil {
		return err
	}
	return limits.ValidateCancelCheckInterval(e.cancelCheckInterval)
}
