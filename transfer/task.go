package transfer

import (
	"sync/atomic"

	"github.com/go-git/go-billy/v5"
	"github.com/opd-ai/sftptask/remote"
)

// Direction says which side of a transfer is the source.
type Direction uint8

const (
	// Upload copies a local file to the remote side.
	Upload Direction = iota
	// Download copies a remote file to the local side.
	Download
)

// String returns the direction name.
func (d Direction) String() string {
	switch d {
	case Upload:
		return "upload"
	case Download:
		return "download"
	default:
		return "unknown"
	}
}

// Snapshot is a point-in-time view of the running transfer.
type Snapshot struct {
	Direction   Direction
	LocalPath   string
	RemotePath  string
	Total       int64
	Transferred int64
}

// task is one in-flight transfer. Only the worker mutates it; total and
// transferred are atomic so Snapshot can read them.
type task struct {
	direction  Direction
	localPath  string
	remotePath string

	total       atomic.Int64
	transferred atomic.Int64
	progress    *progressReporter

	local  billy.File
	remote remote.File
}

func newTask(direction Direction, localPath, remotePath string, onProgress ProgressFunc) *task {
	return &task{
		direction:  direction,
		localPath:  localPath,
		remotePath: remotePath,
		progress:   newProgressReporter(onProgress),
	}
}

// advance records n more bytes confirmed at the destination and reports progress.
func (t *task) advance(n int) {
	transferred := t.transferred.Add(int64(n))
	t.progress.report(t.total.Load(), transferred)
}

func (t *task) complete() bool {
	return t.transferred.Load() == t.total.Load()
}

func (t *task) snapshot() Snapshot {
	return Snapshot{
		Direction:   t.direction,
		LocalPath:   t.localPath,
		RemotePath:  t.remotePath,
		Total:       t.total.Load(),
		Transferred: t.transferred.Load(),
	}
}
