package transfer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/opd-ai/sftptask/limits"
	"github.com/opd-ai/sftptask/remote"
	"github.com/sirupsen/logrus"
)

func (e *Engine) upload(ctx context.Context, session remote.Session, t *task) error {
	logger := e.logger.WithFields(logrus.Fields{
		"function":    "Engine.upload",
		"local_path":  t.localPath,
		"remote_path": t.remotePath,
	})

	var offset int64
	if e.canResume(session, t.localPath, t.remotePath) {
		f, err := session.OpenFile(t.remotePath, remote.WriteExisting)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrRemoteOpen, err)
		}
		t.remote = f

		info, err := session.Stat(t.remotePath)
		if err != nil {
			logger.WithError(err).Warn("Cannot size partial remote file, restarting from zero")
			if err := e.reopenRemoteTruncated(session, t); err != nil {
				return err
			}
		} else {
			offset = info.Size
		}
	} else {
		f, err := session.OpenFile(t.remotePath, remote.WriteCreateTruncate)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrRemoteOpen, err)
		}
		t.remote = f
	}

	local, err := e.localFS.Open(t.localPath)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrLocalOpen, err)
	}
	t.local = local

	info, err := e.localFS.Stat(t.localPath)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrStat, err)
	}
	total := info.Size()
	t.total.Store(total)
	if total == 0 {
		return ErrEmptyFile
	}

	if offset > total {
		logger.WithFields(logrus.Fields{
			"offset": offset,
			"total":  total,
		}).Warn("Remote file larger than local file, restarting from zero")
		if err := e.reopenRemoteTruncated(session, t); err != nil {
			return err
		}
		offset = 0
	}

	if offset > 0 {
		if _, err := t.local.Seek(offset, io.SeekStart); err != nil {
			return fmt.Errorf("%w: seek local: %w", ErrRead, err)
		}
		if _, err := t.remote.Seek(offset, io.SeekStart); err != nil {
			return fmt.Errorf("%w: seek remote: %w", ErrWrite, err)
		}
	}
	t.transferred.Store(offset)

	logger.WithFields(logrus.Fields{
		"offset": offset,
		"total":  total,
		"chunks": limits.ChunkCount(total-offset, e.chunkSize),
	}).Info("Upload started")

	return e.copyChunks(ctx, t.local, t.remote, t)
}

func (e *Engine) reopenRemoteTruncated(session remote.Session, t *task) error {
	if t.remote != nil {
		if err := t.remote.Close(); err != nil {
			e.logger.WithFields(logrus.Fields{
				"function":    "Engine.reopenRemoteTruncated",
				"remote_path": t.remotePath,
				"error":       err.Error(),
			}).Warn("Failed to close remote file before truncating")
		}
		t.remote = nil
	}
	f, err := session.OpenFile(t.remotePath, remote.WriteCreateTruncate)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrRemoteOpen, err)
	}
	t.remote = f
	return nil
}

func (e *Engine) download(ctx context.Context, session remote.Session, t *task) error {
	logger := e.logger.WithFields(logrus.Fields{
		"function":    "Engine.download",
		"local_path":  t.localPath,
		"remote_path": t.remotePath,
	})

	f, err := session.OpenFile(t.remotePath, remote.ReadOnly)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrRemoteOpen, err)
	}
	t.remote = f

	var offset int64
	if e.canResume(session, t.localPath, t.remotePath) {
		info, err := e.localFS.Stat(t.localPath)
		if err != nil {
			logger.WithError(err).Warn("Cannot size partial local file, restarting from zero")
		} else {
			offset = info.Size()
		}
	}

	info, err := session.Stat(t.remotePath)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrStat, err)
	}
	total := info.Size
	t.total.Store(total)

	if offset > total {
		logger.WithFields(logrus.Fields{
			"offset": offset,
			"total":  total,
		}).Warn("Local file larger than remote file, restarting from zero")
		offset = 0
	}

	if offset > 0 {
		local, err := e.localFS.OpenFile(t.localPath, os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrLocalOpen, err)
		}
		t.local = local
		if _, err := t.remote.Seek(offset, io.SeekStart); err != nil {
			return fmt.Errorf("%w: seek remote: %w", ErrRead, err)
		}
	} else {
		local, err := e.localFS.OpenFile(t.localPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrLocalOpen, err)
		}
		t.local = local
	}
	t.transferred.Store(offset)

	logger.WithFields(logrus.Fields{
		"offset": offset,
		"total":  total,
		"chunks": limits.ChunkCount(total-offset, e.chunkSize),
	}).Info("Download started")

	return e.copyChunks(ctx, t.remote, t.local, t)
}

// copyChunks moves the rest of the source to dst one chunk at a time until
// transferred reaches total. The stop token is checked before every
// cancelCheckInterval-th chunk.
func (e *Engine) copyChunks(ctx context.Context, src io.Reader, dst io.Writer, t *task) error {
	total := t.total.Load()
	buf := make([]byte, e.chunkSize)

	for chunk := 0; t.transferred.Load() < total; chunk++ {
		if chunk%e.cancelCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return ErrCancelled
			}
		}

		want := int64(len(buf))
		if remaining := total - t.transferred.Load(); remaining < want {
			want = remaining
		}

		n, rerr := src.Read(buf[:want])
		if n > 0 {
			if err := writeFull(dst, buf[:n], t.advance); err != nil {
				return err
			}
		}

		if rerr != nil {
			if errors.Is(rerr, io.EOF) {
				if t.transferred.Load() < total {
					return fmt.Errorf("%w: %w", ErrRead, io.ErrUnexpectedEOF)
				}
				break
			}
			return fmt.Errorf("%w: %w", ErrRead, rerr)
		}
		if n == 0 {
			return fmt.Errorf("%w: %w", ErrRead, io.ErrNoProgress)
		}

		e.logger.WithFields(logrus.Fields{
			"function":    "Engine.copyChunks",
			"chunk":       chunk,
			"bytes":       n,
			"transferred": t.transferred.Load(),
			"total":       total,
		}).Debug("Chunk transferred")
	}

	return nil
}

// writeFull writes p, retrying partial writes. advance is called after every
// write that moved bytes.
func writeFull(dst io.Writer, p []byte, advance func(int)) error {
	for len(p) > 0 {
		n, err := dst.Write(p)
		if n > 0 {
			advance(n)
			p = p[n:]
		}
		if err != nil {
			return fmt.Errorf("%w: %w", ErrWrite, err)
		}
		if n == 0 {
			return fmt.Errorf("%w: %w", ErrWrite, io.ErrShortWrite)
		}
	}
	return nil
}

// finalize closes both files, updates the resume record and resolves the result.
func (e *Engine) finalize(session remote.Session, t *task, result *Result, stepErr error) {
	logger := e.logger.WithFields(logrus.Fields{
		"function":    "Engine.finalize",
		"direction":   t.direction,
		"local_path":  t.localPath,
		"remote_path": t.remotePath,
	})

	if t.local != nil {
		if err := t.local.Close(); err != nil {
			logger.WithError(err).Warn("Failed to close local file")
		}
	}
	if t.remote != nil {
		if err := t.remote.Close(); err != nil {
			logger.WithError(err).Warn("Failed to close remote file")
		}
	}

	transferred := t.transferred.Load()
	total := t.total.Load()

	// Every byte reached the destination; an error reported alongside the
	// last read or write does not make the copy incomplete.
	if t.complete() && (stepErr == nil || total > 0) {
		if stepErr != nil {
			logger.WithError(stepErr).Warn("Ignoring error reported after the final byte")
		}
		if _, err := e.records.Remove(t.localPath); err != nil {
			logger.WithError(err).Warn("Failed to remove resume record")
		}
		logger.WithFields(logrus.Fields{
			"bytes": transferred,
		}).Info("Transfer complete")

		e.working.Store(false)
		result.resolve(transferred, nil)
		return
	}

	if stepErr == nil {
		stepErr = ErrCancelled
	}

	t.progress.fail()
	e.saveRecord(session, t)

	level := logrus.ErrorLevel
	if errors.Is(stepErr, ErrCancelled) {
		level = logrus.InfoLevel
	}
	logger.WithFields(logrus.Fields{
		"transferred": transferred,
		"total":       total,
		"error":       stepErr.Error(),
	}).Log(level, "Transfer incomplete")

	e.working.Store(false)
	result.resolve(transferred, &IncompleteError{
		Direction:   t.direction,
		Transferred: transferred,
		Total:       total,
		Cause:       stepErr,
	})
}
