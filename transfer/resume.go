package transfer

import (
	"errors"

	"github.com/opd-ai/sftptask/remote"
	"github.com/opd-ai/sftptask/resume"
	"github.com/sirupsen/logrus"
)

// canResume reports whether the partial destination of a previous attempt at
// this exact pair may be continued. Every failure counts as "no".
func (e *Engine) canResume(session remote.Session, localPath, remotePath string) bool {
	logger := e.logger.WithFields(logrus.Fields{
		"function":    "Engine.canResume",
		"local_path":  localPath,
		"remote_path": remotePath,
	})

	rec, err := e.records.Load(localPath)
	switch {
	case errors.Is(err, resume.ErrNotFound):
		logger.Debug("No resume record, starting from zero")
		return false
	case err != nil:
		logger.WithError(err).Warn("Unreadable resume record, starting from zero")
		return false
	}

	if !rec.Matches(localPath, remotePath) {
		logger.WithFields(logrus.Fields{
			"record_local_path":  rec.LocalPath,
			"record_remote_path": rec.RemotePath,
		}).Debug("Resume record is for another transfer")
		return false
	}

	remoteInfo, err := session.Stat(remotePath)
	if err != nil {
		logger.WithError(err).Debug("Cannot stat remote file, starting from zero")
		return false
	}
	localInfo, err := e.localFS.Stat(localPath)
	if err != nil {
		logger.WithError(err).Debug("Cannot stat local file, starting from zero")
		return false
	}

	if !rec.Fresh(localInfo.ModTime(), remoteInfo.ModTime) {
		logger.WithFields(logrus.Fields{
			"record_local_mod_time":  rec.LocalModTime,
			"local_mod_time":         localInfo.ModTime().Unix(),
			"record_remote_mod_time": rec.RemoteModTime,
			"remote_mod_time":        remoteInfo.ModTime.Unix(),
		}).Info("File changed since interruption, starting from zero")
		return false
	}

	logger.Info("Resuming interrupted transfer")
	return true
}

// saveRecord stores the live modification times of both files so the next
// attempt can continue. Failures are logged only.
func (e *Engine) saveRecord(session remote.Session, t *task) {
	logger := e.logger.WithFields(logrus.Fields{
		"function":    "Engine.saveRecord",
		"local_path":  t.localPath,
		"remote_path": t.remotePath,
	})

	localInfo, err := e.localFS.Stat(t.localPath)
	if err != nil {
		logger.WithError(err).Warn("Cannot stat local file, resume record not saved")
		return
	}
	remoteInfo, err := session.Stat(t.remotePath)
	if err != nil {
		logger.WithError(err).Warn("Cannot stat remote file, resume record not saved")
		return
	}

	rec := resume.NewRecord(t.localPath, t.remotePath, localInfo.ModTime(), remoteInfo.ModTime)
	if err := e.records.Save(rec); err != nil {
		logger.WithError(err).Warn("Failed to save resume record")
	}
}
