package resume

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"
	"github.com/sirupsen/logrus"
)

var (
	// ErrNotFound indicates no record exists in the local file's directory.
	ErrNotFound = errors.New("resume record not found")

	// ErrCorrupt indicates the record file exists but cannot be decoded.
	ErrCorrupt = errors.New("resume record corrupt")

	// ErrInvalidRecord indicates a record without a local or remote path.
	ErrInvalidRecord = errors.New("resume record missing path")
)

// Store persists one Record per local directory on a billy filesystem.
// Store is not synchronized; the transfer engine only touches it from its worker.
type Store struct {
	fs     billy.Filesystem
	logger *logrus.Entry
}

// NewStore creates a store over fs that logs through the standard logrus logger.
func NewStore(fs billy.Filesystem) *Store {
	return &Store{fs: fs, logger: logrus.NewEntry(logrus.StandardLogger())}
}

// SetLogger replaces the entry the store logs through. A nil entry is ignored.
func (s *Store) SetLogger(logger *logrus.Entry) {
	if logger != nil {
		s.logger = logger
	}
}

// RecordPath returns the record location for localPath.
func (s *Store) RecordPath(localPath string) string {
	return filepath.Join(filepath.Dir(localPath), FileName)
}

// Load reads the record stored next to localPath.
// It returns ErrNotFound when there is none and ErrCorrupt when it cannot be parsed.
func (s *Store) Load(localPath string) (Record, error) {
	path := s.RecordPath(localPath)

	data, err := util.ReadFile(s.fs, path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Record{}, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return Record{}, fmt.Errorf("read %s: %w", path, err)
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return Record{}, fmt.Errorf("%w: %s: %v", ErrCorrupt, path, err)
	}

	s.logger.WithFields(logrus.Fields{
		"function":    "Store.Load",
		"record":      path,
		"local_path":  rec.LocalPath,
		"remote_path": rec.RemotePath,
	}).Debug("Resume record loaded")

	return rec, nil
}

// Save writes rec next to rec.LocalPath, replacing any previous record.
func (s *Store) Save(rec Record) error {
	if rec.LocalPath == "" || rec.RemotePath == "" {
		return ErrInvalidRecord
	}

	path := s.RecordPath(rec.LocalPath)
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode resume record: %w", err)
	}
	if err := util.WriteFile(s.fs, path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}

	s.logger.WithFields(logrus.Fields{
		"function":        "Store.Save",
		"record":          path,
		"local_path":      rec.LocalPath,
		"local_mod_time":  rec.LocalModTime,
		"remote_path":     rec.RemotePath,
		"remote_mod_time": rec.RemoteModTime,
	}).Debug("Resume record saved")

	return nil
}

// Remove deletes the record next to localPath if it was written for localPath.
// A record describing another file in the same directory is left in place.
// It reports whether a record was deleted.
func (s *Store) Remove(localPath string) (bool, error) {
	rec, err := s.Load(localPath)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return false, nil
		}
		if !errors.Is(err, ErrCorrupt) {
			return false, err
		}
		// Unreadable records belong to nobody; clear them.
	} else if rec.LocalPath != localPath {
		return false, nil
	}

	path := s.RecordPath(localPath)
	if err := s.fs.Remove(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("remove %s: %w", path, err)
	}

	s.logger.WithFields(logrus.Fields{
		"function": "Store.Remove",
		"record":   path,
	}).Debug("Resume record removed")

	return true, nil
}
