package resume

import (
	"time"
)

// FileName is the name of the record file kept next to the local file.
const FileName = "transferInfo.json"

// Record describes an interrupted transfer. Modification times are Unix seconds,
// the granularity SFTP attributes carry.
type Record struct {
	RemotePath    string `json:"remote_path"`
	RemoteModTime int64  `json:"remote_file_m_time"`
	LocalPath     string `json:"local_path"`
	LocalModTime  int64  `json:"local_file_m_time"`
}

// NewRecord builds a record from the live modification times of both files.
func NewRecord(localPath, remotePath string, localModTime, remoteModTime time.Time) Record {
	return Record{
		RemotePath:    remotePath,
		RemoteModTime: remoteModTime.Unix(),
		LocalPath:     localPath,
		LocalModTime:  localModTime.Unix(),
	}
}

// Matches reports whether the record was written for this exact pair of paths.
func (r Record) Matches(localPath, remotePath string) bool {
	return r.LocalPath == localPath && r.RemotePath == remotePath
}

// Fresh reports whether neither file has been modified since the record was written.
func (r Record) Fresh(localModTime, remoteModTime time.Time) bool {
	return r.LocalModTime == localModTime.Unix() && r.RemoteModTime == remoteModTime.Unix()
}
