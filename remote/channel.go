package remote

import (
	"context"
	"errors"
	"io"
	"net"
	"os"
	"strconv"
	"time"
)

// DefaultPort is the standard SSH port used when ConnectionParams.Port is zero.
const DefaultPort = 22

// Setup errors. Each is returned wrapped with context; match with errors.Is.
var (
	// ErrInit indicates the channel library could not be prepared.
	ErrInit = errors.New("channel initialization failed")

	// ErrConnect indicates the TCP connection could not be established.
	ErrConnect = errors.New("connect failed")

	// ErrHandshake indicates the SSH handshake failed.
	ErrHandshake = errors.New("handshake failed")

	// ErrAuth indicates password authentication was rejected.
	ErrAuth = errors.New("authentication failed")

	// ErrChannelInit indicates the file-transfer subsystem could not be opened.
	ErrChannelInit = errors.New("file channel initialization failed")

	// ErrSessionClosed is returned by operations on a closed session or handle.
	ErrSessionClosed = errors.New("session closed")
)

// OpenMode selects how a remote file is opened.
type OpenMode uint8

const (
	// ReadOnly opens an existing file for reading.
	ReadOnly OpenMode = iota
	// WriteCreateTruncate creates the file or truncates an existing one.
	WriteCreateTruncate
	// WriteExisting opens an existing file for writing, keeping its content.
	WriteExisting
)

// String returns a human-readable name of the mode.
func (m OpenMode) String() string {
	switch m {
	case ReadOnly:
		return "read-only"
	case WriteCreateTruncate:
		return "write-create-truncate"
	case WriteExisting:
		return "write-existing"
	default:
		return "unknown"
	}
}

// Flags returns the os.OpenFile flags equivalent to the mode.
func (m OpenMode) Flags() int {
	switch m {
	case WriteCreateTruncate:
		return os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	case WriteExisting:
		return os.O_WRONLY
	default:
		return os.O_RDONLY
	}
}

// ConnectionParams identifies the remote endpoint and the credentials for it.
type ConnectionParams struct {
	Host     string
	Port     uint16
	Username string
	Password string
}

// Address returns host:port, substituting DefaultPort for a zero port.
func (p ConnectionParams) Address() string {
	port := p.Port
	if port == 0 {
		port = DefaultPort
	}
	return net.JoinHostPort(p.Host, strconv.Itoa(int(port)))
}

// FileInfo holds the remote attributes the engine relies on.
type FileInfo struct {
	Size    int64
	ModTime time.Time
}

// File is an open remote file handle.
type File interface {
	io.Reader
	io.Writer
	io.Seeker
	io.Closer
}

// Session is an authenticated file-transfer session.
type Session interface {
	// OpenFile opens path on the remote side in the given mode.
	OpenFile(path string, mode OpenMode) (File, error)

	// Stat returns size and modification time of path.
	Stat(path string) (FileInfo, error)

	// Close tears down the file channel, the session and the connection.
	Close() error
}

// Channel produces sessions. Implementations must make Init idempotent.
type Channel interface {
	// Init prepares the underlying library.
	Init() error

	// Dial connects, performs the handshake, authenticates and opens the
	// file-transfer subsystem. Resources acquired before a failing step are released.
	Dial(ctx context.Context, params ConnectionParams) (Session, error)
}
