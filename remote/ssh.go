package remote

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/pkg/sftp"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

// DefaultDialTimeout bounds the TCP connect and the SSH handshake.
const DefaultDialTimeout = 15 * time.Second

// DefaultKnownHostsFile is the OpenSSH per-user known_hosts file.
const DefaultKnownHostsFile = "~/.ssh/known_hosts"

// SSHOptions configures an SSHChannel.
type SSHOptions struct {
	// KnownHostsFile is an OpenSSH known_hosts file used to verify the server key.
	// A leading "~/" is expanded to the user's home directory.
	// Default: DefaultKnownHostsFile
	KnownHostsFile string

	// InsecureIgnoreHostKey accepts any server key and skips KnownHostsFile.
	InsecureIgnoreHostKey bool

	// DialTimeout bounds the TCP connect and the SSH handshake.
	// Default: 15s
	DialTimeout time.Duration

	// MaxPacket is the largest SFTP data packet requested from the server.
	// Zero keeps the library default (32KiB).
	MaxPacket int

	// Logger receives the channel's log entries.
	// Default: the standard logrus logger
	Logger *logrus.Entry
}

// SSHChannel is a Channel backed by SSH password authentication and the SFTP subsystem.
type SSHChannel struct {
	opts SSHOptions

	mu              sync.Mutex
	initialized     bool
	hostKeyCallback ssh.HostKeyCallback
}

// NewSSHChannel creates an SSH channel. Init must be called before Dial.
func NewSSHChannel(opts SSHOptions) *SSHChannel {
	if opts.DialTimeout <= 0 {
		opts.DialTimeout = DefaultDialTimeout
	}
	if opts.Logger == nil {
		opts.Logger = logrus.NewEntry(logrus.StandardLogger())
	}
	return &SSHChannel{opts: opts}
}

// Init loads the host key policy. It is idempotent once it has succeeded.
func (c *SSHChannel) Init() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.initialized {
		return nil
	}

	if c.opts.InsecureIgnoreHostKey {
		c.opts.Logger.WithFields(logrus.Fields{
			"function": "SSHChannel.Init",
		}).Warn("Host key verification disabled, any server key will be accepted")
		c.hostKeyCallback = ssh.InsecureIgnoreHostKey()
		c.initialized = true
		return nil
	}

	knownHosts := c.opts.KnownHostsFile
	if knownHosts == "" {
		knownHosts = DefaultKnownHostsFile
	}
	path, err := expandHome(knownHosts)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInit, err)
	}
	callback, err := knownhosts.New(path)
	if err != nil {
		c.opts.Logger.WithFields(logrus.Fields{
			"function":    "SSHChannel.Init",
			"known_hosts": path,
			"error":       err.Error(),
		}).Error("Failed to load known_hosts file")
		return fmt.Errorf("%w: load known_hosts %s: %v", ErrInit, path, err)
	}

	c.hostKeyCallback = callback
	c.initialized = true

	c.opts.Logger.WithFields(logrus.Fields{
		"function":    "SSHChannel.Init",
		"known_hosts": path,
	}).Info("SSH channel initialized")

	return nil
}

// Dial opens a TCP connection, performs the SSH handshake with password
// authentication and starts the SFTP subsystem.
func (c *SSHChannel) Dial(ctx context.Context, params ConnectionParams) (Session, error) {
	c.mu.Lock()
	initialized := c.initialized
	hostKeyCallback := c.hostKeyCallback
	c.mu.Unlock()

	if !initialized {
		return nil, fmt.Errorf("%w: channel not initialized", ErrInit)
	}

	addr := params.Address()
	logger := c.opts.Logger.WithFields(logrus.Fields{
		"function": "SSHChannel.Dial",
		"address":  addr,
		"user":     params.Username,
	})

	dialer := net.Dialer{Timeout: c.opts.DialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		logger.WithError(err).Error("TCP connect failed")
		return nil, fmt.Errorf("%w: %s: %v", ErrConnect, addr, err)
	}

	deadline := time.Now().Add(c.opts.DialTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = conn.SetDeadline(deadline)

	config := &ssh.ClientConfig{
		User:            params.Username,
		Auth:            []ssh.AuthMethod{ssh.Password(params.Password)},
		HostKeyCallback: hostKeyCallback,
		Timeout:         c.opts.DialTimeout,
	}
	sshConn, chans, reqs, err := ssh.NewClientConn(conn, addr, config)
	if err != nil {
		conn.Close()
		if isAuthFailure(err) {
			logger.WithError(err).Error("SSH password authentication rejected")
			return nil, fmt.Errorf("%w: %v", ErrAuth, err)
		}
		logger.WithError(err).Error("SSH handshake failed")
		return nil, fmt.Errorf("%w: %v", ErrHandshake, err)
	}
	_ = conn.SetDeadline(time.Time{})

	client := ssh.NewClient(sshConn, chans, reqs)

	var sftpOpts []sftp.ClientOption
	if c.opts.MaxPacket > 0 {
		sftpOpts = append(sftpOpts, sftp.MaxPacket(c.opts.MaxPacket))
	}
	sftpClient, err := sftp.NewClient(client, sftpOpts...)
	if err != nil {
		client.Close()
		logger.WithError(err).Error("SFTP subsystem initialization failed")
		return nil, fmt.Errorf("%w: %v", ErrChannelInit, err)
	}

	logger.Info("SFTP session established")

	return newSFTPSession(sftpClient, client), nil
}

// isAuthFailure reports whether a handshake error came from the authentication phase.
func isAuthFailure(err error) bool {
	return err != nil && strings.Contains(err.Error(), "unable to authenticate")
}

func expandHome(path string) (string, error) {
	if !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(home, path[2:]), nil
}

// sftpSession adapts an *sftp.Client to Session.
type sftpSession struct {
	client *sftp.Client
	conn   io.Closer

	mu     sync.Mutex
	closed bool
}

func newSFTPSession(client *sftp.Client, conn io.Closer) *sftpSession {
	return &sftpSession{client: client, conn: conn}
}

// OpenFile implements Session.
func (s *sftpSession) OpenFile(path string, mode OpenMode) (File, error) {
	if s.isClosed() {
		return nil, ErrSessionClosed
	}
	f, err := s.client.OpenFile(path, mode.Flags())
	if err != nil {
		return nil, fmt.Errorf("open %s (%s): %w", path, mode, err)
	}
	return f, nil
}

// Stat implements Session.
func (s *sftpSession) Stat(path string) (FileInfo, error) {
	if s.isClosed() {
		return FileInfo{}, ErrSessionClosed
	}
	fi, err := s.client.Stat(path)
	if err != nil {
		return FileInfo{}, fmt.Errorf("stat %s: %w", path, err)
	}
	return FileInfo{Size: fi.Size(), ModTime: fi.ModTime()}, nil
}

// Close shuts down the SFTP subsystem and then the SSH connection.
func (s *sftpSession) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	var errs []error
	if err := s.client.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close sftp: %w", err))
	}
	if s.conn != nil {
		if err := s.conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			errs = append(errs, fmt.Errorf("close ssh: %w", err))
		}
	}
	return errors.Join(errs...)
}

func (s *sftpSession) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
