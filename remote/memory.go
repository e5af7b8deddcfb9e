package remote

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// ErrInjected is the default error returned by injected faults.
var ErrInjected = errors.New("injected fault")

// IOHook observes a completed read or write on a MemoryChannel file.
// offset is the position before the operation and n the number of bytes moved.
type IOHook func(path string, offset int64, n int)

// MemoryChannel is an in-memory Channel. Files live in a map keyed by path and
// carry a modification time that advances on every write. Faults can be injected
// into every step of the contract.
type MemoryChannel struct {
	mu    sync.Mutex
	files map[string]*memEntry
	clock func() time.Time

	initErr error
	dialErr error
	dials   int
	open    int

	writeLimit      int
	writesBeforeErr int
	writeErr        error
	readsBeforeErr  int
	readErr         error
	statErrs        map[string]error
	openErrs        map[string]error

	onWrite IOHook
	onRead  IOHook
}

type memEntry struct {
	data    []byte
	modTime time.Time
}

// NewMemoryChannel creates an empty in-memory channel using the system clock.
func NewMemoryChannel() *MemoryChannel {
	return &MemoryChannel{
		files:           make(map[string]*memEntry),
		clock:           time.Now,
		writesBeforeErr: -1,
		readsBeforeErr:  -1,
		statErrs:        make(map[string]error),
		openErrs:        make(map[string]error),
	}
}

// SetClock replaces the time source used for modification times.
func (m *MemoryChannel) SetClock(clock func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clock = clock
}

// PutFile stores a copy of data at path with the given modification time.
func (m *MemoryChannel) PutFile(path string, data []byte, modTime time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	buf := make([]byte, len(data))
	copy(buf, data)
	m.files[path] = &memEntry{data: buf, modTime: modTime}
}

// FileData returns a copy of the content stored at path.
func (m *MemoryChannel) FileData(path string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.files[path]
	if !ok {
		return nil, false
	}
	buf := make([]byte, len(e.data))
	copy(buf, e.data)
	return buf, true
}

// SetModTime overrides the modification time of an existing file.
func (m *MemoryChannel) SetModTime(path string, modTime time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.files[path]; ok {
		e.modTime = modTime
	}
}

// SetInitError makes Init fail with err. Nil clears the fault.
func (m *MemoryChannel) SetInitError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.initErr = err
}

// SetDialError makes Dial fail with err. Nil clears the fault.
func (m *MemoryChannel) SetDialError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dialErr = err
}

// SetWriteLimit caps the bytes accepted by a single Write, producing partial writes.
// Zero removes the cap.
func (m *MemoryChannel) SetWriteLimit(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writeLimit = n
}

// FailWritesAfter lets n writes succeed and fails every later write with err
// (ErrInjected if err is nil). A negative n clears the fault.
func (m *MemoryChannel) FailWritesAfter(n int, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		err = ErrInjected
	}
	m.writesBeforeErr = n
	m.writeErr = err
}

// FailReadsAfter lets n reads succeed and fails every later read with err
// (ErrInjected if err is nil). A negative n clears the fault.
func (m *MemoryChannel) FailReadsAfter(n int, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		err = ErrInjected
	}
	m.readsBeforeErr = n
	m.readErr = err
}

// FailStat makes Stat(path) fail with err. Nil clears the fault.
func (m *MemoryChannel) FailStat(path string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.statErrs, path)
		return
	}
	m.statErrs[path] = err
}

// FailOpen makes OpenFile(path, ...) fail with err. Nil clears the fault.
func (m *MemoryChannel) FailOpen(path string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.openErrs, path)
		return
	}
	m.openErrs[path] = err
}

// OnWrite registers a hook called after every successful write.
// The hook runs on the writer's goroutine without the channel lock held.
func (m *MemoryChannel) OnWrite(hook IOHook) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onWrite = hook
}

// OnRead registers a hook called after every successful read.
func (m *MemoryChannel) OnRead(hook IOHook) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onRead = hook
}

// Dials returns how many sessions have been dialed successfully.
func (m *MemoryChannel) Dials() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.dials
}

// OpenSessions returns how many dialed sessions have not been closed.
func (m *MemoryChannel) OpenSessions() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.open
}

// Init implements Channel.
func (m *MemoryChannel) Init() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.initErr != nil {
		return fmt.Errorf("%w: %v", ErrInit, m.initErr)
	}
	return nil
}

// Dial implements Channel. A configured dial error is returned as-is so tests can
// choose which setup step fails.
func (m *MemoryChannel) Dial(ctx context.Context, params ConnectionParams) (Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnect, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.dialErr != nil {
		return nil, m.dialErr
	}
	m.dials++
	m.open++

	logrus.WithFields(logrus.Fields{
		"function": "MemoryChannel.Dial",
		"address":  params.Address(),
		"user":     params.Username,
	}).Debug("In-memory session dialed")

	return &memSession{ch: m}, nil
}

type memSession struct {
	ch *MemoryChannel

	mu     sync.Mutex
	closed bool
}

func (s *memSession) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// OpenFile implements Session.
func (s *memSession) OpenFile(path string, mode OpenMode) (File, error) {
	if s.isClosed() {
		return nil, ErrSessionClosed
	}

	m := s.ch
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.openErrs[path]; err != nil {
		return nil, fmt.Errorf("open %s (%s): %w", path, mode, err)
	}

	e, exists := m.files[path]
	switch mode {
	case ReadOnly, WriteExisting:
		if !exists {
			return nil, fmt.Errorf("open %s (%s): %w", path, mode, fs.ErrNotExist)
		}
	case WriteCreateTruncate:
		if !exists {
			e = &memEntry{}
			m.files[path] = e
		}
		e.data = e.data[:0]
		e.modTime = m.clock()
	default:
		return nil, fmt.Errorf("open %s: unsupported mode %d", path, mode)
	}

	return &memHandle{session: s, path: path, mode: mode}, nil
}

// Stat implements Session.
func (s *memSession) Stat(path string) (FileInfo, error) {
	if s.isClosed() {
		return FileInfo{}, ErrSessionClosed
	}

	m := s.ch
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.statErrs[path]; err != nil {
		return FileInfo{}, fmt.Errorf("stat %s: %w", path, err)
	}
	e, ok := m.files[path]
	if !ok {
		return FileInfo{}, fmt.Errorf("stat %s: %w", path, fs.ErrNotExist)
	}
	return FileInfo{Size: int64(len(e.data)), ModTime: e.modTime}, nil
}

// Close implements Session.
func (s *memSession) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.ch.mu.Lock()
	s.ch.open--
	s.ch.mu.Unlock()
	return nil
}

type memHandle struct {
	session *memSession
	path    string
	mode    OpenMode
	offset  int64
	closed  bool
}

// Read implements io.Reader.
func (h *memHandle) Read(p []byte) (int, error) {
	if h.closed || h.session.isClosed() {
		return 0, ErrSessionClosed
	}
	if h.mode != ReadOnly {
		return 0, fmt.Errorf("read %s: handle opened %s", h.path, h.mode)
	}

	m := h.session.ch
	m.mu.Lock()
	if m.readsBeforeErr == 0 {
		err := m.readErr
		m.mu.Unlock()
		return 0, err
	}
	e, ok := m.files[h.path]
	if !ok {
		m.mu.Unlock()
		return 0, fmt.Errorf("read %s: %w", h.path, fs.ErrNotExist)
	}
	if h.offset >= int64(len(e.data)) {
		m.mu.Unlock()
		return 0, io.EOF
	}
	n := copy(p, e.data[h.offset:])
	if m.readsBeforeErr > 0 {
		m.readsBeforeErr--
	}
	start := h.offset
	h.offset += int64(n)
	hook := m.onRead
	m.mu.Unlock()

	if hook != nil {
		hook(h.path, start, n)
	}
	return n, nil
}

// Write implements io.Writer. Writes land at the handle offset, extending the file
// as needed, and bump the modification time.
func (h *memHandle) Write(p []byte) (int, error) {
	if h.closed || h.session.isClosed() {
		return 0, ErrSessionClosed
	}
	if h.mode == ReadOnly {
		return 0, fmt.Errorf("write %s: handle opened %s", h.path, h.mode)
	}

	m := h.session.ch
	m.mu.Lock()
	if m.writesBeforeErr == 0 {
		err := m.writeErr
		m.mu.Unlock()
		return 0, err
	}
	e, ok := m.files[h.path]
	if !ok {
		m.mu.Unlock()
		return 0, fmt.Errorf("write %s: %w", h.path, fs.ErrNotExist)
	}

	n := len(p)
	if m.writeLimit > 0 && n > m.writeLimit {
		n = m.writeLimit
	}
	end := h.offset + int64(n)
	if end > int64(len(e.data)) {
		grown := make([]byte, end)
		copy(grown, e.data)
		e.data = grown
	}
	copy(e.data[h.offset:end], p[:n])
	e.modTime = m.clock()
	if m.writesBeforeErr > 0 {
		m.writesBeforeErr--
	}
	start := h.offset
	h.offset = end
	hook := m.onWrite
	m.mu.Unlock()

	if hook != nil {
		hook(h.path, start, n)
	}
	return n, nil
}

// Seek implements io.Seeker.
func (h *memHandle) Seek(offset int64, whence int) (int64, error) {
	if h.closed {
		return 0, ErrSessionClosed
	}
	var base int64
	switch whence {
	case io.SeekStart:
	case io.SeekCurrent:
		base = h.offset
	case io.SeekEnd:
		m := h.session.ch
		m.mu.Lock()
		if e, ok := m.files[h.path]; ok {
			base = int64(len(e.data))
		}
		m.mu.Unlock()
	default:
		return 0, fmt.Errorf("seek %s: invalid whence %d", h.path, whence)
	}
	pos := base + offset
	if pos < 0 {
		return 0, fmt.Errorf("seek %s: negative position %d", h.path, pos)
	}
	h.offset = pos
	return pos, nil
}

// Close implements io.Closer.
func (h *memHandle) Close() error {
	if h.closed {
		return ErrSessionClosed
	}
	h.closed = true
	return nil
}
