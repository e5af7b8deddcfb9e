// Package limits provides centralized chunk size limits for the transfer engine.
// This ensures consistent validation across configuration, the CLI and the copy loop.
package limits

import (
	"errors"
	"fmt"
)

const (
	// DefaultChunkSize is the number of bytes moved per read/write cycle when
	// nothing else is configured.
	DefaultChunkSize = 1024

	// MinChunkSize is the smallest accepted chunk size.
	MinChunkSize = 1

	// MaxChunkSize is the largest accepted chunk size.
	// SFTP servers commonly cap a single WRITE/READ payload at 32KiB-256KiB; a chunk
	// larger than this only adds buffering without reducing round trips.
	MaxChunkSize = 65536

	// DefaultCancelCheckInterval checks the stop token after every chunk.
	DefaultCancelCheckInterval = 1

	// MaxCancelCheckInterval bounds how many chunks may pass between stop-token checks.
	MaxCancelCheckInterval = 1024
)

var (
	// ErrChunkSizeTooSmall indicates a chunk size below MinChunkSize.
	ErrChunkSizeTooSmall = errors.New("chunk size too small")

	// ErrChunkSizeTooLarge indicates a chunk size above MaxChunkSize.
	ErrChunkSizeTooLarge = errors.New("chunk size too large")

	// ErrInvalidCheckInterval indicates a cancel check interval outside 1..MaxCancelCheckInterval.
	ErrInvalidCheckInterval = errors.New("invalid cancel check interval")
)

// ValidateChunkSize validates a chunk size against MinChunkSize and MaxChunkSize.
// Returns an error with context including the actual and allowed sizes.
func ValidateChunkSize(size int) error {
	if size < MinChunkSize {
		return fmt.Errorf("%w: size %d below minimum %d", ErrChunkSizeTooSmall, size, MinChunkSize)
	}
	if size > MaxChunkSize {
		return fmt.Errorf("%w: size %d exceeds limit %d", ErrChunkSizeTooLarge, size, MaxChunkSize)
	}
	return nil
}

// ValidateCancelCheckInterval validates the number of chunks between stop-token checks.
func ValidateCancelCheckInterval(n int) error {
	if n < 1 || n > MaxCancelCheckInterval {
		return fmt.Errorf("%w: %d not in 1..%d", ErrInvalidCheckInterval, n, MaxCancelCheckInterval)
	}
	return nil
}

// ChunkCount returns how many chunks of chunkSize are needed to move size bytes.
// A zero or negative size needs no chunks.
func ChunkCount(size int64, chunkSize int) int64 {
	if size <= 0 || chunkSize <= 0 {
		return 0
	}
	return (size + int64(chunkSize) - 1) / int64(chunkSize)
}
