// Package limits provides centralized chunk size constants and validation functions
// for the sftptask engine.
//
// # Chunk Sizes
//
// The copy loop moves a file in fixed-size chunks. Each chunk is one local read and
// one (possibly split) remote write, so the chunk size trades per-chunk overhead
// against cancellation latency:
//
//   - DefaultChunkSize (1024 bytes): the buffer size used by the reference client.
//   - MaxChunkSize (65536 bytes): the largest chunk the engine will allocate.
//
// # Cancel Check Interval
//
// Cancellation is cooperative. The stop token is polled once every N chunks, where N
// defaults to DefaultCancelCheckInterval (every chunk) and is bounded by
// MaxCancelCheckInterval.
//
// # Validation Functions
//
//	if err := limits.ValidateChunkSize(size); err != nil {
//	    // errors.Is(err, limits.ErrChunkSizeTooLarge)
//	}
package limits
