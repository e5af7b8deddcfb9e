package transfer

import (
	"context"
	"sync"
)

// Result is the completion of one submitted transfer. It is resolved exactly once,
// after the worker has closed both files and updated the resume record.
type Result struct {
	done  chan struct{}
	once  sync.Once
	bytes int64
	err   error
}

func newResult() *Result {
	return &Result{done: make(chan struct{})}
}

func (r *Result) resolve(bytes int64, err error) {
	r.once.Do(func() {
		r.bytes = bytes
		r.err = err
		close(r.done)
	})
}

// Done is closed when the transfer has finished.
func (r *Result) Done() <-chan struct{} {
	return r.done
}

// Wait blocks until the transfer finishes or ctx ends. It returns the bytes
// present at the destination and nil on success, or an *IncompleteError.
func (r *Result) Wait(ctx context.Context) (int64, error) {
	select {
	case <-r.done:
		return r.bytes, r.err
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

// Bytes returns the final transferred count, or 0 while the transfer is running.
func (r *Result) Bytes() int64 {
	select {
	case <-r.done:
		return r.bytes
	default:
		return 0
	}
}

// Err returns the final error, or nil while the transfer is running.
func (r *Result) Err() error {
	select {
	case <-r.done:
		return r.err
	default:
		return nil
	}
}
