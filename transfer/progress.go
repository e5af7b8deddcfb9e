package transfer

import (
	"math"
)

// ProgressFailed is delivered to a ProgressFunc when a transfer ends incomplete.
const ProgressFailed = -1

// progressUnset is below every deliverable value so the first percentage always fires.
const progressUnset = math.MinInt32

// ProgressFunc receives whole percentages in [0, 100], each value at most once and
// in non-decreasing order, or ProgressFailed as the final call of an incomplete
// transfer. It runs on the transfer worker and should return quickly.
//
// The callback must not call back into the Engine. Cancel and StopSession wait
// for the worker to exit, so calling them from the callback deadlocks; start them
// on another goroutine instead.
type ProgressFunc func(percent int)

type progressReporter struct {
	fn   ProgressFunc
	last int
}

func newProgressReporter(fn ProgressFunc) *progressReporter {
	return &progressReporter{fn: fn, last: progressUnset}
}

// report delivers floor(transferred/total*100) if it differs from the last value.
func (p *progressReporter) report(total, transferred int64) {
	if total == 0 {
		return
	}
	percent := int(math.Floor(float64(transferred) / float64(total) * 100))
	if percent == p.last {
		return
	}
	p.last = percent
	if p.fn != nil {
		p.fn(percent)
	}
}

func (p *progressReporter) fail() {
	p.last = ProgressFailed
	if p.fn != nil {
		p.fn(ProgressFailed)
	}
}
