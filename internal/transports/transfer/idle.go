package transfer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"
)

// ErrStalled reports a read that received no data within the idle timeout.
var ErrStalled = errors.New("transfer stalled")

// IdleReader guards a network reader. A Read blocked for longer than the
// idle timeout, or still pending when ctx ends, triggers abort, which must
// make the blocked Read return (closing the connection or cancelling the request).
type IdleReader struct {
	ctx     context.Context
	r       io.Reader
	timeout time.Duration

	abortOnce sync.Once
	abortFn   func()
	stalled   atomic.Bool
	timer     *time.Timer
	stopWatch func() bool
}

// NewIdleReader wraps r. A zero timeout disables the idle check; ctx is always watched.
func NewIdleReader(ctx context.Context, r io.Reader, timeout time.Duration, abort func()) *IdleReader {
	ir := &IdleReader{ctx: ctx, r: r, timeout: timeout, abortFn: abort}
	ir.stopWatch = context.AfterFunc(ctx, ir.abort)
	return ir
}

func (r *IdleReader) Read(p []byte) (int, error) {
	if r.stalled.Load() {
		return 0, r.stallErr()
	}
	if r.timeout > 0 {
		if r.timer == nil {
			r.timer = time.AfterFunc(r.timeout, r.expire)
		} else {
			r.timer.Reset(r.timeout)
		}
	}
	n, err := r.r.Read(p)
	if r.timer != nil {
		r.timer.Stop()
	}
	if err != nil && !errors.Is(err, io.EOF) {
		if r.stalled.Load() {
			return n, r.stallErr()
		}
		if cerr := r.ctx.Err(); cerr != nil {
			return n, cerr
		}
	}
	return n, err
}

// Close stops watching. The wrapped reader is left open.
func (r *IdleReader) Close() error {
	r.stopWatch()
	if r.timer != nil {
		r.timer.Stop()
	}
	return nil
}

func (r *IdleReader) expire() {
	r.stalled.Store(true)
	r.abort()
}

func (r *IdleReader) abort() {
	r.abortOnce.Do(r.abortFn)
}

func (r *IdleReader) stallErr() error {
	return fmt.Errorf("%w: no data for %s", ErrStalled, r.timeout)
}
