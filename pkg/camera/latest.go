package camera

import (
	"context"
	"sync"
	"time"
)

// LatestFrame is a single-slot mailbox between a device reader goroutine and
// CaptureFrame. The reader Puts every frame it gets; Take hands out the newest
// one exactly once. Backends use it so capture never blocks on the device.
type LatestFrame struct {
	mu        sync.Mutex
	frame     *Frame
	seq       uint64
	delivered uint64
	lastAt    time.Time
	err       error
	ready     chan struct{}
	readyOnce sync.Once

	received  int64
	handedOut int64
}

// NewLatestFrame returns an empty mailbox.
func NewLatestFrame() *LatestFrame {
	return &LatestFrame{ready: make(chan struct{})}
}

// Reset clears the mailbox for a new preview session started at now.
func (l *LatestFrame) Reset(now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.frame = nil
	l.delivered = l.seq
	l.lastAt = now
	l.err = nil
	l.ready = make(chan struct{})
	l.readyOnce = sync.Once{}
}

// Put stores f as the newest frame. f must not be modified afterwards.
func (l *LatestFrame) Put(f *Frame) {
	l.mu.Lock()
	l.seq++
	f.Seq = l.seq
	if f.CapturedAt.IsZero() {
		f.CapturedAt = time.Now()
	}
	l.frame = f
	l.lastAt = f.CapturedAt
	l.received++
	ready, once := l.ready, &l.readyOnce
	l.mu.Unlock()

	once.Do(func() { close(ready) })
}

// Fail records a terminal reader error. Every later Take returns it.
func (l *LatestFrame) Fail(err error) {
	l.mu.Lock()
	l.err = err
	ready, once := l.ready, &l.readyOnce
	l.mu.Unlock()

	once.Do(func() { close(ready) })
}

// Take returns the newest undelivered frame, nil when nothing new arrived,
// or ErrStalled when nothing arrived for longer than stall (0 disables).
func (l *LatestFrame) Take(stall time.Duration, now time.Time) (*Frame, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.err != nil {
		return nil, l.err
	}
	if l.frame == nil || l.frame.Seq == l.delivered {
		if stall > 0 && !l.lastAt.IsZero() && now.Sub(l.lastAt) > stall {
			return nil, ErrStalled
		}
		return nil, nil
	}
	l.delivered = l.frame.Seq
	l.handedOut++
	return l.frame, nil
}

// WaitReady blocks until the first frame (or a failure) arrives.
func (l *LatestFrame) WaitReady(ctx context.Context, timeout time.Duration) error {
	l.mu.Lock()
	ready := l.ready
	l.mu.Unlock()

	var timer <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		timer = t.C
	}

	select {
	case <-ready:
		l.mu.Lock()
		err := l.err
		l.mu.Unlock()
		return err
	case <-timer:
		return ErrStartTimeout
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Counts returns how many frames were received and handed out.
func (l *LatestFrame) Counts() (received, handedOut int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.received, l.handedOut
}
