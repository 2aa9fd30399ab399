package gsp

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Mailbox is a single-slot rendezvous point: at most one producer delivery,
// exactly one consumer receive, with cancellation (spec.md §3). It must be
// armed (created and registered with the Router) before the command that
// will be answered on it is written — see spec.md §9 "arm, then write, then
// await".
type Mailbox struct {
	delivered chan *InboundFrame
	terminal  chan error
	once      sync.Once
	ended     atomic.Bool
}

// NewMailbox creates an armed, empty mailbox.
func NewMailbox() *Mailbox {
	return &Mailbox{
		delivered: make(chan *InboundFrame, 1),
		terminal:  make(chan error, 1),
	}
}

// Deliver places a frame in the mailbox. It returns false if the mailbox was
// already delivered to or already terminated, in which case the frame is an
// orphan and the caller should log it and drop it.
func (m *Mailbox) Deliver(f *InboundFrame) bool {
	if m.ended.Load() {
		return false
	}
	select {
	case m.delivered <- f:
		return true
	default:
		return false
	}
}

// Cancel unblocks a pending Receive with ErrCancelled; used when the Session
// is closed while the mailbox is outstanding.
func (m *Mailbox) Cancel() { m.terminate(ErrCancelled) }

// Fail unblocks a pending Receive with err; used when the transport signals
// an unexpected disconnect.
func (m *Mailbox) Fail(err error) { m.terminate(err) }

func (m *Mailbox) terminate(err error) {
	m.once.Do(func() {
		m.ended.Store(true)
		m.terminal <- err
	})
}

// Receive blocks until a frame is delivered, the mailbox is cancelled or
// failed, the timeout elapses, or ctx is done.
func (m *Mailbox) Receive(ctx context.Context, timeout time.Duration) (*InboundFrame, error) {
	var timeoutCh <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		timeoutCh = timer.C
	}

	select {
	case f := <-m.delivered:
		return f, nil
	case err := <-m.terminal:
		return nil, err
	case <-ctx.Done():
		m.Cancel()
		return nil, ctx.Err()
	case <-timeoutCh:
		m.Cancel()
		return nil, &TimeoutError{Phase: "command"}
	}
}
