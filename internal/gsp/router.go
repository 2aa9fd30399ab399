package gsp

import (
	"sync"
	"sync/atomic"

	"github.com/cornelk/hashmap"
	"github.com/sirupsen/logrus"
)

// Router classifies every inbound frame and delivers it to either the
// waiting command mailbox for its reference, or the active stream handler
// (spec.md §4.3). It is owned exclusively by one Session; the notification
// callback (running on the transport's own goroutine) touches the outstanding
// map concurrently with the Session, so it is backed by a concurrent map
// rather than a plain map guarded by the Session's mutex. The stream handler
// is guarded by streamMu and the hello reference is an atomic.
type Router struct {
	outstanding *hashmap.Map[byte, *Mailbox]
	logger      *logrus.Logger

	helloReference atomic.Int64 // -1 until armed; holds the byte value otherwise

	streamMu      sync.Mutex
	streamRef     byte
	streamArmed   bool
	streamHandler func(*InboundFrame)
}

// NewRouter creates a Router with no outstanding references and no hello
// reference registered.
func NewRouter(logger *logrus.Logger) *Router {
	if logger == nil {
		logger = logrus.New()
	}
	r := &Router{
		outstanding: hashmap.New[byte, *Mailbox](),
		logger:      logger,
	}
	r.helloReference.Store(-1)
	return r
}

// RegisterHelloReference tells the codec which reference to treat as the
// HELLO response with no status word, before the HELLO command is sent.
func (r *Router) RegisterHelloReference(ref byte) {
	r.helloReference.Store(int64(ref))
}

func (r *Router) isHelloReference(ref byte) bool {
	return r.helloReference.Load() == int64(ref)
}

// Arm registers a mailbox for reference before the matching command is
// written, so a data frame or response racing ahead of the write is never
// lost (spec.md §5 "Ordering").
func (r *Router) Arm(reference byte) (*Mailbox, error) {
	mb := NewMailbox()
	if _, loaded := r.outstanding.GetOrInsert(reference, mb); loaded {
		return nil, ErrAlreadyArmed
	}
	return mb, nil
}

// Disarm removes reference's mailbox without requiring a delivered frame;
// used once a command's result has been consumed, and by Cancel-on-Close.
func (r *Router) Disarm(reference byte) {
	r.outstanding.Del(reference)
}

// ArmStream designates reference as the active FETCH_LOG stream and installs
// the handler that receives its DataFrame/DataFramePart2 frames. Only one
// stream may be active at a time, matching the single-task-per-Session
// discipline.
func (r *Router) ArmStream(reference byte, handler func(*InboundFrame)) {
	r.streamMu.Lock()
	defer r.streamMu.Unlock()
	r.streamRef = reference
	r.streamArmed = true
	r.streamHandler = handler
}

// DisarmStream detaches the active stream handler.
func (r *Router) DisarmStream() {
	r.streamMu.Lock()
	defer r.streamMu.Unlock()
	r.streamArmed = false
	r.streamHandler = nil
}

// Deliver decodes and routes one raw notification payload. It never returns
// an error for routing failures (unknown/orphan references) — those are
// logged and the frame is dropped, per spec.md §4.3. A decode-level
// ProtocolError is returned so the Session can decide how to surface it.
func (r *Router) Deliver(raw []byte) error {
	frame, err := DecodeInboundFrame(raw, r.isHelloReference)
	if err != nil {
		r.logger.WithError(err).Warn("dropping malformed GSP frame")
		return err
	}

	if frame.IsDataFrame() {
		r.deliverDataFrame(frame)
		return nil
	}

	r.deliverCommandResponse(frame)
	return nil
}

func (r *Router) deliverCommandResponse(frame *InboundFrame) {
	mb, ok := r.outstanding.Get(frame.Reference)
	if !ok {
		r.logger.WithField("reference", frame.Reference).Warn("discarding command response for unknown reference")
		return
	}
	r.outstanding.Del(frame.Reference)
	if !mb.Deliver(frame) {
		r.logger.WithField("reference", frame.Reference).Warn("discarding duplicate or orphaned command response")
	}
}

func (r *Router) deliverDataFrame(frame *InboundFrame) {
	r.streamMu.Lock()
	handler := r.streamHandler
	armed := r.streamArmed && r.streamRef == frame.Reference
	r.streamMu.Unlock()

	if !armed || handler == nil {
		r.logger.WithField("reference", frame.Reference).Warn("discarding data frame with no active stream reader")
		return
	}
	handler(frame)
}

// CancelAll cancels every outstanding mailbox with ErrCancelled and detaches
// the active stream; used by Session.Close.
func (r *Router) CancelAll() {
	r.outstanding.Range(func(ref byte, mb *Mailbox) bool {
		mb.Cancel()
		r.outstanding.Del(ref)
		return true
	})
	r.DisarmStream()
}

// FailAll terminates every outstanding mailbox with err and detaches the
// active stream; used when the transport reports an unexpected disconnect.
func (r *Router) FailAll(err error) {
	r.outstanding.Range(func(ref byte, mb *Mailbox) bool {
		mb.Fail(err)
		r.outstanding.Del(ref)
		return true
	})
	r.DisarmStream()
}
