package gsp

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"time"
)

// Sink is the seekable byte writer a fetched log is written into (spec.md
// §4.5, §9 GLOSSARY). A plain *os.File satisfies it; so does anything else
// implementing io.Writer and io.Seeker.
type Sink interface {
	io.Writer
	io.Seeker
}

// LogTransfer reports the outcome of one FetchLog call.
type LogTransfer struct {
	LogID        uint32
	SinkIdentity string
	BytesWritten int64
	Duration     time.Duration
}

// Report renders the one-line per-log summary the CLI prints after every
// successful fetch: id, destination, size and throughput.
func (t *LogTransfer) Report() string {
	seconds := t.Duration.Seconds()
	var throughput float64
	if seconds > 0 {
		throughput = float64(t.BytesWritten) / seconds / 1024
	}
	return fmt.Sprintf("log %d -> %s (%d bytes in %s, %.1f KiB/s)",
		t.LogID, t.SinkIdentity, t.BytesWritten, t.Duration.Round(time.Millisecond), throughput)
}

func sinkIdentity(sink Sink) string {
	if n, ok := sink.(interface{ Name() string }); ok {
		return n.Name()
	}
	return fmt.Sprintf("%T", sink)
}

// fetchLog implements the Log Fetch Engine (spec.md §4.5): send FETCH_LOG,
// treat a 404 CommandResponse as ErrNoMoreLogs, then stream DataFrame /
// DataFramePart2 frames — each payload is offset(u32 LE) || bytes — seeking
// the sink to offset before writing. An empty-payload frame ends the stream;
// the engine then waits DrainTimeout to absorb any frames already in flight
// before stopping. bytes_written is tracked as max(offset+len(payload)) seen,
// never a cumulative counter, because the sink is seekable and offsets are
// not assumed to be strictly ascending (spec.md §9 Open Question).
func fetchLog(ctx context.Context, s *Session, logID uint32, sink Sink) (*LogTransfer, error) {
	start := time.Now()
	ref := RefFetchLog
	transfer := &LogTransfer{LogID: logID, SinkIdentity: sinkIdentity(sink)}

	frames := make(chan *InboundFrame, 16)
	s.router.ArmStream(ref, func(f *InboundFrame) {
		select {
		case frames <- f:
		default:
			s.logger.WithField("reference", ref).Warn("dropping FETCH_LOG data frame: reader not keeping up")
		}
	})
	defer s.router.DisarmStream()

	mb, err := s.router.Arm(ref)
	if err != nil {
		return nil, err
	}

	cmd := NewFetchLogCommand(ref, logID)
	if err := s.transport.Write(s.client, WriteCharacteristic, cmd.Encode(), true); err != nil {
		s.router.Disarm(ref)
		mb.Cancel()
		return nil, fmt.Errorf("write FETCH_LOG command: %w", err)
	}

	ackFrame, err := mb.Receive(ctx, s.CommandTimeout)
	s.router.Disarm(ref)
	if err != nil {
		return nil, err
	}
	if err := checkStatus(ackFrame); err != nil {
		if cfe, ok := err.(*CommandFailedError); ok && cfe.IsNotFoundStatus() {
			return nil, ErrNoMoreLogs
		}
		return nil, err
	}

	var maxOffset int64
	applyFrame := func(frame *InboundFrame) (done bool, err error) {
		if len(frame.Data) < 4 {
			return false, &ProtocolError{Detail: "FETCH_LOG data frame missing offset header"}
		}
		offset := int64(binary.LittleEndian.Uint32(frame.Data[:4]))
		payload := frame.Data[4:]

		if end := offset + int64(len(payload)); end > maxOffset {
			maxOffset = end
		}
		if len(payload) == 0 {
			return true, nil
		}
		if _, err := sink.Seek(offset, io.SeekStart); err != nil {
			return false, &IoError{Detail: "seek sink", Cause: err}
		}
		if _, err := sink.Write(payload); err != nil {
			return false, &IoError{Detail: "write sink", Cause: err}
		}
		return false, nil
	}

	idle := idleFetchTimeout(s)
	idleTimer := time.NewTimer(idle)
	defer idleTimer.Stop()

streamLoop:
	for {
		select {
		case frame := <-frames:
			if !idleTimer.Stop() {
				<-idleTimer.C
			}
			eof, err := applyFrame(frame)
			if err != nil {
				transfer.BytesWritten = maxOffset
				transfer.Duration = time.Since(start)
				return transfer, err
			}
			if eof {
				break streamLoop
			}
			idleTimer.Reset(idle)
		case <-ctx.Done():
			transfer.BytesWritten = maxOffset
			transfer.Duration = time.Since(start)
			return transfer, ctx.Err()
		case <-idleTimer.C:
			transfer.BytesWritten = maxOffset
			transfer.Duration = time.Since(start)
			return transfer, &TimeoutError{Phase: "fetch_log stream"}
		}
	}

	s.drainRemainingFrames(ctx, frames, applyFrame)

	transfer.BytesWritten = maxOffset
	transfer.Duration = time.Since(start)
	return transfer, nil
}

func idleFetchTimeout(s *Session) time.Duration {
	if s.FetchIdle > 0 {
		return s.FetchIdle
	}
	return defaultFetchIdle
}

func (s *Session) drainTimeout() time.Duration {
	if s.DrainTimeout > 0 {
		return s.DrainTimeout
	}
	return defaultDrainTimeout
}

// drainRemainingFrames absorbs frames that were already in flight when the
// EOF sentinel arrived, for up to DrainTimeout of silence (spec.md §4.5).
// Errors encountered while draining are logged, not propagated: the stream
// is already considered complete.
func (s *Session) drainRemainingFrames(ctx context.Context, frames <-chan *InboundFrame, apply func(*InboundFrame) (bool, error)) {
	timer := time.NewTimer(s.drainTimeout())
	defer timer.Stop()

	for {
		select {
		case frame := <-frames:
			if _, err := apply(frame); err != nil {
				s.logger.WithError(err).Debug("error applying frame during drain")
			}
			if !timer.Stop() {
				<-timer.C
			}
			timer.Reset(s.drainTimeout())
		case <-timer.C:
			return
		case <-ctx.Done():
			return
		}
	}
}
