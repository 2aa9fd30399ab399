//go:build test

package gsp_test

import (
	"context"
	"encoding/binary"
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/srg/gspctl/internal/gsp"
	"github.com/srg/gspctl/internal/gsp/gsptest"
)

// memSink is a minimal in-memory Sink (io.Writer + io.Seeker) standing in
// for an *os.File in fetch tests.
type memSink struct {
	buf    []byte
	cursor int64
}

func (m *memSink) Write(p []byte) (int, error) {
	end := m.cursor + int64(len(p))
	if end > int64(len(m.buf)) {
		grown := make([]byte, end)
		copy(grown, m.buf)
		m.buf = grown
	}
	copy(m.buf[m.cursor:end], p)
	m.cursor = end
	return len(p), nil
}

func (m *memSink) Seek(offset int64, whence int) (int64, error) {
	if whence != 0 {
		panic("unsupported whence in test sink")
	}
	m.cursor = offset
	return offset, nil
}

func dataFrame(ref byte, part2 bool, offset uint32, payload []byte) []byte {
	code := byte(2)
	if part2 {
		code = 3
	}
	offsetBytes := make([]byte, 4)
	binary.LittleEndian.PutUint32(offsetBytes, offset)
	frame := append([]byte{code, ref}, offsetBytes...)
	return append(frame, payload...)
}

type FetchSuite struct {
	suite.Suite
}

func (s *FetchSuite) newSession(handler gsptest.Handler) (*gsp.Session, *gsptest.Transport) {
	transport := gsptest.NewTransport(&gsptest.Peripheral{
		Name: "Movesense 999", Address: "aa:bb", Handler: handler,
	})
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	sess := gsp.NewSession(transport, logger)
	require.NoError(s.T(), sess.Open(context.Background(), "999"))
	require.NoError(s.T(), sess.Connect(context.Background(), false))
	return sess, transport
}

func (s *FetchSuite) TestFetchLog_StreamsInOrder() {
	sess, _ := s.newSession(func(write []byte, notify func([]byte)) {
		ref := write[1]
		if gsp.Opcode(write[0]) != gsp.OpFetchLog {
			return
		}
		notify(commandResponse(ref, 200, nil))
		notify(dataFrame(ref, false, 0, []byte("hello ")))
		notify(dataFrame(ref, false, 6, []byte("world")))
		notify(dataFrame(ref, false, 11, nil)) // EOF sentinel
	})

	sink := &memSink{}
	transfer, err := sess.FetchLog(context.Background(), 1, sink)
	require.NoError(s.T(), err)
	s.Equal("hello world", string(sink.buf))
	s.EqualValues(11, transfer.BytesWritten)
	s.Equal(uint32(1), transfer.LogID)
}

func (s *FetchSuite) TestFetchLog_BytesWrittenIsMaxOffsetNotCumulative() {
	sess, _ := s.newSession(func(write []byte, notify func([]byte)) {
		ref := write[1]
		if gsp.Opcode(write[0]) != gsp.OpFetchLog {
			return
		}
		notify(commandResponse(ref, 200, nil))
		// Out-of-order frames: a later, larger offset followed by an
		// earlier, smaller one must not shrink bytes_written.
		notify(dataFrame(ref, false, 100, []byte("xxxxx")))
		notify(dataFrame(ref, false, 0, []byte("yy")))
		notify(dataFrame(ref, false, 105, nil))
	})

	sink := &memSink{}
	transfer, err := sess.FetchLog(context.Background(), 2, sink)
	require.NoError(s.T(), err)
	s.EqualValues(105, transfer.BytesWritten)
}

func (s *FetchSuite) TestFetchLog_404IsNoMoreLogs() {
	sess, _ := s.newSession(func(write []byte, notify func([]byte)) {
		ref := write[1]
		if gsp.Opcode(write[0]) != gsp.OpFetchLog {
			return
		}
		notify(commandResponse(ref, 404, nil))
	})

	sink := &memSink{}
	_, err := sess.FetchLog(context.Background(), 7, sink)
	s.ErrorIs(err, gsp.ErrNoMoreLogs)
}

func (s *FetchSuite) TestFetchLog_IdleTimeoutReportsPartialTransfer() {
	sess, _ := s.newSession(func(write []byte, notify func([]byte)) {
		ref := write[1]
		if gsp.Opcode(write[0]) != gsp.OpFetchLog {
			return
		}
		notify(commandResponse(ref, 200, nil))
		notify(dataFrame(ref, false, 0, []byte("partial")))
		// No EOF sentinel ever arrives.
	})
	sess.FetchIdle = 20 * time.Millisecond

	sink := &memSink{}
	transfer, err := sess.FetchLog(context.Background(), 3, sink)
	var timeoutErr *gsp.TimeoutError
	s.ErrorAs(err, &timeoutErr)
	s.Equal("fetch_log stream", timeoutErr.Phase)
	s.EqualValues(7, transfer.BytesWritten)
}

func (s *FetchSuite) TestFetchLog_DrainsInFlightFramesAfterEOF() {
	sess, _ := s.newSession(func(write []byte, notify func([]byte)) {
		ref := write[1]
		if gsp.Opcode(write[0]) != gsp.OpFetchLog {
			return
		}
		notify(commandResponse(ref, 200, nil))
		notify(dataFrame(ref, false, 0, []byte("abc")))
		notify(dataFrame(ref, false, 3, nil)) // EOF
		// A frame that arrives during drain is still applied.
		notify(dataFrame(ref, true, 3, []byte("def")))
	})
	sess.DrainTimeout = 50 * time.Millisecond

	sink := &memSink{}
	transfer, err := sess.FetchLog(context.Background(), 4, sink)
	require.NoError(s.T(), err)
	s.Equal("abcdef", string(sink.buf))
	s.EqualValues(6, transfer.BytesWritten)
}

func (s *FetchSuite) TestFetchLog_SinkWriteErrorSurfacesAsIoError() {
	sess, _ := s.newSession(func(write []byte, notify func([]byte)) {
		ref := write[1]
		if gsp.Opcode(write[0]) != gsp.OpFetchLog {
			return
		}
		notify(commandResponse(ref, 200, nil))
		notify(dataFrame(ref, false, 0, []byte("x")))
	})

	sink := &failingSink{}
	_, err := sess.FetchLog(context.Background(), 5, sink)
	var ioErr *gsp.IoError
	s.ErrorAs(err, &ioErr)
}

type failingSink struct{}

func (f *failingSink) Seek(int64, int) (int64, error) { return 0, nil }
func (f *failingSink) Write([]byte) (int, error)      { return 0, errSimulatedDiskFull }

var errSimulatedDiskFull = errors.New("simulated disk full")

func TestFetchSuite(t *testing.T) {
	suite.Run(t, new(FetchSuite))
}

func TestLogTransfer_Report(t *testing.T) {
	transfer := &gsp.LogTransfer{LogID: 3, SinkIdentity: "/tmp/log.sbem", BytesWritten: 2048, Duration: 2 * time.Second}
	report := transfer.Report()
	assert.Contains(t, report, "log 3")
	assert.Contains(t, report, "/tmp/log.sbem")
	assert.Contains(t, report, "2048 bytes")
	assert.Contains(t, report, "1.0 KiB/s")
}
