package gsp

import (
	"encoding/binary"
	"fmt"
)

// Opcode identifies an outbound GSP command, per spec.md §4.2.
type Opcode byte

const (
	OpHello               Opcode = 0
	OpSubscribe           Opcode = 1
	OpUnsubscribe         Opcode = 2
	OpFetchLog            Opcode = 3
	OpGet                 Opcode = 4
	OpClearLogbook        Opcode = 5
	OpPutDataloggerConfig Opcode = 6
	OpPutSystemMode       Opcode = 7
	OpPutUTCTime          Opcode = 8
	OpPutDataloggerState  Opcode = 9
)

func (o Opcode) String() string {
	switch o {
	case OpHello:
		return "HELLO"
	case OpSubscribe:
		return "SUBSCRIBE"
	case OpUnsubscribe:
		return "UNSUBSCRIBE"
	case OpFetchLog:
		return "FETCH_LOG"
	case OpGet:
		return "GET"
	case OpClearLogbook:
		return "CLEAR_LOGBOOK"
	case OpPutDataloggerConfig:
		return "PUT_DATALOGGER_CONFIG"
	case OpPutSystemMode:
		return "PUT_SYSTEMMODE"
	case OpPutUTCTime:
		return "PUT_UTCTIME"
	case OpPutDataloggerState:
		return "PUT_DATALOGGER_STATE"
	default:
		return fmt.Sprintf("Opcode(%d)", byte(o))
	}
}

// DataLoggerState mirrors the enum the device reports for /Mem/DataLogger/State.
type DataLoggerState byte

const (
	StateUnknown DataLoggerState = 1
	StateReady   DataLoggerState = 2
	StateLogging DataLoggerState = 3
)

func (s DataLoggerState) String() string {
	switch s {
	case StateReady:
		return "Ready"
	case StateLogging:
		return "Logging"
	default:
		return "Unknown"
	}
}

// Command is an outbound GSP command: opcode_byte || reference_byte || payload.
type Command struct {
	Opcode    Opcode
	Reference byte
	Payload   []byte
}

// Encode serialises the command per spec.md §4.2.
func (c Command) Encode() []byte {
	buf := make([]byte, 2+len(c.Payload))
	buf[0] = byte(c.Opcode)
	buf[1] = c.Reference
	copy(buf[2:], c.Payload)
	return buf
}

// NewPathCommand builds a GET/SUBSCRIBE-shaped command: a single NUL-terminated path.
func NewPathCommand(op Opcode, ref byte, path string) Command {
	return Command{Opcode: op, Reference: ref, Payload: nulTerminate(path)}
}

// NewConfigCommand concatenates NUL-terminated paths for PUT_DATALOGGER_CONFIG.
func NewConfigCommand(ref byte, paths []string) Command {
	var payload []byte
	for _, p := range paths {
		payload = append(payload, nulTerminate(p)...)
	}
	return Command{Opcode: OpPutDataloggerConfig, Reference: ref, Payload: payload}
}

// NewFetchLogCommand encodes FETCH_LOG's 4-byte little-endian log_id payload.
func NewFetchLogCommand(ref byte, logID uint32) Command {
	payload := make([]byte, 4)
	binary.LittleEndian.PutUint32(payload, logID)
	return Command{Opcode: OpFetchLog, Reference: ref, Payload: payload}
}

// NewUTCTimeCommand encodes PUT_UTCTIME's 8-byte little-endian microsecond payload.
func NewUTCTimeCommand(ref byte, microsSinceEpoch uint64) Command {
	payload := make([]byte, 8)
	binary.LittleEndian.PutUint64(payload, microsSinceEpoch)
	return Command{Opcode: OpPutUTCTime, Reference: ref, Payload: payload}
}

func nulTerminate(s string) []byte {
	b := make([]byte, len(s)+1)
	copy(b, s)
	b[len(s)] = 0
	return b
}

// FrameKind discriminates the three InboundFrame variants by response_code.
type FrameKind int

const (
	FrameCommandResponse FrameKind = iota + 1
	FrameDataPart
	FrameDataPart2
)

const (
	responseCodeCommand   = 1
	responseCodeData      = 2
	responseCodeDataPart2 = 3
)

// InboundFrame is the decoded form of a single GSP notification payload.
// Only one of (StatusCode valid) / (Payload is a data fragment) applies,
// selected by Kind.
type InboundFrame struct {
	Kind       FrameKind
	Reference  byte
	HasStatus  bool // false only for the HELLO CommandResponse (see spec.md §3)
	StatusCode uint16
	Data       []byte // CommandResponse body, or DataFrame/DataFramePart2 payload
}

// IsDataFrame reports whether this is a streamed data frame (either variant);
// the two are treated identically except for the ordering hint they preserve.
func (f *InboundFrame) IsDataFrame() bool {
	return f.Kind == FrameDataPart || f.Kind == FrameDataPart2
}

// DecodeInboundFrame parses a raw notification payload. isHelloReference lets
// the caller flag the one reference for which the device omits the status
// word (the HELLO response anomaly, spec.md §9).
func DecodeInboundFrame(raw []byte, isHelloReference func(ref byte) bool) (*InboundFrame, error) {
	if len(raw) < 2 {
		return nil, &ProtocolError{Detail: fmt.Sprintf("frame too short: %d bytes", len(raw))}
	}

	responseCode := raw[0]
	reference := raw[1]
	rest := raw[2:]

	switch responseCode {
	case responseCodeCommand:
		if isHelloReference != nil && isHelloReference(reference) {
			return &InboundFrame{
				Kind:      FrameCommandResponse,
				Reference: reference,
				HasStatus: false,
				Data:      rest,
			}, nil
		}
		if len(rest) < 2 {
			return nil, &ProtocolError{Detail: fmt.Sprintf("command response too short for status word: %d bytes", len(rest))}
		}
		status := binary.LittleEndian.Uint16(rest[:2])
		return &InboundFrame{
			Kind:       FrameCommandResponse,
			Reference:  reference,
			HasStatus:  true,
			StatusCode: status,
			Data:       rest[2:],
		}, nil
	case responseCodeData:
		return &InboundFrame{Kind: FrameDataPart, Reference: reference, Data: rest}, nil
	case responseCodeDataPart2:
		return &InboundFrame{Kind: FrameDataPart2, Reference: reference, Data: rest}, nil
	default:
		return nil, &ProtocolError{Detail: fmt.Sprintf("unknown response_code %d", responseCode)}
	}
}
