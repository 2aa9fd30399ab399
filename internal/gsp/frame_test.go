package gsp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommand_Encode(t *testing.T) {
	cmd := Command{Opcode: OpGet, Reference: 105, Payload: []byte("/Mem/DataLogger/State\x00")}
	encoded := cmd.Encode()
	assert.Equal(t, byte(OpGet), encoded[0])
	assert.Equal(t, byte(105), encoded[1])
	assert.Equal(t, []byte("/Mem/DataLogger/State\x00"), encoded[2:])
}

func TestNewPathCommand(t *testing.T) {
	cmd := NewPathCommand(OpGet, RefGet, "/Mem/DataLogger/State")
	assert.Equal(t, OpGet, cmd.Opcode)
	assert.Equal(t, RefGet, cmd.Reference)
	assert.Equal(t, []byte("/Mem/DataLogger/State\x00"), cmd.Payload)
}

func TestNewConfigCommand(t *testing.T) {
	cmd := NewConfigCommand(RefConfig, []string{"/Mem/Logging", "/Time/Detailed"})
	assert.Equal(t, OpPutDataloggerConfig, cmd.Opcode)
	assert.Equal(t, []byte("/Mem/Logging\x00/Time/Detailed\x00"), cmd.Payload)
}

func TestNewFetchLogCommand(t *testing.T) {
	cmd := NewFetchLogCommand(RefFetchLog, 0x01020304)
	assert.Equal(t, OpFetchLog, cmd.Opcode)
	assert.Equal(t, []byte{0x04, 0x03, 0x02, 0x01}, cmd.Payload)
}

func TestNewUTCTimeCommand(t *testing.T) {
	cmd := NewUTCTimeCommand(RefTime, 0x0102030405060708)
	assert.Equal(t, OpPutUTCTime, cmd.Opcode)
	assert.Equal(t, []byte{0x08, 0x07, 0x06, 0x05, 0x04, 0x03, 0x02, 0x01}, cmd.Payload)
}

func TestDecodeInboundFrame_CommandResponse(t *testing.T) {
	raw := []byte{responseCodeCommand, 105, 0x00, 0x00, 'o', 'k'}
	frame, err := DecodeInboundFrame(raw, func(byte) bool { return false })
	require.NoError(t, err)
	assert.Equal(t, FrameCommandResponse, frame.Kind)
	assert.Equal(t, byte(105), frame.Reference)
	assert.True(t, frame.HasStatus)
	assert.Equal(t, uint16(0), frame.StatusCode)
	assert.Equal(t, []byte("ok"), frame.Data)
}

func TestDecodeInboundFrame_HelloHasNoStatusWord(t *testing.T) {
	raw := []byte{responseCodeCommand, RefHello, 1, 'S', 'N', '0', '0', '1', 0}
	frame, err := DecodeInboundFrame(raw, func(ref byte) bool { return ref == RefHello })
	require.NoError(t, err)
	assert.False(t, frame.HasStatus)
	assert.Equal(t, raw[2:], frame.Data)
}

func TestDecodeInboundFrame_DataFrames(t *testing.T) {
	raw := []byte{responseCodeData, RefFetchLog, 0, 0, 0, 0, 'h', 'i'}
	frame, err := DecodeInboundFrame(raw, nil)
	require.NoError(t, err)
	assert.Equal(t, FrameDataPart, frame.Kind)
	assert.True(t, frame.IsDataFrame())

	raw2 := []byte{responseCodeDataPart2, RefFetchLog, 0, 0, 0, 0}
	frame2, err := DecodeInboundFrame(raw2, nil)
	require.NoError(t, err)
	assert.Equal(t, FrameDataPart2, frame2.Kind)
	assert.True(t, frame2.IsDataFrame())
}

func TestDecodeInboundFrame_Errors(t *testing.T) {
	cases := []struct {
		name string
		raw  []byte
	}{
		{"too short", []byte{1}},
		{"unknown response code", []byte{99, 1}},
		{"command response too short for status word", []byte{responseCodeCommand, 1, 0x01}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := DecodeInboundFrame(tc.raw, func(byte) bool { return false })
			require.Error(t, err)
			var protoErr *ProtocolError
			assert.ErrorAs(t, err, &protoErr)
		})
	}
}

func TestOpcode_String(t *testing.T) {
	assert.Equal(t, "HELLO", OpHello.String())
	assert.Equal(t, "FETCH_LOG", OpFetchLog.String())
	assert.Contains(t, Opcode(200).String(), "Opcode(200)")
}
