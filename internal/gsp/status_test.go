package gsp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseHelloResponse_Full(t *testing.T) {
	body := []byte{2}
	body = append(body, []byte("SN001\x00Movesense\x0001:02:03:04:05:06\x00app\x001.2.3\x00")...)
	status := parseHelloResponse(body)
	assert.Equal(t, uint8(2), status.ProtocolVersion)
	assert.Equal(t, "SN001", status.SerialNumber)
	assert.Equal(t, "Movesense", status.ProductName)
	assert.Equal(t, "01:02:03:04:05:06", status.DfuMAC)
	assert.Equal(t, "app", status.AppName)
	assert.Equal(t, "1.2.3", status.AppVersion)
}

func TestParseHelloResponse_VersionOnly(t *testing.T) {
	status := parseHelloResponse([]byte{1})
	assert.Equal(t, uint8(1), status.ProtocolVersion)
	assert.Empty(t, status.SerialNumber)
	assert.Empty(t, status.AppVersion)
}

func TestParseHelloResponse_Empty(t *testing.T) {
	status := parseHelloResponse(nil)
	assert.Equal(t, DeviceStatus{}, status)
}

func TestParseDataLoggerState(t *testing.T) {
	state, err := parseDataLoggerState([]byte{byte(StateLogging)})
	require.NoError(t, err)
	assert.Equal(t, StateLogging, state)
	assert.Equal(t, "Logging", state.String())
}

func TestParseDataLoggerState_Empty(t *testing.T) {
	_, err := parseDataLoggerState(nil)
	require.Error(t, err)
	var protoErr *ProtocolError
	assert.ErrorAs(t, err, &protoErr)
}

func TestDataLoggerState_String(t *testing.T) {
	assert.Equal(t, "Ready", StateReady.String())
	assert.Equal(t, "Unknown", StateUnknown.String())
	assert.Equal(t, "Unknown", DataLoggerState(99).String())
}
