package main

import (
	"errors"
	"fmt"

	"github.com/srg/gspctl/internal/gsp"
)

// FormatUserError renders err as a single line suitable for CLI output,
// mapping the gsp error taxonomy (spec.md §7) onto operator-facing text.
func FormatUserError(err error) string {
	if err == nil {
		return ""
	}

	var connectErr *gsp.ConnectFailedError
	var cmdErr *gsp.CommandFailedError
	var timeoutErr *gsp.TimeoutError
	var protoErr *gsp.ProtocolError
	var ioErr *gsp.IoError

	switch {
	case errors.Is(err, gsp.ErrDeviceNotFound):
		return "device not found (scan timed out with no matching advertisement)"
	case errors.Is(err, gsp.ErrDisconnected):
		return "device disconnected unexpectedly"
	case errors.Is(err, gsp.ErrCancelled):
		return "operation cancelled"
	case errors.Is(err, gsp.ErrNoMoreLogs):
		return "no more logs"
	case errors.As(err, &connectErr):
		return fmt.Sprintf("connect failed: %v", connectErr.Reason)
	case errors.As(err, &cmdErr):
		return fmt.Sprintf("device rejected command (status %d)", cmdErr.StatusCode)
	case errors.As(err, &timeoutErr):
		return fmt.Sprintf("timed out during %s", timeoutErr.Phase)
	case errors.As(err, &protoErr):
		return fmt.Sprintf("protocol error: %s", protoErr.Detail)
	case errors.As(err, &ioErr):
		return fmt.Sprintf("local I/O error: %s", ioErr.Detail)
	default:
		return err.Error()
	}
}
