package bletransport

import (
	"context"
	"errors"
	"strings"

	"github.com/srg/gspctl/internal/gsp"
)

// normalizeError maps go-ble error strings and context errors onto the
// gsp error taxonomy (spec.md §7), adapted from goble.NormalizeError.
func normalizeError(err error) error {
	if err == nil {
		return nil
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return &gsp.TimeoutError{Phase: "transport"}
	case errors.Is(err, context.Canceled):
		return gsp.ErrCancelled
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "disconnected"), strings.Contains(msg, "device not connected"):
		return gsp.ErrDisconnected
	default:
		return err
	}
}
