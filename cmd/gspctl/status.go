package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/srg/gspctl/internal/gsp"
)

func newStatusCmd() *cobra.Command {
	var serials []string

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Query device status (protocol version, product, app, DataLogger state)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := requireSerials(serials); err != nil {
				return err
			}
			logger, cfg, err := loggerFromFlags(cmd)
			if err != nil {
				return err
			}

			// status is read-only: no retries (spec.md §4.6).
			return runFleet(cmd, serials, 0, cfg, func(serial string) error {
				return withSession(cmd.Context(), logger, cfg, serial, true, func(ctx context.Context, s *gsp.Session) error {
					status, err := s.GetStatus(ctx)
					if status != nil {
						printStatus(cmd.OutOrStdout(), serial, status)
					}
					return err
				})
			})
		},
	}
	addSerialFlag(cmd, &serials)
	return cmd
}

func printStatus(w io.Writer, serial string, status *gsp.DeviceStatus) {
	dlState := "unknown"
	if status.HasDLState {
		dlState = status.DLState.String()
	}
	fmt.Fprintf(w, "  %s: protocol=%d serial=%s product=%s app=%s/%s dl_state=%s\n",
		serial, status.ProtocolVersion, status.SerialNumber, status.ProductName,
		status.AppName, status.AppVersion, dlState)
}
