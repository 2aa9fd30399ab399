package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/srg/gspctl/internal/gsp"
)

func newStopCmd() *cobra.Command {
	var serials []string

	cmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop on-device logging",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := requireSerials(serials); err != nil {
				return err
			}
			logger, cfg, err := loggerFromFlags(cmd)
			if err != nil {
				return err
			}

			return runFleet(cmd, serials, cfg.MaxRetries, cfg, func(serial string) error {
				return withSession(cmd.Context(), logger, cfg, serial, true, func(ctx context.Context, s *gsp.Session) error {
					return s.StopLogging(ctx)
				})
			})
		},
	}
	addSerialFlag(cmd, &serials)
	return cmd
}
