package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/srg/gspctl/internal/gsp"
)

func newConfigureCmd() *cobra.Command {
	var serials []string
	var paths []string

	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configure which resource paths the device reports (implicitly adds /Time/Detailed)",
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
					return s.Configure(ctx, paths)
				})
			})
		},
	}
	addSerialFlag(cmd, &serials)
	cmd.Flags().StringSliceVarP(&paths, "path", "p", nil, "resource path to configure (repeatable)")
	return cmd
}
