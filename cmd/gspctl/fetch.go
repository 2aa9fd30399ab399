package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/srg/gspctl/internal/gsp"
)

// postFetchSystemMode is the mode the device is asked to resume after a
// fetch session, required exactly once per successful fetch session across
// all logs to avoid a 409 on firmware <= 2.3.1 (spec.md §9, SPEC_FULL.md).
const postFetchSystemMode = 5

func newFetchCmd() *cobra.Command {
	var serials []string
	var outDir string

	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Fetch all logged data files from the device",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := requireSerials(serials); err != nil {
				return err
			}
			logger, cfg, err := loggerFromFlags(cmd)
			if err != nil {
				return err
			}
			if err := os.MkdirAll(outDir, 0o755); err != nil {
				return fmt.Errorf("create output directory: %w", err)
			}

			return runFleet(cmd, serials, cfg.MaxRetries, cfg, func(serial string) error {
				return withSession(cmd.Context(), logger, cfg, serial, false, func(ctx context.Context, s *gsp.Session) error {
					return fetchAllLogs(ctx, cmd, s, serial, outDir)
				})
			})
		},
	}
	addSerialFlag(cmd, &serials)
	cmd.Flags().StringVarP(&outDir, "out", "o", ".", "directory to write fetched log files into")
	return cmd
}

// fetchAllLogs repeatedly calls FetchLog(1), FetchLog(2), ... until
// ErrNoMoreLogs (the FETCH_LOG 404 sentinel), then resets the device's
// system mode exactly once (spec.md §4.5 "The Fleet loop repeatedly calls
// fetch_log(1), fetch_log(2), ...").
func fetchAllLogs(ctx context.Context, cmd *cobra.Command, s *gsp.Session, serial, outDir string) error {
	for logID := uint32(1); ; logID++ {
		path := filepath.Join(outDir, fmt.Sprintf("Movesense_log_%d_%s.sbem", logID, serial))
		file, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_TRUNC, 0o644)
		if err != nil {
			return &gsp.IoError{Detail: "open sink " + path, Cause: err}
		}

		progress := NewProgressPrinter(fmt.Sprintf("%s: fetching log %d", serial, logID), "streaming")
		progress.Start()
		transfer, fetchErr := s.FetchLog(ctx, logID, file)
		progress.Stop()
		closeErr := file.Close()

		if fetchErr != nil {
			_ = os.Remove(path)
			if errors.Is(fetchErr, gsp.ErrNoMoreLogs) {
				break
			}
			return fetchErr
		}
		if closeErr != nil {
			return &gsp.IoError{Detail: "close sink " + path, Cause: closeErr}
		}

		fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", serial, transfer.Report())
	}

	return s.SetSystemMode(ctx, postFetchSystemMode)
}
