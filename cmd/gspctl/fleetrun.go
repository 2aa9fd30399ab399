package main

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/srg/gspctl/internal/config"
	"github.com/srg/gspctl/internal/gsp"
	"github.com/srg/gspctl/internal/transport/bletransport"
)

func addSerialFlag(cmd *cobra.Command, serials *[]string) {
	cmd.Flags().StringSliceVarP(serials, "serial", "s", nil, "device serial-number suffix (repeatable)")
	cmd.Flags().BoolP("verbose", "V", false, "raise the log level to informational")
}

// newTransport builds the gsp.Transport each Session runs against.
// Overridable in tests, mirroring bletransport.DeviceFactory's mocking seam.
var newTransport = func(logger *logrus.Logger) gsp.Transport {
	return bletransport.New(logger)
}

// withSession opens, connects, runs fn, then unconditionally closes the
// Session — the guaranteed-teardown contract of spec.md §4.4.
func withSession(ctx context.Context, logger *logrus.Logger, cfg *config.Config, serial string, timeSetPolicy bool, fn func(ctx context.Context, s *gsp.Session) error) error {
	transport := newTransport(logger)
	session := gsp.NewSession(transport, logger)
	session.ScanTimeout = cfg.ScanTimeout
	session.CommandTimeout = cfg.CommandTimeout
	session.FetchIdle = cfg.FetchIdle
	session.DrainTimeout = cfg.DrainTimeout
	defer session.Close()

	if err := session.Open(ctx, serial); err != nil {
		return err
	}
	if err := session.Connect(ctx, timeSetPolicy); err != nil {
		return err
	}
	return fn(ctx, session)
}

// runFleet drives op across serials with the fleet retry policy (spec.md
// §4.6), prints one line per device, and returns a non-nil error if any
// serial still failed after all retries (spec.md §6 exit codes).
func runFleet(cmd *cobra.Command, serials []string, maxRetries int, cfg *config.Config, op gsp.Operation) error {
	outcomes := gsp.RunFleet(serials, op, gsp.RunOptions{MaxRetries: maxRetries, Backoff: cfg.RetryBackoff})

	anyFailed := false
	for _, o := range outcomes {
		if o.Success {
			fmt.Fprintf(cmd.OutOrStdout(), "%s: OK\n", o.Serial)
			continue
		}
		anyFailed = true
		fmt.Fprintf(cmd.OutOrStdout(), "%s: FAILED: %s\n", o.Serial, FormatUserError(o.Err))
	}
	if anyFailed {
		return fmt.Errorf("one or more devices failed")
	}
	return nil
}

func loggerFromFlags(cmd *cobra.Command) (*logrus.Logger, *config.Config, error) {
	logger, err := configureLogger(cmd, "verbose")
	if err != nil {
		return nil, nil, err
	}
	cfg := config.DefaultConfig()
	cfg.LogLevel = logger.GetLevel()
	return logger, cfg, nil
}

func requireSerials(serials []string) error {
	if len(serials) == 0 {
		return fmt.Errorf("at least one -s/--serial is required")
	}
	return nil
}
