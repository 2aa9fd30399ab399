package main

import (
	"bufio"
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/srg/gspctl/internal/gsp"
)

func newEraseMemCmd() *cobra.Command {
	var serials []string
	var force bool

	cmd := &cobra.Command{
		Use:   "erasemem",
		Short: "Erase on-device log memory",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := requireSerials(serials); err != nil {
				return err
			}
			if !force && !confirmErase(cmd, serials) {
				fmt.Fprintln(cmd.OutOrStdout(), "erase cancelled by operator")
				return nil
			}

			logger, cfg, err := loggerFromFlags(cmd)
			if err != nil {
				return err
			}

			return runFleet(cmd, serials, cfg.MaxRetries, cfg, func(serial string) error {
				return withSession(cmd.Context(), logger, cfg, serial, false, func(ctx context.Context, s *gsp.Session) error {
					return s.EraseMemory(ctx)
				})
			})
		},
	}
	addSerialFlag(cmd, &serials)
	cmd.Flags().BoolVar(&force, "force", false, "erase without an interactive confirmation prompt")
	return cmd
}

func confirmErase(cmd *cobra.Command, serials []string) bool {
	fmt.Fprintf(cmd.OutOrStdout(), "This will erase all log memory on %d device(s): %s\nProceed? [y/N]: ",
		len(serials), strings.Join(serials, ", "))

	reader := bufio.NewReader(cmd.InOrStdin())
	line, err := reader.ReadString('\n')
	if err != nil {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes"
}
