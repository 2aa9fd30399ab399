//go:build test

package main

import (
	"bytes"
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/suite"

	"github.com/srg/gspctl/internal/gsp/gsptest"
)

// Test device addresses for consistent mock device identification
const (
	TestDeviceAddress1 = "00:00:00:00:00:01"
	TestDeviceAddress2 = "00:00:00:00:00:02"
)

// CommandTestSuite provides a suppressed-output logger and a gsptest
// Transport for exercising cmd/gspctl subcommands end-to-end without a real
// BLE stack.
type CommandTestSuite struct {
	suite.Suite
	Logger *logrus.Logger
}

func (s *CommandTestSuite) SetupTest() {
	s.Logger = logrus.New()
	s.Logger.SetLevel(logrus.PanicLevel)
}

// NewFakeTransport is a thin alias kept so command tests read the same way
// teacher's command tests built a mock peripheral: one call, ready to use.
func (s *CommandTestSuite) NewFakeTransport(peripherals ...*gsptest.Peripheral) *gsptest.Transport {
	return gsptest.NewTransport(peripherals...)
}

// CaptureStdout executes fn while capturing stdout, returns captured output.
// Stdout is restored even if fn panics.
func (s *CommandTestSuite) CaptureStdout(fn func()) string {
	oldStdout := os.Stdout
	r, w, err := os.Pipe()
	s.Require().NoError(err, "pipe creation MUST succeed")
	os.Stdout = w
	defer func() { os.Stdout = oldStdout }()

	fn()

	w.Close()
	out, _ := io.ReadAll(r)
	return string(out)
}

// ExecuteCommand runs a cobra command with args, returns output and error.
func (s *CommandTestSuite) ExecuteCommand(cmd *cobra.Command, args ...string) (string, error) {
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}
