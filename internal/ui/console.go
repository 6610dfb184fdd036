// Package ui renders the command line front end: status tables, the live
// progress line and confirmation prompts.
package ui

import (
	"fmt"
	"io"
	"os"

	"assetsync/internal/logger"
)

// Console coordinates logger output, progress indicators, and plain text UI writes.
type Console struct {
	logger   logger.Logger
	progress *logger.SpinnerProgress
	output   io.Writer
}

// NewConsole builds a Console bound to the provided logger.
func NewConsole(log logger.Logger, output io.Writer) *Console {
	c := &Console{
		logger: log,
		output: output,
	}
	if c.output == nil {
		c.output = os.Stdout
	}
	return c
}

// Logger exposes the underlying logger.
func (c *Console) Logger() logger.Logger {
	return c.logger
}

// Output is the writer plain text goes to.
func (c *Console) Output() io.Writer {
	return c.output
}

// Success logs a success message with a consistent prefix.
func (c *Console) Success(format string, args ...interface{}) {
	if c.logger == nil {
		return
	}
	c.logger.Info("✓ "+format, args...)
}

// StartProgress shows a spinner for an operation of unknown length.
func (c *Console) StartProgress(operation string) {
	c.progress = logger.NewSpinnerProgress(c.output)
	c.progress.Start(operation)
}

// StopProgress stops the spinner started by StartProgress.
func (c *Console) StopProgress(operation string) {
	if c.progress == nil {
		return
	}
	c.progress.Stop(operation)
	c.progress = nil
}

// FailProgress stops the spinner, marking the operation as failed.
func (c *Console) FailProgress(operation string) {
	if c.progress == nil {
		return
	}
	c.progress.Fail(operation)
	c.progress = nil
}

// WriteLine outputs formatted text without involving the logger.
func (c *Console) WriteLine(format string, args ...interface{}) {
	fmt.Fprintf(c.output, format+"\n", args...)
}
