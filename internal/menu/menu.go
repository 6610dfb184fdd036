// Package menu is the interactive front end: a status header followed by a
// selectable list of operations, repeated until the user quits.
package menu

import (
	"context"
	"errors"
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/manifoldco/promptui"

	"assetsync/internal/logger"
	"assetsync/internal/ui"
)

var errQuit = errors.New("quit")

// Menu coordinates the interactive workflow.
type Menu struct {
	actions Actions
	console *ui.Console
	logger  logger.Logger
	printer *ui.Printer
	version string

	selectFn func(items []string) (int, error)
	pauseFn  func(message string)
	clearFn  func()
}

// NewMenu creates a menu dispatching to actions.
func NewMenu(actions Actions, console *ui.Console, printer *ui.Printer, version string) *Menu {
	var log logger.Logger = logger.NewStandardLogger()
	if console != nil && console.Logger() != nil {
		log = console.Logger()
	}
	if printer == nil {
		printer = ui.NewPrinter(nil)
	}

	return &Menu{
		actions:  actions,
		console:  console,
		logger:   log,
		printer:  printer,
		version:  version,
		selectFn: promptSelect,
		pauseFn:  waitForUserInput,
		clearFn:  func() { fmt.Print("\033[H\033[2J") },
	}
}

// ShowMainMenu displays the menu until the user quits or ctx is cancelled.
func (m *Menu) ShowMainMenu(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		m.clearFn()
		m.printer.PrintBanner(m.version)
		status, statusErr := m.actions.Status(ctx)
		if statusErr != nil {
			m.logger.Warn("Unable to read content status: %v", statusErr)
		} else {
			m.printer.PrintStatus(status)
		}

		options := m.buildMenuOptions(status, statusErr)
		selected, err := m.promptUserSelection(options)
		if err != nil {
			if errors.Is(err, promptui.ErrInterrupt) || errors.Is(err, promptui.ErrEOF) {
				m.logger.Info("User cancelled operation")
				return nil
			}
			return fmt.Errorf("failed to process user input: %w", err)
		}

		err = options[selected].Handler(ctx)
		if errors.Is(err, errQuit) {
			return nil
		}
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			m.logger.Error("Operation failed: %v", err)
		}
		m.pauseFn("\nPress Enter to continue...")
	}
}

func (m *Menu) buildMenuOptions(status ui.Status, statusErr error) []MenuOption {
	installColor := "green"
	switch {
	case statusErr != nil:
		installColor = "red"
	case status.TotalBytes > 0 && status.DownloadedBytes < status.TotalBytes:
		installColor = "yellow"
	}

	return []MenuOption{
		{
			Label:       "1. Install",
			Description: fmt.Sprintf("download missing assets (%s present)", humanize.IBytes(uint64(status.DownloadedBytes))),
			Handler:     m.handleInstall,
			Color:       installColor,
			Enabled:     true,
		},
		{
			Label:       "2. Update",
			Description: "verify and repair",
			Handler:     m.handleUpdate,
			Color:       "cyan",
			Enabled:     statusErr == nil,
		},
		{
			Label:       "3. Verify",
			Description: "report mismatched assets",
			Handler:     m.handleVerify,
			Color:       "cyan",
			Enabled:     statusErr == nil,
		},
		{
			Label:   "4. History",
			Handler: m.handleHistory,
			Enabled: true,
		},
		{
			Label:   "0. Quit",
			Handler: func(context.Context) error { return errQuit },
			Color:   "red",
			Enabled: true,
		},
	}
}
