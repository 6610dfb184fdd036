package menu

import (
	"context"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"

	"assetsync/internal/manifest"
)

const historyLimit = 10

func (m *Menu) handleInstall(ctx context.Context) error {
	m.logger.Info("Starting install...")
	if err := m.actions.Install(ctx); err != nil {
		return errors.Wrap(err, "install failed")
	}
	m.printer.PrintResult(true, "install complete")
	return nil
}

func (m *Menu) handleUpdate(ctx context.Context) error {
	m.logger.Info("Starting update...")
	if err := m.actions.Update(ctx); err != nil {
		return errors.Wrap(err, "update failed")
	}
	m.printer.PrintResult(true, "content root is up to date")
	return nil
}

func (m *Menu) handleVerify(ctx context.Context) error {
	mismatched, err := m.actions.Verify(ctx)
	if err != nil {
		return errors.Wrap(err, "verify failed")
	}
	if len(mismatched) == 0 {
		m.printer.PrintResult(true, "all assets match the manifest")
		return nil
	}
	m.printer.PrintAssets("Mismatched assets", mismatched)
	m.printer.PrintResult(false, "%d assets need repair (%s)",
		len(mismatched), humanize.IBytes(uint64(manifest.TotalSize(mismatched))))
	return nil
}

func (m *Menu) handleHistory(ctx context.Context) error {
	runs, err := m.actions.History(ctx, historyLimit)
	if err != nil {
		return errors.Wrap(err, "failed to load history")
	}
	m.printer.PrintRuns(runs)
	return nil
}
