package main

import (
	stdErrors "errors"
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/urfave/cli/v2"

	"assetsync/internal/app"
	"assetsync/internal/manifest"
	"assetsync/internal/menu"
	"assetsync/internal/ui"
)

func installCmd() *cli.Command {
	return &cli.Command{
		Name:  "install",
		Usage: "download every asset that is missing or corrupt",
		Action: func(c *cli.Context) error {
			rt, err := newRuntime(c)
			if err != nil {
				return err
			}
			defer rt.Close()

			rt.printer.PrintBanner(appVersion)
			err = rt.installer.Install(c.Context)
			rt.renderer.Finish()
			if err != nil {
				rt.printer.PrintResult(false, "install failed: %v", err)
				return cli.Exit("", 1)
			}
			snap := rt.installer.Progress().Snapshot()
			rt.printer.PrintResult(true, "%d assets in place (%s)",
				snap.TotalAssets, humanize.IBytes(uint64(snap.TotalBytes)))
			return nil
		},
	}
}

func updateCmd() *cli.Command {
	return &cli.Command{
		Name:  "update",
		Usage: "verify the content root and re-download mismatched assets",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    "yes",
				Aliases: []string{"y"},
				Usage:   "repair without asking",
			},
		},
		Action: func(c *cli.Context) error {
			confirmer := ui.PromptConfirmer{AssumeYes: c.Bool("yes")}
			rt, err := newRuntime(c, app.WithConfirmer(confirmer))
			if err != nil {
				return err
			}
			defer rt.Close()

			err = rt.installer.Update(c.Context)
			rt.renderer.Finish()
			switch {
			case stdErrors.Is(err, app.ErrDeclined):
				rt.printer.PrintResult(false, "update cancelled")
				return cli.Exit("", 3)
			case err != nil:
				rt.printer.PrintResult(false, "update failed: %v", err)
				return cli.Exit("", 1)
			}
			rt.printer.PrintResult(true, "content root is up to date")
			return nil
		},
	}
}

func verifyCmd() *cli.Command {
	return &cli.Command{
		Name:  "verify",
		Usage: "report assets whose content does not match the manifest",
		Action: func(c *cli.Context) error {
			rt, err := newRuntime(c)
			if err != nil {
				return err
			}
			defer rt.Close()

			mismatched, err := rt.installer.Verify(c.Context)
			rt.renderer.Finish()
			if err != nil {
				rt.printer.PrintResult(false, "verify failed: %v", err)
				return cli.Exit("", 1)
			}
			if len(mismatched) == 0 {
				rt.printer.PrintResult(true, "all assets match the manifest")
				return nil
			}
			rt.printer.PrintAssets("Mismatched assets", mismatched)
			rt.printer.PrintResult(false, "%d assets need repair (%s)",
				len(mismatched), humanize.IBytes(uint64(manifest.TotalSize(mismatched))))
			return cli.Exit("", 2)
		},
	}
}

func statusCmd() *cli.Command {
	return &cli.Command{
		Name:  "status",
		Usage: "summarise the content root without hashing",
		Action: func(c *cli.Context) error {
			rt, err := newRuntime(c)
			if err != nil {
				return err
			}
			defer rt.Close()

			st, err := rt.installer.Status(c.Context)
			if err != nil {
				return err
			}
			rt.printer.PrintStatus(st)
			return nil
		},
	}
}

func historyCmd() *cli.Command {
	return &cli.Command{
		Name:  "history",
		Usage: "list recorded runs",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:  "limit",
				Value: 20,
				Usage: "maximum runs to show",
			},
		},
		Action: func(c *cli.Context) error {
			rt, err := newRuntime(c)
			if err != nil {
				return err
			}
			defer rt.Close()

			if rt.store == nil {
				return fmt.Errorf("history is disabled")
			}
			runs, err := rt.installer.History(c.Context, c.Int("limit"))
			if err != nil {
				return err
			}
			rt.printer.PrintRuns(runs)
			return nil
		},
	}
}

func menuCmd() *cli.Command {
	return &cli.Command{
		Name:  "menu",
		Usage: "interactive menu",
		Action: func(c *cli.Context) error {
			rt, err := newRuntime(c, app.WithConfirmer(ui.PromptConfirmer{}))
			if err != nil {
				return err
			}
			defer rt.Close()

			return menu.NewMenu(rt.installer, rt.console, rt.printer, appVersion).ShowMainMenu(c.Context)
		},
	}
}
