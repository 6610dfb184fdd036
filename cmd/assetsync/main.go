package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"
)

const appVersion = "1.0.0"

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		fmt.Fprintln(os.Stderr, "Received exit signal, stopping after in-flight writes...")
		cancel()
	}()

	app := &cli.App{
		Name:    "assetsync",
		Usage:   "keep a content directory in sync with a published manifest",
		Version: appVersion,
		Flags:   globalFlags(),
		Commands: []*cli.Command{
			installCmd(),
			updateCmd(),
			verifyCmd(),
			statusCmd(),
			historyCmd(),
			menuCmd(),
		},
	}

	if err := app.RunContext(ctx, os.Args); err != nil {
		if exitErr, ok := err.(cli.ExitCoder); ok {
			if msg := exitErr.Error(); msg != "" {
				fmt.Fprintln(os.Stderr, msg)
			}
			os.Exit(exitErr.ExitCode())
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			EnvVars: []string{"ASSETSYNC_CONFIG"},
			Usage:   "YAML file overriding the built-in download settings",
		},
		&cli.StringFlag{
			Name:    "root",
			Aliases: []string{"r"},
			EnvVars: []string{"ASSETSYNC_ROOT"},
			Value:   ".",
			Usage:   "content root to synchronise",
		},
		&cli.StringFlag{
			Name:    "manifest",
			Aliases: []string{"m"},
			EnvVars: []string{"ASSETSYNC_MANIFEST"},
			Usage:   "manifest URL (http, https, file or s3)",
		},
		&cli.StringFlag{
			Name:    "base-url",
			EnvVars: []string{"ASSETSYNC_BASE_URL"},
			Usage:   "download root; defaults to the manifest's directory",
		},
		&cli.IntFlag{
			Name:  "concurrency",
			Usage: "assets processed in parallel (0 = one per CPU)",
		},
		&cli.StringFlag{
			Name:  "log-level",
			Value: "info",
			Usage: "debug, info, warn or error",
		},
		&cli.StringFlag{
			Name:  "log-format",
			Value: "console",
			Usage: "console or json",
		},
		&cli.StringFlag{
			Name:  "log-output",
			Value: "stderr",
			Usage: "stdout, stderr or a file path",
		},
		&cli.StringFlag{
			Name:    "db",
			EnvVars: []string{"ASSETSYNC_DB"},
			Usage:   "SQLite history database (default <root>/.assetsync/history.db)",
		},
		&cli.BoolFlag{
			Name:  "no-history",
			Usage: "do not record runs",
		},
		&cli.StringFlag{
			Name:  "metrics-addr",
			Usage: "serve Prometheus metrics on this address while running",
		},
		&cli.BoolFlag{
			Name:  "skip-checks",
			Usage: "skip the environment checks before syncing",
		},
	}
}
