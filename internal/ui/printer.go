package ui

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	runewidth "github.com/mattn/go-runewidth"
	"golang.org/x/term"

	"assetsync/internal/data"
	"assetsync/internal/manifest"
)

// Printer renders rich terminal UI fragments used by the CLI.
type Printer struct {
	out          io.Writer
	colorEnabled bool
	success      *color.Color
	info         *color.Color
	warn         *color.Color
	error        *color.Color
}

// NewPrinter constructs a Printer writing to out, with colour enabled when
// out is a terminal and NO_COLOR is unset.
func NewPrinter(out io.Writer) *Printer {
	if out == nil {
		out = os.Stdout
	}
	enabled := supportsColor(out) && os.Getenv("NO_COLOR") == ""

	p := &Printer{
		out:          out,
		colorEnabled: enabled,
		success:      color.New(color.FgGreen, color.Bold),
		info:         color.New(color.FgBlue, color.Bold),
		warn:         color.New(color.FgYellow, color.Bold),
		error:        color.New(color.FgRed, color.Bold),
	}

	if !enabled {
		p.success.DisableColor()
		p.info.DisableColor()
		p.warn.DisableColor()
		p.error.DisableColor()
	} else {
		p.success.EnableColor()
		p.info.EnableColor()
		p.warn.EnableColor()
		p.error.EnableColor()
	}

	return p
}

// PrintBanner renders the application banner.
func (p *Printer) PrintBanner(version string) {
	p.success.Fprintln(p.out, "=========================================")
	p.success.Fprintf(p.out, "  assetsync %s\n", version)
	p.success.Fprintln(p.out, "  manifest-driven content synchronizer")
	p.success.Fprintln(p.out, "=========================================")
}

// PrintSeparator prints a repeated character separator.
func (p *Printer) PrintSeparator(char string, length int) {
	if length <= 0 {
		return
	}
	fmt.Fprintln(p.out, strings.Repeat(char, length))
}

// PrintAssets lists assets with their sizes, paths aligned by display width.
func (p *Printer) PrintAssets(title string, assets []manifest.Entry) {
	p.info.Fprintf(p.out, "%s (%d)\n", title, len(assets))
	if len(assets) == 0 {
		return
	}

	width := 0
	for _, e := range assets {
		if w := runewidth.StringWidth(e.Path); w > width {
			width = w
		}
	}
	for _, e := range assets {
		pad := strings.Repeat(" ", width-runewidth.StringWidth(e.Path))
		fmt.Fprintf(p.out, "  %s%s  %s\n", e.Path, pad, p.warn.Sprint(humanize.IBytes(uint64(e.Size))))
	}
	fmt.Fprintf(p.out, "  total: %s\n", humanize.IBytes(uint64(manifest.TotalSize(assets))))
}

// Status summarises a content root for the status command.
type Status struct {
	Root            string
	TotalAssets     int
	TotalBytes      int64
	DownloadedBytes int64
	SnapshotVersion string
	LastRun         *data.Run
}

// PrintStatus renders a content root summary.
func (p *Printer) PrintStatus(s Status) {
	p.PrintSeparator("-", 50)
	rows := [][2]string{
		{"Root:", s.Root},
		{"Assets:", fmt.Sprintf("%d", s.TotalAssets)},
		{"Size:", humanize.IBytes(uint64(s.TotalBytes))},
		{"Present:", fmt.Sprintf("%s (%.1f%%)", humanize.IBytes(uint64(s.DownloadedBytes)), percent(s.DownloadedBytes, s.TotalBytes))},
	}
	if s.SnapshotVersion != "" {
		rows = append(rows, [2]string{"Snapshot:", s.SnapshotVersion})
	}
	if s.LastRun != nil {
		rows = append(rows, [2]string{"Last run:", fmt.Sprintf("%s %s %s",
			s.LastRun.Operation, s.LastRun.Status, humanize.Time(s.LastRun.StartedAt))})
	}
	p.printRows(rows)
	p.PrintSeparator("-", 50)
}

// PrintRuns renders run history, most recent first.
func (p *Printer) PrintRuns(runs []data.Run) {
	if len(runs) == 0 {
		fmt.Fprintln(p.out, "no runs recorded")
		return
	}
	for _, r := range runs {
		fmt.Fprintf(p.out, "[ %s ] %s  %-7s %s  %s/%s  %s\n",
			p.statusMark(r.Status),
			r.StartedAt.Format(time.DateTime),
			r.Operation,
			r.Root,
			humanize.IBytes(uint64(r.TransferredBytes)),
			humanize.IBytes(uint64(r.TotalBytes)),
			r.Duration().Round(time.Millisecond),
		)
		if r.Error != "" {
			fmt.Fprintf(p.out, "        %s\n", p.error.Sprint(r.Error))
		}
	}
}

// PrintResult renders the final line of an operation.
func (p *Printer) PrintResult(ok bool, format string, args ...interface{}) {
	mark := p.success.Sprint("✓")
	if !ok {
		mark = p.error.Sprint("✕")
	}
	fmt.Fprintf(p.out, "[ %s ] %s\n", mark, fmt.Sprintf(format, args...))
}

func (p *Printer) statusMark(status string) string {
	switch status {
	case data.StatusSucceeded:
		return p.success.Sprint("✓")
	case data.StatusFailed:
		return p.error.Sprint("✕")
	case data.StatusRunning:
		return p.warn.Sprint("!")
	default:
		return "-"
	}
}

func (p *Printer) printRows(rows [][2]string) {
	width := 0
	for _, r := range rows {
		if w := runewidth.StringWidth(r[0]); w > width {
			width = w
		}
	}
	for _, r := range rows {
		label := r[0] + strings.Repeat(" ", width-runewidth.StringWidth(r[0]))
		fmt.Fprintf(p.out, "%s %s\n", p.info.Sprint(label), r[1])
	}
}

func percent(part, total int64) float64 {
	if total <= 0 {
		return 100
	}
	return float64(part) / float64(total) * 100
}

func supportsColor(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
