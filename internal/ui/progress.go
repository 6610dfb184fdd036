package ui

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"

	"assetsync/internal/downloader/core"
)

const (
	barWidth       = 30
	renderInterval = 200 * time.Millisecond
)

// ProgressRenderer draws a single, redrawn progress line from engine snapshots.
// Update may be called from many goroutines; redraws are throttled.
type ProgressRenderer struct {
	mu         sync.Mutex
	writer     io.Writer
	now        func() time.Time
	started    time.Time
	lastUpdate time.Time
	last       core.Snapshot
	drawn      bool
}

// NewProgressRenderer constructs a ProgressRenderer writing to w (stdout when nil).
func NewProgressRenderer(w io.Writer) *ProgressRenderer {
	if w == nil {
		w = os.Stdout
	}
	return &ProgressRenderer{writer: w, now: time.Now}
}

// Update records s and redraws at most every 200ms.
func (r *ProgressRenderer) Update(s core.Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	if r.started.IsZero() {
		r.started = now
	}
	r.last = s
	if r.drawn && now.Sub(r.lastUpdate) < renderInterval {
		return
	}
	r.lastUpdate = now
	r.draw(now)
}

// Stage prints a line when the engine enters a new stage.
func (r *ProgressRenderer) Stage(s core.Stage) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.last.Stage == s && r.drawn {
		return
	}
	r.last.Stage = s
	if r.drawn {
		fmt.Fprintln(r.writer)
		r.drawn = false
	}
}

// Finish draws the final state and ends the line.
func (r *ProgressRenderer) Finish() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.drawn {
		return
	}
	r.draw(r.now())
	fmt.Fprintln(r.writer)
	r.drawn = false
}

func (r *ProgressRenderer) draw(now time.Time) {
	s := r.last
	pct := s.Percent()
	filled := int(float64(barWidth) * pct / 100)
	if filled > barWidth {
		filled = barWidth
	}
	bar := strings.Repeat("=", filled)
	if filled < barWidth {
		bar += ">" + strings.Repeat(" ", barWidth-filled-1)
	}

	step := ""
	if s.TotalSteps > 1 {
		step = fmt.Sprintf(" %d/%d", s.Step, s.TotalSteps)
	}

	speed := ""
	if elapsed := now.Sub(r.started).Seconds(); elapsed > 0 && s.TransferredBytes > 0 {
		speed = fmt.Sprintf(" %s/s", humanize.IBytes(uint64(float64(s.TransferredBytes)/elapsed)))
	}

	fmt.Fprintf(r.writer, "\r  %-8s%s [%s] %5.1f%% (%s/%s) %d/%d assets%s",
		s.Stage,
		step,
		bar,
		pct,
		humanize.IBytes(uint64(max(s.TransferredBytes, 0))),
		humanize.IBytes(uint64(max(s.TotalBytes, 0))),
		s.CompletedAssets,
		s.TotalAssets,
		speed,
	)
	r.drawn = true
}
