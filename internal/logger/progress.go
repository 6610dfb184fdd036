package logger

import (
	"fmt"
	"io"
	"sync"
	"time"
)

// Progress describes indicators for operations with no measurable size,
// such as fetching the remote manifest.
type Progress interface {
	Start(operation string)
	Stop(operation string)
}

// SpinnerProgress renders a spinner-style progress indicator.
type SpinnerProgress struct {
	mu       sync.Mutex
	output   io.Writer
	frames   []string
	index    int
	stopCh   chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// NewSpinnerProgress creates a progress spinner writing to the provided output.
func NewSpinnerProgress(output io.Writer) *SpinnerProgress {
	if output == nil {
		output = io.Discard
	}

	return &SpinnerProgress{
		output: output,
		frames: []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"},
		stopCh: make(chan struct{}),
		done:   make(chan struct{}),
	}
}

// Start begins rendering the spinner next to message.
func (p *SpinnerProgress) Start(message string) {
	go func() {
		defer close(p.done)
		ticker := time.NewTicker(120 * time.Millisecond)
		defer ticker.Stop()

		for {
			select {
			case <-p.stopCh:
				return
			case <-ticker.C:
				p.mu.Lock()
				frame := p.frames[p.index%len(p.frames)]
				p.index++
				fmt.Fprintf(p.output, "\r%s %s", frame, message)
				p.mu.Unlock()
			}
		}
	}()
}

// Stop terminates the spinner and prints the final message. It must follow Start.
func (p *SpinnerProgress) Stop(message string) {
	p.finish("✓", message)
}

// Fail terminates the spinner and prints message as a failure.
func (p *SpinnerProgress) Fail(message string) {
	p.finish("✕", message)
}

func (p *SpinnerProgress) finish(mark, message string) {
	p.stopOnce.Do(func() {
		close(p.stopCh)
		<-p.done
	})

	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.output, "\r%s %s\n", mark, message)
}
