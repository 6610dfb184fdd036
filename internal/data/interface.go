// Package data persists run history and the last synced manifest of each
// content root.
package data

import (
	"context"
	"time"

	"assetsync/internal/manifest"
)

// Run statuses.
const (
	StatusRunning   = "running"
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

// Run is one recorded install, update or verify invocation.
type Run struct {
	ID          string
	Operation   string
	Root        string
	ManifestURL string
	Host        string
	Status      string
	StartedAt   time.Time
	FinishedAt  time.Time

	TotalAssets      int64
	MismatchedAssets int64
	TotalBytes       int64
	TransferredBytes int64
	Error            string
}

// Duration is how long a finished run took.
func (r Run) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// RunResult carries the outcome recorded by FinishRun.
type RunResult struct {
	MismatchedAssets int64
	TotalAssets      int64
	TotalBytes       int64
	TransferredBytes int64
	Err              error
}

// Repository describes the persistence contract for run history and snapshots.
type Repository interface {
	// Bootstrap prepares the backing store (creates the schema).
	Bootstrap(ctx context.Context) error

	// StartRun stores run as running, assigning an ID and start time when unset.
	StartRun(ctx context.Context, run *Run) error
	FinishRun(ctx context.Context, id string, result RunResult) error
	// ListRuns returns the most recent runs first.
	ListRuns(ctx context.Context, limit int) ([]Run, error)
	// LastRun returns the most recent run for root, or nil.
	LastRun(ctx context.Context, root string) (*Run, error)

	SaveSnapshot(ctx context.Context, root string, s *manifest.Snapshot) error
	// LoadSnapshot returns the stored snapshot for root, or nil.
	LoadSnapshot(ctx context.Context, root string) (*manifest.Snapshot, error)

	Close() error
}
