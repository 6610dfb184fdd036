package core

import (
	"sync/atomic"
)

// Stage is the phase an operation is in, as shown to observers.
type Stage int32

const (
	StagePreparing Stage = iota
	StageVerify
	StageDownload
)

func (s Stage) String() string {
	switch s {
	case StagePreparing:
		return "preparing"
	case StageVerify:
		return "verify"
	case StageDownload:
		return "download"
	default:
		return "unknown"
	}
}

// InstallProgress holds the counters shared by every worker of an operation.
// All fields are updated atomically; observers read them through Snapshot.
type InstallProgress struct {
	totalAssets      atomic.Int64
	completedAssets  atomic.Int64
	totalBytes       atomic.Int64
	transferredBytes atomic.Int64
	verifiedBytes    atomic.Int64
	stage            atomic.Int32
	step             atomic.Int32
	totalSteps       atomic.Int32
}

// Snapshot is a point-in-time copy of InstallProgress.
type Snapshot struct {
	TotalAssets      int64
	CompletedAssets  int64
	TotalBytes       int64
	TransferredBytes int64
	VerifiedBytes    int64
	Stage            Stage
	Step             int
	TotalSteps       int
}

// Percent returns TransferredBytes as a share of TotalBytes in [0, 100].
func (s Snapshot) Percent() float64 {
	if s.TotalBytes <= 0 {
		return 0
	}
	p := float64(s.TransferredBytes) / float64(s.TotalBytes) * 100
	switch {
	case p < 0:
		return 0
	case p > 100:
		return 100
	}
	return p
}

// ProgressFunc observes counter changes.
type ProgressFunc func(Snapshot)

// StageFunc observes stage changes.
type StageFunc func(Stage)

// Reset zeroes the counters for a new phase over totalAssets assets of totalBytes bytes.
func (p *InstallProgress) Reset(totalAssets, totalBytes int64) {
	p.completedAssets.Store(0)
	p.transferredBytes.Store(0)
	p.verifiedBytes.Store(0)
	p.totalAssets.Store(totalAssets)
	p.totalBytes.Store(totalBytes)
}

func (p *InstallProgress) CompleteAsset() {
	p.completedAssets.Add(1)
}

// AddTransferred adjusts TransferredBytes; n is negative on rollback.
func (p *InstallProgress) AddTransferred(n int64) {
	p.transferredBytes.Add(n)
}

// AddVerified adjusts VerifiedBytes; n is negative on rollback.
func (p *InstallProgress) AddVerified(n int64) {
	p.verifiedBytes.Add(n)
}

func (p *InstallProgress) SetStage(s Stage) {
	p.stage.Store(int32(s))
}

func (p *InstallProgress) Stage() Stage {
	return Stage(p.stage.Load())
}

// SetStep records "step of total" for multi-phase operations.
func (p *InstallProgress) SetStep(step, total int) {
	p.step.Store(int32(step))
	p.totalSteps.Store(int32(total))
}

// Snapshot copies the current counters.
func (p *InstallProgress) Snapshot() Snapshot {
	return Snapshot{
		TotalAssets:      p.totalAssets.Load(),
		CompletedAssets:  p.completedAssets.Load(),
		TotalBytes:       p.totalBytes.Load(),
		TransferredBytes: p.transferredBytes.Load(),
		VerifiedBytes:    p.verifiedBytes.Load(),
		Stage:            Stage(p.stage.Load()),
		Step:             int(p.step.Load()),
		TotalSteps:       int(p.totalSteps.Load()),
	}
}

func (p *InstallProgress) emit(fn ProgressFunc) {
	if fn != nil {
		fn(p.Snapshot())
	}
}
