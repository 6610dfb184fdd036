package core

import "time"

// Metrics receives engine counters. *metrics.Recorder implements it.
type Metrics interface {
	AddBytesDownloaded(n int64)
	AddBytesVerified(n int64)
	AssetFetched(outcome string)
	VerifyResult(match bool)
	TransferRetry()
	ObserveRun(operation string, d time.Duration, err error)
}

// Asset outcomes reported through Metrics.AssetFetched.
const (
	OutcomeDownloaded = "downloaded"
	OutcomeSkipped    = "skipped"
	OutcomeFailed     = "failed"
)

type noopMetrics struct{}

func (noopMetrics) AddBytesDownloaded(int64)                {}
func (noopMetrics) AddBytesVerified(int64)                  {}
func (noopMetrics) AssetFetched(string)                     {}
func (noopMetrics) VerifyResult(bool)                       {}
func (noopMetrics) TransferRetry()                          {}
func (noopMetrics) ObserveRun(string, time.Duration, error) {}
