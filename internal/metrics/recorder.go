package metrics

import "time"

// ResultLabel enumerates operation result categories for counters.
type ResultLabel string

const (
	ResultSuccess  ResultLabel = "success"
	ResultRejected ResultLabel = "rejected" // invalid input or not ready
	ResultFailed   ResultLabel = "failed"
)

// Recorder defines observability hooks for lifecycle operations. All methods
// must be safe on the NoopRecorder.
type Recorder interface {
	ObserveOperationDuration(op string, d time.Duration)
	IncOperationResult(op string, result ResultLabel)
	IncReplaceFailure(state string)
	IncCompensation(success bool)
	SetConfigBackups(n int)
	SetArtifactBackups(n int)
	SetRestartPending(pending bool)
	SetStreamActive(active bool)
	IncConfigFileEvent(kind string)
}

// NoopRecorder is a Recorder that does nothing (default when metrics not configured).
type NoopRecorder struct{}

func (NoopRecorder) ObserveOperationDuration(string, time.Duration) {}
func (NoopRecorder) IncOperationResult(string, ResultLabel)         {}
func (NoopRecorder) IncReplaceFailure(string)                       {}
func (NoopRecorder) IncCompensation(bool)                           {}
func (NoopRecorder) SetConfigBackups(int)                           {}
func (NoopRecorder) SetArtifactBackups(int)                         {}
func (NoopRecorder) SetRestartPending(bool)                         {}
func (NoopRecorder) SetStreamActive(bool)                           {}
func (NoopRecorder) IncConfigFileEvent(string)                      {}
