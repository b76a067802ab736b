package pipeline

import "github.com/audiostudio/api/internal/model"

// Notifier receives job lifecycle events for live delivery to connected
// clients. Implementations must not block; the orchestrator calls these
// inline between processing steps.
type Notifier interface {
	BroadcastProgress(jobID string, status model.JobStatus, progress float64, stageLabel, message string, segmentsCompleted, segmentsTotal int)
	BroadcastSegment(jobID string, index int, status model.SegmentStatus, previewPath string)
	BroadcastComplete(jobID string, results *model.JobResults)
	BroadcastError(jobID string, code, message string)
}

// NoopNotifier discards all events. Used when no delivery channel is
// wired, and in tests.
type NoopNotifier struct{}

func (NoopNotifier) BroadcastProgress(string, model.JobStatus, float64, string, string, int, int) {}
func (NoopNotifier) BroadcastSegment(string, int, model.SegmentStatus, string)                   {}
func (NoopNotifier) BroadcastComplete(string, *model.JobResults)                                 {}
func (NoopNotifier) BroadcastError(string, string, string)                                       {}
