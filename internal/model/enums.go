package model

// Job status
type JobStatus string

const (
	JobStatusQueued    JobStatus = "queued"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
	// Reserved: no default transition reaches it.
	JobStatusPaused JobStatus = "paused"
)

var ValidJobStatuses = []JobStatus{
	JobStatusQueued, JobStatusRunning, JobStatusCompleted,
	JobStatusFailed, JobStatusCancelled, JobStatusPaused,
}

// Terminal reports whether no further transition is permitted.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed || s == JobStatusCancelled
}

// ParseJobStatus maps a string onto the closed status set.
func ParseJobStatus(s string) (JobStatus, bool) {
	for _, v := range ValidJobStatuses {
		if string(v) == s {
			return v, true
		}
	}
	return "", false
}

// Segment status
type SegmentStatus string

const (
	SegmentQueued    SegmentStatus = "queued"
	SegmentRunning   SegmentStatus = "running"
	SegmentCompleted SegmentStatus = "completed"
	SegmentFailed    SegmentStatus = "failed"
)

// Resolved reports whether the segment has left queued/running.
func (s SegmentStatus) Resolved() bool {
	return s == SegmentCompleted || s == SegmentFailed
}

// Stage outcomes recorded per segment
type StageOutcome string

const (
	OutcomeCompleted StageOutcome = "completed"
	OutcomeSkipped   StageOutcome = "skipped"
	OutcomeFailed    StageOutcome = "failed"
)

// Stage names
const (
	StageSwiftF0      = "swiftf0"
	StageSVC          = "svc"
	StageInstrumental = "instrumental"
	StageMixing       = "mixing"
)

// DefaultStageOrder is the pipeline used when a request omits pipelineStages.
var DefaultStageOrder = []string{StageSwiftF0, StageSVC, StageInstrumental, StageMixing}

// Output formats
type OutputFormat string

const (
	FormatWAV  OutputFormat = "wav"
	FormatFLAC OutputFormat = "flac"
	FormatMP3  OutputFormat = "mp3"
)

// SVC variants
type SVCVariant string

const (
	SVCVariantSoVits SVCVariant = "so-vits-svc"
	SVCVariantHQ     SVCVariant = "hq-svc"
	SVCVariantEcho   SVCVariant = "echo"
)

// F0 extraction methods
type F0Method string

const (
	F0Crepe       F0Method = "crepe"
	F0CrepeTiny   F0Method = "crepe-tiny"
	F0MangioCrepe F0Method = "mangio-crepe"
	F0FCPE        F0Method = "fcpe"
	F0Hybrid      F0Method = "hybrid"
)

// Instrumental models
type InstrumentalModel string

const (
	InstrumentalHeartmula InstrumentalModel = "heartmula"
	InstrumentalAceStep   InstrumentalModel = "ace-step"
)

// Separation stems
type Stem string

const (
	StemVocals Stem = "vocals"
	StemDrums  Stem = "drums"
	StemBass   Stem = "bass"
	StemOther  Stem = "other"
)

// Optimization profiles
type OptimizationProfile string

const (
	ProfileFast    OptimizationProfile = "fast"
	ProfileQuality OptimizationProfile = "quality"
)
