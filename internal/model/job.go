package model

import "time"

// Job is one audio transformation job: a fixed list of segments driven
// through the configured stage pipeline and combined into a single artifact.
type Job struct {
	ID                string         `json:"id"`
	Status            JobStatus      `json:"status"`
	Progress          float64        `json:"progress"`
	CurrentStage      string         `json:"currentStage,omitempty"`
	Message           string         `json:"message,omitempty"`
	Error             *string        `json:"error,omitempty"`
	Config            PipelineConfig `json:"config"`
	Segments          []Segment      `json:"segments"`
	SegmentsCompleted int            `json:"segmentsCompleted"`
	Results           *JobResults    `json:"results,omitempty"`
	CreatedAt         time.Time      `json:"createdAt"`
	UpdatedAt         time.Time      `json:"updatedAt"`
	StartedAt         *time.Time     `json:"startedAt,omitempty"`
	CompletedAt       *time.Time     `json:"completedAt,omitempty"`
}

// Segment is a contiguous time slice of the input audio, processed
// independently through the stage pipeline.
type Segment struct {
	Index        int           `json:"index"`
	StartTime    float64       `json:"startTime"`
	EndTime      float64       `json:"endTime"`
	Status       SegmentStatus `json:"status"`
	SourcePath   string        `json:"sourcePath"`
	PreviewPath  string        `json:"previewPath,omitempty"`
	ResultPath   string        `json:"resultPath,omitempty"`
	StageResults []StageResult `json:"stageResults,omitempty"`
}

// StageResult records one stage's outcome on one segment. Entries are kept
// in execution order; re-running a stage name overwrites its entry in place.
type StageResult struct {
	Stage   string       `json:"stage"`
	Outcome StageOutcome `json:"outcome"`
	Reason  string       `json:"reason,omitempty"`
}

// JobResults holds the final artifact references once combination succeeds.
type JobResults struct {
	OutputPath       string       `json:"outputPath"`
	PublicURL        string       `json:"publicUrl,omitempty"`
	Format           OutputFormat `json:"format"`
	SegmentsIncluded int          `json:"segmentsIncluded"`
}

// jobTransitions is the closed transition table. Terminal states have no
// outgoing edges; paused is reserved and unreachable by default.
var jobTransitions = map[JobStatus][]JobStatus{
	JobStatusQueued:  {JobStatusRunning, JobStatusFailed, JobStatusCancelled},
	JobStatusRunning: {JobStatusCompleted, JobStatusFailed, JobStatusCancelled},
}

// CanTransition reports whether from -> to is a legal status change.
func CanTransition(from, to JobStatus) bool {
	for _, next := range jobTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// CountResolvedSegments derives segmentsCompleted from segment state.
func CountResolvedSegments(segments []Segment) int {
	n := 0
	for _, s := range segments {
		if s.Status.Resolved() {
			n++
		}
	}
	return n
}

// Clone returns a deep copy so callers never share mutable state with the
// job registry.
func (j *Job) Clone() *Job {
	c := *j
	if j.Error != nil {
		e := *j.Error
		c.Error = &e
	}
	if j.Results != nil {
		r := *j.Results
		c.Results = &r
	}
	if j.StartedAt != nil {
		t := *j.StartedAt
		c.StartedAt = &t
	}
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		c.CompletedAt = &t
	}
	c.Config = *j.Config.Clone()
	c.Segments = make([]Segment, len(j.Segments))
	for i, s := range j.Segments {
		c.Segments[i] = s
		if len(s.StageResults) > 0 {
			c.Segments[i].StageResults = append([]StageResult(nil), s.StageResults...)
		}
	}
	return &c
}
