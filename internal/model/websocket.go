package model

// WebSocket message types
const (
	WSMessageTypeProgress = "progress"
	WSMessageTypeSegment  = "segment"
	WSMessageTypeComplete = "complete"
	WSMessageTypeError    = "error"
	WSMessageTypePing     = "ping"
	WSMessageTypePong     = "pong"
)

// WSMessage represents a generic WebSocket message
type WSMessage struct {
	Type string `json:"type"`
}

// WSProgressMessage represents a job-level progress update
type WSProgressMessage struct {
	Type              string    `json:"type"`
	JobID             string    `json:"jobId"`
	Status            JobStatus `json:"status"`
	Progress          float64   `json:"progress"`
	CurrentStage      string    `json:"currentStage,omitempty"`
	Message           string    `json:"message,omitempty"`
	SegmentsCompleted int       `json:"segmentsCompleted"`
	SegmentsTotal     int       `json:"segmentsTotal"`
}

// WSSegmentMessage represents a single segment's status change
type WSSegmentMessage struct {
	Type    string        `json:"type"`
	JobID   string        `json:"jobId"`
	Index   int           `json:"index"`
	Status  SegmentStatus `json:"status"`
	Preview string        `json:"previewPath,omitempty"`
}

// WSCompleteMessage represents job completion
type WSCompleteMessage struct {
	Type    string      `json:"type"`
	JobID   string      `json:"jobId"`
	Results *JobResults `json:"results"`
}

// WSErrorMessage represents a job failure
type WSErrorMessage struct {
	Type  string  `json:"type"`
	JobID string  `json:"jobId"`
	Error WSError `json:"error"`
}

// WSError represents error details
type WSError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
