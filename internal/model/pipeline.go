package model

import "time"

// PipelineConfig is the immutable per-job processing definition, captured at
// creation. Sections left out of the request take the documented defaults;
// validation runs after defaults are applied.
type PipelineConfig struct {
	PipelineStages []string              `json:"pipelineStages" validate:"required,min=1,dive,oneof=swiftf0 svc instrumental mixing"`
	Processing     *ProcessingSettings   `json:"processing,omitempty" validate:"omitempty"`
	Quality        *QualitySettings      `json:"quality,omitempty" validate:"omitempty"`
	SwiftF0        *SwiftF0Settings      `json:"swiftf0,omitempty" validate:"omitempty"`
	SVC            *SVCSettings          `json:"svc,omitempty" validate:"omitempty"`
	Instrumental   *InstrumentalSettings `json:"instrumental,omitempty" validate:"omitempty"`
	Mixing         *MixingSettings       `json:"mixing,omitempty" validate:"omitempty"`
}

// ProcessingSettings controls segmentation and resource behavior
type ProcessingSettings struct {
	SegmentLength             float64 `json:"segmentLength" validate:"min=5,max=120"`
	OverlapDuration           float64 `json:"overlapDuration" validate:"gte=0,lte=5"`
	MaxConcurrentSegments     int     `json:"maxConcurrentSegments" validate:"min=1,max=4"`
	UseGPU                    bool    `json:"useGpu"`
	Device                    string  `json:"device" validate:"omitempty,oneof=cuda cpu"`
	ClearCacheBetweenSegments bool    `json:"clearCacheBetweenSegments"`
}

// QualitySettings controls the final artifact's sample format
type QualitySettings struct {
	SampleRate   int          `json:"sampleRate" validate:"min=22050,max=96000"`
	BitDepth     int          `json:"bitDepth" validate:"oneof=16 24 32"`
	Channels     int          `json:"channels" validate:"min=1,max=2"`
	OutputFormat OutputFormat `json:"outputFormat" validate:"oneof=wav flac mp3"`
}

// SwiftF0Settings configures the pitch/formant stage
type SwiftF0Settings struct {
	Enabled      bool    `json:"enabled"`
	PitchShift   float64 `json:"pitchShift" validate:"min=-24,max=24"`
	FormantShift float64 `json:"formantShift" validate:"min=0.5,max=2"`
	F0Min        float64 `json:"f0Min" validate:"min=20,max=200"`
	F0Max        float64 `json:"f0Max" validate:"min=200,max=2000"`
}

// SVCSettings configures the voice conversion stage
type SVCSettings struct {
	Enabled           bool       `json:"enabled"`
	Variant           SVCVariant `json:"variant" validate:"oneof=so-vits-svc hq-svc echo"`
	F0Method          F0Method   `json:"f0Method" validate:"oneof=crepe crepe-tiny mangio-crepe fcpe hybrid"`
	ClusterInferRatio float64    `json:"clusterInferRatio" validate:"gte=0,lte=1"`
	NoiseScale        float64    `json:"noiseScale" validate:"gte=0,lte=1"`
}

// InstrumentalSettings configures the instrumental regeneration stage
type InstrumentalSettings struct {
	Enabled bool              `json:"enabled"`
	Model   InstrumentalModel `json:"model" validate:"oneof=heartmula ace-step"`
	Stems   []Stem            `json:"stems" validate:"min=1,dive,oneof=vocals drums bass other"`
}

// MixingSettings configures the two-track mixing stage
type MixingSettings struct {
	Enabled            bool    `json:"enabled"`
	VocalGainDB        float64 `json:"vocalGainDb" validate:"min=-20,max=20"`
	InstrumentalGainDB float64 `json:"instrumentalGainDb" validate:"min=-20,max=20"`
}

// DefaultProcessingSettings returns the processing defaults.
func DefaultProcessingSettings() *ProcessingSettings {
	return &ProcessingSettings{
		SegmentLength:             30,
		OverlapDuration:           0.5,
		MaxConcurrentSegments:     2,
		UseGPU:                    true,
		Device:                    "cuda",
		ClearCacheBetweenSegments: true,
	}
}

// DefaultQualitySettings returns the quality defaults.
func DefaultQualitySettings() *QualitySettings {
	return &QualitySettings{
		SampleRate:   48000,
		BitDepth:     16,
		Channels:     2,
		OutputFormat: FormatWAV,
	}
}

// DefaultSwiftF0Settings returns the pitch stage defaults.
func DefaultSwiftF0Settings() *SwiftF0Settings {
	return &SwiftF0Settings{
		Enabled:      true,
		PitchShift:   0,
		FormantShift: 1.0,
		F0Min:        50,
		F0Max:        1100,
	}
}

// DefaultSVCSettings returns the voice conversion defaults.
func DefaultSVCSettings() *SVCSettings {
	return &SVCSettings{
		Enabled:           true,
		Variant:           SVCVariantSoVits,
		F0Method:          F0FCPE,
		ClusterInferRatio: 0,
		NoiseScale:        0.4,
	}
}

// DefaultInstrumentalSettings returns the instrumental stage defaults.
func DefaultInstrumentalSettings() *InstrumentalSettings {
	return &InstrumentalSettings{
		Enabled: true,
		Model:   InstrumentalHeartmula,
		Stems:   []Stem{StemVocals, StemDrums, StemBass, StemOther},
	}
}

// DefaultMixingSettings returns the mixing stage defaults.
func DefaultMixingSettings() *MixingSettings {
	return &MixingSettings{Enabled: true}
}

// ApplyDefaults fills missing sections and zero-valued numeric fields.
// Zero-valid floats inside an explicitly provided section are left alone;
// defaults for those apply only at section granularity.
func (c *PipelineConfig) ApplyDefaults() {
	if len(c.PipelineStages) == 0 {
		c.PipelineStages = append([]string(nil), DefaultStageOrder...)
	}
	if c.Processing == nil {
		c.Processing = DefaultProcessingSettings()
	} else {
		if c.Processing.SegmentLength == 0 {
			c.Processing.SegmentLength = 30
		}
		if c.Processing.MaxConcurrentSegments == 0 {
			c.Processing.MaxConcurrentSegments = 2
		}
		if c.Processing.Device == "" {
			c.Processing.Device = "cuda"
		}
	}
	if c.Quality == nil {
		c.Quality = DefaultQualitySettings()
	} else {
		if c.Quality.SampleRate == 0 {
			c.Quality.SampleRate = 48000
		}
		if c.Quality.BitDepth == 0 {
			c.Quality.BitDepth = 16
		}
		if c.Quality.Channels == 0 {
			c.Quality.Channels = 2
		}
		if c.Quality.OutputFormat == "" {
			c.Quality.OutputFormat = FormatWAV
		}
	}
	if c.SwiftF0 == nil {
		c.SwiftF0 = DefaultSwiftF0Settings()
	} else {
		if c.SwiftF0.FormantShift == 0 {
			c.SwiftF0.FormantShift = 1.0
		}
		if c.SwiftF0.F0Min == 0 {
			c.SwiftF0.F0Min = 50
		}
		if c.SwiftF0.F0Max == 0 {
			c.SwiftF0.F0Max = 1100
		}
	}
	if c.SVC == nil {
		c.SVC = DefaultSVCSettings()
	} else {
		if c.SVC.Variant == "" {
			c.SVC.Variant = SVCVariantSoVits
		}
		if c.SVC.F0Method == "" {
			c.SVC.F0Method = F0FCPE
		}
	}
	if c.Instrumental == nil {
		c.Instrumental = DefaultInstrumentalSettings()
	} else {
		if c.Instrumental.Model == "" {
			c.Instrumental.Model = InstrumentalHeartmula
		}
		if len(c.Instrumental.Stems) == 0 {
			c.Instrumental.Stems = []Stem{StemVocals, StemDrums, StemBass, StemOther}
		}
	}
	if c.Mixing == nil {
		c.Mixing = DefaultMixingSettings()
	}
}

// StageSettings is a stage section viewed through the uniform contract:
// the enabled flag plus the section struct handed to the implementation.
type StageSettings struct {
	Enabled bool
	Params  any
}

// Stage returns the settings for a named stage. The second return is false
// for names outside the registry set.
func (c *PipelineConfig) Stage(name string) (StageSettings, bool) {
	switch name {
	case StageSwiftF0:
		if c.SwiftF0 == nil {
			return StageSettings{}, true
		}
		return StageSettings{Enabled: c.SwiftF0.Enabled, Params: c.SwiftF0}, true
	case StageSVC:
		if c.SVC == nil {
			return StageSettings{}, true
		}
		return StageSettings{Enabled: c.SVC.Enabled, Params: c.SVC}, true
	case StageInstrumental:
		if c.Instrumental == nil {
			return StageSettings{}, true
		}
		return StageSettings{Enabled: c.Instrumental.Enabled, Params: c.Instrumental}, true
	case StageMixing:
		if c.Mixing == nil {
			return StageSettings{}, true
		}
		return StageSettings{Enabled: c.Mixing.Enabled, Params: c.Mixing}, true
	}
	return StageSettings{}, false
}

// Clone returns a deep copy of the config.
func (c *PipelineConfig) Clone() *PipelineConfig {
	out := PipelineConfig{
		PipelineStages: append([]string(nil), c.PipelineStages...),
	}
	if c.Processing != nil {
		v := *c.Processing
		out.Processing = &v
	}
	if c.Quality != nil {
		v := *c.Quality
		out.Quality = &v
	}
	if c.SwiftF0 != nil {
		v := *c.SwiftF0
		out.SwiftF0 = &v
	}
	if c.SVC != nil {
		v := *c.SVC
		out.SVC = &v
	}
	if c.Instrumental != nil {
		v := *c.Instrumental
		v.Stems = append([]Stem(nil), c.Instrumental.Stems...)
		out.Instrumental = &v
	}
	if c.Mixing != nil {
		v := *c.Mixing
		out.Mixing = &v
	}
	return &out
}

// SegmentSpec is one entry of the segmentation input supplied at creation.
type SegmentSpec struct {
	StartTime  float64 `json:"startTime" validate:"gte=0"`
	EndTime    float64 `json:"endTime" validate:"gtfield=StartTime"`
	SourcePath string  `json:"sourcePath" validate:"required"`
}

// CreateJobRequest starts a new processing job
type CreateJobRequest struct {
	Config   PipelineConfig `json:"config"`
	Segments []SegmentSpec  `json:"segments" validate:"required,min=1,max=512,dive"`
}

// JobProgressResponse is the polling view of a running job
type JobProgressResponse struct {
	JobID             string    `json:"jobId"`
	Status            JobStatus `json:"status"`
	Progress          float64   `json:"progress"`
	CurrentStage      string    `json:"currentStage,omitempty"`
	Message           string    `json:"message,omitempty"`
	Error             *string   `json:"error,omitempty"`
	SegmentsCompleted int       `json:"segmentsCompleted"`
	SegmentsTotal     int       `json:"segmentsTotal"`
	UpdatedAt         time.Time `json:"updatedAt"`
}

// JobListResponse wraps a page of jobs
type JobListResponse struct {
	Jobs  []*Job `json:"jobs"`
	Count int    `json:"count"`
}

// SegmentBreakdownResponse exposes per-segment stage outcomes
type SegmentBreakdownResponse struct {
	JobID    string    `json:"jobId"`
	Segments []Segment `json:"segments"`
}

// CancelJobResponse reports the outcome of a cancellation request
type CancelJobResponse struct {
	JobID     string    `json:"jobId"`
	Status    JobStatus `json:"status"`
	Cancelled bool      `json:"cancelled"`
}

// StageStatus is one entry of the models status report, keyed by stage name.
type StageStatus struct {
	Available bool `json:"available"`
	Loaded    bool `json:"loaded"`
}

// NewJobProgressResponse projects a job onto its polling view.
func NewJobProgressResponse(j *Job) JobProgressResponse {
	return JobProgressResponse{
		JobID:             j.ID,
		Status:            j.Status,
		Progress:          j.Progress,
		CurrentStage:      j.CurrentStage,
		Message:           j.Message,
		Error:             j.Error,
		SegmentsCompleted: j.SegmentsCompleted,
		SegmentsTotal:     len(j.Segments),
		UpdatedAt:         j.UpdatedAt,
	}
}
