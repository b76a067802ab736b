package client

import (
	"context"
	"fmt"
	"os/exec"

	"github.com/audiostudio/api/internal/ffmpeg"
	"github.com/audiostudio/api/internal/model"
	"github.com/audiostudio/api/internal/stage"
)

// MixStage blends the processed vocal track with the regenerated
// instrumental using local ffmpeg. It has no model host; availability is
// simply the ffmpeg binary being present.
type MixStage struct {
	ffmpegPath string
	runner     ffmpeg.Runner
}

func NewMixStage(ffmpegPath string, runner ffmpeg.Runner) *MixStage {
	return &MixStage{ffmpegPath: ffmpegPath, runner: runner}
}

func (m *MixStage) Name() string {
	return model.StageMixing
}

func (m *MixStage) IsAvailable(ctx context.Context) bool {
	_, err := exec.LookPath(m.ffmpegPath)
	return err == nil
}

func (m *MixStage) IsLoaded(ctx context.Context) bool {
	return true
}

func (m *MixStage) Load(ctx context.Context, params any) error {
	return nil
}

// Process mixes the request's two tracks into OutputPath. Without an
// instrumental track there is nothing to mix and the stage skips.
func (m *MixStage) Process(ctx context.Context, req stage.ProcessRequest) (stage.ProcessResult, error) {
	if req.SecondaryPath == "" {
		return stage.ProcessResult{}, fmt.Errorf("%w: no instrumental track to mix", stage.ErrSkip)
	}

	var vocalGain, instrumentalGain float64
	if settings, ok := req.Params.(*model.MixingSettings); ok && settings != nil {
		vocalGain = settings.VocalGainDB
		instrumentalGain = settings.InstrumentalGainDB
	}

	args := ffmpeg.MixArgs(req.InputPath, req.SecondaryPath, req.OutputPath, vocalGain, instrumentalGain)
	res, err := m.runner.Run(ctx, m.ffmpegPath, args...)
	if err != nil {
		return stage.ProcessResult{}, &ffmpeg.Error{
			Op:      "mix",
			Message: "track mixing failed",
			Log:     ffmpeg.CommandLog{Command: m.ffmpegPath, Args: args, ExitCode: res.ExitCode, Stderr: res.Stderr},
			Err:     err,
		}
	}
	return stage.ProcessResult{OutputPath: req.OutputPath}, nil
}
