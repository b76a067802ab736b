package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/audiostudio/api/internal/ffmpeg"
	"github.com/audiostudio/api/internal/model"
)

// ErrNoValidSegments is returned by Combine when no segment produced a
// usable result, so there is nothing to concatenate.
var ErrNoValidSegments = errors.New("no valid segments to combine")

// Combiner joins processed segment results into the final track and
// converts audio to the requested output quality. Concatenation uses the
// ffmpeg concat demuxer with stream copy, so segments must already share
// the target sample format.
type Combiner struct {
	ffmpegPath string
	runner     ffmpeg.Runner
	outputDir  string
	tempDir    string
}

func NewCombiner(ffmpegPath string, runner ffmpeg.Runner, outputDir, tempDir string) *Combiner {
	return &Combiner{
		ffmpegPath: ffmpegPath,
		runner:     runner,
		outputDir:  outputDir,
		tempDir:    tempDir,
	}
}

// Combine concatenates the completed segments of a job, in index order,
// into outputDir. Segments that failed or have no result are left out.
func (c *Combiner) Combine(ctx context.Context, jobID string, segments []model.Segment, quality *model.QualitySettings) (string, error) {
	if quality == nil {
		quality = model.DefaultQualitySettings()
	}

	var inputs []string
	for _, seg := range segments {
		if seg.Status == model.SegmentCompleted && seg.ResultPath != "" {
			inputs = append(inputs, seg.ResultPath)
		}
	}
	if len(inputs) == 0 {
		return "", ErrNoValidSegments
	}

	if err := os.MkdirAll(c.outputDir, 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}
	listPath, err := c.writeConcatList(jobID, inputs)
	if err != nil {
		return "", err
	}
	defer os.Remove(listPath)

	outPath := filepath.Join(c.outputDir, fmt.Sprintf("%s_final.%s", jobID, quality.OutputFormat))
	args := ffmpeg.ConcatArgs(listPath, outPath)
	res, err := c.runner.Run(ctx, c.ffmpegPath, args...)
	if err != nil {
		return "", &ffmpeg.Error{
			Op:      "combine",
			Message: "segment concatenation failed",
			Log:     ffmpeg.CommandLog{Command: c.ffmpegPath, Args: args, ExitCode: res.ExitCode, Stderr: res.Stderr},
			Err:     err,
		}
	}
	if _, err := os.Stat(outPath); err != nil {
		return "", &ffmpeg.Error{
			Op:      "combine",
			Message: "ffmpeg finished but produced no output",
			Log:     ffmpeg.CommandLog{Command: c.ffmpegPath, Args: args, ExitCode: res.ExitCode, Stderr: res.Stderr},
			Err:     err,
		}
	}
	return outPath, nil
}

// Convert resamples inPath to the configured sample rate, channel count
// and bit depth, writing the result to outPath.
func (c *Combiner) Convert(ctx context.Context, inPath, outPath string, quality *model.QualitySettings) error {
	if quality == nil {
		quality = model.DefaultQualitySettings()
	}
	args := ffmpeg.ConvertArgs(inPath, outPath, quality.SampleRate, quality.Channels, quality.BitDepth)
	res, err := c.runner.Run(ctx, c.ffmpegPath, args...)
	if err != nil {
		return &ffmpeg.Error{
			Op:      "convert",
			Message: "quality conversion failed",
			Log:     ffmpeg.CommandLog{Command: c.ffmpegPath, Args: args, ExitCode: res.ExitCode, Stderr: res.Stderr},
			Err:     err,
		}
	}
	if _, err := os.Stat(outPath); err != nil {
		return &ffmpeg.Error{
			Op:      "convert",
			Message: "ffmpeg finished but produced no output",
			Log:     ffmpeg.CommandLog{Command: c.ffmpegPath, Args: args, ExitCode: res.ExitCode, Stderr: res.Stderr},
			Err:     err,
		}
	}
	return nil
}

// writeConcatList writes an ffmpeg concat demuxer file listing the
// segment results as absolute paths.
func (c *Combiner) writeConcatList(jobID string, inputs []string) (string, error) {
	if err := os.MkdirAll(c.tempDir, 0o755); err != nil {
		return "", fmt.Errorf("create temp dir: %w", err)
	}
	f, err := os.CreateTemp(c.tempDir, jobID+"_concat_*.txt")
	if err != nil {
		return "", fmt.Errorf("create concat list: %w", err)
	}
	defer f.Close()

	for _, p := range inputs {
		abs, err := filepath.Abs(p)
		if err != nil {
			os.Remove(f.Name())
			return "", fmt.Errorf("resolve segment path %s: %w", p, err)
		}
		escaped := strings.ReplaceAll(abs, "'", `'\''`)
		if _, err := fmt.Fprintf(f, "file '%s'\n", escaped); err != nil {
			os.Remove(f.Name())
			return "", fmt.Errorf("write concat list: %w", err)
		}
	}
	return f.Name(), nil
}
