package ffmpeg

import "fmt"

// ConcatArgs builds args for lossless concatenation of same-format inputs
// via the concat demuxer. listPath is a demuxer list file with one
// `file '<path>'` line per input, in playback order.
func ConcatArgs(listPath, outPath string) []string {
	return []string{
		"-hide_banner",
		"-nostdin",
		"-y",
		"-f", "concat",
		"-safe", "0",
		"-i", listPath,
		"-c", "copy",
		outPath,
	}
}

// ConvertArgs builds args to resample one file to the target sample rate,
// channel count and bit depth. The container format follows outPath's
// extension. ffmpeg has no 24-bit packed WAV sample format, so bit depths
// above 16 map to s32.
func ConvertArgs(inPath, outPath string, sampleRate, channels, bitDepth int) []string {
	sampleFmt := "s16"
	if bitDepth > 16 {
		sampleFmt = "s32"
	}
	return []string{
		"-hide_banner",
		"-nostdin",
		"-y",
		"-i", inPath,
		"-ar", fmt.Sprintf("%d", sampleRate),
		"-ac", fmt.Sprintf("%d", channels),
		"-sample_fmt", sampleFmt,
		outPath,
	}
}

// MixArgs builds args mixing two tracks with per-track gain into outPath.
func MixArgs(primaryPath, secondaryPath, outPath string, primaryGainDB, secondaryGainDB float64) []string {
	filter := fmt.Sprintf(
		"[0:a]volume=%.1fdB[a0];[1:a]volume=%.1fdB[a1];[a0][a1]amix=inputs=2:duration=longest[out]",
		primaryGainDB, secondaryGainDB,
	)
	return []string{
		"-hide_banner",
		"-nostdin",
		"-y",
		"-i", primaryPath,
		"-i", secondaryPath,
		"-filter_complex", filter,
		"-map", "[out]",
		outPath,
	}
}
