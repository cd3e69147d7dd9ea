package media

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
)

// ErrNoValidMedia is the fatal assembly error: zero segments survived.
var ErrNoValidMedia = errors.New("no valid media")

// FFmpeg drives the external transcoding tool. The pipeline depends only on
// its exit status and produced output files.
type FFmpeg struct{}

func NewFFmpeg() *FFmpeg {
	return &FFmpeg{}
}

// NormalizeSpec describes one scene-to-segment conversion.
type NormalizeSpec struct {
	Input       string
	IsVideo     bool
	DurationSec float64
	Width       int
	Height      int
	FPS         int
	Output      string
}

// Normalize converts one media item into a fixed-length, fixed-resolution,
// fixed-frame-rate segment. Still images loop for the full duration; videos
// are trimmed to it (shorter clips are not looped). Both paths scale to fit
// the target box, then letterbox-pad to fill it, centered. A single codec and
// pixel format keeps all segments bit-compatible for lossless concatenation.
func (f *FFmpeg) Normalize(ctx context.Context, spec NormalizeSpec) error {
	args := normalizeArgs(spec)
	log.Printf("[FFmpeg] Normalizing %s (video=%v, duration=%.1fs)", spec.Input, spec.IsVideo, spec.DurationSec)
	return f.run(ctx, args)
}

// Concat losslessly concatenates normalized segments, in the given order,
// via a concat manifest. Zero segments is fatal.
func (f *FFmpeg) Concat(ctx context.Context, segments []string, output string) error {
	if len(segments) == 0 {
		return ErrNoValidMedia
	}

	listPath := filepath.Join(filepath.Dir(output), "concat_list.txt")
	if err := writeConcatManifest(listPath, segments); err != nil {
		return err
	}
	defer os.Remove(listPath)

	args := []string{
		"-f", "concat",
		"-safe", "0",
		"-i", listPath,
		"-c", "copy", // segments share codec/pixel format, no re-encode
		"-y",
		output,
	}

	log.Printf("[FFmpeg] Concatenating %d segments into %s", len(segments), output)
	return f.run(ctx, args)
}

// Mux combines the concatenated video with an optional audio track. With no
// audio the video is renamed into place, not re-encoded. With audio the video
// stream is copied, audio is encoded to AAC, and -shortest truncates to the
// shorter stream.
func (f *FFmpeg) Mux(ctx context.Context, videoPath, audioPath, output string) error {
	if audioPath == "" {
		if err := os.Rename(videoPath, output); err != nil {
			return fmt.Errorf("failed to finalize video: %w", err)
		}
		return nil
	}

	args := []string{
		"-i", videoPath,
		"-i", audioPath,
		"-map", "0:v",
		"-map", "1:a",
		"-c:v", "copy",
		"-c:a", "aac",
		"-b:a", "192k",
		"-shortest", // truncate to the shorter stream, never pad
		"-y",
		output,
	}

	log.Printf("[FFmpeg] Muxing audio %s into %s", audioPath, output)
	return f.run(ctx, args)
}

func (f *FFmpeg) run(ctx context.Context, args []string) error {
	cmd := exec.CommandContext(ctx, "ffmpeg", args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("ffmpeg failed: %w", err)
	}
	return nil
}

// normalizeArgs builds the ffmpeg command line for one segment.
func normalizeArgs(spec NormalizeSpec) []string {
	dur := strconv.FormatFloat(spec.DurationSec, 'f', 3, 64)
	vf := buildScalePadFilter(spec.Width, spec.Height, spec.FPS)

	var args []string
	if spec.IsVideo {
		args = []string{"-i", spec.Input, "-t", dur}
	} else {
		args = []string{"-loop", "1", "-t", dur, "-i", spec.Input}
	}

	return append(args,
		"-vf", vf,
		"-an", // per-scene audio is discarded; the track is muxed at the end
		"-c:v", "libx264",
		"-pix_fmt", "yuv420p",
		"-y",
		spec.Output,
	)
}

// buildScalePadFilter scales to fit within the target box preserving aspect
// ratio, pads to exactly fill it with the content centered, and locks the
// frame rate and sample aspect so segments concatenate cleanly.
func buildScalePadFilter(width, height, fps int) string {
	return fmt.Sprintf(
		"scale=%d:%d:force_original_aspect_ratio=decrease,pad=%d:%d:(ow-iw)/2:(oh-ih)/2,fps=%d,setsar=1,format=yuv420p",
		width, height, width, height, fps,
	)
}

// writeConcatManifest writes the ffmpeg concat list, one segment per line,
// preserving the given order exactly.
func writeConcatManifest(path string, segments []string) error {
	var b strings.Builder
	for _, seg := range segments {
		fmt.Fprintf(&b, "file '%s'\n", strings.ReplaceAll(seg, "'", `'\''`))
	}
	if err := os.WriteFile(path, []byte(b.String()), 0644); err != nil {
		return fmt.Errorf("failed to write concat manifest: %w", err)
	}
	return nil
}
