package media

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/reelforge/reelforge/internal/models"
	"github.com/reelforge/reelforge/internal/store"
)

// SceneFetcher resolves one scene's media reference to a local file.
type SceneFetcher interface {
	Fetch(ctx context.Context, source, destDir string) (string, error)
}

// Transcoder is the external-tool boundary the assembly pipeline depends on.
type Transcoder interface {
	Normalize(ctx context.Context, spec NormalizeSpec) error
	Concat(ctx context.Context, segments []string, output string) error
	Mux(ctx context.Context, videoPath, audioPath, output string) error
}

// Assembler runs the full pipeline for one request: fetch → normalize per
// scene, then concatenate and mux. Scenes are processed strictly in order,
// one at a time, to bound peak temporary-file usage. Each request gets its
// own working directory, so concurrent assemblies share no mutable state.
type Assembler struct {
	fetcher  SceneFetcher
	ffmpeg   Transcoder
	store    *store.Store
	workRoot string
}

func NewAssembler(fetcher SceneFetcher, transcoder Transcoder, st *store.Store, workRoot string) (*Assembler, error) {
	if err := os.MkdirAll(workRoot, 0755); err != nil {
		return nil, fmt.Errorf("failed to create work dir: %w", err)
	}
	return &Assembler{
		fetcher:  fetcher,
		ffmpeg:   transcoder,
		store:    st,
		workRoot: workRoot,
	}, nil
}

// Assemble produces the final video for a storyboard. Per-scene fetch or
// transcode failures skip that scene; a request fails outright only when zero
// scenes survive, or when concat/mux/audio resolution fails. Working
// directories are left in place for external housekeeping.
func (a *Assembler) Assemble(ctx context.Context, req models.AssemblyRequest) (*models.AssemblyResult, error) {
	req.ApplyDefaults()

	workDir := filepath.Join(a.workRoot, uuid.New().String())
	if err := os.MkdirAll(workDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create job dir: %w", err)
	}

	var segments []string
	var skipped []models.SceneSkip

	skip := func(i int, reason string, err error) {
		msg := reason
		if err != nil {
			msg = fmt.Sprintf("%s: %v", reason, err)
		}
		log.Printf("[Assemble] Scene %d skipped: %s", i, msg)
		skipped = append(skipped, models.SceneSkip{Index: i, Reason: msg})
	}

	for i, scene := range req.Scenes {
		if scene.Source == "" {
			skip(i, "no media reference", nil)
			continue
		}

		local, err := a.fetcher.Fetch(ctx, scene.Source, workDir)
		if err != nil {
			skip(i, "fetch failed", err)
			continue
		}

		spec := NormalizeSpec{
			Input:       local,
			IsVideo:     scene.Kind == models.SceneKindVideo,
			DurationSec: scene.EffectiveDuration(),
			Width:       req.Width,
			Height:      req.Height,
			FPS:         req.FPS,
			Output:      filepath.Join(workDir, fmt.Sprintf("segment_%04d.mp4", i)),
		}
		if scene.Width != nil && *scene.Width > 0 {
			spec.Width = *scene.Width
		}
		if scene.Height != nil && *scene.Height > 0 {
			spec.Height = *scene.Height
		}
		if scene.FPS != nil && *scene.FPS > 0 {
			spec.FPS = *scene.FPS
		}

		if err := a.ffmpeg.Normalize(ctx, spec); err != nil {
			skip(i, "transcode failed", err)
			continue
		}

		segments = append(segments, spec.Output)
	}

	if len(segments) == 0 {
		// Surface the per-scene skip reasons alongside the fatal error.
		return &models.AssemblyResult{Skipped: skipped}, ErrNoValidMedia
	}

	combined := filepath.Join(workDir, "combined.mp4")
	if err := a.ffmpeg.Concat(ctx, segments, combined); err != nil {
		return nil, fmt.Errorf("concatenation failed: %w", err)
	}

	// Only locally-hosted audio is accepted for muxing.
	audioPath := ""
	if req.Audio != "" {
		resolved, err := a.store.Resolve(req.Audio)
		if err != nil {
			return nil, fmt.Errorf("audio track: %w", err)
		}
		audioPath = resolved
	}

	outPath := filepath.Join(workDir, "output.mp4")
	if err := a.ffmpeg.Mux(ctx, combined, audioPath, outPath); err != nil {
		return nil, fmt.Errorf("muxing failed: %w", err)
	}

	outputID, err := a.store.Import(models.MediaKindOutput, outPath)
	if err != nil {
		return nil, fmt.Errorf("failed to store output: %w", err)
	}

	log.Printf("[Assemble] Done: %d segments, %d skipped, output %s", len(segments), len(skipped), outputID)
	return &models.AssemblyResult{Output: outputID, Skipped: skipped}, nil
}
