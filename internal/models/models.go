package models

import (
	"time"

	"github.com/google/uuid"
)

// Enums

// MediaKind partitions the local media store.
type MediaKind string

const (
	MediaKindImage  MediaKind = "image"
	MediaKindVideo  MediaKind = "video"
	MediaKindAudio  MediaKind = "audio"
	MediaKindOutput MediaKind = "output"
)

// SceneKind tells the normalizer whether a scene's media is a still or a clip.
type SceneKind string

const (
	SceneKindImage SceneKind = "image"
	SceneKindVideo SceneKind = "video"
)

// JobState is the lifecycle of a remote generation job.
// submitted → queued → running → {completed | failed | timed_out}.
type JobState string

const (
	JobStateSubmitted JobState = "submitted"
	JobStateQueued    JobState = "queued"
	JobStateRunning   JobState = "running"
	JobStateCompleted JobState = "completed"
	JobStateFailed    JobState = "failed"
	JobStateTimedOut  JobState = "timed_out"
	JobStateUnknown   JobState = "unknown"
)

// Terminal reports whether a state is final for a generation job.
func (s JobState) Terminal() bool {
	switch s {
	case JobStateCompleted, JobStateFailed, JobStateTimedOut:
		return true
	}
	return false
}

// FailureKind distinguishes "backend said no" from "backend never answered".
type FailureKind string

const (
	FailureBackendError FailureKind = "backend_error"
	FailureTimeout      FailureKind = "timeout"
)

// Quality selects the video generation variant. Explicit, never inferred.
type Quality string

const (
	QualityFast Quality = "fast"
	QualityHigh Quality = "high"
)

// Defaults applied when a storyboard or scene leaves targets unset.
const (
	DefaultSceneDurationSec = 5.0
	DefaultWidth            = 1024
	DefaultHeight           = 576
	DefaultFPS              = 24
)

// Models

// Scene is one ordered storyboard entry. Source is a remote URL, an inline
// data URI, or a local-store identifier. Target dimensions are inherited from
// the storyboard when unset.
type Scene struct {
	Source      string    `json:"source"`
	Kind        SceneKind `json:"kind"`
	DurationSec float64   `json:"duration_sec,omitempty"`
	Width       *int      `json:"width,omitempty"`
	Height      *int      `json:"height,omitempty"`
	FPS         *int      `json:"fps,omitempty"`
}

// EffectiveDuration returns the scene duration, defaulted when absent or
// non-positive.
func (s Scene) EffectiveDuration() float64 {
	if s.DurationSec > 0 {
		return s.DurationSec
	}
	return DefaultSceneDurationSec
}

// Storyboard is a persisted storyboard document.
type Storyboard struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Scenes    []Scene   `json:"scenes"`
	Audio     *string   `json:"audio,omitempty"` // local audio store identifier
	Width     int       `json:"width,omitempty"`
	Height    int       `json:"height,omitempty"`
	FPS       int       `json:"fps,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// AssemblyRequest is the caller-facing input for one video assembly.
type AssemblyRequest struct {
	Scenes []Scene `json:"scenes"`
	Audio  string  `json:"audio,omitempty"` // local audio store identifier, optional
	Width  int     `json:"width,omitempty"`
	Height int     `json:"height,omitempty"`
	FPS    int     `json:"fps,omitempty"`
}

// ApplyDefaults fills unset assembly targets.
func (r *AssemblyRequest) ApplyDefaults() {
	if r.Width <= 0 {
		r.Width = DefaultWidth
	}
	if r.Height <= 0 {
		r.Height = DefaultHeight
	}
	if r.FPS <= 0 {
		r.FPS = DefaultFPS
	}
}

// SceneSkip records why one scene was dropped from an assembly.
type SceneSkip struct {
	Index  int    `json:"index"`
	Reason string `json:"reason"`
}

// AssemblyResult is the outcome of a successful assembly request.
type AssemblyResult struct {
	Output  string      `json:"output"` // local-store identifier of the final video
	Skipped []SceneSkip `json:"skipped,omitempty"`
}

// GenerationRequest is the caller-facing parameter set for a generation job.
type GenerationRequest struct {
	Prompt         string  `json:"prompt"`
	NegativePrompt string  `json:"negative_prompt,omitempty"`
	Width          int     `json:"width,omitempty"`
	Height         int     `json:"height,omitempty"`
	Steps          int     `json:"steps,omitempty"`
	CFGScale       float64 `json:"cfg_scale,omitempty"`
	Seed           int64   `json:"seed,omitempty"`
	ImageRef       string  `json:"image_ref,omitempty"` // reference image → image-to-image
	Video          bool    `json:"video,omitempty"`     // animation parameters present
	Frames         int     `json:"frames,omitempty"`
	FPS            int     `json:"fps,omitempty"`
	Quality        Quality `json:"quality,omitempty"` // video variant selector
}

// JobResult is the terminal outcome of one generation job.
type JobResult struct {
	JobID       string      `json:"job_id"`
	State       JobState    `json:"state"`
	Output      string      `json:"output,omitempty"` // local-store identifier on success
	Error       string      `json:"error,omitempty"`
	FailureKind FailureKind `json:"failure_kind,omitempty"`
	CompletedAt time.Time   `json:"completed_at"`
}

// JobStatus is what a status read returns: a terminal result, or a live
// advisory progress estimate while the job is still owned by the poller.
type JobStatus struct {
	JobID    string     `json:"job_id"`
	State    JobState   `json:"state"`
	Progress int        `json:"progress,omitempty"` // coarse percentage, advisory only
	Result   *JobResult `json:"result,omitempty"`
}
