package comfy

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/reelforge/reelforge/internal/models"
)

// The backend represents a computation graph as a keyed mapping of
// stage-id → {class type, named inputs}, where an input can be a literal or a
// reference to another stage's output slot serialized as ["<id>", <slot>].

// NodeID identifies one stage in a workflow graph.
type NodeID string

// Ref is a typed reference to another stage's output slot.
type Ref struct {
	Node   NodeID
	Output int
}

// Out builds a reference to the id's numbered output slot.
func (id NodeID) Out(i int) Ref {
	return Ref{Node: id, Output: i}
}

// MarshalJSON serializes the reference in the backend's ["id", slot] form.
func (r Ref) MarshalJSON() ([]byte, error) {
	return json.Marshal([]any{string(r.Node), r.Output})
}

// Node is one stage: its type plus named inputs.
type Node struct {
	ClassType string         `json:"class_type"`
	Inputs    map[string]any `json:"inputs"`
}

// Graph is a directed acyclic workflow graph under construction.
type Graph struct {
	nodes map[NodeID]Node
	next  int
}

func NewGraph() *Graph {
	return &Graph{nodes: make(map[NodeID]Node), next: 1}
}

// Add appends a stage and returns its assigned id.
func (g *Graph) Add(classType string, inputs map[string]any) NodeID {
	id := NodeID(strconv.Itoa(g.next))
	g.next++
	g.nodes[id] = Node{ClassType: classType, Inputs: inputs}
	return id
}

// Len returns the number of stages.
func (g *Graph) Len() int {
	return len(g.nodes)
}

// Node looks up a stage by id.
func (g *Graph) Node(id NodeID) (Node, bool) {
	n, ok := g.nodes[id]
	return n, ok
}

// Validate checks that every cross-stage reference names an existing stage.
// Run before serialization; a dangling reference would only surface as an
// opaque backend rejection otherwise.
func (g *Graph) Validate() error {
	for id, node := range g.nodes {
		for name, value := range node.Inputs {
			ref, ok := value.(Ref)
			if !ok {
				continue
			}
			if _, exists := g.nodes[ref.Node]; !exists {
				return fmt.Errorf("stage %s input %q references missing stage %s", id, name, ref.Node)
			}
		}
	}
	return nil
}

// MarshalJSON emits the backend's keyed-map form.
func (g *Graph) MarshalJSON() ([]byte, error) {
	out := make(map[string]Node, len(g.nodes))
	for id, node := range g.nodes {
		out[string(id)] = node
	}
	return json.Marshal(out)
}

// Model checkpoints and per-shape sampling defaults.
const (
	imageCheckpoint     = "sd_xl_base_1.0.safetensors"
	videoFastCheckpoint = "svd.safetensors"
	videoHighCheckpoint = "svd_xt_1_1.safetensors"

	defaultSteps     = 20
	videoFastSteps   = 12
	videoHighSteps   = 30
	defaultCFG       = 7.0
	defaultFrames    = 48
	defaultVideoFPS  = 8
	highVFIMultiple  = 2 // frame interpolation factor on the high-quality path
	samplerName      = "euler"
	samplerScheduler = "normal"
	outputPrefix     = "reelforge"
)

// BuildWorkflow translates a generation request into a validated workflow
// graph. Shape selection: image-to-image is keyed off the presence of a
// reference image; the video fast/high split is keyed off the explicit
// quality flag, never inferred.
func BuildWorkflow(req models.GenerationRequest) (*Graph, error) {
	if req.Prompt == "" {
		return nil, fmt.Errorf("prompt is required")
	}

	var g *Graph
	if req.Video {
		g = buildVideoGraph(req)
	} else {
		g = buildImageGraph(req)
	}

	if err := g.Validate(); err != nil {
		return nil, fmt.Errorf("workflow graph invalid: %w", err)
	}
	return g, nil
}

// buildImageGraph covers text-to-image and image-to-image. With a reference
// image, a load + VAE-encode stage replaces the empty-latent stage.
func buildImageGraph(req models.GenerationRequest) *Graph {
	g := NewGraph()

	ckpt := g.Add("CheckpointLoaderSimple", map[string]any{
		"ckpt_name": imageCheckpoint,
	})
	positive := g.Add("CLIPTextEncode", map[string]any{
		"text": req.Prompt,
		"clip": ckpt.Out(1),
	})
	negative := g.Add("CLIPTextEncode", map[string]any{
		"text": req.NegativePrompt,
		"clip": ckpt.Out(1),
	})

	var latent NodeID
	denoise := 1.0
	if req.ImageRef != "" {
		image := g.Add("LoadImage", map[string]any{
			"image": req.ImageRef,
		})
		latent = g.Add("VAEEncode", map[string]any{
			"pixels": image.Out(0),
			"vae":    ckpt.Out(2),
		})
		denoise = 0.75
	} else {
		latent = g.Add("EmptyLatentImage", map[string]any{
			"width":      width(req),
			"height":     height(req),
			"batch_size": 1,
		})
	}

	sampler := g.Add("KSampler", map[string]any{
		"model":        ckpt.Out(0),
		"positive":     positive.Out(0),
		"negative":     negative.Out(0),
		"latent_image": latent.Out(0),
		"seed":         req.Seed,
		"steps":        steps(req, defaultSteps),
		"cfg":          cfg(req),
		"sampler_name": samplerName,
		"scheduler":    samplerScheduler,
		"denoise":      denoise,
	})
	decode := g.Add("VAEDecode", map[string]any{
		"samples": sampler.Out(0),
		"vae":     ckpt.Out(2),
	})
	g.Add("SaveImage", map[string]any{
		"images":          decode.Out(0),
		"filename_prefix": outputPrefix,
	})

	return g
}

// buildVideoGraph covers both video variants. The fast path trades fidelity
// for turnaround (lighter checkpoint, fewer steps); the high path adds steps
// and a frame-interpolation stage before the combine.
func buildVideoGraph(req models.GenerationRequest) *Graph {
	g := NewGraph()

	checkpoint := videoFastCheckpoint
	sampleSteps := steps(req, videoFastSteps)
	if req.Quality == models.QualityHigh {
		checkpoint = videoHighCheckpoint
		sampleSteps = steps(req, videoHighSteps)
	}

	ckpt := g.Add("ImageOnlyCheckpointLoader", map[string]any{
		"ckpt_name": checkpoint,
	})
	positive := g.Add("CLIPTextEncode", map[string]any{
		"text": req.Prompt,
		"clip": ckpt.Out(1),
	})
	negative := g.Add("CLIPTextEncode", map[string]any{
		"text": req.NegativePrompt,
		"clip": ckpt.Out(1),
	})

	var latent NodeID
	if req.ImageRef != "" {
		image := g.Add("LoadImage", map[string]any{
			"image": req.ImageRef,
		})
		latent = g.Add("SVD_img2vid_Conditioning", map[string]any{
			"init_image":   image.Out(0),
			"vae":          ckpt.Out(2),
			"width":        width(req),
			"height":       height(req),
			"video_frames": frames(req),
			"fps":          videoFPS(req),
		})
	} else {
		latent = g.Add("EmptyLatentVideo", map[string]any{
			"width":      width(req),
			"height":     height(req),
			"length":     frames(req),
			"batch_size": 1,
		})
	}

	sampler := g.Add("KSampler", map[string]any{
		"model":        ckpt.Out(0),
		"positive":     positive.Out(0),
		"negative":     negative.Out(0),
		"latent_image": latent.Out(0),
		"seed":         req.Seed,
		"steps":        sampleSteps,
		"cfg":          cfg(req),
		"sampler_name": samplerName,
		"scheduler":    samplerScheduler,
		"denoise":      1.0,
	})
	decode := g.Add("VAEDecode", map[string]any{
		"samples": sampler.Out(0),
		"vae":     ckpt.Out(2),
	})

	images := decode.Out(0)
	combineFPS := videoFPS(req)
	if req.Quality == models.QualityHigh {
		interp := g.Add("RIFE VFI", map[string]any{
			"frames":     decode.Out(0),
			"multiplier": highVFIMultiple,
		})
		images = interp.Out(0)
		combineFPS *= highVFIMultiple
	}

	g.Add("VHS_VideoCombine", map[string]any{
		"images":          images,
		"frame_rate":      combineFPS,
		"format":          "video/h264-mp4",
		"filename_prefix": outputPrefix,
	})

	return g
}

func width(req models.GenerationRequest) int {
	if req.Width > 0 {
		return req.Width
	}
	return models.DefaultWidth
}

func height(req models.GenerationRequest) int {
	if req.Height > 0 {
		return req.Height
	}
	return models.DefaultHeight
}

func steps(req models.GenerationRequest, fallback int) int {
	if req.Steps > 0 {
		return req.Steps
	}
	return fallback
}

func cfg(req models.GenerationRequest) float64 {
	if req.CFGScale > 0 {
		return req.CFGScale
	}
	return defaultCFG
}

func frames(req models.GenerationRequest) int {
	if req.Frames > 0 {
		return req.Frames
	}
	return defaultFrames
}

func videoFPS(req models.GenerationRequest) int {
	if req.FPS > 0 {
		return req.FPS
	}
	return defaultVideoFPS
}
