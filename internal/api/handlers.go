package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/reelforge/reelforge/internal/jobs"
	"github.com/reelforge/reelforge/internal/media"
	"github.com/reelforge/reelforge/internal/models"
	"github.com/reelforge/reelforge/internal/store"
	"github.com/reelforge/reelforge/internal/storyboard"
)

// Limit on raw media uploads.
const maxUploadBytes = 256 << 20

type Handler struct {
	assembler    *media.Assembler
	orchestrator *jobs.Orchestrator
	storyboards  *storyboard.Store
	media        *store.Store
}

func NewHandler(assembler *media.Assembler, orch *jobs.Orchestrator, boards *storyboard.Store, mediaStore *store.Store) *Handler {
	return &Handler{
		assembler:    assembler,
		orchestrator: orch,
		storyboards:  boards,
		media:        mediaStore,
	}
}

// CreateAssembly handles POST /v1/assemblies. Assembly runs synchronously and
// returns the output media reference plus per-scene skip reasons.
func (h *Handler) CreateAssembly(w http.ResponseWriter, r *http.Request) {
	var req models.AssemblyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if len(req.Scenes) == 0 {
		respondError(w, http.StatusBadRequest, "At least one scene is required")
		return
	}

	h.runAssembly(w, r, req)
}

// AssembleStoryboard handles POST /v1/storyboards/{id}/assemble: assembles a
// stored storyboard document.
func (h *Handler) AssembleStoryboard(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid storyboard ID")
		return
	}

	sb, err := h.storyboards.Get(id)
	if err != nil {
		if errors.Is(err, storyboard.ErrNotFound) {
			respondError(w, http.StatusNotFound, "Storyboard not found")
			return
		}
		respondError(w, http.StatusInternalServerError, "Failed to load storyboard")
		return
	}

	req := models.AssemblyRequest{
		Scenes: sb.Scenes,
		Width:  sb.Width,
		Height: sb.Height,
		FPS:    sb.FPS,
	}
	if sb.Audio != nil {
		req.Audio = *sb.Audio
	}

	h.runAssembly(w, r, req)
}

func (h *Handler) runAssembly(w http.ResponseWriter, r *http.Request, req models.AssemblyRequest) {
	result, err := h.assembler.Assemble(r.Context(), req)
	if err != nil {
		if errors.Is(err, media.ErrNoValidMedia) {
			payload := map[string]any{"error": "no valid media"}
			if result != nil {
				payload["skipped"] = result.Skipped
			}
			respondJSON(w, http.StatusUnprocessableEntity, payload)
			return
		}
		respondError(w, http.StatusInternalServerError, fmt.Sprintf("Assembly failed: %v", err))
		return
	}

	respondJSON(w, http.StatusOK, result)
}

// CreateGeneration handles POST /v1/generations. Submission is synchronous
// and returns the backend job id; polling and collection run detached.
func (h *Handler) CreateGeneration(w http.ResponseWriter, r *http.Request) {
	var req models.GenerationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if req.Prompt == "" {
		respondError(w, http.StatusBadRequest, "Prompt is required")
		return
	}
	if req.Video && req.Quality != "" && req.Quality != models.QualityFast && req.Quality != models.QualityHigh {
		respondError(w, http.StatusBadRequest, "Invalid quality. Allowed: fast, high")
		return
	}

	jobID, err := h.orchestrator.Submit(r.Context(), req)
	if err != nil {
		respondError(w, http.StatusBadGateway, fmt.Sprintf("Generation submit failed: %v", err))
		return
	}

	respondJSON(w, http.StatusAccepted, map[string]string{"job_id": jobID})
}

// GetGeneration handles GET /v1/generations/{id}. A terminal result is
// delivered at most once; afterwards (and before completion) the response is
// a live progress estimate or "unknown".
func (h *Handler) GetGeneration(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "id")
	if jobID == "" {
		respondError(w, http.StatusBadRequest, "Missing job ID")
		return
	}

	status := h.orchestrator.Status(r.Context(), jobID)
	respondJSON(w, http.StatusOK, status)
}

// CreateStoryboard handles POST /v1/storyboards.
func (h *Handler) CreateStoryboard(w http.ResponseWriter, r *http.Request) {
	var sb models.Storyboard
	if err := json.NewDecoder(r.Body).Decode(&sb); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := h.storyboards.Create(&sb); err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to save storyboard")
		return
	}

	respondJSON(w, http.StatusCreated, sb)
}

// ListStoryboards handles GET /v1/storyboards.
func (h *Handler) ListStoryboards(w http.ResponseWriter, r *http.Request) {
	boards, err := h.storyboards.List()
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to list storyboards")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"storyboards": boards})
}

// GetStoryboard handles GET /v1/storyboards/{id}.
func (h *Handler) GetStoryboard(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid storyboard ID")
		return
	}

	sb, err := h.storyboards.Get(id)
	if err != nil {
		respondError(w, http.StatusNotFound, "Storyboard not found")
		return
	}
	respondJSON(w, http.StatusOK, sb)
}

// UpdateStoryboard handles PUT /v1/storyboards/{id}.
func (h *Handler) UpdateStoryboard(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid storyboard ID")
		return
	}

	var sb models.Storyboard
	if err := json.NewDecoder(r.Body).Decode(&sb); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := h.storyboards.Update(id, &sb); err != nil {
		if errors.Is(err, storyboard.ErrNotFound) {
			respondError(w, http.StatusNotFound, "Storyboard not found")
			return
		}
		respondError(w, http.StatusInternalServerError, "Failed to update storyboard")
		return
	}
	respondJSON(w, http.StatusOK, sb)
}

// DeleteStoryboard handles DELETE /v1/storyboards/{id}.
func (h *Handler) DeleteStoryboard(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid storyboard ID")
		return
	}

	if err := h.storyboards.Delete(id); err != nil {
		if errors.Is(err, storyboard.ErrNotFound) {
			respondError(w, http.StatusNotFound, "Storyboard not found")
			return
		}
		respondError(w, http.StatusInternalServerError, "Failed to delete storyboard")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Upload handles POST /v1/uploads/{kind}: raw body upload into the local
// media store. The response carries the store identifier usable as a scene
// source or audio reference.
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	kind := models.MediaKind(chi.URLParam(r, "kind"))
	switch kind {
	case models.MediaKindImage, models.MediaKindVideo, models.MediaKindAudio:
	default:
		respondError(w, http.StatusBadRequest, "Invalid media kind. Allowed: image, video, audio")
		return
	}

	data, err := io.ReadAll(io.LimitReader(r.Body, maxUploadBytes+1))
	if err != nil {
		respondError(w, http.StatusBadRequest, "Failed to read upload body")
		return
	}
	if len(data) == 0 {
		respondError(w, http.StatusBadRequest, "Empty upload")
		return
	}
	if len(data) > maxUploadBytes {
		respondError(w, http.StatusRequestEntityTooLarge, "Upload too large")
		return
	}

	id, err := h.media.Save(kind, extForContentType(r.Header.Get("Content-Type")), data)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to store upload")
		return
	}

	respondJSON(w, http.StatusCreated, map[string]string{
		"id":  id,
		"url": "/media/" + id,
	})
}

func extForContentType(contentType string) string {
	switch contentType {
	case "image/png":
		return ".png"
	case "image/jpeg":
		return ".jpg"
	case "image/webp":
		return ".webp"
	case "video/mp4":
		return ".mp4"
	case "video/webm":
		return ".webm"
	case "audio/mpeg":
		return ".mp3"
	case "audio/wav", "audio/x-wav":
		return ".wav"
	default:
		return ".bin"
	}
}

// Health check
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
