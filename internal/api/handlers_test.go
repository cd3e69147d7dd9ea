package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/reelforge/reelforge/internal/comfy"
	"github.com/reelforge/reelforge/internal/jobs"
	"github.com/reelforge/reelforge/internal/media"
	"github.com/reelforge/reelforge/internal/models"
	"github.com/reelforge/reelforge/internal/store"
	"github.com/reelforge/reelforge/internal/storyboard"
)

// stubFetcher resolves any source except "bad-*" to a stub file.
type stubFetcher struct{}

func (stubFetcher) Fetch(ctx context.Context, source, destDir string) (string, error) {
	if strings.HasPrefix(source, "bad-") {
		return "", fmt.Errorf("unreachable media %s", source)
	}
	path := filepath.Join(destDir, "asset")
	return path, os.WriteFile(path, []byte(source), 0644)
}

// stubTranscoder produces placeholder files without invoking ffmpeg.
type stubTranscoder struct{}

func (stubTranscoder) Normalize(ctx context.Context, spec media.NormalizeSpec) error {
	return os.WriteFile(spec.Output, []byte("segment"), 0644)
}

func (stubTranscoder) Concat(ctx context.Context, segments []string, output string) error {
	if len(segments) == 0 {
		return media.ErrNoValidMedia
	}
	return os.WriteFile(output, []byte("combined"), 0644)
}

func (stubTranscoder) Mux(ctx context.Context, videoPath, audioPath, output string) error {
	return os.Rename(videoPath, output)
}

func newTestRouter(t *testing.T, cfg RouterConfig) http.Handler {
	t.Helper()

	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/prompt":
			fmt.Fprint(w, `{"prompt_id": "job-1"}`)
		case r.URL.Path == "/queue":
			fmt.Fprint(w, `{"queue_running": [[0, "job-1", {}]], "queue_pending": []}`)
		default:
			fmt.Fprint(w, `{}`)
		}
	}))
	t.Cleanup(backend.Close)

	mediaStore, err := store.New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	boards, err := storyboard.New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	assembler, err := media.NewAssembler(stubFetcher{}, stubTranscoder{}, mediaStore, t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	orch := jobs.NewOrchestrator(comfy.NewClient(backend.URL), mediaStore, jobs.NewResultStore(), nil)

	h := NewHandler(assembler, orch, boards, mediaStore)
	return NewRouter(h, cfg)
}

func doJSON(t *testing.T, router http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, out any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), out); err != nil {
		t.Fatalf("failed to decode response %q: %v", rec.Body.String(), err)
	}
}

func TestHealthIsPublic(t *testing.T) {
	router := newTestRouter(t, RouterConfig{APIKey: "secret"})
	rec := doJSON(t, router, "GET", "/health", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("health must not require auth, got %d", rec.Code)
	}
}

func TestAPIKeyAuth(t *testing.T) {
	router := newTestRouter(t, RouterConfig{APIKey: "secret"})

	// No key
	rec := doJSON(t, router, "GET", "/v1/storyboards", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 without key, got %d", rec.Code)
	}

	// Wrong key
	req := httptest.NewRequest("GET", "/v1/storyboards", nil)
	req.Header.Set("X-API-Key", "wrong")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Errorf("expected 403 with wrong key, got %d", rec.Code)
	}

	// Header key
	req = httptest.NewRequest("GET", "/v1/storyboards", nil)
	req.Header.Set("X-API-Key", "secret")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200 with X-API-Key, got %d", rec.Code)
	}

	// Bearer fallback
	req = httptest.NewRequest("GET", "/v1/storyboards", nil)
	req.Header.Set("Authorization", "Bearer secret")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200 with bearer token, got %d", rec.Code)
	}
}

func TestCreateAssembly(t *testing.T) {
	router := newTestRouter(t, RouterConfig{})

	rec := doJSON(t, router, "POST", "/v1/assemblies", models.AssemblyRequest{
		Scenes: []models.Scene{
			{Source: "image/a.png", Kind: models.SceneKindImage},
			{Source: "bad-b.png", Kind: models.SceneKindImage},
		},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var result models.AssemblyResult
	decode(t, rec, &result)
	if !strings.HasPrefix(result.Output, "output/") {
		t.Errorf("unexpected output reference %q", result.Output)
	}
	if len(result.Skipped) != 1 || result.Skipped[0].Index != 1 {
		t.Errorf("unexpected skips %+v", result.Skipped)
	}
}

func TestCreateAssemblyValidation(t *testing.T) {
	router := newTestRouter(t, RouterConfig{})

	rec := doJSON(t, router, "POST", "/v1/assemblies", models.AssemblyRequest{})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for empty scene list, got %d", rec.Code)
	}
}

func TestCreateAssemblyNoValidMedia(t *testing.T) {
	router := newTestRouter(t, RouterConfig{})

	rec := doJSON(t, router, "POST", "/v1/assemblies", models.AssemblyRequest{
		Scenes: []models.Scene{{Source: "bad-only.png", Kind: models.SceneKindImage}},
	})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d: %s", rec.Code, rec.Body.String())
	}

	var payload struct {
		Skipped []models.SceneSkip `json:"skipped"`
	}
	decode(t, rec, &payload)
	if len(payload.Skipped) != 1 {
		t.Errorf("skip reasons must accompany the rejection: %s", rec.Body.String())
	}
}

func TestCreateGeneration(t *testing.T) {
	router := newTestRouter(t, RouterConfig{})

	rec := doJSON(t, router, "POST", "/v1/generations", models.GenerationRequest{Prompt: "a fox"})
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp map[string]string
	decode(t, rec, &resp)
	if resp["job_id"] != "job-1" {
		t.Errorf("unexpected job id %q", resp["job_id"])
	}
}

func TestCreateGenerationValidation(t *testing.T) {
	router := newTestRouter(t, RouterConfig{})

	rec := doJSON(t, router, "POST", "/v1/generations", models.GenerationRequest{})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for missing prompt, got %d", rec.Code)
	}

	rec = doJSON(t, router, "POST", "/v1/generations", models.GenerationRequest{
		Prompt: "a fox", Video: true, Quality: "ultra",
	})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for unknown quality, got %d", rec.Code)
	}
}

func TestGetGenerationProgress(t *testing.T) {
	router := newTestRouter(t, RouterConfig{})

	// Backend reports job-1 as running
	rec := doJSON(t, router, "GET", "/v1/generations/job-1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var status models.JobStatus
	decode(t, rec, &status)
	if status.State != models.JobStateRunning || status.Progress != 75 {
		t.Errorf("unexpected status %+v", status)
	}
}

func TestStoryboardLifecycle(t *testing.T) {
	router := newTestRouter(t, RouterConfig{})

	created := models.Storyboard{
		Name:   "teaser",
		Scenes: []models.Scene{{Source: "image/a.png", Kind: models.SceneKindImage}},
	}
	rec := doJSON(t, router, "POST", "/v1/storyboards", created)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var sb models.Storyboard
	decode(t, rec, &sb)

	rec = doJSON(t, router, "GET", "/v1/storyboards/"+sb.ID.String(), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get: expected 200, got %d", rec.Code)
	}

	sb.Name = "final"
	rec = doJSON(t, router, "PUT", "/v1/storyboards/"+sb.ID.String(), sb)
	if rec.Code != http.StatusOK {
		t.Fatalf("update: expected 200, got %d", rec.Code)
	}

	rec = doJSON(t, router, "GET", "/v1/storyboards", nil)
	var listing struct {
		Storyboards []models.Storyboard `json:"storyboards"`
	}
	decode(t, rec, &listing)
	if len(listing.Storyboards) != 1 || listing.Storyboards[0].Name != "final" {
		t.Errorf("unexpected listing %+v", listing.Storyboards)
	}

	rec = doJSON(t, router, "DELETE", "/v1/storyboards/"+sb.ID.String(), nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete: expected 204, got %d", rec.Code)
	}
	rec = doJSON(t, router, "GET", "/v1/storyboards/"+sb.ID.String(), nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("get after delete: expected 404, got %d", rec.Code)
	}
}

func TestStoryboardInvalidID(t *testing.T) {
	router := newTestRouter(t, RouterConfig{})
	rec := doJSON(t, router, "GET", "/v1/storyboards/not-a-uuid", nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for malformed id, got %d", rec.Code)
	}
}

func TestAssembleStoryboard(t *testing.T) {
	router := newTestRouter(t, RouterConfig{})

	rec := doJSON(t, router, "POST", "/v1/storyboards", models.Storyboard{
		Name:   "teaser",
		Scenes: []models.Scene{{Source: "image/a.png", Kind: models.SceneKindImage}},
	})
	var sb models.Storyboard
	decode(t, rec, &sb)

	rec = doJSON(t, router, "POST", "/v1/storyboards/"+sb.ID.String()+"/assemble", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var result models.AssemblyResult
	decode(t, rec, &result)
	if !strings.HasPrefix(result.Output, "output/") {
		t.Errorf("unexpected output reference %q", result.Output)
	}
}

func TestAssembleStoryboardMissing(t *testing.T) {
	router := newTestRouter(t, RouterConfig{})
	rec := doJSON(t, router, "POST", "/v1/storyboards/00000000-0000-0000-0000-000000000001/assemble", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}

func TestUpload(t *testing.T) {
	router := newTestRouter(t, RouterConfig{})

	req := httptest.NewRequest("POST", "/v1/uploads/image", bytes.NewReader([]byte("png-bytes")))
	req.Header.Set("Content-Type", "image/png")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp map[string]string
	decode(t, rec, &resp)
	if !strings.HasPrefix(resp["id"], "image/") || !strings.HasSuffix(resp["id"], ".png") {
		t.Errorf("unexpected identifier %q", resp["id"])
	}
	if resp["url"] != "/media/"+resp["id"] {
		t.Errorf("unexpected url %q", resp["url"])
	}
}

func TestUploadRejectsBadKindAndEmptyBody(t *testing.T) {
	router := newTestRouter(t, RouterConfig{})

	rec := doJSON(t, router, "POST", "/v1/uploads/document", nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for unknown kind, got %d", rec.Code)
	}

	req := httptest.NewRequest("POST", "/v1/uploads/image", bytes.NewReader(nil))
	rec2 := httptest.NewRecorder()
	router.ServeHTTP(rec2, req)
	if rec2.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for empty body, got %d", rec2.Code)
	}
}
