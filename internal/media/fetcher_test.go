package media

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/reelforge/reelforge/internal/models"
	"github.com/reelforge/reelforge/internal/store"
)

func newTestFetcher(t *testing.T) (*Fetcher, *store.Store) {
	t.Helper()
	st, err := store.New(t.TempDir())
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	return NewFetcher(st), st
}

func TestFetchRemote(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("image-bytes"))
	}))
	defer server.Close()

	f, _ := newTestFetcher(t)
	dest := t.TempDir()

	path, err := f.Fetch(context.Background(), server.URL+"/assets/cover.png?v=2#frag", dest)
	if err != nil {
		t.Fatalf("fetch failed: %v", err)
	}

	// Query and fragment must not leak into the filename
	if filepath.Base(path) != "cover.png" {
		t.Errorf("unexpected filename %q", filepath.Base(path))
	}
	data, err := os.ReadFile(path)
	if err != nil || string(data) != "image-bytes" {
		t.Errorf("unexpected content %q (err=%v)", data, err)
	}
}

func TestFetchRemoteRedirectsWithinBudget(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// /hop/3 → /hop/2 → /hop/1 → /file.png
		var n int
		if _, err := fmt.Sscanf(r.URL.Path, "/hop/%d", &n); err == nil {
			if n > 1 {
				http.Redirect(w, r, fmt.Sprintf("/hop/%d", n-1), http.StatusFound)
			} else {
				http.Redirect(w, r, "/file.png", http.StatusMovedPermanently)
			}
			return
		}
		w.Write([]byte("ok"))
	}))
	defer server.Close()

	f, _ := newTestFetcher(t)

	path, err := f.Fetch(context.Background(), server.URL+"/hop/3", t.TempDir())
	if err != nil {
		t.Fatalf("3 redirects should resolve within the budget: %v", err)
	}
	if filepath.Base(path) != "file.png" {
		t.Errorf("unexpected filename %q", filepath.Base(path))
	}
}

func TestFetchRemoteRedirectBudgetExceeded(t *testing.T) {
	hops := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hops++
		if hops <= 6 {
			http.Redirect(w, r, fmt.Sprintf("/hop/%d", hops), http.StatusFound)
			return
		}
		w.Write([]byte("unreachable"))
	}))
	defer server.Close()

	f, _ := newTestFetcher(t)

	_, err := f.Fetch(context.Background(), server.URL+"/start", t.TempDir())
	if !errors.Is(err, ErrRedirectBudget) {
		t.Fatalf("expected ErrRedirectBudget, got %v", err)
	}
}

func TestFetchRemoteStatusFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer server.Close()

	f, _ := newTestFetcher(t)

	_, err := f.Fetch(context.Background(), server.URL+"/missing.png", t.TempDir())
	if err == nil || !strings.Contains(err.Error(), "404") {
		t.Fatalf("expected failure carrying status code, got %v", err)
	}
}

func TestFetchInline(t *testing.T) {
	f, _ := newTestFetcher(t)
	payload := base64.StdEncoding.EncodeToString([]byte("inline-png"))

	path, err := f.Fetch(context.Background(), "data:image/png;base64,"+payload, t.TempDir())
	if err != nil {
		t.Fatalf("inline fetch failed: %v", err)
	}
	if filepath.Ext(path) != ".png" {
		t.Errorf("expected .png extension, got %q", path)
	}
	data, _ := os.ReadFile(path)
	if string(data) != "inline-png" {
		t.Errorf("unexpected content %q", data)
	}
}

func TestFetchInlineRejectsNonBase64(t *testing.T) {
	f, _ := newTestFetcher(t)
	if _, err := f.Fetch(context.Background(), "data:text/plain,hello", t.TempDir()); err == nil {
		t.Error("expected error for non-base64 data URI")
	}
}

func TestFetchLocalStore(t *testing.T) {
	f, st := newTestFetcher(t)

	id, err := st.Save(models.MediaKindAudio, ".mp3", []byte("audio"))
	if err != nil {
		t.Fatal(err)
	}

	path, err := f.Fetch(context.Background(), id, t.TempDir())
	if err != nil {
		t.Fatalf("local fetch failed: %v", err)
	}
	data, _ := os.ReadFile(path)
	if string(data) != "audio" {
		t.Errorf("unexpected content %q", data)
	}
}

func TestSanitizeFilename(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"cover.png", "cover.png"},
		{"a b/c.png", "a_b_c.png"},
		{"..%2fescape", "_2fescape"}, // leading dots dropped, unsafe runes collapsed
		{"...", ""},
		{"___", ""},
		{"видео.mp4", "_____.mp4"},
	}
	for _, c := range cases {
		if got := sanitizeFilename(c.in); got != c.want {
			t.Errorf("sanitizeFilename(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestFilenameFromURLFallback(t *testing.T) {
	// A URL with no usable path still yields a non-empty safe name
	name := filenameFromURL("https://example.com/")
	if name == "" || strings.ContainsAny(name, "/\\") {
		t.Errorf("unexpected fallback name %q", name)
	}
}
