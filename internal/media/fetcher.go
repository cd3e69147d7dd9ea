package media

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/reelforge/reelforge/internal/store"
)

const (
	// Per-fetch network timeout. Covers the whole request including body.
	fetchTimeout = 20 * time.Second

	// Redirect budget for remote media URLs.
	maxRedirects = 5
)

// ErrRedirectBudget is returned when a media URL redirects more than
// maxRedirects times.
var ErrRedirectBudget = errors.New("redirect budget exceeded")

// Fetcher resolves a scene's media reference (remote URL, inline data URI,
// or local-store identifier) to a local file.
type Fetcher struct {
	store  *store.Store
	client *http.Client
}

func NewFetcher(st *store.Store) *Fetcher {
	return &Fetcher{
		store: st,
		client: &http.Client{
			Timeout: fetchTimeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) > maxRedirects {
					return ErrRedirectBudget
				}
				return nil
			},
		},
	}
}

// Fetch resolves source into destDir and returns the local path.
// Local-store identifiers resolve in place without a copy.
func (f *Fetcher) Fetch(ctx context.Context, source, destDir string) (string, error) {
	switch {
	case strings.HasPrefix(source, "data:"):
		return f.fetchInline(source, destDir)
	case strings.HasPrefix(source, "http://"), strings.HasPrefix(source, "https://"):
		return f.fetchRemote(ctx, source, destDir)
	default:
		return f.store.Resolve(source)
	}
}

// fetchRemote downloads a media URL. Redirects (301/302/303/307/308) are
// followed up to maxRedirects; any non-2xx terminal status is a failure
// carrying the status code.
func (f *Fetcher) fetchRemote(ctx context.Context, rawURL, destDir string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", rawURL, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create fetch request: %w", err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		if errors.Is(err, ErrRedirectBudget) {
			return "", fmt.Errorf("fetch %s: %w", rawURL, ErrRedirectBudget)
		}
		return "", fmt.Errorf("fetch %s failed: %w", rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("fetch %s returned status %d", rawURL, resp.StatusCode)
	}

	dest := filepath.Join(destDir, filenameFromURL(rawURL))
	out, err := os.Create(dest)
	if err != nil {
		return "", fmt.Errorf("failed to create %s: %w", dest, err)
	}
	defer out.Close()

	n, err := io.Copy(out, resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to save %s: %w", rawURL, err)
	}

	log.Printf("[Fetch] Downloaded %s (%d bytes) to %s", rawURL, n, dest)
	return dest, nil
}

// fetchInline decodes a base64 data URI (data:<mime>;base64,<payload>)
// directly to a file in destDir. No network call.
func (f *Fetcher) fetchInline(dataURI, destDir string) (string, error) {
	meta, payload, ok := strings.Cut(dataURI, ",")
	if !ok {
		return "", fmt.Errorf("invalid data URI")
	}
	if !strings.HasSuffix(meta, ";base64") {
		return "", fmt.Errorf("unsupported data URI encoding (expected base64)")
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", fmt.Errorf("failed to decode inline media: %w", err)
	}

	mime := strings.TrimSuffix(strings.TrimPrefix(meta, "data:"), ";base64")
	dest := filepath.Join(destDir, uuid.New().String()+extForMime(mime))
	if err := os.WriteFile(dest, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write inline media: %w", err)
	}

	return dest, nil
}

// filenameFromURL derives a safe destination filename from a URL path,
// stripped of query/fragment and sanitized against path injection.
func filenameFromURL(rawURL string) string {
	name := ""
	if u, err := url.Parse(rawURL); err == nil {
		name = path.Base(u.Path)
	}
	name = sanitizeFilename(name)
	if name == "" {
		name = uuid.New().String()
	}
	return name
}

// sanitizeFilename keeps [A-Za-z0-9._-] and collapses everything else to '_'.
// Leading dots are dropped so a name can never traverse or hide.
func sanitizeFilename(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9',
			r == '.', r == '_', r == '-':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	out := strings.TrimLeft(b.String(), ".")
	if strings.Trim(out, "._-") == "" {
		return ""
	}
	return out
}

func extForMime(mime string) string {
	switch mime {
	case "image/png":
		return ".png"
	case "image/jpeg", "image/jpg":
		return ".jpg"
	case "image/webp":
		return ".webp"
	case "image/gif":
		return ".gif"
	case "video/mp4":
		return ".mp4"
	case "video/webm":
		return ".webm"
	case "audio/mpeg":
		return ".mp3"
	case "audio/wav":
		return ".wav"
	default:
		return ".bin"
	}
}
