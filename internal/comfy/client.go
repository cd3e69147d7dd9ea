package comfy

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Client speaks the generation backend's HTTP JSON protocol:
// POST /prompt (submit), GET /queue (running/pending inspection),
// GET /history/{id} (terminal state + output references), and
// GET /view (artifact retrieval). The backend itself is external.
type Client struct {
	baseURL    string
	clientID   string
	httpClient *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		clientID: uuid.New().String(),
		httpClient: &http.Client{
			Timeout: 30 * time.Second, // per HTTP call, not the full poll cycle
		},
	}
}

type submitRequest struct {
	Prompt   *Graph `json:"prompt"`
	ClientID string `json:"client_id"`
}

type submitResponse struct {
	PromptID   string         `json:"prompt_id"`
	Number     int            `json:"number"`
	NodeErrors map[string]any `json:"node_errors"`
}

// Submit posts a workflow graph to the queue endpoint and returns the
// backend-assigned job id. A missing id is a fatal submission failure;
// submissions are never retried.
func (c *Client) Submit(ctx context.Context, g *Graph) (string, error) {
	if err := g.Validate(); err != nil {
		return "", err
	}

	payload, err := json.Marshal(submitRequest{Prompt: g, ClientID: c.clientID})
	if err != nil {
		return "", fmt.Errorf("failed to marshal workflow: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/prompt", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("failed to create submit request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("submit request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read submit response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("backend returned status %d: %s", resp.StatusCode, truncate(string(body), 200))
	}

	var sr submitResponse
	if err := json.Unmarshal(body, &sr); err != nil {
		return "", fmt.Errorf("failed to parse submit response: %w (body: %s)", err, truncate(string(body), 200))
	}

	if sr.PromptID == "" {
		return "", fmt.Errorf("no prompt_id in submit response: %s", truncate(string(body), 200))
	}

	return sr.PromptID, nil
}

// QueueState holds the job ids the backend currently reports as running or
// pending, pending in queue order.
type QueueState struct {
	Running []string
	Pending []string
}

// Queue inspects the backend's running/pending queue. Entries arrive as
// heterogeneous arrays whose second element is the job id.
func (c *Client) Queue(ctx context.Context) (*QueueState, error) {
	var raw struct {
		QueueRunning [][]json.RawMessage `json:"queue_running"`
		QueuePending [][]json.RawMessage `json:"queue_pending"`
	}
	if err := c.getJSON(ctx, c.baseURL+"/queue", &raw); err != nil {
		return nil, err
	}

	state := &QueueState{
		Running: extractIDs(raw.QueueRunning),
		Pending: extractIDs(raw.QueuePending),
	}
	return state, nil
}

func extractIDs(entries [][]json.RawMessage) []string {
	ids := make([]string, 0, len(entries))
	for _, entry := range entries {
		if len(entry) < 2 {
			continue
		}
		var id string
		if err := json.Unmarshal(entry[1], &id); err == nil && id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}

// Artifact is a backend-side output reference.
type Artifact struct {
	Filename  string `json:"filename"`
	Subfolder string `json:"subfolder"`
	Type      string `json:"type"`
}

// NodeOutput holds one stage's produced artifacts. Image stages report under
// "images"; the video combine stage reports under "gifs".
type NodeOutput struct {
	Images []Artifact `json:"images"`
	Gifs   []Artifact `json:"gifs"`
}

// HistoryStatus is the backend's completion state for one job.
type HistoryStatus struct {
	StatusStr string              `json:"status_str"` // "success" or "error"
	Completed bool                `json:"completed"`
	Messages  [][]json.RawMessage `json:"messages"`
}

// HistoryEntry is one job's history record.
type HistoryEntry struct {
	Status  HistoryStatus         `json:"status"`
	Outputs map[string]NodeOutput `json:"outputs"`
}

// Artifacts flattens all output references across stages.
func (h *HistoryEntry) Artifacts() []Artifact {
	var out []Artifact
	for _, node := range h.Outputs {
		out = append(out, node.Images...)
		out = append(out, node.Gifs...)
	}
	return out
}

// ErrorMessages extracts backend-supplied failure descriptions from the
// status message stream (["execution_error", {...}] entries).
func (h *HistoryEntry) ErrorMessages() []string {
	var msgs []string
	for _, entry := range h.Status.Messages {
		if len(entry) < 2 {
			continue
		}
		var name string
		if err := json.Unmarshal(entry[0], &name); err != nil || name != "execution_error" {
			continue
		}
		var detail struct {
			NodeType         string `json:"node_type"`
			ExceptionMessage string `json:"exception_message"`
		}
		if err := json.Unmarshal(entry[1], &detail); err != nil {
			continue
		}
		if detail.ExceptionMessage != "" {
			msg := detail.ExceptionMessage
			if detail.NodeType != "" {
				msg = detail.NodeType + ": " + msg
			}
			msgs = append(msgs, msg)
		}
	}
	return msgs
}

// History fetches the per-job status record. The second return is false while
// the backend has no record yet (job still queued or running).
func (c *Client) History(ctx context.Context, jobID string) (*HistoryEntry, bool, error) {
	var raw map[string]HistoryEntry
	if err := c.getJSON(ctx, c.baseURL+"/history/"+url.PathEscape(jobID), &raw); err != nil {
		return nil, false, err
	}

	entry, ok := raw[jobID]
	if !ok {
		return nil, false, nil
	}
	return &entry, true, nil
}

// FetchArtifact downloads one output artifact's bytes.
func (c *Client) FetchArtifact(ctx context.Context, art Artifact) ([]byte, error) {
	q := url.Values{}
	q.Set("filename", art.Filename)
	q.Set("subfolder", art.Subfolder)
	q.Set("type", art.Type)

	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+"/view?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create artifact request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("artifact download failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("artifact download returned status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read artifact: %w", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("downloaded artifact %s is empty", art.Filename)
	}
	return data, nil
}

func (c *Client) getJSON(ctx context.Context, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("backend returned status %d: %s", resp.StatusCode, truncate(string(body), 200))
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to parse response: %w (body: %s)", err, truncate(string(body), 200))
	}
	return nil
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
