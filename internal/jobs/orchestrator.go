package jobs

import (
	"context"
	"fmt"
	"log"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/reelforge/reelforge/internal/comfy"
	"github.com/reelforge/reelforge/internal/models"
	"github.com/reelforge/reelforge/internal/store"
)

// WorkloadClass sizes the poll budget: video jobs get a longer one.
type WorkloadClass string

const (
	ClassImage WorkloadClass = "image"
	ClassVideo WorkloadClass = "video"
)

// CollectTask is the unit dispatched onto the work queue after submission.
type CollectTask struct {
	JobID       string        `json:"job_id"`
	Class       WorkloadClass `json:"class"`
	SubmittedAt time.Time     `json:"submitted_at"`
}

// Dispatcher hands a collect task to the executor that will run it.
type Dispatcher interface {
	Dispatch(ctx context.Context, task CollectTask) error
}

// PollBudget is a fixed interval and attempt count for one workload class.
type PollBudget struct {
	Interval time.Duration
	Attempts int
}

var defaultBudgets = map[WorkloadClass]PollBudget{
	ClassImage: {Interval: 2 * time.Second, Attempts: 120},
	ClassVideo: {Interval: 3 * time.Second, Attempts: 300},
}

// Orchestrator owns a generation job from submission until a terminal
// result lands in the ResultStore.
type Orchestrator struct {
	client   *comfy.Client
	store    *store.Store
	results  *ResultStore
	dispatch Dispatcher // nil or failing → direct goroutine fallback
	budgets  map[WorkloadClass]PollBudget
}

func NewOrchestrator(client *comfy.Client, st *store.Store, results *ResultStore, dispatch Dispatcher) *Orchestrator {
	budgets := make(map[WorkloadClass]PollBudget, len(defaultBudgets))
	for class, budget := range defaultBudgets {
		budgets[class] = budget
	}
	return &Orchestrator{
		client:   client,
		store:    st,
		results:  results,
		dispatch: dispatch,
		budgets:  budgets,
	}
}

// Submit builds the workflow graph, posts it, and returns the backend job id
// immediately. The poll-and-collect phase is dispatched detached from the
// caller: onto the work queue when available, a plain goroutine otherwise,
// so a terminal result is always eventually produced.
func (o *Orchestrator) Submit(ctx context.Context, req models.GenerationRequest) (string, error) {
	graph, err := comfy.BuildWorkflow(req)
	if err != nil {
		return "", err
	}

	jobID, err := o.client.Submit(ctx, graph)
	if err != nil {
		return "", fmt.Errorf("submission failed: %w", err)
	}

	class := ClassImage
	if req.Video {
		class = ClassVideo
	}
	task := CollectTask{JobID: jobID, Class: class, SubmittedAt: time.Now()}

	log.Printf("[Orchestrator] Job %s submitted (class=%s, %d stages)", jobID, class, graph.Len())

	if o.dispatch != nil {
		if err := o.dispatch.Dispatch(ctx, task); err == nil {
			return jobID, nil
		} else {
			log.Printf("[Orchestrator] Dispatch failed for job %s, collecting in-process: %v", jobID, err)
		}
	}
	go o.Collect(context.Background(), task)

	return jobID, nil
}

// Collect polls the backend until the job is terminal and stores the
// outcome. It never lets an error or panic escape: every path, including a
// panic, produces a terminal Job Result so a polling client is never left
// waiting on a silently-dropped task.
func (o *Orchestrator) Collect(ctx context.Context, task CollectTask) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[Orchestrator] Collect panic for job %s: %v", task.JobID, r)
			o.results.Put(task.JobID, failure(task.JobID, models.FailureBackendError, fmt.Sprintf("internal collect error: %v", r)))
		}
	}()

	result := o.poll(ctx, task)
	o.results.Put(task.JobID, result)
	log.Printf("[Orchestrator] Job %s terminal: %s", task.JobID, result.State)
}

// poll is the request/poll state machine. Transitions are driven only by
// backend history responses and the attempt counter; budget exhaustion is a
// timeout failure, distinct from a backend-reported error.
func (o *Orchestrator) poll(ctx context.Context, task CollectTask) models.JobResult {
	budget, ok := o.budgets[task.Class]
	if !ok {
		budget = o.budgets[ClassImage]
	}

	for attempt := 1; attempt <= budget.Attempts; attempt++ {
		entry, found, err := o.client.History(ctx, task.JobID)
		if err != nil {
			// Transient poll errors consume an attempt but are not terminal.
			log.Printf("[Orchestrator] Poll %d/%d for job %s failed: %v", attempt, budget.Attempts, task.JobID, err)
		} else if found {
			switch classify(entry) {
			case models.JobStateCompleted:
				return o.materialize(ctx, task, entry)
			case models.JobStateFailed:
				return failure(task.JobID, models.FailureBackendError, backendErrorDetail(entry))
			}
		}

		select {
		case <-ctx.Done():
			return failure(task.JobID, models.FailureTimeout, fmt.Sprintf("collection aborted: %v", ctx.Err()))
		case <-time.After(budget.Interval):
		}
	}

	return failure(task.JobID, models.FailureTimeout,
		fmt.Sprintf("no terminal state after %d polls at %v", budget.Attempts, budget.Interval))
}

// classify is the single terminal-detection function for a history record.
func classify(entry *comfy.HistoryEntry) models.JobState {
	if entry.Status.StatusStr == "error" {
		return models.JobStateFailed
	}
	if entry.Status.Completed || entry.Status.StatusStr == "success" {
		return models.JobStateCompleted
	}
	return models.JobStateRunning
}

func backendErrorDetail(entry *comfy.HistoryEntry) string {
	if msgs := entry.ErrorMessages(); len(msgs) > 0 {
		return strings.Join(msgs, "; ")
	}
	return "backend reported an execution error"
}

// materialize downloads the backend-referenced output artifacts into the
// local store under fresh identifiers and builds the success result. A
// completed job with no retrievable output is a failure, not a success.
func (o *Orchestrator) materialize(ctx context.Context, task CollectTask, entry *comfy.HistoryEntry) models.JobResult {
	artifacts := entry.Artifacts()
	if len(artifacts) == 0 {
		return failure(task.JobID, models.FailureBackendError, "job completed without output artifacts")
	}

	kind := models.MediaKindImage
	if task.Class == ClassVideo {
		kind = models.MediaKindVideo
	}

	ids := make([]string, len(artifacts))
	g, gctx := errgroup.WithContext(ctx)
	for i, art := range artifacts {
		i, art := i, art
		g.Go(func() error {
			data, err := o.client.FetchArtifact(gctx, art)
			if err != nil {
				return err
			}
			id, err := o.store.Save(kind, filepath.Ext(art.Filename), data)
			if err != nil {
				return err
			}
			ids[i] = id
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return failure(task.JobID, models.FailureBackendError, fmt.Sprintf("failed to retrieve output: %v", err))
	}

	return models.JobResult{
		JobID:       task.JobID,
		State:       models.JobStateCompleted,
		Output:      ids[0],
		CompletedAt: time.Now().UTC(),
	}
}

// Status serves one status read. A held terminal result is delivered exactly
// once (the read evicts it); otherwise the backend queue provides a live,
// advisory progress estimate, and a job the backend has also forgotten is
// reported as unknown rather than as an error.
func (o *Orchestrator) Status(ctx context.Context, jobID string) models.JobStatus {
	if result, ok := o.results.TakeIfPresent(jobID); ok {
		return models.JobStatus{JobID: jobID, State: result.State, Result: &result}
	}
	return o.Progress(ctx, jobID)
}

// Progress estimates queue position from the backend's running/pending
// lists. The percentage is coarse and advisory; completion is detected only
// by the poller.
func (o *Orchestrator) Progress(ctx context.Context, jobID string) models.JobStatus {
	queue, err := o.client.Queue(ctx)
	if err != nil {
		log.Printf("[Orchestrator] Queue inspection failed for job %s: %v", jobID, err)
		return models.JobStatus{JobID: jobID, State: models.JobStateUnknown}
	}

	for _, id := range queue.Running {
		if id == jobID {
			return models.JobStatus{JobID: jobID, State: models.JobStateRunning, Progress: 75}
		}
	}
	for pos, id := range queue.Pending {
		if id == jobID {
			pct := 50 - pos*5
			if pct < 5 {
				pct = 5
			}
			return models.JobStatus{JobID: jobID, State: models.JobStateQueued, Progress: pct}
		}
	}

	return models.JobStatus{JobID: jobID, State: models.JobStateUnknown}
}

func failure(jobID string, kind models.FailureKind, detail string) models.JobResult {
	state := models.JobStateFailed
	if kind == models.FailureTimeout {
		state = models.JobStateTimedOut
	}
	return models.JobResult{
		JobID:       jobID,
		State:       state,
		Error:       detail,
		FailureKind: kind,
		CompletedAt: time.Now().UTC(),
	}
}
