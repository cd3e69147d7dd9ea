package worker

import (
	"context"
	"log"
	"time"

	"github.com/reelforge/reelforge/internal/jobs"
	"github.com/reelforge/reelforge/internal/queue"
)

// Worker drains the collect queue and runs each task's poll-and-collect
// phase. Collect itself guarantees a terminal result even on panic, so a
// worker loop can never strand a submitted job.
type Worker struct {
	queue        *queue.Queue
	orchestrator *jobs.Orchestrator
}

func New(q *queue.Queue, orch *jobs.Orchestrator) *Worker {
	return &Worker{queue: q, orchestrator: orch}
}

// Start runs the given number of concurrent collect loops until ctx is
// cancelled. Each in-flight collect runs to its own terminal state; there is
// no cooperative cancellation of a job once dequeued.
func (w *Worker) Start(ctx context.Context, concurrency int) {
	log.Printf("Worker started with concurrency: %d", concurrency)

	for i := 0; i < concurrency; i++ {
		go w.processQueue(ctx)
	}

	<-ctx.Done()
	log.Println("Worker shutting down...")
}

func (w *Worker) processQueue(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
			task, err := w.queue.Dequeue(ctx, 5*time.Second)
			if err != nil {
				log.Printf("Error dequeuing collect task: %v", err)
				continue
			}

			if task == nil {
				continue // nothing available, poll again
			}

			log.Printf("Collecting job %s (class: %s)", task.JobID, task.Class)
			w.orchestrator.Collect(context.Background(), *task)
		}
	}
}
