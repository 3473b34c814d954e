// Package jobs runs review work asynchronously behind a bounded queue.
package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/mergemate/mergemate/internal/core"
)

// Dispatcher manages a pool of worker goroutines that process trigger events
// as review jobs. It implements core.JobDispatcher.
type Dispatcher struct {
	reviewJob  core.Job                // Job implementation executed by each worker.
	jobQueue   chan *core.TriggerEvent // Queue of incoming trigger events.
	maxWorkers int                     // Number of concurrent workers.
	wg         sync.WaitGroup          // Tracks active workers for graceful shutdown.
	logger     *slog.Logger
}

// NewDispatcher initializes a Dispatcher with a worker pool.
// If maxWorkers is 0 or negative, it defaults to 1.
func NewDispatcher(reviewJob core.Job, maxWorkers int, logger *slog.Logger) *Dispatcher {
	if maxWorkers <= 0 {
		maxWorkers = 1
	}
	d := &Dispatcher{
		reviewJob:  reviewJob,
		maxWorkers: maxWorkers,
		jobQueue:   make(chan *core.TriggerEvent, 100),
		logger:     logger,
	}
	d.startWorkers()
	return d
}

// startWorkers launches maxWorkers goroutines to process jobs from the queue.
func (d *Dispatcher) startWorkers() {
	for i := range d.maxWorkers {
		d.wg.Add(1)
		go d.startWorker(i)
	}
}

// startWorker processes events from the queue until it's closed.
func (d *Dispatcher) startWorker(workerID int) {
	defer d.wg.Done()
	d.logger.Info("starting review worker", "id", workerID)

	for event := range d.jobQueue {
		d.processEvent(workerID, event)
	}

	d.logger.Info("shutting down review worker", "id", workerID)
}

// processEvent logs and runs a review job for one trigger event.
func (d *Dispatcher) processEvent(workerID int, event *core.TriggerEvent) {
	d.logger.Info("worker processing job",
		"worker_id", workerID,
		"source", event.Source,
		"request_key", event.RequestKey,
	)

	if err := d.reviewJob.Run(context.Background(), event); err != nil {
		d.logger.Error("review job failed",
			"source", event.Source,
			"request_key", event.RequestKey,
			"error", err,
		)
	}
}

// Dispatch queues a trigger event for processing by a worker. A full queue
// rejects the event so the caller can push back on the webhook sender.
func (d *Dispatcher) Dispatch(_ context.Context, event *core.TriggerEvent) error {
	d.logger.Info("queuing review job", "source", event.Source, "request_key", event.RequestKey)

	select {
	case d.jobQueue <- event:
		return nil
	default:
		return fmt.Errorf("job queue is full, cannot accept new review job")
	}
}

// Stop gracefully shuts down the dispatcher, waiting for all workers to finish.
func (d *Dispatcher) Stop() {
	d.logger.Info("stopping dispatcher and waiting for jobs to finish")
	close(d.jobQueue)
	d.wg.Wait()
	d.logger.Info("all review jobs have finished")
}
