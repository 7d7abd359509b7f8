package host

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Job runs Function every interval with a fixed payload.
type Job struct {
	Function string
	Every    time.Duration
	Payload  any
}

// Schedule runs jobs until ctx is done. Jobs with a non-positive interval are
// skipped.
func (h *Host) Schedule(ctx context.Context, jobs ...Job) error {
	type scheduled struct {
		Job
		payload json.RawMessage
	}
	var runs []scheduled
	for _, job := range jobs {
		if job.Every <= 0 {
			continue
		}
		if !h.Has(job.Function) {
			return fmt.Errorf("schedule: function %s not registered", job.Function)
		}
		payload, err := json.Marshal(job.Payload)
		if err != nil {
			return fmt.Errorf("schedule %s: %w", job.Function, err)
		}
		runs = append(runs, scheduled{Job: job, payload: payload})
	}

	g, ctx := errgroup.WithContext(ctx)
	for _, run := range runs {
		g.Go(func() error {
			ticker := time.NewTicker(run.Every)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return nil
				case <-ticker.C:
					exec := h.Run(ctx, uuid.NewString(), run.Function, run.payload)
					h.logger.Info("Scheduled execution finished", "function", run.Function, "status", exec.Status, "status_code", exec.StatusCode)
				}
			}
		})
	}

	return g.Wait()
}
