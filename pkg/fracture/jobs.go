package fracture

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/chazu/shatter/pkg/ehm"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Job is one independent fracture. Run gets a fresh Context seeded with
// Seed and must only touch Mesh.
type Job struct {
	ID   uuid.UUID
	Name string
	Mesh *ehm.Mesh
	Seed int64
	Run  func(ctx context.Context, c *Context, m *ehm.Mesh) error
}

// Message is a logged driver message.
type Message struct {
	Severity Severity
	Text     string
}

// JobResult reports how a job went.
type JobResult struct {
	ID       uuid.UUID
	Name     string
	Err      error
	Messages []Message
	Duration time.Duration
}

// RunJobs runs jobs with at most workers of them at a time; workers < 1
// means no limit. Jobs without an ID get one. A failing job does not stop
// the others; its error is in its result. configure, when set, adjusts
// each job's Context before it runs. The returned error is the first job
// error, or the context's error when ctx ends first.
func RunJobs(ctx context.Context, jobs []Job, workers int, configure func(*Context)) ([]JobResult, error) {
	results := make([]JobResult, len(jobs))
	var g errgroup.Group
	if workers > 0 {
		g.SetLimit(workers)
	}
	for i := range jobs {
		job := &jobs[i]
		if job.ID == uuid.Nil {
			job.ID = uuid.New()
		}
		res := &results[i]
		res.ID, res.Name = job.ID, job.Name
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				res.Err = err
				return nil
			}
			var mu sync.Mutex
			c := NewContext(job.Seed)
			c.Logger = func(s Severity, msg string) {
				mu.Lock()
				res.Messages = append(res.Messages, Message{s, msg})
				mu.Unlock()
			}
			if configure != nil {
				configure(c)
			}
			start := time.Now()
			switch {
			case job.Mesh == nil:
				res.Err = ErrNoMesh
			case job.Run == nil:
				res.Err = errors.New("fracture: job has no run function")
			default:
				res.Err = job.Run(ctx, c, job.Mesh)
			}
			res.Duration = time.Since(start)
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return results, err
	}
	for _, r := range results {
		if r.Err != nil {
			return results, fmt.Errorf("job %s: %w", r.ID, r.Err)
		}
	}
	return results, nil
}
