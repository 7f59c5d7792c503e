package batchrunner

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"urlwarden/internal/domain"
	"urlwarden/internal/ports"
)

// Config holds settings for the coordinator.
type Config struct {
	Workers int // bound on concurrent pipeline invocations
}

// Update is one incremental progress event for a batch job.
type Update struct {
	URL       string                 `json:"url"`
	Result    *domain.AnalysisResult `json:"result,omitempty"`
	Error     string                 `json:"error,omitempty"`
	Completed int                    `json:"completed"`
	Failed    int                    `json:"failed"`
	Total     int                    `json:"total"`
}

// Job tracks one submitted batch for its duration.
type Job struct {
	id        string
	createdAt time.Time
	total     int
	updates   chan Update
	cancel    context.CancelFunc
	done      chan struct{}

	mu        sync.Mutex
	state     domain.BatchState
	completed int
	failed    int
}

// Updates streams progress events as units finish. The channel is closed
// once the job reaches a terminal state.
func (j *Job) Updates() <-chan Update { return j.updates }

// Cancel stops dispatching new units; in-flight fetches may complete but
// their results are discarded.
func (j *Job) Cancel() { j.cancel() }

// Wait blocks until the job is terminal and returns its final state.
func (j *Job) Wait() domain.BatchState {
	<-j.done
	return j.State()
}

func (j *Job) State() domain.BatchState {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.state
}

// Summary returns a point-in-time view of the job.
func (j *Job) Summary() domain.BatchSummary {
	j.mu.Lock()
	defer j.mu.Unlock()
	return domain.BatchSummary{
		ID:        j.id,
		State:     j.state,
		Submitted: j.total,
		Completed: j.completed,
		Failed:    j.failed,
		CreatedAt: j.createdAt,
	}
}

func (j *Job) setState(s domain.BatchState) {
	j.mu.Lock()
	j.state = s
	j.mu.Unlock()
}

// record counts one finished unit and emits its progress event. A unit with
// a pipeline error or an errored result counts as failed.
func (j *Job) record(url string, result domain.AnalysisResult, err error) {
	j.mu.Lock()
	u := Update{URL: url, Total: j.total}
	if err != nil {
		j.failed++
		u.Error = err.Error()
	} else if result.Errored {
		j.failed++
		u.Error = result.FetchError
		u.Result = &result
	} else {
		j.completed++
		u.Result = &result
	}
	u.Completed = j.completed
	u.Failed = j.failed
	j.mu.Unlock()
	j.updates <- u
}

// Runner fans batches out to a bounded worker pool over the pipeline.
type Runner struct {
	cfg      Config
	pipeline ports.Pipeline
	gate     ports.Gate
	logger   *slog.Logger
}

func New(cfg Config, pipeline ports.Pipeline, gate ports.Gate, logger *slog.Logger) *Runner {
	if cfg.Workers < 1 {
		cfg.Workers = 5
	}
	return &Runner{cfg: cfg, pipeline: pipeline, gate: gate, logger: logger}
}

// Submit authorizes the requester once for the whole batch, then starts the
// job and returns immediately. Progress streams on the job's Updates channel.
func (r *Runner) Submit(ctx context.Context, urls []string, req domain.Requester) (*Job, error) {
	if len(urls) == 0 {
		return nil, errors.New("batch: no urls")
	}
	dec, err := r.gate.Authorize(ctx, req.ID, req.GroupID)
	if err != nil {
		return nil, err
	}
	if !dec.Allowed {
		return nil, &domain.DeniedError{Reason: dec.Reason}
	}

	jctx, cancel := context.WithCancel(ctx)
	job := &Job{
		id:        uuid.NewString(),
		createdAt: time.Now().UTC(),
		total:     len(urls),
		updates:   make(chan Update, len(urls)),
		cancel:    cancel,
		done:      make(chan struct{}),
		state:     domain.BatchPending,
	}
	go r.run(jctx, job, urls)
	return job, nil
}

func (r *Runner) run(ctx context.Context, job *Job, urls []string) {
	defer job.cancel()
	job.setState(domain.BatchRunning)

	jobs := make(chan string)
	var wg sync.WaitGroup
	for i := 0; i < r.cfg.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for u := range jobs {
				// cooperative cancellation between units
				if ctx.Err() != nil {
					return
				}
				result, err := r.pipeline.Process(ctx, u)
				if ctx.Err() != nil {
					// discard in-flight results after cancellation
					return
				}
				job.record(u, result, err)
			}
		}()
	}

dispatch:
	for _, u := range urls {
		select {
		case <-ctx.Done():
			break dispatch
		case jobs <- u:
		}
	}
	close(jobs)
	wg.Wait()

	final := domain.BatchCompleted
	job.mu.Lock()
	switch {
	case ctx.Err() != nil && job.completed+job.failed < job.total:
		final = domain.BatchCancelled
	case job.failed > 0:
		final = domain.BatchPartiallyFailed
	}
	job.state = final
	job.mu.Unlock()

	r.logger.Debug("batch finished", "job", job.id, "state", final)
	close(job.updates)
	close(job.done)
}
