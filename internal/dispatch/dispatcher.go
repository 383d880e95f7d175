package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"sanmiguel/internal/logging"
)

// AvailableParallelism returns the number of CPUs usable by this process.
// Query it once at startup and pass it to New.
func AvailableParallelism() int {
	if n := runtime.GOMAXPROCS(0); n > 0 {
		return n
	}
	return 1
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithLogger sets the dispatcher logger.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Dispatcher) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// WithRetry enables the retry extension: a failed attempt is retried up to
// attempts more times, waiting backoff << (retry-1) before each one.
func WithRetry(attempts int, backoff time.Duration) Option {
	return func(d *Dispatcher) {
		if attempts < 0 {
			attempts = 0
		}
		d.retries = attempts
		d.backoff = backoff
	}
}

// WithJobTimeout bounds each compressor invocation. Zero disables the limit.
func WithJobTimeout(timeout time.Duration) Option {
	return func(d *Dispatcher) {
		d.jobTimeout = timeout
	}
}

// WithObserver registers a callback for every state transition. The callback
// is invoked from worker goroutines and must be safe for concurrent use.
func WithObserver(fn func(Transition)) Option {
	return func(d *Dispatcher) {
		d.observer = fn
	}
}

// WithSleep overrides the backoff wait (primarily for tests).
func WithSleep(fn func(context.Context, time.Duration) error) Option {
	return func(d *Dispatcher) {
		if fn != nil {
			d.sleep = fn
		}
	}
}

// Dispatcher runs conversion jobs with at most Workers concurrent compressor
// invocations.
type Dispatcher struct {
	compressor Compressor
	workers    int
	retries    int
	backoff    time.Duration
	jobTimeout time.Duration
	logger     *slog.Logger
	observer   func(Transition)
	sleep      func(context.Context, time.Duration) error
	now        func() time.Time
}

// New constructs a Dispatcher. workers <= 0 is treated as 1.
func New(compressor Compressor, workers int, opts ...Option) *Dispatcher {
	if workers <= 0 {
		workers = 1
	}
	d := &Dispatcher{
		compressor: compressor,
		workers:    workers,
		logger:     logging.NewNop(),
		sleep:      sleepContext,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Workers returns the pool size.
func (d *Dispatcher) Workers() int {
	return d.workers
}

// Run executes every job and returns one Result per job, in job order.
func (d *Dispatcher) Run(ctx context.Context, jobs []Job) []Result {
	results := make([]Result, len(jobs))
	if len(jobs) == 0 {
		return results
	}

	queue := make(chan int, len(jobs))
	for i, job := range jobs {
		results[i] = Result{Job: job, State: StatePending}
		queue <- i
	}
	close(queue)

	workers := min(d.workers, len(jobs))
	d.logger.Info("dispatching conversion jobs",
		logging.Int("jobs", len(jobs)),
		logging.Int("workers", workers),
	)

	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range queue {
				results[idx] = d.runJob(ctx, jobs[idx])
			}
		}()
	}
	wg.Wait()
	return results
}

func (d *Dispatcher) runJob(ctx context.Context, job Job) Result {
	result := Result{Job: job, State: StatePending, StartedAt: d.now()}
	logger := d.logger.With(logging.String(logging.FieldTexture, job.Source))

	for attempt := 1; ; attempt++ {
		from := result.State
		result.Attempts = attempt
		result.State = StateRunning
		d.notify(Transition{Job: job, From: from, To: StateRunning, Attempt: attempt})

		err := d.compress(ctx, job)
		if err == nil {
			result.State = StateSucceeded
			result.ExitCode = 0
			result.Diagnostic = ""
			result.Err = nil
			result.Duration = d.now().Sub(result.StartedAt)
			d.notify(Transition{Job: job, From: StateRunning, To: StateSucceeded, Attempt: attempt})
			logger.Debug("texture converted",
				logging.String("output", job.Output),
				logging.Int("attempts", attempt),
				logging.Duration("duration", result.Duration),
			)
			return result
		}

		result.State = StateFailed
		result.Err = err
		result.ExitCode, result.Diagnostic = describeFailure(err)
		d.notify(Transition{Job: job, From: StateRunning, To: StateFailed, Attempt: attempt, Err: err})

		if attempt > d.retries || ctx.Err() != nil {
			break
		}

		delay := d.backoff << (attempt - 1)
		d.notify(Transition{Job: job, From: StateFailed, To: StateRetrying, Attempt: attempt, Err: err})
		result.State = StateRetrying
		logger.Warn("texture conversion failed; retrying",
			logging.Int("attempt", attempt),
			logging.Duration("backoff", delay),
			logging.Error(err),
		)
		if err := d.sleep(ctx, delay); err != nil {
			// The last compressor failure stays the job's diagnostic.
			result.State = StateFailed
			d.notify(Transition{Job: job, From: StateRetrying, To: StateFailed, Attempt: attempt, Err: err})
			logger.Warn("retry abandoned", logging.Error(err))
			break
		}
	}

	result.Duration = d.now().Sub(result.StartedAt)
	logger.Warn("texture conversion failed",
		logging.Int("attempts", result.Attempts),
		logging.Int("exit_code", result.ExitCode),
		logging.String("diagnostic", result.Diagnostic),
	)
	return result
}

func (d *Dispatcher) compress(ctx context.Context, job Job) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if dir := filepath.Dir(job.Output); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create output directory: %w", err)
		}
	}
	if d.jobTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.jobTimeout)
		defer cancel()
	}
	if d.compressor == nil {
		return fmt.Errorf("compress %s: no compressor configured", job.Source)
	}
	return d.compressor.Compress(ctx, job.Source, job.Output, job.Format)
}

func (d *Dispatcher) notify(t Transition) {
	if d.observer != nil {
		d.observer(t)
	}
}

func sleepContext(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
