package dispatch_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"sanmiguel/internal/dispatch"
)

type toolError struct {
	code   int
	stderr string
}

func (e *toolError) Error() string      { return fmt.Sprintf("exit status %d", e.code) }
func (e *toolError) ExitCode() int      { return e.code }
func (e *toolError) Diagnostic() string { return e.stderr }

type fakeCompressor struct {
	mu       sync.Mutex
	calls    map[string]int
	fail     map[string]error
	inFlight atomic.Int32
	maxSeen  atomic.Int32
	delay    time.Duration
}

func newFakeCompressor() *fakeCompressor {
	return &fakeCompressor{calls: map[string]int{}, fail: map[string]error{}}
}

func (f *fakeCompressor) Compress(ctx context.Context, input, output string, format dispatch.Format) error {
	current := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		seen := f.maxSeen.Load()
		if current <= seen || f.maxSeen.CompareAndSwap(seen, current) {
			break
		}
	}

	f.mu.Lock()
	f.calls[input]++
	err := f.fail[input]
	f.mu.Unlock()

	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if err != nil {
		return err
	}
	return os.WriteFile(output, []byte(format.Codec), 0o644)
}

func (f *fakeCompressor) callCount(input string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[input]
}

func makeJobs(t *testing.T, names ...string) []dispatch.Job {
	t.Helper()
	dir := t.TempDir()
	jobs := make([]dispatch.Job, 0, len(names))
	for _, name := range names {
		jobs = append(jobs, dispatch.Job{
			Source: filepath.Join(dir, name+".png"),
			Output: filepath.Join(dir, name+".ktx2"),
			Format: dispatch.DefaultFormat,
		})
	}
	return jobs
}

func TestRunYieldsOneResultPerJobInOrder(t *testing.T) {
	jobs := makeJobs(t, "a", "b", "c", "d", "e")
	compressor := newFakeCompressor()
	compressor.fail[jobs[1].Source] = &toolError{code: 2, stderr: "unsupported png"}

	results := dispatch.New(compressor, 3).Run(context.Background(), jobs)

	if len(results) != len(jobs) {
		t.Fatalf("expected %d results, got %d", len(jobs), len(results))
	}
	for i, result := range results {
		if result.Job.Source != jobs[i].Source {
			t.Fatalf("result %d out of order: %s", i, result.Job.Source)
		}
		if !result.State.Terminal() {
			t.Fatalf("result %d not terminal: %s", i, result.State)
		}
		if got := compressor.callCount(jobs[i].Source); got != 1 {
			t.Fatalf("expected exactly one compressor call for %s, got %d", jobs[i].Source, got)
		}
	}

	failed := results[1]
	if failed.Succeeded() || failed.State != dispatch.StateFailed {
		t.Fatalf("expected job b to fail, got %s", failed.State)
	}
	if failed.ExitCode != 2 || failed.Diagnostic != "unsupported png" {
		t.Fatalf("unexpected failure details: code=%d diagnostic=%q", failed.ExitCode, failed.Diagnostic)
	}
	for _, idx := range []int{0, 2, 3, 4} {
		if !results[idx].Succeeded() {
			t.Fatalf("sibling %d should have succeeded despite b failing: %+v", idx, results[idx])
		}
		if _, err := os.Stat(jobs[idx].Output); err != nil {
			t.Fatalf("expected output for %s: %v", jobs[idx].Source, err)
		}
	}
}

func TestRunBoundsInFlightJobsByWorkerCount(t *testing.T) {
	jobs := makeJobs(t, "a", "b", "c", "d", "e", "f", "g", "h")
	compressor := newFakeCompressor()
	compressor.delay = 10 * time.Millisecond

	dispatch.New(compressor, 2).Run(context.Background(), jobs)

	if got := compressor.maxSeen.Load(); got > 2 {
		t.Fatalf("expected at most 2 concurrent jobs, saw %d", got)
	}
}

func TestRunExecutesJobsInParallel(t *testing.T) {
	jobs := makeJobs(t, "a", "b", "c")
	var arrived sync.WaitGroup
	arrived.Add(len(jobs))
	released := make(chan struct{})
	go func() {
		arrived.Wait()
		close(released)
	}()

	compressor := dispatch.CompressorFunc(func(ctx context.Context, input, output string, format dispatch.Format) error {
		arrived.Done()
		select {
		case <-released:
			return nil
		case <-time.After(5 * time.Second):
			return errors.New("jobs did not run concurrently")
		}
	})

	for _, result := range dispatch.New(compressor, 3).Run(context.Background(), jobs) {
		if !result.Succeeded() {
			t.Fatalf("expected all jobs to overlap, got %v", result.Err)
		}
	}
}

func TestRunTreatsNonPositiveWorkersAsOne(t *testing.T) {
	d := dispatch.New(newFakeCompressor(), 0)
	if d.Workers() != 1 {
		t.Fatalf("expected 1 worker, got %d", d.Workers())
	}
	if results := d.Run(context.Background(), nil); len(results) != 0 {
		t.Fatalf("expected no results for no jobs, got %d", len(results))
	}
}

func TestRunRetriesWithExponentialBackoff(t *testing.T) {
	jobs := makeJobs(t, "flaky")
	var attempts atomic.Int32
	compressor := dispatch.CompressorFunc(func(ctx context.Context, input, output string, format dispatch.Format) error {
		if attempts.Add(1) < 3 {
			return &toolError{code: 1, stderr: "transient"}
		}
		return nil
	})

	var (
		mu          sync.Mutex
		delays      []time.Duration
		transitions []string
	)
	d := dispatch.New(compressor, 1,
		dispatch.WithRetry(3, 100*time.Millisecond),
		dispatch.WithSleep(func(_ context.Context, delay time.Duration) error {
			mu.Lock()
			delays = append(delays, delay)
			mu.Unlock()
			return nil
		}),
		dispatch.WithObserver(func(tr dispatch.Transition) {
			mu.Lock()
			transitions = append(transitions, string(tr.From)+">"+string(tr.To))
			mu.Unlock()
		}),
	)

	result := d.Run(context.Background(), jobs)[0]
	if !result.Succeeded() || result.Attempts != 3 {
		t.Fatalf("expected success on third attempt, got %s after %d", result.State, result.Attempts)
	}
	if result.Diagnostic != "" || result.Err != nil {
		t.Fatalf("expected failure details cleared on success, got %q %v", result.Diagnostic, result.Err)
	}
	if len(delays) != 2 || delays[0] != 100*time.Millisecond || delays[1] != 200*time.Millisecond {
		t.Fatalf("unexpected backoff delays: %v", delays)
	}
	want := "pending>running,running>failed,failed>retrying,retrying>running,running>failed,failed>retrying,retrying>running,running>succeeded"
	if got := strings.Join(transitions, ","); got != want {
		t.Fatalf("unexpected transitions:\n got %s\nwant %s", got, want)
	}
}

func TestRunStopsAfterRetryBudget(t *testing.T) {
	jobs := makeJobs(t, "broken")
	compressor := newFakeCompressor()
	compressor.fail[jobs[0].Source] = &toolError{code: 3, stderr: "corrupt"}

	d := dispatch.New(compressor, 1,
		dispatch.WithRetry(2, time.Millisecond),
		dispatch.WithSleep(func(context.Context, time.Duration) error { return nil }),
	)
	result := d.Run(context.Background(), jobs)[0]
	if result.State != dispatch.StateFailed || result.Attempts != 3 {
		t.Fatalf("expected failure after 3 attempts, got %s/%d", result.State, result.Attempts)
	}
	if got := compressor.callCount(jobs[0].Source); got != 3 {
		t.Fatalf("expected 3 compressor calls, got %d", got)
	}
}

func TestRunFailsJobOnTimeout(t *testing.T) {
	jobs := makeJobs(t, "slow", "fast")
	compressor := dispatch.CompressorFunc(func(ctx context.Context, input, output string, format dispatch.Format) error {
		if strings.HasSuffix(input, "slow.png") {
			<-ctx.Done()
			return ctx.Err()
		}
		return nil
	})

	results := dispatch.New(compressor, 2, dispatch.WithJobTimeout(20*time.Millisecond)).Run(context.Background(), jobs)
	if results[0].State != dispatch.StateFailed || !errors.Is(results[0].Err, context.DeadlineExceeded) {
		t.Fatalf("expected slow job to time out, got %s %v", results[0].State, results[0].Err)
	}
	if results[0].ExitCode != -1 {
		t.Fatalf("expected unknown exit code for timeout, got %d", results[0].ExitCode)
	}
	if !results[1].Succeeded() {
		t.Fatalf("expected fast job to succeed, got %v", results[1].Err)
	}
}

func TestRunCreatesOutputDirectory(t *testing.T) {
	dir := t.TempDir()
	job := dispatch.Job{
		Source: filepath.Join(dir, "a.png"),
		Output: filepath.Join(dir, "mirror", "nested", "a.ktx2"),
		Format: dispatch.DefaultFormat,
	}
	result := dispatch.New(newFakeCompressor(), 1).Run(context.Background(), []dispatch.Job{job})[0]
	if !result.Succeeded() {
		t.Fatalf("expected success, got %v", result.Err)
	}
	if _, err := os.Stat(job.Output); err != nil {
		t.Fatalf("expected output in mirrored directory: %v", err)
	}
}

func TestFormatExtension(t *testing.T) {
	if got := dispatch.DefaultFormat.Extension(); got != ".ktx2" {
		t.Fatalf("unexpected extension %q", got)
	}
	if dispatch.AvailableParallelism() < 1 {
		t.Fatal("expected at least one CPU")
	}
}

func TestRunKeepsCompressorFailureWhenRetryWaitIsCancelled(t *testing.T) {
	jobs := makeJobs(t, "flaky")
	compressor := newFakeCompressor()
	compressor.fail[jobs[0].Source] = &toolError{code: 4, stderr: "bc7 encoder crashed"}

	d := dispatch.New(compressor, 1,
		dispatch.WithRetry(3, time.Second),
		dispatch.WithSleep(func(context.Context, time.Duration) error { return context.Canceled }),
	)
	result := d.Run(context.Background(), jobs)[0]
	if result.State != dispatch.StateFailed || result.Attempts != 1 {
		t.Fatalf("expected failure after one attempt, got %s/%d", result.State, result.Attempts)
	}
	if result.ExitCode != 4 || result.Diagnostic != "bc7 encoder crashed" {
		t.Fatalf("expected last compressor failure kept, got code=%d diagnostic=%q", result.ExitCode, result.Diagnostic)
	}
	var toolErr *toolError
	if !errors.As(result.Err, &toolErr) {
		t.Fatalf("expected compressor error kept, got %v", result.Err)
	}
}
