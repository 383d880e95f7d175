package convert

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"

	"sanmiguel/internal/config"
	"sanmiguel/internal/deps"
	"sanmiguel/internal/dispatch"
	"sanmiguel/internal/history"
	"sanmiguel/internal/logging"
	"sanmiguel/internal/preflight"
	"sanmiguel/internal/relink"
	"sanmiguel/internal/scan"
	"sanmiguel/internal/services"
	"sanmiguel/internal/services/kram"
)

// LockFileName is created in the asset root while a run is in progress.
const LockFileName = ".sanmiguel-convert.lock"

// Option configures a Runner.
type Option func(*Runner)

// WithCompressor replaces the kram client (primarily for tests). The
// compressor binary must still resolve on PATH.
func WithCompressor(c dispatch.Compressor) Option {
	return func(r *Runner) {
		r.compressor = c
	}
}

// WithLookPath overrides executable resolution.
func WithLookPath(fn deps.LookPathFunc) Option {
	return func(r *Runner) {
		if fn != nil {
			r.lookPath = fn
		}
	}
}

// WithWorkers sets the worker pool size, overriding configuration.
func WithWorkers(n int) Option {
	return func(r *Runner) {
		r.workers = n
	}
}

// WithHistory records each run in store.
func WithHistory(store *history.Store) Option {
	return func(r *Runner) {
		r.history = store
	}
}

// WithObserver forwards dispatcher state transitions to fn.
func WithObserver(fn func(dispatch.Transition)) Option {
	return func(r *Runner) {
		r.observer = fn
	}
}

// Runner executes conversion runs for one configuration.
type Runner struct {
	cfg        *config.Config
	logger     *slog.Logger
	compressor dispatch.Compressor
	lookPath   deps.LookPathFunc
	workers    int
	history    *history.Store
	observer   func(dispatch.Transition)
	now        func() time.Time
}

// New constructs a Runner.
func New(cfg *config.Config, logger *slog.Logger, opts ...Option) (*Runner, error) {
	if cfg == nil {
		return nil, services.Wrap(services.ErrConfiguration, "convert", "init", "configuration is required", nil)
	}
	r := &Runner{
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "convert"),
		lookPath: exec.LookPath,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Workers returns the pool size a run will use: the explicit option, then
// configuration, then the host's available parallelism.
func (r *Runner) Workers() int {
	if r.workers > 0 {
		return r.workers
	}
	if r.cfg.Convert.Workers > 0 {
		return r.cfg.Convert.Workers
	}
	return dispatch.AvailableParallelism()
}

// Run converts every ready texture under the asset root and rewrites the
// manifests that reference them. When ctx is cancelled mid-run the partial
// summary is returned together with an error wrapping ctx.Err().
func (r *Runner) Run(ctx context.Context) (*Summary, error) {
	summary := &Summary{
		RunID:     uuid.NewString(),
		AssetRoot: r.cfg.Paths.AssetRoot,
		OutputDir: r.cfg.Paths.OutputDir,
		Workers:   r.Workers(),
		StartedAt: r.now(),
	}
	ctx = services.WithRunID(ctx, summary.RunID)
	logger := logging.WithContext(ctx, r.logger)

	binary, err := r.resolveCompressor()
	if err != nil {
		return nil, err
	}
	if check := preflight.CheckDirectoryAccess("Asset root", r.cfg.Paths.AssetRoot); !check.Passed {
		return nil, services.Wrap(services.ErrPrecondition, "preflight", "asset root", check.Detail, ErrAssetRoot)
	}

	lock := flock.New(filepath.Join(r.cfg.Paths.AssetRoot, LockFileName))
	locked, err := lock.TryLock()
	if err != nil {
		return nil, services.Wrap(services.ErrPrecondition, "preflight", "acquire lock", lock.Path(), err)
	}
	if !locked {
		return nil, services.Wrap(services.ErrPrecondition, "preflight", "acquire lock", lock.Path(), ErrLocked)
	}
	defer func() {
		if err := lock.Unlock(); err != nil {
			logger.Warn("failed to release asset root lock", logging.Error(err))
		}
	}()

	inv, err := r.scanner(logger).Scan(services.WithStage(ctx, "scan"), r.cfg.Paths.AssetRoot)
	if err != nil {
		return nil, services.Wrap(services.ErrPrecondition, "scan", "walk asset root", "", err)
	}
	if inv.Empty() {
		return nil, services.Wrap(services.ErrPrecondition, "scan", "find manifests", r.cfg.Paths.AssetRoot, ErrNoManifests)
	}
	summary.Manifests = len(inv.Manifests)
	summary.Skipped = inv.Skipped

	jobs, consumers := r.buildJobs(logger, inv, summary)
	summary.Jobs = len(jobs)

	compressor := r.compressor
	if compressor == nil {
		client, err := kram.New(binary)
		if err != nil {
			return nil, services.Wrap(services.ErrConfiguration, "dispatch", "init compressor", "", err)
		}
		compressor = client
	}

	logger.Info("conversion run starting",
		logging.String("asset_root", r.cfg.Paths.AssetRoot),
		logging.Int("manifests", summary.Manifests),
		logging.Int("jobs", summary.Jobs),
		logging.Int("skipped_references", len(inv.Skipped)),
	)

	dispatcher := dispatch.New(compressor, summary.Workers,
		dispatch.WithLogger(logger),
		dispatch.WithRetry(r.cfg.Convert.RetryAttempts, r.cfg.RetryBackoff()),
		dispatch.WithJobTimeout(r.cfg.JobTimeoutDuration()),
		dispatch.WithObserver(r.observer),
	)
	summary.Results = dispatcher.Run(services.WithStage(ctx, "dispatch"), jobs)

	// Every job is terminal here; manifests are rewritten in one pass.
	bySource := make(map[string]dispatch.Result, len(summary.Results))
	for _, result := range summary.Results {
		bySource[result.Job.Source] = result
		if result.Succeeded() {
			summary.Succeeded++
			if info, err := os.Stat(result.Job.Output); err == nil {
				summary.BytesWritten += info.Size()
			}
			continue
		}
		summary.Failed++
		summary.Failures = append(summary.Failures, Failure{
			Source:     result.Job.Source,
			Attempts:   result.Attempts,
			ExitCode:   result.ExitCode,
			Diagnostic: result.Diagnostic,
			Consumers:  consumers[result.Job.Source],
		})
	}

	var relinkOpts []relink.Option
	if r.cfg.Paths.OutputDir != "" {
		relinkOpts = append(relinkOpts, relink.WithOutputDir(r.cfg.Paths.AssetRoot, r.cfg.Paths.OutputDir))
	}
	// Outputs already produced are linked even when the run was interrupted.
	settled := context.WithoutCancel(ctx)
	summary.Reports = relink.New(logger, relinkOpts...).Rewrite(services.WithStage(settled, "rewrite"), inv, bySource)
	summary.FinishedAt = r.now()

	r.record(settled, logger, summary, consumers)

	if err := ctx.Err(); err != nil {
		logger.Warn("conversion run interrupted",
			logging.Int("succeeded", summary.Succeeded),
			logging.Int("failed", summary.Failed),
			logging.Error(err),
		)
		return summary, fmt.Errorf("conversion run interrupted: %w", err)
	}

	logger.Info("conversion run complete",
		logging.Int("succeeded", summary.Succeeded),
		logging.Int("failed", summary.Failed),
		logging.Int("manifests_written", summary.ManifestsWritten()),
		logging.Int("manifest_errors", len(summary.ManifestErrors())),
		logging.Duration("duration", summary.Duration()),
	)
	return summary, nil
}

// Inspect scans the asset root without converting anything.
func (r *Runner) Inspect(ctx context.Context) (*scan.Inventory, error) {
	inv, err := r.scanner(r.logger).Scan(services.WithStage(ctx, "scan"), r.cfg.Paths.AssetRoot)
	if err != nil {
		return nil, services.Wrap(services.ErrPrecondition, "scan", "walk asset root", "", err)
	}
	return inv, nil
}

// resolveCompressor looks the binary up once; workers share the result.
func (r *Runner) resolveCompressor() (string, error) {
	check := preflight.CheckBinary(kram.Binary, r.lookPath)
	if !check.Passed {
		return "", services.Wrap(services.ErrPrecondition, "preflight", "resolve compressor",
			fmt.Sprintf("%s must be on PATH", kram.Binary), fmt.Errorf("%w: %s", ErrToolNotFound, check.Detail))
	}
	return check.Detail, nil
}

func (r *Runner) scanner(logger *slog.Logger) scan.Scanner {
	return scan.Scanner{
		ManifestExtensions: r.cfg.Scan.ManifestExtensions,
		SourceExtensions:   r.cfg.Scan.SourceExtensions,
		Exclude:            r.cfg.Scan.Exclude,
		TargetExtension:    dispatch.DefaultFormat.Extension(),
		Logger:             logger,
	}
}

func (r *Runner) buildJobs(logger *slog.Logger, inv *scan.Inventory, summary *Summary) ([]dispatch.Job, map[string]int) {
	type planned struct {
		src    scan.Source
		output string
	}
	consumers := make(map[string]int, len(inv.Sources))
	plan := make([]planned, 0, len(inv.Sources))
	// Keys are case-folded so a.png and A.PNG collide on case-insensitive filesystems too.
	claims := make(map[string][]string)
	for _, src := range inv.Sources {
		consumers[src.Path] = len(src.Consumers)
		if !src.Ready() {
			r.markUnavailable(logger, summary, src)
			continue
		}
		output, err := relink.OutputPath(inv.Root, r.cfg.Paths.OutputDir, src.Path, dispatch.DefaultFormat.Extension())
		if err != nil {
			src.Status, src.Detail = scan.StatusMissing, err.Error()
			r.markUnavailable(logger, summary, src)
			continue
		}
		key := strings.ToLower(output)
		claims[key] = append(claims[key], src.Path)
		plan = append(plan, planned{src: src, output: output})
	}

	jobs := make([]dispatch.Job, 0, len(plan))
	for _, p := range plan {
		if owners := claims[strings.ToLower(p.output)]; len(owners) > 1 {
			others := slices.DeleteFunc(slices.Clone(owners), func(path string) bool { return path == p.src.Path })
			p.src.Status = scan.StatusConflict
			p.src.Detail = fmt.Sprintf("output %s would also be written for %s", p.output, strings.Join(others, ", "))
			r.markUnavailable(logger, summary, p.src)
			continue
		}
		summary.BytesRead += p.src.Size
		jobs = append(jobs, dispatch.Job{Source: p.src.Path, Output: p.output, Format: dispatch.DefaultFormat})
	}
	return jobs, consumers
}

func (r *Runner) markUnavailable(logger *slog.Logger, summary *Summary, src scan.Source) {
	summary.Unavailable = append(summary.Unavailable, src)
	logger.Warn("texture unavailable; references left unchanged",
		logging.String(logging.FieldTexture, src.Path),
		logging.String("status", string(src.Status)),
		logging.String("detail", src.Detail),
	)
}

func (r *Runner) record(ctx context.Context, logger *slog.Logger, summary *Summary, consumers map[string]int) {
	if r.history == nil {
		return
	}
	run := history.Run{
		ID:               summary.RunID,
		AssetRoot:        summary.AssetRoot,
		OutputDir:        summary.OutputDir,
		Workers:          summary.Workers,
		StartedAt:        summary.StartedAt,
		FinishedAt:       summary.FinishedAt,
		Succeeded:        summary.Succeeded,
		Failed:           summary.Failed,
		Skipped:          len(summary.Skipped) + len(summary.Unavailable),
		ManifestsWritten: summary.ManifestsWritten(),
		ManifestErrors:   len(summary.ManifestErrors()),
		BytesWritten:     summary.BytesWritten,
	}
	entries := make([]history.Entry, 0, len(summary.Results))
	for _, result := range summary.Results {
		entries = append(entries, history.Entry{
			Source:     result.Job.Source,
			Output:     result.Job.Output,
			State:      string(result.State),
			Attempts:   result.Attempts,
			ExitCode:   result.ExitCode,
			Diagnostic: result.Diagnostic,
			Consumers:  consumers[result.Job.Source],
			Duration:   result.Duration,
		})
	}
	if err := r.history.RecordRun(ctx, run, entries); err != nil {
		logger.Warn("failed to record run history", logging.Error(err))
	}
}
