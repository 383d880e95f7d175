package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"sanmiguel/internal/convert"
	"sanmiguel/internal/logging"
)

type convertOptions struct {
	workers    int
	retries    int
	setRetries bool
	jsonOutput bool
}

func newConvertCommand(ctx *commandContext) *cobra.Command {
	var opts convertOptions

	cmd := &cobra.Command{
		Use:   "convert",
		Short: "Convert textures to KTX2 and rewrite manifests",
		Long: `Convert every distinct PNG/JPEG texture referenced by the scene manifests to
BC7 KTX2 (zstd level 0) using kram, then point the manifests at the results.

Textures that fail to convert are listed in the summary and their references
are left unchanged. The command exits non-zero only when the run cannot start
(kram missing from PATH, asset root missing or empty, another run in progress).`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.setRetries = cmd.Flags().Changed("retries")
			return runConvert(cmd, ctx, opts)
		},
	}

	cmd.Flags().IntVarP(&opts.workers, "workers", "w", 0, "Concurrent kram processes (default: configuration, then CPU count)")
	cmd.Flags().IntVar(&opts.retries, "retries", 0, "Retry a failed texture this many times with exponential backoff")
	cmd.Flags().BoolVar(&opts.jsonOutput, "json", false, "Output summary as JSON")
	return cmd
}

func runConvert(cmd *cobra.Command, ctx *commandContext, opts convertOptions) error {
	cfg, err := ctx.ensureConfig()
	if err != nil {
		return err
	}
	if opts.workers < 0 {
		return fmt.Errorf("--workers must be >= 0")
	}
	if opts.setRetries {
		if opts.retries < 0 {
			return fmt.Errorf("--retries must be >= 0")
		}
		cfg.Convert.RetryAttempts = opts.retries
	}
	logger, err := ctx.ensureLogger()
	if err != nil {
		return err
	}

	store, err := ctx.openHistory()
	if err != nil {
		logger.Warn("run history unavailable", logging.Error(err))
	}
	runnerOpts := []convert.Option{convert.WithWorkers(opts.workers)}
	if store != nil {
		defer store.Close()
		runnerOpts = append(runnerOpts, convert.WithHistory(store))
	}

	runner, err := convert.New(cfg, logger, runnerOpts...)
	if err != nil {
		return err
	}
	summary, runErr := runner.Run(cmd.Context())
	if summary == nil {
		return runErr
	}

	if opts.jsonOutput {
		if err := writeJSON(cmd, newSummaryView(summary)); err != nil {
			return err
		}
		return runErr
	}
	out := cmd.OutOrStdout()
	renderSummary(out, summary, shouldColorize(out))
	return runErr
}

func renderSummary(out io.Writer, summary *convert.Summary, colorize bool) {
	for _, line := range renderSectionHeader("Texture conversion", colorize) {
		fmt.Fprintln(out, line)
	}
	fmt.Fprintln(out, renderStatusLine("Run", statusInfo, summary.RunID, colorize))
	fmt.Fprintln(out, renderStatusLine("Asset root", statusInfo, summary.AssetRoot, colorize))
	fmt.Fprintln(out, renderStatusLine("Workers", statusInfo, strconv.Itoa(summary.Workers), colorize))
	fmt.Fprintln(out, renderStatusLine("Duration", statusInfo, formatDuration(summary.Duration()), colorize))

	convertedKind := statusOK
	if summary.Failed > 0 {
		convertedKind = statusWarn
	}
	fmt.Fprintln(out, renderStatusLine("Converted", convertedKind,
		fmt.Sprintf("%d of %d textures (%s read, %s written)",
			summary.Succeeded, summary.Jobs, formatBytes(summary.BytesRead), formatBytes(summary.BytesWritten)), colorize))
	if summary.Failed > 0 {
		fmt.Fprintln(out, renderStatusLine("Failed", statusError, strconv.Itoa(summary.Failed), colorize))
	}
	if n := len(summary.Unavailable); n > 0 {
		fmt.Fprintln(out, renderStatusLine("Unavailable", statusWarn, fmt.Sprintf("%d textures left unconverted", n), colorize))
	}
	if n := len(summary.Skipped); n > 0 {
		fmt.Fprintln(out, renderStatusLine("Skipped refs", statusInfo, strconv.Itoa(n), colorize))
	}
	manifestKind := statusOK
	if len(summary.ManifestErrors()) > 0 {
		manifestKind = statusError
	}
	fmt.Fprintln(out, renderStatusLine("Manifests", manifestKind,
		fmt.Sprintf("%d rewritten of %d (%d references updated)",
			summary.ManifestsWritten(), summary.Manifests, summary.ReferencesUpdated()), colorize))

	if len(summary.Failures) > 0 {
		rows := make([][]string, 0, len(summary.Failures))
		for _, failure := range summary.Failures {
			rows = append(rows, []string{
				displayPath(summary.AssetRoot, failure.Source),
				strconv.Itoa(failure.ExitCode),
				strconv.Itoa(failure.Attempts),
				strconv.Itoa(failure.Consumers),
				truncate(failure.Diagnostic, 80),
			})
		}
		fmt.Fprintln(out)
		fmt.Fprintln(out, renderTable(
			[]string{"Failed Texture", "Exit", "Attempts", "Refs", "Diagnostic"},
			rows,
			[]columnAlignment{alignLeft, alignRight, alignRight, alignRight, alignLeft},
		))
	}

	if errs := summary.ManifestErrors(); len(errs) > 0 {
		rows := make([][]string, 0, len(errs))
		for _, report := range errs {
			rows = append(rows, []string{displayPath(summary.AssetRoot, report.Path), report.Err.Error()})
		}
		fmt.Fprintln(out)
		fmt.Fprintln(out, renderTable([]string{"Manifest", "Error"}, rows, nil))
	}
}

// truncate collapses whitespace and shortens value to at most limit runes.
func truncate(value string, limit int) string {
	value = strings.Join(strings.Fields(value), " ")
	runes := []rune(value)
	if len(runes) <= limit || limit < 4 {
		return value
	}
	return string(runes[:limit-3]) + "..."
}
