package preflight

import (
	"os/exec"

	"sanmiguel/internal/config"
	"sanmiguel/internal/deps"
	"sanmiguel/internal/services/kram"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// RunAll executes every preflight check applicable to cfg. A nil lookPath
// uses exec.LookPath.
func RunAll(cfg *config.Config, lookPath deps.LookPathFunc) []Result {
	if cfg == nil {
		return nil
	}
	if lookPath == nil {
		lookPath = exec.LookPath
	}

	var results []Result

	results = append(results, CheckBinary(kram.Binary, lookPath))

	// Asset root (always checked)
	results = append(results, CheckDirectoryAccess("Asset root", cfg.Paths.AssetRoot))

	// Mirrored output directory (when configured)
	if cfg.Paths.OutputDir != "" {
		results = append(results, CheckCreatableDirectory("Output directory", cfg.Paths.OutputDir))
	}

	if cfg.History.Enabled && cfg.History.Path != "" {
		results = append(results, CheckCreatableDirectory("History directory", dirOf(cfg.History.Path)))
	}

	return results
}

// Failed returns the results that did not pass.
func Failed(results []Result) []Result {
	var failed []Result
	for _, r := range results {
		if !r.Passed {
			failed = append(failed, r)
		}
	}
	return failed
}
