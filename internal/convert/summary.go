package convert

import (
	"time"

	"sanmiguel/internal/dispatch"
	"sanmiguel/internal/relink"
	"sanmiguel/internal/scan"
)

// Failure describes a texture whose conversion did not succeed.
type Failure struct {
	Source     string
	Attempts   int
	ExitCode   int
	Diagnostic string
	Consumers  int
}

// Summary is the end-of-run report.
type Summary struct {
	RunID      string
	AssetRoot  string
	OutputDir  string
	Workers    int
	StartedAt  time.Time
	FinishedAt time.Time

	Manifests int
	Jobs      int
	Succeeded int
	Failed    int
	Failures  []Failure
	// Unavailable sources were referenced but missing or not images.
	Unavailable []scan.Source
	Skipped     []scan.Skipped

	Results      []dispatch.Result
	Reports      []relink.ManifestReport
	BytesRead    int64
	BytesWritten int64
}

// Duration returns the wall time of the run.
func (s *Summary) Duration() time.Duration {
	return s.FinishedAt.Sub(s.StartedAt)
}

// ManifestsWritten counts manifests that were rewritten.
func (s *Summary) ManifestsWritten() int {
	count := 0
	for _, r := range s.Reports {
		if r.Written {
			count++
		}
	}
	return count
}

// ManifestErrors returns the reports that carry an I/O error.
func (s *Summary) ManifestErrors() []relink.ManifestReport {
	var out []relink.ManifestReport
	for _, r := range s.Reports {
		if r.Err != nil {
			out = append(out, r)
		}
	}
	return out
}

// ReferencesUpdated totals rewritten image references across manifests.
func (s *Summary) ReferencesUpdated() int {
	total := 0
	for _, r := range s.Reports {
		total += r.Updated
	}
	return total
}

// Clean reports whether every job succeeded and every manifest was handled.
func (s *Summary) Clean() bool {
	return s.Failed == 0 && len(s.ManifestErrors()) == 0
}
