package main

import (
	"time"

	"sanmiguel/internal/convert"
	"sanmiguel/internal/history"
	"sanmiguel/internal/scan"
)

type failureView struct {
	Source     string `json:"source"`
	ExitCode   int    `json:"exit_code"`
	Attempts   int    `json:"attempts"`
	References int    `json:"references"`
	Diagnostic string `json:"diagnostic,omitempty"`
}

type manifestView struct {
	Path      string `json:"path"`
	Updated   int    `json:"updated"`
	Unchanged int    `json:"unchanged"`
	Written   bool   `json:"written"`
	Stale     []int  `json:"stale,omitempty"`
	Error     string `json:"error,omitempty"`
}

type summaryView struct {
	RunID        string         `json:"run_id"`
	AssetRoot    string         `json:"asset_root"`
	OutputDir    string         `json:"output_dir,omitempty"`
	Workers      int            `json:"workers"`
	StartedAt    time.Time      `json:"started_at"`
	DurationMS   int64          `json:"duration_ms"`
	Jobs         int            `json:"jobs"`
	Succeeded    int            `json:"succeeded"`
	Failed       int            `json:"failed"`
	Unavailable  []sourceView   `json:"unavailable,omitempty"`
	Skipped      int            `json:"skipped_references"`
	BytesRead    int64          `json:"bytes_read"`
	BytesWritten int64          `json:"bytes_written"`
	Failures     []failureView  `json:"failures,omitempty"`
	Manifests    []manifestView `json:"manifests"`
}

func newSummaryView(s *convert.Summary) summaryView {
	view := summaryView{
		RunID:        s.RunID,
		AssetRoot:    s.AssetRoot,
		OutputDir:    s.OutputDir,
		Workers:      s.Workers,
		StartedAt:    s.StartedAt.UTC(),
		DurationMS:   s.Duration().Milliseconds(),
		Jobs:         s.Jobs,
		Succeeded:    s.Succeeded,
		Failed:       s.Failed,
		Skipped:      len(s.Skipped),
		BytesRead:    s.BytesRead,
		BytesWritten: s.BytesWritten,
	}
	for _, src := range s.Unavailable {
		view.Unavailable = append(view.Unavailable, newSourceView(src))
	}
	for _, f := range s.Failures {
		view.Failures = append(view.Failures, failureView{
			Source:     f.Source,
			ExitCode:   f.ExitCode,
			Attempts:   f.Attempts,
			References: f.Consumers,
			Diagnostic: f.Diagnostic,
		})
	}
	view.Manifests = make([]manifestView, 0, len(s.Reports))
	for _, r := range s.Reports {
		mv := manifestView{
			Path:      r.Path,
			Updated:   r.Updated,
			Unchanged: r.Unchanged,
			Written:   r.Written,
			Stale:     r.Stale,
		}
		if r.Err != nil {
			mv.Error = r.Err.Error()
		}
		view.Manifests = append(view.Manifests, mv)
	}
	return view
}

type referenceView struct {
	Manifest string `json:"manifest"`
	Image    int    `json:"image"`
	URI      string `json:"uri"`
	Name     string `json:"name,omitempty"`
}

type sourceView struct {
	Path       string          `json:"path"`
	Status     string          `json:"status"`
	Detail     string          `json:"detail,omitempty"`
	Size       int64           `json:"size"`
	References []referenceView `json:"references"`
}

func newSourceView(src scan.Source) sourceView {
	view := sourceView{
		Path:       src.Path,
		Status:     string(src.Status),
		Detail:     src.Detail,
		Size:       src.Size,
		References: make([]referenceView, 0, len(src.Consumers)),
	}
	for _, ref := range src.Consumers {
		view.References = append(view.References, referenceView{
			Manifest: ref.Manifest,
			Image:    ref.ImageIndex,
			URI:      ref.URI,
			Name:     ref.Name,
		})
	}
	return view
}

type skippedView struct {
	Manifest string `json:"manifest"`
	Image    int    `json:"image"`
	URI      string `json:"uri,omitempty"`
	Reason   string `json:"reason"`
}

type manifestScanView struct {
	Path   string `json:"path"`
	Images int    `json:"images"`
	Error  string `json:"error,omitempty"`
}

type inventoryView struct {
	Root      string             `json:"root"`
	Manifests []manifestScanView `json:"manifests"`
	Sources   []sourceView       `json:"sources"`
	Skipped   []skippedView      `json:"skipped"`
}

func newInventoryView(inv *scan.Inventory) inventoryView {
	view := inventoryView{
		Root:      inv.Root,
		Manifests: make([]manifestScanView, 0, len(inv.Manifests)),
		Sources:   make([]sourceView, 0, len(inv.Sources)),
		Skipped:   make([]skippedView, 0, len(inv.Skipped)),
	}
	for _, m := range inv.Manifests {
		mv := manifestScanView{Path: m.Path, Images: m.Images}
		if m.Err != nil {
			mv.Error = m.Err.Error()
		}
		view.Manifests = append(view.Manifests, mv)
	}
	for _, src := range inv.Sources {
		view.Sources = append(view.Sources, newSourceView(src))
	}
	for _, skip := range inv.Skipped {
		view.Skipped = append(view.Skipped, skippedView{
			Manifest: skip.Manifest,
			Image:    skip.ImageIndex,
			URI:      skip.URI,
			Reason:   string(skip.Reason),
		})
	}
	return view
}

type runView struct {
	ID               string    `json:"id"`
	AssetRoot        string    `json:"asset_root"`
	OutputDir        string    `json:"output_dir,omitempty"`
	Workers          int       `json:"workers"`
	StartedAt        time.Time `json:"started_at"`
	DurationMS       int64     `json:"duration_ms"`
	Succeeded        int       `json:"succeeded"`
	Failed           int       `json:"failed"`
	Skipped          int       `json:"skipped"`
	ManifestsWritten int       `json:"manifests_written"`
	ManifestErrors   int       `json:"manifest_errors"`
	BytesWritten     int64     `json:"bytes_written"`
}

func newRunView(run history.Run) runView {
	return runView{
		ID:               run.ID,
		AssetRoot:        run.AssetRoot,
		OutputDir:        run.OutputDir,
		Workers:          run.Workers,
		StartedAt:        run.StartedAt,
		DurationMS:       run.Duration().Milliseconds(),
		Succeeded:        run.Succeeded,
		Failed:           run.Failed,
		Skipped:          run.Skipped,
		ManifestsWritten: run.ManifestsWritten,
		ManifestErrors:   run.ManifestErrors,
		BytesWritten:     run.BytesWritten,
	}
}
