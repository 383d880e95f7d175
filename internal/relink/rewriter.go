package relink

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"slices"
	"strings"

	"sanmiguel/internal/dispatch"
	"sanmiguel/internal/gltf"
	"sanmiguel/internal/logging"
	"sanmiguel/internal/scan"
)

// ErrReferenceChanged marks a reference whose on-disk URI no longer matches
// the scanned one. Such references are left alone.
var ErrReferenceChanged = errors.New("manifest reference changed since scan")

// ManifestReport is the rewrite outcome for a single manifest.
type ManifestReport struct {
	Path      string
	Updated   int
	Unchanged int
	Written   bool
	// Stale lists image indexes skipped because the manifest changed on disk.
	Stale []int
	Err   error
}

// Option configures a Rewriter.
type Option func(*Rewriter)

// WithOutputDir tells the rewriter converted textures were mirrored from
// root into dir instead of written next to their sources.
func WithOutputDir(root, dir string) Option {
	return func(r *Rewriter) {
		r.root = root
		r.outputDir = dir
	}
}

// WithMimeType overrides the media type recorded for converted images.
func WithMimeType(mimeType string) Option {
	return func(r *Rewriter) {
		r.mimeType = mimeType
	}
}

// Rewriter updates manifests after dispatch.
type Rewriter struct {
	logger    *slog.Logger
	root      string
	outputDir string
	mimeType  string
}

// New constructs a Rewriter.
func New(logger *slog.Logger, opts ...Option) *Rewriter {
	r := &Rewriter{
		logger:   logging.NewComponentLogger(logger, "relink"),
		mimeType: gltf.MimeTypeKTX2,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

type update struct {
	ref    scan.Reference
	output string
}

// Rewrite applies successful results to every manifest in inv. results is
// keyed by source path; sources without a succeeded result keep their
// original references. Each manifest is reloaded from disk and written at
// most once.
func (r *Rewriter) Rewrite(ctx context.Context, inv *scan.Inventory, results map[string]dispatch.Result) []ManifestReport {
	if inv == nil {
		return nil
	}

	byManifest := make(map[string][]update)
	for _, src := range inv.Sources {
		result, ok := results[src.Path]
		if !ok || !result.Succeeded() {
			continue
		}
		for _, ref := range src.Consumers {
			byManifest[ref.Manifest] = append(byManifest[ref.Manifest], update{ref: ref, output: result.Job.Output})
		}
	}

	reports := make([]ManifestReport, 0, len(inv.Manifests))
	for _, manifest := range inv.Manifests {
		if manifest.Err != nil {
			reports = append(reports, ManifestReport{Path: manifest.Path, Err: manifest.Err})
			continue
		}
		if err := ctx.Err(); err != nil {
			reports = append(reports, ManifestReport{Path: manifest.Path, Err: err})
			continue
		}
		report := r.rewriteManifest(manifest, byManifest[manifest.Path])
		reports = append(reports, report)
	}
	return reports
}

func (r *Rewriter) rewriteManifest(manifest scan.Manifest, updates []update) ManifestReport {
	report := ManifestReport{Path: manifest.Path}
	logger := r.logger.With(logging.String(logging.FieldManifest, manifest.Path))
	if len(updates) == 0 {
		report.Unchanged = manifest.Images
		return report
	}

	doc, err := gltf.Load(manifest.Path)
	if err != nil {
		report.Err = err
		logger.Error("manifest reload failed", logging.Error(err))
		return report
	}
	images := doc.Images()
	slices.SortFunc(updates, func(a, b update) int { return a.ref.ImageIndex - b.ref.ImageIndex })

	for _, u := range updates {
		idx := u.ref.ImageIndex
		if idx >= len(images) || images[idx].URI != u.ref.URI {
			report.Stale = append(report.Stale, idx)
			logger.Warn("image reference changed since scan; leaving it",
				logging.Int("image", idx),
				logging.Error(ErrReferenceChanged),
			)
			continue
		}
		uri, err := r.convertedURI(manifest.Path, u.ref.URI, u.output)
		if err != nil {
			report.Stale = append(report.Stale, idx)
			logger.Warn("cannot express converted path", logging.Int("image", idx), logging.Error(err))
			continue
		}
		if uri == u.ref.URI {
			continue
		}
		if err := doc.SetImageURI(idx, uri, r.mimeType); err != nil {
			report.Stale = append(report.Stale, idx)
			logger.Warn("image update failed", logging.Int("image", idx), logging.Error(err))
			continue
		}
		report.Updated++
	}
	report.Unchanged = len(images) - report.Updated

	if report.Updated == 0 {
		return report
	}
	if err := doc.Save(manifest.Path); err != nil {
		report.Err = fmt.Errorf("write manifest: %w", err)
		report.Unchanged = len(images)
		report.Updated = 0
		logger.Error("manifest write failed; original left in place", logging.Error(err))
		return report
	}
	report.Written = true
	logger.Info("manifest rewritten",
		logging.Int("updated", report.Updated),
		logging.Int("unchanged", report.Unchanged),
	)
	return report
}

// convertedURI derives the reference for output. Alongside outputs keep the
// original URI text and swap the extension; mirrored outputs are expressed
// relative to the manifest directory.
func (r *Rewriter) convertedURI(manifestPath, uri, output string) (string, error) {
	if r.outputDir == "" {
		return gltf.ReplaceExt(uri, filepath.Ext(output)), nil
	}
	rel, err := filepath.Rel(filepath.Dir(manifestPath), output)
	if err != nil {
		return "", err
	}
	rel = filepath.ToSlash(rel)
	if strings.HasPrefix(rel, "/") {
		return "", fmt.Errorf("output %s has no relative path from manifest", output)
	}
	return gltf.EncodePath(rel), nil
}

// OutputPath returns where the converted texture for source is written:
// next to the source, or mirrored under outputDir relative to root.
func OutputPath(root, outputDir, source, ext string) (string, error) {
	base := strings.TrimSuffix(source, filepath.Ext(source)) + ext
	if outputDir == "" {
		return base, nil
	}
	rel, err := filepath.Rel(root, base)
	if err != nil {
		return "", fmt.Errorf("relative output path: %w", err)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("source %s is outside asset root", source)
	}
	return filepath.Join(outputDir, rel), nil
}
