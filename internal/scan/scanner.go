package scan

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"

	"github.com/gobwas/glob"
	"github.com/h2non/filetype"
	"github.com/h2non/filetype/types"

	"sanmiguel/internal/gltf"
	"sanmiguel/internal/logging"
)

// sniffLen is the header size filetype needs to recognise every format it knows.
const sniffLen = 262

// Scanner locates manifests and the textures they reference.
type Scanner struct {
	ManifestExtensions []string
	SourceExtensions   []string
	Exclude            []string
	// TargetExtension marks references that already point at converted
	// textures. Defaults to ".ktx2".
	TargetExtension string
	Logger          *slog.Logger
}

// Scan walks root and returns the texture inventory. A missing root is an
// error; a root without manifests yields an empty inventory.
func (s Scanner) Scan(ctx context.Context, root string) (*Inventory, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve asset root: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("stat asset root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("asset root %s is not a directory", abs)
	}

	excludes, err := compileExcludes(s.Exclude)
	if err != nil {
		return nil, err
	}
	logger := s.Logger
	if logger == nil {
		logger = logging.NewNop()
	}

	manifests, err := s.findManifests(ctx, abs, excludes)
	if err != nil {
		return nil, err
	}

	inv := &Inventory{Root: abs}
	sources := make(map[string]*Source)
	for _, manifestPath := range manifests {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		entry := Manifest{Path: manifestPath}
		doc, err := gltf.Load(manifestPath)
		if err != nil {
			entry.Err = err
			inv.Manifests = append(inv.Manifests, entry)
			logger.Warn("manifest unreadable; skipping",
				logging.String(logging.FieldManifest, manifestPath),
				logging.Error(err),
			)
			continue
		}
		images := doc.Images()
		entry.Images = len(images)
		inv.Manifests = append(inv.Manifests, entry)

		for _, img := range images {
			ref := Reference{
				Manifest:   manifestPath,
				ImageIndex: img.Index,
				URI:        img.URI,
				Name:       img.Name,
				MimeType:   img.MimeType,
			}
			texturePath, reason := s.resolve(abs, manifestPath, img)
			if reason != "" {
				inv.Skipped = append(inv.Skipped, Skipped{Reference: ref, Reason: reason})
				continue
			}
			src, ok := sources[texturePath]
			if !ok {
				src = &Source{Path: texturePath}
				sources[texturePath] = src
			}
			src.Consumers = append(src.Consumers, ref)
		}
	}

	inv.Sources = make([]Source, 0, len(sources))
	for _, src := range sources {
		src.Status, src.Detail, src.Size = inspectSource(src.Path)
		inv.Sources = append(inv.Sources, *src)
	}
	slices.SortFunc(inv.Sources, func(a, b Source) int { return strings.Compare(a.Path, b.Path) })

	logger.Debug("asset scan complete",
		logging.Int("manifests", len(inv.Manifests)),
		logging.Int("sources", len(inv.Sources)),
		logging.Int("skipped", len(inv.Skipped)),
	)
	return inv, nil
}

func (s Scanner) findManifests(ctx context.Context, root string, excludes []glob.Glob) ([]string, error) {
	var manifests []string
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if p == root {
				return err
			}
			// Unreadable subtrees do not abort the scan.
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if p == root {
			return nil
		}
		rel, relErr := filepath.Rel(root, p)
		if relErr != nil {
			return relErr
		}
		if matchesAny(excludes, filepath.ToSlash(rel)) {
			if d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}
		if hasExtension(p, s.ManifestExtensions) {
			manifests = append(manifests, p)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk asset root: %w", err)
	}
	slices.Sort(manifests)
	return manifests, nil
}

func (s Scanner) resolve(root, manifestPath string, img gltf.Image) (string, SkipReason) {
	switch {
	case img.URI == "":
		return "", SkipEmbedded
	case gltf.IsDataURI(img.URI):
		return "", SkipEmbedded
	case gltf.IsExternalURI(img.URI):
		return "", SkipExternal
	}
	decoded, err := gltf.DecodeURI(img.URI)
	if err != nil {
		return "", SkipInvalidURI
	}
	ext := strings.ToLower(path.Ext(decoded))
	target := s.TargetExtension
	if target == "" {
		target = ".ktx2"
	}
	if ext == strings.ToLower(target) || img.MimeType == gltf.MimeTypeKTX2 {
		return "", SkipAlreadyConverted
	}
	if !slices.Contains(normalizeExts(s.SourceExtensions), ext) {
		return "", SkipUnsupported
	}
	resolved := filepath.Clean(filepath.Join(filepath.Dir(manifestPath), filepath.FromSlash(decoded)))
	rel, err := filepath.Rel(root, resolved)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", SkipOutsideRoot
	}
	return resolved, ""
}

func inspectSource(p string) (Status, string, int64) {
	info, err := os.Stat(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return StatusMissing, "file not found", 0
		}
		return StatusMissing, err.Error(), 0
	}
	if !info.Mode().IsRegular() {
		return StatusNotImage, "not a regular file", info.Size()
	}
	kind, err := sniff(p)
	if err != nil {
		return StatusMissing, err.Error(), info.Size()
	}
	if kind.MIME.Type != "image" {
		detail := "unrecognised content"
		if kind != filetype.Unknown {
			detail = "content is " + kind.MIME.Value
		}
		return StatusNotImage, detail, info.Size()
	}
	return StatusReady, "", info.Size()
}

func sniff(p string) (types.Type, error) {
	f, err := os.Open(p)
	if err != nil {
		return filetype.Unknown, err
	}
	defer f.Close()
	head := make([]byte, sniffLen)
	n, err := io.ReadFull(f, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return filetype.Unknown, err
	}
	kind, err := filetype.Match(head[:n])
	if err != nil {
		// Empty files match nothing.
		return filetype.Unknown, nil
	}
	return kind, nil
}

func compileExcludes(patterns []string) ([]glob.Glob, error) {
	out := make([]glob.Glob, 0, len(patterns))
	for _, pattern := range patterns {
		pattern = strings.TrimSpace(pattern)
		if pattern == "" {
			continue
		}
		g, err := glob.Compile(pattern, '/')
		if err != nil {
			return nil, fmt.Errorf("compile exclude pattern %q: %w", pattern, err)
		}
		out = append(out, g)
	}
	return out, nil
}

func matchesAny(globs []glob.Glob, rel string) bool {
	for _, g := range globs {
		if g.Match(rel) {
			return true
		}
	}
	return false
}

func hasExtension(p string, exts []string) bool {
	return slices.Contains(normalizeExts(exts), strings.ToLower(filepath.Ext(p)))
}

func normalizeExts(exts []string) []string {
	out := make([]string, 0, len(exts))
	for _, ext := range exts {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		out = append(out, ext)
	}
	return out
}
