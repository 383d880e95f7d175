package scan_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"sanmiguel/internal/scan"
	"sanmiguel/internal/testsupport"
)

type image = testsupport.ManifestImage

func newScanner() scan.Scanner {
	return scan.Scanner{
		ManifestExtensions: []string{".gltf"},
		SourceExtensions:   []string{".png", ".jpg", ".jpeg"},
	}
}

func TestScanDeduplicatesWithinManifest(t *testing.T) {
	root := t.TempDir()
	testsupport.WritePNG(t, filepath.Join(root, "textures", "a.png"))
	testsupport.WritePNG(t, filepath.Join(root, "textures", "b.png"))
	manifest := filepath.Join(root, "san-miguel.gltf")
	testsupport.WriteManifest(t, manifest,
		image{URI: "textures/a.png"},
		image{URI: "textures/b.png"},
		image{URI: "textures/a.png", Name: "bark"},
	)

	inv, err := newScanner().Scan(context.Background(), root)
	if err != nil {
		t.Fatalf("Scan returned error: %v", err)
	}
	if len(inv.Manifests) != 1 || inv.Manifests[0].Images != 3 {
		t.Fatalf("unexpected manifests: %+v", inv.Manifests)
	}
	if len(inv.Sources) != 2 {
		t.Fatalf("expected 2 distinct sources, got %d", len(inv.Sources))
	}
	a := inv.Sources[0]
	if a.Path != filepath.Join(root, "textures", "a.png") || len(a.Consumers) != 2 {
		t.Fatalf("unexpected source a: %+v", a)
	}
	if a.Consumers[0].ImageIndex != 0 || a.Consumers[1].ImageIndex != 2 || a.Consumers[1].Name != "bark" {
		t.Fatalf("unexpected consumers for a: %+v", a.Consumers)
	}
	if !a.Ready() || a.Size == 0 {
		t.Fatalf("expected a to be ready with a size, got %+v", a)
	}
	if inv.References() != 3 {
		t.Fatalf("expected 3 references, got %d", inv.References())
	}
}

func TestScanDeduplicatesAcrossManifests(t *testing.T) {
	root := t.TempDir()
	testsupport.WritePNG(t, filepath.Join(root, "shared", "shared.png"))
	testsupport.WriteManifest(t, filepath.Join(root, "day", "scene.gltf"), image{URI: "../shared/shared.png"})
	testsupport.WriteManifest(t, filepath.Join(root, "night", "scene.gltf"), image{URI: "../shared/./shared.png"})

	inv, err := newScanner().Scan(context.Background(), root)
	if err != nil {
		t.Fatalf("Scan returned error: %v", err)
	}
	if len(inv.Manifests) != 2 {
		t.Fatalf("expected 2 manifests, got %d", len(inv.Manifests))
	}
	if len(inv.Sources) != 1 || len(inv.Sources[0].Consumers) != 2 {
		t.Fatalf("expected one shared source with two consumers, got %+v", inv.Sources)
	}
	if inv.Sources[0].Consumers[0].Manifest == inv.Sources[0].Consumers[1].Manifest {
		t.Fatalf("expected consumers from distinct manifests: %+v", inv.Sources[0].Consumers)
	}
}

func TestScanClassifiesSkippedReferences(t *testing.T) {
	root := t.TempDir()
	testsupport.WritePNG(t, filepath.Join(root, "ok.png"))
	testsupport.WriteManifest(t, filepath.Join(root, "scene.gltf"),
		image{URI: "ok.png"},
		image{URI: "data:image/png;base64,iVBORw0KGgo="},
		image{URI: "https://cdn.example.com/sky.png"},
		image{URI: "converted.ktx2", MimeType: "image/ktx2"},
		image{URI: "height.tga"},
		image{URI: "../outside.png"},
		image{},
	)

	inv, err := newScanner().Scan(context.Background(), root)
	if err != nil {
		t.Fatalf("Scan returned error: %v", err)
	}
	if len(inv.ReadySources()) != 1 {
		t.Fatalf("expected only ok.png to be ready, got %+v", inv.Sources)
	}
	want := map[scan.SkipReason]int{
		scan.SkipEmbedded:         2,
		scan.SkipExternal:         1,
		scan.SkipAlreadyConverted: 1,
		scan.SkipUnsupported:      1,
		scan.SkipOutsideRoot:      1,
	}
	for reason, count := range want {
		if got := inv.CountSkipped(reason); got != count {
			t.Fatalf("expected %d %s references, got %d", count, reason, got)
		}
	}
}

func TestScanMarksMissingAndNonImageSources(t *testing.T) {
	root := t.TempDir()
	testsupport.WriteFile(t, filepath.Join(root, "fake.png"), 128)
	testsupport.WriteManifest(t, filepath.Join(root, "scene.gltf"),
		image{URI: "gone.png"},
		image{URI: "fake.png"},
	)

	inv, err := newScanner().Scan(context.Background(), root)
	if err != nil {
		t.Fatalf("Scan returned error: %v", err)
	}
	statuses := map[string]scan.Status{}
	for _, src := range inv.Sources {
		statuses[filepath.Base(src.Path)] = src.Status
	}
	if statuses["gone.png"] != scan.StatusMissing {
		t.Fatalf("expected gone.png missing, got %q", statuses["gone.png"])
	}
	if statuses["fake.png"] != scan.StatusNotImage {
		t.Fatalf("expected fake.png not_image, got %q", statuses["fake.png"])
	}
	if len(inv.ReadySources()) != 0 {
		t.Fatalf("expected no ready sources, got %d", len(inv.ReadySources()))
	}
}

func TestScanDecodesPercentEncodedURIs(t *testing.T) {
	root := t.TempDir()
	testsupport.WritePNG(t, filepath.Join(root, "textures", "wood floor.png"))
	testsupport.WriteManifest(t, filepath.Join(root, "scene.gltf"), image{URI: "textures/wood%20floor.png"})

	inv, err := newScanner().Scan(context.Background(), root)
	if err != nil {
		t.Fatalf("Scan returned error: %v", err)
	}
	if len(inv.ReadySources()) != 1 {
		t.Fatalf("expected decoded uri to resolve, got %+v", inv.Sources)
	}
	if inv.Sources[0].Consumers[0].URI != "textures/wood%20floor.png" {
		t.Fatalf("expected original uri retained, got %q", inv.Sources[0].Consumers[0].URI)
	}
}

func TestScanHonoursExcludePatterns(t *testing.T) {
	root := t.TempDir()
	testsupport.WritePNG(t, filepath.Join(root, "a.png"))
	testsupport.WriteManifest(t, filepath.Join(root, "scene.gltf"), image{URI: "a.png"})
	testsupport.WriteManifest(t, filepath.Join(root, "backup", "old", "scene.gltf"), image{URI: "../../a.png"})
	testsupport.WriteManifest(t, filepath.Join(root, "scene.draft.gltf"), image{URI: "a.png"})

	scanner := newScanner()
	scanner.Exclude = []string{"backup", "*.draft.gltf"}
	inv, err := scanner.Scan(context.Background(), root)
	if err != nil {
		t.Fatalf("Scan returned error: %v", err)
	}
	if len(inv.Manifests) != 1 || filepath.Base(inv.Manifests[0].Path) != "scene.gltf" {
		t.Fatalf("expected only the top-level manifest, got %+v", inv.Manifests)
	}
}

func TestScanRecordsUnreadableManifests(t *testing.T) {
	root := t.TempDir()
	testsupport.WritePNG(t, filepath.Join(root, "a.png"))
	testsupport.WriteManifest(t, filepath.Join(root, "good.gltf"), image{URI: "a.png"})
	if err := os.WriteFile(filepath.Join(root, "broken.gltf"), []byte("{not json"), 0o644); err != nil {
		t.Fatalf("write broken manifest: %v", err)
	}

	inv, err := newScanner().Scan(context.Background(), root)
	if err != nil {
		t.Fatalf("Scan returned error: %v", err)
	}
	if len(inv.Manifests) != 2 {
		t.Fatalf("expected 2 manifests, got %d", len(inv.Manifests))
	}
	if inv.Manifests[0].Err == nil || inv.Manifests[1].Err != nil {
		t.Fatalf("expected only broken.gltf to carry an error: %+v", inv.Manifests)
	}
	if len(inv.ReadySources()) != 1 {
		t.Fatalf("expected good manifest still scanned, got %+v", inv.Sources)
	}
}

func TestScanEmptyAndMissingRoots(t *testing.T) {
	inv, err := newScanner().Scan(context.Background(), t.TempDir())
	if err != nil {
		t.Fatalf("Scan of empty root returned error: %v", err)
	}
	if !inv.Empty() {
		t.Fatalf("expected empty inventory, got %+v", inv)
	}

	if _, err := newScanner().Scan(context.Background(), filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Fatal("expected error for missing root")
	}

	file := filepath.Join(t.TempDir(), "file")
	testsupport.WriteFile(t, file, 1)
	if _, err := newScanner().Scan(context.Background(), file); err == nil {
		t.Fatal("expected error when root is a file")
	}
}

func TestScanDoesNotWrite(t *testing.T) {
	root := t.TempDir()
	testsupport.WritePNG(t, filepath.Join(root, "a.png"))
	original := testsupport.WriteManifest(t, filepath.Join(root, "scene.gltf"), image{URI: "a.png"})

	if _, err := newScanner().Scan(context.Background(), root); err != nil {
		t.Fatalf("Scan returned error: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(root, "scene.gltf"))
	if err != nil {
		t.Fatalf("read manifest: %v", err)
	}
	if string(data) != string(original) {
		t.Fatal("scan modified the manifest")
	}
	entries, _ := os.ReadDir(root)
	if len(entries) != 2 {
		t.Fatalf("expected scan to leave the tree untouched, found %d entries", len(entries))
	}
}
