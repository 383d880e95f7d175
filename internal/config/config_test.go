package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pelletier/go-toml/v2"

	"sanmiguel/internal/config"
)

func TestLoadDefaultConfigExpandsPaths(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Setenv("SANMIGUEL_ASSET_ROOT", "")

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved == "" {
		t.Fatal("expected resolved path")
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}

	wantLogDir := filepath.Join(tempHome, ".local", "share", "sanmiguel", "logs")
	if cfg.Paths.LogDir != wantLogDir {
		t.Fatalf("unexpected log dir: got %q want %q", cfg.Paths.LogDir, wantLogDir)
	}
	if !filepath.IsAbs(cfg.Paths.AssetRoot) {
		t.Fatalf("expected absolute asset root, got %q", cfg.Paths.AssetRoot)
	}
	if filepath.Base(cfg.Paths.AssetRoot) != "assets" {
		t.Fatalf("unexpected asset root: %q", cfg.Paths.AssetRoot)
	}
	if cfg.Paths.OutputDir != "" {
		t.Fatalf("expected empty output dir by default, got %q", cfg.Paths.OutputDir)
	}
	if cfg.Convert.Workers != 0 {
		t.Fatalf("expected auto workers by default, got %d", cfg.Convert.Workers)
	}
	if cfg.Convert.RetryAttempts != 0 {
		t.Fatalf("expected no retries by default, got %d", cfg.Convert.RetryAttempts)
	}
	if got := cfg.JobTimeoutDuration(); got != 10*time.Minute {
		t.Fatalf("unexpected job timeout: %s", got)
	}
	if !cfg.History.Enabled {
		t.Fatal("expected history enabled by default")
	}
	if cfg.History.Path != filepath.Join(tempHome, ".local", "share", "sanmiguel", "history.db") {
		t.Fatalf("unexpected history path: %q", cfg.History.Path)
	}
	if strings.Join(cfg.Scan.ManifestExtensions, ",") != ".gltf" {
		t.Fatalf("unexpected manifest extensions: %v", cfg.Scan.ManifestExtensions)
	}
	if strings.Join(cfg.Scan.SourceExtensions, ",") != ".jpeg,.jpg,.png" {
		t.Fatalf("unexpected source extensions: %v", cfg.Scan.SourceExtensions)
	}
}

func TestLoadAssetRootFromEnvironment(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	root := t.TempDir()
	t.Setenv("SANMIGUEL_ASSET_ROOT", root)

	cfg, _, _, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Paths.AssetRoot != root {
		t.Fatalf("expected asset root from env, got %q", cfg.Paths.AssetRoot)
	}
}

func TestLoadCustomConfigNormalizesValues(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Setenv("SANMIGUEL_ASSET_ROOT", "")

	configPath := filepath.Join(t.TempDir(), "config.toml")
	content := `
[paths]
asset_root = "~/scenes"
output_dir = "~/scenes-ktx2"

[scan]
source_extensions = ["PNG", "png", " tga "]
exclude = ["environment_maps/**", "  "]

[convert]
workers = 4
job_timeout = 0
retry_attempts = 2
retry_backoff_ms = 250

[logging]
format = "JSON"
level = "DEBUG"
`
	if err := os.WriteFile(configPath, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists || resolved != configPath {
		t.Fatalf("expected config file to be read from %q, got %q (exists=%v)", configPath, resolved, exists)
	}
	if cfg.Paths.AssetRoot != filepath.Join(tempHome, "scenes") {
		t.Fatalf("unexpected asset root: %q", cfg.Paths.AssetRoot)
	}
	if cfg.Paths.OutputDir != filepath.Join(tempHome, "scenes-ktx2") {
		t.Fatalf("unexpected output dir: %q", cfg.Paths.OutputDir)
	}
	if strings.Join(cfg.Scan.SourceExtensions, ",") != ".png,.tga" {
		t.Fatalf("unexpected source extensions: %v", cfg.Scan.SourceExtensions)
	}
	if len(cfg.Scan.Exclude) != 1 || cfg.Scan.Exclude[0] != "environment_maps/**" {
		t.Fatalf("unexpected exclude patterns: %v", cfg.Scan.Exclude)
	}
	if cfg.Convert.Workers != 4 {
		t.Fatalf("unexpected workers: %d", cfg.Convert.Workers)
	}
	if cfg.JobTimeoutDuration() != 0 {
		t.Fatalf("expected unbounded job timeout, got %s", cfg.JobTimeoutDuration())
	}
	if cfg.RetryBackoff() != 250*time.Millisecond {
		t.Fatalf("unexpected retry backoff: %s", cfg.RetryBackoff())
	}
	if cfg.Logging.Format != "json" || cfg.Logging.Level != "debug" {
		t.Fatalf("unexpected logging config: %+v", cfg.Logging)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("SANMIGUEL_ASSET_ROOT", "")

	cases := map[string]string{
		"negative workers":     "[convert]\nworkers = -1\n",
		"retry without delay":  "[convert]\nretry_attempts = 1\nretry_backoff_ms = 0\n",
		"ktx2 as source":       "[scan]\nsource_extensions = [\"ktx2\"]\n",
		"bad exclude pattern":  "[scan]\nexclude = [\"[\"]\n",
		"unknown log level":    "[logging]\nlevel = \"verbose\"\n",
		"unknown config field": "[convert]\nthreads = 2\n",
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.toml")
			if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
				t.Fatalf("write config: %v", err)
			}
			if _, _, _, err := config.Load(path); err == nil {
				t.Fatalf("expected error for %s", name)
			}
		})
	}
}

func TestSampleConfigParsesAndLoads(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("SANMIGUEL_ASSET_ROOT", "")

	target := filepath.Join(t.TempDir(), "nested", "config.toml")
	if err := config.CreateSample(target); err != nil {
		t.Fatalf("CreateSample returned error: %v", err)
	}
	data, err := os.ReadFile(target)
	if err != nil {
		t.Fatalf("read sample: %v", err)
	}
	var decoded config.Config
	if err := toml.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("sample config is not valid TOML: %v", err)
	}
	if _, _, exists, err := config.Load(target); err != nil || !exists {
		t.Fatalf("Load(sample) = exists %v, err %v", exists, err)
	}
}

func TestEnsureDirectoriesCreatesLogAndHistoryDirs(t *testing.T) {
	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.History.Path = filepath.Join(base, "state", "history.db")

	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories returned error: %v", err)
	}
	for _, dir := range []string{cfg.Paths.LogDir, filepath.Dir(cfg.History.Path)} {
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			t.Fatalf("expected directory %s: %v", dir, err)
		}
	}
}
