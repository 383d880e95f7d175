package config

const (
	defaultAssetRoot        = "assets"
	defaultLogDir           = "~/.local/share/sanmiguel/logs"
	defaultHistoryPath      = "~/.local/share/sanmiguel/history.db"
	defaultHistoryEnabled   = true
	defaultJobTimeout       = 600
	defaultRetryAttempts    = 0
	defaultRetryBackoffMS   = 500
	defaultLogFormat        = "console"
	defaultLogLevel         = "info"
	defaultLogMaxSizeMB     = 50
	defaultLogMaxBackups    = 3
	defaultLogMaxAgeDays    = 7
	defaultManifestExt      = ".gltf"
	assetRootEnvironmentKey = "SANMIGUEL_ASSET_ROOT"
)

var defaultSourceExtensions = []string{".png", ".jpg", ".jpeg"}

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			AssetRoot: defaultAssetRoot,
			LogDir:    defaultLogDir,
		},
		Scan: Scan{
			ManifestExtensions: []string{defaultManifestExt},
			SourceExtensions:   append([]string(nil), defaultSourceExtensions...),
		},
		Convert: Convert{
			JobTimeout:     defaultJobTimeout,
			RetryAttempts:  defaultRetryAttempts,
			RetryBackoffMS: defaultRetryBackoffMS,
		},
		History: History{
			Enabled: defaultHistoryEnabled,
			Path:    defaultHistoryPath,
		},
		Logging: Logging{
			Format:     defaultLogFormat,
			Level:      defaultLogLevel,
			MaxSizeMB:  defaultLogMaxSizeMB,
			MaxBackups: defaultLogMaxBackups,
			MaxAgeDays: defaultLogMaxAgeDays,
		},
	}
}
