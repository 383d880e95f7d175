package convert

import "errors"

var (
	// ErrToolNotFound indicates the compressor is not on the executable search path.
	ErrToolNotFound = errors.New("texture compressor not found")
	// ErrAssetRoot indicates the asset root is missing or inaccessible.
	ErrAssetRoot = errors.New("asset root unavailable")
	// ErrNoManifests indicates the asset root holds no scene manifests.
	ErrNoManifests = errors.New("no scene manifests found")
	// ErrLocked indicates another run holds the asset root lock.
	ErrLocked = errors.New("another conversion run is in progress")
)
