package lifecycle

import "errors"

// Lifecycle errors.
var (
	// ErrManifestFetch is returned when a manifest entry could not be fetched.
	// The install is aborted and the previous version stays current.
	ErrManifestFetch = errors.New("manifest fetch failed")

	// ErrNotInstalled is returned when activating a version that has not
	// completed an install.
	ErrNotInstalled = errors.New("version not installed")

	// ErrActiveVersion is returned when installing over the active version.
	ErrActiveVersion = errors.New("version is active")

	// ErrInvalidManifest is returned for manifest entries that cannot be
	// resolved to absolute URLs.
	ErrInvalidManifest = errors.New("invalid manifest entry")
)
