// Package convert orchestrates a texture conversion run.
//
// A run resolves the compressor, takes an exclusive lock on the asset root,
// scans manifests, converts every distinct ready texture through a bounded
// worker pool, and only then rewrites the manifests. Precondition failures
// are returned as errors before any work starts; per-texture and
// per-manifest failures are collected in the Summary.
package convert
