// Package dispatch runs texture conversion jobs on a bounded worker pool.
//
// Every job moves through Pending → Running → {Succeeded, Failed}; an
// optional retry policy adds Failed → Retrying → Running. A failed job never
// cancels its siblings, and Run returns only once every job has reached a
// terminal state, so callers can rewrite manifests from a complete result set.
//
// The external compressor is reached through the Compressor capability
// interface; see services/kram for the production implementation.
package dispatch
