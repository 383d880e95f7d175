// Package services defines shared utilities consumed by the conversion
// pipeline and its external tool integrations.
//
// Key responsibilities:
//   - Context helpers that stamp run identifiers and stage names for logging.
//   - Structured error markers plus the Wrap helper that separate fatal
//     precondition failures from per-texture tool failures.
//
// Tool wrappers live in subpackages (see services/kram) so the dispatcher can
// stay ignorant of any particular executable's argument syntax.
package services
