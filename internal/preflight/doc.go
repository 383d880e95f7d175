// Package preflight provides readiness checks for the external compressor
// and filesystem paths that a conversion run depends on.
//
// These checks run in two contexts:
//   - The conversion runner resolves the compressor before scanning. If it
//     is missing, nothing is spawned and no manifest is touched.
//   - The CLI "sanmiguel doctor" command uses RunAll to display readiness.
package preflight
