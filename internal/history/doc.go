// Package history persists conversion runs and their per-texture outcomes in
// a SQLite database so operators can review earlier runs.
//
// The schema is versioned; a database created by a different version is
// rejected with ErrSchemaMismatch rather than migrated.
package history
