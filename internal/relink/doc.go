// Package relink rewrites manifest image references to point at converted
// textures once every conversion outcome is known.
package relink
