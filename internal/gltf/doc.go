// Package gltf reads and patches the image table of glTF 2.0 JSON manifests.
//
// Only the "images" array is interpreted; every other member of the document
// and of each image object is carried as raw JSON so a rewrite changes nothing
// but the fields it was asked to change.
package gltf
