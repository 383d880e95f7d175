// Package scan walks an asset root for glTF manifests and builds the
// inventory of distinct source textures they reference.
//
// The scanner never writes. Each distinct texture path appears once in the
// inventory no matter how many manifests or images point at it, together
// with every consuming reference so the rewriter can update them as a group.
package scan
