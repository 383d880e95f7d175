// Package main hosts the sanmiguel CLI entrypoint and command graph.
//
// Without flags the CLI inspects the asset root and reports what a
// conversion would do. --convert (or the convert subcommand) converts every
// referenced PNG/JPEG texture to BC7 KTX2 with kram and rewrites the glTF
// manifests to point at the results. Supporting commands list past runs,
// scaffold configuration, and check that kram and the asset root are ready.
//
// Keep this package lean: conversion logic lives in internal/convert and its
// collaborators; commands here resolve configuration and render results.
package main
