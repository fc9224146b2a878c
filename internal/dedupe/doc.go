// Package dedupe tracks recently claimed keys so that a repeated request can
// be recognized and dropped within a configurable window.
package dedupe
