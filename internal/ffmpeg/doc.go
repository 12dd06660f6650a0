// Package ffmpeg runs the external tools behind every stage: ffmpeg for
// decoding, encoding, metrics and scene scoring, and mkvmerge for joining
// scenes.
//
// Tools implements the worker and sequence collaborator interfaces on top
// of these binaries. Argument building lives in builder.go, process
// execution in executor.go, log parsing in parse.go and stderr
// classification in errors.go.
package ffmpeg
