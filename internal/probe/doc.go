// Package probe inspects a source with ffprobe. A single JSON call yields
// the container and primary video stream; ClipInfo turns that into the
// frame count and frame rate every stage works from.
//
// Containers that do not store a frame count fall back to a packet count
// and, failing that, to duration times frame rate.
package probe
