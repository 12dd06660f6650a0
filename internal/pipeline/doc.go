// Package pipeline turns a validated configuration into a run: it resolves
// the input and work paths, opens or resumes the project in the work
// directory, wires ffmpeg, ffprobe and the host limits into the stages, runs
// them in order and reports the summary.
package pipeline
