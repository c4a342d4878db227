// Package ffmpeg drives the ffmpeg binary for the pieces of the pipeline that
// need it: audio extraction and remuxing, raw RGBA frame decoding and
// encoding over pipes, and version detection.
package ffmpeg
