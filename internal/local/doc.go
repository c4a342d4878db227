// Package local removes watermarks on this machine.
//
// Each decoded frame goes through a Detector, which returns watermark boxes.
// The boxes become a binary mask and an Inpainter fills the masked pixels.
// Frames with no boxes pass through untouched, and a frame that fails at any
// step is written unchanged so one bad frame never aborts the video.
//
// Detection is delegated to a YOLO sidecar over HTTP or taken from fixed
// regions in configuration. Inpainting runs in-process (diffusion fill) or on
// an IOPaint server.
package local
