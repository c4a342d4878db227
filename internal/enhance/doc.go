// Package enhance upscales videos frame by frame.
//
// Frames are decoded through ffmpeg, scaled by an Upscaler and re-encoded,
// then audio from the source is remuxed. The resize upscaler runs in-process;
// the command upscaler shells out to a Real-ESRGAN style binary per frame and
// falls back to resize for any frame the binary fails on.
//
// When face restoration is enabled, each upscaled frame also goes through a
// CodeFormer style binary. Frames it fails on keep the upscaled image.
package enhance
