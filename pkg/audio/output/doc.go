// ABOUTME: Audio output package for playing rendered audio
// ABOUTME: Provides the Output interface, an oto device and a WAV bounce writer
// Package output drives a render callback from an audio device or a file.
//
// The device output is pull based: oto asks for bytes, the output calls the render
// function for that many frames and encodes the result. The WAV writer pulls the
// same callback as fast as the disk allows, for offline bounces.
//
// Example:
//
//	out := output.NewOto(output.DefaultBufferFrames)
//	err := out.Open(48000, 2, renderer.Process)
//	defer out.Close()
package output
