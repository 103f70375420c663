// ABOUTME: Audio fundamentals package providing core types and utilities
// ABOUTME: Defines Format and float/integer sample conversions
// Package audio provides the sample helpers shared by the scene source and the outputs.
//
// Samples are carried as float32 in [-1, 1). Decoders convert integer PCM with
// SampleToFloat and outputs convert back with FloatToInt16 or FloatToInt.
//
// Example:
//
//	f := audio.SampleToFloat(-16384, 16) // -0.5
//	s := audio.FloatToInt16(f)           // -16384
package audio
