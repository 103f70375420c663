// ABOUTME: Scene-file metadata and sample source
// ABOUTME: Loads a JSON scene with PCM stems and serves blocks progressively
// Package source implements the metadata source and sample provider used by the
// player when no native ADM reader is linked in.
//
// A scene is a JSON file naming the audio stems and the renderable items with their
// metadata blocks. Stems may be WAV, MP3 or Ogg Vorbis files, or generated tones.
// Their channels are concatenated in order to form the scene's channel space, which
// item channel numbers index into.
//
// Items are released in discovery waves so that a player sees items appear while
// playback runs, the way a progressive file reader would deliver them:
//
//	{
//	  "sampleRate": 48000,
//	  "stems": [{"path": "vox.wav"}, {"tone": {"frequency": 220, "seconds": 30}}],
//	  "items": [{
//	    "id": 1, "name": "Vox", "type": "objects", "channels": [0],
//	    "programmes": ["AP_1001"],
//	    "blocks": [{"rtime": 0, "duration": 2, "azimuth": 30, "distance": 1, "gain": 1}]
//	  }]
//	}
//
// Example:
//
//	src, err := source.Open("scene.json")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer src.Close()
package source
