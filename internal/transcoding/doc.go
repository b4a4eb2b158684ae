// Package transcoding converts fetched media into transcription-ready audio.
//
// The stage invokes ffmpeg with a fixed extraction profile (mono, 16 kHz,
// 16-bit PCM WAV) and records the audio artifact path on the run. It refuses
// to start unless the fetched media artifact exists and is non-empty, and it
// surfaces ffmpeg failures with the tool's captured output.
package transcoding
