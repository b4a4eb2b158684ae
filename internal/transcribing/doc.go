// Package transcribing runs speech recognition over the audio artifact.
//
// The stage drives a whisper.cpp-style binary with language auto-detection
// and timestamps disabled; the engine drops its plain-text transcript next
// to the input WAV. The handler records that path without re-reading it,
// since the stage runner's output guard catches engines that exit zero
// without producing a transcript.
package transcribing
