// Package ffmpeg invokes the ffmpeg binary with the two fixed profiles the
// pipeline needs: extracting a mono 16kHz PCM WAV track for transcription and
// grabbing a single scaled frame as a thumbnail. Diagnostic output from
// failed invocations is captured into the returned error.
package ffmpeg
