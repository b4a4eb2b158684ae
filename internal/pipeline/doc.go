// Package pipeline advances runs through the transcription stages.
//
// The Pipeline executes one run end to end: resolve the source URL into a
// direct media URL, fetch the media, transcode it to mono 16 kHz PCM audio,
// transcribe the audio, and emit the transcript to the configured
// destination. Execution resumes from whatever stage a run last completed,
// so a run recovered mid-pipeline repeats only its interrupted stage.
//
// The Processor layers queue draining on top: it rolls orphaned runs back
// to their last completed stage on startup, feeds startable runs into the
// pipeline one at a time, and in watch mode keeps polling for new
// submissions, reclaiming runs whose heartbeat has gone stale. Queue-level
// notifications fire when a drain pass starts and when the queue empties.
package pipeline
