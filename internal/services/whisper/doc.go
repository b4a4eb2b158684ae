// Package whisper invokes a whisper.cpp-style speech-to-text binary over a
// prepared WAV file. The engine is driven with a fixed argument profile
// (model file, input file, language, no timestamps, plain-text output) and
// writes its transcript next to the input as <audio>.txt. Whether that file
// actually appeared is the caller's concern; the stage layer enforces it.
package whisper
