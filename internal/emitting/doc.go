// Package emitting publishes finished transcripts.
//
// The stage copies the transcript artifact into the configured transcripts
// directory under a slug derived from the run title, allocating numbered
// names on collision, and verifies the copy byte-for-byte. When thumbnail
// capture is enabled it also grabs a frame from the fetched media and places
// it next to the transcript; thumbnail problems are logged and tolerated,
// never failing the run. Printing the transcript to stdout is the CLI's job.
package emitting
