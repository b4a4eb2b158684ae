// Package fetching streams resolved media URLs into run workspaces.
//
// The stage handler validates that resolving produced a direct media URL,
// attaches the run workspace, and downloads the media with bounded retries.
// Downloads land in a .partial file that is renamed into place only after the
// stream completes, so an interrupted transfer never leaves a truncated
// artifact behind for the transcoding stage to trip over.
//
// Transport failures are classified as transient so the retry policy and the
// queue's retry command can replay them; empty responses and filesystem
// failures are terminal.
package fetching
