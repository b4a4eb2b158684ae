package queue

import (
	"strings"
	"time"
)

// Status represents the lifecycle of a transcription run.
type Status string

const (
	StatusPending      Status = "pending"
	StatusResolving    Status = "resolving"
	StatusResolved     Status = "resolved"
	StatusFetching     Status = "fetching"
	StatusFetched      Status = "fetched"
	StatusTranscoding  Status = "transcoding"
	StatusTranscoded   Status = "transcoded"
	StatusTranscribing Status = "transcribing"
	StatusTranscribed  Status = "transcribed"
	StatusEmitting     Status = "emitting"
	StatusCompleted    Status = "completed"
	StatusFailed       Status = "failed"
)

// InterruptedReason is the error message set when in-flight runs are failed
// because processing was stopped.
const InterruptedReason = "Processing interrupted"

var allStatuses = []Status{
	StatusPending,
	StatusResolving,
	StatusResolved,
	StatusFetching,
	StatusFetched,
	StatusTranscoding,
	StatusTranscoded,
	StatusTranscribing,
	StatusTranscribed,
	StatusEmitting,
	StatusCompleted,
	StatusFailed,
}

var statusSet = func() map[Status]struct{} {
	set := make(map[Status]struct{}, len(allStatuses))
	for _, status := range allStatuses {
		set[status] = struct{}{}
	}
	return set
}()

var processingStatuses = map[Status]struct{}{
	StatusResolving:    {},
	StatusFetching:     {},
	StatusTranscoding:  {},
	StatusTranscribing: {},
	StatusEmitting:     {},
}

type statusTransition struct {
	from Status
	to   Status
}

// stageRollbackTransitions map each in-flight status back to the completed
// status that precedes it, so interrupted runs restart their current stage
// instead of the whole pipeline.
var stageRollbackTransitions = []statusTransition{
	{from: StatusResolving, to: StatusPending},
	{from: StatusFetching, to: StatusResolved},
	{from: StatusTranscoding, to: StatusFetched},
	{from: StatusTranscribing, to: StatusTranscoded},
	{from: StatusEmitting, to: StatusTranscribed},
}

func processingRollbackTransitions() []statusTransition {
	return stageRollbackTransitions
}

// DatabaseHealth captures diagnostic information about the queue database.
type DatabaseHealth struct {
	DBPath           string
	DatabaseExists   bool
	DatabaseReadable bool
	SchemaVersion    string
	TableExists      bool
	ColumnsPresent   []string
	MissingColumns   []string
	IntegrityCheck   bool
	TotalRuns        int
	Error            string
}

// HealthSummary describes aggregated run counts per key lifecycle states.
type HealthSummary struct {
	Total      int
	Pending    int
	Processing int
	Failed     int
	Completed  int
}

// Run represents a transcription run persisted in SQLite. Artifact path
// fields fill in as stages complete: MediaFile after fetching, AudioFile
// after transcoding, TranscriptFile after transcribing, and FinalFile once
// the transcript has been emitted to its configured destination.
type Run struct {
	ID              int64
	SourceURL       string
	NormalizedURL   string
	Title           string
	Status          Status
	MediaURL        string
	MediaFilename   string
	WorkspacePath   string
	MediaFile       string
	AudioFile       string
	TranscriptFile  string
	FinalFile       string
	ThumbnailFile   string
	ErrorMessage    string
	CreatedAt       time.Time
	UpdatedAt       time.Time
	ProgressStage   string
	ProgressPercent float64
	ProgressMessage string
	LastHeartbeat   *time.Time
}

// AllStatuses returns the ordered list of known statuses.
func AllStatuses() []Status {
	cp := make([]Status, len(allStatuses))
	copy(cp, allStatuses)
	return cp
}

// ParseStatus converts a string into a known Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := statusSet[normalized]
	return normalized, ok
}

// IsProcessing returns true when the status reflects an in-flight operation.
func (r Run) IsProcessing() bool {
	_, ok := processingStatuses[r.Status]
	return ok
}

// IsProcessingStatus reports whether a status reflects an in-flight operation.
func IsProcessingStatus(status Status) bool {
	_, ok := processingStatuses[status]
	return ok
}

// IsTerminal reports whether a status is one of the two terminal states.
func IsTerminal(status Status) bool {
	return status == StatusCompleted || status == StatusFailed
}

// InitProgress resets progress fields for a new stage.
// If ProgressStage is currently empty, it is set to the provided stage value;
// otherwise the existing stage is preserved (to support resume scenarios).
// ProgressMessage is set to message, ProgressPercent is reset to 0, and
// ErrorMessage is cleared.
func (r *Run) InitProgress(stage, message string) {
	if r.ProgressStage == "" {
		r.ProgressStage = stage
	}
	r.ProgressMessage = message
	r.ProgressPercent = 0
	r.ErrorMessage = ""
}

// SetProgress updates all three progress fields atomically.
// Use this instead of setting ProgressStage, ProgressPercent, and ProgressMessage individually.
func (r *Run) SetProgress(stage, message string, percent float64) {
	r.ProgressStage = stage
	r.ProgressMessage = message
	r.ProgressPercent = percent
}

// SetProgressComplete sets progress to 100% with the given stage and message.
// Convenience method for stage completion.
func (r *Run) SetProgressComplete(stage, message string) {
	r.SetProgress(stage, message, 100)
}

// SetFailed marks the run as failed with the given error message.
// Clears heartbeat and sets progress fields appropriately.
func (r *Run) SetFailed(message string) {
	r.Status = StatusFailed
	r.ErrorMessage = message
	r.ProgressPercent = 0
	r.ProgressMessage = message
	r.LastHeartbeat = nil
	r.ProgressStage = "Failed"
}

// DisplayTitle returns the run title, falling back to the source URL when no
// title has been derived yet.
func (r Run) DisplayTitle() string {
	if title := strings.TrimSpace(r.Title); title != "" {
		return title
	}
	return r.SourceURL
}
