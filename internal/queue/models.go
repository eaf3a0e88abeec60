package queue

import (
	"strings"
	"time"
)

// Status represents the lifecycle of a queue item.
type Status string

const (
	StatusPending    Status = "pending"
	StatusOptimizing Status = "optimizing"
	StatusOptimized  Status = "optimized"
	StatusDeriving   Status = "deriving"
	StatusDerived    Status = "derived"
	StatusPublishing Status = "publishing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

var allStatuses = []Status{
	StatusPending,
	StatusOptimizing,
	StatusOptimized,
	StatusDeriving,
	StatusDerived,
	StatusPublishing,
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
	StatusOptimizing: {},
	StatusDeriving:   {},
	StatusPublishing: {},
}

// RollbackStatus maps an in-flight status to the stable status preceding it,
// so a crashed run resumes at the start of the stage it died in rather than
// repeating completed work.
func RollbackStatus(status Status) (Status, bool) {
	switch status {
	case StatusOptimizing:
		return StatusPending, true
	case StatusDeriving:
		return StatusOptimized, true
	case StatusPublishing:
		return StatusDerived, true
	default:
		return status, false
	}
}

// HealthSummary describes aggregated queue counts per key lifecycle states.
type HealthSummary struct {
	Total      int
	Pending    int
	Processing int
	Failed     int
	Completed  int
}

// SavingsRow aggregates byte accounting for completed items of one format.
type SavingsRow struct {
	Format         string
	Files          int
	OriginalBytes  int64
	OptimizedBytes int64
}

// SavedBytes returns the total bytes removed for this format.
func (r SavingsRow) SavedBytes() int64 {
	return r.OriginalBytes - r.OptimizedBytes
}

// SavedPercent returns the savings as a percentage of the original bytes.
func (r SavingsRow) SavedPercent() float64 {
	if r.OriginalBytes == 0 {
		return 0
	}
	return float64(r.SavedBytes()) / float64(r.OriginalBytes) * 100
}

// Item represents a queue item persisted in SQLite.
type Item struct {
	ID              int64
	SourcePath      string
	Format          string
	Fingerprint     string
	Status          Status
	StagedPath      string
	OriginalBytes   int64
	OptimizedBytes  int64
	VariantsJSON    string
	PlaceholderJSON string
	ErrorMessage    string
	Attempts        int
	CreatedAt       time.Time
	UpdatedAt       time.Time
	ProgressStage   string
	ProgressPercent float64
	ProgressMessage string
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
func (i Item) IsProcessing() bool {
	return IsProcessingStatus(i.Status)
}

// IsProcessingStatus reports whether a status reflects an in-flight operation.
func IsProcessingStatus(status Status) bool {
	_, ok := processingStatuses[status]
	return ok
}

// IsTerminal reports whether the item has finished, successfully or not.
func (i Item) IsTerminal() bool {
	return i.Status == StatusCompleted || i.Status == StatusFailed
}

// SetProgress updates all three progress fields atomically.
func (i *Item) SetProgress(stage, message string, percent float64) {
	i.ProgressStage = stage
	i.ProgressMessage = message
	i.ProgressPercent = percent
}

// SetFailed marks the item as failed with the given error message.
func (i *Item) SetFailed(message string) {
	i.Status = StatusFailed
	i.ErrorMessage = message
	i.ProgressStage = "Failed"
	i.ProgressPercent = 0
	i.ProgressMessage = message
}
