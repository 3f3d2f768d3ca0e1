// Package progress tracks the last fully processed usage report.
//
// The marker is the pipeline's only crash-recovery state: it is advanced
// after a report's cost file has been written and never before, so an
// interrupted run resumes from the last committed report.
package progress

import (
	"context"
	"path"
	"time"
)

// Tracker persists the progress marker.
type Tracker interface {
	// Load returns the last processed report id, or "" if none.
	Load(ctx context.Context) (string, error)

	// Advance durably replaces the marker with id.
	Advance(ctx context.Context, id string) error
}

// SkipReason explains why a listed report is not processed.
type SkipReason string

const (
	// NotSkipped means the report is new work
	NotSkipped SkipReason = ""

	// SkipAlreadyProcessed means the report is the one the marker points at
	SkipAlreadyProcessed SkipReason = "already_processed"

	// SkipTooOld means the report was created on or before the cutoff
	SkipTooOld SkipReason = "too_old"
)

// Filter decides whether a listed report is new work.
type Filter struct {
	// Marker is the last processed report id
	Marker string

	// Cutoff excludes reports created at or before it. Zero disables the check.
	Cutoff time.Time
}

// ReportID returns the report id for an object name: its last path element.
func ReportID(objectName string) string {
	return path.Base(objectName)
}

// Decide returns NotSkipped when the object should be processed.
func (f Filter) Decide(objectName string, createdAt time.Time) SkipReason {
	if f.Marker != "" && ReportID(objectName) == f.Marker {
		return SkipAlreadyProcessed
	}
	if !f.Cutoff.IsZero() && !createdAt.After(f.Cutoff) {
		return SkipTooOld
	}
	return NotSkipped
}
