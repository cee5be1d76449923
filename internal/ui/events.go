package ui

import "github.com/davidlu1001/file-combiner/internal/event"

// Event is aliased so presenter callers work with a single package.
type Event = event.Event

// Re-export event types for convenience.
const (
	ScanStarted    = event.ScanStarted
	ScanComplete   = event.ScanComplete
	FileStarted    = event.FileStarted
	FileCompleted  = event.FileCompleted
	FileFailed     = event.FileFailed
	FileSkipped    = event.FileSkipped
	RestoreStarted = event.RestoreStarted
	DirCreated     = event.DirCreated
	VerifyFailed   = event.VerifyFailed
)
