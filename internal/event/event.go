package event

import "time"

// Type identifies the kind of event.
type Type int

const (
	ScanStarted Type = iota + 1
	ScanComplete
	FileStarted
	FileCompleted
	FileFailed
	FileSkipped
	RestoreStarted
	DirCreated
	VerifyFailed
)

var typeNames = [...]string{
	ScanStarted:    "ScanStarted",
	ScanComplete:   "ScanComplete",
	FileStarted:    "FileStarted",
	FileCompleted:  "FileCompleted",
	FileFailed:     "FileFailed",
	FileSkipped:    "FileSkipped",
	RestoreStarted: "RestoreStarted",
	DirCreated:     "DirCreated",
	VerifyFailed:   "VerifyFailed",
}

func (t Type) String() string {
	if t > 0 && int(t) < len(typeNames) {
		return typeNames[t]
	}
	return "Unknown"
}

// Event represents a single progress event from the engine. During a
// combine the File* events track source files being packed into the
// archive; during a split they track files being written back out.
type Event struct {
	Type      Type
	Timestamp time.Time
	Path      string // archive-relative path
	Size      int64  // file size in bytes
	Total     int64  // total files (ScanComplete, RestoreStarted)
	TotalSize int64  // total bytes (ScanComplete, RestoreStarted)
	Reason    string // why a file was skipped (FileSkipped)
	Error     error
}
