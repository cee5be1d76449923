package archive

import "fmt"

// WalkError reports a file or directory that could not be read during
// discovery. It is recoverable: the entry is skipped and the combine
// continues.
type WalkError struct {
	Path string
	Err  error
}

func (e *WalkError) Error() string { return fmt.Sprintf("walk %s: %v", e.Path, e.Err) }
func (e *WalkError) Unwrap() error { return e.Err }

// EncodeError reports a structural failure while producing an archive.
// It is fatal: the combine aborts and the partial output is removed.
type EncodeError struct {
	Path   string
	Reason string
	Err    error
}

func (e *EncodeError) Error() string {
	msg := "encode"
	if e.Path != "" {
		msg += " " + e.Path
	}
	msg += ": " + e.Reason
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *EncodeError) Unwrap() error { return e.Err }

// DecodeError reports a malformed or unsupported archive. It is fatal
// and raised before any file is written.
type DecodeError struct {
	Path   string // offending entry, when known
	Reason string
	Err    error
}

func (e *DecodeError) Error() string {
	msg := "decode"
	if e.Path != "" {
		msg += " " + e.Path
	}
	msg += ": " + e.Reason
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *DecodeError) Unwrap() error { return e.Err }

// SecurityError reports an archive entry whose path would escape the
// output root or otherwise violates the relative-path invariant. In
// strict mode it aborts the split; in lenient mode the entry is
// skipped.
type SecurityError struct {
	Path   string
	Reason string
}

func (e *SecurityError) Error() string {
	return fmt.Sprintf("unsafe path %q: %s", e.Path, e.Reason)
}

// SizeLimitError reports a file over the configured maximum. The file
// is skipped; the combine continues.
type SizeLimitError struct {
	Path  string
	Size  int64
	Limit int64
}

func (e *SizeLimitError) Error() string {
	return fmt.Sprintf("%s: size %d exceeds limit %d", e.Path, e.Size, e.Limit)
}

// CompressionError reports a corrupt or unusable compression container.
// It is fatal.
type CompressionError struct {
	Reason string
	Err    error
}

func (e *CompressionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("compression: %s: %v", e.Reason, e.Err)
	}
	return "compression: " + e.Reason
}

func (e *CompressionError) Unwrap() error { return e.Err }
