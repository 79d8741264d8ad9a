package capture

import "errors"

// Kind classifies a capture failure. Its string form prefixes the failure
// message shown to the user.
type Kind string

const (
	KindCamera          Kind = "CameraError"
	KindMissingMetadata Kind = "MissingMetadata"
	KindMetadata        Kind = "MetadataError"
	KindFilesystem      Kind = "FilesystemError"
)

// Error is the single error type a capture attempt can fail with.
type Error struct {
	Kind Kind
	Op   string // step that failed, e.g. "save picture"
	Err  error
}

func (e *Error) Error() string {
	detail := e.Op
	if e.Err != nil {
		if detail != "" {
			detail += ": "
		}
		detail += e.Err.Error()
	}
	return string(e.Kind) + ": " + detail
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the Kind of err, or "" when err is not a capture error.
func KindOf(err error) Kind {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return ""
}

func wrap(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}
