package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors, one per kind, so callers can use errors.Is.
var (
	ErrEmptyInput         = errors.New("no slice paths provided")
	ErrSliceProcessing    = errors.New("slice processing failed")
	ErrNoSlicesProcessed  = errors.New("no slices were successfully processed")
	ErrInsufficientSlices = errors.New("too few slices survived preprocessing")
	ErrPreviewGeneration  = errors.New("preview generation failed")
	ErrInvalidInput       = errors.New("invalid input")
	ErrStorage            = errors.New("storage error")
	ErrNotFound           = errors.New("not found")
)

// ErrorKind is a coarse-grained categorization for errors.
type ErrorKind string

const (
	KindEmptyInput         ErrorKind = "empty_input"
	KindSliceProcessing    ErrorKind = "slice_processing"
	KindNoSlicesProcessed  ErrorKind = "no_slices_processed"
	KindInsufficientSlices ErrorKind = "insufficient_slices"
	KindPreviewGeneration  ErrorKind = "preview_generation"
	KindInvalidInput       ErrorKind = "invalid_input"
	KindStorage            ErrorKind = "storage"
	KindNotFound           ErrorKind = "not_found"
)

var kindSentinels = map[ErrorKind]error{
	KindEmptyInput:         ErrEmptyInput,
	KindSliceProcessing:    ErrSliceProcessing,
	KindNoSlicesProcessed:  ErrNoSlicesProcessed,
	KindInsufficientSlices: ErrInsufficientSlices,
	KindPreviewGeneration:  ErrPreviewGeneration,
	KindInvalidInput:       ErrInvalidInput,
	KindStorage:            ErrStorage,
	KindNotFound:           ErrNotFound,
}

// OpError wraps an underlying error with operation context and a kind.
type OpError struct {
	Op   string
	Kind ErrorKind
	Path string // Optional: relevant file path
	Err  error
}

func (e *OpError) Error() string {
	if e == nil {
		return "<nil>"
	}

	base := fmt.Sprintf("%s: %s", e.Op, e.Kind)
	if e.Path != "" {
		base += fmt.Sprintf(" (path=%s)", e.Path)
	}
	if e.Err != nil {
		base += fmt.Sprintf(": %v", e.Err)
	}
	return base
}

func (e *OpError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is matches the sentinel of the error's kind.
func (e *OpError) Is(target error) bool {
	if e == nil {
		return false
	}
	sentinel, ok := kindSentinels[e.Kind]
	return ok && sentinel == target
}

// NewError builds an OpError.
func NewError(op string, kind ErrorKind, path string, err error) *OpError {
	return &OpError{Op: op, Kind: kind, Path: path, Err: err}
}

// IsKind helps callers classify errors without depending on infra packages.
func IsKind(err error, kind ErrorKind) bool {
	var oe *OpError
	if errors.As(err, &oe) {
		return oe.Kind == kind
	}
	return false
}

// KindOf returns the kind of the outermost OpError, or "" if there is none.
func KindOf(err error) ErrorKind {
	var oe *OpError
	if errors.As(err, &oe) {
		return oe.Kind
	}
	return ""
}

// Message renders err for API clients: the descriptions of the nested
// error kinds, without operation names or local paths. Causes that are not
// an OpError carry raw I/O detail and are left to the logs.
func Message(err error) string {
	var oe *OpError
	if !errors.As(err, &oe) {
		return err.Error()
	}
	msg := string(oe.Kind)
	if sentinel, ok := kindSentinels[oe.Kind]; ok {
		msg = sentinel.Error()
	}
	var inner *OpError
	if oe.Err != nil && errors.As(oe.Err, &inner) {
		msg += ": " + Message(inner)
	}
	return msg
}
