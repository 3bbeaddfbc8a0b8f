// Package apperrors defines the pipeline's error taxonomy. Every error carries
// a stable Code so callers (HTTP handlers, the queue worker, the ledger) can
// classify failures with errors.As without string matching.
package apperrors

import (
	"errors"
	"fmt"
)

// Code categorizes an application error.
type Code string

const (
	// CodeTransientProvider marks auth hiccups, rate limits and timeouts talking to the provider.
	CodeTransientProvider Code = "transient_provider"
	// CodeTaskFailure marks a provider task that reported status=error.
	CodeTaskFailure Code = "task_failure"
	// CodeManifestParse marks a manifest filename that does not encode area and timestamp.
	CodeManifestParse Code = "manifest_parse"
	// CodeSceneProcessing marks download, decode or filter failures for one scene.
	CodeSceneProcessing Code = "scene_processing"
	// CodeConflict marks a duplicate active reprocess request.
	CodeConflict Code = "conflict"
	// CodeStaleReprocess marks a reprocess request past the provider retention window.
	CodeStaleReprocess Code = "stale_reprocess"
	// CodeNotFound marks a missing request, task or scene.
	CodeNotFound Code = "not_found"
	// CodeValidation marks invalid caller input.
	CodeValidation Code = "validation"
)

// Error is a classified error with an optional cause.
type Error struct {
	Code    Code
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

func newf(code Code, cause error, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// TransientProvider wraps a retryable provider failure.
func TransientProvider(cause error, format string, args ...any) *Error {
	return newf(CodeTransientProvider, cause, format, args...)
}

// TaskFailure reports a provider task that ended in error.
func TaskFailure(taskID, status string) *Error {
	return newf(CodeTaskFailure, nil, "provider task %s reported status %q", taskID, status)
}

// ManifestParse reports an unparseable manifest filename.
func ManifestParse(filename string) *Error {
	return newf(CodeManifestParse, nil, "manifest filename %q does not encode area id and acquisition timestamp", filename)
}

// SceneProcessing wraps a failure scoped to one scene.
func SceneProcessing(sceneID string, cause error) *Error {
	return newf(CodeSceneProcessing, cause, "scene %s", sceneID)
}

// Conflict reports a duplicate active reprocess request.
func Conflict(format string, args ...any) *Error {
	return newf(CodeConflict, nil, format, args...)
}

// StaleReprocess reports a reprocess request past the retention window.
func StaleReprocess(format string, args ...any) *Error {
	return newf(CodeStaleReprocess, nil, format, args...)
}

// NotFound reports a missing entity.
func NotFound(format string, args ...any) *Error {
	return newf(CodeNotFound, nil, format, args...)
}

// Validation reports invalid input.
func Validation(format string, args ...any) *Error {
	return newf(CodeValidation, nil, format, args...)
}

// CodeOf returns the Code of the first classified error in err's chain, or "".
func CodeOf(err error) Code {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ""
}

// Is reports whether err carries the given code anywhere in its chain.
func Is(err error, code Code) bool {
	for err != nil {
		var appErr *Error
		if !errors.As(err, &appErr) {
			return false
		}
		if appErr.Code == code {
			return true
		}
		err = appErr.Cause
	}
	return false
}

// IsTransient reports whether err is worth retrying at the call site.
func IsTransient(err error) bool {
	return Is(err, CodeTransientProvider)
}

// Permanent reports whether redelivering the work that produced err cannot
// succeed.
func Permanent(err error) bool {
	switch CodeOf(err) {
	case CodeValidation, CodeNotFound, CodeConflict, CodeStaleReprocess, CodeManifestParse, CodeTaskFailure:
		return true
	}
	return false
}
