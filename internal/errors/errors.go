package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode represents stable error codes for all diagnostics
type ErrorCode string

const (
	// RootInvalid indicates the analysis root is missing or not a directory
	RootInvalid ErrorCode = "ROOT_INVALID"
	// ConfigNotFound indicates a config file (tsconfig, .cddrc.json) does not exist
	ConfigNotFound ErrorCode = "CONFIG_NOT_FOUND"
	// ConfigInvalid indicates a config file could not be read or parsed
	ConfigInvalid ErrorCode = "CONFIG_INVALID"
	// ConfigCycle indicates a circular tsconfig extends chain
	ConfigCycle ErrorCode = "CONFIG_CYCLE"
	// ConfigExists indicates an init would overwrite an existing config file
	ConfigExists ErrorCode = "CONFIG_EXISTS"
	// ManifestInvalid indicates a package.json or pnpm-workspace.yaml could not be used
	ManifestInvalid ErrorCode = "MANIFEST_INVALID"
	// ParseFailed indicates a source file could not be parsed
	ParseFailed ErrorCode = "PARSE_FAILED"
	// ReadFailed indicates a file could not be read
	ReadFailed ErrorCode = "READ_FAILED"
	// AllowlistInvalid indicates a malformed allow-list file or entry
	AllowlistInvalid ErrorCode = "ALLOWLIST_INVALID"
	// CacheUnavailable indicates the extraction cache could not be used
	CacheUnavailable ErrorCode = "CACHE_UNAVAILABLE"
	// InternalError indicates unexpected error
	InternalError ErrorCode = "INTERNAL_ERROR"
)

// FixActionType represents the type of fix action
type FixActionType string

const (
	// RunCommand suggests running a command
	RunCommand FixActionType = "run-command"
	// EditFile suggests editing a file by hand
	EditFile FixActionType = "edit-file"
)

// FixAction represents a suggested fix for an error
type FixAction struct {
	Type        FixActionType `json:"type"`
	Command     string        `json:"command,omitempty"`
	Description string        `json:"description,omitempty"`
}

// CddError is a structured diagnostic: what failed, for which path, and why.
type CddError struct {
	Code           ErrorCode   `json:"code"`
	Message        string      `json:"message"`
	Path           string      `json:"path,omitempty"`
	SuggestedFixes []FixAction `json:"suggestedFixes,omitempty"`
	cause          error
}

// New creates a CddError for path with the fixes registered for its code.
func New(code ErrorCode, path string, message string, cause error) *CddError {
	return &CddError{
		Code:           code,
		Message:        message,
		Path:           path,
		SuggestedFixes: GetSuggestedFixes(code),
		cause:          cause,
	}
}

// Error implements the error interface
func (e *CddError) Error() string {
	msg := fmt.Sprintf("[%s] %s", e.Code, e.Message)
	if e.Path != "" {
		msg += " (" + e.Path + ")"
	}
	if e.cause != nil {
		msg += ": " + e.cause.Error()
	}
	return msg
}

// Unwrap returns the underlying error
func (e *CddError) Unwrap() error {
	return e.cause
}

// Is matches any CddError carrying the same code, so callers can write
// errors.Is(err, errors.New(errors.ConfigNotFound, "", "", nil)).
func (e *CddError) Is(target error) bool {
	t, ok := target.(*CddError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// CodeOf returns the code of the first CddError in err's chain, or "" if none.
func CodeOf(err error) ErrorCode {
	var ce *CddError
	if stderrors.As(err, &ce) {
		return ce.Code
	}
	return ""
}

// HasCode reports whether err's chain contains a CddError with code.
func HasCode(err error, code ErrorCode) bool {
	return CodeOf(err) == code
}

// ErrorActions maps error codes to suggested fix actions
var ErrorActions = map[ErrorCode][]FixAction{
	ConfigExists: {
		{
			Type:        RunCommand,
			Command:     "cdd --update-hash",
			Description: "Update the expected hash in the existing config instead",
		},
	},
	ConfigCycle: {
		{
			Type:        EditFile,
			Description: "Remove the circular \"extends\" reference",
		},
	},
	CacheUnavailable: {
		{
			Type:        RunCommand,
			Command:     "rm -rf .cdd",
			Description: "Discard the extraction cache",
		},
	},
}

// GetSuggestedFixes returns suggested fixes for an error code
func GetSuggestedFixes(code ErrorCode) []FixAction {
	if fixes, ok := ErrorActions[code]; ok {
		return fixes
	}
	return nil
}
