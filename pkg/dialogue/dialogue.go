// Package dialogue compiles branching-dialogue documents into graphs and
// evaluates the conditions that steer a conversation through them.
package dialogue

import "errors"

// Markup recognized inside line text.
const (
	EventMarker        = "`" // wraps an inline event command, run at its character offset
	SubstitutionMarker = "%" // wraps a substitution command, resolved before reveal
	CommandSeparator   = "|" // separates a command name from its arguments
)

// Sentinel errors. All of them are recoverable: callers log, end the
// conversation or skip the document, and keep serving.
var (
	ErrDocumentNotFound     = errors.New("dialogue document not found")
	ErrMalformedDocument    = errors.New("malformed dialogue document")
	ErrUnknownLineReference = errors.New("unknown line reference")
	ErrMissingLineText      = errors.New("line has no presentable content")
)
