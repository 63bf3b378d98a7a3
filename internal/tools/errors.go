// Package tools defines the sandboxed tool vocabulary exposed to the
// model and the registry that executes it.
//
// This file defines sentinel error types for tool execution. Tool
// failures are recovered into {ok:false} payloads by Execute; only an
// unknown tool name surfaces as a Go error, because that indicates a
// registry mismatch the loop cannot retry its way out of.
package tools

import (
	"fmt"
	"path/filepath"
	"strings"
)

// ErrToolUnavailable is returned when a tool call targets a tool that
// is not present in the effective registry for this folder. This is a
// capability mismatch, not a transient execution failure; callers
// should report it to the model rather than retrying.
type ErrToolUnavailable struct {
	ToolName string
}

func (e *ErrToolUnavailable) Error() string {
	return fmt.Sprintf("tool %q is not available in this context", e.ToolName)
}

// ExtensionMismatchError reports a rename or move that would change a
// file's extension. Suggested carries a corrected destination name the
// model can use directly.
type ExtensionMismatchError struct {
	From      string
	To        string
	Suggested string
}

func (e *ExtensionMismatchError) Error() string {
	return fmt.Sprintf("renaming %q to %q would change the file extension %q; did you mean %q?",
		filepath.Base(e.From), filepath.Base(e.To), filepath.Ext(e.From), e.Suggested)
}

// NewExtensionMismatchError builds the error with a suggestion that
// re-attaches the original extension to the requested name.
func NewExtensionMismatchError(from, to string) *ExtensionMismatchError {
	origExt := filepath.Ext(from)
	base := filepath.Base(to)
	suggested := strings.TrimSuffix(base, filepath.Ext(base)) + origExt
	return &ExtensionMismatchError{From: from, To: to, Suggested: suggested}
}

// BinaryToolMisuseError reports a text-only tool invoked on a path
// with a binary extension. The file bytes were already attached to
// the prompt when the model supports them, so there is nothing for a
// text tool to add.
type BinaryToolMisuseError struct {
	Tool string
	Path string
}

func (e *BinaryToolMisuseError) Error() string {
	return fmt.Sprintf("%s only works on text files; %q has a binary extension (binary content is attached to the prompt when supported)", e.Tool, filepath.Base(e.Path))
}

// InvalidArgsError reports a tool call whose arguments do not satisfy
// the tool's schema.
type InvalidArgsError struct {
	Tool   string
	Reason string
}

func (e *InvalidArgsError) Error() string {
	return fmt.Sprintf("invalid arguments for %s: %s", e.Tool, e.Reason)
}
