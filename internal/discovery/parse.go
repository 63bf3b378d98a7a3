// Package discovery finds smartfolder.md files beneath root
// directories, validates their prompts, and tracks their lifecycle so
// the supervisor can attach and detach folder watchers.
package discovery

import (
	"fmt"
	"os"
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	// ConfigFileName is compared case-insensitively.
	ConfigFileName = "smartfolder.md"

	// MaxFileBytes rejects config files larger than 1 MiB outright.
	MaxFileBytes = 1 << 20

	// MaxPromptChars bounds the prompt length in characters.
	MaxPromptChars = 50_000

	// suspiciousRunLength is the repeated-character run that earns a
	// warning (not a rejection).
	suspiciousRunLength = 1000
)

// FileTooLargeError reports a config file over MaxFileBytes.
type FileTooLargeError struct {
	Path string
	Size int64
}

func (e *FileTooLargeError) Error() string {
	return fmt.Sprintf("config file %s is %d bytes; limit is %d", e.Path, e.Size, MaxFileBytes)
}

// PromptTooLongError reports a prompt over MaxPromptChars characters.
type PromptTooLongError struct {
	Path   string
	Length int
}

func (e *PromptTooLongError) Error() string {
	return fmt.Sprintf("prompt in %s is %d characters; limit is %d", e.Path, e.Length, MaxPromptChars)
}

// EmptyPromptError reports a config file with no usable prompt.
type EmptyPromptError struct {
	Path string
}

func (e *EmptyPromptError) Error() string {
	return fmt.Sprintf("config file %s contains no prompt", e.Path)
}

// PromptContainsNulError reports a NUL byte in the prompt; the file
// is almost certainly not text.
type PromptContainsNulError struct {
	Path string
}

func (e *PromptContainsNulError) Error() string {
	return fmt.Sprintf("prompt in %s contains a NUL byte", e.Path)
}

// ParsePromptFile reads a smartfolder.md: the whole file body is the
// prompt. Hard limits reject; oddities that might still be legitimate
// prose only warn.
func ParsePromptFile(path string) (prompt string, warnings []string, err error) {
	info, err := os.Lstat(path)
	if err != nil {
		return "", nil, fmt.Errorf("stat config file: %w", err)
	}
	if info.Size() > MaxFileBytes {
		return "", nil, &FileTooLargeError{Path: path, Size: info.Size()}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", nil, fmt.Errorf("read config file: %w", err)
	}

	prompt = strings.TrimSpace(string(data))
	if prompt == "" {
		return "", nil, &EmptyPromptError{Path: path}
	}
	if strings.ContainsRune(prompt, 0) {
		return "", nil, &PromptContainsNulError{Path: path}
	}
	if n := utf8.RuneCountInString(prompt); n > MaxPromptChars {
		return "", nil, &PromptTooLongError{Path: path, Length: n}
	}

	warnings = lintPrompt(prompt)
	return prompt, warnings, nil
}

// lintPrompt flags content that parses but probably should not: long
// runs of one character and control characters other than ordinary
// whitespace.
func lintPrompt(prompt string) []string {
	var warnings []string

	var prev rune
	run := 1
	flaggedRun := false
	flaggedControl := false
	for _, r := range prompt {
		if r == prev {
			run++
			if run > suspiciousRunLength && !flaggedRun {
				warnings = append(warnings, fmt.Sprintf("prompt contains a run of %d+ repeated %q characters", suspiciousRunLength, r))
				flaggedRun = true
			}
		} else {
			run = 1
			prev = r
		}
		if unicode.IsControl(r) && r != '\n' && r != '\r' && r != '\t' && !flaggedControl {
			warnings = append(warnings, fmt.Sprintf("prompt contains control character %U", r))
			flaggedControl = true
		}
	}
	return warnings
}
