package tools

import (
	"context"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/smartfolderhq/smartfolder/internal/fsx"
)

const maxGrepMatches = 100

func (r *Registry) registerTextTools() {
	r.Register(&Tool{
		Name:        "grep",
		Description: "Search a text file for a literal substring and return the matching lines with line numbers.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"path":    pathProp("Path of the text file to search"),
				"pattern": map[string]any{"type": "string", "description": "Literal text to search for (not a regular expression)"},
				"caseInsensitive": map[string]any{
					"type":        "boolean",
					"description": "Match without regard to letter case (default false)",
				},
			},
			"required": []string{"path", "pattern"},
		},
		Handler: r.handleGrep,
	})

	r.Register(&Tool{
		Name:        "sed",
		Description: "Replace every occurrence of a literal string in a text file. The search text is never interpreted as a regular expression.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"path":    pathProp("Path of the text file to edit"),
				"find":    map[string]any{"type": "string", "description": "Literal text to find"},
				"replace": map[string]any{"type": "string", "description": "Replacement text"},
				"caseInsensitive": map[string]any{
					"type":        "boolean",
					"description": "Match without regard to letter case (default false)",
				},
			},
			"required": []string{"path", "find", "replace"},
		},
		Mutating: true,
		Handler:  r.handleSed,
	})

	r.Register(&Tool{
		Name:        "head",
		Description: "Return the first N lines of a text file (default 10).",
		Parameters:  headTailSchema(),
		Handler: func(ctx context.Context, args map[string]any) (map[string]any, error) {
			return r.headTail(ctx, "head", args)
		},
	})

	r.Register(&Tool{
		Name:        "tail",
		Description: "Return the last N lines of a text file (default 10).",
		Parameters:  headTailSchema(),
		Handler: func(ctx context.Context, args map[string]any) (map[string]any, error) {
			return r.headTail(ctx, "tail", args)
		},
	})
}

func headTailSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"path":  pathProp("Path of the text file"),
			"lines": map[string]any{"type": "integer", "description": "Number of lines to return (default 10)"},
		},
		"required": []string{"path"},
	}
}

// readText loads a contained text file for the line tools.
func (r *Registry) readText(tool, path string) (string, error) {
	if err := requireTextual(tool, path); err != nil {
		return "", err
	}
	abs, err := r.resolve(path)
	if err != nil {
		return "", err
	}
	data, err := fsx.ReadCapped(abs, fsx.MaxReadBytes)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func (r *Registry) handleGrep(ctx context.Context, args map[string]any) (map[string]any, error) {
	path := args["path"].(string)
	pattern := args["pattern"].(string)
	caseInsensitive, _ := args["caseInsensitive"].(bool)

	text, err := r.readText("grep", path)
	if err != nil {
		return nil, err
	}

	needle := pattern
	if caseInsensitive {
		needle = strings.ToLower(needle)
	}

	var matches []map[string]any
	truncated := false
	for i, line := range strings.Split(text, "\n") {
		haystack := line
		if caseInsensitive {
			haystack = strings.ToLower(haystack)
		}
		if !strings.Contains(haystack, needle) {
			continue
		}
		if len(matches) >= maxGrepMatches {
			truncated = true
			break
		}
		matches = append(matches, map[string]any{"line": i + 1, "content": line})
	}

	return map[string]any{
		"ok":        true,
		"tool":      "grep",
		"target":    path,
		"matches":   matches,
		"count":     len(matches),
		"truncated": truncated,
	}, nil
}

func (r *Registry) handleSed(ctx context.Context, args map[string]any) (map[string]any, error) {
	path := args["path"].(string)
	find := args["find"].(string)
	replace := args["replace"].(string)
	caseInsensitive, _ := args["caseInsensitive"].(bool)

	text, err := r.readText("sed", path)
	if err != nil {
		return nil, err
	}

	// The find string is always literal; quote it so regex
	// metacharacters in filenames or prose cannot change meaning.
	expr := regexp.QuoteMeta(find)
	if caseInsensitive {
		expr = "(?i)" + expr
	}
	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, fmt.Errorf("compile find pattern: %w", err)
	}

	count := len(re.FindAllStringIndex(text, -1))
	replaced := re.ReplaceAllLiteralString(text, replace)

	changed := replaced != text
	if changed {
		abs, err := r.resolve(path)
		if err != nil {
			return nil, err
		}
		if err := os.WriteFile(abs, []byte(replaced), 0o644); err != nil {
			return nil, fmt.Errorf("write %s: %w", path, err)
		}
		r.notify.Mark(abs)
	}

	return map[string]any{
		"ok":           true,
		"tool":         "sed",
		"target":       path,
		"changed":      changed,
		"replacements": count,
	}, nil
}

func (r *Registry) headTail(ctx context.Context, tool string, args map[string]any) (map[string]any, error) {
	path := args["path"].(string)
	n := 10
	if v, ok := args["lines"].(float64); ok && v > 0 {
		n = int(v)
	}

	text, err := r.readText(tool, path)
	if err != nil {
		return nil, err
	}

	lines := strings.Split(strings.TrimSuffix(text, "\n"), "\n")
	if n > len(lines) {
		n = len(lines)
	}
	var slice []string
	if tool == "head" {
		slice = lines[:n]
	} else {
		slice = lines[len(lines)-n:]
	}

	return map[string]any{
		"ok":      true,
		"tool":    tool,
		"target":  path,
		"lines":   n,
		"content": strings.Join(slice, "\n"),
	}, nil
}
