package tools

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/smartfolderhq/smartfolder/internal/classify"
	"github.com/smartfolderhq/smartfolder/internal/fsx"
)

func pathProp(desc string) map[string]any {
	return map[string]any{"type": "string", "description": desc}
}

func (r *Registry) registerFileTools() {
	r.Register(&Tool{
		Name:        "read_file",
		Description: "Read the full contents of a text file in the folder. Binary files are already attached to the prompt when the model supports them.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"path": pathProp("Path of the file, relative to the watched folder"),
			},
			"required": []string{"path"},
		},
		Handler: r.handleReadFile,
	})

	r.Register(&Tool{
		Name:        "write_file",
		Description: "Create a brand-new text file. Fails if the target already exists; never use this to rename or modify an existing file.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"path":     pathProp("Path of the new file, relative to the watched folder"),
				"contents": map[string]any{"type": "string", "description": "The full contents to write"},
			},
			"required": []string{"path", "contents"},
		},
		Mutating: true,
		Handler:  r.handleWriteFile,
	})

	r.Register(&Tool{
		Name:        "rename_file",
		Description: "Rename a file within the folder. The new name must keep the original file extension exactly.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"from": pathProp("Current path of the file"),
				"to":   pathProp("New path; must end with the same extension as 'from'"),
			},
			"required": []string{"from", "to"},
		},
		Mutating: true,
		Handler: func(ctx context.Context, args map[string]any) (map[string]any, error) {
			return r.relocate(ctx, "rename_file", args, false)
		},
	})

	r.Register(&Tool{
		Name:        "move_file",
		Description: "Move a file or folder to a new location inside the watched folder, creating parent folders as needed. Moving a file must keep its extension.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"from": pathProp("Current path of the file or folder"),
				"to":   pathProp("Destination path inside the watched folder"),
			},
			"required": []string{"from", "to"},
		},
		Mutating: true,
		Handler: func(ctx context.Context, args map[string]any) (map[string]any, error) {
			return r.relocate(ctx, "move_file", args, true)
		},
	})

	r.Register(&Tool{
		Name:        "create_folder",
		Description: "Create a new folder (and any missing parents) inside the watched folder. Fails if it already exists.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"path": pathProp("Path of the folder to create, relative to the watched folder"),
			},
			"required": []string{"path"},
		},
		Mutating: true,
		Handler:  r.handleCreateFolder,
	})
}

// resolve sandboxes a model-supplied path against the folder root.
func (r *Registry) resolve(path string) (string, error) {
	return fsx.Contain(r.root, path)
}

// requireTextual rejects text-tool use on binary extensions.
func requireTextual(tool, path string) error {
	if classify.IsTextual(classify.Classify(filepath.Base(path), "")) {
		return nil
	}
	return &BinaryToolMisuseError{Tool: tool, Path: path}
}

func (r *Registry) handleReadFile(ctx context.Context, args map[string]any) (map[string]any, error) {
	path := args["path"].(string)
	if err := requireTextual("read_file", path); err != nil {
		return nil, err
	}
	abs, err := r.resolve(path)
	if err != nil {
		return nil, err
	}
	data, err := fsx.ReadCapped(abs, fsx.MaxReadBytes)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"ok":      true,
		"tool":    "read_file",
		"target":  path,
		"bytes":   len(data),
		"preview": string(data),
	}, nil
}

func (r *Registry) handleWriteFile(ctx context.Context, args map[string]any) (map[string]any, error) {
	path := args["path"].(string)
	contents := args["contents"].(string)
	if err := requireTextual("write_file", path); err != nil {
		return nil, err
	}
	abs, err := r.resolve(path)
	if err != nil {
		return nil, err
	}
	if err := fsx.AssertNotExists(abs); err != nil {
		return nil, err
	}
	if err := fsx.EnsureParentDir(abs); err != nil {
		return nil, err
	}
	if err := os.WriteFile(abs, []byte(contents), 0o644); err != nil {
		return nil, fmt.Errorf("write %s: %w", path, err)
	}
	r.notify.Mark(abs)
	return map[string]any{
		"ok":      true,
		"tool":    "write_file",
		"target":  path,
		"bytes":   len(contents),
		"message": fmt.Sprintf("created %s (%d bytes)", path, len(contents)),
	}, nil
}

// relocate backs both rename_file and move_file; move allows creating
// destination parents and skips the extension rule for directories.
func (r *Registry) relocate(ctx context.Context, tool string, args map[string]any, move bool) (map[string]any, error) {
	from := args["from"].(string)
	to := args["to"].(string)

	absFrom, err := r.resolve(from)
	if err != nil {
		return nil, err
	}
	absTo, err := r.resolve(to)
	if err != nil {
		return nil, err
	}

	info, err := os.Lstat(absFrom)
	if err != nil {
		return nil, &fsx.MissingError{Path: absFrom}
	}

	if !info.IsDir() && filepath.Ext(from) != filepath.Ext(to) {
		return nil, NewExtensionMismatchError(from, to)
	}

	if err := fsx.AssertNotExists(absTo); err != nil {
		return nil, err
	}
	if move {
		if err := fsx.EnsureParentDir(absTo); err != nil {
			return nil, err
		}
	}
	if err := os.Rename(absFrom, absTo); err != nil {
		return nil, fmt.Errorf("%s %s: %w", tool, from, err)
	}

	r.notify.Mark(absFrom)
	r.notify.Mark(absTo)

	oldName := filepath.Base(from)
	newName := filepath.Base(to)
	verb := "renamed"
	if move {
		verb = "moved"
	}
	return map[string]any{
		"ok":      true,
		"tool":    tool,
		"target":  from,
		"renamed": true,
		"oldName": oldName,
		"newName": newName,
		"message": fmt.Sprintf("%s %q to %q; refer to the file as %q from now on", verb, from, to, to),
	}, nil
}

func (r *Registry) handleCreateFolder(ctx context.Context, args map[string]any) (map[string]any, error) {
	path := args["path"].(string)
	abs, err := r.resolve(path)
	if err != nil {
		return nil, err
	}
	if err := fsx.AssertNotExists(abs); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create folder %s: %w", path, err)
	}
	r.notify.Mark(abs)
	return map[string]any{
		"ok":      true,
		"tool":    "create_folder",
		"target":  path,
		"message": fmt.Sprintf("created folder %s", path),
	}, nil
}
