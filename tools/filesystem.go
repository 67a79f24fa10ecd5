package tools

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/lumen-mentor/lumen/config"
	"github.com/lumen-mentor/lumen/errors"
)

// isPathRestricted reports whether path matches any of the configured
// doublestar patterns. Both path and patterns are compared in slash form.
func isPathRestricted(path string, patterns []string) (bool, error) {
	clean := filepath.ToSlash(filepath.Clean(path))
	for _, pattern := range patterns {
		ok, err := doublestar.Match(pattern, clean)
		if err != nil {
			return false, errors.Wrapf(err, "invalid path pattern '%s'", pattern)
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

// ReadFileTool reads a file's content, honoring the hidden-path list.
type ReadFileTool struct {
	FSAccess *config.FilesystemAccess
}

func (t *ReadFileTool) Name() string { return "read_file" }
func (t *ReadFileTool) Description() string {
	return "Reads the entire content of a file. Args: path (string)."
}
func (t *ReadFileTool) Class() Class { return ClassReadOnly }
func (t *ReadFileTool) Schema() map[string]any {
	return objectSchema([]string{"path"}, map[string]any{
		"path": stringProperty("Path of the file to read."),
	})
}

func (t *ReadFileTool) Execute(ctx context.Context, args map[string]any) (string, *ClientAction, error) {
	path, err := stringArg(args, "path")
	if err != nil {
		return "", nil, err
	}

	hidden, err := isPathRestricted(path, t.FSAccess.Hidden)
	if err != nil {
		return "", nil, err
	}
	if hidden {
		return "", nil, errors.New("access denied: path '%s' is hidden", path)
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return "", nil, errors.Wrapf(err, "failed to read file '%s'", path)
	}
	return string(content), nil, nil
}

// ListFilesTool lists files matching a doublestar pattern, excluding hidden
// paths.
type ListFilesTool struct {
	FSAccess *config.FilesystemAccess
}

func (t *ListFilesTool) Name() string { return "list_files" }
func (t *ListFilesTool) Description() string {
	return "Lists files matching a glob pattern such as 'docs/**/*.md'. Args: pattern (string)."
}
func (t *ListFilesTool) Class() Class { return ClassReadOnly }
func (t *ListFilesTool) Schema() map[string]any {
	return objectSchema([]string{"pattern"}, map[string]any{
		"pattern": stringProperty("Doublestar glob pattern to match against file paths."),
	})
}

func (t *ListFilesTool) Execute(ctx context.Context, args map[string]any) (string, *ClientAction, error) {
	pattern, err := stringArg(args, "pattern")
	if err != nil {
		return "", nil, err
	}

	matches, err := doublestar.Glob(os.DirFS("."), pattern)
	if err != nil {
		return "", nil, errors.Wrapf(err, "invalid pattern '%s'", pattern)
	}

	visible := make([]string, 0, len(matches))
	for _, m := range matches {
		hidden, err := isPathRestricted(m, t.FSAccess.Hidden)
		if err != nil {
			return "", nil, err
		}
		if hidden {
			continue
		}
		visible = append(visible, m)
	}
	sort.Strings(visible)
	if len(visible) == 0 {
		return fmt.Sprintf("No files match '%s'.", pattern), nil, nil
	}
	return strings.Join(visible, "\n"), nil, nil
}

// WriteFileTool replaces a file's content entirely. Privileged: every write
// must be covered by an approved plan.
type WriteFileTool struct {
	FSAccess *config.FilesystemAccess
}

func (t *WriteFileTool) Name() string { return "write_file" }
func (t *WriteFileTool) Description() string {
	return "Writes content to a file, replacing it entirely. Requires an approved plan covering the path. Args: path (string), content (string)."
}
func (t *WriteFileTool) Class() Class { return ClassPrivileged }
func (t *WriteFileTool) Schema() map[string]any {
	return objectSchema([]string{"path", "content"}, map[string]any{
		"path":    stringProperty("Path of the file to write."),
		"content": stringProperty("Full new content of the file."),
	})
}

// AffectedResource implements Scoped; plans scope writes by path pattern.
func (t *WriteFileTool) AffectedResource(args map[string]any) string {
	return filepath.ToSlash(filepath.Clean(optionalStringArg(args, "path")))
}

func (t *WriteFileTool) Execute(ctx context.Context, args map[string]any) (string, *ClientAction, error) {
	path, err := stringArg(args, "path")
	if err != nil {
		return "", nil, err
	}
	content, ok := args["content"].(string)
	if !ok {
		return "", nil, errors.New("missing or invalid 'content' argument")
	}

	hidden, err := isPathRestricted(path, t.FSAccess.Hidden)
	if err != nil {
		return "", nil, err
	}
	if hidden {
		return "", nil, errors.New("access denied: path '%s' is hidden", path)
	}

	readOnly, err := isPathRestricted(path, t.FSAccess.ReadOnly)
	if err != nil {
		return "", nil, err
	}
	if readOnly {
		return "", nil, errors.New("access denied: path '%s' is read-only", path)
	}

	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return "", nil, errors.Wrapf(err, "failed to write to file '%s'", path)
	}
	return fmt.Sprintf("Successfully wrote %d bytes to %s", len(content), path), nil, nil
}
