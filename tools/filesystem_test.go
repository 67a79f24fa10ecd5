package tools

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumen-mentor/lumen/config"
)

func TestIsPathRestricted(t *testing.T) {
	patterns := []string{".lumen/**", "secrets/*.key"}

	restricted := []string{".lumen/lumen.db", ".lumen/logs/today.log", "secrets/api.key"}
	for _, p := range restricted {
		ok, err := isPathRestricted(p, patterns)
		require.NoError(t, err)
		assert.True(t, ok, p)
	}

	open := []string{"notes/today.md", "secrets/nested/api.key"}
	for _, p := range open {
		ok, err := isPathRestricted(p, patterns)
		require.NoError(t, err)
		assert.False(t, ok, p)
	}
}

func TestWriteThenReadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "note.md")
	fs := &config.FilesystemAccess{}

	write := &WriteFileTool{FSAccess: fs}
	read := &ReadFileTool{FSAccess: fs}

	_, _, err := write.Execute(context.Background(), map[string]any{"path": path, "content": "hello"})
	require.NoError(t, err)

	out, _, err := read.Execute(context.Background(), map[string]any{"path": path})
	require.NoError(t, err)
	assert.Equal(t, "hello", out)
}

func TestWriteFileRestrictions(t *testing.T) {
	fs := &config.FilesystemAccess{
		Hidden:   []string{"**/.lumen/**"},
		ReadOnly: []string{"**/frozen/**"},
	}
	write := &WriteFileTool{FSAccess: fs}

	dir := t.TempDir()
	hidden := filepath.Join(dir, ".lumen", "db")
	_, _, err := write.Execute(context.Background(), map[string]any{"path": hidden, "content": "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "hidden")

	frozen := filepath.Join(dir, "frozen", "file")
	_, _, err = write.Execute(context.Background(), map[string]any{"path": frozen, "content": "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read-only")
}

func TestReadFileHidden(t *testing.T) {
	fs := &config.FilesystemAccess{Hidden: []string{"**/secret.txt"}}
	read := &ReadFileTool{FSAccess: fs}

	dir := t.TempDir()
	path := filepath.Join(dir, "secret.txt")
	require.NoError(t, os.WriteFile(path, []byte("s"), 0644))

	_, _, err := read.Execute(context.Background(), map[string]any{"path": path})
	assert.Error(t, err)
}

func TestWriteFileAffectedResource(t *testing.T) {
	write := &WriteFileTool{FSAccess: &config.FilesystemAccess{}}
	assert.Equal(t, "notes/today.md",
		write.AffectedResource(map[string]any{"path": "notes/./today.md"}))
}

func TestListFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "docs"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "docs", "a.md"), nil, 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "docs", "b.txt"), nil, 0644))
	t.Chdir(dir)

	list := &ListFilesTool{FSAccess: &config.FilesystemAccess{}}
	out, _, err := list.Execute(context.Background(), map[string]any{"pattern": "docs/*.md"})
	require.NoError(t, err)
	assert.Equal(t, "docs/a.md", out)

	out, _, err = list.Execute(context.Background(), map[string]any{"pattern": "docs/*.go"})
	require.NoError(t, err)
	assert.Contains(t, out, "No files match")
}

func TestExecuteCommandAllowlist(t *testing.T) {
	tool := &ExecuteCommandTool{AllowedCommands: []string{"echo *"}}

	out, _, err := tool.Execute(context.Background(), map[string]any{"command": "echo hello"})
	require.NoError(t, err)
	assert.Contains(t, out, "hello")

	_, _, err = tool.Execute(context.Background(), map[string]any{"command": "rm -rf /"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not in the list")
}

func TestExecuteCommandWhitespaceOnly(t *testing.T) {
	tool := &ExecuteCommandTool{AllowedCommands: []string{"*"}}

	_, _, err := tool.Execute(context.Background(), map[string]any{"command": "   "})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no executable")
}

func TestExecuteCommandAffectedResource(t *testing.T) {
	tool := &ExecuteCommandTool{}
	assert.Equal(t, "git status", tool.AffectedResource(map[string]any{"command": "git status"}))
}
