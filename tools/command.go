package tools

import (
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/lumen-mentor/lumen/errors"
)

// isCommandAllowed checks the command against the configured wildcard
// patterns, e.g. "git status" against "git *".
func isCommandAllowed(command string, patterns []string) (bool, error) {
	for _, pattern := range patterns {
		ok, err := doublestar.Match(pattern, command)
		if err != nil {
			return false, errors.Wrapf(err, "invalid command pattern '%s'", pattern)
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

// ExecuteCommandTool runs an allowlisted OS command. Privileged: it runs
// only under an approved plan whose scope covers the command.
type ExecuteCommandTool struct {
	AllowedCommands []string
}

func (t *ExecuteCommandTool) Name() string { return "execute_command" }
func (t *ExecuteCommandTool) Description() string {
	if len(t.AllowedCommands) == 0 {
		return "Executes a shell command. No commands are currently allowed. Args: command (string)."
	}

	allowedList := "Allowed command wildcard patterns:\n"
	for _, cmd := range t.AllowedCommands {
		allowedList += fmt.Sprintf("- %s\n", cmd)
	}

	return fmt.Sprintf("Executes a shell command. Requires an approved plan covering the command. Args: command (string).\n%s", allowedList)
}

func (t *ExecuteCommandTool) Class() Class { return ClassPrivileged }
func (t *ExecuteCommandTool) Schema() map[string]any {
	return objectSchema([]string{"command"}, map[string]any{
		"command": stringProperty("The command line to run."),
	})
}

// AffectedResource implements Scoped; plans scope commands by wildcard
// pattern over the full command line.
func (t *ExecuteCommandTool) AffectedResource(args map[string]any) string {
	return optionalStringArg(args, "command")
}

func (t *ExecuteCommandTool) Execute(ctx context.Context, args map[string]any) (string, *ClientAction, error) {
	command, err := stringArg(args, "command")
	if err != nil {
		return "", nil, err
	}

	allowed, err := isCommandAllowed(command, t.AllowedCommands)
	if err != nil {
		return "", nil, err
	}
	if !allowed {
		return "", nil, errors.New("command '%s' is not in the list of allowed commands", command)
	}

	// Basic shell-like execution
	parts := strings.Fields(command)
	if len(parts) == 0 {
		return "", nil, errors.New("command contains no executable")
	}
	cmd := exec.CommandContext(ctx, parts[0], parts[1:]...)

	output, err := cmd.CombinedOutput()
	if err != nil {
		return "", nil, errors.Wrapf(err, "command execution failed. Output:\n%s", string(output))
	}

	return fmt.Sprintf("Command executed successfully. Output:\n%s", string(output)), nil, nil
}
