// Package terminal implements the interactive command-line surface for the
// Lumen agent.
//
// It streams assistant text as it arrives, renders the turn's ClientActions
// once the stream has closed, and handles the approval workflow for plan
// proposals: when the model proposes a plan, the terminal prompts for a
// decision bound to that proposal's id, and the /plans, /approve, and /deny
// commands resolve proposals out of band.
//
// # Usage
//
//	a := agent.New(cfg, sess, client, registry, gate, st, mode, verbosity)
//	term := terminal.New(a, gate)
//	err := term.Run(ctx, initialPrompt)
//
// # Verbosity Levels
//
// The terminal supports different verbosity levels for tool execution:
//
//   - None: No tool execution information is displayed
//   - Info: Tool names are displayed when called
//   - All: Tool names, arguments, and results are displayed
package terminal
