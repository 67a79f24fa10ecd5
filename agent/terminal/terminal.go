// Package terminal implements the interactive command-line surface.
package terminal

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/lumen-mentor/lumen/agent"
	"github.com/lumen-mentor/lumen/logging"
	"github.com/lumen-mentor/lumen/plan"
	"github.com/lumen-mentor/lumen/session"
	"github.com/lumen-mentor/lumen/tools"
)

// Terminal handles the terminal/CLI interaction mode for the agent.
type Terminal struct {
	agent *agent.Agent
	gate  *plan.Gate
	in    *bufio.Scanner
}

// New creates a new Terminal instance. gate may be nil in mentor mode.
func New(a *agent.Agent, gate *plan.Gate) *Terminal {
	return &Terminal{
		agent: a,
		gate:  gate,
		in:    bufio.NewScanner(os.Stdin),
	}
}

// Run starts the interactive session.
func (t *Terminal) Run(ctx context.Context, initialPrompt string) error {
	// If there's an initial prompt from the command line, use it first
	if initialPrompt != "" {
		if err := t.processTurn(ctx, initialPrompt); err != nil {
			return err
		}
	}

	for {
		fmt.Print("You: ")
		if !t.in.Scan() {
			// EOF or read error ends the session
			break
		}

		userInput := strings.TrimSpace(t.in.Text())
		if userInput == "" {
			continue
		}

		if userInput == "/quit" || userInput == "/exit" {
			break
		}
		if strings.HasPrefix(userInput, "/") {
			t.handleCommand(userInput)
			continue
		}

		if err := t.processTurn(ctx, userInput); err != nil {
			// Raw error detail goes to the log, not the user.
			logging.For("terminal").Errorw("turn failed", "error", err)
			fmt.Println("Sorry, something went wrong on my side. Your message was kept; please try again.")
		}
	}

	return t.in.Err()
}

// processTurn handles a single user input turn.
func (t *Terminal) processTurn(ctx context.Context, userInput string) error {
	streamedAny := false
	callbacks := agent.ProcessCallbacks{
		OnText: func(fragment string) {
			if !streamedAny {
				fmt.Print("Lumen: ")
				streamedAny = true
			}
			fmt.Print(fragment)
		},
		OnToolCall: func(call session.ToolCall) {
			if t.agent.Verbosity == agent.ToolVerbosityAll {
				fmt.Printf("\n[tool] %s %s\n", call.Name, call.Args)
			} else if t.agent.Verbosity == agent.ToolVerbosityInfo {
				fmt.Printf("\n[tool] %s\n", call.Name)
			}
		},
		OnToolResult: func(call session.ToolCall, result tools.Result) {
			if t.agent.Verbosity == agent.ToolVerbosityAll {
				fmt.Printf("[tool] %s -> %s\n", call.Name, result.Content)
			}
		},
		OnClientActions: func(actions []tools.ClientAction) {
			// Actions arrive once, after the stream has closed.
			fmt.Println()
			for _, action := range actions {
				t.renderAction(action)
			}
		},
		OnWarning: func(warning string) {
			fmt.Printf("\nWarning: %s\n", warning)
		},
	}

	err := t.agent.ProcessUserInput(ctx, userInput, callbacks)
	if streamedAny {
		fmt.Println()
	}
	return err
}

func (t *Terminal) renderAction(action tools.ClientAction) {
	switch action.Kind {
	case tools.ActionIlluminateDomain:
		fmt.Printf("[view] domain '%s' illuminated\n", action.Domain)
	case tools.ActionSwitchView:
		fmt.Printf("[view] switched to '%v'\n", action.Payload["view"])
	case tools.ActionPlanProposal:
		fmt.Printf("[plan] proposal %v: %v\n", action.Payload["id"], action.Payload["title"])
		t.promptForDecision(fmt.Sprint(action.Payload["id"]))
	default:
		fmt.Printf("[action] %s\n", action.Kind)
	}
}

// promptForDecision asks for an approval decision on a specific proposal.
// The decision is bound to the proposal's id, so having several pending
// proposals is unambiguous.
func (t *Terminal) promptForDecision(id string) {
	if t.gate == nil {
		return
	}
	fmt.Print("Approve this plan? (y/n/later): ")
	if !t.in.Scan() {
		return
	}
	switch strings.TrimSpace(strings.ToLower(t.in.Text())) {
	case "y", "yes":
		t.resolve(id, true)
	case "n", "no":
		t.resolve(id, false)
	default:
		fmt.Println("Left pending. Use /plans to revisit.")
	}
}

func (t *Terminal) resolve(id string, approved bool) {
	if err := t.gate.Resolve(id, approved); err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	if approved {
		fmt.Printf("Plan %s approved.\n", id)
	} else {
		fmt.Printf("Plan %s denied.\n", id)
	}
}

func (t *Terminal) handleCommand(input string) {
	fields := strings.Fields(input)
	switch fields[0] {
	case "/plans":
		t.listPlans()
	case "/approve", "/deny":
		if len(fields) != 2 {
			fmt.Printf("Usage: %s <plan-id>\n", fields[0])
			return
		}
		if t.gate == nil {
			fmt.Println("No plan gate in this mode.")
			return
		}
		t.resolve(fields[1], fields[0] == "/approve")
	default:
		fmt.Printf("Unknown command %s. Commands: /plans, /approve <id>, /deny <id>, /quit\n", fields[0])
	}
}

func (t *Terminal) listPlans() {
	if t.gate == nil {
		fmt.Println("No plan gate in this mode.")
		return
	}
	pending, err := t.gate.Pending()
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	if len(pending) == 0 {
		fmt.Println("No pending plans.")
		return
	}
	for _, p := range pending {
		fmt.Printf("%s  %s\n", p.ID, p.Describe())
	}
}
