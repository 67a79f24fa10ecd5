// Package tools defines the closed registry of capabilities the model may
// invoke, and the dispatcher that turns finalized tool calls into results.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/lumen-mentor/lumen/errors"
	"github.com/lumen-mentor/lumen/llm"
	"github.com/lumen-mentor/lumen/logging"
	"github.com/lumen-mentor/lumen/session"
)

// Class is a tool's declared side-effect class. The dispatcher permits
// read-only and additive tools unconditionally; privileged tools pass
// through the safety gate first.
type Class string

const (
	ClassReadOnly   Class = "read-only"
	ClassAdditive   Class = "additive"
	ClassPrivileged Class = "privileged"
)

// ClientAction kinds delivered to the presentation layer.
const (
	ActionIlluminateDomain = "illuminate_domain"
	ActionSwitchView       = "switch_view"
	ActionPlanProposal     = "plan_proposal"
)

// ClientAction is a declarative signal for the presentation layer. It is
// never shown as chat text and never fed back to the model; the loop
// controller delivers the turn's actions once, after the stream closes.
type ClientAction struct {
	Kind    string         `json:"kind"`
	Domain  string         `json:"domain,omitempty"`
	Payload map[string]any `json:"payload,omitempty"`
}

// Result is the model-visible outcome of one invocation, matched back to
// its originating call by id.
type Result struct {
	CallID  string
	Content string
	IsError bool
}

// Outcome pairs a Result with the optional ClientAction the handler emitted.
type Outcome struct {
	Result Result
	Action *ClientAction
}

// Tool defines one capability in the closed registry.
type Tool interface {
	Name() string
	Description() string
	Class() Class
	// Schema is the JSON-schema object describing the arguments.
	Schema() map[string]any
	Execute(ctx context.Context, args map[string]any) (string, *ClientAction, error)
}

// TerminalTool marks tools that end the turn after completing, regardless
// of operating mode.
type TerminalTool interface {
	Terminal() bool
}

// Scoped is implemented by privileged tools so the safety gate can match
// the affected resource against an approved plan's scope.
type Scoped interface {
	AffectedResource(args map[string]any) string
}

// Authorizer decides whether a privileged invocation may execute. A nil
// Authorizer denies all privileged invocations.
type Authorizer interface {
	Authorize(ctx context.Context, tool Tool, args map[string]any) error
}

// Registry holds the closed set of tools. Registration happens once during
// wiring; a duplicate name is a programming error.
type Registry struct {
	tools map[string]Tool
	order []string
}

func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Register adds a tool. Returns an error if the name is already taken.
func (r *Registry) Register(t Tool) error {
	if t.Name() == "" {
		return errors.New("tool has empty name")
	}
	if _, exists := r.tools[t.Name()]; exists {
		return errors.New("tool '%s' already registered", t.Name())
	}
	r.tools[t.Name()] = t
	r.order = append(r.order, t.Name())
	return nil
}

// MustRegister registers a tool and panics on error. Use for static wiring.
func (r *Registry) MustRegister(t Tool) {
	if err := r.Register(t); err != nil {
		panic(fmt.Sprintf("failed to register tool: %v", err))
	}
}

// Get returns a tool by name.
func (r *Registry) Get(name string) (Tool, bool) {
	t, ok := r.tools[name]
	return t, ok
}

// Names returns all registered tool names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Defs returns the tool definitions advertised to the model, in
// registration order.
func (r *Registry) Defs() []llm.ToolDef {
	defs := make([]llm.ToolDef, 0, len(r.order))
	for _, name := range r.order {
		t := r.tools[name]
		defs = append(defs, llm.ToolDef{
			Name:        t.Name(),
			Description: t.Description(),
			Parameters:  t.Schema(),
		})
	}
	return defs
}

// IsTerminal reports whether a registered tool ends the turn on completion.
func (r *Registry) IsTerminal(name string) bool {
	t, ok := r.tools[name]
	if !ok {
		return false
	}
	term, ok := t.(TerminalTool)
	return ok && term.Terminal()
}

// Dispatch executes one finalized call. Every failure mode (unparseable
// arguments, unknown name, gate denial, handler error) becomes an error
// Result for the model; Dispatch itself never fails the turn.
func (r *Registry) Dispatch(ctx context.Context, call session.ToolCall, auth Authorizer) Outcome {
	log := logging.For("tools")

	args, err := parseArgs(call.Args)
	if err != nil {
		log.Warnw("skipping invocation with malformed arguments", "tool", call.Name, "call_id", call.ToolCallID)
		return errorOutcome(call, "invalid arguments for tool '%s': %v", call.Name, err)
	}

	tool, ok := r.tools[call.Name]
	if !ok {
		log.Warnw("unknown tool requested", "tool", call.Name)
		return errorOutcome(call, "unknown tool '%s'; available tools: %v", call.Name, r.Names())
	}

	if tool.Class() == ClassPrivileged {
		if auth == nil {
			return errorOutcome(call, "tool '%s' is privileged and no approval authority is configured", call.Name)
		}
		if err := auth.Authorize(ctx, tool, args); err != nil {
			log.Infow("privileged invocation denied", "tool", call.Name, "reason", err.Error())
			return errorOutcome(call, "denied: %v", err)
		}
	}

	content, action, err := tool.Execute(ctx, args)
	if err != nil {
		log.Warnw("tool execution failed", "tool", call.Name, "error", err)
		return errorOutcome(call, "tool '%s' failed: %v", call.Name, err)
	}

	return Outcome{
		Result: Result{CallID: call.ToolCallID, Content: content},
		Action: action,
	}
}

func parseArgs(raw string) (map[string]any, error) {
	if raw == "" {
		return map[string]any{}, nil
	}
	var args map[string]any
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return nil, err
	}
	return args, nil
}

func errorOutcome(call session.ToolCall, format string, a ...any) Outcome {
	return Outcome{Result: Result{
		CallID:  call.ToolCallID,
		Content: fmt.Sprintf(format, a...),
		IsError: true,
	}}
}

// stringArg extracts a required string argument.
func stringArg(args map[string]any, key string) (string, error) {
	v, ok := args[key].(string)
	if !ok || v == "" {
		return "", errors.New("missing or invalid '%s' argument", key)
	}
	return v, nil
}

// optionalStringArg extracts a string argument, returning "" when absent.
func optionalStringArg(args map[string]any, key string) string {
	v, _ := args[key].(string)
	return v
}
