package tools

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumen-mentor/lumen/errors"
	"github.com/lumen-mentor/lumen/session"
)

type fakeTool struct {
	name     string
	class    Class
	terminal bool
	action   *ClientAction
	err      error
	gotArgs  map[string]any
}

func (f *fakeTool) Name() string           { return f.name }
func (f *fakeTool) Description() string    { return "fake" }
func (f *fakeTool) Class() Class           { return f.class }
func (f *fakeTool) Schema() map[string]any { return map[string]any{"type": "object"} }
func (f *fakeTool) Terminal() bool         { return f.terminal }

func (f *fakeTool) Execute(ctx context.Context, args map[string]any) (string, *ClientAction, error) {
	f.gotArgs = args
	if f.err != nil {
		return "", nil, f.err
	}
	return "ok", f.action, nil
}

type allowAll struct{}

func (allowAll) Authorize(ctx context.Context, tool Tool, args map[string]any) error { return nil }

type denyAll struct{}

func (denyAll) Authorize(ctx context.Context, tool Tool, args map[string]any) error {
	return errors.New("nope")
}

func call(name, args string) session.ToolCall {
	return session.ToolCall{ToolCallID: "call_1", Name: name, Args: args}
}

func TestRegistryRejectsDuplicates(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(&fakeTool{name: "echo", class: ClassReadOnly}))
	assert.Error(t, r.Register(&fakeTool{name: "echo", class: ClassReadOnly}))
}

func TestDispatchUnknownTool(t *testing.T) {
	r := NewRegistry()
	r.MustRegister(&fakeTool{name: "echo", class: ClassReadOnly})

	out := r.Dispatch(context.Background(), call("missing", "{}"), nil)
	assert.True(t, out.Result.IsError)
	assert.Contains(t, out.Result.Content, "unknown tool 'missing'")
	assert.Contains(t, out.Result.Content, "echo", "error should list available tools")
}

func TestDispatchMalformedArguments(t *testing.T) {
	r := NewRegistry()
	ft := &fakeTool{name: "echo", class: ClassReadOnly}
	r.MustRegister(ft)

	out := r.Dispatch(context.Background(), call("echo", `{"broken`), nil)
	assert.True(t, out.Result.IsError)
	assert.Contains(t, out.Result.Content, "invalid arguments")
	assert.Nil(t, ft.gotArgs, "handler must not run on malformed arguments")
}

func TestDispatchEmptyArguments(t *testing.T) {
	r := NewRegistry()
	ft := &fakeTool{name: "echo", class: ClassReadOnly}
	r.MustRegister(ft)

	out := r.Dispatch(context.Background(), call("echo", ""), nil)
	assert.False(t, out.Result.IsError)
	assert.NotNil(t, ft.gotArgs)
}

func TestDispatchPrivilegedRequiresAuthorizer(t *testing.T) {
	r := NewRegistry()
	ft := &fakeTool{name: "write_file", class: ClassPrivileged}
	r.MustRegister(ft)

	out := r.Dispatch(context.Background(), call("write_file", "{}"), nil)
	assert.True(t, out.Result.IsError)
	assert.Nil(t, ft.gotArgs)

	out = r.Dispatch(context.Background(), call("write_file", "{}"), denyAll{})
	assert.True(t, out.Result.IsError)
	assert.Contains(t, out.Result.Content, "denied")
	assert.Nil(t, ft.gotArgs)

	out = r.Dispatch(context.Background(), call("write_file", "{}"), allowAll{})
	assert.False(t, out.Result.IsError)
	assert.NotNil(t, ft.gotArgs)
}

func TestDispatchAdditiveSkipsGate(t *testing.T) {
	r := NewRegistry()
	r.MustRegister(&fakeTool{name: "record", class: ClassAdditive})

	// A nil authorizer only denies privileged tools.
	out := r.Dispatch(context.Background(), call("record", "{}"), nil)
	assert.False(t, out.Result.IsError)
}

func TestDispatchHandlerError(t *testing.T) {
	r := NewRegistry()
	r.MustRegister(&fakeTool{name: "echo", class: ClassReadOnly, err: errors.New("boom")})

	out := r.Dispatch(context.Background(), call("echo", "{}"), nil)
	assert.True(t, out.Result.IsError)
	assert.Contains(t, out.Result.Content, "boom")
	assert.Equal(t, "call_1", out.Result.CallID)
}

func TestDispatchCarriesClientAction(t *testing.T) {
	r := NewRegistry()
	r.MustRegister(&fakeTool{
		name:   "illuminate_domain",
		class:  ClassAdditive,
		action: &ClientAction{Kind: ActionIlluminateDomain, Domain: "focus"},
	})

	out := r.Dispatch(context.Background(), call("illuminate_domain", `{"domain":"focus"}`), nil)
	require.NotNil(t, out.Action)
	assert.Equal(t, "focus", out.Action.Domain)
}

func TestIsTerminal(t *testing.T) {
	r := NewRegistry()
	r.MustRegister(&fakeTool{name: "erase", class: ClassAdditive, terminal: true})
	r.MustRegister(&fakeTool{name: "record", class: ClassAdditive})

	assert.True(t, r.IsTerminal("erase"))
	assert.False(t, r.IsTerminal("record"))
	assert.False(t, r.IsTerminal("missing"))
}

func TestDefsFollowRegistrationOrder(t *testing.T) {
	r := NewRegistry()
	r.MustRegister(&fakeTool{name: "b", class: ClassReadOnly})
	r.MustRegister(&fakeTool{name: "a", class: ClassReadOnly})

	defs := r.Defs()
	require.Len(t, defs, 2)
	assert.Equal(t, "b", defs[0].Name)
	assert.Equal(t, "a", defs[1].Name)
}
