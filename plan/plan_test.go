package plan

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumen-mentor/lumen/store"
	"github.com/lumen-mentor/lumen/tools"
)

type scopedTool struct {
	name string
}

func (s *scopedTool) Name() string           { return s.name }
func (s *scopedTool) Description() string    { return "test" }
func (s *scopedTool) Class() tools.Class     { return tools.ClassPrivileged }
func (s *scopedTool) Schema() map[string]any { return map[string]any{"type": "object"} }
func (s *scopedTool) Execute(ctx context.Context, args map[string]any) (string, *tools.ClientAction, error) {
	return "done", nil, nil
}
func (s *scopedTool) AffectedResource(args map[string]any) string {
	v, _ := args["path"].(string)
	return v
}

type unscopedTool struct{ scopedTool }

func (u *unscopedTool) AffectedResource() {} // shadows Scoped with the wrong shape

func newGate(t *testing.T) *Gate {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return NewGate(st, "u1")
}

func TestMutatingCallDeniedWithoutPlan(t *testing.T) {
	g := newGate(t)
	tool := &scopedTool{name: "write_file"}
	args := map[string]any{"path": "notes/today.md"}

	err := g.Authorize(context.Background(), tool, args)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no approved plan")

	// Proposing alone is not enough; the plan is still pending.
	id, err := g.Propose("Update notes", "touch today's note", []string{"write the note"}, []string{"notes/**"})
	require.NoError(t, err)
	assert.Error(t, g.Authorize(context.Background(), tool, args))

	// After the structured approval bound to this proposal's id, the same
	// call succeeds.
	require.NoError(t, g.Resolve(id, true))
	assert.NoError(t, g.Authorize(context.Background(), tool, args))
}

func TestDeniedPlanIsNotAPermit(t *testing.T) {
	g := newGate(t)
	tool := &scopedTool{name: "write_file"}
	args := map[string]any{"path": "notes/today.md"}

	id, err := g.Propose("Update notes", "", []string{"write"}, []string{"notes/**"})
	require.NoError(t, err)
	require.NoError(t, g.Resolve(id, false))

	assert.Error(t, g.Authorize(context.Background(), tool, args))

	pending, err := g.Pending()
	require.NoError(t, err)
	assert.Empty(t, pending, "a resolved proposal is no longer pending")
}

func TestApprovalScopeMatching(t *testing.T) {
	g := newGate(t)
	tool := &scopedTool{name: "write_file"}

	id, err := g.Propose("Archive notes", "", []string{"move"}, []string{"notes/archive/**", "notes/index.md"})
	require.NoError(t, err)
	require.NoError(t, g.Resolve(id, true))

	covered := []string{"notes/archive/2026/jan.md", "notes/index.md"}
	for _, path := range covered {
		assert.NoError(t, g.Authorize(context.Background(), tool, map[string]any{"path": path}), path)
	}
	uncovered := []string{"notes/today.md", "config.yaml", "notes"}
	for _, path := range uncovered {
		assert.Error(t, g.Authorize(context.Background(), tool, map[string]any{"path": path}), path)
	}
}

func TestApprovalBoundToProposalID(t *testing.T) {
	g := newGate(t)
	tool := &scopedTool{name: "write_file"}

	first, err := g.Propose("Plan one", "", []string{"a"}, []string{"one/**"})
	require.NoError(t, err)
	second, err := g.Propose("Plan two", "", []string{"b"}, []string{"two/**"})
	require.NoError(t, err)

	// Approving the second proposal admits only its own scope.
	require.NoError(t, g.Resolve(second, true))
	assert.Error(t, g.Authorize(context.Background(), tool, map[string]any{"path": "one/x"}))
	assert.NoError(t, g.Authorize(context.Background(), tool, map[string]any{"path": "two/x"}))

	pending, err := g.Pending()
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, first, pending[0].ID)
}

func TestPendingProposalsSurviveUnrelatedActivity(t *testing.T) {
	g := newGate(t)
	id, err := g.Propose("Plan", "", []string{"s"}, []string{"x/**"})
	require.NoError(t, err)

	// Nothing implicit resolves a proposal; it stays pending until an
	// explicit decision arrives.
	pending, err := g.Pending()
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, id, pending[0].ID)
	assert.Equal(t, StatePending, pending[0].State)
}

func TestProposeValidation(t *testing.T) {
	g := newGate(t)
	_, err := g.Propose("", "summary", nil, []string{"x"})
	assert.Error(t, err)
	_, err = g.Propose("title", "summary", nil, nil)
	assert.Error(t, err)
}

func TestResolveUnknownProposal(t *testing.T) {
	g := newGate(t)
	assert.Error(t, g.Resolve("no-such-id", true))
}

func TestAuthorizeRequiresScope(t *testing.T) {
	g := newGate(t)
	tool := &unscopedTool{scopedTool{name: "odd_tool"}}
	err := g.Authorize(context.Background(), tool, map[string]any{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "declares no affected resource")
}
