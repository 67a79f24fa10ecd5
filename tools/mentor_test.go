package tools

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumen-mentor/lumen/errors"
	"github.com/lumen-mentor/lumen/store"
)

func testStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func TestRecordInsightAndStatus(t *testing.T) {
	st := testStore(t)
	record := &RecordInsightTool{Store: st, UserID: "u1"}
	status := &MentorStatusTool{Store: st, UserID: "u1"}

	_, action, err := record.Execute(context.Background(), map[string]any{
		"domain":  "focus",
		"insight": "deep work before noon",
	})
	require.NoError(t, err)
	assert.Nil(t, action, "recording an insight is not a view change")

	out, _, err := status.Execute(context.Background(), map[string]any{})
	require.NoError(t, err)
	assert.Contains(t, out, store.Stages[0])
	assert.Contains(t, out, "deep work before noon")
}

func TestRecordInsightMissingArgs(t *testing.T) {
	record := &RecordInsightTool{Store: testStore(t), UserID: "u1"}
	_, _, err := record.Execute(context.Background(), map[string]any{"domain": "focus"})
	assert.Error(t, err)
}

func TestHabitTools(t *testing.T) {
	st := testStore(t)
	set := &SetHabitTool{Store: st, UserID: "u1"}
	tick := &TickHabitTool{Store: st, UserID: "u1"}

	_, _, err := set.Execute(context.Background(), map[string]any{"name": "walk", "cadence": "daily"})
	require.NoError(t, err)
	_, _, err = tick.Execute(context.Background(), map[string]any{"name": "walk"})
	require.NoError(t, err)

	_, _, err = tick.Execute(context.Background(), map[string]any{"name": "missing"})
	assert.Error(t, err)
}

func TestIlluminateDomainEmitsAction(t *testing.T) {
	tool := &IlluminateDomainTool{}
	_, action, err := tool.Execute(context.Background(), map[string]any{"domain": "health"})
	require.NoError(t, err)
	require.NotNil(t, action)
	assert.Equal(t, ActionIlluminateDomain, action.Kind)
	assert.Equal(t, "health", action.Domain)
}

func TestSwitchViewEmitsAction(t *testing.T) {
	tool := &SwitchViewTool{}
	_, action, err := tool.Execute(context.Background(), map[string]any{"view": "journey"})
	require.NoError(t, err)
	require.NotNil(t, action)
	assert.Equal(t, ActionSwitchView, action.Kind)
	assert.Equal(t, "journey", action.Payload["view"])
}

func TestEraseProgressIsTerminal(t *testing.T) {
	tool := &EraseProgressTool{Store: testStore(t), UserID: "u1"}
	assert.True(t, tool.Terminal())

	_, action, err := tool.Execute(context.Background(), map[string]any{})
	require.NoError(t, err)
	assert.Nil(t, action)
}

type fakeProposer struct {
	title     string
	resources []string
	err       error
}

func (f *fakeProposer) Propose(title, summary string, steps, resources []string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.title = title
	f.resources = resources
	return "plan-123", nil
}

func TestProposePlanEmitsAction(t *testing.T) {
	fp := &fakeProposer{}
	tool := &ProposePlanTool{Proposer: fp}

	out, action, err := tool.Execute(context.Background(), map[string]any{
		"title":              "Clean archive",
		"summary":            "Move stale notes",
		"steps":              []any{"list", "move"},
		"affected_resources": []any{"notes/**"},
	})
	require.NoError(t, err)
	assert.Contains(t, out, "plan-123")
	require.NotNil(t, action)
	assert.Equal(t, ActionPlanProposal, action.Kind)
	assert.Equal(t, "plan-123", action.Payload["id"])
	assert.Equal(t, []string{"notes/**"}, fp.resources)
}

func TestProposePlanPropagatesGateError(t *testing.T) {
	tool := &ProposePlanTool{Proposer: &fakeProposer{err: errors.New("needs a resource")}}
	_, _, err := tool.Execute(context.Background(), map[string]any{
		"title":              "Bad plan",
		"affected_resources": []any{},
	})
	assert.Error(t, err)
}
