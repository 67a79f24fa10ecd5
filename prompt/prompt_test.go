package prompt

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumen-mentor/lumen/store"
)

func TestComposeWithoutStore(t *testing.T) {
	c := &Composer{}

	mentor := c.Compose("mentor")
	assert.Contains(t, mentor, "mentoring companion")

	operator := c.Compose("operator")
	assert.Contains(t, operator, "operator mode")
	assert.Contains(t, operator, "approved plan")
}

func TestComposeIncludesProfile(t *testing.T) {
	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	require.NoError(t, st.SetHabit("u1", "walk", "daily"))
	require.NoError(t, st.AddInsight("u1", "focus", "mornings work best"))

	c := &Composer{Store: st, UserID: "u1"}
	out := c.Compose("mentor")

	assert.Contains(t, out, store.Stages[0])
	assert.Contains(t, out, "walk (daily, streak 0)")
	assert.Contains(t, out, "mornings work best")
}

func TestComposeDegradesOnEmptyProfile(t *testing.T) {
	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	c := &Composer{Store: st, UserID: "new-user"}
	out := c.Compose("mentor")

	assert.Contains(t, out, store.Stages[0])
	assert.NotContains(t, out, "Current habits")
	assert.NotContains(t, out, "Recent insights")
}
