package tools

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCheckReadOnlyQuery(t *testing.T) {
	valid := []string{
		"SELECT * FROM habits",
		"select name, streak from habits where user_id = 'u1'",
		"  SELECT count(*) FROM insights",
	}
	for _, q := range valid {
		assert.NoError(t, CheckReadOnlyQuery(q), q)
	}

	invalid := []string{
		"DELETE FROM habits",
		"SELECT * FROM habits; DROP TABLE habits",
		"select * from insights where content = '' UNION SELECT 1; UPDATE profiles SET stage='mastery'",
		"sElEcT * from habits; dElEtE from habits",
		"PRAGMA journal_mode=DELETE",
		"INSERT INTO habits VALUES ('x')",
	}
	for _, q := range invalid {
		assert.Error(t, CheckReadOnlyQuery(q), q)
	}
}

func TestCheckReadOnlyQueryCaseInsensitiveKeywords(t *testing.T) {
	// Mixed-case mutating keywords inside an otherwise SELECT-shaped query
	// are rejected before anything reaches the database.
	err := CheckReadOnlyQuery("SELECT 1; dRoP TABLE habits")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "drop")
}

func TestRunQueryRejectedIndependentOfApproval(t *testing.T) {
	r := NewRegistry()
	r.MustRegister(&RunQueryTool{Store: nil})

	// Even with an authorizer that approves everything, the keyword scan
	// refuses the query before execution.
	out := r.Dispatch(context.Background(),
		call("run_query", `{"query":"SELECT 1; DELETE FROM habits"}`), allowAll{})
	assert.True(t, out.Result.IsError)
	assert.Contains(t, out.Result.Content, "delete")
}
