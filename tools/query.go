package tools

import (
	"context"
	"regexp"
	"strings"

	"github.com/lumen-mentor/lumen/errors"
	"github.com/lumen-mentor/lumen/store"
)

// mutatingKeywords are rejected anywhere in a query, in any case, before
// execution. Approval never overrides this check.
var mutatingKeywords = regexp.MustCompile(`(?i)\b(insert|update|delete|drop|alter|create|replace|truncate|attach|detach|pragma|vacuum|reindex)\b`)

// RunQueryTool runs a read-only SQL query against the engine's database.
// Privileged despite being read-only: query output can expose anything in
// the store, so it still requires an approved plan.
type RunQueryTool struct {
	Store *store.Store
}

func (t *RunQueryTool) Name() string { return "run_query" }
func (t *RunQueryTool) Description() string {
	return "Runs a read-only SELECT query against the local database. Requires an approved plan with scope 'db'. Args: query (string)."
}
func (t *RunQueryTool) Class() Class { return ClassPrivileged }
func (t *RunQueryTool) Schema() map[string]any {
	return objectSchema([]string{"query"}, map[string]any{
		"query": stringProperty("A single SELECT statement."),
	})
}

// AffectedResource implements Scoped. Queries are scoped under the fixed
// "db" resource.
func (t *RunQueryTool) AffectedResource(args map[string]any) string {
	return "db"
}

func (t *RunQueryTool) Execute(ctx context.Context, args map[string]any) (string, *ClientAction, error) {
	query, err := stringArg(args, "query")
	if err != nil {
		return "", nil, err
	}
	if err := CheckReadOnlyQuery(query); err != nil {
		return "", nil, err
	}
	out, err := t.Store.ReadQuery(query)
	if err != nil {
		return "", nil, errors.Wrapf(err, "query failed")
	}
	return out, nil, nil
}

// CheckReadOnlyQuery rejects anything that is not a plain SELECT. The scan
// is lexical on purpose: it runs before the statement reaches the database,
// so a mutating keyword is refused even inside an otherwise valid query.
func CheckReadOnlyQuery(query string) error {
	trimmed := strings.TrimSpace(query)
	if !strings.HasPrefix(strings.ToLower(trimmed), "select") {
		return errors.New("only SELECT queries are permitted")
	}
	if m := mutatingKeywords.FindString(trimmed); m != "" {
		return errors.New("query contains forbidden keyword '%s'", strings.ToLower(m))
	}
	return nil
}
