// Package plan implements plan proposals and the safety gate that stands
// between the model and privileged, mutating tools.
//
// A mutating action runs only when a previously approved proposal's scope
// covers it. Approval is a structured decision referencing the proposal's
// id; free-text markers like "APPROVED: <title>" are not recognized,
// because with several proposals pending they do not say which one the
// human meant.
package plan

import (
	"context"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/google/uuid"
	"github.com/lumen-mentor/lumen/errors"
	"github.com/lumen-mentor/lumen/logging"
	"github.com/lumen-mentor/lumen/store"
	"github.com/lumen-mentor/lumen/tools"
)

// Proposal approval states.
const (
	StatePending  = "pending"
	StateApproved = "approved"
	StateDenied   = "denied"
)

// Proposal is a human-approvable description of intended mutating actions.
// Resources are doublestar patterns naming what the plan may touch.
type Proposal struct {
	ID        string
	Title     string
	Summary   string
	Steps     []string
	Resources []string
	State     string
}

// Gate authorizes privileged invocations for one user. Proposals are
// durable: they outlive the turn that issued them and resolve only through
// an explicit decision.
type Gate struct {
	store  *store.Store
	userID string
}

// NewGate creates a gate backed by the durable plan ledger.
func NewGate(st *store.Store, userID string) *Gate {
	return &Gate{store: st, userID: userID}
}

// Propose records a new pending proposal and returns its id.
func (g *Gate) Propose(title, summary string, steps, resources []string) (string, error) {
	if title == "" {
		return "", errors.New("proposal requires a title")
	}
	if len(resources) == 0 {
		return "", errors.New("proposal requires at least one affected resource")
	}
	id := uuid.NewString()
	row := store.PlanRow{
		ID:        id,
		UserID:    g.userID,
		Title:     title,
		Summary:   summary,
		Steps:     steps,
		Resources: resources,
		State:     StatePending,
	}
	if err := g.store.InsertPlan(row); err != nil {
		return "", err
	}
	logging.For("plan").Infow("proposal recorded", "id", id, "title", title)
	return id, nil
}

// Resolve applies an approval decision to a specific proposal. A denied
// proposal stays denied; the model must issue a new one to try again.
func (g *Gate) Resolve(id string, approved bool) error {
	state := StateDenied
	if approved {
		state = StateApproved
	}
	if err := g.store.UpdatePlanState(id, state); err != nil {
		return err
	}
	logging.For("plan").Infow("proposal resolved", "id", id, "state", state)
	return nil
}

// Pending returns the user's unresolved proposals.
func (g *Gate) Pending() ([]Proposal, error) {
	return g.byState(StatePending)
}

// Authorize implements tools.Authorizer. It admits a privileged invocation
// only when an approved proposal's scope covers the affected resource.
func (g *Gate) Authorize(ctx context.Context, tool tools.Tool, args map[string]any) error {
	scoped, ok := tool.(tools.Scoped)
	if !ok {
		return errors.New("privileged tool '%s' declares no affected resource", tool.Name())
	}
	resource := scoped.AffectedResource(args)

	approved, err := g.byState(StateApproved)
	if err != nil {
		return errors.Wrapf(err, "could not consult approved plans")
	}
	for _, p := range approved {
		if p.Covers(resource) {
			return nil
		}
	}
	return errors.New("no approved plan covers '%s'; propose a plan and wait for approval", resource)
}

// Covers reports whether the proposal's scope includes the resource.
// Patterns are doublestar globs; an exact match also counts.
func (p *Proposal) Covers(resource string) bool {
	for _, pattern := range p.Resources {
		if pattern == resource {
			return true
		}
		if ok, err := doublestar.Match(pattern, resource); err == nil && ok {
			return true
		}
	}
	return false
}

func (g *Gate) byState(state string) ([]Proposal, error) {
	rows, err := g.store.PlansByState(g.userID, state)
	if err != nil {
		return nil, err
	}
	out := make([]Proposal, 0, len(rows))
	for _, r := range rows {
		out = append(out, Proposal{
			ID:        r.ID,
			Title:     r.Title,
			Summary:   r.Summary,
			Steps:     r.Steps,
			Resources: r.Resources,
			State:     r.State,
		})
	}
	return out, nil
}

// Describe renders a proposal for the presentation layer.
func (p *Proposal) Describe() string {
	var b strings.Builder
	b.WriteString(p.Title)
	if p.Summary != "" {
		b.WriteString(": ")
		b.WriteString(p.Summary)
	}
	for _, step := range p.Steps {
		b.WriteString("\n  - ")
		b.WriteString(strings.TrimSpace(step))
	}
	return b.String()
}
