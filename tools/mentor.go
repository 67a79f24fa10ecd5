package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/lumen-mentor/lumen/store"
)

// Proposer records a plan proposal and returns its id. Implemented by the
// safety gate; injected here so the mentor toolset does not depend on it.
type Proposer interface {
	Propose(title, summary string, steps, resources []string) (string, error)
}

func stringProperty(description string) map[string]any {
	return map[string]any{"type": "string", "description": description}
}

func objectSchema(required []string, properties map[string]any) map[string]any {
	return map[string]any{
		"type":       "object",
		"properties": properties,
		"required":   required,
	}
}

// MentorStatusTool reports the user's stage, habits, and recent insights.
type MentorStatusTool struct {
	Store  *store.Store
	UserID string
}

func (t *MentorStatusTool) Name() string { return "mentor_status" }
func (t *MentorStatusTool) Description() string {
	return "Returns the user's current stage, habits, and recent insights."
}
func (t *MentorStatusTool) Class() Class { return ClassReadOnly }
func (t *MentorStatusTool) Schema() map[string]any {
	return objectSchema(nil, map[string]any{})
}

func (t *MentorStatusTool) Execute(ctx context.Context, args map[string]any) (string, *ClientAction, error) {
	_, stage, err := t.Store.Profile(t.UserID)
	if err != nil {
		return "", nil, err
	}
	habits, err := t.Store.Habits(t.UserID)
	if err != nil {
		return "", nil, err
	}
	insights, err := t.Store.RecentInsights(t.UserID, 5)
	if err != nil {
		return "", nil, err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Stage: %s\n", stage)
	fmt.Fprintf(&b, "Habits: %s\n", strings.Join(habits, "; "))
	fmt.Fprintf(&b, "Recent insights: %s", strings.Join(insights, "; "))
	return b.String(), nil, nil
}

// RecordInsightTool stores an insight the user reached in a growth domain.
type RecordInsightTool struct {
	Store  *store.Store
	UserID string
}

func (t *RecordInsightTool) Name() string { return "record_insight" }
func (t *RecordInsightTool) Description() string {
	return "Records an insight the user reached. Args: domain (string), insight (string)."
}
func (t *RecordInsightTool) Class() Class { return ClassAdditive }
func (t *RecordInsightTool) Schema() map[string]any {
	return objectSchema([]string{"domain", "insight"}, map[string]any{
		"domain":  stringProperty("Growth domain the insight belongs to."),
		"insight": stringProperty("The insight, in the user's words where possible."),
	})
}

func (t *RecordInsightTool) Execute(ctx context.Context, args map[string]any) (string, *ClientAction, error) {
	domain, err := stringArg(args, "domain")
	if err != nil {
		return "", nil, err
	}
	insight, err := stringArg(args, "insight")
	if err != nil {
		return "", nil, err
	}
	if err := t.Store.AddInsight(t.UserID, domain, insight); err != nil {
		return "", nil, err
	}
	return fmt.Sprintf("Insight recorded in domain '%s'.", domain), nil, nil
}

// SetHabitTool creates or updates a habit definition.
type SetHabitTool struct {
	Store  *store.Store
	UserID string
}

func (t *SetHabitTool) Name() string { return "set_habit" }
func (t *SetHabitTool) Description() string {
	return "Creates or updates a habit. Args: name (string), cadence (string, e.g. 'daily')."
}
func (t *SetHabitTool) Class() Class { return ClassAdditive }
func (t *SetHabitTool) Schema() map[string]any {
	return objectSchema([]string{"name", "cadence"}, map[string]any{
		"name":    stringProperty("Short habit name."),
		"cadence": stringProperty("How often the habit repeats."),
	})
}

func (t *SetHabitTool) Execute(ctx context.Context, args map[string]any) (string, *ClientAction, error) {
	name, err := stringArg(args, "name")
	if err != nil {
		return "", nil, err
	}
	cadence, err := stringArg(args, "cadence")
	if err != nil {
		return "", nil, err
	}
	if err := t.Store.SetHabit(t.UserID, name, cadence); err != nil {
		return "", nil, err
	}
	return fmt.Sprintf("Habit '%s' set (%s).", name, cadence), nil, nil
}

// TickHabitTool marks one completion of an existing habit.
type TickHabitTool struct {
	Store  *store.Store
	UserID string
}

func (t *TickHabitTool) Name() string { return "tick_habit" }
func (t *TickHabitTool) Description() string {
	return "Marks a habit as completed once, extending its streak. Args: name (string)."
}
func (t *TickHabitTool) Class() Class { return ClassAdditive }
func (t *TickHabitTool) Schema() map[string]any {
	return objectSchema([]string{"name"}, map[string]any{
		"name": stringProperty("Name of the habit that was completed."),
	})
}

func (t *TickHabitTool) Execute(ctx context.Context, args map[string]any) (string, *ClientAction, error) {
	name, err := stringArg(args, "name")
	if err != nil {
		return "", nil, err
	}
	if err := t.Store.TickHabit(t.UserID, name); err != nil {
		return "", nil, err
	}
	return fmt.Sprintf("Habit '%s' ticked.", name), nil, nil
}

// AdvanceStageTool moves the user to the next mentoring stage.
type AdvanceStageTool struct {
	Store  *store.Store
	UserID string
}

func (t *AdvanceStageTool) Name() string { return "advance_stage" }
func (t *AdvanceStageTool) Description() string {
	return "Advances the user to the next mentoring stage."
}
func (t *AdvanceStageTool) Class() Class { return ClassAdditive }
func (t *AdvanceStageTool) Schema() map[string]any {
	return objectSchema(nil, map[string]any{})
}

func (t *AdvanceStageTool) Execute(ctx context.Context, args map[string]any) (string, *ClientAction, error) {
	stage, err := t.Store.AdvanceStage(t.UserID)
	if err != nil {
		return "", nil, err
	}
	return fmt.Sprintf("User is now in stage '%s'.", stage), nil, nil
}

// IlluminateDomainTool signals the presentation layer to highlight a growth
// domain. The signal is a ClientAction, never chat text.
type IlluminateDomainTool struct{}

func (t *IlluminateDomainTool) Name() string { return "illuminate_domain" }
func (t *IlluminateDomainTool) Description() string {
	return "Highlights a growth domain in the user's view. Args: domain (string)."
}
func (t *IlluminateDomainTool) Class() Class { return ClassAdditive }
func (t *IlluminateDomainTool) Schema() map[string]any {
	return objectSchema([]string{"domain"}, map[string]any{
		"domain": stringProperty("Growth domain to highlight."),
	})
}

func (t *IlluminateDomainTool) Execute(ctx context.Context, args map[string]any) (string, *ClientAction, error) {
	domain, err := stringArg(args, "domain")
	if err != nil {
		return "", nil, err
	}
	action := &ClientAction{Kind: ActionIlluminateDomain, Domain: domain}
	return fmt.Sprintf("Domain '%s' illuminated.", domain), action, nil
}

// SwitchViewTool signals the presentation layer to change views.
type SwitchViewTool struct{}

func (t *SwitchViewTool) Name() string { return "switch_view" }
func (t *SwitchViewTool) Description() string {
	return "Switches the user's view. Args: view (string, e.g. 'journey' or 'habits')."
}
func (t *SwitchViewTool) Class() Class { return ClassAdditive }
func (t *SwitchViewTool) Schema() map[string]any {
	return objectSchema([]string{"view"}, map[string]any{
		"view": stringProperty("View to switch to."),
	})
}

func (t *SwitchViewTool) Execute(ctx context.Context, args map[string]any) (string, *ClientAction, error) {
	view, err := stringArg(args, "view")
	if err != nil {
		return "", nil, err
	}
	action := &ClientAction{Kind: ActionSwitchView, Payload: map[string]any{"view": view}}
	return fmt.Sprintf("Switched to the '%s' view.", view), action, nil
}

// EraseProgressTool wipes the user's recorded progress. Terminal: the turn
// ends after it completes, in either mode.
type EraseProgressTool struct {
	Store  *store.Store
	UserID string
}

func (t *EraseProgressTool) Name() string { return "erase_progress" }
func (t *EraseProgressTool) Description() string {
	return "Erases all recorded progress (insights, habits, stage). Only call when the user explicitly asks for a full reset."
}
func (t *EraseProgressTool) Class() Class   { return ClassAdditive }
func (t *EraseProgressTool) Terminal() bool { return true }
func (t *EraseProgressTool) Schema() map[string]any {
	return objectSchema(nil, map[string]any{})
}

func (t *EraseProgressTool) Execute(ctx context.Context, args map[string]any) (string, *ClientAction, error) {
	if err := t.Store.EraseProgress(t.UserID); err != nil {
		return "", nil, err
	}
	return "All progress erased.", nil, nil
}

// ProposePlanTool records a plan proposal for human approval and surfaces it
// to the presentation layer.
type ProposePlanTool struct {
	Proposer Proposer
}

func (t *ProposePlanTool) Name() string { return "propose_plan" }
func (t *ProposePlanTool) Description() string {
	return "Proposes a plan of mutating actions for approval. Args: title (string), summary (string), steps (array of string), affected_resources (array of string glob patterns)."
}
func (t *ProposePlanTool) Class() Class { return ClassAdditive }
func (t *ProposePlanTool) Schema() map[string]any {
	return objectSchema([]string{"title", "summary", "steps", "affected_resources"}, map[string]any{
		"title":   stringProperty("Short plan title."),
		"summary": stringProperty("What the plan will do and why."),
		"steps": map[string]any{
			"type":        "array",
			"description": "Ordered steps the plan will take.",
			"items":       map[string]any{"type": "string"},
		},
		"affected_resources": map[string]any{
			"type":        "array",
			"description": "Resources the plan may mutate, as paths, commands, or glob patterns.",
			"items":       map[string]any{"type": "string"},
		},
	})
}

func (t *ProposePlanTool) Execute(ctx context.Context, args map[string]any) (string, *ClientAction, error) {
	title, err := stringArg(args, "title")
	if err != nil {
		return "", nil, err
	}
	summary := optionalStringArg(args, "summary")
	steps := stringSliceArg(args, "steps")
	resources := stringSliceArg(args, "affected_resources")

	id, err := t.Proposer.Propose(title, summary, steps, resources)
	if err != nil {
		return "", nil, err
	}
	action := &ClientAction{
		Kind: ActionPlanProposal,
		Payload: map[string]any{
			"id":                 id,
			"title":              title,
			"summary":            summary,
			"steps":              steps,
			"affected_resources": resources,
		},
	}
	return fmt.Sprintf("Plan '%s' proposed with id %s; awaiting approval.", title, id), action, nil
}

func stringSliceArg(args map[string]any, key string) []string {
	raw, ok := args[key].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
