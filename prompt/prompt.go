// Package prompt composes the system instruction sent with every request.
package prompt

import (
	"fmt"
	"strings"

	"github.com/lumen-mentor/lumen/store"
)

const mentorPreamble = `You are Lumen, a patient mentoring companion. You guide the user through
their growth journey one conversation at a time. Be concrete and brief.
Record durable insights and habits with your tools rather than restating
them in chat. When a view change or domain highlight would help, use the
corresponding tool; never describe interface changes in text.`

const operatorPreamble = `You are Lumen running in operator mode for a trusted administrator. You may
inspect files, run allowlisted commands, and query the local database, but
every mutating action must be covered by an approved plan: propose the plan
first, then wait. Work step by step and report what you actually did.`

// Composer renders the system instruction from the user's stored profile.
type Composer struct {
	Store  *store.Store
	UserID string
}

// Compose builds the instruction for one turn. Profile lookups that fail
// degrade to the bare preamble; a missing profile never blocks a turn.
func (c *Composer) Compose(mode string) string {
	var b strings.Builder
	if mode == "operator" {
		b.WriteString(operatorPreamble)
	} else {
		b.WriteString(mentorPreamble)
	}

	if c.Store == nil {
		return b.String()
	}

	name, stage, err := c.Store.Profile(c.UserID)
	if err == nil {
		b.WriteString("\n\n")
		if name != "" {
			fmt.Fprintf(&b, "The user's name is %s. ", name)
		}
		fmt.Fprintf(&b, "They are in the '%s' stage of their journey.", stage)
	}

	if habits, err := c.Store.Habits(c.UserID); err == nil && len(habits) > 0 {
		b.WriteString("\nCurrent habits:\n")
		for _, h := range habits {
			fmt.Fprintf(&b, "- %s\n", h)
		}
	}

	if insights, err := c.Store.RecentInsights(c.UserID, 5); err == nil && len(insights) > 0 {
		b.WriteString("\nRecent insights:\n")
		for _, in := range insights {
			fmt.Fprintf(&b, "- %s\n", in)
		}
	}

	return strings.TrimRight(b.String(), "\n")
}
