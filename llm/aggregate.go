package llm

import (
	"sort"
	"strings"

	"github.com/lumen-mentor/lumen/session"
)

// Aggregator reconstructs a full model response from an ordered delta
// stream. Text fragments are forwarded through OnText the moment they
// arrive and concatenated internally in the same order. Tool-call fragments
// accumulate per index and are only exposed after the stream ends.
type Aggregator struct {
	// OnText receives each text fragment as it arrives. Optional.
	OnText func(string)

	text  strings.Builder
	calls map[int]*pendingCall
	usage Usage
}

type pendingCall struct {
	id   strings.Builder
	name strings.Builder
	args strings.Builder
}

// NewAggregator creates an empty aggregator. onText may be nil.
func NewAggregator(onText func(string)) *Aggregator {
	return &Aggregator{
		OnText: onText,
		calls:  make(map[int]*pendingCall),
	}
}

// Feed consumes one delta. A delta may carry text, a tool fragment, usage,
// all of them, or nothing.
func (a *Aggregator) Feed(d Delta) {
	if d.Text != "" {
		a.text.WriteString(d.Text)
		if a.OnText != nil {
			a.OnText(d.Text)
		}
	}
	if d.Tool != nil {
		call, ok := a.calls[d.Tool.Index]
		if !ok {
			call = &pendingCall{}
			a.calls[d.Tool.Index] = call
		}
		call.id.WriteString(d.Tool.ID)
		call.name.WriteString(d.Tool.Name)
		call.args.WriteString(d.Tool.Args)
	}
	if d.Usage != nil {
		a.usage.PromptTokens += d.Usage.PromptTokens
		a.usage.CompletionTokens += d.Usage.CompletionTokens
	}
}

// Text returns the full text accumulated so far. After the stream ends this
// equals the concatenation of every text fragment in arrival order.
func (a *Aggregator) Text() string {
	return a.text.String()
}

// Usage returns the summed token accounting reported by the stream.
func (a *Aggregator) Usage() Usage {
	return a.usage
}

// ToolCalls returns the finalized calls in index order. Argument strings are
// returned exactly as accumulated; parsing is the dispatcher's job.
func (a *Aggregator) ToolCalls() []session.ToolCall {
	if len(a.calls) == 0 {
		return nil
	}
	indexes := make([]int, 0, len(a.calls))
	for idx := range a.calls {
		indexes = append(indexes, idx)
	}
	sort.Ints(indexes)

	out := make([]session.ToolCall, 0, len(indexes))
	for _, idx := range indexes {
		call := a.calls[idx]
		out = append(out, session.ToolCall{
			ToolCallID: call.id.String(),
			Name:       call.name.String(),
			Args:       call.args.String(),
		})
	}
	return out
}
