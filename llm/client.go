package llm

import (
	"context"

	"github.com/lumen-mentor/lumen/session"
)

// ToolDef describes a callable capability advertised to the model.
type ToolDef struct {
	Name        string
	Description string
	// Parameters is a JSON-schema object describing the arguments.
	Parameters map[string]any
}

// Usage is the token accounting for one model round-trip.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
}

// ToolDelta is a fragment of a tool call keyed by its position index.
// Any of ID, Name, and Args may be partial; fragments for the same index
// concatenate in arrival order.
type ToolDelta struct {
	Index int
	ID    string
	Name  string
	Args  string
}

// Delta is one increment of a streamed model response. Any combination of
// fields may be set, including none (a pure accounting delta).
type Delta struct {
	Text  string
	Tool  *ToolDelta
	Usage *Usage
}

// Request is a single model round-trip: full history plus the advertised
// tools. The system instruction travels separately because providers place
// it outside the message list.
type Request struct {
	System   string
	Messages []session.Message
	Tools    []ToolDef
}

// Client streams one model response. Implementations translate their SDK's
// stream events into Deltas and push each through emit in order. A non-nil
// error from emit or from the transport aborts the stream.
type Client interface {
	Stream(ctx context.Context, req Request, emit func(Delta) error) error
}

// Scripted is a Client whose responses are pre-recorded delta sequences,
// played back one script per Stream call. It backs the loop and aggregator
// tests.
type Scripted struct {
	Scripts [][]Delta
	// Requests records every request received, for assertions.
	Requests []Request

	next int
}

func (s *Scripted) Stream(ctx context.Context, req Request, emit func(Delta) error) error {
	s.Requests = append(s.Requests, req)
	if s.next >= len(s.Scripts) {
		return nil
	}
	script := s.Scripts[s.next]
	s.next++
	for _, d := range script {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := emit(d); err != nil {
			return err
		}
	}
	return nil
}
