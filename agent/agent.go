package agent

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/lumen-mentor/lumen/config"
	"github.com/lumen-mentor/lumen/errors"
	"github.com/lumen-mentor/lumen/llm"
	"github.com/lumen-mentor/lumen/logging"
	"github.com/lumen-mentor/lumen/prompt"
	"github.com/lumen-mentor/lumen/session"
	"github.com/lumen-mentor/lumen/store"
	"github.com/lumen-mentor/lumen/telemetry"
	"github.com/lumen-mentor/lumen/tools"
)

type Mode string

const (
	// ModeMentor is the bounded conversational loop: at most one follow-up
	// round-trip after tool dispatch, for predictable latency.
	ModeMentor Mode = "mentor"
	// ModeOperator is the privileged loop: it re-invokes the model after
	// every dispatch until a round yields no tool calls, up to the
	// configured budget.
	ModeOperator Mode = "operator"
)

type ToolVerbosity int

const (
	ToolVerbosityNone ToolVerbosity = iota
	ToolVerbosityInfo
	ToolVerbosityAll
)

// ProcessCallbacks lets each interaction surface (terminal, tests, a future
// server) observe the turn without the loop knowing how events are rendered.
type ProcessCallbacks struct {
	// OnText receives each streamed text fragment as it arrives.
	OnText func(fragment string)
	// OnToolCall fires when a finalized invocation is about to dispatch.
	OnToolCall func(call session.ToolCall)
	// OnToolResult fires when an invocation's result is ready.
	OnToolResult func(call session.ToolCall, result tools.Result)
	// OnClientActions delivers the turn's accumulated actions exactly once,
	// after the final stream has closed. Never interleaved with OnText.
	OnClientActions func(actions []tools.ClientAction)
	// OnWarning reports non-fatal conditions (ignored tool requests,
	// exhausted budgets).
	OnWarning func(warning string)
}

// Agent drives one session's turns: compose, stream, dispatch, loop, record.
type Agent struct {
	Config    *config.Config
	Session   *session.Session
	Client    llm.Client
	Registry  *tools.Registry
	Auth      tools.Authorizer
	Store     *store.Store
	Composer  *prompt.Composer
	Mode      Mode
	Verbosity ToolVerbosity

	// Reviewer, when set, receives a background session review request
	// every reviewEvery messages. Optional.
	Reviewer *telemetry.Reviewer

	limiter *rate.Limiter
}

// reviewEvery is the message-count interval between background reviews.
const reviewEvery = 10

// New wires an agent for one session. auth may be nil in mentor mode, where
// no privileged tools are registered anyway.
func New(cfg *config.Config, sess *session.Session, client llm.Client, registry *tools.Registry, auth tools.Authorizer, st *store.Store, mode Mode, verbosity ToolVerbosity) *Agent {
	perSecond := rate.Limit(cfg.RateLimit.TurnsPerMinute / 60.0)
	return &Agent{
		Config:    cfg,
		Session:   sess,
		Client:    client,
		Registry:  registry,
		Auth:      auth,
		Store:     st,
		Composer:  &prompt.Composer{Store: st, UserID: sess.UserID},
		Mode:      mode,
		Verbosity: verbosity,
		limiter:   rate.NewLimiter(perSecond, cfg.RateLimit.Burst),
	}
}

// ProcessUserInput runs one full turn. On a transport error the text already
// streamed through OnText stands, usage is still recorded, and no assistant
// message is persisted for the aborted round.
func (a *Agent) ProcessUserInput(ctx context.Context, input string, cb ProcessCallbacks) error {
	if !a.limiter.Allow() {
		return errors.New("turn rate limit exceeded; try again shortly")
	}
	log := logging.For("agent")

	rec := telemetry.NewRecorder(a.Config.RateFor(a.Config.Model))
	defer rec.Flush(nil) // abort path; a completed turn has already flushed

	userMsg := session.Message{Role: session.RoleUser, Content: input}
	a.Session.AddMessage(userMsg)
	if err := a.Store.AppendMessage(a.Session.ID, userMsg, nil); err != nil {
		return err
	}

	system := a.Composer.Compose(string(a.Mode))
	defs := a.Registry.Defs()
	var actions []tools.ClientAction

	budget := 2 // mentor: first round plus at most one follow-up
	if a.Mode == ModeOperator {
		budget = a.Config.OperatorLoopBudget
	}

	for round := 0; round < budget; round++ {
		agg := llm.NewAggregator(cb.OnText)
		req := llm.Request{System: system, Messages: a.Session.Messages, Tools: defs}
		streamErr := a.Client.Stream(ctx, req, func(d llm.Delta) error {
			agg.Feed(d)
			return nil
		})
		rec.Add(agg.Usage())
		if streamErr != nil {
			return errors.Wrapf(streamErr, "model stream aborted")
		}

		text := agg.Text()
		calls := agg.ToolCalls()

		assistantMsg := session.Message{Role: session.RoleAssistant, Content: text, ToolCalls: calls}
		a.Session.AddMessage(assistantMsg)
		if err := a.Store.AppendMessage(a.Session.ID, assistantMsg, nil); err != nil {
			return err
		}

		if len(calls) == 0 {
			return a.finishTurn(rec, actions, cb)
		}

		// The mentor follow-up verbalizes tool results; further tool
		// requests in it are not dispatched. Each ignored request still
		// gets a result message, so the persisted history never carries
		// an unanswered tool call into the next round-trip.
		if a.Mode == ModeMentor && round > 0 {
			a.warn(cb, fmt.Sprintf("ignoring %d tool request(s) issued after the follow-up round", len(calls)))
			for _, call := range calls {
				toolMsg := session.Message{
					Role:      session.RoleTool,
					Content:   fmt.Sprintf("tool '%s' was not executed: no further tool use this turn", call.Name),
					IsError:   true,
					ToolCalls: []session.ToolCall{call},
				}
				a.Session.AddMessage(toolMsg)
				if err := a.Store.AppendMessage(a.Session.ID, toolMsg, nil); err != nil {
					return err
				}
			}
			return a.finishTurn(rec, actions, cb)
		}

		outcomes := a.dispatch(ctx, calls, cb)
		terminal := false
		for i, out := range outcomes {
			if out.Action != nil {
				actions = append(actions, *out.Action)
				rec.Touch(out.Action.Domain)
			}
			toolMsg := session.Message{
				Role:      session.RoleTool,
				Content:   out.Result.Content,
				IsError:   out.Result.IsError,
				ToolCalls: []session.ToolCall{calls[i]},
			}
			a.Session.AddMessage(toolMsg)
			if err := a.Store.AppendMessage(a.Session.ID, toolMsg, nil); err != nil {
				return err
			}
			if !out.Result.IsError && a.Registry.IsTerminal(calls[i].Name) {
				terminal = true
			}
		}

		if terminal {
			log.Infow("terminal tool completed, ending turn", "session", a.Session.ID)
			return a.finishTurn(rec, actions, cb)
		}

		// Mentor mode follows up only when the round produced no text to
		// show; a round that already answered in text ends the turn.
		if a.Mode == ModeMentor && text != "" {
			return a.finishTurn(rec, actions, cb)
		}
	}

	a.warn(cb, fmt.Sprintf("model round-trip budget (%d) exhausted; ending turn", budget))
	return a.finishTurn(rec, actions, cb)
}

// finishTurn records telemetry on the final assistant message and delivers
// the turn's client actions, in that order, exactly once.
func (a *Agent) finishTurn(rec *telemetry.Recorder, actions []tools.ClientAction, cb ProcessCallbacks) error {
	var flushErr error
	rec.Flush(func(tel session.Telemetry) {
		flushErr = a.Store.AttachTelemetry(a.Session.ID, tel)
	})
	if flushErr != nil {
		logging.For("agent").Errorw("failed to record turn telemetry", "session", a.Session.ID, "error", flushErr)
	}
	if len(actions) > 0 && cb.OnClientActions != nil {
		cb.OnClientActions(actions)
	}
	a.maybeScheduleReview()
	return nil
}

// maybeScheduleReview enqueues a session review every few messages. The
// review runs on the reviewer's worker, off the turn's critical path.
func (a *Agent) maybeScheduleReview() {
	if a.Reviewer == nil {
		return
	}
	n, err := a.Store.MessageCount(a.Session.ID)
	if err != nil || n == 0 || n%reviewEvery != 0 {
		return
	}
	summary := fmt.Sprintf("session at %d messages; last answer: %s", n, a.Session.LastAssistantText())
	a.Reviewer.Enqueue(a.Session.ID, summary)
}

// dispatch executes the round's sibling invocations concurrently and
// returns their outcomes in request order. One invocation's failure never
// prevents its siblings from running; failures surface as error Results.
func (a *Agent) dispatch(ctx context.Context, calls []session.ToolCall, cb ProcessCallbacks) []tools.Outcome {
	outcomes := make([]tools.Outcome, len(calls))
	g, gctx := errgroup.WithContext(ctx)
	for i, call := range calls {
		if cb.OnToolCall != nil {
			cb.OnToolCall(call)
		}
		g.Go(func() error {
			outcomes[i] = a.Registry.Dispatch(gctx, call, a.Auth)
			return nil
		})
	}
	g.Wait() // workers never return errors; outcomes carry the failures
	for i, call := range calls {
		if cb.OnToolResult != nil {
			cb.OnToolResult(call, outcomes[i].Result)
		}
	}
	return outcomes
}

func (a *Agent) warn(cb ProcessCallbacks, msg string) {
	logging.For("agent").Warnw(msg, "session", a.Session.ID)
	if cb.OnWarning != nil {
		cb.OnWarning(msg)
	}
}
