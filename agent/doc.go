// Package agent implements the conversation loop controller for Lumen.
//
// A turn starts with one user message and ends with a final assistant
// answer, possibly spanning several model round-trips. The agent streams
// each response through an aggregator, dispatches any finalized tool calls
// (privileged ones through the safety gate), and decides between another
// round-trip and termination:
//
//   - ModeMentor performs at most one follow-up round-trip after tool
//     dispatch, keeping user-facing latency predictable.
//   - ModeOperator keeps re-invoking the model with tool results until a
//     round yields no tool calls or the configured budget runs out.
//
// Interaction surfaces plug in through ProcessCallbacks: streamed text,
// tool lifecycle events, warnings, and the turn's ClientActions, which are
// delivered once after the final stream closes.
//
// The subpackage agent/terminal provides the interactive command line,
// including the prompt that resolves plan proposals.
package agent
