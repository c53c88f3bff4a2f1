package session

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ToolCall is one fully assembled invocation from the engine.
type ToolCall struct {
	ID        string
	Name      string
	Arguments map[string]any
}

type pendingToolCall struct {
	id   string
	name string
	args strings.Builder

	// speculative is set when fragments arrived before the start signal and
	// we opened the accumulator from a name hint.
	speculative bool
}

// ToolCallAssembler reconstructs one {name, arguments} invocation from the
// engine's fragmented events: a start announcing name and call ID, zero or
// more argument chunks, and a completion signal. Chunks are concatenated
// strictly in arrival order. At most one invocation may be pending at a time;
// the engine serializes tool calls within a turn, and accepting a second
// start would risk misattributing fragments between two accumulations.
type ToolCallAssembler struct {
	pending *pendingToolCall
}

func NewToolCallAssembler() *ToolCallAssembler {
	return &ToolCallAssembler{}
}

// Start begins accumulating arguments for call id. A start while a different
// call is pending is rejected, not merged. A start matching a speculative
// accumulator fills in the authoritative name.
func (a *ToolCallAssembler) Start(id, name string) error {
	if a.pending != nil {
		if a.pending.id == id && a.pending.speculative {
			a.pending.name = name
			a.pending.speculative = false
			return nil
		}
		return fmt.Errorf("%w: start of %q while %q pending", ErrToolProtocol, id, a.pending.id)
	}

	a.pending = &pendingToolCall{id: id, name: name}
	return nil
}

// Fragment appends one argument chunk. A fragment with no pending call opens
// a speculative accumulator when it carries a name hint (the start signal may
// arrive late); without a hint it is rejected.
func (a *ToolCallAssembler) Fragment(id, nameHint, chunk string) error {
	if a.pending == nil {
		if nameHint == "" {
			return fmt.Errorf("%w: fragment for unknown call %q", ErrToolProtocol, id)
		}
		a.pending = &pendingToolCall{id: id, name: nameHint, speculative: true}
	}

	if a.pending.id != id {
		return fmt.Errorf("%w: fragment for %q while %q pending", ErrToolProtocol, id, a.pending.id)
	}

	a.pending.args.WriteString(chunk)
	return nil
}

// Complete finalizes the pending call and parses the concatenated argument
// text as a JSON object. On parse failure the returned ToolCall still carries
// the ID and name so a failure result can be correlated back to the engine.
// The accumulator is cleared either way, permitting the next call.
func (a *ToolCallAssembler) Complete(id string) (ToolCall, error) {
	if a.pending == nil || a.pending.id != id {
		return ToolCall{}, fmt.Errorf("%w: completion for unknown call %q", ErrToolProtocol, id)
	}

	call := ToolCall{ID: a.pending.id, Name: a.pending.name}
	raw := a.pending.args.String()
	a.pending = nil

	if strings.TrimSpace(raw) == "" {
		call.Arguments = map[string]any{}
		return call, nil
	}

	var args map[string]any
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return call, fmt.Errorf("%w: %v", ErrToolArguments, err)
	}

	call.Arguments = args
	return call, nil
}

// Pending reports whether an invocation is being assembled.
func (a *ToolCallAssembler) Pending() bool {
	return a.pending != nil
}

// Reset discards any in-flight accumulation. Used during teardown.
func (a *ToolCallAssembler) Reset() {
	a.pending = nil
}
