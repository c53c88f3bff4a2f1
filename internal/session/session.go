// Package session owns the per-call state of the relay: the state machine
// driving a call from connect to teardown, the registry of live calls, the
// tool-call assembler, and the audio-commit scheduler.
package session

import (
	"sync"
	"time"

	"github.com/callweave/callweave/internal/audio"
)

// State is the lifecycle position of a call. Transitions are monotonic:
// CONNECTING → ACTIVE → CLOSING → CLOSED, never backwards.
type State int

const (
	// StateConnecting: transport stream registered, engine handshake in flight.
	StateConnecting State = iota
	// StateActive: steady-state relay in both directions.
	StateActive
	// StateClosing: no new audio or tool fragments accepted, sockets closing.
	StateClosing
	// StateClosed: terminal, resources released.
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateActive:
		return "active"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Options tune per-session behavior.
type Options struct {
	// CommitInterval is the quiescent gap after the last inbound audio frame
	// before the engine is told to interpret the buffered input.
	CommitInterval time.Duration
}

// Session is the orchestrator's per-call state container. All mutable fields
// are guarded by mu; the two inbound pumps and the commit timer callback all
// serialize through it. Sockets are owned exclusively by this session.
type Session struct {
	CallSID string

	mu                sync.Mutex
	state             State
	streamSID         string
	transport         TransportConn
	engine            EngineConn
	caller            CallerIdentity
	conversationID    string
	startedAt         time.Time
	transcript        []Turn
	assembler         *ToolCallAssembler
	committer         *CommitScheduler
	summaryDispatched bool
	droppedFrames     int
	closeReason       string
}

func newSession(callSID string, transport TransportConn, caller CallerIdentity, opts Options) *Session {
	s := &Session{
		CallSID:   callSID,
		state:     StateConnecting,
		transport: transport,
		caller:    caller,
		startedAt: time.Now().UTC(),
		assembler: NewToolCallAssembler(),
	}
	s.committer = NewCommitScheduler(opts.CommitInterval, s.commitAudio)
	return s
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// SetStreamSID records the transport stream identifier once the stream is
// established. Outbound media cannot be addressed without it.
func (s *Session) SetStreamSID(streamSID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.streamSID = streamSID
}

// StreamSID returns the transport stream identifier, if known.
func (s *Session) StreamSID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.streamSID
}

// Caller returns the caller identity as currently known.
func (s *Session) Caller() CallerIdentity {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.caller
}

// SetCallerName records a name the assistant learned during the call.
func (s *Session) SetCallerName(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.caller.Name = name
}

// SetConversationID records the persistence collaborator's handle.
func (s *Session) SetConversationID(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conversationID = id
}

// ConversationID returns the persistence handle, if registered.
func (s *Session) ConversationID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conversationID
}

// Activate attaches the engine connection and promotes the session to ACTIVE.
// Fails if the session already left CONNECTING, in which case the caller must
// close the engine connection itself.
func (s *Session) Activate(engine EngineConn) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateConnecting {
		return ErrSessionClosed
	}

	s.engine = engine
	s.state = StateActive
	return nil
}

// OnTransportAudio forwards one inbound media frame to the engine and arms
// the commit timer. Frames arriving before the engine is attached, or after
// closing began, are dropped silently: the engine not being ready is an
// expected transient, and buffering unbounded pre-handshake audio is worse
// than losing it.
func (s *Session) OnTransportAudio(payload string) error {
	s.mu.Lock()
	if s.state != StateActive || s.engine == nil {
		s.droppedFrames++
		s.mu.Unlock()
		return nil
	}
	engine := s.engine
	s.mu.Unlock()

	normalized, err := audio.ToEngineFormat(payload)
	if err != nil {
		return err
	}

	if err := engine.AppendAudio(normalized); err != nil {
		return err
	}

	// Re-armed under the lock so a close racing this frame cannot be
	// followed by a re-armed timer after the scheduler was stopped.
	s.mu.Lock()
	if s.state == StateActive {
		s.committer.Schedule()
	}
	s.mu.Unlock()
	return nil
}

// commitAudio is the commit timer callback.
func (s *Session) commitAudio() {
	s.mu.Lock()
	engine := s.engine
	active := s.state == StateActive
	s.mu.Unlock()

	if !active || engine == nil {
		return
	}
	_ = engine.CommitAudio()
}

// OnEngineAudio forwards one response-audio fragment out to the transport.
// No-ops when the transport stream is absent or the session is closing.
func (s *Session) OnEngineAudio(delta string) error {
	s.mu.Lock()
	if s.state == StateClosing || s.state == StateClosed {
		s.mu.Unlock()
		return nil
	}
	transport := s.transport
	streamSID := s.streamSID
	s.mu.Unlock()

	if transport == nil || streamSID == "" {
		return nil
	}

	payload, err := audio.ToTransportFormat(delta)
	if err != nil {
		return err
	}

	return transport.SendMedia(streamSID, payload)
}

// AppendTurn adds a transcript entry. Ignored once closing has begun.
func (s *Session) AppendTurn(role, text string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateClosing || s.state == StateClosed {
		return
	}
	s.transcript = append(s.transcript, Turn{Role: role, Text: text})
}

// Transcript returns a copy of the accumulated turns.
func (s *Session) Transcript() []Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Turn(nil), s.transcript...)
}

// ToolCallStart delegates a tool-invocation-started signal to the assembler.
func (s *Session) ToolCallStart(id, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateActive {
		return ErrSessionClosed
	}
	return s.assembler.Start(id, name)
}

// ToolCallFragment delegates an argument chunk to the assembler.
func (s *Session) ToolCallFragment(id, nameHint, chunk string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateActive {
		return ErrSessionClosed
	}
	return s.assembler.Fragment(id, nameHint, chunk)
}

// ToolCallComplete finalizes the pending invocation. An in-flight tool call
// is allowed to finish once even while closing, then discarded upstream.
func (s *Session) ToolCallComplete(id string) (ToolCall, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateClosed {
		return ToolCall{}, ErrSessionClosed
	}
	return s.assembler.Complete(id)
}

// Engine returns the engine connection, or nil before activation.
func (s *Session) Engine() EngineConn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine
}

// RequestClose drives the session through CLOSING to CLOSED: the commit timer
// is cancelled, any partial tool accumulation discarded, and both sockets
// closed. It is the single cancellation entry point and is idempotent — the
// transport's explicit stop and the socket's close event can both fire for
// the same call, and only the first caller gets true and runs teardown.
func (s *Session) RequestClose(reason string) bool {
	s.mu.Lock()
	if s.state == StateClosing || s.state == StateClosed {
		s.mu.Unlock()
		return false
	}
	s.state = StateClosing
	s.closeReason = reason
	engine := s.engine
	transport := s.transport
	s.engine = nil
	s.transport = nil
	s.mu.Unlock()

	s.committer.Stop()

	if engine != nil {
		_ = engine.Close()
	}
	if transport != nil {
		_ = transport.Close()
	}

	s.mu.Lock()
	s.assembler.Reset()
	s.state = StateClosed
	s.mu.Unlock()
	return true
}

// ClaimSummary returns true exactly once per session. Both the graceful stop
// and a hard socket close can reach the summary step; the flag keeps the
// side effect from firing twice.
func (s *Session) ClaimSummary() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.summaryDispatched {
		return false
	}
	s.summaryDispatched = true
	return true
}

// CloseReason reports why the session was closed, if it has been.
func (s *Session) CloseReason() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeReason
}

// DroppedFrames reports how many inbound frames were discarded, mostly
// pre-handshake audio. Logged at close so degraded calls are visible.
func (s *Session) DroppedFrames() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.droppedFrames
}

// StartedAt returns the session creation time.
func (s *Session) StartedAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.startedAt
}

// Duration returns how long the session has existed.
func (s *Session) Duration() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return time.Since(s.startedAt)
}
