package session

import (
	"context"
	"time"
)

// Turn is one transcript entry. Turns are appended in arrival order per side;
// no chronological interleaving between caller and assistant is guaranteed.
type Turn struct {
	Role string `json:"role"`
	Text string `json:"text"`
}

// CallerIdentity carries the phone numbers Twilio hands us in the stream's
// custom parameters, plus the name once the assistant has learned it.
type CallerIdentity struct {
	From string
	To   string
	Name string
}

// TransportConn is the session's side of the Twilio media stream socket.
// Writes must be safe for concurrent use; the session never shares it.
type TransportConn interface {
	SendMedia(streamSID, payload string) error
	Close() error
}

// EngineConn is the session's side of the realtime AI connection. Nil on a
// session until the engine handshake confirms configuration.
type EngineConn interface {
	AppendAudio(payload string) error
	CommitAudio() error
	SendToolResult(callID, output string) error
	CreateResponse() error
	Close() error
}

// CallStore persists call records and transcript turns. Failures here are
// non-fatal for the live call: callers log and continue.
type CallStore interface {
	RegisterCallStart(callSID string, caller CallerIdentity) (conversationID string, err error)
	AppendTranscriptTurn(callSID, role, text string) error
	SetCallerName(callSID, name string) error
	RegisterCallEnd(callSID string) error
}

// ToolResult is what a tool execution produced. EndCall marks the
// distinguished termination tool: the relay sends the result, then closes.
// CallerName is set when the tool learned the caller's name, so the session
// can carry it into the post-call summary.
type ToolResult struct {
	Output     string
	EndCall    bool
	CallerName string
}

// ToolExecutor runs one assembled tool invocation. Each invocation completes
// or fails independently; the orchestrator does not retry.
type ToolExecutor interface {
	Execute(ctx context.Context, name string, args map[string]any, caller CallerIdentity, callSID string) (ToolResult, error)
}

// SummaryNotifier receives the finished call exactly once.
type SummaryNotifier interface {
	SendSummary(ctx context.Context, callSID string, turns []Turn, caller CallerIdentity, duration time.Duration) error
}
