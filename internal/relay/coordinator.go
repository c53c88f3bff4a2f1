// Package relay pumps events between the two socket boundaries of a call and
// drives each session's lifecycle: create on stream start, activate on engine
// handshake, tear down exactly once on whichever terminal signal fires first.
package relay

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"time"

	"github.com/callweave/callweave/internal/audio"
	"github.com/callweave/callweave/internal/engine"
	"github.com/callweave/callweave/internal/session"
	"github.com/callweave/callweave/internal/transport"
)

const (
	handshakeWait  = 15 * time.Second
	summaryTimeout = 60 * time.Second
	toolTimeout    = 30 * time.Second
)

// EngineDialer opens one engine connection per call. Abstracted so tests can
// substitute a fake for the realtime API.
type EngineDialer interface {
	Dial(ctx context.Context, cfg engine.Config, cb engine.Callbacks) (session.EngineConn, error)
}

type realtimeDialer struct{}

func (realtimeDialer) Dial(ctx context.Context, cfg engine.Config, cb engine.Callbacks) (session.EngineConn, error) {
	return engine.Dial(ctx, cfg, cb)
}

// NewRealtimeDialer returns the production dialer for the OpenAI Realtime API.
func NewRealtimeDialer() EngineDialer {
	return realtimeDialer{}
}

// Config holds the engine settings shared by all calls.
type Config struct {
	EngineAPIKey   string
	EngineModel    string
	Voice          string
	Instructions   string
	CommitInterval time.Duration
}

// Coordinator serves media stream connections. One instance handles all
// concurrent calls; per-call state lives in the session registry.
type Coordinator struct {
	cfg      Config
	registry *session.Registry
	store    session.CallStore
	executor session.ToolExecutor
	schemas  []engine.ToolSchema
	summary  session.SummaryNotifier
	dialer   EngineDialer
}

func New(cfg Config, registry *session.Registry, store session.CallStore, executor session.ToolExecutor, schemas []engine.ToolSchema, summary session.SummaryNotifier, dialer EngineDialer) *Coordinator {
	return &Coordinator{
		cfg:      cfg,
		registry: registry,
		store:    store,
		executor: executor,
		schemas:  schemas,
		summary:  summary,
		dialer:   dialer,
	}
}

// Registry exposes the live-call registry, for shutdown sweeps and the ops API.
func (c *Coordinator) Registry() *session.Registry {
	return c.registry
}

// HandleCall is the transport-side pump: it reads the socket until a terminal
// signal and routes each event to the call's session. Implements
// transport.CallHandler.
func (c *Coordinator) HandleCall(conn *transport.Conn) {
	var sess *session.Session
	reason := "transport socket closed"

	defer func() {
		if sess != nil {
			c.teardown(sess, reason)
		} else {
			_ = conn.Close()
		}
	}()

	for {
		msg, err := conn.Read()
		if err != nil {
			if errors.Is(err, transport.ErrMalformed) {
				log.Printf("relay: skipping malformed transport frame: %v", err)
				continue
			}
			return
		}

		switch msg.Event {
		case transport.EventStart:
			if msg.Start == nil {
				log.Printf("relay: start event without payload")
				continue
			}
			if sess != nil {
				// A socket carries exactly one stream. A second start frame
				// is a protocol violation; honoring it would orphan the live
				// session this pump already owns.
				log.Printf("relay: call %s: ignoring extra start frame for %s", sess.CallSID, msg.Start.CallSID)
				continue
			}
			sess = c.handleStart(conn, msg.Start)
			if sess == nil {
				reason = "session setup failed"
				return
			}

		case transport.EventMedia:
			if sess == nil || msg.Media == nil {
				continue
			}
			if err := sess.OnTransportAudio(msg.Media.Payload); err != nil {
				if errors.Is(err, audio.ErrInvalidFrame) {
					log.Printf("relay: call %s: dropping invalid frame: %v", sess.CallSID, err)
					continue
				}
				// Engine write failed; terminal for this call.
				log.Printf("relay: call %s: engine write error: %v", sess.CallSID, err)
				reason = "engine socket error"
				return
			}

		case transport.EventStop:
			reason = "transport stop"
			return

		case transport.EventMark:
			// Playback acknowledgment; nothing to do.

		default:
			log.Printf("relay: ignoring transport event %q", msg.Event)
		}
	}
}

// handleStart runs the call-start sequence: registry create, persistence
// registration, transport ack, and the asynchronous engine handshake. The
// transport pump must not block on the handshake, so it continues reading
// (and dropping pre-handshake audio) while the engine attaches.
func (c *Coordinator) handleStart(conn *transport.Conn, start *transport.StartPayload) *session.Session {
	caller := session.CallerIdentity{
		From: start.CustomParameters["from"],
		To:   start.CustomParameters["to"],
	}

	sess, err := c.registry.Create(start.CallSID, conn, caller, session.Options{CommitInterval: c.cfg.CommitInterval})
	if err != nil {
		log.Printf("relay: rejecting call %s: %v", start.CallSID, err)
		_ = conn.SendError("call already in progress")
		return nil
	}
	sess.SetStreamSID(start.StreamSID)

	conversationID, err := c.store.RegisterCallStart(start.CallSID, caller)
	if err != nil {
		log.Printf("relay: call %s: register start failed: %v", start.CallSID, err)
	} else {
		sess.SetConversationID(conversationID)
	}

	if err := conn.SendConnected(start.CallSID); err != nil {
		log.Printf("relay: call %s: connected ack failed: %v", start.CallSID, err)
	}

	log.Printf("relay: call %s started, stream %s, from %s", start.CallSID, start.StreamSID, caller.From)

	go c.connectEngine(sess, conn)
	return sess
}

// connectEngine performs the engine handshake and promotes the session to
// ACTIVE. A handshake failure is terminal for this call only: the transport
// is told, and the session goes straight through closing.
func (c *Coordinator) connectEngine(sess *session.Session, conn *transport.Conn) {
	ctx, cancel := context.WithTimeout(context.Background(), handshakeWait)
	defer cancel()

	ready := make(chan struct{}, 1)
	cb := engine.Callbacks{
		OnReady: func() {
			select {
			case ready <- struct{}{}:
			default:
			}
		},
		OnAudioDelta: func(delta string) {
			if err := sess.OnEngineAudio(delta); err != nil {
				log.Printf("relay: call %s: media out failed: %v", sess.CallSID, err)
			}
		},
		OnUserTranscript: func(text string) {
			c.handleTranscript(sess, "user", text)
		},
		OnResponseDone: func(text string) {
			c.handleTranscript(sess, "assistant", text)
		},
		OnToolCallStart: func(callID, name string) {
			if err := sess.ToolCallStart(callID, name); err != nil {
				log.Printf("relay: call %s: tool start rejected: %v", sess.CallSID, err)
			}
		},
		OnToolCallFragment: func(callID, delta string) {
			if err := sess.ToolCallFragment(callID, "", delta); err != nil {
				log.Printf("relay: call %s: tool fragment rejected: %v", sess.CallSID, err)
			}
		},
		OnToolCallDone: func(callID, name, arguments string) {
			c.handleToolDone(sess, callID, name, arguments)
		},
		OnError: func(err error) {
			log.Printf("relay: call %s: engine error: %v", sess.CallSID, err)
		},
		OnClosed: func(err error) {
			if err != nil {
				log.Printf("relay: call %s: engine socket error: %v", sess.CallSID, err)
			}
			c.teardown(sess, "engine socket closed")
		},
	}

	client, err := c.dialer.Dial(ctx, engine.Config{
		APIKey:       c.cfg.EngineAPIKey,
		Model:        c.cfg.EngineModel,
		Voice:        c.cfg.Voice,
		Instructions: c.cfg.Instructions,
		Tools:        c.schemas,
	}, cb)
	if err != nil {
		c.failHandshake(sess, conn, err)
		return
	}

	select {
	case <-ready:
	case <-ctx.Done():
		_ = client.Close()
		c.failHandshake(sess, conn, ctx.Err())
		return
	}

	if err := sess.Activate(client); err != nil {
		// Transport hung up while the handshake was in flight.
		_ = client.Close()
		return
	}

	// The engine does not speak until prompted; trigger the greeting.
	if err := client.CreateResponse(); err != nil {
		log.Printf("relay: call %s: greeting trigger failed: %v", sess.CallSID, err)
	}

	log.Printf("relay: call %s active", sess.CallSID)
}

func (c *Coordinator) failHandshake(sess *session.Session, conn *transport.Conn, cause error) {
	log.Printf("relay: call %s: %v: %v", sess.CallSID, session.ErrHandshakeFailed, cause)
	_ = conn.SendError("assistant unavailable")
	c.teardown(sess, "engine handshake failed")
}

func (c *Coordinator) handleTranscript(sess *session.Session, role, text string) {
	sess.AppendTurn(role, text)
	if err := c.store.AppendTranscriptTurn(sess.CallSID, role, text); err != nil {
		log.Printf("relay: call %s: persist transcript turn failed: %v", sess.CallSID, err)
	}
}

// handleToolDone finalizes an assembled invocation, executes it, and returns
// the result to the engine keyed by the engine's call ID.
func (c *Coordinator) handleToolDone(sess *session.Session, callID, name, arguments string) {
	call, err := sess.ToolCallComplete(callID)
	if errors.Is(err, session.ErrToolProtocol) && name != "" {
		// The start signal never arrived; the done event carries enough to
		// recover the whole invocation.
		if ferr := sess.ToolCallFragment(callID, name, arguments); ferr == nil {
			call, err = sess.ToolCallComplete(callID)
		}
	}

	engineConn := sess.Engine()
	if engineConn == nil {
		// Closing won the race; the finished call is discarded.
		return
	}

	switch {
	case errors.Is(err, session.ErrToolArguments):
		log.Printf("relay: call %s: tool %s arguments unparseable: %v", sess.CallSID, call.Name, err)
		c.sendToolResult(sess, engineConn, callID, session.ToolResult{}, errors.New("arguments not valid JSON"))
		return
	case err != nil:
		log.Printf("relay: call %s: tool completion rejected: %v", sess.CallSID, err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), toolTimeout)
	defer cancel()

	result, execErr := c.executor.Execute(ctx, call.Name, call.Arguments, sess.Caller(), sess.CallSID)
	if execErr != nil {
		log.Printf("relay: call %s: tool %s failed: %v", sess.CallSID, call.Name, execErr)
	} else if result.CallerName != "" {
		sess.SetCallerName(result.CallerName)
	}

	c.sendToolResult(sess, engineConn, callID, result, execErr)

	if execErr == nil && result.EndCall {
		c.teardown(sess, "call ended by tool")
	}
}

// sendToolResult serializes the executor's outcome back onto the engine
// socket and asks the model to continue speaking.
func (c *Coordinator) sendToolResult(sess *session.Session, engineConn session.EngineConn, callID string, result session.ToolResult, execErr error) {
	payload := map[string]any{"success": execErr == nil}
	if execErr != nil {
		payload["error"] = execErr.Error()
	} else {
		payload["result"] = result.Output
	}

	output, err := json.Marshal(payload)
	if err != nil {
		output = []byte(`{"success":false,"error":"internal error"}`)
	}

	if err := engineConn.SendToolResult(callID, string(output)); err != nil {
		log.Printf("relay: call %s: send tool result failed: %v", sess.CallSID, err)
		return
	}
	if err := engineConn.CreateResponse(); err != nil {
		log.Printf("relay: call %s: response after tool result failed: %v", sess.CallSID, err)
	}
}

// teardown runs the close sequence exactly once per session, no matter how
// many terminal signals race here: persistence notified, summary dispatched,
// registry entry released.
func (c *Coordinator) teardown(sess *session.Session, reason string) {
	if !sess.RequestClose(reason) {
		return
	}

	duration := sess.Duration()
	log.Printf("relay: call %s closed (%s) after %s, %d frames dropped",
		sess.CallSID, reason, duration.Round(time.Second), sess.DroppedFrames())

	if err := c.store.RegisterCallEnd(sess.CallSID); err != nil {
		log.Printf("relay: call %s: register end failed: %v", sess.CallSID, err)
	}

	if c.summary != nil && sess.ClaimSummary() {
		turns := sess.Transcript()
		caller := sess.Caller()
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), summaryTimeout)
			defer cancel()
			if err := c.summary.SendSummary(ctx, sess.CallSID, turns, caller, duration); err != nil {
				log.Printf("relay: call %s: summary failed: %v", sess.CallSID, err)
			}
		}()
	}

	c.registry.Remove(sess.CallSID)
}

// Shutdown closes every live session, for process exit.
func (c *Coordinator) Shutdown() {
	for _, sess := range c.registry.All() {
		c.teardown(sess, "server shutdown")
	}
}
