// Package engine maintains one OpenAI Realtime API WebSocket per call: it
// configures the session, streams caller audio in, and surfaces the model's
// audio, transcripts, and fragmented tool-call events through callbacks.
package engine

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	realtimeURL  = "wss://api.openai.com/v1/realtime"
	DefaultModel = "gpt-4o-realtime-preview-2024-12-17"

	handshakeTimeout = 10 * time.Second
)

// ToolSchema describes one tool the model may invoke, in the wire shape the
// realtime API expects for session.update.
type ToolSchema struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// Config holds per-session engine settings.
type Config struct {
	APIKey       string
	Model        string
	Voice        string
	Instructions string
	Tools        []ToolSchema
}

// Callbacks surface engine events to the relay. All callbacks are invoked
// from the client's single read goroutine, so they arrive in wire order.
type Callbacks struct {
	// OnReady fires once, when the engine confirms the session configuration.
	OnReady func()
	// OnAudioDelta carries one base64 response-audio fragment.
	OnAudioDelta func(delta string)
	// OnUserTranscript carries the completed transcription of caller speech.
	OnUserTranscript func(text string)
	// OnResponseDone carries the full transcript of one assistant response.
	OnResponseDone func(text string)
	// OnToolCallStart announces a function call item with its call ID.
	OnToolCallStart func(callID, name string)
	// OnToolCallFragment carries one streamed argument chunk.
	OnToolCallFragment func(callID, delta string)
	// OnToolCallDone signals arguments complete. Name and the full argument
	// string ride along so a lost start signal can be recovered.
	OnToolCallDone func(callID, name, arguments string)
	// OnError carries engine-reported errors. The session stays up.
	OnError func(err error)
	// OnClosed fires when the read pump exits; err is nil on clean close.
	OnClosed func(err error)
}

// Client is one realtime connection. Safe for concurrent writes; reads
// happen on an internal goroutine started by Dial.
type Client struct {
	ws   *websocket.Conn
	wsMu sync.Mutex

	cb Callbacks

	mu     sync.Mutex
	closed bool
	ready  bool
}

// Dial connects, sends the session configuration, and starts the read pump.
// The connection is not usable for audio until Callbacks.OnReady fires.
func Dial(ctx context.Context, cfg Config, cb Callbacks) (*Client, error) {
	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}

	header := http.Header{}
	header.Set("Authorization", "Bearer "+cfg.APIKey)
	header.Set("OpenAI-Beta", "realtime=v1")

	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	ws, _, err := dialer.DialContext(ctx, fmt.Sprintf("%s?model=%s", realtimeURL, model), header)
	if err != nil {
		return nil, fmt.Errorf("engine: connect: %w", err)
	}

	c := &Client{ws: ws, cb: cb}
	if err := c.configureSession(cfg); err != nil {
		_ = ws.Close()
		return nil, fmt.Errorf("engine: configure session: %w", err)
	}

	go c.readLoop()
	return c, nil
}

// configureSession sends session.update: instructions, μ-law audio in both
// directions (matching the transport's codec so frames pass through
// unmodified), caller-speech transcription, and the tool schemas.
func (c *Client) configureSession(cfg Config) error {
	voice := cfg.Voice
	if voice == "" {
		voice = "alloy"
	}

	apiTools := make([]map[string]any, len(cfg.Tools))
	for i, tool := range cfg.Tools {
		apiTools[i] = map[string]any{
			"type":        "function",
			"name":        tool.Name,
			"description": tool.Description,
			"parameters":  tool.Parameters,
		}
	}

	return c.sendJSON(map[string]any{
		"type": "session.update",
		"session": map[string]any{
			"modalities":          []string{"text", "audio"},
			"instructions":        cfg.Instructions,
			"voice":               voice,
			"input_audio_format":  "g711_ulaw",
			"output_audio_format": "g711_ulaw",
			"input_audio_transcription": map[string]any{
				"model": "whisper-1",
			},
			"turn_detection": map[string]any{
				"type": "server_vad",
			},
			"tools":       apiTools,
			"tool_choice": "auto",
		},
	})
}

// AppendAudio streams one base64 caller-audio fragment into the input buffer.
func (c *Client) AppendAudio(payload string) error {
	return c.sendJSON(map[string]any{
		"type":  "input_audio_buffer.append",
		"audio": payload,
	})
}

// CommitAudio tells the engine the buffered input is ready to interpret.
func (c *Client) CommitAudio() error {
	return c.sendJSON(map[string]string{"type": "input_audio_buffer.commit"})
}

// SendToolResult returns a tool execution result keyed by the engine's own
// call ID so it can correlate response to request.
func (c *Client) SendToolResult(callID, output string) error {
	return c.sendJSON(map[string]any{
		"type": "conversation.item.create",
		"item": map[string]any{
			"type":    "function_call_output",
			"call_id": callID,
			"output":  output,
		},
	})
}

// CreateResponse asks the model to speak. Used both as the explicit greeting
// trigger after activation and to resume after a tool result.
func (c *Client) CreateResponse() error {
	return c.sendJSON(map[string]string{"type": "response.create"})
}

// Close shuts the connection down. Subsequent read errors are suppressed.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	return c.ws.Close()
}

func (c *Client) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *Client) readLoop() {
	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if c.isClosed() {
				err = nil
			}
			if c.cb.OnClosed != nil {
				c.cb.OnClosed(err)
			}
			return
		}
		c.handleEvent(data)
	}
}

func (c *Client) sendJSON(v any) error {
	c.wsMu.Lock()
	defer c.wsMu.Unlock()
	return c.ws.WriteJSON(v)
}
