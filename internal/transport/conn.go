package transport

import (
	"sync"

	"github.com/gorilla/websocket"
)

// Conn wraps one media stream socket. Writes are serialized: response audio
// and control messages come from different goroutines than the read pump.
type Conn struct {
	ws *websocket.Conn
	mu sync.Mutex
}

func NewConn(ws *websocket.Conn) *Conn {
	return &Conn{ws: ws}
}

// Read blocks for the next inbound message.
func (c *Conn) Read() (Message, error) {
	_, data, err := c.ws.ReadMessage()
	if err != nil {
		return Message{}, err
	}
	return Parse(data)
}

// SendMedia writes one outbound audio frame addressed to streamSID.
func (c *Conn) SendMedia(streamSID, payload string) error {
	return c.writeJSON(outboundMedia{
		Event:     EventMedia,
		StreamSID: streamSID,
		Media:     mediaFrame{Payload: payload},
	})
}

// SendConnected acknowledges the call once its session is registered.
func (c *Conn) SendConnected(callSID string) error {
	return c.writeJSON(outboundConnected{Event: "connected", CallSID: callSID})
}

// SendError reports a pre-active initialization failure to the transport.
func (c *Conn) SendError(message string) error {
	return c.writeJSON(outboundError{Event: "error", Message: message})
}

func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ws.Close()
}

func (c *Conn) writeJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ws.WriteJSON(v)
}
