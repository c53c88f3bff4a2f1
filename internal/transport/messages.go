// Package transport speaks the Twilio Media Streams WebSocket protocol: the
// telephony side of the relay. Inbound messages are start/media/stop/mark
// envelopes; outbound messages address media back to the stream by its SID.
package transport

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrMalformed marks an inbound frame that is not a valid protocol message.
// The relay logs and skips it without dropping the connection.
var ErrMalformed = errors.New("malformed transport message")

// Inbound event names.
const (
	EventStart = "start"
	EventMedia = "media"
	EventStop  = "stop"
	EventMark  = "mark"
)

// Message is the envelope Twilio sends over the media stream socket. Only
// the field matching Event is populated.
type Message struct {
	Event          string        `json:"event"`
	SequenceNumber string        `json:"sequenceNumber,omitempty"`
	StreamSID      string        `json:"streamSid,omitempty"`
	Start          *StartPayload `json:"start,omitempty"`
	Media          *MediaPayload `json:"media,omitempty"`
	Stop           *StopPayload  `json:"stop,omitempty"`
	Mark           *MarkPayload  `json:"mark,omitempty"`
}

// StartPayload announces a new stream. CustomParameters carries the from/to
// numbers configured in the TwiML <Stream> verb.
type StartPayload struct {
	AccountSID       string            `json:"accountSid"`
	CallSID          string            `json:"callSid"`
	StreamSID        string            `json:"streamSid"`
	Tracks           []string          `json:"tracks"`
	MediaFormat      MediaFormat       `json:"mediaFormat"`
	CustomParameters map[string]string `json:"customParameters"`
}

// MediaFormat is negotiated once at stream start and never renegotiated.
type MediaFormat struct {
	Encoding   string `json:"encoding"`
	SampleRate int    `json:"sampleRate"`
	Channels   int    `json:"channels"`
}

// MediaPayload carries one base64-encoded audio frame.
type MediaPayload struct {
	Track     string `json:"track,omitempty"`
	Chunk     string `json:"chunk,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
	Payload   string `json:"payload"`
}

// StopPayload signals the stream is ending.
type StopPayload struct {
	AccountSID string `json:"accountSid"`
	CallSID    string `json:"callSid"`
}

// MarkPayload acknowledges a previously sent mark. Ignored by the relay.
type MarkPayload struct {
	Name string `json:"name"`
}

// Parse decodes one inbound frame.
func Parse(data []byte) (Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if msg.Event == "" {
		return Message{}, fmt.Errorf("%w: missing event field", ErrMalformed)
	}
	return msg, nil
}

// outboundMedia addresses an audio frame back to the live stream.
type outboundMedia struct {
	Event     string     `json:"event"`
	StreamSID string     `json:"streamSid"`
	Media     mediaFrame `json:"media"`
}

type mediaFrame struct {
	Payload string `json:"payload"`
}

// outboundConnected acknowledges call setup before media flows.
type outboundConnected struct {
	Event   string `json:"event"`
	CallSID string `json:"callSid"`
}

// outboundError tells the transport that initialization failed. Only sent
// before a session reaches active.
type outboundError struct {
	Event   string `json:"event"`
	Message string `json:"message"`
}
