// Package audio converts call audio between the representations the two
// socket boundaries expect. Twilio media frames and OpenAI Realtime audio
// buffers both carry base64 text, but neither side tolerates padding or
// alphabet variants from the other, so every frame is decoded and re-encoded
// on the way through. The audio bytes themselves are never touched; the codec
// is negotiated once at session setup (g711 μ-law, 8kHz) and not renegotiated.
package audio

import (
	"encoding/base64"
	"errors"
	"fmt"
)

// ErrInvalidFrame is returned when a payload is not decodable in the declared
// representation. The caller drops the frame; it is never forwarded.
var ErrInvalidFrame = errors.New("audio: invalid frame payload")

// ToEngineFormat normalizes a transport media payload for the engine's
// input audio buffer. The payload must be standard base64.
func ToEngineFormat(payload string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidFrame, err)
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

// ToTransportFormat normalizes an engine audio delta for a transport media
// message.
func ToTransportFormat(delta string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(delta)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidFrame, err)
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

// Decode returns the raw audio bytes of a payload, for consumers that need
// byte counts (recording, metering) rather than wire text.
func Decode(payload string) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFrame, err)
	}
	return raw, nil
}

// Encode converts raw audio bytes into the wire representation shared by both
// boundaries.
func Encode(raw []byte) string {
	return base64.StdEncoding.EncodeToString(raw)
}
