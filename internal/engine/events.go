package engine

import (
	"encoding/json"
	"fmt"
)

// handleEvent routes one raw server event to the matching callback.
// Unparseable frames and unknown event types are ignored; the realtime API
// adds event types over time and none of the ones we skip carry audio.
func (c *Client) handleEvent(data []byte) {
	var event map[string]any
	if err := json.Unmarshal(data, &event); err != nil {
		return
	}

	eventType, _ := event["type"].(string)

	switch eventType {
	case "session.created":
		// Connection-level ack; configuration is not confirmed yet.

	case "session.updated":
		c.mu.Lock()
		already := c.ready
		c.ready = true
		c.mu.Unlock()
		if !already && c.cb.OnReady != nil {
			c.cb.OnReady()
		}

	case "response.audio.delta", "response.output_audio.delta":
		if delta, ok := event["delta"].(string); ok && c.cb.OnAudioDelta != nil {
			c.cb.OnAudioDelta(delta)
		}

	case "conversation.item.input_audio_transcription.completed":
		if transcript, ok := event["transcript"].(string); ok && c.cb.OnUserTranscript != nil {
			c.cb.OnUserTranscript(transcript)
		}

	case "response.audio_transcript.done", "response.output_audio_transcript.done":
		if transcript, ok := event["transcript"].(string); ok && c.cb.OnResponseDone != nil {
			c.cb.OnResponseDone(transcript)
		}

	case "response.output_item.added":
		item, ok := event["item"].(map[string]any)
		if !ok {
			return
		}
		if itemType, _ := item["type"].(string); itemType != "function_call" {
			return
		}
		callID, _ := item["call_id"].(string)
		name, _ := item["name"].(string)
		if callID != "" && c.cb.OnToolCallStart != nil {
			c.cb.OnToolCallStart(callID, name)
		}

	case "response.function_call_arguments.delta":
		callID, _ := event["call_id"].(string)
		delta, _ := event["delta"].(string)
		if callID != "" && c.cb.OnToolCallFragment != nil {
			c.cb.OnToolCallFragment(callID, delta)
		}

	case "response.function_call_arguments.done":
		callID, _ := event["call_id"].(string)
		name, _ := event["name"].(string)
		arguments, _ := event["arguments"].(string)
		if callID != "" && c.cb.OnToolCallDone != nil {
			c.cb.OnToolCallDone(callID, name, arguments)
		}

	case "error":
		if c.cb.OnError == nil {
			return
		}
		if errData, ok := event["error"].(map[string]any); ok {
			if message, ok := errData["message"].(string); ok {
				c.cb.OnError(fmt.Errorf("engine: %s", message))
				return
			}
		}
		c.cb.OnError(fmt.Errorf("engine: unspecified error event"))
	}
}
