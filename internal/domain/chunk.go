package domain

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
)

const (
	dataFieldPrefix = "data:"

	// DoneSentinel terminates a push-protocol stream.
	DoneSentinel = "[DONE]"
)

// wireChunk mirrors the JSON shape of a streamed completion chunk.
type wireChunk struct {
	ID      string        `json:"id"`
	Choices []ChunkChoice `json:"choices"`
	Model   string        `json:"model"`
}

// ParseChunk translates one raw frame payload into a StreamChunk.
// It accepts payloads with or without the "data:" field prefix.
// Unparseable payloads return an error wrapping ErrMalformedFrame.
func ParseChunk(raw string) (*StreamChunk, error) {
	payload := strings.TrimSpace(raw)
	if rest, ok := strings.CutPrefix(payload, dataFieldPrefix); ok {
		payload = strings.TrimSpace(rest)
	}

	if payload == DoneSentinel {
		return &StreamChunk{Done: true}, nil
	}

	var parsed wireChunk
	if err := json.Unmarshal([]byte(payload), &parsed); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedFrame, err)
	}

	return &StreamChunk{
		ID:      parsed.ID,
		Done:    false,
		Choices: parsed.Choices,
		Model:   parsed.Model,
	}, nil
}

// ErrorMessage extracts a human-readable message from a transport error payload.
// It reads error.message from JSON payloads and falls back to the raw text.
func ErrorMessage(payload string) string {
	if gjson.Valid(payload) {
		if msg := gjson.Get(payload, "error.message"); msg.Type == gjson.String {
			return msg.String()
		}
	}
	return payload
}
