package tiered

import (
	"encoding/json"
	"fmt"
)

// InvalidationMessage tells every node to drop L1 entries. An empty Key
// clears the whole named cache.
type InvalidationMessage struct {
	CacheName string `json:"cacheName"`
	Key       string `json:"key,omitempty"`
	Origin    string `json:"origin,omitempty"`
}

func (m InvalidationMessage) encode() ([]byte, error) {
	return json.Marshal(m)
}

func decodeInvalidation(payload string) (InvalidationMessage, error) {
	var msg InvalidationMessage
	if err := json.Unmarshal([]byte(payload), &msg); err != nil {
		return msg, fmt.Errorf("invalid invalidation message: %w", err)
	}
	if msg.CacheName == "" {
		return msg, fmt.Errorf("invalid invalidation message: cacheName is required")
	}
	return msg, nil
}
