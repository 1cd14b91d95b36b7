// Package hub fans JSON messages out to websocket clients using a
// channel-based broadcast loop.
package hub

import "encoding/json"

// Message is one encoded message. Retained messages are remembered per
// topic and replayed to clients that connect later, so a new dashboard sees
// the current status without waiting for the next change.
type Message struct {
	Topic  string
	Data   []byte
	Retain bool
}

// Envelope is the JSON shape of every message sent to clients.
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Encode wraps v in an Envelope of the given type.
func Encode(topic string, v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Type: topic, Data: data})
}
