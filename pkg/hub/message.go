// Package hub provides a thread-safe websocket broadcast hub
// using the idiomatic Go channel-based fan-out pattern.
package hub

// Websocket message types, shared by gorilla and gofiber connections.
const (
	textMessage  = 1
	closeMessage = 8
	pingMessage  = 9
)

// Message represents a JSON message to be broadcast to clients.
type Message struct {
	// Topic names the payload, e.g. "session".
	Topic string
	Data  []byte
}

// Envelope is the wire form of a message: a topic and its payload.
type Envelope struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}
