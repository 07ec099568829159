package core

// StreamChunk is the transport-neutral streaming event produced by the relay
// and consumed by any transport (SSE, WebSocket, ...). A stream is terminated
// by exactly one chunk with IsComplete set: Content is empty on success and a
// fixed human-readable error string on failure. After the terminal chunk the
// transport emits its own end-of-stream sentinel and stops.
type StreamChunk struct {
	Content    string `json:"content"`
	IsComplete bool   `json:"isComplete"`
	MessageID  string `json:"messageId"`
}
