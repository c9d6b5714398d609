package ports

// Broadcaster delivers payloads to the observers of a topic.
// Implementations must isolate delivery failures; Broadcast never reports them to the caller.
type Broadcaster interface {
	Broadcast(topic string, payload any)
}

// BroadcasterFunc adapts a plain function to Broadcaster.
type BroadcasterFunc func(topic string, payload any)

// Broadcast calls f(topic, payload).
func (f BroadcasterFunc) Broadcast(topic string, payload any) {
	f(topic, payload)
}
