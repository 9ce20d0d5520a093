package protocol

// Transport is a best-effort, unordered, at-most-once broadcast channel scoped
// to one room. Publish never blocks the caller.
type Transport interface {
	Publish(Envelope) error
	Inbound() <-chan Envelope
	Connected() bool
	Close() error
}
