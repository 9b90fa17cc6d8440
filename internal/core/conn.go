package core

// Frame is a serialized payload pushed to a client.
type Frame []byte

// Conn abstracts an outbound client transport.
// Owned by the adapter; the adapter must Close() it.
type Conn interface {
	ID() string
	TrySend(Frame) error
	Close()
	IsClosed() bool
}
