package publisher

import (
	"context"
	"errors"
	"time"
)

var ErrNotConnected = errors.New("sink is not connected")

// Message is one payload addressed to a topic
type Message struct {
	Topic   string
	Key     string // partitioning key, the device ID
	Payload []byte
	Time    time.Time
}

// Sink delivers messages to an external endpoint
type Sink interface {
	Name() string
	Publish(ctx context.Context, msg Message) error
	IsConnected() bool
	Close() error
}
