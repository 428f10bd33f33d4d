package events

import (
	"fmt"

	"github.com/nats-io/nats.go"
)

type MessageBus interface {
	Publish(topic string, data []byte) error
}

type natsBus struct {
	conn *nats.Conn
}

// NewBus publishes on conn, or discards everything when conn is nil.
func NewBus(conn *nats.Conn) MessageBus {
	if conn == nil {
		return NewNopBus()
	}
	return &natsBus{conn: conn}
}

func (b *natsBus) Publish(topic string, data []byte) error {
	if err := b.conn.Publish(topic, data); err != nil {
		return fmt.Errorf("nats publish %s: %w", topic, err)
	}
	return nil
}

type nopBus struct{}

func NewNopBus() MessageBus {
	return nopBus{}
}

func (nopBus) Publish(string, []byte) error {
	return nil
}
