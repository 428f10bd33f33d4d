package client

import (
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
)

// ConnectNats returns a nil connection when url is empty; the event bus then
// falls back to a no-op publisher.
func ConnectNats(url string) (*nats.Conn, error) {
	if url == "" {
		return nil, nil
	}
	nc, err := nats.Connect(url,
		nats.Name("leadwallet"),
		nats.Timeout(5*time.Second),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}
	return nc, nil
}
