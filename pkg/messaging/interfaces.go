package messaging

import "context"

// Publisher sends an encoded event to the broker
type Publisher interface {
	Publish(ctx context.Context, routingKey string, body []byte) error
	IsConnected() bool
}
