package core

import "context"

// Publisher mirrors persisted Posted events to an external system.
// Publish is called from the room actor after the event is durable and has
// been broadcast; errors are logged and never affect local delivery.
type Publisher interface {
	Publish(ctx context.Context, ev ChatEvent) error
}

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, ChatEvent) error { return nil }
