package services

import (
	"context"
	"log"
	"time"

	"genslides/internal/models"
)

// Broadcaster delivers realtime events to every client viewing a project:
// locally through the connection manager, and to other instances through
// Redis pub/sub when available.
type Broadcaster struct {
	connManager *ConnectionManager
	pubsub      *PubSubService // nil when running without Redis
}

// NewBroadcaster creates a broadcaster. pubsub may be nil.
func NewBroadcaster(connManager *ConnectionManager, pubsub *PubSubService) *Broadcaster {
	b := &Broadcaster{
		connManager: connManager,
		pubsub:      pubsub,
	}

	if pubsub != nil {
		// Events arriving from other instances only fan out locally,
		// never back to Redis.
		pubsub.OnProjectEvent(func(slug string, event models.Envelope) {
			b.local(slug, event)
		})
	}

	return b
}

// Broadcast sends an event to all viewers of the project on every instance
func (b *Broadcaster) Broadcast(slug string, event models.Envelope) {
	b.local(slug, event)

	if b.pubsub != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := b.pubsub.Publish(ctx, slug, event); err != nil {
			log.Printf("⚠️ [BROADCAST] Failed to publish %s for %s: %v", event.Type, slug, err)
		}
	}
}

func (b *Broadcaster) local(slug string, event models.Envelope) {
	sent := b.connManager.Broadcast(slug, event)
	recordEventBroadcast(event.Type, sent)
}
