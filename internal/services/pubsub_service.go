package services

import (
	"context"
	"encoding/json"
	"log"
	"strings"
	"sync"

	"github.com/redis/go-redis/v9"

	"genslides/internal/models"
)

// PubSubService relays realtime project events across server instances via
// Redis pub/sub. Each project has one channel, project:{slug}:events.
type PubSubService struct {
	redis      *RedisService
	pubsub     *redis.PubSub
	handlers   []ProjectEventHandler
	mu         sync.RWMutex
	instanceID string
	ctx        context.Context
	cancel     context.CancelFunc
}

// ProjectEventHandler is a callback for events received from other instances
type ProjectEventHandler func(slug string, event models.Envelope)

// projectEvent is the cross-instance wire format
type projectEvent struct {
	InstanceID string          `json:"instanceId"` // Source instance ID
	Slug       string          `json:"slug"`
	Event      models.Envelope `json:"event"`
}

// NewPubSubService creates a new pub/sub service
func NewPubSubService(redisService *RedisService, instanceID string) *PubSubService {
	ctx, cancel := context.WithCancel(context.Background())
	return &PubSubService{
		redis:      redisService,
		instanceID: instanceID,
		ctx:        ctx,
		cancel:     cancel,
	}
}

// OnProjectEvent registers a handler for events from other instances
func (s *PubSubService) OnProjectEvent(handler ProjectEventHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers = append(s.handlers, handler)
}

// Start begins listening for pub/sub messages
func (s *PubSubService) Start() error {
	client := s.redis.Client()

	s.pubsub = client.PSubscribe(s.ctx, "project:*:events")

	// Wait for subscription confirmation
	if _, err := s.pubsub.Receive(s.ctx); err != nil {
		return err
	}

	go s.processMessages()

	log.Printf("✅ [PUBSUB] Started listening for project events (instance: %s)", s.instanceID)
	return nil
}

// processMessages handles incoming pub/sub messages
func (s *PubSubService) processMessages() {
	ch := s.pubsub.Channel()

	for {
		select {
		case <-s.ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			s.handleMessage(msg)
		}
	}
}

// handleMessage processes a single pub/sub message
func (s *PubSubService) handleMessage(msg *redis.Message) {
	var event projectEvent
	if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
		log.Printf("⚠️ [PUBSUB] Failed to unmarshal message on %s: %v", msg.Channel, err)
		return
	}

	// Skip messages from this instance (avoid loops)
	if event.InstanceID == s.instanceID {
		return
	}

	slug := event.Slug
	if slug == "" {
		slug = slugFromChannel(msg.Channel)
	}

	s.mu.RLock()
	handlers := make([]ProjectEventHandler, len(s.handlers))
	copy(handlers, s.handlers)
	s.mu.RUnlock()

	// Dispatch synchronously: Redis delivers channel messages in publish
	// order, and handing each one to its own goroutine would let a
	// completed event overtake its started event on this instance. The
	// local fan-out never blocks (SafeSend drops instead), so running
	// handlers inline cannot stall the receive loop.
	for _, handler := range handlers {
		handler(slug, event.Event)
	}
}

// Publish sends a project event to all other instances
func (s *PubSubService) Publish(ctx context.Context, slug string, event models.Envelope) error {
	data, err := json.Marshal(projectEvent{
		InstanceID: s.instanceID,
		Slug:       slug,
		Event:      event,
	})
	if err != nil {
		return err
	}

	return s.redis.Publish(ctx, "project:"+slug+":events", data)
}

// Stop stops the pub/sub service
func (s *PubSubService) Stop() error {
	s.cancel()
	if s.pubsub != nil {
		return s.pubsub.Close()
	}
	return nil
}

// slugFromChannel extracts the slug from a project:{slug}:events channel name
func slugFromChannel(channel string) string {
	parts := strings.Split(channel, ":")
	if len(parts) != 3 {
		return ""
	}
	return parts[1]
}
