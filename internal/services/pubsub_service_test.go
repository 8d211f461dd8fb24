package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"genslides/internal/models"
)

func newMiniRedis(t *testing.T) *RedisService {
	t.Helper()
	mr := miniredis.RunT(t)
	svc, err := NewRedisService("redis://" + mr.Addr())
	if err != nil {
		t.Fatalf("failed to connect to miniredis: %v", err)
	}
	t.Cleanup(func() { svc.Close() })
	return svc
}

func TestPubSubRelaysAcrossInstances(t *testing.T) {
	redis := newMiniRedis(t)

	a := NewPubSubService(redis, "instance-a")
	b := NewPubSubService(redis, "instance-b")
	t.Cleanup(func() { a.Stop(); b.Stop() })

	received := make(chan models.Envelope, 10)
	b.OnProjectEvent(func(slug string, event models.Envelope) {
		if slug == "deck" {
			received <- event
		}
	})

	// Instance A must not hear its own messages back
	aLoop := make(chan models.Envelope, 10)
	a.OnProjectEvent(func(slug string, event models.Envelope) {
		aLoop <- event
	})

	if err := a.Start(); err != nil {
		t.Fatalf("start a: %v", err)
	}
	if err := b.Start(); err != nil {
		t.Fatalf("start b: %v", err)
	}

	event := models.Envelope{
		Type: models.EventGenerationStarted,
		Data: map[string]interface{}{"task_id": "t1", "sid": "s1"},
	}
	if err := a.Publish(context.Background(), "deck", event); err != nil {
		t.Fatalf("publish failed: %v", err)
	}

	select {
	case got := <-received:
		if got.Type != models.EventGenerationStarted {
			t.Fatalf("relayed type = %s", got.Type)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("instance B never received the event")
	}

	select {
	case <-aLoop:
		t.Fatal("instance A received its own message (pub/sub loop)")
	case <-time.After(200 * time.Millisecond):
	}
}

func TestCrossInstanceEventsArriveInOrder(t *testing.T) {
	redis := newMiniRedis(t)

	a := NewPubSubService(redis, "instance-a")
	b := NewPubSubService(redis, "instance-b")
	t.Cleanup(func() { a.Stop(); b.Stop() })

	var mu sync.Mutex
	var order []string
	done := make(chan struct{})
	b.OnProjectEvent(func(slug string, event models.Envelope) {
		// A slow subscriber must not let a later lifecycle event overtake
		// an earlier one for the same task
		if event.Type == models.EventGenerationStarted {
			time.Sleep(100 * time.Millisecond)
		}
		mu.Lock()
		order = append(order, event.Type)
		n := len(order)
		mu.Unlock()
		if n == 2 {
			close(done)
		}
	})

	if err := a.Start(); err != nil {
		t.Fatal(err)
	}
	if err := b.Start(); err != nil {
		t.Fatal(err)
	}

	ctx := context.Background()
	started := models.Envelope{
		Type: models.EventGenerationStarted,
		Data: map[string]interface{}{"task_id": "t1", "sid": "s1"},
	}
	completed := models.Envelope{
		Type: models.EventGenerationCompleted,
		Data: map[string]interface{}{"task_id": "t1", "sid": "s1"},
	}
	if err := a.Publish(ctx, "deck", started); err != nil {
		t.Fatal(err)
	}
	if err := a.Publish(ctx, "deck", completed); err != nil {
		t.Fatal(err)
	}

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("instance B never received both events")
	}

	mu.Lock()
	defer mu.Unlock()
	if order[0] != models.EventGenerationStarted || order[1] != models.EventGenerationCompleted {
		t.Fatalf("events delivered out of order: %v", order)
	}
}

func TestBroadcasterFansOutRemoteEvents(t *testing.T) {
	redis := newMiniRedis(t)

	// Instance B has a local viewer; instance A broadcasts
	pubsubA := NewPubSubService(redis, "instance-a")
	pubsubB := NewPubSubService(redis, "instance-b")
	t.Cleanup(func() { pubsubA.Stop(); pubsubB.Stop() })

	cmA := NewConnectionManager()
	cmB := NewConnectionManager()
	connB := newTestConn("deck")
	cmB.Add(connB)

	broadcasterA := NewBroadcaster(cmA, pubsubA)
	_ = NewBroadcaster(cmB, pubsubB)

	if err := pubsubA.Start(); err != nil {
		t.Fatal(err)
	}
	if err := pubsubB.Start(); err != nil {
		t.Fatal(err)
	}

	broadcasterA.Broadcast("deck", models.Envelope{Type: models.EventCostUpdated})

	select {
	case msg := <-connB.WriteChan:
		if msg.Type != models.EventCostUpdated {
			t.Fatalf("got %s", msg.Type)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("remote viewer never received the broadcast")
	}
}
