package handlers

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gorilla/websocket"

	fiberws "github.com/gofiber/contrib/websocket"

	"genslides/internal/models"
	"genslides/internal/services"
)

// wsFrame is the decoded client view of a channel envelope
type wsFrame struct {
	Type string `json:"type"`
	Data struct {
		Sids []string `json:"sids"`
	} `json:"data"`
}

// newWSRegistry builds a task registry whose generations wait on block
// (pass nil for one that completes immediately).
func newWSRegistry(block chan struct{}) *services.TaskRegistry {
	broadcaster := services.NewBroadcaster(services.NewConnectionManager(), nil)
	return services.NewTaskRegistry(broadcaster,
		func(ctx context.Context, task *models.GenerationTask) (models.ImagePayload, error) {
			if block != nil {
				select {
				case <-block:
				case <-ctx.Done():
					return models.ImagePayload{}, ctx.Err()
				}
			}
			return models.ImagePayload{Hash: "h1"}, nil
		},
		func(slug string) (models.CostUpdatedData, error) { return models.CostUpdatedData{}, nil },
		5*time.Second,
		func(slug string) string { return models.EngineVolcengine },
	)
}

// startWSServer runs the realtime channel on an ephemeral port and returns
// its address.
func startWSServer(t *testing.T, tasks *services.TaskRegistry) string {
	t.Helper()

	cm := services.NewConnectionManager()
	handler := NewWebSocketHandler(cm, tasks, time.Second)

	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	app.Use("/ws/slides/:slug", func(c *fiber.Ctx) error {
		if fiberws.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/slides/:slug", fiberws.New(handler.Handle))

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	go func() { _ = app.Listener(ln) }()
	t.Cleanup(func() { _ = app.Shutdown() })

	return ln.Addr().String()
}

func dialWS(t *testing.T, addr, slug string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial("ws://"+addr+"/ws/slides/"+slug, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) wsFrame {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	var frame wsFrame
	if err := conn.ReadJSON(&frame); err != nil {
		t.Fatalf("read frame: %v", err)
	}
	return frame
}

func TestWebSocketSyncsTasksOnConnect(t *testing.T) {
	block := make(chan struct{})
	tasks := newWSRegistry(block)

	if _, err := tasks.Request("deck", "s1", false); err != nil {
		t.Fatal(err)
	}

	addr := startWSServer(t, tasks)
	conn := dialWS(t, addr, "deck")

	// The first frame is always the task sync so a reconnecting client can
	// replace its local task state wholesale
	frame := readFrame(t, conn)
	if frame.Type != models.EventSyncGeneratingTasks {
		t.Fatalf("first frame = %s, want %s", frame.Type, models.EventSyncGeneratingTasks)
	}
	if len(frame.Data.Sids) != 1 || frame.Data.Sids[0] != "s1" {
		t.Fatalf("sync sids = %v, want [s1]", frame.Data.Sids)
	}

	close(block)
	tasks.Wait()
}

func TestWebSocketSyncSentWhenIdle(t *testing.T) {
	addr := startWSServer(t, newWSRegistry(nil))
	conn := dialWS(t, addr, "deck")

	// Even with nothing running the sync arrives, clearing any stale state
	// a client kept across a reconnect
	frame := readFrame(t, conn)
	if frame.Type != models.EventSyncGeneratingTasks {
		t.Fatalf("first frame = %s, want %s", frame.Type, models.EventSyncGeneratingTasks)
	}
	if len(frame.Data.Sids) != 0 {
		t.Fatalf("idle sync carried sids %v", frame.Data.Sids)
	}
}

func TestWebSocketPingPong(t *testing.T) {
	addr := startWSServer(t, newWSRegistry(nil))
	conn := dialWS(t, addr, "deck")

	// Drain the connect-time sync first
	if frame := readFrame(t, conn); frame.Type != models.EventSyncGeneratingTasks {
		t.Fatalf("first frame = %s", frame.Type)
	}

	if err := conn.WriteJSON(map[string]string{"type": models.EventPing}); err != nil {
		t.Fatal(err)
	}
	if frame := readFrame(t, conn); frame.Type != models.EventPong {
		t.Fatalf("ping answered with %s, want %s", frame.Type, models.EventPong)
	}
}
