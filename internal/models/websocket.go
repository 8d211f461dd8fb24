package models

import (
	"sync"

	"github.com/gofiber/contrib/websocket"
)

// Realtime channel event types. Every frame is an Envelope{type, data}.
const (
	EventSyncGeneratingTasks      = "sync_generating_tasks"
	EventGenerationStarted        = "generation_started"
	EventGenerationCompleted      = "generation_completed"
	EventGenerationFailed         = "generation_failed"
	EventStyleGenerationCompleted = "style_generation_completed"
	EventCostUpdated              = "cost_updated"
	EventImageDeleted             = "image_deleted"
	EventPing                     = "ping"
	EventPong                     = "pong"
)

// Envelope is the wire format for every realtime channel message
type Envelope struct {
	Type string      `json:"type"`
	Data interface{} `json:"data,omitempty"`
}

// SyncGeneratingTasksData lists all slides with an active task in the
// project. Sent once immediately after every (re)connection so the client's
// task tracker is authoritative again.
type SyncGeneratingTasksData struct {
	Sids []string `json:"sids"`
}

// GenerationStartedData announces a task transitioning to processing
type GenerationStartedData struct {
	TaskID string `json:"task_id"`
	Sid    string `json:"sid"`
}

// ImagePayload describes a generated variant in lifecycle events
type ImagePayload struct {
	Hash         string `json:"hash"`
	URL          string `json:"url"`
	ThumbnailURL string `json:"thumbnail_url"`
}

// GenerationCompletedData announces a successful generation
type GenerationCompletedData struct {
	TaskID string       `json:"task_id"`
	Sid    string       `json:"sid"`
	Image  ImagePayload `json:"image"`
}

// GenerationFailedData announces a terminal task failure
type GenerationFailedData struct {
	TaskID string `json:"task_id"`
	Sid    string `json:"sid"`
	Error  string `json:"error"`
}

// StyleCandidatePayload describes one candidate in style_generation_completed
type StyleCandidatePayload struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// StyleGenerationCompletedData carries a freshly generated candidate batch
type StyleGenerationCompletedData struct {
	Candidates []StyleCandidatePayload `json:"candidates"`
	Prompt     string                  `json:"prompt"`
}

// CostUpdatedData is broadcast after any cost-affecting event
type CostUpdatedData struct {
	TotalImages   int     `json:"total_images"`
	EstimatedCost float64 `json:"estimated_cost"`
}

// ImageDeletedData announces a variant removal
type ImageDeletedData struct {
	Sid  string `json:"sid"`
	Hash string `json:"hash"`
}

// ProjectConnection represents a single WebSocket connection viewing a project
type ProjectConnection struct {
	ConnID    string
	Slug      string
	Conn      *websocket.Conn
	WriteChan chan Envelope
	Mutex     sync.Mutex
	closed    bool
}

// SafeSend sends a message to WriteChan safely, returning false if the
// channel is closed or full (slow consumers drop events rather than blocking
// the broadcaster).
func (pc *ProjectConnection) SafeSend(msg Envelope) bool {
	pc.Mutex.Lock()
	if pc.closed {
		pc.Mutex.Unlock()
		return false
	}
	pc.Mutex.Unlock()

	defer func() {
		if r := recover(); r != nil {
			pc.Mutex.Lock()
			pc.closed = true
			pc.Mutex.Unlock()
		}
	}()

	select {
	case pc.WriteChan <- msg:
		return true
	default:
		return false
	}
}

// MarkClosed marks the connection as closed
func (pc *ProjectConnection) MarkClosed() {
	pc.Mutex.Lock()
	pc.closed = true
	pc.Mutex.Unlock()
}
