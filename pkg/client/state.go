package client

import (
	"encoding/json"
	"sync"
)

// Image is the client-side view of one slide image variant
type Image struct {
	Hash         string `json:"hash"`
	URL          string `json:"url"`
	ThumbnailURL string `json:"thumbnail_url"`
	Matched      bool   `json:"matched"`
}

// StyleCandidate is one candidate from a style_generation_completed event
type StyleCandidate struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// Cost is the client-side cost summary
type Cost struct {
	TotalImages   int     `json:"total_images"`
	EstimatedCost float64 `json:"estimated_cost"`
}

// Event payloads, mirroring the server's wire shapes
type (
	syncPayload struct {
		Sids []string `json:"sids"`
	}
	startedPayload struct {
		TaskID string `json:"task_id"`
		Sid    string `json:"sid"`
	}
	completedPayload struct {
		TaskID string `json:"task_id"`
		Sid    string `json:"sid"`
		Image  Image  `json:"image"`
	}
	failedPayload struct {
		TaskID string `json:"task_id"`
		Sid    string `json:"sid"`
		Error  string `json:"error"`
	}
	imageDeletedPayload struct {
		Sid  string `json:"sid"`
		Hash string `json:"hash"`
	}
	styleCompletedPayload struct {
		Candidates []StyleCandidate `json:"candidates"`
		Prompt     string           `json:"prompt"`
	}
)

// SessionState is the client's reduced view of one open project: which
// slides are generating, each slide's variants and selection, style
// candidates, cost, and the engine choice. Every mutation comes from either
// a channel event or an explicit optimistic local apply.
type SessionState struct {
	mu sync.Mutex

	tracker    *Tracker
	images     map[string][]Image // sid → variants
	selected   map[string]string  // sid → displayed hash
	candidates []StyleCandidate
	cost       Cost
	engine     string
	lastError  string
}

// NewSessionState creates a session state with the given initial engine
func NewSessionState(engine string) *SessionState {
	return &SessionState{
		tracker:  NewTracker(),
		images:   make(map[string][]Image),
		selected: make(map[string]string),
		engine:   engine,
	}
}

// Tracker exposes the generation task tracker
func (s *SessionState) Tracker() *Tracker {
	return s.tracker
}

// Apply reduces one channel event into the state. Unknown event types are
// ignored so old clients survive new server versions.
func (s *SessionState) Apply(msg Message) {
	switch msg.Type {
	case "sync_generating_tasks":
		var p syncPayload
		if json.Unmarshal(msg.Data, &p) == nil {
			s.tracker.Sync(p.Sids)
		}

	case "generation_started":
		var p startedPayload
		if json.Unmarshal(msg.Data, &p) == nil {
			s.tracker.Start(p.Sid)
		}

	case "generation_completed":
		var p completedPayload
		if json.Unmarshal(msg.Data, &p) == nil {
			s.tracker.Finish(p.Sid)
			s.appendImage(p.Sid, p.Image)
		}

	case "generation_failed":
		var p failedPayload
		if json.Unmarshal(msg.Data, &p) == nil {
			s.tracker.Finish(p.Sid)
			s.mu.Lock()
			s.lastError = p.Error
			s.mu.Unlock()
		}

	case "image_deleted":
		var p imageDeletedPayload
		if json.Unmarshal(msg.Data, &p) == nil {
			s.removeImage(p.Sid, p.Hash)
		}

	case "cost_updated":
		var p Cost
		if json.Unmarshal(msg.Data, &p) == nil {
			s.mu.Lock()
			s.cost = p
			s.mu.Unlock()
		}

	case "style_generation_completed":
		var p styleCompletedPayload
		if json.Unmarshal(msg.Data, &p) == nil {
			s.mu.Lock()
			s.candidates = p.Candidates
			s.mu.Unlock()
		}
	}
}

func (s *SessionState) appendImage(sid string, img Image) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Sibling matched flags are governed by content changes, not by new
	// generations, so they are left untouched here.
	variants := s.images[sid]
	replaced := false
	for i := range variants {
		if variants[i].Hash == img.Hash {
			variants[i] = img
			replaced = true
		}
	}
	if !replaced {
		variants = append(variants, img)
	}
	s.images[sid] = variants
	s.selected[sid] = img.Hash
}

func (s *SessionState) removeImage(sid, hash string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	variants := s.images[sid]
	for i := range variants {
		if variants[i].Hash == hash {
			variants = append(variants[:i], variants[i+1:]...)
			break
		}
	}
	s.images[sid] = variants

	// Mirror the server's deletion fallback: most recent remaining variant
	if s.selected[sid] == hash {
		if len(variants) > 0 {
			s.selected[sid] = variants[len(variants)-1].Hash
		} else {
			delete(s.selected, sid)
		}
	}
}

// Images returns a copy of a slide's variants
func (s *SessionState) Images(sid string) []Image {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Image, len(s.images[sid]))
	copy(out, s.images[sid])
	return out
}

// Selected returns the displayed variant hash for a slide ("" when none)
func (s *SessionState) Selected(sid string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selected[sid]
}

// SetImages seeds a slide's variants from an initial HTTP fetch
func (s *SessionState) SetImages(sid string, images []Image, selected string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.images[sid] = append([]Image(nil), images...)
	if selected != "" {
		s.selected[sid] = selected
	}
}

// SelectImage applies a local display selection
func (s *SessionState) SelectImage(sid, hash string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.selected[sid] = hash
}

// Cost returns the last reconciled cost summary
func (s *SessionState) Cost() Cost {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cost
}

// Candidates returns the last received style candidate batch
func (s *SessionState) Candidates() []StyleCandidate {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]StyleCandidate(nil), s.candidates...)
}

// LastError returns the most recent generation failure message
func (s *SessionState) LastError() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastError
}

// Engine returns the current engine selection
func (s *SessionState) Engine() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine
}

// ApplyEngine optimistically switches the engine and returns a rollback for
// when the server rejects the change.
func (s *SessionState) ApplyEngine(engine string) (rollback func()) {
	s.mu.Lock()
	previous := s.engine
	s.engine = engine
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		s.engine = previous
		s.mu.Unlock()
	}
}
