package client

import (
	"sort"
	"sync"
)

// Tracker mirrors the server's set of running generation tasks. The server's
// sync_generating_tasks frame is authoritative: applying it replaces all
// local state, which makes reconnects self-healing (a task that finished
// while the client was away simply disappears from the set).
type Tracker struct {
	mu         sync.RWMutex
	generating map[string]bool // sid → running
}

// NewTracker creates an empty tracker
func NewTracker() *Tracker {
	return &Tracker{generating: make(map[string]bool)}
}

// Sync replaces the tracked set with the server's snapshot
func (t *Tracker) Sync(sids []string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.generating = make(map[string]bool, len(sids))
	for _, sid := range sids {
		t.generating[sid] = true
	}
}

// Start marks a slide as generating
func (t *Tracker) Start(sid string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.generating[sid] = true
}

// Finish clears a slide's generating mark. Safe for unknown sids: a terminal
// event for a task the tracker never saw is ignored.
func (t *Tracker) Finish(sid string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.generating, sid)
}

// IsGenerating reports whether the slide has a running task
func (t *Tracker) IsGenerating(sid string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.generating[sid]
}

// Generating returns the sorted set of slides with running tasks
func (t *Tracker) Generating() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	sids := make([]string, 0, len(t.generating))
	for sid := range t.generating {
		sids = append(sids, sid)
	}
	sort.Strings(sids)
	return sids
}
