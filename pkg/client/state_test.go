package client

import (
	"encoding/json"
	"testing"
)

func msg(t *testing.T, typ string, data interface{}) Message {
	t.Helper()
	raw, err := json.Marshal(data)
	if err != nil {
		t.Fatal(err)
	}
	return Message{Type: typ, Data: raw}
}

func TestSessionStateReducesLifecycle(t *testing.T) {
	s := NewSessionState("volcengine")

	s.Apply(msg(t, "sync_generating_tasks", map[string][]string{"sids": {"s1"}}))
	if !s.Tracker().IsGenerating("s1") {
		t.Fatal("sync not applied")
	}

	s.Apply(msg(t, "generation_started", map[string]string{"task_id": "t2", "sid": "s2"}))
	if !s.Tracker().IsGenerating("s2") {
		t.Fatal("start not applied")
	}

	s.Apply(msg(t, "generation_completed", map[string]interface{}{
		"task_id": "t2",
		"sid":     "s2",
		"image":   Image{Hash: "h1", URL: "/static/a.png", Matched: true},
	}))
	if s.Tracker().IsGenerating("s2") {
		t.Fatal("completed task still tracked")
	}
	if imgs := s.Images("s2"); len(imgs) != 1 || imgs[0].Hash != "h1" {
		t.Fatalf("images = %+v", imgs)
	}
	if s.Selected("s2") != "h1" {
		t.Fatal("new variant must be displayed")
	}

	s.Apply(msg(t, "generation_failed", map[string]string{
		"task_id": "t3", "sid": "s1", "error": "quota exceeded",
	}))
	if s.Tracker().IsGenerating("s1") {
		t.Fatal("failed task still tracked")
	}
	if s.LastError() != "quota exceeded" {
		t.Fatalf("last error = %q", s.LastError())
	}

	s.Apply(msg(t, "cost_updated", Cost{TotalImages: 3, EstimatedCost: 0.06}))
	if got := s.Cost(); got.TotalImages != 3 || got.EstimatedCost != 0.06 {
		t.Fatalf("cost = %+v", got)
	}
}

func TestSessionStateSiblingMatchedFlagsSurviveCompletion(t *testing.T) {
	s := NewSessionState("volcengine")
	s.SetImages("s1", []Image{{Hash: "old", Matched: true}}, "old")

	// A forced regeneration adds a sibling without touching matched flags
	s.Apply(msg(t, "generation_completed", map[string]interface{}{
		"task_id": "t1",
		"sid":     "s1",
		"image":   Image{Hash: "new", Matched: true},
	}))

	imgs := s.Images("s1")
	if len(imgs) != 2 {
		t.Fatalf("expected 2 variants, got %d", len(imgs))
	}
	for _, img := range imgs {
		if !img.Matched {
			t.Fatalf("variant %s lost its matched flag", img.Hash)
		}
	}
	if s.Selected("s1") != "new" {
		t.Fatal("completion must advance the display selection")
	}
}

func TestSessionStateImageDeletedFallback(t *testing.T) {
	s := NewSessionState("volcengine")
	s.SetImages("s1", []Image{{Hash: "a"}, {Hash: "b"}, {Hash: "c"}}, "c")

	s.Apply(msg(t, "image_deleted", map[string]string{"sid": "s1", "hash": "c"}))
	if s.Selected("s1") != "b" {
		t.Fatalf("fallback selected %q, want b", s.Selected("s1"))
	}

	// Deleting a non-displayed variant leaves the pointer alone
	s.Apply(msg(t, "image_deleted", map[string]string{"sid": "s1", "hash": "a"}))
	if s.Selected("s1") != "b" {
		t.Fatalf("pointer moved to %q", s.Selected("s1"))
	}

	s.Apply(msg(t, "image_deleted", map[string]string{"sid": "s1", "hash": "b"}))
	if s.Selected("s1") != "" {
		t.Fatal("empty collection must have no selection")
	}
}

func TestSessionStateStyleCandidates(t *testing.T) {
	s := NewSessionState("volcengine")

	s.Apply(msg(t, "style_generation_completed", map[string]interface{}{
		"prompt": "watercolor",
		"candidates": []StyleCandidate{
			{ID: "c1", URL: "/static/c1.png"},
			{ID: "c2", URL: "/static/c2.png"},
		},
	}))

	if got := s.Candidates(); len(got) != 2 || got[0].ID != "c1" {
		t.Fatalf("candidates = %+v", got)
	}
}

func TestApplyEngineRollback(t *testing.T) {
	s := NewSessionState("volcengine")

	rollback := s.ApplyEngine("gemini")
	if s.Engine() != "gemini" {
		t.Fatal("optimistic apply missing")
	}

	// Server rejected the change
	rollback()
	if s.Engine() != "volcengine" {
		t.Fatal("rollback must restore the previous engine")
	}
}

func TestApplyIgnoresUnknownEvents(t *testing.T) {
	s := NewSessionState("volcengine")
	s.Apply(Message{Type: "future_event", Data: json.RawMessage(`{"x":1}`)})
	// Nothing to assert beyond not panicking and state staying clean
	if len(s.Tracker().Generating()) != 0 {
		t.Fatal("unknown event mutated state")
	}
}
