package client

import (
	"reflect"
	"testing"
)

func TestTrackerSyncIsAuthoritative(t *testing.T) {
	tr := NewTracker()
	tr.Start("s1")
	tr.Start("s2")

	// The server snapshot replaces everything learned locally
	tr.Sync([]string{"s3"})

	if tr.IsGenerating("s1") || tr.IsGenerating("s2") {
		t.Fatal("sync must drop tasks absent from the snapshot")
	}
	if !tr.IsGenerating("s3") {
		t.Fatal("sync must adopt tasks from the snapshot")
	}

	// An empty snapshot clears the tracker
	tr.Sync(nil)
	if got := tr.Generating(); len(got) != 0 {
		t.Fatalf("expected empty tracker, got %v", got)
	}
}

func TestTrackerLifecycle(t *testing.T) {
	tr := NewTracker()

	tr.Start("b")
	tr.Start("a")
	if got, want := tr.Generating(), []string{"a", "b"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}

	tr.Finish("a")
	if tr.IsGenerating("a") {
		t.Fatal("finished task still tracked")
	}

	// Terminal events for unknown tasks are ignored
	tr.Finish("ghost")
	if got := tr.Generating(); !reflect.DeepEqual(got, []string{"b"}) {
		t.Fatalf("got %v", got)
	}
}

func TestTrackerResyncIdempotent(t *testing.T) {
	tr := NewTracker()
	snapshot := []string{"s1", "s2"}

	tr.Sync(snapshot)
	first := tr.Generating()
	tr.Sync(snapshot)
	second := tr.Generating()

	if !reflect.DeepEqual(first, second) {
		t.Fatalf("resync changed state: %v vs %v", first, second)
	}
}
