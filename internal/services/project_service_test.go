package services

import (
	"errors"
	"image/color"
	"testing"
)

func TestGetOrCreateIsIdempotent(t *testing.T) {
	db := newTestDB(t)
	svc := NewProjectService(db, "volcengine")

	p1, err := svc.GetOrCreate("my-deck")
	if err != nil {
		t.Fatalf("first access failed: %v", err)
	}
	if p1.Title != "Untitled" || p1.Engine != "volcengine" {
		t.Fatalf("unexpected defaults: %+v", p1)
	}

	if err := svc.UpdateTitle("my-deck", "Quarterly Review"); err != nil {
		t.Fatalf("title update failed: %v", err)
	}

	p2, err := svc.GetOrCreate("my-deck")
	if err != nil {
		t.Fatalf("second access failed: %v", err)
	}
	if p2.Title != "Quarterly Review" {
		t.Fatal("re-access must not recreate the project")
	}
}

func TestGetUnknownProject(t *testing.T) {
	db := newTestDB(t)
	svc := NewProjectService(db, "volcengine")

	var notFound *NotFoundError
	if _, err := svc.Get("nope"); !errors.As(err, &notFound) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}
}

func TestCreateSlidePositions(t *testing.T) {
	db := newTestDB(t)
	svc := NewProjectService(db, "volcengine")
	if _, err := svc.GetOrCreate("deck"); err != nil {
		t.Fatal(err)
	}

	first, err := svc.CreateSlide("deck", "one", "")
	if err != nil {
		t.Fatal(err)
	}
	second, err := svc.CreateSlide("deck", "two", "")
	if err != nil {
		t.Fatal(err)
	}

	// Insert between first and second
	middle, err := svc.CreateSlide("deck", "one-and-a-half", first.Sid)
	if err != nil {
		t.Fatal(err)
	}

	project, err := svc.Get("deck")
	if err != nil {
		t.Fatal(err)
	}
	order := []string{first.Sid, middle.Sid, second.Sid}
	for i, sid := range order {
		if project.Slides[i].Sid != sid {
			t.Fatalf("slide %d: got %s, want %s", i, project.Slides[i].Sid, sid)
		}
		if project.Slides[i].Position != i {
			t.Fatalf("slide %d: position %d", i, project.Slides[i].Position)
		}
	}
}

func TestContentChangeInvalidatesMatched(t *testing.T) {
	db := newTestDB(t)
	svc := NewProjectService(db, "volcengine")
	images := NewImageService(db, t.TempDir(), nil, svc, nil)

	if _, err := svc.GetOrCreate("deck"); err != nil {
		t.Fatal(err)
	}
	slide, err := svc.CreateSlide("deck", "Hello", "")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := images.AppendVariant("deck", slide.Sid, testPNG(t, color.RGBA{R: 255, A: 255})); err != nil {
		t.Fatal(err)
	}

	// Saving identical content is a no-op for matching state
	got, changed, err := svc.UpdateSlideContent("deck", slide.Sid, "Hello")
	if err != nil {
		t.Fatal(err)
	}
	if changed {
		t.Fatal("identical content must not count as a change")
	}
	if !got.HasMatched() {
		t.Fatal("no-op save must not invalidate the matched variant")
	}

	// A real edit flips every variant to stale
	got, changed, err = svc.UpdateSlideContent("deck", slide.Sid, "World")
	if err != nil {
		t.Fatal(err)
	}
	if !changed {
		t.Fatal("expected content change")
	}
	if got.HasMatched() {
		t.Fatal("content change must invalidate matched variants")
	}
	if !got.NeedsGeneration() {
		t.Fatal("edited slide with no matched variant needs generation")
	}
}

func TestReorderValidation(t *testing.T) {
	db := newTestDB(t)
	svc := NewProjectService(db, "volcengine")
	if _, err := svc.GetOrCreate("deck"); err != nil {
		t.Fatal(err)
	}

	a, _ := svc.CreateSlide("deck", "a", "")
	b, _ := svc.CreateSlide("deck", "b", "")
	c, _ := svc.CreateSlide("deck", "c", "")

	var validation *ValidationError

	// Missing a slide
	if err := svc.Reorder("deck", []string{a.Sid, b.Sid}); !errors.As(err, &validation) {
		t.Fatalf("short order: expected ValidationError, got %v", err)
	}
	// Duplicate entry
	if err := svc.Reorder("deck", []string{a.Sid, a.Sid, b.Sid}); !errors.As(err, &validation) {
		t.Fatalf("duplicate order: expected ValidationError, got %v", err)
	}
	// Unknown sid
	if err := svc.Reorder("deck", []string{a.Sid, b.Sid, "ghost"}); !errors.As(err, &validation) {
		t.Fatalf("unknown sid: expected ValidationError, got %v", err)
	}

	// Valid permutation
	if err := svc.Reorder("deck", []string{c.Sid, a.Sid, b.Sid}); err != nil {
		t.Fatalf("valid reorder failed: %v", err)
	}
	project, err := svc.Get("deck")
	if err != nil {
		t.Fatal(err)
	}
	want := []string{c.Sid, a.Sid, b.Sid}
	for i, sid := range want {
		if project.Slides[i].Sid != sid {
			t.Fatalf("after reorder, slide %d is %s, want %s", i, project.Slides[i].Sid, sid)
		}
	}
}

func TestDeleteSlideCompactsPositions(t *testing.T) {
	db := newTestDB(t)
	svc := NewProjectService(db, "volcengine")
	if _, err := svc.GetOrCreate("deck"); err != nil {
		t.Fatal(err)
	}

	a, _ := svc.CreateSlide("deck", "a", "")
	b, _ := svc.CreateSlide("deck", "b", "")
	c, _ := svc.CreateSlide("deck", "c", "")
	_ = a

	if err := svc.DeleteSlide("deck", b.Sid); err != nil {
		t.Fatal(err)
	}

	project, err := svc.Get("deck")
	if err != nil {
		t.Fatal(err)
	}
	if len(project.Slides) != 2 {
		t.Fatalf("expected 2 slides, got %d", len(project.Slides))
	}
	if project.Slides[1].Sid != c.Sid || project.Slides[1].Position != 1 {
		t.Fatalf("positions not compacted: %+v", project.Slides)
	}
}

func TestSetEngine(t *testing.T) {
	db := newTestDB(t)
	svc := NewProjectService(db, "volcengine")
	if _, err := svc.GetOrCreate("deck"); err != nil {
		t.Fatal(err)
	}

	var validation *ValidationError
	if err := svc.SetEngine("deck", "dalle"); !errors.As(err, &validation) {
		t.Fatalf("unknown engine: expected ValidationError, got %v", err)
	}

	if err := svc.SetEngine("deck", "gemini"); err != nil {
		t.Fatal(err)
	}
	if got := svc.Engine("deck"); got != "gemini" {
		t.Fatalf("engine = %s, want gemini", got)
	}

	// Unknown projects fall back to the default
	if got := svc.Engine("missing"); got != "volcengine" {
		t.Fatalf("default engine = %s, want volcengine", got)
	}
}

func TestDeleteProjectCascades(t *testing.T) {
	db := newTestDB(t)
	svc := NewProjectService(db, "volcengine")
	if _, err := svc.GetOrCreate("deck"); err != nil {
		t.Fatal(err)
	}
	slide, _ := svc.CreateSlide("deck", "a", "")

	if err := svc.Delete("deck"); err != nil {
		t.Fatal(err)
	}

	var count int
	if err := db.QueryRow(`SELECT COUNT(*) FROM slides WHERE sid = ?`, slide.Sid).Scan(&count); err != nil {
		t.Fatal(err)
	}
	if count != 0 {
		t.Fatal("deleting a project must cascade to its slides")
	}
}
