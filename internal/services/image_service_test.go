package services

import (
	"context"
	"errors"
	"image/color"
	"os"
	"path/filepath"
	"testing"
	"time"

	"genslides/internal/models"
	"genslides/internal/providers"
)

type stubEngine struct {
	name string
	data []byte
	err  error
}

func (s *stubEngine) Name() string { return s.name }

func (s *stubEngine) GenerateSlideImage(ctx context.Context, content, stylePrompt string, styleImage []byte) ([]byte, error) {
	return s.data, s.err
}

func (s *stubEngine) GenerateStyleImage(ctx context.Context, prompt string) ([]byte, error) {
	return s.data, s.err
}

func TestAppendVariantAdvancesSelection(t *testing.T) {
	db := newTestDB(t)
	dataDir := t.TempDir()
	projects := NewProjectService(db, "volcengine")
	images := NewImageService(db, dataDir, nil, projects, nil)

	if _, err := projects.GetOrCreate("deck"); err != nil {
		t.Fatal(err)
	}
	slide, _ := projects.CreateSlide("deck", "Hello", "")

	red := testPNG(t, color.RGBA{R: 255, A: 255})
	blue := testPNG(t, color.RGBA{B: 255, A: 255})

	v1, err := images.AppendVariant("deck", slide.Sid, red)
	if err != nil {
		t.Fatal(err)
	}
	v2, err := images.AppendVariant("deck", slide.Sid, blue)
	if err != nil {
		t.Fatal(err)
	}
	if v1.Hash == v2.Hash {
		t.Fatal("different bytes must hash differently")
	}

	got, err := projects.GetSlide("deck", slide.Sid)
	if err != nil {
		t.Fatal(err)
	}
	if len(got.Images) != 2 {
		t.Fatalf("expected 2 variants, got %d", len(got.Images))
	}
	if got.SelectedHash != v2.Hash {
		t.Fatal("newest variant must become the displayed one")
	}

	// The stored file exists and is served from the data dir
	if _, err := os.Stat(filepath.Join(dataDir, v2.Path)); err != nil {
		t.Fatalf("variant file missing: %v", err)
	}

	// Identical bytes dedupe onto the existing variant
	v3, err := images.AppendVariant("deck", slide.Sid, red)
	if err != nil {
		t.Fatal(err)
	}
	if v3.Hash != v1.Hash {
		t.Fatal("identical bytes must reuse the hash")
	}
	got, _ = projects.GetSlide("deck", slide.Sid)
	if len(got.Images) != 2 {
		t.Fatalf("dedupe failed, got %d variants", len(got.Images))
	}
}

func TestEditThenRegenerateKeepsHistory(t *testing.T) {
	db := newTestDB(t)
	projects := NewProjectService(db, "volcengine")
	images := NewImageService(db, t.TempDir(), nil, projects, nil)

	if _, err := projects.GetOrCreate("deck"); err != nil {
		t.Fatal(err)
	}
	slide, _ := projects.CreateSlide("deck", "Hello", "")

	v1, err := images.AppendVariant("deck", slide.Sid, testPNG(t, color.RGBA{R: 255, A: 255}))
	if err != nil {
		t.Fatal(err)
	}

	if _, _, err := projects.UpdateSlideContent("deck", slide.Sid, "World"); err != nil {
		t.Fatal(err)
	}
	v2, err := images.AppendVariant("deck", slide.Sid, testPNG(t, color.RGBA{G: 255, A: 255}))
	if err != nil {
		t.Fatal(err)
	}

	got, err := projects.GetSlide("deck", slide.Sid)
	if err != nil {
		t.Fatal(err)
	}
	if len(got.Images) != 2 {
		t.Fatalf("expected both variants kept, got %d", len(got.Images))
	}
	for _, img := range got.Images {
		switch img.Hash {
		case v1.Hash:
			if img.Matched {
				t.Fatal("pre-edit variant must be stale after the content change")
			}
		case v2.Hash:
			if !img.Matched {
				t.Fatal("fresh variant must be matched")
			}
		default:
			t.Fatalf("unexpected variant %s", img.Hash)
		}
	}
	if got.SelectedHash != v2.Hash {
		t.Fatal("regeneration must advance the displayed variant")
	}
}

func TestSelectVariantIsDurable(t *testing.T) {
	db := newTestDB(t)
	projects := NewProjectService(db, "volcengine")
	images := NewImageService(db, t.TempDir(), nil, projects, nil)

	if _, err := projects.GetOrCreate("deck"); err != nil {
		t.Fatal(err)
	}
	slide, _ := projects.CreateSlide("deck", "Hello", "")

	v1, _ := images.AppendVariant("deck", slide.Sid, testPNG(t, color.RGBA{R: 255, A: 255}))
	v2, _ := images.AppendVariant("deck", slide.Sid, testPNG(t, color.RGBA{G: 255, A: 255}))

	// User picks the older variant; a later generation must not be needed
	// for the choice to stick
	if err := images.SelectVariant("deck", slide.Sid, v1.Hash); err != nil {
		t.Fatal(err)
	}
	got, _ := projects.GetSlide("deck", slide.Sid)
	if got.SelectedHash != v1.Hash {
		t.Fatalf("selected %s, want %s", got.SelectedHash, v1.Hash)
	}
	if sel := got.SelectedVariant(); sel == nil || sel.Hash != v1.Hash {
		t.Fatal("SelectedVariant must honor the durable pointer")
	}
	_ = v2

	var notFound *NotFoundError
	if err := images.SelectVariant("deck", slide.Sid, "feedfeedfeedfeed"); !errors.As(err, &notFound) {
		t.Fatalf("unknown hash: expected NotFoundError, got %v", err)
	}
}

func TestDeleteVariantFallback(t *testing.T) {
	db := newTestDB(t)
	dataDir := t.TempDir()
	projects := NewProjectService(db, "volcengine")
	images := NewImageService(db, dataDir, nil, projects, nil)

	if _, err := projects.GetOrCreate("deck"); err != nil {
		t.Fatal(err)
	}
	slide, _ := projects.CreateSlide("deck", "Hello", "")

	v1, _ := images.AppendVariant("deck", slide.Sid, testPNG(t, color.RGBA{R: 255, A: 255}))
	time.Sleep(5 * time.Millisecond) // distinct created_at ordering
	v2, _ := images.AppendVariant("deck", slide.Sid, testPNG(t, color.RGBA{G: 255, A: 255}))
	time.Sleep(5 * time.Millisecond)
	v3, _ := images.AppendVariant("deck", slide.Sid, testPNG(t, color.RGBA{B: 255, A: 255}))

	// Deleting the displayed variant falls back to the most recent remaining
	newSelected, err := images.DeleteVariant("deck", slide.Sid, v3.Hash)
	if err != nil {
		t.Fatal(err)
	}
	if newSelected != v2.Hash {
		t.Fatalf("fallback selected %s, want %s", newSelected, v2.Hash)
	}
	if _, err := os.Stat(filepath.Join(dataDir, v3.Path)); !os.IsNotExist(err) {
		t.Fatal("deleted variant file must be removed")
	}

	// Deleting a non-displayed variant leaves the pointer alone
	newSelected, err = images.DeleteVariant("deck", slide.Sid, v1.Hash)
	if err != nil {
		t.Fatal(err)
	}
	if newSelected != v2.Hash {
		t.Fatalf("pointer moved unexpectedly to %s", newSelected)
	}

	// Deleting the last variant empties the selection
	newSelected, err = images.DeleteVariant("deck", slide.Sid, v2.Hash)
	if err != nil {
		t.Fatal(err)
	}
	if newSelected != "" {
		t.Fatalf("expected empty selection, got %s", newSelected)
	}
	got, _ := projects.GetSlide("deck", slide.Sid)
	if got.SelectedVariant() != nil {
		t.Fatal("empty collection must have no selected variant")
	}

	var notFound *NotFoundError
	if _, err := images.DeleteVariant("deck", slide.Sid, v2.Hash); !errors.As(err, &notFound) {
		t.Fatalf("double delete: expected NotFoundError, got %v", err)
	}
}

func TestGenerateEndToEnd(t *testing.T) {
	db := newTestDB(t)
	dataDir := t.TempDir()
	projects := NewProjectService(db, "volcengine")
	cm := NewConnectionManager()
	broadcaster := NewBroadcaster(cm, nil)
	cost := NewCostService(db, 0.02, 0.02)

	engine := &stubEngine{name: "volcengine", data: testPNG(t, color.RGBA{R: 128, A: 255})}
	registry := providers.NewRegistry(engine)
	styles := NewStyleService(db, dataDir, registry, projects, broadcaster, cost.Summary, 2, time.Minute, time.Second)
	images := NewImageService(db, dataDir, registry, projects, styles)

	if _, err := projects.GetOrCreate("deck"); err != nil {
		t.Fatal(err)
	}
	slide, _ := projects.CreateSlide("deck", "Hello", "")

	task := &models.GenerationTask{ID: "t1", Slug: "deck", Sid: slide.Sid}
	payload, err := images.Generate(context.Background(), task)
	if err != nil {
		t.Fatalf("generate failed: %v", err)
	}
	if payload.Hash == "" || payload.URL == "" {
		t.Fatalf("incomplete payload: %+v", payload)
	}

	got, _ := projects.GetSlide("deck", slide.Sid)
	if !got.HasMatched() {
		t.Fatal("fresh generation must be matched")
	}
	if got.SelectedHash != payload.Hash {
		t.Fatal("fresh generation must be displayed")
	}

	summary, err := cost.Summary("deck")
	if err != nil {
		t.Fatal(err)
	}
	if summary.TotalImages != 1 || summary.EstimatedCost != 0.02 {
		t.Fatalf("unexpected cost: %+v", summary)
	}

	// Provider failure is terminal and surfaces as a ProviderError
	engine.err = errors.New("quota exceeded")
	var provider *ProviderError
	if _, err := images.Generate(context.Background(), task); !errors.As(err, &provider) {
		t.Fatalf("expected ProviderError, got %v", err)
	}

	// A task whose slide is gone fails harmlessly with not-found
	engine.err = nil
	if err := projects.DeleteSlide("deck", slide.Sid); err != nil {
		t.Fatal(err)
	}
	var notFound *NotFoundError
	if _, err := images.Generate(context.Background(), task); !errors.As(err, &notFound) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}
}
