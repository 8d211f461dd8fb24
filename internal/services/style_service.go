package services

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"

	"genslides/internal/database"
	"genslides/internal/models"
	"genslides/internal/providers"
)

// StyleService manages the project-wide visual style: preset templates,
// ephemeral candidate batches, and the promoted style anchor. Candidates
// live in an in-memory TTL cache; unpromoted ones expire and their files are
// removed on eviction.
type StyleService struct {
	db          *database.DB
	dataDir     string
	engines     *providers.Registry
	projects    *ProjectService
	broadcaster *Broadcaster
	cost        CostFunc

	candidates     *cache.Cache
	candidateCount int
	timeout        time.Duration
}

// candidateBatch is one generated batch of style candidates for a project
type candidateBatch struct {
	Prompt     string
	StyleType  string
	StyleName  string
	Candidates []models.StyleCandidate
}

// NewStyleService creates a style service
func NewStyleService(db *database.DB, dataDir string, engines *providers.Registry, projects *ProjectService, broadcaster *Broadcaster, cost CostFunc, candidateCount int, ttl, timeout time.Duration) *StyleService {
	c := cache.New(ttl, ttl/2)
	s := &StyleService{
		db:             db,
		dataDir:        dataDir,
		engines:        engines,
		projects:       projects,
		broadcaster:    broadcaster,
		cost:           cost,
		candidates:     c,
		candidateCount: candidateCount,
		timeout:        timeout,
	}
	c.OnEvicted(func(slug string, value interface{}) {
		if batch, ok := value.(*candidateBatch); ok {
			s.removeCandidateFiles(slug, batch)
		}
	})
	return s
}

// Templates returns the preset visual directions
func (s *StyleService) Templates() []models.StyleTemplate {
	return styleTemplates
}

// Template returns one preset by type
func (s *StyleService) Template(styleType string) (*models.StyleTemplate, error) {
	for i := range styleTemplates {
		if styleTemplates[i].Type == styleType {
			return &styleTemplates[i], nil
		}
	}
	return nil, NewNotFound("style template", styleType)
}

// GenerateCandidates renders a batch of style candidates for the prompt and
// broadcasts style_generation_completed when done. Runs synchronously;
// handlers call it from a goroutine.
func (s *StyleService) GenerateCandidates(slug, prompt, styleType, styleName string) error {
	engineName := s.projects.Engine(slug)
	engine, err := s.engines.Get(engineName)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	if m := GetMetrics(); m != nil {
		m.GenerationsStarted.WithLabelValues(engineName, "style").Inc()
	}

	relDir := filepath.Join("styles", slug, "candidates")
	if err := os.MkdirAll(filepath.Join(s.dataDir, relDir), 0o755); err != nil {
		return fmt.Errorf("failed to create candidate directory: %w", err)
	}

	batch := &candidateBatch{Prompt: prompt, StyleType: styleType, StyleName: styleName}
	for i := 0; i < s.candidateCount; i++ {
		data, err := engine.GenerateStyleImage(ctx, prompt)
		if err != nil {
			if m := GetMetrics(); m != nil {
				m.GenerationsFinished.WithLabelValues(engineName, "failed").Inc()
			}
			return &ProviderError{Engine: engineName, Err: err}
		}

		id := uuid.New().String()
		relPath := filepath.Join(relDir, id+".png")
		if err := os.WriteFile(filepath.Join(s.dataDir, relPath), data, 0o644); err != nil {
			return fmt.Errorf("failed to write candidate: %w", err)
		}
		batch.Candidates = append(batch.Candidates, models.StyleCandidate{ID: id, Path: relPath})
	}

	// Replace any previous batch; its files go with it
	if prev, ok := s.candidates.Get(slug); ok {
		if prevBatch, ok := prev.(*candidateBatch); ok {
			s.removeCandidateFiles(slug, prevBatch)
		}
	}
	s.candidates.Set(slug, batch, cache.DefaultExpiration)

	if _, err := s.db.Exec(`UPDATE projects SET style_generations = style_generations + ?, updated_at = ? WHERE slug = ?`,
		len(batch.Candidates), time.Now().UTC(), slug); err != nil {
		log.Printf("⚠️ Failed to increment style counter for %s: %v", slug, err)
	}
	if m := GetMetrics(); m != nil {
		m.GenerationsFinished.WithLabelValues(engineName, "completed").Inc()
	}

	payload := models.StyleGenerationCompletedData{Prompt: prompt}
	for _, c := range batch.Candidates {
		payload.Candidates = append(payload.Candidates, models.StyleCandidatePayload{ID: c.ID, URL: URL(c.Path)})
	}
	s.broadcaster.Broadcast(slug, models.Envelope{
		Type: models.EventStyleGenerationCompleted,
		Data: payload,
	})

	if costData, err := s.cost(slug); err == nil {
		s.broadcaster.Broadcast(slug, models.Envelope{
			Type: models.EventCostUpdated,
			Data: costData,
		})
	}

	return nil
}

// Candidates returns the current unexpired batch for a project
func (s *StyleService) Candidates(slug string) (prompt string, list []models.StyleCandidate) {
	if v, ok := s.candidates.Get(slug); ok {
		if batch, ok := v.(*candidateBatch); ok {
			return batch.Prompt, batch.Candidates
		}
	}
	return "", nil
}

// Promote makes a candidate the project's style anchor. The rest of the
// batch is discarded.
func (s *StyleService) Promote(slug, candidateID string) (*models.Style, error) {
	v, ok := s.candidates.Get(slug)
	if !ok {
		return nil, NewNotFound("style candidates", slug)
	}
	batch := v.(*candidateBatch)

	var chosen *models.StyleCandidate
	for i := range batch.Candidates {
		if batch.Candidates[i].ID == candidateID {
			chosen = &batch.Candidates[i]
			break
		}
	}
	if chosen == nil {
		return nil, NewNotFound("style candidate", candidateID)
	}

	data, err := os.ReadFile(filepath.Join(s.dataDir, chosen.Path))
	if err != nil {
		return nil, fmt.Errorf("failed to read candidate: %w", err)
	}

	relPath := filepath.Join("styles", slug, "style.png")
	if err := os.WriteFile(filepath.Join(s.dataDir, relPath), data, 0o644); err != nil {
		return nil, fmt.Errorf("failed to write style image: %w", err)
	}

	now := time.Now().UTC()
	if _, err := s.db.Exec(`
		INSERT INTO styles (slug, prompt, image_path, style_type, style_name, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(slug) DO UPDATE SET
			prompt = excluded.prompt,
			image_path = excluded.image_path,
			style_type = excluded.style_type,
			style_name = excluded.style_name,
			created_at = excluded.created_at`,
		slug, batch.Prompt, relPath, batch.StyleType, batch.StyleName, now); err != nil {
		return nil, fmt.Errorf("failed to save style: %w", err)
	}

	// Discard the batch; Delete fires the eviction handler
	s.candidates.Delete(slug)

	log.Printf("🎨 Style promoted for %s (candidate %s)", slug, candidateID)
	return &models.Style{
		Prompt:    batch.Prompt,
		ImagePath: relPath,
		StyleType: batch.StyleType,
		StyleName: batch.StyleName,
		CreatedAt: now,
	}, nil
}

// Clear removes the project's style anchor
func (s *StyleService) Clear(slug string) error {
	var relPath string
	err := s.db.QueryRow(`SELECT image_path FROM styles WHERE slug = ?`, slug).Scan(&relPath)
	if err == sql.ErrNoRows {
		return NewNotFound("style", slug)
	}
	if err != nil {
		return err
	}

	if _, err := s.db.Exec(`DELETE FROM styles WHERE slug = ?`, slug); err != nil {
		return fmt.Errorf("failed to clear style: %w", err)
	}
	removeQuietly(filepath.Join(s.dataDir, relPath))
	return nil
}

// Reference returns the style prompt and image bytes used to anchor slide
// generations. Both are empty when no style is set.
func (s *StyleService) Reference(slug string) (prompt string, image []byte) {
	var relPath string
	err := s.db.QueryRow(`SELECT prompt, image_path FROM styles WHERE slug = ?`, slug).Scan(&prompt, &relPath)
	if err != nil {
		return "", nil
	}
	if relPath != "" {
		if data, err := os.ReadFile(filepath.Join(s.dataDir, relPath)); err == nil {
			image = data
		}
	}
	return prompt, image
}

func (s *StyleService) removeCandidateFiles(slug string, batch *candidateBatch) {
	for _, c := range batch.Candidates {
		removeQuietly(filepath.Join(s.dataDir, c.Path))
	}
}

// styleTemplates are the built-in visual directions. PreviewPrompt is what
// gets sent to the engine when generating candidates from a template.
var styleTemplates = []models.StyleTemplate{
	{
		Type:          "minimal",
		Name:          "极简",
		NameEN:        "Minimal",
		Description:   "Clean lines, generous whitespace, restrained palette",
		PreviewPrompt: "Minimalist presentation visual style: clean geometric shapes, generous whitespace, two-tone restrained palette, flat design, no text",
	},
	{
		Type:          "corporate",
		Name:          "商务",
		NameEN:        "Corporate",
		Description:   "Professional blues and grays, structured layouts",
		PreviewPrompt: "Corporate presentation visual style: professional blue and gray palette, subtle gradients, structured composition, polished business aesthetic, no text",
	},
	{
		Type:          "playful",
		Name:          "活泼",
		NameEN:        "Playful",
		Description:   "Bright colors, rounded shapes, hand-drawn energy",
		PreviewPrompt: "Playful presentation visual style: bright saturated colors, rounded organic shapes, hand-drawn illustration energy, cheerful mood, no text",
	},
	{
		Type:          "technical",
		Name:          "科技",
		NameEN:        "Technical",
		Description:   "Dark backgrounds, neon accents, schematic detail",
		PreviewPrompt: "Technical presentation visual style: dark background, neon cyan and purple accents, circuit and schematic motifs, futuristic precision, no text",
	},
	{
		Type:          "watercolor",
		Name:          "水彩",
		NameEN:        "Watercolor",
		Description:   "Soft washes, organic textures, muted tones",
		PreviewPrompt: "Watercolor presentation visual style: soft paint washes, organic paper texture, muted pastel tones, gentle artistic atmosphere, no text",
	},
}
