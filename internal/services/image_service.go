package services

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"genslides/internal/database"
	"genslides/internal/imaging"
	"genslides/internal/models"
	"genslides/internal/providers"
)

// ImageService stores generated image variants and runs slide generations.
// Files live under dataDir and are served from /static; the database keeps
// relative paths.
type ImageService struct {
	db       *database.DB
	dataDir  string
	engines  *providers.Registry
	projects *ProjectService
	styles   *StyleService
}

// NewImageService creates an image service
func NewImageService(db *database.DB, dataDir string, engines *providers.Registry, projects *ProjectService, styles *StyleService) *ImageService {
	return &ImageService{
		db:       db,
		dataDir:  dataDir,
		engines:  engines,
		projects: projects,
		styles:   styles,
	}
}

// URL maps a stored relative path to its public URL
func URL(relPath string) string {
	if relPath == "" {
		return ""
	}
	return "/static/" + filepath.ToSlash(relPath)
}

// Payload builds the event payload for a variant
func Payload(v *models.ImageVariant) models.ImagePayload {
	return models.ImagePayload{
		Hash:         v.Hash,
		URL:          URL(v.Path),
		ThumbnailURL: URL(v.ThumbPath),
	}
}

// Generate runs one slide generation end to end: resolve the slide and
// project style, call the configured engine, store the variant, and advance
// the display selection. Used as the task registry's GenerateFunc.
func (s *ImageService) Generate(ctx context.Context, task *models.GenerationTask) (models.ImagePayload, error) {
	slide, err := s.projects.GetSlide(task.Slug, task.Sid)
	if err != nil {
		return models.ImagePayload{}, err
	}
	if slide.Content == "" {
		return models.ImagePayload{}, NewValidation("slide has no content to generate from")
	}

	engineName := s.projects.Engine(task.Slug)
	engine, err := s.engines.Get(engineName)
	if err != nil {
		return models.ImagePayload{}, err
	}

	stylePrompt, styleImage := s.styles.Reference(task.Slug)

	data, err := engine.GenerateSlideImage(ctx, slide.Content, stylePrompt, styleImage)
	if err != nil {
		return models.ImagePayload{}, &ProviderError{Engine: engineName, Err: err}
	}

	variant, err := s.AppendVariant(task.Slug, task.Sid, data)
	if err != nil {
		return models.ImagePayload{}, err
	}

	if _, err := s.db.Exec(`UPDATE projects SET slide_generations = slide_generations + 1, updated_at = ? WHERE slug = ?`,
		time.Now().UTC(), task.Slug); err != nil {
		log.Printf("⚠️ Failed to increment generation counter for %s: %v", task.Slug, err)
	}

	return Payload(variant), nil
}

// AppendVariant stores image bytes as a new variant of the slide. The variant
// is born matched (it was generated from the slide's current content) and
// becomes the displayed selection. Re-storing identical bytes refreshes the
// existing variant instead of duplicating it.
func (s *ImageService) AppendVariant(slug, sid string, data []byte) (*models.ImageVariant, error) {
	hash := imaging.HashBytes(data)

	relDir := filepath.Join("slides", slug, sid)
	dir := filepath.Join(s.dataDir, relDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create image directory: %w", err)
	}

	relPath := filepath.Join(relDir, hash+".png")
	if err := os.WriteFile(filepath.Join(s.dataDir, relPath), data, 0o644); err != nil {
		return nil, fmt.Errorf("failed to write image: %w", err)
	}

	relThumb := ""
	if thumb, err := imaging.Thumbnail(data); err == nil {
		relThumb = filepath.Join(relDir, hash+"_thumb.jpg")
		if err := os.WriteFile(filepath.Join(s.dataDir, relThumb), thumb, 0o644); err != nil {
			log.Printf("⚠️ Failed to write thumbnail for %s/%s: %v", sid, hash, err)
			relThumb = ""
		}
	} else {
		log.Printf("⚠️ Failed to build thumbnail for %s/%s: %v", sid, hash, err)
	}

	now := time.Now().UTC()
	tx, err := s.db.Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`
		INSERT INTO images (sid, slug, hash, path, thumb_path, matched, created_at)
		VALUES (?, ?, ?, ?, ?, 1, ?)
		ON CONFLICT(sid, hash) DO UPDATE SET matched = 1, created_at = excluded.created_at`,
		sid, slug, hash, relPath, relThumb, now); err != nil {
		return nil, fmt.Errorf("failed to store variant: %w", err)
	}

	// New variant becomes the displayed one
	if _, err := tx.Exec(`UPDATE slides SET selected_hash = ? WHERE sid = ?`, hash, sid); err != nil {
		return nil, fmt.Errorf("failed to advance selection: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	return &models.ImageVariant{
		Hash:      hash,
		Path:      relPath,
		ThumbPath: relThumb,
		Matched:   true,
		CreatedAt: now,
	}, nil
}

// SelectVariant sets the slide's durable display pointer to the given hash
func (s *ImageService) SelectVariant(slug, sid, hash string) error {
	var exists int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM images WHERE sid = ? AND hash = ?`, sid, hash).Scan(&exists); err != nil {
		return err
	}
	if exists == 0 {
		return NewNotFound("image", hash)
	}

	result, err := s.db.Exec(`UPDATE slides SET selected_hash = ? WHERE slug = ? AND sid = ?`, hash, slug, sid)
	if err != nil {
		return fmt.Errorf("failed to select variant: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return NewNotFound("slide", sid)
	}
	return nil
}

// DeleteVariant removes a variant and its files. When the deleted variant
// was displayed, the selection falls back to the most recently created
// remaining variant (or empty when none remain) and the pointer is rewritten
// so the fallback is durable.
func (s *ImageService) DeleteVariant(slug, sid, hash string) (newSelected string, err error) {
	tx, err := s.db.Begin()
	if err != nil {
		return "", err
	}
	defer tx.Rollback()

	var relPath, relThumb string
	err = tx.QueryRow(`SELECT path, thumb_path FROM images WHERE sid = ? AND hash = ?`, sid, hash).Scan(&relPath, &relThumb)
	if err == sql.ErrNoRows {
		return "", NewNotFound("image", hash)
	}
	if err != nil {
		return "", err
	}

	if _, err := tx.Exec(`DELETE FROM images WHERE sid = ? AND hash = ?`, sid, hash); err != nil {
		return "", fmt.Errorf("failed to delete variant: %w", err)
	}

	var selected string
	if err := tx.QueryRow(`SELECT COALESCE(selected_hash, '') FROM slides WHERE slug = ? AND sid = ?`, slug, sid).Scan(&selected); err != nil {
		if err == sql.ErrNoRows {
			return "", NewNotFound("slide", sid)
		}
		return "", err
	}

	newSelected = selected
	if selected == hash {
		err = tx.QueryRow(`SELECT hash FROM images WHERE sid = ? ORDER BY created_at DESC LIMIT 1`, sid).Scan(&newSelected)
		if err == sql.ErrNoRows {
			newSelected = ""
		} else if err != nil {
			return "", err
		}
		if _, err := tx.Exec(`UPDATE slides SET selected_hash = ? WHERE sid = ?`, nullable(newSelected), sid); err != nil {
			return "", fmt.Errorf("failed to move selection: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", err
	}

	// Files go last: a crash here leaves an orphan file, not a dangling row
	removeQuietly(filepath.Join(s.dataDir, relPath))
	if relThumb != "" {
		removeQuietly(filepath.Join(s.dataDir, relThumb))
	}

	return newSelected, nil
}

func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func removeQuietly(path string) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		log.Printf("⚠️ Failed to remove file %s: %v", path, err)
	}
}

// ReadVariant returns the stored bytes of a variant, used by export
func (s *ImageService) ReadVariant(v *models.ImageVariant) ([]byte, error) {
	return os.ReadFile(filepath.Join(s.dataDir, v.Path))
}
