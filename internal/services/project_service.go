package services

import (
	"database/sql"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"genslides/internal/database"
	"genslides/internal/models"
)

// ProjectService owns project and slide persistence. Projects are created
// implicitly on first access by slug.
type ProjectService struct {
	db            *database.DB
	defaultEngine string
}

// NewProjectService creates a project service
func NewProjectService(db *database.DB, defaultEngine string) *ProjectService {
	return &ProjectService{db: db, defaultEngine: defaultEngine}
}

// ProjectSummary is the list-view shape of a project
type ProjectSummary struct {
	Slug       string    `json:"slug"`
	Title      string    `json:"title"`
	Engine     string    `json:"engine"`
	SlideCount int       `json:"slide_count"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// List returns all projects, most recently updated first
func (s *ProjectService) List() ([]ProjectSummary, error) {
	rows, err := s.db.Query(`
		SELECT p.slug, p.title, p.engine, p.created_at, p.updated_at,
		       (SELECT COUNT(*) FROM slides WHERE slides.slug = p.slug)
		FROM projects p
		ORDER BY p.updated_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	defer rows.Close()

	projects := []ProjectSummary{}
	for rows.Next() {
		var p ProjectSummary
		if err := rows.Scan(&p.Slug, &p.Title, &p.Engine, &p.CreatedAt, &p.UpdatedAt, &p.SlideCount); err != nil {
			return nil, fmt.Errorf("failed to scan project: %w", err)
		}
		projects = append(projects, p)
	}
	return projects, rows.Err()
}

// GetOrCreate loads the full project, creating an empty one when the slug is
// seen for the first time.
func (s *ProjectService) GetOrCreate(slug string) (*models.Project, error) {
	now := time.Now().UTC()
	result, err := s.db.Exec(`
		INSERT INTO projects (slug, title, engine, created_at, updated_at)
		VALUES (?, 'Untitled', ?, ?, ?)
		ON CONFLICT(slug) DO NOTHING`,
		slug, s.defaultEngine, now, now)
	if err != nil {
		return nil, fmt.Errorf("failed to create project: %w", err)
	}
	if n, _ := result.RowsAffected(); n > 0 {
		log.Printf("📁 Project created: %s", slug)
	}

	return s.load(slug)
}

// Get loads the full project or returns a NotFoundError
func (s *ProjectService) Get(slug string) (*models.Project, error) {
	var exists int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM projects WHERE slug = ?`, slug).Scan(&exists); err != nil {
		return nil, err
	}
	if exists == 0 {
		return nil, NewNotFound("project", slug)
	}
	return s.load(slug)
}

func (s *ProjectService) load(slug string) (*models.Project, error) {
	project := &models.Project{Slug: slug}
	var styleGens, slideGens int
	err := s.db.QueryRow(`
		SELECT title, engine, style_generations, slide_generations, created_at, updated_at
		FROM projects WHERE slug = ?`, slug).
		Scan(&project.Title, &project.Engine, &styleGens, &slideGens, &project.CreatedAt, &project.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, NewNotFound("project", slug)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load project: %w", err)
	}
	project.Cost = models.CostInfo{
		StyleGenerations: styleGens,
		SlideGenerations: slideGens,
	}

	slides, err := s.loadSlides(slug)
	if err != nil {
		return nil, err
	}
	project.Slides = slides

	style, err := s.loadStyle(slug)
	if err != nil {
		return nil, err
	}
	project.Style = style

	return project, nil
}

func (s *ProjectService) loadSlides(slug string) ([]models.Slide, error) {
	rows, err := s.db.Query(`
		SELECT sid, content, position, COALESCE(selected_hash, ''), created_at, updated_at
		FROM slides WHERE slug = ? ORDER BY position`, slug)
	if err != nil {
		return nil, fmt.Errorf("failed to load slides: %w", err)
	}
	defer rows.Close()

	slides := []models.Slide{}
	index := map[string]int{}
	for rows.Next() {
		var sl models.Slide
		sl.Slug = slug
		if err := rows.Scan(&sl.Sid, &sl.Content, &sl.Position, &sl.SelectedHash, &sl.CreatedAt, &sl.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan slide: %w", err)
		}
		sl.Images = []models.ImageVariant{}
		index[sl.Sid] = len(slides)
		slides = append(slides, sl)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	imgRows, err := s.db.Query(`
		SELECT sid, hash, path, thumb_path, matched, created_at
		FROM images WHERE slug = ? ORDER BY created_at`, slug)
	if err != nil {
		return nil, fmt.Errorf("failed to load images: %w", err)
	}
	defer imgRows.Close()

	for imgRows.Next() {
		var sid string
		var v models.ImageVariant
		if err := imgRows.Scan(&sid, &v.Hash, &v.Path, &v.ThumbPath, &v.Matched, &v.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan image: %w", err)
		}
		if i, ok := index[sid]; ok {
			slides[i].Images = append(slides[i].Images, v)
		}
	}
	return slides, imgRows.Err()
}

func (s *ProjectService) loadStyle(slug string) (*models.Style, error) {
	var style models.Style
	var styleType, styleName sql.NullString
	err := s.db.QueryRow(`
		SELECT prompt, image_path, style_type, style_name, created_at
		FROM styles WHERE slug = ?`, slug).
		Scan(&style.Prompt, &style.ImagePath, &styleType, &styleName, &style.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load style: %w", err)
	}
	style.StyleType = styleType.String
	style.StyleName = styleName.String
	return &style, nil
}

// Delete removes a project and everything under it
func (s *ProjectService) Delete(slug string) error {
	result, err := s.db.Exec(`DELETE FROM projects WHERE slug = ?`, slug)
	if err != nil {
		return fmt.Errorf("failed to delete project: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return NewNotFound("project", slug)
	}
	log.Printf("🗑️ Project deleted: %s", slug)
	return nil
}

// UpdateTitle renames a project
func (s *ProjectService) UpdateTitle(slug, title string) error {
	if title == "" {
		return NewValidation("title must not be empty")
	}
	result, err := s.db.Exec(`UPDATE projects SET title = ?, updated_at = ? WHERE slug = ?`,
		title, time.Now().UTC(), slug)
	if err != nil {
		return fmt.Errorf("failed to update title: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return NewNotFound("project", slug)
	}
	return nil
}

// Engine returns the project's configured engine, falling back to the
// default when the project does not exist yet.
func (s *ProjectService) Engine(slug string) string {
	var engine string
	err := s.db.QueryRow(`SELECT engine FROM projects WHERE slug = ?`, slug).Scan(&engine)
	if err != nil {
		return s.defaultEngine
	}
	return engine
}

// SetEngine switches the project's image-generation engine. Existing images
// and tasks are unaffected.
func (s *ProjectService) SetEngine(slug, engine string) error {
	if !models.ValidEngine(engine) {
		return NewValidation("unknown engine: %s", engine)
	}
	result, err := s.db.Exec(`UPDATE projects SET engine = ?, updated_at = ? WHERE slug = ?`,
		engine, time.Now().UTC(), slug)
	if err != nil {
		return fmt.Errorf("failed to set engine: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return NewNotFound("project", slug)
	}
	return nil
}

// CreateSlide inserts a new slide. When afterSid is set the slide is placed
// directly after it, otherwise it is appended at the end.
func (s *ProjectService) CreateSlide(slug, content, afterSid string) (*models.Slide, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	position := 0
	if afterSid != "" {
		var afterPos int
		err := tx.QueryRow(`SELECT position FROM slides WHERE slug = ? AND sid = ?`, slug, afterSid).Scan(&afterPos)
		if err == sql.ErrNoRows {
			return nil, NewNotFound("slide", afterSid)
		}
		if err != nil {
			return nil, err
		}
		if _, err := tx.Exec(`UPDATE slides SET position = position + 1 WHERE slug = ? AND position > ?`, slug, afterPos); err != nil {
			return nil, err
		}
		position = afterPos + 1
	} else {
		if err := tx.QueryRow(`SELECT COALESCE(MAX(position) + 1, 0) FROM slides WHERE slug = ?`, slug).Scan(&position); err != nil {
			return nil, err
		}
	}

	now := time.Now().UTC()
	slide := &models.Slide{
		Sid:       uuid.New().String(),
		Slug:      slug,
		Content:   content,
		Position:  position,
		CreatedAt: now,
		UpdatedAt: now,
		Images:    []models.ImageVariant{},
	}
	if _, err := tx.Exec(`
		INSERT INTO slides (sid, slug, content, position, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		slide.Sid, slug, content, position, now, now); err != nil {
		return nil, fmt.Errorf("failed to create slide: %w", err)
	}
	if _, err := tx.Exec(`UPDATE projects SET updated_at = ? WHERE slug = ?`, now, slug); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return slide, nil
}

// GetSlide loads one slide with its image variants
func (s *ProjectService) GetSlide(slug, sid string) (*models.Slide, error) {
	var sl models.Slide
	sl.Slug = slug
	err := s.db.QueryRow(`
		SELECT sid, content, position, COALESCE(selected_hash, ''), created_at, updated_at
		FROM slides WHERE slug = ? AND sid = ?`, slug, sid).
		Scan(&sl.Sid, &sl.Content, &sl.Position, &sl.SelectedHash, &sl.CreatedAt, &sl.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, NewNotFound("slide", sid)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load slide: %w", err)
	}

	rows, err := s.db.Query(`
		SELECT hash, path, thumb_path, matched, created_at
		FROM images WHERE sid = ? ORDER BY created_at`, sid)
	if err != nil {
		return nil, fmt.Errorf("failed to load images: %w", err)
	}
	defer rows.Close()

	sl.Images = []models.ImageVariant{}
	for rows.Next() {
		var v models.ImageVariant
		if err := rows.Scan(&v.Hash, &v.Path, &v.ThumbPath, &v.Matched, &v.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan image: %w", err)
		}
		sl.Images = append(sl.Images, v)
	}
	return &sl, rows.Err()
}

// UpdateSlideContent saves new content for a slide. Only an actual content
// change invalidates the matched flag on the slide's variants; saving
// identical content is a no-op for matching state. Returns the updated slide
// and whether the content changed.
func (s *ProjectService) UpdateSlideContent(slug, sid, content string) (*models.Slide, bool, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, false, err
	}
	defer tx.Rollback()

	var current string
	err = tx.QueryRow(`SELECT content FROM slides WHERE slug = ? AND sid = ?`, slug, sid).Scan(&current)
	if err == sql.ErrNoRows {
		return nil, false, NewNotFound("slide", sid)
	}
	if err != nil {
		return nil, false, err
	}

	changed := current != content
	if changed {
		now := time.Now().UTC()
		if _, err := tx.Exec(`UPDATE slides SET content = ?, updated_at = ? WHERE sid = ?`, content, now, sid); err != nil {
			return nil, false, fmt.Errorf("failed to update slide: %w", err)
		}
		// Content moved on; every existing variant is now stale
		if _, err := tx.Exec(`UPDATE images SET matched = 0 WHERE sid = ?`, sid); err != nil {
			return nil, false, fmt.Errorf("failed to invalidate images: %w", err)
		}
		if _, err := tx.Exec(`UPDATE projects SET updated_at = ? WHERE slug = ?`, now, slug); err != nil {
			return nil, false, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, false, err
	}

	slide, err := s.GetSlide(slug, sid)
	return slide, changed, err
}

// DeleteSlide removes a slide and compacts the remaining positions
func (s *ProjectService) DeleteSlide(slug, sid string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var position int
	err = tx.QueryRow(`SELECT position FROM slides WHERE slug = ? AND sid = ?`, slug, sid).Scan(&position)
	if err == sql.ErrNoRows {
		return NewNotFound("slide", sid)
	}
	if err != nil {
		return err
	}

	if _, err := tx.Exec(`DELETE FROM slides WHERE sid = ?`, sid); err != nil {
		return fmt.Errorf("failed to delete slide: %w", err)
	}
	if _, err := tx.Exec(`UPDATE slides SET position = position - 1 WHERE slug = ? AND position > ?`, slug, position); err != nil {
		return err
	}
	if _, err := tx.Exec(`UPDATE projects SET updated_at = ? WHERE slug = ?`, time.Now().UTC(), slug); err != nil {
		return err
	}

	return tx.Commit()
}

// Reorder rewrites slide positions to match order, which must be an exact
// permutation of the project's slide ids.
func (s *ProjectService) Reorder(slug string, order []string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	rows, err := tx.Query(`SELECT sid FROM slides WHERE slug = ?`, slug)
	if err != nil {
		return err
	}
	existing := map[string]bool{}
	for rows.Next() {
		var sid string
		if err := rows.Scan(&sid); err != nil {
			rows.Close()
			return err
		}
		existing[sid] = true
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	if len(order) != len(existing) {
		return NewValidation("order must contain exactly %d slide ids, got %d", len(existing), len(order))
	}
	seen := map[string]bool{}
	for _, sid := range order {
		if !existing[sid] {
			return NewValidation("unknown slide id in order: %s", sid)
		}
		if seen[sid] {
			return NewValidation("duplicate slide id in order: %s", sid)
		}
		seen[sid] = true
	}

	for position, sid := range order {
		if _, err := tx.Exec(`UPDATE slides SET position = ? WHERE sid = ?`, position, sid); err != nil {
			return fmt.Errorf("failed to reorder slides: %w", err)
		}
	}
	if _, err := tx.Exec(`UPDATE projects SET updated_at = ? WHERE slug = ?`, time.Now().UTC(), slug); err != nil {
		return err
	}

	return tx.Commit()
}
