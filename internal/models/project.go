package models

import "time"

// Engine names accepted by the engine-selection endpoint
const (
	EngineGemini     = "gemini"
	EngineVolcengine = "volcengine"
)

// ValidEngine reports whether name is a known image-generation engine
func ValidEngine(name string) bool {
	return name == EngineGemini || name == EngineVolcengine
}

// ImageVariant is one generated image for a slide, identified by a content
// hash of the image bytes. Matched is true iff no content edit has happened
// on the slide since this variant was generated.
type ImageVariant struct {
	Hash      string    `json:"hash"`
	Path      string    `json:"path"`
	ThumbPath string    `json:"thumb_path"`
	Matched   bool      `json:"matched"`
	CreatedAt time.Time `json:"created_at"`
}

// Slide is one content unit of a presentation
type Slide struct {
	Sid          string         `json:"sid"`
	Slug         string         `json:"slug"`
	Content      string         `json:"content"`
	Position     int            `json:"position"`
	SelectedHash string         `json:"selected_hash,omitempty"` // durable display-selection pointer
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
	Images       []ImageVariant `json:"images"`
}

// HasMatched reports whether any variant still matches the slide's content
func (s *Slide) HasMatched() bool {
	for i := range s.Images {
		if s.Images[i].Matched {
			return true
		}
	}
	return false
}

// NeedsGeneration is true iff the slide has content and no matched variant
func (s *Slide) NeedsGeneration() bool {
	return s.Content != "" && !s.HasMatched()
}

// SelectedVariant returns the variant the display pointer refers to, falling
// back to the most recently created variant when the pointer is unset or
// stale (self-healing per the store contract).
func (s *Slide) SelectedVariant() *ImageVariant {
	if s.SelectedHash != "" {
		for i := range s.Images {
			if s.Images[i].Hash == s.SelectedHash {
				return &s.Images[i]
			}
		}
	}
	if len(s.Images) == 0 {
		return nil
	}
	latest := &s.Images[0]
	for i := range s.Images {
		if s.Images[i].CreatedAt.After(latest.CreatedAt) {
			latest = &s.Images[i]
		}
	}
	return latest
}

// Style is the project-wide visual-direction anchor
type Style struct {
	Prompt    string    `json:"prompt"`
	ImagePath string    `json:"image_path"`
	StyleType string    `json:"style_type,omitempty"`
	StyleName string    `json:"style_name,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// StyleCandidate is an ephemeral candidate image generated during style
// selection. Candidates not chosen are discarded when the batch expires.
type StyleCandidate struct {
	ID   string `json:"id"`
	Path string `json:"path"`
}

// StyleTemplate is a preset visual direction users can generate from
type StyleTemplate struct {
	Type          string `json:"type"`
	Name          string `json:"name"`
	NameEN        string `json:"name_en"`
	Description   string `json:"description"`
	PreviewPrompt string `json:"preview_prompt"`
}

// CostInfo tracks image-generation spend for a project
type CostInfo struct {
	TotalImages      int     `json:"total_images"`
	StyleGenerations int     `json:"style_generations"`
	SlideGenerations int     `json:"slide_generations"`
	EstimatedCost    float64 `json:"estimated_cost"`
	Currency         string  `json:"currency"`
}

// Project is a slide presentation identified by a URL-safe slug
type Project struct {
	Slug      string    `json:"slug"`
	Title     string    `json:"title"`
	Engine    string    `json:"engine"`
	Style     *Style    `json:"style,omitempty"`
	Slides    []Slide   `json:"slides"`
	Cost      CostInfo  `json:"cost"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// GetSlide returns the slide with the given id, or nil
func (p *Project) GetSlide(sid string) *Slide {
	for i := range p.Slides {
		if p.Slides[i].Sid == sid {
			return &p.Slides[i]
		}
	}
	return nil
}
