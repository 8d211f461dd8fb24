package handlers

import (
	"log"

	"github.com/gofiber/fiber/v2"

	"genslides/internal/services"
)

// StyleHandler handles the project style lifecycle: templates, candidate
// generation, promotion, and clearing.
type StyleHandler struct {
	projects *services.ProjectService
	styles   *services.StyleService
}

// NewStyleHandler creates a new style handler
func NewStyleHandler(projects *services.ProjectService, styles *services.StyleService) *StyleHandler {
	return &StyleHandler{projects: projects, styles: styles}
}

// Templates returns the preset visual directions
func (h *StyleHandler) Templates(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"templates": h.styles.Templates()})
}

// Get returns the project's current style and any unexpired candidates
func (h *StyleHandler) Get(c *fiber.Ctx) error {
	project, err := h.projects.Get(c.Params("slug"))
	if err != nil {
		return respondError(c, err)
	}

	prompt, candidates := h.styles.Candidates(project.Slug)
	views := make([]fiber.Map, 0, len(candidates))
	for _, cand := range candidates {
		views = append(views, fiber.Map{"id": cand.ID, "url": services.URL(cand.Path)})
	}

	resp := fiber.Map{
		"style":            nil,
		"candidates":       views,
		"candidate_prompt": prompt,
	}
	if project.Style != nil {
		resp["style"] = fiber.Map{
			"prompt":     project.Style.Prompt,
			"url":        services.URL(project.Style.ImagePath),
			"style_type": project.Style.StyleType,
			"style_name": project.Style.StyleName,
			"created_at": project.Style.CreatedAt,
		}
	}
	return c.JSON(resp)
}

// Generate starts a candidate batch generation. Returns immediately; the
// batch arrives as a style_generation_completed event.
func (h *StyleHandler) Generate(c *fiber.Ctx) error {
	var req struct {
		Prompt    string `json:"prompt"`
		StyleType string `json:"style_type"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}

	slug := c.Params("slug")
	if _, err := h.projects.GetOrCreate(slug); err != nil {
		return respondError(c, err)
	}

	prompt := req.Prompt
	styleName := ""
	if req.StyleType != "" {
		template, err := h.styles.Template(req.StyleType)
		if err != nil {
			return respondError(c, err)
		}
		if prompt == "" {
			prompt = template.PreviewPrompt
		}
		styleName = template.Name
	}
	if prompt == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "prompt or style_type required"})
	}

	go func() {
		if err := h.styles.GenerateCandidates(slug, prompt, req.StyleType, styleName); err != nil {
			log.Printf("❌ Style generation failed for %s: %v", slug, err)
		}
	}()

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"status":  "pending",
		"message": "style generation started",
	})
}

// Save promotes a candidate to the project's style anchor
func (h *StyleHandler) Save(c *fiber.Ctx) error {
	var req struct {
		CandidateID string `json:"candidate_id"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}

	style, err := h.styles.Promote(c.Params("slug"), req.CandidateID)
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(fiber.Map{
		"prompt":     style.Prompt,
		"url":        services.URL(style.ImagePath),
		"style_type": style.StyleType,
		"style_name": style.StyleName,
	})
}

// Clear removes the project's style anchor
func (h *StyleHandler) Clear(c *fiber.Ctx) error {
	if err := h.styles.Clear(c.Params("slug")); err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"status": "cleared"})
}
