package handlers

import (
	"github.com/gofiber/fiber/v2"

	"genslides/internal/services"
)

// SlideHandler handles slide CRUD and reordering
type SlideHandler struct {
	projects *services.ProjectService
}

// NewSlideHandler creates a new slide handler
func NewSlideHandler(projects *services.ProjectService) *SlideHandler {
	return &SlideHandler{projects: projects}
}

// Create inserts a new slide, optionally after an existing one
func (h *SlideHandler) Create(c *fiber.Ctx) error {
	var req struct {
		Content  string `json:"content"`
		AfterSid string `json:"after_sid"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}

	// Creating a slide implies the project exists
	if _, err := h.projects.GetOrCreate(c.Params("slug")); err != nil {
		return respondError(c, err)
	}

	slide, err := h.projects.CreateSlide(c.Params("slug"), req.Content, req.AfterSid)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(slide)
}

// UpdateContent saves slide content, invalidating matched variants only when
// the content actually changed
func (h *SlideHandler) UpdateContent(c *fiber.Ctx) error {
	var req struct {
		Content string `json:"content"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}

	slide, _, err := h.projects.UpdateSlideContent(c.Params("slug"), c.Params("sid"), req.Content)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(slide)
}

// Delete removes a slide
func (h *SlideHandler) Delete(c *fiber.Ctx) error {
	if err := h.projects.DeleteSlide(c.Params("slug"), c.Params("sid")); err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"status": "deleted"})
}

// Reorder rewrites the slide order from an exact permutation of slide ids
func (h *SlideHandler) Reorder(c *fiber.Ctx) error {
	var req struct {
		Order []string `json:"order"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}

	slug := c.Params("slug")
	if err := h.projects.Reorder(slug, req.Order); err != nil {
		return respondError(c, err)
	}

	project, err := h.projects.Get(slug)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"slides": project.Slides})
}
