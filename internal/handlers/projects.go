package handlers

import (
	"github.com/gofiber/fiber/v2"

	"genslides/internal/services"
)

// ProjectHandler handles project-level requests: listing, loading,
// metadata, engine selection, and cost.
type ProjectHandler struct {
	projects *services.ProjectService
	cost     *services.CostService
}

// NewProjectHandler creates a new project handler
func NewProjectHandler(projects *services.ProjectService, cost *services.CostService) *ProjectHandler {
	return &ProjectHandler{projects: projects, cost: cost}
}

// List returns all project summaries
func (h *ProjectHandler) List(c *fiber.Ctx) error {
	projects, err := h.projects.List()
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"projects": projects})
}

// Get returns the full project, creating it on first access
func (h *ProjectHandler) Get(c *fiber.Ctx) error {
	project, err := h.projects.GetOrCreate(c.Params("slug"))
	if err != nil {
		return respondError(c, err)
	}

	cost, err := h.cost.Info(project.Slug)
	if err != nil {
		return respondError(c, err)
	}
	project.Cost = cost

	return c.JSON(project)
}

// Delete removes a project and everything under it
func (h *ProjectHandler) Delete(c *fiber.Ctx) error {
	if err := h.projects.Delete(c.Params("slug")); err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"status": "deleted"})
}

// UpdateTitle renames a project
func (h *ProjectHandler) UpdateTitle(c *fiber.Ctx) error {
	var req struct {
		Title string `json:"title"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}

	if err := h.projects.UpdateTitle(c.Params("slug"), req.Title); err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"title": req.Title})
}

// GetEngine returns the project's image-generation engine
func (h *ProjectHandler) GetEngine(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"engine": h.projects.Engine(c.Params("slug"))})
}

// SetEngine switches the project's image-generation engine
func (h *ProjectHandler) SetEngine(c *fiber.Ctx) error {
	var req struct {
		Engine string `json:"engine"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}

	if err := h.projects.SetEngine(c.Params("slug"), req.Engine); err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"engine": req.Engine})
}

// GetCost returns the project's cost breakdown
func (h *ProjectHandler) GetCost(c *fiber.Ctx) error {
	info, err := h.cost.Info(c.Params("slug"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(info)
}
