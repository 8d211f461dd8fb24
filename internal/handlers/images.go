package handlers

import (
	"github.com/gofiber/fiber/v2"

	"genslides/internal/models"
	"genslides/internal/services"
)

// ImageHandler handles image variants: listing, generation requests,
// selection, and deletion.
type ImageHandler struct {
	projects    *services.ProjectService
	images      *services.ImageService
	tasks       *services.TaskRegistry
	broadcaster *services.Broadcaster
}

// NewImageHandler creates a new image handler
func NewImageHandler(projects *services.ProjectService, images *services.ImageService, tasks *services.TaskRegistry, broadcaster *services.Broadcaster) *ImageHandler {
	return &ImageHandler{
		projects:    projects,
		images:      images,
		tasks:       tasks,
		broadcaster: broadcaster,
	}
}

// variantView is the API shape of one image variant
type variantView struct {
	Hash         string `json:"hash"`
	URL          string `json:"url"`
	ThumbnailURL string `json:"thumbnail_url"`
	Matched      bool   `json:"matched"`
	Selected     bool   `json:"selected"`
	CreatedAt    string `json:"created_at"`
}

// List returns all variants of a slide
func (h *ImageHandler) List(c *fiber.Ctx) error {
	slide, err := h.projects.GetSlide(c.Params("slug"), c.Params("sid"))
	if err != nil {
		return respondError(c, err)
	}

	selected := slide.SelectedVariant()
	views := make([]variantView, 0, len(slide.Images))
	for i := range slide.Images {
		v := &slide.Images[i]
		views = append(views, variantView{
			Hash:         v.Hash,
			URL:          services.URL(v.Path),
			ThumbnailURL: services.URL(v.ThumbPath),
			Matched:      v.Matched,
			Selected:     selected != nil && selected.Hash == v.Hash,
			CreatedAt:    v.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
		})
	}
	return c.JSON(fiber.Map{"images": views})
}

// Generate requests an asynchronous generation task for the slide. The
// request returns immediately; progress arrives over the realtime channel.
func (h *ImageHandler) Generate(c *fiber.Ctx) error {
	var req struct {
		Force bool `json:"force"`
	}
	// Body is optional; force defaults to false
	_ = c.BodyParser(&req)

	slug, sid := c.Params("slug"), c.Params("sid")
	slide, err := h.projects.GetSlide(slug, sid)
	if err != nil {
		return respondError(c, err)
	}
	if slide.Content == "" {
		return respondError(c, services.NewValidation("slide has no content to generate from"))
	}
	if !req.Force && slide.HasMatched() {
		return c.JSON(fiber.Map{
			"task_id": "",
			"status":  "skipped",
			"message": "slide already has a matching image",
		})
	}

	task, err := h.tasks.Request(slug, sid, req.Force)
	if err != nil {
		return respondError(c, err)
	}

	// The task may already be running; its ID is the only stable field here
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"task_id": task.ID,
		"status":  string(models.TaskPending),
		"message": "generation task accepted",
	})
}

// Select sets the slide's displayed variant
func (h *ImageHandler) Select(c *fiber.Ctx) error {
	var req struct {
		Hash string `json:"hash"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	if req.Hash == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "hash must not be empty"})
	}

	if err := h.images.SelectVariant(c.Params("slug"), c.Params("sid"), req.Hash); err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"selected_hash": req.Hash})
}

// Delete removes a variant, announcing it to all viewers
func (h *ImageHandler) Delete(c *fiber.Ctx) error {
	slug, sid, hash := c.Params("slug"), c.Params("sid"), c.Params("hash")

	newSelected, err := h.images.DeleteVariant(slug, sid, hash)
	if err != nil {
		return respondError(c, err)
	}

	h.broadcaster.Broadcast(slug, models.Envelope{
		Type: models.EventImageDeleted,
		Data: models.ImageDeletedData{Sid: sid, Hash: hash},
	})

	return c.JSON(fiber.Map{
		"status":        "deleted",
		"selected_hash": newSelected,
	})
}
