package handlers

import (
	"archive/zip"
	"bytes"
	"fmt"
	"path"

	"github.com/gofiber/fiber/v2"

	"genslides/internal/services"
)

// ExportHandler packages a project into a downloadable zip: one markdown
// file per slide plus each slide's currently displayed image.
type ExportHandler struct {
	projects *services.ProjectService
	images   *services.ImageService
}

// NewExportHandler creates a new export handler
func NewExportHandler(projects *services.ProjectService, images *services.ImageService) *ExportHandler {
	return &ExportHandler{projects: projects, images: images}
}

// Handle streams the project archive
func (h *ExportHandler) Handle(c *fiber.Ctx) error {
	project, err := h.projects.Get(c.Params("slug"))
	if err != nil {
		return respondError(c, err)
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)

	for i := range project.Slides {
		slide := &project.Slides[i]
		name := fmt.Sprintf("slide_%03d", i+1)

		w, err := zw.Create(name + ".md")
		if err != nil {
			return respondError(c, err)
		}
		if _, err := w.Write([]byte(slide.Content)); err != nil {
			return respondError(c, err)
		}

		variant := slide.SelectedVariant()
		if variant == nil {
			continue
		}
		data, err := h.images.ReadVariant(variant)
		if err != nil {
			// Missing file should not sink the whole export
			continue
		}
		iw, err := zw.Create(name + path.Ext(variant.Path))
		if err != nil {
			return respondError(c, err)
		}
		if _, err := iw.Write(data); err != nil {
			return respondError(c, err)
		}
	}

	if err := zw.Close(); err != nil {
		return respondError(c, err)
	}

	c.Set(fiber.HeaderContentType, "application/zip")
	c.Set(fiber.HeaderContentDisposition, fmt.Sprintf(`attachment; filename="%s.zip"`, project.Slug))
	return c.Send(buf.Bytes())
}
