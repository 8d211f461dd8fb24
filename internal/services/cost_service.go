package services

import (
	"database/sql"
	"fmt"

	"genslides/internal/database"
	"genslides/internal/models"
)

// CostService computes estimated image-generation spend per project from the
// durable generation counters.
type CostService struct {
	db           *database.DB
	costPerStyle float64
	costPerSlide float64
}

// NewCostService creates a cost service
func NewCostService(db *database.DB, costPerStyle, costPerSlide float64) *CostService {
	return &CostService{
		db:           db,
		costPerStyle: costPerStyle,
		costPerSlide: costPerSlide,
	}
}

// Info returns the full cost breakdown for a project
func (s *CostService) Info(slug string) (models.CostInfo, error) {
	var styleGens, slideGens int
	err := s.db.QueryRow(`SELECT style_generations, slide_generations FROM projects WHERE slug = ?`, slug).
		Scan(&styleGens, &slideGens)
	if err == sql.ErrNoRows {
		return models.CostInfo{}, NewNotFound("project", slug)
	}
	if err != nil {
		return models.CostInfo{}, fmt.Errorf("failed to load cost counters: %w", err)
	}

	return models.CostInfo{
		TotalImages:      styleGens + slideGens,
		StyleGenerations: styleGens,
		SlideGenerations: slideGens,
		EstimatedCost:    float64(styleGens)*s.costPerStyle + float64(slideGens)*s.costPerSlide,
		Currency:         "USD",
	}, nil
}

// Summary returns the compact shape broadcast in cost_updated events
func (s *CostService) Summary(slug string) (models.CostUpdatedData, error) {
	info, err := s.Info(slug)
	if err != nil {
		return models.CostUpdatedData{}, err
	}
	return models.CostUpdatedData{
		TotalImages:   info.TotalImages,
		EstimatedCost: info.EstimatedCost,
	}, nil
}
