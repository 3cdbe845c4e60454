package relay

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/papercomputeco/chatrelay/pkg/models"
)

// ModelsResponse lists the models of every enabled provider.
type ModelsResponse struct {
	Default string                `json:"default"`
	Models  []models.Capabilities `json:"models"`
}

// HealthResponse reports relay liveness and configuration.
type HealthResponse struct {
	Status         string   `json:"status"`
	Timestamp      string   `json:"timestamp"`
	Service        string   `json:"service"`
	Provider       string   `json:"provider"`
	Model          string   `json:"model"`
	Providers      []string `json:"providers"`
	UploadsEnabled bool     `json:"uploadsEnabled"`
}

func (r *Relay) handleModels(c *fiber.Ctx) error {
	resp := ModelsResponse{
		Default: r.config.Model,
		Models:  []models.Capabilities{},
	}

	for _, p := range r.detector.Providers() {
		resp.Models = append(resp.Models, r.catalog.ForProvider(p.Name())...)
	}

	return c.JSON(resp)
}

func (r *Relay) handleHealth(c *fiber.Ctx) error {
	var names []string
	for _, p := range r.detector.Providers() {
		names = append(names, p.Name())
	}

	return c.JSON(HealthResponse{
		Status:         "ok",
		Timestamp:      time.Now().UTC().Format(time.RFC3339),
		Service:        r.config.Service,
		Provider:       r.config.Provider.Name(),
		Model:          r.config.Model,
		Providers:      names,
		UploadsEnabled: r.config.Uploads != nil,
	})
}
