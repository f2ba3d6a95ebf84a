package api

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/TheWorldAvatar/BaseLib/derivation"
)

// DerivationHandler exposes the Derived-Quantity Engine's update and validate
// operations over HTTP.
type DerivationHandler struct {
	engine *derivation.Engine
	logger zerolog.Logger
}

// NewDerivationHandler composes an engine into a handler.
func NewDerivationHandler(engine *derivation.Engine, logger zerolog.Logger) *DerivationHandler {
	return &DerivationHandler{engine: engine, logger: logger.With().Str("component", "derivation-handler").Logger()}
}

// RegisterRoutes registers the derivation routes.
func (h *DerivationHandler) RegisterRoutes(app *fiber.App) {
	app.Post("/api/v1/derivation/:nodeId/update", h.handleUpdate)
	app.Get("/api/v1/derivation/:nodeId/validate", h.handleValidate)
}

func (h *DerivationHandler) handleUpdate(c *fiber.Ctx) error {
	nodeID := c.Params("nodeId")
	ctx := context.Background()

	if err := h.engine.Update(ctx, nodeID); err != nil {
		switch err.(type) {
		case *derivation.CircularDependencyError:
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": err.Error()})
		case *derivation.ReconnectionError:
			return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"error": err.Error()})
		default:
			h.logger.Error().Err(err).Str("node", nodeID).Msg("update failed")
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
		}
	}

	return c.JSON(fiber.Map{"node_id": nodeID, "status": "updated"})
}

func (h *DerivationHandler) handleValidate(c *fiber.Ctx) error {
	nodeID := c.Params("nodeId")
	ctx := context.Background()

	ok, err := h.engine.Validate(ctx, nodeID)
	if err != nil {
		h.logger.Error().Err(err).Str("node", nodeID).Msg("validate failed")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}

	return c.JSON(fiber.Map{"node_id": nodeID, "valid": ok})
}
