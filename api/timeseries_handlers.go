package api

import (
	"database/sql"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/TheWorldAvatar/BaseLib/timeseries"
)

// TimeSeriesHandler exposes the Time-Series Coordinator over HTTP. It is parameterised
// on int64 Unix-second timestamps, the column type the derivation engine's own
// timestamps already use.
type TimeSeriesHandler struct {
	coordinator *timeseries.Coordinator[int64]
	db          *sql.DB
	logger      zerolog.Logger
}

// NewTimeSeriesHandler composes a coordinator and the pool it borrows connections from.
func NewTimeSeriesHandler(coordinator *timeseries.Coordinator[int64], db *sql.DB, logger zerolog.Logger) *TimeSeriesHandler {
	return &TimeSeriesHandler{coordinator: coordinator, db: db, logger: logger.With().Str("component", "timeseries-handler").Logger()}
}

// RegisterRoutes registers the time-series management and data routes.
func (h *TimeSeriesHandler) RegisterRoutes(app *fiber.App) {
	app.Post("/api/v1/timeseries", h.handleInit)
	app.Delete("/api/v1/timeseries/:seriesId", h.handleDelete)
	app.Post("/api/v1/timeseries/:seriesId/data", h.handleAddData)
	app.Get("/api/v1/timeseries/data", h.handleGetWithinBounds)
}

type initTimeSeriesRequest struct {
	SeriesID string   `json:"series_id"`
	DataIDs  []string `json:"data_ids"`
	Classes  []string `json:"classes"` // "double" | "integer" | "text" | "boolean" | "geometry"
	DBURL    string   `json:"db_url"`
	TimeUnit string   `json:"time_unit"`
	SRID     *int     `json:"srid,omitempty"` // consulted only for "geometry" columns
}

func parseColumnClass(name string) timeseries.ColumnClass {
	switch name {
	case "integer":
		return timeseries.ClassInteger
	case "text":
		return timeseries.ClassText
	case "boolean":
		return timeseries.ClassBoolean
	case "geometry":
		return timeseries.ClassGeometry
	default:
		return timeseries.ClassDouble
	}
}

func (h *TimeSeriesHandler) handleInit(c *fiber.Ctx) error {
	var req initTimeSeriesRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body: " + err.Error()})
	}
	if req.SeriesID == "" || len(req.DataIDs) == 0 || len(req.DataIDs) != len(req.Classes) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "series_id, data_ids and classes (same length) are required"})
	}

	classes := make([]timeseries.ColumnClass, len(req.Classes))
	for i, name := range req.Classes {
		classes[i] = parseColumnClass(name)
	}

	ctx := c.Context()
	if err := h.coordinator.InitTimeSeries(ctx, h.db, req.SeriesID, req.DataIDs, classes, req.DBURL, req.TimeUnit, req.SRID); err != nil {
		h.logger.Error().Err(err).Str("series", req.SeriesID).Msg("init time-series failed")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"series_id": req.SeriesID})
}

func (h *TimeSeriesHandler) handleDelete(c *fiber.Ctx) error {
	seriesID := c.Params("seriesId")
	ctx := c.Context()
	if err := h.coordinator.DeleteTimeSeries(ctx, h.db, seriesID); err != nil {
		h.logger.Error().Err(err).Str("series", seriesID).Msg("delete time-series failed")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return c.SendStatus(fiber.StatusNoContent)
}

type addDataRequest struct {
	DataIDs []string         `json:"data_ids"`
	Times   []int64          `json:"times"`
	Values  map[string][]any `json:"values"`
}

func (h *TimeSeriesHandler) handleAddData(c *fiber.Ctx) error {
	var req addDataRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body: " + err.Error()})
	}

	batch := timeseries.DataBatch[int64]{DataIDs: req.DataIDs, Times: req.Times, Values: req.Values}
	ctx := c.Context()
	if err := h.coordinator.AddData(ctx, h.db, []timeseries.DataBatch[int64]{batch}); err != nil {
		h.logger.Error().Err(err).Msg("add data failed")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return c.SendStatus(fiber.StatusAccepted)
}

func (h *TimeSeriesHandler) handleGetWithinBounds(c *fiber.Ctx) error {
	dataIDs := c.Context().QueryArgs().PeekMulti("data_id")
	ids := make([]string, len(dataIDs))
	for i, b := range dataIDs {
		ids[i] = string(b)
	}
	if len(ids) == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "at least one data_id query parameter is required"})
	}

	var lower, upper *int64
	if v := c.Query("lower"); v != "" {
		parsed, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "lower must be an integer Unix timestamp"})
		}
		lower = &parsed
	}
	if v := c.Query("upper"); v != "" {
		parsed, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "upper must be an integer Unix timestamp"})
		}
		upper = &parsed
	}

	ctx := c.Context()
	rows, err := h.coordinator.GetWithinBounds(ctx, h.db, ids, lower, upper)
	if err != nil {
		h.logger.Error().Err(err).Msg("get within bounds failed")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}

	type row struct {
		Time   int64 `json:"time"`
		Values []any `json:"values"`
	}
	out := make([]row, len(rows))
	for i, r := range rows {
		out[i] = row{Time: r.Time, Values: r.Values}
	}
	return c.JSON(fiber.Map{"rows": out})
}
