// Package http wires the minimal /v1/query surface from SPEC_FULL.md
// onto an echo.Echo server, grounded on the teacher's
// internal/adapter/rag_http.Handler (route registration, JSON request/
// response DTOs, structured error responses).
package http

import (
	"log/slog"
	"net/http"

	"taxauditrag/internal/usecase"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

// Handler exposes run_query over HTTP.
type Handler struct {
	pipeline *usecase.Pipeline
	logger   *slog.Logger
}

// NewHandler constructs a Handler.
func NewHandler(pipeline *usecase.Pipeline, logger *slog.Logger) *Handler {
	return &Handler{pipeline: pipeline, logger: logger}
}

// Register attaches routes to the given echo group.
func (h *Handler) Register(e *echo.Echo) {
	e.POST("/v1/query", h.Query)
	e.GET("/healthz", h.Health)
}

type queryRequest struct {
	Text string `json:"text"`
}

type queryResponse struct {
	Answer string `json:"answer"`
}

// Query answers a single natural-language question.
func (h *Handler) Query(c echo.Context) error {
	var req queryRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	if req.Text == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "text is required"})
	}

	requestID := uuid.New().String()
	c.Response().Header().Set("X-Request-Id", requestID)
	h.logger.Info("query_started", "request_id", requestID)

	answer := h.pipeline.RunQuery(c.Request().Context(), req.Text)

	h.logger.Info("query_completed", "request_id", requestID)
	return c.JSON(http.StatusOK, queryResponse{Answer: answer})
}

// Health is a liveness probe.
func (h *Handler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, echo.Map{"status": "ok"})
}
