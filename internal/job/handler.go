package job

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// Handler exposes the job control surface over HTTP.
type Handler struct {
	mgr *Manager
	log zerolog.Logger
}

// NewHandler creates the validation job HTTP handler.
func NewHandler(mgr *Manager, logger zerolog.Logger) *Handler {
	return &Handler{mgr: mgr, log: logger}
}

// RegisterRoutes mounts the job endpoints on the given group.
func (h *Handler) RegisterRoutes(g *echo.Group) {
	jobs := g.Group("/validation/jobs")
	jobs.POST("/start", h.Start)
	jobs.POST("/pause", h.Pause)
	jobs.POST("/resume", h.Resume)
	jobs.POST("/stop", h.Stop)
	jobs.GET("/progress", h.Progress)
	jobs.GET("/restore-active", h.RestoreActive)
}

type errorBody struct {
	Code    string   `json:"code"`
	Message string   `json:"message"`
	Fields  []string `json:"fields,omitempty"`
}

type errorEnvelope struct {
	Error errorBody `json:"error"`
}

func writeError(c echo.Context, status int, code, message string, fields []string) error {
	return c.JSON(status, errorEnvelope{Error: errorBody{Code: code, Message: message, Fields: fields}})
}

// Start handles POST /validation/jobs/start. A fresh job is 202 Accepted;
// a duplicate start reports the existing job with 200.
func (h *Handler) Start(c echo.Context) error {
	var req StartRequest
	if err := c.Bind(&req); err != nil {
		return writeError(c, http.StatusBadRequest, "INVALID_PAYLOAD", "request body is not valid JSON", nil)
	}
	if fieldErrs := req.Validate(); len(fieldErrs) > 0 {
		return writeError(c, http.StatusBadRequest, "INVALID_PAYLOAD", "start request failed validation", fieldErrs)
	}

	res, err := h.mgr.Start(c.Request().Context(), req)
	if errors.Is(err, ErrNoSourceConfigured) {
		return writeError(c, http.StatusBadRequest, "NO_SOURCE_CONFIGURED", "no resource types could be resolved for the source server", nil)
	}
	if err != nil {
		h.log.Error().Err(err).Msg("start failed")
		return writeError(c, http.StatusInternalServerError, "INTERNAL", "failed to start validation job", nil)
	}

	status := http.StatusAccepted
	if res.AlreadyRunning {
		status = http.StatusOK
	}
	return c.JSON(status, res)
}

// Pause handles POST /validation/jobs/pause.
func (h *Handler) Pause(c echo.Context) error {
	if err := h.mgr.Pause(c.Request().Context()); err != nil {
		return noActiveJobError(c, err)
	}
	return c.JSON(http.StatusAccepted, map[string]string{"status": StatusPaused})
}

// Resume handles POST /validation/jobs/resume.
func (h *Handler) Resume(c echo.Context) error {
	if err := h.mgr.Resume(c.Request().Context()); err != nil {
		return noActiveJobError(c, err)
	}
	return c.JSON(http.StatusAccepted, map[string]string{"status": StatusRunning})
}

// Stop handles POST /validation/jobs/stop. Idempotent: stopping an idle
// manager reports 200 with status idle.
func (h *Handler) Stop(c echo.Context) error {
	res, err := h.mgr.Stop(c.Request().Context())
	if err != nil {
		h.log.Error().Err(err).Msg("stop failed")
		return writeError(c, http.StatusInternalServerError, "INTERNAL", "failed to stop validation job", nil)
	}
	if res.Status == StatusIdle {
		return c.JSON(http.StatusOK, res)
	}
	return c.JSON(http.StatusAccepted, res)
}

// Progress handles GET /validation/jobs/progress.
func (h *Handler) Progress(c echo.Context) error {
	return c.JSON(http.StatusOK, h.mgr.GetProgress())
}

// RestoreActive handles GET /validation/jobs/restore-active.
func (h *Handler) RestoreActive(c echo.Context) error {
	snap, err := h.mgr.RestoreActive(c.Request().Context())
	if errors.Is(err, ErrNoRestorableJob) {
		return writeError(c, http.StatusNotFound, "NO_RESTORABLE_JOB", "no restorable job checkpoint for this server", nil)
	}
	if err != nil {
		h.log.Error().Err(err).Msg("restore failed")
		return writeError(c, http.StatusInternalServerError, "INTERNAL", "failed to restore job state", nil)
	}
	return c.JSON(http.StatusOK, snap)
}

func noActiveJobError(c echo.Context, err error) error {
	if errors.Is(err, ErrNoActiveJob) {
		return writeError(c, http.StatusBadRequest, "NO_ACTIVE_JOB", "no validation job is active", nil)
	}
	return writeError(c, http.StatusInternalServerError, "INTERNAL", err.Error(), nil)
}
