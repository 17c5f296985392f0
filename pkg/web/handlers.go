package web

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/dukex/opflow/pkg/models"
	"github.com/dukex/opflow/pkg/persistence"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
)

// RunControl is the part of the execution context the API drives.
type RunControl interface {
	RunID() string
	IsRunning() bool
	IsStopped() bool
	Pause() bool
	Resume() bool
	Toggle()
}

type APIHandlers struct {
	control     RunControl
	persistence persistence.Persistence
	apps        []AppInfo
	validator   *validator.Validate
	now         func() time.Time
}

func NewAPIHandlers(
	control RunControl,
	persistence persistence.Persistence,
	apps []AppInfo,
	validator *validator.Validate,
) *APIHandlers {
	return &APIHandlers{
		control:     control,
		persistence: persistence,
		apps:        apps,
		validator:   validator,
		now:         time.Now,
	}
}

// Register mounts every endpoint on router.
func (h *APIHandlers) Register(router fiber.Router) {
	router.Get("/health", h.HealthCheck)
	router.Get("/status", h.GetStatus)

	control := router.Group("/control")
	control.Post("/pause", h.Pause)
	control.Post("/resume", h.Resume)
	control.Post("/toggle", h.Toggle)

	records := router.Group("/records")
	records.Get("/", h.GetRecords)
	records.Get("/:appId", h.GetRecord)
	records.Put("/:appId/status", h.UpdateRecordStatus)
	records.Delete("/:appId", h.DeleteRecord)

	router.Get("/operations", h.GetRecentOperations)
	router.Get("/runs/:runId/operations", h.GetRunOperations)
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	err := h.persistence.HealthCheck(c.Context())
	if err != nil {
		return unavailable(c, err)
	}

	return c.JSON(fiber.Map{"status": "healthy"})
}

func (h *APIHandlers) GetStatus(c fiber.Ctx) error {
	now := h.now()
	repo := h.persistence.RunRecordRepository()

	apps := make([]AppStatus, 0, len(h.apps))

	for _, app := range h.apps {
		status := AppStatus{ID: app.ID, Reset: app.Reset, Status: models.RunStatusWait}

		record, err := repo.Get(c.Context(), app.ID)

		switch {
		case err == nil:
			record.Reset = app.Reset
			status.Status = record.StatusAt(now)
			status.Date = record.Date
			status.UpdatedAt = &record.UpdatedAt
		case !persistence.IsRunRecordNotFound(err):
			return handlePersistenceError(c, err)
		}

		apps = append(apps, status)
	}

	return c.JSON(StatusResponse{
		RunID:   h.control.RunID(),
		Running: h.control.IsRunning(),
		Stopped: h.control.IsStopped(),
		Apps:    apps,
	})
}

func (h *APIHandlers) Pause(c fiber.Ctx) error {
	changed := h.control.Pause()

	return c.JSON(ControlResponse{Running: h.control.IsRunning(), Changed: changed})
}

func (h *APIHandlers) Resume(c fiber.Ctx) error {
	changed := h.control.Resume()

	return c.JSON(ControlResponse{Running: h.control.IsRunning(), Changed: changed})
}

func (h *APIHandlers) Toggle(c fiber.Ctx) error {
	h.control.Toggle()

	return c.JSON(ControlResponse{Running: h.control.IsRunning(), Changed: true})
}

func (h *APIHandlers) GetRecords(c fiber.Ctx) error {
	records, err := h.persistence.RunRecordRepository().List(c.Context())
	if err != nil {
		return handlePersistenceError(c, err)
	}

	return c.JSON(fiber.Map{
		"records":     records,
		"total_count": len(records),
	})
}

func (h *APIHandlers) GetRecord(c fiber.Ctx) error {
	appID := c.Params("appId")

	record, err := h.persistence.RunRecordRepository().Get(c.Context(), appID)
	if err != nil {
		return handlePersistenceError(c, err)
	}

	return c.JSON(record)
}

// UpdateRecordStatus overrides the status of a run record, creating the
// record for registered applications that never ran.
func (h *APIHandlers) UpdateRecordStatus(c fiber.Ctx) error {
	appID := c.Params("appId")

	var req UpdateRecordRequest

	err := json.Unmarshal(c.Body(), &req)
	if err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	err = h.validator.Struct(req)
	if err != nil {
		return badRequest(c, err.Error())
	}

	repo := h.persistence.RunRecordRepository()
	now := h.now()

	record, err := repo.Get(c.Context(), appID)

	switch {
	case persistence.IsRunRecordNotFound(err):
		app, ok := h.app(appID)
		if !ok {
			return notFound(c, "Application not found")
		}

		record = models.NewAppRunRecord(app.ID, app.Reset, now)
	case err != nil:
		return handlePersistenceError(c, err)
	}

	record.Update(req.Status, now)

	err = repo.Save(c.Context(), record)
	if err != nil {
		return handlePersistenceError(c, err)
	}

	return c.JSON(record)
}

func (h *APIHandlers) DeleteRecord(c fiber.Ctx) error {
	err := h.persistence.RunRecordRepository().Delete(c.Context(), c.Params("appId"))
	if err != nil {
		return handlePersistenceError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) GetRecentOperations(c fiber.Ctx) error {
	limit := 0

	if limitStr := c.Query("limit"); limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil || parsed < 0 {
			return badRequest(c, "Invalid limit")
		}

		limit = parsed
	}

	limit = persistence.NormalizeLimit(limit)

	records, err := h.persistence.OperationRecordRepository().Recent(c.Context(), limit)
	if err != nil {
		return handlePersistenceError(c, err)
	}

	return c.JSON(fiber.Map{
		"operations": records,
		"limit":      limit,
	})
}

func (h *APIHandlers) GetRunOperations(c fiber.Ctx) error {
	records, err := h.persistence.OperationRecordRepository().ListByRun(c.Context(), c.Params("runId"))
	if err != nil {
		return handlePersistenceError(c, err)
	}

	return c.JSON(fiber.Map{
		"run_id":     c.Params("runId"),
		"operations": records,
	})
}

func (h *APIHandlers) app(id string) (AppInfo, bool) {
	for _, app := range h.apps {
		if app.ID == id {
			return app, true
		}
	}

	return AppInfo{}, false
}
