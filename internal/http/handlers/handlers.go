package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/adrean-github/Proyecto-Yggdrasil/internal/apperr"
	"github.com/adrean-github/Proyecto-Yggdrasil/internal/db"
	"github.com/adrean-github/Proyecto-Yggdrasil/internal/models"
	"github.com/adrean-github/Proyecto-Yggdrasil/internal/notify"
	"github.com/adrean-github/Proyecto-Yggdrasil/internal/service"
)

type Handler struct {
	Store     *db.Store
	Agendas   *service.AgendaService
	Conflicts *service.ConflictService
	Resolver  *service.Resolver
	Dashboard *service.DashboardService
	Updater   *service.Updater
	Simulator *service.Simulator
	Hub       *notify.Hub
	Validator *validator.Validate
	Logger    zerolog.Logger
	AdminKey  string
}

func (h *Handler) Healthz(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()
	if err := h.Store.Ping(ctx); err != nil {
		writeError(c, http.StatusServiceUnavailable, "DB_UNAVAILABLE", "Database unavailable", err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "ws_subscribers": h.Hub.Subscribers()})
}

// @Summary List appointments
// @Tags agendas
// @Produce json
// @Param from query string true "Start date (YYYY-MM-DD)"
// @Param to query string true "End date (YYYY-MM-DD)"
// @Param box query int false "Filter by box id"
// @Success 200 {object} map[string]any
// @Router /api/agendas [get]
func (h *Handler) AgendasList(c *gin.Context) {
	from, to, ok := h.dateRange(c)
	if !ok {
		return
	}
	boxID, _ := strconv.Atoi(c.DefaultQuery("box", "0"))

	items, err := h.Agendas.List(c.Request.Context(), from, to, boxID)
	if err != nil {
		h.writeServiceError(c, err, "Failed to list appointments")
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items, "count": len(items)})
}

type CreateAgendaRequest struct {
	BoxID       int    `json:"box_id" validate:"required"`
	MedicID     *int   `json:"medic_id"`
	Date        string `json:"date" validate:"required"`
	Start       string `json:"start" validate:"required"`
	End         string `json:"end" validate:"required"`
	IsMedical   bool   `json:"is_medical"`
	Responsible string `json:"responsible"`
	Notes       string `json:"notes"`
}

// @Summary Book an appointment
// @Tags agendas
// @Accept json
// @Produce json
// @Param request body CreateAgendaRequest true "Appointment"
// @Success 201 {object} models.Appointment
// @Failure 409 {object} map[string]any
// @Router /api/agendas [post]
func (h *Handler) AgendaCreate(c *gin.Context) {
	var req CreateAgendaRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "Invalid payload", err.Error())
		return
	}
	if err := h.Validator.Struct(req); err != nil {
		writeError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Validation failed", err.Error())
		return
	}

	appt, ok := h.parseAppointment(c, req)
	if !ok {
		return
	}
	created, err := h.Agendas.Create(c.Request.Context(), appt)
	if err != nil {
		h.writeServiceError(c, err, "Failed to create appointment")
		return
	}
	c.JSON(http.StatusCreated, created)
}

// @Summary Cancel an appointment
// @Tags agendas
// @Produce json
// @Param id path int true "Appointment id"
// @Success 200 {object} map[string]any
// @Router /api/agendas/{id} [delete]
func (h *Handler) AgendaDelete(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "Invalid appointment id", nil)
		return
	}
	if err := h.Agendas.Delete(c.Request.Context(), id); err != nil {
		h.writeServiceError(c, err, "Failed to delete appointment")
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// @Summary List conflicting appointment pairs
// @Tags conflicts
// @Produce json
// @Param from query string true "Start date (YYYY-MM-DD)"
// @Param to query string true "End date (YYYY-MM-DD)"
// @Success 200 {object} map[string]any
// @Router /api/conflicts [get]
func (h *Handler) ConflictsList(c *gin.Context) {
	from, to, ok := h.dateRange(c)
	if !ok {
		return
	}
	pairs, err := h.Conflicts.FindConflictPairs(c.Request.Context(), from, to)
	if err != nil {
		h.writeServiceError(c, err, "Failed to detect conflicts")
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": pairs, "count": len(pairs)})
}

// @Summary Conflict statistics per day
// @Tags conflicts
// @Produce json
// @Param from query string true "Start date (YYYY-MM-DD)"
// @Param to query string true "End date (YYYY-MM-DD)"
// @Success 200 {object} service.ConflictStats
// @Router /api/conflicts/stats [get]
func (h *Handler) ConflictsStats(c *gin.Context) {
	from, to, ok := h.dateRange(c)
	if !ok {
		return
	}
	stats, err := h.Conflicts.Stats(c.Request.Context(), from, to)
	if err != nil {
		h.writeServiceError(c, err, "Failed to compute conflict stats")
		return
	}
	c.JSON(http.StatusOK, stats)
}

type ResolveRequest struct {
	AppointmentIDs []int64 `json:"appointment_ids" validate:"required,min=2"`
}

// @Summary Score alternative boxes for a conflict cluster
// @Tags conflicts
// @Accept json
// @Produce json
// @Param request body ResolveRequest true "Conflicting appointment ids"
// @Success 200 {object} models.Resolution
// @Router /api/conflicts/resolve [post]
func (h *Handler) Resolve(c *gin.Context) {
	var req ResolveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "Invalid payload", err.Error())
		return
	}
	if err := h.Validator.Struct(req); err != nil {
		writeError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Validation failed", err.Error())
		return
	}

	res, err := h.Resolver.ResolveCluster(c.Request.Context(), req.AppointmentIDs)
	if err != nil {
		h.writeServiceError(c, err, "Failed to resolve conflict")
		return
	}
	c.JSON(http.StatusOK, res)
}

type ReassignRequest struct {
	BoxID   int    `json:"box_id" validate:"required"`
	Actor   string `json:"actor" validate:"required"`
	Comment string `json:"comment"`
}

// @Summary Move an appointment to another box
// @Tags conflicts
// @Accept json
// @Produce json
// @Param id path int true "Appointment id"
// @Param request body ReassignRequest true "Destination"
// @Success 200 {object} models.ChangeResult
// @Failure 409 {object} map[string]any
// @Router /api/agendas/{id}/reassign [post]
func (h *Handler) Reassign(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "Invalid appointment id", nil)
		return
	}
	var req ReassignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "Invalid payload", err.Error())
		return
	}
	if err := h.Validator.Struct(req); err != nil {
		writeError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Validation failed", err.Error())
		return
	}

	result, err := h.Resolver.ApplyChange(c.Request.Context(), id, req.BoxID, req.Actor, req.Comment)
	if err != nil {
		h.writeServiceError(c, err, "Failed to apply reassignment")
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *Handler) BoxesList(c *gin.Context) {
	boxes, err := h.Store.ListBoxes(c.Request.Context())
	if err != nil {
		h.writeServiceError(c, err, "Failed to list boxes")
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": boxes, "count": len(boxes)})
}

func (h *Handler) BoxDetail(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "Invalid box id", nil)
		return
	}
	box, err := h.Store.GetBox(c.Request.Context(), id)
	if err != nil {
		h.writeServiceError(c, err, "Failed to get box")
		return
	}
	c.JSON(http.StatusOK, box)
}

// @Summary Find free boxes for a window
// @Tags boxes
// @Produce json
// @Param date query string true "Date (YYYY-MM-DD)"
// @Param start query string true "Window start (HH:MM)"
// @Param end query string true "Window end (HH:MM)"
// @Success 200 {object} map[string]any
// @Router /api/boxes/free [get]
func (h *Handler) BoxesFree(c *gin.Context) {
	date, err := time.Parse("2006-01-02", c.Query("date"))
	if err != nil {
		writeError(c, http.StatusBadRequest, "VALIDATION_ERROR", "date must be YYYY-MM-DD", nil)
		return
	}
	start, err := models.ParseClock(c.Query("start"))
	if err != nil {
		writeError(c, http.StatusBadRequest, "VALIDATION_ERROR", "start must be HH:MM", nil)
		return
	}
	end, err := models.ParseClock(c.Query("end"))
	if err != nil {
		writeError(c, http.StatusBadRequest, "VALIDATION_ERROR", "end must be HH:MM", nil)
		return
	}
	if end <= start {
		writeError(c, http.StatusBadRequest, "VALIDATION_ERROR", "end must be after start", nil)
		return
	}

	boxes, err := h.Conflicts.FindFreeBoxes(c.Request.Context(), date, start, end, nil, nil, false)
	if err != nil {
		h.writeServiceError(c, err, "Failed to find free boxes")
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": boxes, "count": len(boxes)})
}

type BoxStateRequest struct {
	State string `json:"state" validate:"required,oneof=enabled disabled"`
}

func (h *Handler) BoxStatePatch(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "Invalid box id", nil)
		return
	}
	var req BoxStateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "Invalid payload", err.Error())
		return
	}
	if err := h.Validator.Struct(req); err != nil {
		writeError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Validation failed", err.Error())
		return
	}

	box, err := h.Agendas.SetBoxState(c.Request.Context(), id, req.State)
	if err != nil {
		h.writeServiceError(c, err, "Failed to update box state")
		return
	}
	c.JSON(http.StatusOK, box)
}

// @Summary Dashboard snapshot for a period
// @Tags dashboard
// @Produce json
// @Param period query string false "day, week, month or year" default(day)
// @Success 200 {object} models.Snapshot
// @Router /api/dashboard [get]
func (h *Handler) DashboardGet(c *gin.Context) {
	period := strings.ToLower(c.DefaultQuery("period", service.PeriodDay))
	snap, err := h.Dashboard.GetSnapshot(c.Request.Context(), period)
	if err != nil {
		h.writeServiceError(c, err, "Failed to build dashboard snapshot")
		return
	}
	c.JSON(http.StatusOK, snap)
}

type InvalidateRequest struct {
	Reason string `json:"reason"`
}

func (h *Handler) DashboardInvalidate(c *gin.Context) {
	var req InvalidateRequest
	_ = c.ShouldBindJSON(&req)
	if req.Reason == "" {
		req.Reason = "manual"
	}
	h.Dashboard.Invalidate(req.Reason, map[string]any{"via": "api"})
	c.JSON(http.StatusAccepted, gin.H{"status": "invalidated"})
}

func (h *Handler) UpdaterStatus(c *gin.Context) {
	c.JSON(http.StatusOK, h.Updater.Status())
}

type SimulatorRow struct {
	BoxID       int    `json:"box_id" validate:"required"`
	MedicID     *int   `json:"medic_id"`
	Date        string `json:"date" validate:"required"`
	Start       string `json:"start" validate:"required"`
	End         string `json:"end" validate:"required"`
	IsMedical   bool   `json:"is_medical"`
	Responsible string `json:"responsible"`
	Notes       string `json:"notes"`
}

type SimulatorUploadRequest struct {
	Actor string         `json:"actor" validate:"required"`
	Rows  []SimulatorRow `json:"rows" validate:"required,min=1"`
}

// @Summary Validate and stage a bulk upload
// @Tags simulator
// @Accept json
// @Produce json
// @Param request body SimulatorUploadRequest true "Rows to validate"
// @Success 200 {object} staging.Batch
// @Router /api/simulator/upload [post]
func (h *Handler) SimulatorUpload(c *gin.Context) {
	var req SimulatorUploadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "Invalid payload", err.Error())
		return
	}
	if err := h.Validator.Struct(req); err != nil {
		writeError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Validation failed", err.Error())
		return
	}

	rows := make([]models.Appointment, 0, len(req.Rows))
	for _, r := range req.Rows {
		appt, ok := h.parseAppointment(c, CreateAgendaRequest(r))
		if !ok {
			return
		}
		appt.Enabled = true
		rows = append(rows, appt)
	}

	batch, err := h.Simulator.ValidateAndStage(c.Request.Context(), req.Actor, rows)
	if err != nil {
		h.writeServiceError(c, err, "Failed to stage upload")
		return
	}
	c.JSON(http.StatusOK, batch)
}

type SimulatorConfirmRequest struct {
	SessionID string `json:"session_id" validate:"required"`
}

// @Summary Confirm a staged upload
// @Tags simulator
// @Accept json
// @Produce json
// @Param request body SimulatorConfirmRequest true "Session to confirm"
// @Success 200 {object} map[string]any
// @Router /api/simulator/confirm [post]
func (h *Handler) SimulatorConfirm(c *gin.Context) {
	var req SimulatorConfirmRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "Invalid payload", err.Error())
		return
	}
	if err := h.Validator.Struct(req); err != nil {
		writeError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Validation failed", err.Error())
		return
	}

	inserted, err := h.Simulator.Confirm(c.Request.Context(), req.SessionID)
	if err != nil {
		h.writeServiceError(c, err, "Failed to confirm upload")
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "inserted": inserted})
}

func (h *Handler) WebSocket(c *gin.Context) {
	h.Hub.ServeWS(c.Writer, c.Request)
}

func (h *Handler) dateRange(c *gin.Context) (time.Time, time.Time, bool) {
	from, err := time.Parse("2006-01-02", c.Query("from"))
	if err != nil {
		writeError(c, http.StatusBadRequest, "VALIDATION_ERROR", "from must be YYYY-MM-DD", nil)
		return time.Time{}, time.Time{}, false
	}
	to, err := time.Parse("2006-01-02", c.Query("to"))
	if err != nil {
		writeError(c, http.StatusBadRequest, "VALIDATION_ERROR", "to must be YYYY-MM-DD", nil)
		return time.Time{}, time.Time{}, false
	}
	if to.Before(from) {
		writeError(c, http.StatusBadRequest, "VALIDATION_ERROR", "to must not precede from", nil)
		return time.Time{}, time.Time{}, false
	}
	return from, to, true
}

func (h *Handler) parseAppointment(c *gin.Context, req CreateAgendaRequest) (models.Appointment, bool) {
	date, err := time.Parse("2006-01-02", req.Date)
	if err != nil {
		writeError(c, http.StatusBadRequest, "VALIDATION_ERROR", "date must be YYYY-MM-DD", nil)
		return models.Appointment{}, false
	}
	start, err := models.ParseClock(req.Start)
	if err != nil {
		writeError(c, http.StatusBadRequest, "VALIDATION_ERROR", "start must be HH:MM", nil)
		return models.Appointment{}, false
	}
	end, err := models.ParseClock(req.End)
	if err != nil {
		writeError(c, http.StatusBadRequest, "VALIDATION_ERROR", "end must be HH:MM", nil)
		return models.Appointment{}, false
	}
	return models.Appointment{
		BoxID:       req.BoxID,
		MedicID:     req.MedicID,
		Date:        date,
		Start:       start,
		End:         end,
		IsMedical:   req.IsMedical,
		Responsible: req.Responsible,
		Notes:       req.Notes,
	}, true
}

// writeServiceError maps error kinds from the service layer onto statuses.
func (h *Handler) writeServiceError(c *gin.Context, err error, message string) {
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		writeError(c, http.StatusNotFound, "NOT_FOUND", message, err.Error())
	case errors.Is(err, apperr.ErrConflict):
		writeError(c, http.StatusConflict, "CONFLICT", message, err.Error())
	case errors.Is(err, apperr.ErrValidation):
		writeError(c, http.StatusBadRequest, "VALIDATION_ERROR", message, err.Error())
	default:
		h.Logger.Error().Err(err).Msg(message)
		writeError(c, http.StatusInternalServerError, "INTERNAL_ERROR", message, err.Error())
	}
}

func writeError(c *gin.Context, status int, code string, message string, details any) {
	c.JSON(status, gin.H{
		"error": gin.H{
			"code":    code,
			"message": message,
			"details": details,
		},
	})
}
