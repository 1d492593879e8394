package httpapi

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"clinsched/backend/internal/domain"
	"clinsched/backend/internal/service/scheduling"
	"clinsched/backend/internal/store"
)

const dateLayout = "2006-01-02"

type errorResponse struct {
	Error string `json:"error"`
}

type conflictResponse struct {
	Conflicts domain.ConflictReport `json:"conflicts"`
}

func (h *Handler) GenerateAvailability(c echo.Context) error {
	log := h.log.With(slog.String("handler", "GenerateAvailability"))

	from, err := time.Parse(dateLayout, c.QueryParam("from"))
	if err != nil {
		return badRequest(c, "from must be a YYYY-MM-DD date")
	}
	to, err := time.Parse(dateLayout, c.QueryParam("to"))
	if err != nil {
		return badRequest(c, "to must be a YYYY-MM-DD date")
	}
	slotMinutes, err := strconv.Atoi(c.QueryParam("slot_minutes"))
	if err != nil {
		return badRequest(c, "slot_minutes must be an integer")
	}

	slots, err := h.svc.GenerateAvailability(c.Request().Context(), scheduling.GenerateAvailabilityInput{
		ProviderID:          c.Param("provider_id"),
		RangeStart:          from,
		RangeEnd:            to,
		SlotDurationMinutes: slotMinutes,
	})
	if err != nil {
		return h.mapServiceError(c, log, err)
	}

	log.Debug("availability generated",
		slog.String("provider_id", c.Param("provider_id")),
		slog.Int("count", len(slots)),
	)
	return c.JSON(http.StatusOK, map[string]any{"slots": slots})
}

func (h *Handler) NextAvailableSlot(c echo.Context) error {
	log := h.log.With(slog.String("handler", "NextAvailableSlot"))

	slotMinutes, err := strconv.Atoi(c.QueryParam("slot_minutes"))
	if err != nil {
		return badRequest(c, "slot_minutes must be an integer")
	}
	searchFrom := time.Now().UTC()
	if raw := c.QueryParam("from"); raw != "" {
		searchFrom, err = time.Parse(time.RFC3339, raw)
		if err != nil {
			return badRequest(c, "from must be an RFC3339 timestamp")
		}
	}
	maxDays := 30
	if raw := c.QueryParam("max_days_ahead"); raw != "" {
		maxDays, err = strconv.Atoi(raw)
		if err != nil {
			return badRequest(c, "max_days_ahead must be an integer")
		}
	}

	slot, err := h.svc.NextAvailableSlot(c.Request().Context(), scheduling.NextAvailableSlotInput{
		ProviderID:          c.Param("provider_id"),
		SlotDurationMinutes: slotMinutes,
		SearchFrom:          searchFrom,
		MaxDaysAhead:        maxDays,
	})
	if err != nil {
		return h.mapServiceError(c, log, err)
	}
	if slot == nil {
		return c.JSON(http.StatusNotFound, errorResponse{Error: "no available slot within the search horizon"})
	}
	return c.JSON(http.StatusOK, slot)
}

type detectConflictsRequest struct {
	Start                time.Time `json:"start"`
	DurationMinutes      int       `json:"duration_minutes"`
	ExcludeAppointmentID string    `json:"exclude_appointment_id,omitempty"`
}

func (h *Handler) DetectConflicts(c echo.Context) error {
	log := h.log.With(slog.String("handler", "DetectConflicts"))

	var req detectConflictsRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	exclude := uuid.Nil
	if req.ExcludeAppointmentID != "" {
		id, err := uuid.Parse(req.ExcludeAppointmentID)
		if err != nil {
			return badRequest(c, "exclude_appointment_id must be a UUID")
		}
		exclude = id
	}

	report, err := h.svc.DetectConflicts(c.Request().Context(), scheduling.DetectConflictsInput{
		ProviderID:           c.Param("provider_id"),
		Start:                req.Start,
		DurationMinutes:      req.DurationMinutes,
		ExcludeAppointmentID: exclude,
	})
	if err != nil {
		return h.mapServiceError(c, log, err)
	}

	return c.JSON(http.StatusOK, map[string]any{
		"bookable":  report.Empty(),
		"conflicts": report,
	})
}

type reserveRequest struct {
	Start           time.Time `json:"start"`
	DurationMinutes int       `json:"duration_minutes"`
	PatientRef      string    `json:"patient_ref"`
	Notes           string    `json:"notes,omitempty"`
}

func (h *Handler) Reserve(c echo.Context) error {
	log := h.log.With(slog.String("handler", "Reserve"))

	var req reserveRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}

	reservation, report, err := h.svc.Reserve(c.Request().Context(), scheduling.ReserveInput{
		ProviderID:      c.Param("provider_id"),
		Start:           req.Start,
		DurationMinutes: req.DurationMinutes,
		PatientRef:      req.PatientRef,
		Notes:           req.Notes,
	})
	if err != nil {
		return h.mapServiceError(c, log, err)
	}
	if !report.Empty() {
		log.Info("reservation rejected",
			slog.String("provider_id", c.Param("provider_id")),
			slog.Time("start", req.Start),
			slog.Int("conflicts", len(report)),
		)
		return c.JSON(http.StatusConflict, conflictResponse{Conflicts: report})
	}

	log.Info("reservation created",
		slog.String("appointment_id", reservation.AppointmentID.String()),
		slog.String("provider_id", reservation.ProviderID),
		slog.Time("start", reservation.Start),
	)
	return c.JSON(http.StatusCreated, reservation)
}

type rescheduleRequest struct {
	Start           time.Time `json:"start"`
	DurationMinutes int       `json:"duration_minutes"`
}

func (h *Handler) Reschedule(c echo.Context) error {
	log := h.log.With(slog.String("handler", "Reschedule"))

	appointmentID, err := uuid.Parse(c.Param("appointment_id"))
	if err != nil {
		return badRequest(c, "appointment_id must be a UUID")
	}
	var req rescheduleRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}

	reservation, report, err := h.svc.Reserve(c.Request().Context(), scheduling.ReserveInput{
		ProviderID:      c.Param("provider_id"),
		Start:           req.Start,
		DurationMinutes: req.DurationMinutes,
		AppointmentID:   appointmentID,
	})
	if err != nil {
		return h.mapServiceError(c, log, err)
	}
	if !report.Empty() {
		log.Info("reschedule rejected",
			slog.String("appointment_id", appointmentID.String()),
			slog.Int("conflicts", len(report)),
		)
		return c.JSON(http.StatusConflict, conflictResponse{Conflicts: report})
	}

	log.Info("appointment rescheduled",
		slog.String("appointment_id", appointmentID.String()),
		slog.Time("start", reservation.Start),
	)
	return c.JSON(http.StatusOK, reservation)
}

func (h *Handler) CancelAppointment(c echo.Context) error {
	log := h.log.With(slog.String("handler", "CancelAppointment"))

	appointmentID, err := uuid.Parse(c.Param("appointment_id"))
	if err != nil {
		return badRequest(c, "appointment_id must be a UUID")
	}

	appt, err := h.svc.CancelAppointment(c.Request().Context(), c.Param("provider_id"), appointmentID)
	if err != nil {
		return h.mapServiceError(c, log, err)
	}

	log.Info("appointment cancelled", slog.String("appointment_id", appointmentID.String()))
	return c.JSON(http.StatusOK, appt)
}

func (h *Handler) ComputeUtilization(c echo.Context) error {
	log := h.log.With(slog.String("handler", "ComputeUtilization"))

	from, err := time.Parse(dateLayout, c.QueryParam("from"))
	if err != nil {
		return badRequest(c, "from must be a YYYY-MM-DD date")
	}
	to, err := time.Parse(dateLayout, c.QueryParam("to"))
	if err != nil {
		return badRequest(c, "to must be a YYYY-MM-DD date")
	}

	summary, err := h.svc.ComputeUtilization(c.Request().Context(), scheduling.ComputeUtilizationInput{
		ProviderID: c.Param("provider_id"),
		RangeStart: from,
		RangeEnd:   to,
	})
	if err != nil {
		return h.mapServiceError(c, log, err)
	}
	return c.JSON(http.StatusOK, summary)
}

type upsertWeeklyRuleRequest struct {
	DayOfWeek   int    `json:"day_of_week"`
	Start       string `json:"start"`
	End         string `json:"end"`
	BreakStart  string `json:"break_start,omitempty"`
	BreakEnd    string `json:"break_end,omitempty"`
	IsAvailable bool   `json:"is_available"`
}

func (h *Handler) UpsertWeeklyRule(c echo.Context) error {
	log := h.log.With(slog.String("handler", "UpsertWeeklyRule"))

	var req upsertWeeklyRuleRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}

	start, err := domain.ParseWallClock(req.Start)
	if err != nil {
		return badRequest(c, err.Error())
	}
	end, err := domain.ParseWallClock(req.End)
	if err != nil {
		return badRequest(c, err.Error())
	}
	var breakStart, breakEnd *domain.WallClockTime
	if req.BreakStart != "" || req.BreakEnd != "" {
		bs, err := domain.ParseWallClock(req.BreakStart)
		if err != nil {
			return badRequest(c, err.Error())
		}
		be, err := domain.ParseWallClock(req.BreakEnd)
		if err != nil {
			return badRequest(c, err.Error())
		}
		breakStart, breakEnd = &bs, &be
	}

	rule, err := h.svc.UpsertWeeklyRule(c.Request().Context(), scheduling.UpsertWeeklyRuleInput{
		ProviderID:  c.Param("provider_id"),
		Weekday:     domain.DayOfWeek(req.DayOfWeek),
		Start:       start,
		End:         end,
		BreakStart:  breakStart,
		BreakEnd:    breakEnd,
		IsAvailable: req.IsAvailable,
	})
	if err != nil {
		return h.mapServiceError(c, log, err)
	}

	log.Info("weekly rule upserted",
		slog.String("provider_id", rule.ProviderID),
		slog.String("day_of_week", rule.Weekday.String()),
	)
	return c.JSON(http.StatusOK, rule)
}

type createTimeOffRequest struct {
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
	Reason    string `json:"reason,omitempty"`
}

func (h *Handler) CreateTimeOff(c echo.Context) error {
	log := h.log.With(slog.String("handler", "CreateTimeOff"))

	var req createTimeOffRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	startDate, err := time.Parse(dateLayout, req.StartDate)
	if err != nil {
		return badRequest(c, "start_date must be a YYYY-MM-DD date")
	}
	endDate, err := time.Parse(dateLayout, req.EndDate)
	if err != nil {
		return badRequest(c, "end_date must be a YYYY-MM-DD date")
	}

	period, err := h.svc.CreateTimeOff(c.Request().Context(), scheduling.CreateTimeOffInput{
		ProviderID: c.Param("provider_id"),
		StartDate:  startDate,
		EndDate:    endDate,
		Reason:     req.Reason,
	})
	if err != nil {
		return h.mapServiceError(c, log, err)
	}

	log.Info("time off created",
		slog.String("provider_id", period.ProviderID),
		slog.Time("start_date", period.StartDate),
		slog.Time("end_date", period.EndDate),
	)
	return c.JSON(http.StatusCreated, period)
}

func badRequest(c echo.Context, msg string) error {
	return c.JSON(http.StatusBadRequest, errorResponse{Error: msg})
}

func (h *Handler) mapServiceError(c echo.Context, log *slog.Logger, err error) error {
	var vErr *scheduling.ValidationError
	if errors.As(err, &vErr) {
		log.Warn("invalid request", slog.Any("err", err))
		return c.JSON(http.StatusBadRequest, errorResponse{Error: vErr.Error()})
	}
	if errors.Is(err, store.ErrNotFound) {
		log.Info("not found", slog.Any("err", err))
		return c.JSON(http.StatusNotFound, errorResponse{Error: "not found"})
	}
	log.Error("request failed", slog.Any("err", err))
	return c.JSON(http.StatusInternalServerError, errorResponse{Error: "internal error"})
}
