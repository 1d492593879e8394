// Package httpapi is the thin HTTP boundary over the scheduling service:
// request binding, error mapping and logging only. Authentication and
// richer request validation live outside this service.
package httpapi

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"clinsched/backend/internal/domain"
	"clinsched/backend/internal/service/scheduling"
)

type schedulingService interface {
	GenerateAvailability(ctx context.Context, in scheduling.GenerateAvailabilityInput) ([]domain.AvailabilitySlot, error)
	NextAvailableSlot(ctx context.Context, in scheduling.NextAvailableSlotInput) (*domain.AvailabilitySlot, error)
	DetectConflicts(ctx context.Context, in scheduling.DetectConflictsInput) (domain.ConflictReport, error)
	Reserve(ctx context.Context, in scheduling.ReserveInput) (domain.Reservation, domain.ConflictReport, error)
	ComputeUtilization(ctx context.Context, in scheduling.ComputeUtilizationInput) (domain.UtilizationSummary, error)
	UpsertWeeklyRule(ctx context.Context, in scheduling.UpsertWeeklyRuleInput) (domain.WeeklyScheduleRule, error)
	CreateTimeOff(ctx context.Context, in scheduling.CreateTimeOffInput) (domain.TimeOffPeriod, error)
	CancelAppointment(ctx context.Context, providerID string, appointmentID uuid.UUID) (domain.Appointment, error)
}

type Handler struct {
	svc schedulingService
	log *slog.Logger
}

func NewHandler(svc schedulingService, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{
		svc: svc,
		log: log.With(slog.String("component", "httpapi")),
	}
}

// NewServer builds the echo instance with all scheduling routes registered.
func NewServer(h *Handler, requestTimeout time.Duration) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(requestTimeoutMiddleware(requestTimeout))

	g := e.Group("/v1/providers/:provider_id")
	g.GET("/availability", h.GenerateAvailability)
	g.GET("/availability/next", h.NextAvailableSlot)
	g.POST("/conflict-checks", h.DetectConflicts)
	g.POST("/appointments", h.Reserve)
	g.PATCH("/appointments/:appointment_id/schedule", h.Reschedule)
	g.POST("/appointments/:appointment_id/cancel", h.CancelAppointment)
	g.GET("/utilization", h.ComputeUtilization)
	g.PUT("/schedule/rules", h.UpsertWeeklyRule)
	g.POST("/time-off", h.CreateTimeOff)

	return e
}

func requestTimeoutMiddleware(timeout time.Duration) echo.MiddlewareFunc {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx := c.Request().Context()
			if _, ok := ctx.Deadline(); ok {
				return next(c)
			}
			ctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()
			c.SetRequest(c.Request().WithContext(ctx))
			return next(c)
		}
	}
}
