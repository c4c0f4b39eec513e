package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/arklim/grc-obligations/internal/core/port"
	"github.com/arklim/grc-obligations/internal/repository"
	"github.com/arklim/grc-obligations/internal/transport/http/middleware"
)

// CalendarHandler answers review-period queries.
type CalendarHandler struct {
	calendar port.QuarterCalendar
	now      func() time.Time
}

// NewCalendarHandler builds a new calendar handler.
func NewCalendarHandler(calendar port.QuarterCalendar) *CalendarHandler {
	return &CalendarHandler{
		calendar: calendar,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the calendar clock for deterministic testing.
func (h *CalendarHandler) WithClock(clock func() time.Time) *CalendarHandler {
	if clock != nil {
		h.now = clock
	}
	return h
}

// CurrentQuarter godoc
// @Summary Review period in effect today
// @Tags Calendar
// @Produce json
// @Param Authorization header string true "Bearer access token"
// @Success 200 {object} CurrentQuarterResponse
// @Failure 404 {object} ErrorResponse
// @Router /api/v1/calendar/current-quarter [get]
func (h *CalendarHandler) CurrentQuarter(c *gin.Context) {
	actor, ok := middleware.GetActor(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "invalid authentication"))
		return
	}

	key, err := h.calendar.CurrentQuarter(c.Request.Context(), actor.TenantID, h.now())
	if err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: repository.ErrNotFound, Status: http.StatusNotFound, Message: "no active review period"},
		}, http.StatusInternalServerError, "failed to resolve review period")
		return
	}

	c.JSON(http.StatusOK, CurrentQuarterResponse{
		Year:    key.Year,
		Quarter: key.Quarter.String(),
	})
}
