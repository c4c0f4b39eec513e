package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/arklim/grc-obligations/internal/transport/http/middleware"
	"github.com/arklim/grc-obligations/internal/usecase"
)

// BadgeHandler serves the derived pending-action counters.
type BadgeHandler struct {
	badges *usecase.BadgeService
}

// NewBadgeHandler builds a new badge handler.
func NewBadgeHandler(badges *usecase.BadgeService) *BadgeHandler {
	return &BadgeHandler{badges: badges}
}

// Counts godoc
// @Summary Pending-action badge counters
// @Description Recomputes pending submission and approval counts for the caller's tenant and current quarter.
// @Tags Badges
// @Produce json
// @Param Authorization header string true "Bearer access token"
// @Success 200 {object} BadgeResponse
// @Failure 401 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/v1/badges [get]
func (h *BadgeHandler) Counts(c *gin.Context) {
	actor, ok := middleware.GetActor(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "invalid authentication"))
		return
	}

	counts, err := h.badges.Counts(c.Request.Context(), actor.TenantID)
	if err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrValidation, Status: http.StatusBadRequest, Message: "invalid request"},
		}, http.StatusInternalServerError, "failed to compute badges")
		return
	}

	resp := BadgeResponse{
		PendingSubmission: counts.PendingSubmission,
		PendingApproval:   counts.PendingApproval,
	}
	if counts.HasPeriod {
		key := newQuarterKeyPayload(counts.Key)
		resp.CurrentQuarter = &key
	}

	c.JSON(http.StatusOK, resp)
}
