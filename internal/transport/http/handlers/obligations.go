package handlers

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/arklim/grc-obligations/internal/core/domain"
	"github.com/arklim/grc-obligations/internal/transport/http/middleware"
	"github.com/arklim/grc-obligations/internal/usecase"
)

// ObligationHandler serves the obligation review endpoints.
type ObligationHandler struct {
	obligations *usecase.ObligationService
}

// NewObligationHandler builds a new obligation handler.
func NewObligationHandler(obligations *usecase.ObligationService) *ObligationHandler {
	return &ObligationHandler{obligations: obligations}
}

// List godoc
// @Summary List tenant obligations
// @Description Returns every obligation for the caller's tenant with full review history.
// @Tags Obligations
// @Produce json
// @Param Authorization header string true "Bearer access token"
// @Success 200 {object} ObligationListResponse
// @Failure 401 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/v1/obligations [get]
func (h *ObligationHandler) List(c *gin.Context) {
	actor, ok := middleware.GetActor(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "invalid authentication"))
		return
	}

	obligations, err := h.obligations.List(c.Request.Context(), actor)
	if err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrValidation, Status: http.StatusBadRequest, Message: "invalid request"},
		}, http.StatusInternalServerError, "failed to list obligations")
		return
	}

	payloads := make([]ObligationPayload, 0, len(obligations))
	for _, obligation := range obligations {
		payloads = append(payloads, newObligationPayload(obligation))
	}

	c.JSON(http.StatusOK, ObligationListResponse{
		Obligations: payloads,
		Total:       len(payloads),
	})
}

// Get godoc
// @Summary Fetch one obligation
// @Tags Obligations
// @Produce json
// @Param Authorization header string true "Bearer access token"
// @Param id path string true "Obligation ID"
// @Success 200 {object} ObligationPayload
// @Failure 404 {object} ErrorResponse
// @Router /api/v1/obligations/{id} [get]
func (h *ObligationHandler) Get(c *gin.Context) {
	actor, ok := middleware.GetActor(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "invalid authentication"))
		return
	}

	obligation, err := h.obligations.Get(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrObligationNotFound, Status: http.StatusNotFound, Message: "obligation not found"},
			{Err: usecase.ErrValidation, Status: http.StatusBadRequest, Message: "invalid request"},
		}, http.StatusInternalServerError, "failed to fetch obligation")
		return
	}

	c.JSON(http.StatusOK, newObligationPayload(*obligation))
}

// Patch godoc
// @Summary Update obligation fields
// @Description Updates descriptive fields of an obligation. Super user only.
// @Tags Obligations
// @Accept json
// @Produce json
// @Param Authorization header string true "Bearer access token"
// @Param id path string true "Obligation ID"
// @Param request body ObligationPatchRequest true "Fields to update"
// @Success 200 {object} ObligationPayload
// @Failure 400 {object} ErrorResponse
// @Failure 403 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /api/v1/obligations/{id} [patch]
func (h *ObligationHandler) Patch(c *gin.Context) {
	actor, ok := middleware.GetActor(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "invalid authentication"))
		return
	}

	var req ObligationPatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid obligation payload"))
		return
	}

	patch := domain.ObligationPatch{
		Name:        req.Name,
		Description: req.Description,
		OwnerID:     req.OwnerID,
		TeamID:      req.TeamID,
		RiskClass:   req.RiskClass,
	}

	if req.LifecycleState != nil {
		state := domain.LifecycleState(strings.ToLower(strings.TrimSpace(*req.LifecycleState)))
		patch.LifecycleState = &state
	}

	obligation, err := h.obligations.UpdateFields(c.Request.Context(), actor, c.Param("id"), patch)
	if err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrPermissionDenied, Status: http.StatusForbidden, Message: "insufficient permissions"},
			{Err: usecase.ErrObligationNotFound, Status: http.StatusNotFound, Message: "obligation not found"},
			{Err: usecase.ErrValidation, Status: http.StatusBadRequest, Message: "invalid obligation payload"},
		}, http.StatusInternalServerError, "failed to update obligation")
		return
	}

	c.JSON(http.StatusOK, newObligationPayload(*obligation))
}

// RecordStatus godoc
// @Summary Record a compliance status draft
// @Description Creates or overwrites the unsubmitted entry for one quarter. Champion only.
// @Tags Obligations
// @Accept json
// @Produce json
// @Param Authorization header string true "Bearer access token"
// @Param id path string true "Obligation ID"
// @Param year path int true "Review year"
// @Param quarter path string true "Review quarter (Q1..Q4)"
// @Param request body RecordStatusRequest true "Compliance status draft"
// @Success 200 {object} ObligationPayload
// @Failure 400 {object} ErrorResponse
// @Failure 403 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /api/v1/obligations/{id}/updates/{year}/{quarter} [put]
func (h *ObligationHandler) RecordStatus(c *gin.Context) {
	actor, ok := middleware.GetActor(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "invalid authentication"))
		return
	}

	key, err := parseQuarterKeyParams(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid quarter key"))
		return
	}

	var req RecordStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid status payload"))
		return
	}

	attachments := make([]domain.Attachment, 0, len(req.Attachments))
	for _, att := range req.Attachments {
		attachments = append(attachments, domain.Attachment{
			Name:        strings.TrimSpace(att.Name),
			StoragePath: strings.TrimSpace(att.StoragePath),
		})
	}

	status := domain.ComplianceStatus(strings.ToLower(strings.TrimSpace(req.ComplianceStatus)))

	obligation, err := h.obligations.RecordComplianceStatus(
		c.Request.Context(), actor, c.Param("id"), key, status, req.Comments, attachments)
	if err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrPermissionDenied, Status: http.StatusForbidden, Message: "insufficient permissions"},
			{Err: usecase.ErrObligationNotFound, Status: http.StatusNotFound, Message: "obligation not found"},
			{Err: usecase.ErrStateConflict, Status: http.StatusConflict, Message: "entry is no longer editable"},
			{Err: usecase.ErrInvalidQuarter, Status: http.StatusBadRequest, Message: "invalid quarter key"},
			{Err: usecase.ErrValidation, Status: http.StatusBadRequest, Message: "invalid status payload"},
		}, http.StatusInternalServerError, "failed to record compliance status")
		return
	}

	c.JSON(http.StatusOK, newObligationPayload(*obligation))
}

// Submit godoc
// @Summary Submit obligations for approval
// @Description Advances eligible unsubmitted entries to submitted. Partial success. Champion only.
// @Tags Obligations
// @Accept json
// @Produce json
// @Param Authorization header string true "Bearer access token"
// @Param request body BatchReviewRequest true "Batch submit request"
// @Success 200 {object} BatchReviewResponse
// @Failure 400 {object} ErrorResponse
// @Failure 403 {object} ErrorResponse
// @Router /api/v1/obligations/submit [post]
func (h *ObligationHandler) Submit(c *gin.Context) {
	h.runBatch(c, h.obligations.Submit)
}

// Approve godoc
// @Summary Approve submitted obligations
// @Description Advances submitted entries to approved. Partial success. Super user only.
// @Tags Obligations
// @Accept json
// @Produce json
// @Param Authorization header string true "Bearer access token"
// @Param request body BatchReviewRequest true "Batch approve request"
// @Success 200 {object} BatchReviewResponse
// @Failure 400 {object} ErrorResponse
// @Failure 403 {object} ErrorResponse
// @Router /api/v1/obligations/approve [post]
func (h *ObligationHandler) Approve(c *gin.Context) {
	h.runBatch(c, h.obligations.Approve)
}

// EffectiveStatus godoc
// @Summary Resolve the effective compliance status
// @Description Answers with the approved status for the target quarter, falling back to the nearest earlier approved entry.
// @Tags Obligations
// @Produce json
// @Param Authorization header string true "Bearer access token"
// @Param id path string true "Obligation ID"
// @Param year query int true "Target year"
// @Param quarter query string true "Target quarter (Q1..Q4)"
// @Success 200 {object} EffectiveStatusResponse
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /api/v1/obligations/{id}/effective-status [get]
func (h *ObligationHandler) EffectiveStatus(c *gin.Context) {
	actor, ok := middleware.GetActor(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "invalid authentication"))
		return
	}

	key, err := parseQuarterKeyQuery(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid quarter key"))
		return
	}

	obligation, err := h.obligations.Get(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrObligationNotFound, Status: http.StatusNotFound, Message: "obligation not found"},
			{Err: usecase.ErrValidation, Status: http.StatusBadRequest, Message: "invalid request"},
		}, http.StatusInternalServerError, "failed to fetch obligation")
		return
	}

	status := usecase.ResolveEffectiveStatus(*obligation, key)
	evidence := usecase.ResolveEffectiveEvidence(*obligation, key)

	resp := EffectiveStatusResponse{
		ObligationID: obligation.ID,
		Target:       newQuarterKeyPayload(key),
		Status:       string(status.Status),
		IsFallback:   status.IsFallback,
		Comments:     evidence.Comments,
		Attachments:  newAttachmentPayloads(evidence.Attachments),
	}
	if status.SourceKey != nil {
		source := newQuarterKeyPayload(*status.SourceKey)
		resp.SourceKey = &source
	}

	c.JSON(http.StatusOK, resp)
}

type batchFunc func(ctx context.Context, actor domain.Actor, ids []string, key domain.QuarterKey) (usecase.BatchResult, error)

func (h *ObligationHandler) runBatch(c *gin.Context, run batchFunc) {
	actor, ok := middleware.GetActor(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "invalid authentication"))
		return
	}

	var req BatchReviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid batch payload"))
		return
	}

	quarter, err := domain.ParseQuarter(req.Quarter)
	if err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid quarter key"))
		return
	}
	key := domain.QuarterKey{Year: req.Year, Quarter: quarter}

	result, err := run(c.Request.Context(), actor, req.ObligationIDs, key)
	if err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrPermissionDenied, Status: http.StatusForbidden, Message: "insufficient permissions"},
			{Err: usecase.ErrInvalidQuarter, Status: http.StatusBadRequest, Message: "invalid quarter key"},
			{Err: usecase.ErrValidation, Status: http.StatusBadRequest, Message: "invalid batch payload"},
		}, http.StatusInternalServerError, "failed to process batch")
		return
	}

	c.JSON(http.StatusOK, newBatchReviewResponse(result))
}

func parseQuarterKeyParams(c *gin.Context) (domain.QuarterKey, error) {
	year, err := strconv.Atoi(c.Param("year"))
	if err != nil {
		return domain.QuarterKey{}, err
	}

	quarter, err := domain.ParseQuarter(c.Param("quarter"))
	if err != nil {
		return domain.QuarterKey{}, err
	}

	return domain.QuarterKey{Year: year, Quarter: quarter}, nil
}

func parseQuarterKeyQuery(c *gin.Context) (domain.QuarterKey, error) {
	year, err := strconv.Atoi(c.Query("year"))
	if err != nil {
		return domain.QuarterKey{}, err
	}

	quarter, err := domain.ParseQuarter(c.Query("quarter"))
	if err != nil {
		return domain.QuarterKey{}, err
	}

	return domain.QuarterKey{Year: year, Quarter: quarter}, nil
}
