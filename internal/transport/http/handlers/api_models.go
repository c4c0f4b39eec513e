package handlers

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/arklim/grc-obligations/internal/core/domain"
	"github.com/arklim/grc-obligations/internal/usecase"
)

// ErrorResponse represents a generic error payload with trace ID for debugging.
type ErrorResponse struct {
	Error   string `json:"error"`
	TraceID string `json:"trace_id,omitempty"`
}

// NewErrorResponse creates an error response with trace ID from context
func NewErrorResponse(c *gin.Context, errorMsg string) ErrorResponse {
	traceID, _ := c.Get("trace_id")
	traceIDStr, _ := traceID.(string)

	return ErrorResponse{
		Error:   errorMsg,
		TraceID: traceIDStr,
	}
}

// MessageResponse represents a simple message payload.
type MessageResponse struct {
	Message string `json:"message"`
}

// QuarterKeyPayload addresses one review period in API payloads.
type QuarterKeyPayload struct {
	Year    int    `json:"year"`
	Quarter string `json:"quarter"`
}

func newQuarterKeyPayload(key domain.QuarterKey) QuarterKeyPayload {
	return QuarterKeyPayload{Year: key.Year, Quarter: key.Quarter.String()}
}

// AttachmentPayload references a stored evidence file.
type AttachmentPayload struct {
	Name        string `json:"name"`
	StoragePath string `json:"storage_path"`
}

// UpdateEntryPayload describes one quarterly review record.
type UpdateEntryPayload struct {
	ID               string              `json:"id"`
	Year             int                 `json:"year"`
	Quarter          string              `json:"quarter"`
	AssessmentStatus string              `json:"assessment_status"`
	ComplianceStatus string              `json:"compliance_status"`
	Comments         string              `json:"comments,omitempty"`
	Attachments      []AttachmentPayload `json:"attachments,omitempty"`
	Revision         int64               `json:"revision"`
	UpdatedAt        time.Time           `json:"updated_at"`
}

// ObligationPayload summarizes an obligation and its review history.
type ObligationPayload struct {
	ID             string               `json:"id"`
	Name           string               `json:"name"`
	Description    string               `json:"description,omitempty"`
	OwnerID        *string              `json:"owner_id,omitempty"`
	TeamID         *string              `json:"team_id,omitempty"`
	RiskClass      string               `json:"risk_class,omitempty"`
	LifecycleState string               `json:"lifecycle_state"`
	Updates        []UpdateEntryPayload `json:"updates"`
	CreatedAt      time.Time            `json:"created_at"`
	UpdatedAt      time.Time            `json:"updated_at"`
}

// ObligationListResponse wraps the tenant's obligations.
type ObligationListResponse struct {
	Obligations []ObligationPayload `json:"obligations"`
	Total       int                 `json:"total"`
}

// ObligationPatchRequest carries the mutable obligation fields. Absent fields
// are left untouched.
type ObligationPatchRequest struct {
	Name           *string `json:"name,omitempty"`
	Description    *string `json:"description,omitempty"`
	OwnerID        *string `json:"owner_id,omitempty"`
	TeamID         *string `json:"team_id,omitempty"`
	RiskClass      *string `json:"risk_class,omitempty"`
	LifecycleState *string `json:"lifecycle_state,omitempty"`
}

// RecordStatusRequest carries a compliance status draft for one quarter.
type RecordStatusRequest struct {
	ComplianceStatus string              `json:"compliance_status" binding:"required"`
	Comments         string              `json:"comments"`
	Attachments      []AttachmentPayload `json:"attachments"`
}

// BatchReviewRequest selects obligations and the quarter for a submit or
// approve operation.
type BatchReviewRequest struct {
	ObligationIDs []string `json:"obligation_ids" binding:"required"`
	Year          int      `json:"year" binding:"required"`
	Quarter       string   `json:"quarter" binding:"required"`
}

// BatchFailurePayload reports one obligation the batch skipped.
type BatchFailurePayload struct {
	ObligationID string `json:"obligation_id"`
	Reason       string `json:"reason"`
}

// BatchReviewResponse summarises a partial-success batch outcome.
type BatchReviewResponse struct {
	Succeeded []string              `json:"succeeded"`
	Failed    []BatchFailurePayload `json:"failed"`
}

// EffectiveStatusResponse answers an effective-status query for one quarter.
type EffectiveStatusResponse struct {
	ObligationID string              `json:"obligation_id"`
	Target       QuarterKeyPayload   `json:"target"`
	Status       string              `json:"status"`
	SourceKey    *QuarterKeyPayload  `json:"source_key,omitempty"`
	IsFallback   bool                `json:"is_fallback"`
	Comments     string              `json:"comments,omitempty"`
	Attachments  []AttachmentPayload `json:"attachments,omitempty"`
}

// BadgeResponse carries the pending-action counters for the caller's tenant.
type BadgeResponse struct {
	PendingSubmission int                `json:"pending_submission"`
	PendingApproval   int                `json:"pending_approval"`
	CurrentQuarter    *QuarterKeyPayload `json:"current_quarter,omitempty"`
}

// CurrentQuarterResponse reports the review period in effect today.
type CurrentQuarterResponse struct {
	Year    int    `json:"year"`
	Quarter string `json:"quarter"`
}

// HealthResponse describes the service health payload.
type HealthResponse struct {
	Status    string    `json:"status"`
	StartedAt time.Time `json:"started_at"`
	Timestamp time.Time `json:"timestamp"`
}

// ReadyResponse describes readiness probe results with dependency checks.
type ReadyResponse struct {
	Status    string            `json:"status"`
	Checks    map[string]string `json:"checks,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

func newAttachmentPayloads(attachments []domain.Attachment) []AttachmentPayload {
	if len(attachments) == 0 {
		return nil
	}
	payloads := make([]AttachmentPayload, 0, len(attachments))
	for _, att := range attachments {
		payloads = append(payloads, AttachmentPayload{
			Name:        att.Name,
			StoragePath: att.StoragePath,
		})
	}
	return payloads
}

func newUpdateEntryPayload(entry domain.UpdateEntry) UpdateEntryPayload {
	return UpdateEntryPayload{
		ID:               entry.ID,
		Year:             entry.Key.Year,
		Quarter:          entry.Key.Quarter.String(),
		AssessmentStatus: string(entry.AssessmentStatus),
		ComplianceStatus: string(entry.ComplianceStatus),
		Comments:         entry.Comments,
		Attachments:      newAttachmentPayloads(entry.Attachments),
		Revision:         entry.Revision,
		UpdatedAt:        entry.UpdatedAt,
	}
}

// newObligationPayload converts a domain obligation to its API view.
func newObligationPayload(obligation domain.Obligation) ObligationPayload {
	updates := make([]UpdateEntryPayload, 0, len(obligation.Updates))
	for _, entry := range obligation.Updates {
		updates = append(updates, newUpdateEntryPayload(entry))
	}

	return ObligationPayload{
		ID:             obligation.ID,
		Name:           obligation.Name,
		Description:    obligation.Description,
		OwnerID:        obligation.OwnerID,
		TeamID:         obligation.TeamID,
		RiskClass:      obligation.RiskClass,
		LifecycleState: string(obligation.LifecycleState),
		Updates:        updates,
		CreatedAt:      obligation.CreatedAt,
		UpdatedAt:      obligation.UpdatedAt,
	}
}

func newBatchReviewResponse(result usecase.BatchResult) BatchReviewResponse {
	succeeded := result.Succeeded
	if succeeded == nil {
		succeeded = []string{}
	}

	failed := make([]BatchFailurePayload, 0, len(result.Failed))
	for _, failure := range result.Failed {
		failed = append(failed, BatchFailurePayload{
			ObligationID: failure.ObligationID,
			Reason:       string(failure.Reason),
		})
	}

	return BatchReviewResponse{Succeeded: succeeded, Failed: failed}
}
