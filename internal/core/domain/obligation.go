package domain

import "time"

// LifecycleState enumerates obligation record states.
type LifecycleState string

const (
	LifecycleActive   LifecycleState = "active"
	LifecycleInactive LifecycleState = "inactive"
)

// AssessmentStatus enumerates the review-workflow stages of a quarterly entry.
type AssessmentStatus string

const (
	AssessmentUnsubmitted AssessmentStatus = "unsubmitted"
	AssessmentSubmitted   AssessmentStatus = "submitted"
	AssessmentApproved    AssessmentStatus = "approved"
)

// CanAdvanceTo reports whether next is the single legal forward transition
// from the current stage. The workflow never moves backward.
func (s AssessmentStatus) CanAdvanceTo(next AssessmentStatus) bool {
	switch s {
	case AssessmentUnsubmitted:
		return next == AssessmentSubmitted
	case AssessmentSubmitted:
		return next == AssessmentApproved
	default:
		return false
	}
}

// ComplianceStatus enumerates the substantive outcome recorded for a quarter.
type ComplianceStatus string

const (
	ComplianceCompliant    ComplianceStatus = "compliant"
	ComplianceNotCompliant ComplianceStatus = "not_compliant"
	ComplianceUnset        ComplianceStatus = "unset"
	// ComplianceUnknown is never persisted; it is the resolver's answer when
	// no approved entry exists at or before the requested quarter.
	ComplianceUnknown ComplianceStatus = "unknown"
)

// Attachment references evidence stored by the external attachment service.
type Attachment struct {
	Name        string `json:"name"`
	StoragePath string `json:"storage_path"`
}

// UpdateEntry is the review record for one obligation in one quarter.
// Exactly one entry may exist per (obligation, year, quarter).
type UpdateEntry struct {
	ID               string
	ObligationID     string
	Key              QuarterKey
	AssessmentStatus AssessmentStatus
	ComplianceStatus ComplianceStatus
	Comments         string
	Attachments      []Attachment
	Revision         int64
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// HasEvidence reports whether the entry carries submission evidence:
// non-empty comments or at least one attachment.
func (e UpdateEntry) HasEvidence() bool {
	return e.Comments != "" || len(e.Attachments) > 0
}

// Obligation is a recurring regulatory requirement tracked per quarter.
type Obligation struct {
	ID             string
	TenantID       string
	Name           string
	Description    string
	OwnerID        *string
	TeamID         *string
	RiskClass      string
	LifecycleState LifecycleState
	Updates        []UpdateEntry
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// IsActive reports whether the obligation participates in the review cycle.
func (o Obligation) IsActive() bool {
	return o.LifecycleState == LifecycleActive
}

// EntryFor returns the update entry for the given quarter key, if present.
func (o Obligation) EntryFor(key QuarterKey) (*UpdateEntry, bool) {
	for i := range o.Updates {
		if o.Updates[i].Key == key {
			return &o.Updates[i], true
		}
	}
	return nil, false
}

// ObligationPatch carries the mutable CRUD fields of an obligation. Nil
// fields are left untouched.
type ObligationPatch struct {
	Name           *string
	Description    *string
	OwnerID        *string
	TeamID         *string
	RiskClass      *string
	LifecycleState *LifecycleState
}
