package usecase

import (
	"github.com/arklim/grc-obligations/internal/core/domain"
)

// EffectiveStatus is the resolver's best-available answer for one quarter.
// SourceKey names the approved entry the status came from; IsFallback marks
// answers borrowed from an earlier quarter.
type EffectiveStatus struct {
	Status     domain.ComplianceStatus
	SourceKey  *domain.QuarterKey
	IsFallback bool
}

// EffectiveEvidence carries the comments and attachments resolved with the
// same backward-nearest-approved rule, independent of compliance status.
type EffectiveEvidence struct {
	Comments    string
	Attachments []domain.Attachment
	SourceKey   *domain.QuarterKey
	IsFallback  bool
}

// ResolveEffectiveStatus answers "what is the compliance status of this
// obligation as of target" from the obligation's update history alone.
//
// An approved entry for target wins outright. Failing that, the nearest
// approved entry strictly before target is used and flagged as a fallback.
// Entries after target are never consulted: a not-yet-reviewed future quarter
// must not leak into historical reports.
func ResolveEffectiveStatus(obligation domain.Obligation, target domain.QuarterKey) EffectiveStatus {
	entry := nearestApproved(obligation, target)
	if entry == nil {
		return EffectiveStatus{Status: domain.ComplianceUnknown}
	}

	key := entry.Key
	return EffectiveStatus{
		Status:     entry.ComplianceStatus,
		SourceKey:  &key,
		IsFallback: key != target,
	}
}

// ResolveEffectiveEvidence returns the display comments and attachments for
// target using the same lookback rule as ResolveEffectiveStatus.
func ResolveEffectiveEvidence(obligation domain.Obligation, target domain.QuarterKey) EffectiveEvidence {
	entry := nearestApproved(obligation, target)
	if entry == nil {
		return EffectiveEvidence{}
	}

	key := entry.Key
	return EffectiveEvidence{
		Comments:    entry.Comments,
		Attachments: entry.Attachments,
		SourceKey:   &key,
		IsFallback:  key != target,
	}
}

// nearestApproved picks the approved entry with the greatest key not
// exceeding target. Insertion order of the history is irrelevant.
func nearestApproved(obligation domain.Obligation, target domain.QuarterKey) *domain.UpdateEntry {
	var best *domain.UpdateEntry
	for i := range obligation.Updates {
		entry := &obligation.Updates[i]
		if entry.AssessmentStatus != domain.AssessmentApproved {
			continue
		}
		if target.Before(entry.Key) {
			continue
		}
		if best == nil || best.Key.Before(entry.Key) {
			best = entry
		}
	}
	return best
}
