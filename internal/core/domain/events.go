package domain

import "time"

// ObligationSubmittedEvent represents the payload for grc.obligation.submitted
// messages. It carries routing metadata only; receivers refetch canonical
// state instead of trusting any pushed obligation data.
type ObligationSubmittedEvent struct {
	EventID         string
	TenantID        string
	Key             QuarterKey
	SubmittedBy     string
	ObligationCount int
	SubmittedAt     time.Time
	Metadata        map[string]any
}

// ObligationValidatedEvent represents the payload for grc.obligation.validated
// messages, emitted after one or more approvals in a batch. Downstream
// remediation tooling also consumes it to convert treatment items into
// recurring controls.
type ObligationValidatedEvent struct {
	EventID       string
	TenantID      string
	Key           QuarterKey
	ApprovedBy    string
	ObligationIDs []string
	ApprovedAt    time.Time
	Metadata      map[string]any
}

// NotificationEvent represents the payload for generic grc.notification
// messages that drive inbox refreshes.
type NotificationEvent struct {
	EventID   string
	TenantID  string
	Kind      string
	EmittedAt time.Time
	Metadata  map[string]any
}
