package audit

import (
	"time"

	id "mercato/pkg/domain"
)

// EventCategory classifies audit events by their primary purpose. Categories
// drive topic routing and retention policy downstream.
type EventCategory string

const (
	// CategoryCompliance covers events with legal significance: account
	// creation, restoration, anonymization, vendor approval decisions.
	CategoryCompliance EventCategory = "compliance"

	// CategorySecurity covers events relevant to monitoring and forensics:
	// subject-ID mismatches, failed local logins.
	CategorySecurity EventCategory = "security"

	// CategoryOperations covers routine visibility: logins, orphan sweeps.
	CategoryOperations EventCategory = "operations"
)

// Event is emitted from domain logic to capture key identity and lifecycle
// actions. Kept transport-agnostic so publishers can fan out.
type Event struct {
	Category  EventCategory
	Timestamp time.Time
	AccountID id.AccountID
	Action    string
	Reason    string
	// Email is populated when the event concerns an address directly
	// (creation, restoration, mismatch), for compliance traceability.
	Email     string
	RequestID string
	// ActorID tracks who performed the action when different from AccountID,
	// e.g. an admin approving an application.
	ActorID string
	// Device is a short human-readable client descriptor ("Chrome / Linux"),
	// parsed from the User-Agent at the transport boundary.
	Device string
}

// AuditEvent names every action this service emits.
type AuditEvent string

const (
	EventAccountCreated     AuditEvent = "account_created"
	EventAccountLinked      AuditEvent = "account_linked"
	EventAccountRestored    AuditEvent = "account_restored"
	EventAccountAnonymized  AuditEvent = "account_anonymized"
	EventSubjectMismatch    AuditEvent = "subject_mismatch"
	EventLocalLoginFailed   AuditEvent = "local_login_failed"
	EventApplicationSubmit  AuditEvent = "application_submitted"
	EventApplicationApprove AuditEvent = "application_approved"
	EventApplicationReject  AuditEvent = "application_rejected"
	EventApplicationSuspend AuditEvent = "application_suspended"
	EventApplicationReapply AuditEvent = "application_reapplied"
	EventOrphansRemoved     AuditEvent = "orphan_applications_removed"
)

var eventCategories = map[AuditEvent]EventCategory{
	EventAccountCreated:     CategoryCompliance,
	EventAccountLinked:      CategoryOperations,
	EventAccountRestored:    CategoryCompliance,
	EventAccountAnonymized:  CategoryCompliance,
	EventSubjectMismatch:    CategorySecurity,
	EventLocalLoginFailed:   CategorySecurity,
	EventApplicationSubmit:  CategoryCompliance,
	EventApplicationApprove: CategoryCompliance,
	EventApplicationReject:  CategoryCompliance,
	EventApplicationSuspend: CategoryCompliance,
	EventApplicationReapply: CategoryCompliance,
	EventOrphansRemoved:     CategoryOperations,
}

// Category returns the category for a known event, defaulting to operations
// so unknown actions never block publication.
func (e AuditEvent) Category() EventCategory {
	if c, ok := eventCategories[e]; ok {
		return c
	}
	return CategoryOperations
}
