package models

import (
	"time"

	identitymodels "mercato/internal/identity/models"
	id "mercato/pkg/domain"
)

// OrderSummary is an opaque view of an in-flight order, produced by the
// order-status collaborator for display only. The lifecycle controller never
// interprets it beyond counting.
type OrderSummary struct {
	ID       id.OrderID `json:"id"`
	Status   string     `json:"status"`
	PlacedAt time.Time  `json:"placed_at"`
}

// LifecycleResult is what the controller hands back to the boundary: the
// application after the transition, the account role the caller must apply,
// and, for suspension previews, the in-flight orders the caller has to
// acknowledge.
type LifecycleResult struct {
	Application    *VendorApplication  `json:"application"`
	AccountRole    identitymodels.Role `json:"account_role"`
	InFlightOrders []OrderSummary      `json:"in_flight_orders,omitempty"`
}
