package testutil

import (
	"net/http"
	"time"

	id "mercato/pkg/domain"
	"mercato/pkg/requestcontext"
)

// WithActor adds an acting account to the request context.
// This simulates what the admin auth middleware would do for authenticated
// requests. If the actorID is not a valid UUID, it will not be added.
func WithActor(req *http.Request, actorID string) *http.Request {
	parsed, err := id.ParseAccountID(actorID)
	if err != nil {
		return req
	}
	return req.WithContext(requestcontext.WithActorID(req.Context(), parsed))
}

// WithFrozenTime pins the request-scoped clock so assertions on timestamps
// are deterministic.
func WithFrozenTime(req *http.Request, t time.Time) *http.Request {
	return req.WithContext(requestcontext.WithTime(req.Context(), t))
}
