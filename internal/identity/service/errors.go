package service

import (
	"errors"

	dErrors "mercato/pkg/domain-errors"
	"mercato/pkg/platform/sentinel"
)

func badRequest(msg string) error {
	return dErrors.New(dErrors.CodeBadRequest, msg)
}

// translateStoreErr maps sentinel facts from the account store onto coded
// domain errors. Uniqueness conflicts are not translated here: the reconciler
// handles them with its own retry before they can surface.
func translateStoreErr(err error, what string) error {
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, what+" not found")
	case errors.Is(err, sentinel.ErrConflict):
		return dErrors.Wrap(err, dErrors.CodeConflict, what+" conflicts with an existing record")
	case errors.Is(err, sentinel.ErrUnavailable):
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "account store unavailable")
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, "account store failure")
	}
}
