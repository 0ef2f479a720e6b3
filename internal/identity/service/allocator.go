package service

import (
	"context"
	"strconv"
	"strings"

	dErrors "mercato/pkg/domain-errors"
)

// maxAllocateAttempts bounds suffix probing. Sixty-four collisions on one
// local part means something is wrong upstream; surfacing a conflict beats
// probing forever.
const maxAllocateAttempts = 64

// AllocateUsername derives a unique handle from an email local part. Dots
// become underscores; no other transformation is applied. Collisions resolve
// by appending 1, 2, 3, ... When excludeAnonymized is set, handles held only
// by anonymized accounts are treated as free.
//
// Probing is advisory: two concurrent allocations for the same local part may
// both see a handle as free, and the store's uniqueness constraint is the
// final arbiter. Reconcile retries allocate+create as one unit on conflict.
func (s *Service) AllocateUsername(ctx context.Context, localPart string, excludeAnonymized bool) (string, error) {
	base := strings.ReplaceAll(localPart, ".", "_")
	if base == "" {
		return "", dErrors.New(dErrors.CodeValidation, "username local part is empty")
	}

	for attempt := 0; attempt < maxAllocateAttempts; attempt++ {
		candidate := base
		if attempt > 0 {
			candidate = base + strconv.Itoa(attempt)
		}
		taken, err := s.accounts.UsernameTaken(ctx, candidate, excludeAnonymized)
		if err != nil {
			return "", translateStoreErr(err, "username")
		}
		if !taken {
			return candidate, nil
		}
		if s.metrics != nil {
			s.metrics.UsernameCollisions.Inc()
		}
	}
	return "", dErrors.Newf(dErrors.CodeConflict, "no free username for %q after %d attempts", base, maxAllocateAttempts)
}
