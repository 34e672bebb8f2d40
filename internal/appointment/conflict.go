package appointment

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// ConflictWindow is the buffer on each side of a booked time within which no
// other active appointment may be placed. Appointments are instants, not spans.
const ConflictWindow = 30 * time.Minute

// ActiveFinder is the storage query the conflict checker needs.
type ActiveFinder interface {
	// ExistsActiveAppointmentBetween reports whether a non-cancelled appointment
	// with a date in [from, to] exists, ignoring excludeID when set.
	ExistsActiveAppointmentBetween(ctx context.Context, from, to time.Time, excludeID *uuid.UUID) (bool, error)
}

type ConflictChecker struct {
	store ActiveFinder
}

func NewConflictChecker(store ActiveFinder) *ConflictChecker {
	return &ConflictChecker{store: store}
}

// HasConflict reports whether candidate falls within ConflictWindow of an
// existing active appointment. A nil candidate never conflicts.
func (c *ConflictChecker) HasConflict(ctx context.Context, candidate *time.Time, excludeID *uuid.UUID) (bool, error) {
	if candidate == nil {
		return false, nil
	}
	from, to := conflictRange(*candidate)
	found, err := c.store.ExistsActiveAppointmentBetween(ctx, from, to, excludeID)
	if err != nil {
		return false, fmt.Errorf("check time conflict: %w", err)
	}
	return found, nil
}

// conflictRange returns the inclusive bounds searched around t.
func conflictRange(t time.Time) (time.Time, time.Time) {
	return t.Add(-ConflictWindow), t.Add(ConflictWindow)
}

// scheduleLockKeys names the time buckets a write at t must hold in strict mode.
// Buckets are ConflictWindow wide, so any two times at most ConflictWindow apart
// land in the same or adjacent buckets and their key sets intersect.
func scheduleLockKeys(t time.Time) []string {
	bucket := t.UTC().Unix() / int64(ConflictWindow/time.Second)
	return []string{
		"schedule:" + strconv.FormatInt(bucket-1, 10),
		"schedule:" + strconv.FormatInt(bucket, 10),
		"schedule:" + strconv.FormatInt(bucket+1, 10),
	}
}

func patientLockKey(email string) string {
	return "patient-email:" + email
}
