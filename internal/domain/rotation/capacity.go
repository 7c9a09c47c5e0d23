package rotation

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// CapacityCounter counts active assignments at an institution overlapping a range.
type CapacityCounter interface {
	CountActiveOverlapping(ctx context.Context, institutionID uuid.UUID, r DateRange) (int, error)
}

// InstitutionReader loads institutions.
type InstitutionReader interface {
	GetInstitution(ctx context.Context, id uuid.UUID) (*Institution, error)
}

// CapacityAdvisor reports free slots at an institution. The figure is
// advisory and may be negative after exceptional overrides.
type CapacityAdvisor struct {
	institutions InstitutionReader
	counter      CapacityCounter
}

func NewCapacityAdvisor(institutions InstitutionReader, counter CapacityCounter) *CapacityAdvisor {
	return &CapacityAdvisor{institutions: institutions, counter: counter}
}

// AvailableSlots returns capacity minus the active assignments overlapping
// [start, end]. A single-day window (start == end) is allowed.
func (a *CapacityAdvisor) AvailableSlots(ctx context.Context, institutionID uuid.UUID, r DateRange) (*CapacityReport, error) {
	if r.Start.After(r.End) {
		return nil, ErrInvalidDateRange
	}

	inst, err := a.institutions.GetInstitution(ctx, institutionID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, notFound("institution")
		}
		return nil, fmt.Errorf("get institution: %w", err)
	}

	n, err := a.counter.CountActiveOverlapping(ctx, institutionID, r)
	if err != nil {
		return nil, fmt.Errorf("count overlapping assignments: %w", err)
	}

	return &CapacityReport{
		InstitutionID:     institutionID,
		Available:         inst.Capacity - n,
		Total:             inst.Capacity,
		ActiveOverlapping: n,
		StartDate:         Date{r.Start},
		EndDate:           Date{r.End},
	}, nil
}
