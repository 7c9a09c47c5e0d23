package rotation

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Conflict describes an existing assignment overlapping a request.
type Conflict struct {
	AssignmentID    uuid.UUID `json:"assignment_id"`
	StudentID       uuid.UUID `json:"student_id"`
	StudentName     string    `json:"student_name"`
	InstitutionID   uuid.UUID `json:"institution_id"`
	InstitutionName string    `json:"institution_name"`
	ReceptorID      uuid.UUID `json:"receptor_id"`
	ReceptorName    string    `json:"receptor_name"`
	StartDate       Date      `json:"start_date"`
	EndDate         Date      `json:"end_date"`
	IsExceptional   bool      `json:"is_exceptional"`
}

func (c Conflict) overlaps(r DateRange) bool {
	return Overlaps(c.StartDate.Time, c.EndDate.Time, r.Start, r.End)
}

// ConflictFinder returns assignments whose dates may intersect a range. The
// resolver re-checks every row, so implementations may over-select.
type ConflictFinder interface {
	FindStudentOverlaps(ctx context.Context, studentID uuid.UUID, r DateRange, exclude *uuid.UUID) ([]Conflict, error)
	FindReceptorOverlaps(ctx context.Context, institutionID, receptorID uuid.UUID, r DateRange, exclude *uuid.UUID) ([]Conflict, error)
}

// ConflictRequest is the assignment being checked.
type ConflictRequest struct {
	StudentID     uuid.UUID
	InstitutionID uuid.UUID
	ReceptorID    uuid.UUID
	Range         DateRange
	IsExceptional bool
	Justification string
	// ExcludeID skips the assignment being edited.
	ExcludeID *uuid.UUID
}

type Outcome string

const (
	OutcomeAccepted                     Outcome = "Accepted"
	OutcomeRejectedWithConflicts        Outcome = "RejectedWithConflicts"
	OutcomeRejectedMissingJustification Outcome = "RejectedMissingJustification"
)

// ConflictReport is the resolver's verdict.
type ConflictReport struct {
	Outcome           Outcome
	StudentConflicts  []Conflict
	ReceptorConflicts []Conflict
	// Err is set unless Outcome is Accepted.
	Err *Error
}

// Overridden returns every conflict an accepted exceptional request bypassed.
func (r *ConflictReport) Overridden() []Conflict {
	if r.Outcome != OutcomeAccepted {
		return nil
	}
	return r.all()
}

func (r *ConflictReport) all() []Conflict {
	out := make([]Conflict, 0, len(r.StudentConflicts)+len(r.ReceptorConflicts))
	out = append(out, r.StudentConflicts...)
	return append(out, r.ReceptorConflicts...)
}

// ConflictResolver decides whether a request may be stored given the
// assignments it overlaps.
type ConflictResolver struct {
	finder ConflictFinder
}

func NewConflictResolver(finder ConflictFinder) *ConflictResolver {
	return &ConflictResolver{finder: finder}
}

// Evaluate checks student overlaps first, then receptor overlaps. A
// non-exceptional request with any overlap is rejected and the error
// allows an override. An exceptional request is accepted whatever it
// overlaps provided it carries a non-blank justification.
func (r *ConflictResolver) Evaluate(ctx context.Context, c ConflictRequest) (*ConflictReport, error) {
	if !c.Range.Valid() {
		return nil, ErrInvalidDateRange
	}

	students, err := r.finder.FindStudentOverlaps(ctx, c.StudentID, c.Range, c.ExcludeID)
	if err != nil {
		return nil, fmt.Errorf("find student overlaps: %w", err)
	}
	receptors, err := r.finder.FindReceptorOverlaps(ctx, c.InstitutionID, c.ReceptorID, c.Range, c.ExcludeID)
	if err != nil {
		return nil, fmt.Errorf("find receptor overlaps: %w", err)
	}

	report := &ConflictReport{
		Outcome:           OutcomeAccepted,
		StudentConflicts:  filterOverlapping(students, c.Range, c.ExcludeID),
		ReceptorConflicts: filterOverlapping(receptors, c.Range, c.ExcludeID),
	}

	if c.IsExceptional {
		if strings.TrimSpace(c.Justification) == "" {
			report.Outcome = OutcomeRejectedMissingJustification
			report.Err = &Error{
				Kind:      KindMissingJustification,
				Message:   ErrMissingJustification.Message,
				Conflicts: report.all(),
			}
		}
		return report, nil
	}

	switch {
	case len(report.StudentConflicts) > 0:
		report.Outcome = OutcomeRejectedWithConflicts
		report.Err = &Error{
			Kind:            KindStudentOverlap,
			Message:         ErrStudentOverlap.Message,
			Conflicts:       report.StudentConflicts,
			OverrideAllowed: true,
		}
	case len(report.ReceptorConflicts) > 0:
		report.Outcome = OutcomeRejectedWithConflicts
		report.Err = &Error{
			Kind:            KindReceptorOverlap,
			Message:         ErrReceptorOverlap.Message,
			Conflicts:       report.ReceptorConflicts,
			OverrideAllowed: true,
		}
	}
	return report, nil
}

func filterOverlapping(in []Conflict, r DateRange, exclude *uuid.UUID) []Conflict {
	var out []Conflict
	for _, c := range in {
		if exclude != nil && c.AssignmentID == *exclude {
			continue
		}
		if c.overlaps(r) {
			out = append(out, c)
		}
	}
	return out
}
