package rotation

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"github.com/rotations/rotations/internal/platform/metrics"
	"github.com/rotations/rotations/pkg/pagination"
)

// Transactor runs fn in one database transaction. *db.Transactor satisfies it.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// ExceptionNotifier is told about every assignment that became exceptional.
type ExceptionNotifier interface {
	Notify(ctx context.Context, assignmentID uuid.UUID) error
}

type Options struct {
	// EnforceCapacity rejects non-exceptional creates at institutions with no
	// free slots in the requested window.
	EnforceCapacity bool
}

// Scheduler is the assignment use-case layer.
type Scheduler struct {
	assignments AssignmentRepository
	directory   DirectoryRepository
	tx          Transactor
	resolver    *ConflictResolver
	capacity    *CapacityAdvisor
	notifier    ExceptionNotifier
	metrics     metrics.Recorder
	logger      zerolog.Logger
	opts        Options
}

func NewScheduler(
	assignments AssignmentRepository,
	directory DirectoryRepository,
	tx Transactor,
	notifier ExceptionNotifier,
	rec metrics.Recorder,
	logger zerolog.Logger,
	opts Options,
) *Scheduler {
	if rec == nil {
		rec = metrics.NewNop()
	}
	return &Scheduler{
		assignments: assignments,
		directory:   directory,
		tx:          tx,
		resolver:    NewConflictResolver(assignments),
		capacity:    NewCapacityAdvisor(directory, assignments),
		notifier:    notifier,
		metrics:     rec,
		logger:      logger.With().Str("component", "scheduler").Logger(),
		opts:        opts,
	}
}

// Create validates, conflict-checks and stores a new active assignment. The
// checks and the insert share one serializable transaction.
func (s *Scheduler) Create(ctx context.Context, req *CreateRequest) (*CreateResult, error) {
	if err := req.Validate(); err != nil {
		return nil, s.rejected(err)
	}

	var result *CreateResult
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		student, err := s.directory.GetStudent(ctx, req.StudentID)
		if err != nil {
			return lookupErr(err, "student")
		}
		if !student.Active {
			return newError(KindInactiveStudent, fmt.Sprintf("student %s is inactive", student.Code))
		}
		if err := s.checkPlacement(ctx, req.InstitutionID, req.ReceptorID); err != nil {
			return err
		}

		dr := NewDateRange(req.StartDate.Time, req.EndDate.Time)
		if !dr.Valid() {
			return ErrInvalidDateRange
		}

		report, err := s.resolver.Evaluate(ctx, ConflictRequest{
			StudentID:     req.StudentID,
			InstitutionID: req.InstitutionID,
			ReceptorID:    req.ReceptorID,
			Range:         dr,
			IsExceptional: req.IsExceptional,
			Justification: req.Justification,
		})
		if err != nil {
			return err
		}
		if report.Err != nil {
			return report.Err
		}

		if s.opts.EnforceCapacity && !req.IsExceptional {
			cr, err := s.capacity.AvailableSlots(ctx, req.InstitutionID, dr)
			if err != nil {
				return err
			}
			if cr.Available <= 0 {
				return &Error{
					Kind:            KindCapacityExceeded,
					Message:         fmt.Sprintf("institution has %d of %d slots free in that period", cr.Available, cr.Total),
					OverrideAllowed: true,
				}
			}
		}

		a := &Assignment{
			StudentID:     req.StudentID,
			InstitutionID: req.InstitutionID,
			ReceptorID:    req.ReceptorID,
			StartDate:     Date{dr.Start},
			EndDate:       Date{dr.End},
			Active:        true,
			IsExceptional: req.IsExceptional,
		}
		if req.IsExceptional {
			j := strings.TrimSpace(req.Justification)
			a.Justification = &j
		}
		if err := s.assignments.Create(ctx, a); err != nil {
			return fmt.Errorf("create assignment: %w", err)
		}
		result = &CreateResult{Assignment: a, OverriddenConflicts: report.Overridden()}
		return nil
	})
	if err != nil {
		return nil, s.rejected(err)
	}

	s.metrics.RecordAssignmentCreated(result.IsExceptional)
	s.logger.Info().
		Str("assignment_id", result.ID.String()).
		Str("student_id", result.StudentID.String()).
		Bool("exceptional", result.IsExceptional).
		Int("overridden", len(result.OverriddenConflicts)).
		Msg("assignment created")

	if result.IsExceptional {
		s.notify(ctx, result.ID)
	}
	return result, nil
}

// Update applies a partial patch. Overlaps are not re-evaluated; a patch only
// has to leave the row internally consistent.
func (s *Scheduler) Update(ctx context.Context, id uuid.UUID, patch *UpdatePatch) (*Assignment, error) {
	active, err := patch.activeValue()
	if err != nil {
		return nil, s.rejected(err)
	}

	var (
		updated           *Assignment
		becameExceptional bool
	)
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		a, err := s.assignments.GetByID(ctx, id)
		if err != nil {
			return lookupErr(err, "assignment")
		}
		wasExceptional := a.IsExceptional

		if patch.StudentID != nil && *patch.StudentID != a.StudentID {
			student, err := s.directory.GetStudent(ctx, *patch.StudentID)
			if err != nil {
				return lookupErr(err, "student")
			}
			if !student.Active {
				return newError(KindInactiveStudent, fmt.Sprintf("student %s is inactive", student.Code))
			}
			a.StudentID = *patch.StudentID
		}

		placementChanged := false
		if patch.InstitutionID != nil && *patch.InstitutionID != a.InstitutionID {
			a.InstitutionID = *patch.InstitutionID
			placementChanged = true
		}
		if patch.ReceptorID != nil && *patch.ReceptorID != a.ReceptorID {
			a.ReceptorID = *patch.ReceptorID
			placementChanged = true
		}
		if placementChanged {
			if err := s.checkPlacement(ctx, a.InstitutionID, a.ReceptorID); err != nil {
				return err
			}
		}

		if patch.StartDate != nil {
			a.StartDate = Date{Day(patch.StartDate.Time)}
		}
		if patch.EndDate != nil {
			a.EndDate = Date{Day(patch.EndDate.Time)}
		}
		if !a.Range().Valid() {
			return ErrInvalidDateRange
		}

		if active != nil {
			a.Active = *active
		}

		if patch.IsExceptional != nil {
			a.IsExceptional = *patch.IsExceptional
		}
		if a.IsExceptional {
			if patch.Justification != nil {
				j := strings.TrimSpace(*patch.Justification)
				a.Justification = &j
			}
			if a.Justification == nil || strings.TrimSpace(*a.Justification) == "" {
				return newError(KindMissingJustification, ErrMissingJustification.Message)
			}
		} else {
			a.Justification = nil
		}

		if err := s.assignments.Update(ctx, a); err != nil {
			return fmt.Errorf("update assignment: %w", err)
		}
		updated = a
		becameExceptional = !wasExceptional && a.IsExceptional
		return nil
	})
	if err != nil {
		return nil, s.rejected(err)
	}

	s.metrics.RecordAssignmentUpdated()
	s.logger.Info().Str("assignment_id", id.String()).Bool("exceptional", updated.IsExceptional).Msg("assignment updated")

	if becameExceptional {
		s.notify(ctx, id)
	}
	return updated, nil
}

// Delete removes an assignment permanently.
func (s *Scheduler) Delete(ctx context.Context, id uuid.UUID) error {
	if err := s.assignments.Delete(ctx, id); err != nil {
		return lookupErr(err, "assignment")
	}
	s.metrics.RecordAssignmentDeleted()
	s.logger.Info().Str("assignment_id", id.String()).Msg("assignment deleted")
	return nil
}

func (s *Scheduler) Get(ctx context.Context, id uuid.UUID) (*AssignmentDetail, error) {
	d, err := s.assignments.GetDetail(ctx, id)
	if err != nil {
		return nil, lookupErr(err, "assignment")
	}
	return d, nil
}

func (s *Scheduler) ListRoster(ctx context.Context, f RosterFilter, p pagination.Params) ([]*RosterEntry, int, error) {
	switch f.State {
	case "", StateAll, StateActive, StateInactive:
	default:
		return nil, 0, newError(KindValidation, fmt.Sprintf("invalid state %q, expected active, inactive or all", f.State))
	}
	return s.assignments.ListRoster(ctx, f, p)
}

func (s *Scheduler) ListAgenda(ctx context.Context, f AgendaFilter, p pagination.Params) ([]*AssignmentDetail, int, error) {
	if err := validateWindow(f.Year, f.Month); err != nil {
		return nil, 0, err
	}
	return s.assignments.ListAgenda(ctx, f, p)
}

func (s *Scheduler) ListByInstitution(ctx context.Context, f InstitutionFilter, p pagination.Params) ([]*InstitutionAgenda, int, error) {
	if err := validateWindow(f.Year, f.Month); err != nil {
		return nil, 0, err
	}
	return s.assignments.ListByInstitution(ctx, f, p)
}

// ListActiveByStudent returns the student's active assignments, newest first.
func (s *Scheduler) ListActiveByStudent(ctx context.Context, studentID uuid.UUID) ([]*AssignmentDetail, error) {
	if _, err := s.directory.GetStudent(ctx, studentID); err != nil {
		return nil, lookupErr(err, "student")
	}
	items, err := s.assignments.ListActiveByStudent(ctx, studentID)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []*AssignmentDetail{}
	}
	return items, nil
}

func (s *Scheduler) AvailableSlots(ctx context.Context, institutionID uuid.UUID, start, end Date) (*CapacityReport, error) {
	return s.capacity.AvailableSlots(ctx, institutionID, NewDateRange(start.Time, end.Time))
}

// checkPlacement verifies the institution exists and the receptor works there.
func (s *Scheduler) checkPlacement(ctx context.Context, institutionID, receptorID uuid.UUID) error {
	if _, err := s.directory.GetInstitution(ctx, institutionID); err != nil {
		return lookupErr(err, "institution")
	}
	rc, err := s.directory.GetReceptor(ctx, receptorID)
	if err != nil {
		return lookupErr(err, "receptor")
	}
	if rc.InstitutionID != institutionID {
		return newError(KindEntityNotFound, "receptor not found at institution")
	}
	return nil
}

// notify runs after commit. A failed alert never undoes the assignment.
func (s *Scheduler) notify(ctx context.Context, id uuid.UUID) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Notify(ctx, id); err != nil {
		s.logger.Error().Err(err).Str("assignment_id", id.String()).Msg("exceptional assignment alert failed")
	}
}

func (s *Scheduler) rejected(err error) error {
	var e *Error
	if errors.As(err, &e) {
		s.metrics.RecordAssignmentRejected(string(e.Kind))
	}
	return err
}

// lookupErr turns a missing row into EntityNotFound and wraps anything else.
func lookupErr(err error, entity string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return notFound(entity)
	}
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	return fmt.Errorf("get %s: %w", entity, err)
}

func validateWindow(year, month int) error {
	if month != 0 && (month < 1 || month > 12) {
		return newError(KindValidation, fmt.Sprintf("invalid month %d", month))
	}
	if month != 0 && year == 0 {
		return newError(KindValidation, "month requires year")
	}
	if year < 0 {
		return newError(KindValidation, fmt.Sprintf("invalid year %d", year))
	}
	return nil
}
