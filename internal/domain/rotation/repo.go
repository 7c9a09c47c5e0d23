package rotation

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/rotations/rotations/pkg/pagination"
)

// RosterFilter narrows the student roster.
type RosterFilter struct {
	// Search matches student name, code or id.
	Search string
	// State is active, inactive or all; empty means all.
	State string
	// Year matches an entry of the student's years.
	Year string
	// HasJustification keeps students with (true) or without (false) at least
	// one exceptional assignment.
	HasJustification *bool
}

// AgendaFilter narrows the assignment agenda.
type AgendaFilter struct {
	Search string
	Month  int
	Year   int
	// StudentID pins the agenda to one student.
	StudentID *uuid.UUID
}

// Window returns the month window, the year window when only Year is set, or
// false when neither is set.
func (f AgendaFilter) Window() (DateRange, bool) {
	return window(f.Year, f.Month)
}

// InstitutionFilter narrows the per-institution agenda.
type InstitutionFilter struct {
	Search string
	Month  int
	Year   int
}

func (f InstitutionFilter) Window() (DateRange, bool) {
	return window(f.Year, f.Month)
}

func window(year, month int) (DateRange, bool) {
	switch {
	case year > 0 && month >= 1 && month <= 12:
		return MonthWindow(year, time.Month(month)), true
	case year > 0:
		return YearWindow(year), true
	}
	return DateRange{}, false
}

// AssignmentRepository persists assignments. Lookups of a missing row return
// pgx.ErrNoRows.
type AssignmentRepository interface {
	ConflictFinder
	CapacityCounter

	Create(ctx context.Context, a *Assignment) error
	GetByID(ctx context.Context, id uuid.UUID) (*Assignment, error)
	GetDetail(ctx context.Context, id uuid.UUID) (*AssignmentDetail, error)
	Update(ctx context.Context, a *Assignment) error
	Delete(ctx context.Context, id uuid.UUID) error

	ListRoster(ctx context.Context, f RosterFilter, p pagination.Params) ([]*RosterEntry, int, error)
	ListAgenda(ctx context.Context, f AgendaFilter, p pagination.Params) ([]*AssignmentDetail, int, error)
	ListByInstitution(ctx context.Context, f InstitutionFilter, p pagination.Params) ([]*InstitutionAgenda, int, error)
	ListActiveByStudent(ctx context.Context, studentID uuid.UUID) ([]*AssignmentDetail, error)
}

// DirectoryRepository reads the reference entities assignments point at.
type DirectoryRepository interface {
	InstitutionReader
	GetStudent(ctx context.Context, id uuid.UUID) (*Student, error)
	GetReceptor(ctx context.Context, id uuid.UUID) (*Receptor, error)
}
