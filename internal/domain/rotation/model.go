package rotation

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DateLayout is the wire format of every date in the API.
const DateLayout = "2006-01-02"

// Date is a calendar day. It marshals as YYYY-MM-DD and is always UTC midnight.
type Date struct {
	time.Time
}

func NewDate(year int, month time.Month, day int) Date {
	return Date{time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// ParseDate parses YYYY-MM-DD.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return Date{}, fmt.Errorf("invalid date %q, expected YYYY-MM-DD", s)
	}
	return Date{t}, nil
}

func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(DateLayout)
}

func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte("null"), nil
	}
	return []byte(`"` + d.Format(DateLayout) + `"`), nil
}

func (d *Date) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		d.Time = time.Time{}
		return nil
	}
	// Accept full timestamps from older clients and keep only the day.
	if len(s) > len(DateLayout) {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return fmt.Errorf("invalid date %q, expected YYYY-MM-DD", s)
		}
		d.Time = Day(t)
		return nil
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// Student maps to the students table. Owned by the records backend.
type Student struct {
	ID        uuid.UUID `json:"id"`
	Code      string    `json:"code"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
	Email     *string   `json:"email,omitempty"`
	Active    bool      `json:"active"`
	Years     []string  `json:"years"`
}

func (s *Student) FullName() string {
	return strings.TrimSpace(s.FirstName + " " + s.LastName)
}

// Institution maps to the institutions table. Capacity is its "cupos".
type Institution struct {
	ID       uuid.UUID `json:"id"`
	Name     string    `json:"name"`
	Capacity int       `json:"capacity"`
	Active   bool      `json:"active"`
}

// Receptor is the supervisor hosting students at exactly one institution.
type Receptor struct {
	ID            uuid.UUID `json:"id"`
	InstitutionID uuid.UUID `json:"institution_id"`
	Name          string    `json:"name"`
	Title         *string   `json:"title,omitempty"`
	Email         *string   `json:"email,omitempty"`
}

// Assignment maps to the assignments table.
type Assignment struct {
	ID            uuid.UUID `json:"id"`
	StudentID     uuid.UUID `json:"student_id"`
	InstitutionID uuid.UUID `json:"institution_id"`
	ReceptorID    uuid.UUID `json:"receptor_id"`
	StartDate     Date      `json:"start_date"`
	EndDate       Date      `json:"end_date"`
	Active        bool      `json:"active"`
	IsExceptional bool      `json:"is_exceptional"`
	Justification *string   `json:"justification"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Range returns the assignment's closed interval.
func (a *Assignment) Range() DateRange {
	return NewDateRange(a.StartDate.Time, a.EndDate.Time)
}

// AssignmentDetail is an assignment joined with the names callers display.
type AssignmentDetail struct {
	Assignment
	StudentName     string  `json:"student_name"`
	StudentCode     string  `json:"student_code"`
	StudentEmail    *string `json:"student_email,omitempty"`
	InstitutionName string  `json:"institution_name"`
	ReceptorName    string  `json:"receptor_name"`
	ReceptorTitle   *string `json:"receptor_title,omitempty"`
	ReceptorEmail   *string `json:"receptor_email,omitempty"`
}

// RosterEntry is one student of the roster view with all their assignments.
type RosterEntry struct {
	Student
	AssignmentCount int                 `json:"assignment_count"`
	Assignments     []*AssignmentDetail `json:"assignments"`
}

// InstitutionAgenda is one institution with its assignments in a window.
type InstitutionAgenda struct {
	Institution
	Assignments []*AssignmentDetail `json:"assignments"`
}

// CreateRequest is the body of POST /assignments.
type CreateRequest struct {
	StudentID     uuid.UUID `json:"student_id"`
	InstitutionID uuid.UUID `json:"institution_id"`
	ReceptorID    uuid.UUID `json:"receptor_id"`
	StartDate     Date      `json:"start_date"`
	EndDate       Date      `json:"end_date"`
	IsExceptional bool      `json:"is_exceptional"`
	Justification string    `json:"justification"`
}

// Validate checks the request is complete. Date order and entity existence
// are checked by the scheduler.
func (r *CreateRequest) Validate() error {
	var missing []string
	if r.StudentID == uuid.Nil {
		missing = append(missing, "student_id")
	}
	if r.InstitutionID == uuid.Nil {
		missing = append(missing, "institution_id")
	}
	if r.ReceptorID == uuid.Nil {
		missing = append(missing, "receptor_id")
	}
	if r.StartDate.IsZero() {
		missing = append(missing, "start_date")
	}
	if r.EndDate.IsZero() {
		missing = append(missing, "end_date")
	}
	if len(missing) > 0 {
		return newError(KindValidation, "missing required fields: "+strings.Join(missing, ", "))
	}
	return nil
}

// Assignment states accepted by UpdatePatch.State.
const (
	StateActive   = "active"
	StateInactive = "inactive"
	StateAll      = "all"
)

// UpdatePatch is the body of PUT /assignments/{id}. Nil fields are unchanged.
type UpdatePatch struct {
	StudentID     *uuid.UUID `json:"student_id,omitempty"`
	InstitutionID *uuid.UUID `json:"institution_id,omitempty"`
	ReceptorID    *uuid.UUID `json:"receptor_id,omitempty"`
	StartDate     *Date      `json:"start_date,omitempty"`
	EndDate       *Date      `json:"end_date,omitempty"`
	Active        *bool      `json:"active,omitempty"`
	State         *string    `json:"state,omitempty"`
	IsExceptional *bool      `json:"is_exceptional,omitempty"`
	Justification *string    `json:"justification,omitempty"`
}

// activeValue resolves Active and State into one optional flag. Active wins
// when both are sent.
func (p *UpdatePatch) activeValue() (*bool, error) {
	if p.Active != nil {
		return p.Active, nil
	}
	if p.State == nil {
		return nil, nil
	}
	switch strings.ToLower(strings.TrimSpace(*p.State)) {
	case StateActive:
		v := true
		return &v, nil
	case StateInactive:
		v := false
		return &v, nil
	}
	return nil, newError(KindValidation, fmt.Sprintf("invalid state %q, expected active or inactive", *p.State))
}

// CreateResult is the accepted assignment plus any conflicts an exceptional
// request knowingly overrode.
type CreateResult struct {
	*Assignment
	OverriddenConflicts []Conflict `json:"overridden_conflicts,omitempty"`
}

// CapacityReport is the advisory slot count for an institution and window.
// Available is never clamped and goes negative when overrides exceed capacity.
type CapacityReport struct {
	InstitutionID     uuid.UUID `json:"institution_id"`
	Available         int       `json:"available"`
	Total             int       `json:"total"`
	ActiveOverlapping int       `json:"active_overlapping"`
	StartDate         Date      `json:"start_date"`
	EndDate           Date      `json:"end_date"`
}
