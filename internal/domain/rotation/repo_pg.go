package rotation

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rotations/rotations/internal/platform/db"
	"github.com/rotations/rotations/pkg/pagination"
)

// =========== Assignment Repository ===========

type assignmentRepoPG struct{ pool *pgxpool.Pool }

func NewAssignmentRepoPG(pool *pgxpool.Pool) AssignmentRepository {
	return &assignmentRepoPG{pool: pool}
}

func (r *assignmentRepoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const assignmentCols = `id, student_id, institution_id, receptor_id, start_date, end_date,
	active, is_exceptional, justification, created_at, updated_at`

const detailCols = `a.id, a.student_id, a.institution_id, a.receptor_id, a.start_date, a.end_date,
	a.active, a.is_exceptional, a.justification, a.created_at, a.updated_at,
	s.first_name || ' ' || s.last_name, s.code, s.email, i.name, r.name, r.title, r.email`

const detailFrom = ` FROM assignments a
	JOIN students s ON s.id = a.student_id
	JOIN institutions i ON i.id = a.institution_id
	JOIN receptors r ON r.id = a.receptor_id`

const conflictCols = `a.id, a.student_id, s.first_name || ' ' || s.last_name,
	a.institution_id, i.name, a.receptor_id, r.name, a.start_date, a.end_date, a.is_exceptional`

func scanAssignment(row pgx.Row) (*Assignment, error) {
	var a Assignment
	err := row.Scan(&a.ID, &a.StudentID, &a.InstitutionID, &a.ReceptorID,
		&a.StartDate.Time, &a.EndDate.Time, &a.Active, &a.IsExceptional, &a.Justification,
		&a.CreatedAt, &a.UpdatedAt)
	return &a, err
}

func scanDetail(row pgx.Row) (*AssignmentDetail, error) {
	var d AssignmentDetail
	err := row.Scan(&d.ID, &d.StudentID, &d.InstitutionID, &d.ReceptorID,
		&d.StartDate.Time, &d.EndDate.Time, &d.Active, &d.IsExceptional, &d.Justification,
		&d.CreatedAt, &d.UpdatedAt,
		&d.StudentName, &d.StudentCode, &d.StudentEmail, &d.InstitutionName,
		&d.ReceptorName, &d.ReceptorTitle, &d.ReceptorEmail)
	return &d, err
}

func collectDetails(rows pgx.Rows) ([]*AssignmentDetail, error) {
	defer rows.Close()
	var items []*AssignmentDetail
	for rows.Next() {
		d, err := scanDetail(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, d)
	}
	return items, rows.Err()
}

func (r *assignmentRepoPG) Create(ctx context.Context, a *Assignment) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO assignments (id, student_id, institution_id, receptor_id, start_date, end_date,
			active, is_exceptional, justification)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		RETURNING created_at, updated_at`,
		a.ID, a.StudentID, a.InstitutionID, a.ReceptorID, a.StartDate.Time, a.EndDate.Time,
		a.Active, a.IsExceptional, a.Justification).Scan(&a.CreatedAt, &a.UpdatedAt)
}

func (r *assignmentRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Assignment, error) {
	return scanAssignment(r.conn(ctx).QueryRow(ctx, `SELECT `+assignmentCols+` FROM assignments WHERE id = $1`, id))
}

func (r *assignmentRepoPG) GetDetail(ctx context.Context, id uuid.UUID) (*AssignmentDetail, error) {
	return scanDetail(r.conn(ctx).QueryRow(ctx, `SELECT `+detailCols+detailFrom+` WHERE a.id = $1`, id))
}

func (r *assignmentRepoPG) Update(ctx context.Context, a *Assignment) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE assignments SET student_id=$2, institution_id=$3, receptor_id=$4, start_date=$5, end_date=$6,
			active=$7, is_exceptional=$8, justification=$9, updated_at=NOW()
		WHERE id = $1
		RETURNING updated_at`,
		a.ID, a.StudentID, a.InstitutionID, a.ReceptorID, a.StartDate.Time, a.EndDate.Time,
		a.Active, a.IsExceptional, a.Justification).Scan(&a.UpdatedAt)
	return err
}

func (r *assignmentRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM assignments WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *assignmentRepoPG) findConflicts(ctx context.Context, where string, args ...interface{}) ([]Conflict, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+conflictCols+detailFrom+` WHERE `+where+` ORDER BY a.start_date, a.id`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Conflict
	for rows.Next() {
		var c Conflict
		if err := rows.Scan(&c.AssignmentID, &c.StudentID, &c.StudentName,
			&c.InstitutionID, &c.InstitutionName, &c.ReceptorID, &c.ReceptorName,
			&c.StartDate.Time, &c.EndDate.Time, &c.IsExceptional); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *assignmentRepoPG) FindStudentOverlaps(ctx context.Context, studentID uuid.UUID, dr DateRange, exclude *uuid.UUID) ([]Conflict, error) {
	return r.findConflicts(ctx,
		`a.student_id = $1 AND a.start_date <= $3 AND a.end_date >= $2 AND ($4::uuid IS NULL OR a.id <> $4)`,
		studentID, dr.Start, dr.End, exclude)
}

func (r *assignmentRepoPG) FindReceptorOverlaps(ctx context.Context, institutionID, receptorID uuid.UUID, dr DateRange, exclude *uuid.UUID) ([]Conflict, error) {
	return r.findConflicts(ctx,
		`a.institution_id = $1 AND a.receptor_id = $2 AND a.start_date <= $4 AND a.end_date >= $3 AND ($5::uuid IS NULL OR a.id <> $5)`,
		institutionID, receptorID, dr.Start, dr.End, exclude)
}

func (r *assignmentRepoPG) CountActiveOverlapping(ctx context.Context, institutionID uuid.UUID, dr DateRange) (int, error) {
	var n int
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT COUNT(*) FROM assignments
		WHERE institution_id = $1 AND active AND start_date <= $3 AND end_date >= $2`,
		institutionID, dr.Start, dr.End).Scan(&n)
	return n, err
}

// whereBuilder accumulates AND clauses with positional arguments.
type whereBuilder struct {
	clauses []string
	args    []interface{}
}

// add appends clause, replacing every "?" with the next placeholder for arg.
func (w *whereBuilder) add(clause string, arg interface{}) {
	w.args = append(w.args, arg)
	w.clauses = append(w.clauses, strings.ReplaceAll(clause, "?", fmt.Sprintf("$%d", len(w.args))))
}

func (w *whereBuilder) raw(clause string) {
	w.clauses = append(w.clauses, clause)
}

func (w *whereBuilder) String() string {
	if len(w.clauses) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.clauses, " AND ")
}

// page appends LIMIT/OFFSET placeholders and returns the clause and args.
func (w *whereBuilder) page(p pagination.Params) (string, []interface{}) {
	n := len(w.args)
	args := append(append([]interface{}{}, w.args...), p.Limit, p.Offset())
	return fmt.Sprintf(" LIMIT $%d OFFSET $%d", n+1, n+2), args
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// likePattern builds a substring match for ILIKE ... ESCAPE '\'. Wildcards in
// the search text match literally.
func likePattern(s string) string {
	return "%" + likeEscaper.Replace(strings.TrimSpace(s)) + "%"
}

func (r *assignmentRepoPG) ListRoster(ctx context.Context, f RosterFilter, p pagination.Params) ([]*RosterEntry, int, error) {
	var w whereBuilder
	if strings.TrimSpace(f.Search) != "" {
		w.add(`(s.first_name || ' ' || s.last_name ILIKE ? ESCAPE '\' OR s.code ILIKE ? ESCAPE '\' OR s.id::text ILIKE ? ESCAPE '\')`, likePattern(f.Search))
	}
	switch f.State {
	case StateActive:
		w.raw(`s.active`)
	case StateInactive:
		w.raw(`NOT s.active`)
	}
	if f.Year != "" {
		w.add(`? = ANY(s.years)`, f.Year)
	}
	if f.HasJustification != nil {
		exists := `EXISTS (SELECT 1 FROM assignments x WHERE x.student_id = s.id AND x.is_exceptional)`
		if *f.HasJustification {
			w.raw(exists)
		} else {
			w.raw(`NOT ` + exists)
		}
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM students s`+w.String(), w.args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	limit, args := w.page(p)
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT s.id, s.code, s.first_name, s.last_name, s.email, s.active, s.years,
			(SELECT COUNT(*) FROM assignments x WHERE x.student_id = s.id) AS assignment_count
		FROM students s`+w.String()+`
		ORDER BY assignment_count DESC, s.id`+limit, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var entries []*RosterEntry
	byStudent := make(map[uuid.UUID]*RosterEntry)
	var ids []string
	for rows.Next() {
		e := &RosterEntry{Assignments: []*AssignmentDetail{}}
		if err := rows.Scan(&e.ID, &e.Code, &e.FirstName, &e.LastName, &e.Email, &e.Active, &e.Years, &e.AssignmentCount); err != nil {
			return nil, 0, err
		}
		entries = append(entries, e)
		byStudent[e.ID] = e
		ids = append(ids, e.ID.String())
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	rows.Close()
	if len(ids) == 0 {
		return entries, total, nil
	}

	details, err := r.queryDetails(ctx, ` WHERE a.student_id = ANY($1::uuid[]) ORDER BY a.start_date DESC, a.id`, ids)
	if err != nil {
		return nil, 0, err
	}
	for _, d := range details {
		if e, ok := byStudent[d.StudentID]; ok {
			e.Assignments = append(e.Assignments, d)
		}
	}
	return entries, total, nil
}

func (r *assignmentRepoPG) queryDetails(ctx context.Context, tail string, args ...interface{}) ([]*AssignmentDetail, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+detailCols+detailFrom+tail, args...)
	if err != nil {
		return nil, err
	}
	return collectDetails(rows)
}

func (r *assignmentRepoPG) ListAgenda(ctx context.Context, f AgendaFilter, p pagination.Params) ([]*AssignmentDetail, int, error) {
	var w whereBuilder
	if win, ok := f.Window(); ok {
		w.add(`a.start_date <= ?`, win.End)
		w.add(`a.end_date >= ?`, win.Start)
	}
	if strings.TrimSpace(f.Search) != "" {
		w.add(`(s.first_name || ' ' || s.last_name ILIKE ? ESCAPE '\' OR s.code ILIKE ? ESCAPE '\')`, likePattern(f.Search))
	}
	if f.StudentID != nil {
		w.add(`a.student_id = ?`, *f.StudentID)
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*)`+detailFrom+w.String(), w.args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	limit, args := w.page(p)
	items, err := r.queryDetails(ctx, w.String()+` ORDER BY a.start_date, a.id`+limit, args...)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

func (r *assignmentRepoPG) ListByInstitution(ctx context.Context, f InstitutionFilter, p pagination.Params) ([]*InstitutionAgenda, int, error) {
	var w whereBuilder
	if strings.TrimSpace(f.Search) != "" {
		w.add(`i.name ILIKE ? ESCAPE '\'`, likePattern(f.Search))
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM institutions i`+w.String(), w.args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	limit, args := w.page(p)
	rows, err := r.conn(ctx).Query(ctx, `SELECT i.id, i.name, i.capacity, i.active FROM institutions i`+
		w.String()+` ORDER BY i.name, i.id`+limit, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var agendas []*InstitutionAgenda
	byInstitution := make(map[uuid.UUID]*InstitutionAgenda)
	var ids []string
	for rows.Next() {
		ia := &InstitutionAgenda{Assignments: []*AssignmentDetail{}}
		if err := rows.Scan(&ia.ID, &ia.Name, &ia.Capacity, &ia.Active); err != nil {
			return nil, 0, err
		}
		agendas = append(agendas, ia)
		byInstitution[ia.ID] = ia
		ids = append(ids, ia.ID.String())
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	rows.Close()
	if len(ids) == 0 {
		return agendas, total, nil
	}

	tail := ` WHERE a.institution_id = ANY($1::uuid[])`
	qargs := []interface{}{ids}
	if win, ok := f.Window(); ok {
		tail += ` AND a.start_date <= $2 AND a.end_date >= $3`
		qargs = append(qargs, win.End, win.Start)
	}
	details, err := r.queryDetails(ctx, tail+` ORDER BY a.start_date, a.id`, qargs...)
	if err != nil {
		return nil, 0, err
	}
	for _, d := range details {
		if ia, ok := byInstitution[d.InstitutionID]; ok {
			ia.Assignments = append(ia.Assignments, d)
		}
	}
	return agendas, total, nil
}

func (r *assignmentRepoPG) ListActiveByStudent(ctx context.Context, studentID uuid.UUID) ([]*AssignmentDetail, error) {
	return r.queryDetails(ctx, ` WHERE a.student_id = $1 AND a.active ORDER BY a.created_at DESC, a.start_date DESC`, studentID)
}

// =========== Directory Repository ===========

type directoryRepoPG struct{ pool *pgxpool.Pool }

func NewDirectoryRepoPG(pool *pgxpool.Pool) DirectoryRepository {
	return &directoryRepoPG{pool: pool}
}

func (r *directoryRepoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

func (r *directoryRepoPG) GetStudent(ctx context.Context, id uuid.UUID) (*Student, error) {
	var s Student
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT id, code, first_name, last_name, email, active, years
		FROM students WHERE id = $1`, id).
		Scan(&s.ID, &s.Code, &s.FirstName, &s.LastName, &s.Email, &s.Active, &s.Years)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *directoryRepoPG) GetInstitution(ctx context.Context, id uuid.UUID) (*Institution, error) {
	var i Institution
	err := r.conn(ctx).QueryRow(ctx, `SELECT id, name, capacity, active FROM institutions WHERE id = $1`, id).
		Scan(&i.ID, &i.Name, &i.Capacity, &i.Active)
	if err != nil {
		return nil, err
	}
	return &i, nil
}

func (r *directoryRepoPG) GetReceptor(ctx context.Context, id uuid.UUID) (*Receptor, error) {
	var rc Receptor
	err := r.conn(ctx).QueryRow(ctx, `SELECT id, institution_id, name, title, email FROM receptors WHERE id = $1`, id).
		Scan(&rc.ID, &rc.InstitutionID, &rc.Name, &rc.Title, &rc.Email)
	if err != nil {
		return nil, err
	}
	return &rc, nil
}
