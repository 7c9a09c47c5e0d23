package rotation

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/rotations/rotations/internal/platform/auth"
	"github.com/rotations/rotations/pkg/pagination"
)

type Handler struct {
	svc    *Scheduler
	logger zerolog.Logger
}

func NewHandler(svc *Scheduler, logger zerolog.Logger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	// Read endpoints – coordinator
	readGroup := api.Group("", auth.RequireRole(auth.RoleCoordinator))
	readGroup.GET("/assignments", h.ListRoster)
	readGroup.GET("/assignments/institutions-with-assignments", h.ListByInstitution)
	readGroup.GET("/assignments/capacity", h.AvailableSlots)
	readGroup.GET("/assignments/:id", h.GetAssignment)

	// Student-facing reads – coordinator, student (own records only)
	studentGroup := api.Group("", auth.RequireRole(auth.RoleCoordinator, auth.RoleStudent))
	studentGroup.GET("/assignments/agenda", h.ListAgenda)
	studentGroup.GET("/assignments/student/:student_id", h.ListActiveByStudent)

	// Write endpoints – coordinator
	writeGroup := api.Group("", auth.RequireRole(auth.RoleCoordinator))
	writeGroup.POST("/assignments", h.CreateAssignment)
	writeGroup.PUT("/assignments/:id", h.UpdateAssignment)
	writeGroup.DELETE("/assignments/:id", h.DeleteAssignment)
}

// errorResponse is the body of every domain failure.
type errorResponse struct {
	Error           string     `json:"error"`
	Kind            Kind       `json:"kind"`
	Conflicts       []Conflict `json:"conflicts"`
	OverrideAllowed bool       `json:"override_allowed"`
}

func statusFor(kind Kind) int {
	switch kind {
	case KindEntityNotFound:
		return http.StatusNotFound
	case KindInternal:
		return http.StatusInternalServerError
	}
	return http.StatusBadRequest
}

// writeError renders domain errors with their kind and conflicts. Anything
// else is logged and reported as a generic 500.
func (h *Handler) writeError(c echo.Context, err error) error {
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he
	}
	var e *Error
	if !errors.As(err, &e) {
		h.logger.Error().Err(err).
			Str("method", c.Request().Method).
			Str("path", c.Request().URL.Path).
			Msg("request failed")
		return c.JSON(http.StatusInternalServerError, errorResponse{
			Error:     "internal server error",
			Kind:      KindInternal,
			Conflicts: []Conflict{},
		})
	}
	conflicts := e.Conflicts
	if conflicts == nil {
		conflicts = []Conflict{}
	}
	return c.JSON(statusFor(e.Kind), errorResponse{
		Error:           e.Message,
		Kind:            e.Kind,
		Conflicts:       conflicts,
		OverrideAllowed: e.OverrideAllowed,
	})
}

func parseID(c echo.Context, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		return uuid.Nil, newError(KindValidation, "invalid "+name)
	}
	return id, nil
}

func queryInt(c echo.Context, name string) (int, error) {
	v := c.QueryParam(name)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, newError(KindValidation, "invalid "+name)
	}
	return n, nil
}

func queryBool(c echo.Context, name string) (*bool, error) {
	v := c.QueryParam(name)
	if v == "" {
		return nil, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return nil, newError(KindValidation, "invalid "+name)
	}
	return &b, nil
}

func queryDate(c echo.Context, name string) (Date, error) {
	v := c.QueryParam(name)
	if v == "" {
		return Date{}, newError(KindValidation, name+" is required")
	}
	d, err := ParseDate(v)
	if err != nil {
		return Date{}, newError(KindValidation, err.Error())
	}
	return d, nil
}

// ownStudentID returns the caller's student_id claim or a 403.
func ownStudentID(c echo.Context) (uuid.UUID, error) {
	sid, err := uuid.Parse(auth.StudentIDFromContext(c.Request().Context()))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusForbidden, "student identity missing from token")
	}
	return sid, nil
}

// -- Assignment Handlers --

func (h *Handler) CreateAssignment(c echo.Context) error {
	var req CreateRequest
	if err := c.Bind(&req); err != nil {
		return h.writeError(c, newError(KindValidation, "malformed request body"))
	}
	res, err := h.svc.Create(c.Request().Context(), &req)
	if err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(http.StatusCreated, res)
}

func (h *Handler) GetAssignment(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return h.writeError(c, err)
	}
	d, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(http.StatusOK, d)
}

func (h *Handler) UpdateAssignment(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return h.writeError(c, err)
	}
	var patch UpdatePatch
	if err := c.Bind(&patch); err != nil {
		return h.writeError(c, newError(KindValidation, "malformed request body"))
	}
	a, err := h.svc.Update(c.Request().Context(), id, &patch)
	if err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) DeleteAssignment(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return h.writeError(c, err)
	}
	if err := h.svc.Delete(c.Request().Context(), id); err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]string{"deleted": id.String()})
}

func (h *Handler) ListRoster(c echo.Context) error {
	hasJustification, err := queryBool(c, "hasJustification")
	if err != nil {
		return h.writeError(c, err)
	}
	f := RosterFilter{
		Search:           c.QueryParam("search"),
		State:            strings.ToLower(c.QueryParam("state")),
		Year:             c.QueryParam("year"),
		HasJustification: hasJustification,
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListRoster(c.Request().Context(), f, pg)
	if err != nil {
		return h.writeError(c, err)
	}
	if items == nil {
		items = []*RosterEntry{}
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg))
}

func (h *Handler) ListAgenda(c echo.Context) error {
	month, err := queryInt(c, "month")
	if err != nil {
		return h.writeError(c, err)
	}
	year, err := queryInt(c, "year")
	if err != nil {
		return h.writeError(c, err)
	}
	f := AgendaFilter{Search: c.QueryParam("search"), Month: month, Year: year}
	if auth.StudentOnly(c.Request().Context()) {
		sid, err := ownStudentID(c)
		if err != nil {
			return err
		}
		f.StudentID = &sid
	}

	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListAgenda(c.Request().Context(), f, pg)
	if err != nil {
		return h.writeError(c, err)
	}
	if items == nil {
		items = []*AssignmentDetail{}
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg))
}

func (h *Handler) ListByInstitution(c echo.Context) error {
	month, err := queryInt(c, "month")
	if err != nil {
		return h.writeError(c, err)
	}
	year, err := queryInt(c, "year")
	if err != nil {
		return h.writeError(c, err)
	}
	f := InstitutionFilter{Search: c.QueryParam("search"), Month: month, Year: year}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListByInstitution(c.Request().Context(), f, pg)
	if err != nil {
		return h.writeError(c, err)
	}
	if items == nil {
		items = []*InstitutionAgenda{}
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg))
}

func (h *Handler) ListActiveByStudent(c echo.Context) error {
	studentID, err := parseID(c, "student_id")
	if err != nil {
		return h.writeError(c, err)
	}
	if auth.StudentOnly(c.Request().Context()) {
		own, err := ownStudentID(c)
		if err != nil {
			return err
		}
		if own != studentID {
			return echo.NewHTTPError(http.StatusForbidden, "students may only view their own assignments")
		}
	}
	items, err := h.svc.ListActiveByStudent(c.Request().Context(), studentID)
	if err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) AvailableSlots(c echo.Context) error {
	institutionID, err := uuid.Parse(c.QueryParam("institution_id"))
	if err != nil {
		return h.writeError(c, newError(KindValidation, "invalid institution_id"))
	}
	start, err := queryDate(c, "start_date")
	if err != nil {
		return h.writeError(c, err)
	}
	end, err := queryDate(c, "end_date")
	if err != nil {
		return h.writeError(c, err)
	}
	report, err := h.svc.AvailableSlots(c.Request().Context(), institutionID, start, end)
	if err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(http.StatusOK, report)
}
