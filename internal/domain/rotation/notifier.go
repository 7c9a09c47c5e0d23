package rotation

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/rotations/rotations/internal/platform/notification"
)

// AlertDispatcher is satisfied by *notification.Dispatcher.
type AlertDispatcher interface {
	Dispatch(ctx context.Context, templateID string, data map[string]string, recipients []string) (*notification.Alert, error)
}

// DetailReader loads an assignment with its display names.
type DetailReader interface {
	GetDetail(ctx context.Context, id uuid.UUID) (*AssignmentDetail, error)
}

// AlertNotifier sends the exceptional-assignment alert to the coordinators
// and, when known, to the receptor hosting the student.
type AlertNotifier struct {
	details    DetailReader
	dispatcher AlertDispatcher
	recipients []string
}

func NewAlertNotifier(details DetailReader, dispatcher AlertDispatcher, recipients ...string) *AlertNotifier {
	return &AlertNotifier{details: details, dispatcher: dispatcher, recipients: recipients}
}

func (n *AlertNotifier) Notify(ctx context.Context, assignmentID uuid.UUID) error {
	d, err := n.details.GetDetail(ctx, assignmentID)
	if err != nil {
		return fmt.Errorf("load assignment %s: %w", assignmentID, err)
	}

	recipients := append([]string{}, n.recipients...)
	if d.ReceptorEmail != nil && *d.ReceptorEmail != "" {
		recipients = append(recipients, *d.ReceptorEmail)
	}

	_, err = n.dispatcher.Dispatch(ctx, notification.TemplateExceptionalAssignment, alertData(d), recipients)
	return err
}

func alertData(d *AssignmentDetail) map[string]string {
	justification := ""
	if d.Justification != nil {
		justification = *d.Justification
	}
	return map[string]string{
		"assignment_id":    d.ID.String(),
		"student_name":     d.StudentName,
		"student_code":     d.StudentCode,
		"institution_name": d.InstitutionName,
		"receptor_name":    d.ReceptorName,
		"start_date":       d.StartDate.String(),
		"end_date":         d.EndDate.String(),
		"justification":    justification,
	}
}
