// Package notification fans operator alerts out to e-mail, NATS and the
// websocket hub, and keeps a short delivery history for the coordinators.
package notification

import (
	"fmt"
	"strings"
	"sync"
)

// TemplateExceptionalAssignment announces an assignment created or flagged as
// exceptional.
const TemplateExceptionalAssignment = "exceptional-assignment"

// Template is a reusable alert text with {{key}} placeholders.
type Template struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// TemplateEngine manages alert templates and renders them with data.
type TemplateEngine struct {
	mu        sync.RWMutex
	templates map[string]*Template
}

// NewTemplateEngine creates a TemplateEngine with the built-in templates pre-registered.
func NewTemplateEngine() *TemplateEngine {
	e := &TemplateEngine{
		templates: make(map[string]*Template),
	}
	e.RegisterTemplate(Template{
		ID:      TemplateExceptionalAssignment,
		Name:    "Exceptional assignment",
		Subject: "Asignación excepcional: {{student_name}} en {{institution_name}}",
		Body: "Se registró una asignación excepcional.\n\n" +
			"Estudiante: {{student_name}} ({{student_code}})\n" +
			"Institución: {{institution_name}}\n" +
			"Receptor: {{receptor_name}}\n" +
			"Periodo: {{start_date}} a {{end_date}}\n" +
			"Justificación: {{justification}}\n\n" +
			"Asignación {{assignment_id}}",
	})
	return e
}

// RegisterTemplate adds or replaces a template in the engine.
func (e *TemplateEngine) RegisterTemplate(t Template) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.templates[t.ID] = &t
}

// Render looks up a template by ID and performs {{key}} replacement. Keys
// present in the template but absent from data are left as-is.
func (e *TemplateEngine) Render(templateID string, data map[string]string) (subject, body string, err error) {
	e.mu.RLock()
	t, ok := e.templates[templateID]
	e.mu.RUnlock()
	if !ok {
		return "", "", fmt.Errorf("template %q not found", templateID)
	}

	subject = t.Subject
	body = t.Body
	for k, v := range data {
		placeholder := "{{" + k + "}}"
		subject = strings.ReplaceAll(subject, placeholder, v)
		body = strings.ReplaceAll(body, placeholder, v)
	}
	return subject, body, nil
}
