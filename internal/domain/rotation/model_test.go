package rotation

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"
)

func TestDate_JSON(t *testing.T) {
	b, err := json.Marshal(struct {
		Start Date  `json:"start"`
		Empty Date  `json:"empty"`
		Ptr   *Date `json:"ptr,omitempty"`
	}{Start: june(3)})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(b) != `{"start":"2024-06-03","empty":null}` {
		t.Errorf("unexpected JSON: %s", b)
	}

	var out struct {
		A Date `json:"a"`
		B Date `json:"b"`
		C Date `json:"c"`
	}
	if err := json.Unmarshal([]byte(`{"a":"2024-06-03","b":"2024-06-03T23:30:00-04:00","c":null}`), &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !out.A.Equal(june(3).Time) {
		t.Errorf("expected 2024-06-03, got %v", out.A)
	}
	if !out.B.Equal(june(4).Time) {
		t.Errorf("expected timestamp truncated to its UTC day, got %v", out.B)
	}
	if !out.C.IsZero() {
		t.Errorf("expected zero date for null, got %v", out.C)
	}

	if err := json.Unmarshal([]byte(`{"a":"03/06/2024"}`), &out); err == nil {
		t.Error("expected error for non ISO date")
	}
}

func TestParseDate(t *testing.T) {
	got, err := ParseDate(" 2024-02-29 ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.String() != "2024-02-29" {
		t.Errorf("unexpected date %s", got)
	}
	if _, err := ParseDate("2023-02-29"); err == nil {
		t.Error("expected error for invalid calendar day")
	}
}

func TestError_Is(t *testing.T) {
	err := fmt.Errorf("create: %w", &Error{Kind: KindStudentOverlap, Message: "custom"})
	if !errors.Is(err, ErrStudentOverlap) {
		t.Error("expected kind match through wrapping")
	}
	if errors.Is(err, ErrReceptorOverlap) {
		t.Error("expected different kinds not to match")
	}
	if KindOf(err) != KindStudentOverlap {
		t.Errorf("unexpected kind %s", KindOf(err))
	}
	if KindOf(errors.New("boom")) != KindInternal {
		t.Error("expected plain errors to be Internal")
	}
}

func TestCreateRequest_Validate(t *testing.T) {
	var req CreateRequest
	err := req.Validate()
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	for _, field := range []string{"student_id", "institution_id", "receptor_id", "start_date", "end_date"} {
		if !strings.Contains(err.Error(), field) {
			t.Errorf("expected %s to be reported missing", field)
		}
	}
}

func TestStudent_FullName(t *testing.T) {
	s := Student{FirstName: "Ana", LastName: "Rojas"}
	if s.FullName() != "Ana Rojas" {
		t.Errorf("unexpected name %q", s.FullName())
	}
}

func TestAssignment_Range(t *testing.T) {
	a := Assignment{StartDate: june(1), EndDate: june(30)}
	r := a.Range()
	if !r.Start.Equal(time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)) || !r.Valid() {
		t.Errorf("unexpected range %v", r)
	}
}
