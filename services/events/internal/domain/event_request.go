package domain

import (
	"errors"
	"fmt"
	"time"
)

type RequestStatus string

const (
	RequestPending  RequestStatus = "pending"
	RequestApproved RequestStatus = "approved"
	RequestRejected RequestStatus = "rejected"
)

func ParseRequestStatus(s string) (RequestStatus, bool) {
	switch RequestStatus(s) {
	case RequestPending, RequestApproved, RequestRejected:
		return RequestStatus(s), true
	default:
		return "", false
	}
}

const DateLayout = "2006-01-02"

// Date marshals as YYYY-MM-DD.
type Date struct {
	time.Time
}

func (d Date) MarshalJSON() ([]byte, error) {
	return []byte(`"` + d.Format(DateLayout) + `"`), nil
}

func (d *Date) UnmarshalJSON(b []byte) error {
	if string(b) == "null" || string(b) == `""` {
		d.Time = time.Time{}
		return nil
	}
	if len(b) < 2 || b[0] != '"' || b[len(b)-1] != '"' {
		return fmt.Errorf("date must be a string")
	}
	t, err := time.Parse(DateLayout, string(b[1:len(b)-1]))
	if err != nil {
		return fmt.Errorf("date must be YYYY-MM-DD")
	}
	d.Time = t
	return nil
}

type EventRequest struct {
	ID               string        `json:"id"`
	OrganiserID      int64         `json:"organiser_id"`
	Department       string        `json:"department"`
	EventName        string        `json:"event_name"`
	Description      string        `json:"event_description"`
	DateFrom         Date          `json:"date_from"`
	DateTo           Date          `json:"date_to"`
	ExpectedStudents int           `json:"expected_students"`
	MaxCapacity      int           `json:"max_capacity"`
	Status           RequestStatus `json:"status"`
	RejectionReason  *string       `json:"rejection_reason,omitempty"`
	DecidedBy        *string       `json:"approved_by,omitempty"`
	DecidedAt        *time.Time    `json:"decided_at,omitempty"`
	CreatedAt        time.Time     `json:"created_at"`
	UpdatedAt        time.Time     `json:"updated_at"`
}

type SubmitRequest struct {
	Department       string `json:"department"`
	EventName        string `json:"event_name"`
	Description      string `json:"event_description"`
	DateFrom         Date   `json:"date_from"`
	DateTo           Date   `json:"date_to"`
	ExpectedStudents int    `json:"expected_students"`
	MaxCapacity      int    `json:"max_capacity"`
}

type Decision struct {
	Status          string `json:"status"`
	RejectionReason string `json:"rejection_reason"`
}

var (
	ErrNotFound     = errors.New("event request not found")
	ErrStore        = errors.New("store unavailable")
	ErrAlreadyFinal = errors.New("event request already decided")
	ErrForbidden    = errors.New("forbidden")
)

type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}
