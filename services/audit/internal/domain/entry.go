package domain

import (
	"encoding/json"
	"errors"
	"time"
)

var (
	ErrForbidden = errors.New("forbidden")
	ErrStore     = errors.New("store unavailable")
)

// Entry is one recorded domain event. SubjectID is the visitor, event
// request or staff user the event is about.
type Entry struct {
	ID         int64           `json:"id"`
	Subject    string          `json:"subject"`
	SubjectID  string          `json:"subject_id"`
	Actor      string          `json:"actor,omitempty"`
	Summary    string          `json:"summary"`
	Payload    json.RawMessage `json:"payload"`
	OccurredAt time.Time       `json:"occurred_at"`
}

type Filter struct {
	Subject   string
	SubjectID string
}
