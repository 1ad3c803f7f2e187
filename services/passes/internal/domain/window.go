package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

const DateLayout = "2006-01-02"

// Window is an inclusive range of calendar days. Both bounds are dates at
// UTC midnight and are always populated.
type Window struct {
	From time.Time
	To   time.Time
}

type WindowState int

const (
	WindowOK WindowState = iota
	WindowNotYetValid
	WindowExpired
)

// Day truncates t to its calendar date in loc, returned at UTC midnight so
// it compares directly against Window bounds.
func Day(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func NewWindow(from, to time.Time) (Window, error) {
	w := Window{From: Day(from, time.UTC), To: Day(to, time.UTC)}
	if w.To.Before(w.From) {
		return Window{}, &ValidationError{Field: "date_of_visit_to", Message: "must not be before date_of_visit_from"}
	}
	return w, nil
}

// ParseWindow parses YYYY-MM-DD bounds.
func ParseWindow(from, to string) (Window, error) {
	f, err := time.Parse(DateLayout, from)
	if err != nil {
		return Window{}, &ValidationError{Field: "date_of_visit_from", Message: "must be a date in YYYY-MM-DD form"}
	}
	t, err := time.Parse(DateLayout, to)
	if err != nil {
		return Window{}, &ValidationError{Field: "date_of_visit_to", Message: "must be a date in YYYY-MM-DD form"}
	}
	return NewWindow(f, t)
}

// Check places day (already truncated with Day) relative to the window.
func (w Window) Check(day time.Time) WindowState {
	switch {
	case day.Before(w.From):
		return WindowNotYetValid
	case day.After(w.To):
		return WindowExpired
	default:
		return WindowOK
	}
}

func (w Window) Contains(day time.Time) bool {
	return w.Check(day) == WindowOK
}

func (w Window) String() string {
	return fmt.Sprintf("%s..%s", w.From.Format(DateLayout), w.To.Format(DateLayout))
}

type windowJSON struct {
	From string `json:"from"`
	To   string `json:"to"`
}

func (w Window) MarshalJSON() ([]byte, error) {
	return json.Marshal(windowJSON{From: w.From.Format(DateLayout), To: w.To.Format(DateLayout)})
}

func (w *Window) UnmarshalJSON(b []byte) error {
	var raw windowJSON
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	parsed, err := ParseWindow(raw.From, raw.To)
	if err != nil {
		return err
	}
	*w = parsed
	return nil
}
