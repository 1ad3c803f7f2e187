package domain

// EventSummary is the slice of an event request that issuance needs.
type EventSummary struct {
	ID     string `json:"id"`
	Name   string `json:"event_name"`
	Status string `json:"status"`
	Window Window `json:"window"`
}

func (e *EventSummary) Approved() bool {
	return e.Status == "approved"
}
