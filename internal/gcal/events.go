package gcal

import "time"

// EventDateTime is either a civil date (all-day) or a zoned timestamp.
// Exactly one of Date or DateTime is set.
type EventDateTime struct {
	Date     string `json:"date,omitempty"`     // 2006-01-02
	DateTime string `json:"dateTime,omitempty"` // RFC3339
	TimeZone string `json:"timeZone,omitempty"`
}

// ExtendedProperties carries the private metadata map. The private map is
// the correlation channel between tracker items and events; it is never
// rendered in the visible summary or description.
type ExtendedProperties struct {
	Private map[string]string `json:"private,omitempty"`
}

// EventBody is the writable representation sent on insert and patch. The
// engine always supplies the full body, so a patch rewrites every field
// here including the private metadata.
type EventBody struct {
	Summary            string              `json:"summary"`
	Description        string              `json:"description,omitempty"`
	Start              *EventDateTime      `json:"start"`
	End                *EventDateTime      `json:"end"`
	ExtendedProperties *ExtendedProperties `json:"extendedProperties,omitempty"`
}

// Event is a calendar event as returned by the store.
type Event struct {
	ID     string `json:"id"`
	Status string `json:"status,omitempty"`
	EventBody
}

// SourceID returns the correlation key stored in the event's private
// metadata, or "" if the event was not created by this agent.
func (e *Event) SourceID() string {
	if e.ExtendedProperties == nil {
		return ""
	}
	return e.ExtendedProperties.Private["source_id"]
}

// ListQuery bounds an events list call to a time window and a private
// property filter.
type ListQuery struct {
	CalendarID      string
	TimeMin         time.Time
	TimeMax         time.Time
	PrivateProperty string // "key=value" equality filter on private metadata
	PageToken       string
	MaxResults      int
}

// EventPage is one page of list results.
type EventPage struct {
	Items         []Event `json:"items"`
	NextPageToken string  `json:"nextPageToken,omitempty"`
}
