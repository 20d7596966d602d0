package engine

import (
	"fmt"
	"strings"
	"time"

	"github.com/p-blackswan/calsync-agent/internal/gcal"
)

// instantDuration is the fixed length of a timed event; the tracker only
// supplies a point in time.
const instantDuration = time.Hour

// Private metadata keys. source_id is the correlation key and must survive
// every patch unchanged.
const (
	metaSourceID    = "source_id"
	metaSourceKind  = "source_kind"
	metaSourceURL   = "source_url"
	metaContainerID = "container_id"
	metaParentID    = "parent_id"
	metaLabels      = "labels"
)

// Materialize converts an item and its resolved date into the full event
// body written to the store. Pure: no I/O, no mutation of the item.
// timezone is the display zone attached to timed events.
func Materialize(item Item, resolved *ResolvedDate, timezone string) *gcal.EventBody {
	body := &gcal.EventBody{
		Summary:     eventTitle(item),
		Description: eventDescription(item),
		ExtendedProperties: &gcal.ExtendedProperties{
			Private: privateMetadata(item),
		},
	}

	switch resolved.Kind {
	case DateInstant:
		start := resolved.Time.UTC()
		body.Start = &gcal.EventDateTime{DateTime: start.Format(time.RFC3339), TimeZone: timezone}
		body.End = &gcal.EventDateTime{DateTime: start.Add(instantDuration).Format(time.RFC3339), TimeZone: timezone}
	case DateDay:
		// All-day events use an exclusive end date.
		body.Start = &gcal.EventDateTime{Date: resolved.Time.Format("2006-01-02")}
		body.End = &gcal.EventDateTime{Date: resolved.Time.AddDate(0, 0, 1).Format("2006-01-02")}
	}

	return body
}

func eventTitle(item Item) string {
	title := item.Title
	if title == "" {
		title = "No title"
	}
	if item.Kind == KindIssue && item.Container != nil && item.Container.Name != "" {
		return "[" + item.Container.Name + "] " + title
	}
	return title
}

// eventDescription assembles the visible body from the item's free text and
// its relations. A section is omitted entirely when the relation is absent.
func eventDescription(item Item) string {
	var sections []string

	if item.Description != "" {
		sections = append(sections, item.Description)
	}

	if c := item.Container; c != nil && c.Name != "" {
		lines := []string{"Project: " + c.Name}
		if c.Description != "" {
			lines = append(lines, c.Description)
		}
		if c.URL != "" {
			lines = append(lines, c.URL)
		}
		sections = append(sections, strings.Join(lines, "\n"))
	}

	if p := item.Parent; p != nil && p.Title != "" {
		line := "Parent: " + p.Title
		if p.URL != "" {
			line += " (" + p.URL + ")"
		}
		sections = append(sections, line)
	}

	if len(item.Children) > 0 {
		lines := []string{"Sub-issues:"}
		for _, ch := range item.Children {
			line := "- " + ch.Title
			if ch.URL != "" {
				line += " (" + ch.URL + ")"
			}
			lines = append(lines, line)
		}
		sections = append(sections, strings.Join(lines, "\n"))
	}

	if len(item.Labels) > 0 {
		names := make([]string, 0, len(item.Labels))
		for _, l := range item.Labels {
			if l.Color != "" {
				names = append(names, fmt.Sprintf("%s (%s)", l.Name, l.Color))
			} else {
				names = append(names, l.Name)
			}
		}
		sections = append(sections, "Labels: "+strings.Join(names, ", "))
	}

	if item.URL != "" {
		sections = append(sections, item.URL)
	}

	return strings.Join(sections, "\n\n")
}

func privateMetadata(item Item) map[string]string {
	meta := map[string]string{
		metaSourceID:   item.ID,
		metaSourceKind: string(item.Kind),
	}
	if item.URL != "" {
		meta[metaSourceURL] = item.URL
	}
	if item.Container != nil && item.Container.ID != "" {
		meta[metaContainerID] = item.Container.ID
	}
	if item.Parent != nil && item.Parent.ID != "" {
		meta[metaParentID] = item.Parent.ID
	}
	if len(item.Labels) > 0 {
		names := make([]string, 0, len(item.Labels))
		for _, l := range item.Labels {
			names = append(names, l.Name)
		}
		meta[metaLabels] = strings.Join(names, ",")
	}
	return meta
}
