package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/p-blackswan/calsync-agent/internal/gcal"
)

// EventStore is the calendar surface the engine reads and mutates. The real
// implementation is internal/gcal; tests substitute an in-memory fake.
type EventStore interface {
	ListEvents(ctx context.Context, q gcal.ListQuery) (*gcal.EventPage, error)
	Insert(ctx context.Context, calendarID string, body *gcal.EventBody) (*gcal.Event, error)
	Patch(ctx context.Context, calendarID, eventID string, body *gcal.EventBody) (*gcal.Event, error)
}

// FindEvent locates the event previously created for sourceID, if any, by
// filtering on the source_id private property inside a bounded time window:
// windowDays on each side of the hint (or of now when there is no hint).
// Pages are walked until the first match, which wins; exhausting them means
// no event exists. A list failure is returned as-is — it must not be
// mistaken for "no match", or the caller would create a duplicate.
//
// If the item's date moved by more than windowDays since the last run the
// existing event can fall outside the window and be missed; the window
// centered on the newly resolved date keeps that rare.
func FindEvent(ctx context.Context, store EventStore, calendarID, sourceID string, hint *ResolvedDate, windowDays int) (*gcal.Event, error) {
	center := time.Now().UTC()
	if hint != nil {
		center = hint.WindowCenter()
	}

	q := gcal.ListQuery{
		CalendarID:      calendarID,
		TimeMin:         center.AddDate(0, 0, -windowDays),
		TimeMax:         center.AddDate(0, 0, windowDays),
		PrivateProperty: metaSourceID + "=" + sourceID,
	}

	for {
		page, err := store.ListEvents(ctx, q)
		if err != nil {
			return nil, fmt.Errorf("searching events for %s: %w", sourceID, err)
		}
		if len(page.Items) > 0 {
			return &page.Items[0], nil
		}
		if page.NextPageToken == "" {
			return nil, nil
		}
		q.PageToken = page.NextPageToken
	}
}
