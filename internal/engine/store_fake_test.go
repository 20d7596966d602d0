package engine

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	cserrors "github.com/p-blackswan/calsync-agent/internal/errors"
	"github.com/p-blackswan/calsync-agent/internal/gcal"
)

// fakeStore is an in-memory EventStore mimicking the calendar backend:
// windowed list with private-property filtering, pagination, store-assigned
// IDs, and programmable failures.
type fakeStore struct {
	mu       sync.Mutex
	events   []*gcal.Event // store order
	nextID   int
	pageSize int // 0 = everything in one page

	failList      bool
	emptyPages    int             // serve this many empty pages (with a token) first
	failInsertFor map[string]bool // by source_id
	failPatchFor  map[string]bool // by source_id

	listCalls   int
	insertCalls int
	patchCalls  int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		failInsertFor: make(map[string]bool),
		failPatchFor:  make(map[string]bool),
	}
}

func (f *fakeStore) eventStart(ev *gcal.Event) time.Time {
	if ev.Start == nil {
		return time.Time{}
	}
	if ev.Start.DateTime != "" {
		t, _ := time.Parse(time.RFC3339, ev.Start.DateTime)
		return t
	}
	t, _ := time.Parse("2006-01-02", ev.Start.Date)
	return t
}

func (f *fakeStore) ListEvents(_ context.Context, q gcal.ListQuery) (*gcal.EventPage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalls++

	if f.failList {
		return nil, cserrors.NewAPIError("gcal", 503, "backend unavailable")
	}

	if f.listCalls <= f.emptyPages {
		return &gcal.EventPage{NextPageToken: "page-0"}, nil
	}

	wantKey, wantVal, _ := strings.Cut(q.PrivateProperty, "=")
	var matches []gcal.Event
	for _, ev := range f.events {
		if q.PrivateProperty != "" {
			if ev.ExtendedProperties == nil || ev.ExtendedProperties.Private[wantKey] != wantVal {
				continue
			}
		}
		start := f.eventStart(ev)
		if start.Before(q.TimeMin) || start.After(q.TimeMax) {
			continue
		}
		matches = append(matches, *ev)
	}

	page := &gcal.EventPage{}
	offset := 0
	if q.PageToken != "" {
		fmt.Sscanf(q.PageToken, "page-%d", &offset)
	}
	end := len(matches)
	if f.pageSize > 0 && offset+f.pageSize < end {
		end = offset + f.pageSize
		page.NextPageToken = fmt.Sprintf("page-%d", end)
	}
	if offset < len(matches) {
		page.Items = matches[offset:end]
	}
	return page, nil
}

func (f *fakeStore) Insert(_ context.Context, _ string, body *gcal.EventBody) (*gcal.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.insertCalls++

	if body.ExtendedProperties != nil && f.failInsertFor[body.ExtendedProperties.Private["source_id"]] {
		return nil, cserrors.NewAPIError("gcal", 500, "insert exploded")
	}

	f.nextID++
	ev := &gcal.Event{ID: fmt.Sprintf("ev-%d", f.nextID), EventBody: *body}
	f.events = append(f.events, ev)
	return ev, nil
}

func (f *fakeStore) Patch(_ context.Context, _ string, eventID string, body *gcal.EventBody) (*gcal.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.patchCalls++

	if body.ExtendedProperties != nil && f.failPatchFor[body.ExtendedProperties.Private["source_id"]] {
		return nil, cserrors.NewAPIError("gcal", 500, "patch exploded")
	}

	for _, ev := range f.events {
		if ev.ID == eventID {
			ev.EventBody = *body
			return ev, nil
		}
	}
	return nil, cserrors.NewAPIError("gcal", 404, "event not found")
}

// seed inserts an event directly, bypassing call counters.
func (f *fakeStore) seed(sourceID, startDate string) *gcal.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	ev := &gcal.Event{
		ID: fmt.Sprintf("ev-%d", f.nextID),
		EventBody: gcal.EventBody{
			Start: &gcal.EventDateTime{Date: startDate},
			End:   &gcal.EventDateTime{Date: startDate},
			ExtendedProperties: &gcal.ExtendedProperties{
				Private: map[string]string{"source_id": sourceID},
			},
		},
	}
	f.events = append(f.events, ev)
	return ev
}
