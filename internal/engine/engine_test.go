package engine

import (
	"context"
	"fmt"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/p-blackswan/calsync-agent/internal/metrics"
)

func newTestEngine(store EventStore) *Engine {
	return NewEngine(store, Config{
		CalendarID: "primary",
		Timezone:   "UTC",
		WindowDays: 365,
		Workers:    1,
	}, nil, zerolog.Nop())
}

func TestRun_CreatesThenPatches(t *testing.T) {
	store := newFakeStore()
	eng := newTestEngine(store)
	items := []Item{{ID: "I1", Kind: KindIssue, Title: "Ship v2", URL: "https://x/I1", DueDate: "2024-03-01"}}

	// First run creates.
	summary := eng.Run(context.Background(), items)
	assert.Equal(t, 1, summary.Synced)
	assert.Equal(t, 1, summary.Total)
	require.Len(t, store.events, 1)
	created := store.events[0]
	assert.Equal(t, "2024-03-01", created.Start.Date)
	assert.Equal(t, "2024-03-02", created.End.Date)
	assert.Equal(t, "I1", created.SourceID())

	// Second run with identical input patches the same event; calendar
	// state is unchanged.
	summary = eng.Run(context.Background(), items)
	assert.Equal(t, 1, summary.Synced)
	require.Len(t, store.events, 1)
	assert.Equal(t, created.ID, store.events[0].ID)
	assert.Equal(t, 1, store.insertCalls)
	assert.Equal(t, 1, store.patchCalls)
	assert.Equal(t, "2024-03-01", store.events[0].Start.Date)
}

func TestRun_Idempotence_ManyRuns(t *testing.T) {
	store := newFakeStore()
	eng := newTestEngine(store)
	items := []Item{
		{ID: "I1", Kind: KindIssue, Title: "A", DueDate: "2024-03-01"},
		{ID: "P1", Kind: KindProject, Title: "B", DueDate: "2024-05-10T09:00:00Z"},
	}

	for i := 0; i < 4; i++ {
		summary := eng.Run(context.Background(), items)
		assert.Equal(t, 2, summary.Synced)
	}

	// At most one live event per source_id.
	assert.Len(t, store.events, 2)
	assert.Equal(t, 2, store.insertCalls)
}

func TestRun_DateChangeMovesEvent(t *testing.T) {
	store := newFakeStore()
	eng := newTestEngine(store)

	eng.Run(context.Background(), []Item{{ID: "I1", Kind: KindIssue, Title: "A", DueDate: "2024-03-01"}})
	eng.Run(context.Background(), []Item{{ID: "I1", Kind: KindIssue, Title: "A", DueDate: "2024-04-15"}})

	require.Len(t, store.events, 1)
	assert.Equal(t, "2024-04-15", store.events[0].Start.Date)
	assert.Equal(t, "2024-04-16", store.events[0].End.Date)
}

func TestRun_SkipNoDate(t *testing.T) {
	store := newFakeStore()
	eng := newTestEngine(store)

	summary := eng.Run(context.Background(), []Item{
		{ID: "I1", Kind: KindIssue, Title: "undated"},
	})
	assert.Equal(t, 1, summary.Skipped)
	assert.Equal(t, 0, summary.Failed)
	assert.Equal(t, 0, store.insertCalls)
	assert.Equal(t, 0, store.listCalls) // never reaches the correlator
	assert.Equal(t, "no date-bearing field", summary.Results[0].Reason)
}

func TestRun_MalformedDateFailsItem(t *testing.T) {
	store := newFakeStore()
	eng := newTestEngine(store)

	summary := eng.Run(context.Background(), []Item{
		{ID: "I1", Kind: KindIssue, Title: "bad", DueDate: "soonish"},
		{ID: "I2", Kind: KindIssue, Title: "good", DueDate: "2024-03-01"},
	})
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, 1, summary.Synced)
	assert.Contains(t, summary.Results[0].Reason, "soonish")
}

func TestRun_FailureIsolation(t *testing.T) {
	store := newFakeStore()
	store.failInsertFor["I3"] = true
	eng := newTestEngine(store)

	items := make([]Item, 5)
	for i := range items {
		items[i] = Item{ID: fmt.Sprintf("I%d", i+1), Kind: KindIssue, Title: "t", DueDate: "2024-03-01"}
	}

	summary := eng.Run(context.Background(), items)
	assert.Equal(t, 4, summary.Synced)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, 0, summary.Skipped)
	assert.Equal(t, 5, summary.Total)
	assert.Equal(t, summary.Total, summary.Synced+summary.Skipped+summary.Failed)
	assert.Len(t, store.events, 4)
}

func TestRun_PatchFailureIsolated(t *testing.T) {
	store := newFakeStore()
	store.seed("I1", "2024-03-01")
	store.failPatchFor["I1"] = true
	eng := newTestEngine(store)

	summary := eng.Run(context.Background(), []Item{
		{ID: "I1", Kind: KindIssue, Title: "stuck", DueDate: "2024-03-01"},
		{ID: "I2", Kind: KindIssue, Title: "fine", DueDate: "2024-03-01"},
	})
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, 1, summary.Synced)
	// The failed patch did not fall back to insert: no duplicate created.
	assert.Equal(t, 1, store.insertCalls)
}

func TestRun_SearchErrorDoesNotCreateDuplicate(t *testing.T) {
	store := newFakeStore()
	store.failList = true
	eng := newTestEngine(store)

	summary := eng.Run(context.Background(), []Item{
		{ID: "I1", Kind: KindIssue, Title: "t", DueDate: "2024-03-01"},
	})
	assert.Equal(t, 1, summary.Failed)
	// A search failure must not be treated as "no match".
	assert.Equal(t, 0, store.insertCalls)
}

func TestRun_MixedOutcomesTally(t *testing.T) {
	store := newFakeStore()
	store.failInsertFor["I2"] = true
	eng := newTestEngine(store)

	summary := eng.Run(context.Background(), []Item{
		{ID: "I1", Kind: KindIssue, Title: "ok", DueDate: "2024-03-01"},
		{ID: "I2", Kind: KindIssue, Title: "boom", DueDate: "2024-03-01"},
		{ID: "I3", Kind: KindIssue, Title: "undated"},
		{ID: "I4", Kind: KindProject, Title: "bad date", DueDate: "???"},
	})
	assert.Equal(t, 1, summary.Synced)
	assert.Equal(t, 2, summary.Failed) // I2 and I4
	assert.Equal(t, 1, summary.Skipped)
	assert.Equal(t, 4, summary.Total)
	assert.NotEmpty(t, summary.RunID)
}

func TestRun_EmptyInput(t *testing.T) {
	store := newFakeStore()
	eng := newTestEngine(store)

	summary := eng.Run(context.Background(), nil)
	assert.Equal(t, 0, summary.Total)
	assert.Equal(t, 0, summary.Synced+summary.Skipped+summary.Failed)
}

func TestRun_Parallel(t *testing.T) {
	store := newFakeStore()
	eng := NewEngine(store, Config{
		CalendarID: "primary",
		Timezone:   "UTC",
		WindowDays: 365,
		Workers:    4,
	}, metrics.New(), zerolog.Nop())

	items := make([]Item, 20)
	for i := range items {
		items[i] = Item{ID: fmt.Sprintf("I%d", i), Kind: KindIssue, Title: "t", DueDate: "2024-03-01"}
	}

	summary := eng.Run(context.Background(), items)
	assert.Equal(t, 20, summary.Synced)
	assert.Equal(t, 20, summary.Total)
	assert.Len(t, store.events, 20)

	// Re-run: same partitioning, still no duplicates.
	summary = eng.Run(context.Background(), items)
	assert.Equal(t, 20, summary.Synced)
	assert.Len(t, store.events, 20)
}

func TestRun_ResultsCarryItemIdentity(t *testing.T) {
	store := newFakeStore()
	eng := newTestEngine(store)

	summary := eng.Run(context.Background(), []Item{
		{ID: "I1", Kind: KindProject, Title: "t", DueDate: "2024-03-01"},
	})
	require.Len(t, summary.Results, 1)
	assert.Equal(t, "I1", summary.Results[0].ItemID)
	assert.Equal(t, KindProject, summary.Results[0].Kind)
	assert.NotEmpty(t, summary.Results[0].EventID)
}
