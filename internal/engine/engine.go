package engine

import (
	"context"
	"hash/fnv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/p-blackswan/calsync-agent/internal/metrics"
)

// Source yields the normalized item records to reconcile. A fetch failure is
// reported by the caller as zero items for the run, not as an aborted run.
type Source interface {
	ListItems(ctx context.Context) ([]Item, error)
}

// Outcome is the terminal state of one item within a run.
type Outcome string

const (
	OutcomeSynced  Outcome = "synced"
	OutcomeSkipped Outcome = "skipped"
	OutcomeFailed  Outcome = "failed"
)

// ItemResult records what happened to a single item.
type ItemResult struct {
	ItemID  string
	Kind    Kind
	Outcome Outcome
	EventID string // store-assigned, set when synced
	Reason  string // diagnostic for skip/fail
}

// Summary aggregates one reconciliation run. Synced+Skipped+Failed == Total.
type Summary struct {
	RunID    string
	Synced   int
	Skipped  int
	Failed   int
	Total    int
	Duration time.Duration
	Results  []ItemResult
}

// Config holds the engine's run parameters, fixed for the process lifetime.
type Config struct {
	CalendarID string
	Timezone   string // display zone for timed events
	WindowDays int    // correlation window half-width
	Workers    int
}

// Engine drives resolve → materialize → correlate → upsert for each item,
// isolating failures so one bad item never aborts the batch.
type Engine struct {
	store   EventStore
	cfg     Config
	metrics *metrics.Metrics // optional
	logger  zerolog.Logger
}

// NewEngine creates a reconciliation engine. m may be nil.
func NewEngine(store EventStore, cfg Config, m *metrics.Metrics, logger zerolog.Logger) *Engine {
	if cfg.WindowDays <= 0 {
		cfg.WindowDays = 365
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.CalendarID == "" {
		cfg.CalendarID = "primary"
	}
	return &Engine{
		store:   store,
		cfg:     cfg,
		metrics: m,
		logger:  logger.With().Str("component", "engine").Logger(),
	}
}

// Run reconciles all items against the calendar and returns the tally.
// Items are independent; processing order does not affect the result.
func (e *Engine) Run(ctx context.Context, items []Item) Summary {
	runID := uuid.New().String()
	log := e.logger.With().Str("run_id", runID).Logger()
	start := time.Now()

	log.Info().Int("items", len(items)).Int("workers", e.cfg.Workers).Msg("reconciliation run started")

	results := make([]ItemResult, len(items))
	if e.cfg.Workers == 1 {
		for i, item := range items {
			results[i] = e.processItem(ctx, log, item)
		}
	} else {
		e.runParallel(ctx, log, items, results)
	}

	summary := Summary{
		RunID:    runID,
		Total:    len(items),
		Duration: time.Since(start),
		Results:  results,
	}
	for _, r := range results {
		switch r.Outcome {
		case OutcomeSynced:
			summary.Synced++
		case OutcomeSkipped:
			summary.Skipped++
		case OutcomeFailed:
			summary.Failed++
		}
	}

	if e.metrics != nil {
		e.metrics.ObserveRun(summary.Duration.Seconds())
	}

	log.Info().
		Int("synced", summary.Synced).
		Int("skipped", summary.Skipped).
		Int("failed", summary.Failed).
		Dur("duration", summary.Duration).
		Msg("reconciliation run finished")

	return summary
}

// runParallel fans items out across a bounded worker pool. Items are
// partitioned by hash of their ID, so the search-then-write sequence for a
// given source_id is never interleaved with another worker's operations on
// the same ID.
func (e *Engine) runParallel(ctx context.Context, log zerolog.Logger, items []Item, results []ItemResult) {
	shards := make([][]int, e.cfg.Workers)
	for i, item := range items {
		h := fnv.New32a()
		h.Write([]byte(item.ID))
		shard := int(h.Sum32() % uint32(e.cfg.Workers))
		shards[shard] = append(shards[shard], i)
	}

	var wg sync.WaitGroup
	for w, shard := range shards {
		if len(shard) == 0 {
			continue
		}
		wg.Add(1)
		go func(worker int, indices []int) {
			defer wg.Done()
			wlog := log.With().Int("worker", worker).Logger()
			for _, i := range indices {
				results[i] = e.processItem(ctx, wlog, items[i])
			}
		}(w, shard)
	}
	wg.Wait()
}

func (e *Engine) processItem(ctx context.Context, log zerolog.Logger, item Item) ItemResult {
	result := ItemResult{ItemID: item.ID, Kind: item.Kind}

	resolved, err := Resolve(item)
	if err != nil {
		result.Outcome = OutcomeFailed
		result.Reason = err.Error()
		log.Warn().Str("item_id", item.ID).Str("kind", string(item.Kind)).Err(err).Msg("invalid date field")
		e.record(item, OutcomeFailed)
		return result
	}
	if resolved == nil {
		result.Outcome = OutcomeSkipped
		result.Reason = "no date-bearing field"
		log.Debug().Str("item_id", item.ID).Str("kind", string(item.Kind)).Msg("skipped: no date present")
		e.record(item, OutcomeSkipped)
		return result
	}

	body := Materialize(item, resolved, e.cfg.Timezone)

	existing, err := FindEvent(ctx, e.store, e.cfg.CalendarID, item.ID, resolved, e.cfg.WindowDays)
	if err != nil {
		e.recordStoreOp("list", err)
		result.Outcome = OutcomeFailed
		result.Reason = err.Error()
		log.Error().Str("item_id", item.ID).Err(err).Msg("correlation search failed")
		e.record(item, OutcomeFailed)
		return result
	}
	e.recordStoreOp("list", nil)

	if existing != nil {
		updated, err := e.store.Patch(ctx, e.cfg.CalendarID, existing.ID, body)
		e.recordStoreOp("patch", err)
		if err != nil {
			result.Outcome = OutcomeFailed
			result.Reason = err.Error()
			log.Error().Str("item_id", item.ID).Str("event_id", existing.ID).Err(err).Msg("patch failed")
			e.record(item, OutcomeFailed)
			return result
		}
		result.EventID = updated.ID
		log.Info().
			Str("item_id", item.ID).
			Str("event_id", updated.ID).
			Str("date_field", resolved.Field).
			Msg("event updated")
	} else {
		created, err := e.store.Insert(ctx, e.cfg.CalendarID, body)
		e.recordStoreOp("insert", err)
		if err != nil {
			result.Outcome = OutcomeFailed
			result.Reason = err.Error()
			log.Error().Str("item_id", item.ID).Err(err).Msg("insert failed")
			e.record(item, OutcomeFailed)
			return result
		}
		result.EventID = created.ID
		log.Info().
			Str("item_id", item.ID).
			Str("event_id", created.ID).
			Str("date_field", resolved.Field).
			Msg("event created")
	}

	result.Outcome = OutcomeSynced
	e.record(item, OutcomeSynced)
	return result
}

func (e *Engine) record(item Item, outcome Outcome) {
	if e.metrics != nil {
		e.metrics.RecordItem(string(item.Kind), string(outcome))
	}
}

func (e *Engine) recordStoreOp(op string, err error) {
	if e.metrics == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	e.metrics.RecordStoreOp(op, status)
}
