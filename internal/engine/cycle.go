// Package engine runs full polling cycles: dispatch every monitored item
// to every adapter, diff the results against stored snapshots, persist
// snapshots and events, check creator feeds, and fan notifications out.
package engine

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/dakiwatch/dakiwatch/internal/detect"
	"github.com/dakiwatch/dakiwatch/internal/model"
	"github.com/dakiwatch/dakiwatch/internal/notify"
	"github.com/dakiwatch/dakiwatch/internal/registry"
	"github.com/dakiwatch/dakiwatch/internal/store"
)

// Dispatcher fans one item out to the adapters. Satisfied by
// registry.Registry; tests use fakes.
type Dispatcher interface {
	Platforms() []model.Platform
	Dispatch(ctx context.Context, item model.MonitoredItem) map[model.Platform]registry.Outcome
}

// CreatorChecker reports new creator announcements. Optional.
type CreatorChecker interface {
	Check(ctx context.Context) ([]model.ChangeEvent, error)
}

// Engine owns one cycle's orchestration.
type Engine struct {
	store         store.Store
	dispatcher    Dispatcher
	creators      CreatorChecker
	notifiers     []notify.Notifier
	maxConcurrent int
}

// Options configures an Engine.
type Options struct {
	Store         store.Store
	Dispatcher    Dispatcher
	Creators      CreatorChecker
	Notifiers     []notify.Notifier
	MaxConcurrent int
}

// New builds an Engine. MaxConcurrent bounds how many items are in flight
// at once; per-site pacing lives in the adapters themselves.
func New(opts Options) *Engine {
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = 3
	}
	return &Engine{
		store:         opts.Store,
		dispatcher:    opts.Dispatcher,
		creators:      opts.Creators,
		notifiers:     opts.Notifiers,
		maxConcurrent: opts.MaxConcurrent,
	}
}

// RunCycle polls every item across every platform once. Adapter failures
// are recorded in the summary and never touch snapshots; store errors
// abort the cycle. Events are persisted before any notification attempt,
// so a crashed notifier loses nothing.
func (e *Engine) RunCycle(ctx context.Context, items []model.MonitoredItem) (*model.CycleSummary, error) {
	runID, err := e.store.CreateCycle(ctx)
	if err != nil {
		return nil, err
	}
	summary := model.NewCycleSummary(runID, e.dispatcher.Platforms())
	zap.L().Info("cycle started",
		zap.String("run_id", runID),
		zap.Int("items", len(items)),
	)

	var (
		mu     sync.Mutex
		events []model.ChangeEvent
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.maxConcurrent)
	for _, item := range items {
		g.Go(func() error {
			outcomes := e.dispatcher.Dispatch(gctx, item)
			for platform, outcome := range outcomes {
				if outcome.Failure != nil {
					zap.L().Warn("adapter failure",
						zap.String("platform", string(platform)),
						zap.String("item", item.ID),
						zap.String("kind", string(outcome.Failure.Kind)),
						zap.String("message", outcome.Failure.Message),
					)
					mu.Lock()
					summary.RecordFailure(*outcome.Failure)
					mu.Unlock()
					continue
				}
				evs, err := e.applyResult(gctx, *outcome.Result)
				if err != nil {
					return err
				}
				mu.Lock()
				summary.RecordResult(*outcome.Result)
				events = append(events, evs...)
				mu.Unlock()
			}
			mu.Lock()
			summary.ItemsChecked++
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if e.creators != nil {
		creatorEvents, err := e.creators.Check(ctx)
		if err != nil {
			return nil, err
		}
		events = append(events, creatorEvents...)
	}

	if _, err := e.store.RecordEvents(ctx, events); err != nil {
		return nil, err
	}
	summary.EventCount = len(events)
	summary.CompletedAt = time.Now().UTC()

	e.notifyPending(ctx, summary)

	if err := e.store.CompleteCycle(ctx, *summary); err != nil {
		return nil, err
	}
	zap.L().Info("cycle finished",
		zap.String("run_id", runID),
		zap.Int("events", summary.EventCount),
		zap.Int("failures", len(summary.Failures)),
	)
	return summary, nil
}

// applyResult diffs one successful scrape against the stored snapshot,
// then writes the new snapshot. Detection runs against the pre-write
// snapshot; the write supersedes it afterwards.
func (e *Engine) applyResult(ctx context.Context, result model.ScrapeResult) ([]model.ChangeEvent, error) {
	prev, err := e.store.GetSnapshot(ctx, result.ItemID, result.Platform)
	if err != nil {
		return nil, err
	}
	events := detect.Detect(prev, result)

	if err := e.store.PutSnapshot(ctx, result); err != nil {
		return nil, err
	}
	if result.Price != nil {
		if err := e.store.AppendPrice(ctx, result.ItemID, result.Platform, *result.Price, result.ObservedAt); err != nil {
			return nil, err
		}
	}
	return events, nil
}

// notifyPending delivers every not-yet-notified event, including leftovers
// from earlier cycles whose delivery failed. Events are marked notified
// only when every channel succeeded, so a failed channel retries the
// whole batch next cycle.
func (e *Engine) notifyPending(ctx context.Context, summary *model.CycleSummary) {
	pending, err := e.store.ListUnnotifiedEvents(ctx)
	if err != nil {
		zap.L().Error("list pending events", zap.Error(err))
		return
	}
	if len(pending) == 0 || len(e.notifiers) == 0 {
		return
	}

	allOK := true
	for _, n := range e.notifiers {
		if err := n.Notify(ctx, pending, summary); err != nil {
			allOK = false
			zap.L().Error("notifier failed",
				zap.String("notifier", n.Name()),
				zap.Error(err),
			)
		}
	}
	if !allOK {
		return
	}

	ids := make([]string, 0, len(pending))
	for _, ev := range pending {
		ids = append(ids, ev.ID)
	}
	if err := e.store.MarkEventsNotified(ctx, ids); err != nil {
		zap.L().Error("mark events notified", zap.Error(err))
	}
}
