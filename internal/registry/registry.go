// Package registry dispatches one monitored item to every configured
// marketplace adapter and collects the per-platform outcomes. Adapter
// invocations are isolated: one adapter's failure, panic, or timeout never
// blocks or aborts the others.
package registry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/dakiwatch/dakiwatch/internal/adapter"
	"github.com/dakiwatch/dakiwatch/internal/model"
)

// Outcome is either a ScrapeResult or an AdapterFailure, never both.
type Outcome struct {
	Result  *model.ScrapeResult
	Failure *model.AdapterFailure
}

// Registry holds the configured adapters and the per-invocation wall-clock
// timeout.
type Registry struct {
	adapters []adapter.Adapter
	timeout  time.Duration
}

// New creates a Registry. timeout bounds each adapter invocation.
func New(timeout time.Duration, adapters ...adapter.Adapter) *Registry {
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &Registry{adapters: adapters, timeout: timeout}
}

// Platforms lists the platforms of the configured adapters, in order.
func (r *Registry) Platforms() []model.Platform {
	out := make([]model.Platform, 0, len(r.adapters))
	for _, a := range r.adapters {
		out = append(out, a.Platform())
	}
	return out
}

// Dispatch fans item out to every adapter concurrently and returns one
// outcome per platform. Timeouts surface as AdapterFailure{Timeout}.
func (r *Registry) Dispatch(ctx context.Context, item model.MonitoredItem) map[model.Platform]Outcome {
	var (
		mu       sync.Mutex
		outcomes = make(map[model.Platform]Outcome, len(r.adapters))
	)

	var g errgroup.Group
	for _, a := range r.adapters {
		g.Go(func() error {
			outcome := r.invoke(ctx, a, item)
			mu.Lock()
			outcomes[a.Platform()] = outcome
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	return outcomes
}

// invoke runs one adapter under the registry timeout, converting panics
// and deadline hits into failures.
func (r *Registry) invoke(ctx context.Context, a adapter.Adapter, item model.MonitoredItem) (outcome Outcome) {
	cctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	defer func() {
		if rec := recover(); rec != nil {
			zap.L().Error("adapter panicked",
				zap.String("platform", string(a.Platform())),
				zap.String("item", item.ID),
				zap.Any("panic", rec),
			)
			outcome = Outcome{Failure: model.NewFailure(
				a.Platform(), item.ID, model.FailureUnknown, fmt.Sprintf("panic: %v", rec),
			)}
		}
	}()

	res, err := a.Scrape(cctx, item)
	if err != nil {
		f, ok := model.AsFailure(err)
		if !ok {
			f = model.NewFailure(a.Platform(), item.ID, model.FailureUnknown, err.Error())
		}
		// An invocation cut off by the registry deadline is a timeout no
		// matter how the adapter dressed the underlying error.
		if cctx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
			f = model.NewFailure(a.Platform(), item.ID, model.FailureTimeout, f.Message)
		}
		return Outcome{Failure: f}
	}
	return Outcome{Result: res}
}
