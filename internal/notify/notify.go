// Package notify fans change events out to the configured channels once a
// cycle completes. Notifiers are best-effort: a channel failure is logged
// and the events stay queued for the next cycle.
package notify

import (
	"context"

	"go.uber.org/zap"

	"github.com/dakiwatch/dakiwatch/internal/model"
)

// Notifier delivers a batch of change events through one channel.
type Notifier interface {
	Name() string
	Notify(ctx context.Context, events []model.ChangeEvent, summary *model.CycleSummary) error
}

// LogNotifier writes every event to the structured log. It is always
// registered so a run with email disabled still surfaces changes.
type LogNotifier struct{}

func (LogNotifier) Name() string { return "log" }

func (LogNotifier) Notify(_ context.Context, events []model.ChangeEvent, summary *model.CycleSummary) error {
	for _, ev := range events {
		fields := []zap.Field{
			zap.String("kind", string(ev.Kind)),
			zap.String("item", ev.ItemID),
			zap.String("platform", string(ev.Platform)),
		}
		if delta := ev.PriceDelta(); delta != 0 {
			fields = append(fields, zap.Int64("price_delta", delta))
		}
		if ev.New != nil && ev.New.ListingURL != "" {
			fields = append(fields, zap.String("url", ev.New.ListingURL))
		}
		if ev.Entry != nil {
			fields = append(fields,
				zap.String("creator", ev.Entry.Creator),
				zap.String("title", ev.Entry.Title),
			)
		}
		zap.L().Info("change detected", fields...)
	}
	if summary != nil {
		zap.L().Info("cycle complete",
			zap.String("run_id", summary.RunID),
			zap.Int("items_checked", summary.ItemsChecked),
			zap.Int("events", summary.EventCount),
			zap.Int("failures", len(summary.Failures)),
		)
	}
	return nil
}
