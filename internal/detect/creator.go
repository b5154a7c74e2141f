package detect

import (
	"time"

	"github.com/dakiwatch/dakiwatch/internal/model"
)

// NewEntries applies the snapshot comparison discipline to a creator's
// announcement feed: every entry whose ID is absent from the seen set
// becomes a CreatorAnnouncement. Dedup is by entry ID, not content, so an
// edited announcement is not a new event.
func NewEntries(seen map[string]bool, entries []model.CreatorEntry) []model.ChangeEvent {
	var events []model.ChangeEvent
	for _, entry := range entries {
		if seen[entry.ID] {
			continue
		}
		occurred := entry.PublishedAt
		if occurred.IsZero() {
			occurred = time.Now().UTC()
		}
		events = append(events, model.ChangeEvent{
			Kind:       model.EventCreatorAnnouncement,
			Entry:      &entry,
			OccurredAt: occurred,
		})
	}
	return events
}
