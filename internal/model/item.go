// Package model defines the core types shared across the monitor:
// monitored items, scrape results, snapshots, change events, and the
// adapter failure taxonomy.
package model

import "github.com/rotisserie/eris"

// MonitoredItem is one collectible tracked by keyword search across all
// marketplaces. Loaded from items.yaml; immutable during a run.
type MonitoredItem struct {
	ID             string   `yaml:"id" json:"id"`
	Name           string   `yaml:"name" json:"name"`
	NativeName     string   `yaml:"native_name" json:"native_name"`
	Series         string   `yaml:"series" json:"series"`
	Character      string   `yaml:"character" json:"character"`
	Circle         string   `yaml:"circle" json:"circle"`
	Event          string   `yaml:"event,omitempty" json:"event,omitempty"`
	Artist         string   `yaml:"artist" json:"artist"`
	SearchKeywords []string `yaml:"search_keywords" json:"search_keywords"`
}

// Validate checks the per-item configuration invariants.
func (m MonitoredItem) Validate() error {
	if m.ID == "" {
		return eris.New("model: monitored item missing id")
	}
	if len(m.SearchKeywords) == 0 {
		return eris.Errorf("model: item %s has no search keywords", m.ID)
	}
	for _, kw := range m.SearchKeywords {
		if kw == "" {
			return eris.Errorf("model: item %s has an empty search keyword", m.ID)
		}
	}
	return nil
}
