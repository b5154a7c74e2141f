package config

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/dakiwatch/dakiwatch/internal/model"
)

// CreatorFeed points at one creator's announcement feed page.
type CreatorFeed struct {
	Name     string `yaml:"name"`
	URL      string `yaml:"url"`
	Selector string `yaml:"selector,omitempty"`
}

// ItemsFile is the on-disk shape of items.yaml.
type ItemsFile struct {
	Items    []model.MonitoredItem `yaml:"items"`
	Creators []CreatorFeed         `yaml:"creators,omitempty"`
}

// LoadItems reads and validates the monitored-item configuration. Any
// validation error here is fatal: scraping never starts on a bad config.
func LoadItems(path string) (*ItemsFile, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "config: read items file %s", path)
	}

	var f ItemsFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, eris.Wrapf(err, "config: parse items file %s", path)
	}

	if len(f.Items) == 0 {
		return nil, eris.Errorf("config: items file %s defines no items", path)
	}

	seen := make(map[string]bool, len(f.Items))
	for _, item := range f.Items {
		if err := item.Validate(); err != nil {
			return nil, err
		}
		if seen[item.ID] {
			return nil, eris.Errorf("config: duplicate item id %q", item.ID)
		}
		seen[item.ID] = true
	}

	for i, c := range f.Creators {
		if c.Name == "" || c.URL == "" {
			return nil, eris.Errorf("config: creator feed %d missing name or url", i)
		}
	}

	return &f, nil
}
