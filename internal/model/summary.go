package model

import "time"

// Tally counts per-platform outcomes within one cycle.
type Tally struct {
	OK       int `json:"ok"`
	NotFound int `json:"not_found"`
	Failures int `json:"failures"`
}

// CycleSummary is the user-visible outcome of one full polling cycle.
// Partial adapter failures live here; they never fail the cycle itself.
type CycleSummary struct {
	RunID        string                `json:"run_id"`
	StartedAt    time.Time             `json:"started_at"`
	CompletedAt  time.Time             `json:"completed_at"`
	ItemsChecked int                   `json:"items_checked"`
	EventCount   int                   `json:"event_count"`
	Tallies      map[Platform]*Tally   `json:"tallies"`
	Failures     []AdapterFailure      `json:"failures,omitempty"`
}

// NewCycleSummary returns a summary with tallies for the given platforms.
func NewCycleSummary(runID string, platforms []Platform) *CycleSummary {
	tallies := make(map[Platform]*Tally, len(platforms))
	for _, p := range platforms {
		tallies[p] = &Tally{}
	}
	return &CycleSummary{
		RunID:     runID,
		StartedAt: time.Now().UTC(),
		Tallies:   tallies,
	}
}

// tally returns the counter bucket for p, creating it when a platform was
// not declared up front.
func (s *CycleSummary) tally(p Platform) *Tally {
	t, ok := s.Tallies[p]
	if !ok {
		t = &Tally{}
		s.Tallies[p] = t
	}
	return t
}

// RecordResult counts one successful scrape.
func (s *CycleSummary) RecordResult(r ScrapeResult) {
	t := s.tally(r.Platform)
	if r.Status == StatusNotFound {
		t.NotFound++
		return
	}
	t.OK++
}

// RecordFailure counts one adapter failure.
func (s *CycleSummary) RecordFailure(f AdapterFailure) {
	s.tally(f.Platform).Failures++
	s.Failures = append(s.Failures, f)
}
