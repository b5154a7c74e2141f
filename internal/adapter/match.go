package adapter

import (
	"sort"
	"strings"
	"time"

	"github.com/dakiwatch/dakiwatch/internal/model"
)

// candidate is one search hit before its detail page is opened.
type candidate struct {
	Title    string
	URL      string
	ListedAt time.Time
}

// matchScore rates how well a listing title matches the monitored item:
// keyword substring overlap first, then character/series/circle presence.
func matchScore(title string, item model.MonitoredItem) int {
	score := 0
	for _, kw := range item.SearchKeywords {
		if kw != "" && strings.Contains(title, kw) {
			score += 2
		}
	}
	for _, name := range []string{item.Character, item.Series, item.Circle, item.Artist} {
		if name != "" && strings.Contains(title, name) {
			score++
		}
	}
	return score
}

// isExactMatch mirrors the strict matching rule: the title must carry both
// the character and the circle when they are configured. Anything weaker
// is a fuzzy match and flagged as such on the result.
func isExactMatch(title string, item model.MonitoredItem) bool {
	if item.Character != "" && !strings.Contains(title, item.Character) {
		return false
	}
	if item.Circle != "" && !strings.Contains(title, item.Circle) {
		return false
	}
	return true
}

// selectBest picks the candidate with the highest keyword/title overlap,
// breaking ties by most recent listing date, then by lexicographically
// smallest URL so selection is deterministic for fixed inputs. Candidates
// that match no keyword and no item name are discarded.
func selectBest(cands []candidate, item model.MonitoredItem) (candidate, bool) {
	matched := make([]candidate, 0, len(cands))
	for _, c := range cands {
		if matchScore(c.Title, item) > 0 {
			matched = append(matched, c)
		}
	}
	if len(matched) == 0 {
		return candidate{}, false
	}

	sort.SliceStable(matched, func(i, j int) bool {
		si, sj := matchScore(matched[i].Title, item), matchScore(matched[j].Title, item)
		if si != sj {
			return si > sj
		}
		if !matched[i].ListedAt.Equal(matched[j].ListedAt) {
			return matched[i].ListedAt.After(matched[j].ListedAt)
		}
		return matched[i].URL < matched[j].URL
	})
	return matched[0], true
}
