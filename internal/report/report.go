// Package report renders snapshots and change events into HTML and CSV
// documents for email bodies, file exports, and the HTTP report endpoint.
package report

import (
	"encoding/csv"
	"fmt"
	"html/template"
	"io"
	"sort"
	"strconv"
	"time"

	"github.com/rotisserie/eris"

	"github.com/dakiwatch/dakiwatch/internal/model"
)

// Report bundles everything one rendering needs.
type Report struct {
	GeneratedAt time.Time
	Snapshots   []model.Snapshot
	Events      []model.ChangeEvent
	Summary     *model.CycleSummary
}

// New builds a Report, grouping and ordering for stable output.
func New(snapshots []model.Snapshot, events []model.ChangeEvent, summary *model.CycleSummary) *Report {
	sort.Slice(snapshots, func(i, j int) bool {
		if snapshots[i].ItemID != snapshots[j].ItemID {
			return snapshots[i].ItemID < snapshots[j].ItemID
		}
		return snapshots[i].Platform < snapshots[j].Platform
	})
	sort.Slice(events, func(i, j int) bool {
		return events[i].OccurredAt.Before(events[j].OccurredAt)
	})
	return &Report{
		GeneratedAt: time.Now().UTC(),
		Snapshots:   snapshots,
		Events:      events,
		Summary:     summary,
	}
}

var htmlTmpl = template.Must(template.New("report").Funcs(template.FuncMap{
	"yen":   formatYen,
	"event": describeEvent,
}).Parse(`<!DOCTYPE html>
<html lang="ja">
<head>
<meta charset="utf-8">
<title>dakiwatch report</title>
<style>
body { font-family: sans-serif; margin: 2em; }
table { border-collapse: collapse; margin-bottom: 2em; }
th, td { border: 1px solid #ccc; padding: 4px 10px; text-align: left; }
th { background: #f0f0f0; }
.status-available { color: #2a7a2a; }
.status-recently_sold { color: #b05a00; }
.status-not_found { color: #888; }
</style>
</head>
<body>
<h1>dakiwatch report</h1>
<p>Generated {{.GeneratedAt.Format "2006-01-02 15:04:05 MST"}}</p>

{{if .Events}}
<h2>Changes</h2>
<table>
<tr><th>Time</th><th>Event</th><th>Item</th><th>Platform</th><th>Detail</th></tr>
{{range .Events}}
<tr>
<td>{{.OccurredAt.Format "2006-01-02 15:04"}}</td>
<td>{{.Kind}}</td>
<td>{{.ItemID}}</td>
<td>{{.Platform}}</td>
<td>{{event .}}</td>
</tr>
{{end}}
</table>
{{end}}

<h2>Current snapshots</h2>
<table>
<tr><th>Item</th><th>Platform</th><th>Status</th><th>Price</th><th>Title</th><th>Link</th><th>Updated</th></tr>
{{range .Snapshots}}
<tr>
<td>{{.ItemID}}</td>
<td>{{.Platform}}</td>
<td class="status-{{.Status}}">{{.Status}}</td>
<td>{{yen .Price}}</td>
<td>{{.MatchedTitle}}</td>
<td>{{if .ListingURL}}<a href="{{.ListingURL}}">listing</a>{{end}}</td>
<td>{{.UpdatedAt.Format "2006-01-02 15:04"}}</td>
</tr>
{{end}}
</table>

{{if .Summary}}
<h2>Cycle {{.Summary.RunID}}</h2>
<p>{{.Summary.ItemsChecked}} items checked, {{.Summary.EventCount}} events, {{len .Summary.Failures}} failures.</p>
{{end}}
</body>
</html>
`))

// WriteHTML renders the report as a standalone HTML document.
func (r *Report) WriteHTML(w io.Writer) error {
	return eris.Wrap(htmlTmpl.Execute(w, r), "report: render html")
}

// WriteCSV writes one row per snapshot.
func (r *Report) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"item_id", "platform", "status", "price", "matched_title", "listing_url", "observed_at", "updated_at"}); err != nil {
		return eris.Wrap(err, "report: write csv header")
	}
	for _, s := range r.Snapshots {
		price := ""
		if s.Price != nil {
			price = strconv.FormatInt(*s.Price, 10)
		}
		row := []string{
			s.ItemID, string(s.Platform), string(s.Status), price,
			s.MatchedTitle, s.ListingURL,
			s.ObservedAt.UTC().Format(time.RFC3339),
			s.UpdatedAt.UTC().Format(time.RFC3339),
		}
		if err := cw.Write(row); err != nil {
			return eris.Wrap(err, "report: write csv row")
		}
	}
	cw.Flush()
	return eris.Wrap(cw.Error(), "report: flush csv")
}

func formatYen(price *int64) string {
	if price == nil {
		return ""
	}
	return fmt.Sprintf("¥%d", *price)
}

// describeEvent renders the human-facing detail column for one event.
func describeEvent(ev model.ChangeEvent) string {
	switch ev.Kind {
	case model.EventPriceIncrease, model.EventPriceDecrease:
		if ev.Old != nil && ev.New != nil && ev.Old.Price != nil && ev.New.Price != nil {
			return fmt.Sprintf("¥%d -> ¥%d", *ev.Old.Price, *ev.New.Price)
		}
	case model.EventNewItemFound, model.EventBackInStock:
		if ev.New != nil {
			if ev.New.Price != nil {
				return fmt.Sprintf("%s ¥%d", ev.New.MatchedTitle, *ev.New.Price)
			}
			return ev.New.MatchedTitle
		}
	case model.EventSoldOut:
		if ev.Old != nil && ev.Old.Price != nil {
			return fmt.Sprintf("last seen at ¥%d", *ev.Old.Price)
		}
	case model.EventCreatorAnnouncement:
		if ev.Entry != nil {
			return fmt.Sprintf("%s: %s", ev.Entry.Creator, ev.Entry.Title)
		}
	}
	return ""
}
