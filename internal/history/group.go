package history

import (
	"sort"
	"time"

	"github.com/atcscribe/atcscribe-core/internal/protocol"
)

// DayGroup is one local calendar day of records, in store order.
type DayGroup struct {
	Date    time.Time
	Records []protocol.Transcription
}

// GroupByDate partitions records by the local calendar date of their
// timestamp. Within a group the input order is kept; groups come out most
// recent date first.
func GroupByDate(records []protocol.Transcription) []DayGroup {
	byDate := make(map[time.Time]*DayGroup)
	for _, tr := range records {
		ts := tr.Timestamp.Local()
		day := time.Date(ts.Year(), ts.Month(), ts.Day(), 0, 0, 0, 0, ts.Location())
		group, ok := byDate[day]
		if !ok {
			group = &DayGroup{Date: day}
			byDate[day] = group
		}
		group.Records = append(group.Records, tr)
	}

	out := make([]DayGroup, 0, len(byDate))
	for _, group := range byDate {
		out = append(out, *group)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.After(out[j].Date) })
	return out
}
