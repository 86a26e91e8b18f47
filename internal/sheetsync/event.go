package sheetsync

import (
	"strings"
	"time"
)

// EventType distinguishes the two kinds of kiosk rows.
type EventType string

// Exact-cased labels written on export; import matches them
// case-insensitively.
const (
	ClockIn  EventType = "Clock in"
	ClockOut EventType = "Clock out"
)

// DefaultClockInTolerance is the window inside which a sheet clock-in next
// to an existing check-in is classified as "already recorded by a local tap"
// rather than a conflicting manual entry. Either way the row is skipped; the
// classification only drives logging.
const DefaultClockInTolerance = 2 * time.Minute

// sheetTimeLayout is the canonical timestamp format written on export.
const sheetTimeLayout = "2006-01-02 03:04 PM"

// importLayouts are the formats accepted when parsing kiosk rows. The kiosk
// writes the canonical layout; the rest cover hand-edited cells.
var importLayouts = []string{
	sheetTimeLayout,
	"2006-01-02 03:04:05 PM",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"1/2/2006 3:04 PM",
	"1/2/2006 15:04:05",
	time.RFC3339,
}

// Event is one parsed spreadsheet row. Transient; it exists only as the unit
// the import stage folds into attendance records.
type Event struct {
	At      time.Time
	Type    EventType
	Name    string
	Subteam string
}

// Key is the reconciliation join key: lowercase name + "|" + local ISO date.
// The sheet carries names and dates, not ids, so this is the dedup unit.
func (e Event) Key(loc *time.Location) string {
	return recordKey(e.Name, localDay(e.At, loc))
}

func recordKey(name string, day time.Time) string {
	return strings.ToLower(strings.TrimSpace(name)) + "|" + day.Format("2006-01-02")
}

// localDay buckets an instant into its calendar day in the display timezone.
func localDay(t time.Time, loc *time.Location) time.Time {
	local := t.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, time.UTC)
}

// parseRow turns one raw sheet row into an Event. Rows missing any of the
// first three columns, with an unparseable timestamp, or with an
// unrecognized type are dropped.
func parseRow(cols []string, loc *time.Location) (Event, bool) {
	if len(cols) < 3 {
		return Event{}, false
	}
	rawAt := strings.TrimSpace(cols[0])
	rawType := strings.TrimSpace(cols[1])
	name := strings.TrimSpace(cols[2])
	if rawAt == "" || rawType == "" || name == "" {
		return Event{}, false
	}

	at, ok := parseTimestamp(rawAt, loc)
	if !ok {
		return Event{}, false
	}

	var evType EventType
	switch {
	case strings.EqualFold(rawType, string(ClockIn)):
		evType = ClockIn
	case strings.EqualFold(rawType, string(ClockOut)):
		evType = ClockOut
	default:
		return Event{}, false
	}

	var subteam string
	if len(cols) >= 4 {
		subteam = strings.TrimSpace(cols[3])
	}
	return Event{At: at, Type: evType, Name: name, Subteam: subteam}, true
}

func parseTimestamp(raw string, loc *time.Location) (time.Time, bool) {
	for _, layout := range importLayouts {
		if t, err := time.ParseInLocation(layout, raw, loc); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// formatTimestamp renders an instant the way export writes it.
func formatTimestamp(t time.Time, loc *time.Location) string {
	return t.In(loc).Format(sheetTimeLayout)
}
