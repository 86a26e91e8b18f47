package sheetsync

import (
	"testing"
	"time"
)

func TestParseRow(t *testing.T) {
	loc := time.UTC
	cases := []struct {
		name string
		cols []string
		want Event
		ok   bool
	}{
		{
			name: "canonical clock in",
			cols: []string{"2026-02-12 09:00 AM", "Clock in", "Ada Lovelace", "Programming"},
			want: Event{At: time.Date(2026, 2, 12, 9, 0, 0, 0, time.UTC), Type: ClockIn, Name: "Ada Lovelace", Subteam: "Programming"},
			ok:   true,
		},
		{
			name: "case insensitive type",
			cols: []string{"2026-02-12 03:00 PM", "CLOCK OUT", "Ada Lovelace", ""},
			want: Event{At: time.Date(2026, 2, 12, 15, 0, 0, 0, time.UTC), Type: ClockOut, Name: "Ada Lovelace"},
			ok:   true,
		},
		{
			name: "24 hour layout",
			cols: []string{"2026-02-12 15:04:05", "Clock in", "Grace Hopper", ""},
			want: Event{At: time.Date(2026, 2, 12, 15, 4, 5, 0, time.UTC), Type: ClockIn, Name: "Grace Hopper"},
			ok:   true,
		},
		{
			name: "slash date layout",
			cols: []string{"2/12/2026 3:04 PM", "Clock in", "Grace Hopper", ""},
			want: Event{At: time.Date(2026, 2, 12, 15, 4, 0, 0, time.UTC), Type: ClockIn, Name: "Grace Hopper"},
			ok:   true,
		},
		{
			name: "missing name",
			cols: []string{"2026-02-12 09:00 AM", "Clock in"},
			ok:   false,
		},
		{
			name: "blank name",
			cols: []string{"2026-02-12 09:00 AM", "Clock in", "   ", "x"},
			ok:   false,
		},
		{
			name: "unparseable timestamp",
			cols: []string{"yesterday-ish", "Clock in", "Ada Lovelace", ""},
			ok:   false,
		},
		{
			name: "unknown type",
			cols: []string{"2026-02-12 09:00 AM", "Break", "Ada Lovelace", ""},
			ok:   false,
		},
		{
			name: "no subteam column",
			cols: []string{"2026-02-12 09:00 AM", "Clock in", "Ada Lovelace"},
			want: Event{At: time.Date(2026, 2, 12, 9, 0, 0, 0, time.UTC), Type: ClockIn, Name: "Ada Lovelace"},
			ok:   true,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := parseRow(tc.cols, loc)
			if ok != tc.ok {
				t.Fatalf("ok = %v, want %v", ok, tc.ok)
			}
			if !ok {
				return
			}
			if !got.At.Equal(tc.want.At) || got.Type != tc.want.Type || got.Name != tc.want.Name || got.Subteam != tc.want.Subteam {
				t.Fatalf("got %+v, want %+v", got, tc.want)
			}
		})
	}
}

func TestParseRowHonorsLocation(t *testing.T) {
	loc := time.FixedZone("EST", -5*3600)
	ev, ok := parseRow([]string{"2026-02-12 09:00 AM", "Clock in", "Ada Lovelace", ""}, loc)
	if !ok {
		t.Fatal("parse failed")
	}
	want := time.Date(2026, 2, 12, 14, 0, 0, 0, time.UTC)
	if !ev.At.Equal(want) {
		t.Fatalf("At = %v, want %v", ev.At, want)
	}
}

func TestEventKeyLowercasesName(t *testing.T) {
	ev := Event{At: time.Date(2026, 2, 12, 9, 0, 0, 0, time.UTC), Name: "  Ada LOVELACE "}
	if got := ev.Key(time.UTC); got != "ada lovelace|2026-02-12" {
		t.Fatalf("key = %q", got)
	}
}

func TestEventKeyUsesLocalDay(t *testing.T) {
	// 1 AM UTC is still the previous evening in the display timezone.
	loc := time.FixedZone("EST", -5*3600)
	ev := Event{At: time.Date(2026, 2, 13, 1, 0, 0, 0, time.UTC), Name: "Ada"}
	if got := ev.Key(loc); got != "ada|2026-02-12" {
		t.Fatalf("key = %q", got)
	}
}

func TestFormatTimestampRoundTrips(t *testing.T) {
	at := time.Date(2026, 2, 12, 15, 0, 0, 0, time.UTC)
	rendered := formatTimestamp(at, time.UTC)
	if rendered != "2026-02-12 03:00 PM" {
		t.Fatalf("rendered = %q", rendered)
	}
	parsed, ok := parseTimestamp(rendered, time.UTC)
	if !ok || !parsed.Equal(at) {
		t.Fatalf("round trip = %v ok=%v, want %v", parsed, ok, at)
	}
}
