package telegram

import (
	"strings"
	"testing"
	"time"

	"github.com/Numbzin/Logzito/internal/domain"
)

func TestParseLocalID(t *testing.T) {
	valid := map[string]int{"7": 7, "007": 7, "#007": 7, " #12 ": 12}
	for in, want := range valid {
		got, err := parseLocalID(in)
		if err != nil || got != want {
			t.Fatalf("%q: want %d, got %d (%v)", in, want, got, err)
		}
	}
	for _, in := range []string{"", "#", "0", "-3", "x1"} {
		if _, err := parseLocalID(in); err == nil {
			t.Fatalf("%q: expected error", in)
		}
	}
}

func TestPageCount(t *testing.T) {
	cases := map[int]int{0: 1, 1: 1, 5: 1, 6: 2, 10: 2, 11: 3}
	for total, want := range cases {
		if got := pageCount(total); got != want {
			t.Fatalf("pageCount(%d) = %d, want %d", total, got, want)
		}
	}
}

func TestPreviewTruncates(t *testing.T) {
	e := domain.Entry{Body: strings.Repeat("á", 60)}
	if got := []rune(preview(e)); len(got) != previewLen {
		t.Fatalf("want %d runes, got %d", previewLen, len(got))
	}
	if got := preview(domain.Entry{Title: "Title", Body: "body"}); got != "Title" {
		t.Fatalf("title should win, got %q", got)
	}
}

func TestRenderCalendar(t *testing.T) {
	// March 2025 starts on a Saturday.
	got := renderCalendar(2025, time.March, []int{1, 31})
	lines := strings.Split(got, "\n")
	if lines[0] != "📅 March 2025" {
		t.Fatalf("header: %q", lines[0])
	}
	if want := strings.Repeat("    ", 5) + " 1*  2 "; lines[2] != want {
		t.Fatalf("first week:\n%q\nwant\n%q", lines[2], want)
	}
	if !strings.Contains(got, "31*") {
		t.Fatalf("day 31 must be marked:\n%s", got)
	}
	if !strings.HasSuffix(got, "2 day(s) with entries.") {
		t.Fatalf("footer:\n%s", got)
	}
}

func TestParseMonth(t *testing.T) {
	now := time.Date(2025, time.August, 14, 0, 0, 0, 0, time.UTC)
	y, m, err := parseMonth("", now)
	if err != nil || y != 2025 || m != time.August {
		t.Fatalf("default: %d %s %v", y, m, err)
	}
	y, m, err = parseMonth("3 2024", now)
	if err != nil || y != 2024 || m != time.March {
		t.Fatalf("explicit: %d %s %v", y, m, err)
	}
	for _, bad := range []string{"0", "13", "3 abc", "1 2 3"} {
		if _, _, err := parseMonth(bad, now); err == nil {
			t.Fatalf("%q: expected error", bad)
		}
	}
}

func TestExportText(t *testing.T) {
	loc, _ := time.LoadLocation("America/Sao_Paulo")
	entries := []domain.Entry{
		{LocalID: 1, Title: "T", Body: "first", Tags: []string{"go"}, Link: "https://go.dev", CreatedAt: time.Date(2025, time.March, 1, 2, 0, 0, 0, time.UTC)},
		{LocalID: 2, Body: "second", CreatedAt: time.Date(2025, time.March, 2, 12, 0, 0, 0, time.UTC)},
	}
	out := string(exportText(entries, loc, entries[1].CreatedAt))
	for _, want := range []string{
		"2 entries",
		"#001 | 28/02/2025 23:00",
		"Tags: go",
		"Link: https://go.dev",
		"#002 | 02/03/2025 09:00",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %q in:\n%s", want, out)
		}
	}
	if strings.Index(out, "#001") > strings.Index(out, "#002") {
		t.Fatalf("export must be oldest first")
	}
}
