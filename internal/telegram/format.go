package telegram

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/Numbzin/Logzito/internal/domain"
)

const (
	entriesPerPage = 5
	previewLen     = 40
	pagePrefix     = "entries:"
)

var errBadID = errors.New("bad entry id")

func pageData(page int) string { return pagePrefix + strconv.Itoa(page) }

// parseLocalID accepts "7", "007" and "#007".
func parseLocalID(s string) (int, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "#")
	id, err := strconv.Atoi(s)
	if err != nil || id <= 0 {
		return 0, errBadID
	}
	return id, nil
}

// parsePage reads an optional 1-based page number.
func parsePage(s string) int {
	p, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || p < 1 {
		return 1
	}
	return p
}

func pageCount(total int) int {
	return max((total+entriesPerPage-1)/entriesPerPage, 1)
}

func localDate(t time.Time, loc *time.Location) string {
	return t.In(loc).Format("02/01/2006 15:04")
}

// preview is the title, or the start of the body when there is none.
func preview(e domain.Entry) string {
	s := e.Title
	if s == "" {
		s = strings.Join(strings.Fields(e.Body), " ")
	}
	if r := []rune(s); len(r) > previewLen {
		s = string(r[:previewLen-1]) + "…"
	}
	return s
}

func hashtags(tags []string) string {
	out := make([]string, len(tags))
	for i, t := range tags {
		out[i] = "#" + t
	}
	return strings.Join(out, " ")
}

func formatEntryLine(e domain.Entry, loc *time.Location) string {
	line := fmt.Sprintf("%s · %s · %s", e.Ref(), localDate(e.CreatedAt, loc), preview(e))
	if len(e.Tags) > 0 {
		line += " · " + hashtags(e.Tags)
	}
	return line
}

func formatEntry(e domain.Entry, loc *time.Location) string {
	var b strings.Builder
	b.WriteString(e.Ref())
	if e.Title != "" {
		b.WriteString(" " + e.Title)
	}
	b.WriteString("\n📅 " + localDate(e.CreatedAt, loc) + "\n\n")
	b.WriteString(e.Body)
	if len(e.Tags) > 0 {
		b.WriteString("\n\n🏷 " + hashtags(e.Tags))
	}
	if e.Link != "" {
		b.WriteString("\n🔗 " + e.Link)
	}
	return b.String()
}

func formatEntryList(header string, entries []domain.Entry, loc *time.Location) string {
	lines := make([]string, 0, len(entries)+1)
	lines = append(lines, header)
	for _, e := range entries {
		lines = append(lines, formatEntryLine(e, loc))
	}
	return strings.Join(lines, "\n")
}

func formatStatus(u *domain.User, st domain.EntryStats, loc *time.Location, now time.Time) string {
	var b strings.Builder
	b.WriteString(statusTitle + "\n\n")
	fmt.Fprintf(&b, "• Entries: %d\n", st.Total)
	if st.First != nil {
		fmt.Fprintf(&b, "• First: %s on %s\n", st.First.Ref(), localDate(st.First.CreatedAt, loc))
	}
	if st.Last != nil {
		fmt.Fprintf(&b, "• Last: %s on %s\n", st.Last.Ref(), localDate(st.Last.CreatedAt, loc))
	}
	b.WriteString("\n")
	b.WriteString(formatReminder(&u.Subscription, now))
	return b.String()
}

func formatReminder(sub *domain.Subscription, now time.Time) string {
	if !sub.Active {
		return fmt.Sprintf("🔕 Reminder: off (last setting %s, %s)", sub.LocalTime, sub.TZ)
	}
	s := fmt.Sprintf("🔔 Reminder: every day at %s (%s)", sub.LocalTime, sub.TZ)
	if next, err := domain.NextFire(sub, now); err == nil {
		if local, err := domain.LocalizeTime(next, sub.TZ); err == nil {
			s += "\n• Next: " + local
		}
	}
	return s
}

// exportText renders entries, oldest first, as a plain text document.
func exportText(entries []domain.Entry, loc *time.Location, generated time.Time) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "Logzito export – %s (%s)\n", localDate(generated, loc), loc)
	fmt.Fprintf(&b, "%d entries\n\n", len(entries))
	for _, e := range entries {
		b.WriteString(strings.Repeat("-", 40) + "\n")
		fmt.Fprintf(&b, "%s | %s\n", e.Ref(), localDate(e.CreatedAt, loc))
		if e.Title != "" {
			b.WriteString(e.Title + "\n")
		}
		b.WriteString(e.Body + "\n")
		if len(e.Tags) > 0 {
			b.WriteString("Tags: " + strings.Join(e.Tags, ", ") + "\n")
		}
		if e.Link != "" {
			b.WriteString("Link: " + e.Link + "\n")
		}
		b.WriteString("\n")
	}
	return []byte(b.String())
}

// parseMonth reads "[MM] [YYYY]", defaulting to the month of now.
func parseMonth(args string, now time.Time) (int, time.Month, error) {
	year, month := now.Year(), now.Month()
	fields := strings.Fields(args)
	if len(fields) > 2 {
		return 0, 0, errors.New("too many arguments")
	}
	if len(fields) >= 1 {
		m, err := strconv.Atoi(fields[0])
		if err != nil || m < 1 || m > 12 {
			return 0, 0, fmt.Errorf("bad month %q", fields[0])
		}
		month = time.Month(m)
	}
	if len(fields) == 2 {
		y, err := strconv.Atoi(fields[1])
		if err != nil || y < 1970 || y > 9999 {
			return 0, 0, fmt.Errorf("bad year %q", fields[1])
		}
		year = y
	}
	return year, month, nil
}

// renderCalendar draws a Monday-first month grid. Days with entries carry a *.
func renderCalendar(year int, month time.Month, days []int) string {
	marked := make(map[int]bool, len(days))
	for _, d := range days {
		marked[d] = true
	}

	first := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	last := first.AddDate(0, 1, -1).Day()
	offset := (int(first.Weekday()) + 6) % 7

	var b strings.Builder
	fmt.Fprintf(&b, "📅 %s %d\n", month, year)
	b.WriteString("Mo  Tu  We  Th  Fr  Sa  Su\n")
	col := 0
	for ; col < offset; col++ {
		b.WriteString("    ")
	}
	for d := 1; d <= last; d++ {
		mark := " "
		if marked[d] {
			mark = "*"
		}
		fmt.Fprintf(&b, "%2d%s", d, mark)
		col++
		if col == 7 {
			b.WriteString("\n")
			col = 0
		} else if d < last {
			b.WriteString(" ")
		}
	}
	if col != 0 {
		b.WriteString("\n")
	}
	if len(days) == 0 {
		b.WriteString("\nNo entries this month.")
	} else {
		fmt.Fprintf(&b, "\n%d day(s) with entries.", len(days))
	}
	return b.String()
}
