package domain

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"
	"unicode"
)

var (
	ErrInvalidLocalTime = errors.New("invalid local time")
	ErrInvalidTimezone  = errors.New("invalid timezone")
	ErrEmptyEntry       = errors.New("empty entry")
	ErrEntryTooLong     = errors.New("entry too long")
	ErrInvalidLink      = errors.New("invalid link")
)

// LocalTime is a wall-clock time of day, in minutes since midnight (0..1439).
type LocalTime int

func NewLocalTime(hour, minute int) (LocalTime, error) {
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return 0, fmt.Errorf("%w: %02d:%02d", ErrInvalidLocalTime, hour, minute)
	}
	return LocalTime(hour*60 + minute), nil
}

func (t LocalTime) Hour() int { return int(t) / 60 }

func (t LocalTime) Minute() int { return int(t) % 60 }

// String returns HH:MM.
func (t LocalTime) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour(), t.Minute())
}

// Valid reports whether t is inside a single day.
func (t LocalTime) Valid() bool {
	return t >= 0 && t < 24*60
}

// ParseLocalTime parses "HH:MM" (a single-digit hour is accepted, e.g. "7:30").
func ParseLocalTime(s string) (LocalTime, error) {
	s = strings.TrimSpace(s)
	parts := strings.Split(s, ":")
	if len(parts) != 2 || len(parts[1]) != 2 || parts[0] == "" || len(parts[0]) > 2 {
		return 0, fmt.Errorf("%w: expected HH:MM, got %q", ErrInvalidLocalTime, s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, fmt.Errorf("%w: hour %q", ErrInvalidLocalTime, parts[0])
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, fmt.Errorf("%w: minute %q", ErrInvalidLocalTime, parts[1])
	}
	return NewLocalTime(h, m)
}

// ValidateTZ checks that the tz is a valid IANA location and returns its canonical name.
func ValidateTZ(tz string) (string, error) {
	loc, err := LoadTZ(strings.TrimSpace(tz))
	if err != nil {
		return "", err
	}
	return loc.String(), nil
}

// LoadTZ resolves an IANA name, wrapping failures in ErrInvalidTimezone.
func LoadTZ(tz string) (*time.Location, error) {
	switch strings.TrimSpace(tz) {
	case "":
		return nil, fmt.Errorf("%w: empty", ErrInvalidTimezone)
	case "Local":
		// Would follow the host's zone instead of an IANA one.
		return nil, fmt.Errorf("%w: %q", ErrInvalidTimezone, tz)
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrInvalidTimezone, tz, err)
	}
	return loc, nil
}

// LocalizeTime formats t in the given timezone as "02/01/2006 15:04".
func LocalizeTime(t time.Time, tz string) (string, error) {
	loc, err := LoadTZ(tz)
	if err != nil {
		return "", err
	}
	return t.In(loc).Format("02/01/2006 15:04"), nil
}

// ParseEntryText splits free text into an entry draft.
// Hashtags become tags, a "link:" line becomes the link,
// and the first line becomes the title when more lines follow.
func ParseEntryText(text string) (Entry, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Entry{}, ErrEmptyEntry
	}

	var e Entry
	lines := strings.Split(text, "\n")
	kept := lines[:0]
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if e.Link == "" && len(trimmed) >= 5 && strings.EqualFold(trimmed[:5], "link:") {
			link, err := ParseLink(trimmed[5:])
			if err != nil {
				return Entry{}, err
			}
			e.Link = link
			continue
		}
		kept = append(kept, line)
	}

	e.Tags = ParseTags(strings.Join(kept, " "))

	if len(kept) > 1 {
		title := strings.TrimSpace(kept[0])
		if title != "" && len([]rune(title)) <= MaxTitleLen {
			e.Title = title
			kept = kept[1:]
		}
	}
	e.Body = strings.TrimSpace(strings.Join(kept, "\n"))
	if e.Body == "" {
		return Entry{}, ErrEmptyEntry
	}
	if len([]rune(e.Body)) > MaxBodyLen {
		return Entry{}, fmt.Errorf("%w: max %d characters", ErrEntryTooLong, MaxBodyLen)
	}
	return e, nil
}

// ParseTags extracts #hashtags, lower-cased and deduplicated in order of appearance.
func ParseTags(text string) []string {
	var tags []string
	seen := make(map[string]struct{})
	for _, word := range strings.Fields(text) {
		if !strings.HasPrefix(word, "#") {
			continue
		}
		tag := NormalizeTag(word)
		if tag == "" {
			continue
		}
		if _, ok := seen[tag]; ok {
			continue
		}
		seen[tag] = struct{}{}
		tags = append(tags, tag)
	}
	return tags
}

// NormalizeTag lower-cases a tag, strips the leading # and keeps the leading
// run of letters, digits, '_' and '-'. "#Go," and "#go!" both yield "go".
func NormalizeTag(s string) string {
	s = strings.TrimLeft(strings.TrimSpace(s), "#")
	if i := strings.IndexFunc(s, func(r rune) bool { return !isTagRune(r) }); i >= 0 {
		s = s[:i]
	}
	return strings.ToLower(s)
}

func isTagRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' || r == '-'
}

// ParseLink accepts absolute http(s) URLs only.
func ParseLink(s string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(s))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", fmt.Errorf("%w: %q", ErrInvalidLink, s)
	}
	return u.String(), nil
}
