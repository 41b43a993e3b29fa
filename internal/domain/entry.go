package domain

import (
	"fmt"
	"time"
)

const (
	MaxTitleLen = 100
	MaxBodyLen  = 4000
)

// Entry is a single journal record.
type Entry struct {
	ID        int64
	ChatID    int64
	LocalID   int // per-user sequence, starts at 1
	Title     string
	Body      string
	Tags      []string
	Link      string
	CreatedAt time.Time // UTC
}

// Ref renders the per-user id the way users type it back, e.g. #007.
func (e Entry) Ref() string {
	return FormatLocalID(e.LocalID)
}

func FormatLocalID(id int) string {
	return fmt.Sprintf("#%03d", id)
}

// EntryStats summarizes a user's journal for /status.
type EntryStats struct {
	Total int
	First *Entry
	Last  *Entry
}
