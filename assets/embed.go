package assets

import (
	_ "embed"
	"strings"
)

//go:embed reminders.txt
var remindersTxt string

// Reminders returns the pool of daily reminder texts.
func Reminders() []string {
	var out []string
	for _, line := range strings.Split(remindersTxt, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, line)
	}
	return out
}
