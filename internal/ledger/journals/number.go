package journals

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// entryNumberPrefix returns the year-month prefix for entry numbers, e.g.
// "JE202608".
func entryNumberPrefix(at time.Time) string {
	return fmt.Sprintf("JE%04d%02d", at.Year(), int(at.Month()))
}

// nextEntryNumber derives the follow-up to the highest existing number within
// a year-month. An empty last number starts the sequence at 001. The sequence
// is zero-padded to three digits; uniqueness is still enforced by the store,
// and the caller re-checks on conflict.
func nextEntryNumber(at time.Time, last string) string {
	prefix := entryNumberPrefix(at)
	seq := 1
	if strings.HasPrefix(last, prefix) && len(last) > len(prefix) {
		if n, err := strconv.Atoi(last[len(prefix):]); err == nil {
			seq = n + 1
		}
	}
	return fmt.Sprintf("%s%03d", prefix, seq)
}
