package progress

import "time"

// DateLayout is the calendar-date format stored in lastActivityDate.
const DateLayout = "2006-01-02"

// Day returns the UTC calendar date of t.
func Day(t time.Time) string {
	return t.UTC().Format(DateLayout)
}

// NextStreak computes the streak after activity on today.
// An unparseable or future lastActivity is treated like a gap.
func NextStreak(prevStreak int, lastActivity string, now time.Time) int {
	if lastActivity == "" {
		return 1
	}
	today := Day(now)
	yesterday := Day(now.UTC().AddDate(0, 0, -1))
	switch lastActivity {
	case yesterday:
		return prevStreak + 1
	case today:
		return max(prevStreak, 1)
	default:
		return 1
	}
}
