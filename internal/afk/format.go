package afk

import (
	"fmt"
	"strings"
	"time"
)

// FormatDuration renders d in its largest whole unit: "2 days", "1 hour",
// "5 minutes", "0 seconds".
func FormatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	switch {
	case d >= 24*time.Hour:
		return plural(int(d/(24*time.Hour)), "day")
	case d >= time.Hour:
		return plural(int(d/time.Hour), "hour")
	case d >= time.Minute:
		return plural(int(d/time.Minute), "minute")
	default:
		return plural(int(d/time.Second), "second")
	}
}

func plural(n int, unit string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s", unit)
	}
	return fmt.Sprintf("%d %ss", n, unit)
}

// AutoReply is the message sent to people writing to the bot while away.
func AutoReply(owner string, info Info) string {
	if owner == "" {
		owner = "The owner"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "*%s is currently away (AFK)*\n", owner)
	fmt.Fprintf(&b, "Reason: %s\n", info.Reason)
	fmt.Fprintf(&b, "Since: %s ago\n\n", FormatDuration(info.Duration))
	b.WriteString("_This is an automatic reply. Your message will be read later._")
	return b.String()
}
