package guard

import (
	"sort"
	"time"
)

// RateLimits are ceilings per rolling window. Zero disables a window.
type RateLimits struct {
	PerMinute int
	PerHour   int
	PerDay    int
}

// RateVerdict reports the first breached ceiling, if any.
type RateVerdict struct {
	Allowed    bool
	Window     string
	Count      int
	Ceiling    int
	RetryAfter time.Duration
}

type rateWindow struct {
	name    string
	span    time.Duration
	ceiling int
}

// CheckRate counts events inside each window ending at now. Windows are checked
// minute, hour, day; the first one at or above its ceiling wins.
func CheckRate(events []time.Time, now time.Time, limits RateLimits) RateVerdict {
	windows := []rateWindow{
		{"minute", time.Minute, limits.PerMinute},
		{"hour", time.Hour, limits.PerHour},
		{"day", 24 * time.Hour, limits.PerDay},
	}
	for _, w := range windows {
		if w.ceiling <= 0 {
			continue
		}
		start := now.Add(-w.span)
		var inWindow []time.Time
		for _, at := range events {
			if !at.After(start) || at.After(now) {
				continue
			}
			inWindow = append(inWindow, at)
		}
		count := len(inWindow)
		if count >= w.ceiling {
			// the window reopens once enough events age out to leave count below the ceiling
			sort.Slice(inWindow, func(i, j int) bool { return inWindow[i].Before(inWindow[j]) })
			retry := inWindow[count-w.ceiling].Add(w.span).Sub(now)
			if retry < 0 {
				retry = 0
			}
			return RateVerdict{Window: w.name, Count: count, Ceiling: w.ceiling, RetryAfter: retry}
		}
	}
	return RateVerdict{Allowed: true}
}
