package classify

import (
	"strings"
	"time"

	"rodentcam/tracking"
)

// IsRodentVerdict interprets the model's free-text answer. Only the exact
// positive phrase from the prompt counts; a looser "DETECTED" match would
// turn drifted negatives like "NO RODENT DETECTED" into sightings.
func IsRodentVerdict(verdict string) bool {
	return strings.Contains(strings.ToUpper(verdict), "MOUSE/RAT DETECTED")
}

// Gate rate-limits verdict requests and de-duplicates them per track key.
// A key that already has a verdict is never re-checked, and once a rodent
// verdict lands no further requests go out at all. Failed requests record
// an attempt time only, so they retry after the cooldown.
type Gate struct {
	cooldown    time.Duration
	lastAttempt time.Time
	verdicts    map[tracking.TrackKey]string
	rodentFound bool
}

// NewGate creates a gate with the given minimum interval between requests.
func NewGate(cooldown time.Duration) *Gate {
	return &Gate{
		cooldown: cooldown,
		verdicts: make(map[tracking.TrackKey]string),
	}
}

// Allow reports whether a verdict request may be dispatched for key at now.
func (g *Gate) Allow(key tracking.TrackKey, now time.Time) bool {
	if g.rodentFound {
		return false
	}
	if _, done := g.verdicts[key]; done {
		return false
	}
	if !g.lastAttempt.IsZero() && now.Sub(g.lastAttempt) < g.cooldown {
		return false
	}
	return true
}

// MarkAttempt records that a request was dispatched at now. Call it for
// every dispatch, successful or not, so failures still honor the cooldown.
func (g *Gate) MarkAttempt(now time.Time) {
	g.lastAttempt = now
}

// Record stores a successful verdict for key.
func (g *Gate) Record(key tracking.TrackKey, verdict string) {
	g.verdicts[key] = verdict
	if IsRodentVerdict(verdict) {
		g.rodentFound = true
	}
}

// Verdict returns the stored verdict for key, if any.
func (g *Gate) Verdict(key tracking.TrackKey) (string, bool) {
	v, ok := g.verdicts[key]
	return v, ok
}

// RodentFound reports whether any recorded verdict was a rodent sighting.
func (g *Gate) RodentFound() bool {
	return g.rodentFound
}
