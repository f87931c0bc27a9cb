package classify

import (
	"testing"
	"time"

	"rodentcam/tracking"
)

func TestIsRodentVerdict(t *testing.T) {
	tests := []struct {
		verdict string
		want    bool
	}{
		{"MOUSE/RAT DETECTED", true},
		{"mouse/rat detected", true},
		{"I can see a mouse. MOUSE/RAT DETECTED.", true},
		{"NO MOUSE/RAT", false},
		{"no mouse/rat", false},
		// Drifted negatives must not match on "DETECTED" alone.
		{"NOTHING DETECTED", false},
		{"NO RODENT DETECTED", false},
		{"DETECTED", false},
		{"I cannot tell from this image.", false},
		{"", false},
	}

	for _, tc := range tests {
		if got := IsRodentVerdict(tc.verdict); got != tc.want {
			t.Errorf("IsRodentVerdict(%q) = %v, want %v", tc.verdict, got, tc.want)
		}
	}
}

func TestGateCooldown(t *testing.T) {
	g := NewGate(5 * time.Second)
	t0 := time.Now()
	keyA := tracking.TrackKey{Label: "mouse", BinX: 300, BinY: 200}
	keyB := tracking.TrackKey{Label: "mouse", BinX: 350, BinY: 200}

	if !g.Allow(keyA, t0) {
		t.Fatal("fresh gate should allow the first request")
	}
	g.MarkAttempt(t0)

	if g.Allow(keyB, t0.Add(time.Second)) {
		t.Error("request inside the cooldown window was allowed")
	}
	if !g.Allow(keyB, t0.Add(6*time.Second)) {
		t.Error("request after the cooldown was blocked")
	}
}

func TestGateDedupPerKey(t *testing.T) {
	g := NewGate(0)
	key := tracking.TrackKey{Label: "mouse", BinX: 300, BinY: 200}

	g.MarkAttempt(time.Now())
	g.Record(key, "NO MOUSE/RAT")

	if g.Allow(key, time.Now().Add(time.Hour)) {
		t.Error("key with a stored verdict was allowed again")
	}
	if v, ok := g.Verdict(key); !ok || v != "NO MOUSE/RAT" {
		t.Errorf("Verdict = %q, %v", v, ok)
	}

	// A different key is still fair game.
	other := tracking.TrackKey{Label: "mouse", BinX: 350, BinY: 200}
	if !g.Allow(other, time.Now().Add(time.Hour)) {
		t.Error("unrelated key was blocked")
	}
}

func TestGateStopsAfterRodent(t *testing.T) {
	g := NewGate(0)
	key := tracking.TrackKey{Label: "mouse", BinX: 300, BinY: 200}

	g.Record(key, "MOUSE/RAT DETECTED")

	if !g.RodentFound() {
		t.Fatal("RodentFound = false after rodent verdict")
	}
	other := tracking.TrackKey{Label: "cat", BinX: 0, BinY: 0}
	if g.Allow(other, time.Now().Add(time.Hour)) {
		t.Error("gate kept allowing requests after a rodent was confirmed")
	}
}

func TestGateFailureIsRetryable(t *testing.T) {
	g := NewGate(2 * time.Second)
	t0 := time.Now()
	key := tracking.TrackKey{Label: "mouse", BinX: 300, BinY: 200}

	// Dispatch fails: attempt marked, no verdict recorded.
	if !g.Allow(key, t0) {
		t.Fatal("first request blocked")
	}
	g.MarkAttempt(t0)

	if g.Allow(key, t0.Add(time.Second)) {
		t.Error("retry allowed before cooldown elapsed")
	}
	if !g.Allow(key, t0.Add(3*time.Second)) {
		t.Error("retry blocked after cooldown elapsed")
	}
}
