package tracking

import (
	"errors"
	"fmt"
	"image"
	"math"
	"time"
)

// zoneDebugMsgFunc is a function that will be set by main package to use unified logging
var zoneDebugMsgFunc func(component, message string)

// SetZoneDebugFunction allows main package to provide the debug logger
func SetZoneDebugFunction(fn func(component, message string)) {
	zoneDebugMsgFunc = fn
}

// zoneDebugMsg is a wrapper that handles nil checks
func zoneDebugMsg(component, message string) {
	if zoneDebugMsgFunc != nil {
		zoneDebugMsgFunc(component, message)
	}
}

// DefaultBinSize is the spatial quantization (in pixels) used to bridge an
// object's identity across frames without a full tracker.
const DefaultBinSize = 50

var (
	// ErrInvalidFrameDimensions is returned when a frame width or height is
	// not a positive number. The tracker state is left untouched.
	ErrInvalidFrameDimensions = errors.New("tracking: frame dimensions must be positive")

	// ErrInvalidCenterThreshold is returned by NewZoneTracker when the center
	// threshold is outside (0, 1].
	ErrInvalidCenterThreshold = errors.New("tracking: center threshold must be in (0, 1]")

	// ErrInvalidPersistence is returned by NewZoneTracker for a negative
	// persistence duration.
	ErrInvalidPersistence = errors.New("tracking: persistence time must be >= 0")

	// ErrInvalidBinSize is returned by NewZoneTracker for a negative bin size.
	ErrInvalidBinSize = errors.New("tracking: bin size must be > 0")
)

// ZoneState classifies a detection relative to the center zone.
type ZoneState int

const (
	// StateOutside means the detection's center is not inside the zone.
	StateOutside ZoneState = iota
	// StatePending means the center is inside the zone but has not dwelled
	// long enough to be confirmed.
	StatePending
	// StateConfirmed means the center has stayed inside the zone for at
	// least the configured persistence time.
	StateConfirmed
)

func (s ZoneState) String() string {
	switch s {
	case StatePending:
		return "PENDING"
	case StateConfirmed:
		return "CONFIRMED"
	default:
		return "OUTSIDE"
	}
}

// Detection is one observed object in one frame.
type Detection struct {
	Label      string
	Box        image.Rectangle // x1 < x2, y1 < y2, pixel coordinates
	Confidence float64         // [0, 1]
}

// Valid reports whether the detection box is well formed.
func (d Detection) Valid() bool {
	return d.Box.Min.X < d.Box.Max.X && d.Box.Min.Y < d.Box.Max.Y
}

// center returns the geometric center of the detection box.
func (d Detection) center() (float64, float64) {
	return float64(d.Box.Min.X+d.Box.Max.X) / 2, float64(d.Box.Min.Y+d.Box.Max.Y) / 2
}

// Zone is the centered region of interest for the current frame. It is
// derived from the frame dimensions every frame and never stored.
type Zone struct {
	Left, Top, Right, Bottom float64
}

// Contains reports whether the box's geometric center lies within the zone,
// boundaries inclusive. Only the center point is tested, never box overlap:
// a large object whose edges cross the zone but whose center sits outside is
// not inside.
func (z Zone) Contains(box image.Rectangle) bool {
	cx := float64(box.Min.X+box.Max.X) / 2
	cy := float64(box.Min.Y+box.Max.Y) / 2
	return cx >= z.Left && cx <= z.Right && cy >= z.Top && cy <= z.Bottom
}

// Rect returns the zone as an integer rectangle for drawing.
func (z Zone) Rect() image.Rectangle {
	return image.Rect(int(z.Left), int(z.Top), int(z.Right), int(z.Bottom))
}

// TrackKey is a coarse identity surrogate: the detection label paired with
// the binned center coordinates. Two detections of the same label whose
// centers fall in the same grid cell are treated as the same physical object.
// This is a heuristic: it can conflate distinct same-label objects that sit
// close together, and a center that straddles a bin boundary between frames
// splits into two keys.
type TrackKey struct {
	Label      string
	BinX, BinY int
}

func (k TrackKey) String() string {
	return fmt.Sprintf("%s@%d,%d", k.Label, k.BinX, k.BinY)
}

// Result pairs a detection with its zone classification for one frame.
type Result struct {
	Detection
	Key     TrackKey
	State   ZoneState
	Elapsed time.Duration // dwell time inside the zone, zero when Outside
}

// ZoneTracker decides whether detected objects have remained within the
// center zone long enough to be reported as confirmed. All state is owned by
// the instance and is only ever touched by the single detection loop, so no
// locking is needed.
type ZoneTracker struct {
	centerThreshold float64
	persistence     time.Duration
	binSize         int

	firstSeen map[TrackKey]time.Time
}

// NewZoneTracker creates a tracker. centerThreshold is the fraction of the
// frame width/height covered by the zone, in (0, 1]. persistence is the
// minimum continuous dwell before a key is confirmed; zero confirms
// immediately. A binSize of zero selects DefaultBinSize, negative values are
// rejected.
func NewZoneTracker(centerThreshold float64, persistence time.Duration, binSize int) (*ZoneTracker, error) {
	if centerThreshold <= 0 || centerThreshold > 1 || math.IsNaN(centerThreshold) {
		return nil, fmt.Errorf("%w: got %v", ErrInvalidCenterThreshold, centerThreshold)
	}
	if persistence < 0 {
		return nil, fmt.Errorf("%w: got %v", ErrInvalidPersistence, persistence)
	}
	if binSize < 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidBinSize, binSize)
	}
	if binSize == 0 {
		binSize = DefaultBinSize
	}

	return &ZoneTracker{
		centerThreshold: centerThreshold,
		persistence:     persistence,
		binSize:         binSize,
		firstSeen:       make(map[TrackKey]time.Time),
	}, nil
}

// ZoneFor computes the center zone for the given frame dimensions. Recomputed
// per frame because the capture resolution can change mid-session.
func (t *ZoneTracker) ZoneFor(frameWidth, frameHeight int) (Zone, error) {
	if frameWidth <= 0 || frameHeight <= 0 {
		return Zone{}, fmt.Errorf("%w: %dx%d", ErrInvalidFrameDimensions, frameWidth, frameHeight)
	}

	zoneWidth := float64(frameWidth) * t.centerThreshold
	zoneHeight := float64(frameHeight) * t.centerThreshold
	centerX := float64(frameWidth) / 2
	centerY := float64(frameHeight) / 2

	return Zone{
		Left:   centerX - zoneWidth/2,
		Top:    centerY - zoneHeight/2,
		Right:  centerX + zoneWidth/2,
		Bottom: centerY + zoneHeight/2,
	}, nil
}

// keyFor bins the detection center into the identity grid.
func (t *ZoneTracker) keyFor(d Detection) TrackKey {
	cx, cy := d.center()
	bin := float64(t.binSize)
	return TrackKey{
		Label: d.Label,
		BinX:  int(math.Floor(cx/bin)) * t.binSize,
		BinY:  int(math.Floor(cy/bin)) * t.binSize,
	}
}

// Update classifies every detection of the current frame against the center
// zone and advances the persistence state. Detections are processed
// independently, in input order:
//
//   - inside the zone: the key's first-seen time is recorded (or kept), and
//     the state is Confirmed once the dwell reaches the persistence time,
//     Pending otherwise;
//   - outside the zone: the key's progress is reset immediately, no decay or
//     grace period;
//   - keys not observed at all this frame are reset after the frame is
//     processed, so a key must be refreshed every frame to survive.
//
// Detections with a degenerate box (x1>=x2 or y1>=y2) are dropped from the
// results and returned in the second value; they never touch tracker state.
// An invalid frame dimension fails the whole call before any state mutation.
func (t *ZoneTracker) Update(detections []Detection, frameWidth, frameHeight int, now time.Time) ([]Result, []Detection, error) {
	zone, err := t.ZoneFor(frameWidth, frameHeight)
	if err != nil {
		return nil, nil, err
	}

	results := make([]Result, 0, len(detections))
	var dropped []Detection
	seen := make(map[TrackKey]struct{}, len(detections))

	for _, det := range detections {
		if !det.Valid() {
			zoneDebugMsg("ZONE", fmt.Sprintf("dropping degenerate box %v for %q", det.Box, det.Label))
			dropped = append(dropped, det)
			continue
		}

		key := t.keyFor(det)
		seen[key] = struct{}{}

		if !zone.Contains(det.Box) {
			// Leaving the zone resets progress immediately.
			delete(t.firstSeen, key)
			results = append(results, Result{Detection: det, Key: key, State: StateOutside})
			continue
		}

		first, ok := t.firstSeen[key]
		if !ok {
			first = now
			t.firstSeen[key] = now
		}

		elapsed := now.Sub(first)
		state := StatePending
		if elapsed >= t.persistence {
			state = StateConfirmed
		}

		results = append(results, Result{Detection: det, Key: key, State: state, Elapsed: elapsed})
	}

	// A key that vanished this frame loses its progress the same way a key
	// that left the zone does.
	for key := range t.firstSeen {
		if _, ok := seen[key]; !ok {
			delete(t.firstSeen, key)
		}
	}

	return results, dropped, nil
}

// ActiveKeys returns the number of keys currently accumulating dwell time.
func (t *ZoneTracker) ActiveKeys() int {
	return len(t.firstSeen)
}

// Reset clears all persistence state.
func (t *ZoneTracker) Reset() {
	t.firstSeen = make(map[TrackKey]time.Time)
}
