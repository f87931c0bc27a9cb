package tracking

import (
	"errors"
	"image"
	"testing"
	"time"
)

const epsilon = 1e-9

// det builds a detection with the given box corners.
func det(label string, x1, y1, x2, y2 int) Detection {
	return Detection{Label: label, Box: image.Rect(x1, y1, x2, y2), Confidence: 0.9}
}

func mustTracker(t *testing.T, threshold float64, persistence time.Duration) *ZoneTracker {
	t.Helper()
	zt, err := NewZoneTracker(threshold, persistence, DefaultBinSize)
	if err != nil {
		t.Fatalf("NewZoneTracker(%v, %v): %v", threshold, persistence, err)
	}
	return zt
}

func TestNewZoneTrackerValidation(t *testing.T) {
	tests := []struct {
		name        string
		threshold   float64
		persistence time.Duration
		binSize     int
		wantErr     error
	}{
		{"zero threshold", 0, time.Second, 50, ErrInvalidCenterThreshold},
		{"negative threshold", -0.2, time.Second, 50, ErrInvalidCenterThreshold},
		{"threshold above one", 1.5, time.Second, 50, ErrInvalidCenterThreshold},
		{"full frame threshold ok", 1.0, time.Second, 50, nil},
		{"negative persistence", 0.4, -time.Second, 50, ErrInvalidPersistence},
		{"negative bin size", 0.4, time.Second, -1, ErrInvalidBinSize},
		{"default bin size", 0.4, time.Second, 0, nil},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			zt, err := NewZoneTracker(tc.threshold, tc.persistence, tc.binSize)
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Fatalf("got err %v, want %v", err, tc.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tc.binSize == 0 && zt.binSize != DefaultBinSize {
				t.Errorf("bin size = %d, want default %d", zt.binSize, DefaultBinSize)
			}
		})
	}
}

func TestZoneForScenario(t *testing.T) {
	// center_threshold=0.4, frame 640x480 -> zone 192,144,448,336
	zt := mustTracker(t, 0.4, 0)

	zone, err := zt.ZoneFor(640, 480)
	if err != nil {
		t.Fatalf("ZoneFor: %v", err)
	}

	if zone.Left != 192 || zone.Top != 144 || zone.Right != 448 || zone.Bottom != 336 {
		t.Errorf("zone = %+v, want {192 144 448 336}", zone)
	}
}

func TestZoneAreaProperty(t *testing.T) {
	// Zone area must equal threshold^2 * frameW * frameH for any threshold.
	frames := []struct{ w, h int }{{640, 480}, {1920, 1080}, {100, 100}, {3, 7}}
	thresholds := []float64{0.1, 0.2, 0.4, 0.6, 0.75, 1.0}

	for _, fr := range frames {
		for _, th := range thresholds {
			zt := mustTracker(t, th, 0)
			zone, err := zt.ZoneFor(fr.w, fr.h)
			if err != nil {
				t.Fatalf("ZoneFor(%d, %d): %v", fr.w, fr.h, err)
			}

			area := (zone.Right - zone.Left) * (zone.Bottom - zone.Top)
			want := th * th * float64(fr.w) * float64(fr.h)
			if diff := area - want; diff > epsilon || diff < -epsilon {
				t.Errorf("threshold %v frame %dx%d: area = %v, want %v", th, fr.w, fr.h, area, want)
			}
		}
	}
}

func TestContainsFrameCenter(t *testing.T) {
	// A box centered exactly on the frame center is inside for any threshold > 0.
	for _, th := range []float64{0.01, 0.2, 0.5, 1.0} {
		zt := mustTracker(t, th, 0)
		zone, err := zt.ZoneFor(640, 480)
		if err != nil {
			t.Fatalf("ZoneFor: %v", err)
		}

		centered := image.Rect(310, 230, 330, 250) // center (320, 240)
		if !zone.Contains(centered) {
			t.Errorf("threshold %v: centered box reported outside", th)
		}
	}
}

func TestContainsTestsCenterNotOverlap(t *testing.T) {
	zt := mustTracker(t, 0.2, 0)
	zone, err := zt.ZoneFor(640, 480) // zone 256..384 x 192..288
	if err != nil {
		t.Fatalf("ZoneFor: %v", err)
	}

	// Large box overlapping the whole zone but centered far left of it.
	big := image.Rect(0, 0, 300, 480) // center (150, 240)
	if zone.Contains(big) {
		t.Error("box with center outside zone reported inside despite overlap")
	}

	// Zone boundary is inclusive.
	onEdge := image.Rect(384-10, 240-10, 384+10, 240+10) // center exactly (384, 240)
	if !zone.Contains(onEdge) {
		t.Error("box centered exactly on the zone edge reported outside")
	}
}

func TestPersistenceScenario(t *testing.T) {
	// persistence=1.0s; box (300,200,340,240) center (320,220), inside the
	// 0.4 zone on 640x480; observed at t, t+0.5, t+1.0 ->
	// Pending(0), Pending(0.5), Confirmed(1.0).
	zt := mustTracker(t, 0.4, time.Second)
	t0 := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	d := det("mouse", 300, 200, 340, 240)

	steps := []struct {
		at          time.Time
		wantState   ZoneState
		wantElapsed time.Duration
	}{
		{t0, StatePending, 0},
		{t0.Add(500 * time.Millisecond), StatePending, 500 * time.Millisecond},
		{t0.Add(time.Second), StateConfirmed, time.Second},
	}

	for i, step := range steps {
		results, dropped, err := zt.Update([]Detection{d}, 640, 480, step.at)
		if err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
		if len(dropped) != 0 {
			t.Fatalf("step %d: unexpected dropped detections %v", i, dropped)
		}
		if len(results) != 1 {
			t.Fatalf("step %d: got %d results, want 1", i, len(results))
		}
		if results[0].State != step.wantState {
			t.Errorf("step %d: state = %v, want %v", i, results[0].State, step.wantState)
		}
		if results[0].Elapsed != step.wantElapsed {
			t.Errorf("step %d: elapsed = %v, want %v", i, results[0].Elapsed, step.wantElapsed)
		}
	}
}

func TestConfirmedStaysConfirmedWhileInside(t *testing.T) {
	zt := mustTracker(t, 0.4, time.Second)
	t0 := time.Now()
	d := det("mouse", 300, 200, 340, 240)

	times := []time.Duration{0, time.Second, 2 * time.Second, 5 * time.Second}
	var lastElapsed time.Duration

	for i, offset := range times {
		results, _, err := zt.Update([]Detection{d}, 640, 480, t0.Add(offset))
		if err != nil {
			t.Fatalf("update %d: %v", i, err)
		}
		if results[0].Elapsed < lastElapsed {
			t.Errorf("update %d: elapsed decreased from %v to %v", i, lastElapsed, results[0].Elapsed)
		}
		lastElapsed = results[0].Elapsed
		if i >= 1 && results[0].State != StateConfirmed {
			t.Errorf("update %d: state = %v, want CONFIRMED", i, results[0].State)
		}
	}
}

func TestResetWhenAbsent(t *testing.T) {
	// Present at t0, absent at t0+0.5, reappears just after: dwell restarts.
	zt := mustTracker(t, 0.4, time.Second)
	t0 := time.Now()
	d := det("mouse", 300, 200, 340, 240)

	if _, _, err := zt.Update([]Detection{d}, 640, 480, t0); err != nil {
		t.Fatal(err)
	}
	if zt.ActiveKeys() != 1 {
		t.Fatalf("active keys = %d, want 1", zt.ActiveKeys())
	}

	// Empty frame: the key vanishes and its progress with it.
	if _, _, err := zt.Update(nil, 640, 480, t0.Add(500*time.Millisecond)); err != nil {
		t.Fatal(err)
	}
	if zt.ActiveKeys() != 0 {
		t.Fatalf("active keys after absence = %d, want 0", zt.ActiveKeys())
	}

	reappear := t0.Add(500*time.Millisecond + time.Millisecond)
	results, _, err := zt.Update([]Detection{d}, 640, 480, reappear)
	if err != nil {
		t.Fatal(err)
	}
	if results[0].State != StatePending {
		t.Errorf("state after reappearing = %v, want PENDING", results[0].State)
	}
	if results[0].Elapsed != 0 {
		t.Errorf("elapsed after reappearing = %v, want 0 (no resume from t0)", results[0].Elapsed)
	}
}

func TestResetWhenOutsideZone(t *testing.T) {
	// Same key observed outside the zone resets progress immediately. With
	// threshold 0.5 on 640x480 the zone is 160..480 x 120..360, so bin cell
	// [450,500)x[200,250) straddles the right zone edge at x=480.
	zt := mustTracker(t, 0.5, time.Second)
	t0 := time.Now()

	inside := det("mouse", 450, 200, 490, 240)  // center (470, 220), key mouse@450,200
	outside := det("mouse", 470, 200, 510, 240) // center (490, 220), same key, outside

	if _, _, err := zt.Update([]Detection{inside}, 640, 480, t0); err != nil {
		t.Fatal(err)
	}

	results, _, err := zt.Update([]Detection{outside}, 640, 480, t0.Add(200*time.Millisecond))
	if err != nil {
		t.Fatal(err)
	}
	if results[0].Key != (TrackKey{Label: "mouse", BinX: 450, BinY: 200}) {
		t.Fatalf("key = %v, crossing the edge was supposed to keep the bin", results[0].Key)
	}
	if results[0].State != StateOutside {
		t.Fatalf("state = %v, want OUTSIDE", results[0].State)
	}
	if zt.ActiveKeys() != 0 {
		t.Fatalf("active keys = %d, want 0 after leaving the zone", zt.ActiveKeys())
	}

	// Coming back restarts from scratch.
	back, _, err := zt.Update([]Detection{inside}, 640, 480, t0.Add(400*time.Millisecond))
	if err != nil {
		t.Fatal(err)
	}
	if back[0].State != StatePending || back[0].Elapsed != 0 {
		t.Errorf("re-entry state = %v elapsed = %v, want PENDING 0", back[0].State, back[0].Elapsed)
	}
}

func TestBinningToleratesJitter(t *testing.T) {
	// Two boxes whose centers differ by less than binSize in both axes and
	// stay in the same grid cell share one key, so jitter does not reset the
	// dwell clock.
	zt := mustTracker(t, 0.4, time.Second)
	t0 := time.Now()

	first := det("mouse", 300, 200, 340, 240)  // center (320, 220)
	second := det("mouse", 310, 210, 350, 248) // center (330, 229), same cell

	if _, _, err := zt.Update([]Detection{first}, 640, 480, t0); err != nil {
		t.Fatal(err)
	}

	results, _, err := zt.Update([]Detection{second}, 640, 480, t0.Add(600*time.Millisecond))
	if err != nil {
		t.Fatal(err)
	}
	if results[0].Elapsed != 600*time.Millisecond {
		t.Errorf("elapsed = %v, want 600ms carried across jittered boxes", results[0].Elapsed)
	}
}

func TestZeroPersistenceConfirmsImmediately(t *testing.T) {
	// The earliest script variant: inside means confirmed, no dwell needed.
	zt := mustTracker(t, 0.6, 0)

	results, _, err := zt.Update([]Detection{det("cat", 300, 220, 340, 260)}, 640, 480, time.Now())
	if err != nil {
		t.Fatal(err)
	}
	if results[0].State != StateConfirmed {
		t.Errorf("state = %v, want CONFIRMED with zero persistence", results[0].State)
	}
}

func TestInvalidFrameDimensions(t *testing.T) {
	zt := mustTracker(t, 0.4, time.Second)
	t0 := time.Now()
	d := det("mouse", 300, 200, 340, 240)

	// Seed some state, then fail an update; the state must survive intact.
	if _, _, err := zt.Update([]Detection{d}, 640, 480, t0); err != nil {
		t.Fatal(err)
	}

	_, _, err := zt.Update([]Detection{d}, 0, 480, t0.Add(100*time.Millisecond))
	if !errors.Is(err, ErrInvalidFrameDimensions) {
		t.Fatalf("err = %v, want ErrInvalidFrameDimensions", err)
	}
	_, _, err = zt.Update([]Detection{d}, 640, -1, t0.Add(100*time.Millisecond))
	if !errors.Is(err, ErrInvalidFrameDimensions) {
		t.Fatalf("err = %v, want ErrInvalidFrameDimensions", err)
	}

	// Dwell accumulated before the failed call is still there.
	results, _, err := zt.Update([]Detection{d}, 640, 480, t0.Add(time.Second))
	if err != nil {
		t.Fatal(err)
	}
	if results[0].State != StateConfirmed {
		t.Errorf("state = %v, want CONFIRMED (failed call must not mutate state)", results[0].State)
	}

	if _, err := zt.ZoneFor(0, 0); !errors.Is(err, ErrInvalidFrameDimensions) {
		t.Errorf("ZoneFor(0,0) err = %v, want ErrInvalidFrameDimensions", err)
	}
}

func TestDegenerateBoxesDropped(t *testing.T) {
	zt := mustTracker(t, 0.4, 0)

	good := det("mouse", 300, 200, 340, 240)
	flat := det("mouse", 300, 240, 340, 240) // y1 == y2

	// image.Rect canonicalizes swapped corners, so build the x1 > x2 box by hand.
	inverted := Detection{
		Label:      "mouse",
		Box:        image.Rectangle{Min: image.Point{X: 340, Y: 200}, Max: image.Point{X: 300, Y: 240}},
		Confidence: 0.9,
	}

	results, dropped, err := zt.Update([]Detection{good, flat, inverted}, 640, 480, time.Now())
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 {
		t.Errorf("got %d results, want 1 (degenerate boxes dropped)", len(results))
	}
	if len(dropped) != 2 {
		t.Errorf("got %d dropped, want 2", len(dropped))
	}
	if zt.ActiveKeys() != 1 {
		t.Errorf("active keys = %d, want 1 (dropped boxes must not create keys)", zt.ActiveKeys())
	}
}

func TestIndependentKeysPerLabel(t *testing.T) {
	// Same cell, different labels: separate keys, separate dwell clocks.
	zt := mustTracker(t, 0.6, time.Second)
	t0 := time.Now()

	mouse := det("mouse", 300, 200, 340, 240)
	cat := det("cat", 300, 200, 340, 240)

	if _, _, err := zt.Update([]Detection{mouse}, 640, 480, t0); err != nil {
		t.Fatal(err)
	}

	results, _, err := zt.Update([]Detection{mouse, cat}, 640, 480, t0.Add(time.Second))
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}

	byLabel := map[string]Result{}
	for _, r := range results {
		byLabel[r.Label] = r
	}
	if byLabel["mouse"].State != StateConfirmed {
		t.Errorf("mouse state = %v, want CONFIRMED", byLabel["mouse"].State)
	}
	if byLabel["cat"].State != StatePending || byLabel["cat"].Elapsed != 0 {
		t.Errorf("cat state = %v elapsed = %v, want fresh PENDING", byLabel["cat"].State, byLabel["cat"].Elapsed)
	}
}

func TestReset(t *testing.T) {
	zt := mustTracker(t, 0.4, time.Second)
	if _, _, err := zt.Update([]Detection{det("mouse", 300, 200, 340, 240)}, 640, 480, time.Now()); err != nil {
		t.Fatal(err)
	}
	zt.Reset()
	if zt.ActiveKeys() != 0 {
		t.Errorf("active keys after Reset = %d, want 0", zt.ActiveKeys())
	}
}
