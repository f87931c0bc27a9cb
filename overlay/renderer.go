package overlay

import (
	"fmt"
	"image"
	"image/color"

	"rodentcam/tracking"

	"gocv.io/x/gocv"
)

// debugMsgFunc is a function that will be set by main package to use unified logging
var debugMsgFunc func(component, message string)

// SetDebugFunction allows main package to provide the debug logger
func SetDebugFunction(fn func(component, message string)) {
	debugMsgFunc = fn
}

// debugMsg is a wrapper that handles nil checks
func debugMsg(component, message string) {
	if debugMsgFunc != nil {
		debugMsgFunc(component, message)
	}
}

var (
	colorZone      = color.RGBA{0, 255, 0, 0}     // green
	colorOutside   = color.RGBA{0, 255, 0, 0}     // green
	colorPending   = color.RGBA{0, 255, 255, 0}   // yellow
	colorConfirmed = color.RGBA{0, 0, 255, 0}     // red (BGR order in gocv)
	colorText      = color.RGBA{255, 255, 255, 0} // white
	colorAlert     = color.RGBA{0, 0, 255, 0}
	colorOK        = color.RGBA{0, 255, 0, 0}
)

// stateColor maps a zone state to its box color.
func stateColor(state tracking.ZoneState) color.RGBA {
	switch state {
	case tracking.StateConfirmed:
		return colorConfirmed
	case tracking.StatePending:
		return colorPending
	default:
		return colorOutside
	}
}

// Renderer draws detection and zone annotations onto frames.
type Renderer struct {
	crosshairSize int
}

// NewRenderer creates a renderer with default styling.
func NewRenderer() *Renderer {
	return &Renderer{crosshairSize: 20}
}

// DrawZone draws the center detection zone and a crosshair on the frame
// center.
func (r *Renderer) DrawZone(img *gocv.Mat, zone tracking.Zone) {
	rect := zone.Rect()
	gocv.Rectangle(img, rect, colorZone, 2)
	gocv.PutText(img, "Center Zone", image.Pt(rect.Min.X, rect.Min.Y-10),
		gocv.FontHersheySimplex, 0.5, colorZone, 2)

	centerX := (rect.Min.X + rect.Max.X) / 2
	centerY := (rect.Min.Y + rect.Max.Y) / 2
	gocv.Line(img, image.Pt(centerX-r.crosshairSize, centerY),
		image.Pt(centerX+r.crosshairSize, centerY), colorZone, 2)
	gocv.Line(img, image.Pt(centerX, centerY-r.crosshairSize),
		image.Pt(centerX, centerY+r.crosshairSize), colorZone, 2)
}

// DrawResults draws one bounding box per tracked detection, colored by zone
// state, with a label carrying confidence and dwell time.
func (r *Renderer) DrawResults(img *gocv.Mat, results []tracking.Result) {
	for _, res := range results {
		boxColor := stateColor(res.State)
		gocv.Rectangle(img, res.Box, boxColor, 2)

		label := fmt.Sprintf("%s %.2f", res.Label, res.Confidence)
		switch res.State {
		case tracking.StatePending:
			label += fmt.Sprintf(" (CENTER %.1fs)", res.Elapsed.Seconds())
		case tracking.StateConfirmed:
			label += " (CONFIRMED)"
		}

		gocv.PutText(img, label, image.Pt(res.Box.Min.X, res.Box.Min.Y-5),
			gocv.FontHersheySimplex, 0.5, boxColor, 2)
	}
}

// DrawStatus draws the status line: FPS, in-zone object count, quit hint.
func (r *Renderer) DrawStatus(img *gocv.Mat, fps float64, inZone int) {
	gocv.PutText(img, fmt.Sprintf("FPS: %.1f", fps), image.Pt(10, 30),
		gocv.FontHersheySimplex, 0.7, colorOK, 2)
	gocv.PutText(img, fmt.Sprintf("Objects in center: %d", inZone), image.Pt(10, 60),
		gocv.FontHersheySimplex, 0.7, colorText, 2)

	h := img.Rows()
	gocv.PutText(img, "Press 'q' to quit", image.Pt(10, h-10),
		gocv.FontHersheySimplex, 0.5, colorText, 1)
}

// DrawVerdict draws the latest classifier verdict banner. It persists on
// every frame until replaced, matching the behavior people expect from the
// live view: the answer stays readable after the check ran.
func (r *Renderer) DrawVerdict(img *gocv.Mat, verdict string, rodent bool) {
	if verdict == "" {
		return
	}

	text := "Not a mouse"
	banner := colorOK
	if rodent {
		text = "MOUSE DETECTED!"
		banner = colorAlert
	}
	gocv.PutText(img, text, image.Pt(10, 100),
		gocv.FontHersheySimplex, 1.2, banner, 3)
	gocv.PutText(img, fmt.Sprintf("Last verdict: %s", verdict), image.Pt(10, 135),
		gocv.FontHersheySimplex, 0.6, banner, 2)
}
