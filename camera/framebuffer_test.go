package camera

import (
	"testing"

	"gocv.io/x/gocv"
)

func TestIsValidFrame(t *testing.T) {
	empty := gocv.NewMat()
	defer empty.Close()
	if IsValidFrame(empty) {
		t.Error("empty Mat reported as valid")
	}

	frame := gocv.NewMatWithSize(480, 640, gocv.MatTypeCV8UC3)
	defer frame.Close()
	if !IsValidFrame(frame) {
		t.Error("real frame reported as invalid")
	}
}

func TestProcessFrameReturnsCopy(t *testing.T) {
	fb := NewFrameBuffer()
	defer fb.Close()

	frame := gocv.NewMatWithSize(480, 640, gocv.MatTypeCV8UC3)
	defer frame.Close()

	out, ok := fb.ProcessFrame(frame)
	defer out.Close()
	if !ok {
		t.Fatal("valid frame rejected")
	}
	if !IsValidFrame(out) {
		t.Error("returned frame is invalid")
	}
	if out.Ptr() == frame.Ptr() {
		t.Error("returned frame aliases the input, caller cannot reuse the input Mat")
	}
}

func TestProcessFrameFallsBackToLastGood(t *testing.T) {
	fb := NewFrameBuffer()
	defer fb.Close()

	good := gocv.NewMatWithSize(480, 640, gocv.MatTypeCV8UC3)
	defer good.Close()
	out, ok := fb.ProcessFrame(good)
	if !ok {
		t.Fatal("good frame rejected")
	}
	out.Close()

	bad := gocv.NewMat()
	defer bad.Close()

	// Errors below the threshold yield no frame.
	for i := 0; i < 4; i++ {
		out, ok := fb.ProcessFrame(bad)
		if ok {
			t.Fatalf("invalid frame %d accepted before error threshold", i+1)
		}
		out.Close()
	}

	// At the threshold the buffer recovers with the last good frame.
	out, ok = fb.ProcessFrame(bad)
	defer out.Close()
	if !ok {
		t.Fatal("no fallback frame after repeated capture errors")
	}
	if !IsValidFrame(out) {
		t.Error("fallback frame is invalid")
	}
	if out.Rows() != 480 || out.Cols() != 640 {
		t.Errorf("fallback frame is %dx%d, want 640x480", out.Cols(), out.Rows())
	}
}
