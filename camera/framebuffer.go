package camera

import (
	"fmt"
	"sync"
	"time"

	"gocv.io/x/gocv"
)

// FrameBuffer manages frame buffering and error recovery. When the capture
// path produces garbage it can fall back to the last good frame instead of
// feeding an invalid Mat into the detection pipeline.
type FrameBuffer struct {
	mu            sync.Mutex
	lastGoodFrame gocv.Mat
	errorCount    int
	maxErrors     int
	lastError     time.Time
}

// NewFrameBuffer creates a frame buffer with default recovery settings.
func NewFrameBuffer() *FrameBuffer {
	return &FrameBuffer{
		maxErrors: 5, // Maximum consecutive errors before falling back
	}
}

// ProcessFrame validates a captured frame. The returned Mat is always a
// fresh copy owned by the caller, so the input frame can be reused for the
// next capture.
func (fb *FrameBuffer) ProcessFrame(frame gocv.Mat) (gocv.Mat, bool) {
	fb.mu.Lock()
	defer fb.mu.Unlock()

	if !IsValidFrame(frame) {
		fb.errorCount++
		fb.lastError = time.Now()
		if fb.errorCount >= fb.maxErrors {
			if IsValidFrame(fb.lastGoodFrame) {
				fmt.Println("[RECOVERY] Using last good frame due to invalid capture.")
				return fb.lastGoodFrame.Clone(), true
			}
		}
		return gocv.NewMat(), false
	}

	// Frame is valid, update last good frame
	if IsValidFrame(fb.lastGoodFrame) {
		fb.lastGoodFrame.Close()
	}
	fb.lastGoodFrame = frame.Clone()
	fb.errorCount = 0
	fb.lastError = time.Time{}
	return frame.Clone(), true
}

// Close releases resources
func (fb *FrameBuffer) Close() {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	if fb.lastGoodFrame.Ptr() != nil {
		fb.lastGoodFrame.Close()
		fb.lastGoodFrame = gocv.NewMat() // Reset to empty mat
	}
}

// IsValidFrame checks if a frame is valid without using CGO calls
func IsValidFrame(frame gocv.Mat) bool {
	if frame.Ptr() == nil {
		return false
	}

	rows := frame.Rows()
	cols := frame.Cols()
	channels := frame.Channels()

	return rows > 0 && cols > 0 && channels > 0
}
