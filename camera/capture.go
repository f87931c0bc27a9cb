package camera

import (
	"fmt"
	"strconv"

	"gocv.io/x/gocv"
)

// Capture wraps a gocv video source: a webcam device index ("0"), a video
// file, or a stream URL.
type Capture struct {
	source string
	cap    *gocv.VideoCapture
}

// Open opens the capture source. A numeric source is treated as a webcam
// device index, anything else as a file path or stream URL.
func Open(source string) (*Capture, error) {
	var cap *gocv.VideoCapture
	var err error

	if deviceID, convErr := strconv.Atoi(source); convErr == nil {
		cap, err = gocv.OpenVideoCapture(deviceID)
	} else {
		cap, err = gocv.OpenVideoCapture(source)
	}
	if err != nil {
		return nil, fmt.Errorf("could not open capture source %q: %v", source, err)
	}
	if !cap.IsOpened() {
		cap.Close()
		return nil, fmt.Errorf("capture source %q opened but is not ready", source)
	}

	return &Capture{source: source, cap: cap}, nil
}

// Read grabs the next frame into dst. A false return signals end of stream
// or a capture failure; the caller decides whether to retry or shut down.
func (c *Capture) Read(dst *gocv.Mat) bool {
	if c.cap == nil {
		return false
	}
	return c.cap.Read(dst)
}

// IsOpened reports whether the underlying device is still open.
func (c *Capture) IsOpened() bool {
	return c.cap != nil && c.cap.IsOpened()
}

// Source returns the configured source string.
func (c *Capture) Source() string {
	return c.source
}

// Close releases the capture device.
func (c *Capture) Close() error {
	if c.cap == nil {
		return nil
	}
	err := c.cap.Close()
	c.cap = nil
	return err
}
