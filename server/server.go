// Package server exposes the detector over HTTP: a JSON API compatible with
// the dashboard that used to talk to the Flask version, plus a live MJPEG
// stream of the annotated feed.
package server

import (
	"context"
	"encoding/base64"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"rodentcam/classify"
	"rodentcam/tracking"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// Global debug function for server package
var debugMsgFunc func(component, message string)

// SetDebugFunction allows main package to provide debug function
func SetDebugFunction(fn func(component, message string)) {
	debugMsgFunc = fn
}

func debugMsg(component, message string) {
	if debugMsgFunc != nil {
		debugMsgFunc(component, message)
	}
}

// candidatePorts is the probe order. 5001 first because macOS AirPlay
// squats on 5000.
var candidatePorts = []int{5001, 5000, 5002, 8000}

// PickPort returns the first free port from the candidate list, falling
// back to the last candidate if none probe as free.
func PickPort() int {
	for _, port := range candidatePorts {
		ln, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", port))
		if err != nil {
			continue
		}
		ln.Close()
		return port
	}
	return candidatePorts[len(candidatePorts)-1]
}

// BoundingBox mirrors the JSON shape of the old Flask monitor API.
type BoundingBox struct {
	X int `json:"x"`
	Y int `json:"y"`
	W int `json:"w"`
	H int `json:"h"`
}

// DetectionJSON is one tracked detection in API responses.
type DetectionJSON struct {
	ClassName      string      `json:"class_name"`
	Confidence     float64     `json:"confidence"`
	BBox           BoundingBox `json:"bbox"`
	ZoneState      string      `json:"zone_state"`
	ElapsedSeconds float64     `json:"elapsed_seconds"`
}

// ResultsJSON is the payload of GET /results.
type ResultsJSON struct {
	Timestamp  float64         `json:"timestamp"`
	FPS        float64         `json:"fps"`
	Detections []DetectionJSON `json:"detections"`
	Verdict    string          `json:"verdict,omitempty"`
	Status     string          `json:"status"`
}

// toJSON converts tracker results to the wire shape. Zone states go out
// lowercase ("outside", "pending", "confirmed"); the uppercase form is for
// overlay labels only.
func toJSON(results []tracking.Result) []DetectionJSON {
	out := make([]DetectionJSON, 0, len(results))
	for _, r := range results {
		out = append(out, DetectionJSON{
			ClassName:  r.Label,
			Confidence: r.Confidence,
			BBox: BoundingBox{
				X: r.Box.Min.X,
				Y: r.Box.Min.Y,
				W: r.Box.Dx(),
				H: r.Box.Dy(),
			},
			ZoneState:      strings.ToLower(r.State.String()),
			ElapsedSeconds: r.Elapsed.Seconds(),
		})
	}
	return out
}

// FrameHub is the single shared "latest frame" value between the detection
// loop (writer) and the HTTP handlers (readers).
type FrameHub struct {
	mu        sync.RWMutex
	frame     []byte // latest annotated frame as JPEG
	results   []tracking.Result
	verdict   string
	fps       float64
	updatedAt time.Time
}

// NewFrameHub creates an empty hub.
func NewFrameHub() *FrameHub {
	return &FrameHub{}
}

// Publish stores the latest annotated frame and its tracker results. The
// jpeg slice is owned by the hub after the call.
func (h *FrameHub) Publish(jpeg []byte, results []tracking.Result, verdict string, fps float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.frame = jpeg
	h.results = results
	h.verdict = verdict
	h.fps = fps
	h.updatedAt = time.Now()
}

// Frame returns the latest JPEG frame, or nil when nothing was published yet.
func (h *FrameHub) Frame() []byte {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.frame
}

// Snapshot returns the latest results, verdict and FPS.
func (h *FrameHub) Snapshot() ([]tracking.Result, string, float64, time.Time) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.results, h.verdict, h.fps, h.updatedAt
}

// Server serves the detector API.
type Server struct {
	hub      *FrameHub
	cameraOK func() bool
	classify func(ctx context.Context, jpeg []byte) (string, error)
	engine   *gin.Engine
}

// New builds the HTTP server. cameraOK reports capture health; classify may
// be nil when no API key is configured, which turns POST /detect into a 503.
func New(hub *FrameHub, cameraOK func() bool, classify func(ctx context.Context, jpeg []byte) (string, error)) *Server {
	gin.SetMode(gin.ReleaseMode)

	s := &Server{
		hub:      hub,
		cameraOK: cameraOK,
		classify: classify,
		engine:   gin.New(),
	}
	s.engine.Use(gin.Recovery())
	s.engine.Use(cors.Default()) // the dashboard runs on a different origin

	s.engine.GET("/health", s.handleHealth)
	s.engine.POST("/detect", s.handleDetect)
	s.engine.GET("/capture", s.handleCapture)
	s.engine.GET("/results", s.handleResults)
	s.engine.GET("/stream", s.handleStream)

	return s
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run blocks serving on addr.
func (s *Server) Run(addr string) error {
	debugMsg("SERVER", fmt.Sprintf("API server listening on http://%s", addr))
	return s.engine.Run(addr)
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"camera": s.cameraOK(),
	})
}

func (s *Server) handleDetect(c *gin.Context) {
	if s.classify == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error":  "classifier not configured (set GEMINI_API_KEY)",
			"status": "error",
		})
		return
	}

	frame := s.hub.Frame()
	if frame == nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":  "could not capture frame from camera",
			"status": "error",
		})
		return
	}

	debugMsg("SERVER", "detection request received")
	verdict, err := s.classify(c.Request.Context(), frame)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":  err.Error(),
			"status": "error",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"detected": classify.IsRodentVerdict(verdict),
		"result":   verdict,
		"status":   "success",
	})
}

func (s *Server) handleCapture(c *gin.Context) {
	frame := s.hub.Frame()
	if frame == nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not capture frame"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"image":  "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(frame),
		"status": "success",
	})
}

func (s *Server) handleResults(c *gin.Context) {
	results, verdict, fps, updatedAt := s.hub.Snapshot()

	c.JSON(http.StatusOK, ResultsJSON{
		Timestamp:  float64(updatedAt.UnixNano()) / float64(time.Second),
		FPS:        fps,
		Detections: toJSON(results),
		Verdict:    verdict,
		Status:     "success",
	})
}

// streamInterval paces the MJPEG stream independently of the capture rate.
const streamInterval = 66 * time.Millisecond // ~15 fps

func (s *Server) handleStream(c *gin.Context) {
	debugMsg("SERVER", "new stream client connected")
	c.Header("Content-Type", "multipart/x-mixed-replace; boundary=frame")

	w := c.Writer
	flusher, canFlush := w.(http.Flusher)

	ticker := time.NewTicker(streamInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.Request.Context().Done():
			debugMsg("SERVER", "stream client disconnected")
			return
		case <-ticker.C:
			frame := s.hub.Frame()
			if frame == nil {
				continue
			}

			w.Write([]byte("--frame\r\n"))
			w.Write([]byte("Content-Type: image/jpeg\r\n\r\n"))
			w.Write(frame)
			w.Write([]byte("\r\n"))
			if canFlush {
				flusher.Flush()
			}
		}
	}
}
