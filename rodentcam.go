package main

import (
	"context"
	"flag"
	"fmt"
	"image"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"rodentcam/camera"
	"rodentcam/classify"
	"rodentcam/detection"
	"rodentcam/overlay"
	"rodentcam/server"
	"rodentcam/tracking"

	"gocv.io/x/gocv"
	"gonum.org/v1/gonum/stat"
)

const (
	frameRate          = 30               // Target frames per second
	perfReportInterval = 15 * time.Second // Performance reporting interval
	statsWindow        = 300              // Samples kept per pipeline stage
)

var (
	// Command-line flags
	inputSource = flag.String("input", "0", "Capture source: webcam device index, video file, or stream URL\n\t\tExample: -input=0 or -input=rtsp://192.168.1.50:554/stream")
	weightsPath = flag.String("weights", "models/yolov4-tiny.weights", "Path to YOLO weights file")
	configPath  = flag.String("config", "models/yolov4-tiny.cfg", "Path to YOLO network config file")
	namesPath   = flag.String("names", "models/coco.names", "Path to class names file (one label per line)")

	centerThreshold = flag.Float64("center-threshold", 0.4, "Center zone size as a fraction of the frame (0.0-1.0)\n\t\tExample: -center-threshold=0.5 for a zone covering half of each dimension")
	persistenceSec  = flag.Float64("persistence", 0, "Seconds an object must stay in the center zone before it is confirmed (0 = immediate)")
	minConfidence   = flag.Float64("min-confidence", 0.5, "Minimum detection confidence threshold (0.0-1.0)")
	trackLabels     = flag.String("track", "all", "Comma-separated class labels to track, or 'all'\n\t\tExample: -track=\"mouse,rat,cat\"")

	verdictCooldown = flag.Float64("verdict-cooldown", 5, "Minimum seconds between Gemini verdict requests")
	geminiModels    = flag.String("gemini-models", "", "Comma-separated Gemini model candidates (empty = built-in fallback list)")
	noClassify      = flag.Bool("no-classify", false, "Disable Gemini verdicts entirely (detection and tracking only)")

	listenAddr  = flag.String("listen", "", "HTTP listen address (empty = 127.0.0.1 with automatic port selection)")
	noServer    = flag.Bool("no-server", false, "Disable the HTTP API and MJPEG stream")
	showDisplay = flag.Bool("display", false, "Show a live annotated window (requires a local display)")
	debugMode   = flag.Bool("debug", false, "Enable debug logging")
	debugLog    = flag.String("debug-log", "", "Also append debug messages to this file")

	// Global debug logger instance
	globalDebugLogger *DebugLogger
)

// debugMsg is the global convenience function for unified debug logging
func debugMsg(component, message string) {
	if globalDebugLogger != nil {
		globalDebugLogger.debugMsg(component, message)
	} else {
		fmt.Printf("[%s] %s\n", component, message)
	}
}

// DebugLogger provides unified debug message handling for console and file
type DebugLogger struct {
	enabled bool
	mu      sync.Mutex
	file    *os.File
}

// NewDebugLogger creates a unified debug logger
func NewDebugLogger(enabled bool, logPath string) *DebugLogger {
	dl := &DebugLogger{enabled: enabled}
	if logPath != "" {
		f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			fmt.Printf("[DEBUG] Could not open debug log file: %v\n", err)
		} else {
			dl.file = f
		}
	}
	return dl
}

func (dl *DebugLogger) debugMsg(component, message string) {
	if !dl.enabled {
		return
	}
	line := fmt.Sprintf("%s [%s] %s", time.Now().Format("15:04:05.000"), component, message)

	dl.mu.Lock()
	defer dl.mu.Unlock()
	fmt.Println(line)
	if dl.file != nil {
		fmt.Fprintln(dl.file, line)
	}
}

// Close flushes and closes the log file if one is open
func (dl *DebugLogger) Close() {
	dl.mu.Lock()
	defer dl.mu.Unlock()
	if dl.file != nil {
		dl.file.Close()
		dl.file = nil
	}
}

// PipelineStats tracks performance metrics for different parts of the pipeline
type PipelineStats struct {
	mu           sync.Mutex
	captureTimes []float64 // milliseconds, rolling window
	detectTimes  []float64
	trackTimes   []float64
	frameCount   int64
	lastFPSCalc  time.Time
	currentFPS   float64
}

// NewPipelineStats creates a new pipeline statistics tracker
func NewPipelineStats() *PipelineStats {
	return &PipelineStats{lastFPSCalc: time.Now()}
}

func appendSample(window []float64, d time.Duration) []float64 {
	window = append(window, float64(d)/float64(time.Millisecond))
	if len(window) > statsWindow {
		window = window[len(window)-statsWindow:]
	}
	return window
}

// UpdateCapture records a frame capture duration
func (ps *PipelineStats) UpdateCapture(d time.Duration) {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.captureTimes = appendSample(ps.captureTimes, d)
}

// UpdateDetect records a YOLO inference duration
func (ps *PipelineStats) UpdateDetect(d time.Duration) {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.detectTimes = appendSample(ps.detectTimes, d)
}

// UpdateTracking records a tracker update duration
func (ps *PipelineStats) UpdateTracking(d time.Duration) {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.trackTimes = appendSample(ps.trackTimes, d)
}

// UpdateFPS counts a finished frame and returns the current smoothed FPS
func (ps *PipelineStats) UpdateFPS() float64 {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	ps.frameCount++
	elapsed := time.Since(ps.lastFPSCalc)
	if elapsed >= time.Second {
		ps.currentFPS = float64(ps.frameCount) / elapsed.Seconds()
		ps.frameCount = 0
		ps.lastFPSCalc = time.Now()
	}
	return ps.currentFPS
}

// summarize reduces a sample window to mean and standard deviation
func summarize(samples []float64) (mean, stddev float64) {
	if len(samples) == 0 {
		return 0, 0
	}
	mean = stat.Mean(samples, nil)
	if len(samples) > 1 {
		stddev = stat.StdDev(samples, nil)
	}
	return mean, stddev
}

// Report prints a one-line performance summary of the rolling windows
func (ps *PipelineStats) Report() {
	ps.mu.Lock()
	capMean, capStd := summarize(ps.captureTimes)
	detMean, detStd := summarize(ps.detectTimes)
	trkMean, trkStd := summarize(ps.trackTimes)
	fps := ps.currentFPS
	ps.mu.Unlock()

	fmt.Printf("[STATS] fps=%.1f capture=%.1f±%.1fms detect=%.1f±%.1fms track=%.2f±%.2fms\n",
		fps, capMean, capStd, detMean, detStd, trkMean, trkStd)
}

// verdictResult carries a finished Gemini request back to the main loop
type verdictResult struct {
	key     tracking.TrackKey
	verdict string
	err     error
}

func printUsageExamples() {
	fmt.Println("\n🐭 rodentcam - zone persistence rodent detector")
	fmt.Println("================================================================")
	fmt.Println("\n💡 USAGE EXAMPLES:")
	fmt.Println("\n  Basic operation (default webcam):")
	fmt.Println("    ./rodentcam")
	fmt.Println("\n  Specific camera or stream:")
	fmt.Println("    ./rodentcam -input=1")
	fmt.Println("    ./rodentcam -input=rtsp://192.168.1.50:554/stream")
	fmt.Println("\n  Require 2 seconds of dwell before confirming:")
	fmt.Println("    ./rodentcam -persistence=2")
	fmt.Println("\n  Larger center zone, lower confidence floor:")
	fmt.Println("    ./rodentcam -center-threshold=0.6 -min-confidence=0.3")
	fmt.Println("\n  Track specific classes only:")
	fmt.Println("    ./rodentcam -track=\"mouse,rat,cat\"")
	fmt.Println("\n  Detection only, no Gemini verdicts:")
	fmt.Println("    ./rodentcam -no-classify")
	fmt.Println("\n  Headless with debug logging:")
	fmt.Println("    ./rodentcam -debug -debug-log=/tmp/rodentcam.log")
	fmt.Println("\n  Local display window:")
	fmt.Println("    ./rodentcam -display")
	fmt.Println("\n🔧 FLAGS:")
	flag.Usage()
	fmt.Println("\n📝 NOTES:")
	fmt.Println("  • Gemini verdicts need GEMINI_API_KEY in the environment or a .env file")
	fmt.Println("  • The HTTP API tries ports 5001, 5000, 5002, 8000 in that order")
	fmt.Println("  • Press 'q' in the display window to quit")
	fmt.Println("")
}

// parseTrackFilter parses the -track flag into a lookup set. A nil set
// means track everything.
func parseTrackFilter(spec string) map[string]bool {
	spec = strings.TrimSpace(spec)
	if spec == "" || strings.EqualFold(spec, "all") {
		return nil
	}
	set := make(map[string]bool)
	for _, label := range strings.Split(spec, ",") {
		label = strings.TrimSpace(strings.ToLower(label))
		if label != "" {
			set[label] = true
		}
	}
	return set
}

// toTrackerInput converts raw YOLO output into tracker detections, applying
// the label filter.
func toTrackerInput(result *detection.DetectionResult, filter map[string]bool) []tracking.Detection {
	dets := make([]tracking.Detection, 0, len(result.Rects))
	for i, rect := range result.Rects {
		label := result.ClassNames[i]
		if filter != nil && !filter[strings.ToLower(label)] {
			continue
		}
		dets = append(dets, tracking.Detection{
			Label:      label,
			Box:        rect,
			Confidence: result.Confidences[i],
		})
	}
	return dets
}

// encodeJPEG encodes a frame for the HTTP hub and for Gemini requests
func encodeJPEG(frame gocv.Mat) ([]byte, error) {
	buf, err := gocv.IMEncode(gocv.JPEGFileExt, frame)
	if err != nil {
		return nil, err
	}
	defer buf.Close()

	data := make([]byte, len(buf.GetBytes()))
	copy(data, buf.GetBytes())
	return data, nil
}

// cropToZone clips the center zone out of the frame for classification, so
// Gemini sees the region the tracker confirmed rather than the whole scene.
func cropToZone(frame gocv.Mat, zone tracking.Zone) ([]byte, error) {
	rect := zone.Rect()
	bounds := image.Rect(0, 0, frame.Cols(), frame.Rows())
	rect = rect.Intersect(bounds)
	if rect.Empty() {
		return encodeJPEG(frame)
	}

	region := frame.Region(rect)
	defer region.Close()
	return encodeJPEG(region)
}

func main() {
	// Parse command-line flags
	flag.Parse()

	// Show usage examples for -h flag
	if len(os.Args) > 1 && (os.Args[1] == "-h" || os.Args[1] == "--help") {
		printUsageExamples()
		os.Exit(0)
	}

	// Initialize global unified debug logger
	globalDebugLogger = NewDebugLogger(*debugMode, *debugLog)
	defer globalDebugLogger.Close()

	// Route package-level debug output through the unified logger
	detection.SetDebugFunction(debugMsg)
	tracking.SetZoneDebugFunction(debugMsg)
	overlay.SetDebugFunction(debugMsg)
	classify.SetDebugFunction(debugMsg)
	server.SetDebugFunction(debugMsg)

	if *centerThreshold <= 0 || *centerThreshold > 1 {
		fmt.Fprintf(os.Stderr, "Error: -center-threshold must be in (0, 1], got %v\n", *centerThreshold)
		os.Exit(1)
	}
	if *minConfidence < 0 || *minConfidence > 1 {
		fmt.Fprintf(os.Stderr, "Error: -min-confidence must be in [0, 1], got %v\n", *minConfidence)
		os.Exit(1)
	}

	persistence := time.Duration(*persistenceSec * float64(time.Second))
	tracker, err := tracking.NewZoneTracker(*centerThreshold, persistence, 0)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("🐭 [RODENTCAM] Starting up...")
	fmt.Printf("[CONFIG] zone=%.0f%% persistence=%v confidence=%.2f track=%s\n",
		*centerThreshold*100, persistence, *minConfidence, *trackLabels)

	// Initialize inference provider with GPU auto-detection
	providerManager := detection.NewProviderManager()
	if err := providerManager.Initialize(*weightsPath, *configPath, *namesPath); err != nil {
		fmt.Fprintf(os.Stderr, "❌ Inference initialization failed: %v\n", err)
		os.Exit(1)
	}
	defer providerManager.Close()

	info := providerManager.GetProviderInfo()
	fmt.Printf("✅ [PROVIDER] %s inference ready (%s, ~%d FPS)\n", info.Type, info.Backend, info.EstimatedFPS)

	// Open the capture source
	cam, err := camera.Open(*inputSource)
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ Camera error: %v\n", err)
		os.Exit(1)
	}
	defer cam.Close()
	fmt.Printf("✅ [CAMERA] Capture source %q opened\n", cam.Source())

	frameBuffer := camera.NewFrameBuffer()
	defer frameBuffer.Close()

	// Gemini verdict client (optional)
	var verdictClient *classify.Client
	if !*noClassify {
		apiKey, err := classify.LoadAPIKey()
		if err != nil {
			fmt.Printf("⚠️  [GEMINI] %v\n", err)
			fmt.Println("⚠️  [GEMINI] Continuing without verdicts (detection and tracking only)")
		} else {
			var candidates []string
			if *geminiModels != "" {
				candidates = strings.Split(*geminiModels, ",")
			}
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			verdictClient, err = classify.NewClient(ctx, apiKey, candidates)
			cancel()
			if err != nil {
				fmt.Printf("⚠️  [GEMINI] %v\n", err)
				fmt.Println("⚠️  [GEMINI] Continuing without verdicts")
				verdictClient = nil
			} else {
				fmt.Printf("✅ [GEMINI] Using model %s\n", verdictClient.Model())
			}
		}
	}

	gate := classify.NewGate(time.Duration(*verdictCooldown * float64(time.Second)))

	// HTTP API and MJPEG stream
	hub := server.NewFrameHub()
	if !*noServer {
		var classifyFn func(ctx context.Context, jpeg []byte) (string, error)
		if verdictClient != nil {
			classifyFn = verdictClient.Classify
		}
		srv := server.New(hub, cam.IsOpened, classifyFn)

		addr := *listenAddr
		if addr == "" {
			addr = fmt.Sprintf("127.0.0.1:%d", server.PickPort())
		}
		go func() {
			if err := srv.Run(addr); err != nil {
				fmt.Printf("❌ [SERVER] HTTP server stopped: %v\n", err)
			}
		}()
		fmt.Printf("✅ [SERVER] API on http://%s (stream at /stream)\n", addr)
	}

	// Optional local display
	var window *gocv.Window
	if *showDisplay {
		window = gocv.NewWindow("rodentcam")
		defer window.Close()
	}

	// Signal handling for clean shutdown
	stopChan := make(chan struct{})
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		fmt.Printf("\n🛑 [SHUTDOWN] Received %v, stopping...\n", sig)
		close(stopChan)
	}()

	stats := NewPipelineStats()
	renderer := overlay.NewRenderer()
	trackFilter := parseTrackFilter(*trackLabels)
	verdictChan := make(chan verdictResult, 4)

	frame := gocv.NewMat()
	defer frame.Close()

	var (
		lastVerdict   string
		verdictRodent bool
		lastReport    = time.Now()
	)

	fmt.Println("🚀 [RODENTCAM] Detection loop running")

loop:
	for {
		select {
		case <-stopChan:
			break loop
		case res := <-verdictChan:
			if res.err != nil {
				debugMsg("GEMINI", fmt.Sprintf("verdict request for %s failed: %v", res.key, res.err))
				break
			}
			gate.Record(res.key, res.verdict)
			lastVerdict = res.verdict
			verdictRodent = classify.IsRodentVerdict(res.verdict)
			if verdictRodent {
				fmt.Printf("🚨 [GEMINI] %s => MOUSE DETECTED!\n", res.key)
			} else {
				debugMsg("GEMINI", fmt.Sprintf("%s => %s", res.key, res.verdict))
			}
		default:
		}

		captureStart := time.Now()
		ok := cam.Read(&frame)
		stats.UpdateCapture(time.Since(captureStart))
		if !ok {
			debugMsg("CAMERA", "frame read failed, retrying")
			time.Sleep(time.Second / frameRate)
			continue
		}

		validFrame, ok := frameBuffer.ProcessFrame(frame)
		if !ok {
			validFrame.Close()
			continue
		}

		// YOLO inference
		detectStart := time.Now()
		result, err := providerManager.GetProvider().Detect(validFrame, *minConfidence)
		stats.UpdateDetect(time.Since(detectStart))
		if err != nil {
			debugMsg("YOLO", fmt.Sprintf("inference failed: %v", err))
			validFrame.Close()
			continue
		}

		// Zone persistence tracking
		now := time.Now()
		trackStart := now
		dets := toTrackerInput(result, trackFilter)
		results, dropped, err := tracker.Update(dets, validFrame.Cols(), validFrame.Rows(), now)
		stats.UpdateTracking(time.Since(trackStart))
		if err != nil {
			debugMsg("TRACKER", fmt.Sprintf("update failed: %v", err))
			validFrame.Close()
			continue
		}
		if len(dropped) > 0 {
			debugMsg("TRACKER", fmt.Sprintf("dropped %d degenerate detections", len(dropped)))
		}

		zone, _ := tracker.ZoneFor(validFrame.Cols(), validFrame.Rows())

		// Dispatch a Gemini verdict for newly confirmed objects
		if verdictClient != nil {
			for _, r := range results {
				if r.State != tracking.StateConfirmed || !gate.Allow(r.Key, now) {
					continue
				}
				jpeg, err := cropToZone(validFrame, zone)
				if err != nil {
					debugMsg("GEMINI", fmt.Sprintf("crop failed: %v", err))
					continue
				}
				gate.MarkAttempt(now)
				debugMsg("GEMINI", fmt.Sprintf("requesting verdict for %s", r.Key))
				go func(key tracking.TrackKey, jpeg []byte) {
					ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
					defer cancel()
					verdict, err := verdictClient.Classify(ctx, jpeg)
					verdictChan <- verdictResult{key: key, verdict: verdict, err: err}
				}(r.Key, jpeg)
				break // one request per frame at most
			}
		}

		// Overlay rendering
		fps := stats.UpdateFPS()
		inZone := 0
		for _, r := range results {
			if r.State == tracking.StateOutside {
				continue
			}
			inZone++
			if r.State == tracking.StateConfirmed && detection.IsRodentLabel(r.Label) {
				debugMsg("TRACKER", fmt.Sprintf("rodent-class object confirmed in zone: %s", r.Key))
			}
		}
		renderer.DrawZone(&validFrame, zone)
		renderer.DrawResults(&validFrame, results)
		renderer.DrawStatus(&validFrame, fps, inZone)
		renderer.DrawVerdict(&validFrame, lastVerdict, verdictRodent)

		// Publish to the HTTP hub
		if !*noServer {
			if jpeg, err := encodeJPEG(validFrame); err == nil {
				hub.Publish(jpeg, results, lastVerdict, fps)
			} else {
				debugMsg("SERVER", fmt.Sprintf("frame encode failed: %v", err))
			}
		}

		if window != nil {
			window.IMShow(validFrame)
			if window.WaitKey(1) == 'q' {
				fmt.Println("🛑 [SHUTDOWN] Quit requested from display window")
				break loop
			}
		}

		validFrame.Close()

		if time.Since(lastReport) >= perfReportInterval {
			stats.Report()
			lastReport = time.Now()
		}
	}

	fmt.Println("✅ [RODENTCAM] Shutdown complete")
}
