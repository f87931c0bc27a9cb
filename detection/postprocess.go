package detection

import (
	"image"

	"gocv.io/x/gocv"
)

// ModelInputSize is the square blob size fed to the network.
const ModelInputSize = 640

// nmsThreshold is the IoU overlap above which duplicate boxes are suppressed.
const nmsThreshold = 0.45

// mapToFrame converts normalized YOLO box coordinates (center x/y, width,
// height in [0,1] of the network input) back into a pixel rectangle in the
// original frame. BlobFromImage stretches the frame to the square input, so
// the mapping is a plain rescale per axis.
func mapToFrame(xNorm, yNorm, wNorm, hNorm float32, frameWidth, frameHeight int) image.Rectangle {
	centerX := float64(xNorm) * float64(frameWidth)
	centerY := float64(yNorm) * float64(frameHeight)
	width := float64(wNorm) * float64(frameWidth)
	height := float64(hNorm) * float64(frameHeight)

	left := int(centerX - width/2)
	top := int(centerY - height/2)
	return image.Rect(left, top, left+int(width), top+int(height))
}

// decodeOutput walks the raw network output rows (cx, cy, w, h, objectness,
// per-class scores) and returns detections above confThreshold, de-duplicated
// with non-maximum suppression.
func decodeOutput(output gocv.Mat, frame gocv.Mat, classNames []string, confThreshold float64) *DetectionResult {
	var rects []image.Rectangle
	var names []string
	var confidences []float64
	var scores []float32

	frameWidth := frame.Cols()
	frameHeight := frame.Rows()

	for i := 0; i < output.Rows(); i++ {
		row := output.RowRange(i, i+1)
		data := row.Clone()
		classScores := data.ColRange(5, data.Cols())
		_, maxVal, _, maxLoc := gocv.MinMaxLoc(classScores)
		classID := maxLoc.X
		confidence := float64(maxVal)

		if confidence > confThreshold && classID < len(classNames) {
			rect := mapToFrame(
				data.GetFloatAt(0, 0),
				data.GetFloatAt(0, 1),
				data.GetFloatAt(0, 2),
				data.GetFloatAt(0, 3),
				frameWidth, frameHeight,
			)

			rects = append(rects, rect)
			names = append(names, classNames[classID])
			confidences = append(confidences, confidence)
			scores = append(scores, maxVal)
		}

		classScores.Close()
		data.Close()
		row.Close()
	}

	// NMS collapses the overlapping boxes YOLO emits per object
	if len(rects) > 1 {
		keep := gocv.NMSBoxes(rects, scores, float32(confThreshold), nmsThreshold)

		keptRects := make([]image.Rectangle, 0, len(keep))
		keptNames := make([]string, 0, len(keep))
		keptConfs := make([]float64, 0, len(keep))
		for _, idx := range keep {
			keptRects = append(keptRects, rects[idx])
			keptNames = append(keptNames, names[idx])
			keptConfs = append(keptConfs, confidences[idx])
		}
		rects, names, confidences = keptRects, keptNames, keptConfs
	}

	return &DetectionResult{
		Rects:       rects,
		ClassNames:  names,
		Confidences: confidences,
	}
}
