package detector

import (
	"context"
	"fmt"
	"image"
	"io"
	"os"

	"gocv.io/x/gocv"

	"platewatch/internal/services"
)

const (
	inputSize    = 640
	numClasses   = 80
	nmsThreshold = 0.45
)

// DNN runs an ONNX vehicle detector over video frames and assigns track ids
// with an IoU matcher. It satisfies Service.
type DNN struct {
	modelPath string
}

// NewDNN constructs a DNN detector for the given ONNX model file.
func NewDNN(modelPath string) *DNN {
	return &DNN{modelPath: modelPath}
}

// Track opens the video and returns a stream of tracked detections.
func (d *DNN) Track(ctx context.Context, videoPath string, opts Options) (Stream, error) {
	if _, err := os.Stat(videoPath); err != nil {
		return nil, services.Wrap(services.ErrNotFound, "extracting", "open video", videoPath, err)
	}

	net := gocv.ReadNetFromONNX(d.modelPath)
	if net.Empty() {
		return nil, services.Wrap(services.ErrConfiguration, "extracting", "load model", d.modelPath, nil)
	}
	applyDevice(&net, opts.Device)

	capture, err := gocv.OpenVideoCapture(videoPath)
	if err != nil {
		net.Close()
		return nil, services.Wrap(services.ErrExternalTool, "extracting", "open capture", videoPath, err)
	}

	classes := opts.Classes
	if len(classes) == 0 {
		classes = VehicleClasses()
	}
	wanted := make(map[Class]struct{}, len(classes))
	for _, class := range classes {
		wanted[class] = struct{}{}
	}

	return &dnnStream{
		ctx:     ctx,
		net:     net,
		capture: capture,
		frame:   gocv.NewMat(),
		tracker: newIOUTracker(),
		wanted:  wanted,
		minConf: opts.MinConfidence,
	}, nil
}

func applyDevice(net *gocv.Net, device string) {
	if device == "cuda" {
		net.SetPreferableBackend(gocv.NetBackendCUDA)
		net.SetPreferableTarget(gocv.NetTargetCUDA)
		return
	}
	net.SetPreferableBackend(gocv.NetBackendDefault)
	net.SetPreferableTarget(gocv.NetTargetCPU)
}

type dnnStream struct {
	ctx     context.Context
	net     gocv.Net
	capture *gocv.VideoCapture
	frame   gocv.Mat
	tracker *iouTracker
	wanted  map[Class]struct{}
	minConf float64
	closed  bool
}

func (s *dnnStream) Next() (*FrameResult, error) {
	if s.closed {
		return nil, io.EOF
	}
	if err := s.ctx.Err(); err != nil {
		return nil, err
	}
	if ok := s.capture.Read(&s.frame); !ok || s.frame.Empty() {
		return nil, io.EOF
	}

	detections, err := s.detect(s.frame)
	if err != nil {
		return nil, err
	}
	tracked := s.tracker.assign(detections)
	return &FrameResult{Frame: s.frame, Detections: tracked}, nil
}

func (s *dnnStream) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	s.frame.Close()
	s.net.Close()
	return s.capture.Close()
}

// detect runs one forward pass and converts raw rows into class-filtered,
// NMS-suppressed detections in frame coordinates.
func (s *dnnStream) detect(frame gocv.Mat) ([]Detection, error) {
	blob := gocv.BlobFromImage(frame, 1.0/255.0, image.Pt(inputSize, inputSize), gocv.NewScalar(0, 0, 0, 0), true, false)
	defer blob.Close()

	s.net.SetInput(blob, "")
	output := s.net.Forward("")
	defer output.Close()

	data, err := output.DataPtrFloat32()
	if err != nil {
		return nil, fmt.Errorf("read detector output: %w", err)
	}

	scaleX := float64(frame.Cols()) / float64(inputSize)
	scaleY := float64(frame.Rows()) / float64(inputSize)

	candidates, err := decodeOutputs(data, output.Size(), s.minConf, scaleX, scaleY)
	if err != nil {
		return nil, err
	}

	var (
		boxes   []image.Rectangle
		scores  []float32
		classes []Class
	)
	for _, cand := range candidates {
		if _, ok := s.wanted[cand.class]; !ok {
			continue
		}
		boxes = append(boxes, cand.box)
		scores = append(scores, cand.score)
		classes = append(classes, cand.class)
	}

	if len(boxes) == 0 {
		return nil, nil
	}

	keep := gocv.NMSBoxes(boxes, scores, float32(s.minConf), nmsThreshold)
	detections := make([]Detection, 0, len(keep))
	for _, idx := range keep {
		detections = append(detections, Detection{
			Class:      classes[idx],
			Confidence: float64(scores[idx]),
			Box:        boxes[idx],
		})
	}
	return detections, nil
}

type candidate struct {
	box   image.Rectangle
	score float32
	class Class
}

// decodeOutputs converts a raw forward-pass tensor into frame-space box
// candidates. Two ONNX export layouts are supported: per-anchor rows with an
// objectness column ([1, anchors, 85]), and the transposed attribute-major
// layout without one ([1, 84, anchors]) produced by newer model exports.
func decodeOutputs(data []float32, dims []int, minConf, scaleX, scaleY float64) ([]candidate, error) {
	if len(dims) != 3 {
		return nil, fmt.Errorf("unexpected detector output shape %v", dims)
	}

	var candidates []candidate
	emit := func(cx, cy, w, h float32, score float32, classID int) {
		x := float64(cx) * scaleX
		y := float64(cy) * scaleY
		bw := float64(w) * scaleX
		bh := float64(h) * scaleY
		candidates = append(candidates, candidate{
			box:   image.Rect(int(x-bw/2), int(y-bh/2), int(x+bw/2), int(y+bh/2)),
			score: score,
			class: Class(classID),
		})
	}

	switch {
	case dims[2] == numClasses+5:
		anchors := dims[1]
		stride := dims[2]
		for i := 0; i < anchors; i++ {
			row := data[i*stride : (i+1)*stride]
			objectness := row[4]
			if float64(objectness) < minConf {
				continue
			}
			classID := 0
			best := float32(0)
			for c := 0; c < numClasses; c++ {
				if row[5+c] > best {
					best = row[5+c]
					classID = c
				}
			}
			score := objectness * best
			if float64(score) < minConf {
				continue
			}
			emit(row[0], row[1], row[2], row[3], score, classID)
		}
	case dims[1] == numClasses+4:
		anchors := dims[2]
		at := func(attr, i int) float32 { return data[attr*anchors+i] }
		for i := 0; i < anchors; i++ {
			classID := 0
			best := float32(0)
			for c := 0; c < numClasses; c++ {
				if v := at(4+c, i); v > best {
					best = v
					classID = c
				}
			}
			if float64(best) < minConf {
				continue
			}
			emit(at(0, i), at(1, i), at(2, i), at(3, i), best, classID)
		}
	default:
		return nil, fmt.Errorf("unexpected detector output shape %v", dims)
	}
	return candidates, nil
}
