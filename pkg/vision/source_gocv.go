//go:build cgo

package vision

import (
	"fmt"
	"sync"
	"time"

	"gocv.io/x/gocv"
)

// GocvSource implements FrameSource over OpenCV's VideoCapture, which
// transparently handles rtsp://, rtmp://, http:// URLs (via its FFmpeg
// backend) as well as local device indices and files.
//
// Implementation notes (carried from the teacher's OpenCVCamera):
//   - BGR→RGB conversion, since downstream detection/ReID/behavior code
//     expects RGB24 like the teacher's MediaPipe integration did.
//   - Thread-safe: mu guards all fields and capture operations, since the
//     owning PipelineRunner and any debug preview may call concurrently.
type GocvSource struct {
	mu sync.Mutex

	cfg    SourceConfig
	webcam *gocv.VideoCapture
	opened bool
}

// NewGocvSource creates an unopened gocv-backed FrameSource.
func NewGocvSource() *GocvSource {
	return &GocvSource{}
}

// Open initializes the capture device or stream URL.
func (s *GocvSource) Open(cfg SourceConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.opened {
		return &SourceError{Kind: ErrOpen, Err: fmt.Errorf("source already opened")}
	}
	if err := cfg.Validate(); err != nil {
		return &SourceError{Kind: ErrOpen, Err: err}
	}

	var webcam *gocv.VideoCapture
	var err error

	switch cfg.Transport {
	case TransportFile:
		webcam, err = gocv.VideoCaptureFile(cfg.URL)
	default:
		// rtsp/rtmp/http URLs are handed to OpenCV's FFmpeg-backed capture.
		webcam, err = gocv.OpenVideoCapture(cfg.URL)
	}
	if err != nil {
		return &SourceError{Kind: ErrOpen, Err: fmt.Errorf("opening %q: %w", cfg.URL, err)}
	}
	if !webcam.IsOpened() {
		webcam.Close()
		return &SourceError{Kind: ErrOpen, Err: fmt.Errorf("source %q not available", cfg.ID)}
	}

	if cfg.Width > 0 {
		webcam.Set(gocv.VideoCaptureFrameWidth, float64(cfg.Width))
	}
	if cfg.Height > 0 {
		webcam.Set(gocv.VideoCaptureFrameHeight, float64(cfg.Height))
	}
	if cfg.FPS > 0 {
		webcam.Set(gocv.VideoCaptureFPS, float64(cfg.FPS))
	}

	s.cfg = cfg
	s.webcam = webcam
	s.opened = true
	return nil
}

// Next captures a single frame and converts it to RGB24.
func (s *GocvSource) Next() (Frame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.opened {
		return Frame{}, ErrNotOpened
	}

	mat := gocv.NewMat()
	defer mat.Close()

	if ok := s.webcam.Read(&mat); !ok {
		return Frame{}, &SourceError{Kind: ErrEndOfStream, Err: fmt.Errorf("stream %q ended", s.cfg.ID)}
	}
	if mat.Empty() {
		return Frame{}, &SourceError{Kind: ErrDecode, Err: fmt.Errorf("empty frame from %q", s.cfg.ID)}
	}

	rgb := gocv.NewMat()
	defer rgb.Close()
	gocv.CvtColor(mat, &rgb, gocv.ColorBGRToRGB)

	frame := Frame{
		Data:        append([]byte(nil), rgb.ToBytes()...),
		Width:       rgb.Cols(),
		Height:      rgb.Rows(),
		Format:      PixelRGB8,
		MonotonicTS: time.Now(),
	}
	return frame, nil
}

// Close releases the underlying capture device.
func (s *GocvSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.opened {
		return nil
	}
	s.opened = false
	if s.webcam != nil {
		return s.webcam.Close()
	}
	return nil
}

// EnumerateCameras attempts to detect available local camera devices by
// device index. Best-effort; used by a control plane populating available
// device ids (spec §6 treats the control plane as an external collaborator,
// this helper just supplies it data).
func EnumerateCameras(maxDevices int) []int {
	var devices []int
	if maxDevices <= 0 {
		maxDevices = 10
	}
	for i := 0; i < maxDevices; i++ {
		cam, err := gocv.VideoCaptureDevice(i)
		if err != nil {
			continue
		}
		if cam.IsOpened() {
			devices = append(devices, i)
		}
		cam.Close()
	}
	return devices
}
