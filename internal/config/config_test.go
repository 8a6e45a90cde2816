package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Detection.NumContexts != 3 {
		t.Errorf("expected NumContexts 3, got %d", cfg.Detection.NumContexts)
	}
	if cfg.Detection.ConfidenceThreshold != 0.25 {
		t.Errorf("expected ConfidenceThreshold 0.25, got %f", cfg.Detection.ConfidenceThreshold)
	}
	if cfg.Detection.MaxQueue != 10 {
		t.Errorf("expected MaxQueue 10, got %d", cfg.Detection.MaxQueue)
	}
	if cfg.Tracking.MaxLostFrames != 30 {
		t.Errorf("expected MaxLostFrames 30, got %d", cfg.Tracking.MaxLostFrames)
	}
	if cfg.Tracking.HighThreshold != 0.6 {
		t.Errorf("expected HighThreshold 0.6, got %f", cfg.Tracking.HighThreshold)
	}
	if cfg.Registry.SimilarityThreshold != 0.7 {
		t.Errorf("expected registry SimilarityThreshold 0.7, got %f", cfg.Registry.SimilarityThreshold)
	}
	if cfg.Registry.MaxGlobalTracks != 10000 {
		t.Errorf("expected MaxGlobalTracks 10000, got %d", cfg.Registry.MaxGlobalTracks)
	}
}

func TestLoad_EmptyPath(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg == nil {
		t.Fatal("expected non-nil config")
	}
}

func TestLoad_NonExistentFile(t *testing.T) {
	cfg, err := Load("/nonexistent/path/config.toml")
	if err != nil {
		t.Fatalf("unexpected error for non-existent file: %v", err)
	}
	if cfg == nil {
		t.Fatal("expected default config for non-existent file")
	}
}

func TestLoad_ValidFile(t *testing.T) {
	content := `
[[cameras]]
id = "front-door"
url = "rtsp://127.0.0.1/stream1"
protocol = "rtsp"
width = 1920
height = 1080
fps = 15
enabled = true

[detection]
num_contexts = 2
confidence_threshold = 0.3
nms_threshold = 0.5
max_queue = 5

[tracking]
max_lost_frames = 15
high_threshold = 0.7

[registry]
similarity_threshold = 0.8
max_global_tracks = 500
`
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write test file: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(cfg.Cameras) != 1 {
		t.Fatalf("expected 1 camera, got %d", len(cfg.Cameras))
	}
	if cfg.Cameras[0].ID != "front-door" {
		t.Errorf("expected camera id front-door, got %s", cfg.Cameras[0].ID)
	}
	if cfg.Cameras[0].Width != 1920 {
		t.Errorf("expected Width 1920, got %d", cfg.Cameras[0].Width)
	}
	if cfg.Detection.NumContexts != 2 {
		t.Errorf("expected NumContexts 2, got %d", cfg.Detection.NumContexts)
	}
	if cfg.Tracking.MaxLostFrames != 15 {
		t.Errorf("expected MaxLostFrames 15, got %d", cfg.Tracking.MaxLostFrames)
	}
	if cfg.Registry.SimilarityThreshold != 0.8 {
		t.Errorf("expected SimilarityThreshold 0.8, got %f", cfg.Registry.SimilarityThreshold)
	}
}

func TestLoad_InvalidTOML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "invalid.toml")
	if err := os.WriteFile(path, []byte("invalid [ toml"), 0644); err != nil {
		t.Fatalf("failed to write test file: %v", err)
	}

	_, err := Load(path)
	if err == nil {
		t.Error("expected error for invalid TOML")
	}
}

func TestValidate_DuplicateCameraID(t *testing.T) {
	cfg := Default()
	cfg.Cameras = []CameraConfig{
		{ID: "cam1", Protocol: "rtsp", Width: 640, Height: 480, FPS: 10},
		{ID: "cam1", Protocol: "rtsp", Width: 640, Height: 480, FPS: 10},
	}
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for duplicate camera id")
	}
}

func TestValidate_UnsupportedProtocol(t *testing.T) {
	cfg := Default()
	cfg.Cameras = []CameraConfig{
		{ID: "cam1", Protocol: "sftp", Width: 640, Height: 480, FPS: 10},
	}
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for unsupported protocol")
	}
}

func TestValidate_InvalidWidth(t *testing.T) {
	cfg := Default()
	cfg.Cameras = []CameraConfig{{ID: "cam1", Protocol: "file", Width: 0, Height: 480, FPS: 10}}
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for invalid width")
	}
}

func TestValidate_InvalidNumContexts(t *testing.T) {
	cfg := Default()
	cfg.Detection.NumContexts = 0
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for invalid num_contexts")
	}
}

func TestValidate_InvalidConfidenceThreshold(t *testing.T) {
	cfg := Default()
	cfg.Detection.ConfidenceThreshold = 1.5
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for confidence threshold > 1")
	}
}

func TestValidate_ROIPolygonTooFewPoints(t *testing.T) {
	cfg := Default()
	cfg.Behavior.ROIs = []ROIConfig{
		{ID: "roi1", Priority: 1, Polygon: [][2]float64{{0, 0}, {1, 1}}},
	}
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for polygon with fewer than 3 points")
	}
}

func TestValidate_IntrusionRuleUnknownROI(t *testing.T) {
	cfg := Default()
	cfg.Behavior.ROIs = []ROIConfig{
		{ID: "roi1", Priority: 1, Polygon: [][2]float64{{0, 0}, {1, 0}, {1, 1}}},
	}
	cfg.Behavior.IntrusionRules = []IntrusionRuleConfig{
		{ID: "rule1", ROIID: "missing", ConfidenceThreshold: 0.5},
	}
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for intrusion rule referencing unknown roi")
	}
}

func TestValidate_RegistrySimilarityThresholdRange(t *testing.T) {
	cfg := Default()
	cfg.Registry.SimilarityThreshold = 0.2
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for similarity threshold below 0.5")
	}

	cfg.Registry.SimilarityThreshold = 0.99
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for similarity threshold above 0.95")
	}
}

func TestValidate_AlarmPortRange(t *testing.T) {
	cfg := Default()
	cfg.Alarm.Enabled = true
	cfg.Alarm.Port = 0
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for alarm port 0")
	}

	cfg.Alarm.Port = 70000
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for alarm port > 65535")
	}
}
