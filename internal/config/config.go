// Package config provides TOML configuration loading for the video
// analytics core.
//
// The configuration file supports the following structure:
//
//	[[cameras]]
//	id = "front-door"
//	url = "rtsp://192.168.1.20/stream1"
//	protocol = "rtsp"
//	width = 1280
//	height = 720
//	fps = 15
//
//	[detection]
//	model_path = "models/yolov8n.onnx"
//	num_contexts = 3
//	confidence_threshold = 0.25
//	nms_threshold = 0.45
//	max_queue = 10
//
//	[tracking]
//	track_threshold = 0.5
//	high_threshold = 0.6
//	match_threshold = 0.8
//	max_lost_frames = 30
//	reid_weight = 0.3
//	reid_similarity_threshold = 0.7
//
//	[registry]
//	similarity_threshold = 0.7
//	max_track_age_s = 30
//	max_global_tracks = 10000
//
//	[alarm]
//	enabled = true
//	address = "127.0.0.1"
//	port = 9000
//
// Example usage:
//
//	cfg, err := config.Load("config.toml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Printf("%d cameras configured\n", len(cfg.Cameras))
package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// Config represents the complete configuration for the video analytics core.
type Config struct {
	Cameras   []CameraConfig  `toml:"cameras"`
	Detection DetectionConfig `toml:"detection"`
	ReID      ReIDConfig      `toml:"reid"`
	Tracking  TrackingConfig  `toml:"tracking"`
	Behavior  BehaviorConfig  `toml:"behavior"`
	Registry  RegistryConfig  `toml:"registry"`
	Alarm     AlarmConfig     `toml:"alarm"`
	Preview   PreviewConfig   `toml:"preview"`
}

// CameraConfig describes one camera source (spec §6, "Camera source config").
type CameraConfig struct {
	// ID uniquely identifies the camera within the process.
	ID string `toml:"id"`
	// URL is the stream location (rtsp://, rtmp://, http://, or a file path).
	URL string `toml:"url"`
	// Protocol is one of "rtsp", "rtmp", "http", "file".
	Protocol string `toml:"protocol"`
	Username string `toml:"username"`
	Password string `toml:"password"`
	// Width/Height/FPS are the requested capture parameters.
	Width  int `toml:"width"`
	Height int `toml:"height"`
	FPS    int `toml:"fps"`
	// MJPEGPort, if non-zero, is where this camera's annotated stream is
	// published by an external sink. The core never binds this port itself.
	MJPEGPort int  `toml:"mjpeg_port"`
	Enabled   bool `toml:"enabled"`
}

// DetectionConfig holds DetectionEngine tunables (spec §4.2).
type DetectionConfig struct {
	// ModelPath points at the exported YOLOv8-family model.
	ModelPath string `toml:"model_path"`
	// NumContexts is the number of accelerator contexts in the pool (default 3).
	NumContexts int `toml:"num_contexts"`
	// InputWidth/InputHeight is the model's fixed input resolution.
	InputWidth  int `toml:"input_width"`
	InputHeight int `toml:"input_height"`
	// ConfidenceThreshold filters raw detections (default 0.25).
	ConfidenceThreshold float32 `toml:"confidence_threshold"`
	// NMSThreshold is the IoU threshold for suppression (default 0.45).
	NMSThreshold float32 `toml:"nms_threshold"`
	// MaxQueue is the bounded submission queue capacity (default 10).
	MaxQueue int `toml:"max_queue"`
	// EnabledCategories restricts detections to these class names; empty means all.
	EnabledCategories []string `toml:"enabled_categories"`
	// Quantized feeds the model uint8 [0,255] input instead of float32
	// normalized input. Output tensors are dequantized whenever they carry
	// integer data, independent of this setting.
	Quantized bool `toml:"quantized"`
}

// ReIDConfig holds ReIDExtractor tunables (spec §4.3).
type ReIDConfig struct {
	// ModelPath points at the exported appearance-embedding ONNX model.
	ModelPath string `toml:"model_path"`
	// Dim is the embedding's feature dimension.
	Dim int `toml:"dim"`
	// CropSize is the square side each detection crop is resized to before
	// embedding (default 128).
	CropSize int `toml:"crop_size"`
}

// PreviewConfig configures the optional debug MJPEG preview server (spec
// §6, camera config's mjpeg_port is the per-camera counterpart; this is
// the process-wide HTTP listener that serves it).
type PreviewConfig struct {
	Enabled bool   `toml:"enabled"`
	Address string `toml:"address"`
}

// TrackingConfig holds Tracker tunables (spec §4.4).
type TrackingConfig struct {
	TrackThreshold          float32 `toml:"track_threshold"`
	HighThreshold           float32 `toml:"high_threshold"`
	MatchThreshold          float32 `toml:"match_threshold"`
	MaxLostFrames           int     `toml:"max_lost_frames"`
	ReIDWeight              float32 `toml:"reid_weight"`
	ReIDSimilarityThreshold float32 `toml:"reid_similarity_threshold"`
	ReIDEnabled             bool    `toml:"reid_enabled"`
}

// BehaviorConfig holds BehaviorAnalyzer tunables (spec §4.5).
type BehaviorConfig struct {
	MinObjectSize    int                   `toml:"min_object_size"`
	TrackingTimeoutS float64               `toml:"tracking_timeout_s"`
	ROIs             []ROIConfig           `toml:"rois"`
	IntrusionRules   []IntrusionRuleConfig `toml:"intrusion_rules"`
}

// ROIConfig describes one region of interest (spec §3, "ROI").
type ROIConfig struct {
	ID        string       `toml:"id"`
	Name      string       `toml:"name"`
	Polygon   [][2]float64 `toml:"polygon"`
	Enabled   bool         `toml:"enabled"`
	Priority  int          `toml:"priority"`
	StartTime string       `toml:"start_time"`
	EndTime   string       `toml:"end_time"`
}

// IntrusionRuleConfig describes one intrusion rule (spec §3, "IntrusionRule").
type IntrusionRuleConfig struct {
	ID                  string  `toml:"id"`
	ROIID               string  `toml:"roi_id"`
	MinDurationS        float64 `toml:"min_duration_s"`
	ConfidenceThreshold float32 `toml:"confidence_threshold"`
	Enabled             bool    `toml:"enabled"`
}

// RegistryConfig holds GlobalTrackRegistry tunables (spec §4.6).
type RegistryConfig struct {
	SimilarityThreshold float32 `toml:"similarity_threshold"`
	MaxTrackAgeS        float64 `toml:"max_track_age_s"`
	MaxGlobalTracks     int     `toml:"max_global_tracks"`
	MatchingEnabled     bool    `toml:"matching_enabled"`
	Enabled             bool    `toml:"enabled"`
}

// AlarmConfig configures the external alarm sink (spec §6).
type AlarmConfig struct {
	Enabled  bool   `toml:"enabled"`
	Address  string `toml:"address"`
	Port     int    `toml:"port"`
	TestMode bool   `toml:"test_mode"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Detection: DetectionConfig{
			NumContexts:         3,
			InputWidth:          640,
			InputHeight:         640,
			ConfidenceThreshold: 0.25,
			NMSThreshold:        0.45,
			MaxQueue:            10,
		},
		ReID: ReIDConfig{
			Dim:      128,
			CropSize: 128,
		},
		Tracking: TrackingConfig{
			TrackThreshold:          0.5,
			HighThreshold:           0.6,
			MatchThreshold:          0.8,
			MaxLostFrames:           30,
			ReIDWeight:              0.3,
			ReIDSimilarityThreshold: 0.7,
			ReIDEnabled:             true,
		},
		Behavior: BehaviorConfig{
			MinObjectSize:    0,
			TrackingTimeoutS: 30,
		},
		Registry: RegistryConfig{
			SimilarityThreshold: 0.7,
			MaxTrackAgeS:        30,
			MaxGlobalTracks:     10000,
			MatchingEnabled:     true,
			Enabled:             true,
		},
		Alarm: AlarmConfig{
			Enabled: false,
			Address: "127.0.0.1",
			Port:    9000,
		},
		Preview: PreviewConfig{
			Enabled: false,
			Address: "127.0.0.1:8081",
		},
	}
}

// Load reads and parses a TOML configuration file.
// If the file does not exist, it returns the default configuration.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if _, err := toml.Decode(string(data), cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// Validate checks the configuration for invalid values. This is the only
// admission point for RuleError/ConfigError (spec §7): once loaded,
// values are trusted for the lifetime of the process.
func (c *Config) Validate() error {
	seen := make(map[string]bool, len(c.Cameras))
	for _, cam := range c.Cameras {
		if cam.ID == "" {
			return fmt.Errorf("camera: id must not be empty")
		}
		if seen[cam.ID] {
			return fmt.Errorf("camera %q: duplicate id", cam.ID)
		}
		seen[cam.ID] = true
		switch cam.Protocol {
		case "rtsp", "rtmp", "http", "file":
		default:
			return fmt.Errorf("camera %q: unsupported protocol %q", cam.ID, cam.Protocol)
		}
		if cam.Width <= 0 {
			return fmt.Errorf("camera %q: width must be positive, got %d", cam.ID, cam.Width)
		}
		if cam.Height <= 0 {
			return fmt.Errorf("camera %q: height must be positive, got %d", cam.ID, cam.Height)
		}
		if cam.FPS <= 0 {
			return fmt.Errorf("camera %q: fps must be positive, got %d", cam.ID, cam.FPS)
		}
	}

	if c.Detection.NumContexts <= 0 {
		return fmt.Errorf("detection: num_contexts must be positive, got %d", c.Detection.NumContexts)
	}
	if c.Detection.MaxQueue <= 0 {
		return fmt.Errorf("detection: max_queue must be positive, got %d", c.Detection.MaxQueue)
	}
	if c.Detection.ConfidenceThreshold < 0 || c.Detection.ConfidenceThreshold > 1 {
		return fmt.Errorf("detection: confidence_threshold must be in [0,1], got %f", c.Detection.ConfidenceThreshold)
	}
	if c.Detection.NMSThreshold < 0 || c.Detection.NMSThreshold > 1 {
		return fmt.Errorf("detection: nms_threshold must be in [0,1], got %f", c.Detection.NMSThreshold)
	}

	if c.ReID.Dim < 0 {
		return fmt.Errorf("reid: dim must be >= 0, got %d", c.ReID.Dim)
	}
	if c.ReID.CropSize < 0 {
		return fmt.Errorf("reid: crop_size must be >= 0, got %d", c.ReID.CropSize)
	}

	if c.Tracking.MaxLostFrames <= 0 {
		return fmt.Errorf("tracking: max_lost_frames must be positive, got %d", c.Tracking.MaxLostFrames)
	}
	if c.Tracking.ReIDWeight < 0 || c.Tracking.ReIDWeight > 1 {
		return fmt.Errorf("tracking: reid_weight must be in [0,1], got %f", c.Tracking.ReIDWeight)
	}

	roiIDs := make(map[string]bool, len(c.Behavior.ROIs))
	for _, roi := range c.Behavior.ROIs {
		if roi.ID == "" {
			return fmt.Errorf("roi: id must not be empty")
		}
		if roiIDs[roi.ID] {
			return fmt.Errorf("roi %q: duplicate id", roi.ID)
		}
		roiIDs[roi.ID] = true
		if len(roi.Polygon) < 3 || len(roi.Polygon) > 100 {
			return fmt.Errorf("roi %q: polygon must have 3..100 points, got %d", roi.ID, len(roi.Polygon))
		}
		if roi.Priority < 1 || roi.Priority > 5 {
			return fmt.Errorf("roi %q: priority must be in 1..5, got %d", roi.ID, roi.Priority)
		}
	}
	for _, rule := range c.Behavior.IntrusionRules {
		if rule.ID == "" {
			return fmt.Errorf("intrusion rule: id must not be empty")
		}
		if !roiIDs[rule.ROIID] {
			return fmt.Errorf("intrusion rule %q: references unknown roi %q", rule.ID, rule.ROIID)
		}
		if rule.MinDurationS < 0 {
			return fmt.Errorf("intrusion rule %q: min_duration_s must be >= 0, got %f", rule.ID, rule.MinDurationS)
		}
		if rule.ConfidenceThreshold < 0 || rule.ConfidenceThreshold > 1 {
			return fmt.Errorf("intrusion rule %q: confidence_threshold must be in [0,1]", rule.ID)
		}
	}

	if c.Registry.SimilarityThreshold < 0.5 || c.Registry.SimilarityThreshold > 0.95 {
		return fmt.Errorf("registry: similarity_threshold must be in [0.5,0.95], got %f", c.Registry.SimilarityThreshold)
	}
	if c.Registry.MaxGlobalTracks <= 0 {
		return fmt.Errorf("registry: max_global_tracks must be positive, got %d", c.Registry.MaxGlobalTracks)
	}

	if c.Alarm.Enabled {
		if c.Alarm.Port <= 0 || c.Alarm.Port > 65535 {
			return fmt.Errorf("alarm: port must be between 1 and 65535, got %d", c.Alarm.Port)
		}
	}

	return nil
}
