// Package main provides the CLI entry point for the video analytics core.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/avsentry/videocore/internal/config"
	"github.com/avsentry/videocore/pkg/behavior"
	"github.com/avsentry/videocore/pkg/detect"
	"github.com/avsentry/videocore/pkg/pipeline"
	"github.com/avsentry/videocore/pkg/reid"
	"github.com/avsentry/videocore/pkg/registry"
	"github.com/avsentry/videocore/pkg/sink"
	"github.com/avsentry/videocore/pkg/track"
	"github.com/avsentry/videocore/pkg/vision"
)

var version = "0.1.0"

func main() {
	configPath := flag.String("config", "", "Path to TOML configuration file")
	showVersion := flag.Bool("version", false, "Show version information")
	previewAddr := flag.String("preview-addr", "", "MJPEG preview listen address (overrides config)")
	verbose := flag.Bool("verbose", false, "Enable verbose output")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "videocore - multi-camera AI video analytics server\n\n")
		fmt.Fprintf(os.Stderr, "Usage: %s [options]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  %s -config config.toml      # Run with a camera/rule configuration\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s -preview-addr :8081      # Serve a debug MJPEG preview\n", os.Args[0])
	}
	flag.Parse()

	if *showVersion {
		fmt.Printf("videocore version %s\n", version)
		os.Exit(0)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if *previewAddr != "" {
		cfg.Preview.Enabled = true
		cfg.Preview.Address = *previewAddr
	}

	if *verbose {
		log.Printf("loaded %d camera(s), %d roi(s), %d intrusion rule(s)",
			len(cfg.Cameras), len(cfg.Behavior.ROIs), len(cfg.Behavior.IntrusionRules))
	}

	engine, err := buildDetectionEngine(cfg.Detection)
	if err != nil {
		log.Fatalf("failed to build detection engine: %v", err)
	}
	defer engine.Shutdown()

	globalRegistry := registry.New(registryConfigFrom(cfg.Registry), nil)

	var alarmSink sink.AlarmSink
	if cfg.Alarm.Enabled {
		addr := fmt.Sprintf("%s:%d", cfg.Alarm.Address, cfg.Alarm.Port)
		udpSink, err := sink.NewUDPAlarmSink(addr)
		if err != nil {
			log.Fatalf("failed to create alarm sink: %v", err)
		}
		defer udpSink.Close()
		alarmSink = udpSink
		log.Printf("alarm sink configured: %s", addr)
	}

	var broadcaster *sink.Broadcaster
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if cfg.Preview.Enabled {
		broadcaster = sink.NewBroadcaster()
		go func() {
			if err := broadcaster.Start(ctx, cfg.Preview.Address); err != nil {
				log.Printf("preview server stopped: %v", err)
			}
		}()
		log.Printf("preview server listening on %s", cfg.Preview.Address)
	}

	supervisor := pipeline.NewSupervisor(pipeline.DefaultMaxPipelines)
	supervisor.StartMonitoring()
	defer supervisor.Shutdown()

	for _, camCfg := range cfg.Cameras {
		if !camCfg.Enabled {
			continue
		}
		// Each camera gets its own BehaviorAnalyzer: ROI dwell timers and rule
		// state are per-pipeline, never shared across cameras.
		analyzer, err := buildAnalyzer(cfg.Behavior)
		if err != nil {
			log.Fatalf("camera %q: failed to build behavior analyzer: %v", camCfg.ID, err)
		}
		runner, err := buildRunner(camCfg, cfg, engine, globalRegistry, analyzer)
		if err != nil {
			log.Fatalf("camera %q: failed to build pipeline: %v", camCfg.ID, err)
		}
		if err := supervisor.Add(runner); err != nil {
			log.Fatalf("camera %q: failed to start pipeline: %v", camCfg.ID, err)
		}
		log.Printf("camera %q: pipeline started (%s %dx%d@%dfps)", camCfg.ID, camCfg.Protocol, camCfg.Width, camCfg.Height, camCfg.FPS)

		go dispatchResults(runner, camCfg.ID, alarmSink, cfg.Alarm.TestMode, broadcaster)
	}

	log.Println("videocore running. Press Ctrl+C to stop.")
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Printf("received signal %v, shutting down...", sig)
}

// dispatchResults drains one pipeline's FrameResults, forwarding its events
// to the alarm sink and its frames to the debug preview broadcaster, until
// the runner's result channel closes.
func dispatchResults(r *pipeline.Runner, cameraID string, alarmSink sink.AlarmSink, testMode bool, broadcaster *sink.Broadcaster) {
	var dispatcher *sink.EventDispatcher
	if alarmSink != nil {
		dispatcher = sink.NewEventDispatcher(alarmSink, cameraID, testMode)
	}

	for result := range r.Results() {
		if dispatcher != nil && len(result.Events) > 0 {
			byLocal := make(map[int64]int64, len(result.TrackIDs))
			for i, id := range result.TrackIDs {
				if id < 0 || i >= len(result.GlobalTrackIDs) {
					continue
				}
				byLocal[id] = result.GlobalTrackIDs[i]
			}
			if err := dispatcher.Dispatch(result.Events, byLocal); err != nil {
				log.Printf("camera %q: alarm delivery error: %v", cameraID, err)
			}
		}

		if broadcaster != nil {
			jpeg, err := sink.EncodeJPEG(result.Frame, 80)
			if err == nil {
				broadcaster.Publish(cameraID, jpeg)
			}
		}
	}
}

func buildDetectionEngine(cfg config.DetectionConfig) (*detect.Engine, error) {
	modelBytes, err := os.ReadFile(cfg.ModelPath)
	if err != nil {
		return nil, fmt.Errorf("reading detection model: %w", err)
	}
	factory := detect.NewGocvContextFactory(cfg.InputWidth, cfg.InputHeight)
	engine, err := detect.New(modelBytes, cfg.NumContexts, factory, classNamesFor(cfg), cfg.Quantized)
	if err != nil {
		return nil, err
	}
	engine.SetConfidenceThreshold(cfg.ConfidenceThreshold)
	engine.SetNMSThreshold(cfg.NMSThreshold)
	engine.SetMaxQueue(cfg.MaxQueue)
	if len(cfg.EnabledCategories) > 0 {
		engine.SetEnabledCategories(cfg.EnabledCategories)
	}
	return engine, nil
}

// cocoClassNames are the standard 80 COCO category names the reference
// YOLOv8 export is trained against (spec §4.2 assumes a COCO-class head).
var cocoClassNames = []string{
	"person", "bicycle", "car", "motorcycle", "airplane", "bus", "train", "truck", "boat",
	"traffic light", "fire hydrant", "stop sign", "parking meter", "bench", "bird", "cat",
	"dog", "horse", "sheep", "cow", "elephant", "bear", "zebra", "giraffe", "backpack",
	"umbrella", "handbag", "tie", "suitcase", "frisbee", "skis", "snowboard", "sports ball",
	"kite", "baseball bat", "baseball glove", "skateboard", "surfboard", "tennis racket",
	"bottle", "wine glass", "cup", "fork", "knife", "spoon", "bowl", "banana", "apple",
	"sandwich", "orange", "broccoli", "carrot", "hot dog", "pizza", "donut", "cake", "chair",
	"couch", "potted plant", "bed", "dining table", "toilet", "tv", "laptop", "mouse",
	"remote", "keyboard", "cell phone", "microwave", "oven", "toaster", "sink", "refrigerator",
	"book", "clock", "vase", "scissors", "teddy bear", "hair drier", "toothbrush",
}

func classNamesFor(cfg config.DetectionConfig) []string {
	return cocoClassNames
}

func registryConfigFrom(cfg config.RegistryConfig) registry.Config {
	return registry.Config{
		SimilarityThreshold: cfg.SimilarityThreshold,
		MaxTrackAgeS:        int(cfg.MaxTrackAgeS),
		MaxGlobalTracks:     cfg.MaxGlobalTracks,
		MatchingEnabled:     cfg.MatchingEnabled,
		Enabled:             cfg.Enabled,
	}
}

func buildAnalyzer(cfg config.BehaviorConfig) (*behavior.Analyzer, error) {
	a := behavior.New()
	for _, roiCfg := range cfg.ROIs {
		roi, err := roiFromConfig(roiCfg)
		if err != nil {
			return nil, fmt.Errorf("roi %q: %w", roiCfg.ID, err)
		}
		if err := a.AddROI(roi); err != nil {
			return nil, fmt.Errorf("roi %q: %w", roiCfg.ID, err)
		}
	}
	for _, ruleCfg := range cfg.IntrusionRules {
		if !ruleCfg.Enabled {
			continue
		}
		rule := behavior.IntrusionRule{
			ID:            ruleCfg.ID,
			ROIID:         ruleCfg.ROIID,
			MinDuration:   time.Duration(ruleCfg.MinDurationS * float64(time.Second)),
			Confidence:    ruleCfg.ConfidenceThreshold,
			MinObjectSize: 0,
		}
		if err := a.AddRule(rule); err != nil {
			return nil, fmt.Errorf("intrusion rule %q: %w", ruleCfg.ID, err)
		}
	}
	return a, nil
}

func roiFromConfig(cfg config.ROIConfig) (behavior.ROI, error) {
	polygon := make([]behavior.Point, len(cfg.Polygon))
	for i, p := range cfg.Polygon {
		polygon[i] = behavior.Point{X: p[0], Y: p[1]}
	}

	roi := behavior.ROI{
		ID:       cfg.ID,
		Name:     cfg.Name,
		Polygon:  polygon,
		Priority: cfg.Priority,
		Enabled:  cfg.Enabled,
	}

	if cfg.StartTime != "" || cfg.EndTime != "" {
		start, err := parseClockTime(cfg.StartTime)
		if err != nil {
			return behavior.ROI{}, fmt.Errorf("start_time: %w", err)
		}
		end, err := parseClockTime(cfg.EndTime)
		if err != nil {
			return behavior.ROI{}, fmt.Errorf("end_time: %w", err)
		}
		roi.HasWindow = true
		roi.StartTime = start
		roi.EndTime = end
	}
	return roi, nil
}

// parseClockTime parses a "HH:MM" string into a time.Duration offset since
// midnight (spec §3, "ROI active-time windows").
func parseClockTime(s string) (time.Duration, error) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return 0, fmt.Errorf("expected HH:MM, got %q", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, fmt.Errorf("invalid hour in %q: %w", s, err)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, fmt.Errorf("invalid minute in %q: %w", s, err)
	}
	return time.Duration(h)*time.Hour + time.Duration(m)*time.Minute, nil
}

func buildRunner(camCfg config.CameraConfig, cfg *config.Config, engine *detect.Engine, globalRegistry *registry.Registry, analyzer *behavior.Analyzer) (*pipeline.Runner, error) {
	sourceCfg := vision.SourceConfig{
		ID:        camCfg.ID,
		URL:       camCfg.URL,
		Transport: vision.Transport(camCfg.Protocol),
		Username:  camCfg.Username,
		Password:  camCfg.Password,
		Width:     camCfg.Width,
		Height:    camCfg.Height,
		FPS:       camCfg.FPS,
	}
	if err := sourceCfg.Validate(); err != nil {
		return nil, err
	}

	reconnector := vision.NewReconnector(func() vision.FrameSource { return vision.NewGocvSource() }, sourceCfg)

	extractor, err := buildReIDExtractor(cfg.ReID)
	if err != nil {
		return nil, fmt.Errorf("reid: %w", err)
	}

	tracker := track.New(trackerConfigFrom(cfg.Tracking))

	runnerCfg := pipeline.DefaultRunnerConfig(camCfg.ID)
	runnerCfg.MinObjectSize = float32(cfg.Behavior.MinObjectSize)

	return pipeline.New(runnerCfg, reconnector, engine, extractor, tracker, globalRegistry, analyzer), nil
}

func buildReIDExtractor(cfg config.ReIDConfig) (*reid.Extractor, error) {
	if cfg.ModelPath == "" {
		return reid.New(noopEmbedder{}, cfg.CropSize), nil
	}
	modelBytes, err := os.ReadFile(cfg.ModelPath)
	if err != nil {
		return nil, fmt.Errorf("reading reid model: %w", err)
	}
	embedder, err := reid.NewDnnEmbedder(modelBytes, cfg.Dim)
	if err != nil {
		return nil, err
	}
	return reid.New(embedder, cfg.CropSize), nil
}

// noopEmbedder is used when no ReID model is configured; every crop
// produces an empty, invalid embedding so downstream matching is skipped
// rather than erroring.
type noopEmbedder struct{}

func (noopEmbedder) Dim() int { return 0 }
func (noopEmbedder) Embed(crop []byte, width, height int) ([]float32, error) {
	return nil, fmt.Errorf("reid: no model configured")
}

func trackerConfigFrom(cfg config.TrackingConfig) track.Config {
	return track.Config{
		TrackThreshold:          cfg.TrackThreshold,
		HighThreshold:           cfg.HighThreshold,
		MatchThreshold:          cfg.MatchThreshold,
		MaxLostFrames:           cfg.MaxLostFrames,
		ReIDWeight:              cfg.ReIDWeight,
		ReIDSimilarityThreshold: cfg.ReIDSimilarityThreshold,
		ReIDEnabled:             cfg.ReIDEnabled,
	}
}
