package pipeline

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/avsentry/videocore/pkg/behavior"
	"github.com/avsentry/videocore/pkg/detect"
	"github.com/avsentry/videocore/pkg/reid"
	"github.com/avsentry/videocore/pkg/registry"
	"github.com/avsentry/videocore/pkg/track"
	"github.com/avsentry/videocore/pkg/vision"
)

// runnerState mirrors the lifecycle of a single processing loop.
type runnerState int

const (
	stateIdle runnerState = iota
	stateRunning
	stateStopped
)

// Errors returned by Runner lifecycle methods.
var (
	ErrRunnerRunning = errors.New("pipeline runner is already running")
	ErrRunnerStopped = errors.New("pipeline runner is not running")
)

const (
	defaultFrameTimeoutS        = 30
	defaultMaxConsecutiveErrors = 10
	defaultHealthCheckIntervalS = 10
)

// RunnerConfig holds one camera's health and reconnect tunables (spec §4.7).
type RunnerConfig struct {
	CameraID             string
	FrameTimeout         time.Duration
	MaxConsecutiveErrors int
	HealthCheckInterval  time.Duration
	MinObjectSize        float32
}

// DefaultRunnerConfig fills in the spec's documented defaults.
func DefaultRunnerConfig(cameraID string) RunnerConfig {
	return RunnerConfig{
		CameraID:             cameraID,
		FrameTimeout:         defaultFrameTimeoutS * time.Second,
		MaxConsecutiveErrors: defaultMaxConsecutiveErrors,
		HealthCheckInterval:  defaultHealthCheckIntervalS * time.Second,
		MinObjectSize:        1,
	}
}

// Runner binds one camera to the full {decode -> detect -> track+ReID ->
// behavior-analyze -> emit} chain (spec §4.7, C9).
type Runner struct {
	cfg RunnerConfig

	source    *vision.Reconnector
	engine    *detect.Engine
	extractor *reid.Extractor
	tracker   *track.Tracker
	global    *registry.Registry
	analyzer  *behavior.Analyzer

	mu    sync.Mutex
	state runnerState
	wg    sync.WaitGroup
	stop  chan struct{}

	results chan FrameResult

	startedAt time.Time

	consecutiveErrors atomic.Int64
	processed         atomic.Uint64
	dropped           atomic.Uint64
	lastError         atomic.Value // string
	healthy           atomic.Bool
	fatal             atomic.Bool
	lastFrameAt       atomic.Value // time.Time
	fpsEMA            atomic.Value // float64
}

// New builds a Runner from its dependencies. global may be shared across
// many Runners (it is the process-wide cross-camera registry); the other
// dependencies are per-camera.
func New(cfg RunnerConfig, source *vision.Reconnector, engine *detect.Engine, extractor *reid.Extractor, tracker *track.Tracker, global *registry.Registry, analyzer *behavior.Analyzer) *Runner {
	r := &Runner{
		cfg:       cfg,
		source:    source,
		engine:    engine,
		extractor: extractor,
		tracker:   tracker,
		global:    global,
		analyzer:  analyzer,
		results:   make(chan FrameResult, 4),
	}
	r.healthy.Store(true)
	r.lastError.Store("")
	r.fpsEMA.Store(float64(0))
	return r
}

// Results returns the channel FrameResults are published on.
func (r *Runner) Results() <-chan FrameResult { return r.results }

// Start begins the processing loop in a background goroutine.
func (r *Runner) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state == stateRunning {
		return ErrRunnerRunning
	}

	if err := r.source.Open(); err != nil {
		return fmt.Errorf("opening source for %q: %w", r.cfg.CameraID, err)
	}

	r.state = stateRunning
	r.startedAt = time.Now()
	r.stop = make(chan struct{})

	r.wg.Add(1)
	go r.loop(r.stop)
	return nil
}

// Stop signals the loop to exit and joins it before returning (spec §4.7,
// "PipelineRunner.stop() joins the processing thread before returning").
func (r *Runner) Stop() error {
	r.mu.Lock()
	if r.state != stateRunning {
		r.mu.Unlock()
		return ErrRunnerStopped
	}
	close(r.stop)
	r.state = stateStopped
	r.mu.Unlock()

	r.wg.Wait()
	return r.source.Close()
}

func (r *Runner) loop(stop <-chan struct{}) {
	defer r.wg.Done()
	defer close(r.results)

	for {
		select {
		case <-stop:
			return
		default:
		}

		if !r.healthy.Load() {
			if err := r.source.Reconnect(); err != nil {
				r.recordError(err)
				if errors.Is(err, vision.ErrReconnectExhausted) {
					// spec §4.9, "Reconnect exhausted -> mark runner fatal,
					// supervisor removes it".
					r.fatal.Store(true)
					return
				}
				continue
			}
			r.healthy.Store(true)
			r.consecutiveErrors.Store(0)
		}

		frame, err := r.source.Next()
		if err != nil {
			r.onSourceError(err)
			continue
		}
		r.lastFrameAt.Store(time.Now())

		result := r.processFrame(frame)

		select {
		case r.results <- result:
		case <-stop:
			return
		default:
			r.dropped.Add(1)
		}
		r.processed.Add(1)
		r.consecutiveErrors.Store(0)
	}
}

func (r *Runner) onSourceError(err error) {
	r.recordError(err)
	count := r.consecutiveErrors.Add(1)

	var srcErr *vision.SourceError
	if errors.As(err, &srcErr) && !srcErr.Recoverable() {
		r.healthy.Store(false)
		return
	}
	if int(count) >= r.cfg.MaxConsecutiveErrors {
		r.healthy.Store(false)
	}
}

func (r *Runner) recordError(err error) {
	r.lastError.Store(err.Error())
}

// processFrame runs one frame through detect -> ReID -> track -> registry
// -> behavior (spec §4.7's loop body).
func (r *Runner) processFrame(frame vision.Frame) FrameResult {
	fut, err := r.engine.Submit(frame)
	var dets []vision.Detection
	if err != nil {
		r.recordError(err)
	} else {
		dets = fut.Wait()
	}

	boxes := make([]vision.BBox, len(dets))
	for i, d := range dets {
		boxes[i] = d.BBox
	}
	embeddings, _ := r.extractor.Extract(frame, boxes)

	trackIDs := r.tracker.Update(dets, embeddings)

	globalIDs := make([]int64, len(dets))
	embeddingRows := make([][]float32, len(dets))
	for i, d := range dets {
		globalIDs[i] = -1
		if i < len(embeddings) {
			embeddingRows[i] = embeddings[i].Features
		}
		if trackIDs[i] < 0 || r.global == nil {
			continue
		}
		if i >= len(embeddings) || !embeddings[i].Valid {
			continue
		}
		r.global.Report(r.cfg.CameraID, trackIDs[i], embeddings[i].Features, d.BBox, d.ClassID, d.Confidence)
		if gid, ok := r.global.GlobalID(r.cfg.CameraID, trackIDs[i]); ok {
			globalIDs[i] = int64(gid)
		}
	}

	var events []behavior.BehaviorEvent
	var activeROIs []behavior.ROI
	if r.analyzer != nil {
		now := time.Now()
		events = r.analyzer.Update(dets, trackIDs, r.cfg.MinObjectSize, now)
		activeROIs = r.analyzer.ActiveROIs(now)
	}

	outDets := make([]DetectedObject, len(dets))
	for i, d := range dets {
		outDets[i] = DetectedObject{BBox: d.BBox, Confidence: d.Confidence, ClassID: d.ClassID, ClassName: d.ClassName}
	}

	return FrameResult{
		CameraID:       r.cfg.CameraID,
		Frame:          frame,
		TimestampMS:    frame.MonotonicTS.UnixMilli(),
		Detections:     outDets,
		TrackIDs:       trackIDs,
		GlobalTrackIDs: globalIDs,
		ReIDEmbeddings: embeddingRows,
		Events:         events,
		ActiveROIs:     activeROIs,
	}
}

// Health reports the runner's current health snapshot.
func (r *Runner) Health() Health {
	return Health{
		Healthy:           r.healthy.Load(),
		Fatal:             r.fatal.Load(),
		LastError:         r.lastErrorString(),
		ConsecutiveErrors: int(r.consecutiveErrors.Load()),
	}
}

// Fatal reports whether the runner has permanently exited its processing
// loop after exhausting reconnect attempts (spec §4.9). The supervisor's
// monitoring loop polls this to evict terminally-failed pipelines.
func (r *Runner) Fatal() bool { return r.fatal.Load() }

func (r *Runner) lastErrorString() string {
	v := r.lastError.Load()
	if v == nil {
		return ""
	}
	return v.(string)
}

// Stats reports the runner's aggregate counters for the supervisor.
func (r *Runner) Stats() Stats {
	r.mu.Lock()
	uptime := time.Since(r.startedAt)
	r.mu.Unlock()

	var trackStats track.Stats
	if r.tracker != nil {
		trackStats = r.tracker.Stats()
	}

	return Stats{
		CameraID:  r.cfg.CameraID,
		Processed: r.processed.Load(),
		Dropped:   r.dropped.Load(),
		Uptime:    uptime,
		Health:    r.Health(),
		LastError: r.lastErrorString(),
		Track:     trackStats,
	}
}
