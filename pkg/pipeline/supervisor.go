package pipeline

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

// DefaultMaxPipelines is the spec's documented cap on concurrently-running
// cameras (spec §4.8, MAX_PIPELINES).
const DefaultMaxPipelines = 16

const monitorInterval = 1 * time.Second

// Errors returned by Supervisor methods.
var (
	ErrPipelineExists   = errors.New("pipeline already registered for this camera")
	ErrPipelineNotFound = errors.New("no pipeline registered for this camera")
	ErrTooManyPipelines = errors.New("max pipelines reached")
)

// SystemStats reports process-wide resource counters alongside each
// pipeline's own stats (spec §4.8, "system-wide: CPU %, accelerator
// memory/util/temperature if available, uptime"). Accelerator counters have
// no telemetry library anywhere in the corpus (no NVML/rknn binding), so
// they stay best-effort and are reported unavailable rather than
// fabricated.
type SystemStats struct {
	CPUPercent             float64
	AcceleratorAvailable   bool
	AcceleratorMemoryMB    float64
	AcceleratorUtilPercent float64
	AcceleratorTempC       float64
	Uptime                 time.Duration

	// MonitorLatency is how far the last monitoring tick landed from its
	// nominal 1s cadence, for self-diagnosis (spec §4.8, "records its own
	// lateness").
	MonitorLatency time.Duration
}

// Supervisor owns the process-wide {camera_id -> Runner} registry, starting
// and stopping runners and aggregating their stats (spec §4.8, C10).
type Supervisor struct {
	mu          sync.Mutex
	runners     map[string]*Runner
	maxPipeline int
	startedAt   time.Time

	monitorStop chan struct{}
	monitorWG   sync.WaitGroup

	statsMu     sync.Mutex
	systemStats SystemStats

	lastCPUSample time.Duration
	lastCPUAt     time.Time
}

// NewSupervisor builds an empty Supervisor bounded at maxPipelines (pass 0
// for the spec default).
func NewSupervisor(maxPipelines int) *Supervisor {
	if maxPipelines <= 0 {
		maxPipelines = DefaultMaxPipelines
	}
	return &Supervisor{
		runners:     make(map[string]*Runner),
		maxPipeline: maxPipelines,
		startedAt:   time.Now(),
	}
}

// Add registers and starts a new Runner for r's camera.
func (s *Supervisor) Add(r *Runner) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cameraID := r.cfg.CameraID
	if _, exists := s.runners[cameraID]; exists {
		return fmt.Errorf("%w: %q", ErrPipelineExists, cameraID)
	}
	if len(s.runners) >= s.maxPipeline {
		return fmt.Errorf("%w: limit %d", ErrTooManyPipelines, s.maxPipeline)
	}
	if err := r.Start(); err != nil {
		return fmt.Errorf("starting pipeline %q: %w", cameraID, err)
	}
	s.runners[cameraID] = r
	return nil
}

// Remove stops and unregisters the camera's Runner.
func (s *Supervisor) Remove(cameraID string) error {
	s.mu.Lock()
	r, ok := s.runners[cameraID]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %q", ErrPipelineNotFound, cameraID)
	}
	delete(s.runners, cameraID)
	s.mu.Unlock()

	return r.Stop()
}

// Get returns the Runner for cameraID, if any.
func (s *Supervisor) Get(cameraID string) (*Runner, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.runners[cameraID]
	return r, ok
}

// Active returns the camera IDs of all registered pipelines, sorted for
// deterministic iteration.
func (s *Supervisor) Active() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.runners))
	for id := range s.runners {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// AggregatedStats returns every active pipeline's Stats, sorted by camera ID
// (spec §4.8, "aggregated stats").
func (s *Supervisor) AggregatedStats() []Stats {
	s.mu.Lock()
	runners := make([]*Runner, 0, len(s.runners))
	for _, r := range s.runners {
		runners = append(runners, r)
	}
	s.mu.Unlock()

	stats := make([]Stats, len(runners))
	for i, r := range runners {
		stats[i] = r.Stats()
	}
	sort.Slice(stats, func(i, j int) bool { return stats[i].CameraID < stats[j].CameraID })
	return stats
}

// ApplyEnabledCategories fans a category filter out to every active
// pipeline's detection engine (spec §4.8, "apply_enabled_categories").
func (s *Supervisor) ApplyEnabledCategories(categories []string) {
	s.mu.Lock()
	runners := make([]*Runner, 0, len(s.runners))
	for _, r := range s.runners {
		runners = append(runners, r)
	}
	s.mu.Unlock()

	for _, r := range runners {
		if r.engine != nil {
			r.engine.SetEnabledCategories(categories)
		}
	}
}

// StartMonitoring begins the 1-second-cadence background loop that calls
// runMonitorTick (spec §4.8, "monitoring loop"). Safe to call once; a second
// call is a no-op until StopMonitoring.
func (s *Supervisor) StartMonitoring() {
	s.mu.Lock()
	if s.monitorStop != nil {
		s.mu.Unlock()
		return
	}
	stop := make(chan struct{})
	s.monitorStop = stop
	s.mu.Unlock()

	s.monitorWG.Add(1)
	go func() {
		defer s.monitorWG.Done()
		ticker := time.NewTicker(monitorInterval)
		defer ticker.Stop()
		lastTick := time.Now()
		for {
			select {
			case <-stop:
				return
			case tick := <-ticker.C:
				lateness := tick.Sub(lastTick) - monitorInterval
				lastTick = tick
				s.runMonitorTick(lateness)
			}
		}
	}()
}

// runMonitorTick performs one monitoring-loop pass: read per-pipeline stats,
// sample process CPU time and uptime (accelerator counters stay
// unavailable), evict terminally-failed runners, and record the tick's own
// lateness (spec §4.8).
func (s *Supervisor) runMonitorTick(lateness time.Duration) {
	s.AggregatedStats() // reads every Runner.Stats(); the result is not stored
	s.sampleSystemStats(lateness)
	s.evictFatalRunners()
}

// sampleSystemStats refreshes CPU% (via process rusage deltas) and the
// best-effort accelerator counters.
func (s *Supervisor) sampleSystemStats(lateness time.Duration) {
	now := time.Now()

	var cpuPercent float64
	if cur, ok := processCPUTime(); ok {
		s.statsMu.Lock()
		if !s.lastCPUAt.IsZero() {
			wall := now.Sub(s.lastCPUAt)
			if wall > 0 {
				cpuPercent = 100 * float64(cur-s.lastCPUSample) / float64(wall)
			}
		}
		s.lastCPUSample = cur
		s.lastCPUAt = now
		s.statsMu.Unlock()
	}

	s.statsMu.Lock()
	s.systemStats = SystemStats{
		CPUPercent:     cpuPercent,
		Uptime:         time.Since(s.startedAt),
		MonitorLatency: lateness,
		// AcceleratorAvailable stays false: no accelerator telemetry
		// library (NVML/rknn) exists in the corpus to source this from.
	}
	s.statsMu.Unlock()
}

// evictFatalRunners removes every runner that has permanently exited its
// loop after exhausting reconnects (spec §4.9, "supervisor removes it").
func (s *Supervisor) evictFatalRunners() {
	s.mu.Lock()
	var fatalIDs []string
	for id, r := range s.runners {
		if r.Fatal() {
			fatalIDs = append(fatalIDs, id)
		}
	}
	s.mu.Unlock()

	for _, id := range fatalIDs {
		_ = s.Remove(id)
	}
}

// SystemStats returns the most recent process-wide resource sample.
func (s *Supervisor) SystemStats() SystemStats {
	s.statsMu.Lock()
	defer s.statsMu.Unlock()
	return s.systemStats
}

// StopMonitoring halts the monitoring loop started by StartMonitoring.
func (s *Supervisor) StopMonitoring() {
	s.mu.Lock()
	stop := s.monitorStop
	s.monitorStop = nil
	s.mu.Unlock()

	if stop == nil {
		return
	}
	close(stop)
	s.monitorWG.Wait()
}

// Shutdown stops every registered pipeline and the monitoring loop.
func (s *Supervisor) Shutdown() error {
	s.StopMonitoring()

	s.mu.Lock()
	runners := make(map[string]*Runner, len(s.runners))
	for id, r := range s.runners {
		runners[id] = r
	}
	s.runners = make(map[string]*Runner)
	s.mu.Unlock()

	var firstErr error
	for _, r := range runners {
		if err := r.Stop(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
