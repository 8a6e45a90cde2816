// Package detect implements the multi-context detection engine: a fixed
// pool of accelerator contexts driven by asynchronous submission, YOLOv8
// anchor-free head postprocessing, and letterbox bookkeeping (spec §4.2).
package detect

import (
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/avsentry/videocore/pkg/vision"
)

// Future is resolved exactly once with the detections for one submitted
// frame, including the empty case for drop-oldest and cancellation
// (spec §4.2, "submit(frame) -> Future<Vec<Detection>>").
type Future struct {
	id string
	ch chan []vision.Detection
}

// ID uniquely identifies this submission, stable for its lifetime.
func (f *Future) ID() string { return f.id }

// Wait blocks until the future resolves.
func (f *Future) Wait() []vision.Detection { return <-f.ch }

func newFuture() *Future { return &Future{id: uuid.NewString(), ch: make(chan []vision.Detection, 1)} }

func (f *Future) resolve(dets []vision.Detection) {
	select {
	case f.ch <- dets:
	default:
	}
}

type task struct {
	frame  vision.Frame
	future *Future
}

// Stats reports the engine's per-submission counters. The pipeline runner
// does not read them; its health depends only on frame-source errors.
type Stats struct {
	Submitted   uint64
	Dropped     uint64
	Errored     uint64
	Completed   uint64
}

// Engine is the multi-context detection engine (spec §4.2, C3/C4).
type Engine struct {
	mu       sync.Mutex
	cond     *sync.Cond
	queue    []*task
	maxQueue int

	contexts   []Context
	scratches  []*Scratch
	inputW     int
	inputH     int
	quantized  bool

	confidenceThreshold float32
	nmsThreshold        float32
	enabledCategories   map[string]bool
	classNames          []string
	strides             []int

	stopped bool
	wg      sync.WaitGroup

	statsMu sync.Mutex
	stats   Stats
}

// DefaultMaxQueue is the spec's documented default bounded-queue capacity.
const DefaultMaxQueue = 10

// New loads modelBytes into numContexts independent accelerator contexts
// via factory, one per worker (spec §4.2, "init(model_bytes, num_contexts
// N) -> Engine"). On any context failure, already-created contexts are
// released and initialization fails.
func New(modelBytes []byte, numContexts int, factory ContextFactory, classNames []string, quantized bool) (*Engine, error) {
	if numContexts <= 0 {
		return nil, ErrNoContexts
	}

	e := &Engine{
		maxQueue:            DefaultMaxQueue,
		confidenceThreshold: 0.25,
		nmsThreshold:        0.45,
		classNames:          classNames,
		strides:             []int{8, 16, 32},
		quantized:           quantized,
	}
	e.cond = sync.NewCond(&e.mu)

	for i := 0; i < numContexts; i++ {
		ctx, err := factory(modelBytes)
		if err != nil {
			for _, c := range e.contexts {
				_ = c.Close()
			}
			return nil, &EngineError{Kind: ErrContextInit, Err: fmt.Errorf("context %d: %w", i, err)}
		}
		e.contexts = append(e.contexts, ctx)
		e.scratches = append(e.scratches, newScratch())
	}
	e.inputW, e.inputH = e.contexts[0].InputSize()

	for i := range e.contexts {
		e.wg.Add(1)
		go e.worker(i)
	}
	return e, nil
}

// Submit enqueues frame for detection, never blocking the caller. If the
// bounded queue is full, the oldest pending task is dropped and its future
// resolves empty (spec §4.2, "drop-oldest").
func (e *Engine) Submit(frame vision.Frame) (*Future, error) {
	fut := newFuture()
	t := &task{frame: frame, future: fut}

	e.mu.Lock()
	if e.stopped {
		e.mu.Unlock()
		return nil, ErrEngineClosed
	}
	if len(e.queue) >= e.maxQueue {
		oldest := e.queue[0]
		e.queue = e.queue[1:]
		oldest.future.resolve(nil)
		e.bumpDropped()
	}
	e.queue = append(e.queue, t)
	e.bumpSubmitted()
	e.cond.Signal()
	e.mu.Unlock()

	return fut, nil
}

func (e *Engine) bumpDropped()   { e.statsMu.Lock(); e.stats.Dropped++; e.statsMu.Unlock() }
func (e *Engine) bumpSubmitted() { e.statsMu.Lock(); e.stats.Submitted++; e.statsMu.Unlock() }
func (e *Engine) bumpErrored()   { e.statsMu.Lock(); e.stats.Errored++; e.statsMu.Unlock() }
func (e *Engine) bumpCompleted() { e.statsMu.Lock(); e.stats.Completed++; e.statsMu.Unlock() }

// Stats returns a snapshot of the engine's health counters.
func (e *Engine) Stats() Stats {
	e.statsMu.Lock()
	defer e.statsMu.Unlock()
	return e.stats
}

// SetMaxQueue changes the bounded queue's capacity for future submissions.
func (e *Engine) SetMaxQueue(n int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.maxQueue = n
}

// SetConfidenceThreshold changes the postprocessor's score cutoff.
func (e *Engine) SetConfidenceThreshold(f float32) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.confidenceThreshold = f
}

// SetNMSThreshold changes the postprocessor's suppression IoU threshold.
func (e *Engine) SetNMSThreshold(f float32) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.nmsThreshold = f
}

// SetEnabledCategories restricts output to the named classes; an empty
// slice disables filtering (spec §4.2 step 7).
func (e *Engine) SetEnabledCategories(names []string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(names) == 0 {
		e.enabledCategories = nil
		return
	}
	m := make(map[string]bool, len(names))
	for _, n := range names {
		m[n] = true
	}
	e.enabledCategories = m
}

// worker pins to contexts[idx]/scratches[idx] for its entire lifetime
// (spec §4.2, "Concurrency"): one context per worker, never reassigned.
func (e *Engine) worker(idx int) {
	defer e.wg.Done()
	ctx := e.contexts[idx]
	scratch := e.scratches[idx]

	for {
		e.mu.Lock()
		for len(e.queue) == 0 && !e.stopped {
			e.cond.Wait()
		}
		if e.stopped && len(e.queue) == 0 {
			e.mu.Unlock()
			return
		}
		t := e.queue[0]
		e.queue = e.queue[1:]
		quantized := e.quantized
		dstW, dstH := e.inputW, e.inputH
		cfg := PostprocessConfig{
			ConfidenceThreshold: e.confidenceThreshold,
			NMSThreshold:        e.nmsThreshold,
			ClassNames:          e.classNames,
			Strides:             e.strides,
		}
		enabled := e.enabledCategories
		e.mu.Unlock()

		dets, err := e.runOne(ctx, scratch, t.frame, dstW, dstH, quantized, cfg)
		if err != nil {
			e.bumpErrored()
			t.future.resolve(nil)
			continue
		}
		if enabled != nil {
			dets = filterCategories(dets, enabled)
		}
		e.bumpCompleted()
		t.future.resolve(dets)
	}
}

func filterCategories(dets []vision.Detection, enabled map[string]bool) []vision.Detection {
	out := dets[:0]
	for _, d := range dets {
		if enabled[d.ClassName] {
			out = append(out, d)
		}
	}
	return out
}

// runOne executes the per-submission pipeline (spec §4.2 steps 1-6); the
// category filter (step 7) is applied by the calling worker.
func (e *Engine) runOne(ctx Context, scratch *Scratch, frame vision.Frame, dstW, dstH int, quantized bool, cfg PostprocessConfig) ([]vision.Detection, error) {
	input, err := preprocess(scratch, frame, dstW, dstH, quantized)
	if err != nil {
		return nil, &EngineError{Kind: ErrInputBind, Err: err}
	}

	raw, err := ctx.Run(input)
	if err != nil {
		return nil, &EngineError{Kind: ErrRun, Err: err}
	}

	dets, err := postprocess(raw, cfg)
	if err != nil {
		return nil, err
	}

	srcW, srcH := float32(frame.Width), float32(frame.Height)
	out := dets[:0]
	for _, d := range dets {
		x1, y1 := input.Letterbox.InvertPoint(d.BBox.X, d.BBox.Y)
		x2, y2 := input.Letterbox.InvertPoint(d.BBox.X+d.BBox.W, d.BBox.Y+d.BBox.H)
		box := vision.BBox{X: x1, Y: y1, W: x2 - x1, H: y2 - y1}.Clamp(srcW, srcH)
		if box.Area() <= 0 {
			continue
		}
		d.BBox = box
		out = append(out, d)
	}
	return out, nil
}

// Shutdown flushes in-flight and queued work. Queued tasks are cancelled
// with an empty result; the in-flight task per worker completes naturally.
// Individual submissions cannot be cancelled once dequeued (spec §4.2,
// "Cancellation").
func (e *Engine) Shutdown() error {
	e.mu.Lock()
	if e.stopped {
		e.mu.Unlock()
		return nil
	}
	e.stopped = true
	for _, t := range e.queue {
		t.future.resolve(nil)
	}
	e.queue = nil
	e.cond.Broadcast()
	e.mu.Unlock()

	e.wg.Wait()

	var firstErr error
	for _, c := range e.contexts {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
