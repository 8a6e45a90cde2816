package vision

import (
	"errors"
	"fmt"
	"time"
)

// SourceErrorKind discriminates FrameSource failures (spec §4.1, "Errors").
type SourceErrorKind int

const (
	// ErrOpen: the stream could not be opened.
	ErrOpen SourceErrorKind = iota
	// ErrRead: a read/decode attempt on an already-open stream failed.
	ErrRead
	// ErrDecode: the codec rejected a frame.
	ErrDecode
	// ErrEndOfStream: the stream ended; not recoverable without a config change.
	ErrEndOfStream
)

func (k SourceErrorKind) String() string {
	switch k {
	case ErrOpen:
		return "open"
	case ErrRead:
		return "read"
	case ErrDecode:
		return "decode"
	case ErrEndOfStream:
		return "end_of_stream"
	default:
		return "unknown"
	}
}

// SourceError is returned by FrameSource.Open/Next.
type SourceError struct {
	Kind SourceErrorKind
	Err  error
}

func (e *SourceError) Error() string {
	return fmt.Sprintf("frame source: %s: %v", e.Kind, e.Err)
}

func (e *SourceError) Unwrap() error { return e.Err }

// Recoverable reports whether the runner may retry after this error.
// Only ErrEndOfStream is non-recoverable without a config change (spec §4.1).
func (e *SourceError) Recoverable() bool { return e.Kind != ErrEndOfStream }

// Transport identifies a camera source's wire protocol.
type Transport string

const (
	TransportRTSP Transport = "rtsp"
	TransportRTMP Transport = "rtmp"
	TransportHTTP Transport = "http"
	TransportFile Transport = "file"
)

// SourceConfig is the camera source configuration consumed by FrameSource.Open
// (spec §6, "Camera source config").
type SourceConfig struct {
	ID        string
	URL       string
	Transport Transport
	Username  string
	Password  string
	Width     int
	Height    int
	FPS       int
}

// Validate rejects configs with an unrecognized transport or non-positive
// dimensions, per spec §4.1 ("Unknown transports fail validation").
func (c SourceConfig) Validate() error {
	switch c.Transport {
	case TransportRTSP, TransportRTMP, TransportHTTP, TransportFile:
	default:
		return fmt.Errorf("source %q: unknown transport %q", c.ID, c.Transport)
	}
	if c.Width <= 0 || c.Height <= 0 {
		return fmt.Errorf("source %q: width/height must be positive", c.ID)
	}
	if c.FPS <= 0 {
		return fmt.Errorf("source %q: fps must be positive", c.ID)
	}
	return nil
}

// FrameSource produces a lazy, finite-or-infinite sequence of frames for one
// camera (spec §4.1). A FrameSource is not restartable after Close; the
// runner opens a fresh Handle via reconnect instead.
type FrameSource interface {
	// Open initializes the source. Must be called once before Next.
	Open(cfg SourceConfig) error
	// Next blocks until a frame is available or an error occurs.
	Next() (Frame, error)
	// Close releases underlying resources. Idempotent.
	Close() error
}

// ErrNotOpened is returned by Next when called before a successful Open.
var ErrNotOpened = errors.New("frame source not opened")

// Reconnector wraps a FrameSource with the bounded retry policy from spec
// §4.1: up to MaxAttempts reconnects, waiting Delay between attempts,
// resetting the attempt counter on success.
type Reconnector struct {
	New         func() FrameSource
	Cfg         SourceConfig
	MaxAttempts int
	Delay       time.Duration

	current  FrameSource
	attempts int
}

// DefaultMaxReconnectAttempts and DefaultReconnectDelay are the spec's
// documented defaults (spec §4.1).
const (
	DefaultMaxReconnectAttempts = 5
	DefaultReconnectDelayMS     = 5000
)

// NewReconnector builds a Reconnector with spec-default bounds.
func NewReconnector(newSource func() FrameSource, cfg SourceConfig) *Reconnector {
	return &Reconnector{
		New:         newSource,
		Cfg:         cfg,
		MaxAttempts: DefaultMaxReconnectAttempts,
		Delay:       DefaultReconnectDelayMS * time.Millisecond,
	}
}

// Open opens the underlying source for the first time.
func (r *Reconnector) Open() error {
	r.current = r.New()
	if err := r.current.Open(r.Cfg); err != nil {
		return err
	}
	r.attempts = 0
	return nil
}

// Next reads the next frame from the current underlying source.
func (r *Reconnector) Next() (Frame, error) {
	if r.current == nil {
		return Frame{}, ErrNotOpened
	}
	return r.current.Next()
}

// Reconnect closes the current source and attempts to open a fresh one,
// honoring MaxAttempts. Returns an error wrapping ErrReconnectExhausted
// once the attempt budget is spent.
func (r *Reconnector) Reconnect() error {
	if r.attempts >= r.MaxAttempts {
		return fmt.Errorf("%w: %d attempts against %q", ErrReconnectExhausted, r.attempts, r.Cfg.ID)
	}
	r.attempts++

	if r.current != nil {
		_ = r.current.Close()
	}
	time.Sleep(r.Delay)

	next := r.New()
	if err := next.Open(r.Cfg); err != nil {
		return err
	}
	r.current = next
	r.attempts = 0
	return nil
}

// Close releases the underlying source.
func (r *Reconnector) Close() error {
	if r.current == nil {
		return nil
	}
	return r.current.Close()
}

// ErrReconnectExhausted is returned once MaxAttempts reconnects have failed.
var ErrReconnectExhausted = errors.New("reconnect attempts exhausted")
