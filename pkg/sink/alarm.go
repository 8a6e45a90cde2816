// Package sink implements the external-facing outputs of a pipeline:
// BehaviorEvent delivery to alarm endpoints and a debug MJPEG preview
// (spec §6, "BehaviorEvent JSON", "Persisted state owned by collaborators").
package sink

import (
	"encoding/json"
	"fmt"
	"net"
	"sync"

	"github.com/avsentry/videocore/pkg/behavior"
)

// BoundingBox is the wire shape of BehaviorEventPayload.BoundingBox.
type BoundingBox struct {
	X      int32 `json:"x"`
	Y      int32 `json:"y"`
	Width  int32 `json:"width"`
	Height int32 `json:"height"`
}

// BehaviorEventPayload is the JSON document sent to external alarm sinks
// (spec §6, "BehaviorEvent JSON"). Field order is not normative; the json
// tags are what matters.
type BehaviorEventPayload struct {
	EventType     string      `json:"event_type"`
	CameraID      string      `json:"camera_id"`
	RuleID        string      `json:"rule_id"`
	ObjectID      string      `json:"object_id"`
	ReIDID        string      `json:"reid_id"`
	LocalTrackID  int64       `json:"local_track_id"`
	GlobalTrackID int64       `json:"global_track_id"`
	Confidence    float32     `json:"confidence"`
	Timestamp     string      `json:"timestamp"`
	Metadata      string      `json:"metadata"`
	BoundingBox   BoundingBox `json:"bounding_box"`
	TestMode      bool        `json:"test_mode"`
}

// BuildPayload converts a BehaviorEvent plus the camera/track context it
// was emitted under into the wire payload. reid_id is derived from
// global_track_id: "reid_{id}" when it is non-negative, empty otherwise
// (spec §6, "reid_id = reid_{global_track_id} when global_track_id >= 0").
func BuildPayload(ev behavior.BehaviorEvent, cameraID string, globalTrackID int64, testMode bool) BehaviorEventPayload {
	reidID := ""
	if globalTrackID >= 0 {
		reidID = fmt.Sprintf("reid_%d", globalTrackID)
	}
	return BehaviorEventPayload{
		EventType:     "intrusion",
		CameraID:      cameraID,
		RuleID:        ev.RuleID,
		ObjectID:      fmt.Sprintf("%d", ev.TrackID),
		ReIDID:        reidID,
		LocalTrackID:  ev.TrackID,
		GlobalTrackID: globalTrackID,
		Confidence:    ev.Confidence,
		Timestamp:     ev.EmittedAt.UTC().Format("2006-01-02T15:04:05.000Z"),
		Metadata:      ev.Metadata.Summary(),
		BoundingBox: BoundingBox{
			X:      int32(ev.BBox.X),
			Y:      int32(ev.BBox.Y),
			Width:  int32(ev.BBox.W),
			Height: int32(ev.BBox.H),
		},
		TestMode: testMode,
	}
}

// AlarmSink delivers BehaviorEvent payloads to an external collaborator.
// Delivery failures are the collaborator's concern, never the core's
// (spec §7, "Alarm delivery failures are the collaborators' concern").
type AlarmSink interface {
	Send(payload BehaviorEventPayload) error
	Close() error
}

// UDPAlarmSink sends each payload as a single JSON-encoded UDP datagram,
// adapted from the teacher's VMCSender dial-and-write pattern.
type UDPAlarmSink struct {
	mu      sync.Mutex
	conn    *net.UDPConn
	enabled bool
}

// NewUDPAlarmSink dials addr (host:port) over UDP.
func NewUDPAlarmSink(addr string) (*UDPAlarmSink, error) {
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("resolving alarm sink address: %w", err)
	}
	conn, err := net.DialUDP("udp", nil, udpAddr)
	if err != nil {
		return nil, fmt.Errorf("connecting to alarm sink: %w", err)
	}
	return &UDPAlarmSink{conn: conn, enabled: true}, nil
}

// Send JSON-encodes payload and writes it as one datagram.
func (s *UDPAlarmSink) Send(payload BehaviorEventPayload) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.enabled || s.conn == nil {
		return nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encoding alarm payload: %w", err)
	}
	if _, err := s.conn.Write(data); err != nil {
		return fmt.Errorf("sending alarm payload: %w", err)
	}
	return nil
}

// Close releases the sink's socket.
func (s *UDPAlarmSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.enabled = false
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}

// MultiSink fans a payload out to every underlying sink, collecting the
// first error but always attempting delivery to all of them.
type MultiSink struct {
	sinks []AlarmSink
}

// NewMultiSink builds a MultiSink over sinks.
func NewMultiSink(sinks ...AlarmSink) *MultiSink {
	return &MultiSink{sinks: sinks}
}

func (m *MultiSink) Send(payload BehaviorEventPayload) error {
	var firstErr error
	for _, s := range m.sinks {
		if err := s.Send(payload); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (m *MultiSink) Close() error {
	var firstErr error
	for _, s := range m.sinks {
		if err := s.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// EventDispatcher drains a pipeline's events to an AlarmSink, stamping
// test_mode and resolving reid_id from the global track id carried
// alongside each event.
type EventDispatcher struct {
	sink     AlarmSink
	cameraID string
	testMode bool
}

// NewEventDispatcher binds a sink to one camera's events.
func NewEventDispatcher(sink AlarmSink, cameraID string, testMode bool) *EventDispatcher {
	return &EventDispatcher{sink: sink, cameraID: cameraID, testMode: testMode}
}

// Dispatch builds and sends one payload per event. globalTrackIDs maps
// local track ids to global ones the way FrameResult's parallel arrays
// do; a missing entry is treated as not-yet-globalized (-1).
func (d *EventDispatcher) Dispatch(events []behavior.BehaviorEvent, globalByLocal map[int64]int64) error {
	var firstErr error
	for _, ev := range events {
		gid, ok := globalByLocal[ev.TrackID]
		if !ok {
			gid = -1
		}
		payload := BuildPayload(ev, d.cameraID, gid, d.testMode)
		if err := d.sink.Send(payload); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
