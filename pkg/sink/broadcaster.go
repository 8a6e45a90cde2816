package sink

import (
	"context"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"sync"
)

// subscriber is one live MJPEG client's delivery channel. Slow clients get
// dropped rather than backing up the broadcaster (same trade-off as the
// teacher's PreviewWindow drop-on-full channel).
type subscriber struct {
	ch chan []byte
}

// Broadcaster fans JPEG-encoded frames out to any number of HTTP MJPEG
// clients per camera, for the debug preview surface (spec §6's camera
// config carries an optional mjpeg_port per source).
type Broadcaster struct {
	mu   sync.Mutex
	subs map[string]map[*subscriber]struct{}
}

// NewBroadcaster builds an empty Broadcaster.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subs: make(map[string]map[*subscriber]struct{})}
}

// Publish pushes a JPEG frame to every subscriber of cameraID. Subscribers
// whose channel is full drop the frame rather than blocking the producer.
func (b *Broadcaster) Publish(cameraID string, jpeg []byte) {
	b.mu.Lock()
	subs := b.subs[cameraID]
	targets := make([]*subscriber, 0, len(subs))
	for s := range subs {
		targets = append(targets, s)
	}
	b.mu.Unlock()

	for _, s := range targets {
		select {
		case s.ch <- jpeg:
		default:
		}
	}
}

func (b *Broadcaster) subscribe(cameraID string) *subscriber {
	s := &subscriber{ch: make(chan []byte, 1)}
	b.mu.Lock()
	if b.subs[cameraID] == nil {
		b.subs[cameraID] = make(map[*subscriber]struct{})
	}
	b.subs[cameraID][s] = struct{}{}
	b.mu.Unlock()
	return s
}

func (b *Broadcaster) unsubscribe(cameraID string, s *subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.subs[cameraID], s)
	if len(b.subs[cameraID]) == 0 {
		delete(b.subs, cameraID)
	}
}

// ServeHTTP implements http.Handler, serving a multipart/x-mixed-replace
// MJPEG stream for the camera named by the "camera" query parameter
// (adapted from the teacher pack's dvr.StreamSnapshot multipart writer).
func (b *Broadcaster) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	cameraID := r.URL.Query().Get("camera")
	if cameraID == "" {
		http.Error(w, "missing camera query parameter", http.StatusBadRequest)
		return
	}

	sub := b.subscribe(cameraID)
	defer b.unsubscribe(cameraID, sub)

	const boundary = "videocorepreview"
	w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary="+boundary)
	w.Header().Set("Cache-Control", "no-store")

	flusher, canFlush := w.(http.Flusher)
	w.WriteHeader(http.StatusOK)
	if canFlush {
		flusher.Flush()
	}

	mw := multipart.NewWriter(w)
	_ = mw.SetBoundary(boundary)

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case frame, ok := <-sub.ch:
			if !ok {
				return
			}
			if err := writeJPEGPart(mw, frame); err != nil {
				return
			}
			if canFlush {
				flusher.Flush()
			}
		}
	}
}

func writeJPEGPart(mw *multipart.Writer, data []byte) error {
	h := make(textproto.MIMEHeader)
	h.Set("Content-Type", "image/jpeg")
	h.Set("Content-Length", fmt.Sprintf("%d", len(data)))
	pw, err := mw.CreatePart(h)
	if err != nil {
		return err
	}
	_, err = pw.Write(data)
	return err
}

// Start runs an HTTP server bound to addr serving the broadcaster until
// ctx is cancelled.
func (b *Broadcaster) Start(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: b}
	go func() {
		<-ctx.Done()
		_ = srv.Close()
	}()
	return srv.ListenAndServe()
}
