package sink

import (
	"bufio"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestBroadcaster_ServeHTTPRequiresCameraParam(t *testing.T) {
	b := NewBroadcaster()
	req := httptest.NewRequest(http.MethodGet, "/preview", nil)
	w := httptest.NewRecorder()
	b.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 without camera param, got %d", w.Code)
	}
}

func TestBroadcaster_PublishDeliversToSubscriber(t *testing.T) {
	b := NewBroadcaster()

	srv := httptest.NewServer(b)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/preview?camera=cam1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct == "" {
		t.Error("expected a multipart content-type header")
	}

	// Give the handler a moment to register its subscription, then publish.
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		b.mu.Lock()
		n := len(b.subs["cam1"])
		b.mu.Unlock()
		if n > 0 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	b.Publish("cam1", []byte("fake-jpeg-bytes"))

	reader := bufio.NewReader(resp.Body)
	found := false
	buf := make([]byte, 0, 256)
	deadline = time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		line, err := reader.ReadBytes('\n')
		if err != nil && err != io.EOF {
			break
		}
		buf = append(buf, line...)
		if containsBytes(buf, []byte("fake-jpeg-bytes")) {
			found = true
			break
		}
		if err == io.EOF {
			break
		}
	}
	if !found {
		t.Error("expected published frame to appear in the multipart stream")
	}
}

func containsBytes(haystack, needle []byte) bool {
	if len(needle) == 0 {
		return true
	}
	for i := 0; i+len(needle) <= len(haystack); i++ {
		match := true
		for j := range needle {
			if haystack[i+j] != needle[j] {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}
	return false
}

func TestBroadcaster_PublishWithNoSubscribersIsNoop(t *testing.T) {
	b := NewBroadcaster()
	b.Publish("nobody-listening", []byte("data"))
}

func TestBroadcaster_UnsubscribeRemovesEmptyCameraEntry(t *testing.T) {
	b := NewBroadcaster()
	s := b.subscribe("cam1")
	b.unsubscribe("cam1", s)

	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subs["cam1"]; ok {
		t.Error("expected empty camera entry to be removed after last unsubscribe")
	}
}
