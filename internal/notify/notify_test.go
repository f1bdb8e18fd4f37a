package notify

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

// chanPublisher forwards events to a channel.
type chanPublisher chan Event

func (c chanPublisher) Publish(e Event) error {
	c <- e
	return nil
}

func TestEventWriterCreatesFile(t *testing.T) {
	dir := t.TempDir()
	w := NewEventWriter(dir)

	if err := w.Publish(Event{Type: UploadCommitted, UserID: 1, UploadID: 7}); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	entries, err := os.ReadDir(filepath.Join(dir, "events"))
	if err != nil {
		t.Fatalf("ReadDir failed: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 event file, got %d", len(entries))
	}
	if filepath.Ext(entries[0].Name()) != ".event" {
		t.Errorf("expected .event extension, got %s", entries[0].Name())
	}
}

func TestEventWatcherReceivesEvent(t *testing.T) {
	dir := t.TempDir()
	received := make(chanPublisher, 1)

	watcher := NewEventWatcher(dir, received, nil)
	if err := watcher.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer watcher.Stop()

	// Give fsnotify a moment to register
	time.Sleep(50 * time.Millisecond)

	writer := NewEventWriter(dir)
	if err := writer.Publish(Event{Type: UploadCommitted, UserID: 3, UploadID: 12, Posts: 40}); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	select {
	case evt := <-received:
		if evt.Type != UploadCommitted {
			t.Errorf("expected %s, got %s", UploadCommitted, evt.Type)
		}
		if evt.UserID != 3 || evt.UploadID != 12 || evt.Posts != 40 {
			t.Errorf("unexpected event %+v", evt)
		}
		if evt.Time == 0 {
			t.Error("expected the writer to stamp the event time")
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timeout waiting for event")
	}
}

func TestEventWatcherDrainsExisting(t *testing.T) {
	dir := t.TempDir()

	// Write events before starting the watcher
	writer := NewEventWriter(dir)
	_ = writer.Publish(Event{Type: UploadCommitted, UploadID: 1})
	_ = writer.Publish(Event{Type: UploadPurged, UploadID: 2})

	received := make(chanPublisher, 10)
	watcher := NewEventWatcher(dir, received, nil)
	if err := watcher.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer watcher.Stop()

	// Draining happens synchronously inside Start.
	if len(received) != 2 {
		t.Fatalf("expected 2 drained events, got %d", len(received))
	}
	entries, _ := os.ReadDir(Dir(dir))
	if len(entries) != 0 {
		t.Errorf("expected event files to be consumed, %d left", len(entries))
	}
}

func TestEventWatcherSkipsInvalidFiles(t *testing.T) {
	dir := t.TempDir()
	if err := os.MkdirAll(Dir(dir), 0o700); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(Dir(dir), "junk.event"), []byte("{not json"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(Dir(dir), "untyped.event"), []byte(`{"upload_id":4}`), 0o600); err != nil {
		t.Fatal(err)
	}

	received := make(chanPublisher, 10)
	watcher := NewEventWatcher(dir, received, nil)
	if err := watcher.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer watcher.Stop()

	if len(received) != 0 {
		t.Fatalf("expected invalid events to be dropped, got %d", len(received))
	}
}

func TestEventWriterConcurrent(t *testing.T) {
	dir := t.TempDir()
	w := NewEventWriter(dir)

	var wg sync.WaitGroup
	for i := 1; i <= 20; i++ {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			if err := w.Publish(Event{Type: UploadCommitted, UploadID: id}); err != nil {
				t.Errorf("Publish failed: %v", err)
			}
		}(int64(i))
	}
	wg.Wait()

	entries, err := os.ReadDir(Dir(dir))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 20 {
		t.Errorf("expected 20 event files, got %d", len(entries))
	}
}

func TestStopWithoutStart(t *testing.T) {
	NewEventWatcher(t.TempDir(), nil, nil).Stop()
}
