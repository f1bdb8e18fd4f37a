package notify

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

const eventExt = ".event"

// EventWatcher watches the events directory and hands each event to a
// Publisher. Event files are removed once read.
type EventWatcher struct {
	dir     string
	out     Publisher
	logger  *zap.Logger
	watcher *fsnotify.Watcher
	done    chan struct{}
}

// NewEventWatcher creates a watcher for {dataPath}/events/.
func NewEventWatcher(dataPath string, out Publisher, logger *zap.Logger) *EventWatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EventWatcher{
		dir:    Dir(dataPath),
		out:    out,
		logger: logger,
		done:   make(chan struct{}),
	}
}

// Start drains any existing event files, then watches for new ones.
// Call Stop to clean up.
func (ew *EventWatcher) Start() error {
	if err := os.MkdirAll(ew.dir, 0o700); err != nil {
		return err
	}

	ew.drainExisting()

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := w.Add(ew.dir); err != nil {
		_ = w.Close()
		return err
	}
	ew.watcher = w

	go ew.loop()
	ew.logger.Info("Watching for upload events", zap.String("dir", ew.dir))
	return nil
}

// Stop shuts down the watcher.
func (ew *EventWatcher) Stop() {
	if ew.watcher == nil {
		return
	}
	_ = ew.watcher.Close()
	<-ew.done
}

func (ew *EventWatcher) loop() {
	defer close(ew.done)
	for {
		select {
		case evt, ok := <-ew.watcher.Events:
			if !ok {
				return
			}
			// Writers rename into place, so a finished file shows up as Create.
			if evt.Op&(fsnotify.Create|fsnotify.Rename) != 0 && strings.HasSuffix(evt.Name, eventExt) {
				ew.processFile(evt.Name)
			}
		case err, ok := <-ew.watcher.Errors:
			if !ok {
				return
			}
			ew.logger.Warn("Event watcher error", zap.Error(err))
		}
	}
}

func (ew *EventWatcher) drainExisting() {
	entries, err := os.ReadDir(ew.dir)
	if err != nil {
		return
	}
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), eventExt) {
			ew.processFile(filepath.Join(ew.dir, entry.Name()))
		}
	}
}

func (ew *EventWatcher) processFile(path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		return // consumed by another watcher
	}
	_ = os.Remove(path)

	var event Event
	if err := json.Unmarshal(data, &event); err != nil {
		ew.logger.Warn("Invalid event file", zap.String("file", filepath.Base(path)), zap.Error(err))
		return
	}
	if event.Type == "" || ew.out == nil {
		return
	}
	if err := ew.out.Publish(event); err != nil {
		ew.logger.Warn("Failed to forward event", zap.String("type", event.Type), zap.Error(err))
	}
}
