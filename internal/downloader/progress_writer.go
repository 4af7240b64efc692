package downloader

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"

	"tubeshelf/internal/progress"
	"tubeshelf/internal/service"
)

// progressWriter persists progress for one task from a single goroutine.
// Submissions that arrive while a write is in flight are coalesced, keeping
// only the newest, so writes never overtake each other.
type progressWriter struct {
	ctx       context.Context
	downloads service.DownloadService
	id        int64
	logger    *logrus.Entry

	mu      sync.Mutex
	latest  *progress.Progress
	signal  chan struct{}
	stop    chan struct{}
	done    chan struct{}
	stopped sync.Once
}

func newProgressWriter(ctx context.Context, downloads service.DownloadService, id int64, logger *logrus.Entry) *progressWriter {
	w := &progressWriter{
		ctx:       ctx,
		downloads: downloads,
		id:        id,
		logger:    logger,
		signal:    make(chan struct{}, 1),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
	go w.loop()
	return w
}

func (w *progressWriter) submit(p progress.Progress) {
	w.mu.Lock()
	w.latest = &p
	w.mu.Unlock()

	select {
	case w.signal <- struct{}{}:
	default:
	}
}

// close writes any pending update and waits for the goroutine to exit.
func (w *progressWriter) close() {
	w.stopped.Do(func() { close(w.stop) })
	<-w.done
}

func (w *progressWriter) loop() {
	defer close(w.done)
	for {
		select {
		case <-w.signal:
			w.flush()
		case <-w.stop:
			w.flush()
			return
		}
	}
}

func (w *progressWriter) flush() {
	w.mu.Lock()
	p := w.latest
	w.latest = nil
	w.mu.Unlock()
	if p == nil {
		return
	}

	if _, err := w.downloads.UpdateProgress(w.ctx, w.id, p.Percent, p.DownloadedBytes, p.TotalBytes); err != nil {
		w.logger.Warnf("update progress: %v", err)
	}
}
