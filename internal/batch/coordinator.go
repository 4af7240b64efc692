// Package batch drives batch downloads through the download manager one
// item at a time.
package batch

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"tubeshelf/internal/domain"
	"tubeshelf/internal/service"
)

const (
	msgCancelled    = "Download cancelled."
	msgMetadata     = "Could not fetch video details: the video may be private or removed."
	msgInvalidVideo = "Invalid video id."
	msgCreateFailed = "Could not create the download task."
	msgRunFailed    = "Download could not be started."
)

var errNotStarted = errors.New("batch coordinator not started")

// Runner drives an existing download task to a terminal state.
type Runner interface {
	Run(ctx context.Context, taskID int64) (*domain.Download, error)
}

// Coordinator processes batches sequentially, continuing past failed items.
type Coordinator struct {
	batches   service.BatchService
	library   service.LibraryService
	downloads service.DownloadService
	runner    Runner
	logger    *logrus.Logger

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	mu      sync.Mutex
	running map[int64]struct{}
}

func NewCoordinator(batches service.BatchService, library service.LibraryService, downloads service.DownloadService, runner Runner, logger *logrus.Logger) *Coordinator {
	if logger == nil {
		logger = logrus.New()
	}
	return &Coordinator{
		batches:   batches,
		library:   library,
		downloads: downloads,
		runner:    runner,
		logger:    logger,
		running:   make(map[int64]struct{}),
	}
}

func (c *Coordinator) Start(ctx context.Context) {
	c.ctx, c.cancel = context.WithCancel(ctx)
}

// Shutdown stops picking up new items and waits for running batches. A
// download already running is left to the download manager.
func (c *Coordinator) Shutdown() {
	if c.cancel != nil {
		c.cancel()
	}
	c.wg.Wait()
	c.logger.Info("batch coordinator stopped")
}

// Enqueue runs the batch in the background. A batch that is already running
// is not started twice.
func (c *Coordinator) Enqueue(batchID int64) error {
	if c.ctx == nil {
		return errNotStarted
	}
	if !c.claim(batchID) {
		return nil
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer c.release(batchID)
		if _, err := c.run(c.ctx, batchID); err != nil {
			c.logger.WithField("batch_id", batchID).Errorf("batch run failed: %v", err)
		}
	}()
	return nil
}

// Resume re-enqueues batches a previous process left unfinished.
func (c *Coordinator) Resume(ctx context.Context) error {
	batches, err := c.batches.ListUnfinished(ctx)
	if err != nil {
		return err
	}
	for i := range batches {
		if err := c.Enqueue(batches[i].ID); err != nil {
			return err
		}
	}
	if len(batches) > 0 {
		c.logger.Infof("resumed %d unfinished batches", len(batches))
	}
	return nil
}

// Run processes the batch synchronously and returns its final state.
func (c *Coordinator) Run(ctx context.Context, batchID int64) (*domain.BatchDownload, error) {
	if !c.claim(batchID) {
		return nil, fmt.Errorf("batch %d is already running", batchID)
	}
	defer c.release(batchID)
	return c.run(ctx, batchID)
}

func (c *Coordinator) claim(batchID int64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.running[batchID]; ok {
		return false
	}
	c.running[batchID] = struct{}{}
	return true
}

func (c *Coordinator) release(batchID int64) {
	c.mu.Lock()
	delete(c.running, batchID)
	c.mu.Unlock()
}

func (c *Coordinator) run(ctx context.Context, batchID int64) (*domain.BatchDownload, error) {
	logger := c.logger.WithField("batch_id", batchID)

	batch, err := c.batches.GetBatch(ctx, batchID)
	if err != nil {
		return nil, err
	}
	preset, err := c.batches.ResolvePreset(ctx, batch.PresetID)
	if err != nil {
		return nil, fmt.Errorf("resolve preset: %w", err)
	}
	if batch.Status == domain.BatchStatusPending {
		if err := c.batches.MarkStarted(ctx, batchID); err != nil {
			return nil, err
		}
	}
	logger.Infof("batch started: %d items, preset %s", len(batch.Items), preset.Name)

	for i := range batch.Items {
		item := &batch.Items[i]
		if item.Status.IsTerminal() {
			continue
		}
		if ctx.Err() != nil {
			logger.Info("batch interrupted, remaining items left for resume")
			return batch, nil
		}
		if !c.runItem(ctx, logger, item, preset.Options()) {
			logger.Info("download manager stopped, remaining items left for resume")
			return batch, nil
		}
	}

	status, err := c.batches.Finalize(context.WithoutCancel(ctx), batchID, batch.Items)
	if err != nil {
		return nil, fmt.Errorf("finalize batch: %w", err)
	}
	batch.Status = status
	logger.Infof("batch finished: %s", status)
	return batch, nil
}

// runItem takes one item to a terminal state. It reports false when the item
// could not finish because the download manager is stopping.
func (c *Coordinator) runItem(ctx context.Context, logger *logrus.Entry, item *domain.BatchDownloadItem, opts domain.DownloadOptions) bool {
	itemLogger := logger.WithField("video_id", item.VideoID)

	if item.DownloadID == nil {
		if _, err := c.library.EnsureVideo(ctx, item.VideoID); err != nil {
			itemLogger.Warnf("metadata lookup failed: %v", err)
			c.finishItem(ctx, itemLogger, item, domain.BatchItemStatusFailed, itemMessage(err))
			return true
		}
		download, err := c.downloads.CreateDownload(ctx, item.VideoID, opts)
		if err != nil {
			itemLogger.Warnf("create download: %v", err)
			c.finishItem(ctx, itemLogger, item, domain.BatchItemStatusFailed, itemMessage(err))
			return true
		}
		item.DownloadID = &download.ID
		item.Status = domain.BatchItemStatusDownloading
		if err := c.batches.UpdateItem(ctx, item); err != nil {
			itemLogger.Errorf("update item: %v", err)
		}
	}

	// A batch shutdown must not cancel the download itself.
	download, err := c.runner.Run(context.WithoutCancel(ctx), *item.DownloadID)
	if err != nil {
		itemLogger.Errorf("run download %d: %v", *item.DownloadID, err)
		c.finishItem(ctx, itemLogger, item, domain.BatchItemStatusFailed, msgRunFailed)
		return true
	}

	switch download.Status {
	case domain.DownloadStatusCompleted:
		c.finishItem(ctx, itemLogger, item, domain.BatchItemStatusCompleted, "")
	case domain.DownloadStatusFailed:
		c.finishItem(ctx, itemLogger, item, domain.BatchItemStatusFailed, download.ErrorMessage)
	case domain.DownloadStatusCancelled:
		c.finishItem(ctx, itemLogger, item, domain.BatchItemStatusFailed, msgCancelled)
	default:
		return false
	}
	return true
}

func (c *Coordinator) finishItem(ctx context.Context, logger *logrus.Entry, item *domain.BatchDownloadItem, status domain.BatchItemStatus, msg string) {
	item.Status = status
	item.ErrorMessage = msg
	if err := c.batches.UpdateItem(context.WithoutCancel(ctx), item); err != nil {
		logger.Errorf("update item: %v", err)
		return
	}
	logger.Infof("item %d %s", item.Position, status)
}

// itemMessage maps a failure to start an item onto the text stored on it.
// The raw error is only logged.
func itemMessage(err error) string {
	var inProgress *service.InProgressError
	switch {
	case errors.As(err, &inProgress):
		return fmt.Sprintf("Video is already downloading (task %d).", inProgress.TaskID)
	case errors.Is(err, service.ErrMetadataFetch):
		return msgMetadata
	case errors.Is(err, service.ErrInvalidVideoID):
		return msgInvalidVideo
	default:
		return msgCreateFailed
	}
}
