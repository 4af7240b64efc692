package downloader

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"

	"tubeshelf/internal/domain"
	"tubeshelf/internal/events"
	"tubeshelf/internal/service"
	"tubeshelf/internal/storage"
)

var errNotStarted = errors.New("download manager not started")

// Manager schedules downloads onto a bounded pool and supervises them.
type Manager interface {
	Start(ctx context.Context) error
	Shutdown()
	// StartDownload validates and persists a new task, then runs it in the
	// background. It does not wait for the download.
	StartDownload(ctx context.Context, videoID string, opts domain.DownloadOptions) (*domain.Download, error)
	Enqueue(ctx context.Context, taskID int64) error
	// Run drives an existing task to a terminal state and returns it. After
	// Shutdown the task is returned as is.
	Run(ctx context.Context, taskID int64) (*domain.Download, error)
	Resume(ctx context.Context) error
	// Cancel stops a task without waiting for its process to exit.
	Cancel(ctx context.Context, taskID int64) (*domain.Download, error)
	// ActiveDownloads counts tasks with a running download process.
	ActiveDownloads() int
}

// Publisher receives download events.
type Publisher interface {
	Publish(events.Event)
}

type ArchiveConfig struct {
	Bucket    string
	KeyPrefix string
}

type Config struct {
	DataDir       string
	ToolPath      string
	FFmpegPath    string
	MaxConcurrent int
	ErrorMaxLen   int
	Archive       ArchiveConfig
	Logger        *logrus.Logger
}

type manager struct {
	cfg       Config
	downloads service.DownloadService
	library   service.LibraryService
	registry  Registry
	publisher Publisher
	storage   storage.Service

	sem    chan struct{}
	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
	mu     sync.Mutex
	active map[int64]*taskHandle
}

// taskHandle tracks a task from the moment it is scheduled, including the
// time it waits for a pool slot.
type taskHandle struct {
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

func NewManager(cfg Config, downloads service.DownloadService, library service.LibraryService, registry Registry, publisher Publisher, store storage.Service) Manager {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 3
	}
	if cfg.ToolPath == "" {
		cfg.ToolPath = "yt-dlp"
	}
	if cfg.FFmpegPath == "" {
		cfg.FFmpegPath = "ffmpeg"
	}
	if cfg.ErrorMaxLen <= 0 {
		cfg.ErrorMaxLen = 300
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	if registry == nil {
		registry = NewRegistry()
	}
	if publisher == nil {
		publisher = events.NewBroker(cfg.Logger)
	}
	return &manager{
		cfg:       cfg,
		downloads: downloads,
		library:   library,
		registry:  registry,
		publisher: publisher,
		storage:   store,
		sem:       make(chan struct{}, cfg.MaxConcurrent),
		active:    make(map[int64]*taskHandle),
	}
}

func (m *manager) Start(ctx context.Context) error {
	dataDir, err := filepath.Abs(m.cfg.DataDir)
	if err != nil {
		return fmt.Errorf("resolve data dir: %w", err)
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	m.cfg.DataDir = dataDir

	m.ctx, m.cancel = context.WithCancel(ctx)
	m.cfg.Logger.Infof("download manager started, data dir: %s, tool: %s, max concurrent: %d", dataDir, m.cfg.ToolPath, m.cfg.MaxConcurrent)
	return nil
}

func (m *manager) Shutdown() {
	if m.cancel != nil {
		m.cancel()
	}
	m.wg.Wait()
	m.cfg.Logger.Info("download manager stopped")
}

func (m *manager) StartDownload(ctx context.Context, videoID string, opts domain.DownloadOptions) (*domain.Download, error) {
	if m.ctx == nil {
		return nil, errNotStarted
	}
	if _, err := m.library.EnsureVideo(ctx, videoID); err != nil {
		return nil, err
	}
	download, err := m.downloads.CreateDownload(ctx, videoID, opts)
	if err != nil {
		return nil, err
	}
	m.cfg.Logger.WithField("task_id", download.ID).Infof("download queued for video %s", videoID)
	m.spawnTask(download.ID)
	return download, nil
}

func (m *manager) Enqueue(ctx context.Context, taskID int64) error {
	if m.ctx == nil {
		return errNotStarted
	}
	if _, err := m.downloads.GetDownload(ctx, taskID); err != nil {
		return err
	}
	m.spawnTask(taskID)
	return nil
}

func (m *manager) Run(ctx context.Context, taskID int64) (*domain.Download, error) {
	if m.ctx == nil {
		return nil, errNotStarted
	}
	download, err := m.downloads.GetDownload(ctx, taskID)
	if err != nil {
		return nil, err
	}

	if !download.Status.IsTerminal() && !m.shuttingDown() {
		handle, owned := m.claimTask(taskID)
		if owned {
			m.wg.Add(1)
			stop := context.AfterFunc(ctx, handle.cancel)
			m.runTask(taskID, handle)
			stop()
			m.wg.Done()
		} else {
			select {
			case <-handle.done:
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}

	return m.downloads.GetDownload(context.WithoutCancel(ctx), taskID)
}

// Resume fails tasks orphaned by a previous process and requeues pending ones.
func (m *manager) Resume(ctx context.Context) error {
	if m.ctx == nil {
		return errNotStarted
	}
	n, err := m.downloads.FailInterrupted(ctx, msgInterrupted)
	if err != nil {
		return err
	}
	if n > 0 {
		m.cfg.Logger.Warnf("marked %d interrupted downloads as failed", n)
	}

	pending, err := m.downloads.ListByStatuses(ctx, domain.DownloadStatusPending)
	if err != nil {
		return err
	}
	for i := range pending {
		m.spawnTask(pending[i].ID)
	}
	if len(pending) > 0 {
		m.cfg.Logger.Infof("requeued %d pending downloads", len(pending))
	}
	return nil
}

func (m *manager) Cancel(ctx context.Context, taskID int64) (*domain.Download, error) {
	download, err := m.downloads.GetDownload(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if download.Status.IsTerminal() {
		return download, nil
	}

	logger := m.cfg.Logger.WithField("task_id", taskID)
	persisted, err := m.downloads.Cancel(ctx, taskID)
	if err != nil {
		return nil, err
	}

	if h, ok := m.registry.Get(taskID); ok {
		h.Abort()
	}
	m.registry.Delete(taskID)
	if handle, ok := m.getTaskHandle(taskID); ok {
		handle.cancel()
	}

	if persisted {
		logger.Info("download cancelled")
		m.publisher.Publish(events.StatusEvent(taskID, domain.DownloadStatusCancelled, ""))
	}
	return m.downloads.GetDownload(ctx, taskID)
}

func (m *manager) spawnTask(taskID int64) {
	if m.shuttingDown() {
		return
	}
	handle, owned := m.claimTask(taskID)
	if !owned {
		return
	}

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.runTask(taskID, handle)
	}()
}

// claimTask returns the task's handle and whether the caller owns it. Only
// the owner may run the task.
func (m *manager) claimTask(id int64) (*taskHandle, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if handle, ok := m.active[id]; ok {
		return handle, false
	}
	ctx, cancel := context.WithCancel(m.ctx)
	handle := &taskHandle{
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	m.active[id] = handle
	return handle, true
}

func (m *manager) unregisterTask(id int64, handle *taskHandle) {
	m.mu.Lock()
	if m.active[id] == handle {
		delete(m.active, id)
	}
	m.mu.Unlock()
	handle.cancel()
	close(handle.done)
}

func (m *manager) getTaskHandle(id int64) (*taskHandle, bool) {
	m.mu.Lock()
	handle, ok := m.active[id]
	m.mu.Unlock()
	return handle, ok
}

func (m *manager) runTask(taskID int64, handle *taskHandle) {
	defer m.unregisterTask(taskID, handle)

	select {
	case <-handle.ctx.Done():
		return
	case m.sem <- struct{}{}:
		defer func() { <-m.sem }()
	}

	download, err := m.downloads.GetDownload(handle.ctx, taskID)
	if err != nil {
		m.cfg.Logger.WithField("task_id", taskID).Errorf("load task: %v", err)
		return
	}
	if download.Status != domain.DownloadStatusPending {
		m.cfg.Logger.WithField("task_id", taskID).Debugf("task is %s, skipping", download.Status)
		return
	}

	newController(m, *download, handle.ctx).run()
}

func (m *manager) shuttingDown() bool {
	return m.ctx.Err() != nil
}

func newUploadProgressLogger(logger *logrus.Entry) func(done, total int64) {
	var lastLog time.Time
	return func(done, total int64) {
		now := time.Now()
		if now.Sub(lastLog) < 2*time.Second && done != total {
			return
		}
		lastLog = now
		if total == 0 {
			logger.Infof("archive progress: %s uploaded", humanize.IBytes(uint64(done)))
			return
		}
		percent := float64(done) / float64(total) * 100
		logger.Infof("archive progress: %.1f%% (%s/%s)", percent, humanize.IBytes(uint64(done)), humanize.IBytes(uint64(total)))
	}
}

var _ Manager = (*manager)(nil)

func (m *manager) ActiveDownloads() int {
	return m.registry.Len()
}
