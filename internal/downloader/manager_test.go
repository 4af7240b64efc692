package downloader

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tubeshelf/internal/domain"
	"tubeshelf/internal/events"
	"tubeshelf/internal/repository/sqlite"
	"tubeshelf/internal/service"
	"tubeshelf/internal/storage"
)

const parseOutput = `
out=""
while [ $# -gt 0 ]; do
	case "$1" in
		-o) out="$2"; shift 2 ;;
		*) shift ;;
	esac
done
`

const successScript = parseOutput + `
printf '[youtube] abc123: Downloading webpage\n'
printf '[download]  10.0%% of ~50.00MiB at 2.50MiB/s ETA 00:30\n'
printf '[download]  42.0%% of ~50.00MiB at 2.50MiB/s ETA 00:20\n'
printf '[download] 100.0%% of ~50.00MiB at 2.50MiB/s ETA 00:00\n'
printf 'video-bytes' > "$out"
`

const sleepScript = parseOutput + `
printf 'partial' > "$out.part"
printf '[download]   5.0%% of ~50.00MiB at 1.00MiB/s ETA 00:45\n'
exec sleep 30
`

type fakeFetcher struct {
	mu    sync.Mutex
	fails map[string]bool
}

func (f *fakeFetcher) FetchVideoDetails(_ context.Context, videoID string) (*domain.VideoDetails, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fails[videoID] {
		return nil, errors.New("video not found")
	}
	return &domain.VideoDetails{Title: "Video " + videoID, ChannelTitle: "Channel"}, nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *recordingPublisher) Publish(e events.Event) {
	p.mu.Lock()
	p.events = append(p.events, e)
	p.mu.Unlock()
}

func (p *recordingPublisher) statuses(taskID int64) []domain.DownloadStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []domain.DownloadStatus
	for _, e := range p.events {
		if e.TaskID == taskID && e.Type == events.TypeStatus {
			out = append(out, e.Status)
		}
	}
	return out
}

func (p *recordingPublisher) progress(taskID int64) []float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []float64
	for _, e := range p.events {
		if e.TaskID == taskID && e.Type == events.TypeProgress {
			out = append(out, e.Percent)
		}
	}
	return out
}

type testEnv struct {
	manager   Manager
	downloads service.DownloadService
	library   service.LibraryService
	registry  Registry
	publisher *recordingPublisher
	dataDir   string
}

func writeScript(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755))
	return path
}

func newTestEnv(t *testing.T, cfg Config) *testEnv {
	t.Helper()
	return newTestEnvWithStorage(t, cfg, nil)
}

func newTestEnvWithStorage(t *testing.T, cfg Config, store storage.Service) *testEnv {
	t.Helper()

	db, err := sqlite.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	downloadRepo := sqlite.NewDownloadRepository(db)
	videoRepo := sqlite.NewVideoRepository(db)
	collectionRepo := sqlite.NewCollectionRepository(db)
	require.NoError(t, sqlite.InitAll(context.Background(), videoRepo, downloadRepo, collectionRepo))

	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)

	if cfg.DataDir == "" {
		cfg.DataDir = t.TempDir()
	}
	cfg.Logger = logger

	env := &testEnv{
		downloads: service.NewDownloadService(downloadRepo, videoRepo),
		library:   service.NewLibraryService(videoRepo, collectionRepo, &fakeFetcher{}),
		registry:  NewRegistry(),
		publisher: &recordingPublisher{},
		dataDir:   cfg.DataDir,
	}
	env.manager = NewManager(cfg, env.downloads, env.library, env.registry, env.publisher, store)
	require.NoError(t, env.manager.Start(context.Background()))
	t.Cleanup(env.manager.Shutdown)
	return env
}

func (e *testEnv) waitForStatus(t *testing.T, id int64, status domain.DownloadStatus) *domain.Download {
	t.Helper()
	var last *domain.Download
	require.Eventually(t, func() bool {
		d, err := e.downloads.GetDownload(context.Background(), id)
		if err != nil {
			return false
		}
		last = d
		return d.Status == status
	}, 10*time.Second, 20*time.Millisecond)
	return last
}

func (e *testEnv) waitForRegistered(t *testing.T, id int64) {
	t.Helper()
	require.Eventually(t, func() bool {
		_, ok := e.registry.Get(id)
		return ok
	}, 10*time.Second, 10*time.Millisecond)
}

func TestManager_RunCompletesDownload(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, Config{ToolPath: writeScript(t, "yt-dlp", successScript)})

	_, err := env.library.EnsureVideo(ctx, "abc123")
	require.NoError(t, err)
	created, err := env.downloads.CreateDownload(ctx, "abc123", domain.DownloadOptions{Format: "mp4", Quality: "720p"})
	require.NoError(t, err)

	d, err := env.manager.Run(ctx, created.ID)
	require.NoError(t, err)

	assert.Equal(t, domain.DownloadStatusCompleted, d.Status)
	assert.Equal(t, 100.0, d.Progress)
	assert.Equal(t, filepath.Join(env.dataDir, "abc123-"+strconv.FormatInt(created.ID, 10)+".mp4"), d.FilePath)
	assert.Empty(t, d.ErrorMessage)
	require.NotNil(t, d.CompletedAt)

	content, err := os.ReadFile(d.FilePath)
	require.NoError(t, err)
	assert.Equal(t, "video-bytes", string(content))

	assert.Equal(t, []float64{10, 42, 100}, env.publisher.progress(created.ID))
	assert.Equal(t, []domain.DownloadStatus{domain.DownloadStatusDownloading, domain.DownloadStatusCompleted}, env.publisher.statuses(created.ID))

	videos, err := env.library.ListVideos(ctx)
	require.NoError(t, err)
	require.Len(t, videos, 1)
	assert.True(t, videos[0].Downloaded)
	assert.Equal(t, d.FilePath, videos[0].FilePath)
	assert.Equal(t, 0, env.registry.Len())
}

func TestManager_StartDownloadRunsInBackground(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, Config{ToolPath: writeScript(t, "yt-dlp", successScript)})

	d, err := env.manager.StartDownload(ctx, "abc123", domain.DownloadOptions{AudioOnly: true})
	require.NoError(t, err)
	assert.Equal(t, domain.DownloadStatusPending, d.Status)

	done := env.waitForStatus(t, d.ID, domain.DownloadStatusCompleted)
	assert.Equal(t, ".m4a", filepath.Ext(done.FilePath))
}

func TestManager_StartDownloadRejectsInvalidVideoID(t *testing.T) {
	env := newTestEnv(t, Config{ToolPath: writeScript(t, "yt-dlp", successScript)})

	_, err := env.manager.StartDownload(context.Background(), "../etc", domain.DownloadOptions{})
	assert.ErrorIs(t, err, service.ErrInvalidArgument)
}

func TestManager_StartDownloadRejectsSecondActiveDownload(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, Config{ToolPath: writeScript(t, "yt-dlp", sleepScript)})

	first, err := env.manager.StartDownload(ctx, "abc123", domain.DownloadOptions{})
	require.NoError(t, err)

	_, err = env.manager.StartDownload(ctx, "abc123", domain.DownloadOptions{})
	require.ErrorIs(t, err, service.ErrDownloadInProgress)
	var inProgress *service.InProgressError
	require.ErrorAs(t, err, &inProgress)
	assert.Equal(t, first.ID, inProgress.TaskID)

	_, err = env.manager.Cancel(ctx, first.ID)
	require.NoError(t, err)
}

func TestManager_OutputMissingFails(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, Config{ToolPath: writeScript(t, "yt-dlp", parseOutput+"exit 0\n")})

	created, err := env.downloads.CreateDownload(ctx, "abc123", domain.DownloadOptions{})
	require.NoError(t, err)

	d, err := env.manager.Run(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.DownloadStatusFailed, d.Status)
	assert.Equal(t, msgOutput, d.ErrorMessage)
	assert.Equal(t, []domain.DownloadStatus{domain.DownloadStatusDownloading, domain.DownloadStatusFailed}, env.publisher.statuses(created.ID))
}

func TestManager_ForbiddenIsClassified(t *testing.T) {
	ctx := context.Background()
	script := parseOutput + `
printf 'partial' > "$out.part"
echo 'WARNING: falling back' >&2
echo 'ERROR: unable to download video data: HTTP Error 403: Forbidden' >&2
exit 1
`
	env := newTestEnv(t, Config{ToolPath: writeScript(t, "yt-dlp", script)})

	created, err := env.downloads.CreateDownload(ctx, "abc123", domain.DownloadOptions{})
	require.NoError(t, err)

	d, err := env.manager.Run(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.DownloadStatusFailed, d.Status)
	assert.Equal(t, msgForbidden, d.ErrorMessage)

	leftovers, err := filepath.Glob(filepath.Join(env.dataDir, "abc123-*"))
	require.NoError(t, err)
	assert.Empty(t, leftovers)
}

func TestManager_ToolErrorIsTruncated(t *testing.T) {
	ctx := context.Background()
	script := "echo 'ERROR: something went badly wrong with this download' >&2\nexit 2\n"
	env := newTestEnv(t, Config{ToolPath: writeScript(t, "yt-dlp", script), ErrorMaxLen: 20})

	created, err := env.downloads.CreateDownload(ctx, "abc123", domain.DownloadOptions{})
	require.NoError(t, err)

	d, err := env.manager.Run(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.DownloadStatusFailed, d.Status)
	assert.Equal(t, "something went ba...", d.ErrorMessage)
}

func TestManager_MissingToolFails(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, Config{ToolPath: filepath.Join(t.TempDir(), "no-such-tool")})

	created, err := env.downloads.CreateDownload(ctx, "abc123", domain.DownloadOptions{})
	require.NoError(t, err)

	d, err := env.manager.Run(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.DownloadStatusFailed, d.Status)
	assert.Equal(t, msgToolMissing, d.ErrorMessage)
}

func TestManager_CancelRunningDownload(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, Config{ToolPath: writeScript(t, "yt-dlp", sleepScript)})

	created, err := env.manager.StartDownload(ctx, "abc123", domain.DownloadOptions{})
	require.NoError(t, err)
	env.waitForRegistered(t, created.ID)

	start := time.Now()
	d, err := env.manager.Cancel(ctx, created.ID)
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 5*time.Second)
	assert.Equal(t, domain.DownloadStatusCancelled, d.Status)
	_, ok := env.registry.Get(created.ID)
	assert.False(t, ok)

	again, err := env.manager.Cancel(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.DownloadStatusCancelled, again.Status)

	require.Eventually(t, func() bool {
		leftovers, _ := filepath.Glob(filepath.Join(env.dataDir, "abc123-*"))
		return len(leftovers) == 0
	}, 10*time.Second, 20*time.Millisecond)

	env.manager.Shutdown()
	final, err := env.downloads.GetDownload(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.DownloadStatusCancelled, final.Status)
	assert.Equal(t, []domain.DownloadStatus{domain.DownloadStatusDownloading, domain.DownloadStatusCancelled}, env.publisher.statuses(created.ID))
}

func TestManager_CancelQueuedDownload(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, Config{ToolPath: writeScript(t, "yt-dlp", sleepScript), MaxConcurrent: 1})

	running, err := env.manager.StartDownload(ctx, "first", domain.DownloadOptions{})
	require.NoError(t, err)
	env.waitForRegistered(t, running.ID)

	queued, err := env.manager.StartDownload(ctx, "second", domain.DownloadOptions{})
	require.NoError(t, err)

	d, err := env.manager.Cancel(ctx, queued.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.DownloadStatusCancelled, d.Status)

	_, err = env.manager.Cancel(ctx, running.ID)
	require.NoError(t, err)

	env.manager.Shutdown()
	final, err := env.downloads.GetDownload(ctx, queued.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.DownloadStatusCancelled, final.Status)
	assert.NotContains(t, env.publisher.statuses(queued.ID), domain.DownloadStatusDownloading)
}

func TestManager_CancelUnknownTask(t *testing.T) {
	env := newTestEnv(t, Config{ToolPath: writeScript(t, "yt-dlp", successScript)})

	_, err := env.manager.Cancel(context.Background(), 999)
	assert.Error(t, err)
}

func TestManager_ShutdownFailsRunningDownload(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, Config{ToolPath: writeScript(t, "yt-dlp", sleepScript)})

	created, err := env.manager.StartDownload(ctx, "abc123", domain.DownloadOptions{})
	require.NoError(t, err)
	env.waitForRegistered(t, created.ID)

	env.manager.Shutdown()

	d, err := env.downloads.GetDownload(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.DownloadStatusFailed, d.Status)
	assert.Equal(t, msgShutdown, d.ErrorMessage)
}

func TestManager_PostProcessingReplacesOutput(t *testing.T) {
	ctx := context.Background()
	ffmpeg := `
in="$2"
for a; do last="$a"; done
printf 'transcoded' > "$last"
`
	env := newTestEnv(t, Config{
		ToolPath:   writeScript(t, "yt-dlp", successScript),
		FFmpegPath: writeScript(t, "ffmpeg", ffmpeg),
	})

	created, err := env.downloads.CreateDownload(ctx, "abc123", domain.DownloadOptions{TranscodeArgs: []string{"-c:v", "libx264"}})
	require.NoError(t, err)

	d, err := env.manager.Run(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.DownloadStatusCompleted, d.Status)

	content, err := os.ReadFile(d.FilePath)
	require.NoError(t, err)
	assert.Equal(t, "transcoded", string(content))

	entries, err := os.ReadDir(env.dataDir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestManager_PostProcessingFailureKeepsOriginal(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, Config{
		ToolPath:   writeScript(t, "yt-dlp", successScript),
		FFmpegPath: writeScript(t, "ffmpeg", "echo 'Unknown encoder' >&2\nexit 1\n"),
	})

	created, err := env.downloads.CreateDownload(ctx, "abc123", domain.DownloadOptions{TranscodeArgs: []string{"-c:v", "nope"}})
	require.NoError(t, err)

	d, err := env.manager.Run(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.DownloadStatusCompleted, d.Status)

	content, err := os.ReadFile(d.FilePath)
	require.NoError(t, err)
	assert.Equal(t, "video-bytes", string(content))
}

func TestManager_ResumeFailsOrphansAndRequeuesPending(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, Config{ToolPath: writeScript(t, "yt-dlp", successScript)})

	orphan, err := env.downloads.CreateDownload(ctx, "orphan", domain.DownloadOptions{})
	require.NoError(t, err)
	ok, err := env.downloads.MarkDownloading(ctx, orphan.ID)
	require.NoError(t, err)
	require.True(t, ok)

	pending, err := env.downloads.CreateDownload(ctx, "pending", domain.DownloadOptions{})
	require.NoError(t, err)

	require.NoError(t, env.manager.Resume(ctx))

	failed, err := env.downloads.GetDownload(ctx, orphan.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.DownloadStatusFailed, failed.Status)
	assert.Equal(t, msgInterrupted, failed.ErrorMessage)

	env.waitForStatus(t, pending.ID, domain.DownloadStatusCompleted)
}

func TestManager_RunTerminalTaskReturnsImmediately(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, Config{ToolPath: writeScript(t, "yt-dlp", successScript)})

	created, err := env.downloads.CreateDownload(ctx, "abc123", domain.DownloadOptions{})
	require.NoError(t, err)
	_, err = env.downloads.Cancel(ctx, created.ID)
	require.NoError(t, err)

	d, err := env.manager.Run(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.DownloadStatusCancelled, d.Status)
	assert.Empty(t, env.publisher.statuses(created.ID))
}

func TestManager_NotStarted(t *testing.T) {
	m := NewManager(Config{}, nil, nil, nil, nil, nil)

	_, err := m.StartDownload(context.Background(), "abc123", domain.DownloadOptions{})
	assert.ErrorIs(t, err, errNotStarted)
	assert.ErrorIs(t, m.Resume(context.Background()), errNotStarted)
}

// cancellingStorage records the task as cancelled while its upload runs.
type cancellingStorage struct {
	storage.Service
	downloads service.DownloadService
	taskID    int64
}

func (s *cancellingStorage) UploadFile(ctx context.Context, _ string, opts storage.UploadOptions) (string, error) {
	if _, err := s.downloads.Cancel(ctx, s.taskID); err != nil {
		return "", err
	}
	return storage.Location(opts.Bucket, opts.Key), nil
}

func TestManager_CancelDuringArchiveRemovesFile(t *testing.T) {
	ctx := context.Background()
	store := &cancellingStorage{}
	env := newTestEnvWithStorage(t, Config{
		ToolPath: writeScript(t, "yt-dlp", successScript),
		Archive:  ArchiveConfig{Bucket: "archive", KeyPrefix: "videos"},
	}, store)
	store.downloads = env.downloads

	_, err := env.library.EnsureVideo(ctx, "abc123")
	require.NoError(t, err)
	created, err := env.downloads.CreateDownload(ctx, "abc123", domain.DownloadOptions{Format: "mp4"})
	require.NoError(t, err)
	store.taskID = created.ID

	d, err := env.manager.Run(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.DownloadStatusCancelled, d.Status)
	assert.Empty(t, d.FilePath)

	matches, err := filepath.Glob(filepath.Join(env.dataDir, "abc123-*"))
	require.NoError(t, err)
	assert.Empty(t, matches)
	assert.NotContains(t, env.publisher.statuses(created.ID), domain.DownloadStatusCompleted)
	assert.Equal(t, 0, env.registry.Len())
}
