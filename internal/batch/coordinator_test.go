package batch

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tubeshelf/internal/domain"
	"tubeshelf/internal/repository/sqlite"
	"tubeshelf/internal/service"
)

type fakeFetcher struct {
	fails map[string]bool
}

func (f *fakeFetcher) FetchVideoDetails(_ context.Context, videoID string) (*domain.VideoDetails, error) {
	if f.fails[videoID] {
		return nil, errors.New("video not found")
	}
	return &domain.VideoDetails{Title: "Video " + videoID}, nil
}

// fakeRunner finishes tasks with a per-video outcome, completing by default.
type fakeRunner struct {
	downloads service.DownloadService
	outcomes  map[string]domain.DownloadStatus

	mu   sync.Mutex
	ran  []string
	opts []domain.DownloadOptions
}

func (r *fakeRunner) Run(ctx context.Context, taskID int64) (*domain.Download, error) {
	d, err := r.downloads.GetDownload(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if d.Status.IsTerminal() {
		return d, nil
	}

	r.mu.Lock()
	r.ran = append(r.ran, d.VideoID)
	r.opts = append(r.opts, d.Options)
	r.mu.Unlock()

	switch r.outcomes[d.VideoID] {
	case domain.DownloadStatusPending:
		return d, nil
	case domain.DownloadStatusCancelled:
		_, err = r.downloads.Cancel(ctx, taskID)
	case domain.DownloadStatusFailed:
		if _, err = r.downloads.MarkDownloading(ctx, taskID); err == nil {
			_, err = r.downloads.Fail(ctx, taskID, "Video unavailable")
		}
	default:
		if _, err = r.downloads.MarkDownloading(ctx, taskID); err == nil {
			_, err = r.downloads.Complete(ctx, taskID, "/data/"+d.VideoID+".mp4", 10)
		}
	}
	if err != nil {
		return nil, err
	}
	return r.downloads.GetDownload(ctx, taskID)
}

func (r *fakeRunner) videos() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.ran...)
}

type testEnv struct {
	coordinator *Coordinator
	batches     service.BatchService
	downloads   service.DownloadService
	runner      *fakeRunner
}

func newTestEnv(t *testing.T, failMetadata ...string) *testEnv {
	t.Helper()

	db, err := sqlite.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	videoRepo := sqlite.NewVideoRepository(db)
	downloadRepo := sqlite.NewDownloadRepository(db)
	collectionRepo := sqlite.NewCollectionRepository(db)
	presetRepo := sqlite.NewPresetRepository(db)
	batchRepo := sqlite.NewBatchRepository(db)
	require.NoError(t, sqlite.InitAll(context.Background(), videoRepo, downloadRepo, collectionRepo, presetRepo, batchRepo))

	fetcher := &fakeFetcher{fails: map[string]bool{}}
	for _, id := range failMetadata {
		fetcher.fails[id] = true
	}

	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)

	downloads := service.NewDownloadService(downloadRepo, videoRepo)
	library := service.NewLibraryService(videoRepo, collectionRepo, fetcher)
	batches := service.NewBatchService(presetRepo, batchRepo)
	runner := &fakeRunner{downloads: downloads, outcomes: map[string]domain.DownloadStatus{}}

	c := NewCoordinator(batches, library, downloads, runner, logger)
	c.Start(context.Background())
	t.Cleanup(c.Shutdown)

	return &testEnv{coordinator: c, batches: batches, downloads: downloads, runner: runner}
}

func TestCoordinator_MetadataFailureDoesNotStopBatch(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, "broken")

	created, err := env.batches.CreateBatch(ctx, "mixed", nil, []string{"first", "broken", "third"})
	require.NoError(t, err)

	batch, err := env.coordinator.Run(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.BatchStatusFailed, batch.Status)
	assert.Equal(t, []string{"first", "third"}, env.runner.videos())

	stored, err := env.batches.GetBatch(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.BatchStatusFailed, stored.Status)
	require.NotNil(t, stored.CompletedAt)
	require.Len(t, stored.Items, 3)

	assert.Equal(t, domain.BatchItemStatusCompleted, stored.Items[0].Status)
	assert.NotNil(t, stored.Items[0].DownloadID)

	assert.Equal(t, domain.BatchItemStatusFailed, stored.Items[1].Status)
	assert.Nil(t, stored.Items[1].DownloadID)
	assert.Equal(t, msgMetadata, stored.Items[1].ErrorMessage)
	assert.NotContains(t, stored.Items[1].ErrorMessage, "video not found")

	assert.Equal(t, domain.BatchItemStatusCompleted, stored.Items[2].Status)
}

func TestCoordinator_AllItemsComplete(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	created, err := env.batches.CreateBatch(ctx, "", nil, []string{"first", "second"})
	require.NoError(t, err)

	batch, err := env.coordinator.Run(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.BatchStatusCompleted, batch.Status)
	for _, item := range batch.Items {
		assert.Equal(t, domain.BatchItemStatusCompleted, item.Status)
	}
	for _, opts := range env.runner.opts {
		assert.Equal(t, service.BuiltinPreset.Options(), opts)
	}
}

func TestCoordinator_UsesDefaultPreset(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	preset := &domain.QualityPreset{Name: "hd", Format: "mp4", Quality: "1080p", Subtitles: true}
	require.NoError(t, env.batches.CreatePreset(ctx, preset))
	require.NoError(t, env.batches.SetDefaultPreset(ctx, preset.ID))

	created, err := env.batches.CreateBatch(ctx, "hd", nil, []string{"first"})
	require.NoError(t, err)

	_, err = env.coordinator.Run(ctx, created.ID)
	require.NoError(t, err)
	require.Len(t, env.runner.opts, 1)
	assert.Equal(t, "1080p", env.runner.opts[0].Quality)
	assert.True(t, env.runner.opts[0].Subtitles)
}

func TestCoordinator_CancelledDownloadFailsItem(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.runner.outcomes["first"] = domain.DownloadStatusCancelled
	env.runner.outcomes["second"] = domain.DownloadStatusFailed

	created, err := env.batches.CreateBatch(ctx, "", nil, []string{"first", "second"})
	require.NoError(t, err)

	batch, err := env.coordinator.Run(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.BatchStatusFailed, batch.Status)
	assert.Equal(t, msgCancelled, batch.Items[0].ErrorMessage)
	assert.Equal(t, "Video unavailable", batch.Items[1].ErrorMessage)
}

func TestCoordinator_ItemFailsWhenVideoAlreadyDownloading(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	_, err := env.downloads.CreateDownload(ctx, "busy", domain.DownloadOptions{})
	require.NoError(t, err)

	created, err := env.batches.CreateBatch(ctx, "", nil, []string{"busy", "free"})
	require.NoError(t, err)

	batch, err := env.coordinator.Run(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.BatchStatusFailed, batch.Status)
	assert.Equal(t, domain.BatchItemStatusFailed, batch.Items[0].Status)
	assert.Regexp(t, `^Video is already downloading \(task \d+\)\.$`, batch.Items[0].ErrorMessage)
	assert.Equal(t, domain.BatchItemStatusCompleted, batch.Items[1].Status)
}

func TestCoordinator_ResumedItemAdoptsTaskOutcome(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	created, err := env.batches.CreateBatch(ctx, "", nil, []string{"first", "second"})
	require.NoError(t, err)
	require.NoError(t, env.batches.MarkStarted(ctx, created.ID))

	// The first item was running when the previous process stopped.
	d, err := env.downloads.CreateDownload(ctx, "first", domain.DownloadOptions{})
	require.NoError(t, err)
	_, err = env.downloads.MarkDownloading(ctx, d.ID)
	require.NoError(t, err)
	_, err = env.downloads.FailInterrupted(ctx, "Download interrupted by server restart.")
	require.NoError(t, err)

	item := created.Items[0]
	item.DownloadID = &d.ID
	item.Status = domain.BatchItemStatusDownloading
	require.NoError(t, env.batches.UpdateItem(ctx, &item))

	batch, err := env.coordinator.Run(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.BatchStatusFailed, batch.Status)
	assert.Equal(t, "Download interrupted by server restart.", batch.Items[0].ErrorMessage)
	assert.Equal(t, d.ID, *batch.Items[0].DownloadID)
	assert.Equal(t, domain.BatchItemStatusCompleted, batch.Items[1].Status)
	assert.Equal(t, []string{"second"}, env.runner.videos())
}

func TestCoordinator_StopsWhenDownloadDoesNotFinish(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.runner.outcomes["first"] = domain.DownloadStatusPending

	created, err := env.batches.CreateBatch(ctx, "", nil, []string{"first", "second"})
	require.NoError(t, err)

	_, err = env.coordinator.Run(ctx, created.ID)
	require.NoError(t, err)

	stored, err := env.batches.GetBatch(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.BatchStatusInProgress, stored.Status)
	assert.Equal(t, domain.BatchItemStatusDownloading, stored.Items[0].Status)
	assert.NotNil(t, stored.Items[0].DownloadID)
	assert.Equal(t, domain.BatchItemStatusPending, stored.Items[1].Status)
}

func TestCoordinator_ResumeEnqueuesUnfinishedBatches(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	created, err := env.batches.CreateBatch(ctx, "", nil, []string{"first"})
	require.NoError(t, err)

	require.NoError(t, env.coordinator.Resume(ctx))

	require.Eventually(t, func() bool {
		b, err := env.batches.GetBatch(ctx, created.ID)
		return err == nil && b.Status == domain.BatchStatusCompleted
	}, 5*time.Second, 20*time.Millisecond)
}

func TestCoordinator_RunRejectsRunningBatch(t *testing.T) {
	env := newTestEnv(t)
	require.True(t, env.coordinator.claim(7))
	defer env.coordinator.release(7)

	_, err := env.coordinator.Run(context.Background(), 7)
	assert.Error(t, err)
	assert.NoError(t, env.coordinator.Enqueue(7))
}

func TestCoordinator_EnqueueBeforeStart(t *testing.T) {
	c := NewCoordinator(nil, nil, nil, nil, nil)
	assert.ErrorIs(t, c.Enqueue(1), errNotStarted)
}

func TestItemMessage(t *testing.T) {
	cases := map[string]struct {
		err  error
		want string
	}{
		"metadata": {
			err:  fmt.Errorf("%w: upstream said: cannot playback and download, status: LOGIN_REQUIRED", service.ErrMetadataFetch),
			want: msgMetadata,
		},
		"in progress": {
			err:  fmt.Errorf("create: %w", &service.InProgressError{TaskID: 12}),
			want: "Video is already downloading (task 12).",
		},
		"invalid id": {
			err:  service.ErrInvalidVideoID,
			want: msgInvalidVideo,
		},
		"other": {
			err:  errors.New("database is locked"),
			want: msgCreateFailed,
		},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tc.want, itemMessage(tc.err))
		})
	}
}
