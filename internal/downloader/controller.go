package downloader

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"tubeshelf/internal/domain"
	"tubeshelf/internal/events"
	"tubeshelf/internal/process"
	"tubeshelf/internal/progress"
	"tubeshelf/internal/storage"
)

const (
	stderrTailLines = 20
	msgShutdown     = "Download interrupted by server shutdown."
)

// controller owns the lifecycle of one download. It is the registry handle
// for its task while the task is downloading.
type controller struct {
	m        *manager
	download domain.Download
	logger   *logrus.Entry

	ctx    context.Context
	cancel context.CancelFunc
	// persistCtx outlives an abort so terminal state is still written.
	persistCtx context.Context

	output string
}

func newController(m *manager, download domain.Download, parent context.Context) *controller {
	ctx, cancel := context.WithCancel(parent)
	return &controller{
		m:          m,
		download:   download,
		logger:     m.cfg.Logger.WithField("task_id", download.ID),
		ctx:        ctx,
		cancel:     cancel,
		persistCtx: context.WithoutCancel(parent),
		output:     OutputPath(m.cfg.DataDir, download.VideoID, download.ID, download.Options),
	}
}

// Abort kills the running process, if any, without waiting.
func (c *controller) Abort() {
	c.cancel()
}

func (c *controller) run() {
	defer c.cancel()
	id := c.download.ID

	ok, err := c.m.downloads.MarkDownloading(c.persistCtx, id)
	if err != nil {
		c.logger.Errorf("mark downloading: %v", err)
		return
	}
	if !ok {
		c.logger.Info("task is no longer pending, skipping")
		return
	}
	c.m.registry.Set(id, c)
	defer c.m.registry.Delete(id)
	c.m.publisher.Publish(events.StatusEvent(id, domain.DownloadStatusDownloading, ""))

	c.logger.Infof("download started for video %s", c.download.VideoID)

	if err := c.fetch(); err != nil {
		if errors.Is(err, process.ErrAborted) || c.ctx.Err() != nil {
			c.finishAborted()
			return
		}
		c.fail(err)
		return
	}

	if len(c.download.Options.TranscodeArgs) > 0 {
		if err := c.postProcess(); err != nil {
			if errors.Is(err, process.ErrAborted) || c.ctx.Err() != nil {
				c.finishAborted()
				return
			}
			c.logger.Warnf("keeping unprocessed file: %v", err)
		}
	}

	info, err := os.Stat(c.output)
	if err != nil || info.Size() == 0 {
		c.fail(fmt.Errorf("%w: %s", ErrOutputMissing, c.output))
		return
	}

	c.archive()
	if c.ctx.Err() != nil {
		c.finishAborted()
		return
	}

	completed, err := c.m.downloads.Complete(c.persistCtx, id, c.output, info.Size())
	c.m.registry.Delete(id)
	if err != nil {
		c.logger.Errorf("persist completion: %v", err)
		return
	}
	if !completed {
		// Cancelled while archiving; nothing references the file anymore.
		c.logger.Warn("task left the downloading state before completion was recorded")
		c.removePartials()
		return
	}
	c.m.publisher.Publish(events.StatusEvent(id, domain.DownloadStatusCompleted, ""))
	c.logger.Infof("download completed: %s (%s)", c.output, humanize.IBytes(uint64(info.Size())))
}

// fetch runs the download tool and checks its output.
func (c *controller) fetch() error {
	writer := newProgressWriter(c.persistCtx, c.m.downloads, c.download.ID, c.logger)
	defer writer.close()

	// stderr is only read after Wait, once the copy goroutine is done.
	tail := newTailBuffer(stderrTailLines)

	proc, err := process.Start(c.ctx, process.Command{
		Path: c.m.cfg.ToolPath,
		Args: BuildArgs(c.download.VideoID, c.output, c.download.Options),
		Dir:  c.m.cfg.DataDir,
		Stdout: func(line string) {
			p, ok := progress.Parse(line)
			if !ok {
				c.logger.Debug(line)
				return
			}
			writer.submit(p)
			c.m.publisher.Publish(events.ProgressEvent(c.download.ID, p))
		},
		Stderr: tail.add,
	})
	if err != nil {
		return err
	}
	c.logger.Debugf("download tool running with pid %d", proc.Pid())

	res, err := proc.Wait()
	if err != nil {
		return err
	}
	if res.ExitCode != 0 {
		return &toolError{exitCode: res.ExitCode, stderr: tail.errorText()}
	}

	info, err := os.Stat(c.output)
	if err != nil || info.Size() == 0 {
		return fmt.Errorf("%w: %s", ErrOutputMissing, c.output)
	}
	return nil
}

// postProcess transcodes the output into a temp file and swaps it in.
// The original file is left untouched on any failure.
func (c *controller) postProcess() error {
	ext := filepath.Ext(c.output)
	tmp := filepath.Join(filepath.Dir(c.output),
		fmt.Sprintf(".%s.%s%s", strings.TrimSuffix(filepath.Base(c.output), ext), uuid.NewString(), ext))
	defer os.Remove(tmp)

	tail := newTailBuffer(stderrTailLines)
	proc, err := process.Start(c.ctx, process.Command{
		Path:   c.m.cfg.FFmpegPath,
		Args:   TranscodeArgs(c.output, tmp, c.download.Options.TranscodeArgs),
		Dir:    c.m.cfg.DataDir,
		Stderr: tail.add,
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPostProcessing, err)
	}
	c.logger.Infof("post-processing %s", filepath.Base(c.output))

	res, err := proc.Wait()
	if err != nil {
		return err
	}
	if res.ExitCode != 0 {
		return fmt.Errorf("%w: exit status %d: %s", ErrPostProcessing, res.ExitCode, tail.errorText())
	}

	info, err := os.Stat(tmp)
	if err != nil || info.Size() == 0 {
		return fmt.Errorf("%w: no output produced", ErrPostProcessing)
	}
	if err := os.Rename(tmp, c.output); err != nil {
		return fmt.Errorf("%w: replace output: %v", ErrPostProcessing, err)
	}
	return nil
}

// archive copies the finished file to object storage when configured. A
// failed upload is logged and does not affect the download.
func (c *controller) archive() {
	if c.m.storage == nil || c.m.cfg.Archive.Bucket == "" {
		return
	}

	key := storage.ObjectKey(c.m.cfg.Archive.KeyPrefix, c.download.VideoID, filepath.Base(c.output))
	location, err := c.m.storage.UploadFile(c.ctx, c.output, storage.UploadOptions{
		Bucket:           c.m.cfg.Archive.Bucket,
		Key:              key,
		ContentType:      mime.TypeByExtension(filepath.Ext(c.output)),
		ProgressCallback: newUploadProgressLogger(c.logger),
	})
	if err != nil {
		if c.ctx.Err() == nil {
			c.logger.Warnf("archive upload failed: %v", err)
		}
		return
	}
	if err := c.m.downloads.SetArchiveLocation(c.persistCtx, c.download.ID, location); err != nil {
		c.logger.Warnf("record archive location: %v", err)
		return
	}
	c.logger.Infof("archived to %s", location)
}

func (c *controller) fail(err error) {
	msg := userMessage(err, c.m.cfg.ErrorMaxLen)
	c.logger.Errorf("download failed: %v", err)
	c.finish(domain.DownloadStatusFailed, msg)
}

// finishAborted records an abort: a cancel request ends in cancelled, a
// server shutdown in failed.
func (c *controller) finishAborted() {
	if c.m.shuttingDown() {
		c.logger.Warn("download interrupted by shutdown")
		c.finish(domain.DownloadStatusFailed, msgShutdown)
		return
	}
	c.logger.Info("download aborted")
	c.finish(domain.DownloadStatusCancelled, "")
}

func (c *controller) finish(status domain.DownloadStatus, msg string) {
	var (
		persisted bool
		err       error
	)
	switch status {
	case domain.DownloadStatusCancelled:
		persisted, err = c.m.downloads.Cancel(c.persistCtx, c.download.ID)
	default:
		persisted, err = c.m.downloads.Fail(c.persistCtx, c.download.ID, msg)
	}
	if err != nil {
		c.logger.Errorf("persist %s status: %v", status, err)
	}
	c.m.registry.Delete(c.download.ID)
	c.removePartials()

	if persisted {
		c.m.publisher.Publish(events.StatusEvent(c.download.ID, status, msg))
	}
}

// removePartials deletes everything the tool wrote for this task.
func (c *controller) removePartials() {
	pattern := strings.TrimSuffix(c.output, filepath.Ext(c.output)) + ".*"
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return
	}
	for _, path := range matches {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			c.logger.Warnf("remove partial file %s: %v", path, err)
		}
	}
}
