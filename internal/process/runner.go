// Package process supervises a single external executable: it streams the
// child's output line by line and lets callers abort it out of band.
package process

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"sync"
	"sync/atomic"
	"time"
)

var (
	// ErrExecutableNotFound is returned by Start when the configured path is
	// missing or not executable.
	ErrExecutableNotFound = errors.New("executable not found")
	// ErrAborted is returned by Wait when the process was killed through
	// Abort or context cancellation before it exited on its own.
	ErrAborted = errors.New("process aborted")
)

const (
	// waitDelay bounds how long Wait keeps reading pipes that grandchildren
	// still hold open after the direct child has exited.
	waitDelay = 5 * time.Second
	// maxLineBytes caps a single buffered line.
	maxLineBytes = 64 * 1024
)

// Command describes one invocation.
type Command struct {
	Path string
	Args []string
	Dir  string
	Env  []string

	// Stdout and Stderr receive complete lines in the order the child wrote
	// them. Either may be nil to discard that stream.
	Stdout func(line string)
	Stderr func(line string)
}

// Result is the outcome of a process that exited on its own.
type Result struct {
	ExitCode int
}

// Process is a running child started by Start.
type Process struct {
	cmd    *exec.Cmd
	cancel context.CancelFunc
	killed atomic.Bool

	stdout *lineWriter
	stderr *lineWriter

	waitOnce sync.Once
	result   Result
	err      error
}

// Start resolves the executable and spawns it. stdin is the null device.
func Start(ctx context.Context, c Command) (*Process, error) {
	path, err := exec.LookPath(c.Path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrExecutableNotFound, c.Path)
	}

	runCtx, cancel := context.WithCancel(ctx)
	p := &Process{cancel: cancel}

	cmd := exec.CommandContext(runCtx, path, c.Args...)
	cmd.Dir = c.Dir
	if len(c.Env) > 0 {
		cmd.Env = c.Env
	}
	cmd.Cancel = func() error {
		err := cmd.Process.Kill()
		if err == nil {
			p.killed.Store(true)
		}
		return err
	}
	cmd.WaitDelay = waitDelay

	if c.Stdout != nil {
		p.stdout = newLineWriter(c.Stdout)
		cmd.Stdout = p.stdout
	}
	if c.Stderr != nil {
		p.stderr = newLineWriter(c.Stderr)
		cmd.Stderr = p.stderr
	}

	if err := cmd.Start(); err != nil {
		cancel()
		var execErr *exec.Error
		if errors.As(err, &execErr) {
			return nil, fmt.Errorf("%w: %s: %v", ErrExecutableNotFound, path, execErr.Err)
		}
		return nil, fmt.Errorf("start %s: %w", path, err)
	}
	p.cmd = cmd
	return p, nil
}

// Pid returns the operating system process id.
func (p *Process) Pid() int {
	return p.cmd.Process.Pid
}

// Abort kills the process without waiting for it to exit. Safe to call more
// than once and after the process has finished.
func (p *Process) Abort() {
	p.cancel()
}

// Wait blocks until the process exits and all output has been delivered.
// A non-zero exit code is not an error here; only an abort or a failure of
// the wait itself is.
func (p *Process) Wait() (Result, error) {
	p.waitOnce.Do(func() {
		p.result, p.err = p.wait()
	})
	return p.result, p.err
}

func (p *Process) wait() (Result, error) {
	err := p.cmd.Wait()
	p.stdout.flush()
	p.stderr.flush()
	p.cancel()

	if p.killed.Load() {
		return Result{ExitCode: -1}, ErrAborted
	}
	if err == nil {
		return Result{ExitCode: 0}, nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return Result{ExitCode: exitErr.ExitCode()}, nil
	}
	if errors.Is(err, exec.ErrWaitDelay) && p.cmd.ProcessState != nil {
		return Result{ExitCode: p.cmd.ProcessState.ExitCode()}, nil
	}
	return Result{ExitCode: -1}, fmt.Errorf("wait %s: %w", p.cmd.Path, err)
}

// lineWriter splits a byte stream into lines on \n or \r and hands each
// non-empty line to emit. exec runs one copy goroutine per stream, so emit is
// never called concurrently for the same writer.
type lineWriter struct {
	mu   sync.Mutex
	buf  []byte
	emit func(string)
}

func newLineWriter(emit func(string)) *lineWriter {
	return &lineWriter{emit: emit}
}

func (w *lineWriter) Write(b []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.buf = append(w.buf, b...)
	for {
		i := bytes.IndexAny(w.buf, "\r\n")
		if i < 0 {
			break
		}
		line := string(w.buf[:i])
		w.buf = w.buf[i+1:]
		if line != "" {
			w.emit(line)
		}
	}
	if len(w.buf) > maxLineBytes {
		w.emit(string(w.buf))
		w.buf = w.buf[:0]
	}
	return len(b), nil
}

func (w *lineWriter) flush() {
	if w == nil {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.buf) > 0 {
		w.emit(string(w.buf))
		w.buf = nil
	}
}
