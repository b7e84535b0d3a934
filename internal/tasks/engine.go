// Package tasks implements the task lifecycle engine (C6): converting
// an uploaded artifact into an output file via an external encoder
// subprocess, publishing realtime progress, and enforcing the
// Pending->Converting->{Completed,Failed,Cancelled} lifecycle.
package tasks

import (
	"bufio"
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/videoforge/videoforge/internal/apperr"
	"github.com/videoforge/videoforge/internal/database"
	"github.com/videoforge/videoforge/internal/governor"
	"github.com/videoforge/videoforge/internal/logger"
	"github.com/videoforge/videoforge/internal/models"
	"github.com/videoforge/videoforge/internal/pushbus"
)

// minPublishInterval caps realtime progress publication per task, per
// spec §4.6 ("at most once per 500 ms").
const minPublishInterval = 500 * time.Millisecond

// running tracks one in-flight encoder invocation, used to enforce
// "exactly one concurrent encoder invocation per task id".
type running struct {
	cancel context.CancelFunc
}

// Engine owns task creation, the encoder subprocess lifecycle, and
// progress/status broadcast.
type Engine struct {
	repo     *database.TaskRepository
	gov      *governor.Governor
	bus      *pushbus.Hub
	logger   *logger.Logger
	encoder  string
	argsTmpl string

	mu      sync.Mutex
	running map[string]*running
}

func New(repo *database.TaskRepository, gov *governor.Governor, bus *pushbus.Hub, encoderPath, argsTemplate string) *Engine {
	return &Engine{
		repo:     repo,
		gov:      gov,
		bus:      bus,
		logger:   logger.NewLogger("TASKS"),
		encoder:  encoderPath,
		argsTmpl: argsTemplate,
		running:  make(map[string]*running),
	}
}

// CreateParams mirrors spec §4.6's Create(artifact, params) operation.
type CreateParams struct {
	Name             string
	ArtifactPath     string
	OriginalFileName string
	OriginalSize     int64
	OriginalFormat   string
	Params           map[string]interface{}
}

// Create registers a new task in Pending state and immediately hands
// it to the governor-gated encoder worker in the background.
func (e *Engine) Create(ctx context.Context, p CreateParams) (*models.Task, error) {
	t := &models.Task{
		ID:               uuid.New().String(),
		Name:             p.Name,
		OriginalFileName: p.OriginalFileName,
		OriginalSize:     p.OriginalSize,
		OriginalFormat:   p.OriginalFormat,
		Params:           p.Params,
		Status:           models.TaskPending,
		Progress:         0,
		CreatedAt:        time.Now(),
		ArtifactPath:     p.ArtifactPath,
	}

	if err := e.repo.Create(t); err != nil {
		return nil, apperr.Wrap(apperr.Fatal, "create task", err)
	}

	go e.runInBackground(t)

	return t, nil
}

func (e *Engine) runInBackground(t *models.Task) {
	ctx, cancel := context.WithCancel(context.Background())

	e.mu.Lock()
	e.running[t.ID] = &running{cancel: cancel}
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		delete(e.running, t.ID)
		e.mu.Unlock()
		cancel()
	}()

	started := false
	_, err := governor.Execute(ctx, e.gov, t.ID, governor.KindUpload, func(ctx context.Context) (struct{}, error) {
		started = true
		return struct{}{}, e.convert(ctx, t)
	})
	if err != nil && ctx.Err() == nil {
		e.logger.Error(fmt.Sprintf("task %s failed", t.ID), err)
	}
	// cancelled while still queued for a governor slot: convert never
	// ran, so the Cancelled transition is recorded here.
	if !started && ctx.Err() != nil {
		_ = e.markCancelled(t)
	}
}

// convert runs the encoder subprocess for t, streaming live progress.
// It is the part of C6 grounded on the subprocess-invocation idiom,
// adapted from a one-shot CombinedOutput call to a StdoutPipe+Scanner
// loop so progress lines are observed as they are emitted rather than
// only after the process exits.
func (e *Engine) convert(ctx context.Context, t *models.Task) error {
	if err := e.repo.MarkStarted(t.ID); err != nil {
		return apperr.Wrap(apperr.Fatal, "mark task started", err)
	}
	e.publishStatus(t.ID, models.TaskConverting, "")

	outputPath, outputFormat := e.deriveOutputPath(t)
	args := e.buildArgs(t.ArtifactPath, outputPath, t.Params)

	cmd := exec.CommandContext(ctx, e.encoder, args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return e.fail(t, apperr.Wrap(apperr.Fatal, "open encoder stdout", err))
	}
	cmd.Stderr = cmd.Stdout

	if err := cmd.Start(); err != nil {
		return e.fail(t, apperr.Wrap(apperr.Fatal, "start encoder", err))
	}

	lastPublish := time.Time{}
	lastProgress := 0

	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		sample := ParseProgressLine(scanner.Text())
		if !sample.HasProgress && !sample.HasSpeed && !sample.HasETA && !sample.HasPosition {
			continue
		}

		// progress is monotonic: a lower reading than already observed
		// is clamped rather than regressing the reported value.
		progress := lastProgress
		if sample.HasProgress && sample.Progress > lastProgress {
			progress = sample.Progress
		}
		lastProgress = progress

		if time.Since(lastPublish) < minPublishInterval {
			continue
		}
		lastPublish = time.Now()

		_ = e.repo.UpdateProgress(t.ID, models.TaskConverting, progress, sample.Speed, sample.ETASeconds, sample.Position, sample.Position)
		e.bus.PublishTask(t.ID, pushbus.EventProgressUpdate, pushbus.ProgressUpdate{
			TaskID:           t.ID,
			Progress:         progress,
			Speed:            sample.Speed,
			RemainingSeconds: sample.ETASeconds,
		})
	}

	waitErr := cmd.Wait()

	if ctx.Err() != nil {
		return e.markCancelled(t)
	}
	if waitErr != nil {
		return e.fail(t, apperr.Wrap(apperr.Fatal, "encoder exited with error", waitErr))
	}

	return e.succeed(t, outputPath, outputFormat)
}

func (e *Engine) deriveOutputPath(t *models.Task) (path, format string) {
	format = "mp4"
	if v, ok := t.Params["container"].(string); ok && v != "" {
		format = v
	}
	base := filepath.Dir(t.ArtifactPath)
	return fmt.Sprintf("%s/%s.out.%s", base, t.ID, format), format
}

func (e *Engine) buildArgs(input, output string, params map[string]interface{}) []string {
	codec, _ := params["codec"].(string)
	if codec == "" {
		codec = "h264"
	}
	tmpl := e.argsTmpl
	tmpl = strings.ReplaceAll(tmpl, "{input}", input)
	tmpl = strings.ReplaceAll(tmpl, "{output}", output)
	tmpl = strings.ReplaceAll(tmpl, "{codec}", codec)
	return strings.Fields(tmpl)
}

func (e *Engine) succeed(t *models.Task, outputPath, outputFormat string) error {
	if err := e.repo.MarkTerminal(t.ID, models.TaskCompleted, "", pathBase(outputPath), outputPath, 0); err != nil {
		return apperr.Wrap(apperr.Fatal, "mark task completed", err)
	}
	e.bus.PublishTask(t.ID, pushbus.EventTaskCompleted, pushbus.TaskCompleted{
		TaskID: t.ID, TaskName: t.Name, Success: true,
	})
	return nil
}

func (e *Engine) fail(t *models.Task, cause error) error {
	reason := cause.Error()
	if err := e.repo.MarkTerminal(t.ID, models.TaskFailed, reason, "", "", 0); err != nil {
		e.logger.Error("mark task failed", err)
	}
	e.bus.PublishTask(t.ID, pushbus.EventTaskCompleted, pushbus.TaskCompleted{
		TaskID: t.ID, TaskName: t.Name, Success: false, ErrorMessage: reason,
	})
	return cause
}

func (e *Engine) markCancelled(t *models.Task) error {
	if err := e.repo.MarkTerminal(t.ID, models.TaskCancelled, "", "", "", 0); err != nil {
		e.logger.Error("mark task cancelled", err)
	}
	e.publishStatus(t.ID, models.TaskCancelled, "")
	return apperr.New(apperr.Cancelled, "task cancelled")
}

func (e *Engine) publishStatus(taskID string, status models.TaskStatus, errMsg string) {
	e.bus.PublishTask(taskID, pushbus.EventStatusUpdate, pushbus.StatusUpdate{
		TaskID: taskID, Status: string(status), ErrorMessage: errMsg,
	})
}

// Cancel requests cancellation of a running task. Per spec §4.6 this
// is only legal while Pending or Converting; terminal states return
// the "illegal_state" outcome instead of an error so callers can
// answer with a client error (the REST handler responds 400
// Validation) without treating it as a system failure.
func (e *Engine) Cancel(taskID string) (ok bool, err error) {
	t, err := e.repo.Get(taskID)
	if err != nil {
		return false, apperr.Wrap(apperr.Validation, "task not found", err)
	}
	if t.Status.IsTerminal() {
		return false, nil
	}

	e.mu.Lock()
	r, active := e.running[taskID]
	e.mu.Unlock()

	if active {
		r.cancel()
		return true, nil
	}

	// still Pending and not yet picked up by a worker: mark terminal directly.
	if err := e.repo.MarkTerminal(taskID, models.TaskCancelled, "", "", "", 0); err != nil {
		return false, apperr.Wrap(apperr.Fatal, "mark task cancelled", err)
	}
	e.publishStatus(taskID, models.TaskCancelled, "")
	return true, nil
}

func (e *Engine) GetStatus(taskID string) (*models.Task, error) {
	t, err := e.repo.Get(taskID)
	if err != nil {
		return nil, apperr.Wrap(apperr.Validation, "task not found", err)
	}
	return t, nil
}

func (e *Engine) List(f database.ListFilter) ([]*models.Task, int, error) {
	return e.repo.List(f)
}

// Delete removes a task record. Deletion while Converting is forbidden
// since the encoder still holds the artifact and output paths.
func (e *Engine) Delete(taskID string) error {
	t, err := e.repo.Get(taskID)
	if err != nil {
		return apperr.Wrap(apperr.Validation, "task not found", err)
	}
	if t.Status == models.TaskConverting {
		return apperr.New(apperr.Validation, "cannot delete a task while it is converting")
	}
	return e.repo.Delete(taskID)
}

func pathBase(p string) string {
	if i := strings.LastIndex(p, "/"); i >= 0 {
		return p[i+1:]
	}
	return p
}
