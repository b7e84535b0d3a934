// Package retention implements the retention and cleanup engine (C8):
// scheduled sweeps of expired downloads, orphaned temp files, and old
// logs, plus usage-threshold-triggered aggressive and emergency
// sweeps, run by a multi-job ticker/stopChan scheduler.
package retention

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/gomail.v2"

	"github.com/videoforge/videoforge/internal/apperr"
	"github.com/videoforge/videoforge/internal/archive"
	"github.com/videoforge/videoforge/internal/chunkstore"
	"github.com/videoforge/videoforge/internal/database"
	"github.com/videoforge/videoforge/internal/diskbudget"
	"github.com/videoforge/videoforge/internal/logger"
	"github.com/videoforge/videoforge/internal/models"
	"github.com/videoforge/videoforge/internal/pushbus"
	"github.com/videoforge/videoforge/internal/uploadsession"
)

// Scope selects which cleanup categories PerformCleanup sweeps, per
// spec §4.8's "cleanup/{type}" endpoint.
type Scope struct {
	Retention bool // downloaded tasks past their scheduled cleanup
	Temp      bool // orphaned upload-session temp dirs past TTL
	Logs      bool // log files past the retention window
}

func AllScopes() Scope { return Scope{Retention: true, Temp: true, Logs: true} }

// Result reports what a cleanup pass did, per spec §4.8.
type Result struct {
	BytesFreed   int64
	FilesRemoved int
	ByCategory   map[string]int64
}

func newResult() Result {
	return Result{ByCategory: map[string]int64{
		"originals": 0, "outputs": 0, "temp": 0, "logs": 0,
	}}
}

// MailConfig holds the optional operator-notification settings.
type MailConfig struct {
	ReportTo string
	Host     string
	Port     int
	User     string
	Password string
}

// Engine owns the scheduled sweep tickers and the on-demand cleanup
// operations shared with the REST surface.
type Engine struct {
	retentionRepo *database.RetentionRepository
	taskRepo      *database.TaskRepository
	chunks        *chunkstore.Store
	budget        *diskbudget.Controller
	archiver      *archive.Archiver
	uploads       *uploadsession.Manager
	bus           *pushbus.Hub
	logger        *logger.Logger
	mail          MailConfig

	tempRoot         string
	logPath          string
	tempTTL          time.Duration
	logRetention     time.Duration
	retentionWindow  time.Duration
	aggressivePct    int
	emergencyPct     int

	ticker   *time.Ticker
	stopChan chan bool
	wg       sync.WaitGroup
	running  bool
	mu       sync.Mutex
}

func New(
	retentionRepo *database.RetentionRepository,
	taskRepo *database.TaskRepository,
	chunks *chunkstore.Store,
	budget *diskbudget.Controller,
	archiver *archive.Archiver,
	uploads *uploadsession.Manager,
	bus *pushbus.Hub,
	tempRoot, logPath string,
	tempTTL, logRetention, retentionWindow time.Duration,
	aggressivePct, emergencyPct int,
	mail MailConfig,
) *Engine {
	return &Engine{
		retentionRepo:   retentionRepo,
		taskRepo:        taskRepo,
		chunks:          chunks,
		budget:          budget,
		archiver:        archiver,
		uploads:         uploads,
		bus:             bus,
		retentionWindow: retentionWindow,
		logger:        logger.NewLogger("RETENTION"),
		mail:          mail,
		tempRoot:      tempRoot,
		logPath:       logPath,
		tempTTL:       tempTTL,
		logRetention:  logRetention,
		aggressivePct: aggressivePct,
		emergencyPct:  emergencyPct,
		stopChan:      make(chan bool, 1),
	}
}

// Start launches the scheduled sweep jobs as background goroutines.
func (e *Engine) Start() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.running {
		return fmt.Errorf("retention engine is already running")
	}
	e.running = true
	e.stopChan = make(chan bool, 1)

	e.wg.Add(3)
	go e.retentionSweepJob()
	go e.tempSweepJob()
	go e.usageThresholdJob()

	e.logger.Info("retention engine started")
	return nil
}

func (e *Engine) Stop() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.running {
		return fmt.Errorf("retention engine is not running")
	}
	close(e.stopChan)
	e.wg.Wait()
	e.running = false
	e.logger.Info("retention engine stopped")
	return nil
}

func (e *Engine) IsRunning() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running
}

func (e *Engine) retentionSweepJob() {
	defer e.wg.Done()
	ticker := time.NewTicker(1 * time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := e.PerformCleanup(Scope{Retention: true}, false); err != nil {
				e.logger.Error("scheduled retention sweep", err)
			}
		case <-e.stopChan:
			return
		}
	}
}

func (e *Engine) tempSweepJob() {
	defer e.wg.Done()
	ticker := time.NewTicker(1 * time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := e.PerformCleanup(Scope{Temp: true, Logs: true}, false); err != nil {
				e.logger.Error("scheduled temp/log sweep", err)
			}
		case <-e.stopChan:
			return
		}
	}
}

// usageThresholdJob watches live disk usage and triggers an aggressive
// sweep past AggressiveUsagePercent, or an emergency sweep (which
// ignores scheduled retention windows entirely) past EmergencyUsagePercent.
func (e *Engine) usageThresholdJob() {
	defer e.wg.Done()
	ticker := time.NewTicker(1 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			status := e.budget.GetStatus()
			switch {
			case int(status.UsagePercent) >= e.emergencyPct:
				e.logger.Info(fmt.Sprintf("usage at %.1f%%, running emergency sweep", status.UsagePercent))
				result, err := e.PerformCleanup(AllScopes(), true)
				if err != nil {
					e.logger.Error("emergency sweep", err)
					continue
				}
				e.notifyOperator(status.UsagePercent, result)
			case int(status.UsagePercent) >= e.aggressivePct:
				e.logger.Info(fmt.Sprintf("usage at %.1f%%, running aggressive sweep", status.UsagePercent))
				if _, err := e.PerformCleanup(AllScopes(), false); err != nil {
					e.logger.Error("aggressive sweep", err)
				}
			}
		case <-e.stopChan:
			return
		}
	}
}

// TriggerJob manually runs one named sweep, per spec §4.8's operator
// surface.
func (e *Engine) TriggerJob(jobType string) (Result, error) {
	switch jobType {
	case "retention":
		return e.PerformCleanup(Scope{Retention: true}, false)
	case "temp":
		return e.PerformCleanup(Scope{Temp: true}, false)
	case "logs":
		return e.PerformCleanup(Scope{Logs: true}, false)
	case "all":
		return e.PerformCleanup(AllScopes(), false)
	default:
		return Result{}, apperr.Newf(apperr.Validation, "unknown cleanup type %q", jobType)
	}
}

// PerformCleanup runs the requested sweep categories. Safe-by-default:
// a task still Converting is never touched, since the retention table
// only ever tracks Completed downloads in the first place.
func (e *Engine) PerformCleanup(scope Scope, ignoreRetention bool) (Result, error) {
	result := newResult()

	if scope.Retention {
		if err := e.sweepRetention(ignoreRetention, &result); err != nil {
			return result, err
		}
	}
	if scope.Temp {
		if err := e.sweepOrphanTemp(&result); err != nil {
			return result, err
		}
	}
	if scope.Logs {
		if err := e.sweepLogs(&result); err != nil {
			return result, err
		}
	}

	if result.BytesFreed > 0 {
		e.bus.Publish(pushbus.TopicSpace, pushbus.Event{
			Type: pushbus.EventSpaceReleased,
			Data: pushbus.SpaceReleased{ReleasedBytes: result.BytesFreed, Reason: "cleanup"},
		})
	}

	return result, nil
}

func (e *Engine) sweepRetention(ignoreRetention bool, result *Result) error {
	due, err := e.retentionRepo.DueForCleanup(ignoreRetention)
	if err != nil {
		return apperr.Wrap(apperr.Fatal, "list due retention records", err)
	}

	for _, rec := range due {
		task, err := e.taskRepo.Get(rec.TaskID)
		if err != nil {
			e.logger.Error(fmt.Sprintf("load task %s for cleanup", rec.TaskID), err)
			continue
		}
		if task.Status == models.TaskConverting {
			continue
		}

		if e.archiver.Enabled() && task.OutputPath != "" {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
			err := e.archiver.Upload(ctx, task.OutputPath, filepath.Base(task.OutputPath))
			cancel()
			if err != nil {
				e.logger.Error(fmt.Sprintf("archive output for task %s", rec.TaskID), err)
				continue
			}
		}

		if task.OutputPath != "" {
			if err := e.chunks.DeleteArtifact(task.OutputPath); err != nil && !os.IsNotExist(err) {
				e.logger.Error(fmt.Sprintf("delete output for task %s", rec.TaskID), err)
				continue
			}
		}
		if task.ArtifactPath != "" {
			if err := e.chunks.DeleteArtifact(task.ArtifactPath); err != nil && !os.IsNotExist(err) {
				e.logger.Error(fmt.Sprintf("delete artifact for task %s", rec.TaskID), err)
			}
		}

		if err := e.retentionRepo.MarkCleanedUp(rec.TaskID); err != nil {
			e.logger.Error(fmt.Sprintf("mark cleaned up %s", rec.TaskID), err)
			continue
		}

		result.BytesFreed += rec.FileSize
		result.FilesRemoved++
		result.ByCategory["outputs"] += rec.FileSize
		e.budget.UpdateUsage(-rec.FileSize, models.UsageOutputs)
	}

	return nil
}

func (e *Engine) sweepOrphanTemp(result *Result) error {
	if e.uploads != nil {
		if n := e.uploads.SweepExpired(); n > 0 {
			e.logger.Printf("evicted %d expired upload sessions", n)
		}
	}

	entries, err := os.ReadDir(e.tempRoot)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return apperr.Wrap(apperr.Fatal, "read temp root", err)
	}

	cutoff := time.Now().Add(-e.tempTTL)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}

		size := dirSize(filepath.Join(e.tempRoot, entry.Name()))
		if err := e.chunks.RemoveSessionDir(entry.Name()); err != nil {
			e.logger.Error(fmt.Sprintf("remove orphan session dir %s", entry.Name()), err)
			continue
		}

		result.BytesFreed += size
		result.FilesRemoved++
		result.ByCategory["temp"] += size
		e.budget.UpdateUsage(-size, models.UsageTemp)
	}

	return nil
}

func (e *Engine) sweepLogs(result *Result) error {
	if e.logPath == "" {
		return nil
	}
	entries, err := os.ReadDir(e.logPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return apperr.Wrap(apperr.Fatal, "read log dir", err)
	}

	cutoff := time.Now().Add(-e.logRetention)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		path := filepath.Join(e.logPath, entry.Name())
		size := info.Size()
		if err := os.Remove(path); err != nil {
			continue
		}
		result.BytesFreed += size
		result.FilesRemoved++
		result.ByCategory["logs"] += size
	}

	return nil
}

// RegisterDownload schedules a completed download's cleanup per spec
// §4.8's "file downloaded" trigger: download_time + retention window.
func (e *Engine) RegisterDownload(taskID, fileName string, fileSize int64, clientID string) error {
	now := time.Now()
	return e.retentionRepo.Create(&models.RetentionRecord{
		TaskID:             taskID,
		FileName:           fileName,
		FileSize:           fileSize,
		DownloadedAt:       now,
		ScheduledCleanupAt: now.Add(e.retentionWindow),
		ClientID:           clientID,
	})
}

// MarkCleanedUp lets the REST surface acknowledge a client-side
// download+delete without waiting for the scheduled sweep.
func (e *Engine) MarkCleanedUp(taskID string) error {
	return e.retentionRepo.MarkCleanedUp(taskID)
}

// ExtendRetention pushes a task's scheduled cleanup further into the
// future, per spec §4.8.
func (e *Engine) ExtendRetention(taskID string, hours int) error {
	return e.retentionRepo.ExtendRetention(taskID, hours)
}

func (e *Engine) notifyOperator(usagePercent float64, result Result) {
	if e.mail.ReportTo == "" || e.mail.Host == "" {
		return
	}

	m := gomail.NewMessage()
	m.SetHeader("From", e.mail.User)
	m.SetHeader("To", e.mail.ReportTo)
	m.SetHeader("Subject", "videoforge: emergency cleanup triggered")
	m.SetBody("text/plain", fmt.Sprintf(
		"Disk usage reached %.1f%%. Emergency cleanup freed %d bytes across %d files.",
		usagePercent, result.BytesFreed, result.FilesRemoved))

	d := gomail.NewDialer(e.mail.Host, e.mail.Port, e.mail.User, e.mail.Password)
	if err := d.DialAndSend(m); err != nil {
		e.logger.Error("send emergency cleanup notification", err)
	}
}

func dirSize(path string) int64 {
	var total int64
	filepath.Walk(path, func(_ string, info os.FileInfo, err error) error {
		if err == nil && !info.IsDir() {
			total += info.Size()
		}
		return nil
	})
	return total
}
