package cron

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/robfig/cron/v3"
	"github.com/sahilchouksey/booklet-evaluation/model"
	"github.com/sahilchouksey/booklet-evaluation/services/classifier"
	"github.com/sahilchouksey/booklet-evaluation/services/folderledger"
	"gorm.io/gorm"
)

// Job names as written to cron_job_logs.
const (
	JobFolderReconcile = "folder_reconcile"
	JobSweepStaleRuns  = "sweep_stale_runs"
	JobCleanupLogs     = "cleanup_job_logs"
)

// CronManager manages all scheduled cron jobs
type CronManager struct {
	cron    *cron.Cron
	db      *gorm.DB
	ledger  *folderledger.Ledger
	tracker *classifier.RunTracker

	// StaleRunAge is how long a run may stay "running" without an owner
	// before the sweep marks it failed.
	StaleRunAge time.Duration
	// LogRetention bounds how long job logs are kept.
	LogRetention time.Duration
}

// NewCronManager creates a new cron manager
func NewCronManager(db *gorm.DB, ledger *folderledger.Ledger, tracker *classifier.RunTracker) *CronManager {
	// Create cron with seconds precision
	c := cron.New(cron.WithSeconds())

	return &CronManager{
		cron:         c,
		db:           db,
		ledger:       ledger,
		tracker:      tracker,
		StaleRunAge:  classifier.ActiveRunTTL,
		LogRetention: 30 * 24 * time.Hour,
	}
}

// Start starts all cron jobs
func (m *CronManager) Start() error {
	log.Info("[CRON] Starting cron jobs...")

	if err := m.registerJobs(); err != nil {
		return err
	}

	m.cron.Start()

	log.Info("[CRON] Cron jobs started successfully")
	return nil
}

// Stop stops all cron jobs and waits for running ones to return.
func (m *CronManager) Stop() {
	log.Info("[CRON] Stopping cron jobs...")
	ctx := m.cron.Stop()
	<-ctx.Done()
	log.Info("[CRON] Cron jobs stopped")
}

// registerJobs registers all cron jobs with their schedules
func (m *CronManager) registerJobs() error {
	schedules := []struct {
		spec string
		name string
		fn   func(context.Context) (string, error)
	}{
		// Every 10 minutes: catch folder changes the watcher missed
		{"0 */10 * * * *", JobFolderReconcile, m.ReconcileFolders},
		// Every 15 minutes: fail runs whose owner is gone
		{"0 */15 * * * *", JobSweepStaleRuns, m.SweepStaleRuns},
		// Daily at 3 AM
		{"0 0 3 * * *", JobCleanupLogs, m.CleanupJobLogs},
	}

	for _, s := range schedules {
		if s.name == JobFolderReconcile && m.ledger == nil {
			continue
		}
		job := s
		if _, err := m.cron.AddFunc(job.spec, func() { m.RunJob(job.name, job.fn) }); err != nil {
			return err
		}
	}

	log.Info("[CRON] All cron jobs registered successfully")
	return nil
}

// RunJob executes fn with a bounded context and records the outcome.
func (m *CronManager) RunJob(jobName string, fn func(context.Context) (string, error)) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	entry := m.logJobStart(jobName)
	message, err := fn(ctx)
	if err != nil {
		m.logJobError(entry, err)
		return
	}
	m.logJobComplete(entry, message)
}

// logJobStart logs the start of a cron job
func (m *CronManager) logJobStart(jobName string) *model.CronJobLog {
	log.Infof("[CRON] Starting job: %s at %s", jobName, time.Now().Format(time.RFC3339))

	cronLog := &model.CronJobLog{
		JobName:   jobName,
		Status:    "running",
		StartedAt: time.Now(),
		Metadata:  []byte("{}"),
	}
	if err := m.db.Create(cronLog).Error; err != nil {
		log.Warnf("[CRON] Failed to record start of %s: %v", jobName, err)
	}
	return cronLog
}

// logJobComplete logs successful completion of a cron job
func (m *CronManager) logJobComplete(entry *model.CronJobLog, message string) {
	log.Infof("[CRON] Completed job: %s - %s", entry.JobName, message)
	m.finishLog(entry, map[string]interface{}{
		"status":  "completed",
		"message": message,
	})
}

// logJobError logs a cron job error
func (m *CronManager) logJobError(entry *model.CronJobLog, err error) {
	log.Errorf("[CRON] Error in job: %s - %v", entry.JobName, err)
	m.finishLog(entry, map[string]interface{}{
		"status":    "failed",
		"error_msg": err.Error(),
	})
}

func (m *CronManager) finishLog(entry *model.CronJobLog, updates map[string]interface{}) {
	if entry.ID == 0 {
		return
	}
	now := time.Now()
	updates["completed_at"] = now
	updates["duration"] = now.Sub(entry.StartedAt).Milliseconds()
	m.db.Model(entry).Updates(updates)
}
