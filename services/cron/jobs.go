package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/sahilchouksey/booklet-evaluation/model"
)

// ReconcileFolders rescans the scanned root and brings the folder ledger
// in line with disk.
func (m *CronManager) ReconcileFolders(ctx context.Context) (string, error) {
	rows, err := m.ledger.Rescan(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to rescan folders: %w", err)
	}
	return fmt.Sprintf("Reconciled %d folders", len(rows)), nil
}

// SweepStaleRuns marks runs that are still "running" past StaleRunAge and
// not owned by this process as failed, then drops old in-memory state.
func (m *CronManager) SweepStaleRuns(ctx context.Context) (string, error) {
	cutoff := time.Now().Add(-m.StaleRunAge)

	var runs []model.ClassificationRun
	err := m.db.WithContext(ctx).
		Where("status = ? AND started_at < ?", model.RunStatusRunning, cutoff).
		Find(&runs).Error
	if err != nil {
		return "", fmt.Errorf("failed to query runs: %w", err)
	}

	swept := 0
	now := time.Now()
	for _, run := range runs {
		if m.tracker != nil && m.tracker.Owns(run.RunID) {
			continue
		}
		res := m.db.WithContext(ctx).Model(&model.ClassificationRun{}).
			Where("id = ? AND status = ?", run.ID, model.RunStatusRunning).
			Updates(map[string]interface{}{
				"status":       model.RunStatusFailed,
				"completed_at": now,
			})
		if res.Error != nil {
			log.Warnf("[CRON] Failed to mark run %s as failed: %v", run.RunID, res.Error)
			continue
		}
		swept += int(res.RowsAffected)
	}

	forgotten := 0
	if m.tracker != nil {
		forgotten = m.tracker.Forget(m.StaleRunAge)
	}
	return fmt.Sprintf("Marked %d stale runs failed, forgot %d run states", swept, forgotten), nil
}

// CleanupJobLogs removes job logs older than LogRetention.
func (m *CronManager) CleanupJobLogs(ctx context.Context) (string, error) {
	cutoff := time.Now().Add(-m.LogRetention)
	res := m.db.WithContext(ctx).Where("created_at < ?", cutoff).Delete(&model.CronJobLog{})
	if res.Error != nil {
		return "", fmt.Errorf("failed to clean cron logs: %w", res.Error)
	}
	return fmt.Sprintf("Cleaned %d old cron logs", res.RowsAffected), nil
}
