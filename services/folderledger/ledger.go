package folderledger

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/gofiber/fiber/v2/log"
	"github.com/sahilchouksey/booklet-evaluation/model"
	"github.com/sahilchouksey/booklet-evaluation/services/notification"
	"github.com/sahilchouksey/booklet-evaluation/utils/apperror"
	"github.com/sahilchouksey/booklet-evaluation/utils/fileutil"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Ledger maintains one SubjectFolder row per first-level folder of root.
type Ledger struct {
	db   *gorm.DB
	root string
	bus  notification.Bus
}

func NewLedger(db *gorm.DB, root string, bus notification.Bus) *Ledger {
	return &Ledger{db: db, root: root, bus: bus}
}

// Root is the scanned folder tree being summarised.
func (l *Ledger) Root() string {
	return l.root
}

// Sync recounts one folder and upserts its row. A folder that no longer
// exists has its row removed.
func (l *Ledger) Sync(ctx context.Context, folderName string) (*model.SubjectFolder, error) {
	if folderName == "" || strings.ContainsAny(folderName, `/\`) {
		return nil, apperror.Validation("Invalid folder name %q", folderName)
	}

	dir := filepath.Join(l.root, folderName)
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		if err != nil && !os.IsNotExist(err) {
			return nil, apperror.IO("failed to stat "+folderName, err)
		}
		return nil, l.Remove(ctx, folderName)
	}

	count, err := fileutil.CountPDFs(dir)
	if err != nil {
		return nil, apperror.IO("failed to count PDFs in "+folderName, err)
	}

	db := l.db.WithContext(ctx)
	var existing *model.SubjectFolder
	var current model.SubjectFolder
	err = db.Where("folder_name = ?", folderName).First(&current).Error
	switch {
	case err == nil:
		existing = &current
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return nil, err
	}

	row := Reconcile(FolderSnapshot{Name: folderName, PDFCount: count}, existing)

	if existing != nil {
		if !Changed(*existing, row) {
			return &row, nil
		}
		err = db.Model(&row).Updates(map[string]interface{}{
			"scanned_folder": row.ScannedFolder,
			"un_allocated":   row.UnAllocated,
		}).Error
		if err != nil {
			return nil, err
		}
		log.Infof("[LEDGER] %s: %d PDFs, %d unallocated", folderName, row.ScannedFolder, row.UnAllocated)
		l.publish(ctx, notification.KindFolderUpdate, row)
		return &row, nil
	}

	// Another instance may insert the same folder concurrently.
	err = db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "folder_name"}},
		DoUpdates: clause.AssignmentColumns([]string{"scanned_folder", "un_allocated", "updated_at"}),
	}).Create(&row).Error
	if err != nil {
		return nil, err
	}
	log.Infof("[LEDGER] %s: new folder with %d PDFs", folderName, row.ScannedFolder)
	l.publish(ctx, notification.KindFolderAdd, row)
	return &row, nil
}

// Remove deletes the row of a folder that has gone away.
func (l *Ledger) Remove(ctx context.Context, folderName string) error {
	res := l.db.WithContext(ctx).Where("folder_name = ?", folderName).Delete(&model.SubjectFolder{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected > 0 {
		log.Infof("[LEDGER] %s: folder removed", folderName)
		l.publish(ctx, notification.KindFolderRemove, map[string]string{"folderName": folderName})
	}
	return nil
}

// Rescan syncs every first-level folder of root, drops rows whose folder
// vanished, and returns the resulting rows.
func (l *Ledger) Rescan(ctx context.Context) ([]model.SubjectFolder, error) {
	entries, err := os.ReadDir(l.root)
	if err != nil {
		return nil, apperror.IO("failed to read scanned folder root", err)
	}

	seen := make(map[string]bool, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		seen[entry.Name()] = true
		if _, err := l.Sync(ctx, entry.Name()); err != nil {
			log.Errorf("[LEDGER] failed to sync %s: %v", entry.Name(), err)
		}
	}

	rows, err := l.List(ctx)
	if err != nil {
		return nil, err
	}
	kept := rows[:0]
	for _, row := range rows {
		if seen[row.FolderName] {
			kept = append(kept, row)
			continue
		}
		if err := l.Remove(ctx, row.FolderName); err != nil {
			log.Errorf("[LEDGER] failed to remove %s: %v", row.FolderName, err)
			kept = append(kept, row)
		}
	}

	l.publish(ctx, notification.KindFolderList, kept)
	return kept, nil
}

// List returns every row ordered by folder name.
func (l *Ledger) List(ctx context.Context) ([]model.SubjectFolder, error) {
	var rows []model.SubjectFolder
	if err := l.db.WithContext(ctx).Order("folder_name").Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (l *Ledger) publish(ctx context.Context, kind string, data interface{}) {
	if l.bus == nil {
		return
	}
	if err := l.bus.Publish(ctx, notification.FoldersTopic, notification.Event{Kind: kind, Data: data}); err != nil {
		log.Warnf("[LEDGER] failed to publish %s: %v", kind, err)
	}
}
