package model

import (
	"time"
)

// SubjectFolder summarises one subject's scanned folder. It is rebuilt from
// the filesystem and is never a source of truth.
type SubjectFolder struct {
	ID                uint      `gorm:"primaryKey" json:"id"`
	CreatedAt         time.Time `json:"createdAt"`
	UpdatedAt         time.Time `json:"updatedAt"`
	FolderName        string    `gorm:"uniqueIndex;not null" json:"folderName"`
	Description       string    `json:"description"`
	ScannedFolder     int       `gorm:"not null;default:0" json:"scannedFolder"`
	Allocated         int       `gorm:"not null;default:0" json:"allocated"`
	UnAllocated       int       `gorm:"not null;default:0" json:"unAllocated"`
	Evaluated         int       `gorm:"not null;default:0" json:"evaluated"`
	EvaluationPending int       `gorm:"not null;default:0" json:"evaluation_pending"`
	TotalAllocations  int       `gorm:"not null;default:0" json:"totalAllocations"`
}
