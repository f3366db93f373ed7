package main

import (
	"fmt"
	"log"

	"github.com/sahilchouksey/booklet-evaluation/config"
	"github.com/sahilchouksey/booklet-evaluation/database"
	"github.com/sahilchouksey/booklet-evaluation/model"
	"gorm.io/gorm"
)

const timeLayout = "2006-01-02 15:04:05"

func main() {
	if err := config.LoadENV(); err != nil {
		log.Println("No .env file found, using environment variables")
	}
	env, err := config.Get()
	if err != nil {
		log.Fatalf("Failed to read configuration: %v", err)
	}

	store, err := database.StartGORM(env)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer store.Close()
	db := store.GetDB()

	printRuns(db)
	printFolders(db)
	printCronLogs(db)
}

func printRuns(db *gorm.DB) {
	fmt.Println("========================================")
	fmt.Println("CLASSIFICATION RUNS")
	fmt.Println("========================================")

	var runs []model.ClassificationRun
	if err := db.Order("started_at DESC").Limit(20).Find(&runs).Error; err != nil {
		log.Fatalf("Failed to fetch runs: %v", err)
	}
	if len(runs) == 0 {
		fmt.Println("\nNo classification runs found")
		return
	}

	for _, run := range runs {
		done := run.Processed + run.Rejected + run.Failed
		fmt.Printf("-------------------------------------\n")
		fmt.Printf("[%s] %s  subject %s\n", run.Status, run.RunID, run.SubjectCode)
		fmt.Printf("   Progress: %d/%d (%d processed, %d rejected, %d failed)\n",
			done, run.TotalFiles, run.Processed, run.Rejected, run.Failed)
		fmt.Printf("   Started: %s\n", run.StartedAt.Format(timeLayout))
		if run.CompletedAt != nil {
			fmt.Printf("   Completed: %s\n", run.CompletedAt.Format(timeLayout))
		}
		if run.ReportPath != "" {
			fmt.Printf("   Report: %s\n", run.ReportPath)
		}
		if run.ReportURL != "" {
			fmt.Printf("   Archived: %s\n", run.ReportURL)
		}
	}
}

func printFolders(db *gorm.DB) {
	fmt.Println("\n========================================")
	fmt.Println("SCANNED FOLDERS")
	fmt.Println("========================================")

	var folders []model.SubjectFolder
	db.Order("folder_name").Find(&folders)
	for _, f := range folders {
		fmt.Printf("%-20s scanned %4d  unallocated %4d  allocated %4d  pending %4d\n",
			f.FolderName, f.ScannedFolder, f.UnAllocated, f.Allocated, f.EvaluationPending)
	}
}

func printCronLogs(db *gorm.DB) {
	fmt.Println("\n========================================")
	fmt.Println("RECENT CRON JOBS")
	fmt.Println("========================================")

	var logs []model.CronJobLog
	db.Order("started_at DESC").Limit(20).Find(&logs)
	for _, l := range logs {
		line := fmt.Sprintf("%s  %-20s %-10s %6dms", l.StartedAt.Format(timeLayout), l.JobName, l.Status, l.Duration)
		if l.ErrorMsg != "" {
			line += "  " + l.ErrorMsg
		} else if l.Message != "" {
			line += "  " + l.Message
		}
		fmt.Println(line)
	}
}
