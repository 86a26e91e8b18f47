package main

import (
	"context"
	"flag"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"shiftboard/internal/attendance"
	"shiftboard/internal/config"
	"shiftboard/internal/logging"
	"shiftboard/internal/roster"
	"shiftboard/internal/settings"
	"shiftboard/internal/sheets"
	"shiftboard/internal/sheetsync"
	"shiftboard/internal/store"
)

// One-shot sync runner for cron or a systemd timer. The API server has no
// resident background worker; this binary fills the gap for deployments that
// want syncs even when nobody is loading pages.
func main() {
	force := flag.Bool("force", false, "run even if auto-sync is disabled or the interval has not elapsed")
	timeout := flag.Duration("timeout", 2*time.Minute, "overall run timeout")
	flag.Parse()

	_ = godotenv.Load()
	cfg := config.Load()
	log := logging.New(cfg.LogLevel)

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	db, err := store.NewDB(ctx, cfg.DatabaseURL, store.Options{
		MaxOpenConns: cfg.DBMaxOpenConns,
		MaxIdleConns: cfg.DBMaxIdleConns,
	})
	if err != nil {
		log.WithError(err).Fatal("db connect failed")
	}
	defer db.Close()

	loc, err := time.LoadLocation(cfg.DisplayTimezone)
	if err != nil {
		loc = time.UTC
	}

	var rows sheetsync.RowSource
	if cfg.SheetsConfigured() {
		client, err := sheets.New(ctx, sheets.Config{
			SpreadsheetID:   cfg.SheetsSpreadsheetID,
			Range:           cfg.SheetsRange,
			CredentialsFile: cfg.SheetsCredentialsFile,
			CredentialsJSON: cfg.SheetsCredentialsJSON,
		})
		if err != nil {
			log.WithError(err).Fatal("sheets client failed")
		}
		rows = client
	}

	syncer := sheetsync.New(sheetsync.Config{
		Rows:     rows,
		Students: roster.NewRepository(db.Client),
		Records:  attendance.NewRepository(db.Client),
		Settings: settings.NewSyncSettings(settings.NewRepository(db.Client)),
		Log:      log,
		Location: loc,
	})

	var summary sheetsync.Summary
	if *force {
		summary, err = syncer.RunManual(ctx)
	} else {
		summary, err = syncer.RunScheduled(ctx)
	}
	if err != nil {
		log.WithError(err).Fatal("sync failed")
	}
	if summary.Skipped {
		log.WithField("reason", summary.Reason).Info("sync skipped")
		return
	}
	log.WithFields(logrus.Fields{
		"exported":         summary.Exported,
		"imported":         summary.Imported,
		"students_created": summary.StudentsCreated,
	}).Info("sync complete")
}
