package settings

import (
	"context"
	"strconv"
	"time"
)

// Keys owned by the sheet sync subsystem.
const (
	KeyAutoSyncEnabled     = "sheets.autosync_enabled"
	KeySyncIntervalMinutes = "sheets.sync_interval_minutes"
	KeyLastExportAt        = "sheets.last_export_at"
	KeyLastImportAt        = "sheets.last_import_at"
)

// DefaultSyncInterval applies when no interval is stored.
const DefaultSyncInterval = 60 * time.Minute

// MinSyncInterval is the hard floor an administrator cannot tune below.
const MinSyncInterval = 60 * time.Second

// SyncSettings exposes typed accessors for the sync subsystem's keys on top
// of the generic KV store.
type SyncSettings struct {
	kv KV
}

// NewSyncSettings wraps a KV store.
func NewSyncSettings(kv KV) *SyncSettings {
	return &SyncSettings{kv: kv}
}

// AutoSyncEnabled reports the admin toggle; syncing is on until explicitly
// disabled.
func (s *SyncSettings) AutoSyncEnabled(ctx context.Context) (bool, error) {
	val, ok, err := s.kv.Get(ctx, KeyAutoSyncEnabled)
	if err != nil {
		return false, err
	}
	if !ok {
		return true, nil
	}
	return val == "true" || val == "1", nil
}

// SetAutoSyncEnabled stores the admin toggle.
func (s *SyncSettings) SetAutoSyncEnabled(ctx context.Context, enabled bool) error {
	return s.kv.Put(ctx, KeyAutoSyncEnabled, strconv.FormatBool(enabled))
}

// SyncInterval returns the admin-tuned interval, floored at MinSyncInterval.
func (s *SyncSettings) SyncInterval(ctx context.Context) (time.Duration, error) {
	val, ok, err := s.kv.Get(ctx, KeySyncIntervalMinutes)
	if err != nil {
		return 0, err
	}
	if !ok {
		return DefaultSyncInterval, nil
	}
	minutes, perr := strconv.Atoi(val)
	if perr != nil || minutes <= 0 {
		return DefaultSyncInterval, nil
	}
	interval := time.Duration(minutes) * time.Minute
	if interval < MinSyncInterval {
		interval = MinSyncInterval
	}
	return interval, nil
}

// SetSyncIntervalMinutes stores the admin-tuned interval.
func (s *SyncSettings) SetSyncIntervalMinutes(ctx context.Context, minutes int) error {
	return s.kv.Put(ctx, KeySyncIntervalMinutes, strconv.Itoa(minutes))
}

// LastExportAt returns the export watermark, zero when never exported.
func (s *SyncSettings) LastExportAt(ctx context.Context) (time.Time, error) {
	return s.timestamp(ctx, KeyLastExportAt)
}

// SetLastExportAt advances the export watermark.
func (s *SyncSettings) SetLastExportAt(ctx context.Context, t time.Time) error {
	return s.kv.Put(ctx, KeyLastExportAt, t.UTC().Format(time.RFC3339Nano))
}

// LastImportAt returns the import watermark, zero when never imported.
func (s *SyncSettings) LastImportAt(ctx context.Context) (time.Time, error) {
	return s.timestamp(ctx, KeyLastImportAt)
}

// SetLastImportAt advances the import watermark.
func (s *SyncSettings) SetLastImportAt(ctx context.Context, t time.Time) error {
	return s.kv.Put(ctx, KeyLastImportAt, t.UTC().Format(time.RFC3339Nano))
}

func (s *SyncSettings) timestamp(ctx context.Context, key string) (time.Time, error) {
	val, ok, err := s.kv.Get(ctx, key)
	if err != nil {
		return time.Time{}, err
	}
	if !ok || val == "" {
		return time.Time{}, nil
	}
	t, perr := time.Parse(time.RFC3339Nano, val)
	if perr != nil {
		// Unreadable watermark means re-import from the beginning, which
		// the dedup fold tolerates.
		return time.Time{}, nil
	}
	return t.UTC(), nil
}
