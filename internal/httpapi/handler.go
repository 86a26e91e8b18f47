package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"shiftboard/internal/attendance"
	"shiftboard/internal/auth"
	"shiftboard/internal/config"
	"shiftboard/internal/roster"
	"shiftboard/internal/settings"
	"shiftboard/internal/sheetsync"
)

// Handler carries the handlers' dependencies.
type Handler struct {
	cfg      config.App
	log      *logrus.Logger
	students *roster.Repository
	records  *attendance.Repository
	taps     *attendance.Service
	sync     *sheetsync.Syncer
	syncCfg  *settings.SyncSettings
	loc      *time.Location
}

// New wires a handler set.
func New(cfg config.App, log *logrus.Logger, students *roster.Repository, records *attendance.Repository, taps *attendance.Service, sync *sheetsync.Syncer, syncCfg *settings.SyncSettings, loc *time.Location) *Handler {
	if loc == nil {
		loc = time.UTC
	}
	return &Handler{
		cfg:      cfg,
		log:      log,
		students: students,
		records:  records,
		taps:     taps,
		sync:     sync,
		syncCfg:  syncCfg,
		loc:      loc,
	}
}

// Login exchanges the admin credentials for a JWT pair.
func (h *Handler) Login(c *gin.Context) {
	var req struct {
		Username string `json:"username" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if h.cfg.AdminPasswordHash == "" {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "admin login not configured"})
		return
	}
	if req.Username != h.cfg.AdminUser ||
		bcrypt.CompareHashAndPassword([]byte(h.cfg.AdminPasswordHash), []byte(req.Password)) != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}

	session, err := auth.Issue(req.Username, auth.RoleAdmin, h.cfg.JWTIssuer, h.cfg.JWTSigningKey, h.cfg.SessionTTL)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token issue failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"access_token": session.Token,
		"expires_at":   session.ExpiresAt.Unix(),
	})
}

// Tap records a kiosk tap for a student, by id or by name.
func (h *Handler) Tap(c *gin.Context) {
	var req struct {
		StudentID int64  `json:"student_id"`
		Name      string `json:"name"`
		Subteam   string `json:"subteam"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.StudentID == 0 && req.Name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "student_id or name required"})
		return
	}

	ctx := c.Request.Context()
	if req.StudentID == 0 {
		st, _, err := h.students.Ensure(ctx, req.Name, req.Subteam)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		req.StudentID = st.ID
	} else if _, err := h.students.GetByID(ctx, req.StudentID); err != nil {
		if errors.Is(err, roster.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "student not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	rec, err := h.taps.Tap(ctx, req.StudentID, req.Subteam)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"record": rec, "present": rec.Open()})
}

// ListAttendance returns the ledger for one day. Student-facing: it kicks an
// opportunistic sheet import first so the page reads fresh data.
func (h *Handler) ListAttendance(c *gin.Context) {
	ctx := c.Request.Context()
	h.sync.MaybeImport(ctx)

	day := time.Now().In(h.loc)
	if v := c.Query("date"); v != "" {
		parsed, err := time.ParseInLocation("2006-01-02", v, h.loc)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "date must be YYYY-MM-DD"})
			return
		}
		day = parsed
	}
	day = time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)

	recs, err := h.records.ListByDay(ctx, day)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"date": day.Format("2006-01-02"), "records": recs})
}

// Leaderboard ranks students by hours over a trailing window. Student-facing
// like ListAttendance, so it also kicks an opportunistic import.
func (h *Handler) Leaderboard(c *gin.Context) {
	ctx := c.Request.Context()
	h.sync.MaybeImport(ctx)

	days := 30
	if v := c.Query("days"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			days = parsed
		}
	}
	since := time.Now().UTC().AddDate(0, 0, -days)

	standings, err := h.records.Leaderboard(ctx, since)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"since": since, "standings": standings})
}

// ListStudents returns the roster.
func (h *Handler) ListStudents(c *gin.Context) {
	students, err := h.students.List(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"students": students})
}

// CreateStudent adds a roster entry (admin).
func (h *Handler) CreateStudent(c *gin.Context) {
	var req struct {
		Name    string `json:"name" binding:"required"`
		Subteam string `json:"subteam"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	st, created, err := h.students.Ensure(c.Request.Context(), req.Name, req.Subteam)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	c.JSON(status, st)
}

// GetSyncSettings reports the admin sync toggles and watermarks.
func (h *Handler) GetSyncSettings(c *gin.Context) {
	ctx := c.Request.Context()
	enabled, err := h.syncCfg.AutoSyncEnabled(ctx)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	interval, err := h.syncCfg.SyncInterval(ctx)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	lastExport, _ := h.syncCfg.LastExportAt(ctx)
	lastImport, _ := h.syncCfg.LastImportAt(ctx)

	c.JSON(http.StatusOK, gin.H{
		"configured":       h.sync.Configured(),
		"enabled":          enabled,
		"interval_minutes": int(interval.Minutes()),
		"last_export_at":   nullableTime(lastExport),
		"last_import_at":   nullableTime(lastImport),
	})
}

// PutSyncSettings updates the admin sync toggles.
func (h *Handler) PutSyncSettings(c *gin.Context) {
	var req struct {
		Enabled         *bool `json:"enabled"`
		IntervalMinutes *int  `json:"interval_minutes"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	ctx := c.Request.Context()
	if req.Enabled != nil {
		if err := h.syncCfg.SetAutoSyncEnabled(ctx, *req.Enabled); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
	}
	if req.IntervalMinutes != nil {
		if *req.IntervalMinutes <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "interval_minutes must be positive"})
			return
		}
		if err := h.syncCfg.SetSyncIntervalMinutes(ctx, *req.IntervalMinutes); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
	}
	h.GetSyncSettings(c)
}

// ManualSync runs a full export-then-import cycle for an administrator.
func (h *Handler) ManualSync(c *gin.Context) {
	if id, ok := auth.IdentityFrom(c); ok {
		h.log.WithFields(logrus.Fields{"subject": id.Subject, "via": id.Via}).Info("manual sync requested")
	}
	summary, err := h.sync.RunManual(c.Request.Context())
	if err != nil {
		if errors.Is(err, sheetsync.ErrNotConfigured) {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Google Sheets is not configured. Set SHEETS_SPREADSHEET_ID and credentials."})
			return
		}
		c.JSON(http.StatusBadGateway, gin.H{"error": "Sync failed: " + err.Error()})
		return
	}
	c.JSON(http.StatusOK, summary)
}

// CronSync is the scheduled-caller surface; it may report a skip instead of
// syncing.
func (h *Handler) CronSync(c *gin.Context) {
	if id, ok := auth.IdentityFrom(c); ok {
		h.log.WithFields(logrus.Fields{"subject": id.Subject, "via": id.Via}).Info("scheduled sync requested")
	}
	summary, err := h.sync.RunScheduled(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "Sync failed: " + err.Error()})
		return
	}
	c.JSON(http.StatusOK, summary)
}

func nullableTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}
