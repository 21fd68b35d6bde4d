package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/studyloop/reminder-service/internal/cache"
	"github.com/studyloop/reminder-service/internal/models"
	"github.com/studyloop/reminder-service/internal/scheduler"
	"github.com/studyloop/reminder-service/internal/store"
)

// ReminderHandler exposes the in-app notification surface: listing,
// unread count and the lifecycle actions.
type ReminderHandler struct {
	st     store.Store
	sched  *scheduler.Service
	unread *cache.UnreadCache
	log    *zap.Logger
}

// New builds the handler. unread may be nil when no redis is wired
// (tests); the count then always comes from the store.
func New(st store.Store, sched *scheduler.Service, unread *cache.UnreadCache, log *zap.Logger) *ReminderHandler {
	return &ReminderHandler{st: st, sched: sched, unread: unread, log: log}
}

// Routes mounts the reminder endpoints on an authenticated group.
func (h *ReminderHandler) Routes(g *gin.RouterGroup) {
	g.GET("/reminders", h.List)
	g.GET("/reminders/unread-count", h.UnreadCount)
	g.POST("/reminders", h.Create)
	g.POST("/reminders/:id/read", h.MarkRead)
	g.POST("/reminders/:id/dismiss", h.Dismiss)
	g.POST("/reminders/dismiss-all", h.DismissAll)
	g.POST("/activity", h.RecordActivity)
	g.POST("/quiz-attempts", h.RecordQuizAttempt)
}

// List returns the acting user's reminders, optionally filtered by
// ?status=.
func (h *ReminderHandler) List(c *gin.Context) {
	userID := c.GetString("user_id")
	status := models.Status(c.Query("status"))
	switch status {
	case "", models.StatusPending, models.StatusSent, models.StatusRead, models.StatusDismissed:
	default:
		c.JSON(http.StatusBadRequest, models.APIResponse{
			Success: false,
			Error:   "unknown status filter",
			Message: "Invalid Request",
		})
		return
	}

	reminders, err := h.st.ListReminders(c.Request.Context(), userID, status)
	if err != nil {
		h.internalError(c, "list reminders", err)
		return
	}
	c.JSON(http.StatusOK, models.APIResponse{
		Success: true,
		Message: "OK",
		Data:    reminders,
	})
}

// UnreadCount returns how many delivered reminders the user has not
// read yet.
func (h *ReminderHandler) UnreadCount(c *gin.Context) {
	ctx := c.Request.Context()
	userID := c.GetString("user_id")

	if h.unread != nil {
		if n, ok := h.unread.Get(ctx, userID); ok {
			c.JSON(http.StatusOK, models.APIResponse{
				Success: true,
				Message: "OK",
				Data:    gin.H{"unread": n},
			})
			return
		}
	}

	n, err := h.st.UnreadCount(ctx, userID)
	if err != nil {
		h.internalError(c, "unread count", err)
		return
	}
	if h.unread != nil {
		h.unread.Set(ctx, userID, n)
	}
	c.JSON(http.StatusOK, models.APIResponse{
		Success: true,
		Message: "OK",
		Data:    gin.H{"unread": n},
	})
}

// Create schedules a reminder for the externally-analyzed types
// (streak milestones, break encouragement). Ordinary daily types are
// produced by the cron scheduling pass, not this endpoint.
func (h *ReminderHandler) Create(c *gin.Context) {
	var req models.CreateReminderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.APIResponse{
			Success: false,
			Error:   err.Error(),
			Message: "Invalid Request Body",
		})
		return
	}

	r, err := h.sched.ScheduleCustom(c.Request.Context(), &req, time.Now())
	switch {
	case errors.Is(err, models.ErrUnknownType), errors.Is(err, models.ErrUnknownChannel):
		c.JSON(http.StatusBadRequest, models.APIResponse{
			Success: false,
			Error:   err.Error(),
			Message: "Invalid Request Body",
		})
		return
	case errors.Is(err, models.ErrNotFound):
		c.JSON(http.StatusNotFound, models.APIResponse{
			Success: false,
			Error:   "user not found",
			Message: "Not Found",
		})
		return
	case err != nil:
		h.internalError(c, "create reminder", err)
		return
	}
	if r == nil {
		c.JSON(http.StatusOK, models.APIResponse{
			Success: true,
			Message: "Reminder already scheduled today",
		})
		return
	}
	c.JSON(http.StatusCreated, models.APIResponse{
		Success: true,
		Message: "Reminder scheduled",
		Data:    r,
	})
}

// loadOwned fetches a reminder and enforces that it belongs to the
// acting user. An ownership mismatch is a hard 403, never a silent
// no-op.
func (h *ReminderHandler) loadOwned(c *gin.Context) (*models.Reminder, bool) {
	userID := c.GetString("user_id")
	r, err := h.st.GetReminder(c.Request.Context(), c.Param("id"))
	if errors.Is(err, models.ErrNotFound) {
		c.JSON(http.StatusNotFound, models.APIResponse{
			Success: false,
			Error:   "reminder not found",
			Message: "Not Found",
		})
		return nil, false
	}
	if err != nil {
		h.internalError(c, "load reminder", err)
		return nil, false
	}
	if r.UserID != userID {
		c.JSON(http.StatusForbidden, models.APIResponse{
			Success: false,
			Error:   models.ErrForbidden.Error(),
			Message: "Access Denied",
		})
		return nil, false
	}
	return r, true
}

// MarkRead transitions pending/sent → read and records read_at.
func (h *ReminderHandler) MarkRead(c *gin.Context) {
	r, ok := h.loadOwned(c)
	if !ok {
		return
	}
	if err := r.MarkRead(time.Now()); err != nil {
		c.JSON(http.StatusConflict, models.APIResponse{
			Success: false,
			Error:   err.Error(),
			Message: "Conflict",
		})
		return
	}
	if err := h.st.SaveLifecycle(c.Request.Context(), r); err != nil {
		h.internalError(c, "save read", err)
		return
	}
	h.invalidateUnread(c.Request.Context(), r.UserID)
	c.JSON(http.StatusOK, models.APIResponse{
		Success: true,
		Message: "Reminder marked read",
		Data:    r,
	})
}

// Dismiss moves the reminder to its terminal state. Dismissing twice is
// a no-op that still reports dismissed.
func (h *ReminderHandler) Dismiss(c *gin.Context) {
	r, ok := h.loadOwned(c)
	if !ok {
		return
	}
	r.Dismiss()
	if err := h.st.SaveLifecycle(c.Request.Context(), r); err != nil {
		h.internalError(c, "save dismiss", err)
		return
	}
	h.invalidateUnread(c.Request.Context(), r.UserID)
	c.JSON(http.StatusOK, models.APIResponse{
		Success: true,
		Message: "Reminder dismissed",
		Data:    r,
	})
}

// DismissAll bulk-dismisses every non-dismissed reminder of the acting
// user.
func (h *ReminderHandler) DismissAll(c *gin.Context) {
	userID := c.GetString("user_id")
	n, err := h.st.DismissAll(c.Request.Context(), userID, time.Now())
	if err != nil {
		h.internalError(c, "dismiss all", err)
		return
	}
	h.invalidateUnread(c.Request.Context(), userID)
	c.JSON(http.StatusOK, models.APIResponse{
		Success: true,
		Message: "Reminders dismissed",
		Data:    gin.H{"dismissed": n},
	})
}

type recordActivityRequest struct {
	Kind string `json:"kind" binding:"required"`
}

// RecordActivity appends a qualifying study action for the acting user.
// The activity log feeds window inference and the studied-today checks.
func (h *ReminderHandler) RecordActivity(c *gin.Context) {
	var req recordActivityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.APIResponse{
			Success: false,
			Error:   err.Error(),
			Message: "Invalid Request Body",
		})
		return
	}
	e := &models.ActivityEvent{
		UserID:     c.GetString("user_id"),
		Kind:       req.Kind,
		OccurredAt: time.Now(),
	}
	if err := h.st.AddActivity(c.Request.Context(), e); err != nil {
		h.internalError(c, "record activity", err)
		return
	}
	c.JSON(http.StatusCreated, models.APIResponse{
		Success: true,
		Message: "Activity recorded",
	})
}

type recordQuizAttemptRequest struct {
	Percentage float64 `json:"percentage" binding:"min=0,max=100"`
	Passed     bool    `json:"passed"`
}

// RecordQuizAttempt stores a quiz outcome for the acting user. Failed
// attempts make the life-refill rule eligible on the next pass.
func (h *ReminderHandler) RecordQuizAttempt(c *gin.Context) {
	var req recordQuizAttemptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.APIResponse{
			Success: false,
			Error:   err.Error(),
			Message: "Invalid Request Body",
		})
		return
	}
	a := &models.QuizAttempt{
		ID:          uuid.New().String(),
		UserID:      c.GetString("user_id"),
		Percentage:  req.Percentage,
		Passed:      req.Passed,
		AttemptedAt: time.Now(),
	}
	if err := h.st.AddQuizAttempt(c.Request.Context(), a); err != nil {
		h.internalError(c, "record quiz attempt", err)
		return
	}
	c.JSON(http.StatusCreated, models.APIResponse{
		Success: true,
		Message: "Quiz attempt recorded",
	})
}

func (h *ReminderHandler) invalidateUnread(ctx context.Context, userID string) {
	if h.unread != nil {
		h.unread.Invalidate(ctx, userID)
	}
}

func (h *ReminderHandler) internalError(c *gin.Context, op string, err error) {
	h.log.Error(op+" failed", zap.Error(err))
	c.JSON(http.StatusInternalServerError, models.APIResponse{
		Success: false,
		Error:   "internal error",
		Message: "Internal Server Error",
	})
}
