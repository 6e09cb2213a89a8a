package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"streakguard/internal/database"
	"streakguard/internal/logger"
	"streakguard/internal/services"
	"streakguard/internal/utils"
)

type errorResponse struct {
	Success bool   `json:"success"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type useShieldRequest struct {
	HabitID string `json:"habitId" binding:"required"`
	Date    string `json:"date"`
}

type useFreezeRequest struct {
	HabitID   string `json:"habitId" binding:"required"`
	Days      int    `json:"days"`
	StartDate string `json:"startDate"`
}

type useReviveRequest struct {
	HabitID string `json:"habitId" binding:"required"`
	Date    string `json:"date"`
}

type settingsRequest struct {
	Enabled                *bool   `json:"enabled"`
	AutoUseShield          *bool   `json:"autoUseShield"`
	MinStreakToAutoProtect *int    `json:"minStreakToAutoProtect"`
	NotificationTime       *string `json:"notificationTime"`
}

type inventoryResponse struct {
	Inventory    database.Inventory   `json:"inventory"`
	UsageHistory []database.ItemUsage `json:"usageHistory"`
}

func statusFor(kind services.ErrorKind) int {
	switch kind {
	case services.KindNotFound:
		return http.StatusNotFound
	case services.KindConflict, services.KindInsufficientInventory:
		return http.StatusConflict
	case services.KindOutOfRange:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusBadRequest
	}
}

// respondError writes the structured failure body. Non-action errors are
// logged and hidden behind a generic message.
func respondError(c *gin.Context, err error) {
	if ae, ok := services.AsActionError(err); ok {
		c.JSON(statusFor(ae.Kind), errorResponse{Success: false, Code: ae.Code, Message: ae.Message})
		return
	}
	logger.Error("request failed", "path", c.FullPath(), "user_id", currentUser(c),
		"request_id", c.GetString(requestIDKey), "error", err)
	c.JSON(http.StatusInternalServerError, errorResponse{Success: false, Code: "INTERNAL", Message: "Internal server error"})
}

func badRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, errorResponse{Success: false, Code: "VALIDATION_ERROR", Message: message})
}

// parseDate accepts "YYYY-MM-DD" or an RFC3339 timestamp, which is mapped to
// its calendar day in loc. Empty means unset.
func parseDate(s string, loc *time.Location) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	if d, err := utils.ParseDate(s); err == nil {
		return &d, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil, err
	}
	d := utils.LocalDay(t, loc)
	return &d, nil
}

func (h *Handlers) UseShield(c *gin.Context) {
	var req useShieldRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "habitId is required")
		return
	}
	date, err := parseDate(req.Date, h.services.Location())
	if err != nil {
		badRequest(c, "date must be YYYY-MM-DD")
		return
	}

	res, err := h.services.Recovery.UseShield(c.Request.Context(), currentUser(c), req.HabitID, date)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "tracking": res.Tracking, "habit": res.Streak, "inventory": res.Inventory})
}

func (h *Handlers) UseFreeze(c *gin.Context) {
	var req useFreezeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "habitId is required")
		return
	}
	start, err := parseDate(req.StartDate, h.services.Location())
	if err != nil {
		badRequest(c, "startDate must be YYYY-MM-DD")
		return
	}

	res, err := h.services.Recovery.UseFreezeToken(c.Request.Context(), currentUser(c), req.HabitID, req.Days, start)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":       true,
		"frozenDays":    res.FrozenDays,
		"requestedDays": res.RequestedDays,
		"tokensSpent":   res.TokensSpent,
		"habit":         res.Streak,
		"inventory":     res.Inventory,
	})
}

func (h *Handlers) UseRevive(c *gin.Context) {
	var req useReviveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "habitId is required")
		return
	}
	date, err := parseDate(req.Date, h.services.Location())
	if err != nil {
		badRequest(c, "date must be YYYY-MM-DD")
		return
	}

	res, err := h.services.Recovery.UseReviveToken(c.Request.Context(), currentUser(c), req.HabitID, date)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":       true,
		"protectedDate": utils.FormatDate(res.ProtectedDate),
		"habit":         res.Streak,
		"inventory":     res.Inventory,
	})
}

func (h *Handlers) GetInventory(c *gin.Context) {
	ctx := c.Request.Context()
	userID := currentUser(c)

	inv, err := h.services.Inventory.Snapshot(ctx, userID)
	if err != nil {
		respondError(c, err)
		return
	}
	history, err := h.services.Inventory.History(ctx, userID, services.UsageHistoryLimit)
	if err != nil {
		respondError(c, err)
		return
	}
	if history == nil {
		history = []database.ItemUsage{}
	}
	c.JSON(http.StatusOK, inventoryResponse{Inventory: inv, UsageHistory: history})
}

func (h *Handlers) GetSettings(c *gin.Context) {
	settings, err := h.services.Settings.Get(c.Request.Context(), currentUser(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, settings)
}

// UpdateSettings applies only the fields present in the body.
func (h *Handlers) UpdateSettings(c *gin.Context) {
	var req settingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid settings body")
		return
	}

	ctx := c.Request.Context()
	userID := currentUser(c)
	settings, err := h.services.Settings.Get(ctx, userID)
	if err != nil {
		respondError(c, err)
		return
	}
	if req.Enabled != nil {
		settings.Enabled = *req.Enabled
	}
	if req.AutoUseShield != nil {
		settings.AutoUseShield = *req.AutoUseShield
	}
	if req.MinStreakToAutoProtect != nil {
		settings.MinStreakToAutoProtect = *req.MinStreakToAutoProtect
	}
	if req.NotificationTime != nil {
		settings.NotificationTime = *req.NotificationTime
	}

	if err := h.services.Settings.Update(ctx, userID, settings); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, settings)
}

func (h *Handlers) GetHabitStats(c *gin.Context) {
	days := 0
	if raw := c.Query("days"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			badRequest(c, "days must be a number")
			return
		}
		days = n
	}

	stats, err := h.services.Stats.GetHabitStats(c.Request.Context(), currentUser(c), c.Param("id"), days)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}
