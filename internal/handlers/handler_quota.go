package handlers

import (
	"fmt"
	"net/http"
	"time"

	"github.com/SscSPs/agent_governance/internal/apperrors"
	portssvc "github.com/SscSPs/agent_governance/internal/core/ports/services"
	"github.com/SscSPs/agent_governance/internal/dto"
	"github.com/SscSPs/agent_governance/internal/middleware"
	"github.com/gin-gonic/gin"
)

const dateLayout = "2006-01-02"

// quotaHandler handles HTTP requests related to quotas and usage.
type quotaHandler struct {
	quotaService portssvc.QuotaSvcFacade
}

// RegisterQuotaRoutes registers the quota and usage routes.
func RegisterQuotaRoutes(rg *gin.RouterGroup, quotaService portssvc.QuotaSvcFacade) {
	h := &quotaHandler{quotaService: quotaService}

	quotas := rg.Group("/quotas")
	{
		quotas.GET("", h.getQuotas)
		quotas.PUT("", h.updateQuotas)
		quotas.GET("/effective", h.getEffectiveQuotas)
		quotas.POST("/check", h.checkQuota)
	}

	usage := rg.Group("/usage")
	{
		usage.GET("", h.getUsage)
		usage.GET("/history", h.getUsageHistory)
		usage.GET("/summary", h.getUsageSummary)
	}
}

// getQuotas godoc
// @Summary Get stored quotas
// @Description Returns the caller's own quota row
// @Tags quotas
// @Produce  json
// @Success 200 {object} domain.AgentQuotas
// @Failure 401 {object} map[string]string "Unauthorized"
// @Failure 500 {object} map[string]string "Failed to retrieve quotas"
// @Security BearerAuth
// @Router /quotas [get]
func (h *quotaHandler) getQuotas(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	quotas, err := h.quotaService.GetQuotas(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err, "Failed to retrieve quotas")
		return
	}
	c.JSON(http.StatusOK, quotas)
}

// updateQuotas godoc
// @Summary Update quotas
// @Description Values above the plan ceiling are clamped to it
// @Tags quotas
// @Accept  json
// @Produce  json
// @Param   quotas body dto.UpdateQuotasRequest true "Limits to change"
// @Success 200 {object} domain.AgentQuotas
// @Failure 400 {object} map[string]string "Invalid input format or validation error"
// @Failure 401 {object} map[string]string "Unauthorized"
// @Failure 500 {object} map[string]string "Failed to update quotas"
// @Security BearerAuth
// @Router /quotas [put]
func (h *quotaHandler) updateQuotas(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	var req dto.UpdateQuotasRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err, "UpdateQuotasRequest")
		return
	}
	quotas, err := h.quotaService.UpdateQuotas(c.Request.Context(), userID, req)
	if err != nil {
		respondError(c, err, "Failed to update quotas")
		return
	}
	middleware.GetLoggerFromCtx(c.Request.Context()).Info("Quotas updated")
	c.JSON(http.StatusOK, quotas)
}

// getEffectiveQuotas godoc
// @Summary Get effective quotas
// @Description Field-wise minimum of the stored quotas and the plan tier
// @Tags quotas
// @Produce  json
// @Success 200 {object} domain.AgentQuotas
// @Failure 401 {object} map[string]string "Unauthorized"
// @Failure 500 {object} map[string]string "Failed to compute effective quotas"
// @Security BearerAuth
// @Router /quotas/effective [get]
func (h *quotaHandler) getEffectiveQuotas(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	quotas, err := h.quotaService.EffectiveQuotas(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err, "Failed to compute effective quotas")
		return
	}
	c.JSON(http.StatusOK, quotas)
}

// checkQuota godoc
// @Summary Check an action against quotas
// @Description Always answers 200; a denial is reported in the body
// @Tags quotas
// @Accept  json
// @Produce  json
// @Param   check body dto.CheckQuotaRequest true "Action and amount"
// @Success 200 {object} domain.QuotaCheckResult
// @Failure 400 {object} map[string]string "Invalid input format or validation error"
// @Failure 401 {object} map[string]string "Unauthorized"
// @Failure 500 {object} map[string]string "Failed to check quota"
// @Security BearerAuth
// @Router /quotas/check [post]
func (h *quotaHandler) checkQuota(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	var req dto.CheckQuotaRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err, "CheckQuotaRequest")
		return
	}
	result, err := h.quotaService.CheckQuota(c.Request.Context(), userID, req.ActionType, req.Amount)
	if err != nil {
		respondError(c, err, "Failed to check quota")
		return
	}
	c.JSON(http.StatusOK, result)
}

// getUsage godoc
// @Summary Get usage for one day
// @Tags usage
// @Produce  json
// @Param   date query string false "UTC day (YYYY-MM-DD), defaults to today"
// @Success 200 {object} domain.AgentUsage
// @Failure 400 {object} map[string]string "Invalid input format or validation error"
// @Failure 401 {object} map[string]string "Unauthorized"
// @Failure 500 {object} map[string]string "Failed to retrieve usage"
// @Security BearerAuth
// @Router /usage [get]
func (h *quotaHandler) getUsage(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	var params dto.UsageParams
	if err := c.ShouldBindQuery(&params); err != nil {
		bindError(c, err, "UsageParams")
		return
	}
	day, err := parseDay(params.Date)
	if err != nil {
		respondError(c, err, "Invalid date")
		return
	}
	usage, err := h.quotaService.GetUsage(c.Request.Context(), userID, day)
	if err != nil {
		respondError(c, err, "Failed to retrieve usage")
		return
	}
	c.JSON(http.StatusOK, usage)
}

// getUsageHistory godoc
// @Summary Get daily usage history
// @Tags usage
// @Produce  json
// @Param   days query int false "Trailing days" default(7)
// @Success 200 {object} dto.UsageHistoryResponse
// @Failure 400 {object} map[string]string "Invalid input format or validation error"
// @Failure 401 {object} map[string]string "Unauthorized"
// @Failure 500 {object} map[string]string "Failed to retrieve usage history"
// @Security BearerAuth
// @Router /usage/history [get]
func (h *quotaHandler) getUsageHistory(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	var params dto.UsageHistoryParams
	if err := c.ShouldBindQuery(&params); err != nil {
		bindError(c, err, "UsageHistoryParams")
		return
	}
	history, err := h.quotaService.GetUsageHistory(c.Request.Context(), userID, params.Days)
	if err != nil {
		respondError(c, err, "Failed to retrieve usage history")
		return
	}
	c.JSON(http.StatusOK, dto.UsageHistoryResponse{Usage: history})
}

// getUsageSummary godoc
// @Summary Get usage summary
// @Description Today's usage next to the effective limits
// @Tags usage
// @Produce  json
// @Success 200 {object} dto.UsageSummaryResponse
// @Failure 401 {object} map[string]string "Unauthorized"
// @Failure 500 {object} map[string]string "Failed to retrieve usage summary"
// @Security BearerAuth
// @Router /usage/summary [get]
func (h *quotaHandler) getUsageSummary(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	summary, err := h.quotaService.GetUsageSummary(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err, "Failed to retrieve usage summary")
		return
	}
	c.JSON(http.StatusOK, summary)
}

// parseDay parses a YYYY-MM-DD date. Empty means today in UTC.
func parseDay(raw string) (time.Time, error) {
	if raw == "" {
		return time.Now().UTC(), nil
	}
	day, err := time.Parse(dateLayout, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: date must be YYYY-MM-DD", apperrors.ErrValidation)
	}
	return day, nil
}
