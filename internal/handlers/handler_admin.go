package handlers

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	portssvc "github.com/SscSPs/agent_governance/internal/core/ports/services"
	"github.com/SscSPs/agent_governance/internal/dto"
	"github.com/SscSPs/agent_governance/internal/middleware"
	"github.com/SscSPs/agent_governance/internal/utils"
	"github.com/gin-gonic/gin"
)

// adminHandler handles operator-only requests. Every route acts on the user named in the path.
type adminHandler struct {
	quotaService    portssvc.QuotaWriterSvc
	approvalService portssvc.ApprovalWriterSvc
	posthogClient   *utils.PosthogClientWrapper
}

// RegisterAdminRoutes registers the admin routes. The group must already enforce admin access.
func RegisterAdminRoutes(
	rg *gin.RouterGroup,
	quotaService portssvc.QuotaWriterSvc,
	approvalService portssvc.ApprovalWriterSvc,
	posthogClient *utils.PosthogClientWrapper,
) {
	h := &adminHandler{quotaService: quotaService, approvalService: approvalService, posthogClient: posthogClient}

	users := rg.Group("/users/:userID")
	{
		users.POST("/emergency-stop", h.enableEmergencyStop)
		users.DELETE("/emergency-stop", h.disableEmergencyStop)
		users.POST("/usage/reset", h.resetUsage)
	}
	rg.POST("/approvals/expire", h.expireApprovals)
}

// enableEmergencyStop godoc
// @Summary Enable emergency stop
// @Description Denies every action for the user until disabled
// @Tags admin
// @Accept  json
// @Produce  json
// @Param   userID path string true "Target user ID"
// @Param   stop body dto.EmergencyStopRequest true "Reason"
// @Success 200 {object} domain.AgentQuotas
// @Failure 400 {object} map[string]string "Invalid input format or validation error"
// @Failure 401 {object} map[string]string "Unauthorized"
// @Failure 403 {object} map[string]string "Admin access required"
// @Failure 500 {object} map[string]string "Failed to enable emergency stop"
// @Security BearerAuth
// @Router /admin/users/{userID}/emergency-stop [post]
func (h *adminHandler) enableEmergencyStop(c *gin.Context) {
	actorID, ok := requireUser(c)
	if !ok {
		return
	}
	var req dto.EmergencyStopRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err, "EmergencyStopRequest")
		return
	}
	targetUserID := c.Param("userID")
	quotas, err := h.quotaService.EnableEmergencyStop(c.Request.Context(), targetUserID, req.Reason, actorID)
	if err != nil {
		respondError(c, err, "Failed to enable emergency stop")
		return
	}
	middleware.GetLoggerFromCtx(c.Request.Context()).Warn("Emergency stop enabled",
		slog.String("target_user_id", targetUserID), slog.String("reason", req.Reason))
	middleware.PosthogEvent(c, h.posthogClient, middleware.EventEmergencyStopChanged, map[string]any{
		"target_user_id": targetUserID,
		"enabled":        true,
	})
	c.JSON(http.StatusOK, quotas)
}

// disableEmergencyStop godoc
// @Summary Disable emergency stop
// @Tags admin
// @Produce  json
// @Param   userID path string true "Target user ID"
// @Success 200 {object} domain.AgentQuotas
// @Failure 401 {object} map[string]string "Unauthorized"
// @Failure 403 {object} map[string]string "Admin access required"
// @Failure 500 {object} map[string]string "Failed to disable emergency stop"
// @Security BearerAuth
// @Router /admin/users/{userID}/emergency-stop [delete]
func (h *adminHandler) disableEmergencyStop(c *gin.Context) {
	actorID, ok := requireUser(c)
	if !ok {
		return
	}
	targetUserID := c.Param("userID")
	quotas, err := h.quotaService.DisableEmergencyStop(c.Request.Context(), targetUserID, actorID)
	if err != nil {
		respondError(c, err, "Failed to disable emergency stop")
		return
	}
	middleware.GetLoggerFromCtx(c.Request.Context()).Info("Emergency stop disabled", slog.String("target_user_id", targetUserID))
	middleware.PosthogEvent(c, h.posthogClient, middleware.EventEmergencyStopChanged, map[string]any{
		"target_user_id": targetUserID,
		"enabled":        false,
	})
	c.JSON(http.StatusOK, quotas)
}

// resetUsage godoc
// @Summary Reset daily usage
// @Tags admin
// @Accept  json
// @Produce  json
// @Param   userID path string true "Target user ID"
// @Param   reset body dto.ResetUsageRequest false "Day to reset, defaults to today (UTC)"
// @Success 204 "No Content"
// @Failure 400 {object} map[string]string "Invalid input format or validation error"
// @Failure 401 {object} map[string]string "Unauthorized"
// @Failure 403 {object} map[string]string "Admin access required"
// @Failure 500 {object} map[string]string "Failed to reset usage"
// @Security BearerAuth
// @Router /admin/users/{userID}/usage/reset [post]
func (h *adminHandler) resetUsage(c *gin.Context) {
	actorID, ok := requireUser(c)
	if !ok {
		return
	}
	var req dto.ResetUsageRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		bindError(c, err, "ResetUsageRequest")
		return
	}
	day, err := parseDay(req.Date)
	if err != nil {
		respondError(c, err, "Invalid date")
		return
	}
	targetUserID := c.Param("userID")
	if err := h.quotaService.ResetUsage(c.Request.Context(), targetUserID, day, actorID); err != nil {
		respondError(c, err, "Failed to reset usage")
		return
	}
	middleware.GetLoggerFromCtx(c.Request.Context()).Warn("Usage reset",
		slog.String("target_user_id", targetUserID), slog.String("date", day.Format(dateLayout)))
	middleware.PosthogEvent(c, h.posthogClient, middleware.EventUsageReset, map[string]any{
		"target_user_id": targetUserID,
		"date":           day.Format(dateLayout),
	})
	c.Status(http.StatusNoContent)
}

// expireApprovals godoc
// @Summary Expire stale approvals
// @Description Marks every pending approval past its deadline as expired
// @Tags admin
// @Produce  json
// @Success 200 {object} dto.ExpireApprovalsResponse
// @Failure 401 {object} map[string]string "Unauthorized"
// @Failure 403 {object} map[string]string "Admin access required"
// @Failure 500 {object} map[string]string "Failed to expire approvals"
// @Security BearerAuth
// @Router /admin/approvals/expire [post]
func (h *adminHandler) expireApprovals(c *gin.Context) {
	if _, ok := requireUser(c); !ok {
		return
	}
	expired, err := h.approvalService.ExpireStaleApprovals(c.Request.Context())
	if err != nil {
		respondError(c, err, "Failed to expire approvals")
		return
	}
	c.JSON(http.StatusOK, dto.ExpireApprovalsResponse{Expired: expired})
}
