package handlers

import (
	"log/slog"
	"net/http"

	portssvc "github.com/SscSPs/agent_governance/internal/core/ports/services"
	"github.com/SscSPs/agent_governance/internal/dto"
	"github.com/SscSPs/agent_governance/internal/middleware"
	"github.com/SscSPs/agent_governance/internal/utils"
	"github.com/gin-gonic/gin"
)

// approvalHandler handles HTTP requests related to the approval gate.
type approvalHandler struct {
	approvalService portssvc.ApprovalSvcFacade
	posthogClient   *utils.PosthogClientWrapper
}

// RegisterApprovalRoutes registers routes related to approval settings and requests.
func RegisterApprovalRoutes(rg *gin.RouterGroup, approvalService portssvc.ApprovalSvcFacade, posthogClient *utils.PosthogClientWrapper) {
	h := &approvalHandler{approvalService: approvalService, posthogClient: posthogClient}

	approvals := rg.Group("/approvals")
	{
		approvals.GET("/settings", h.getSettings)
		approvals.PUT("/settings", h.updateSettings)
		approvals.POST("/decide", h.decide)
		approvals.POST("", h.createApproval)
		approvals.GET("", h.listApprovals)
		approvals.GET("/:approvalID", h.getApproval)
		approvals.POST("/:approvalID/approve", h.approve)
		approvals.POST("/:approvalID/reject", h.reject)
	}
}

// getSettings godoc
// @Summary Get approval settings
// @Description Returns the caller's approval settings, creating defaults on first use
// @Tags approvals
// @Produce  json
// @Success 200 {object} domain.ApprovalSettings
// @Failure 401 {object} map[string]string "Unauthorized"
// @Failure 500 {object} map[string]string "Failed to retrieve approval settings"
// @Security BearerAuth
// @Router /approvals/settings [get]
func (h *approvalHandler) getSettings(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	settings, err := h.approvalService.GetSettings(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err, "Failed to retrieve approval settings")
		return
	}
	c.JSON(http.StatusOK, settings)
}

// updateSettings godoc
// @Summary Update approval settings
// @Description Applies the provided fields to the caller's approval settings
// @Tags approvals
// @Accept  json
// @Produce  json
// @Param   settings body dto.UpdateApprovalSettingsRequest true "Fields to change"
// @Success 200 {object} domain.ApprovalSettings
// @Failure 400 {object} map[string]string "Invalid input format or validation error"
// @Failure 401 {object} map[string]string "Unauthorized"
// @Failure 500 {object} map[string]string "Failed to update approval settings"
// @Security BearerAuth
// @Router /approvals/settings [put]
func (h *approvalHandler) updateSettings(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	var req dto.UpdateApprovalSettingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err, "UpdateApprovalSettings")
		return
	}
	settings, err := h.approvalService.UpdateSettings(c.Request.Context(), userID, req)
	if err != nil {
		respondError(c, err, "Failed to update approval settings")
		return
	}
	middleware.GetLoggerFromCtx(c.Request.Context()).Info("Approval settings updated")
	c.JSON(http.StatusOK, settings)
}

// decide godoc
// @Summary Decide whether an action needs approval
// @Description A required approval is reported in the body with status 200, not as an error
// @Tags approvals
// @Accept  json
// @Produce  json
// @Param   decision body dto.DecideRequest true "Action and estimated amount"
// @Success 200 {object} domain.ApprovalDecision
// @Failure 400 {object} map[string]string "Invalid input format or validation error"
// @Failure 401 {object} map[string]string "Unauthorized"
// @Failure 500 {object} map[string]string "Failed to evaluate approval requirement"
// @Security BearerAuth
// @Router /approvals/decide [post]
func (h *approvalHandler) decide(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	var req dto.DecideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err, "DecideRequest")
		return
	}
	decision, err := h.approvalService.Decide(c.Request.Context(), userID, req.ActionType, req.EstimatedAmount)
	if err != nil {
		respondError(c, err, "Failed to evaluate approval requirement")
		return
	}
	c.JSON(http.StatusOK, decision)
}

// createApproval godoc
// @Summary Create an approval request
// @Description Opens a pending approval request and notifies the session when enabled
// @Tags approvals
// @Accept  json
// @Produce  json
// @Param   approval body dto.CreateApprovalRequest true "Approval request details"
// @Success 201 {object} domain.PendingApproval
// @Failure 400 {object} map[string]string "Invalid input format or validation error"
// @Failure 401 {object} map[string]string "Unauthorized"
// @Failure 500 {object} map[string]string "Failed to create approval request"
// @Security BearerAuth
// @Router /approvals [post]
func (h *approvalHandler) createApproval(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	var req dto.CreateApprovalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err, "CreateApprovalRequest")
		return
	}
	approval, err := h.approvalService.CreateApprovalRequest(c.Request.Context(), userID, req)
	if err != nil {
		respondError(c, err, "Failed to create approval request")
		return
	}
	middleware.GetLoggerFromCtx(c.Request.Context()).Info("Approval request created",
		slog.String("approval_id", approval.ApprovalID), slog.String("action", string(approval.ActionType)))
	c.JSON(http.StatusCreated, approval)
}

// listApprovals godoc
// @Summary List approval requests
// @Tags approvals
// @Produce  json
// @Param   status query string false "Filter by status (pending, approved, rejected, expired)"
// @Param   limit query int false "Limit number of results" default(20)
// @Param   offset query int false "Offset for pagination" default(0)
// @Success 200 {object} dto.ListApprovalsResponse
// @Failure 400 {object} map[string]string "Invalid input format or validation error"
// @Failure 401 {object} map[string]string "Unauthorized"
// @Failure 500 {object} map[string]string "Failed to list approvals"
// @Security BearerAuth
// @Router /approvals [get]
func (h *approvalHandler) listApprovals(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	var params dto.ListApprovalsParams
	if err := c.ShouldBindQuery(&params); err != nil {
		bindError(c, err, "ListApprovalsParams")
		return
	}
	resp, err := h.approvalService.ListApprovals(c.Request.Context(), userID, params)
	if err != nil {
		respondError(c, err, "Failed to list approvals")
		return
	}
	c.JSON(http.StatusOK, resp)
}

// getApproval godoc
// @Summary Get an approval request by ID
// @Tags approvals
// @Produce  json
// @Param   approvalID path string true "Approval ID"
// @Success 200 {object} domain.PendingApproval
// @Failure 401 {object} map[string]string "Unauthorized"
// @Failure 404 {object} map[string]string "Approval not found"
// @Failure 500 {object} map[string]string "Failed to retrieve approval"
// @Security BearerAuth
// @Router /approvals/{approvalID} [get]
func (h *approvalHandler) getApproval(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	approval, err := h.approvalService.GetApproval(c.Request.Context(), userID, c.Param("approvalID"))
	if err != nil {
		respondError(c, err, "Failed to retrieve approval")
		return
	}
	c.JSON(http.StatusOK, approval)
}

// approve godoc
// @Summary Approve a pending request
// @Tags approvals
// @Accept  json
// @Produce  json
// @Param   approvalID path string true "Approval ID"
// @Param   notes body dto.ResolveApprovalRequest false "Reviewer notes"
// @Success 200 {object} domain.PendingApproval
// @Failure 400 {object} map[string]string "Invalid input format or validation error"
// @Failure 401 {object} map[string]string "Unauthorized"
// @Failure 403 {object} map[string]string "Forbidden (another user's approval)"
// @Failure 404 {object} map[string]string "Approval not found"
// @Failure 409 {object} map[string]string "Approval expired or already resolved"
// @Failure 500 {object} map[string]string "Failed to resolve approval"
// @Security BearerAuth
// @Router /approvals/{approvalID}/approve [post]
func (h *approvalHandler) approve(c *gin.Context) {
	h.resolve(c, true)
}

// reject godoc
// @Summary Reject a pending request
// @Tags approvals
// @Accept  json
// @Produce  json
// @Param   approvalID path string true "Approval ID"
// @Param   notes body dto.ResolveApprovalRequest false "Reviewer notes"
// @Success 200 {object} domain.PendingApproval
// @Failure 400 {object} map[string]string "Invalid input format or validation error"
// @Failure 401 {object} map[string]string "Unauthorized"
// @Failure 403 {object} map[string]string "Forbidden (another user's approval)"
// @Failure 404 {object} map[string]string "Approval not found"
// @Failure 409 {object} map[string]string "Approval expired or already resolved"
// @Failure 500 {object} map[string]string "Failed to resolve approval"
// @Security BearerAuth
// @Router /approvals/{approvalID}/reject [post]
func (h *approvalHandler) reject(c *gin.Context) {
	h.resolve(c, false)
}

func (h *approvalHandler) resolve(c *gin.Context, approve bool) {
	reviewerID, ok := requireUser(c)
	if !ok {
		return
	}
	var req dto.ResolveApprovalRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			bindError(c, err, "ResolveApprovalRequest")
			return
		}
	}

	approvalID := c.Param("approvalID")
	resolve := h.approvalService.RejectAction
	if approve {
		resolve = h.approvalService.ApproveAction
	}
	approval, err := resolve(c.Request.Context(), approvalID, reviewerID, req.Notes)
	if err != nil {
		respondError(c, err, "Failed to resolve approval")
		return
	}

	middleware.GetLoggerFromCtx(c.Request.Context()).Info("Approval resolved",
		slog.String("approval_id", approvalID), slog.String("status", string(approval.Status)))
	middleware.PosthogEvent(c, h.posthogClient, middleware.EventApprovalResolved, map[string]any{
		"approval_id": approvalID,
		"action":      string(approval.ActionType),
		"status":      string(approval.Status),
	})
	c.JSON(http.StatusOK, approval)
}
