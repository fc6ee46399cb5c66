package handlers

import (
	"bytes"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/SscSPs/agent_governance/internal/core/domain"
	portssvc "github.com/SscSPs/agent_governance/internal/core/ports/services"
	"github.com/SscSPs/agent_governance/internal/dto"
	"github.com/SscSPs/agent_governance/internal/middleware"
	"github.com/gin-gonic/gin"
)

const defaultStatsWindow = 30 * 24 * time.Hour

// auditHandler handles HTTP requests related to the audit trail.
type auditHandler struct {
	auditService portssvc.AuditSvcFacade
}

// RegisterAuditRoutes registers the read and reversal routes of the audit trail.
func RegisterAuditRoutes(rg *gin.RouterGroup, auditService portssvc.AuditSvcFacade) {
	h := &auditHandler{auditService: auditService}

	audit := rg.Group("/audit")
	{
		audit.GET("", h.listEntries)
		audit.GET("/stats", h.getStats)
		audit.GET("/export", h.exportEntries)
		audit.GET("/:entryID", h.getEntry)
		audit.GET("/:entryID/can-undo", h.canUndo)
		audit.POST("/:entryID/reversal", h.recordReversal)
	}
}

// listEntries godoc
// @Summary List audit entries
// @Description Newest first, paged with an opaque token
// @Tags audit
// @Produce  json
// @Param   action query string false "Filter by action type"
// @Param   workflowID query string false "Filter by workflow"
// @Param   success query bool false "Filter by outcome"
// @Param   from query string false "Lower bound (RFC3339)"
// @Param   to query string false "Upper bound (RFC3339)"
// @Param   limit query int false "Page size" default(50)
// @Param   nextToken query string false "Token from the previous page"
// @Success 200 {object} dto.ListAuditResponse
// @Failure 400 {object} map[string]string "Invalid input format or validation error"
// @Failure 401 {object} map[string]string "Unauthorized"
// @Failure 500 {object} map[string]string "Failed to list audit entries"
// @Security BearerAuth
// @Router /audit [get]
func (h *auditHandler) listEntries(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	var params dto.ListAuditParams
	if err := c.ShouldBindQuery(&params); err != nil {
		bindError(c, err, "ListAuditParams")
		return
	}
	resp, err := h.auditService.ListEntries(c.Request.Context(), userID, params)
	if err != nil {
		respondError(c, err, "Failed to list audit entries")
		return
	}
	c.JSON(http.StatusOK, resp)
}

// getStats godoc
// @Summary Get audit statistics
// @Description Defaults to the trailing 30 days
// @Tags audit
// @Produce  json
// @Param   from query string false "Window start (RFC3339)"
// @Param   to query string false "Window end (RFC3339)"
// @Success 200 {object} domain.AuditStats
// @Failure 400 {object} map[string]string "Invalid input format or validation error"
// @Failure 401 {object} map[string]string "Unauthorized"
// @Failure 500 {object} map[string]string "Failed to compute audit stats"
// @Security BearerAuth
// @Router /audit/stats [get]
func (h *auditHandler) getStats(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	var params dto.AuditStatsParams
	if err := c.ShouldBindQuery(&params); err != nil {
		bindError(c, err, "AuditStatsParams")
		return
	}
	to := time.Now().UTC()
	if params.To != nil {
		to = *params.To
	}
	from := to.Add(-defaultStatsWindow)
	if params.From != nil {
		from = *params.From
	}
	stats, err := h.auditService.GetStats(c.Request.Context(), userID, from, to)
	if err != nil {
		respondError(c, err, "Failed to compute audit stats")
		return
	}
	c.JSON(http.StatusOK, stats)
}

// exportEntries godoc
// @Summary Export audit entries
// @Description The export is rendered in full before it is written, so a failure still yields an error status
// @Tags audit
// @Produce  json,text/csv
// @Param   format query string false "json or csv" default(json)
// @Param   action query string false "Filter by action type"
// @Param   workflowID query string false "Filter by workflow"
// @Param   success query bool false "Filter by outcome"
// @Param   from query string false "Lower bound (RFC3339)"
// @Param   to query string false "Upper bound (RFC3339)"
// @Success 200 {file} file "Exported entries"
// @Failure 400 {object} map[string]string "Invalid input format or validation error"
// @Failure 401 {object} map[string]string "Unauthorized"
// @Failure 500 {object} map[string]string "Failed to export audit entries"
// @Security BearerAuth
// @Router /audit/export [get]
func (h *auditHandler) exportEntries(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	var params dto.ExportAuditParams
	if err := c.ShouldBindQuery(&params); err != nil {
		bindError(c, err, "ExportAuditParams")
		return
	}
	filter := domain.AuditFilter{
		WorkflowID: params.WorkflowID,
		Success:    params.Success,
		From:       params.From,
		To:         params.To,
	}
	if params.Action != nil {
		action := domain.ActionType(*params.Action)
		filter.Action = &action
	}

	format := domain.ExportFormat(params.Format)
	var buf bytes.Buffer
	if err := h.auditService.ExportLogs(c.Request.Context(), userID, filter, format, &buf); err != nil {
		respondError(c, err, "Failed to export audit entries")
		return
	}

	contentType := "application/json"
	if format == domain.ExportCSV {
		contentType = "text/csv"
	}
	filename := fmt.Sprintf("audit-%s.%s", time.Now().UTC().Format(dateLayout), format)
	c.Header("Content-Disposition", `attachment; filename="`+filename+`"`)
	c.Data(http.StatusOK, contentType, buf.Bytes())
}

// getEntry godoc
// @Summary Get an audit entry by ID
// @Tags audit
// @Produce  json
// @Param   entryID path string true "Audit entry ID"
// @Success 200 {object} domain.AuditLogEntry
// @Failure 401 {object} map[string]string "Unauthorized"
// @Failure 404 {object} map[string]string "Audit entry not found"
// @Failure 500 {object} map[string]string "Failed to retrieve audit entry"
// @Security BearerAuth
// @Router /audit/{entryID} [get]
func (h *auditHandler) getEntry(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	entry, err := h.auditService.GetEntry(c.Request.Context(), userID, c.Param("entryID"))
	if err != nil {
		respondError(c, err, "Failed to retrieve audit entry")
		return
	}
	c.JSON(http.StatusOK, entry)
}

// canUndo godoc
// @Summary Check whether an audit entry can be reversed
// @Tags audit
// @Produce  json
// @Param   entryID path string true "Audit entry ID"
// @Success 200 {object} dto.CanUndoResponse
// @Failure 401 {object} map[string]string "Unauthorized"
// @Failure 404 {object} map[string]string "Audit entry not found"
// @Failure 500 {object} map[string]string "Failed to evaluate reversibility"
// @Security BearerAuth
// @Router /audit/{entryID}/can-undo [get]
func (h *auditHandler) canUndo(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	entryID := c.Param("entryID")
	// Ownership first; CanUndo itself is user-agnostic.
	if _, err := h.auditService.GetEntry(c.Request.Context(), userID, entryID); err != nil {
		respondError(c, err, "Failed to retrieve audit entry")
		return
	}
	canUndo, err := h.auditService.CanUndo(c.Request.Context(), entryID)
	if err != nil {
		respondError(c, err, "Failed to evaluate reversibility")
		return
	}
	c.JSON(http.StatusOK, dto.CanUndoResponse{EntryID: entryID, CanUndo: canUndo})
}

// recordReversal godoc
// @Summary Record a reversal
// @Description Logs the compensating action and links it to the original entry
// @Tags audit
// @Accept  json
// @Produce  json
// @Param   entryID path string true "Audit entry ID"
// @Param   reversal body dto.RecordReversalRequest true "Compensating action"
// @Success 201 {object} domain.AuditLogEntry
// @Failure 400 {object} map[string]string "Invalid input format or validation error"
// @Failure 401 {object} map[string]string "Unauthorized"
// @Failure 404 {object} map[string]string "Audit entry not found"
// @Failure 409 {object} map[string]string "Entry not reversible or already reversed"
// @Failure 500 {object} map[string]string "Failed to record reversal"
// @Security BearerAuth
// @Router /audit/{entryID}/reversal [post]
func (h *auditHandler) recordReversal(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	var req dto.RecordReversalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err, "RecordReversalRequest")
		return
	}
	entryID := c.Param("entryID")
	reversal, err := h.auditService.RecordReversal(c.Request.Context(), userID, entryID, req.ToReversalRecord())
	if err != nil {
		respondError(c, err, "Failed to record reversal")
		return
	}
	middleware.GetLoggerFromCtx(c.Request.Context()).Info("Reversal recorded",
		slog.String("entry_id", entryID), slog.String("reversal_entry_id", reversal.ID))
	c.JSON(http.StatusCreated, reversal)
}
