package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/SscSPs/agent_governance/internal/core/domain"
	portssvc "github.com/SscSPs/agent_governance/internal/core/ports/services"
	"github.com/SscSPs/agent_governance/internal/dto"
	"github.com/SscSPs/agent_governance/internal/middleware"
	"github.com/SscSPs/agent_governance/internal/utils"
	"github.com/gin-gonic/gin"
)

// workflowHandler handles HTTP requests related to workflows and their templates.
type workflowHandler struct {
	workflowService portssvc.WorkflowSvcFacade
	templateService portssvc.TemplateSvc
	executor        portssvc.Executor
	posthogClient   *utils.PosthogClientWrapper
}

// RegisterWorkflowRoutes registers the workflow lifecycle and template routes.
// executor performs the action behind each advanced step.
func RegisterWorkflowRoutes(
	rg *gin.RouterGroup,
	workflowService portssvc.WorkflowSvcFacade,
	templateService portssvc.TemplateSvc,
	executor portssvc.Executor,
	posthogClient *utils.PosthogClientWrapper,
) {
	h := &workflowHandler{
		workflowService: workflowService,
		templateService: templateService,
		executor:        executor,
		posthogClient:   posthogClient,
	}

	workflows := rg.Group("/workflows")
	{
		workflows.POST("", h.createWorkflow)
		workflows.GET("", h.listWorkflows)
		workflows.GET("/:workflowID", h.getWorkflow)
		workflows.POST("/:workflowID/start", h.lifecycle(workflowService.StartWorkflow, "start"))
		workflows.POST("/:workflowID/pause", h.lifecycle(workflowService.PauseWorkflow, "pause"))
		workflows.POST("/:workflowID/resume", h.lifecycle(workflowService.ResumeWorkflow, "resume"))
		workflows.POST("/:workflowID/cancel", h.lifecycle(workflowService.CancelWorkflow, "cancel"))
		workflows.POST("/:workflowID/retry", h.lifecycle(workflowService.RetryWorkflow, "retry"))
		workflows.POST("/:workflowID/advance", h.advance)
	}

	templates := rg.Group("/workflow-templates")
	{
		templates.GET("", h.listTemplates)
		templates.POST("", h.createTemplate)
		templates.GET("/:templateID", h.getTemplate)
	}
}

// createWorkflow godoc
// @Summary Create a workflow
// @Description Builds the step plan from the request or a template, subject to the concurrent workflow ceiling
// @Tags workflows
// @Accept  json
// @Produce  json
// @Param   workflow body dto.CreateWorkflowRequest true "Plan or template"
// @Success 201 {object} domain.Workflow
// @Failure 400 {object} map[string]string "Invalid input format or validation error"
// @Failure 401 {object} map[string]string "Unauthorized"
// @Failure 429 {object} map[string]string "Concurrent workflow limit reached"
// @Failure 500 {object} map[string]string "Failed to create workflow"
// @Security BearerAuth
// @Router /workflows [post]
func (h *workflowHandler) createWorkflow(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	var req dto.CreateWorkflowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err, "CreateWorkflowRequest")
		return
	}
	wf, err := h.workflowService.CreateWorkflow(c.Request.Context(), userID, req)
	if err != nil {
		respondError(c, err, "Failed to create workflow")
		return
	}
	middleware.GetLoggerFromCtx(c.Request.Context()).Info("Workflow created",
		slog.String("workflow_id", wf.ID), slog.Int("total_steps", wf.TotalSteps))
	c.JSON(http.StatusCreated, wf)
}

// listWorkflows godoc
// @Summary List workflows
// @Tags workflows
// @Produce  json
// @Param   status query string false "Filter by status"
// @Param   limit query int false "Limit number of results" default(20)
// @Param   offset query int false "Offset for pagination" default(0)
// @Success 200 {object} dto.ListWorkflowsResponse
// @Failure 400 {object} map[string]string "Invalid input format or validation error"
// @Failure 401 {object} map[string]string "Unauthorized"
// @Failure 500 {object} map[string]string "Failed to list workflows"
// @Security BearerAuth
// @Router /workflows [get]
func (h *workflowHandler) listWorkflows(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	var params dto.ListWorkflowsParams
	if err := c.ShouldBindQuery(&params); err != nil {
		bindError(c, err, "ListWorkflowsParams")
		return
	}
	resp, err := h.workflowService.ListWorkflows(c.Request.Context(), userID, params)
	if err != nil {
		respondError(c, err, "Failed to list workflows")
		return
	}
	c.JSON(http.StatusOK, resp)
}

// getWorkflow godoc
// @Summary Get a workflow by ID
// @Description Includes steps and the execution log
// @Tags workflows
// @Produce  json
// @Param   workflowID path string true "Workflow ID"
// @Success 200 {object} domain.Workflow
// @Failure 401 {object} map[string]string "Unauthorized"
// @Failure 404 {object} map[string]string "Workflow not found"
// @Failure 500 {object} map[string]string "Failed to retrieve workflow"
// @Security BearerAuth
// @Router /workflows/{workflowID} [get]
func (h *workflowHandler) getWorkflow(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	wf, err := h.workflowService.GetWorkflow(c.Request.Context(), userID, c.Param("workflowID"))
	if err != nil {
		respondError(c, err, "Failed to retrieve workflow")
		return
	}
	c.JSON(http.StatusOK, wf)
}

type lifecycleFunc func(ctx context.Context, userID string, workflowID string) (*domain.Workflow, error)

// lifecycle godoc
// @Summary Change workflow status
// @Description Start, pause, resume, cancel or retry a workflow
// @Tags workflows
// @Produce  json
// @Param   workflowID path string true "Workflow ID"
// @Success 200 {object} domain.Workflow
// @Failure 400 {object} map[string]string "Invalid input format or validation error"
// @Failure 401 {object} map[string]string "Unauthorized"
// @Failure 404 {object} map[string]string "Workflow not found"
// @Failure 409 {object} map[string]string "Transition not allowed"
// @Failure 500 {object} map[string]string "Failed to change workflow status"
// @Security BearerAuth
// @Router /workflows/{workflowID}/start [post]
// @Router /workflows/{workflowID}/pause [post]
// @Router /workflows/{workflowID}/resume [post]
// @Router /workflows/{workflowID}/cancel [post]
// @Router /workflows/{workflowID}/retry [post]
func (h *workflowHandler) lifecycle(fn lifecycleFunc, verb string) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := requireUser(c)
		if !ok {
			return
		}
		workflowID := c.Param("workflowID")
		wf, err := fn(c.Request.Context(), userID, workflowID)
		if err != nil {
			respondError(c, err, "Failed to "+verb+" workflow")
			return
		}
		middleware.GetLoggerFromCtx(c.Request.Context()).Info("Workflow "+verb,
			slog.String("workflow_id", workflowID), slog.String("status", string(wf.Status)))
		c.JSON(http.StatusOK, wf)
	}
}

// advance godoc
// @Summary Execute the next step
// @Description Runs at most one step. Soft failures come back as a 200 outcome with success=false
// @Tags workflows
// @Produce  json
// @Param   workflowID path string true "Workflow ID"
// @Success 200 {object} domain.StepOutcome
// @Failure 401 {object} map[string]string "Unauthorized"
// @Failure 404 {object} map[string]string "Workflow not found"
// @Failure 409 {object} map[string]string "Workflow changed concurrently"
// @Failure 500 {object} map[string]string "Failed to advance workflow"
// @Security BearerAuth
// @Router /workflows/{workflowID}/advance [post]
func (h *workflowHandler) advance(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	workflowID := c.Param("workflowID")
	if _, err := h.workflowService.GetWorkflow(c.Request.Context(), userID, workflowID); err != nil {
		respondError(c, err, "Failed to retrieve workflow")
		return
	}

	outcome, err := h.workflowService.ExecuteNextStep(c.Request.Context(), workflowID, h.executor)
	if err != nil {
		respondError(c, err, "Failed to advance workflow")
		return
	}

	middleware.PosthogEvent(c, h.posthogClient, middleware.EventWorkflowStepAttempted, map[string]any{
		"workflow_id": workflowID,
		"step_number": outcome.StepNumber,
		"success":     outcome.Success,
		"status":      string(outcome.Status),
	})
	c.JSON(http.StatusOK, outcome)
}

// listTemplates godoc
// @Summary List workflow templates
// @Description Built-in templates first, then the caller's own
// @Tags workflow-templates
// @Produce  json
// @Success 200 {object} dto.ListTemplatesResponse
// @Failure 401 {object} map[string]string "Unauthorized"
// @Failure 500 {object} map[string]string "Failed to list workflow templates"
// @Security BearerAuth
// @Router /workflow-templates [get]
func (h *workflowHandler) listTemplates(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	templates, err := h.templateService.ListTemplates(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err, "Failed to list workflow templates")
		return
	}
	c.JSON(http.StatusOK, dto.ListTemplatesResponse{Templates: templates})
}

// getTemplate godoc
// @Summary Get a workflow template by ID
// @Tags workflow-templates
// @Produce  json
// @Param   templateID path string true "Template ID"
// @Success 200 {object} domain.WorkflowTemplate
// @Failure 401 {object} map[string]string "Unauthorized"
// @Failure 404 {object} map[string]string "Template not found"
// @Failure 500 {object} map[string]string "Failed to retrieve workflow template"
// @Security BearerAuth
// @Router /workflow-templates/{templateID} [get]
func (h *workflowHandler) getTemplate(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	tmpl, err := h.templateService.GetTemplate(c.Request.Context(), userID, c.Param("templateID"))
	if err != nil {
		respondError(c, err, "Failed to retrieve workflow template")
		return
	}
	c.JSON(http.StatusOK, tmpl)
}

// createTemplate godoc
// @Summary Create a workflow template
// @Tags workflow-templates
// @Accept  json
// @Produce  json
// @Param   template body dto.CreateTemplateRequest true "Template definition"
// @Success 201 {object} domain.WorkflowTemplate
// @Failure 400 {object} map[string]string "Invalid input format or validation error"
// @Failure 401 {object} map[string]string "Unauthorized"
// @Failure 500 {object} map[string]string "Failed to create workflow template"
// @Security BearerAuth
// @Router /workflow-templates [post]
func (h *workflowHandler) createTemplate(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	var req dto.CreateTemplateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err, "CreateTemplateRequest")
		return
	}
	tmpl, err := h.templateService.CreateTemplate(c.Request.Context(), userID, req)
	if err != nil {
		respondError(c, err, "Failed to create workflow template")
		return
	}
	c.JSON(http.StatusCreated, tmpl)
}
