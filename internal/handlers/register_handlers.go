package handlers

import (
	portssvc "github.com/SscSPs/agent_governance/internal/core/ports/services"
	"github.com/SscSPs/agent_governance/internal/metrics"
	"github.com/SscSPs/agent_governance/internal/middleware"
	"github.com/SscSPs/agent_governance/internal/platform/config"
	"github.com/SscSPs/agent_governance/internal/utils"
	"github.com/gin-gonic/gin"
)

// RegisterRoutes sets up all application routes, injecting dependencies using interfaces
func RegisterRoutes(
	r *gin.Engine,
	cfg *config.Config,
	services *portssvc.ServiceContainer,
	executor portssvc.Executor,
	posthogClient *utils.PosthogClientWrapper,
) {
	// Add health check route
	r.GET("/health", func(c *gin.Context) {
		c.String(200, "OK")
	})

	if cfg.MetricsEnabled {
		r.GET("/metrics", gin.WrapH(metrics.Handler()))
	}

	setupAPIV1Routes(r, cfg, services, executor, posthogClient)
}

// setupAPIV1Routes configures the /api/v1 group and delegates to the per-area registrations
func setupAPIV1Routes(
	r *gin.Engine,
	cfg *config.Config,
	services *portssvc.ServiceContainer,
	executor portssvc.Executor,
	posthogClient *utils.PosthogClientWrapper,
) {
	// Apply AuthMiddleware to the entire v1 group
	v1 := r.Group("/api/v1", middleware.AuthMiddleware(cfg.JWTSecret, cfg.JWTIssuer))

	RegisterApprovalRoutes(v1, services.Approval, posthogClient)
	RegisterQuotaRoutes(v1, services.Quota)
	RegisterAuditRoutes(v1, services.Audit)
	RegisterWorkflowRoutes(v1, services.Workflow, services.Template, executor, posthogClient)

	admin := v1.Group("/admin", middleware.RequireAdmin(cfg.AdminUserIDs))
	RegisterAdminRoutes(admin, services.Quota, services.Approval, posthogClient)
}
