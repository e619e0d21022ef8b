package handler

import (
	"net/http"

	"opsboard/internal/middleware"
	"opsboard/internal/policy"
	"opsboard/internal/repository"
	"opsboard/internal/service"
	"opsboard/pkg/pagination"
	"opsboard/pkg/response"

	"github.com/gin-gonic/gin"
)

type AuditHandler struct {
	auditService service.AuditService
	policy       *policy.Table
}

func NewAuditHandler(auditService service.AuditService, table *policy.Table) *AuditHandler {
	return &AuditHandler{auditService: auditService, policy: table}
}

func (h *AuditHandler) RegisterRoutes(router *gin.RouterGroup) {
	group := router.Group("/audit-logs")
	group.Use(middleware.RequirePermission(h.policy, policy.AuditRead))
	{
		group.GET("", h.GetAuditLogs)
	}
}

// GetAuditLogs retrieves paginated audit rows, newest first
// @Summary      Get audit logs
// @Description  Retrieves audit logs, optionally filtered by action, entity or actor
// @Tags         audit
// @Security     BearerAuth
// @Produce      json
// @Param        page       query     int     false  "Page number (default 1)"
// @Param        limit      query     int     false  "Number of items per page (default 20)"
// @Param        action     query     string  false  "Action, e.g. SETTLE_BATCH"
// @Param        entity_id  query     string  false  "Entity id"
// @Param        actor_id   query     string  false  "Actor id"
// @Success      200    {object}  response.Response{data=response.PageData}
// @Router       /api/audit-logs [get]
func (h *AuditHandler) GetAuditLogs(c *gin.Context) {
	p := pagination.Parse(c)
	filter := repository.AuditFilter{
		Action:   c.Query("action"),
		EntityID: c.Query("entity_id"),
		ActorID:  c.Query("actor_id"),
	}

	logs, total, err := h.auditService.GetAuditLogs(c.Request.Context(), filter, p.Page, p.Limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, response.Error(http.StatusInternalServerError, "Failed to retrieve audit logs: "+err.Error()))
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, response.PageData{Items: logs, Total: total, Page: p.Page, Limit: p.Limit}))
}
