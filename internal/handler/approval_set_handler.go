package handler

import (
	"net/http"

	"opsboard/internal/service"
	"opsboard/pkg/response"

	"github.com/gin-gonic/gin"
)

type ApprovalSetHandler struct {
	approvalSetService service.ApprovalSetService
}

func NewApprovalSetHandler(approvalSetService service.ApprovalSetService) *ApprovalSetHandler {
	return &ApprovalSetHandler{approvalSetService: approvalSetService}
}

func (h *ApprovalSetHandler) RegisterRoutes(router *gin.RouterGroup) {
	sets := router.Group("/approval-sets/:org/:period")
	{
		sets.GET("", h.GetApprovalSet)
		sets.PUT("", h.SaveApprovalSet)
		sets.POST("/reset", h.ResetApprovalSet)
	}
}

// GetApprovalSet godoc
// @Summary      Get the approval flags of a period
// @Tags         approvals
// @Produce      json
// @Security     BearerAuth
// @Param        org     path      string  true  "Organization ID"
// @Param        period  path      string  true  "Period, e.g. 2024-05-01"
// @Success      200     {object}  response.Response{data=model.ApprovalSet}
// @Failure      404     {object}  response.Response
// @Router       /api/approval-sets/{org}/{period} [get]
func (h *ApprovalSetHandler) GetApprovalSet(c *gin.Context) {
	set, err := h.approvalSetService.Get(c.Request.Context(), c.Param("org"), c.Param("period"))
	if err != nil {
		fail(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, set))
}

// SaveApprovalSet godoc
// @Summary      Save the full approval flag set
// @Description  Last write wins. Fails with row_set_changed when the rows differ from the stored set.
// @Tags         approvals
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        org      path      string                          true  "Organization ID"
// @Param        period   path      string                          true  "Period"
// @Param        payload  body      service.SaveApprovalSetRequest  true  "Rows and flags"
// @Success      200      {object}  response.Response{data=model.ApprovalSet}
// @Failure      409      {object}  response.Response
// @Router       /api/approval-sets/{org}/{period} [put]
func (h *ApprovalSetHandler) SaveApprovalSet(c *gin.Context) {
	var req service.SaveApprovalSetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	set, err := h.approvalSetService.Save(c.Request.Context(), actorOf(c), c.Param("org"), c.Param("period"), req.RowKeys, req.Flags)
	if err != nil {
		fail(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, set))
}

// ResetApprovalSet godoc
// @Summary      Replace the rows of an approval set
// @Description  Every flag is cleared
// @Tags         approvals
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        org      path      string                           true  "Organization ID"
// @Param        period   path      string                           true  "Period"
// @Param        payload  body      service.ResetApprovalSetRequest  true  "Rows"
// @Success      200      {object}  response.Response{data=model.ApprovalSet}
// @Router       /api/approval-sets/{org}/{period}/reset [post]
func (h *ApprovalSetHandler) ResetApprovalSet(c *gin.Context) {
	var req service.ResetApprovalSetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	set, err := h.approvalSetService.Reset(c.Request.Context(), actorOf(c), c.Param("org"), c.Param("period"), req.RowKeys)
	if err != nil {
		fail(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, set))
}
