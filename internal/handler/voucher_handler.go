package handler

import (
	"net/http"
	"strconv"

	"opsboard/internal/repository"
	"opsboard/internal/service"
	"opsboard/pkg/pagination"
	"opsboard/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type VoucherHandler struct {
	voucherService service.VoucherService
}

func NewVoucherHandler(voucherService service.VoucherService) *VoucherHandler {
	return &VoucherHandler{voucherService: voucherService}
}

func (h *VoucherHandler) RegisterRoutes(router *gin.RouterGroup) {
	vouchers := router.Group("/vouchers")
	{
		vouchers.POST("", h.CreateVoucher)
		vouchers.GET("", h.ListVouchers)
		vouchers.POST("/bulk-settle", h.BulkSettle)
		vouchers.GET("/:id", h.GetVoucher)
		vouchers.PUT("/:id", h.EditVoucher)
		vouchers.DELETE("/:id", h.DeleteVoucher)
		vouchers.POST("/:id/verify", h.VerifyVoucher)
		vouchers.POST("/:id/unverify", h.UnverifyVoucher)
		vouchers.POST("/:id/settle", h.SettleVoucher)
		vouchers.POST("/:id/unsettle", h.UnsettleVoucher)
	}
}

// CreateVoucher godoc
// @Summary      Create an expense voucher
// @Tags         vouchers
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        payload  body      service.CreateVoucherRequest  true  "Voucher Payload"
// @Success      201      {object}  response.Response{data=model.Voucher}
// @Failure      400      {object}  response.Response
// @Failure      403      {object}  response.Response
// @Router       /api/vouchers [post]
func (h *VoucherHandler) CreateVoucher(c *gin.Context) {
	var req service.CreateVoucherRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	voucher, err := h.voucherService.Create(c.Request.Context(), actorOf(c), req)
	if err != nil {
		fail(c, err)
		return
	}

	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, voucher))
}

// ListVouchers godoc
// @Summary      List vouchers
// @Tags         vouchers
// @Produce      json
// @Security     BearerAuth
// @Param        verified     query     bool    false  "Filter by verified flag"
// @Param        paid         query     bool    false  "Filter by paid flag"
// @Param        vehicle_ref  query     string  false  "Filter by vehicle"
// @Param        page         query     int     false  "Page number (default 1)"
// @Param        limit        query     int     false  "Number of items per page (default 20)"
// @Success      200          {object}  response.Response{data=response.PageData}
// @Router       /api/vouchers [get]
func (h *VoucherHandler) ListVouchers(c *gin.Context) {
	filter := repository.VoucherFilter{VehicleRef: c.Query("vehicle_ref")}
	if v, err := strconv.ParseBool(c.Query("verified")); err == nil {
		filter.Verified = &v
	}
	if v, err := strconv.ParseBool(c.Query("paid")); err == nil {
		filter.Paid = &v
	}

	p := pagination.Parse(c)
	vouchers, total, err := h.voucherService.List(c.Request.Context(), filter, p.Page, p.Limit)
	if err != nil {
		fail(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, response.PageData{Items: vouchers, Total: total, Page: p.Page, Limit: p.Limit}))
}

// GetVoucher godoc
// @Summary      Get a voucher with the caller's permitted actions
// @Tags         vouchers
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "Voucher ID"
// @Success      200  {object}  response.Response{data=service.VoucherView}
// @Failure      404  {object}  response.Response
// @Router       /api/vouchers/{id} [get]
func (h *VoucherHandler) GetVoucher(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	view, err := h.voucherService.Get(c.Request.Context(), actorOf(c), id)
	if err != nil {
		fail(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, view))
}

// EditVoucher godoc
// @Summary      Edit a voucher
// @Tags         vouchers
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id       path      string                      true  "Voucher ID"
// @Param        payload  body      service.EditVoucherRequest  true  "Changed fields"
// @Success      200      {object}  response.Response{data=model.Voucher}
// @Failure      403      {object}  response.Response
// @Failure      409      {object}  response.Response
// @Router       /api/vouchers/{id} [put]
func (h *VoucherHandler) EditVoucher(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req service.EditVoucherRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	voucher, err := h.voucherService.Edit(c.Request.Context(), actorOf(c), id, req)
	if err != nil {
		fail(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, voucher))
}

// DeleteVoucher godoc
// @Summary      Delete a voucher
// @Tags         vouchers
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "Voucher ID"
// @Success      200  {object}  response.Response
// @Failure      403  {object}  response.Response
// @Router       /api/vouchers/{id} [delete]
func (h *VoucherHandler) DeleteVoucher(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	if err := h.voucherService.Delete(c.Request.Context(), actorOf(c), id); err != nil {
		fail(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, nil))
}

// VerifyVoucher godoc
// @Summary      Verify a voucher
// @Tags         vouchers
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "Voucher ID"
// @Success      200  {object}  response.Response{data=model.Voucher}
// @Failure      409  {object}  response.Response
// @Router       /api/vouchers/{id}/verify [post]
func (h *VoucherHandler) VerifyVoucher(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	voucher, err := h.voucherService.Verify(c.Request.Context(), actorOf(c), id)
	if err != nil {
		fail(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, voucher))
}

// UnverifyVoucher godoc
// @Summary      Withdraw a voucher verification
// @Tags         vouchers
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "Voucher ID"
// @Success      200  {object}  response.Response{data=model.Voucher}
// @Failure      409  {object}  response.Response
// @Router       /api/vouchers/{id}/unverify [post]
func (h *VoucherHandler) UnverifyVoucher(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	voucher, err := h.voucherService.Unverify(c.Request.Context(), actorOf(c), id)
	if err != nil {
		fail(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, voucher))
}

// SettleVoucher godoc
// @Summary      Mark a voucher paid
// @Tags         vouchers
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id       path      string                        true  "Voucher ID"
// @Param        payload  body      service.SettleVoucherRequest  true  "Payment reference"
// @Success      200      {object}  response.Response{data=model.Voucher}
// @Failure      409      {object}  response.Response
// @Router       /api/vouchers/{id}/settle [post]
func (h *VoucherHandler) SettleVoucher(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req service.SettleVoucherRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	voucher, err := h.voucherService.Settle(c.Request.Context(), actorOf(c), id, req.PaymentReference)
	if err != nil {
		fail(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, voucher))
}

// UnsettleVoucher godoc
// @Summary      Reverse a voucher payment within the reversal window
// @Tags         vouchers
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "Voucher ID"
// @Success      200  {object}  response.Response{data=model.Voucher}
// @Failure      409  {object}  response.Response
// @Router       /api/vouchers/{id}/unsettle [post]
func (h *VoucherHandler) UnsettleVoucher(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	voucher, err := h.voucherService.Unsettle(c.Request.Context(), actorOf(c), id)
	if err != nil {
		fail(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, voucher))
}

// BulkSettle godoc
// @Summary      Mark several vouchers paid under one payment reference
// @Description  Either every voucher is settled or none is
// @Tags         vouchers
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        payload  body      service.BulkSettleRequest  true  "Vouchers and payment reference"
// @Success      200      {object}  response.Response{data=[]model.Voucher}
// @Failure      409      {object}  response.Response
// @Router       /api/vouchers/bulk-settle [post]
func (h *VoucherHandler) BulkSettle(c *gin.Context) {
	var req service.BulkSettleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	ids := make([]uuid.UUID, 0, len(req.IDs))
	for _, raw := range req.IDs {
		id, err := uuid.Parse(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid voucher id: "+raw))
			return
		}
		ids = append(ids, id)
	}

	vouchers, err := h.voucherService.BulkSettle(c.Request.Context(), actorOf(c), ids, req.PaymentReference)
	if err != nil {
		fail(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, vouchers))
}
