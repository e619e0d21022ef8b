package handler

import (
	"errors"
	"io"
	"net/http"

	"opsboard/internal/service"
	"opsboard/pkg/pagination"
	"opsboard/pkg/response"

	"github.com/gin-gonic/gin"
)

// SettleBatchRequest carries an optional edited split; omit it for the equal split.
type SettleBatchRequest struct {
	Split []int64 `json:"split"`
}

type BatchHandler struct {
	settlementService service.SettlementService
}

func NewBatchHandler(settlementService service.SettlementService) *BatchHandler {
	return &BatchHandler{settlementService: settlementService}
}

func (h *BatchHandler) RegisterRoutes(router *gin.RouterGroup) {
	batches := router.Group("/batches")
	{
		batches.POST("", h.CreateBatch)
		batches.GET("", h.ListBatches)
		batches.GET("/:id", h.GetBatch)
		batches.POST("/:id/split-preview", h.PreviewSplit)
		batches.POST("/:id/settle", h.SettleBatch)
		batches.POST("/:id/discard", h.DiscardBatch)
	}
}

// CreateBatch godoc
// @Summary      Create a work batch
// @Tags         batches
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        payload  body      service.CreateBatchRequest  true  "Batch Payload"
// @Success      201      {object}  response.Response{data=model.Batch}
// @Failure      400      {object}  response.Response
// @Failure      404      {object}  response.Response
// @Router       /api/batches [post]
func (h *BatchHandler) CreateBatch(c *gin.Context) {
	var req service.CreateBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	batch, err := h.settlementService.CreateBatch(c.Request.Context(), actorOf(c), req)
	if err != nil {
		fail(c, err)
		return
	}

	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, batch))
}

// ListBatches godoc
// @Summary      List work batches
// @Tags         batches
// @Produce      json
// @Security     BearerAuth
// @Param        status  query     string  false  "paid or unpaid"
// @Param        page    query     int     false  "Page number (default 1)"
// @Param        limit   query     int     false  "Number of items per page (default 20)"
// @Success      200     {object}  response.Response{data=response.PageData}
// @Router       /api/batches [get]
func (h *BatchHandler) ListBatches(c *gin.Context) {
	p := pagination.Parse(c)
	batches, total, err := h.settlementService.ListBatches(c.Request.Context(), c.Query("status"), p.Page, p.Limit)
	if err != nil {
		fail(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, response.PageData{Items: batches, Total: total, Page: p.Page, Limit: p.Limit}))
}

// GetBatch godoc
// @Summary      Get a work batch
// @Tags         batches
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "Batch ID"
// @Success      200  {object}  response.Response{data=model.Batch}
// @Failure      404  {object}  response.Response
// @Router       /api/batches/{id} [get]
func (h *BatchHandler) GetBatch(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	batch, err := h.settlementService.GetBatch(c.Request.Context(), id)
	if err != nil {
		fail(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, batch))
}

// PreviewSplit godoc
// @Summary      Preview a wage split
// @Description  Redistributes the batch total after one share is edited. Nothing is stored.
// @Tags         batches
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id       path      string                       true  "Batch ID"
// @Param        payload  body      service.PreviewSplitRequest  true  "Edit"
// @Success      200      {object}  response.Response{data=[]int64}
// @Failure      400      {object}  response.Response
// @Router       /api/batches/{id}/split-preview [post]
func (h *BatchHandler) PreviewSplit(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req service.PreviewSplitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	split, err := h.settlementService.PreviewSplit(c.Request.Context(), id, req)
	if err != nil {
		fail(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, split))
}

// SettleBatch godoc
// @Summary      Settle a work batch
// @Description  Credits every participant and marks the batch paid as one unit
// @Tags         batches
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id       path      string              true   "Batch ID"
// @Param        payload  body      SettleBatchRequest  false  "Optional split"
// @Success      200      {object}  response.Response{data=model.Batch}
// @Failure      403      {object}  response.Response
// @Failure      409      {object}  response.Response
// @Router       /api/batches/{id}/settle [post]
func (h *BatchHandler) SettleBatch(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	// Chunked bodies report ContentLength -1; an empty one means no split.
	var req SettleBatchRequest
	if c.Request.Body != nil && c.Request.Body != http.NoBody && c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
			badRequest(c, err)
			return
		}
	}

	batch, err := h.settlementService.Settle(c.Request.Context(), actorOf(c), id, req.Split)
	if err != nil {
		fail(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, batch))
}

// DiscardBatch godoc
// @Summary      Discard a batch settlement
// @Description  Reverses the batch's credits and marks it unpaid as one unit
// @Tags         batches
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "Batch ID"
// @Success      200  {object}  response.Response{data=model.Batch}
// @Failure      403  {object}  response.Response
// @Failure      409  {object}  response.Response
// @Router       /api/batches/{id}/discard [post]
func (h *BatchHandler) DiscardBatch(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	batch, err := h.settlementService.Discard(c.Request.Context(), actorOf(c), id)
	if err != nil {
		fail(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, batch))
}
