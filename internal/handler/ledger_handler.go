package handler

import (
	"net/http"

	"opsboard/internal/service"
	"opsboard/pkg/pagination"
	"opsboard/pkg/response"

	"github.com/gin-gonic/gin"
)

type LedgerHandler struct {
	ledgerService service.LedgerService
}

func NewLedgerHandler(ledgerService service.LedgerService) *LedgerHandler {
	return &LedgerHandler{ledgerService: ledgerService}
}

func (h *LedgerHandler) RegisterRoutes(router *gin.RouterGroup) {
	accounts := router.Group("/accounts")
	{
		accounts.POST("", h.CreateAccount)
		accounts.GET("", h.ListAccounts)
		accounts.GET("/:id", h.GetAccount)
		accounts.GET("/:id/entries", h.ListEntries)
		accounts.GET("/:id/balance", h.GetBalance)
	}
	router.POST("/ledger/adjustments", h.Adjust)
}

// CreateAccount godoc
// @Summary      Create an account
// @Description  Creates an individual or linked-pair account with its members
// @Tags         ledger
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        payload  body      service.CreateAccountRequest  true  "Account Payload"
// @Success      201      {object}  response.Response{data=model.Account}
// @Failure      400      {object}  response.Response
// @Failure      403      {object}  response.Response
// @Router       /api/accounts [post]
func (h *LedgerHandler) CreateAccount(c *gin.Context) {
	var req service.CreateAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	account, err := h.ledgerService.CreateAccount(c.Request.Context(), actorOf(c), req)
	if err != nil {
		fail(c, err)
		return
	}

	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, account))
}

// ListAccounts godoc
// @Summary      List accounts
// @Tags         ledger
// @Produce      json
// @Security     BearerAuth
// @Param        kind   query     string  false  "individual or linked_pair"
// @Param        page   query     int     false  "Page number (default 1)"
// @Param        limit  query     int     false  "Number of items per page (default 20)"
// @Success      200    {object}  response.Response{data=response.PageData}
// @Router       /api/accounts [get]
func (h *LedgerHandler) ListAccounts(c *gin.Context) {
	p := pagination.Parse(c)
	accounts, total, err := h.ledgerService.ListAccounts(c.Request.Context(), c.Query("kind"), p.Page, p.Limit)
	if err != nil {
		fail(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, response.PageData{Items: accounts, Total: total, Page: p.Page, Limit: p.Limit}))
}

// GetAccount godoc
// @Summary      Get an account
// @Tags         ledger
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "Account ID"
// @Success      200  {object}  response.Response{data=model.Account}
// @Failure      404  {object}  response.Response
// @Router       /api/accounts/{id} [get]
func (h *LedgerHandler) GetAccount(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	account, err := h.ledgerService.GetAccount(c.Request.Context(), id)
	if err != nil {
		fail(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, account))
}

// ListEntries godoc
// @Summary      List ledger entries of an account
// @Tags         ledger
// @Produce      json
// @Security     BearerAuth
// @Param        id     path      string  true   "Account ID"
// @Param        page   query     int     false  "Page number (default 1)"
// @Param        limit  query     int     false  "Number of items per page (default 20)"
// @Success      200    {object}  response.Response{data=response.PageData}
// @Router       /api/accounts/{id}/entries [get]
func (h *LedgerHandler) ListEntries(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	p := pagination.Parse(c)
	entries, total, err := h.ledgerService.ListEntries(c.Request.Context(), id, p.Page, p.Limit)
	if err != nil {
		fail(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, response.PageData{Items: entries, Total: total, Page: p.Page, Limit: p.Limit}))
}

// GetBalance godoc
// @Summary      Get the balance of an account
// @Description  Returns the live sum of entries next to the stored balance
// @Tags         ledger
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "Account ID"
// @Success      200  {object}  response.Response{data=service.BalanceCheck}
// @Failure      404  {object}  response.Response
// @Router       /api/accounts/{id}/balance [get]
func (h *LedgerHandler) GetBalance(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	check, err := h.ledgerService.VerifyBalance(c.Request.Context(), id)
	if err != nil {
		fail(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, check))
}

// Adjust godoc
// @Summary      Post a manual adjustment
// @Tags         ledger
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        payload  body      service.AdjustRequest  true  "Adjustment Payload"
// @Success      201      {object}  response.Response{data=model.LedgerEntry}
// @Failure      400      {object}  response.Response
// @Failure      403      {object}  response.Response
// @Router       /api/ledger/adjustments [post]
func (h *LedgerHandler) Adjust(c *gin.Context) {
	var req service.AdjustRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	entry, err := h.ledgerService.Adjust(c.Request.Context(), actorOf(c), req)
	if err != nil {
		fail(c, err)
		return
	}

	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, entry))
}
