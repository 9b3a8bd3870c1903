package delivery

import (
	"errors"
	"net/http"

	accountdomain "github.com/Retr0-XD/FInance-Monkey/internal/account/domain"
	accountdto "github.com/Retr0-XD/FInance-Monkey/internal/account/dto"
	"github.com/Retr0-XD/FInance-Monkey/internal/account/usecase"
	syncusecase "github.com/Retr0-XD/FInance-Monkey/internal/mailsync/usecase"

	"github.com/gin-gonic/gin"
)

type AccountHandler struct {
	accountUsecase usecase.AccountUsecase
	syncUsecase    syncusecase.SyncUsecase
}

func NewAccountHandler(accountUsecase usecase.AccountUsecase, syncUsecase syncusecase.SyncUsecase) *AccountHandler {
	return &AccountHandler{
		accountUsecase: accountUsecase,
		syncUsecase:    syncUsecase,
	}
}

// RegisterRoutes mounts the account endpoints on an authenticated group
func (h *AccountHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("", h.List)
	rg.POST("", h.Connect)
	rg.GET("/:id", h.Get)
	rg.DELETE("/:id", h.Disconnect)
	rg.GET("/:id/status", h.Status)
	rg.POST("/:id/revoke", h.Revoke)
	rg.POST("/:id/sync", h.Sync)
}

func (h *AccountHandler) List(c *gin.Context) {
	accounts, err := h.accountUsecase.List(c.Request.Context(), c.GetString("userID"))
	if err != nil {
		respondError(c, err)
		return
	}
	if accounts == nil {
		accounts = []accountdomain.EmailAccount{}
	}
	c.JSON(http.StatusOK, accountdto.AccountListResponse{Accounts: accounts})
}

func (h *AccountHandler) Connect(c *gin.Context) {
	var req accountdto.ConnectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	account, err := h.accountUsecase.Connect(c.Request.Context(), c.GetString("userID"), &req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, account)
}

func (h *AccountHandler) Get(c *gin.Context) {
	account, err := h.accountUsecase.Get(c.Request.Context(), c.GetString("userID"), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, account)
}

func (h *AccountHandler) Disconnect(c *gin.Context) {
	if err := h.accountUsecase.Disconnect(c.Request.Context(), c.GetString("userID"), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "account disconnected"})
}

func (h *AccountHandler) Revoke(c *gin.Context) {
	if err := h.accountUsecase.Revoke(c.Request.Context(), c.GetString("userID"), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "account access revoked"})
}

func (h *AccountHandler) Status(c *gin.Context) {
	summary, err := h.accountUsecase.Status(c.Request.Context(), c.GetString("userID"), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

// Sync runs one cycle for the account and returns its batch report
func (h *AccountHandler) Sync(c *gin.Context) {
	ctx := c.Request.Context()
	account, err := h.accountUsecase.Get(ctx, c.GetString("userID"), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	report, err := h.syncUsecase.SyncAccount(ctx, account.ID)
	if err != nil && report == nil {
		respondError(c, err)
		return
	}
	if err != nil {
		c.JSON(http.StatusBadGateway, report)
		return
	}
	c.JSON(http.StatusOK, report)
}

func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, accountdomain.ErrAccountNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, accountdomain.ErrAccountBusy), errors.Is(err, accountdomain.ErrAccountRevoked):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, usecase.ErrInvalidProvider):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
