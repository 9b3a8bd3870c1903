package delivery

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	txndomain "github.com/Retr0-XD/FInance-Monkey/internal/transaction/domain"
	txndto "github.com/Retr0-XD/FInance-Monkey/internal/transaction/dto"
	"github.com/Retr0-XD/FInance-Monkey/internal/transaction/repository"
	"github.com/Retr0-XD/FInance-Monkey/internal/transaction/usecase"

	"github.com/gin-gonic/gin"
)

type TransactionsResponse struct {
	Transactions []txndomain.Transaction `json:"transactions"`
	Limit        int                     `json:"limit"`
	Offset       int                     `json:"offset"`
	Total        int64                   `json:"total"`
}

type TransactionHandler struct {
	transactions       repository.TransactionRepository
	categories         repository.CategoryRepository
	transactionUsecase usecase.TransactionUsecase
}

func NewTransactionHandler(transactions repository.TransactionRepository, categories repository.CategoryRepository, transactionUsecase usecase.TransactionUsecase) *TransactionHandler {
	return &TransactionHandler{
		transactions:       transactions,
		categories:         categories,
		transactionUsecase: transactionUsecase,
	}
}

// RegisterRoutes mounts the transaction and analytics endpoints on an authenticated group
func (h *TransactionHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/transactions", h.GetTransactions)
	rg.POST("/transactions", h.CreateTransaction)
	rg.GET("/transactions/stats", h.GetStats)
	rg.GET("/transactions/stats/spending", h.GetSpending)
	rg.GET("/transactions/stats/monthly-trends", h.GetMonthlyTrends)
	rg.GET("/transactions/:id", h.GetTransaction)
	rg.PUT("/transactions/:id", h.UpdateTransaction)
	rg.DELETE("/transactions/:id", h.DeleteTransaction)
	rg.GET("/categories", h.GetCategories)
}

func (h *TransactionHandler) GetTransactions(c *gin.Context) {
	limit := 50
	offset := 0

	if limitStr := c.Query("limit"); limitStr != "" {
		if parsed, err := strconv.Atoi(limitStr); err == nil && parsed > 0 && parsed <= 500 {
			limit = parsed
		}
	}

	if offsetStr := c.Query("offset"); offsetStr != "" {
		if parsed, err := strconv.Atoi(offsetStr); err == nil && parsed >= 0 {
			offset = parsed
		}
	}

	txns, total, err := h.transactions.ListByUser(c.Request.Context(), c.GetString("userID"), limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if txns == nil {
		txns = []txndomain.Transaction{}
	}

	c.JSON(http.StatusOK, TransactionsResponse{
		Transactions: txns,
		Limit:        limit,
		Offset:       offset,
		Total:        total,
	})
}

func (h *TransactionHandler) GetCategories(c *gin.Context) {
	cats, err := h.categories.List(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"categories": cats})
}

func (h *TransactionHandler) GetTransaction(c *gin.Context) {
	txn, err := h.transactionUsecase.Get(c.Request.Context(), c.GetString("userID"), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, txn)
}

func (h *TransactionHandler) CreateTransaction(c *gin.Context) {
	var req txndto.TransactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	txn, err := h.transactionUsecase.Create(c.Request.Context(), c.GetString("userID"), &req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, txn)
}

func (h *TransactionHandler) UpdateTransaction(c *gin.Context) {
	var req txndto.TransactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	txn, err := h.transactionUsecase.Update(c.Request.Context(), c.GetString("userID"), c.Param("id"), &req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, txn)
}

func (h *TransactionHandler) DeleteTransaction(c *gin.Context) {
	if err := h.transactionUsecase.Delete(c.Request.Context(), c.GetString("userID"), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *TransactionHandler) GetStats(c *gin.Context) {
	stats, err := h.transactionUsecase.Stats(c.Request.Context(), c.GetString("userID"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (h *TransactionHandler) GetSpending(c *gin.Context) {
	start, err := time.Parse(time.RFC3339, c.Query("startDate"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "startDate must be an RFC 3339 timestamp"})
		return
	}
	end, err := time.Parse(time.RFC3339, c.Query("endDate"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "endDate must be an RFC 3339 timestamp"})
		return
	}

	summary, err := h.transactionUsecase.Spending(c.Request.Context(), c.GetString("userID"), start.UTC(), end.UTC())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

func (h *TransactionHandler) GetMonthlyTrends(c *gin.Context) {
	months := 12
	if monthsStr := c.Query("months"); monthsStr != "" {
		parsed, err := strconv.Atoi(monthsStr)
		if err != nil || parsed <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "months must be a positive integer"})
			return
		}
		months = parsed
	}

	trends, err := h.transactionUsecase.MonthlyTrends(c.Request.Context(), c.GetString("userID"), months)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, trends)
}

func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, txndomain.ErrTransactionNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, txndomain.ErrInvalidTransaction), errors.Is(err, txndomain.ErrCategoryNotFound):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
