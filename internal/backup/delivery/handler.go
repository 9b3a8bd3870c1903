package delivery

import (
	"errors"
	"net/http"

	backupdomain "github.com/Retr0-XD/FInance-Monkey/internal/backup/domain"
	"github.com/Retr0-XD/FInance-Monkey/internal/backup/usecase"

	"github.com/gin-gonic/gin"
)

type BackupHandler struct {
	backupUsecase usecase.BackupUsecase
}

func NewBackupHandler(backupUsecase usecase.BackupUsecase) *BackupHandler {
	return &BackupHandler{backupUsecase: backupUsecase}
}

func (h *BackupHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("", h.Export)
	rg.GET("/latest", h.Latest)
}

func (h *BackupHandler) Export(c *gin.Context) {
	result, err := h.backupUsecase.Export(c.Request.Context(), c.GetString("userID"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, result)
}

func (h *BackupHandler) Latest(c *gin.Context) {
	txns, err := h.backupUsecase.Latest(c.Request.Context(), c.GetString("userID"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"transactions": txns})
}

func respondError(c *gin.Context, err error) {
	if errors.Is(err, backupdomain.ErrNotConfigured) {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
}
