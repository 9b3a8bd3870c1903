package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	accountDelivery "github.com/Retr0-XD/FInance-Monkey/internal/account/delivery"
	authUsecase "github.com/Retr0-XD/FInance-Monkey/internal/auth/usecase"
	backupDelivery "github.com/Retr0-XD/FInance-Monkey/internal/backup/delivery"
	txnDelivery "github.com/Retr0-XD/FInance-Monkey/internal/transaction/delivery"
	txnUsecase "github.com/Retr0-XD/FInance-Monkey/internal/transaction/usecase"
	"github.com/Retr0-XD/FInance-Monkey/pkg/logger"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	authUsecase        authUsecase.AuthUsecase
	accountHandler     *accountDelivery.AccountHandler
	transactionHandler *txnDelivery.TransactionHandler
	backupHandler      *backupDelivery.BackupHandler
}

func NewHandler(app *App) *Handler {
	return &Handler{
		authUsecase:        app.Auth,
		accountHandler:     accountDelivery.NewAccountHandler(app.Accounts, app.Sync),
		transactionHandler: txnDelivery.NewTransactionHandler(app.Transactions, app.Categories, txnUsecase.NewTransactionUsecase(app.Transactions, app.Categories)),
		backupHandler:      backupDelivery.NewBackupHandler(app.Backup),
	}
}

// Engine builds the gin engine with CORS and every route mounted
func (h *Handler) Engine(ctx context.Context) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(ctx))

	// CORS middleware
	r.Use(func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if origin != "" {
			c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
		} else {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		}

		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE, PATCH")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	})

	SetupRoutes(r, h.authUsecase, h.accountHandler, h.transactionHandler, h.backupHandler)
	return r
}

// Start serves until ctx is cancelled, then drains in-flight requests
func (h *Handler) Start(ctx context.Context, addr string) error {
	gin.SetMode(gin.ReleaseMode)
	log := logger.Component(logger.FromContext(ctx), "http")

	srv := &http.Server{
		Addr:              addr,
		Handler:           h.Engine(ctx),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Msg("server starting")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	log.Info().Msg("server stopped")
	return nil
}

// requestLogger attaches the base logger to each request and logs the outcome
func requestLogger(ctx context.Context) gin.HandlerFunc {
	base := logger.Component(logger.FromContext(ctx), "http")
	return func(c *gin.Context) {
		start := time.Now()
		c.Request = c.Request.WithContext(logger.WithContext(c.Request.Context(), base))
		c.Next()
		base.Debug().
			Str("method", c.Request.Method).
			Str("path", c.FullPath()).
			Int("status", c.Writer.Status()).
			Dur("took", time.Since(start)).
			Msg("request")
	}
}
