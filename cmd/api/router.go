package api

import (
	"net/http"

	accountDelivery "github.com/Retr0-XD/FInance-Monkey/internal/account/delivery"
	"github.com/Retr0-XD/FInance-Monkey/internal/auth/delivery"
	authUsecase "github.com/Retr0-XD/FInance-Monkey/internal/auth/usecase"
	backupDelivery "github.com/Retr0-XD/FInance-Monkey/internal/backup/delivery"
	txnDelivery "github.com/Retr0-XD/FInance-Monkey/internal/transaction/delivery"

	"github.com/gin-gonic/gin"
)

func SetupRoutes(r *gin.Engine, authUsecase authUsecase.AuthUsecase, accountHandler *accountDelivery.AccountHandler, transactionHandler *txnDelivery.TransactionHandler, backupHandler *backupDelivery.BackupHandler) {
	authHandler := delivery.NewAuthHandler(authUsecase)
	requireAuth := delivery.AuthMiddleware(authUsecase)

	api := r.Group("/api")
	{
		// Health check (no auth required)
		api.GET("/health", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"status": "ok"})
		})

		// Auth routes
		auth := api.Group("/auth")
		{
			auth.POST("/login", authHandler.Login)
			auth.POST("/register", authHandler.Register)
			auth.POST("/google", authHandler.GoogleSignIn)
			auth.POST("/refresh", authHandler.RefreshToken)
			auth.GET("/me", requireAuth, authHandler.Me)
			auth.POST("/logout", authHandler.Logout)
		}

		// FCM routes (protected)
		fcm := api.Group("/fcm")
		fcm.Use(requireAuth)
		{
			fcm.POST("/register", authHandler.RegisterFCMToken)
			fcm.DELETE("/:token", authHandler.UnregisterFCMToken)
		}

		// Connected mailboxes (protected)
		accounts := api.Group("/accounts")
		accounts.Use(requireAuth)
		accountHandler.RegisterRoutes(accounts)

		protected := api.Group("")
		protected.Use(requireAuth)
		transactionHandler.RegisterRoutes(protected)

		backups := api.Group("/backups")
		backups.Use(requireAuth)
		backupHandler.RegisterRoutes(backups)
	}
}
