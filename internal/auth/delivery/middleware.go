package delivery

import (
	"net/http"
	"strings"

	"github.com/Retr0-XD/FInance-Monkey/internal/auth/usecase"
	"github.com/Retr0-XD/FInance-Monkey/pkg/logger"

	"github.com/gin-gonic/gin"
)

// AuthMiddleware resolves the bearer token and stores the user under "user" and its id under "userID"
func AuthMiddleware(authUsecase usecase.AuthUsecase) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "authorization header required"})
			c.Abort()
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization header format"})
			c.Abort()
			return
		}

		user, err := authUsecase.ValidateToken(c.Request.Context(), parts[1])
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired token"})
			c.Abort()
			return
		}

		c.Set("user", user)
		c.Set("userID", user.ID)

		ctx := c.Request.Context()
		log := logger.FromContext(ctx).With().Str("user_id", user.ID).Logger()
		c.Request = c.Request.WithContext(logger.WithContext(ctx, log))
		c.Next()
	}
}
