package delivery

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	authdomain "github.com/Retr0-XD/FInance-Monkey/internal/auth/domain"
	authdto "github.com/Retr0-XD/FInance-Monkey/internal/auth/dto"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

// stubAuth accepts exactly one access token
type stubAuth struct{}

func (stubAuth) Login(ctx context.Context, req *authdto.LoginRequest) (*authdto.TokenResponse, error) {
	return nil, errors.New("unused")
}
func (stubAuth) Register(ctx context.Context, req *authdto.RegisterRequest) (*authdto.TokenResponse, error) {
	return nil, errors.New("unused")
}
func (stubAuth) GoogleSignIn(ctx context.Context, idToken string) (*authdto.TokenResponse, error) {
	return nil, errors.New("unused")
}
func (stubAuth) RefreshToken(ctx context.Context, refreshToken string) (*authdto.TokenResponse, error) {
	return nil, errors.New("unused")
}
func (stubAuth) Logout(ctx context.Context, refreshToken string) error { return nil }
func (stubAuth) ValidateToken(ctx context.Context, accessToken string) (*authdomain.User, error) {
	if accessToken != "good" {
		return nil, authdomain.ErrInvalidToken
	}
	return &authdomain.User{ID: "u1", Email: "a@example.org"}, nil
}
func (stubAuth) RegisterFCMToken(ctx context.Context, userID string, req *authdto.FCMTokenRequest) error {
	return nil
}
func (stubAuth) UnregisterFCMToken(ctx context.Context, userID, token string) error { return nil }

func TestAuthMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/me", AuthMiddleware(stubAuth{}), func(c *gin.Context) {
		c.String(http.StatusOK, c.GetString("userID"))
	})

	tests := []struct {
		name   string
		header string
		status int
	}{
		{"missing header", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic good", http.StatusUnauthorized},
		{"bad token", "Bearer bad", http.StatusUnauthorized},
		{"good token", "Bearer good", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			assert.Equal(t, tt.status, w.Code)
			if tt.status == http.StatusOK {
				assert.Equal(t, "u1", w.Body.String())
			}
		})
	}
}
