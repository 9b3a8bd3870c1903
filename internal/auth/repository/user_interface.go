package repository

import (
	"context"

	authdomain "github.com/Retr0-XD/FInance-Monkey/internal/auth/domain"
)

// UserRepository defines the interface for user and refresh token persistence
type UserRepository interface {
	Create(ctx context.Context, user *authdomain.User) error
	// FindByEmail returns nil when no user has the address
	FindByEmail(ctx context.Context, email string) (*authdomain.User, error)
	FindByID(ctx context.Context, id string) (*authdomain.User, error)
	Update(ctx context.Context, user *authdomain.User) error
	SaveRefreshToken(ctx context.Context, token *authdomain.RefreshToken) error
	FindRefreshToken(ctx context.Context, token string) (*authdomain.RefreshToken, error)
	DeleteRefreshToken(ctx context.Context, token string) error
	DeleteRefreshTokensByUser(ctx context.Context, userID string) error
}
