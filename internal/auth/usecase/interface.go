package usecase

import (
	"context"

	authdomain "github.com/Retr0-XD/FInance-Monkey/internal/auth/domain"
	authdto "github.com/Retr0-XD/FInance-Monkey/internal/auth/dto"
)

// AuthUsecase handles user sign-in and the device tokens used for alerts
type AuthUsecase interface {
	Login(ctx context.Context, req *authdto.LoginRequest) (*authdto.TokenResponse, error)
	Register(ctx context.Context, req *authdto.RegisterRequest) (*authdto.TokenResponse, error)
	GoogleSignIn(ctx context.Context, idToken string) (*authdto.TokenResponse, error)
	// RefreshToken rotates a refresh token; the old one stops working
	RefreshToken(ctx context.Context, refreshToken string) (*authdto.TokenResponse, error)
	Logout(ctx context.Context, refreshToken string) error
	ValidateToken(ctx context.Context, accessToken string) (*authdomain.User, error)

	RegisterFCMToken(ctx context.Context, userID string, req *authdto.FCMTokenRequest) error
	UnregisterFCMToken(ctx context.Context, userID, token string) error
}

// GoogleIdentity is the verified subset of a Google ID token
type GoogleIdentity struct {
	Email         string
	Name          string
	Picture       string
	EmailVerified bool
}

// GoogleVerifier checks a Google ID token against the OAuth client id
type GoogleVerifier func(ctx context.Context, idToken, audience string) (*GoogleIdentity, error)
