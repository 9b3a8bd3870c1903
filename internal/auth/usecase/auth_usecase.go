package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	authdomain "github.com/Retr0-XD/FInance-Monkey/internal/auth/domain"
	authdto "github.com/Retr0-XD/FInance-Monkey/internal/auth/dto"
	"github.com/Retr0-XD/FInance-Monkey/internal/auth/repository"
	"github.com/Retr0-XD/FInance-Monkey/pkg/config"
	"github.com/Retr0-XD/FInance-Monkey/pkg/logger"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"google.golang.org/api/idtoken"
)

// authUsecase implements AuthUsecase interface
type authUsecase struct {
	userRepo     repository.UserRepository
	fcmTokenRepo repository.FCMTokenRepository
	config       *config.Config
	verifyGoogle GoogleVerifier
}

// NewAuthUsecase creates a new instance of authUsecase
func NewAuthUsecase(userRepo repository.UserRepository, fcmTokenRepo repository.FCMTokenRepository, cfg *config.Config) AuthUsecase {
	return &authUsecase{
		userRepo:     userRepo,
		fcmTokenRepo: fcmTokenRepo,
		config:       cfg,
		verifyGoogle: VerifyGoogleIDToken,
	}
}

// NewAuthUsecaseWithVerifier is NewAuthUsecase with a custom Google token check
func NewAuthUsecaseWithVerifier(userRepo repository.UserRepository, fcmTokenRepo repository.FCMTokenRepository, cfg *config.Config, verify GoogleVerifier) AuthUsecase {
	uc := NewAuthUsecase(userRepo, fcmTokenRepo, cfg).(*authUsecase)
	uc.verifyGoogle = verify
	return uc
}

// VerifyGoogleIDToken validates the token signature and audience with Google's public keys
func VerifyGoogleIDToken(ctx context.Context, idToken, audience string) (*GoogleIdentity, error) {
	payload, err := idtoken.Validate(ctx, idToken, audience)
	if err != nil {
		return nil, err
	}
	identity := &GoogleIdentity{}
	identity.Email, _ = payload.Claims["email"].(string)
	identity.Name, _ = payload.Claims["name"].(string)
	identity.Picture, _ = payload.Claims["picture"].(string)
	identity.EmailVerified, _ = payload.Claims["email_verified"].(bool)
	return identity, nil
}

func (u *authUsecase) Login(ctx context.Context, req *authdto.LoginRequest) (*authdto.TokenResponse, error) {
	user, err := u.userRepo.FindByEmail(ctx, req.Email)
	if err != nil {
		return nil, err
	}

	if user == nil {
		return nil, authdomain.ErrInvalidCredentials
	}

	if user.Provider != authdomain.ProviderEmail {
		return nil, errors.New("please use Google Sign-In for this account")
	}

	if !repository.CheckPasswordHash(req.Password, user.Password) {
		return nil, authdomain.ErrInvalidCredentials
	}

	return u.generateTokens(ctx, user)
}

func (u *authUsecase) Register(ctx context.Context, req *authdto.RegisterRequest) (*authdto.TokenResponse, error) {
	existing, err := u.userRepo.FindByEmail(ctx, req.Email)
	if err != nil {
		return nil, err
	}

	if existing != nil {
		return nil, authdomain.ErrEmailTaken
	}

	hashedPassword, err := repository.HashPassword(req.Password)
	if err != nil {
		return nil, err
	}

	user := &authdomain.User{
		Email:    req.Email,
		Password: hashedPassword,
		Name:     req.Name,
		Provider: authdomain.ProviderEmail,
	}

	if err := u.userRepo.Create(ctx, user); err != nil {
		return nil, err
	}

	log := logger.FromContext(ctx)
	log.Info().Str("user_id", user.ID).Msg("user registered")
	return u.generateTokens(ctx, user)
}

func (u *authUsecase) GoogleSignIn(ctx context.Context, idToken string) (*authdto.TokenResponse, error) {
	identity, err := u.verifyGoogle(ctx, idToken, u.config.GoogleClientID)
	if err != nil {
		return nil, fmt.Errorf("failed to verify Google token: %w", err)
	}

	if !identity.EmailVerified {
		return nil, errors.New("google email is not verified")
	}

	user, err := u.userRepo.FindByEmail(ctx, identity.Email)
	if err != nil {
		return nil, err
	}

	if user == nil {
		user = &authdomain.User{
			Email:     identity.Email,
			Name:      identity.Name,
			AvatarURL: identity.Picture,
			Provider:  authdomain.ProviderGoogle,
		}
		if err := u.userRepo.Create(ctx, user); err != nil {
			return nil, err
		}
	} else {
		user.Name = identity.Name
		user.AvatarURL = identity.Picture
		if err := u.userRepo.Update(ctx, user); err != nil {
			return nil, err
		}
	}

	return u.generateTokens(ctx, user)
}

func (u *authUsecase) RefreshToken(ctx context.Context, refreshToken string) (*authdto.TokenResponse, error) {
	userID, err := u.parseUserID(refreshToken)
	if err != nil {
		return nil, authdomain.ErrInvalidToken
	}

	storedToken, err := u.userRepo.FindRefreshToken(ctx, refreshToken)
	if err != nil {
		return nil, err
	}

	if storedToken == nil || storedToken.UserID != userID || storedToken.ExpiresAt.Before(time.Now()) {
		return nil, authdomain.ErrInvalidToken
	}

	user, err := u.userRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	if user == nil {
		return nil, authdomain.ErrUserNotFound
	}

	if err := u.userRepo.DeleteRefreshToken(ctx, refreshToken); err != nil {
		return nil, err
	}
	return u.generateTokens(ctx, user)
}

func (u *authUsecase) Logout(ctx context.Context, refreshToken string) error {
	return u.userRepo.DeleteRefreshToken(ctx, refreshToken)
}

func (u *authUsecase) ValidateToken(ctx context.Context, tokenString string) (*authdomain.User, error) {
	userID, err := u.parseUserID(tokenString)
	if err != nil {
		return nil, authdomain.ErrInvalidToken
	}

	user, err := u.userRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	if user == nil {
		return nil, authdomain.ErrUserNotFound
	}

	return user, nil
}

func (u *authUsecase) RegisterFCMToken(ctx context.Context, userID string, req *authdto.FCMTokenRequest) error {
	return u.fcmTokenRepo.SaveToken(ctx, userID, req.Token, req.DeviceInfo)
}

func (u *authUsecase) UnregisterFCMToken(ctx context.Context, userID, token string) error {
	return u.fcmTokenRepo.DeleteToken(ctx, userID, token)
}

func (u *authUsecase) parseUserID(tokenString string) (string, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		return []byte(u.config.JWTSecret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))

	if err != nil || !token.Valid {
		return "", errors.New("invalid token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", errors.New("invalid token claims")
	}

	userID, ok := claims["user_id"].(string)
	if !ok || userID == "" {
		return "", errors.New("invalid token claims")
	}
	return userID, nil
}

func (u *authUsecase) generateTokens(ctx context.Context, user *authdomain.User) (*authdto.TokenResponse, error) {
	accessToken, err := u.generateAccessToken(user)
	if err != nil {
		return nil, err
	}

	refreshToken, err := u.generateRefreshToken(user)
	if err != nil {
		return nil, err
	}

	refreshTokenEntity := &authdomain.RefreshToken{
		Token:     refreshToken,
		UserID:    user.ID,
		ExpiresAt: time.Now().Add(u.config.JWTRefreshExpiry),
	}
	if err := u.userRepo.SaveRefreshToken(ctx, refreshTokenEntity); err != nil {
		return nil, err
	}

	return &authdto.TokenResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		User:         user,
	}, nil
}

func (u *authUsecase) generateAccessToken(user *authdomain.User) (string, error) {
	claims := jwt.MapClaims{
		"user_id": user.ID,
		"email":   user.Email,
		"exp":     time.Now().Add(u.config.JWTAccessExpiry).Unix(),
		"iat":     time.Now().Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(u.config.JWTSecret))
}

func (u *authUsecase) generateRefreshToken(user *authdomain.User) (string, error) {
	claims := jwt.MapClaims{
		"user_id":  user.ID,
		"token_id": uuid.New().String(),
		"exp":      time.Now().Add(u.config.JWTRefreshExpiry).Unix(),
		"iat":      time.Now().Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(u.config.JWTSecret))
}
