package app

import (
	"context"
	"errors"
	"strings"

	"elib/internal/util"
	"elib/pkg/auth"
	"elib/pkg/domain"
	"elib/pkg/store"
)

// RegisterInput is the body of a registration request.
type RegisterInput struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginInput is the body of a login request.
type LoginInput struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Register creates an account and returns an access token for it.
func (a *App) Register(ctx context.Context, in RegisterInput) (string, error) {
	name := strings.TrimSpace(in.Name)
	email := normalizeEmail(in.Email)
	if name == "" || email == "" || in.Password == "" {
		return "", ErrAllFieldsRequired
	}
	logger := util.LoggerFromContext(ctx)

	exists, err := a.store.HasUserEmail(ctx, email)
	if err != nil {
		logger.Error("check email failed", "err", err)
		return "", wrap(ErrLoadUser, err)
	}
	if exists {
		return "", ErrEmailRegistered
	}
	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		if errors.Is(err, auth.ErrPasswordTooLong) {
			return "", ErrPasswordTooLong
		}
		return "", wrap(ErrCreateUser, err)
	}
	user, err := a.store.CreateUser(ctx, domain.User{
		Name:         name,
		Email:        email,
		PasswordHash: hash,
	})
	if err != nil {
		if errors.Is(err, store.ErrEmailTaken) {
			return "", ErrEmailRegistered
		}
		logger.Error("create user failed", "err", err)
		return "", wrap(ErrCreateUser, err)
	}
	token, err := a.sessions.NewSession(user.ID)
	if err != nil {
		logger.Error("issue token failed", "user_id", user.ID, "err", err)
		return "", wrap(ErrIssueToken, err)
	}
	logger.Info("user registered", "user_id", user.ID)
	return token, nil
}

// Login verifies credentials and returns a fresh access token.
func (a *App) Login(ctx context.Context, in LoginInput) (string, error) {
	email := normalizeEmail(in.Email)
	if email == "" || in.Password == "" {
		return "", ErrAllFieldsRequired
	}
	logger := util.LoggerFromContext(ctx)

	user, ok, err := a.store.GetUserByEmail(ctx, email)
	if err != nil {
		logger.Error("load user failed", "err", err)
		return "", wrap(ErrLoadUser, err)
	}
	if !ok {
		return "", ErrUserNotFound
	}
	if !auth.CheckPassword(in.Password, user.PasswordHash) {
		return "", ErrInvalidCredentials
	}
	token, err := a.sessions.NewSession(user.ID)
	if err != nil {
		logger.Error("issue token failed", "user_id", user.ID, "err", err)
		return "", wrap(ErrIssueToken, err)
	}
	return token, nil
}

// Logout revokes the token until its natural expiry.
func (a *App) Logout(ctx context.Context, token string) error {
	if err := a.sessions.DeleteSession(ctx, token); err != nil {
		util.LoggerFromContext(ctx).Error("revoke token failed", "err", err)
		return wrap(ErrInternal, err)
	}
	return nil
}

// UserFromToken verifies an access token and returns the caller id.
func (a *App) UserFromToken(ctx context.Context, token string) (string, error) {
	id, ok, err := a.sessions.GetUserIDByToken(ctx, token)
	if err != nil {
		if errors.Is(err, store.ErrInvalidToken) || errors.Is(err, store.ErrTokenRevoked) {
			return "", wrap(ErrTokenExpired, err)
		}
		util.LoggerFromContext(ctx).Error("verify token failed", "err", err)
		return "", wrap(ErrInternal, err)
	}
	if !ok || id == "" {
		return "", ErrTokenExpired
	}
	// Tokens outlive deleted accounts.
	_, found, err := a.store.GetUserByID(ctx, id)
	if err != nil {
		util.LoggerFromContext(ctx).Error("load token user failed", "user_id", id, "err", err)
		return "", wrap(ErrLoadUser, err)
	}
	if !found {
		return "", ErrTokenExpired
	}
	return id, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
