package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/iliyamo/pill-dispenser/internal/model"
	"github.com/iliyamo/pill-dispenser/internal/repository"
	"github.com/iliyamo/pill-dispenser/internal/utils"
	"github.com/iliyamo/pill-dispenser/internal/validation"
)

// AuthConfig carries the token and hashing settings.
type AuthConfig struct {
	JWTSecret      string
	AccessTTLMin   int
	RefreshTTLDays int
	BcryptCost     int
}

// Session is the token pair handed to a client after register or login.
type Session struct {
	Access  string
	Refresh string
}

// Caller identifies the authenticated user making a request.
type Caller struct {
	ID   uint64
	Role string
}

// IsStaff reports whether the caller holds the STAFF role.
func (c Caller) IsStaff() bool { return c.Role == model.RoleStaff }

// AuthService registers accounts, checks credentials and manages tokens.
type AuthService struct {
	users  UserStore
	tokens TokenStore
	cfg    AuthConfig
	log    *slog.Logger
	now    func() time.Time
}

func NewAuthService(users UserStore, tokens TokenStore, cfg AuthConfig) *AuthService {
	return &AuthService{
		users:  users,
		tokens: tokens,
		cfg:    cfg,
		log:    slog.Default().With("component", "auth"),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Register validates in and creates the account.  All violated rules are
// reported together.
func (s *AuthService) Register(ctx context.Context, in validation.Registration) (*model.User, error) {
	reg, v, err := validation.UserRegistration(ctx, s.users, in)
	if err != nil {
		return nil, fmt.Errorf("registration lookup: %w", err)
	}
	if !v.OK() {
		return nil, invalid(v)
	}
	hash, err := utils.HashPassword(reg.Password, s.cfg.BcryptCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	u := &model.User{
		Email:        reg.Email,
		Username:     reg.Username,
		PhoneNumber:  reg.PhoneNumber,
		PasswordHash: hash,
		IsActive:     true,
	}
	if err := s.users.Create(ctx, u); err != nil {
		switch {
		case errors.Is(err, repository.ErrEmailExists):
			return nil, &ConflictError{Message: validation.MsgEmailTaken}
		case errors.Is(err, repository.ErrUsernameExists):
			return nil, &ConflictError{Message: validation.MsgUsernameTaken}
		}
		return nil, fmt.Errorf("create user: %w", err)
	}
	s.log.Info("user registered", "user_id", u.ID)
	return u, nil
}

// Authenticate returns the active account matching email and password.
// Unknown email, wrong password and inactive account all yield the same
// AuthenticationError, and unknown emails still pay for a bcrypt compare.
func (s *AuthService) Authenticate(ctx context.Context, email, password string) (*model.User, error) {
	email = validation.NormalizeEmail(email)
	if email == "" {
		return nil, invalidMsg(validation.MsgEmailRequired)
	}
	if password == "" {
		return nil, invalidMsg(validation.MsgPasswordRequired)
	}
	u, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			utils.BurnPasswordCheck(password)
			return nil, &AuthenticationError{Message: validation.MsgBadCredentials}
		}
		return nil, fmt.Errorf("load user: %w", err)
	}
	if !utils.VerifyPassword(u.PasswordHash, password) || !u.IsActive {
		return nil, &AuthenticationError{Message: validation.MsgBadCredentials}
	}
	return u, nil
}

// IssueSession mints an access token and a stored refresh token for u.
func (s *AuthService) IssueSession(ctx context.Context, u *model.User) (Session, error) {
	at, err := utils.NewAccessToken(s.cfg.JWTSecret, u.ID, u.Role(), u.Username, s.cfg.AccessTTLMin)
	if err != nil {
		return Session{}, fmt.Errorf("sign access token: %w", err)
	}
	rt, err := utils.NewRefreshToken(s.cfg.RefreshTTLDays)
	if err != nil {
		return Session{}, fmt.Errorf("generate refresh token: %w", err)
	}
	if err := s.tokens.StoreRefresh(ctx, u.ID, utils.HashRefreshRaw(rt.Raw), rt.Exp); err != nil {
		return Session{}, fmt.Errorf("store refresh token: %w", err)
	}
	return Session{Access: at.Token, Refresh: rt.Raw}, nil
}

// Revoke blacklists a refresh token (logout).  Revoking a token that is
// already revoked succeeds.
func (s *AuthService) Revoke(ctx context.Context, refresh string) error {
	if refresh == "" {
		return invalidMsg(validation.MsgRefreshRequired)
	}
	if !utils.LooksLikeRefreshToken(refresh) {
		return invalidMsg(validation.MsgTokenInvalid)
	}
	hash := utils.HashRefreshRaw(refresh)
	t, err := s.tokens.FindRefresh(ctx, hash)
	if err != nil {
		if errors.Is(err, repository.ErrTokenNotFound) {
			return invalidMsg(validation.MsgTokenInvalid)
		}
		return fmt.Errorf("load refresh token: %w", err)
	}
	if t.RevokedAt != nil {
		return nil
	}
	if !s.now().Before(t.ExpiresAt) {
		return invalidMsg(validation.MsgTokenInvalid)
	}
	if err := s.tokens.RevokeByHash(ctx, hash); err != nil {
		return fmt.Errorf("revoke refresh token: %w", err)
	}
	s.log.Info("refresh token revoked", "user_id", t.UserID)
	return nil
}

// Refresh exchanges a live refresh token for a new access token.
func (s *AuthService) Refresh(ctx context.Context, refresh string) (string, error) {
	if refresh == "" {
		return "", invalidMsg(validation.MsgRefreshRequired)
	}
	denied := &AuthenticationError{Message: validation.MsgTokenInvalid}
	if !utils.LooksLikeRefreshToken(refresh) {
		return "", denied
	}
	t, err := s.tokens.FindRefresh(ctx, utils.HashRefreshRaw(refresh))
	if err != nil {
		if errors.Is(err, repository.ErrTokenNotFound) {
			return "", denied
		}
		return "", fmt.Errorf("load refresh token: %w", err)
	}
	if !t.Usable(s.now()) {
		return "", denied
	}
	u, err := s.users.GetByID(ctx, t.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return "", denied
		}
		return "", fmt.Errorf("load user: %w", err)
	}
	if !u.IsActive {
		// a deactivated account keeps no live sessions
		if err := s.tokens.RevokeAllForUser(ctx, u.ID); err != nil {
			s.log.Error("revoke sessions of inactive user", "user_id", u.ID, "err", err)
		}
		return "", denied
	}
	at, err := utils.NewAccessToken(s.cfg.JWTSecret, u.ID, u.Role(), u.Username, s.cfg.AccessTTLMin)
	if err != nil {
		return "", fmt.Errorf("sign access token: %w", err)
	}
	return at.Token, nil
}

// ListUsers returns every account.  Route-level role checks restrict it
// to staff.
func (s *AuthService) ListUsers(ctx context.Context) ([]*model.User, error) {
	users, err := s.users.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return users, nil
}

// GetUser looks an account up by username.  Staff may see anyone; other
// callers only themselves.  Anything else is reported as not found.
func (s *AuthService) GetUser(ctx context.Context, caller Caller, username string) (*model.User, error) {
	notFound := &NotFoundError{Message: validation.MsgUserNotFound}
	if username == "" {
		return nil, invalidMsg(validation.MsgUsernameRequired)
	}
	u, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, notFound
		}
		return nil, fmt.Errorf("load user: %w", err)
	}
	if !caller.IsStaff() && u.ID != caller.ID {
		return nil, notFound
	}
	return u, nil
}
