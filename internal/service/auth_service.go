package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"connectrpc.com/connect"

	"github.com/karysgoh/paypals-project-sub000/internal/auth"
	"github.com/karysgoh/paypals-project-sub000/internal/mail"
	"github.com/karysgoh/paypals-project-sub000/internal/middleware"
	"github.com/karysgoh/paypals-project-sub000/internal/models"
	"github.com/karysgoh/paypals-project-sub000/internal/paynow"
	"github.com/karysgoh/paypals-project-sub000/internal/storage"
)

const defaultVerifyTTL = 24 * time.Hour

// AuthResult is returned by Register and Login.
type AuthResult struct {
	User      *models.User `json:"user"`
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expires_at"`
}

// RegisterInput holds the sign-up form.
type RegisterInput struct {
	Username string `json:"username" binding:"required,min=3,max=30"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=8,max=72"`
}

// PaymentSettingsInput is a partial update; nil fields are left unchanged.
type PaymentSettingsInput struct {
	PhoneNumber   *string `json:"phone_number"`
	PayNowPhone   *string `json:"paynow_phone"`
	PayNowEnabled *bool   `json:"paynow_enabled"`
}

// AuthServiceConfig carries the settings AuthService needs beyond its collaborators.
type AuthServiceConfig struct {
	Links     Links
	VerifyTTL time.Duration
}

// AuthService handles accounts, sessions and email verification.
type AuthService struct {
	store         storage.Store
	authenticator auth.Authenticator
	jwtManager    *auth.JWTManager
	revocations   auth.RevocationStore
	notifier      *Notifier
	links         Links
	verifyTTL     time.Duration
	logger        *slog.Logger
}

// NewAuthService creates a new authentication service.
func NewAuthService(
	store storage.Store,
	authenticator auth.Authenticator,
	jwtManager *auth.JWTManager,
	revocations auth.RevocationStore,
	notifier *Notifier,
	cfg AuthServiceConfig,
	logger *slog.Logger,
) *AuthService {
	if cfg.VerifyTTL <= 0 {
		cfg.VerifyTTL = defaultVerifyTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthService{
		store:         store,
		authenticator: authenticator,
		jwtManager:    jwtManager,
		revocations:   revocations,
		notifier:      notifier,
		links:         cfg.Links,
		verifyTTL:     cfg.VerifyTTL,
		logger:        logger,
	}
}

// Register creates a new user account, claims any invitations sent to the
// email address and sends a verification link.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*AuthResult, error) {
	s.logger.Info("Register request", "email", in.Email, "username", in.Username)

	if strings.TrimSpace(in.Email) == "" || strings.TrimSpace(in.Username) == "" || in.Password == "" {
		return nil, invalidArgument("username, email and password are required")
	}

	user, err := s.authenticator.Register(ctx, in.Username, in.Email, in.Password)
	if err != nil {
		s.logger.Warn("Registration failed", "email", in.Email, "error", err)
		switch {
		case errors.Is(err, auth.ErrEmailExists), errors.Is(err, auth.ErrUsernameExists):
			return nil, connect.NewError(connect.CodeAlreadyExists, err)
		case errors.Is(err, auth.ErrWeakPassword), errors.Is(err, auth.ErrPasswordTooLong), errors.Is(err, auth.ErrInvalidEmail), errors.Is(err, auth.ErrInvalidUsername):
			return nil, connect.NewError(connect.CodeInvalidArgument, err)
		}
		return nil, connect.NewError(connect.CodeInternal, errors.New("failed to register"))
	}

	claimed, err := s.store.ClaimEmailInvitations(ctx, user.ID, user.Email)
	if err != nil {
		s.logger.Error("Failed to claim email invitations", "user_id", user.ID, "error", err)
	} else if claimed > 0 {
		s.logger.Info("Claimed email invitations", "user_id", user.ID, "count", claimed)
	}

	s.sendVerification(ctx, user)

	result, err := s.issue(user)
	if err != nil {
		return nil, err
	}
	s.logger.Info("User registered successfully", "user_id", user.ID, "email", user.Email)
	return result, nil
}

// Login authenticates by email or username and returns a session token.
func (s *AuthService) Login(ctx context.Context, identifier, password string) (*AuthResult, error) {
	s.logger.Info("Login request", "identifier", identifier)

	if strings.TrimSpace(identifier) == "" || password == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, auth.ErrInvalidCredentials)
	}

	user, err := s.authenticator.Authenticate(ctx, identifier, password)
	if err != nil {
		s.logger.Warn("Login failed", "identifier", identifier, "error", err)
		if errors.Is(err, auth.ErrInvalidCredentials) {
			return nil, connect.NewError(connect.CodeUnauthenticated, auth.ErrInvalidCredentials)
		}
		return nil, connect.NewError(connect.CodeInternal, errors.New("failed to log in"))
	}

	result, err := s.issue(user)
	if err != nil {
		return nil, err
	}
	s.logger.Info("User logged in successfully", "user_id", user.ID)
	return result, nil
}

func (s *AuthService) issue(user *models.User) (*AuthResult, error) {
	token, err := s.jwtManager.Generate(user)
	if err != nil {
		s.logger.Error("Failed to generate token", "user_id", user.ID, "error", err)
		return nil, connect.NewError(connect.CodeInternal, errors.New("failed to create session"))
	}
	return &AuthResult{
		User:      user,
		Token:     token,
		ExpiresAt: time.Now().Add(s.jwtManager.TokenDuration()),
	}, nil
}

// Logout revokes the current session token until it would have expired.
func (s *AuthService) Logout(ctx context.Context) error {
	claims := middleware.GetClaims(ctx)
	if claims == nil {
		return connect.NewError(connect.CodeUnauthenticated, auth.ErrMissingToken)
	}

	until := time.Now().Add(s.jwtManager.TokenDuration())
	if claims.ExpiresAt != nil {
		until = claims.ExpiresAt.Time
	}
	if err := s.revocations.Revoke(ctx, claims.ID, until); err != nil {
		s.logger.Error("Failed to revoke session", "user_id", claims.UserID, "error", err)
		return connect.NewError(connect.CodeInternal, errors.New("failed to log out"))
	}

	s.logger.Info("User logged out", "user_id", claims.UserID)
	return nil
}

// CurrentUser returns the authenticated user's account.
func (s *AuthService) CurrentUser(ctx context.Context) (*models.User, error) {
	userID, err := requireUser(ctx)
	if err != nil {
		return nil, err
	}
	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			// Account deleted after the token was issued.
			return nil, connect.NewError(connect.CodeUnauthenticated, auth.ErrInvalidToken)
		}
		return nil, storeError(err, "user")
	}
	return user, nil
}

// VerifyEmail marks the account verified. Verifying twice is not an error.
func (s *AuthService) VerifyEmail(ctx context.Context, token string) (*models.User, error) {
	if strings.TrimSpace(token) == "" {
		return nil, invalidArgument("token is required")
	}
	claims, err := s.jwtManager.ValidatePurpose(token, auth.PurposeVerifyEmail)
	if err != nil {
		s.logger.Warn("Invalid verification token", "error", err)
		return nil, invalidArgument("verification link is invalid or has expired")
	}

	user, err := s.store.GetUserByID(ctx, claims.UserID)
	if err != nil {
		return nil, storeError(err, "user")
	}
	if user.Email != claims.Email {
		return nil, invalidArgument("verification link was issued for a different email address")
	}
	if user.EmailVerified {
		return user, nil
	}

	user.EmailVerified = true
	user.UpdatedAt = time.Now().Unix()
	if err := s.store.UpdateUser(ctx, user); err != nil {
		return nil, storeError(err, "user")
	}
	s.logger.Info("Email verified", "user_id", user.ID)
	return user, nil
}

// ResendVerification sends a fresh verification link.
func (s *AuthService) ResendVerification(ctx context.Context) error {
	user, err := s.CurrentUser(ctx)
	if err != nil {
		return err
	}
	if user.EmailVerified {
		return failedPrecondition("email is already verified")
	}
	s.sendVerification(ctx, user)
	return nil
}

func (s *AuthService) sendVerification(ctx context.Context, user *models.User) {
	token, err := s.jwtManager.GeneratePurpose(user, auth.PurposeVerifyEmail, s.verifyTTL)
	if err != nil {
		s.logger.Error("Failed to generate verification token", "user_id", user.ID, "error", err)
		return
	}
	s.notifier.Email(ctx, mail.VerificationEmail(user.Email, user.Username, s.links.VerifyLink(token)))
}

// UpdatePaymentSettings changes the caller's phone and PayNow details.
// PayNow cannot be enabled without a valid Singapore mobile number.
func (s *AuthService) UpdatePaymentSettings(ctx context.Context, in PaymentSettingsInput) (*models.User, error) {
	user, err := s.CurrentUser(ctx)
	if err != nil {
		return nil, err
	}

	if in.PhoneNumber != nil {
		user.PhoneNumber = strings.TrimSpace(*in.PhoneNumber)
	}
	if in.PayNowPhone != nil {
		phone := strings.TrimSpace(*in.PayNowPhone)
		if phone != "" {
			phone, err = paynow.NormalizeMobile(phone)
			if err != nil {
				return nil, connect.NewError(connect.CodeInvalidArgument, err)
			}
		}
		user.PayNowPhone = phone
	}
	if in.PayNowEnabled != nil {
		user.PayNowEnabled = *in.PayNowEnabled
	}
	if user.PayNowEnabled && user.PayNowPhone == "" {
		return nil, invalidArgument("a PayNow mobile number is required to enable PayNow")
	}

	user.UpdatedAt = time.Now().Unix()
	if err := s.store.UpdateUser(ctx, user); err != nil {
		return nil, storeError(err, "user")
	}
	s.logger.Info("Payment settings updated", "user_id", user.ID, "paynow_enabled", user.PayNowEnabled)
	return user, nil
}

// SearchUsers finds other users by username or email prefix.
func (s *AuthService) SearchUsers(ctx context.Context, query string, limit int) ([]models.UserSummary, error) {
	userID, err := requireUser(ctx)
	if err != nil {
		return nil, err
	}
	query = strings.TrimSpace(query)
	if len(query) < 2 {
		return nil, invalidArgument("search query must be at least 2 characters")
	}
	if limit <= 0 || limit > 20 {
		limit = 10
	}

	// One extra row in case the caller matches their own query.
	users, err := s.store.SearchUsers(ctx, query, limit+1)
	if err != nil {
		return nil, storeError(err, "users")
	}
	results := make([]models.UserSummary, 0, len(users))
	for _, u := range users {
		if u.ID == userID || len(results) == limit {
			continue
		}
		results = append(results, u.Summary())
	}
	return results, nil
}
