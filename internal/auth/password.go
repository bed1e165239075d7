package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/karysgoh/paypals-project-sub000/internal/models"
	"github.com/karysgoh/paypals-project-sub000/internal/storage"
)

var (
	ErrInvalidCredentials = errors.New("invalid email/username or password")
	ErrWeakPassword       = errors.New("password must be at least 8 characters")
	ErrPasswordTooLong    = errors.New("password must be at most 72 bytes")
	ErrEmailExists        = errors.New("email already registered")
	ErrUsernameExists     = errors.New("username already taken")
	ErrInvalidEmail       = errors.New("invalid email address")
	ErrInvalidUsername    = errors.New("username must be 3-30 letters, digits, '.', '_' or '-'")
)

const (
	minPasswordLength = 8
	// bcrypt only reads the first 72 bytes of its input.
	maxPasswordLength = 72
)

// UserStorage defines the interface for user persistence operations.
// This allows the authenticator to be independent of the storage implementation.
type UserStorage interface {
	CreateUser(ctx context.Context, user *models.User) error
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
	GetUserByID(ctx context.Context, id string) (*models.User, error)
}

// PasswordAuthenticator implements password-based authentication using bcrypt.
type PasswordAuthenticator struct {
	storage UserStorage
	cost    int
}

var _ Authenticator = (*PasswordAuthenticator)(nil)

// NewPasswordAuthenticator creates a new password-based authenticator.
func NewPasswordAuthenticator(storage UserStorage) *PasswordAuthenticator {
	return &PasswordAuthenticator{
		storage: storage,
		cost:    bcrypt.DefaultCost,
	}
}

// ValidateCredential checks the password length against what bcrypt accepts.
func (a *PasswordAuthenticator) ValidateCredential(credential string) error {
	if len(credential) < minPasswordLength {
		return ErrWeakPassword
	}
	if len(credential) > maxPasswordLength {
		return ErrPasswordTooLong
	}
	return nil
}

// Register creates a new user account with a hashed password.
func (a *PasswordAuthenticator) Register(ctx context.Context, username, email, credential string) (*models.User, error) {
	username = strings.TrimSpace(username)
	email = models.NormalizeEmail(email)
	if err := validateIdentity(username, email); err != nil {
		return nil, err
	}
	if err := a.ValidateCredential(credential); err != nil {
		return nil, err
	}

	if err := a.ensureAvailable(ctx, username, email); err != nil {
		return nil, err
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(credential), a.cost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := models.NewUser(username, email, string(hashedPassword))
	if err := a.storage.CreateUser(ctx, user); err != nil {
		if errors.Is(err, storage.ErrConflict) {
			// Lost a race with a concurrent registration.
			return nil, ErrEmailExists
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	return user, nil
}

func (a *PasswordAuthenticator) ensureAvailable(ctx context.Context, username, email string) error {
	_, err := a.storage.GetUserByEmail(ctx, email)
	switch {
	case err == nil:
		return ErrEmailExists
	case !errors.Is(err, storage.ErrNotFound):
		return fmt.Errorf("failed to check email: %w", err)
	}

	_, err = a.storage.GetUserByUsername(ctx, username)
	switch {
	case err == nil:
		return ErrUsernameExists
	case !errors.Is(err, storage.ErrNotFound):
		return fmt.Errorf("failed to check username: %w", err)
	}
	return nil
}

// Authenticate verifies the identifier (email or username) and password,
// returning the user if valid.
func (a *PasswordAuthenticator) Authenticate(ctx context.Context, identifier, credential string) (*models.User, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" || credential == "" {
		return nil, ErrInvalidCredentials
	}

	var (
		user *models.User
		err  error
	)
	if strings.Contains(identifier, "@") {
		user, err = a.storage.GetUserByEmail(ctx, identifier)
	} else {
		user, err = a.storage.GetUserByUsername(ctx, identifier)
	}
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load user: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(credential)); err != nil {
		return nil, ErrInvalidCredentials
	}

	return user, nil
}
