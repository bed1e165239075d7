package auth

import (
	"context"

	"github.com/karysgoh/paypals-project-sub000/internal/models"
)

// Authenticator verifies account credentials. PasswordAuthenticator is the
// only implementation; AuthService depends on this interface so tests and
// future sign-in methods can supply their own.
type Authenticator interface {
	// Register creates an account. Username and email must both be unused.
	Register(ctx context.Context, username, email, credential string) (*models.User, error)

	// Authenticate returns the user whose username or email is identifier.
	// Any mismatch is reported as ErrInvalidCredentials.
	Authenticate(ctx context.Context, identifier, credential string) (*models.User, error)

	ValidateCredential(credential string) error
}
