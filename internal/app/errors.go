package app

import "errors"

// Error kinds. Every error returned by a service either wraps one of these or
// is an unexpected internal failure.
var (
	ErrInvalidInput  = errors.New("invalid input")
	ErrConflict      = errors.New("conflict")
	ErrUnauthorized  = errors.New("unauthorized")
	ErrForbidden     = errors.New("forbidden")
	ErrNotFound      = errors.New("not found")
	ErrLimitExceeded = errors.New("limit exceeded")
)

var (
	ErrUsernameLength    = kindError(ErrInvalidInput, "username must be 2-20 characters")
	ErrPasswordTooShort  = kindError(ErrInvalidInput, "password must be at least 6 characters")
	ErrPasswordTooLong   = kindError(ErrInvalidInput, "password must be at most 72 bytes")
	ErrCredentialMissing = kindError(ErrInvalidInput, "username and password are required")
	ErrWrongPassword     = kindError(ErrInvalidInput, "current password is incorrect")
	ErrUsernameExists    = kindError(ErrConflict, "username already exists")
	ErrInvalidCredential = kindError(ErrUnauthorized, "invalid username or password")
	ErrTokenMissing      = kindError(ErrUnauthorized, "missing authorization token")
	ErrTokenInvalid      = kindError(ErrUnauthorized, "invalid or expired token")
	ErrAdminRequired     = kindError(ErrForbidden, "admin privileges required")
	ErrUserNotFound      = kindError(ErrNotFound, "user not found")

	ErrGameIDLength      = kindError(ErrInvalidInput, "game id must be 2-20 characters")
	ErrGameIDExists      = kindError(ErrConflict, "game character already bound")
	ErrCharacterLimit    = kindError(ErrLimitExceeded, "each account may bind at most 3 characters")
	ErrCharacterNotFound = kindError(ErrNotFound, "character not found")
	ErrNotCharacterOwner = kindError(ErrForbidden, "character belongs to another user")
	ErrSignatureLength   = kindError(ErrInvalidInput, "signature must be 1-50 characters")
	ErrUnsupportedImage  = kindError(ErrInvalidInput, "only JPEG, PNG, GIF and WebP images are allowed")
	ErrImageTooLarge     = kindError(ErrInvalidInput, "screenshot exceeds the size limit")
	ErrInvalidThemeColor = kindError(ErrInvalidInput, "invalid theme color")
)

type serviceError struct {
	kind error
	msg  string
}

func kindError(kind error, msg string) error {
	return &serviceError{kind: kind, msg: msg}
}

func (e *serviceError) Error() string { return e.msg }

func (e *serviceError) Unwrap() error { return e.kind }
