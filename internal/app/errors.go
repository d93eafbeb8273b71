package app

import "errors"

// Kind classifies an application error for the transport layer.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindUnauthenticated
	KindForbidden
	KindNotFound
	KindConflict
	KindInvalidCredentials
	KindUploadFailed
	KindPersistenceFailed
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindUnauthenticated:
		return "unauthenticated"
	case KindForbidden:
		return "forbidden"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindInvalidCredentials:
		return "invalid_credentials"
	case KindUploadFailed:
		return "upload_failed"
	case KindPersistenceFailed:
		return "persistence_failed"
	default:
		return "internal"
	}
}

// Error is returned by every App operation. Message is safe to show to clients;
// Err keeps the underlying cause for logs.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches sentinels by kind and message so wrapped copies still compare equal.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind && e.Message == t.Message
}

func newError(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

// wrap returns a copy of sentinel carrying cause.
func wrap(sentinel *Error, cause error) *Error {
	return &Error{Kind: sentinel.Kind, Message: sentinel.Message, Err: cause}
}

// KindOf reports the Kind of err, or KindInternal for foreign errors.
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindInternal
}

var (
	ErrAllFieldsRequired = newError(KindValidation, "All fields are required")
	ErrBookFilesRequired = newError(KindValidation, "Cover image or filename is required")
	ErrInvalidPDF        = newError(KindValidation, "Book file must be a valid PDF")
	ErrPasswordTooLong   = newError(KindValidation, "Password is too long")

	ErrTokenRequired = newError(KindUnauthenticated, "Authorization token is required")
	ErrTokenFormat   = newError(KindUnauthenticated, "Invalid format token")
	ErrTokenExpired  = newError(KindUnauthenticated, "Token expired")

	ErrUpdateForbidden = newError(KindForbidden, "You can not update others book")
	ErrDeleteForbidden = newError(KindForbidden, "You can not delete others book")

	ErrBookNotFound = newError(KindNotFound, "Book not found")
	ErrUserNotFound = newError(KindNotFound, "User not found")

	// ErrEmailRegistered is surfaced as 400 to match the public API.
	ErrEmailRegistered = newError(KindConflict, "Email registered already")

	ErrInvalidCredentials = newError(KindInvalidCredentials, "Username or password incorrect")

	ErrUploadFiles = newError(KindUploadFailed, "Error while uploading the files")
	ErrDeleteFiles = newError(KindUploadFailed, "Error while deleting the files")

	ErrCreateBook = newError(KindPersistenceFailed, "Error while creating book")
	ErrUpdateBook = newError(KindPersistenceFailed, "Error while updating book")
	ErrDeleteBook = newError(KindPersistenceFailed, "Error while deleting book")
	ErrLoadBook   = newError(KindPersistenceFailed, "Error while getting book")
	ErrLoadBooks  = newError(KindPersistenceFailed, "Error while getting books")
	ErrLoadUser   = newError(KindPersistenceFailed, "Error while getting user")
	ErrCreateUser = newError(KindPersistenceFailed, "Error while creating user")

	ErrIssueToken = newError(KindInternal, "Error while signing the jwt token")
	ErrInternal   = newError(KindInternal, "Internal server error")
)
