package errors

import "time"

// New creates a generic AppError with the supplied metadata.
func New(category ErrorCategory, code string, message string, err error) *AppError {
	return &AppError{
		Code:      code,
		Category:  category,
		Message:   message,
		Err:       err,
		Timestamp: time.Now(),
	}
}

// NewRecoverable creates an AppError flagged as safe to retry.
func NewRecoverable(category ErrorCategory, code string, message string, err error) *AppError {
	return New(category, code, message, err).WithRecoverable(true)
}

// SystemError creates a SYSTEM category error instance.
func SystemError(code, message string, err error) *AppError {
	return New(ErrCategorySystem, code, message, err)
}

// NetworkError creates a NETWORK category error instance.
func NetworkError(code, message string, err error) *AppError {
	return NewRecoverable(ErrCategoryNetwork, code, message, err)
}

// ConfigError creates a CONFIG category error instance.
func ConfigError(code, message string, err error) *AppError {
	return New(ErrCategoryConfig, code, message, err)
}

// ValidationError creates a VALIDATION category error instance.
func ValidationError(code, message string, err error) *AppError {
	return New(ErrCategoryValidation, code, message, err)
}

// DatabaseError creates a DATABASE category error instance.
func DatabaseError(code, message string, err error) *AppError {
	return New(ErrCategoryDatabase, code, message, err)
}

// ManifestError reports a malformed or incomplete manifest.
func ManifestError(code, message string, err error) *AppError {
	return New(ErrCategoryValidation, code, message, err).WithField(FieldPhase, string(PhaseManifest))
}

// VerificationError reports a checksum mismatch after both byte orders were tried.
func VerificationError(message string, err error) *AppError {
	return New(ErrCategoryVerification, CodeVerifyMismatch, message, err)
}

// IOError reports a local filesystem failure.
func IOError(code, message string, err error) *AppError {
	return New(ErrCategorySystem, code, message, err)
}

// TransferError reports a network copy failure. Timeouts and connection
// failures are flagged recoverable.
func TransferError(code, message string, err error) *AppError {
	appErr := New(ErrCategoryNetwork, code, message, err)
	switch code {
	case CodeTransferTimeout, CodeTransferConnectionFailed:
		appErr.Recoverable = true
	}
	return appErr
}
