package errors

// ErrorCategory groups related application errors for unified handling.
type ErrorCategory string

const (
	ErrCategorySystem       ErrorCategory = "SYSTEM"
	ErrCategoryNetwork      ErrorCategory = "NETWORK"
	ErrCategoryConfig       ErrorCategory = "CONFIG"
	ErrCategoryValidation   ErrorCategory = "VALIDATION"
	ErrCategoryVerification ErrorCategory = "VERIFICATION"
	ErrCategoryDatabase     ErrorCategory = "DATABASE"
)

// Phase names the part of a sync operation an error escaped from.
type Phase string

const (
	PhaseManifest Phase = "manifest"
	PhaseVerify   Phase = "verify"
	PhaseDiff     Phase = "diff"
	PhaseFetch    Phase = "fetch"
	PhaseSnapshot Phase = "snapshot"
)

// Metadata keys shared by every module.
const (
	FieldAsset = "asset"
	FieldPhase = "phase"
)
