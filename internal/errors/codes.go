package errors

// Generic error code definitions used as sensible defaults across modules.
const (
	CodeSystemGeneric     = "SYS-000"
	CodeNetworkGeneric    = "NET-000"
	CodeConfigGeneric     = "CFG-000"
	CodeValidationGeneric = "VAL-000"
	CodeDatabaseGeneric   = "DB-000"
)

// Manifest errors abort a sync before any I/O happens.
const (
	CodeManifestInvalidEntry = "MAN-001"
	CodeManifestDecode       = "MAN-002"
	CodeManifestEmpty        = "MAN-003"
)

// CodeVerifyMismatch marks a checksum that matched neither byte order.
const CodeVerifyMismatch = "VFY-001"

// Local filesystem failures.
const (
	CodeIOGeneric           = "IO-001"
	CodeIOInsufficientSpace = "IO-002"
)

// Transfer failures. Timeout and ConnectionFailed are retried by the copier;
// RetriesExhausted and HTTPStatus are fatal.
const (
	CodeTransferTimeout          = "NET-101"
	CodeTransferConnectionFailed = "NET-102"
	CodeTransferRetriesExhausted = "NET-103"
	CodeTransferHTTPStatus       = "NET-104"
)
