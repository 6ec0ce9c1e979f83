package apperrors

type Code string

const (
	CodeUnknown           Code = "UNKNOWN"
	CodeInvalidArgument   Code = "INVALID_ARGUMENT"
	CodeNotFound          Code = "NOT_FOUND"
	CodeConflict          Code = "CONFLICT"
	CodePermissionDenied  Code = "PERMISSION_DENIED"
	CodeUnauthenticated   Code = "UNAUTHENTICATED"
	CodeDecryptionFailure Code = "DECRYPTION_FAILURE"
	CodeInternal          Code = "INTERNAL"
	CodeDeadlineExceeded  Code = "DEADLINE_EXCEEDED"
	CodeRateLimited       Code = "RATE_LIMITED"
)
