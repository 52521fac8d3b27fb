package constants

const (
	// Shared REST/WS transport-agnostic errors
	ErrCodeRateLimited       = "RATE_LIMITED"
	ErrCodeInvalidRequest    = "INVALID_REQUEST"
	ErrCodePayloadTooLarge   = "PAYLOAD_TOO_LARGE"
	ErrCodeNotFound          = "NOT_FOUND"
	ErrCodeConflict          = "CONFLICT"
	ErrCodeInternal          = "INTERNAL_ERROR"

	// Chat domain errors
	ErrCodeMessageTooLong    = "MESSAGE_TOO_LONG"
	ErrCodeEmptyMessage      = "EMPTY_MESSAGE"
	ErrCodeReplyPending      = "REPLY_PENDING"
	ErrCodeUploadsInFlight   = "UPLOADS_IN_FLIGHT"
	ErrCodeSessionNotFound   = "SESSION_NOT_FOUND"
	ErrCodeBucketUnavailable = "BUCKET_UNAVAILABLE"
)
