package constants

const (
	// IDRandomBytes is the number of random bytes in generated object IDs.
	IDRandomBytes = 12

	// Default media bucket, matches what browser clients expect in public URLs.
	DefaultMediaBucket = "media-uploads"

	DefaultUploadMaxBytes      = 10 * 1024 * 1024
	DefaultInlineImageMaxBytes = 500 * 1024
	DefaultUploadCacheControl  = "3600"
	DefaultUploadConcurrency   = 4

	MaxMessageContentLength = 16000

	WSBroadcastBufferSize  = 256
	WSClientSendBufferSize = 64

	WelcomeMessage = "Hello! How can I help you today?"
	ApologyMessage = "Sorry, I encountered an error processing your request."
)

// DefaultAllowedMimeTypes are the patterns attached to the media bucket at creation.
var DefaultAllowedMimeTypes = []string{
	"image/*",
	"video/*",
	"audio/*",
	"application/pdf",
	"text/plain",
	"application/msword",
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document",
}
