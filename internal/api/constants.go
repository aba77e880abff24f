package api

// API limits and constants.
const (
	// MaxUploadSize caps a submission form, cover included.
	MaxUploadSize = 12 << 20
)

// Cache-Control header values.
const (
	CacheFiveMinutes = "public, max-age=300"
	CachePrivateNone = "private, no-cache"
)
