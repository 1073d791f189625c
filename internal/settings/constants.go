package settings

// DB config keys and defaults for settings.
const (
	// SiteNameKey is the DB config key for the UI site name.
	SiteNameKey = "SITE_NAME"
	// DefaultSiteName is the fallback UI site name.
	DefaultSiteName = "CloudEZ"
	// SignupEnabledKey toggles self-service registration.
	SignupEnabledKey = "SIGNUP_ENABLED"
	// DefaultSignupEnabled is the fallback registration toggle.
	DefaultSignupEnabled = true
	// DefaultStorageQuotaKey sets the storage cap for new accounts in bytes.
	DefaultStorageQuotaKey = "DEFAULT_STORAGE_QUOTA"
	// DefaultStorageQuota is the fallback storage cap for new accounts.
	DefaultStorageQuota = int64(1 << 30)
	// MaxUploadSizeKey caps a single upload in bytes.
	MaxUploadSizeKey = "MAX_UPLOAD_SIZE"
	// DefaultMaxUploadSize is the fallback single-upload cap.
	DefaultMaxUploadSize = int64(1 << 30)
)
