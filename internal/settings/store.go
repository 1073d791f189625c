package settings

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"sync/atomic"
	"time"
)

// snapshot is one immutable view of the DB-backed settings.
type snapshot struct {
	updatedAt time.Time
	values    map[string]json.RawMessage
}

var current atomic.Pointer[snapshot]

// StoreDBConfig replaces the in-memory settings snapshot. Called after every
// admin settings mutation and at startup.
func StoreDBConfig(updatedAt time.Time, values map[string]json.RawMessage) {
	copied := make(map[string]json.RawMessage, len(values))
	for key, value := range values {
		copied[key] = value
	}
	current.Store(&snapshot{updatedAt: updatedAt, values: copied})
}

// UpdatedAt returns when the snapshot last changed.
func UpdatedAt() time.Time {
	if snap := current.Load(); snap != nil {
		return snap.updatedAt
	}
	return time.Time{}
}

func rawValue(key string) (json.RawMessage, bool) {
	snap := current.Load()
	if snap == nil {
		return nil, false
	}
	value, ok := snap.values[key]
	return value, ok
}

// StringValue returns the setting as a string, or fallback when unset.
func StringValue(key, fallback string) string {
	raw, ok := rawValue(key)
	if !ok {
		return fallback
	}
	var parsed string
	if errUnmarshal := json.Unmarshal(raw, &parsed); errUnmarshal != nil {
		return fallback
	}
	parsed = strings.TrimSpace(parsed)
	if parsed == "" {
		return fallback
	}
	return parsed
}

// BoolValue returns the setting as a bool, or fallback when unset or invalid.
// Accepts JSON booleans and the strings "true"/"false".
func BoolValue(key string, fallback bool) bool {
	raw, ok := rawValue(key)
	if !ok {
		return fallback
	}
	raw = bytes.TrimSpace(raw)
	var parsedBool bool
	if errUnmarshal := json.Unmarshal(raw, &parsedBool); errUnmarshal == nil {
		return parsedBool
	}
	var parsedString string
	if errUnmarshal := json.Unmarshal(raw, &parsedString); errUnmarshal == nil {
		parsed, errParse := strconv.ParseBool(strings.TrimSpace(parsedString))
		if errParse == nil {
			return parsed
		}
	}
	return fallback
}

// Int64Value returns the setting as an int64, or fallback when unset or
// invalid. Accepts JSON numbers and numeric strings.
func Int64Value(key string, fallback int64) int64 {
	raw, ok := rawValue(key)
	if !ok {
		return fallback
	}
	raw = bytes.TrimSpace(raw)
	var parsedInt int64
	if errUnmarshal := json.Unmarshal(raw, &parsedInt); errUnmarshal == nil {
		return parsedInt
	}
	var parsedString string
	if errUnmarshal := json.Unmarshal(raw, &parsedString); errUnmarshal == nil {
		parsed, errParse := strconv.ParseInt(strings.TrimSpace(parsedString), 10, 64)
		if errParse == nil {
			return parsed
		}
	}
	return fallback
}

// SiteName returns the configured site name.
func SiteName() string {
	return StringValue(SiteNameKey, DefaultSiteName)
}

// SignupEnabled reports whether self-service registration is open.
func SignupEnabled() bool {
	return BoolValue(SignupEnabledKey, DefaultSignupEnabled)
}

// NewAccountStorageQuota returns the storage cap applied to new accounts.
func NewAccountStorageQuota() int64 {
	quota := Int64Value(DefaultStorageQuotaKey, DefaultStorageQuota)
	if quota <= 0 {
		return DefaultStorageQuota
	}
	return quota
}

// MaxUploadSize returns the single-upload size cap.
func MaxUploadSize() int64 {
	size := Int64Value(MaxUploadSizeKey, DefaultMaxUploadSize)
	if size <= 0 {
		return DefaultMaxUploadSize
	}
	return size
}
