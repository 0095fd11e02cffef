package core

import (
	"errors"
	"fmt"
)

var (
	// ErrNotConnected is returned when a user has no stored credential
	ErrNotConnected = errors.New("mailbox not connected")
	// ErrReauthRequired is returned when the provider rejected a refresh
	ErrReauthRequired = errors.New("mailbox re-authorization required")
	// ErrProviderUnavailable covers transient provider failures
	ErrProviderUnavailable = errors.New("mail provider unavailable")
	// ErrUnauthorized is returned by providers when the access token is refused
	ErrUnauthorized = errors.New("mail provider refused access token")
	// ErrMessageGone is returned when a listed message can no longer be fetched
	ErrMessageGone = errors.New("message no longer exists")
	// ErrClassificationFailed is returned when the classifier gives no usable verdict
	ErrClassificationFailed = errors.New("classification failed")
	// ErrQuotaExceeded is returned when a user may not start another scan
	ErrQuotaExceeded = errors.New("scan quota exceeded")
	// ErrRecordNotFound is returned when no record matches the given owner and id
	ErrRecordNotFound = errors.New("record not found")
	// ErrProfileNotFound is returned when a user profile does not exist
	ErrProfileNotFound = errors.New("profile not found")
)

// FailureReason is the cause of a failed scan
type FailureReason string

const (
	FailureAuth      FailureReason = "auth"
	FailureQuota     FailureReason = "quota"
	FailureProvider  FailureReason = "provider"
	FailureCancelled FailureReason = "cancelled"
	FailureInternal  FailureReason = "internal"
)

// ScanFailure wraps the terminal error of a scan with its reason
type ScanFailure struct {
	Reason FailureReason
	Err    error
}

func (e *ScanFailure) Error() string {
	return fmt.Sprintf("scan failed (%s): %v", e.Reason, e.Err)
}

func (e *ScanFailure) Unwrap() error {
	return e.Err
}

// FailureReasonOf extracts the reason from err, or "" when err is not a scan failure
func FailureReasonOf(err error) FailureReason {
	var sf *ScanFailure
	if errors.As(err, &sf) {
		return sf.Reason
	}
	return ""
}
