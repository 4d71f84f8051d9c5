package domain

import "errors"

// Error taxonomy. Handlers map these onto HTTP status codes; everything
// else is treated as an internal error.
var (
	// ErrValidation rejects a request before any session state is touched.
	ErrValidation = errors.New("validation failed")

	// ErrAuth rejects a request whose token does not match the uid.
	ErrAuth = errors.New("unauthorized")

	// ErrNotFound reports a uid with no session or registration.
	ErrNotFound = errors.New("not found")

	// ErrInitFailed is a client start failure after retries are exhausted.
	ErrInitFailed = errors.New("client initialization failed")

	// ErrQRTimeout reports a pairing flow abandoned past the QR deadline.
	ErrQRTimeout = errors.New("qr deadline expired")

	// ErrUpload aborts the current message's relay, nothing else.
	ErrUpload = errors.New("media upload failed")

	// ErrTranscode aborts the current message's relay, nothing else.
	ErrTranscode = errors.New("audio transcode failed")

	// ErrQuotaExceeded rejects an outbound send for a uid out of quota.
	ErrQuotaExceeded = errors.New("send quota exceeded")
)
