package domain

import "context"

// MessagingClient is the capability surface of one external messaging
// client instance. The core never sees the browser/companion mechanics
// behind it; it only starts/stops the handle, sends, downloads attachment
// bytes and drains the event channel.
type MessagingClient interface {
	// Start connects the client. For a uid with persisted credentials it
	// resumes the session; otherwise it begins the QR pairing flow and a
	// QREvent will arrive on Events.
	Start(ctx context.Context) error

	// Stop logs out and destroys the client. Closing the handle closes
	// the Events channel.
	Stop(ctx context.Context) error

	IsLoggedIn() bool

	// SendText returns the network-assigned message id on success.
	SendText(ctx context.Context, to string, text string) (string, error)

	// SendMedia sends raw bytes as the given kind.
	SendMedia(ctx context.Context, to string, a OutboundMedia) (string, error)

	// Download fetches the attachment bytes of an inbound message event.
	Download(ctx context.Context, ev *MessageEvent) ([]byte, error)

	// Events yields lifecycle and message events in emission order.
	Events() <-chan Event
}

// ClientOptions tunes how a factory builds a client.
type ClientOptions struct {
	// Composite selects the heavier rendering backend needed for
	// video/gif composition on outbound sends.
	Composite bool
}

// ClientFactory builds per-uid client handles and owns their on-disk
// credential material.
type ClientFactory interface {
	New(uid UID, opts ClientOptions) (MessagingClient, error)
	HasCredentials(uid UID) bool
	DeleteCredentials(uid UID) error
	// KnownUIDs lists uids with persisted credentials, used to restore
	// sessions at startup.
	KnownUIDs() ([]UID, error)
}

// RegistrationStore persists uid → token records.
type RegistrationStore interface {
	Get(ctx context.Context, uid UID) (*Registration, error)
	Put(ctx context.Context, reg *Registration) error
	Delete(ctx context.Context, uid UID) error
	List(ctx context.Context) ([]*Registration, error)
}

// LicenseStore answers quota questions for outbound sends.
type LicenseStore interface {
	// Allow returns ErrQuotaExceeded when the uid has no sends left.
	Allow(ctx context.Context, uid UID) error
	RecordSend(ctx context.Context, uid UID) error
}

// Uploader pushes a local file to the external file storage and returns
// its public URL.
type Uploader interface {
	Upload(ctx context.Context, path string, mimetype string) (string, error)
}

// AudioTranscoder converts an audio file to the fixed relay container and
// returns the path of the converted file.
type AudioTranscoder interface {
	Transcode(ctx context.Context, src string) (string, error)
}

// WebhookSender posts one form-encoded payload to the configured endpoint.
type WebhookSender interface {
	Send(ctx context.Context, fields map[string]string) error
}

// QREncoder turns the raw pairing payload into a displayable image.
type QREncoder interface {
	DataURL(code string) (string, error)
}

// TokenIssuer mints and validates the credential returned on register.
type TokenIssuer interface {
	Issue(uid UID) (string, error)
	Validate(token string) (UID, error)
}
