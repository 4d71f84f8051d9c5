package domain

import "time"

// Event is one asynchronous completion emitted by a MessagingClient.
// Variants below; per-uid emission order is preserved by the client.
type Event interface {
	eventKind() string
}

// QREvent carries the raw pairing payload to display to the user.
type QREvent struct {
	Code string
}

// ReadyEvent fires when the client is authenticated and usable.
type ReadyEvent struct{}

// AuthFailureEvent fires when pairing or credential restore is rejected.
type AuthFailureEvent struct {
	Reason string
}

// DisconnectedEvent fires on an unsolicited disconnect (remote logout,
// stream error).
type DisconnectedEvent struct {
	Reason string
}

// MessageEvent is one inbound message. For media messages the attachment
// bytes are not included; they are fetched on demand through
// MessagingClient.Download.
type MessageEvent struct {
	ID          string
	From        string // source contact id
	FromName    string // source contact display name
	Timestamp   time.Time
	Ack         string
	Kind        MediaKind
	Body        string // text for chat, vcard text for vcard
	Caption     string
	Mimetype    string
	Filename    string
	FileSize    int64
	HasMedia    bool
	Latitude    float64
	Longitude   float64
	IsBroadcast bool // broadcast/status sources are never relayed

	// Raw is the adapter-owned handle needed to download the attachment.
	Raw any
}

func (QREvent) eventKind() string           { return "qr" }
func (ReadyEvent) eventKind() string        { return "ready" }
func (AuthFailureEvent) eventKind() string  { return "auth_failure" }
func (DisconnectedEvent) eventKind() string { return "disconnected" }
func (MessageEvent) eventKind() string      { return "message" }
