package domain

import "time"

// UID identifies one messaging account/tenant. In practice it is a
// phone-number-shaped string, but the gateway treats it as opaque.
type UID string

type SessionState string

const (
	StateInitializing  SessionState = "initializing"
	StateAwaitingQR    SessionState = "awaiting_qr"
	StateAuthenticated SessionState = "authenticated"
	StateDisconnected  SessionState = "disconnected"
	StateFailed        SessionState = "failed"
)

// SessionStatus is the answer to a status query, not the internal state.
type SessionStatus string

const (
	StatusAuthenticated   SessionStatus = "authenticated"
	StatusUnauthenticated SessionStatus = "unauthenticated"
	StatusNotFound        SessionStatus = "not_found"
)

// SendResult is the outcome of an outbound send.
type SendResult string

const (
	SendOK              SendResult = "sent"
	SendFailed          SendResult = "failed"
	SendSessionNotFound SendResult = "session_not_found"
)

// MediaKind classifies a message payload.
type MediaKind string

const (
	KindChat     MediaKind = "chat"
	KindImage    MediaKind = "image"
	KindVideo    MediaKind = "video"
	KindDocument MediaKind = "document"
	KindAudio    MediaKind = "audio"
	KindSticker  MediaKind = "sticker"
	KindLocation MediaKind = "location"
	KindVCard    MediaKind = "vcard"
)

// Registration is the persisted record tying a uid to its credential token.
type Registration struct {
	UID           UID
	Token         string
	Authenticated bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// License holds the sending quota for a uid. Quota business rules live
// behind the store; the core only asks Allow/RecordSend.
type License struct {
	ID           uint   `gorm:"primaryKey"`
	UID          string `gorm:"column:uid;uniqueIndex;size:32"`
	Plan         string `gorm:"size:32"`
	MonthlyQuota int64
	SentCount    int64
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
