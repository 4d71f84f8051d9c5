package domain

// InboundEnvelope is the normalized representation of one inbound message,
// produced once per event, posted to the webhook and discarded.
type InboundEnvelope struct {
	UID         UID
	Token       string
	ContactID   string
	ContactName string

	MessageID string
	Timestamp int64 // unix seconds
	Kind      MediaKind
	Ack       string

	// Kind-specific body. Exactly one group is set.
	Text     string     // chat, vcard
	Media    *MediaBody // image, video, document, audio, sticker
	Location *GeoPoint  // location
}

// MediaBody describes an uploaded attachment.
type MediaBody struct {
	Caption   string `json:"caption,omitempty"`
	Mimetype  string `json:"mimetype"`
	Size      int64  `json:"size"`
	URL       string `json:"url"`
	Thumbnail string `json:"thumb,omitempty"`
}

type GeoPoint struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// MediaAsset is a temporary local file plus metadata, alive only between
// download and upload (or send).
type MediaAsset struct {
	Path     string
	Mimetype string
	Kind     MediaKind
	Filename string
	Size     int64
}

// OutboundMedia is the payload of an outbound media send.
type OutboundMedia struct {
	Data     []byte
	Kind     MediaKind
	Mimetype string
	Filename string
	Caption  string
}
