package wa

import (
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"

	"github.com/dmendiola/wagate/internal/domain"
)

// translate maps raw whatsmeow events onto the domain event variants the
// lifecycle consumes.
func (c *Client) translate(evt any) {
	switch v := evt.(type) {
	case *events.Connected:
		c.emit(domain.ReadyEvent{})
	case *events.LoggedOut:
		c.emit(domain.DisconnectedEvent{Reason: v.Reason.String()})
	case *events.Disconnected:
		c.emit(domain.DisconnectedEvent{Reason: "stream closed"})
	case *events.StreamReplaced:
		c.emit(domain.DisconnectedEvent{Reason: "stream replaced"})
	case *events.Message:
		if me := c.translateMessage(v); me != nil {
			c.emit(*me)
		}
	}
}

func (c *Client) translateMessage(v *events.Message) *domain.MessageEvent {
	if v.Info.IsFromMe {
		return nil
	}

	me := &domain.MessageEvent{
		ID:          v.Info.ID,
		From:        v.Info.Sender.ToNonAD().String(),
		FromName:    v.Info.PushName,
		Timestamp:   v.Info.Timestamp,
		Ack:         "1",
		IsBroadcast: isBroadcast(v.Info.Chat),
	}

	msg := v.Message
	switch {
	case msg.GetConversation() != "":
		me.Kind = domain.KindChat
		me.Body = msg.GetConversation()
	case msg.GetExtendedTextMessage().GetText() != "":
		me.Kind = domain.KindChat
		me.Body = msg.GetExtendedTextMessage().GetText()
	case msg.GetImageMessage() != nil:
		fillMedia(me, domain.KindImage, msg.GetImageMessage().GetMimetype(),
			msg.GetImageMessage().GetCaption(), msg.GetImageMessage().GetFileLength(),
			msg.GetImageMessage())
	case msg.GetVideoMessage() != nil:
		fillMedia(me, domain.KindVideo, msg.GetVideoMessage().GetMimetype(),
			msg.GetVideoMessage().GetCaption(), msg.GetVideoMessage().GetFileLength(),
			msg.GetVideoMessage())
	case msg.GetDocumentMessage() != nil:
		fillMedia(me, domain.KindDocument, msg.GetDocumentMessage().GetMimetype(),
			msg.GetDocumentMessage().GetCaption(), msg.GetDocumentMessage().GetFileLength(),
			msg.GetDocumentMessage())
		me.Filename = msg.GetDocumentMessage().GetFileName()
	case msg.GetAudioMessage() != nil:
		fillMedia(me, domain.KindAudio, msg.GetAudioMessage().GetMimetype(),
			"", msg.GetAudioMessage().GetFileLength(),
			msg.GetAudioMessage())
	case msg.GetStickerMessage() != nil:
		fillMedia(me, domain.KindSticker, msg.GetStickerMessage().GetMimetype(),
			"", msg.GetStickerMessage().GetFileLength(),
			msg.GetStickerMessage())
	case msg.GetLocationMessage() != nil:
		loc := msg.GetLocationMessage()
		me.Kind = domain.KindLocation
		me.Latitude = loc.GetDegreesLatitude()
		me.Longitude = loc.GetDegreesLongitude()
	case msg.GetContactMessage() != nil:
		me.Kind = domain.KindVCard
		me.Body = msg.GetContactMessage().GetVcard()
	default:
		// protocol/system messages are not relayed
		return nil
	}

	return me
}

func fillMedia(me *domain.MessageEvent, kind domain.MediaKind, mimetype, caption string, size uint64, raw any) {
	me.Kind = kind
	me.HasMedia = true
	me.Mimetype = mimetype
	me.Caption = caption
	me.FileSize = int64(size)
	me.Raw = raw
}

func isBroadcast(chat types.JID) bool {
	return chat.Server == types.BroadcastServer || chat == types.StatusBroadcastJID
}
