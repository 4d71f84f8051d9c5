package wa

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/mdp/qrterminal/v3"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	"google.golang.org/protobuf/proto"

	"github.com/dmendiola/wagate/internal/domain"
	"github.com/dmendiola/wagate/internal/observability"
)

// eventBuffer bounds the per-client event channel. A consumer that stalls
// longer than this loses messages, which the relay's fire-and-forget
// contract tolerates.
const eventBuffer = 64

type Client struct {
	uid       domain.UID
	wm        *whatsmeow.Client
	container *sqlstore.Container
	composite bool
	debugQR   bool

	// eventsMu orders emit against Stop: whatsmeow's dispatcher can still
	// deliver events (the Disconnected from our own Disconnect call, for
	// one) while the channel is being closed.
	eventsMu sync.Mutex
	closed   bool
	events   chan domain.Event
	stopOnce sync.Once
}

func newClient(uid domain.UID, wm *whatsmeow.Client, container *sqlstore.Container, opts domain.ClientOptions, debugQR bool) *Client {
	c := &Client{
		uid:       uid,
		wm:        wm,
		container: container,
		composite: opts.Composite,
		debugQR:   debugQR,
		events:    make(chan domain.Event, eventBuffer),
	}
	wm.AddEventHandler(c.translate)
	return c
}

func (c *Client) Events() <-chan domain.Event {
	return c.events
}

func (c *Client) IsLoggedIn() bool {
	return c.wm.IsLoggedIn()
}

// Start connects the client. Without stored credentials it begins the QR
// pairing flow and forwards each code as a QREvent.
func (c *Client) Start(ctx context.Context) error {
	if c.wm.Store.ID != nil {
		return c.wm.Connect()
	}

	qrChan, err := c.wm.GetQRChannel(ctx)
	if err != nil {
		return fmt.Errorf("opening qr channel: %w", err)
	}
	if err := c.wm.Connect(); err != nil {
		return fmt.Errorf("connecting: %w", err)
	}

	go func() {
		for evt := range qrChan {
			switch evt.Event {
			case "code":
				if c.debugQR {
					qrterminal.GenerateHalfBlock(evt.Code, qrterminal.L, os.Stdout)
				}
				c.emit(domain.QREvent{Code: evt.Code})
			case "success":
				// events.Connected from the handler covers ready.
			case "timeout":
				c.emit(domain.AuthFailureEvent{Reason: "pairing timed out"})
			default:
				if strings.HasPrefix(evt.Event, "err-") {
					c.emit(domain.AuthFailureEvent{Reason: evt.Event})
				}
			}
		}
	}()

	return nil
}

// Stop logs out, disconnects and releases the credential store. The
// events channel closes once everything is down.
func (c *Client) Stop(ctx context.Context) error {
	var err error
	c.stopOnce.Do(func() {
		if c.wm.IsLoggedIn() {
			if logoutErr := c.wm.Logout(ctx); logoutErr != nil {
				err = fmt.Errorf("logout: %w", logoutErr)
			}
		}
		c.wm.Disconnect()
		if closeErr := c.container.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("closing credential store: %w", closeErr)
		}
		c.closeEvents()
	})
	return err
}

func (c *Client) SendText(ctx context.Context, to string, text string) (string, error) {
	jid, err := toJID(to)
	if err != nil {
		return "", err
	}

	msg := &waE2E.Message{
		Conversation: proto.String(text),
	}

	resp, err := c.wm.SendMessage(ctx, jid, msg)
	if err != nil {
		return "", fmt.Errorf("sending text: %w", err)
	}
	return resp.ID, nil
}

func (c *Client) SendMedia(ctx context.Context, to string, a domain.OutboundMedia) (string, error) {
	jid, err := toJID(to)
	if err != nil {
		return "", err
	}

	msg, err := c.buildMediaMessage(ctx, a)
	if err != nil {
		return "", err
	}

	resp, err := c.wm.SendMessage(ctx, jid, msg)
	if err != nil {
		return "", fmt.Errorf("sending media: %w", err)
	}
	return resp.ID, nil
}

func (c *Client) buildMediaMessage(ctx context.Context, a domain.OutboundMedia) (*waE2E.Message, error) {
	var mediaType whatsmeow.MediaType
	switch a.Kind {
	case domain.KindImage:
		mediaType = whatsmeow.MediaImage
	case domain.KindVideo:
		mediaType = whatsmeow.MediaVideo
	case domain.KindAudio:
		mediaType = whatsmeow.MediaAudio
	default:
		mediaType = whatsmeow.MediaDocument
	}

	up, err := c.wm.Upload(ctx, a.Data, mediaType)
	if err != nil {
		return nil, fmt.Errorf("uploading media: %w", err)
	}

	length := proto.Uint64(uint64(len(a.Data)))

	switch a.Kind {
	case domain.KindImage:
		return &waE2E.Message{ImageMessage: &waE2E.ImageMessage{
			Caption:       proto.String(a.Caption),
			Mimetype:      proto.String(a.Mimetype),
			URL:           proto.String(up.URL),
			DirectPath:    proto.String(up.DirectPath),
			MediaKey:      up.MediaKey,
			FileEncSHA256: up.FileEncSHA256,
			FileSHA256:    up.FileSHA256,
			FileLength:    length,
		}}, nil
	case domain.KindVideo:
		// Composite clients render gif-style playback, which the lighter
		// path cannot compose.
		return &waE2E.Message{VideoMessage: &waE2E.VideoMessage{
			Caption:       proto.String(a.Caption),
			Mimetype:      proto.String(a.Mimetype),
			GifPlayback:   proto.Bool(c.composite),
			URL:           proto.String(up.URL),
			DirectPath:    proto.String(up.DirectPath),
			MediaKey:      up.MediaKey,
			FileEncSHA256: up.FileEncSHA256,
			FileSHA256:    up.FileSHA256,
			FileLength:    length,
		}}, nil
	case domain.KindAudio:
		return &waE2E.Message{AudioMessage: &waE2E.AudioMessage{
			Mimetype:      proto.String(a.Mimetype),
			URL:           proto.String(up.URL),
			DirectPath:    proto.String(up.DirectPath),
			MediaKey:      up.MediaKey,
			FileEncSHA256: up.FileEncSHA256,
			FileSHA256:    up.FileSHA256,
			FileLength:    length,
		}}, nil
	default:
		return &waE2E.Message{DocumentMessage: &waE2E.DocumentMessage{
			Title:         proto.String(a.Filename),
			FileName:      proto.String(a.Filename),
			Caption:       proto.String(a.Caption),
			Mimetype:      proto.String(a.Mimetype),
			URL:           proto.String(up.URL),
			DirectPath:    proto.String(up.DirectPath),
			MediaKey:      up.MediaKey,
			FileEncSHA256: up.FileEncSHA256,
			FileSHA256:    up.FileSHA256,
			FileLength:    length,
		}}, nil
	}
}

// Download fetches the attachment bytes of an inbound event; Raw holds
// the downloadable part stashed by translate.
func (c *Client) Download(ctx context.Context, ev *domain.MessageEvent) ([]byte, error) {
	dl, ok := ev.Raw.(whatsmeow.DownloadableMessage)
	if !ok {
		return nil, fmt.Errorf("message %s carries no downloadable media", ev.ID)
	}
	data, err := c.wm.Download(ctx, dl)
	if err != nil {
		return nil, fmt.Errorf("downloading media: %w", err)
	}
	return data, nil
}

// emit never blocks; a full buffer drops the event, a closed client drops
// it silently.
func (c *Client) emit(ev domain.Event) {
	c.eventsMu.Lock()
	defer c.eventsMu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.events <- ev:
	default:
		observability.WithUID(c.uid).Warn("event buffer full, dropping event")
	}
}

func (c *Client) closeEvents() {
	c.eventsMu.Lock()
	defer c.eventsMu.Unlock()
	c.closed = true
	close(c.events)
}

func toJID(to string) (types.JID, error) {
	if strings.ContainsRune(to, '@') {
		jid, err := types.ParseJID(to)
		if err != nil {
			return types.JID{}, fmt.Errorf("invalid contact id %q: %w", to, err)
		}
		return jid, nil
	}
	return types.NewJID(to, types.DefaultUserServer), nil
}
