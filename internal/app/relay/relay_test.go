package relay

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/dmendiola/wagate/internal/adapters/storage/memory"
	"github.com/dmendiola/wagate/internal/adapters/wa"
	"github.com/dmendiola/wagate/internal/app/media"
	"github.com/dmendiola/wagate/internal/domain"
)

type captureSender struct {
	sent []map[string]string
}

func (c *captureSender) Send(ctx context.Context, fields map[string]string) error {
	c.sent = append(c.sent, fields)
	return nil
}

type stubUploader struct{ url string }

func (u *stubUploader) Upload(ctx context.Context, path, mimetype string) (string, error) {
	return u.url, nil
}

const relayUID = domain.UID("15551234567")

func newRelayFixture(t *testing.T) (*Relay, *memory.RegistrationStore, *captureSender) {
	t.Helper()
	regs := memory.NewRegistrationStore()
	sender := &captureSender{}
	pipeline := media.NewPipeline(&stubUploader{url: "https://files.example.com/a.jpg"}, nil, t.TempDir())
	return NewRelay(regs, pipeline, sender), regs, sender
}

func chatEvent() *domain.MessageEvent {
	return &domain.MessageEvent{
		ID:        "wamid.1",
		From:      "15550001111",
		FromName:  "Alice",
		Timestamp: time.Unix(1700000000, 0),
		Ack:       "1",
		Kind:      domain.KindChat,
		Body:      "hola",
	}
}

func TestHandleInboundRelaysChatMessage(t *testing.T) {
	r, regs, sender := newRelayFixture(t)
	_ = regs.Put(context.Background(), &domain.Registration{UID: relayUID, Token: "tok-123"})

	r.HandleInbound(context.Background(), relayUID, wa.NewMockClient(), chatEvent())

	if len(sender.sent) != 1 {
		t.Fatalf("expected 1 webhook call, got %d", len(sender.sent))
	}
	fields := sender.sent[0]

	want := map[string]string{
		"event":         "message",
		"token":         "tok-123",
		"uid":           string(relayUID),
		"contact[uid]":  "15550001111",
		"contact[name]": "Alice",
		"contact[type]": "user",
		"message[dtm]":  "1700000000",
		"message[uid]":  "wamid.1",
		"message[dir]":  "i",
		"message[type]": "chat",
		"message[ack]":  "1",
		"message[body]": "hola",
	}
	for k, v := range want {
		if fields[k] != v {
			t.Errorf("field %s = %q, want %q", k, fields[k], v)
		}
	}
}

func TestHandleInboundSkipsBroadcast(t *testing.T) {
	r, _, sender := newRelayFixture(t)

	ev := chatEvent()
	ev.IsBroadcast = true
	r.HandleInbound(context.Background(), relayUID, wa.NewMockClient(), ev)

	if len(sender.sent) != 0 {
		t.Fatalf("broadcast message was relayed")
	}
}

func TestHandleInboundRelaysMedia(t *testing.T) {
	r, _, sender := newRelayFixture(t)

	client := wa.NewMockClient()
	client.StashMedia("wamid.2", []byte("jpeg-bytes"))

	ev := chatEvent()
	ev.ID = "wamid.2"
	ev.Kind = domain.KindImage
	ev.Mimetype = "image/jpeg"
	ev.Filename = "a.jpg"
	ev.Caption = "mira"
	ev.Body = ""
	ev.HasMedia = true

	r.HandleInbound(context.Background(), relayUID, client, ev)

	if len(sender.sent) != 1 {
		t.Fatalf("expected 1 webhook call, got %d", len(sender.sent))
	}
	fields := sender.sent[0]
	if fields["message[type]"] != "image" {
		t.Fatalf("message[type] = %q", fields["message[type]"])
	}

	var body domain.MediaBody
	if err := json.Unmarshal([]byte(fields["message[body]"]), &body); err != nil {
		t.Fatalf("media body is not JSON: %v", err)
	}
	if body.URL != "https://files.example.com/a.jpg" {
		t.Fatalf("media body URL = %q", body.URL)
	}
	if body.Caption != "mira" {
		t.Fatalf("media body caption = %q", body.Caption)
	}
}

func TestHandleInboundRelaysLocation(t *testing.T) {
	r, _, sender := newRelayFixture(t)

	ev := chatEvent()
	ev.Kind = domain.KindLocation
	ev.Body = ""
	ev.Latitude = -34.6037
	ev.Longitude = -58.3816

	r.HandleInbound(context.Background(), relayUID, wa.NewMockClient(), ev)

	if len(sender.sent) != 1 {
		t.Fatalf("expected 1 webhook call, got %d", len(sender.sent))
	}
	fields := sender.sent[0]
	if fields["message[type]"] != "location" {
		t.Fatalf("message[type] = %q", fields["message[type]"])
	}
	var point domain.GeoPoint
	if err := json.Unmarshal([]byte(fields["message[body]"]), &point); err != nil {
		t.Fatalf("location body is not JSON: %v", err)
	}
	if point.Lat != -34.6037 || point.Lng != -58.3816 {
		t.Fatalf("location body = %+v", point)
	}
}

func TestHandleInboundDropsMessageOnMediaFailure(t *testing.T) {
	r, _, sender := newRelayFixture(t)

	ev := chatEvent()
	ev.Kind = domain.KindImage
	ev.Mimetype = "image/jpeg"
	ev.HasMedia = true
	// nothing stashed on the client: the download fails

	r.HandleInbound(context.Background(), relayUID, wa.NewMockClient(), ev)

	if len(sender.sent) != 0 {
		t.Fatalf("a message with a failed pipeline was relayed")
	}
}

func TestFlattenUsesTextForChat(t *testing.T) {
	env := &domain.InboundEnvelope{
		UID:  relayUID,
		Kind: domain.KindChat,
		Text: "plain text",
	}
	fields := flatten(env)
	if fields["message[body]"] != "plain text" {
		t.Fatalf("message[body] = %q", fields["message[body]"])
	}
	if strings.HasPrefix(fields["message[body]"], "{") {
		t.Fatalf("chat body must not be JSON encoded")
	}
}
