package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/dmendiola/wagate/internal/app/media"
	"github.com/dmendiola/wagate/internal/domain"
	"github.com/dmendiola/wagate/internal/observability"
)

// Relay converts inbound message events into the normalized webhook
// payload and posts them fire-and-forget. It implements
// session.InboundHandler.
type Relay struct {
	regs     domain.RegistrationStore
	pipeline *media.Pipeline
	sender   domain.WebhookSender
}

func NewRelay(regs domain.RegistrationStore, pipeline *media.Pipeline, sender domain.WebhookSender) *Relay {
	return &Relay{
		regs:     regs,
		pipeline: pipeline,
		sender:   sender,
	}
}

// HandleInbound processes one message event. Failures are scoped to this
// message: they are logged and the event is dropped, never retried, and
// never touch the session.
func (r *Relay) HandleInbound(ctx context.Context, uid domain.UID, client domain.MessagingClient, ev *domain.MessageEvent) {
	if ev.IsBroadcast {
		return
	}

	log := observability.WithUID(uid).With("message_id", ev.ID)

	env, err := r.buildEnvelope(ctx, uid, client, ev)
	if err != nil {
		log.Error("dropping inbound message", "error", err)
		return
	}

	if err := r.sender.Send(ctx, flatten(env)); err != nil {
		// Fire-and-forget: log and move on.
		log.Warn("webhook delivery failed", "error", err)
		return
	}
	log.Info("inbound message relayed", "kind", env.Kind)
}

func (r *Relay) buildEnvelope(ctx context.Context, uid domain.UID, client domain.MessagingClient, ev *domain.MessageEvent) (*domain.InboundEnvelope, error) {
	env := &domain.InboundEnvelope{
		UID:         uid,
		ContactID:   ev.From,
		ContactName: ev.FromName,
		MessageID:   ev.ID,
		Timestamp:   ev.Timestamp.Unix(),
		Kind:        ev.Kind,
		Ack:         ev.Ack,
	}

	if reg, err := r.regs.Get(ctx, uid); err == nil {
		env.Token = reg.Token
	}

	switch {
	case ev.Kind == domain.KindLocation:
		env.Location = &domain.GeoPoint{Lat: ev.Latitude, Lng: ev.Longitude}
	case ev.Kind == domain.KindVCard:
		env.Text = ev.Body
	case ev.HasMedia:
		body, err := r.pipeline.Process(ctx, client, ev)
		if err != nil {
			return nil, fmt.Errorf("media pipeline: %w", err)
		}
		env.Kind = media.KindFromMime(body.Mimetype)
		env.Media = body
	default:
		env.Kind = domain.KindChat
		env.Text = ev.Body
	}

	return env, nil
}

// flatten lays the envelope out as the webhook's form fields.
func flatten(env *domain.InboundEnvelope) map[string]string {
	fields := map[string]string{
		"event":         "message",
		"token":         env.Token,
		"uid":           string(env.UID),
		"contact[uid]":  env.ContactID,
		"contact[name]": env.ContactName,
		"contact[type]": "user",
		"message[dtm]":  strconv.FormatInt(env.Timestamp, 10),
		"message[uid]":  env.MessageID,
		"message[cuid]": "",
		"message[dir]":  "i",
		"message[type]": string(env.Kind),
		"message[ack]":  env.Ack,
	}

	switch {
	case env.Media != nil:
		body, _ := json.Marshal(env.Media)
		fields["message[body]"] = string(body)
	case env.Location != nil:
		body, _ := json.Marshal(env.Location)
		fields["message[body]"] = string(body)
	default:
		fields["message[body]"] = env.Text
	}

	return fields
}
