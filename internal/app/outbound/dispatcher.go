package outbound

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path"
	"strings"

	"github.com/dmendiola/wagate/internal/app/media"
	"github.com/dmendiola/wagate/internal/app/session"
	"github.com/dmendiola/wagate/internal/domain"
	"github.com/dmendiola/wagate/internal/observability"
)

// Dispatcher performs outbound sends through a uid's live session. Media
// sends for a uid with persisted credentials but no live session run
// through a disposable client created just for the send.
type Dispatcher struct {
	store    *session.Store
	locks    *session.PerKeyLock
	factory  domain.ClientFactory
	licenses domain.LicenseStore

	httpClient *http.Client
}

func NewDispatcher(
	store *session.Store,
	locks *session.PerKeyLock,
	factory domain.ClientFactory,
	licenses domain.LicenseStore,
) *Dispatcher {
	return &Dispatcher{
		store:      store,
		locks:      locks,
		factory:    factory,
		licenses:   licenses,
		httpClient: http.DefaultClient,
	}
}

// SendText sends plain text to a contact. Requires a live authenticated
// session; no network I/O happens without one.
func (d *Dispatcher) SendText(ctx context.Context, uid domain.UID, to, text string) (domain.SendResult, error) {
	sess, ok := d.store.Get(uid)
	if !ok || !sess.Client.IsLoggedIn() {
		return domain.SendSessionNotFound, nil
	}

	if err := d.allow(ctx, uid); err != nil {
		return domain.SendFailed, err
	}

	id, err := sess.Client.SendText(ctx, to, text)
	if err != nil {
		observability.WithUID(uid).Error("text send failed", "to", to, "error", err)
		return domain.SendFailed, err
	}
	if id == "" {
		return domain.SendFailed, nil
	}

	d.recordSend(ctx, uid)
	return domain.SendOK, nil
}

// SendMedia fetches the remote file and sends it as the given kind,
// inferring the kind from the URL's extension when not supplied.
func (d *Dispatcher) SendMedia(ctx context.Context, uid domain.UID, to, rawURL, kindHint string) (domain.SendResult, error) {
	kind := parseKind(kindHint)
	if kind == "" {
		kind = media.KindFromURL(rawURL)
	}

	sess, live := d.store.Get(uid)
	if live {
		live = sess.Client.IsLoggedIn()
	}
	if !live && !d.factory.HasCredentials(uid) {
		return domain.SendSessionNotFound, nil
	}

	if err := d.allow(ctx, uid); err != nil {
		return domain.SendFailed, err
	}

	payload, err := d.fetch(ctx, rawURL, kind)
	if err != nil {
		observability.WithUID(uid).Error("media fetch failed", "url", rawURL, "error", err)
		return domain.SendFailed, err
	}

	if live {
		return d.deliver(ctx, uid, sess.Client, to, payload)
	}
	return d.sendDisposable(ctx, uid, to, payload)
}

// sendDisposable runs a one-off client for a uid with persisted
// credentials but no live session. The client is never registered as the
// uid's session and is destroyed after the send. It takes the uid's lock
// so it cannot race a concurrent Create.
func (d *Dispatcher) sendDisposable(ctx context.Context, uid domain.UID, to string, payload domain.OutboundMedia) (domain.SendResult, error) {
	d.locks.Acquire(uid)
	defer d.locks.Release(uid)

	// A Create may have won the lock first.
	if sess, ok := d.store.Get(uid); ok && sess.Client.IsLoggedIn() {
		return d.deliver(ctx, uid, sess.Client, to, payload)
	}

	// Video needs visual composition, so it gets the heavier backend.
	opts := domain.ClientOptions{Composite: payload.Kind == domain.KindVideo}
	client, err := d.factory.New(uid, opts)
	if err != nil {
		return domain.SendFailed, fmt.Errorf("disposable client: %w", err)
	}
	defer func() {
		if err := client.Stop(context.Background()); err != nil {
			observability.WithUID(uid).Warn("disposable client stop failed", "error", err)
		}
	}()

	if err := client.Start(ctx); err != nil {
		return domain.SendFailed, fmt.Errorf("disposable client start: %w", err)
	}
	if err := waitReady(ctx, client); err != nil {
		return domain.SendFailed, err
	}

	return d.deliver(ctx, uid, client, to, payload)
}

func (d *Dispatcher) deliver(ctx context.Context, uid domain.UID, client domain.MessagingClient, to string, payload domain.OutboundMedia) (domain.SendResult, error) {
	id, err := client.SendMedia(ctx, to, payload)
	if err != nil {
		observability.WithUID(uid).Error("media send failed", "to", to, "error", err)
		return domain.SendFailed, err
	}
	if id == "" {
		return domain.SendFailed, nil
	}

	d.recordSend(ctx, uid)
	return domain.SendOK, nil
}

// waitReady blocks until the disposable client reports itself logged in.
func waitReady(ctx context.Context, client domain.MessagingClient) error {
	if client.IsLoggedIn() {
		return nil
	}
	for {
		select {
		case ev, ok := <-client.Events():
			if !ok {
				return fmt.Errorf("client closed before becoming ready")
			}
			switch ev := ev.(type) {
			case domain.ReadyEvent:
				return nil
			case domain.AuthFailureEvent:
				return fmt.Errorf("disposable client auth failure: %s", ev.Reason)
			case domain.DisconnectedEvent:
				return fmt.Errorf("disposable client disconnected: %s", ev.Reason)
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (d *Dispatcher) fetch(ctx context.Context, rawURL string, kind domain.MediaKind) (domain.OutboundMedia, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return domain.OutboundMedia{}, fmt.Errorf("building fetch request: %w", err)
	}

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return domain.OutboundMedia{}, fmt.Errorf("fetching media: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return domain.OutboundMedia{}, fmt.Errorf("fetching media: unexpected status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return domain.OutboundMedia{}, fmt.Errorf("reading media body: %w", err)
	}

	filename := media.SanitizeFilename(path.Base(stripQuery(rawURL)), "")
	mimetype := resp.Header.Get("Content-Type")
	if i := strings.Index(mimetype, ";"); i >= 0 {
		mimetype = strings.TrimSpace(mimetype[:i])
	}
	if mimetype == "" || mimetype == "application/octet-stream" {
		if byExt := mime.TypeByExtension(path.Ext(filename)); byExt != "" {
			mimetype = byExt
		}
	}

	return domain.OutboundMedia{
		Data:     data,
		Kind:     kind,
		Mimetype: mimetype,
		Filename: filename,
	}, nil
}

func (d *Dispatcher) allow(ctx context.Context, uid domain.UID) error {
	if d.licenses == nil {
		return nil
	}
	return d.licenses.Allow(ctx, uid)
}

func (d *Dispatcher) recordSend(ctx context.Context, uid domain.UID) {
	if d.licenses == nil {
		return
	}
	if err := d.licenses.RecordSend(ctx, uid); err != nil {
		observability.WithUID(uid).Warn("recording send", "error", err)
	}
}

func parseKind(s string) domain.MediaKind {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "image":
		return domain.KindImage
	case "video":
		return domain.KindVideo
	case "document":
		return domain.KindDocument
	case "audio":
		return domain.KindAudio
	default:
		return ""
	}
}

func stripQuery(rawURL string) string {
	if i := strings.IndexAny(rawURL, "?#"); i >= 0 {
		return rawURL[:i]
	}
	return rawURL
}
