package session

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dmendiola/wagate/internal/domain"
	"github.com/dmendiola/wagate/internal/observability"
)

// startRetries is how many times a transient client start failure is
// retried before Create reports ErrInitFailed.
const startRetries = 3

// InboundHandler consumes inbound message events. The relay implements it;
// the lifecycle only guarantees the handler never crashes a session.
type InboundHandler interface {
	HandleInbound(ctx context.Context, uid domain.UID, client domain.MessagingClient, ev *domain.MessageEvent)
}

// Lifecycle owns every live session: it creates and tears down client
// handles under per-uid locking and drives the per-session state machine
// from the client's event channel.
type Lifecycle struct {
	store   *Store
	locks   *PerKeyLock
	factory domain.ClientFactory
	regs    domain.RegistrationStore
	qr      domain.QREncoder
	inbound InboundHandler

	qrTimeout time.Duration
}

func NewLifecycle(
	store *Store,
	locks *PerKeyLock,
	factory domain.ClientFactory,
	regs domain.RegistrationStore,
	qrEnc domain.QREncoder,
	inbound InboundHandler,
	qrTimeout time.Duration,
) *Lifecycle {
	if qrTimeout <= 0 {
		qrTimeout = 60 * time.Second
	}
	return &Lifecycle{
		store:     store,
		locks:     locks,
		factory:   factory,
		regs:      regs,
		qr:        qrEnc,
		inbound:   inbound,
		qrTimeout: qrTimeout,
	}
}

// Create starts a new pairing flow for uid and blocks until the first QR
// event, an authentication (credential restore), a failure, or the QR
// deadline. Any existing session for the uid is torn down first, so after
// Create the store holds at most one entry for the uid.
func (lc *Lifecycle) Create(ctx context.Context, uid domain.UID) (string, error) {
	if strings.TrimSpace(string(uid)) == "" {
		return "", fmt.Errorf("%w: uid is required", domain.ErrValidation)
	}

	log := observability.LoggerFromContext(ctx).With("uid", uid)

	lc.locks.Acquire(uid)
	if old, ok := lc.store.Get(uid); ok {
		log.Info("superseding existing session")
		lc.teardown(ctx, old, true)
	}

	sess, err := lc.startLocked(ctx, uid)
	lc.locks.Release(uid)
	if err != nil {
		log.Error("session start failed", "error", err)
		return "", err
	}

	// The lock only covers registration and kick-off; the rest of the
	// lifetime is asynchronous.
	res := <-sess.resolved
	if res.err != nil {
		log.Warn("create resolved with error", "error", res.err)
		return "", res.err
	}
	return res.qr, nil
}

// startLocked instantiates and starts a client for uid, retrying transient
// start failures with the session removed between attempts. Caller holds
// the uid's lock.
func (lc *Lifecycle) startLocked(ctx context.Context, uid domain.UID) (*Session, error) {
	var lastErr error

	for attempt := 1; attempt <= startRetries; attempt++ {
		client, err := lc.factory.New(uid, domain.ClientOptions{})
		if err != nil {
			lastErr = err
			continue
		}

		sess := &Session{
			UID:       uid,
			Client:    client,
			CreatedAt: time.Now(),
			state:     domain.StateInitializing,
			resolved:  make(chan createResult, 1),
		}
		lc.store.Put(uid, sess)
		go lc.run(sess)

		if err := client.Start(ctx); err != nil {
			lastErr = err
			lc.store.Remove(uid)
			if stopErr := client.Stop(ctx); stopErr != nil {
				observability.WithUID(uid).Warn("stop after failed start", "error", stopErr)
			}
			observability.WithUID(uid).Warn("client start failed",
				"attempt", attempt, "error", err)
			continue
		}

		sess.mu.Lock()
		sess.qrTimer = time.AfterFunc(lc.qrTimeout, func() { lc.expire(sess) })
		sess.mu.Unlock()
		return sess, nil
	}

	return nil, fmt.Errorf("%w: %v", domain.ErrInitFailed, lastErr)
}

// run drains the client's event channel for one session. Events arrive in
// emission order; the loop ends when teardown stops the client and the
// channel closes.
func (lc *Lifecycle) run(sess *Session) {
	ctx := context.Background()
	for ev := range sess.Client.Events() {
		switch ev := ev.(type) {
		case domain.QREvent:
			lc.onQR(sess, ev)
		case domain.ReadyEvent:
			lc.onReady(ctx, sess)
		case domain.AuthFailureEvent:
			lc.onAuthFailure(ctx, sess, ev)
		case domain.DisconnectedEvent:
			lc.onDisconnected(ctx, sess, ev)
		case domain.MessageEvent:
			lc.onMessage(ctx, sess, ev)
		}
	}
}

// onQR handles the first QR of a pairing flow; duplicates only mean the
// network rotated the code before anyone scanned it, and are ignored.
func (lc *Lifecycle) onQR(sess *Session, ev domain.QREvent) {
	sess.mu.Lock()
	if sess.state != domain.StateInitializing {
		sess.mu.Unlock()
		return
	}
	sess.state = domain.StateAwaitingQR
	// The scan window starts now, not at Create.
	if sess.qrTimer != nil {
		sess.qrTimer.Reset(lc.qrTimeout)
	}
	sess.mu.Unlock()

	img, err := lc.qr.DataURL(ev.Code)
	if err != nil {
		observability.WithUID(sess.UID).Error("qr encode failed", "error", err)
		sess.resolve("", fmt.Errorf("encoding qr: %w", err))
		return
	}
	sess.resolve(img, nil)
}

func (lc *Lifecycle) onReady(ctx context.Context, sess *Session) {
	sess.mu.Lock()
	sess.state = domain.StateAuthenticated
	if sess.qrTimer != nil {
		sess.qrTimer.Stop()
	}
	sess.mu.Unlock()

	log := observability.WithUID(sess.UID)
	log.Info("session authenticated")

	// Refresh the registration record. A restore may run before the HTTP
	// layer ever wrote one; in that case only the flag is persisted and
	// the token stays empty until the next register.
	reg, err := lc.regs.Get(ctx, sess.UID)
	if err != nil {
		reg = &domain.Registration{UID: sess.UID, CreatedAt: time.Now()}
	}
	reg.Authenticated = true
	reg.UpdatedAt = time.Now()
	if err := lc.regs.Put(ctx, reg); err != nil {
		log.Error("registration refresh failed", "error", err)
	}
	sess.Token = reg.Token

	// Credential restores authenticate without a QR; resolve the pending
	// Create with an empty image in that case.
	sess.resolve("", nil)
}

func (lc *Lifecycle) onAuthFailure(ctx context.Context, sess *Session, ev domain.AuthFailureEvent) {
	observability.WithUID(sess.UID).Warn("authentication failed", "reason", ev.Reason)

	sess.resolve("", fmt.Errorf("%w: auth failure: %s", domain.ErrInitFailed, ev.Reason))

	lc.locks.Acquire(sess.UID)
	defer lc.locks.Release(sess.UID)
	if cur, ok := lc.store.Get(sess.UID); ok && cur == sess {
		lc.teardown(ctx, sess, true)
	}
}

// onDisconnected handles an unsolicited disconnect (remote logout): the
// same teardown Disconnect performs, run autonomously.
func (lc *Lifecycle) onDisconnected(ctx context.Context, sess *Session, ev domain.DisconnectedEvent) {
	sess.mu.Lock()
	closing := sess.state == domain.StateDisconnected
	sess.mu.Unlock()
	if closing {
		// Our own teardown triggered this event; nothing left to do.
		return
	}

	observability.WithUID(sess.UID).Warn("session disconnected remotely", "reason", ev.Reason)
	sess.resolve("", fmt.Errorf("%w: disconnected: %s", domain.ErrInitFailed, ev.Reason))

	lc.locks.Acquire(sess.UID)
	defer lc.locks.Release(sess.UID)
	if cur, ok := lc.store.Get(sess.UID); ok && cur == sess {
		lc.teardown(ctx, sess, true)
	}
}

func (lc *Lifecycle) onMessage(ctx context.Context, sess *Session, ev domain.MessageEvent) {
	if lc.inbound == nil {
		return
	}
	// A bad message must never take the session down.
	defer func() {
		if r := recover(); r != nil {
			observability.WithUID(sess.UID).Error("inbound handler panicked", "panic", r)
		}
	}()
	lc.inbound.HandleInbound(ctx, sess.UID, sess.Client, &ev)
}

// expire fires when the QR deadline passes with no authentication. The
// pairing flow is treated as abandoned and the session torn down so unread
// QRs cannot accumulate clients.
func (lc *Lifecycle) expire(sess *Session) {
	if sess.State() == domain.StateAuthenticated {
		return
	}

	observability.WithUID(sess.UID).Warn("qr deadline expired, tearing down")
	sess.resolve("", domain.ErrQRTimeout)

	ctx := context.Background()
	lc.locks.Acquire(sess.UID)
	defer lc.locks.Release(sess.UID)
	if cur, ok := lc.store.Get(sess.UID); ok && cur == sess {
		lc.teardown(ctx, sess, true)
	}
}

// State reports the uid's status. Lock-free read; a slightly stale answer
// is fine for a status check.
func (lc *Lifecycle) State(uid domain.UID) domain.SessionStatus {
	if sess, ok := lc.store.Get(uid); ok && sess.Client.IsLoggedIn() {
		return domain.StatusAuthenticated
	}
	if lc.factory.HasCredentials(uid) {
		return domain.StatusUnauthenticated
	}
	return domain.StatusNotFound
}

// Result is the outcome of a Disconnect.
type Result struct {
	Found   bool
	Message string
}

// Disconnect tears down the uid's session. Idempotent: a uid with no
// session yields a not-found result, never an error. Teardown is
// best-effort; whatever fails downstream, the uid ends up absent from the
// store.
func (lc *Lifecycle) Disconnect(ctx context.Context, uid domain.UID, force bool) Result {
	lc.locks.Acquire(uid)
	defer lc.locks.Release(uid)

	sess, ok := lc.store.Get(uid)
	if !ok {
		return Result{Found: false, Message: "session not found"}
	}

	failures := lc.teardown(ctx, sess, force)
	if len(failures) > 0 {
		return Result{Found: true, Message: "disconnected with errors: " + strings.Join(failures, "; ")}
	}
	return Result{Found: true, Message: "disconnected"}
}

// teardown detaches the session, destroys the handle, removes the store
// entry, deletes local credentials and deregisters the uid, in that order.
// Caller holds the uid's lock. Returns the failed step names.
func (lc *Lifecycle) teardown(ctx context.Context, sess *Session, force bool) []string {
	log := observability.WithUID(sess.UID)
	var failures []string

	// Mark as closing first so the event loop ignores the disconnect the
	// client emits while we destroy it.
	sess.mu.Lock()
	sess.state = domain.StateDisconnected
	if sess.qrTimer != nil {
		sess.qrTimer.Stop()
	}
	sess.mu.Unlock()

	sess.resolve("", fmt.Errorf("%w: session closed", domain.ErrInitFailed))

	// Remote logout/destroy before local credential deletion.
	if err := sess.Client.Stop(ctx); err != nil {
		if isResourceBusy(err) && force {
			log.Warn("client stop hit busy resource, continuing", "error", err)
		} else {
			log.Error("client stop failed", "error", err)
		}
		failures = append(failures, "client stop")
	}

	lc.store.Remove(sess.UID)

	if err := lc.factory.DeleteCredentials(sess.UID); err != nil {
		log.Error("credential cleanup failed", "error", err)
		failures = append(failures, "credential cleanup")
	}

	if err := lc.regs.Delete(ctx, sess.UID); err != nil {
		log.Error("deregistration failed", "error", err)
		failures = append(failures, "deregistration")
	}

	return failures
}

// RestoreAll re-starts a client for every uid with persisted credentials.
// Called once at boot; individual failures are logged and skipped.
func (lc *Lifecycle) RestoreAll(ctx context.Context) {
	uids, err := lc.factory.KnownUIDs()
	if err != nil {
		observability.Logger().Error("listing persisted sessions", "error", err)
		return
	}

	for _, uid := range uids {
		lc.locks.Acquire(uid)
		if lc.store.Has(uid) {
			lc.locks.Release(uid)
			continue
		}
		if _, err := lc.startLocked(ctx, uid); err != nil {
			observability.WithUID(uid).Error("session restore failed", "error", err)
		} else {
			observability.WithUID(uid).Info("session restored")
		}
		lc.locks.Release(uid)
	}

	lc.sweepStaleRegistrations(ctx)
}

// sweepStaleRegistrations clears the authenticated flag of registrations
// whose credential files are gone, so a status query after a crash that
// lost the data dir answers unauthenticated instead of lying.
func (lc *Lifecycle) sweepStaleRegistrations(ctx context.Context) {
	regs, err := lc.regs.List(ctx)
	if err != nil {
		observability.Logger().Error("listing registrations", "error", err)
		return
	}

	for _, reg := range regs {
		if !reg.Authenticated || lc.factory.HasCredentials(reg.UID) {
			continue
		}
		observability.WithUID(reg.UID).Warn("registration has no credentials, marking unauthenticated")
		reg.Authenticated = false
		reg.UpdatedAt = time.Now()
		if err := lc.regs.Put(ctx, reg); err != nil {
			observability.WithUID(reg.UID).Error("registration sweep failed", "error", err)
		}
	}
}

// isResourceBusy matches the cleanup races the crash policy tolerates:
// credential files still held by the client while it shuts down.
func isResourceBusy(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "resource busy") ||
		strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "EBUSY")
}
