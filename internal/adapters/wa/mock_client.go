package wa

import (
	"context"
	"fmt"
	"sync"

	"github.com/dmendiola/wagate/internal/domain"
)

// MockClient is a scriptable in-memory MessagingClient for tests: push
// events with Emit, flip login state with SetLoggedIn, inspect sends.
type MockClient struct {
	mu        sync.Mutex
	loggedIn  bool
	started   bool
	stopped   bool
	events    chan domain.Event
	startErr  error
	media     map[string][]byte // message id → downloadable bytes
	SentTexts []string
	SentMedia []domain.OutboundMedia
}

func NewMockClient() *MockClient {
	return &MockClient{
		events: make(chan domain.Event, 16),
		media:  make(map[string][]byte),
	}
}

// FailStartWith makes the next Start calls return err.
func (m *MockClient) FailStartWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.startErr = err
}

func (m *MockClient) SetLoggedIn(v bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loggedIn = v
}

// Emit pushes an event as if the network produced it. Emitting into a
// stopped client is a no-op, like the real adapter.
func (m *MockClient) Emit(ev domain.Event) {
	if _, ok := ev.(domain.ReadyEvent); ok {
		m.SetLoggedIn(true)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stopped {
		return
	}
	m.events <- ev
}

// StashMedia registers downloadable bytes for a message id.
func (m *MockClient) StashMedia(msgID string, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.media[msgID] = data
}

func (m *MockClient) Stopped() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stopped
}

func (m *MockClient) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.startErr != nil {
		return m.startErr
	}
	m.started = true
	return nil
}

func (m *MockClient) Stop(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.stopped {
		m.stopped = true
		m.loggedIn = false
		close(m.events)
	}
	return nil
}

func (m *MockClient) IsLoggedIn() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loggedIn
}

func (m *MockClient) SendText(ctx context.Context, to string, text string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.loggedIn {
		return "", fmt.Errorf("not logged in")
	}
	m.SentTexts = append(m.SentTexts, to+": "+text)
	return fmt.Sprintf("msg-%d", len(m.SentTexts)), nil
}

func (m *MockClient) SendMedia(ctx context.Context, to string, a domain.OutboundMedia) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.loggedIn {
		return "", fmt.Errorf("not logged in")
	}
	m.SentMedia = append(m.SentMedia, a)
	return fmt.Sprintf("media-%d", len(m.SentMedia)), nil
}

func (m *MockClient) Download(ctx context.Context, ev *domain.MessageEvent) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.media[ev.ID]
	if !ok {
		return nil, fmt.Errorf("no media stashed for %s", ev.ID)
	}
	return data, nil
}

func (m *MockClient) Events() <-chan domain.Event {
	return m.events
}

// MockFactory hands out pre-seeded or fresh MockClients and tracks
// credential files in memory.
type MockFactory struct {
	mu      sync.Mutex
	next    []*MockClient
	creds   map[domain.UID]bool
	Created []*MockClient
}

func NewMockFactory() *MockFactory {
	return &MockFactory{
		creds: make(map[domain.UID]bool),
	}
}

// QueueClient makes the next New call return c.
func (f *MockFactory) QueueClient(c *MockClient) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.next = append(f.next, c)
}

func (f *MockFactory) SetCredentials(uid domain.UID, present bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.creds[uid] = present
}

func (f *MockFactory) New(uid domain.UID, opts domain.ClientOptions) (domain.MessagingClient, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var c *MockClient
	if len(f.next) > 0 {
		c = f.next[0]
		f.next = f.next[1:]
	} else {
		c = NewMockClient()
	}
	f.Created = append(f.Created, c)
	return c, nil
}

func (f *MockFactory) HasCredentials(uid domain.UID) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.creds[uid]
}

func (f *MockFactory) DeleteCredentials(uid domain.UID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.creds, uid)
	return nil
}

func (f *MockFactory) KnownUIDs() ([]domain.UID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var uids []domain.UID
	for uid, present := range f.creds {
		if present {
			uids = append(uids, uid)
		}
	}
	return uids, nil
}
