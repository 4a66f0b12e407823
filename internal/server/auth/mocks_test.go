package auth

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/iudanet/prescient/internal/models"
	"github.com/iudanet/prescient/internal/server/storage"
)

// mockStore - in-memory storage.Store с возможностью подменять ошибки
type mockStore struct {
	accounts  map[string]*models.Account
	consumed  map[string]time.Time
	insertErr error
	findErr   error
	updateErr error
	ledgerErr error
	seeded    bool
	mu        sync.Mutex
}

func newMockStore() *mockStore {
	return &mockStore{
		accounts: make(map[string]*models.Account),
		consumed: make(map[string]time.Time),
	}
}

func (m *mockStore) FindByUsername(ctx context.Context, username string) (*models.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.findErr != nil {
		return nil, m.findErr
	}
	a, ok := m.accounts[username]
	if !ok {
		return nil, storage.ErrAccountNotFound
	}
	return a.Clone(), nil
}

func (m *mockStore) FindByEmail(ctx context.Context, email string) (*models.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.findErr != nil {
		return nil, m.findErr
	}
	for _, a := range m.accounts {
		if a.Email == email {
			return a.Clone(), nil
		}
	}
	return nil, storage.ErrAccountNotFound
}

func (m *mockStore) Insert(ctx context.Context, account *models.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.insertErr != nil {
		return m.insertErr
	}
	return m.insertLocked(account)
}

func (m *mockStore) insertLocked(account *models.Account) error {
	for _, a := range m.accounts {
		if a.Username == account.Username || a.Email == account.Email {
			return fmt.Errorf("%w: %s", storage.ErrAccountConflict, account.Username)
		}
	}
	m.accounts[account.Username] = account.Clone()
	return nil
}

func (m *mockStore) UpdatePassword(ctx context.Context, username, digest string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.updateErr != nil {
		return m.updateErr
	}
	a, ok := m.accounts[username]
	if !ok {
		return storage.ErrAccountNotFound
	}
	a.PasswordDigest = digest
	return nil
}

func (m *mockStore) SetActive(ctx context.Context, username string, active bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.updateErr != nil {
		return m.updateErr
	}
	a, ok := m.accounts[username]
	if !ok {
		return storage.ErrAccountNotFound
	}
	a.IsActive = active
	return nil
}

func (m *mockStore) SeedBootstrap(ctx context.Context, account *models.Account) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.insertErr != nil {
		return false, m.insertErr
	}
	if m.seeded {
		return false, nil
	}
	m.seeded = true
	if len(m.accounts) > 0 {
		return false, nil
	}
	return true, m.insertLocked(account)
}

func (m *mockStore) MarkConsumed(ctx context.Context, key string, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.ledgerErr != nil {
		return m.ledgerErr
	}
	if _, ok := m.consumed[key]; ok {
		return storage.ErrTokenConsumed
	}
	m.consumed[key] = expiresAt
	return nil
}

func (m *mockStore) PurgeExpired(ctx context.Context, now time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for k, exp := range m.consumed {
		if !exp.After(now) {
			delete(m.consumed, k)
			n++
		}
	}
	return n, nil
}

func (m *mockStore) Ping(ctx context.Context) error { return nil }
func (m *mockStore) Close() error                   { return nil }

func (m *mockStore) account(username string) *models.Account {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.accounts[username].Clone()
}

// fakeHasher - дешевый детерминированный хешер для тестов сервиса
type fakeHasher struct {
	verified []string
	mu       sync.Mutex
}

func (h *fakeHasher) Hash(password string) (string, error) {
	return "fake$" + password, nil
}

func (h *fakeHasher) Verify(password, digest string) bool {
	h.mu.Lock()
	h.verified = append(h.verified, digest)
	h.mu.Unlock()
	return digest == "fake$"+password
}

func (h *fakeHasher) verifiedDigests() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.verified...)
}

// mockMailer запоминает отправленные ссылки
type mockMailer struct {
	err  error
	sent []sentMail
	mu   sync.Mutex
}

type sentMail struct {
	to   string
	link string
}

func (m *mockMailer) SendResetEmail(ctx context.Context, to, link string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, sentMail{to: to, link: link})
	return nil
}

func (m *mockMailer) Sent() []sentMail {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]sentMail(nil), m.sent...)
}

// mockRecorder собирает события в формате event/outcome
type mockRecorder struct {
	events []string
	mu     sync.Mutex
}

func (r *mockRecorder) AuthEvent(event, outcome string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event+"/"+outcome)
}

func (r *mockRecorder) Events() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return strings.Join(r.events, ",")
}

type fakeClock struct {
	now time.Time
	mu  sync.Mutex
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Unix(1_700_000_000, 0)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
