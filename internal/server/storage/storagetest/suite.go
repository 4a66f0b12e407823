// Package storagetest holds behaviour tests shared by every storage backend.
package storagetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/prescient/internal/models"
	"github.com/iudanet/prescient/internal/server/storage"
)

// Factory returns a fresh empty store. The store is closed by the suite.
type Factory func(t *testing.T) storage.Store

// NewAccount builds a valid account for tests.
func NewAccount(username, email string) *models.Account {
	now := time.Now().UTC().Truncate(time.Second)
	return &models.Account{
		ID:             uuid.New().String(),
		Username:       username,
		Email:          email,
		PasswordDigest: "00112233445566778899aabbccddeeff$" + username,
		IsActive:       true,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// Run executes the shared store tests against the backend produced by newStore.
func Run(t *testing.T, newStore Factory) {
	open := func(t *testing.T) storage.Store {
		t.Helper()
		s := newStore(t)
		t.Cleanup(func() {
			_ = s.Close()
		})
		return s
	}

	t.Run("InsertAndFind", func(t *testing.T) { testInsertAndFind(t, open(t)) })
	t.Run("FindNotFound", func(t *testing.T) { testFindNotFound(t, open(t)) })
	t.Run("InsertConflict", func(t *testing.T) { testInsertConflict(t, open(t)) })
	t.Run("ConcurrentInsert", func(t *testing.T) { testConcurrentInsert(t, open(t)) })
	t.Run("UpdatePassword", func(t *testing.T) { testUpdatePassword(t, open(t)) })
	t.Run("SetActive", func(t *testing.T) { testSetActive(t, open(t)) })
	t.Run("SeedBootstrap", func(t *testing.T) { testSeedBootstrap(t, open(t)) })
	t.Run("SeedBootstrapNonEmpty", func(t *testing.T) { testSeedBootstrapNonEmpty(t, open(t)) })
	t.Run("ResetLedger", func(t *testing.T) { testResetLedger(t, open(t)) })
	t.Run("Ping", func(t *testing.T) { require.NoError(t, open(t).Ping(context.Background())) })
}

func testInsertAndFind(t *testing.T, s storage.Store) {
	ctx := context.Background()
	account := NewAccount("alice", "a@x.io")
	require.NoError(t, s.Insert(ctx, account))

	byName, err := s.FindByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, account.ID, byName.ID)
	assert.Equal(t, account.Email, byName.Email)
	assert.Equal(t, account.PasswordDigest, byName.PasswordDigest)
	assert.True(t, byName.IsActive)
	assert.True(t, account.CreatedAt.Equal(byName.CreatedAt), "created_at: %s != %s", account.CreatedAt, byName.CreatedAt)

	byEmail, err := s.FindByEmail(ctx, "a@x.io")
	require.NoError(t, err)
	assert.Equal(t, account.ID, byEmail.ID)
	assert.Equal(t, "alice", byEmail.Username)

	// Username чувствителен к регистру
	_, err = s.FindByUsername(ctx, "Alice")
	assert.ErrorIs(t, err, storage.ErrAccountNotFound)
}

func testFindNotFound(t *testing.T, s storage.Store) {
	ctx := context.Background()

	_, err := s.FindByUsername(ctx, "nobody")
	assert.ErrorIs(t, err, storage.ErrAccountNotFound)

	_, err = s.FindByEmail(ctx, "nobody@x.io")
	assert.ErrorIs(t, err, storage.ErrAccountNotFound)

	assert.ErrorIs(t, s.UpdatePassword(ctx, "nobody", "digest"), storage.ErrAccountNotFound)
	assert.ErrorIs(t, s.SetActive(ctx, "nobody", false), storage.ErrAccountNotFound)
}

func testInsertConflict(t *testing.T, s storage.Store) {
	ctx := context.Background()
	require.NoError(t, s.Insert(ctx, NewAccount("alice", "a@x.io")))

	tests := []struct {
		account *models.Account
		name    string
	}{
		{name: "duplicate username", account: NewAccount("alice", "other@x.io")},
		{name: "duplicate email", account: NewAccount("bob", "a@x.io")},
		{name: "duplicate both", account: NewAccount("alice", "a@x.io")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := s.Insert(ctx, tt.account)
			assert.ErrorIs(t, err, storage.ErrAccountConflict)
		})
	}

	// Исходная запись не изменилась
	got, err := s.FindByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "a@x.io", got.Email)

	// Неудачная вставка не оставила индекс email
	_, err = s.FindByEmail(ctx, "other@x.io")
	assert.ErrorIs(t, err, storage.ErrAccountNotFound)
}

func testConcurrentInsert(t *testing.T, s storage.Store) {
	ctx := context.Background()
	const workers = 16

	var (
		wg        sync.WaitGroup
		successes atomic.Int32
		conflicts atomic.Int32
	)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			// Половина воркеров конфликтует по username, половина по email
			account := NewAccount("racer", fmt.Sprintf("racer%d@x.io", i))
			if i%2 == 1 {
				account = NewAccount(fmt.Sprintf("racer%d", i), "racer@x.io")
			}
			err := s.Insert(ctx, account)
			switch {
			case err == nil:
				successes.Add(1)
			case errors.Is(err, storage.ErrAccountConflict):
				conflicts.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	// Ровно один победитель по username и ровно один по email
	byName, err := s.FindByUsername(ctx, "racer")
	require.NoError(t, err)
	assert.NotEmpty(t, byName.ID)

	byEmail, err := s.FindByEmail(ctx, "racer@x.io")
	require.NoError(t, err)
	assert.NotEmpty(t, byEmail.ID)

	assert.Equal(t, int32(2), successes.Load())
	assert.Equal(t, int32(workers-2), conflicts.Load())
}

func testUpdatePassword(t *testing.T, s storage.Store) {
	ctx := context.Background()
	require.NoError(t, s.Insert(ctx, NewAccount("alice", "a@x.io")))

	require.NoError(t, s.UpdatePassword(ctx, "alice", "new-digest"))

	got, err := s.FindByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "new-digest", got.PasswordDigest)

	// Поиск по email видит тот же digest
	got, err = s.FindByEmail(ctx, "a@x.io")
	require.NoError(t, err)
	assert.Equal(t, "new-digest", got.PasswordDigest)
}

func testSetActive(t *testing.T, s storage.Store) {
	ctx := context.Background()
	require.NoError(t, s.Insert(ctx, NewAccount("alice", "a@x.io")))

	require.NoError(t, s.SetActive(ctx, "alice", false))
	got, err := s.FindByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.False(t, got.IsActive)

	require.NoError(t, s.SetActive(ctx, "alice", true))
	got, err = s.FindByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, got.IsActive)
}

func testSeedBootstrap(t *testing.T, s storage.Store) {
	ctx := context.Background()

	seeded, err := s.SeedBootstrap(ctx, NewAccount("eiz", "eiz@prescient.com"))
	require.NoError(t, err)
	assert.True(t, seeded)

	// Администратор деактивировал и сменил пароль
	require.NoError(t, s.SetActive(ctx, "eiz", false))
	require.NoError(t, s.UpdatePassword(ctx, "eiz", "changed"))

	// Повторный запуск ничего не откатывает
	seeded, err = s.SeedBootstrap(ctx, NewAccount("eiz", "eiz@prescient.com"))
	require.NoError(t, err)
	assert.False(t, seeded)

	got, err := s.FindByUsername(ctx, "eiz")
	require.NoError(t, err)
	assert.False(t, got.IsActive)
	assert.Equal(t, "changed", got.PasswordDigest)
}

func testSeedBootstrapNonEmpty(t *testing.T, s storage.Store) {
	ctx := context.Background()
	require.NoError(t, s.Insert(ctx, NewAccount("alice", "a@x.io")))

	seeded, err := s.SeedBootstrap(ctx, NewAccount("eiz", "eiz@prescient.com"))
	require.NoError(t, err)
	assert.False(t, seeded)

	_, err = s.FindByUsername(ctx, "eiz")
	assert.ErrorIs(t, err, storage.ErrAccountNotFound)

	// Маркер записан: даже в пустом хранилище сидинг больше не случится
	seeded, err = s.SeedBootstrap(ctx, NewAccount("eiz", "eiz@prescient.com"))
	require.NoError(t, err)
	assert.False(t, seeded)
}

func testResetLedger(t *testing.T, s storage.Store) {
	ctx := context.Background()
	now := time.Now().Truncate(time.Second)

	require.NoError(t, s.MarkConsumed(ctx, "key-1", now.Add(time.Hour)))
	assert.ErrorIs(t, s.MarkConsumed(ctx, "key-1", now.Add(time.Hour)), storage.ErrTokenConsumed)

	require.NoError(t, s.MarkConsumed(ctx, "key-2", now.Add(-time.Minute)))
	require.NoError(t, s.MarkConsumed(ctx, "key-3", now))

	purged, err := s.PurgeExpired(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, 2, purged)

	// key-1 еще жив, key-2 удален и может быть записан снова
	assert.ErrorIs(t, s.MarkConsumed(ctx, "key-1", now.Add(time.Hour)), storage.ErrTokenConsumed)
	assert.NoError(t, s.MarkConsumed(ctx, "key-2", now.Add(time.Hour)))

	purged, err = s.PurgeExpired(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, 0, purged)
}
