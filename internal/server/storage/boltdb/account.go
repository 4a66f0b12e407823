package boltdb

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.etcd.io/bbolt"

	"github.com/iudanet/prescient/internal/models"
	"github.com/iudanet/prescient/internal/server/storage"
)

// FindByUsername retrieves account by username
func (s *Storage) FindByUsername(ctx context.Context, username string) (*models.Account, error) {
	var account *models.Account

	err := s.db.View(func(tx *bbolt.Tx) error {
		var err error
		account, err = getAccount(tx, username)
		return err
	})
	if err != nil {
		return nil, err
	}

	return account, nil
}

// FindByEmail retrieves account by email
func (s *Storage) FindByEmail(ctx context.Context, email string) (*models.Account, error) {
	var account *models.Account

	err := s.db.View(func(tx *bbolt.Tx) error {
		// Индекс email -> username
		username := tx.Bucket(bucketEmails).Get([]byte(email))
		if username == nil {
			return storage.ErrAccountNotFound
		}

		var err error
		account, err = getAccount(tx, string(username))
		return err
	})
	if err != nil {
		return nil, err
	}

	return account, nil
}

// Insert creates a new account
func (s *Storage) Insert(ctx context.Context, account *models.Account) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return insertAccount(tx, account)
	})
}

// UpdatePassword replaces password digest of the account
func (s *Storage) UpdatePassword(ctx context.Context, username, digest string) error {
	return s.updateAccount(username, func(account *models.Account) {
		account.PasswordDigest = digest
	})
}

// SetActive activates or deactivates the account
func (s *Storage) SetActive(ctx context.Context, username string, active bool) error {
	return s.updateAccount(username, func(account *models.Account) {
		account.IsActive = active
	})
}

// SeedBootstrap inserts the bootstrap account at most once
func (s *Storage) SeedBootstrap(ctx context.Context, account *models.Account) (bool, error) {
	seeded := false

	err := s.db.Update(func(tx *bbolt.Tx) error {
		meta := tx.Bucket(bucketMeta)
		if meta.Get([]byte(storage.BootstrapMarker)) != nil {
			return nil
		}

		// Сидим только в пустое хранилище
		if k, _ := tx.Bucket(bucketAccounts).Cursor().First(); k == nil {
			if err := insertAccount(tx, account); err != nil {
				return err
			}
			seeded = true
		}

		marker := []byte(time.Now().UTC().Format(time.RFC3339))
		if err := meta.Put([]byte(storage.BootstrapMarker), marker); err != nil {
			return fmt.Errorf("failed to write bootstrap marker: %w", err)
		}

		return nil
	})
	if err != nil {
		return false, err
	}

	return seeded, nil
}

// updateAccount читает, изменяет и сохраняет аккаунт в одной транзакции
func (s *Storage) updateAccount(username string, mutate func(*models.Account)) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		account, err := getAccount(tx, username)
		if err != nil {
			return err
		}

		mutate(account)
		account.UpdatedAt = time.Now().UTC()

		return putAccount(tx, account)
	})
}

func getAccount(tx *bbolt.Tx, username string) (*models.Account, error) {
	data := tx.Bucket(bucketAccounts).Get([]byte(username))
	if data == nil {
		return nil, storage.ErrAccountNotFound
	}

	// data валидна только внутри транзакции, Unmarshal копирует значения
	account := &models.Account{}
	if err := json.Unmarshal(data, account); err != nil {
		return nil, fmt.Errorf("failed to unmarshal account: %w", err)
	}

	return account, nil
}

func insertAccount(tx *bbolt.Tx, account *models.Account) error {
	accounts := tx.Bucket(bucketAccounts)
	emails := tx.Bucket(bucketEmails)

	// Проверка и запись в одной read-write транзакции, поэтому гонки нет
	if accounts.Get([]byte(account.Username)) != nil {
		return fmt.Errorf("%w: username %s", storage.ErrAccountConflict, account.Username)
	}
	if emails.Get([]byte(account.Email)) != nil {
		return fmt.Errorf("%w: email %s", storage.ErrAccountConflict, account.Email)
	}

	if err := emails.Put([]byte(account.Email), []byte(account.Username)); err != nil {
		return fmt.Errorf("failed to save email index: %w", err)
	}

	return putAccount(tx, account)
}

func putAccount(tx *bbolt.Tx, account *models.Account) error {
	data, err := json.Marshal(account)
	if err != nil {
		return fmt.Errorf("failed to marshal account: %w", err)
	}

	if err := tx.Bucket(bucketAccounts).Put([]byte(account.Username), data); err != nil {
		return fmt.Errorf("failed to save account: %w", err)
	}

	return nil
}
