//go:generate go run go.uber.org/mock/mockgen -source=user.go -destination=../mocks/mock_user_repository.go -package=mocks
package repositories

import (
	"bananachat/domain"
	"bananachat/errors"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	json "github.com/goccy/go-json"
)

const userPrefix = "user:"

type IUserRepository interface {
	Create(username, email, displayName, passwordHash string) (UserRecord, error)
	Get(username string) (UserRecord, error)
	SetOnline(username string, online bool) error
	Deactivate(username string) error
	All() ([]UserRecord, error)
	Search(term string) ([]UserRecord, error)
}

// UserRecord is the storage-level representation of an identity. The
// password hash never leaves this layer.
type UserRecord struct {
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	DisplayName  string    `json:"displayName"`
	PasswordHash string    `json:"passwordHash"`
	Roles        []string  `json:"roles"`
	Online       bool      `json:"online"`
	LastSeen     time.Time `json:"lastSeen"`
	Active       bool      `json:"active"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Identity strips credentials for the layers above.
func (u UserRecord) Identity() domain.Identity {
	return domain.Identity{
		Username:    u.Username,
		Email:       u.Email,
		DisplayName: u.DisplayName,
		Online:      u.Online,
		LastSeen:    u.LastSeen,
		Active:      u.Active,
		CreatedAt:   u.CreatedAt,
		UpdatedAt:   u.UpdatedAt,
	}
}

type UserRepository struct {
	db *badger.DB
}

func NewUserRepository(db *badger.DB) IUserRepository {
	return &UserRepository{db: db}
}

func userKey(username string) []byte {
	return []byte(userPrefix + username)
}

func (r *UserRepository) Create(username, email, displayName, passwordHash string) (UserRecord, error) {
	now := time.Now().UTC()
	record := UserRecord{
		Username:     username,
		Email:        email,
		DisplayName:  displayName,
		PasswordHash: passwordHash,
		Roles:        []string{"user"},
		Active:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	data, err := json.Marshal(record)
	if err != nil {
		return UserRecord{}, err
	}

	err = r.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(userKey(username)); err == nil {
			return errors.ErrUserAlreadyExists
		} else if err != badger.ErrKeyNotFound {
			return err
		}
		return txn.Set(userKey(username), data)
	})
	if err != nil {
		return UserRecord{}, err
	}
	return record, nil
}

func (r *UserRepository) Get(username string) (UserRecord, error) {
	var record UserRecord
	err := r.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(userKey(username))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &record)
		})
	})
	if err == badger.ErrKeyNotFound {
		return UserRecord{}, errors.ErrUserNotFound
	}
	return record, err
}

// SetOnline persists the presence transition alongside the in-memory
// registry: online flag, last-seen, and update time.
func (r *UserRepository) SetOnline(username string, online bool) error {
	return r.mutate(username, func(record *UserRecord) {
		record.Online = online
		record.LastSeen = time.Now().UTC()
	})
}

// Deactivate soft-deletes: the record stays so history keeps resolving.
func (r *UserRepository) Deactivate(username string) error {
	return r.mutate(username, func(record *UserRecord) {
		record.Active = false
		record.Online = false
	})
}

func (r *UserRepository) mutate(username string, apply func(*UserRecord)) error {
	err := r.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(userKey(username))
		if err != nil {
			return err
		}
		var record UserRecord
		if err := item.Value(func(val []byte) error {
			return json.Unmarshal(val, &record)
		}); err != nil {
			return err
		}
		apply(&record)
		record.UpdatedAt = time.Now().UTC()
		data, err := json.Marshal(record)
		if err != nil {
			return err
		}
		return txn.Set(userKey(username), data)
	})
	if err == badger.ErrKeyNotFound {
		return errors.ErrUserNotFound
	}
	return err
}

func (r *UserRepository) All() ([]UserRecord, error) {
	var records []UserRecord
	err := r.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		prefix := []byte(userPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var record UserRecord
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &record)
			}); err != nil {
				return err
			}
			records = append(records, record)
		}
		return nil
	})
	return records, err
}

// Search matches usernames and display names by case-insensitive substring.
func (r *UserRepository) Search(term string) ([]UserRecord, error) {
	records, err := r.All()
	if err != nil {
		return nil, err
	}
	term = strings.ToLower(term)
	var matches []UserRecord
	for _, record := range records {
		if strings.Contains(strings.ToLower(record.Username), term) ||
			strings.Contains(strings.ToLower(record.DisplayName), term) {
			matches = append(matches, record)
		}
	}
	return matches, nil
}
