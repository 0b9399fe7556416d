//go:generate go run go.uber.org/mock/mockgen -source=group.go -destination=../mocks/mock_group_repository.go -package=mocks
package repositories

import (
	"bananachat/domain"
	"bananachat/errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/dgraph-io/badger/v4"
	json "github.com/goccy/go-json"
)

// Key layout:
//
//	group:{id_padded}    JSON group record
//	groupname:{name}     global name uniqueness index (active groups only)
//
// Deactivating a group releases its name: the history stays, the name can be
// reused.
const (
	groupRecordPrefix = "group:"
	groupNamePrefix   = "groupname:"
)

type IGroupStore interface {
	Create(g domain.Group) (domain.Group, error)
	Get(id domain.GroupID) (domain.Group, error)
	Update(g domain.Group, previousName string) error
	All() ([]domain.Group, error)
}

var _ IGroupStore = (*GroupRepository)(nil)

type GroupRepository struct {
	db  *badger.DB
	log *slog.Logger

	seqOnce sync.Once
	seq     *badger.Sequence
	seqErr  error
}

func NewGroupRepository(db *badger.DB, log *slog.Logger) *GroupRepository {
	return &GroupRepository{db: db, log: log}
}

// nextID leases the id sequence on first use. Leasing writes to the store,
// so read-only opens (the inspector CLI) can still construct the repository
// and list groups.
func (r *GroupRepository) nextID() (domain.GroupID, error) {
	r.seqOnce.Do(func() {
		r.seq, r.seqErr = r.db.GetSequence([]byte("seq:group"), 16)
	})
	if r.seqErr != nil {
		return 0, fmt.Errorf("group sequence: %w", r.seqErr)
	}
	id, err := r.seq.Next()
	if err != nil {
		return 0, err
	}
	if id == 0 {
		if id, err = r.seq.Next(); err != nil {
			return 0, err
		}
	}
	return domain.GroupID(id), nil
}

func (r *GroupRepository) Close() error {
	if r.seq == nil {
		return nil
	}
	return r.seq.Release()
}

func groupKey(id domain.GroupID) []byte {
	return []byte(fmt.Sprintf("%s%012d", groupRecordPrefix, id))
}

func groupNameKey(name string) []byte {
	return []byte(groupNamePrefix + name)
}

// Create assigns an id, claims the name, and persists the group atomically.
func (r *GroupRepository) Create(g domain.Group) (domain.Group, error) {
	id, err := r.nextID()
	if err != nil {
		return domain.Group{}, err
	}
	g.ID = id

	value, err := json.Marshal(g)
	if err != nil {
		return domain.Group{}, err
	}

	err = r.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(groupNameKey(g.Name)); err == nil {
			return errors.ErrDuplicateGroupName
		} else if err != badger.ErrKeyNotFound {
			return err
		}
		if err := txn.Set(groupKey(g.ID), value); err != nil {
			return err
		}
		return txn.Set(groupNameKey(g.Name), []byte(fmt.Sprintf("%d", g.ID)))
	})
	if err == badger.ErrConflict {
		// Two creates raced on the same name; the loser's read of the name
		// index is stale, which is still a duplicate name to the caller.
		return domain.Group{}, errors.ErrDuplicateGroupName
	}
	if err != nil {
		return domain.Group{}, err
	}
	return g, nil
}

func (r *GroupRepository) Get(id domain.GroupID) (domain.Group, error) {
	var g domain.Group
	err := r.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(groupKey(id))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &g)
		})
	})
	if err == badger.ErrKeyNotFound {
		return domain.Group{}, errors.ErrGroupNotFound
	}
	return g, err
}

// Update rewrites the group record and keeps the name index in step: a rename
// moves the index entry (failing on collision), a deactivation drops it.
// previousName must be the name under which the group was last saved.
func (r *GroupRepository) Update(g domain.Group, previousName string) error {
	value, err := json.Marshal(g)
	if err != nil {
		return err
	}

	return r.db.Update(func(txn *badger.Txn) error {
		renamed := g.Name != previousName
		if renamed && g.Active {
			if _, err := txn.Get(groupNameKey(g.Name)); err == nil {
				return errors.ErrDuplicateGroupName
			} else if err != badger.ErrKeyNotFound {
				return err
			}
		}
		if renamed || !g.Active {
			if err := txn.Delete(groupNameKey(previousName)); err != nil && err != badger.ErrKeyNotFound {
				return err
			}
		}
		if g.Active {
			if err := txn.Set(groupNameKey(g.Name), []byte(fmt.Sprintf("%d", g.ID))); err != nil {
				return err
			}
		}
		return txn.Set(groupKey(g.ID), value)
	})
}

// All returns every stored group, active or not. Callers filter.
func (r *GroupRepository) All() ([]domain.Group, error) {
	var groups []domain.Group
	err := r.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		prefix := []byte(groupRecordPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var g domain.Group
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &g)
			}); err != nil {
				return err
			}
			groups = append(groups, g)
		}
		return nil
	})
	return groups, err
}
