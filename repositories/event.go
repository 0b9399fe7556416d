//go:generate go run go.uber.org/mock/mockgen -source=event.go -destination=../mocks/mock_event_repository.go -package=mocks
package repositories

import (
	"bananachat/domain"
	"bananachat/errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	json "github.com/goccy/go-json"
)

// Key layout:
//
//	hist:{timestamp_padded}:{id_padded}          public room + private messages
//	gmsg:{group_id}:{timestamp_padded}:{id_padded}  group-scoped messages
//	evtid:{id_padded}                            id -> primary key index
//
// The 19-digit zero padding keeps keys in chronological order under Badger's
// lexicographic iteration; the monotonic id breaks same-nanosecond ties in
// insertion order. The id index makes the single permitted in-place
// edit/delete of a record an O(1) lookup.
const (
	histPrefix    = "hist:"
	groupPrefix   = "gmsg:"
	eventIDPrefix = "evtid:"
	maxPaddedTime = "9999999999999999999"
)

type EventRepository struct {
	db  *badger.DB
	seq *badger.Sequence
	log *slog.Logger
}

func NewEventRepository(db *badger.DB, log *slog.Logger) (*EventRepository, error) {
	seq, err := db.GetSequence([]byte("seq:event"), 128)
	if err != nil {
		return nil, fmt.Errorf("event sequence: %w", err)
	}
	return &EventRepository{db: db, seq: seq, log: log}, nil
}

// Close releases the unused tail of the id sequence.
func (r *EventRepository) Close() error {
	return r.seq.Release()
}

func primaryKey(e domain.ChatEvent) string {
	if e.IsGroupScoped() {
		return fmt.Sprintf("%s%d:%019d:%012d", groupPrefix, e.GroupID, e.Timestamp.UnixNano(), e.ID)
	}
	return fmt.Sprintf("%s%019d:%012d", histPrefix, e.Timestamp.UnixNano(), e.ID)
}

func indexKey(id domain.EventID) string {
	return fmt.Sprintf("%s%012d", eventIDPrefix, id)
}

// Append persists the event, assigning a monotonic id if absent. Prior
// entries are never touched.
func (r *EventRepository) Append(e domain.ChatEvent) (domain.ChatEvent, error) {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	if e.ID == 0 {
		id, err := r.nextID()
		if err != nil {
			return domain.ChatEvent{}, err
		}
		e.ID = id
	}

	value, err := json.Marshal(e)
	if err != nil {
		return domain.ChatEvent{}, err
	}
	key := primaryKey(e)

	err = r.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set([]byte(key), value); err != nil {
			return err
		}
		return txn.Set([]byte(indexKey(e.ID)), []byte(key))
	})
	if err != nil {
		return domain.ChatEvent{}, err
	}
	return e, nil
}

// nextID skips the zero value the first sequence lease hands out,
// so id 0 keeps meaning "unassigned".
func (r *EventRepository) nextID() (domain.EventID, error) {
	id, err := r.seq.Next()
	if err != nil {
		return 0, err
	}
	if id == 0 {
		id, err = r.seq.Next()
		if err != nil {
			return 0, err
		}
	}
	return domain.EventID(id), nil
}

func (r *EventRepository) Get(id domain.EventID) (domain.ChatEvent, error) {
	var e domain.ChatEvent
	err := r.db.View(func(txn *badger.Txn) error {
		key, err := resolvePrimaryKey(txn, id)
		if err != nil {
			return err
		}
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &e)
		})
	})
	if err == badger.ErrKeyNotFound {
		return domain.ChatEvent{}, errors.ErrMessageNotFound
	}
	return e, err
}

// Update rewrites the record in place. Sender, timestamp and destination are
// immutable, so the primary key never moves.
func (r *EventRepository) Update(e domain.ChatEvent) error {
	value, err := json.Marshal(e)
	if err != nil {
		return err
	}
	err = r.db.Update(func(txn *badger.Txn) error {
		key, err := resolvePrimaryKey(txn, e.ID)
		if err != nil {
			return err
		}
		return txn.Set(key, value)
	})
	if err == badger.ErrKeyNotFound {
		return errors.ErrMessageNotFound
	}
	return err
}

func (r *EventRepository) Delete(id domain.EventID) error {
	err := r.db.Update(func(txn *badger.Txn) error {
		key, err := resolvePrimaryKey(txn, id)
		if err != nil {
			return err
		}
		if err := txn.Delete(key); err != nil {
			return err
		}
		return txn.Delete([]byte(indexKey(id)))
	})
	if err == badger.ErrKeyNotFound {
		return errors.ErrMessageNotFound
	}
	return err
}

func resolvePrimaryKey(txn *badger.Txn, id domain.EventID) ([]byte, error) {
	item, err := txn.Get([]byte(indexKey(id)))
	if err != nil {
		return nil, err
	}
	return item.ValueCopy(nil)
}

// History returns the full public-room and private history, oldest first.
func (r *EventRepository) History() ([]domain.ChatEvent, error) {
	return r.scan(histPrefix, false, 0, 0, nil)
}

// Recent pages through the public-room and private history, newest first.
func (r *EventRepository) Recent(page, size int) ([]domain.ChatEvent, error) {
	if page < 0 || size <= 0 {
		return nil, errors.ErrInvalidArgument
	}
	return r.scan(histPrefix, true, page*size, size, nil)
}

// PublicHistory returns broadcast events only (no recipient), oldest first.
func (r *EventRepository) PublicHistory() ([]domain.ChatEvent, error) {
	return r.scan(histPrefix, false, 0, 0, func(e domain.ChatEvent) bool {
		return !e.IsPrivate()
	})
}

// PrivateHistory returns the conversation between two identities in either
// direction, oldest first.
func (r *EventRepository) PrivateHistory(user1, user2 string) ([]domain.ChatEvent, error) {
	return r.scan(histPrefix, false, 0, 0, func(e domain.ChatEvent) bool {
		if !e.IsPrivate() {
			return false
		}
		return (e.Sender == user1 && e.Recipient == user2) ||
			(e.Sender == user2 && e.Recipient == user1)
	})
}

func groupKeyPrefix(groupID domain.GroupID) string {
	return fmt.Sprintf("%s%d:", groupPrefix, groupID)
}

func (r *EventRepository) GroupHistory(groupID domain.GroupID) ([]domain.ChatEvent, error) {
	return r.scan(groupKeyPrefix(groupID), false, 0, 0, nil)
}

func (r *EventRepository) RecentGroupMessages(groupID domain.GroupID, limit int) ([]domain.ChatEvent, error) {
	if limit <= 0 {
		return nil, errors.ErrInvalidArgument
	}
	return r.scan(groupKeyPrefix(groupID), true, 0, limit, nil)
}

// GroupMessagesSince seeks straight to the timestamp boundary instead of
// filtering the whole keyspace.
func (r *EventRepository) GroupMessagesSince(groupID domain.GroupID, since time.Time) ([]domain.ChatEvent, error) {
	prefix := groupKeyPrefix(groupID)
	seekKey := fmt.Sprintf("%s%019d", prefix, since.UnixNano())

	var events []domain.ChatEvent
	err := r.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek([]byte(seekKey)); it.ValidForPrefix([]byte(prefix)); it.Next() {
			var e domain.ChatEvent
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &e)
			}); err != nil {
				return err
			}
			events = append(events, e)
		}
		return nil
	})
	return events, err
}

// SearchGroupMessages matches content by exact substring, newest first.
func (r *EventRepository) SearchGroupMessages(groupID domain.GroupID, term string) ([]domain.ChatEvent, error) {
	return r.scan(groupKeyPrefix(groupID), true, 0, 0, func(e domain.ChatEvent) bool {
		return strings.Contains(e.Content, term)
	})
}

func (r *EventRepository) CountGroupMessages(groupID domain.GroupID) (int64, error) {
	prefix := []byte(groupKeyPrefix(groupID))
	var count int64
	err := r.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			count++
		}
		return nil
	})
	return count, err
}

// scan walks one keyspace in time order. When reverse is set it starts from
// the most recent key; skip and limit implement offset pagination; keep
// filters records after decoding (nil keeps everything).
func (r *EventRepository) scan(prefix string, reverse bool, skip, limit int, keep func(domain.ChatEvent) bool) ([]domain.ChatEvent, error) {
	var events []domain.ChatEvent
	err := r.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = reverse
		it := txn.NewIterator(opts)
		defer it.Close()

		seekKey := []byte(prefix)
		if reverse {
			seekKey = append(seekKey, []byte(maxPaddedTime)...)
		}

		skipped := 0
		for it.Seek(seekKey); it.ValidForPrefix([]byte(prefix)); it.Next() {
			var e domain.ChatEvent
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &e)
			}); err != nil {
				return err
			}
			if keep != nil && !keep(e) {
				continue
			}
			if skipped < skip {
				skipped++
				continue
			}
			events = append(events, e)
			if limit > 0 && len(events) == limit {
				return nil
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return events, nil
}
