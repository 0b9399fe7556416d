package repositories

import (
	"fmt"
	"log/slog"
	"sync"
	"testing"

	"bananachat/domain"
	"bananachat/errors"

	"github.com/dgraph-io/badger/v4"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
)

func newGroupRepo(t *testing.T) *GroupRepository {
	t.Helper()
	req := require.New(t)
	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).
		WithLoggingLevel(badger.ERROR))
	req.NoError(err)
	t.Cleanup(func() { _ = db.Close() })

	repo := NewGroupRepository(db, logs.GetLoggerFromLevel(slog.LevelDebug))
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func TestGroupRepository_CreateAndGet(t *testing.T) {
	req := require.New(t)
	repo := newGroupRepo(t)

	created, err := repo.Create(domain.NewGroup("devs", "dev talk", "alice", domain.VisibilityPublic, 10))
	req.NoError(err)
	req.NotZero(created.ID)

	fetched, err := repo.Get(created.ID)
	req.NoError(err)
	req.Equal("devs", fetched.Name)
	req.Equal("alice", fetched.Owner)
	req.True(fetched.IsMember("alice"), "owner is always a member")

	_, err = repo.Get(domain.GroupID(999))
	req.ErrorIs(err, errors.ErrGroupNotFound)
}

func TestGroupRepository_NameUniqueness(t *testing.T) {
	req := require.New(t)
	repo := newGroupRepo(t)

	_, err := repo.Create(domain.NewGroup("devs", "", "alice", domain.VisibilityPublic, 10))
	req.NoError(err)

	_, err = repo.Create(domain.NewGroup("devs", "", "bob", domain.VisibilityPublic, 10))
	req.ErrorIs(err, errors.ErrDuplicateGroupName)
}

func TestGroupRepository_RenameMovesNameIndex(t *testing.T) {
	req := require.New(t)
	repo := newGroupRepo(t)

	g, err := repo.Create(domain.NewGroup("devs", "", "alice", domain.VisibilityPublic, 10))
	req.NoError(err)
	other, err := repo.Create(domain.NewGroup("ops", "", "bob", domain.VisibilityPublic, 10))
	req.NoError(err)

	// Renaming onto a taken name collides
	g.Name = "ops"
	req.ErrorIs(repo.Update(g, "devs"), errors.ErrDuplicateGroupName)

	// A legal rename frees the old name for reuse
	g.Name = "backend"
	req.NoError(repo.Update(g, "devs"))

	_, err = repo.Create(domain.NewGroup("devs", "", "carol", domain.VisibilityPublic, 10))
	req.NoError(err)

	// Untouched group is unaffected
	fetched, err := repo.Get(other.ID)
	req.NoError(err)
	req.Equal("ops", fetched.Name)
}

func TestGroupRepository_DeactivationReleasesName(t *testing.T) {
	req := require.New(t)
	repo := newGroupRepo(t)

	g, err := repo.Create(domain.NewGroup("devs", "", "alice", domain.VisibilityPublic, 10))
	req.NoError(err)

	g.Active = false
	req.NoError(repo.Update(g, "devs"))

	// The record survives for history resolution
	fetched, err := repo.Get(g.ID)
	req.NoError(err)
	req.False(fetched.Active)

	// The name is free again
	_, err = repo.Create(domain.NewGroup("devs", "", "bob", domain.VisibilityPublic, 10))
	req.NoError(err)
}

func TestGroupRepository_All(t *testing.T) {
	req := require.New(t)
	repo := newGroupRepo(t)

	_, err := repo.Create(domain.NewGroup("devs", "", "alice", domain.VisibilityPublic, 10))
	req.NoError(err)
	g2, err := repo.Create(domain.NewGroup("ops", "", "bob", domain.VisibilityPrivate, 10))
	req.NoError(err)

	g2.Active = false
	req.NoError(repo.Update(g2, "ops"))

	all, err := repo.All()
	req.NoError(err)
	req.Len(all, 2, "All returns deactivated groups too")
}

func TestGroupRepository_ReadOnlyOpenCanList(t *testing.T) {
	req := require.New(t)
	dir := t.TempDir()

	db, err := badger.Open(badger.DefaultOptions(dir).
		WithLoggingLevel(badger.ERROR))
	req.NoError(err)
	writer := NewGroupRepository(db, logs.GetLoggerFromLevel(slog.LevelDebug))
	created, err := writer.Create(domain.NewGroup("devs", "", "alice", domain.VisibilityPublic, 10))
	req.NoError(err)
	req.NoError(writer.Close())
	req.NoError(db.Close())

	// The inspector CLI reopens the store read-only; the id sequence lease
	// is a write, so the repository must not take it until a Create.
	ro, err := badger.Open(badger.DefaultOptions(dir).
		WithReadOnly(true).
		WithBypassLockGuard(true).
		WithLoggingLevel(badger.ERROR))
	req.NoError(err)
	t.Cleanup(func() { _ = ro.Close() })

	inspector := NewGroupRepository(ro, logs.GetLoggerFromLevel(slog.LevelDebug))
	t.Cleanup(func() { _ = inspector.Close() })

	all, err := inspector.All()
	req.NoError(err)
	req.Len(all, 1)
	req.Equal(created.ID, all[0].ID)

	fetched, err := inspector.Get(created.ID)
	req.NoError(err)
	req.Equal("devs", fetched.Name)

	_, err = inspector.Create(domain.NewGroup("ops", "", "bob", domain.VisibilityPublic, 10))
	req.Error(err, "writes stay rejected on a read-only store")
}

func TestGroupRepository_ConcurrentCreateSameName(t *testing.T) {
	req := require.New(t)
	repo := newGroupRepo(t)

	const racers = 8
	errs := make(chan error, racers)
	var start sync.WaitGroup
	start.Add(1)
	for i := 0; i < racers; i++ {
		owner := fmt.Sprintf("user%d", i)
		go func() {
			start.Wait()
			_, err := repo.Create(domain.NewGroup("devs", "", owner, domain.VisibilityPublic, 10))
			errs <- err
		}()
	}
	start.Done()

	var won int
	for i := 0; i < racers; i++ {
		if err := <-errs; err == nil {
			won++
		} else {
			req.ErrorIs(err, errors.ErrDuplicateGroupName,
				"a losing racer sees the duplicate-name failure, never a raw conflict")
		}
	}
	req.Equal(1, won)

	all, err := repo.All()
	req.NoError(err)
	req.Len(all, 1)
}
