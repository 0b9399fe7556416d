package membership

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"testing"

	"bananachat/broker"
	"bananachat/domain"
	"bananachat/errors"
	"bananachat/repositories"

	"github.com/dgraph-io/badger/v4"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
)

// recordingBroker captures published events for assertions.
type recordingBroker struct {
	mu     sync.Mutex
	events []publishedEvent
}

type publishedEvent struct {
	destination string
	event       domain.ChatEvent
}

func (b *recordingBroker) Publish(_ context.Context, destination string, e domain.ChatEvent) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, publishedEvent{destination: destination, event: e})
	return nil
}

func (b *recordingBroker) published() []publishedEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]publishedEvent, len(b.events))
	copy(out, b.events)
	return out
}

func (b *recordingBroker) lastKind() domain.EventKind {
	events := b.published()
	if len(events) == 0 {
		return ""
	}
	return events[len(events)-1].event.Kind
}

type fixture struct {
	authority *Authority
	users     repositories.IUserRepository
	broker    *recordingBroker
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	req := require.New(t)
	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).
		WithLoggingLevel(badger.ERROR))
	req.NoError(err)
	t.Cleanup(func() { _ = db.Close() })

	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	groups := repositories.NewGroupRepository(db, log)
	t.Cleanup(func() { _ = groups.Close() })
	users := repositories.NewUserRepository(db)

	rec := &recordingBroker{}
	return fixture{
		authority: NewAuthority(groups, users, rec, log),
		users:     users,
		broker:    rec,
	}
}

func (f fixture) registerUsers(t *testing.T, usernames ...string) {
	t.Helper()
	for _, name := range usernames {
		_, err := f.users.Create(name, name+"@example.com", name, "$argon2id$fake")
		require.NoError(t, err)
	}
}

func TestAuthority_CreateGroup(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	f := newFixture(t)
	f.registerUsers(t, "alice")

	group, err := f.authority.CreateGroup(ctx, "  devs  ", "dev talk", "alice", domain.VisibilityPublic, 0)
	req.NoError(err)
	req.Equal("devs", group.Name, "name is trimmed")
	req.Equal(domain.DefaultMaxMembers, group.MaxMembers, "zero capacity falls back to the default")
	req.True(group.IsMember("alice"), "owner is the first member")

	events := f.broker.published()
	req.Len(events, 1)
	req.Equal(broker.TopicGroupsUpdate, events[0].destination)
	req.Equal(domain.KindGroupCreated, events[0].event.Kind)

	_, err = f.authority.CreateGroup(ctx, "devs", "", "alice", domain.VisibilityPublic, 0)
	req.ErrorIs(err, errors.ErrDuplicateGroupName)

	_, err = f.authority.CreateGroup(ctx, "", "", "alice", domain.VisibilityPublic, 0)
	req.ErrorIs(err, errors.ErrInvalidArgument)

	_, err = f.authority.CreateGroup(ctx, "ghosts", "", "nobody", domain.VisibilityPublic, 0)
	req.ErrorIs(err, errors.ErrUserNotFound)
}

func TestAuthority_AddAndRemoveMember(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	f := newFixture(t)
	f.registerUsers(t, "alice", "bob", "carol")

	group, err := f.authority.CreateGroup(ctx, "devs", "", "alice", domain.VisibilityPublic, 2)
	req.NoError(err)

	// bob fills the last slot
	group, err = f.authority.AddMember(ctx, group.ID, "bob")
	req.NoError(err)
	req.Equal(2, group.MemberCount())
	req.Equal(domain.KindMemberAdded, f.broker.lastKind())

	_, err = f.authority.AddMember(ctx, group.ID, "bob")
	req.ErrorIs(err, errors.ErrAlreadyMember)

	_, err = f.authority.AddMember(ctx, group.ID, "carol")
	req.ErrorIs(err, errors.ErrGroupFull)

	_, err = f.authority.AddMember(ctx, group.ID, "nobody")
	req.ErrorIs(err, errors.ErrUserNotFound)

	_, err = f.authority.RemoveMember(ctx, group.ID, "carol")
	req.ErrorIs(err, errors.ErrNotMember)

	_, err = f.authority.RemoveMember(ctx, group.ID, "alice")
	req.ErrorIs(err, errors.ErrOwnerCannotLeave)

	group, err = f.authority.RemoveMember(ctx, group.ID, "bob")
	req.NoError(err)
	req.Equal(1, group.MemberCount())
	req.Equal(domain.KindMemberRemoved, f.broker.lastKind())

	// With bob gone carol fits again
	_, err = f.authority.AddMember(ctx, group.ID, "carol")
	req.NoError(err)
}

func TestAuthority_ConcurrentJoinsNeverExceedCapacity(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	f := newFixture(t)

	users := []string{"alice"}
	for i := 0; i < 10; i++ {
		users = append(users, fmt.Sprintf("user-%d", i))
	}
	f.registerUsers(t, users...)

	group, err := f.authority.CreateGroup(ctx, "devs", "", "alice", domain.VisibilityPublic, 3)
	req.NoError(err)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_, _ = f.authority.AddMember(ctx, group.ID, fmt.Sprintf("user-%d", n))
		}(i)
	}
	wg.Wait()

	final, err := f.authority.Group(group.ID)
	req.NoError(err)
	req.Equal(3, final.MemberCount(), "capacity must hold under racing joins")
}

func TestAuthority_UpdateGroup(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	f := newFixture(t)
	f.registerUsers(t, "alice", "bob")

	group, err := f.authority.CreateGroup(ctx, "devs", "", "alice", domain.VisibilityPublic, 5)
	req.NoError(err)
	_, err = f.authority.AddMember(ctx, group.ID, "bob")
	req.NoError(err)

	name := "backend"
	_, err = f.authority.UpdateGroup(ctx, group.ID, "bob", &name, nil, nil)
	req.ErrorIs(err, errors.ErrForbidden, "only the owner updates the group")

	tooSmall := 1
	_, err = f.authority.UpdateGroup(ctx, group.ID, "alice", nil, nil, &tooSmall)
	req.ErrorIs(err, errors.ErrCapacityBelowMembers)

	description := "backend chatter"
	capacity := 3
	updated, err := f.authority.UpdateGroup(ctx, group.ID, "alice", &name, &description, &capacity)
	req.NoError(err)
	req.Equal("backend", updated.Name)
	req.Equal("backend chatter", updated.Description)
	req.Equal(3, updated.MaxMembers)
	req.Equal(domain.KindGroupUpdated, f.broker.lastKind())

	// The old name is free again
	_, err = f.authority.CreateGroup(ctx, "devs", "", "alice", domain.VisibilityPublic, 0)
	req.NoError(err)
}

func TestAuthority_Deactivation(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	f := newFixture(t)
	f.registerUsers(t, "alice", "bob")

	group, err := f.authority.CreateGroup(ctx, "devs", "", "alice", domain.VisibilityPublic, 5)
	req.NoError(err)
	_, err = f.authority.AddMember(ctx, group.ID, "bob")
	req.NoError(err)

	req.ErrorIs(f.authority.DeactivateGroup(ctx, group.ID, "bob"), errors.ErrForbidden)
	req.NoError(f.authority.DeactivateGroup(ctx, group.ID, "alice"))

	// Routing-facing reads treat it as gone
	_, err = f.authority.Group(group.ID)
	req.ErrorIs(err, errors.ErrGroupNotFound)
	listed, err := f.authority.PublicGroups()
	req.NoError(err)
	req.Empty(listed)

	// Membership checks keep answering so history stays readable
	req.True(f.authority.IsMember(group.ID, "bob"))
	req.True(f.authority.IsOwner(group.ID, "alice"))

	_, err = f.authority.AddMember(ctx, group.ID, "bob")
	req.ErrorIs(err, errors.ErrGroupNotFound)
}

func TestAuthority_Listings(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	f := newFixture(t)
	f.registerUsers(t, "alice", "bob")

	devs, err := f.authority.CreateGroup(ctx, "devs", "", "alice", domain.VisibilityPublic, 5)
	req.NoError(err)
	_, err = f.authority.CreateGroup(ctx, "ops", "", "alice", domain.VisibilityPrivate, 5)
	req.NoError(err)
	_, err = f.authority.CreateGroup(ctx, "dev-null", "", "bob", domain.VisibilityPublic, 5)
	req.NoError(err)

	public, err := f.authority.PublicGroups()
	req.NoError(err)
	req.Len(public, 2)
	req.Equal("dev-null", public[0].Name, "sorted by name")
	req.Equal("devs", public[1].Name)

	mine, err := f.authority.GroupsForUser("alice")
	req.NoError(err)
	req.Len(mine, 2, "private groups included for their members")

	found, err := f.authority.SearchPublicGroups("DEV")
	req.NoError(err)
	req.Len(found, 2, "case-insensitive substring match")

	_, err = f.authority.AddMember(ctx, devs.ID, "bob")
	req.NoError(err)
	bobs, err := f.authority.GroupsForUser("bob")
	req.NoError(err)
	req.Len(bobs, 2)
}
