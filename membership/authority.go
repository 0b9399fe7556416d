// Package membership owns group entities, membership sets, and the
// join/leave/ownership rules. Mutations on a group are serialized through a
// per-group lock so the capacity invariant holds under concurrent joins;
// unrelated groups mutate concurrently.
package membership

import (
	"bananachat/broker"
	"bananachat/contract"
	"bananachat/domain"
	"bananachat/errors"
	"bananachat/repositories"
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
)

var _ contract.IMembership = (*Authority)(nil)

type Authority struct {
	groups repositories.IGroupStore
	users  repositories.IUserRepository
	broker contract.Broker
	log    *slog.Logger

	mu    sync.Mutex
	locks map[domain.GroupID]*sync.Mutex
}

func NewAuthority(groups repositories.IGroupStore, users repositories.IUserRepository,
	b contract.Broker, log *slog.Logger) *Authority {
	return &Authority{
		groups: groups,
		users:  users,
		broker: b,
		log:    log,
		locks:  make(map[domain.GroupID]*sync.Mutex),
	}
}

// lockFor hands out the mutex serializing mutations of one group.
func (a *Authority) lockFor(id domain.GroupID) *sync.Mutex {
	a.mu.Lock()
	defer a.mu.Unlock()
	l, ok := a.locks[id]
	if !ok {
		l = &sync.Mutex{}
		a.locks[id] = l
	}
	return l
}

func (a *Authority) CreateGroup(ctx context.Context, name, description, owner string,
	visibility domain.Visibility, maxMembers int) (domain.Group, error) {
	if strings.TrimSpace(name) == "" {
		return domain.Group{}, fmt.Errorf("%w: group name", errors.ErrInvalidArgument)
	}
	ownerRecord, err := a.users.Get(owner)
	if err != nil {
		return domain.Group{}, err
	}
	if !ownerRecord.Active {
		return domain.Group{}, errors.ErrUserDeactivated
	}

	group, err := a.groups.Create(domain.NewGroup(strings.TrimSpace(name), strings.TrimSpace(description), owner, visibility, maxMembers))
	if err != nil {
		return domain.Group{}, err
	}

	a.log.Info("Group created", "group", group.Name, "id", group.ID, "owner", owner)
	a.notify(ctx, domain.KindGroupCreated, group, owner)
	return group, nil
}

func (a *Authority) AddMember(ctx context.Context, groupID domain.GroupID, username string) (domain.Group, error) {
	if _, err := a.users.Get(username); err != nil {
		return domain.Group{}, err
	}

	lock := a.lockFor(groupID)
	lock.Lock()
	defer lock.Unlock()

	group, err := a.activeGroup(groupID)
	if err != nil {
		return domain.Group{}, err
	}
	if group.IsMember(username) {
		return domain.Group{}, errors.ErrAlreadyMember
	}
	if !group.CanJoin() {
		return domain.Group{}, errors.ErrGroupFull
	}

	group.AddMember(username)
	if err := a.groups.Update(group, group.Name); err != nil {
		return domain.Group{}, err
	}

	a.log.Info("Member added", "group", group.Name, "user", username)
	a.notify(ctx, domain.KindMemberAdded, group, username)
	return group.Clone(), nil
}

func (a *Authority) RemoveMember(ctx context.Context, groupID domain.GroupID, username string) (domain.Group, error) {
	lock := a.lockFor(groupID)
	lock.Lock()
	defer lock.Unlock()

	group, err := a.activeGroup(groupID)
	if err != nil {
		return domain.Group{}, err
	}
	if !group.IsMember(username) {
		return domain.Group{}, errors.ErrNotMember
	}
	if group.IsOwner(username) {
		return domain.Group{}, errors.ErrOwnerCannotLeave
	}

	group.RemoveMember(username)
	if err := a.groups.Update(group, group.Name); err != nil {
		return domain.Group{}, err
	}

	a.log.Info("Member removed", "group", group.Name, "user", username)
	a.notify(ctx, domain.KindMemberRemoved, group, username)
	return group.Clone(), nil
}

func (a *Authority) UpdateGroup(ctx context.Context, groupID domain.GroupID, requester string,
	name, description *string, maxMembers *int) (domain.Group, error) {
	lock := a.lockFor(groupID)
	lock.Lock()
	defer lock.Unlock()

	group, err := a.activeGroup(groupID)
	if err != nil {
		return domain.Group{}, err
	}
	if !group.IsOwner(requester) {
		return domain.Group{}, errors.ErrForbidden
	}

	previousName := group.Name
	if name != nil && strings.TrimSpace(*name) != "" {
		group.Name = strings.TrimSpace(*name)
	}
	if description != nil {
		group.Description = strings.TrimSpace(*description)
	}
	if maxMembers != nil && *maxMembers > 0 {
		if *maxMembers < group.MemberCount() {
			return domain.Group{}, errors.ErrCapacityBelowMembers
		}
		group.MaxMembers = *maxMembers
	}

	if err := a.groups.Update(group, previousName); err != nil {
		return domain.Group{}, err
	}

	a.log.Info("Group updated", "group", group.Name, "id", group.ID)
	a.notify(ctx, domain.KindGroupUpdated, group, requester)
	return group.Clone(), nil
}

// DeactivateGroup soft-deletes: history stays queryable, but the group
// rejects all further mutation, routing, and listing.
func (a *Authority) DeactivateGroup(ctx context.Context, groupID domain.GroupID, requester string) error {
	lock := a.lockFor(groupID)
	lock.Lock()
	defer lock.Unlock()

	group, err := a.activeGroup(groupID)
	if err != nil {
		return err
	}
	if !group.IsOwner(requester) {
		return errors.ErrForbidden
	}

	group.Active = false
	if err := a.groups.Update(group, group.Name); err != nil {
		return err
	}

	a.log.Info("Group deactivated", "group", group.Name, "id", group.ID)
	return nil
}

// Group returns an active group snapshot.
func (a *Authority) Group(groupID domain.GroupID) (domain.Group, error) {
	group, err := a.activeGroup(groupID)
	if err != nil {
		return domain.Group{}, err
	}
	return group.Clone(), nil
}

// IsMember consults the raw record, deactivated groups included, so history
// and deletion stay available to members after deactivation. Routing still
// resolves the group through Group and rejects deactivated ones there.
func (a *Authority) IsMember(groupID domain.GroupID, username string) bool {
	group, err := a.groups.Get(groupID)
	if err != nil {
		return false
	}
	return group.IsMember(username)
}

func (a *Authority) IsOwner(groupID domain.GroupID, username string) bool {
	group, err := a.groups.Get(groupID)
	if err != nil {
		return false
	}
	return group.IsOwner(username)
}

func (a *Authority) PublicGroups() ([]domain.Group, error) {
	return a.list(func(g domain.Group) bool {
		return g.Visibility == domain.VisibilityPublic
	})
}

func (a *Authority) GroupsForUser(username string) ([]domain.Group, error) {
	return a.list(func(g domain.Group) bool {
		return g.IsMember(username)
	})
}

// SearchPublicGroups matches active public groups by case-insensitive name
// substring.
func (a *Authority) SearchPublicGroups(term string) ([]domain.Group, error) {
	term = strings.ToLower(term)
	return a.list(func(g domain.Group) bool {
		return g.Visibility == domain.VisibilityPublic &&
			strings.Contains(strings.ToLower(g.Name), term)
	})
}

// list projects active groups matching keep, sorted by name.
func (a *Authority) list(keep func(domain.Group) bool) ([]domain.Group, error) {
	all, err := a.groups.All()
	if err != nil {
		return nil, err
	}
	var groups []domain.Group
	for _, g := range all {
		if g.Active && keep(g) {
			groups = append(groups, g.Clone())
		}
	}
	sort.Slice(groups, func(i, j int) bool {
		return groups[i].Name < groups[j].Name
	})
	return groups, nil
}

func (a *Authority) activeGroup(groupID domain.GroupID) (domain.Group, error) {
	group, err := a.groups.Get(groupID)
	if err != nil {
		return domain.Group{}, err
	}
	if !group.Active {
		return domain.Group{}, errors.ErrGroupNotFound
	}
	return group, nil
}

// notify publishes a tagged lifecycle action to the fixed groups-update
// topic. Delivery is best-effort: a broker failure never fails the mutation.
func (a *Authority) notify(ctx context.Context, kind domain.EventKind, group domain.Group, subject string) {
	e := domain.ChatEvent{
		Kind:    kind,
		Sender:  subject,
		Content: group.Name,
		GroupID: group.ID,
	}
	if err := a.broker.Publish(ctx, broker.TopicGroupsUpdate, e); err != nil {
		a.log.Error("Group lifecycle notification failed", "kind", kind, "group", group.ID, "error", err)
	}
}
