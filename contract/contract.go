//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"bananachat/domain"
	"context"
	"reflect"
	"time"
)

type ISupervisor interface {
	Add(worker ...Worker) ISupervisor
	Run(ctx context.Context)
	Start(ctx context.Context, worker Worker)
	Stop()
}

// Worker doesn't protect itself.
// Can be silly, focused.
type Worker interface {
	Run(ctx context.Context) error
}

// GetWorkerName uses reflection to retrieve the type name of the worker.
// Used for logging and supervision, avoiding manual naming in the interface.
func GetWorkerName(w Worker) string {
	if w == nil {
		return "NilWorker"
	}
	t := reflect.TypeOf(w)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}

// Broker publishes a routed event to a named destination. The routing engine
// is indifferent to whether delivery is in-process or relayed to an external
// broker over the wire.
type Broker interface {
	Publish(ctx context.Context, destination string, e domain.ChatEvent) error
}

// EventSink receives events delivered by the in-process broker binding.
type EventSink interface {
	Consume(ctx context.Context, destination string, e domain.ChatEvent) error
}

// IPresence is the registry of online identities plus the session→identity
// binding used for disconnect handling. All operations are idempotent and
// safe for concurrent use without external locking.
type IPresence interface {
	AddUser(username string)
	RemoveUser(username string)
	IsOnline(username string) bool
	ListOnline() []string
	Count() int

	BindSession(sessionID, username string)
	UnbindSession(sessionID string) (username string, bound bool)
	IdentityFor(sessionID string) (username string, bound bool)
}

// IMembership owns group existence and membership invariants.
type IMembership interface {
	CreateGroup(ctx context.Context, name, description, owner string, visibility domain.Visibility, maxMembers int) (domain.Group, error)
	AddMember(ctx context.Context, groupID domain.GroupID, username string) (domain.Group, error)
	RemoveMember(ctx context.Context, groupID domain.GroupID, username string) (domain.Group, error)
	UpdateGroup(ctx context.Context, groupID domain.GroupID, requester string, name, description *string, maxMembers *int) (domain.Group, error)
	DeactivateGroup(ctx context.Context, groupID domain.GroupID, requester string) error

	Group(groupID domain.GroupID) (domain.Group, error)
	IsMember(groupID domain.GroupID, username string) bool
	IsOwner(groupID domain.GroupID, username string) bool
	PublicGroups() ([]domain.Group, error)
	GroupsForUser(username string) ([]domain.Group, error)
	SearchPublicGroups(term string) ([]domain.Group, error)
}

// IEventLog is the durable, append-mostly store of chat events. Reads are
// ordered by event timestamp, ties broken by insertion order.
type IEventLog interface {
	Append(e domain.ChatEvent) (domain.ChatEvent, error)
	Get(id domain.EventID) (domain.ChatEvent, error)
	Update(e domain.ChatEvent) error
	Delete(id domain.EventID) error

	History() ([]domain.ChatEvent, error)
	Recent(page, size int) ([]domain.ChatEvent, error)
	PublicHistory() ([]domain.ChatEvent, error)
	PrivateHistory(user1, user2 string) ([]domain.ChatEvent, error)

	GroupHistory(groupID domain.GroupID) ([]domain.ChatEvent, error)
	RecentGroupMessages(groupID domain.GroupID, limit int) ([]domain.ChatEvent, error)
	GroupMessagesSince(groupID domain.GroupID, since time.Time) ([]domain.ChatEvent, error)
	SearchGroupMessages(groupID domain.GroupID, term string) ([]domain.ChatEvent, error)
	CountGroupMessages(groupID domain.GroupID) (int64, error)
}
