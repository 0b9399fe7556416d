package domain

import (
	"time"
)

type GroupID int64

type Visibility string

const (
	VisibilityPublic     Visibility = "PUBLIC"
	VisibilityPrivate    Visibility = "PRIVATE"
	VisibilityRestricted Visibility = "RESTRICTED"
)

// DefaultMaxMembers applies when a group is created without an explicit limit.
const DefaultMaxMembers = 100

// Group owns its member set. The owner is always a member and cannot be
// removed without an ownership transfer. |Members| never exceeds MaxMembers.
type Group struct {
	ID          GroupID             `json:"id"`
	Name        string              `json:"name"`
	Description string              `json:"description"`
	Visibility  Visibility          `json:"visibility"`
	MaxMembers  int                 `json:"maxMembers"`
	Active      bool                `json:"active"`
	Owner       string              `json:"owner"`
	Members     map[string]struct{} `json:"members"`
	CreatedAt   time.Time           `json:"createdAt"`
	UpdatedAt   time.Time           `json:"updatedAt"`
}

func NewGroup(name, description, owner string, visibility Visibility, maxMembers int) Group {
	if maxMembers <= 0 {
		maxMembers = DefaultMaxMembers
	}
	now := time.Now().UTC()
	return Group{
		Name:        name,
		Description: description,
		Visibility:  visibility,
		MaxMembers:  maxMembers,
		Active:      true,
		Owner:       owner,
		Members:     map[string]struct{}{owner: {}},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func (g Group) IsMember(username string) bool {
	_, ok := g.Members[username]
	return ok
}

func (g Group) IsOwner(username string) bool {
	return g.Owner == username
}

func (g Group) MemberCount() int {
	return len(g.Members)
}

// CanJoin reports whether the group accepts one more member.
func (g Group) CanJoin() bool {
	return g.Active && len(g.Members) < g.MaxMembers
}

func (g *Group) AddMember(username string) {
	if g.Members == nil {
		g.Members = make(map[string]struct{})
	}
	g.Members[username] = struct{}{}
	g.UpdatedAt = time.Now().UTC()
}

func (g *Group) RemoveMember(username string) {
	delete(g.Members, username)
	g.UpdatedAt = time.Now().UTC()
}

// Clone returns a deep copy so callers never share the live member set.
func (g Group) Clone() Group {
	members := make(map[string]struct{}, len(g.Members))
	for m := range g.Members {
		members[m] = struct{}{}
	}
	g.Members = members
	return g
}
