// Package domain contains core concepts of the chat system.
// This file defines ChatEvent records and related rules.
// Events are stamped by the server and validated by the domain.
package domain

import (
	"time"
)

// EventID is assigned by the durable log in insertion order.
type EventID uint64

type EventKind string

const (
	KindChat          EventKind = "CHAT"
	KindJoin          EventKind = "JOIN"
	KindLeave         EventKind = "LEAVE"
	KindGroupCreated  EventKind = "GROUP_CREATED"
	KindGroupUpdated  EventKind = "GROUP_UPDATED"
	KindMemberAdded   EventKind = "MEMBER_ADDED"
	KindMemberRemoved EventKind = "MEMBER_REMOVED"
	KindSystem        EventKind = "SYSTEM"
)

// ChatEvent is the single record shape for every routed chat event.
// Recipient is set only for private messages, GroupID only for group-scoped
// ones. Sender and Timestamp are immutable after creation; only Content,
// Edited and EditedAt may change, through the edit path.
type ChatEvent struct {
	ID        EventID    `json:"id"`
	Kind      EventKind  `json:"kind"`
	Sender    string     `json:"sender"`
	Content   string     `json:"content"`
	Recipient string     `json:"recipient,omitempty"`
	GroupID   GroupID    `json:"groupId,omitempty"`
	Timestamp time.Time  `json:"timestamp"`
	Edited    bool       `json:"edited,omitempty"`
	EditedAt  *time.Time `json:"editedAt,omitempty"`
}

func (e ChatEvent) IsPrivate() bool {
	return e.Recipient != ""
}

func (e ChatEvent) IsGroupScoped() bool {
	return e.GroupID != 0
}
