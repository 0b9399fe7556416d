// Package routing is the behavioral core: a stateless validator/dispatcher
// invoked once per inbound client event. Every accepted event is stamped
// with the server clock, durably appended, and only then fanned out —
// a history query issued right after delivery always includes the event.
package routing

import (
	"bananachat/broker"
	"bananachat/contract"
	"bananachat/domain"
	"bananachat/errors"
	"bananachat/moderation"
	"bananachat/repositories"
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// Engine holds no authoritative state: membership and presence are read from
// their owning components per event, persisted events are handed off to the
// durable log and never retained.
type Engine struct {
	presence   contract.IPresence
	membership contract.IMembership
	events     contract.IEventLog
	broker     contract.Broker
	users      repositories.IUserRepository
	index      *repositories.MessageIndex // optional
	filter     *moderation.Filter         // optional
	log        *slog.Logger
	maxContent int
}

func NewEngine(
	presence contract.IPresence,
	membership contract.IMembership,
	events contract.IEventLog,
	b contract.Broker,
	users repositories.IUserRepository,
	index *repositories.MessageIndex,
	filter *moderation.Filter,
	log *slog.Logger,
	maxContentLength int,
) *Engine {
	return &Engine{
		presence:   presence,
		membership: membership,
		events:     events,
		broker:     b,
		users:      users,
		index:      index,
		filter:     filter,
		log:        log,
		maxContent: maxContentLength,
	}
}

// SendPublicMessage routes a broadcast chat message. No membership check.
func (e *Engine) SendPublicMessage(ctx context.Context, sender, content string) (domain.ChatEvent, error) {
	content, err := e.acceptContent(content)
	if err != nil {
		return domain.ChatEvent{}, err
	}

	event := domain.ChatEvent{
		Kind:      domain.KindChat,
		Sender:    sender,
		Content:   content,
		Timestamp: time.Now().UTC(),
	}
	return e.persistAndPublish(ctx, event, broker.TopicPublic)
}

// AddUser handles a join of the public room: the identity is bound to the
// originating session for later disconnect handling, marked online, and the
// join is recorded and broadcast.
func (e *Engine) AddUser(ctx context.Context, sessionID, username string) (domain.ChatEvent, error) {
	if strings.TrimSpace(username) == "" {
		return domain.ChatEvent{}, fmt.Errorf("%w: username", errors.ErrInvalidArgument)
	}

	e.presence.BindSession(sessionID, username)
	e.presence.AddUser(username)
	e.markOnline(username, true)

	event := domain.ChatEvent{
		Kind:      domain.KindJoin,
		Sender:    username,
		Content:   username + " joined the chat",
		Timestamp: time.Now().UTC(),
	}
	return e.persistAndPublish(ctx, event, broker.TopicPublic)
}

// SendPrivateMessage routes a point-to-point message. It is delivered to the
// recipient's queue and to the sender's own queue, so the sender's other
// connected clients see the outbound message too.
func (e *Engine) SendPrivateMessage(ctx context.Context, sender, recipient, content string) (domain.ChatEvent, error) {
	if recipient == "" {
		return domain.ChatEvent{}, errors.ErrMissingRecipient
	}
	content, err := e.acceptContent(content)
	if err != nil {
		return domain.ChatEvent{}, err
	}

	event := domain.ChatEvent{
		Kind:      domain.KindChat,
		Sender:    sender,
		Content:   content,
		Recipient: recipient,
		Timestamp: time.Now().UTC(),
	}
	persisted, err := e.persist(event)
	if err != nil {
		return domain.ChatEvent{}, err
	}

	e.publish(ctx, broker.PrivateQueue(recipient), persisted)
	e.publish(ctx, broker.PrivateQueue(sender), persisted)
	return persisted, nil
}

// SendGroupMessage routes a group-scoped chat message. Validation failures
// come from stale or malicious clients and are dropped with a warning —
// the broker has no per-message acknowledgment channel back to the origin.
func (e *Engine) SendGroupMessage(ctx context.Context, sender string, groupID domain.GroupID, content string) (domain.ChatEvent, error) {
	content, err := e.acceptContent(content)
	if err != nil {
		return domain.ChatEvent{}, err
	}
	if !e.allowGroupEvent(sender, groupID) {
		return domain.ChatEvent{}, nil
	}

	event := domain.ChatEvent{
		Kind:      domain.KindChat,
		Sender:    sender,
		Content:   content,
		GroupID:   groupID,
		Timestamp: time.Now().UTC(),
	}
	return e.persistAndPublish(ctx, event, broker.GroupTopic(groupID))
}

// JoinGroup is a presence announcement, not a membership mutation:
// membership must already exist through the add-member API.
func (e *Engine) JoinGroup(ctx context.Context, sender string, groupID domain.GroupID) (domain.ChatEvent, error) {
	if !e.allowGroupEvent(sender, groupID) {
		return domain.ChatEvent{}, nil
	}

	e.presence.AddUser(sender)
	e.markOnline(sender, true)

	event := domain.ChatEvent{
		Kind:      domain.KindJoin,
		Sender:    sender,
		Content:   sender + " joined the group",
		GroupID:   groupID,
		Timestamp: time.Now().UTC(),
	}
	return e.persistAndPublish(ctx, event, broker.GroupTopic(groupID))
}

// LeaveGroup records and announces the departure. It does not touch
// membership: removal is the separate remove-member API.
func (e *Engine) LeaveGroup(ctx context.Context, sender string, groupID domain.GroupID) (domain.ChatEvent, error) {
	event := domain.ChatEvent{
		Kind:      domain.KindLeave,
		Sender:    sender,
		Content:   sender + " left the group",
		GroupID:   groupID,
		Timestamp: time.Now().UTC(),
	}
	return e.persistAndPublish(ctx, event, broker.GroupTopic(groupID))
}

// Disconnect is the session-end signal from the transport. If the session
// carries a bound identity the departure is recorded and broadcast.
func (e *Engine) Disconnect(ctx context.Context, sessionID string) (domain.ChatEvent, error) {
	username, bound := e.presence.UnbindSession(sessionID)
	if !bound {
		return domain.ChatEvent{}, nil
	}

	e.presence.RemoveUser(username)
	e.markOnline(username, false)

	event := domain.ChatEvent{
		Kind:      domain.KindLeave,
		Sender:    username,
		Content:   username + " left the chat",
		Timestamp: time.Now().UTC(),
	}
	return e.persistAndPublish(ctx, event, broker.TopicPublic)
}

// EditMessage mutates the single permitted fields of a CHAT event: content,
// edited flag, edit time. Only the original sender may edit.
func (e *Engine) EditMessage(ctx context.Context, id domain.EventID, newContent, editor string) (domain.ChatEvent, error) {
	event, err := e.events.Get(id)
	if err != nil {
		return domain.ChatEvent{}, err
	}
	if event.Kind != domain.KindChat || event.Sender != editor {
		return domain.ChatEvent{}, errors.ErrForbidden
	}
	newContent, err = e.acceptContent(newContent)
	if err != nil {
		return domain.ChatEvent{}, err
	}

	now := time.Now().UTC()
	event.Content = newContent
	event.Edited = true
	event.EditedAt = &now

	if err := e.events.Update(event); err != nil {
		return domain.ChatEvent{}, err
	}
	e.reindex(event)
	return event, nil
}

// DeleteMessage removes an event. Allowed for the sender, or for the owner
// of the group the message belongs to.
func (e *Engine) DeleteMessage(ctx context.Context, id domain.EventID, requester string) error {
	event, err := e.events.Get(id)
	if err != nil {
		return err
	}

	allowed := event.Sender == requester ||
		(event.IsGroupScoped() && e.membership.IsOwner(event.GroupID, requester))
	if !allowed {
		return errors.ErrForbidden
	}

	if err := e.events.Delete(id); err != nil {
		return err
	}
	if e.index != nil {
		if err := e.index.Remove(id); err != nil {
			e.log.Warn("Index removal failed", "id", id, "error", err)
		}
	}
	return nil
}

// allowGroupEvent runs the sender/group/membership gauntlet shared by the
// group-scoped inbound paths.
func (e *Engine) allowGroupEvent(sender string, groupID domain.GroupID) bool {
	if _, err := e.users.Get(sender); err != nil {
		e.log.Warn("Dropping group event: unknown sender", "sender", sender, "group", groupID)
		return false
	}
	if _, err := e.membership.Group(groupID); err != nil {
		e.log.Warn("Dropping group event: group not found", "sender", sender, "group", groupID)
		return false
	}
	if !e.membership.IsMember(groupID, sender) {
		e.log.Warn("Dropping group event: sender is not a member", "sender", sender, "group", groupID)
		return false
	}
	return true
}

// acceptContent enforces the length bound and runs the optional censor pass.
func (e *Engine) acceptContent(content string) (string, error) {
	if strings.TrimSpace(content) == "" {
		return "", errors.ErrEmptyContent
	}
	if e.maxContent > 0 && len([]rune(content)) > e.maxContent {
		return "", errors.ErrContentTooLong
	}
	if e.filter != nil {
		censored, changed := e.filter.Apply(content)
		if changed {
			e.log.Debug("Message content censored")
		}
		content = censored
	}
	return content, nil
}

func (e *Engine) persist(event domain.ChatEvent) (domain.ChatEvent, error) {
	persisted, err := e.events.Append(event)
	if err != nil {
		// At-most-once: the event is not retried and not delivered.
		e.log.Error("Persisting event failed, dropping", "kind", event.Kind, "sender", event.Sender, "error", err)
		return domain.ChatEvent{}, err
	}
	e.reindex(persisted)
	return persisted, nil
}

func (e *Engine) persistAndPublish(ctx context.Context, event domain.ChatEvent, destination string) (domain.ChatEvent, error) {
	persisted, err := e.persist(event)
	if err != nil {
		return domain.ChatEvent{}, err
	}
	e.publish(ctx, destination, persisted)
	return persisted, nil
}

func (e *Engine) publish(ctx context.Context, destination string, event domain.ChatEvent) {
	if err := e.broker.Publish(ctx, destination, event); err != nil {
		e.log.Error("Publish failed", "destination", destination, "error", err)
	}
}

func (e *Engine) reindex(event domain.ChatEvent) {
	if e.index == nil || event.Kind != domain.KindChat {
		return
	}
	if err := e.index.Index(event); err != nil {
		e.log.Warn("Indexing event failed", "id", event.ID, "error", err)
	}
}

// markOnline writes the presence transition through to the identity store.
// Unregistered public-room visitors simply have nothing to update.
func (e *Engine) markOnline(username string, online bool) {
	if err := e.users.SetOnline(username, online); err != nil {
		e.log.Debug("Online flag not persisted", "user", username, "error", err)
	}
}
