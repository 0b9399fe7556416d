package broker

import (
	"context"
	"log/slog"

	"bananachat/domain"

	json "github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
)

// InboundChannel is where external transport edges (websocket gateways,
// STOMP bridges) publish client frames for routing.
const InboundChannel = "bananachat:inbound"

// Frame is the wire envelope for an inbound client event.
type Frame struct {
	Op        string         `json:"op"`
	SessionID string         `json:"sessionId,omitempty"`
	Sender    string         `json:"sender,omitempty"`
	Recipient string         `json:"recipient,omitempty"`
	GroupID   domain.GroupID `json:"groupId,omitempty"`
	Content   string         `json:"content,omitempty"`
}

// Frame operations understood by the inbound worker.
const (
	OpPublic     = "public"
	OpAddUser    = "addUser"
	OpPrivate    = "private"
	OpGroup      = "group"
	OpJoinGroup  = "joinGroup"
	OpLeaveGroup = "leaveGroup"
	OpDisconnect = "disconnect"
)

// Dispatcher is the routing surface the inbound worker drives.
type Dispatcher interface {
	SendPublicMessage(ctx context.Context, sender, content string) (domain.ChatEvent, error)
	AddUser(ctx context.Context, sessionID, username string) (domain.ChatEvent, error)
	SendPrivateMessage(ctx context.Context, sender, recipient, content string) (domain.ChatEvent, error)
	SendGroupMessage(ctx context.Context, sender string, groupID domain.GroupID, content string) (domain.ChatEvent, error)
	JoinGroup(ctx context.Context, sender string, groupID domain.GroupID) (domain.ChatEvent, error)
	LeaveGroup(ctx context.Context, sender string, groupID domain.GroupID) (domain.ChatEvent, error)
	Disconnect(ctx context.Context, sessionID string) (domain.ChatEvent, error)
}

// InboundWorker consumes client frames from the relay channel and drives the
// routing dispatcher. It runs under supervision: a dropped connection or a
// panic gets the worker restarted with a fresh subscription.
type InboundWorker struct {
	client     *redis.Client
	dispatcher Dispatcher
	log        *slog.Logger
}

func NewInboundWorker(client *redis.Client, dispatcher Dispatcher, log *slog.Logger) *InboundWorker {
	return &InboundWorker{client: client, dispatcher: dispatcher, log: log}
}

func (w *InboundWorker) Run(ctx context.Context) error {
	sub := w.client.Subscribe(ctx, InboundChannel)
	defer func() { _ = sub.Close() }()

	w.log.Info("Consuming inbound frames", "channel", InboundChannel)
	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return redis.ErrClosed
			}
			w.handle(ctx, []byte(msg.Payload))
		}
	}
}

// handle never fails the worker: malformed or rejected frames are logged and
// dropped, matching the no-acknowledgment-channel posture of the fan-out.
func (w *InboundWorker) handle(ctx context.Context, payload []byte) {
	var frame Frame
	if err := json.Unmarshal(payload, &frame); err != nil {
		w.log.Warn("Dropping malformed inbound frame", "error", err)
		return
	}

	var err error
	switch frame.Op {
	case OpPublic:
		_, err = w.dispatcher.SendPublicMessage(ctx, frame.Sender, frame.Content)
	case OpAddUser:
		_, err = w.dispatcher.AddUser(ctx, frame.SessionID, frame.Sender)
	case OpPrivate:
		_, err = w.dispatcher.SendPrivateMessage(ctx, frame.Sender, frame.Recipient, frame.Content)
	case OpGroup:
		_, err = w.dispatcher.SendGroupMessage(ctx, frame.Sender, frame.GroupID, frame.Content)
	case OpJoinGroup:
		_, err = w.dispatcher.JoinGroup(ctx, frame.Sender, frame.GroupID)
	case OpLeaveGroup:
		_, err = w.dispatcher.LeaveGroup(ctx, frame.Sender, frame.GroupID)
	case OpDisconnect:
		_, err = w.dispatcher.Disconnect(ctx, frame.SessionID)
	default:
		w.log.Warn("Dropping inbound frame with unknown op", "op", frame.Op)
		return
	}
	if err != nil {
		w.log.Warn("Inbound frame rejected", "op", frame.Op, "sender", frame.Sender, "error", err)
	}
}
