// Package broker provides the publish side of event delivery and the
// destination naming shared with reconnecting clients. Names are derived
// solely from the recipient or group id so a client can resubscribe
// deterministically.
package broker

import (
	"bananachat/domain"
	"fmt"
)

const (
	// TopicPublic carries the public room: broadcast chat, joins, leaves.
	TopicPublic = "/topic/public"
	// TopicGroupsUpdate carries tagged group lifecycle actions.
	TopicGroupsUpdate = "/topic/groups.update"
)

// PrivateQueue is the point-to-point destination of one recipient identity.
func PrivateQueue(username string) string {
	return "/queue/private." + username
}

// GroupTopic is the broadcast destination of one group.
func GroupTopic(id domain.GroupID) string {
	return fmt.Sprintf("/topic/group.%d", id)
}
