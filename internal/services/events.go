package services

// Server originated events pushed to live sessions.
const (
	EventStatusUploaded    = "status_uploaded"
	EventStatusViewed      = "status_viewed"
	EventStatusDeleted     = "status_deleted"
	EventStatusFeedRefresh = "status_feed_refresh"

	EventFriendRequestReceived  = "friend_request_received"
	EventFriendRequestAccepted  = "friend_request_accepted"
	EventFriendRequestDeclined  = "friend_request_declined"
	EventFriendRequestCancelled = "friend_request_cancelled"
	EventFriendRemoved          = "friend_removed"

	EventNewMessage      = "new_message"
	EventNewGroupMessage = "new_group_message"
	EventMessageDeleted  = "message_deleted"
	EventMessageReaction = "message_reaction"
	EventMessageStatus   = "message_status"

	EventGroupCreated        = "group_created"
	EventGroupUpdated        = "group_updated"
	EventGroupPictureUpdated = "group_picture_updated"
	EventGroupMemberAdded    = "group_member_added"
	EventGroupMemberRemoved  = "group_member_removed"
	EventGroupDeleted        = "group_deleted"

	EventProfilePictureUpdated = "profile_picture_updated"
	EventUserProfileUpdated    = "user_profile_updated"
)

// Notifier fans an event out to whichever of userIDs are connected, in the
// given order. Delivery is best effort: it never reports failure to callers.
type Notifier interface {
	NotifyUsers(userIDs []uint, event string, payload any)
}

// NopNotifier drops every event.
type NopNotifier struct{}

func (NopNotifier) NotifyUsers([]uint, string, any) {}

// payload is the body of an ad hoc event.
type payload = map[string]any
