package events

// ChannelResolver determines which Redis channels a relay event goes to
type ChannelResolver interface {
	ResolveChannels(event Event) []string
}

// RoomChannelResolver routes chat-scoped events to the room channel and
// everything else to nothing.
type RoomChannelResolver struct{}

func NewRoomChannelResolver() *RoomChannelResolver {
	return &RoomChannelResolver{}
}

func (r *RoomChannelResolver) ResolveChannels(event Event) []string {
	switch event.Type {
	case TypeMessage, TypeMessageDeleted, TypeReactionUpdated,
		TypeChatBlocked, TypeChatUnblocked, TypeMessagesSeen, TypeMessageDelivered:
		if event.ChatID == "" {
			return nil
		}
		return []string{ChannelPrefixChat + event.ChatID}
	}
	return nil
}

// RoomFromChannel is the inverse of the room channel naming.
func RoomFromChannel(channel string) (string, bool) {
	if len(channel) <= len(ChannelPrefixChat) || channel[:len(ChannelPrefixChat)] != ChannelPrefixChat {
		return "", false
	}
	return channel[len(ChannelPrefixChat):], true
}
