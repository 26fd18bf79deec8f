package model

// UnreadKey identifies an unread entry on the wire.
type UnreadKey struct {
	Channel string `json:"channel"`
	User    string `json:"user"`
}

// UnreadData is one element of the unread sync response.
type UnreadData struct {
	ID       UnreadKey `json:"_id"`
	LastID   *string   `json:"last_id,omitempty"`
	Mentions []string  `json:"mentions,omitempty"`
}

// ChannelUnread tracks read state for one channel.
type ChannelUnread struct {
	ChannelID     string
	LastMessageID *string
	MentionIDs    []string
}

func NewChannelUnread(data UnreadData) *ChannelUnread {
	return &ChannelUnread{
		ChannelID:     data.ID.Channel,
		LastMessageID: clonePtr(data.LastID),
		MentionIDs:    cloneSlice(data.Mentions),
	}
}

// MarkRead moves the read pointer to lastID and drops every mention.
func (u *ChannelUnread) MarkRead(lastID string) {
	if lastID != "" {
		u.LastMessageID = &lastID
	}
	u.MentionIDs = nil
}

// Behind reports whether a channel whose latest message is lastMessageID has
// messages past the read pointer. Ids are ULIDs, so string order is time order.
func (u *ChannelUnread) Behind(lastMessageID string) bool {
	read := "0"
	if u != nil && u.LastMessageID != nil {
		read = *u.LastMessageID
	}
	return read < lastMessageID
}

func (u *ChannelUnread) Clone() *ChannelUnread {
	return &ChannelUnread{
		ChannelID:     u.ChannelID,
		LastMessageID: clonePtr(u.LastMessageID),
		MentionIDs:    cloneSlice(u.MentionIDs),
	}
}
