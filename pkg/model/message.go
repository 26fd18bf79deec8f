package model

import (
	"encoding/json"
	"time"
)

// MessageFlagSuppressNotifications marks a message that should not notify.
const MessageFlagSuppressNotifications uint32 = 1

// Reactions maps an emoji id to the ordered set of reacting user ids.
type Reactions map[string][]string

// Has reports whether userID reacted with emojiID.
func (r Reactions) Has(emojiID, userID string) bool {
	return containsString(r[emojiID], userID)
}

// Add records a reaction and reports whether it was new.
func (r Reactions) Add(emojiID, userID string) bool {
	if r.Has(emojiID, userID) {
		return false
	}
	r[emojiID] = append(r[emojiID], userID)
	return true
}

// Remove drops a single reaction. The emoji key is kept even when its user
// set becomes empty.
func (r Reactions) Remove(emojiID, userID string) bool {
	users, ok := r[emojiID]
	if !ok || !containsString(users, userID) {
		return false
	}
	r[emojiID] = removeString(users, userID)
	return true
}

// RemoveEmoji drops every reaction with emojiID.
func (r Reactions) RemoveEmoji(emojiID string) bool {
	if _, ok := r[emojiID]; !ok {
		return false
	}
	delete(r, emojiID)
	return true
}

func (r Reactions) Clone() Reactions {
	out := make(Reactions, len(r))
	for emoji, users := range r {
		out[emoji] = cloneSlice(users)
	}
	return out
}

// MessageData is the wire shape of a message. User and Member carry the
// author for hydration and are not kept on the message.
type MessageData struct {
	ID           string          `json:"_id"`
	Nonce        *string         `json:"nonce,omitempty"`
	Channel      string          `json:"channel"`
	Author       string          `json:"author"`
	User         *UserData       `json:"user,omitempty"`
	Member       *MemberData     `json:"member,omitempty"`
	Webhook      json.RawMessage `json:"webhook,omitempty"`
	Content      *string         `json:"content,omitempty"`
	System       json.RawMessage `json:"system,omitempty"`
	Attachments  json.RawMessage `json:"attachments,omitempty"`
	Edited       *time.Time      `json:"edited,omitempty"`
	Embeds       []Embed         `json:"embeds,omitempty"`
	Mentions     []string        `json:"mentions,omitempty"`
	Replies      []string        `json:"replies,omitempty"`
	Reactions    Reactions       `json:"reactions,omitempty"`
	Interactions json.RawMessage `json:"interactions,omitempty"`
	Masquerade   json.RawMessage `json:"masquerade,omitempty"`
	Pinned       bool            `json:"pinned,omitempty"`
	Flags        uint32          `json:"flags,omitempty"`
}

// Embed is opaque embed metadata.
type Embed = json.RawMessage

// MessagePatch is a partial message update.
type MessagePatch struct {
	Content   Nullable[string]    `json:"content,omitzero"`
	Edited    Nullable[time.Time] `json:"edited,omitzero"`
	Embeds    Nullable[[]Embed]   `json:"embeds,omitzero"`
	Pinned    Nullable[bool]      `json:"pinned,omitzero"`
	Reactions Nullable[Reactions] `json:"reactions,omitzero"`
	Replies   Nullable[[]string]  `json:"replies,omitzero"`
}

type Message struct {
	ID          string
	ChannelID   string
	AuthorID    string
	Nonce       *string
	Webhook     json.RawMessage
	Content     *string
	System      json.RawMessage
	Attachments json.RawMessage
	Edited      *time.Time
	Embeds      []Embed
	MentionIDs  []string
	ReplyIDs    []string
	Reactions   Reactions
	Masquerade  json.RawMessage
	Pinned      bool
	Flags       uint32
}

func NewMessage(data MessageData) *Message {
	m := &Message{
		ID:          data.ID,
		ChannelID:   data.Channel,
		AuthorID:    data.Author,
		Nonce:       clonePtr(data.Nonce),
		Webhook:     cloneSlice(data.Webhook),
		System:      cloneSlice(data.System),
		Attachments: cloneSlice(data.Attachments),
		Edited:      clonePtr(data.Edited),
		Embeds:      cloneEmbeds(data.Embeds),
		MentionIDs:  cloneSlice(data.Mentions),
		ReplyIDs:    cloneSlice(data.Replies),
		Reactions:   data.Reactions.Clone(),
		Masquerade:  cloneSlice(data.Masquerade),
		Pinned:      data.Pinned,
		Flags:       data.Flags,
	}
	if data.Content != nil && *data.Content != "" {
		m.Content = clonePtr(data.Content)
	}
	return m
}

func cloneEmbeds(in []Embed) []Embed {
	if in == nil {
		return nil
	}
	out := make([]Embed, len(in))
	for i, e := range in {
		out[i] = cloneSlice(e)
	}
	return out
}

// Suppressed reports whether notifications are suppressed for the message.
func (m *Message) Suppressed() bool {
	return m.Flags&MessageFlagSuppressNotifications != 0
}

// Mentions reports whether userID is mentioned by the message.
func (m *Message) Mentions(userID string) bool {
	return containsString(m.MentionIDs, userID)
}

// Clone deep-copies the message.
func (m *Message) Clone() *Message {
	c := *m
	c.Nonce = clonePtr(m.Nonce)
	c.Webhook = cloneSlice(m.Webhook)
	c.Content = clonePtr(m.Content)
	c.System = cloneSlice(m.System)
	c.Attachments = cloneSlice(m.Attachments)
	c.Edited = clonePtr(m.Edited)
	c.Embeds = cloneEmbeds(m.Embeds)
	c.MentionIDs = cloneSlice(m.MentionIDs)
	c.ReplyIDs = cloneSlice(m.ReplyIDs)
	c.Reactions = m.Reactions.Clone()
	c.Masquerade = cloneSlice(m.Masquerade)
	return &c
}

// AppendEmbeds adds embeds after the existing ones.
func (m *Message) AppendEmbeds(embeds ...Embed) {
	m.Embeds = append(m.Embeds, cloneEmbeds(embeds)...)
}

// Update applies a partial update. Replies are only ever added. An explicit
// null edited timestamp is recorded as now.
func (m *Message) Update(p MessagePatch, now time.Time) {
	if p.Content.Present {
		m.Content = p.Content.Ptr()
	}
	if p.Embeds.Present {
		m.Embeds = cloneEmbeds(p.Embeds.Value)
	}
	if p.Edited.Present {
		t := now
		if p.Edited.Valid {
			t = p.Edited.Value
		}
		m.Edited = &t
	}
	if p.Pinned.Present {
		m.Pinned = p.Pinned.Value
	}
	if p.Reactions.Present {
		m.Reactions = p.Reactions.Value.Clone()
	}
	if p.Replies.Valid {
		for _, id := range p.Replies.Value {
			if !containsString(m.ReplyIDs, id) {
				m.ReplyIDs = append(m.ReplyIDs, id)
			}
		}
	}
}
