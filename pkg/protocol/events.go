// Package protocol defines the JSON frames of version 1 of the event stream.
package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/Gopher0727/chatsync/pkg/model"
)

// EventType is the "type" tag of a server frame.
type EventType string

const (
	TypeError                 EventType = "Error"
	TypeBulk                  EventType = "Bulk"
	TypeAuthenticated         EventType = "Authenticated"
	TypeReady                 EventType = "Ready"
	TypePing                  EventType = "Ping"
	TypePong                  EventType = "Pong"
	TypeMessage               EventType = "Message"
	TypeMessageUpdate         EventType = "MessageUpdate"
	TypeMessageAppend         EventType = "MessageAppend"
	TypeMessageDelete         EventType = "MessageDelete"
	TypeMessageReact          EventType = "MessageReact"
	TypeMessageUnreact        EventType = "MessageUnreact"
	TypeMessageRemoveReaction EventType = "MessageRemoveReaction"
	TypeBulkMessageDelete     EventType = "BulkMessageDelete"
	TypeChannelCreate         EventType = "ChannelCreate"
	TypeChannelUpdate         EventType = "ChannelUpdate"
	TypeChannelDelete         EventType = "ChannelDelete"
	TypeChannelGroupJoin      EventType = "ChannelGroupJoin"
	TypeChannelGroupLeave     EventType = "ChannelGroupLeave"
	TypeChannelStartTyping    EventType = "ChannelStartTyping"
	TypeChannelStopTyping     EventType = "ChannelStopTyping"
	TypeChannelAck            EventType = "ChannelAck"
	TypeServerCreate          EventType = "ServerCreate"
	TypeServerUpdate          EventType = "ServerUpdate"
	TypeServerDelete          EventType = "ServerDelete"
	TypeServerMemberUpdate    EventType = "ServerMemberUpdate"
	TypeServerMemberJoin      EventType = "ServerMemberJoin"
	TypeServerMemberLeave     EventType = "ServerMemberLeave"
	TypeServerRoleUpdate      EventType = "ServerRoleUpdate"
	TypeServerRoleDelete      EventType = "ServerRoleDelete"
	TypeUserUpdate            EventType = "UserUpdate"
	TypeUserRelationship      EventType = "UserRelationship"
	TypeUserPresence          EventType = "UserPresence"
	TypeUserSettingsUpdate    EventType = "UserSettingsUpdate"
	TypeUserPlatformWipe      EventType = "UserPlatformWipe"
	TypeEmojiCreate           EventType = "EmojiCreate"
	TypeEmojiDelete           EventType = "EmojiDelete"
	TypeAuth                  EventType = "Auth"
)

// Event is a decoded server frame.
type Event interface {
	Type() EventType
}

type ErrorEvent struct {
	Data json.RawMessage `json:"data"`
}

// BulkEvent carries several frames that must be processed in order.
type BulkEvent struct {
	V      []json.RawMessage `json:"v"`
	Events []Event           `json:"-"`
}

type AuthenticatedEvent struct{}

type ReadyEvent struct {
	Users    []model.UserData    `json:"users"`
	Servers  []model.ServerData  `json:"servers"`
	Channels []model.ChannelData `json:"channels"`
	Members  []model.MemberData  `json:"members"`
	Emojis   []model.EmojiData   `json:"emojis"`
}

type PingEvent struct {
	Data int64 `json:"data"`
}

type PongEvent struct {
	Data int64 `json:"data"`
}

type MessageEvent struct {
	model.MessageData
}

type MessageUpdateEvent struct {
	ID      string             `json:"id"`
	Channel string             `json:"channel"`
	Data    model.MessagePatch `json:"data"`
}

type MessageAppendEvent struct {
	ID      string `json:"id"`
	Channel string `json:"channel"`
	Append  struct {
		Embeds []model.Embed `json:"embeds,omitempty"`
	} `json:"append"`
}

type MessageDeleteEvent struct {
	ID      string `json:"id"`
	Channel string `json:"channel"`
}

type MessageReactEvent struct {
	ID        string `json:"id"`
	ChannelID string `json:"channel_id"`
	UserID    string `json:"user_id"`
	EmojiID   string `json:"emoji_id"`
}

type MessageUnreactEvent struct {
	ID        string `json:"id"`
	ChannelID string `json:"channel_id"`
	UserID    string `json:"user_id"`
	EmojiID   string `json:"emoji_id"`
}

type MessageRemoveReactionEvent struct {
	ID        string `json:"id"`
	ChannelID string `json:"channel_id"`
	EmojiID   string `json:"emoji_id"`
}

type BulkMessageDeleteEvent struct {
	Channel string   `json:"channel"`
	IDs     []string `json:"ids"`
}

type ChannelCreateEvent struct {
	model.ChannelData
}

type ChannelUpdateEvent struct {
	ID    string               `json:"id"`
	Data  model.ChannelPatch   `json:"data"`
	Clear []model.ChannelField `json:"clear,omitempty"`
}

type ChannelDeleteEvent struct {
	ID string `json:"id"`
}

type ChannelGroupJoinEvent struct {
	ID   string `json:"id"`
	User string `json:"user"`
}

type ChannelGroupLeaveEvent struct {
	ID   string `json:"id"`
	User string `json:"user"`
}

type ChannelStartTypingEvent struct {
	ID   string `json:"id"`
	User string `json:"user"`
}

type ChannelStopTypingEvent struct {
	ID   string `json:"id"`
	User string `json:"user"`
}

type ChannelAckEvent struct {
	ID        string `json:"id"`
	User      string `json:"user"`
	MessageID string `json:"message_id"`
}

type ServerCreateEvent struct {
	ID       string              `json:"id"`
	Server   model.ServerData    `json:"server"`
	Channels []model.ChannelData `json:"channels"`
}

type ServerUpdateEvent struct {
	ID    string              `json:"id"`
	Data  model.ServerPatch   `json:"data"`
	Clear []model.ServerField `json:"clear,omitempty"`
}

type ServerDeleteEvent struct {
	ID string `json:"id"`
}

type ServerMemberUpdateEvent struct {
	ID    model.MemberKey     `json:"id"`
	Data  model.MemberPatch   `json:"data"`
	Clear []model.MemberField `json:"clear,omitempty"`
}

type ServerMemberJoinEvent struct {
	ID   string `json:"id"`
	User string `json:"user"`
}

type ServerMemberLeaveEvent struct {
	ID   string `json:"id"`
	User string `json:"user"`
}

type ServerRoleUpdateEvent struct {
	ID     string          `json:"id"`
	RoleID string          `json:"role_id"`
	Data   model.RolePatch `json:"data"`
}

type ServerRoleDeleteEvent struct {
	ID     string `json:"id"`
	RoleID string `json:"role_id"`
}

type UserUpdateEvent struct {
	ID    string            `json:"id"`
	Data  model.UserPatch   `json:"data"`
	Clear []model.UserField `json:"clear,omitempty"`
}

type UserRelationshipEvent struct {
	User   model.UserData     `json:"user"`
	Status model.Relationship `json:"status"`
}

type UserPresenceEvent struct {
	ID     string `json:"id"`
	Online bool   `json:"online"`
}

// SettingValue is a synced setting: the update timestamp and the raw value.
type SettingValue struct {
	UpdatedAt int64
	Value     string
}

func (s *SettingValue) UnmarshalJSON(data []byte) error {
	var pair [2]json.RawMessage
	if err := json.Unmarshal(data, &pair); err != nil {
		return fmt.Errorf("decode setting: %w", err)
	}
	if err := json.Unmarshal(pair[0], &s.UpdatedAt); err != nil {
		return fmt.Errorf("decode setting timestamp: %w", err)
	}
	if err := json.Unmarshal(pair[1], &s.Value); err != nil {
		return fmt.Errorf("decode setting value: %w", err)
	}
	return nil
}

func (s SettingValue) MarshalJSON() ([]byte, error) {
	return json.Marshal([]any{s.UpdatedAt, s.Value})
}

type UserSettingsUpdateEvent struct {
	ID     string                  `json:"id"`
	Update map[string]SettingValue `json:"update"`
}

type UserPlatformWipeEvent struct {
	UserID string `json:"user_id"`
	Flags  uint32 `json:"flags"`
}

type EmojiCreateEvent struct {
	model.EmojiData
}

type EmojiDeleteEvent struct {
	ID string `json:"id"`
}

// AuthEvent reports session changes: DeleteSession or DeleteAllSessions.
type AuthEvent struct {
	EventType        string `json:"event_type"`
	UserID           string `json:"user_id"`
	SessionID        string `json:"session_id,omitempty"`
	ExcludeSessionID string `json:"exclude_session_id,omitempty"`
}

// UnknownEvent keeps frames with a tag this package does not know.
type UnknownEvent struct {
	Tag EventType
	Raw json.RawMessage
}

func (*ErrorEvent) Type() EventType                 { return TypeError }
func (*BulkEvent) Type() EventType                  { return TypeBulk }
func (*AuthenticatedEvent) Type() EventType         { return TypeAuthenticated }
func (*ReadyEvent) Type() EventType                 { return TypeReady }
func (*PingEvent) Type() EventType                  { return TypePing }
func (*PongEvent) Type() EventType                  { return TypePong }
func (*MessageEvent) Type() EventType               { return TypeMessage }
func (*MessageUpdateEvent) Type() EventType         { return TypeMessageUpdate }
func (*MessageAppendEvent) Type() EventType         { return TypeMessageAppend }
func (*MessageDeleteEvent) Type() EventType         { return TypeMessageDelete }
func (*MessageReactEvent) Type() EventType          { return TypeMessageReact }
func (*MessageUnreactEvent) Type() EventType        { return TypeMessageUnreact }
func (*MessageRemoveReactionEvent) Type() EventType { return TypeMessageRemoveReaction }
func (*BulkMessageDeleteEvent) Type() EventType     { return TypeBulkMessageDelete }
func (*ChannelCreateEvent) Type() EventType         { return TypeChannelCreate }
func (*ChannelUpdateEvent) Type() EventType         { return TypeChannelUpdate }
func (*ChannelDeleteEvent) Type() EventType         { return TypeChannelDelete }
func (*ChannelGroupJoinEvent) Type() EventType      { return TypeChannelGroupJoin }
func (*ChannelGroupLeaveEvent) Type() EventType     { return TypeChannelGroupLeave }
func (*ChannelStartTypingEvent) Type() EventType    { return TypeChannelStartTyping }
func (*ChannelStopTypingEvent) Type() EventType     { return TypeChannelStopTyping }
func (*ChannelAckEvent) Type() EventType            { return TypeChannelAck }
func (*ServerCreateEvent) Type() EventType          { return TypeServerCreate }
func (*ServerUpdateEvent) Type() EventType          { return TypeServerUpdate }
func (*ServerDeleteEvent) Type() EventType          { return TypeServerDelete }
func (*ServerMemberUpdateEvent) Type() EventType    { return TypeServerMemberUpdate }
func (*ServerMemberJoinEvent) Type() EventType      { return TypeServerMemberJoin }
func (*ServerMemberLeaveEvent) Type() EventType     { return TypeServerMemberLeave }
func (*ServerRoleUpdateEvent) Type() EventType      { return TypeServerRoleUpdate }
func (*ServerRoleDeleteEvent) Type() EventType      { return TypeServerRoleDelete }
func (*UserUpdateEvent) Type() EventType            { return TypeUserUpdate }
func (*UserRelationshipEvent) Type() EventType      { return TypeUserRelationship }
func (*UserPresenceEvent) Type() EventType          { return TypeUserPresence }
func (*UserSettingsUpdateEvent) Type() EventType    { return TypeUserSettingsUpdate }
func (*UserPlatformWipeEvent) Type() EventType      { return TypeUserPlatformWipe }
func (*EmojiCreateEvent) Type() EventType           { return TypeEmojiCreate }
func (*EmojiDeleteEvent) Type() EventType           { return TypeEmojiDelete }
func (*AuthEvent) Type() EventType                  { return TypeAuth }
func (e *UnknownEvent) Type() EventType             { return e.Tag }

func newEvent(t EventType) Event {
	switch t {
	case TypeError:
		return &ErrorEvent{}
	case TypeBulk:
		return &BulkEvent{}
	case TypeAuthenticated:
		return &AuthenticatedEvent{}
	case TypeReady:
		return &ReadyEvent{}
	case TypePing:
		return &PingEvent{}
	case TypePong:
		return &PongEvent{}
	case TypeMessage:
		return &MessageEvent{}
	case TypeMessageUpdate:
		return &MessageUpdateEvent{}
	case TypeMessageAppend:
		return &MessageAppendEvent{}
	case TypeMessageDelete:
		return &MessageDeleteEvent{}
	case TypeMessageReact:
		return &MessageReactEvent{}
	case TypeMessageUnreact:
		return &MessageUnreactEvent{}
	case TypeMessageRemoveReaction:
		return &MessageRemoveReactionEvent{}
	case TypeBulkMessageDelete:
		return &BulkMessageDeleteEvent{}
	case TypeChannelCreate:
		return &ChannelCreateEvent{}
	case TypeChannelUpdate:
		return &ChannelUpdateEvent{}
	case TypeChannelDelete:
		return &ChannelDeleteEvent{}
	case TypeChannelGroupJoin:
		return &ChannelGroupJoinEvent{}
	case TypeChannelGroupLeave:
		return &ChannelGroupLeaveEvent{}
	case TypeChannelStartTyping:
		return &ChannelStartTypingEvent{}
	case TypeChannelStopTyping:
		return &ChannelStopTypingEvent{}
	case TypeChannelAck:
		return &ChannelAckEvent{}
	case TypeServerCreate:
		return &ServerCreateEvent{}
	case TypeServerUpdate:
		return &ServerUpdateEvent{}
	case TypeServerDelete:
		return &ServerDeleteEvent{}
	case TypeServerMemberUpdate:
		return &ServerMemberUpdateEvent{}
	case TypeServerMemberJoin:
		return &ServerMemberJoinEvent{}
	case TypeServerMemberLeave:
		return &ServerMemberLeaveEvent{}
	case TypeServerRoleUpdate:
		return &ServerRoleUpdateEvent{}
	case TypeServerRoleDelete:
		return &ServerRoleDeleteEvent{}
	case TypeUserUpdate:
		return &UserUpdateEvent{}
	case TypeUserRelationship:
		return &UserRelationshipEvent{}
	case TypeUserPresence:
		return &UserPresenceEvent{}
	case TypeUserSettingsUpdate:
		return &UserSettingsUpdateEvent{}
	case TypeUserPlatformWipe:
		return &UserPlatformWipeEvent{}
	case TypeEmojiCreate:
		return &EmojiCreateEvent{}
	case TypeEmojiDelete:
		return &EmojiDeleteEvent{}
	case TypeAuth:
		return &AuthEvent{}
	}
	return nil
}
