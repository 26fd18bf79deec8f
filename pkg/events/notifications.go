package events

import (
	"github.com/Gopher0727/chatsync/pkg/model"
	"github.com/Gopher0727/chatsync/pkg/protocol"
)

// Kind names a notification.
type Kind string

const (
	KindReady               Kind = "ready"
	KindStateChanged        Kind = "connectionState"
	KindConnectionError     Kind = "error"
	KindLogout              Kind = "logout"
	KindMessageCreate       Kind = "messageCreate"
	KindMessageUpdate       Kind = "messageUpdate"
	KindMessageDelete       Kind = "messageDelete"
	KindMessageDeleteBulk   Kind = "messageDeleteBulk"
	KindReactionAdd         Kind = "messageReactionAdd"
	KindReactionRemove      Kind = "messageReactionRemove"
	KindReactionRemoveEmoji Kind = "messageReactionRemoveEmoji"
	KindChannelCreate       Kind = "channelCreate"
	KindChannelUpdate       Kind = "channelUpdate"
	KindChannelDelete       Kind = "channelDelete"
	KindChannelGroupJoin    Kind = "channelGroupJoin"
	KindChannelGroupLeave   Kind = "channelGroupLeave"
	KindChannelStartTyping  Kind = "channelStartTyping"
	KindChannelStopTyping   Kind = "channelStopTyping"
	KindChannelAcknowledged Kind = "channelAcknowledged"
	KindServerCreate        Kind = "serverCreate"
	KindServerUpdate        Kind = "serverUpdate"
	KindServerDelete        Kind = "serverDelete"
	KindServerRoleUpdate    Kind = "serverRoleUpdate"
	KindServerRoleDelete    Kind = "serverRoleDelete"
	KindServerMemberJoin    Kind = "serverMemberJoin"
	KindServerMemberUpdate  Kind = "serverMemberUpdate"
	KindServerMemberLeave   Kind = "serverMemberLeave"
	KindUserUpdate          Kind = "userUpdate"
	KindUserSettingsUpdate  Kind = "userSettingsUpdate"
	KindEmojiCreate         Kind = "emojiCreate"
	KindEmojiDelete         Kind = "emojiDelete"
)

// Notification is a high level client event.
type Notification interface {
	Kind() Kind
}

// Subject is implemented by notifications scoped to one entity. Relays use
// it as the partition key.
type Subject interface {
	SubjectID() string
}

type Ready struct{}

type StateChanged struct {
	State string
}

type ConnectionError struct {
	Err error
}

type Logout struct{}

type MessageCreate struct {
	Message *model.Message
}

type MessageUpdate struct {
	Message  *model.Message
	Previous *model.Message
}

type MessageDelete struct {
	Message *model.Message
}

// MessageDeleteBulk lists the messages that were cached; Channel is nil when
// the channel is unknown.
type MessageDeleteBulk struct {
	ChannelID string
	Messages  []*model.Message
	Channel   model.Channel
}

type ReactionAdd struct {
	Message *model.Message
	UserID  string
	EmojiID string
}

type ReactionRemove struct {
	Message *model.Message
	UserID  string
	EmojiID string
}

type ReactionRemoveEmoji struct {
	Message *model.Message
	EmojiID string
}

type ChannelCreate struct {
	Channel model.Channel
}

type ChannelUpdate struct {
	Channel  model.Channel
	Previous model.Channel
}

type ChannelDelete struct {
	Channel model.Channel
}

type ChannelGroupJoin struct {
	Channel *model.Group
	User    *model.User
}

// ChannelGroupLeave carries a nil User when the user is not cached.
type ChannelGroupLeave struct {
	Channel *model.Group
	UserID  string
	User    *model.User
}

type ChannelStartTyping struct {
	Channel model.Channel
	User    *model.User
}

type ChannelStopTyping struct {
	Channel model.Channel
	UserID  string
	User    *model.User
}

type ChannelAcknowledged struct {
	Channel   model.Channel
	MessageID string
}

type ServerCreate struct {
	Server *model.Server
}

type ServerUpdate struct {
	Server   *model.Server
	Previous *model.Server
}

type ServerDelete struct {
	Server *model.Server
}

type ServerRoleUpdate struct {
	Server *model.Server
	RoleID string
	Role   *model.Role
}

type ServerRoleDelete struct {
	Server *model.Server
	RoleID string
	Role   *model.Role
}

type ServerMemberJoin struct {
	Member *model.Member
}

type ServerMemberUpdate struct {
	Member   *model.Member
	Previous *model.Member
}

type ServerMemberLeave struct {
	Member *model.Member
}

type UserUpdate struct {
	User     *model.User
	Previous *model.User
}

type UserSettingsUpdate struct {
	UserID string
	Update map[string]protocol.SettingValue
}

type EmojiCreate struct {
	Emoji *model.Emoji
}

type EmojiDelete struct {
	Emoji *model.Emoji
}

func (Ready) Kind() Kind               { return KindReady }
func (StateChanged) Kind() Kind        { return KindStateChanged }
func (ConnectionError) Kind() Kind     { return KindConnectionError }
func (Logout) Kind() Kind              { return KindLogout }
func (MessageCreate) Kind() Kind       { return KindMessageCreate }
func (MessageUpdate) Kind() Kind       { return KindMessageUpdate }
func (MessageDelete) Kind() Kind       { return KindMessageDelete }
func (MessageDeleteBulk) Kind() Kind   { return KindMessageDeleteBulk }
func (ReactionAdd) Kind() Kind         { return KindReactionAdd }
func (ReactionRemove) Kind() Kind      { return KindReactionRemove }
func (ReactionRemoveEmoji) Kind() Kind { return KindReactionRemoveEmoji }
func (ChannelCreate) Kind() Kind       { return KindChannelCreate }
func (ChannelUpdate) Kind() Kind       { return KindChannelUpdate }
func (ChannelDelete) Kind() Kind       { return KindChannelDelete }
func (ChannelGroupJoin) Kind() Kind    { return KindChannelGroupJoin }
func (ChannelGroupLeave) Kind() Kind   { return KindChannelGroupLeave }
func (ChannelStartTyping) Kind() Kind  { return KindChannelStartTyping }
func (ChannelStopTyping) Kind() Kind   { return KindChannelStopTyping }
func (ChannelAcknowledged) Kind() Kind { return KindChannelAcknowledged }
func (ServerCreate) Kind() Kind        { return KindServerCreate }
func (ServerUpdate) Kind() Kind        { return KindServerUpdate }
func (ServerDelete) Kind() Kind        { return KindServerDelete }
func (ServerRoleUpdate) Kind() Kind    { return KindServerRoleUpdate }
func (ServerRoleDelete) Kind() Kind    { return KindServerRoleDelete }
func (ServerMemberJoin) Kind() Kind    { return KindServerMemberJoin }
func (ServerMemberUpdate) Kind() Kind  { return KindServerMemberUpdate }
func (ServerMemberLeave) Kind() Kind   { return KindServerMemberLeave }
func (UserUpdate) Kind() Kind          { return KindUserUpdate }
func (UserSettingsUpdate) Kind() Kind  { return KindUserSettingsUpdate }
func (EmojiCreate) Kind() Kind         { return KindEmojiCreate }
func (EmojiDelete) Kind() Kind         { return KindEmojiDelete }

func (n MessageCreate) SubjectID() string       { return n.Message.ChannelID }
func (n MessageUpdate) SubjectID() string       { return n.Message.ChannelID }
func (n MessageDelete) SubjectID() string       { return n.Message.ChannelID }
func (n MessageDeleteBulk) SubjectID() string   { return n.ChannelID }
func (n ReactionAdd) SubjectID() string         { return n.Message.ChannelID }
func (n ReactionRemove) SubjectID() string      { return n.Message.ChannelID }
func (n ReactionRemoveEmoji) SubjectID() string { return n.Message.ChannelID }
func (n ChannelCreate) SubjectID() string       { return n.Channel.Base().ID }
func (n ChannelUpdate) SubjectID() string       { return n.Channel.Base().ID }
func (n ChannelDelete) SubjectID() string       { return n.Channel.Base().ID }
func (n ChannelGroupJoin) SubjectID() string    { return n.Channel.ID }
func (n ChannelGroupLeave) SubjectID() string   { return n.Channel.ID }
func (n ChannelStartTyping) SubjectID() string  { return n.Channel.Base().ID }
func (n ChannelStopTyping) SubjectID() string   { return n.Channel.Base().ID }
func (n ChannelAcknowledged) SubjectID() string { return n.Channel.Base().ID }
func (n ServerCreate) SubjectID() string        { return n.Server.ID }
func (n ServerUpdate) SubjectID() string        { return n.Server.ID }
func (n ServerDelete) SubjectID() string        { return n.Server.ID }
func (n ServerRoleUpdate) SubjectID() string    { return n.Server.ID }
func (n ServerRoleDelete) SubjectID() string    { return n.Server.ID }
func (n ServerMemberJoin) SubjectID() string    { return n.Member.Key.Server }
func (n ServerMemberUpdate) SubjectID() string  { return n.Member.Key.Server }
func (n ServerMemberLeave) SubjectID() string   { return n.Member.Key.Server }
func (n UserUpdate) SubjectID() string          { return n.User.ID }
func (n UserSettingsUpdate) SubjectID() string  { return n.UserID }
func (n EmojiCreate) SubjectID() string         { return n.Emoji.ID }
func (n EmojiDelete) SubjectID() string         { return n.Emoji.ID }
