package model

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/Gopher0727/chatsync/pkg/permission"
)

// ChannelKind tags the channel variant.
type ChannelKind string

const (
	KindSavedMessages ChannelKind = "SavedMessages"
	KindDirectMessage ChannelKind = "DirectMessage"
	KindGroup         ChannelKind = "Group"
	KindTextChannel   ChannelKind = "TextChannel"
	KindVoiceChannel  ChannelKind = "VoiceChannel"
)

// Channel is a closed sum over *SavedMessages, *DirectMessage, *Group,
// *TextChannel and *VoiceChannel. Use a type switch to reach variant data.
type Channel interface {
	Base() *ChannelBase
	Kind() ChannelKind
	Clone() Channel
	Update(p ChannelPatch, clear ...ChannelField)
	sealed()
}

// ChannelBase is the state every channel variant carries.
type ChannelBase struct {
	ID            string
	LastMessageID *string
	TypingIDs     []string
}

func (b *ChannelBase) Base() *ChannelBase { return b }

func (*ChannelBase) sealed() {}

// CreatedAt decodes the creation time from the channel's ULID.
func (b *ChannelBase) CreatedAt() (time.Time, error) {
	id, err := ulid.ParseStrict(b.ID)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse channel id %q: %w", b.ID, err)
	}
	return ulid.Time(id.Time()), nil
}

// StartTyping records userID as typing and reports whether it was new.
func (b *ChannelBase) StartTyping(userID string) bool {
	if containsString(b.TypingIDs, userID) {
		return false
	}
	b.TypingIDs = append(b.TypingIDs, userID)
	return true
}

// StopTyping removes userID from the typing set and reports whether it was there.
func (b *ChannelBase) StopTyping(userID string) bool {
	if !containsString(b.TypingIDs, userID) {
		return false
	}
	b.TypingIDs = removeString(b.TypingIDs, userID)
	return true
}

func (b ChannelBase) clone() ChannelBase {
	return ChannelBase{
		ID:            b.ID,
		LastMessageID: clonePtr(b.LastMessageID),
		TypingIDs:     cloneSlice(b.TypingIDs),
	}
}

func (b *ChannelBase) update(p ChannelPatch) {
	if p.LastMessageID.Present {
		b.LastMessageID = p.LastMessageID.Ptr()
	}
}

func containsString(in []string, v string) bool {
	for _, s := range in {
		if s == v {
			return true
		}
	}
	return false
}

// ChannelData is the union of every channel variant's wire fields.
type ChannelData struct {
	ID                 string                              `json:"_id"`
	ChannelType        ChannelKind                         `json:"channel_type"`
	User               string                              `json:"user,omitempty"`
	Active             bool                                `json:"active,omitempty"`
	Recipients         []string                            `json:"recipients,omitempty"`
	LastMessageID      *string                             `json:"last_message_id,omitempty"`
	Name               string                              `json:"name,omitempty"`
	Owner              string                              `json:"owner,omitempty"`
	Description        *string                             `json:"description,omitempty"`
	Icon               File                                `json:"icon,omitempty"`
	Permissions        *uint64                             `json:"permissions,omitempty"`
	NSFW               bool                                `json:"nsfw,omitempty"`
	Server             string                              `json:"server,omitempty"`
	DefaultPermissions *permission.OverrideField           `json:"default_permissions,omitempty"`
	RolePermissions    map[string]permission.OverrideField `json:"role_permissions,omitempty"`
}

// ChannelPatch is a partial channel update.
type ChannelPatch struct {
	Name               Nullable[string]                              `json:"name,omitzero"`
	Owner              Nullable[string]                              `json:"owner,omitzero"`
	Description        Nullable[string]                              `json:"description,omitzero"`
	Icon               Nullable[File]                                `json:"icon,omitzero"`
	NSFW               Nullable[bool]                                `json:"nsfw,omitzero"`
	Active             Nullable[bool]                                `json:"active,omitzero"`
	Permissions        Nullable[uint64]                              `json:"permissions,omitzero"`
	RolePermissions    Nullable[map[string]permission.OverrideField] `json:"role_permissions,omitzero"`
	DefaultPermissions Nullable[permission.OverrideField]            `json:"default_permissions,omitzero"`
	LastMessageID      Nullable[string]                              `json:"last_message_id,omitzero"`
}

// ChannelField names a channel property that can be cleared.
type ChannelField string

const (
	ChannelFieldDescription        ChannelField = "Description"
	ChannelFieldIcon               ChannelField = "Icon"
	ChannelFieldDefaultPermissions ChannelField = "DefaultPermissions"
)

func (p ChannelPatch) withCleared(fields []ChannelField) ChannelPatch {
	for _, f := range fields {
		switch f {
		case ChannelFieldDescription:
			p.Description = Null[string]()
		case ChannelFieldIcon:
			p.Icon = Null[File]()
		case ChannelFieldDefaultPermissions:
			p.DefaultPermissions = Null[permission.OverrideField]()
		}
	}
	return p
}

// NewChannel builds the variant selected by data.ChannelType.
func NewChannel(data ChannelData) (Channel, error) {
	base := ChannelBase{ID: data.ID, LastMessageID: clonePtr(data.LastMessageID)}
	switch data.ChannelType {
	case KindSavedMessages:
		return &SavedMessages{ChannelBase: base, UserID: data.User}, nil
	case KindDirectMessage:
		return &DirectMessage{
			ChannelBase:  base,
			Active:       data.Active,
			RecipientIDs: cloneSlice(data.Recipients),
		}, nil
	case KindGroup:
		return &Group{
			ChannelBase:  base,
			Name:         data.Name,
			OwnerID:      data.Owner,
			Description:  clonePtr(data.Description),
			Icon:         cloneSlice(data.Icon),
			Permissions:  clonePtr(data.Permissions),
			NSFW:         data.NSFW,
			RecipientIDs: cloneSlice(data.Recipients),
		}, nil
	case KindTextChannel:
		return &TextChannel{ServerChannel: newServerChannel(base, data)}, nil
	case KindVoiceChannel:
		return &VoiceChannel{ServerChannel: newServerChannel(base, data)}, nil
	}
	return nil, fmt.Errorf("unknown channel type %q", data.ChannelType)
}

// DecodeChannel decodes a wire channel into its variant.
func DecodeChannel(raw []byte) (Channel, error) {
	var data ChannelData
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("decode channel: %w", err)
	}
	return NewChannel(data)
}

// SavedMessages is the personal notes channel of the current user.
type SavedMessages struct {
	ChannelBase
	UserID string
}

func (*SavedMessages) Kind() ChannelKind { return KindSavedMessages }

func (c *SavedMessages) Clone() Channel {
	return &SavedMessages{ChannelBase: c.ChannelBase.clone(), UserID: c.UserID}
}

func (c *SavedMessages) Update(p ChannelPatch, clear ...ChannelField) {
	c.update(p.withCleared(clear))
}

// DirectMessage is a one to one conversation.
type DirectMessage struct {
	ChannelBase
	Active       bool
	RecipientIDs []string
}

func (*DirectMessage) Kind() ChannelKind { return KindDirectMessage }

// RecipientID returns the participant other than selfID.
func (c *DirectMessage) RecipientID(selfID string) string {
	for _, id := range c.RecipientIDs {
		if id != selfID {
			return id
		}
	}
	if len(c.RecipientIDs) > 0 {
		return c.RecipientIDs[0]
	}
	return ""
}

func (c *DirectMessage) Clone() Channel {
	return &DirectMessage{
		ChannelBase:  c.ChannelBase.clone(),
		Active:       c.Active,
		RecipientIDs: cloneSlice(c.RecipientIDs),
	}
}

func (c *DirectMessage) Update(p ChannelPatch, clear ...ChannelField) {
	p = p.withCleared(clear)
	c.update(p)
	if p.Active.Present {
		c.Active = p.Active.Value
	}
}

// Group is a multi user conversation outside of a server.
type Group struct {
	ChannelBase
	Name         string
	OwnerID      string
	Description  *string
	Icon         File
	Permissions  *uint64
	NSFW         bool
	RecipientIDs []string
}

func (*Group) Kind() ChannelKind { return KindGroup }

// HasRecipient reports whether userID is part of the group.
func (c *Group) HasRecipient(userID string) bool {
	return containsString(c.RecipientIDs, userID)
}

// AddRecipient adds userID and reports whether it was new.
func (c *Group) AddRecipient(userID string) bool {
	if c.HasRecipient(userID) {
		return false
	}
	c.RecipientIDs = append(c.RecipientIDs, userID)
	return true
}

// RemoveRecipient removes userID and reports whether it was present.
func (c *Group) RemoveRecipient(userID string) bool {
	if !c.HasRecipient(userID) {
		return false
	}
	c.RecipientIDs = removeString(c.RecipientIDs, userID)
	return true
}

func (c *Group) Clone() Channel {
	return &Group{
		ChannelBase:  c.ChannelBase.clone(),
		Name:         c.Name,
		OwnerID:      c.OwnerID,
		Description:  clonePtr(c.Description),
		Icon:         cloneSlice(c.Icon),
		Permissions:  clonePtr(c.Permissions),
		NSFW:         c.NSFW,
		RecipientIDs: cloneSlice(c.RecipientIDs),
	}
}

func (c *Group) Update(p ChannelPatch, clear ...ChannelField) {
	p = p.withCleared(clear)
	c.update(p)
	if p.Name.Valid && p.Name.Value != "" {
		c.Name = p.Name.Value
	}
	if p.Owner.Valid {
		c.OwnerID = p.Owner.Value
	}
	if p.Description.Present {
		c.Description = p.Description.Ptr()
	}
	if p.Icon.Present {
		c.Icon = cloneSlice(p.Icon.Value)
	}
	if p.Permissions.Present {
		c.Permissions = p.Permissions.Ptr()
	}
	if p.NSFW.Present {
		c.NSFW = p.NSFW.Value
	}
}

// ServerChannel is the shared state of text and voice channels.
type ServerChannel struct {
	ChannelBase
	ServerID           string
	Name               string
	Description        *string
	Icon               File
	NSFW               bool
	DefaultPermissions *permission.Override
	RolePermissions    map[string]*permission.Override
}

func newServerChannel(base ChannelBase, data ChannelData) ServerChannel {
	sc := ServerChannel{
		ChannelBase:     base,
		ServerID:        data.Server,
		Name:            data.Name,
		Description:     clonePtr(data.Description),
		Icon:            cloneSlice(data.Icon),
		NSFW:            data.NSFW,
		RolePermissions: make(map[string]*permission.Override, len(data.RolePermissions)),
	}
	if data.DefaultPermissions != nil {
		sc.DefaultPermissions = permission.NewOverride(permission.DefaultOverrideID, *data.DefaultPermissions)
	}
	for id, field := range data.RolePermissions {
		sc.RolePermissions[id] = permission.NewOverride(id, field)
	}
	return sc
}

// RoleOverride returns the channel override for roleID, if any.
func (c *ServerChannel) RoleOverride(roleID string) *permission.Override {
	return c.RolePermissions[roleID]
}

func (c ServerChannel) clone() ServerChannel {
	out := c
	out.ChannelBase = c.ChannelBase.clone()
	out.Description = clonePtr(c.Description)
	out.Icon = cloneSlice(c.Icon)
	out.DefaultPermissions = c.DefaultPermissions.Clone()
	out.RolePermissions = make(map[string]*permission.Override, len(c.RolePermissions))
	for id, o := range c.RolePermissions {
		out.RolePermissions[id] = o.Clone()
	}
	return out
}

func (c *ServerChannel) updateServerChannel(p ChannelPatch, clear []ChannelField) {
	p = p.withCleared(clear)
	c.update(p)
	if p.Name.Valid && p.Name.Value != "" {
		c.Name = p.Name.Value
	}
	if p.Description.Present {
		c.Description = p.Description.Ptr()
	}
	if p.Icon.Present {
		c.Icon = cloneSlice(p.Icon.Value)
	}
	if p.NSFW.Present {
		c.NSFW = p.NSFW.Value
	}
	if p.DefaultPermissions.Present {
		c.DefaultPermissions = nil
		if p.DefaultPermissions.Valid {
			c.DefaultPermissions = permission.NewOverride(permission.DefaultOverrideID, p.DefaultPermissions.Value)
		}
	}
	if p.RolePermissions.Present {
		c.RolePermissions = make(map[string]*permission.Override, len(p.RolePermissions.Value))
		for id, field := range p.RolePermissions.Value {
			c.RolePermissions[id] = permission.NewOverride(id, field)
		}
	}
}

// ServerChannelOf returns the server channel state of c, or nil when c is not
// a server channel.
func ServerChannelOf(c Channel) *ServerChannel {
	switch ch := c.(type) {
	case *TextChannel:
		return &ch.ServerChannel
	case *VoiceChannel:
		return &ch.ServerChannel
	}
	return nil
}

type TextChannel struct {
	ServerChannel
}

func (*TextChannel) Kind() ChannelKind { return KindTextChannel }

func (c *TextChannel) Clone() Channel {
	return &TextChannel{ServerChannel: c.ServerChannel.clone()}
}

func (c *TextChannel) Update(p ChannelPatch, clear ...ChannelField) {
	c.updateServerChannel(p, clear)
}

type VoiceChannel struct {
	ServerChannel
}

func (*VoiceChannel) Kind() ChannelKind { return KindVoiceChannel }

func (c *VoiceChannel) Clone() Channel {
	return &VoiceChannel{ServerChannel: c.ServerChannel.clone()}
}

func (c *VoiceChannel) Update(p ChannelPatch, clear ...ChannelField) {
	c.updateServerChannel(p, clear)
}

// PotentiallyRestricted reports whether some role or the default scope may be
// denied from viewing the channel.
func PotentiallyRestricted(c *ServerChannel, server *Server) bool {
	view := permission.ViewChannel
	if c.DefaultPermissions != nil && c.DefaultPermissions.Deny.BitwiseAndEq(view) {
		return true
	}
	if server == nil || !server.DefaultPermissions.BitwiseAndEq(view) {
		return true
	}
	for id, role := range server.Roles {
		if o := c.RoleOverride(id); o != nil && o.Deny.BitwiseAndEq(view) {
			return true
		}
		if role.Permissions != nil && role.Permissions.Deny.BitwiseAndEq(view) {
			return true
		}
	}
	return false
}
